package routing

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestMultiCallLog_FansOutAndRecoversPanics(t *testing.T) {
	a, b := &spyCallLog{}, &spyCallLog{}
	panicky := CallLogFunc(func(context.Context, CallLogEntry) { panic("sink down") })

	var logged []string
	logger := func(format string, args ...any) { logged = append(logged, format) }

	m := NewMultiCallLog(logger, a, panicky, nil, b)
	m.Record(context.Background(), CallLogEntry{Provider: "stub", Status: StatusOK})

	if len(a.all()) != 1 || len(b.all()) != 1 {
		t.Errorf("sinks got %d/%d entries, want 1/1", len(a.all()), len(b.all()))
	}
	if len(logged) != 1 || !strings.Contains(logged[0], "panicked") {
		t.Errorf("panic not logged: %v", logged)
	}
}

func TestRecorder_StampsEntries(t *testing.T) {
	spy := &spyCallLog{}
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	r := recorder{log: spy, now: func() time.Time { return fixed }}

	r.record(WithRequestID(context.Background(), "abc"), CallLogEntry{Provider: "p"})
	got := spy.all()[0]
	if got.RequestID != "abc" || !got.Timestamp.Equal(fixed) {
		t.Errorf("entry = %+v", got)
	}

	// A nil sink is tolerated.
	recorder{}.record(context.Background(), CallLogEntry{})
}

func TestLoggerCallLog(t *testing.T) {
	var lines []string
	l := LoggerCallLog{Logger: func(format string, args ...any) { lines = append(lines, format) }}

	l.Record(context.Background(), CallLogEntry{Provider: "stub", Status: StatusOK})
	l.Record(context.Background(), CallLogEntry{Provider: "tomtom_route", Status: 503, Error: "down"})

	if len(lines) != 2 || strings.Contains(lines[0], "error=") || !strings.Contains(lines[1], "error=") {
		t.Errorf("lines = %v", lines)
	}
}

func TestCallLogEntry_Success(t *testing.T) {
	cases := map[int]bool{200: true, 204: true, 404: false, 500: false, 0: false}
	for status, want := range cases {
		if got := (CallLogEntry{Status: status}).Success(); got != want {
			t.Errorf("Success() for %d = %v, want %v", status, got, want)
		}
	}
}

func TestCatalog(t *testing.T) {
	types := TransportTypes()
	if len(types) < 5 {
		t.Fatalf("catalog has %d types", len(types))
	}
	info, ok := LookupTransportType("tram")
	if !ok || info.Name != "Tram" {
		t.Errorf("tram = %+v %v", info, ok)
	}
	if got := KnownTransportTypes([]string{"bus", "zeppelin", "subway"}); strings.Join(got, ",") != "bus,subway" {
		t.Errorf("KnownTransportTypes = %v", got)
	}
	if transportName("zeppelin") != "zeppelin" || transportIcon("zeppelin") != "🚌" {
		t.Errorf("unknown type fallbacks wrong")
	}
}
