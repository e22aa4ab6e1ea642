package routing

import (
	"context"
	"errors"
	"testing"
)

func TestFallbackChain_PrimaryFailsSecondarySucceeds(t *testing.T) {
	primary := failingProvider("primary")
	secondary := okProvider("secondary")
	spy := &spyCallLog{}

	chain := NewFallbackChain([]Stage{{Provider: primary}, {Provider: secondary}},
		WithCallLog(spy), WithLogger(nopLogger))

	res, err := chain.Run(context.Background(), testQuery(ModeCar))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Source != "secondary" {
		t.Errorf("Source = %q, want secondary", res.Source)
	}

	entries := spy.all()
	if len(entries) != 2 {
		t.Fatalf("got %d call-log entries, want 2: %+v", len(entries), entries)
	}
	if entries[0].Provider != "primary" || entries[0].Success() || entries[0].Error == "" {
		t.Errorf("first entry = %+v, want primary failure", entries[0])
	}
	if entries[0].Status != 503 {
		t.Errorf("failure status = %d, want upstream 503", entries[0].Status)
	}
	if entries[1].Provider != "secondary" || !entries[1].Success() {
		t.Errorf("second entry = %+v, want secondary success", entries[1])
	}
	for _, e := range entries {
		if e.CacheHit {
			t.Errorf("chain entries must not be cache hits: %+v", e)
		}
	}
}

func TestFallbackChain_StopsAtFirstSuccess(t *testing.T) {
	first := okProvider("first")
	second := okProvider("second")
	chain := NewFallbackChain([]Stage{{Provider: first}, {Provider: second}}, WithLogger(nopLogger))

	if _, err := chain.Run(context.Background(), testQuery(ModePedestrian)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.calls() != 1 || second.calls() != 0 {
		t.Errorf("calls = %d/%d, want 1/0", first.calls(), second.calls())
	}
}

func TestFallbackChain_StageModeOverridesQuery(t *testing.T) {
	walker := okProvider("walker")
	chain := NewFallbackChain([]Stage{{Provider: walker, Mode: ModePedestrian}}, WithLogger(nopLogger))

	q := testQuery(ModeTransit)
	q.Options.TransportTypes = []string{"tram"}
	res, err := chain.Run(context.Background(), q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	seen := walker.queries[0]
	if seen.Options.Mode != ModePedestrian || seen.Options.TransportTypes != nil {
		t.Errorf("provider saw %+v, want pedestrian without transit options", seen.Options)
	}
	if res.TravelMode != ModePedestrian {
		t.Errorf("TravelMode = %q, want pedestrian", res.TravelMode)
	}
}

func TestFallbackChain_AllFail(t *testing.T) {
	spy := &spyCallLog{}
	chain := NewFallbackChain([]Stage{
		{Provider: failingProvider("a")},
		{Provider: failingProvider("b")},
	}, WithCallLog(spy), WithLogger(nopLogger))

	_, err := chain.Run(context.Background(), testQuery(ModeCar))

	var exhausted *ExhaustedFallbackError
	if !errors.As(err, &exhausted) {
		t.Fatalf("err = %v, want *ExhaustedFallbackError", err)
	}
	if len(exhausted.Errors) != 2 {
		t.Errorf("aggregated %d errors, want 2", len(exhausted.Errors))
	}
	if !errors.Is(err, ErrNoRoutes) {
		t.Errorf("aggregate should unwrap to the stage causes")
	}
	if got := len(spy.all()); got != 2 {
		t.Errorf("got %d call-log entries, want 2", got)
	}
}

func TestFallbackChain_NonUpstreamErrorPropagates(t *testing.T) {
	boom := errors.New("programming error")
	broken := &fakeProvider{name: "broken", err: boom}
	next := okProvider("next")
	spy := &spyCallLog{}

	chain := NewFallbackChain([]Stage{{Provider: broken}, {Provider: next}},
		WithCallLog(spy), WithLogger(nopLogger))

	_, err := chain.Run(context.Background(), testQuery(ModeCar))
	if err != boom {
		t.Fatalf("err = %v, want the original error unwrapped", err)
	}
	if next.calls() != 0 {
		t.Errorf("next stage ran %d times after a non-upstream error", next.calls())
	}
	if got := len(spy.all()); got != 1 {
		t.Errorf("got %d call-log entries, want 1", got)
	}
}

func TestFallbackChain_NilResultIsUpstreamFailure(t *testing.T) {
	empty := &fakeProvider{name: "empty"}
	next := okProvider("next")
	chain := NewFallbackChain([]Stage{{Provider: empty}, {Provider: next}}, WithLogger(nopLogger))

	res, err := chain.Run(context.Background(), testQuery(ModeCar))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Source != "next" {
		t.Errorf("Source = %q, want next", res.Source)
	}
}

func TestFallbackChain_RequestIDOnEntries(t *testing.T) {
	spy := &spyCallLog{}
	chain := NewFallbackChain([]Stage{{Provider: okProvider("p")}}, WithCallLog(spy), WithLogger(nopLogger))

	ctx := WithRequestID(context.Background(), "req-42")
	if _, err := chain.Run(ctx, testQuery(ModeCar)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := spy.all()[0].RequestID; got != "req-42" {
		t.Errorf("RequestID = %q, want req-42", got)
	}
}

func TestNewFallbackChain_SkipsNilProviders(t *testing.T) {
	chain := NewFallbackChain([]Stage{{Provider: nil}, {Provider: okProvider("p")}})
	if got := len(chain.Stages()); got != 1 {
		t.Errorf("Stages() = %d, want 1", got)
	}
}
