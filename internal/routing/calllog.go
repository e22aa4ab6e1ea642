package routing

import (
	"context"
	"time"
)

// CallLogEntry records one upstream invocation or cache hit.
type CallLogEntry struct {
	RequestID string
	Provider  string
	// Params is the serialised request, normally RouteQuery.CanonicalParams.
	Params    string
	Status    int
	LatencyMs float64
	CacheHit  bool
	Error     string
	Timestamp time.Time
}

// Success reports whether the entry describes a successful call.
func (e CallLogEntry) Success() bool { return e.Status >= 200 && e.Status < 300 }

// CallLog is a write-only observability sink. Record must never fail the
// caller: implementations swallow (and may log) their own errors.
type CallLog interface {
	Record(ctx context.Context, e CallLogEntry)
}

// CallLogFunc adapts a function to the CallLog interface.
type CallLogFunc func(ctx context.Context, e CallLogEntry)

// Record calls f.
func (f CallLogFunc) Record(ctx context.Context, e CallLogEntry) { f(ctx, e) }

// NopCallLog discards every entry.
type NopCallLog struct{}

// Record does nothing.
func (NopCallLog) Record(context.Context, CallLogEntry) {}

// MultiCallLog fans an entry out to several sinks. A panicking sink is
// recovered so the remaining sinks, and the request, are unaffected.
type MultiCallLog struct {
	sinks  []CallLog
	logger Logger
}

// NewMultiCallLog returns a CallLog writing to every non-nil sink.
func NewMultiCallLog(logger Logger, sinks ...CallLog) *MultiCallLog {
	if logger == nil {
		logger = defaultLogger
	}
	m := &MultiCallLog{logger: logger}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Record writes e to every sink.
func (m *MultiCallLog) Record(ctx context.Context, e CallLogEntry) {
	for _, s := range m.sinks {
		m.recordOne(ctx, s, e)
	}
}

func (m *MultiCallLog) recordOne(ctx context.Context, s CallLog, e CallLogEntry) {
	defer func() {
		if r := recover(); r != nil {
			m.logger("routing: calllog: sink %T panicked (provider=%s): %v", s, e.Provider, r)
		}
	}()
	s.Record(ctx, e)
}

// LoggerCallLog writes entries as log lines.
type LoggerCallLog struct {
	Logger Logger
}

// Record logs e.
func (l LoggerCallLog) Record(_ context.Context, e CallLogEntry) {
	logger := l.Logger
	if logger == nil {
		logger = defaultLogger
	}
	if e.Error != "" {
		logger("routing: call provider=%s status=%d latency=%.1fms cached=%t request=%s error=%q",
			e.Provider, e.Status, e.LatencyMs, e.CacheHit, e.RequestID, e.Error)
		return
	}
	logger("routing: call provider=%s status=%d latency=%.1fms cached=%t request=%s",
		e.Provider, e.Status, e.LatencyMs, e.CacheHit, e.RequestID)
}

// recorder stamps entries with the request ID and timestamp before handing
// them to the underlying CallLog. A nil CallLog is tolerated.
type recorder struct {
	log CallLog
	now func() time.Time
}

func (r recorder) record(ctx context.Context, e CallLogEntry) {
	if r.log == nil {
		return
	}
	if e.RequestID == "" {
		e.RequestID, _ = RequestIDFromContext(ctx)
	}
	if e.Timestamp.IsZero() {
		if r.now != nil {
			e.Timestamp = r.now()
		} else {
			e.Timestamp = time.Now()
		}
	}
	r.log.Record(ctx, e)
}

// elapsedMs converts a duration to fractional milliseconds.
func elapsedMs(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000.0
}
