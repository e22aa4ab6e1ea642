package routing

import "time"

// options holds the settings shared by FallbackChain, ModeRouter and
// RequestCache. Each component reads only the fields it needs.
type options struct {
	logger Logger
	calls  CallLog
	now    func() time.Time
	ttl    time.Duration
}

// Option configures a routing component.
type Option func(*options)

// WithLogger sets the printf-style logger. In production, pass log.Printf.
// A nil logger silences the component.
func WithLogger(l Logger) Option {
	return func(o *options) {
		if l == nil {
			l = func(string, ...any) {}
		}
		o.logger = l
	}
}

// WithCallLog sets the sink that receives one CallLogEntry per provider
// attempt or cache hit.
func WithCallLog(c CallLog) Option {
	return func(o *options) { o.calls = c }
}

// WithClock overrides time.Now. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithTTL overrides the cache entry lifetime. Only RequestCache uses it.
func WithTTL(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.ttl = d
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		logger: defaultLogger,
		calls:  NopCallLog{},
		now:    time.Now,
		ttl:    DefaultCacheTTL,
	}
	for _, fn := range opts {
		fn(&o)
	}
	if o.calls == nil {
		o.calls = NopCallLog{}
	}
	return o
}

func (o options) recorder() recorder {
	return recorder{log: o.calls, now: o.now}
}
