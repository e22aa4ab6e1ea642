package geocode

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/bellvik/transport-planner/internal/routing"
)

// FallbackGeocoder asks the primary geocoder first and the stub when the
// primary fails. Each attempt is recorded to the CallLog.
type FallbackGeocoder struct {
	primary Geocoder
	stub    Geocoder
	calls   routing.CallLog
	logger  routing.Logger
	now     func() time.Time
}

// NewFallbackGeocoder returns a geocoder over primary. A nil primary means
// every query goes straight to the stub. calls may be nil.
func NewFallbackGeocoder(primary Geocoder, calls routing.CallLog, logger routing.Logger) *FallbackGeocoder {
	if calls == nil {
		calls = routing.NopCallLog{}
	}
	if logger == nil {
		logger = log.Printf
	}
	return &FallbackGeocoder{
		primary: primary,
		stub:    NewStubGeocoder(),
		calls:   calls,
		logger:  logger,
		now:     time.Now,
	}
}

// Name implements Geocoder.
func (f *FallbackGeocoder) Name() string { return "fallback_geocode" }

// Geocode implements Geocoder.
func (f *FallbackGeocoder) Geocode(ctx context.Context, query string) (*Result, error) {
	if normalizeQuery(query) == "" {
		return nil, ErrEmptyQuery
	}
	if f.primary != nil {
		res, err := f.attempt(ctx, f.primary, query)
		if err == nil {
			return res, nil
		}
		f.logger("geocode: %s failed for %q, using stub: %v", f.primary.Name(), query, err)
	}
	return f.attempt(ctx, f.stub, query)
}

func (f *FallbackGeocoder) attempt(ctx context.Context, g Geocoder, query string) (*Result, error) {
	start := f.now()
	res, err := g.Geocode(ctx, query)
	entry := routing.CallLogEntry{
		Provider:  g.Name(),
		Params:    "query=" + query,
		LatencyMs: float64(f.now().Sub(start).Microseconds()) / 1000.0,
		Timestamp: f.now(),
	}
	entry.RequestID, _ = routing.RequestIDFromContext(ctx)
	if err != nil {
		entry.Status = routing.StatusFailure
		var ue *routing.UpstreamError
		if errors.As(err, &ue) && ue.StatusCode >= 400 {
			entry.Status = ue.StatusCode
		}
		entry.Error = err.Error()
	} else {
		entry.Status = routing.StatusOK
	}
	f.calls.Record(ctx, entry)
	return res, err
}
