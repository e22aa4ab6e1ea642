package routing

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// errNilResult is reported when a provider returns neither a result nor an
// error.
var errNilResult = errors.New("provider returned no result")

// Stage is one attempt of a FallbackChain: the provider to call and the
// travel mode to ask it for. An empty Mode keeps the query's own mode.
type Stage struct {
	Provider Provider
	Mode     TravelMode
}

func (s Stage) String() string {
	if s.Mode == "" {
		return s.Provider.Name()
	}
	return fmt.Sprintf("%s(%s)", s.Provider.Name(), s.Mode)
}

// FallbackChain tries its stages strictly in order until one succeeds.
// Only *UpstreamError moves the chain to the next stage; any other error is
// returned to the caller unchanged. Every attempt, failed or not, is recorded
// to the CallLog before the next stage starts.
type FallbackChain struct {
	stages []Stage
	opts   options
}

// NewFallbackChain returns a chain over stages. Stages with a nil provider
// are skipped.
func NewFallbackChain(stages []Stage, opts ...Option) *FallbackChain {
	c := &FallbackChain{opts: buildOptions(opts)}
	for _, s := range stages {
		if s.Provider != nil {
			c.stages = append(c.stages, s)
		}
	}
	return c
}

// Stages returns a copy of the chain's stages.
func (c *FallbackChain) Stages() []Stage {
	out := make([]Stage, len(c.stages))
	copy(out, c.stages)
	return out
}

// Run executes the chain for q. It returns the first successful result, or
// an *ExhaustedFallbackError holding every stage's error when all fail.
func (c *FallbackChain) Run(ctx context.Context, q RouteQuery) (*RouteResult, error) {
	rec := c.opts.recorder()
	errs := make([]error, 0, len(c.stages))

	for i, stage := range c.stages {
		sq := q
		if stage.Mode != "" && stage.Mode != q.Options.Mode {
			sq = q.WithMode(stage.Mode)
		}
		name := stage.Provider.Name()

		start := c.opts.now()
		res, err := stage.Provider.ComputeRoutes(ctx, sq)
		latency := latencySince(c.opts.now, start)
		if err == nil && res == nil {
			err = &UpstreamError{Provider: name, Err: errNilResult}
		}

		if err != nil {
			rec.record(ctx, CallLogEntry{
				Provider:  name,
				Params:    sq.CanonicalParams(),
				Status:    failureStatus(err),
				LatencyMs: latency,
				Error:     err.Error(),
			})

			var ue *UpstreamError
			if !errors.As(err, &ue) {
				return nil, err
			}

			c.opts.logger("routing: fallback: stage %d/%d %s failed for %s: %v",
				i+1, len(c.stages), stage, q, err)
			errs = append(errs, err)
			continue
		}

		rec.record(ctx, CallLogEntry{
			Provider:  name,
			Params:    sq.CanonicalParams(),
			Status:    StatusOK,
			LatencyMs: latency,
		})
		if res.TravelMode == "" {
			res.TravelMode = sq.Options.Mode
		}
		if i > 0 {
			c.opts.logger("routing: fallback: %s served by %s after %d failure(s)", q, stage, i)
		}
		return res, nil
	}

	return nil, &ExhaustedFallbackError{Errors: errs}
}

// latencySince returns the milliseconds elapsed since start.
func latencySince(now func() time.Time, start time.Time) float64 {
	return elapsedMs(now().Sub(start))
}
