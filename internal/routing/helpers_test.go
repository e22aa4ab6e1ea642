package routing

import (
	"context"
	"sync"
	"time"
)

// spyCallLog collects every recorded entry.
type spyCallLog struct {
	mu      sync.Mutex
	entries []CallLogEntry
}

func (s *spyCallLog) Record(_ context.Context, e CallLogEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
}

func (s *spyCallLog) all() []CallLogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]CallLogEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

// fakeProvider returns res (stamped with the query's mode) or err, and
// remembers every query it saw.
type fakeProvider struct {
	name    string
	res     *RouteResult
	err     error
	queries []RouteQuery
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) ComputeRoutes(_ context.Context, q RouteQuery) (*RouteResult, error) {
	f.queries = append(f.queries, q)
	if f.err != nil {
		return nil, f.err
	}
	if f.res == nil {
		return nil, nil
	}
	out := *f.res
	out.TravelMode = q.Options.Mode
	return &out, nil
}

func (f *fakeProvider) calls() int { return len(f.queries) }

func okProvider(name string) *fakeProvider {
	return &fakeProvider{
		name: name,
		res: &RouteResult{
			Routes:      []Route{{ID: name + "_1", TotalTimeMin: 10, TotalDistanceM: 1000}},
			Source:      name,
			TotalRoutes: 1,
		},
	}
}

func failingProvider(name string) *fakeProvider {
	return &fakeProvider{
		name: name,
		err:  &UpstreamError{Provider: name, StatusCode: 503, Err: ErrNoRoutes},
	}
}

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// nopLogger discards log lines.
func nopLogger(string, ...any) {}

// testQuery is the Yekaterinburg query used throughout the tests.
func testQuery(mode TravelMode) RouteQuery {
	return RouteQuery{
		Origin:      Coordinates{Lat: 56.838011, Lon: 60.597465},
		Destination: Coordinates{Lat: 56.837814, Lon: 60.613200},
		Options:     Options{Mode: mode},
	}
}

func intPtr(v int) *int { return &v }
