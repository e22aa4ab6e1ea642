package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bellvik/transport-planner/internal/geocode"
	"github.com/bellvik/transport-planner/internal/routing"
	"github.com/bellvik/transport-planner/internal/storage"
)

// --- mock Router ---

type mockRouter struct {
	resp    *routing.RouteResult
	err     error
	calls   int
	lastReq routing.RouteQuery
}

func (m *mockRouter) Route(_ context.Context, q routing.RouteQuery) (*routing.RouteResult, error) {
	m.calls++
	m.lastReq = q
	return m.resp, m.err
}

// --- mock RouteCache ---

type mockCache struct {
	hit   *routing.RouteResult
	calls int
}

func (m *mockCache) GetOrCompute(ctx context.Context, q routing.RouteQuery, compute routing.ComputeFunc) (*routing.RouteResult, error) {
	m.calls++
	if m.hit != nil {
		return m.hit, nil
	}
	return compute(ctx, q)
}

// --- mock Geocoder ---

type mockGeocoder struct {
	places map[string]geocode.Place
	err    error
}

func (m *mockGeocoder) Name() string { return "mock_geocode" }

func (m *mockGeocoder) Geocode(_ context.Context, q string) (*geocode.Result, error) {
	if m.err != nil {
		return nil, m.err
	}
	p, ok := m.places[q]
	if !ok {
		return &geocode.Result{Source: "mock"}, nil
	}
	return &geocode.Result{Places: []geocode.Place{p}, Source: "mock"}, nil
}

// --- mock SearchHistoryRepository ---

type mockHistory struct {
	records  []storage.SearchRecord
	err      error
	popular  []storage.PopularRoute
	since    time.Time
	limit    int
	recordCt int
}

func (m *mockHistory) RecordSearch(_ context.Context, r storage.SearchRecord) (int64, error) {
	m.recordCt++
	if m.err != nil {
		return 0, m.err
	}
	m.records = append(m.records, r)
	return int64(len(m.records)), nil
}

func (m *mockHistory) PopularRoutes(_ context.Context, since time.Time, limit int) ([]storage.PopularRoute, error) {
	m.since, m.limit = since, limit
	return m.popular, m.err
}

func quiet(string, ...any) {}

func oneRoute() *routing.RouteResult {
	return &routing.RouteResult{
		Routes:      []routing.Route{{ID: "r1", TotalTimeMin: 20}},
		Source:      routing.ProviderStub,
		TravelMode:  routing.ModeTransit,
		TotalRoutes: 1,
	}
}

// --- tests ---

func TestPlannerService_GetRoutes_InvalidCoordinates(t *testing.T) {
	router := &mockRouter{resp: oneRoute()}
	svc := NewPlannerService(router, nil, nil, nil, quiet)

	tests := []struct {
		name                   string
		sLat, sLon, eLat, eLon float64
	}{
		{"lat too large", 91, 60, 56, 60},
		{"lon too small", 56, -181, 56, 60},
		{"destination out of range", 56, 60, -95, 60},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.GetRoutes(context.Background(), tt.sLat, tt.sLon, tt.eLat, tt.eLon, routing.Options{})
			if !errors.Is(err, ErrInvalidCoordinates) {
				t.Fatalf("err = %v, want ErrInvalidCoordinates", err)
			}
		})
	}
	if router.calls != 0 {
		t.Errorf("router called %d times for invalid input", router.calls)
	}
}

func TestPlannerService_GetRoutes_NormalizesOptions(t *testing.T) {
	router := &mockRouter{resp: oneRoute()}
	svc := NewPlannerService(router, nil, nil, nil, quiet)

	two := 2
	_, err := svc.GetRoutes(context.Background(), 56.83, 60.60, 56.84, 60.65, routing.Options{
		Mode:           routing.ModeCar,
		TransportTypes: []string{"bus"},
		MaxTransfers:   &two,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := router.lastReq.Options
	if got.Mode != routing.ModeCar || got.TransportTypes != nil || got.MaxTransfers != nil {
		t.Errorf("options = %+v, want car without transit options", got)
	}

	if _, err := svc.GetRoutes(context.Background(), 56.83, 60.60, 56.84, 60.65, routing.Options{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if router.lastReq.Options.Mode != routing.ModeTransit {
		t.Errorf("empty mode = %q, want transit", router.lastReq.Options.Mode)
	}
}

func TestPlannerService_GetRoutes_UnknownModePassesThrough(t *testing.T) {
	router := &mockRouter{resp: oneRoute()}
	svc := NewPlannerService(router, nil, nil, nil, quiet)

	if _, err := svc.GetRoutes(context.Background(), 56.83, 60.60, 56.84, 60.65, routing.Options{Mode: "hovercraft"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if router.lastReq.Options.Mode != "hovercraft" {
		t.Errorf("mode = %q, want hovercraft", router.lastReq.Options.Mode)
	}
}

func TestPlannerService_GetRoutes_UsesCache(t *testing.T) {
	router := &mockRouter{resp: oneRoute()}
	cached := &routing.RouteResult{Source: routing.ProviderCache, TotalRoutes: 0}
	cache := &mockCache{hit: cached}
	svc := NewPlannerService(router, cache, nil, nil, quiet)

	got, err := svc.GetRoutes(context.Background(), 56.83, 60.60, 56.84, 60.65, routing.Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != cached {
		t.Errorf("result = %+v, want cached result", got)
	}
	if router.calls != 0 {
		t.Errorf("router called %d times on cache hit", router.calls)
	}
}

func TestPlannerService_GetRoutes_RouterError(t *testing.T) {
	wantErr := errors.New("upstream down")
	svc := NewPlannerService(&mockRouter{err: wantErr}, &mockCache{}, nil, nil, quiet)

	_, err := svc.GetRoutes(context.Background(), 56.83, 60.60, 56.84, 60.65, routing.Options{})
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want wrapped %v", err, wantErr)
	}
}

func TestPlannerService_Plan_RecordsSuccess(t *testing.T) {
	router := &mockRouter{resp: oneRoute()}
	geo := &mockGeocoder{places: map[string]geocode.Place{
		"circus": {Address: "8 Marta St, 43", Lat: 56.8378, Lon: 60.6132},
		"upi":    {Address: "Mira St, 19", Lat: 56.8440, Lon: 60.6532},
	}}
	hist := &mockHistory{}
	svc := NewPlannerService(router, nil, geo, hist, quiet)

	one := 1
	plan, err := svc.Plan(context.Background(), " circus ", "upi", routing.Options{MaxTransfers: &one, TransportTypes: []string{"tram"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if plan.From.Address != "8 Marta St, 43" || plan.To.Lat != 56.8440 {
		t.Errorf("plan endpoints = %+v -> %+v", plan.From, plan.To)
	}
	if router.lastReq.Origin.Lat != 56.8378 || router.lastReq.Destination.Lon != 60.6532 {
		t.Errorf("router query = %+v", router.lastReq)
	}

	if len(hist.records) != 1 {
		t.Fatalf("recorded %d searches, want 1", len(hist.records))
	}
	rec := hist.records[0]
	if !rec.Successful || rec.RoutesCount != 1 {
		t.Errorf("record = %+v, want successful with 1 route", rec)
	}
	if rec.StartQuery != "circus" || rec.EndQuery != "upi" {
		t.Errorf("queries = %q -> %q", rec.StartQuery, rec.EndQuery)
	}
	if rec.TravelMode != "transit" || rec.MaxTransfers != "1" || rec.TransportTypes != "tram" {
		t.Errorf("record options = %+v", rec)
	}
	if rec.StartCoords == "" || rec.EndCoords == "" || rec.CreatedAt.IsZero() {
		t.Errorf("record missing coords or timestamp: %+v", rec)
	}
}

func TestPlannerService_Plan_PlaceNotFound(t *testing.T) {
	router := &mockRouter{resp: oneRoute()}
	geo := &mockGeocoder{places: map[string]geocode.Place{
		"circus": {Lat: 56.8378, Lon: 60.6132},
	}}
	hist := &mockHistory{}
	svc := NewPlannerService(router, nil, geo, hist, quiet)

	_, err := svc.Plan(context.Background(), "circus", "atlantis", routing.Options{})
	if !errors.Is(err, ErrPlaceNotFound) {
		t.Fatalf("err = %v, want ErrPlaceNotFound", err)
	}
	if router.calls != 0 {
		t.Errorf("router called %d times", router.calls)
	}
	if len(hist.records) != 1 || hist.records[0].Successful {
		t.Errorf("records = %+v, want one failed search", hist.records)
	}
}

func TestPlannerService_Plan_HistoryFailureIgnored(t *testing.T) {
	var logged int
	geo := &mockGeocoder{places: map[string]geocode.Place{
		"a": {Lat: 56.83, Lon: 60.60},
		"b": {Lat: 56.84, Lon: 60.65},
	}}
	hist := &mockHistory{err: errors.New("disk full")}
	svc := NewPlannerService(&mockRouter{resp: oneRoute()}, nil, geo, hist, func(string, ...any) { logged++ })

	if _, err := svc.Plan(context.Background(), "a", "b", routing.Options{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hist.recordCt != 1 || logged != 1 {
		t.Errorf("recordCt = %d, logged = %d", hist.recordCt, logged)
	}
}

func TestPlannerService_Plan_DefaultsToStubGeocoder(t *testing.T) {
	router := &mockRouter{resp: oneRoute()}
	svc := NewPlannerService(router, nil, nil, nil, quiet)

	plan, err := svc.Plan(context.Background(), "railway station", "circus", routing.Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if plan.From.Lat != 56.838011 || plan.To.Lon != 60.613200 {
		t.Errorf("plan = %+v -> %+v", plan.From, plan.To)
	}
}

func TestPlannerService_PopularRoutes(t *testing.T) {
	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		days      int
		limit     int
		wantSince time.Time
		wantLimit int
	}{
		{"defaults", 0, 0, now.AddDate(0, 0, -7), 10},
		{"explicit", 30, 5, now.AddDate(0, 0, -30), 5},
		{"limit capped", 1, 1000, now.AddDate(0, 0, -1), 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hist := &mockHistory{popular: []storage.PopularRoute{{StartQuery: "a", EndQuery: "b", Count: 3}}}
			svc := NewPlannerService(&mockRouter{}, nil, nil, hist, quiet)
			svc.now = func() time.Time { return now }

			got, err := svc.PopularRoutes(context.Background(), tt.days, tt.limit)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != 1 || got[0].Count != 3 {
				t.Errorf("routes = %+v", got)
			}
			if !hist.since.Equal(tt.wantSince) || hist.limit != tt.wantLimit {
				t.Errorf("since = %v limit = %d, want %v %d", hist.since, hist.limit, tt.wantSince, tt.wantLimit)
			}
		})
	}
}

func TestPlannerService_PopularRoutes_NoHistory(t *testing.T) {
	svc := NewPlannerService(&mockRouter{}, nil, nil, nil, quiet)
	if _, err := svc.PopularRoutes(context.Background(), 7, 10); !errors.Is(err, ErrHistoryDisabled) {
		t.Fatalf("err = %v, want ErrHistoryDisabled", err)
	}
}
