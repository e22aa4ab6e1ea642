package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bellvik/transport-planner/internal/geocode"
	"github.com/bellvik/transport-planner/internal/routing"
	"github.com/bellvik/transport-planner/internal/service"
	"github.com/bellvik/transport-planner/internal/storage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// ---------------------------------------------------------------------------
// Test doubles
// ---------------------------------------------------------------------------

type mockRouter struct {
	resp    *routing.RouteResult
	err     error
	lastReq routing.RouteQuery
	calls   int
}

func (m *mockRouter) Route(_ context.Context, q routing.RouteQuery) (*routing.RouteResult, error) {
	m.calls++
	m.lastReq = q
	return m.resp, m.err
}

type mockHistory struct {
	popular []storage.PopularRoute
	limit   int
}

func (m *mockHistory) RecordSearch(context.Context, storage.SearchRecord) (int64, error) {
	return 1, nil
}

func (m *mockHistory) PopularRoutes(_ context.Context, _ time.Time, limit int) ([]storage.PopularRoute, error) {
	m.limit = limit
	return m.popular, nil
}

func quiet(string, ...any) {}

type fixture struct {
	router  *mockRouter
	history *mockHistory
	cache   *routing.MemoryCacheStore
	engine  *gin.Engine
}

func newFixture(history bool) *fixture {
	f := &fixture{
		router: &mockRouter{resp: &routing.RouteResult{
			Routes:      []routing.Route{{ID: "r1", TotalTimeMin: 18}},
			Source:      routing.ProviderStub,
			TravelMode:  routing.ModeTransit,
			TotalRoutes: 1,
		}},
		cache: routing.NewMemoryCacheStore(16),
	}

	var hist storage.SearchHistoryRepository
	if history {
		f.history = &mockHistory{popular: []storage.PopularRoute{{StartQuery: "circus", EndQuery: "upi", Count: 4}}}
		hist = f.history
	}

	planner := service.NewPlannerService(f.router, nil, geocode.NewStubGeocoder(), hist, quiet)
	status := service.NewStatusService(nil, f.cache, routing.Flags{}, 30*time.Minute)
	h := New(planner, status)

	r := gin.New()
	api := r.Group("/api/v1")
	api.GET("/routes", h.GetRoutes)
	api.GET("/routes/popular", h.PopularRoutes)
	api.GET("/plan", h.Plan)
	api.GET("/transport-types", h.TransportTypes)
	api.GET("/status", h.Status)
	api.GET("/admin/cache/stats", h.CacheStats)
	api.POST("/admin/cache/purge", h.PurgeCache)
	f.engine = r
	return f
}

func (f *fixture) do(method, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, httptest.NewRequest(method, target, nil))
	return w
}

const validRoute = "/api/v1/routes?start_lat=56.838&start_lon=60.597&end_lat=56.844&end_lon=60.653"

// ---------------------------------------------------------------------------
// GetRoutes
// ---------------------------------------------------------------------------

func TestGetRoutes_BadRequests(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{"missing start_lat", "/api/v1/routes?start_lon=60.5&end_lat=56.8&end_lon=60.6"},
		{"non-numeric end_lon", "/api/v1/routes?start_lat=56.8&start_lon=60.5&end_lat=56.8&end_lon=abc"},
		{"latitude out of range", "/api/v1/routes?start_lat=95&start_lon=60.5&end_lat=56.8&end_lon=60.6"},
		{"negative max_transfers", validRoute + "&max_transfers=-1"},
		{"bad only_direct", validRoute + "&only_direct=maybe"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(false)
			w := f.do(http.MethodGet, tt.query)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400 (body %s)", w.Code, w.Body.String())
			}
			if f.router.calls != 0 {
				t.Errorf("router called %d times", f.router.calls)
			}
		})
	}
}

func TestGetRoutes_Success(t *testing.T) {
	f := newFixture(false)
	w := f.do(http.MethodGet, validRoute+"&transport_types=bus,tram&transport_types=trolleybus&max_transfers=1&only_direct=true")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", w.Code, w.Body.String())
	}
	var body routing.RouteResult
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.TotalRoutes != 1 || body.Routes[0].ID != "r1" {
		t.Errorf("body = %+v", body)
	}

	opts := f.router.lastReq.Options
	if opts.Mode != routing.ModeTransit || len(opts.TransportTypes) != 3 || opts.MaxTransfers == nil || *opts.MaxTransfers != 1 || !opts.OnlyDirect {
		t.Errorf("options = %+v", opts)
	}
}

func TestGetRoutes_UnknownModeReachesRouter(t *testing.T) {
	f := newFixture(false)
	w := f.do(http.MethodGet, validRoute+"&travel_mode=teleport")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if f.router.lastReq.Options.Mode != "teleport" {
		t.Errorf("mode = %q", f.router.lastReq.Options.Mode)
	}
}

func TestGetRoutes_ProviderErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"exhausted chain", &routing.ExhaustedFallbackError{Errors: []error{fmt.Errorf("tomtom: 503")}}, http.StatusBadGateway},
		{"unexpected", fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(false)
			f.router.resp, f.router.err = nil, tt.err
			if w := f.do(http.MethodGet, validRoute); w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Plan and popular routes
// ---------------------------------------------------------------------------

func TestPlan(t *testing.T) {
	f := newFixture(true)

	if w := f.do(http.MethodGet, "/api/v1/plan?from=circus"); w.Code != http.StatusBadRequest {
		t.Errorf("missing to: status = %d, want 400", w.Code)
	}

	w := f.do(http.MethodGet, "/api/v1/plan?from=circus&to=upi&travel_mode=car")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", w.Code, w.Body.String())
	}
	var body struct {
		From   geocode.Place       `json:"from"`
		To     geocode.Place       `json:"to"`
		Routes routing.RouteResult `json:"routes"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.From.Lat != 56.837814 || body.To.Lon != 60.6532 {
		t.Errorf("endpoints = %+v -> %+v", body.From, body.To)
	}
	if f.router.lastReq.Options.Mode != routing.ModeCar {
		t.Errorf("mode = %q, want car", f.router.lastReq.Options.Mode)
	}
}

func TestPopularRoutes(t *testing.T) {
	f := newFixture(true)
	w := f.do(http.MethodGet, "/api/v1/routes/popular?limit=5")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var body struct {
		Routes []storage.PopularRoute `json:"routes"`
		Days   int                    `json:"days"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Routes) != 1 || body.Routes[0].Count != 4 || body.Days != 7 || f.history.limit != 5 {
		t.Errorf("body = %+v limit = %d", body, f.history.limit)
	}

	if w := f.do(http.MethodGet, "/api/v1/routes/popular?days=x"); w.Code != http.StatusBadRequest {
		t.Errorf("bad days: status = %d, want 400", w.Code)
	}
}

func TestPopularRoutes_NoHistory(t *testing.T) {
	f := newFixture(false)
	if w := f.do(http.MethodGet, "/api/v1/routes/popular"); w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

func TestTransportTypes(t *testing.T) {
	f := newFixture(false)
	w := f.do(http.MethodGet, "/api/v1/transport-types")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var body struct {
		TransportTypes []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"transport_types"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("body: %v", err)
	}
	found := false
	for _, tt := range body.TransportTypes {
		if tt.ID == "tram" {
			found = tt.Name != ""
		}
	}
	if !found {
		t.Errorf("tram missing or unnamed in %+v", body.TransportTypes)
	}
}

// ---------------------------------------------------------------------------
// Status and cache maintenance
// ---------------------------------------------------------------------------

func TestStatusAndCacheMaintenance(t *testing.T) {
	f := newFixture(false)
	now := time.Now()
	for i, exp := range []time.Time{now.Add(time.Hour), now.Add(-time.Hour)} {
		err := f.cache.UpsertCachedRoute(context.Background(), routing.CacheEntry{
			Fingerprint: fmt.Sprintf("k%d", i),
			OriginHash:  "v0v2q8h",
			Result:      &routing.RouteResult{Source: routing.ProviderStub},
			ExpiresAt:   exp,
		})
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	w := f.do(http.MethodGet, "/api/v1/status")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var st service.Status
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.Status != "ok" || st.Cache.Total != 2 || st.Services["routing_car"] != "stub" {
		t.Errorf("status = %+v", st)
	}

	if w := f.do(http.MethodPost, "/api/v1/admin/cache/purge?all=nope"); w.Code != http.StatusBadRequest {
		t.Errorf("bad all: status = %d, want 400", w.Code)
	}

	w = f.do(http.MethodPost, "/api/v1/admin/cache/purge")
	if w.Code != http.StatusOK || w.Body.String() != `{"all":false,"deleted":1}` {
		t.Errorf("purge expired = %d %s", w.Code, w.Body.String())
	}

	w = f.do(http.MethodGet, "/api/v1/admin/cache/stats")
	var cs routing.CacheStats
	if err := json.Unmarshal(w.Body.Bytes(), &cs); err != nil || cs.Total != 1 || cs.Active != 1 {
		t.Errorf("stats = %+v, %v", cs, err)
	}

	w = f.do(http.MethodPost, "/api/v1/admin/cache/purge?all=true")
	if w.Code != http.StatusOK || w.Body.String() != `{"all":true,"deleted":1}` {
		t.Errorf("purge all = %d %s", w.Code, w.Body.String())
	}
}
