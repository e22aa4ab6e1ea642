package storage

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bellvik/transport-planner/internal/routing"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "planner.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testEntry(fp string, created time.Time, ttl time.Duration) routing.CacheEntry {
	return routing.CacheEntry{
		Fingerprint: fp,
		Provider:    routing.ProviderStub,
		Mode:        routing.ModePedestrian,
		Params:      "mode=pedestrian",
		OriginHash:  "v0v2q8h",
		Result: &routing.RouteResult{
			Routes:      []routing.Route{{ID: "stub_route_1", TotalTimeMin: 12}},
			Source:      "stub",
			TravelMode:  routing.ModePedestrian,
			TotalRoutes: 1,
		},
		CreatedAt: created,
		ExpiresAt: created.Add(ttl),
	}
}

func TestOpenSQLite_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "planner.db")
	for i := 0; i < 2; i++ {
		s, err := OpenSQLite(context.Background(), path)
		if err != nil {
			t.Fatalf("open #%d: %v", i+1, err)
		}
		_ = s.Close()
	}
}

func TestSQLiteStore_CacheRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if err := s.UpsertCachedRoute(ctx, testEntry("fp1", now, 30*time.Minute)); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := s.GetCachedRoute(ctx, "fp1", now.Add(time.Minute))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil {
		t.Fatal("expected a hit")
	}
	if got.Mode != routing.ModePedestrian || got.Result.Routes[0].ID != "stub_route_1" {
		t.Errorf("entry = %+v", got)
	}
	if !got.ExpiresAt.Equal(now.Add(30 * time.Minute)) {
		t.Errorf("ExpiresAt = %v", got.ExpiresAt)
	}

	// Expired entries are never returned.
	got, err = s.GetCachedRoute(ctx, "fp1", now.Add(31*time.Minute))
	if err != nil || got != nil {
		t.Errorf("after expiry got %+v, %v", got, err)
	}
}

func TestSQLiteStore_UpsertReplaces(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	_ = s.UpsertCachedRoute(ctx, testEntry("fp1", now, time.Minute))
	e := testEntry("fp1", now.Add(time.Hour), 30*time.Minute)
	e.Provider = routing.ProviderTomTom
	if err := s.UpsertCachedRoute(ctx, e); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, _ := s.GetCachedRoute(ctx, "fp1", now.Add(time.Hour))
	if got == nil || got.Provider != routing.ProviderTomTom {
		t.Errorf("entry = %+v, want replaced", got)
	}
	st, _ := s.Stats(ctx, now.Add(time.Hour))
	if st.Total != 1 {
		t.Errorf("Total = %d, want 1", st.Total)
	}
}

func TestSQLiteStore_PurgeAndStats(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	_ = s.UpsertCachedRoute(ctx, testEntry("old", now.Add(-time.Hour), 30*time.Minute))
	_ = s.UpsertCachedRoute(ctx, testEntry("new1", now, 30*time.Minute))
	_ = s.UpsertCachedRoute(ctx, testEntry("new2", now, 30*time.Minute))

	st, err := s.Stats(ctx, now)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.Total != 3 || st.Active != 2 || st.Expired != 1 {
		t.Errorf("stats = %+v", st)
	}
	if len(st.TopOrigins) != 1 || st.TopOrigins[0].Cell != "v0v2q8h" || st.TopOrigins[0].Count != 2 {
		t.Errorf("TopOrigins = %+v", st.TopOrigins)
	}

	n, err := s.PurgeExpired(ctx, now)
	if err != nil || n != 1 {
		t.Errorf("PurgeExpired = %d, %v; want 1", n, err)
	}
	n, err = s.PurgeAll(ctx)
	if err != nil || n != 2 {
		t.Errorf("PurgeAll = %d, %v; want 2", n, err)
	}
}

func TestSQLiteStore_CallStats(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	entries := []routing.CallLogEntry{
		{Provider: "route_cache", Status: 200, LatencyMs: 2, CacheHit: true, Timestamp: now.Add(-10 * time.Minute)},
		{Provider: "tomtom_route", Status: 200, LatencyMs: 100, Timestamp: now.Add(-20 * time.Minute)},
		{Provider: "tomtom_route", Status: 503, LatencyMs: 300, Error: "unavailable", Timestamp: now.Add(-30 * time.Minute)},
		{Provider: "tomtom_route", Status: 200, LatencyMs: 50, Timestamp: now.Add(-5 * time.Hour)},
		{Provider: "stub", Status: 200, Timestamp: now.Add(-48 * time.Hour)},
	}
	for _, e := range entries {
		if err := s.InsertCallLog(ctx, e); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	st, err := s.CallStats(ctx, now)
	if err != nil {
		t.Fatalf("CallStats: %v", err)
	}
	if st.LastHour != 3 || st.LastDay != 4 || st.CacheHitsLastHour != 1 {
		t.Errorf("counts = %+v", st)
	}
	if len(st.Providers) != 2 {
		t.Fatalf("providers = %+v", st.Providers)
	}
	cache, tomtom := st.Providers[0], st.Providers[1]
	if cache.Provider != "route_cache" || cache.CacheHitRate != 100 {
		t.Errorf("cache stats = %+v", cache)
	}
	if tomtom.Requests != 2 || tomtom.AvgLatencyMs != 200 || tomtom.SuccessRate != 50 || tomtom.CacheHitRate != 0 {
		t.Errorf("tomtom stats = %+v", tomtom)
	}
}

func TestSQLiteStore_PopularRoutes(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	records := []SearchRecord{
		{StartQuery: "railway station", EndQuery: "circus", Successful: true, RoutesCount: 4, CreatedAt: now.Add(-time.Hour)},
		{StartQuery: "railway station", EndQuery: "circus", Successful: true, RoutesCount: 2, CreatedAt: now.Add(-2 * time.Hour)},
		{StartQuery: "upi", EndQuery: "greenwich", Successful: true, RoutesCount: 1, CreatedAt: now.Add(-3 * time.Hour)},
		{StartQuery: "upi", EndQuery: "greenwich", Successful: false, CreatedAt: now.Add(-3 * time.Hour)},
		{StartQuery: "old", EndQuery: "search", Successful: true, CreatedAt: now.Add(-30 * 24 * time.Hour)},
	}
	for _, r := range records {
		if _, err := s.RecordSearch(ctx, r); err != nil {
			t.Fatalf("RecordSearch: %v", err)
		}
	}

	got, err := s.PopularRoutes(ctx, now.Add(-7*24*time.Hour), 10)
	if err != nil {
		t.Fatalf("PopularRoutes: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %+v", got)
	}
	if got[0].StartQuery != "railway station" || got[0].Count != 2 || got[0].AvgRoutesCount != 3 {
		t.Errorf("first = %+v", got[0])
	}
	if !got[0].LastSearched.Equal(now.Add(-time.Hour)) {
		t.Errorf("LastSearched = %v", got[0].LastSearched)
	}
	if got[1].Count != 1 {
		t.Errorf("second = %+v, unsuccessful searches must not count", got[1])
	}
}

func TestSQLiteStore_AdminsAndTokens(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a, err := s.CreateAdmin(ctx, &Admin{Username: "ops", PasswordHash: "hash", Role: RoleAdmin})
	if err != nil {
		t.Fatalf("CreateAdmin: %v", err)
	}
	if a.ID == 0 || !a.Active {
		t.Errorf("admin = %+v", a)
	}

	if _, err := s.CreateAdmin(ctx, &Admin{Username: "ops", PasswordHash: "x", Role: RoleAdmin}); err == nil {
		t.Error("expected duplicate username to fail")
	}
	if _, err := s.CreateAdmin(ctx, &Admin{Username: "bad", PasswordHash: "x", Role: "driver"}); err == nil {
		t.Error("expected unknown role to fail")
	}

	got, err := s.GetAdminByUsername(ctx, "ops")
	if err != nil || got == nil || got.ID != a.ID {
		t.Fatalf("GetAdminByUsername = %+v, %v", got, err)
	}
	missing, err := s.GetAdminByID(ctx, 999)
	if err != nil || missing != nil {
		t.Errorf("GetAdminByID(999) = %+v, %v; want nil, nil", missing, err)
	}

	exp := time.Now().Add(time.Hour).Truncate(time.Millisecond)
	if err := s.StoreRefreshToken(ctx, "h1", a.ID, exp); err != nil {
		t.Fatalf("StoreRefreshToken: %v", err)
	}
	if err := s.RevokeRefreshToken(ctx, "h1"); err != nil {
		t.Fatalf("RevokeRefreshToken: %v", err)
	}
	tok, err := s.GetRefreshToken(ctx, "h1")
	if err != nil || tok == nil || !tok.Revoked || tok.AdminID != a.ID || !tok.ExpiresAt.Equal(exp) {
		t.Errorf("token = %+v, %v", tok, err)
	}
}

type failingCallLogRepo struct{ calls int }

func (f *failingCallLogRepo) InsertCallLog(ctx context.Context, _ routing.CallLogEntry) error {
	f.calls++
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return errors.New("disk full")
}

func (f *failingCallLogRepo) CallStats(context.Context, time.Time) (CallStats, error) {
	return CallStats{}, nil
}

func TestNewCallLog_SwallowsErrors(t *testing.T) {
	repo := &failingCallLogRepo{}
	var logged []string
	sink := NewCallLog(repo, func(format string, args ...any) {
		logged = append(logged, format)
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sink.Record(ctx, routing.CallLogEntry{Provider: "stub", Status: 200})

	if repo.calls != 1 {
		t.Fatalf("calls = %d", repo.calls)
	}
	if len(logged) != 1 || !strings.Contains(logged[0], "drop entry") {
		t.Errorf("logged = %v", logged)
	}
}
