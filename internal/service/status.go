package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bellvik/transport-planner/internal/routing"
	"github.com/bellvik/transport-planner/internal/storage"
)

// Status is the operational snapshot served by GET /api/v1/status.
type Status struct {
	Status    string             `json:"status"`
	Timestamp time.Time          `json:"timestamp"`
	Calls     *storage.CallStats `json:"calls,omitempty"`
	Cache     routing.CacheStats `json:"cache"`
	CacheTTL  string             `json:"cache_ttl"`
	Services  map[string]string  `json:"services"`
	Flags     map[string]bool    `json:"flags"`
}

// StatusService reports call-log statistics and maintains the route cache.
type StatusService struct {
	calls    storage.CallLogRepository // nil when no persistent call log exists
	cache    storage.CacheMaintenance
	flags    routing.Flags
	cacheTTL time.Duration
	now      func() time.Time
}

// NewStatusService creates a StatusService. calls may be nil.
func NewStatusService(calls storage.CallLogRepository, cache storage.CacheMaintenance, flags routing.Flags, cacheTTL time.Duration) *StatusService {
	return &StatusService{
		calls:    calls,
		cache:    cache,
		flags:    flags,
		cacheTTL: cacheTTL,
		now:      time.Now,
	}
}

// Status aggregates the call log over the last hour and day together with
// the cache counters and the provider that serves each concern.
func (s *StatusService) Status(ctx context.Context) (*Status, error) {
	now := s.now()

	cache, err := s.cache.Stats(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("service: Status: cache: %w", err)
	}

	st := &Status{
		Status:    "ok",
		Timestamp: now,
		Cache:     cache,
		CacheTTL:  s.cacheTTL.String(),
		Services:  s.services(),
		Flags: map[string]bool{
			"use_real_api":             s.flags.UseLiveAPIs,
			"use_public_transport_api": s.flags.UseTransitAPI,
			"use_car_routing_api":      s.flags.UseCarAPI,
		},
	}

	if s.calls != nil {
		calls, err := s.calls.CallStats(ctx, now)
		if err != nil {
			return nil, fmt.Errorf("service: Status: calls: %w", err)
		}
		st.Calls = &calls
	}
	return st, nil
}

// services names the provider that answers each kind of request.
func (s *StatusService) services() map[string]string {
	out := map[string]string{
		"geocoding":                "stub",
		"routing_public_transport": "stub",
		"routing_car":              "stub",
		"routing_other":            "stub",
	}
	if !s.flags.UseLiveAPIs {
		return out
	}
	out["geocoding"] = "tomtom"
	out["routing_other"] = "tomtom"
	if s.flags.UseCarAPI {
		out["routing_car"] = "tomtom"
	}
	if s.flags.UseTransitAPI {
		out["routing_public_transport"] = "2gis"
	} else {
		out["routing_public_transport"] = "tomtom (pedestrian)"
	}
	return out
}

// CacheStats returns the current cache counters.
func (s *StatusService) CacheStats(ctx context.Context) (routing.CacheStats, error) {
	st, err := s.cache.Stats(ctx, s.now())
	if err != nil {
		return st, fmt.Errorf("service: CacheStats: %w", err)
	}
	return st, nil
}

// PurgeCache deletes expired entries, or every entry when all is true, and
// returns how many were removed.
func (s *StatusService) PurgeCache(ctx context.Context, all bool) (int64, error) {
	var (
		n   int64
		err error
	)
	if all {
		n, err = s.cache.PurgeAll(ctx)
	} else {
		n, err = s.cache.PurgeExpired(ctx, s.now())
	}
	if err != nil {
		return 0, fmt.Errorf("service: PurgeCache: %w", err)
	}
	return n, nil
}
