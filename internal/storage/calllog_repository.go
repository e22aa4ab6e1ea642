package storage

import (
	"context"
	"log"
	"time"

	"github.com/bellvik/transport-planner/internal/routing"
)

// ProviderStats aggregates the call log of one provider over a window.
type ProviderStats struct {
	Provider     string  `json:"provider"`
	Requests     int64   `json:"requests"`
	AvgLatencyMs float64 `json:"avg_response_time_ms"`
	SuccessRate  float64 `json:"success_rate"`
	CacheHitRate float64 `json:"cache_hit_rate"`
}

// CallStats summarises the call log at a point in time.
type CallStats struct {
	LastHour          int64           `json:"requests_last_hour"`
	LastDay           int64           `json:"requests_last_day"`
	CacheHitsLastHour int64           `json:"cache_hits_last_hour"`
	Providers         []ProviderStats `json:"providers"`
}

// CallLogRepository defines operations on the api_logs table.
type CallLogRepository interface {
	// InsertCallLog appends one entry. Entries are never updated.
	InsertCallLog(ctx context.Context, e routing.CallLogEntry) error

	// CallStats aggregates the hour and the day before now. Rates are
	// percentages in [0, 100].
	CallStats(ctx context.Context, now time.Time) (CallStats, error)
}

// callLogSink adapts a CallLogRepository to routing.CallLog.
type callLogSink struct {
	repo   CallLogRepository
	logger routing.Logger
}

// NewCallLog returns a routing.CallLog that appends to repo. Insert failures
// are logged and dropped.
func NewCallLog(repo CallLogRepository, logger routing.Logger) routing.CallLog {
	if logger == nil {
		logger = log.Printf
	}
	return &callLogSink{repo: repo, logger: logger}
}

func (s *callLogSink) Record(ctx context.Context, e routing.CallLogEntry) {
	// The row is written even when the request that produced it was cancelled.
	if err := s.repo.InsertCallLog(context.WithoutCancel(ctx), e); err != nil {
		s.logger("storage: call log: drop entry provider=%s status=%d: %v", e.Provider, e.Status, err)
	}
}
