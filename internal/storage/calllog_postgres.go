package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/bellvik/transport-planner/internal/routing"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgCallLogRepository is the pgx-backed implementation of CallLogRepository.
type pgCallLogRepository struct {
	pool *pgxpool.Pool
}

// NewCallLogRepository creates a CallLogRepository backed by the given connection pool.
func NewCallLogRepository(pool *pgxpool.Pool) CallLogRepository {
	return &pgCallLogRepository{pool: pool}
}

func (r *pgCallLogRepository) InsertCallLog(ctx context.Context, e routing.CallLogEntry) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO api_logs
			(request_id, provider, request_params, response_status,
			 response_time_ms, was_cached, error_message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.RequestID, e.Provider, e.Params, e.Status,
		e.LatencyMs, e.CacheHit, e.Error, ts,
	)
	if err != nil {
		return fmt.Errorf("storage: InsertCallLog: %w", err)
	}
	return nil
}

func (r *pgCallLogRepository) CallStats(ctx context.Context, now time.Time) (CallStats, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	hourAgo := now.Add(-time.Hour)
	dayAgo := now.Add(-24 * time.Hour)

	var st CallStats
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FILTER (WHERE created_at > $1),
		       COUNT(*),
		       COUNT(*) FILTER (WHERE created_at > $1 AND was_cached)
		FROM api_logs
		WHERE created_at > $2`, hourAgo, dayAgo,
	).Scan(&st.LastHour, &st.LastDay, &st.CacheHitsLastHour)
	if err != nil {
		return st, fmt.Errorf("storage: CallStats: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT provider,
		       COUNT(*),
		       COALESCE(AVG(response_time_ms), 0)::float8,
		       (100.0 * AVG(CASE WHEN response_status BETWEEN 200 AND 299 THEN 1 ELSE 0 END))::float8,
		       (100.0 * AVG(CASE WHEN was_cached THEN 1 ELSE 0 END))::float8
		FROM api_logs
		WHERE created_at > $1
		GROUP BY provider
		ORDER BY provider`, hourAgo)
	if err != nil {
		return st, fmt.Errorf("storage: CallStats: providers: %w", err)
	}
	defer rows.Close()

	st.Providers = []ProviderStats{}
	for rows.Next() {
		var p ProviderStats
		if err := rows.Scan(&p.Provider, &p.Requests, &p.AvgLatencyMs, &p.SuccessRate, &p.CacheHitRate); err != nil {
			return st, fmt.Errorf("storage: CallStats: scan: %w", err)
		}
		st.Providers = append(st.Providers, p)
	}
	if err := rows.Err(); err != nil {
		return st, fmt.Errorf("storage: CallStats: %w", err)
	}
	return st, nil
}
