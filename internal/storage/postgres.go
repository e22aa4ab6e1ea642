package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bellvik/transport-planner/internal/migrations"
	"github.com/bellvik/transport-planner/internal/routing"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// queryTimeout is applied to every database query.
const queryTimeout = 5 * time.Second

// topOriginCells is how many origin cells Stats reports.
const topOriginCells = 5

// RunMigrations applies the pending PostgreSQL migrations and verifies that
// every table the repositories use exists.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	if err := migrations.Run(ctx, pool); err != nil {
		return err
	}
	return migrations.CheckSchema(ctx, pool)
}

// pgCacheRepository is the pgx-backed implementation of CacheRepository.
type pgCacheRepository struct {
	pool *pgxpool.Pool
}

// NewCacheRepository creates a CacheRepository backed by the given connection pool.
func NewCacheRepository(pool *pgxpool.Pool) CacheRepository {
	return &pgCacheRepository{pool: pool}
}

// GetCachedRoute returns the entry for fingerprint when it has not expired at
// now, or (nil, nil).
func (r *pgCacheRepository) GetCachedRoute(ctx context.Context, fingerprint string, now time.Time) (*routing.CacheEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	const q = `
		SELECT provider, travel_mode, params, origin_hash, destination_hash,
		       result, created_at, expires_at
		FROM cached_routes
		WHERE hash_key   = $1
		  AND expires_at > $2`

	var (
		e    = routing.CacheEntry{Fingerprint: fingerprint}
		mode string
		body []byte
	)
	err := r.pool.QueryRow(ctx, q, fingerprint, now).Scan(
		&e.Provider, &mode, &e.Params, &e.OriginHash, &e.DestinationHash,
		&body, &e.CreatedAt, &e.ExpiresAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil // cache miss
	}
	if err != nil {
		return nil, fmt.Errorf("storage: GetCachedRoute: %w", err)
	}

	var res routing.RouteResult
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("storage: GetCachedRoute: decode result: %w", err)
	}
	e.Mode = routing.TravelMode(mode)
	e.Result = &res
	return &e, nil
}

// UpsertCachedRoute creates or replaces the row keyed by e.Fingerprint in a
// single statement, so readers never observe a half-written entry.
func (r *pgCacheRepository) UpsertCachedRoute(ctx context.Context, e routing.CacheEntry) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	body, err := json.Marshal(e.Result)
	if err != nil {
		return fmt.Errorf("storage: UpsertCachedRoute: encode result: %w", err)
	}

	const q = `
		INSERT INTO cached_routes
			(hash_key, provider, travel_mode, params, origin_hash, destination_hash,
			 result, created_at, expires_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (hash_key)
		DO UPDATE SET
			provider         = EXCLUDED.provider,
			travel_mode      = EXCLUDED.travel_mode,
			params           = EXCLUDED.params,
			origin_hash      = EXCLUDED.origin_hash,
			destination_hash = EXCLUDED.destination_hash,
			result           = EXCLUDED.result,
			created_at       = EXCLUDED.created_at,
			expires_at       = EXCLUDED.expires_at`

	_, err = r.pool.Exec(ctx, q,
		e.Fingerprint,
		e.Provider,
		string(e.Mode),
		e.Params,
		e.OriginHash,
		e.DestinationHash,
		body,
		e.CreatedAt,
		e.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("storage: UpsertCachedRoute: %w", err)
	}
	return nil
}

// PurgeExpired deletes expired rows.
func (r *pgCacheRepository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tag, err := r.pool.Exec(ctx, `DELETE FROM cached_routes WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("storage: PurgeExpired: %w", err)
	}
	return tag.RowsAffected(), nil
}

// PurgeAll deletes every row.
func (r *pgCacheRepository) PurgeAll(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tag, err := r.pool.Exec(ctx, `DELETE FROM cached_routes`)
	if err != nil {
		return 0, fmt.Errorf("storage: PurgeAll: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Stats counts rows and ranks the busiest origin cells.
func (r *pgCacheRepository) Stats(ctx context.Context, now time.Time) (routing.CacheStats, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var st routing.CacheStats
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE expires_at > $1)
		FROM cached_routes`, now).Scan(&st.Total, &st.Active)
	if err != nil {
		return st, fmt.Errorf("storage: Stats: %w", err)
	}
	st.Expired = st.Total - st.Active

	rows, err := r.pool.Query(ctx, `
		SELECT origin_hash, COUNT(*) AS n
		FROM cached_routes
		WHERE expires_at > $1 AND origin_hash <> ''
		GROUP BY origin_hash
		ORDER BY n DESC, origin_hash
		LIMIT $2`, now, topOriginCells)
	if err != nil {
		return st, fmt.Errorf("storage: Stats: top origins: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cell string
			n    int64
		)
		if err := rows.Scan(&cell, &n); err != nil {
			return st, fmt.Errorf("storage: Stats: scan: %w", err)
		}
		st.TopOrigins = append(st.TopOrigins, routing.NewCellCount(cell, n))
	}
	if err := rows.Err(); err != nil {
		return st, fmt.Errorf("storage: Stats: %w", err)
	}
	return st, nil
}
