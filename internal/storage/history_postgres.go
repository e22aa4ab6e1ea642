package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// pgSearchHistoryRepository is the pgx-backed implementation of SearchHistoryRepository.
type pgSearchHistoryRepository struct {
	pool *pgxpool.Pool
}

// NewSearchHistoryRepository creates a SearchHistoryRepository backed by the given connection pool.
func NewSearchHistoryRepository(pool *pgxpool.Pool) SearchHistoryRepository {
	return &pgSearchHistoryRepository{pool: pool}
}

func (r *pgSearchHistoryRepository) RecordSearch(ctx context.Context, s SearchRecord) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	ts := s.CreatedAt
	if ts.IsZero() {
		ts = time.Now()
	}

	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO search_history
			(start_query, end_query, start_coords, end_coords, travel_mode,
			 transport_types, max_transfers, is_successful, routes_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`,
		s.StartQuery, s.EndQuery, s.StartCoords, s.EndCoords, s.TravelMode,
		pgtext(s.TransportTypes), pgtext(s.MaxTransfers), s.Successful, s.RoutesCount, ts,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("storage: RecordSearch: %w", err)
	}
	return id, nil
}

func (r *pgSearchHistoryRepository) PopularRoutes(ctx context.Context, since time.Time, limit int) ([]PopularRoute, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := r.pool.Query(ctx, `
		SELECT start_query, end_query, COUNT(*) AS n,
		       AVG(routes_count)::float8, MAX(created_at)
		FROM search_history
		WHERE created_at >= $1 AND is_successful
		GROUP BY start_query, end_query
		ORDER BY n DESC, MAX(created_at) DESC
		LIMIT $2`, since, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: PopularRoutes: %w", err)
	}
	defer rows.Close()

	out := []PopularRoute{}
	for rows.Next() {
		var p PopularRoute
		if err := rows.Scan(&p.StartQuery, &p.EndQuery, &p.Count, &p.AvgRoutesCount, &p.LastSearched); err != nil {
			return nil, fmt.Errorf("storage: PopularRoutes: scan: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: PopularRoutes: %w", err)
	}
	return out, nil
}
