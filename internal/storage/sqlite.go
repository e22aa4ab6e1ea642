package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/bellvik/transport-planner/internal/migrations"
	"github.com/bellvik/transport-planner/internal/routing"
)

// SQLiteStore implements every repository of this package on a single SQLite
// database. Timestamps are stored as unix milliseconds.
type SQLiteStore struct {
	db *sql.DB
}

var (
	_ CacheRepository         = (*SQLiteStore)(nil)
	_ CallLogRepository       = (*SQLiteStore)(nil)
	_ SearchHistoryRepository = (*SQLiteStore)(nil)
	_ AdminsRepository        = (*SQLiteStore)(nil)
	_ RefreshTokensRepository = (*SQLiteStore)(nil)
)

// OpenSQLite opens (creating if needed) the database at path and applies the
// embedded migrations.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("storage: OpenSQLite: %w", err)
		}
	}

	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: OpenSQLite: %w", err)
	}
	// SQLite serialises writers; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := migrations.RunSQLite(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := migrations.CheckSQLiteSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// ---------------------------------------------------------------------------
// Route cache
// ---------------------------------------------------------------------------

func (s *SQLiteStore) GetCachedRoute(ctx context.Context, fingerprint string, now time.Time) (*routing.CacheEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var (
		e                  = routing.CacheEntry{Fingerprint: fingerprint}
		mode, body         string
		created, expiresAt int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT provider, travel_mode, params, origin_hash, destination_hash,
		       result, created_at, expires_at
		FROM cached_routes
		WHERE hash_key = ? AND expires_at > ?`, fingerprint, millis(now),
	).Scan(&e.Provider, &mode, &e.Params, &e.OriginHash, &e.DestinationHash, &body, &created, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: GetCachedRoute: %w", err)
	}

	var res routing.RouteResult
	if err := json.Unmarshal([]byte(body), &res); err != nil {
		return nil, fmt.Errorf("storage: GetCachedRoute: decode result: %w", err)
	}
	e.Mode = routing.TravelMode(mode)
	e.Result = &res
	e.CreatedAt = time.UnixMilli(created)
	e.ExpiresAt = time.UnixMilli(expiresAt)
	return &e, nil
}

func (s *SQLiteStore) UpsertCachedRoute(ctx context.Context, e routing.CacheEntry) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	body, err := json.Marshal(e.Result)
	if err != nil {
		return fmt.Errorf("storage: UpsertCachedRoute: encode result: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO cached_routes
			(hash_key, provider, travel_mode, params, origin_hash, destination_hash,
			 result, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (hash_key) DO UPDATE SET
			provider         = excluded.provider,
			travel_mode      = excluded.travel_mode,
			params           = excluded.params,
			origin_hash      = excluded.origin_hash,
			destination_hash = excluded.destination_hash,
			result           = excluded.result,
			created_at       = excluded.created_at,
			expires_at       = excluded.expires_at`,
		e.Fingerprint, e.Provider, string(e.Mode), e.Params, e.OriginHash, e.DestinationHash,
		string(body), millis(e.CreatedAt), millis(e.ExpiresAt),
	)
	if err != nil {
		return fmt.Errorf("storage: UpsertCachedRoute: %w", err)
	}
	return nil
}

func (s *SQLiteStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `DELETE FROM cached_routes WHERE expires_at <= ?`, millis(now))
	if err != nil {
		return 0, fmt.Errorf("storage: PurgeExpired: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) PurgeAll(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `DELETE FROM cached_routes`)
	if err != nil {
		return 0, fmt.Errorf("storage: PurgeAll: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) Stats(ctx context.Context, now time.Time) (routing.CacheStats, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var st routing.CacheStats
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN expires_at > ? THEN 1 ELSE 0 END), 0)
		FROM cached_routes`, millis(now),
	).Scan(&st.Total, &st.Active)
	if err != nil {
		return st, fmt.Errorf("storage: Stats: %w", err)
	}
	st.Expired = st.Total - st.Active

	rows, err := s.db.QueryContext(ctx, `
		SELECT origin_hash, COUNT(*) AS n
		FROM cached_routes
		WHERE expires_at > ? AND origin_hash <> ''
		GROUP BY origin_hash
		ORDER BY n DESC, origin_hash
		LIMIT ?`, millis(now), topOriginCells)
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

// ---------------------------------------------------------------------------
// Call log
// ---------------------------------------------------------------------------

func (s *SQLiteStore) InsertCallLog(ctx context.Context, e routing.CallLogEntry) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO api_logs
			(request_id, provider, request_params, response_status,
			 response_time_ms, was_cached, error_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.RequestID, e.Provider, e.Params, e.Status,
		e.LatencyMs, boolToInt(e.CacheHit), e.Error, millis(ts),
	)
	if err != nil {
		return fmt.Errorf("storage: InsertCallLog: %w", err)
	}
	return nil
}

func (s *SQLiteStore) CallStats(ctx context.Context, now time.Time) (CallStats, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	hourAgo := millis(now.Add(-time.Hour))
	dayAgo := millis(now.Add(-24 * time.Hour))

	var st CallStats
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(CASE WHEN created_at > ? THEN 1 ELSE 0 END), 0),
		       COUNT(*),
		       COALESCE(SUM(CASE WHEN created_at > ? AND was_cached = 1 THEN 1 ELSE 0 END), 0)
		FROM api_logs
		WHERE created_at > ?`, hourAgo, hourAgo, dayAgo,
	).Scan(&st.LastHour, &st.LastDay, &st.CacheHitsLastHour)
	if err != nil {
		return st, fmt.Errorf("storage: CallStats: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT provider,
		       COUNT(*),
		       COALESCE(AVG(response_time_ms), 0),
		       100.0 * AVG(CASE WHEN response_status BETWEEN 200 AND 299 THEN 1 ELSE 0 END),
		       100.0 * AVG(was_cached)
		FROM api_logs
		WHERE created_at > ?
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

// ---------------------------------------------------------------------------
// Search history
// ---------------------------------------------------------------------------

func (s *SQLiteStore) RecordSearch(ctx context.Context, r SearchRecord) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	ts := r.CreatedAt
	if ts.IsZero() {
		ts = time.Now()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO search_history
			(start_query, end_query, start_coords, end_coords, travel_mode,
			 transport_types, max_transfers, is_successful, routes_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.StartQuery, r.EndQuery, r.StartCoords, r.EndCoords, r.TravelMode,
		nullString(r.TransportTypes), nullString(r.MaxTransfers),
		boolToInt(r.Successful), r.RoutesCount, millis(ts),
	)
	if err != nil {
		return 0, fmt.Errorf("storage: RecordSearch: %w", err)
	}
	return res.LastInsertId()
}

func (s *SQLiteStore) PopularRoutes(ctx context.Context, since time.Time, limit int) ([]PopularRoute, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT start_query, end_query, COUNT(*) AS n,
		       AVG(routes_count), MAX(created_at) AS last
		FROM search_history
		WHERE created_at >= ? AND is_successful = 1
		GROUP BY start_query, end_query
		ORDER BY n DESC, last DESC
		LIMIT ?`, millis(since), limit)
	if err != nil {
		return nil, fmt.Errorf("storage: PopularRoutes: %w", err)
	}
	defer rows.Close()

	out := []PopularRoute{}
	for rows.Next() {
		var (
			p    PopularRoute
			last int64
		)
		if err := rows.Scan(&p.StartQuery, &p.EndQuery, &p.Count, &p.AvgRoutesCount, &last); err != nil {
			return nil, fmt.Errorf("storage: PopularRoutes: scan: %w", err)
		}
		p.LastSearched = time.UnixMilli(last)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: PopularRoutes: %w", err)
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Admins and refresh tokens
// ---------------------------------------------------------------------------

func (s *SQLiteStore) CreateAdmin(ctx context.Context, a *Admin) (*Admin, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	now := time.Now()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO admins (username, password_hash, full_name, role, active, created_at)
		VALUES (?, ?, ?, ?, 1, ?)`,
		a.Username, a.PasswordHash, a.FullName, a.Role, millis(now),
	)
	if err != nil {
		return nil, fmt.Errorf("storage: CreateAdmin: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("storage: CreateAdmin: %w", err)
	}

	a.ID = int32(id)
	a.Active = true
	a.CreatedAt = time.UnixMilli(millis(now))
	return a, nil
}

func (s *SQLiteStore) GetAdminByUsername(ctx context.Context, username string) (*Admin, error) {
	return s.getAdmin(ctx, "GetAdminByUsername", `username = ?`, username)
}

func (s *SQLiteStore) GetAdminByID(ctx context.Context, id int32) (*Admin, error) {
	return s.getAdmin(ctx, "GetAdminByID", `id = ?`, id)
}

func (s *SQLiteStore) getAdmin(ctx context.Context, op, where string, arg any) (*Admin, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var (
		a       Admin
		active  int
		created int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, full_name, role, active, created_at
		 FROM admins WHERE `+where, arg,
	).Scan(&a.ID, &a.Username, &a.PasswordHash, &a.FullName, &a.Role, &active, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: %s: %w", op, err)
	}
	a.Active = active == 1
	a.CreatedAt = time.UnixMilli(created)
	return &a, nil
}

func (s *SQLiteStore) StoreRefreshToken(ctx context.Context, tokenHash string, adminID int32, expiresAt time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (token_hash, admin_id, expires_at, revoked, created_at)
		VALUES (?, ?, ?, 0, ?)`, tokenHash, adminID, millis(expiresAt), millis(time.Now()))
	if err != nil {
		return fmt.Errorf("storage: StoreRefreshToken: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetRefreshToken(ctx context.Context, tokenHash string) (*RefreshToken, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var (
		t                  RefreshToken
		revoked            int
		expiresAt, created int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, token_hash, admin_id, expires_at, revoked, created_at
		FROM refresh_tokens
		WHERE token_hash = ?`, tokenHash,
	).Scan(&t.ID, &t.TokenHash, &t.AdminID, &expiresAt, &revoked, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: GetRefreshToken: %w", err)
	}
	t.ExpiresAt = time.UnixMilli(expiresAt)
	t.CreatedAt = time.UnixMilli(created)
	t.Revoked = revoked == 1
	return &t, nil
}

func (s *SQLiteStore) RevokeRefreshToken(ctx context.Context, tokenHash string) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `UPDATE refresh_tokens SET revoked = 1 WHERE token_hash = ?`, tokenHash)
	if err != nil {
		return fmt.Errorf("storage: RevokeRefreshToken: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func millis(t time.Time) int64 { return t.UnixMilli() }

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
