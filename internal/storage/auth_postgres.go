package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgAdminsRepository is the pgx-backed implementation of AdminsRepository.
type pgAdminsRepository struct {
	pool *pgxpool.Pool
}

// NewAdminsRepository creates an AdminsRepository backed by the given connection pool.
func NewAdminsRepository(pool *pgxpool.Pool) AdminsRepository {
	return &pgAdminsRepository{pool: pool}
}

const adminColumns = `id, username, password_hash, full_name, role, active, created_at`

func (r *pgAdminsRepository) CreateAdmin(ctx context.Context, a *Admin) (*Admin, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	err := r.pool.QueryRow(ctx, `
		INSERT INTO admins (username, password_hash, full_name, role)
		VALUES ($1, $2, $3, $4)
		RETURNING id, active, created_at`,
		a.Username, a.PasswordHash, a.FullName, a.Role,
	).Scan(&a.ID, &a.Active, &a.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("storage: CreateAdmin: %w", err)
	}
	return a, nil
}

func (r *pgAdminsRepository) GetAdminByUsername(ctx context.Context, username string) (*Admin, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	a, err := scanAdmin(r.pool.QueryRow(ctx,
		`SELECT `+adminColumns+` FROM admins WHERE username = $1`, username))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: GetAdminByUsername: %w", err)
	}
	return a, nil
}

func (r *pgAdminsRepository) GetAdminByID(ctx context.Context, id int32) (*Admin, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	a, err := scanAdmin(r.pool.QueryRow(ctx,
		`SELECT `+adminColumns+` FROM admins WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: GetAdminByID: %w", err)
	}
	return a, nil
}

// pgRefreshTokensRepository is the pgx-backed implementation of RefreshTokensRepository.
type pgRefreshTokensRepository struct {
	pool *pgxpool.Pool
}

// NewRefreshTokensRepository creates a RefreshTokensRepository backed by the given connection pool.
func NewRefreshTokensRepository(pool *pgxpool.Pool) RefreshTokensRepository {
	return &pgRefreshTokensRepository{pool: pool}
}

func (r *pgRefreshTokensRepository) StoreRefreshToken(ctx context.Context, tokenHash string, adminID int32, expiresAt time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := r.pool.Exec(ctx, `
		INSERT INTO refresh_tokens (token_hash, admin_id, expires_at)
		VALUES ($1, $2, $3)`, tokenHash, adminID, expiresAt)
	if err != nil {
		return fmt.Errorf("storage: StoreRefreshToken: %w", err)
	}
	return nil
}

func (r *pgRefreshTokensRepository) GetRefreshToken(ctx context.Context, tokenHash string) (*RefreshToken, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var t RefreshToken
	err := r.pool.QueryRow(ctx, `
		SELECT id, token_hash, admin_id, expires_at, revoked, created_at
		FROM refresh_tokens
		WHERE token_hash = $1`, tokenHash,
	).Scan(&t.ID, &t.TokenHash, &t.AdminID, &t.ExpiresAt, &t.Revoked, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: GetRefreshToken: %w", err)
	}
	return &t, nil
}

func (r *pgRefreshTokensRepository) RevokeRefreshToken(ctx context.Context, tokenHash string) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := r.pool.Exec(ctx, `UPDATE refresh_tokens SET revoked = TRUE WHERE token_hash = $1`, tokenHash)
	if err != nil {
		return fmt.Errorf("storage: RevokeRefreshToken: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// rowScanner is satisfied by pgx.Row and *sql.Row.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanAdmin(row rowScanner) (*Admin, error) {
	var a Admin
	if err := row.Scan(&a.ID, &a.Username, &a.PasswordHash, &a.FullName, &a.Role, &a.Active, &a.CreatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

// pgtext builds a pgtype.Text from a Go string.
// Empty strings are stored as NULL (Valid=false).
func pgtext(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: s, Valid: true}
}
