package storage

import (
	"context"
	"time"
)

// Account roles.
const (
	RoleAdmin  = "admin"
	RoleViewer = "viewer"
)

// Admin is an operator account for the maintenance API.
type Admin struct {
	ID           int32
	Username     string
	PasswordHash string
	FullName     string
	Role         string // RoleAdmin or RoleViewer
	Active       bool
	CreatedAt    time.Time
}

// RefreshToken represents a stored JWT refresh token.
type RefreshToken struct {
	ID        int32
	TokenHash string
	AdminID   int32
	ExpiresAt time.Time
	Revoked   bool
	CreatedAt time.Time
}

// AdminsRepository defines operations on the admins table.
type AdminsRepository interface {
	// CreateAdmin inserts a new account and returns it with the generated ID.
	CreateAdmin(ctx context.Context, a *Admin) (*Admin, error)

	// GetAdminByUsername returns an account by username, or (nil, nil) if not found.
	GetAdminByUsername(ctx context.Context, username string) (*Admin, error)

	// GetAdminByID returns an account by ID, or (nil, nil) if not found.
	GetAdminByID(ctx context.Context, id int32) (*Admin, error)
}

// RefreshTokensRepository defines operations on the refresh_tokens table.
type RefreshTokensRepository interface {
	// StoreRefreshToken persists a hashed refresh token.
	StoreRefreshToken(ctx context.Context, tokenHash string, adminID int32, expiresAt time.Time) error

	// GetRefreshToken returns a refresh token by hash, or (nil, nil) if not found.
	GetRefreshToken(ctx context.Context, tokenHash string) (*RefreshToken, error)

	// RevokeRefreshToken marks a refresh token as revoked.
	RevokeRefreshToken(ctx context.Context, tokenHash string) error
}
