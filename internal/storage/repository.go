// Package storage provides PostgreSQL- and SQLite-backed repository
// implementations for the route cache, the provider call log, search history
// and admin accounts.
package storage

import (
	"context"
	"time"

	"github.com/bellvik/transport-planner/internal/routing"
)

// CacheMaintenance covers the operations on cached routes that the routing
// core never performs itself.
type CacheMaintenance interface {
	// PurgeExpired deletes entries whose expiry is not after now and returns
	// how many were deleted.
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)

	// PurgeAll deletes every cached route.
	PurgeAll(ctx context.Context) (int64, error)

	// Stats counts active and expired entries at now.
	Stats(ctx context.Context, now time.Time) (routing.CacheStats, error)
}

// CacheRepository is a routing.CacheStore that can also be maintained.
type CacheRepository interface {
	routing.CacheStore
	CacheMaintenance
}

var _ CacheRepository = (*routing.MemoryCacheStore)(nil)
