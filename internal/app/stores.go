package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bellvik/transport-planner/internal/config"
	"github.com/bellvik/transport-planner/internal/routing"
	"github.com/bellvik/transport-planner/internal/storage"
)

// DBError represents a database-related error.
type DBError struct {
	Op  string
	Err error
}

func (e *DBError) Error() string {
	return fmt.Sprintf("db error during %q: %v", e.Op, e.Err)
}

func (e *DBError) Unwrap() error { return e.Err }

// Stores groups the repositories selected by STORE_DRIVER.
type Stores struct {
	Driver  string
	Cache   storage.CacheRepository
	Calls   storage.CallLogRepository
	History storage.SearchHistoryRepository
	Admins  storage.AdminsRepository
	Tokens  storage.RefreshTokensRepository

	closers []func()
}

// Close releases every connection the stores hold.
func (s *Stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

// OpenStores connects to the configured backend and applies migrations.
//
//   - postgres: every repository on one pgx pool.
//   - sqlite: every repository on one database file.
//   - memory: an LRU route cache, everything else on an in-memory SQLite
//     database that disappears with the process.
func OpenStores(ctx context.Context, cfg *config.Config) (*Stores, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		return openPostgres(ctx, cfg.DBDSN)
	case config.DriverSQLite:
		return openSQLite(ctx, cfg.SQLitePath, nil)
	case config.DriverMemory:
		return openSQLite(ctx, ":memory:", routing.NewMemoryCacheStore(cfg.CacheMaxEntries))
	default:
		return nil, &config.ConfigError{Field: "STORE_DRIVER", Message: fmt.Sprintf("unknown driver %q", cfg.StoreDriver)}
	}
}

func openPostgres(ctx context.Context, dsn string) (*Stores, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, &DBError{Op: "parse_dsn", Err: err}
	}

	poolCfg.MaxConns = 20
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolCfg)
	if err != nil {
		return nil, &DBError{Op: "connect", Err: err}
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, &DBError{Op: "ping", Err: err}
	}
	log.Println("app: database connection pool established")

	if err := storage.RunMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("app: run migrations: %w", err)
	}
	log.Println("app: database schema up to date")

	return &Stores{
		Driver:  config.DriverPostgres,
		Cache:   storage.NewCacheRepository(pool),
		Calls:   storage.NewCallLogRepository(pool),
		History: storage.NewSearchHistoryRepository(pool),
		Admins:  storage.NewAdminsRepository(pool),
		Tokens:  storage.NewRefreshTokensRepository(pool),
		closers: []func(){func() {
			pool.Close()
			log.Println("app: database connection pool closed")
		}},
	}, nil
}

// openSQLite opens path; a non-nil cache replaces the SQLite route cache.
func openSQLite(ctx context.Context, path string, cache storage.CacheRepository) (*Stores, error) {
	db, err := storage.OpenSQLite(ctx, path)
	if err != nil {
		return nil, &DBError{Op: "open_sqlite", Err: err}
	}

	driver := config.DriverSQLite
	if cache == nil {
		cache = db
		log.Printf("app: sqlite store at %s", path)
	} else {
		driver = config.DriverMemory
		log.Println("app: in-memory store; data is lost on exit")
	}

	return &Stores{
		Driver:  driver,
		Cache:   cache,
		Calls:   db,
		History: db,
		Admins:  db,
		Tokens:  db,
		closers: []func(){func() { _ = db.Close() }},
	}, nil
}
