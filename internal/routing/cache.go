package routing

import (
	"context"
	"time"

	"github.com/mmcloughlin/geohash"
)

const (
	// DefaultCacheTTL is how long a cached route result remains valid.
	DefaultCacheTTL = 30 * time.Minute

	// cacheQueryTimeout is the deadline for each cache read/write.
	cacheQueryTimeout = 5 * time.Second

	// geohashPrecision controls the spatial resolution of the origin and
	// destination cells stored alongside each entry.
	// Precision 7 ≈ ±76m latitude / ±152m longitude cell.
	geohashPrecision = 7

	// ProviderCache is the call-log identifier used by RequestCache for cache
	// hits and for the outcome of the computation behind a miss.
	ProviderCache = "route_cache"
)

// CacheEntry is one cached RouteResult. ExpiresAt is always CreatedAt plus
// the cache TTL.
type CacheEntry struct {
	Fingerprint string
	// Provider is the Source of the cached result.
	Provider        string
	Mode            TravelMode
	Params          string
	OriginHash      string
	DestinationHash string
	Result          *RouteResult
	CreatedAt       time.Time
	ExpiresAt       time.Time
}

// Fresh reports whether the entry may still be served at now.
func (e *CacheEntry) Fresh(now time.Time) bool {
	return e != nil && e.Result != nil && e.ExpiresAt.After(now)
}

// CacheStore abstracts the persistence layer for route caching.
type CacheStore interface {
	// GetCachedRoute returns the entry for fingerprint when it has not
	// expired at now, or (nil, nil) when there is none.
	GetCachedRoute(ctx context.Context, fingerprint string, now time.Time) (*CacheEntry, error)

	// UpsertCachedRoute creates or atomically replaces the entry keyed by
	// e.Fingerprint.
	UpsertCachedRoute(ctx context.Context, e CacheEntry) error
}

// ComputeFunc produces a fresh result for a query on a cache miss.
type ComputeFunc func(ctx context.Context, q RouteQuery) (*RouteResult, error)

// RequestCache is a cache-aside layer keyed by RouteQuery.Fingerprint.
// It never serves an expired entry. Read failures are treated as misses and
// write failures are logged and swallowed. Concurrent misses for the same
// fingerprint are not coalesced; the last writer wins.
type RequestCache struct {
	store CacheStore
	opts  options
}

// NewRequestCache wraps store. Options: WithTTL, WithLogger, WithCallLog,
// WithClock.
func NewRequestCache(store CacheStore, opts ...Option) *RequestCache {
	return &RequestCache{store: store, opts: buildOptions(opts)}
}

// TTL returns the lifetime given to new entries.
func (c *RequestCache) TTL() time.Duration { return c.opts.ttl }

// Get returns the cached result for q. A hit is recorded to the CallLog.
func (c *RequestCache) Get(ctx context.Context, q RouteQuery) (*RouteResult, bool) {
	key := q.Fingerprint()
	start := c.opts.now()

	readCtx, cancel := context.WithTimeout(ctx, cacheQueryTimeout)
	defer cancel()

	entry, err := c.store.GetCachedRoute(readCtx, key, start)
	if err != nil {
		// Cache read failures are non-fatal: fall through to a fresh compute.
		c.opts.logger("%v", &CacheReadError{Fingerprint: key, Err: err})
		return nil, false
	}
	if !entry.Fresh(c.opts.now()) {
		return nil, false
	}

	c.opts.recorder().record(ctx, CallLogEntry{
		Provider:  ProviderCache,
		Params:    q.CanonicalParams(),
		Status:    StatusOK,
		LatencyMs: latencySince(c.opts.now, start),
		CacheHit:  true,
	})
	return entry.Result, true
}

// Put upserts the entry for q with a fresh TTL. The returned
// *CacheWriteError has already been logged; callers may ignore it.
func (c *RequestCache) Put(ctx context.Context, q RouteQuery, res *RouteResult) error {
	if res == nil {
		return nil
	}
	key := q.Fingerprint()
	now := c.opts.now()
	entry := CacheEntry{
		Fingerprint:     key,
		Provider:        res.Source,
		Mode:            q.Options.Mode,
		Params:          q.CanonicalParams(),
		OriginHash:      cellHash(q.Origin),
		DestinationHash: cellHash(q.Destination),
		Result:          res,
		CreatedAt:       now,
		ExpiresAt:       now.Add(c.opts.ttl),
	}

	// The write must complete even if the caller gives up right after the
	// result is computed.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cacheQueryTimeout)
	defer cancel()

	if err := c.store.UpsertCachedRoute(writeCtx, entry); err != nil {
		werr := &CacheWriteError{Fingerprint: key, Err: err}
		c.opts.logger("%v", werr)
		return werr
	}
	return nil
}

// GetOrCompute returns the cached result for q, or calls compute, records
// the outcome and stores a successful result. A compute error is returned
// unchanged after being recorded.
func (c *RequestCache) GetOrCompute(ctx context.Context, q RouteQuery, compute ComputeFunc) (*RouteResult, error) {
	if res, ok := c.Get(ctx, q); ok {
		return res, nil
	}

	rec := c.opts.recorder()
	params := q.CanonicalParams()

	start := c.opts.now()
	res, err := compute(ctx, q)
	latency := latencySince(c.opts.now, start)
	if err == nil && res == nil {
		err = errNilResult
	}
	if err != nil {
		rec.record(ctx, CallLogEntry{
			Provider:  ProviderCache,
			Params:    params,
			Status:    StatusFailure,
			LatencyMs: latency,
			Error:     err.Error(),
		})
		return nil, err
	}

	rec.record(ctx, CallLogEntry{
		Provider:  ProviderCache,
		Params:    params,
		Status:    StatusOK,
		LatencyMs: latency,
	})

	// Put has already logged any failure; the fresh result is still served.
	_ = c.Put(ctx, q, res)
	return res, nil
}

// cellHash returns the geohash cell containing p.
func cellHash(p Coordinates) string {
	return geohash.EncodeWithPrecision(p.Lat, p.Lon, geohashPrecision)
}
