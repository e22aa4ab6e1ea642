package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/bellvik/transport-planner/internal/geocode"
	"github.com/bellvik/transport-planner/internal/routing"
	"github.com/bellvik/transport-planner/internal/storage"
)

// Sentinel errors for the planner. Callers should use errors.Is.
var (
	ErrInvalidCoordinates = errors.New("invalid coordinates")
	ErrPlaceNotFound      = errors.New("place not found")
	ErrHistoryDisabled    = errors.New("search history is not configured")
)

const (
	defaultPopularDays  = 7
	defaultPopularLimit = 10
	maxPopularLimit     = 100
)

// Router computes routes for one query. *routing.ModeRouter implements it.
type Router interface {
	Route(ctx context.Context, q routing.RouteQuery) (*routing.RouteResult, error)
}

// RouteCache deduplicates identical queries. *routing.RequestCache implements it.
type RouteCache interface {
	GetOrCompute(ctx context.Context, q routing.RouteQuery, compute routing.ComputeFunc) (*routing.RouteResult, error)
}

// PlanResult is a geocoded place-to-place plan.
type PlanResult struct {
	From   geocode.Place        `json:"from"`
	To     geocode.Place        `json:"to"`
	Routes *routing.RouteResult `json:"routes"`
}

// PlannerService is the inbound entry point of the routing core: it validates
// a request, then serves it from the route cache or the mode router.
type PlannerService struct {
	router   Router
	cache    RouteCache // nil disables caching
	geocoder geocode.Geocoder
	history  storage.SearchHistoryRepository // nil disables history
	logger   routing.Logger
	now      func() time.Time
}

// NewPlannerService creates a PlannerService.
//
//   - router is normally a *routing.ModeRouter.
//   - cache may be nil, in which case every request reaches the router.
//   - history may be nil; searches are then not recorded.
func NewPlannerService(
	router Router,
	cache RouteCache,
	geocoder geocode.Geocoder,
	history storage.SearchHistoryRepository,
	logger routing.Logger,
) *PlannerService {
	if logger == nil {
		logger = log.Printf
	}
	if geocoder == nil {
		geocoder = geocode.NewStubGeocoder()
	}
	return &PlannerService{
		router:   router,
		cache:    cache,
		geocoder: geocoder,
		history:  history,
		logger:   logger,
		now:      time.Now,
	}
}

// GetRoutes returns route options between two points. An empty mode selects
// transit. Transit-only options are dropped for other modes. An unrecognised
// mode is passed through; the router serves it from the stub.
func (s *PlannerService) GetRoutes(ctx context.Context, startLat, startLon, endLat, endLon float64, opts routing.Options) (*routing.RouteResult, error) {
	q := routing.RouteQuery{
		Origin:      routing.Coordinates{Lat: startLat, Lon: startLon},
		Destination: routing.Coordinates{Lat: endLat, Lon: endLon},
	}
	if !q.Origin.Valid() || !q.Destination.Valid() {
		return nil, fmt.Errorf("service: GetRoutes: %s -> %s: %w", q.Origin, q.Destination, ErrInvalidCoordinates)
	}
	q.Options = routing.NormalizeOptions(opts)

	var (
		res *routing.RouteResult
		err error
	)
	if s.cache != nil {
		res, err = s.cache.GetOrCompute(ctx, q, s.router.Route)
	} else {
		res, err = s.router.Route(ctx, q)
	}
	if err != nil {
		return nil, fmt.Errorf("service: GetRoutes: %w", err)
	}
	return res, nil
}

// Plan geocodes from and to, then returns routes between the best matches.
// The search is recorded in the history whether or not it succeeds; a
// history failure is logged and does not affect the result.
func (s *PlannerService) Plan(ctx context.Context, from, to string, opts routing.Options) (*PlanResult, error) {
	from, to = strings.TrimSpace(from), strings.TrimSpace(to)
	rec := storage.SearchRecord{
		StartQuery:     from,
		EndQuery:       to,
		TravelMode:     string(routing.NormalizeOptions(opts).Mode),
		TransportTypes: strings.Join(opts.TransportTypes, ","),
	}
	if opts.MaxTransfers != nil {
		rec.MaxTransfers = strconv.Itoa(*opts.MaxTransfers)
	}

	plan, err := s.plan(ctx, from, to, opts, &rec)
	rec.Successful = err == nil
	s.recordSearch(ctx, rec)
	if err != nil {
		return nil, err
	}
	return plan, nil
}

func (s *PlannerService) plan(ctx context.Context, from, to string, opts routing.Options, rec *storage.SearchRecord) (*PlanResult, error) {
	src, err := s.resolve(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("service: Plan: from: %w", err)
	}
	rec.StartCoords = src.Coordinates().String()

	dst, err := s.resolve(ctx, to)
	if err != nil {
		return nil, fmt.Errorf("service: Plan: to: %w", err)
	}
	rec.EndCoords = dst.Coordinates().String()

	routes, err := s.GetRoutes(ctx, src.Lat, src.Lon, dst.Lat, dst.Lon, opts)
	if err != nil {
		return nil, err
	}
	rec.RoutesCount = len(routes.Routes)

	return &PlanResult{From: src, To: dst, Routes: routes}, nil
}

func (s *PlannerService) resolve(ctx context.Context, query string) (geocode.Place, error) {
	res, err := s.geocoder.Geocode(ctx, query)
	if err != nil {
		return geocode.Place{}, err
	}
	best, ok := res.Best()
	if !ok {
		return geocode.Place{}, fmt.Errorf("%q: %w", query, ErrPlaceNotFound)
	}
	return best, nil
}

func (s *PlannerService) recordSearch(ctx context.Context, rec storage.SearchRecord) {
	if s.history == nil || rec.StartQuery == "" || rec.EndQuery == "" {
		return
	}
	rec.CreatedAt = s.now()
	if _, err := s.history.RecordSearch(context.WithoutCancel(ctx), rec); err != nil {
		s.logger("service: plan: record search %q -> %q: %v", rec.StartQuery, rec.EndQuery, err)
	}
}

// PopularRoutes returns the most searched place pairs of the last days.
// Non-positive arguments select 7 days and 10 entries.
func (s *PlannerService) PopularRoutes(ctx context.Context, days, limit int) ([]storage.PopularRoute, error) {
	if s.history == nil {
		return nil, ErrHistoryDisabled
	}
	if days <= 0 {
		days = defaultPopularDays
	}
	if limit <= 0 {
		limit = defaultPopularLimit
	}
	if limit > maxPopularLimit {
		limit = maxPopularLimit
	}

	since := s.now().AddDate(0, 0, -days)
	routes, err := s.history.PopularRoutes(ctx, since, limit)
	if err != nil {
		return nil, fmt.Errorf("service: PopularRoutes: %w", err)
	}
	return routes, nil
}
