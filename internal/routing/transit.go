package routing

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// ProviderTransit is the call-log identifier of the TransitProvider.
	ProviderTransit = "2gis_public_transport"

	// TransitBaseURL is the 2GIS public transport routing endpoint.
	TransitBaseURL = "https://routing.api.2gis.com/public_transport/2.0"

	transitMaxRoutes = 5
)

// TransitProvider computes public transport routes with the 2GIS Public
// Transport API.
type TransitProvider struct {
	apiKey     string
	httpClient *http.Client
	timeout    time.Duration
	locale     string
	// baseURL is the endpoint. Overrideable in tests.
	baseURL string
}

// TransitOption configures a TransitProvider.
type TransitOption func(*TransitProvider)

// WithTransitBaseURL points the provider at another endpoint.
func WithTransitBaseURL(u string) TransitOption {
	return func(p *TransitProvider) {
		if u != "" {
			p.baseURL = u
		}
	}
}

// WithTransitTimeout overrides the per-call timeout.
func WithTransitTimeout(d time.Duration) TransitOption {
	return func(p *TransitProvider) {
		if d > 0 {
			p.timeout = d
			p.httpClient = NewHTTPClient(d)
		}
	}
}

// DefaultTransitLocale is the locale of stop and route names returned by
// the transit API.
const DefaultTransitLocale = "ru"

// WithTransitLocale sets the locale sent upstream. Defaults to
// DefaultTransitLocale.
func WithTransitLocale(locale string) TransitOption {
	return func(p *TransitProvider) {
		if locale != "" {
			p.locale = locale
		}
	}
}

// NewTransitProvider creates a provider backed by the 2GIS Public Transport API.
func NewTransitProvider(apiKey string, opts ...TransitOption) *TransitProvider {
	p := &TransitProvider{
		apiKey:     apiKey,
		baseURL:    TransitBaseURL,
		locale:     DefaultTransitLocale,
		timeout:    DefaultProviderTimeout,
		httpClient: NewHTTPClient(DefaultProviderTimeout),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Name implements Provider.
func (p *TransitProvider) Name() string { return ProviderTransit }

// ComputeRoutes implements Provider. Routes exceeding MaxTransfers, or with
// any transfer when OnlyDirect is set, are dropped; at most five are kept.
func (p *TransitProvider) ComputeRoutes(ctx context.Context, q RouteQuery) (*RouteResult, error) {
	reqCtx, cancel := UpstreamContext(ctx, p.timeout)
	defer cancel()

	payload := transitRequest{
		Locale: p.locale,
		Source: transitPlace{Name: "Start", Point: transitPoint{Lat: q.Origin.Lat, Lon: q.Origin.Lon}},
		Target: transitPlace{Name: "Finish", Point: transitPoint{Lat: q.Destination.Lat, Lon: q.Destination.Lon}},
	}
	if known := KnownTransportTypes(canonicalTypes(q.Options.TransportTypes)); len(known) > 0 {
		payload.Transport = known
	}

	endpoint := p.baseURL + "?" + url.Values{"key": {p.apiKey}}.Encode()
	req, err := NewJSONRequest(reqCtx, http.MethodPost, endpoint, payload)
	if err != nil {
		return nil, &UpstreamError{Provider: ProviderTransit, Err: err}
	}

	var apiRoutes []transitRoute
	if err := DoJSON(p.httpClient, ProviderTransit, req, &apiRoutes); err != nil {
		return nil, err
	}
	if len(apiRoutes) == 0 {
		return nil, &UpstreamError{Provider: ProviderTransit, Err: ErrNoRoutes}
	}

	filtered := filterTransitRoutes(apiRoutes, q.Options)

	result := &RouteResult{
		Routes:      []Route{},
		Source:      ProviderTransit,
		TravelMode:  ModeTransit,
		TotalRoutes: len(filtered),
	}
	for i, r := range filtered {
		if i == transitMaxRoutes {
			break
		}
		result.Routes = append(result.Routes, parseTransitRoute(r, i))
	}
	return result, nil
}

func filterTransitRoutes(routes []transitRoute, opts Options) []transitRoute {
	if opts.MaxTransfers == nil && !opts.OnlyDirect {
		return routes
	}
	out := make([]transitRoute, 0, len(routes))
	for _, r := range routes {
		if opts.OnlyDirect && r.TransferCount > 0 {
			continue
		}
		if opts.MaxTransfers != nil && r.TransferCount+r.CrossingCount > *opts.MaxTransfers {
			continue
		}
		out = append(out, r)
	}
	return out
}

func parseTransitRoute(r transitRoute, idx int) Route {
	var segments []Segment
	var coords [][2]float64
	for _, m := range r.Movements {
		if seg, ok := parseMovement(m); ok {
			segments = append(segments, seg)
		}
		if m.Geometry != nil && m.Geometry.Type == "LineString" {
			for _, c := range m.Geometry.Coordinates {
				if len(c) >= 2 {
					// GeoJSON order is lon,lat.
					coords = append(coords, [2]float64{c[1], c[0]})
				}
			}
		}
	}

	icon := "🚌"
	if len(r.Transport) > 0 {
		icon = transportIcon(r.Transport[0])
	}
	display := make([]string, 0, len(r.Transport))
	for _, t := range r.Transport {
		display = append(display, transportName(t))
	}

	route := Route{
		ID:               fmt.Sprintf("2gis_route_%d", idx+1),
		TotalTimeMin:     r.TotalDuration / 60,
		TotalDistanceM:   r.TotalDistance,
		TransferCount:    r.TransferCount,
		CrossingCount:    r.CrossingCount,
		TotalTransfers:   r.TransferCount + r.CrossingCount,
		TransportTypes:   r.Transport,
		TransportDisplay: display,
		Segments:         segments,
		Coordinates:      [][][2]float64{},
		Instructions:     instructionsFor(segments),
		Icon:             icon,
		ModeDisplay:      ModeDisplay(ModeTransit),
		TravelMode:       ModeTransit,
		Source:           ProviderTransit,
	}
	if len(coords) > 0 {
		route.Coordinates = [][][2]float64{coords}
	}
	return route
}

func parseMovement(m transitMovement) (Segment, bool) {
	switch m.Type {
	case "walkway":
		text := m.Waypoint.Comment
		if text == "" {
			text = "Walking section"
		}
		return Segment{
			Type:    SegmentWalk,
			TimeMin: m.MovingDuration / 60,
			Details: SegmentDetails{
				Text:     text,
				Distance: fmt.Sprintf("%d m", m.Distance),
				FromStop: m.FromStop.Name,
				ToStop:   m.ToStop.Name,
			},
		}, true
	case "passage":
		transport := m.Waypoint.Subtype
		if transport == "" {
			transport = "bus"
		}
		routeName := strings.Join(m.RoutesNames, ", ")
		if routeName == "" {
			routeName = "Unknown route"
		}
		return Segment{
			Type:       SegmentTransport,
			TimeMin:    m.MovingDuration / 60,
			WaitingMin: m.WaitingDuration / 60,
			Details: SegmentDetails{
				RouteName:     routeName,
				TransportType: transport,
				TransportName: transportName(transport),
				FromStop:      m.FromStop.Name,
				ToStop:        m.ToStop.Name,
				StopsCount:    m.StopsCount,
			},
		}, true
	}
	return Segment{}, false
}

// --- JSON types for the 2GIS Public Transport API ---

type transitRequest struct {
	Locale    string       `json:"locale"`
	Source    transitPlace `json:"source"`
	Target    transitPlace `json:"target"`
	Transport []string     `json:"transport,omitempty"`
}

type transitPlace struct {
	Name  string       `json:"name"`
	Point transitPoint `json:"point"`
}

type transitPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type transitRoute struct {
	TotalDuration int               `json:"total_duration"`
	TotalDistance int               `json:"total_distance"`
	TransferCount int               `json:"transfer_count"`
	CrossingCount int               `json:"crossing_count"`
	Transport     []string          `json:"transport"`
	Movements     []transitMovement `json:"movements"`
}

type transitMovement struct {
	Type            string           `json:"type"`
	MovingDuration  int              `json:"moving_duration"`
	WaitingDuration int              `json:"waiting_duration"`
	Distance        int              `json:"distance"`
	StopsCount      int              `json:"stops_count"`
	RoutesNames     []string         `json:"routes_names"`
	Waypoint        transitWaypoint  `json:"waypoint"`
	FromStop        transitStop      `json:"from_stop"`
	ToStop          transitStop      `json:"to_stop"`
	Geometry        *transitGeometry `json:"geometry"`
}

type transitWaypoint struct {
	Comment string `json:"comment"`
	Subtype string `json:"subtype"`
}

type transitStop struct {
	Name string `json:"name"`
}

type transitGeometry struct {
	Type        string      `json:"type"`
	Coordinates [][]float64 `json:"coordinates"`
}
