package routing

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	// ProviderTomTom is the call-log identifier of the TomTomProvider.
	ProviderTomTom = "tomtom_route"

	// TomTomBaseURL is the public TomTom API host.
	TomTomBaseURL = "https://api.tomtom.com"

	tomtomMaxRoutes = 5
)

// TomTomProvider computes car, pedestrian and bicycle routes with the TomTom
// Routing API. The sub-mode is taken from the query.
type TomTomProvider struct {
	apiKey     string
	httpClient *http.Client
	timeout    time.Duration
	// baseURL is the API host. Overrideable in tests.
	baseURL string
}

// TomTomOption configures a TomTomProvider.
type TomTomOption func(*TomTomProvider)

// WithTomTomBaseURL points the provider at another host.
func WithTomTomBaseURL(u string) TomTomOption {
	return func(p *TomTomProvider) {
		if u != "" {
			p.baseURL = u
		}
	}
}

// WithTomTomTimeout overrides the per-call timeout.
func WithTomTomTimeout(d time.Duration) TomTomOption {
	return func(p *TomTomProvider) {
		if d > 0 {
			p.timeout = d
			p.httpClient = NewHTTPClient(d)
		}
	}
}

// NewTomTomProvider creates a provider backed by the TomTom Routing API.
func NewTomTomProvider(apiKey string, opts ...TomTomOption) *TomTomProvider {
	p := &TomTomProvider{
		apiKey:     apiKey,
		baseURL:    TomTomBaseURL,
		timeout:    DefaultProviderTimeout,
		httpClient: NewHTTPClient(DefaultProviderTimeout),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Name implements Provider.
func (p *TomTomProvider) Name() string { return ProviderTomTom }

// ComputeRoutes implements Provider.
func (p *TomTomProvider) ComputeRoutes(ctx context.Context, q RouteQuery) (*RouteResult, error) {
	mode := q.Options.Mode
	if mode != ModeCar && mode != ModePedestrian && mode != ModeBicycle {
		return nil, &UpstreamError{Provider: ProviderTomTom, Err: fmt.Errorf("unsupported travel mode %q", mode)}
	}

	reqCtx, cancel := UpstreamContext(ctx, p.timeout)
	defer cancel()

	req, err := NewJSONRequest(reqCtx, http.MethodGet, p.routeURL(q), nil)
	if err != nil {
		return nil, &UpstreamError{Provider: ProviderTomTom, Err: err}
	}

	var apiResp tomtomRouteResponse
	if err := DoJSON(p.httpClient, ProviderTomTom, req, &apiResp); err != nil {
		return nil, err
	}
	if len(apiResp.Routes) == 0 {
		return nil, &UpstreamError{Provider: ProviderTomTom, Err: ErrNoRoutes}
	}

	result := &RouteResult{
		Source:     ProviderTomTom,
		TravelMode: mode,
	}
	for i, r := range apiResp.Routes {
		if i == tomtomMaxRoutes {
			break
		}
		result.Routes = append(result.Routes, parseTomTomRoute(r, i, mode))
	}
	result.TotalRoutes = len(result.Routes)
	return result, nil
}

func (p *TomTomProvider) routeURL(q RouteQuery) string {
	locations := fmt.Sprintf("%s,%s:%s,%s",
		strconv.FormatFloat(q.Origin.Lat, 'f', -1, 64),
		strconv.FormatFloat(q.Origin.Lon, 'f', -1, 64),
		strconv.FormatFloat(q.Destination.Lat, 'f', -1, 64),
		strconv.FormatFloat(q.Destination.Lon, 'f', -1, 64),
	)

	params := url.Values{}
	params.Set("key", p.apiKey)
	params.Set("travelMode", string(q.Options.Mode))
	params.Set("routeType", "fastest")
	params.Set("instructionsType", "text")
	if q.Options.Mode == ModeCar {
		params.Set("traffic", "true")
	}

	return fmt.Sprintf("%s/routing/1/calculateRoute/%s/json?%s", p.baseURL, locations, params.Encode())
}

func parseTomTomRoute(r tomtomRoute, idx int, mode TravelMode) Route {
	totalS := r.Summary.TravelTimeInSeconds
	delayMin := r.Summary.TrafficDelayInSeconds / 60
	totalMin := totalS / 60
	distM := r.Summary.LengthInMeters

	var segments []Segment
	switch mode {
	case ModeCar:
		trafficInfo := "No traffic delays"
		if delayMin > 0 {
			trafficInfo = fmt.Sprintf("Traffic: +%d min", delayMin)
		}
		driveMin := totalMin - 4
		if driveMin < 1 {
			driveMin = 1
		}
		segments = []Segment{
			{Type: SegmentWalk, TimeMin: 2, Details: SegmentDetails{Text: "From the start point to the car", Note: "Estimated time"}},
			{Type: SegmentTransport, TimeMin: driveMin, Details: SegmentDetails{
				RouteName:     "Car route",
				TransportType: "car",
				Distance:      formatKm(float64(distM)),
				Note:          trafficInfo,
			}},
			{Type: SegmentWalk, TimeMin: 2, Details: SegmentDetails{Text: "From the car to the destination", Note: "Estimated time"}},
		}
	case ModeBicycle:
		segments = []Segment{{Type: SegmentTransport, TimeMin: maxInt(totalMin, 1), Details: SegmentDetails{
			RouteName:     "Bicycle route",
			TransportType: "bicycle",
			Distance:      formatKm(float64(distM)),
		}}}
	default:
		segments = []Segment{{Type: SegmentWalk, TimeMin: maxInt(totalMin, 1), Details: SegmentDetails{
			Text:     "Walk to the destination",
			Distance: fmt.Sprintf("%d m", distM),
		}}}
	}

	var coords [][2]float64
	for _, leg := range r.Legs {
		for _, pt := range leg.Points {
			coords = append(coords, [2]float64{pt.Latitude, pt.Longitude})
		}
	}

	instructions := instructionsFor(segments)
	if len(r.Guidance.Instructions) > 0 {
		instructions = make([]Instruction, 0, len(r.Guidance.Instructions))
		for i, gi := range r.Guidance.Instructions {
			instructions = append(instructions, Instruction{
				Step:     i + 1,
				Action:   gi.Message,
				Distance: fmt.Sprintf("%d m", gi.RouteOffsetInMeters),
			})
		}
	}

	route := Route{
		ID:              fmt.Sprintf("tomtom_route_%d", idx+1),
		TotalTimeMin:    totalMin,
		TotalDistanceM:  distM,
		TrafficDelayMin: delayMin,
		Segments:        segments,
		Instructions:    instructions,
		Icon:            ModeIcon(mode),
		ModeDisplay:     ModeDisplay(mode),
		TravelMode:      mode,
		Source:          ProviderTomTom,
	}
	if len(coords) > 0 {
		route.Coordinates = [][][2]float64{coords}
	}
	return route
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// --- JSON types for the TomTom Routing API ---

type tomtomRouteResponse struct {
	Routes []tomtomRoute `json:"routes"`
}

type tomtomRoute struct {
	Summary  tomtomSummary  `json:"summary"`
	Legs     []tomtomLeg    `json:"legs"`
	Guidance tomtomGuidance `json:"guidance"`
}

type tomtomSummary struct {
	LengthInMeters        int `json:"lengthInMeters"`
	TravelTimeInSeconds   int `json:"travelTimeInSeconds"`
	TrafficDelayInSeconds int `json:"trafficDelayInSeconds"`
}

type tomtomLeg struct {
	Points []tomtomPoint `json:"points"`
}

type tomtomPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type tomtomGuidance struct {
	Instructions []tomtomInstruction `json:"instructions"`
}

type tomtomInstruction struct {
	Message             string `json:"message"`
	RouteOffsetInMeters int    `json:"routeOffsetInMeters"`
}
