package geocode

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bellvik/transport-planner/internal/routing"
)

// ProviderTomTom is the call-log identifier of the TomTomGeocoder.
const ProviderTomTom = "tomtom_geocode"

// Search bias: results near central Yekaterinburg rank first.
const (
	biasLat = 56.8379
	biasLon = 60.5975
)

// TomTomGeocoder uses the TomTom Search API.
type TomTomGeocoder struct {
	apiKey     string
	baseURL    string
	language   string
	countrySet string
	timeout    time.Duration
	httpClient *http.Client
}

// NewTomTomGeocoder creates a geocoder. An empty baseURL selects the public
// TomTom host; timeout <= 0 selects routing.DefaultProviderTimeout.
func NewTomTomGeocoder(apiKey, baseURL string, timeout time.Duration) *TomTomGeocoder {
	if baseURL == "" {
		baseURL = routing.TomTomBaseURL
	}
	if timeout <= 0 {
		timeout = routing.DefaultProviderTimeout
	}
	return &TomTomGeocoder{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		language:   "ru-RU",
		countrySet: "RU",
		timeout:    timeout,
		httpClient: routing.NewHTTPClient(timeout),
	}
}

// Name implements Geocoder.
func (g *TomTomGeocoder) Name() string { return ProviderTomTom }

// Geocode implements Geocoder. Failures are returned as *routing.UpstreamError.
func (g *TomTomGeocoder) Geocode(ctx context.Context, query string) (*Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	reqCtx, cancel := routing.UpstreamContext(ctx, g.timeout)
	defer cancel()

	params := url.Values{}
	params.Set("key", g.apiKey)
	params.Set("limit", "5")
	params.Set("language", g.language)
	params.Set("countrySet", g.countrySet)
	params.Set("lat", strconv.FormatFloat(biasLat, 'f', -1, 64))
	params.Set("lon", strconv.FormatFloat(biasLon, 'f', -1, 64))
	endpoint := fmt.Sprintf("%s/search/2/search/%s.json?%s", g.baseURL, url.PathEscape(query), params.Encode())

	req, err := routing.NewJSONRequest(reqCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &routing.UpstreamError{Provider: ProviderTomTom, Err: err}
	}

	var resp searchResponse
	if err := routing.DoJSON(g.httpClient, ProviderTomTom, req, &resp); err != nil {
		return nil, err
	}

	out := &Result{Source: "tomtom", TotalResults: resp.Summary.TotalResults, Places: []Place{}}
	for _, item := range resp.Results {
		if item.Position.Lat == 0 && item.Position.Lon == 0 {
			continue
		}
		out.Places = append(out.Places, Place{
			Address: item.Address.format(),
			Lat:     item.Position.Lat,
			Lon:     item.Position.Lon,
			Score:   item.Score / 10,
			Type:    item.Type,
		})
		if len(out.Places) == maxResults {
			break
		}
	}
	return out, nil
}

// --- JSON types for the TomTom Search API ---

type searchResponse struct {
	Summary struct {
		TotalResults int `json:"totalResults"`
	} `json:"summary"`
	Results []searchResult `json:"results"`
}

type searchResult struct {
	Type     string        `json:"type"`
	Score    float64       `json:"score"`
	Address  searchAddress `json:"address"`
	Position struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	} `json:"position"`
}

type searchAddress struct {
	StreetName         string `json:"streetName"`
	StreetNumber       string `json:"streetNumber"`
	Municipality       string `json:"municipality"`
	CountrySubdivision string `json:"countrySubdivision"`
	FreeformAddress    string `json:"freeformAddress"`
}

func (a searchAddress) format() string {
	var parts []string
	if a.StreetName != "" {
		street := a.StreetName
		if a.StreetNumber != "" {
			street += ", " + a.StreetNumber
		}
		parts = append(parts, street)
	}
	if a.Municipality != "" {
		parts = append(parts, a.Municipality)
	}
	if a.CountrySubdivision != "" {
		parts = append(parts, a.CountrySubdivision)
	}
	if len(parts) == 0 {
		return a.FreeformAddress
	}
	return strings.Join(parts, ", ")
}
