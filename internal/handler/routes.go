package handler

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/bellvik/transport-planner/internal/geocode"
	"github.com/bellvik/transport-planner/internal/routing"
	"github.com/bellvik/transport-planner/internal/service"
)

// GetRoutes handles GET /api/v1/routes
//
// Query params:
//   - start_lat, start_lon, end_lat, end_lon (required) WGS-84 degrees
//   - travel_mode     transit (default), car, pedestrian or bicycle
//   - transport_types transit only; repeated or comma separated (bus,tram)
//   - max_transfers   transit only; non-negative integer
//   - only_direct     transit only; boolean
//
// Response 200: the route result, e.g.
//
//	{"result":[...],"source":"2gis_public_transport","travel_mode":"transit","total_routes":2}
//
// Response 400: missing or invalid query parameters.
// Response 502: every provider failed.
func (h *Handler) GetRoutes(c *gin.Context) {
	startLat, ok := parseRequiredFloat(c, "start_lat")
	if !ok {
		return
	}
	startLon, ok := parseRequiredFloat(c, "start_lon")
	if !ok {
		return
	}
	endLat, ok := parseRequiredFloat(c, "end_lat")
	if !ok {
		return
	}
	endLon, ok := parseRequiredFloat(c, "end_lon")
	if !ok {
		return
	}
	opts, ok := parseOptions(c)
	if !ok {
		return
	}

	res, err := h.planner.GetRoutes(c.Request.Context(), startLat, startLon, endLat, endLon, opts)
	if err != nil {
		writeRouteError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Plan handles GET /api/v1/plan
//
// Query params:
//   - from, to (required) free-text place names
//   - travel_mode, transport_types, max_transfers, only_direct as for GetRoutes
//
// Response 200:
//
//	{"from":{"address":"...","lat":56.83,"lon":60.59,"score":0.95},"to":{...},"routes":{...}}
//
// Response 400: missing parameters.
// Response 404: a place could not be geocoded.
// Response 502: every provider failed.
func (h *Handler) Plan(c *gin.Context) {
	from := strings.TrimSpace(c.Query("from"))
	to := strings.TrimSpace(c.Query("to"))
	if from == "" || to == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "from and to query parameters are required"})
		return
	}
	opts, ok := parseOptions(c)
	if !ok {
		return
	}

	plan, err := h.planner.Plan(c.Request.Context(), from, to, opts)
	if err != nil {
		writeRouteError(c, err)
		return
	}
	c.JSON(http.StatusOK, plan)
}

// PopularRoutes handles GET /api/v1/routes/popular
//
// Query params:
//   - days  (optional) look-back window, default 7
//   - limit (optional) maximum pairs, default 10, at most 100
//
// Response 200:
//
//	{"routes":[{"start_query":"circus","end_query":"upi","count":4,...}],"days":7}
func (h *Handler) PopularRoutes(c *gin.Context) {
	days, ok := parseOptionalInt(c, "days")
	if !ok {
		return
	}
	limit, ok := parseOptionalInt(c, "limit")
	if !ok {
		return
	}

	routes, err := h.planner.PopularRoutes(c.Request.Context(), days, limit)
	if err != nil {
		if errors.Is(err, service.ErrHistoryDisabled) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "search history is not available"})
			return
		}
		log.Printf("handler: popular routes: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load popular routes"})
		return
	}
	if days <= 0 {
		days = 7
	}
	c.JSON(http.StatusOK, gin.H{"routes": routes, "days": days})
}

// transportType is one entry of the GET /api/v1/transport-types response.
type transportType struct {
	ID string `json:"id"`
	routing.TransportTypeInfo
}

// TransportTypes handles GET /api/v1/transport-types
//
// Response 200:
//
//	{"transport_types":[{"id":"bus","name":"Bus","icon":"🚌"},...]}
func (h *Handler) TransportTypes(c *gin.Context) {
	ids := routing.TransportTypes()
	out := make([]transportType, 0, len(ids))
	for _, id := range ids {
		info, _ := routing.LookupTransportType(id)
		out = append(out, transportType{ID: id, TransportTypeInfo: info})
	}
	c.JSON(http.StatusOK, gin.H{"transport_types": out})
}

func writeRouteError(c *gin.Context, err error) {
	var exhausted *routing.ExhaustedFallbackError
	switch {
	case errors.Is(err, service.ErrInvalidCoordinates):
		c.JSON(http.StatusBadRequest, gin.H{"error": "coordinates out of range"})
	case errors.Is(err, geocode.ErrEmptyQuery):
		c.JSON(http.StatusBadRequest, gin.H{"error": "place name is empty"})
	case errors.Is(err, service.ErrPlaceNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "place not found"})
	case errors.As(err, &exhausted):
		log.Printf("handler: routes: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "no routing provider available"})
	default:
		log.Printf("handler: routes: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to calculate route"})
	}
}

// parseOptions reads the routing options shared by GetRoutes and Plan.
// Unknown travel modes are accepted; the router serves them from the stub.
func parseOptions(c *gin.Context) (routing.Options, bool) {
	var opts routing.Options
	if raw := c.Query("travel_mode"); raw != "" {
		mode, ok := routing.ParseTravelMode(raw)
		if !ok {
			log.Printf("handler: unknown travel_mode %q", raw)
		}
		opts.Mode = mode
	}

	for _, v := range c.QueryArray("transport_types") {
		for _, t := range strings.Split(v, ",") {
			if t = strings.TrimSpace(t); t != "" {
				opts.TransportTypes = append(opts.TransportTypes, t)
			}
		}
	}

	if raw := c.Query("max_transfers"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "max_transfers must be a non-negative integer"})
			return opts, false
		}
		opts.MaxTransfers = &n
	}

	if raw := c.Query("only_direct"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "only_direct must be a boolean"})
			return opts, false
		}
		opts.OnlyDirect = b
	}
	return opts, true
}

func parseRequiredFloat(c *gin.Context, name string) (float64, bool) {
	raw := c.Query(name)
	if raw == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " query parameter is required"})
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " must be a valid number"})
		return 0, false
	}
	return v, true
}

func parseOptionalInt(c *gin.Context, name string) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " must be a non-negative integer"})
		return 0, false
	}
	return v, true
}
