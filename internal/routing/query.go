package routing

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// coordPrecision is the number of decimal places kept for each coordinate
// when building cache fingerprints. 6 places ≈ 0.1 m.
const coordPrecision = 6

// TravelMode is the requested mode of transport.
type TravelMode string

const (
	ModeTransit    TravelMode = "transit"
	ModeCar        TravelMode = "car"
	ModePedestrian TravelMode = "pedestrian"
	ModeBicycle    TravelMode = "bicycle"
)

// ParseTravelMode maps a user-supplied mode to a TravelMode.
// "public" is accepted as an alias of transit. An empty string defaults to
// transit. Unknown values are returned as-is with ok = false so the caller
// can still route them (the ModeRouter sends them to the stub).
func ParseTravelMode(s string) (TravelMode, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "transit", "public":
		return ModeTransit, true
	case "car":
		return ModeCar, true
	case "pedestrian", "walk":
		return ModePedestrian, true
	case "bicycle", "bike":
		return ModeBicycle, true
	default:
		return TravelMode(strings.TrimSpace(s)), false
	}
}

// Valid reports whether m is one of the four known modes.
func (m TravelMode) Valid() bool {
	switch m {
	case ModeTransit, ModeCar, ModePedestrian, ModeBicycle:
		return true
	}
	return false
}

// Coordinates is a WGS-84 point.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Valid reports whether the point is finite and within WGS-84 bounds.
func (c Coordinates) Valid() bool {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lon) || math.IsInf(c.Lat, 0) || math.IsInf(c.Lon, 0) {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}

// String formats the point as "lat,lon" at fingerprint precision.
func (c Coordinates) String() string {
	return formatCoord(c.Lat) + "," + formatCoord(c.Lon)
}

// Options carries the routing options recognised by the core.
// TransportTypes, MaxTransfers and OnlyDirect are only meaningful for transit.
type Options struct {
	Mode           TravelMode `json:"travel_mode"`
	TransportTypes []string   `json:"transport_types,omitempty"`
	MaxTransfers   *int       `json:"max_transfers,omitempty"`
	OnlyDirect     bool       `json:"only_direct"`
}

// NormalizeOptions returns a copy of opts ready to be handed to the core:
// transport types are trimmed, de-duplicated and sorted, and every
// transit-only option is cleared for non-transit modes.
func NormalizeOptions(opts Options) Options {
	out := Options{Mode: opts.Mode}
	if out.Mode == "" {
		out.Mode = ModeTransit
	}
	if out.Mode != ModeTransit {
		return out
	}
	out.TransportTypes = canonicalTypes(opts.TransportTypes)
	if opts.MaxTransfers != nil {
		v := *opts.MaxTransfers
		out.MaxTransfers = &v
	}
	out.OnlyDirect = opts.OnlyDirect
	return out
}

// RouteQuery is an immutable routing request.
type RouteQuery struct {
	Origin      Coordinates
	Destination Coordinates
	Options     Options
}

// WithMode returns a copy of q targeting mode. Transit-only options are
// cleared when the new mode is not transit.
func (q RouteQuery) WithMode(mode TravelMode) RouteQuery {
	out := q
	out.Options.Mode = mode
	if mode != ModeTransit {
		out.Options.TransportTypes = nil
		out.Options.MaxTransfers = nil
		out.Options.OnlyDirect = false
	}
	return out
}

// CanonicalParams serialises the query into a stable string: keys sorted,
// coordinates at fixed precision, list values sorted. Two queries that only
// differ in the order of their transport types produce the same string.
func (q RouteQuery) CanonicalParams() string {
	maxTransfers := "any"
	if q.Options.MaxTransfers != nil {
		maxTransfers = strconv.Itoa(*q.Options.MaxTransfers)
	}

	params := map[string]string{
		"destination":     q.Destination.String(),
		"max_transfers":   maxTransfers,
		"mode":            string(q.Options.Mode),
		"only_direct":     strconv.FormatBool(q.Options.OnlyDirect),
		"origin":          q.Origin.String(),
		"transport_types": strings.Join(canonicalTypes(q.Options.TransportTypes), ","),
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(';')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(params[k])
	}
	return b.String()
}

// Fingerprint returns the SHA-256 hex digest of CanonicalParams.
// It is the unique key of a cache entry.
func (q RouteQuery) Fingerprint() string {
	sum := sha256.Sum256([]byte(q.CanonicalParams()))
	return hex.EncodeToString(sum[:])
}

// String is used in log lines.
func (q RouteQuery) String() string {
	return fmt.Sprintf("%s->%s mode=%s", q.Origin, q.Destination, q.Options.Mode)
}

// canonicalTypes trims, drops empties, de-duplicates and sorts.
func canonicalTypes(types []string) []string {
	if len(types) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(types))
	out := make([]string, 0, len(types))
	for _, t := range types {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	if len(out) == 0 {
		return nil
	}
	sort.Strings(out)
	return out
}

// formatCoord renders v with coordPrecision decimals. Values that round to
// zero are printed without a sign so -0.0000001 and 0 share a fingerprint.
func formatCoord(v float64) string {
	s := strconv.FormatFloat(v, 'f', coordPrecision, 64)
	if strings.Trim(s, "-0.") == "" {
		return strconv.FormatFloat(0, 'f', coordPrecision, 64)
	}
	return s
}
