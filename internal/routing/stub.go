package routing

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// ProviderStub is the call-log identifier of the StubProvider.
const ProviderStub = "stub"

const (
	// detourFactor converts straight-line distance into a plausible street
	// distance.
	detourFactor = 1.3

	// stubAccessWalkM is the walk to and from a stop or a parked car.
	stubAccessWalkM = 400
)

// Average speeds in m/s per mode.
var stubSpeedMPS = map[TravelMode]float64{
	ModePedestrian: 5.0 / 3.6,
	ModeBicycle:    15.0 / 3.6,
	ModeCar:        30.0 / 3.6, // typical urban speed
	ModeTransit:    20.0 / 3.6,
}

var errInvalidCoordinates = errors.New("invalid coordinates")

// StubProvider synthesises a single plausible route from the straight-line
// distance between the two points. It performs no I/O and its output has the
// same shape as the live providers' output. It is deterministic: the same
// query always yields the same result.
type StubProvider struct{}

// NewStubProvider returns a StubProvider.
func NewStubProvider() *StubProvider { return &StubProvider{} }

// Name implements Provider.
func (s *StubProvider) Name() string { return ProviderStub }

// ComputeRoutes implements Provider.
func (s *StubProvider) ComputeRoutes(_ context.Context, q RouteQuery) (*RouteResult, error) {
	if !q.Origin.Valid() || !q.Destination.Valid() {
		return nil, &UpstreamError{Provider: ProviderStub, Err: errInvalidCoordinates}
	}

	mode := q.Options.Mode
	distM := haversineMeters(q.Origin.Lat, q.Origin.Lon, q.Destination.Lat, q.Destination.Lon) * detourFactor

	var segments []Segment
	var types []string
	switch mode {
	case ModeTransit:
		transport := "bus"
		if known := KnownTransportTypes(q.Options.TransportTypes); len(known) > 0 {
			transport = known[0]
		}
		types = []string{transport}
		rideM := math.Max(distM-2*stubAccessWalkM, 0)
		segments = []Segment{
			walkSegment(stubAccessWalkM, "From the start point to the stop"),
			{
				Type:       SegmentTransport,
				TimeMin:    minutesAt(rideM, stubSpeedMPS[ModeTransit]),
				WaitingMin: 5,
				Details: SegmentDetails{
					RouteName:     transportName(transport) + " 1",
					TransportType: transport,
					TransportName: transportName(transport),
					FromStop:      "Start stop",
					ToStop:        "End stop",
					StopsCount:    int(math.Max(1, math.Round(rideM/500))),
				},
			},
			walkSegment(stubAccessWalkM, "From the stop to the destination"),
		}
	case ModeCar:
		segments = []Segment{
			walkSegment(0, "From the start point to the car"),
			{
				Type:    SegmentTransport,
				TimeMin: minutesAt(distM, stubSpeedMPS[ModeCar]),
				Details: SegmentDetails{
					RouteName:     "Car route",
					TransportType: "car",
					Distance:      formatKm(distM),
					Note:          "Estimated without traffic data",
				},
			},
			walkSegment(0, "From the car to the destination"),
		}
		for _, i := range []int{0, 2} {
			segments[i].TimeMin = 2
			segments[i].Details.Distance = ""
		}
	case ModeBicycle:
		segments = []Segment{{
			Type:    SegmentTransport,
			TimeMin: minutesAt(distM, stubSpeedMPS[ModeBicycle]),
			Details: SegmentDetails{
				RouteName:     "Bicycle route",
				TransportType: "bicycle",
				Distance:      formatKm(distM),
			},
		}}
	default:
		segments = []Segment{walkSegment(distM, "Walk to the destination")}
	}

	route := Route{
		ID:             "stub_route_1",
		TotalDistanceM: int(math.Round(distM)),
		TransportTypes: types,
		Segments:       segments,
		Coordinates: [][][2]float64{{
			{q.Origin.Lat, q.Origin.Lon},
			{(q.Origin.Lat + q.Destination.Lat) / 2, (q.Origin.Lon + q.Destination.Lon) / 2},
			{q.Destination.Lat, q.Destination.Lon},
		}},
		Instructions: instructionsFor(segments),
		Icon:         ModeIcon(mode),
		ModeDisplay:  ModeDisplay(mode),
		TravelMode:   mode,
		Source:       ProviderStub,
	}
	for _, t := range types {
		route.TransportDisplay = append(route.TransportDisplay, transportName(t))
	}
	for _, seg := range segments {
		route.TotalTimeMin += seg.TimeMin + seg.WaitingMin
	}

	return &RouteResult{
		Routes:      []Route{route},
		Source:      ProviderStub,
		TravelMode:  mode,
		TotalRoutes: 1,
	}, nil
}

func walkSegment(distM float64, text string) Segment {
	return Segment{
		Type:    SegmentWalk,
		TimeMin: minutesAt(distM, stubSpeedMPS[ModePedestrian]),
		Details: SegmentDetails{
			Text:     text,
			Distance: fmt.Sprintf("%d m", int(math.Round(distM))),
		},
	}
}

// instructionsFor derives step-by-step instructions from segments.
func instructionsFor(segments []Segment) []Instruction {
	out := make([]Instruction, 0, len(segments))
	for i, seg := range segments {
		ins := Instruction{Step: i + 1, Time: fmt.Sprintf("%d min", seg.TimeMin)}
		switch seg.Type {
		case SegmentTransport:
			name := seg.Details.TransportName
			if name == "" {
				name = seg.Details.TransportType
			}
			ins.Action = "Take the " + name
			ins.Details = "Route: " + seg.Details.RouteName
			ins.From = seg.Details.FromStop
			ins.To = seg.Details.ToStop
			ins.Distance = seg.Details.Distance
			if seg.WaitingMin > 0 {
				ins.Waiting = fmt.Sprintf("Waiting: %d min", seg.WaitingMin)
			}
		default:
			ins.Action = "Walk"
			ins.Details = seg.Details.Text
			ins.Distance = seg.Details.Distance
		}
		out = append(out, ins)
	}
	return out
}

// minutesAt returns the whole minutes (at least 1) needed to cover distM.
func minutesAt(distM, speedMPS float64) int {
	if speedMPS <= 0 {
		return 1
	}
	return int(math.Max(1, math.Ceil(distM/speedMPS/60)))
}

func formatKm(distM float64) string {
	return fmt.Sprintf("%.1f km", distM/1000)
}

// haversineMeters computes the great-circle distance in meters between two WGS84 points.
func haversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadiusM = 6_371_000.0
	const deg2rad = math.Pi / 180.0

	dLat := (lat2 - lat1) * deg2rad
	dLon := (lon2 - lon1) * deg2rad
	lat1r := lat1 * deg2rad
	lat2r := lat2 * deg2rad

	sinDLat := math.Sin(dLat / 2)
	sinDLon := math.Sin(dLon / 2)
	a := sinDLat*sinDLat + math.Cos(lat1r)*math.Cos(lat2r)*sinDLon*sinDLon
	c := 2 * math.Asin(math.Sqrt(a))
	return earthRadiusM * c
}
