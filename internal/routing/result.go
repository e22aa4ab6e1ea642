package routing

// Segment types.
const (
	SegmentWalk      = "walk"
	SegmentTransport = "transport"
)

// RouteResult is the list of candidate routes returned by a provider.
// The cache stores and returns it verbatim; only providers interpret it.
type RouteResult struct {
	Routes      []Route    `json:"result"`
	Source      string     `json:"source"`
	TravelMode  TravelMode `json:"travel_mode"`
	TotalRoutes int        `json:"total_routes"`
}

// Route is one candidate itinerary.
type Route struct {
	ID               string         `json:"id"`
	TotalTimeMin     int            `json:"total_time"`
	TotalDistanceM   int            `json:"total_distance"`
	TransferCount    int            `json:"transfer_count"`
	CrossingCount    int            `json:"crossing_count"`
	TotalTransfers   int            `json:"total_transfers"`
	TrafficDelayMin  int            `json:"traffic_delay,omitempty"`
	TransportTypes   []string       `json:"transport_types,omitempty"`
	TransportDisplay []string       `json:"transport_types_display,omitempty"`
	Segments         []Segment      `json:"segments"`
	Coordinates      [][][2]float64 `json:"coordinates"`
	Instructions     []Instruction  `json:"instructions"`
	Icon             string         `json:"icon"`
	ModeDisplay      string         `json:"mode_display"`
	TravelMode       TravelMode     `json:"travel_mode"`
	Source           string         `json:"source"`
}

// Segment is a leg of a route: a walk or a ride.
type Segment struct {
	Type       string         `json:"type"`
	TimeMin    int            `json:"time"`
	WaitingMin int            `json:"waiting_time"`
	Details    SegmentDetails `json:"details"`
}

// SegmentDetails holds provider-specific display fields.
type SegmentDetails struct {
	Text          string `json:"text,omitempty"`
	Distance      string `json:"distance,omitempty"`
	FromStop      string `json:"from_stop,omitempty"`
	ToStop        string `json:"to_stop,omitempty"`
	RouteName     string `json:"route_name,omitempty"`
	TransportType string `json:"transport_type,omitempty"`
	TransportName string `json:"transport_name,omitempty"`
	StopsCount    int    `json:"stops_count,omitempty"`
	Note          string `json:"note,omitempty"`
}

// Instruction is a human-readable step.
type Instruction struct {
	Step     int    `json:"step"`
	Action   string `json:"action"`
	Details  string `json:"details,omitempty"`
	From     string `json:"from,omitempty"`
	To       string `json:"to,omitempty"`
	Distance string `json:"distance,omitempty"`
	Time     string `json:"time,omitempty"`
	Waiting  string `json:"waiting,omitempty"`
}

// modeDisplay and modeIcon are used by every provider so results look the
// same regardless of where they came from.
var (
	modeDisplay = map[TravelMode]string{
		ModeTransit:    "Public transport",
		ModeCar:        "Car",
		ModePedestrian: "On foot",
		ModeBicycle:    "Bicycle",
	}
	modeIcon = map[TravelMode]string{
		ModeTransit:    "🚌",
		ModeCar:        "🚗",
		ModePedestrian: "🚶",
		ModeBicycle:    "🚲",
	}
)

// ModeDisplay returns the display label for mode.
func ModeDisplay(mode TravelMode) string {
	if s, ok := modeDisplay[mode]; ok {
		return s
	}
	return "Route"
}

// ModeIcon returns the icon for mode.
func ModeIcon(mode TravelMode) string {
	if s, ok := modeIcon[mode]; ok {
		return s
	}
	return "📍"
}
