package models

// StopTimeEvent is one scheduled call of a trip at a stop. Arrival and
// Departure are seconds since midnight of the service day and may exceed
// 86400 for trips running past midnight.
type StopTimeEvent struct {
	StopID    string   `json:"stop_id"`
	Seq       int      `json:"seq"`
	Arrival   int      `json:"arrival"`
	Departure int      `json:"departure"`
	ShapeDist *float64 `json:"shape_dist"`
}

type Trip struct {
	ID            string          `json:"id"`
	RouteID       string          `json:"route_id"`
	ServiceID     string          `json:"service_id"`
	ShapeID       string          `json:"shape_id"`
	DirectionID   string          `json:"direction_id"`
	StopTimes     []StopTimeEvent `json:"stop_times"`
	ServiceNumber string          `json:"service_number,omitempty"`
}

// FirstDeparture returns the departure of the first event, or 0 for a trip
// without events.
func (t *Trip) FirstDeparture() int {
	if len(t.StopTimes) == 0 {
		return 0
	}
	return t.StopTimes[0].Departure
}

// Float64Ptr is a convenience for building events with a known distance.
func Float64Ptr(v float64) *float64 {
	return &v
}
