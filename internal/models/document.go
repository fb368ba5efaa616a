package models

// CalendarRecord is a calendar.txt or calendar_dates.txt row carried through
// unchanged.
type CalendarRecord map[string]string

// Document is the indexed output written by a conversion run.
type Document struct {
	StopsByID      map[string]Stop    `json:"stopsById"`
	RoutesByID     map[string]Route   `json:"routesById"`
	ShapesByID     map[string]Shape   `json:"shapesById"`
	TripsByID      map[string]*Trip   `json:"tripsById"`
	TripsByShapeID map[string][]*Trip `json:"tripsByShapeId"`
	Calendar       []CalendarRecord   `json:"calendar"`
	CalendarDates  []CalendarRecord   `json:"calendar_dates"`
}

// NewDocument returns a Document with every collection initialized so that
// empty sections serialize as {} or [] rather than null.
func NewDocument() *Document {
	return &Document{
		StopsByID:      make(map[string]Stop),
		RoutesByID:     make(map[string]Route),
		ShapesByID:     make(map[string]Shape),
		TripsByID:      make(map[string]*Trip),
		TripsByShapeID: make(map[string][]*Trip),
		Calendar:       []CalendarRecord{},
		CalendarDates:  []CalendarRecord{},
	}
}
