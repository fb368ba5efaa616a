package feed

import "slices"

// TableName is a feed file name such as "stops.txt".
type TableName string

const (
	Agency        TableName = "agency.txt"
	Stops         TableName = "stops.txt"
	Routes        TableName = "routes.txt"
	Trips         TableName = "trips.txt"
	StopTimes     TableName = "stop_times.txt"
	Shapes        TableName = "shapes.txt"
	Calendar      TableName = "calendar.txt"
	CalendarDates TableName = "calendar_dates.txt"
)

// AllTables lists every table the converter reads, in load order.
var AllTables = []TableName{Agency, Stops, Routes, Trips, StopTimes, Shapes, Calendar, CalendarDates}

// StaticTables change rarely and their derived structures may be reused
// between runs.
var StaticTables = []TableName{Stops, Shapes, Routes, Agency}

// DynamicTables are rebuilt on every run.
var DynamicTables = []TableName{StopTimes, Calendar, CalendarDates, Trips}

// RequiredTables must be non-empty for a feed to be usable.
var RequiredTables = []TableName{Stops, Routes, Trips, StopTimes}

// OptionalTables may be missing or empty.
var OptionalTables = []TableName{Agency, Shapes, Calendar, CalendarDates}

// IsKnown reports whether name is one of the tables the converter reads.
func IsKnown(name string) bool {
	return slices.Contains(AllTables, TableName(name))
}

// Record is one CSV row keyed by column name.
type Record map[string]string

// Get returns the raw value of column, or "" when absent.
func (r Record) Get(column string) string {
	return r[column]
}

// Table is an ordered list of rows.
type Table []Record

// Tables holds every loaded table. A table that was not found is present as
// an empty Table.
type Tables map[TableName]Table

// Get returns the named table, or nil when it was never loaded.
func (t Tables) Get(name TableName) Table {
	return t[name]
}

// Empty reports whether the named table has no rows.
func (t Tables) Empty(name TableName) bool {
	return len(t[name]) == 0
}
