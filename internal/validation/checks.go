package validation

import (
	"slices"
	"strconv"
	"strings"

	"github.com/bilbao-transit/gtfsjson/internal/feed"
	"github.com/bilbao-transit/gtfsjson/internal/utils"
)

const (
	checkLoad         = "load"
	checkCompleteness = "completeness"
	checkCoordinates  = "coordinates"
	checkReferences   = "references"
	checkSchedule     = "schedule"
)

// CheckLoadNotices turns table load notices into findings: missing files
// are warnings, unreadable files are errors.
func CheckLoadNotices(notices []feed.Notice) Report {
	var r Report
	for _, n := range notices {
		if n.Severity == feed.SeverityError {
			r.addError(KindIO, checkLoad, 0, "%s", n.Message)
		} else {
			r.addWarning(KindMissingData, checkLoad, 0, "%s", n.Message)
		}
	}
	return r
}

// CheckCompleteness requires stops, routes, trips and stop times to have
// rows. Empty optional tables are warnings.
func CheckCompleteness(tables feed.Tables) Report {
	var r Report
	for _, name := range feed.RequiredTables {
		if tables.Empty(name) {
			r.addError(KindMissingData, checkCompleteness, 0, "Required file is missing or empty: %s", name)
		}
	}
	for _, name := range feed.OptionalTables {
		if tables.Empty(name) {
			r.addWarning(KindMissingData, checkCompleteness, 0, "Optional file is missing or empty: %s", name)
		}
	}
	return r
}

// CheckCoordinates counts stops whose coordinates do not parse or fall
// outside bounds, edges included.
func CheckCoordinates(stops feed.Table, bounds utils.CoordinateBounds) Report {
	var r Report
	invalid := 0
	for _, rec := range stops {
		lat, latErr := strconv.ParseFloat(strings.TrimSpace(rec["stop_lat"]), 64)
		lon, lonErr := strconv.ParseFloat(strings.TrimSpace(rec["stop_lon"]), 64)
		if latErr != nil || lonErr != nil || !bounds.Contains(lat, lon) {
			invalid++
		}
	}
	if invalid > 0 {
		r.addError(KindDataFormat, checkCoordinates, invalid, "Found %d stops with invalid coordinates", invalid)
	}
	return r
}

func idSet(table feed.Table, column string) map[string]struct{} {
	ids := make(map[string]struct{}, len(table))
	for _, rec := range table {
		ids[rec[column]] = struct{}{}
	}
	return ids
}

// CheckReferences resolves the foreign keys of trips and stop times. Each
// offending row counts once per broken reference. A missing shape is only a
// warning since shapes are optional.
func CheckReferences(tables feed.Tables) Report {
	var r Report

	stopIDs := idSet(tables.Get(feed.Stops), "stop_id")
	routeIDs := idSet(tables.Get(feed.Routes), "route_id")
	tripIDs := idSet(tables.Get(feed.Trips), "trip_id")
	shapeIDs := idSet(tables.Get(feed.Shapes), "shape_id")
	serviceIDs := idSet(tables.Get(feed.Calendar), "service_id")
	for id := range idSet(tables.Get(feed.CalendarDates), "service_id") {
		serviceIDs[id] = struct{}{}
	}

	var badRoutes, badServices, badShapes int
	for _, trip := range tables.Get(feed.Trips) {
		if _, ok := routeIDs[trip["route_id"]]; !ok {
			badRoutes++
		}
		if _, ok := serviceIDs[trip["service_id"]]; !ok {
			badServices++
		}
		if shapeID := trip["shape_id"]; shapeID != "" {
			if _, ok := shapeIDs[shapeID]; !ok {
				badShapes++
			}
		}
	}

	var badTrips, badStops int
	for _, st := range tables.Get(feed.StopTimes) {
		if _, ok := tripIDs[st["trip_id"]]; !ok {
			badTrips++
		}
		if _, ok := stopIDs[st["stop_id"]]; !ok {
			badStops++
		}
	}

	if badRoutes > 0 {
		r.addError(KindMissingReference, checkReferences, badRoutes, "Found %d trips with invalid route_id references", badRoutes)
	}
	if badServices > 0 {
		r.addError(KindMissingReference, checkReferences, badServices, "Found %d trips with invalid service_id references", badServices)
	}
	if badShapes > 0 {
		r.addWarning(KindMissingReference, checkReferences, badShapes, "Found %d trips with invalid shape_id references", badShapes)
	}
	if badTrips > 0 {
		r.addError(KindMissingReference, checkReferences, badTrips, "Found %d stop_times with invalid trip_id references", badTrips)
	}
	if badStops > 0 {
		r.addError(KindMissingReference, checkReferences, badStops, "Found %d stop_times with invalid stop_id references", badStops)
	}
	return r
}

type scheduleEvent struct {
	seq       int
	arrival   string
	departure string
}

// CheckSchedule checks per trip that sequences run 1..n (warning) and that
// no arrival precedes the previous departure (error). Times are compared as
// raw strings, which orders zero-padded HH:MM:SS correctly including hours
// past 24. Empty times are skipped. Rows with a non-numeric stop_sequence
// are reported and left out.
func CheckSchedule(stopTimes feed.Table) Report {
	var r Report

	byTrip := make(map[string][]scheduleEvent)
	var order []string
	malformed := 0
	for _, st := range stopTimes {
		seq, err := strconv.Atoi(strings.TrimSpace(st["stop_sequence"]))
		if err != nil {
			malformed++
			continue
		}
		tripID := st["trip_id"]
		if _, seen := byTrip[tripID]; !seen {
			order = append(order, tripID)
		}
		byTrip[tripID] = append(byTrip[tripID], scheduleEvent{
			seq:       seq,
			arrival:   st["arrival_time"],
			departure: st["departure_time"],
		})
	}

	var gaps, regressions int
	for _, tripID := range order {
		events := byTrip[tripID]
		slices.SortStableFunc(events, func(a, b scheduleEvent) int {
			return a.seq - b.seq
		})

		for i, ev := range events {
			if ev.seq != i+1 {
				gaps++
				break
			}
		}

		prevDeparture := ""
		for _, ev := range events {
			if prevDeparture != "" && ev.arrival != "" && ev.arrival < prevDeparture {
				regressions++
				break
			}
			if ev.departure != "" {
				prevDeparture = ev.departure
			}
		}
	}

	if malformed > 0 {
		r.addError(KindDataFormat, checkSchedule, malformed, "Found %d stop_times with non-numeric stop_sequence", malformed)
	}
	if gaps > 0 {
		r.addWarning(KindDataFormat, checkSchedule, gaps, "Found %d trips with non-continuous stop sequences", gaps)
	}
	if regressions > 0 {
		r.addError(KindDataFormat, checkSchedule, regressions, "Found %d trips with non-monotonic times", regressions)
	}
	return r
}
