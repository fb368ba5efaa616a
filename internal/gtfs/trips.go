package gtfs

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/bilbao-transit/gtfsjson/internal/feed"
	"github.com/bilbao-transit/gtfsjson/internal/logging"
	"github.com/bilbao-transit/gtfsjson/internal/models"
)

// AssembledTrips holds the trip indexes produced by AssembleTrips. Ordered
// lists trips in trips.txt order and drives every order-sensitive step.
type AssembledTrips struct {
	ByID      map[string]*models.Trip
	ByShapeID map[string][]*models.Trip
	Ordered   []*models.Trip
	Projected int
}

// AssembleTrips groups stop times under their trips, sorted by sequence.
// Trips without stop times are dropped. Events missing shape_dist on a trip
// with a known shape are projected onto that shape from their stop's
// coordinates. A repeated trip_id keeps its first row.
func AssembleTrips(trips, stopTimes feed.Table, stops map[string]models.Stop, shapes map[string]*ShapeGeometry, logger *slog.Logger) (*AssembledTrips, error) {
	if logger == nil {
		logger = slog.Default()
	}

	eventsByTrip, err := groupStopTimes(stopTimes)
	if err != nil {
		return nil, err
	}

	result := &AssembledTrips{
		ByID:      make(map[string]*models.Trip, len(trips)),
		ByShapeID: make(map[string][]*models.Trip),
	}

	seen := make(map[string]struct{}, len(trips))
	for _, rec := range trips {
		id := rec["trip_id"]
		if _, dup := seen[id]; dup {
			logging.LogWarning(logger, "duplicate trip_id, keeping first row", slog.String("trip_id", id))
			continue
		}
		seen[id] = struct{}{}

		events := eventsByTrip[id]
		if len(events) == 0 {
			continue
		}
		// Each trip owns its events even if ids repeat in stop_times.
		delete(eventsByTrip, id)

		trip := &models.Trip{
			ID:          id,
			RouteID:     rec["route_id"],
			ServiceID:   rec["service_id"],
			ShapeID:     rec["shape_id"],
			DirectionID: rec["direction_id"],
			StopTimes:   events,
		}

		if trip.ShapeID != "" && hasMissingShapeDist(events) {
			if shape, ok := shapes[trip.ShapeID]; ok {
				result.Projected += projectStopTimes(events, stops, shape)
			}
		}

		result.ByID[id] = trip
		result.Ordered = append(result.Ordered, trip)
		if trip.ShapeID != "" {
			result.ByShapeID[trip.ShapeID] = append(result.ByShapeID[trip.ShapeID], trip)
		}
	}

	return result, nil
}

func groupStopTimes(rows feed.Table) (map[string][]models.StopTimeEvent, error) {
	grouped := make(map[string][]models.StopTimeEvent)
	var order []string

	for i, rec := range rows {
		row := i + 1
		seq, err := parseIntField(feed.StopTimes, row, rec, "stop_sequence")
		if err != nil {
			return nil, err
		}
		arrival, err := parseTimeField(feed.StopTimes, row, rec, "arrival_time")
		if err != nil {
			return nil, err
		}
		departure, err := parseTimeField(feed.StopTimes, row, rec, "departure_time")
		if err != nil {
			return nil, err
		}
		dist, err := parseOptionalFloatField(feed.StopTimes, row, rec, "shape_dist_traveled")
		if err != nil {
			return nil, err
		}

		tripID := rec["trip_id"]
		if _, seen := grouped[tripID]; !seen {
			order = append(order, tripID)
		}
		grouped[tripID] = append(grouped[tripID], models.StopTimeEvent{
			StopID:    rec["stop_id"],
			Seq:       seq,
			Arrival:   arrival,
			Departure: departure,
			ShapeDist: dist,
		})
	}

	for _, tripID := range order {
		events := grouped[tripID]
		slices.SortStableFunc(events, func(a, b models.StopTimeEvent) int {
			return a.Seq - b.Seq
		})
		for i := 1; i < len(events); i++ {
			if events[i].Seq == events[i-1].Seq {
				return nil, &DataFormatError{
					Table: string(feed.StopTimes),
					Field: "stop_sequence",
					Value: fmt.Sprint(events[i].Seq),
					Err:   fmt.Errorf("duplicate sequence in trip %s", tripID),
				}
			}
		}
	}

	return grouped, nil
}

func hasMissingShapeDist(events []models.StopTimeEvent) bool {
	for _, ev := range events {
		if ev.ShapeDist == nil {
			return true
		}
	}
	return false
}

// projectStopTimes fills missing shape distances in place and returns how
// many events were projected. Events whose stop is not indexed stay nil.
func projectStopTimes(events []models.StopTimeEvent, stops map[string]models.Stop, shape *ShapeGeometry) int {
	projected := 0
	for i := range events {
		if events[i].ShapeDist != nil {
			continue
		}
		stop, ok := stops[events[i].StopID]
		if !ok {
			continue
		}
		d := shape.ProjectNearest(stop.Lat, stop.Lon)
		events[i].ShapeDist = &d
		projected++
	}
	return projected
}
