package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bilbao-transit/gtfsjson/internal/feed"
	"github.com/bilbao-transit/gtfsjson/internal/utils"
)

var bilbaoBounds = utils.CoordinateBounds{MinLat: 42.9, MaxLat: 43.5, MinLon: -3.2, MaxLon: -2.6}

func validTables() feed.Tables {
	return feed.Tables{
		feed.Agency: {{"agency_id": "MB", "agency_name": "Metro Bilbao"}},
		feed.Stops: {
			{"stop_id": "ETX", "stop_name": "Etxebarri", "stop_lat": "43.2470", "stop_lon": "-2.8930"},
			{"stop_id": "PLE", "stop_name": "Plentzia", "stop_lat": "43.4050", "stop_lon": "-2.9480"},
		},
		feed.Routes: {{"route_id": "L1", "route_short_name": "L1"}},
		feed.Trips:  {{"trip_id": "T1", "route_id": "L1", "service_id": "WD", "shape_id": "SH1"}},
		feed.StopTimes: {
			{"trip_id": "T1", "stop_id": "ETX", "stop_sequence": "1", "arrival_time": "08:00:00", "departure_time": "08:00:00"},
			{"trip_id": "T1", "stop_id": "PLE", "stop_sequence": "2", "arrival_time": "08:30:00", "departure_time": "08:30:00"},
		},
		feed.Shapes:        {{"shape_id": "SH1", "shape_pt_lat": "43.2470", "shape_pt_lon": "-2.8930", "shape_pt_sequence": "1"}},
		feed.Calendar:      {{"service_id": "WD", "monday": "1"}},
		feed.CalendarDates: {{"service_id": "HOL", "date": "20261225", "exception_type": "1"}},
	}
}

func messages(findings []Finding) []string {
	out := make([]string, 0, len(findings))
	for _, f := range findings {
		out = append(out, f.Message)
	}
	return out
}

func TestCheckLoadNotices(t *testing.T) {
	r := CheckLoadNotices([]feed.Notice{
		{Table: feed.Shapes, Severity: feed.SeverityWarning, Message: "File not found: shapes.txt"},
		{Table: feed.Trips, Severity: feed.SeverityError, Message: "Error loading trips.txt: boom"},
	})

	require.Len(t, r.Errors, 1)
	assert.Equal(t, "Error loading trips.txt: boom", r.Errors[0].Message)
	assert.Equal(t, KindIO, r.Errors[0].Kind)
	require.Len(t, r.Warnings, 1)
	assert.Equal(t, "File not found: shapes.txt", r.Warnings[0].Message)
	assert.Equal(t, SeverityWarning, r.Warnings[0].Severity)
}

func TestCheckCompleteness(t *testing.T) {
	assert.Empty(t, CheckCompleteness(validTables()).Errors)

	tables := validTables()
	tables[feed.Routes] = feed.Table{}
	delete(tables, feed.Shapes)

	r := CheckCompleteness(tables)
	assert.Equal(t, []string{"Required file is missing or empty: routes.txt"}, messages(r.Errors))
	assert.Equal(t, []string{"Optional file is missing or empty: shapes.txt"}, messages(r.Warnings))
	assert.Equal(t, KindMissingData, r.Errors[0].Kind)
}

func TestCheckCoordinates(t *testing.T) {
	testCases := []struct {
		name    string
		lat     string
		lon     string
		invalid bool
	}{
		{name: "Inside", lat: "43.26", lon: "-2.93"},
		{name: "OnEdge", lat: "42.9", lon: "-2.6"},
		{name: "Origin", lat: "0", lon: "0", invalid: true},
		{name: "North", lat: "43.6", lon: "-2.93", invalid: true},
		{name: "West", lat: "43.26", lon: "-3.3", invalid: true},
		{name: "NotANumber", lat: "abc", lon: "-2.93", invalid: true},
		{name: "Empty", lat: "", lon: "", invalid: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			stops := feed.Table{{"stop_id": "S", "stop_lat": tc.lat, "stop_lon": tc.lon}}
			r := CheckCoordinates(stops, bilbaoBounds)
			if !tc.invalid {
				assert.Empty(t, r.Errors)
				return
			}
			require.Len(t, r.Errors, 1)
			assert.Equal(t, "Found 1 stops with invalid coordinates", r.Errors[0].Message)
			assert.Equal(t, KindDataFormat, r.Errors[0].Kind)
		})
	}
}

func TestCheckReferences_Valid(t *testing.T) {
	r := CheckReferences(validTables())
	assert.Empty(t, r.Errors)
	assert.Empty(t, r.Warnings)
}

func TestCheckReferences_CountsEveryOffendingRow(t *testing.T) {
	tables := validTables()
	base := CheckReferences(tables)
	require.Empty(t, base.Errors)

	for i := 1; i <= 3; i++ {
		tables[feed.StopTimes] = append(tables[feed.StopTimes], feed.Record{
			"trip_id": "GHOST", "stop_id": "ETX", "stop_sequence": "1",
		})
		r := CheckReferences(tables)
		require.Len(t, r.Errors, 1)
		assert.Equal(t, i, r.Errors[0].Count)
		assert.Equal(t, KindMissingReference, r.Errors[0].Kind)
	}
	assert.Equal(t, "Found 3 stop_times with invalid trip_id references",
		CheckReferences(tables).Errors[0].Message)
}

func TestCheckReferences_AllKinds(t *testing.T) {
	tables := validTables()
	tables[feed.Trips] = append(tables[feed.Trips],
		feed.Record{"trip_id": "T2", "route_id": "L9", "service_id": "HOL", "shape_id": "SH9"},
		feed.Record{"trip_id": "T3", "route_id": "L1", "service_id": "NONE"},
	)
	tables[feed.StopTimes] = append(tables[feed.StopTimes],
		feed.Record{"trip_id": "T2", "stop_id": "NOWHERE", "stop_sequence": "1"},
	)

	r := CheckReferences(tables)
	assert.Equal(t, []string{
		"Found 1 trips with invalid route_id references",
		"Found 1 trips with invalid service_id references",
		"Found 1 stop_times with invalid stop_id references",
	}, messages(r.Errors))
	assert.Equal(t, []string{"Found 1 trips with invalid shape_id references"}, messages(r.Warnings))
}

func TestCheckSchedule(t *testing.T) {
	row := func(trip, seq, arr, dep string) feed.Record {
		return feed.Record{"trip_id": trip, "stop_sequence": seq, "arrival_time": arr, "departure_time": dep}
	}

	testCases := []struct {
		name     string
		rows     feed.Table
		errors   []string
		warnings []string
	}{
		{
			name: "Clean",
			rows: feed.Table{
				row("T1", "2", "08:05:00", "08:06:00"),
				row("T1", "1", "08:00:00", "08:00:00"),
				row("T1", "3", "08:10:00", "08:10:00"),
			},
		},
		{
			name: "PastMidnight",
			rows: feed.Table{
				row("T1", "1", "23:55:00", "23:56:00"),
				row("T1", "2", "24:05:00", "24:05:00"),
			},
		},
		{
			name: "EmptyTimesSkipped",
			rows: feed.Table{
				row("T1", "1", "08:00:00", "08:00:00"),
				row("T1", "2", "", ""),
				row("T1", "3", "08:10:00", "08:10:00"),
			},
		},
		{
			name: "Gap",
			rows: feed.Table{
				row("T1", "1", "08:00:00", "08:00:00"),
				row("T1", "3", "08:10:00", "08:10:00"),
				row("T2", "2", "09:00:00", "09:00:00"),
			},
			warnings: []string{"Found 2 trips with non-continuous stop sequences"},
		},
		{
			name: "Regression",
			rows: feed.Table{
				row("T1", "1", "08:10:00", "08:10:00"),
				row("T1", "2", "08:05:00", "08:05:00"),
				row("T1", "3", "08:00:00", "08:00:00"),
			},
			errors: []string{"Found 1 trips with non-monotonic times"},
		},
		{
			name: "LexicalOrder",
			rows: feed.Table{
				row("T1", "1", "9:00:00", "9:00:00"),
				row("T1", "2", "10:00:00", "10:00:00"),
			},
			errors: []string{"Found 1 trips with non-monotonic times"},
		},
		{
			name: "NonNumericSequence",
			rows: feed.Table{
				row("T1", "1", "08:00:00", "08:00:00"),
				row("T1", "x", "08:05:00", "08:05:00"),
				row("T1", "2", "08:10:00", "08:10:00"),
			},
			errors: []string{"Found 1 stop_times with non-numeric stop_sequence"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r := CheckSchedule(tc.rows)
			assert.Equal(t, tc.errors, nilIfEmpty(messages(r.Errors)))
			assert.Equal(t, tc.warnings, nilIfEmpty(messages(r.Warnings)))
		})
	}
}

func nilIfEmpty(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	return s
}
