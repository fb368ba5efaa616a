package gtfs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bilbao-transit/gtfsjson/internal/feed"
)

func TestIndexStops(t *testing.T) {
	stops, err := IndexStops(rows(
		feed.Record{"stop_id": "DEU", "stop_name": "Deusto", "stop_lat": "43.2710", "stop_lon": "-2.9470"},
		feed.Record{"stop_id": "901", "stop_name": "1 Deusto", "stop_lat": "43.2711", "stop_lon": "-2.9471"},
		feed.Record{"stop_id": "X", "stop_name": "", "stop_lat": "43.0", "stop_lon": "-2.9"},
	))
	require.NoError(t, err)

	require.Len(t, stops, 1)
	deusto := stops["DEU"]
	assert.Equal(t, "Deusto", deusto.Name)
	assert.Equal(t, 43.2710, deusto.Lat)
	assert.Equal(t, -2.9470, deusto.Lon)

	for _, s := range stops {
		assert.False(t, s.Name[0] >= '0' && s.Name[0] <= '9')
	}
}

func TestIndexStops_MalformedCoordinate(t *testing.T) {
	_, err := IndexStops(rows(
		feed.Record{"stop_id": "S1", "stop_name": "Abando", "stop_lat": "north", "stop_lon": "-2.9"},
	))
	require.Error(t, err)

	var dfe *DataFormatError
	require.True(t, errors.As(err, &dfe))
	assert.Equal(t, "stops.txt", dfe.Table)
	assert.Equal(t, 1, dfe.Row)
	assert.Equal(t, "stop_lat", dfe.Field)
	assert.Equal(t, "north", dfe.Value)
}

func TestIndexStops_NonFiniteCoordinate(t *testing.T) {
	testCases := []struct {
		name  string
		lat   string
		lon   string
		field string
	}{
		{name: "NaN", lat: "NaN", lon: "-2.9", field: "stop_lat"},
		{name: "Inf", lat: "43.26", lon: "Inf", field: "stop_lon"},
		{name: "PlusInf", lat: "+Inf", lon: "-2.9", field: "stop_lat"},
		{name: "NegativeInfinity", lat: "43.26", lon: "-infinity", field: "stop_lon"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := IndexStops(rows(
				feed.Record{"stop_id": "S1", "stop_name": "Deusto", "stop_lat": tc.lat, "stop_lon": tc.lon},
			))
			var dfe *DataFormatError
			require.True(t, errors.As(err, &dfe))
			assert.Equal(t, tc.field, dfe.Field)
			assert.True(t, IsDataFormatError(err))
		})
	}
}

func TestIndexStops_FilteredRowsAreNotParsed(t *testing.T) {
	stops, err := IndexStops(rows(
		feed.Record{"stop_id": "901", "stop_name": "9 Technical", "stop_lat": "", "stop_lon": ""},
	))
	require.NoError(t, err)
	assert.Empty(t, stops)
}

func TestIndexRoutes(t *testing.T) {
	routes := IndexRoutes(rows(
		feed.Record{"route_id": "L1", "route_short_name": "L1", "route_long_name": "Etxebarri - Plentzia", "route_color": "F26522"},
		feed.Record{"route_id": "L2"},
	))

	require.Len(t, routes, 2)
	assert.Equal(t, "#F26522", routes["L1"].Color)
	assert.Equal(t, "#ffffff", routes["L1"].TextColor)
	assert.Equal(t, "#0066cc", routes["L2"].Color)
	assert.Equal(t, "", routes["L2"].ShortName)
}
