package gtfs

import (
	"unicode"
	"unicode/utf8"

	"github.com/bilbao-transit/gtfsjson/internal/feed"
	"github.com/bilbao-transit/gtfsjson/internal/models"
)

// IndexStops keys passenger stops by id. Rows with an empty name or a name
// starting with a digit are technical records and are skipped before their
// coordinates are parsed.
func IndexStops(rows feed.Table) (map[string]models.Stop, error) {
	stops := make(map[string]models.Stop, len(rows))

	for i, rec := range rows {
		name := rec["stop_name"]
		if !isPassengerStopName(name) {
			continue
		}

		lat, err := parseFloatField(feed.Stops, i+1, rec, "stop_lat")
		if err != nil {
			return nil, err
		}
		lon, err := parseFloatField(feed.Stops, i+1, rec, "stop_lon")
		if err != nil {
			return nil, err
		}

		id := rec["stop_id"]
		stops[id] = models.NewStop(id, name, lat, lon)
	}

	return stops, nil
}

func isPassengerStopName(name string) bool {
	if name == "" {
		return false
	}
	r, _ := utf8.DecodeRuneInString(name)
	return !unicode.IsDigit(r)
}
