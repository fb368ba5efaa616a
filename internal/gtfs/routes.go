package gtfs

import (
	"github.com/bilbao-transit/gtfsjson/internal/feed"
	"github.com/bilbao-transit/gtfsjson/internal/models"
)

// IndexRoutes keys routes by id. Missing fields degrade to defaults.
func IndexRoutes(rows feed.Table) map[string]models.Route {
	routes := make(map[string]models.Route, len(rows))
	for _, rec := range rows {
		id := rec["route_id"]
		routes[id] = models.NewRoute(
			id,
			rec["route_short_name"],
			rec["route_long_name"],
			rec["route_color"],
			rec["route_text_color"],
		)
	}
	return routes
}
