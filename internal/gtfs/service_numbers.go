package gtfs

import (
	"fmt"
	"slices"
	"strings"

	"github.com/bilbao-transit/gtfsjson/internal/models"
)

// Terminal is a canonical end-of-line station.
type Terminal int

const (
	NoTerminal Terminal = iota
	Plentzia
	Etxebarri
	Sopela
	Larrabasterra
	Ibarbengoa
	SanInazio
	Kabiezes
	Basauri
)

var terminalNames = map[Terminal]string{
	Plentzia:      "Plentzia",
	Etxebarri:     "Etxebarri",
	Sopela:        "Sopela",
	Larrabasterra: "Larrabasterra",
	Ibarbengoa:    "Ibarbengoa",
	SanInazio:     "San Inazio",
	Kabiezes:      "Kabiezes",
	Basauri:       "Basauri",
}

func (t Terminal) String() string {
	return terminalNames[t]
}

// terminalMatchers is checked in order; the first key found in the stop name
// wins.
var terminalMatchers = []struct {
	key      string
	terminal Terminal
}{
	{"plentzia", Plentzia},
	{"etxebarri", Etxebarri},
	{"sopela", Sopela},
	{"larrabasterra", Larrabasterra},
	{"ibarbengoa", Ibarbengoa},
	{"san inazio", SanInazio},
	{"kabiezes", Kabiezes},
	{"basauri", Basauri},
}

// MatchTerminal maps a stop name to its terminal by case-insensitive
// substring match.
func MatchTerminal(stopName string) (Terminal, bool) {
	name := strings.ToLower(strings.TrimSpace(stopName))
	for _, m := range terminalMatchers {
		if strings.Contains(name, m.key) {
			return m.terminal, true
		}
	}
	return NoTerminal, false
}

// terminalPair is unordered; newTerminalPair sorts by canonical name.
type terminalPair struct {
	a, b Terminal
}

func newTerminalPair(x, y Terminal) terminalPair {
	if y.String() < x.String() {
		x, y = y, x
	}
	return terminalPair{a: x, b: y}
}

const (
	defaultRouteCode  = 99
	overflowRouteCode = 25
	overflowRewrite   = 26
)

var routeCodes = map[terminalPair]int{
	newTerminalPair(Etxebarri, Plentzia):      38,
	newTerminalPair(Etxebarri, Sopela):        37,
	newTerminalPair(Etxebarri, Larrabasterra): 35,
	newTerminalPair(Etxebarri, Ibarbengoa):    32,
	newTerminalPair(Etxebarri, SanInazio):     31,
	newTerminalPair(Basauri, Kabiezes):        25,
}

// RouteCode returns the numbering code for a pair of terminals in either
// order, or 99 for an unknown pair.
func RouteCode(origin, destination Terminal) int {
	if code, ok := routeCodes[newTerminalPair(origin, destination)]; ok {
		return code
	}
	return defaultRouteCode
}

// IsMainDirection reports whether trips ending at destination run towards
// one of the two hubs.
func IsMainDirection(destination Terminal) bool {
	return destination == Etxebarri || destination == Basauri
}

// FormatServiceNumber applies the route 25 overflow rule and renders the
// code followed by the two-digit number.
func FormatServiceNumber(routeCode, n int) string {
	if routeCode == overflowRouteCode && n > 99 {
		routeCode = overflowRewrite
		n -= 100
	}
	return fmt.Sprintf("%d%02d", routeCode, n)
}

type serviceGroupKey struct {
	serviceID string
	routeCode int
	main      bool
}

// AssignServiceNumbers numbers trips per (service, route code, direction)
// group in order of first departure. Main-direction groups count 0, 2, 4...
// and secondary groups 1, 3, 5... Trips whose first or last stop is not
// indexed or not a terminal keep no number. trips must be in a stable order
// since ties on departure keep that order. Returns the number of trips
// numbered.
func AssignServiceNumbers(trips []*models.Trip, stops map[string]models.Stop) int {
	groups := make(map[serviceGroupKey][]*models.Trip)
	var keys []serviceGroupKey

	for _, trip := range trips {
		if len(trip.StopTimes) == 0 {
			continue
		}
		first, ok := stops[trip.StopTimes[0].StopID]
		if !ok {
			continue
		}
		last, ok := stops[trip.StopTimes[len(trip.StopTimes)-1].StopID]
		if !ok {
			continue
		}

		origin, ok := MatchTerminal(first.Name)
		if !ok {
			continue
		}
		destination, ok := MatchTerminal(last.Name)
		if !ok {
			continue
		}

		key := serviceGroupKey{
			serviceID: trip.ServiceID,
			routeCode: RouteCode(origin, destination),
			main:      IsMainDirection(destination),
		}
		if _, seen := groups[key]; !seen {
			keys = append(keys, key)
		}
		groups[key] = append(groups[key], trip)
	}

	assigned := 0
	for _, key := range keys {
		group := groups[key]
		slices.SortStableFunc(group, func(a, b *models.Trip) int {
			return a.FirstDeparture() - b.FirstDeparture()
		})

		n := 1
		if key.main {
			n = 0
		}
		for _, trip := range group {
			trip.ServiceNumber = FormatServiceNumber(key.routeCode, n)
			n += 2
			assigned++
		}
	}

	return assigned
}
