package gtfs

import (
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"slices"

	"github.com/bilbao-transit/gtfsjson/internal/feed"
	"github.com/bilbao-transit/gtfsjson/internal/logging"
	"github.com/bilbao-transit/gtfsjson/internal/models"
)

// ReusePolicy decides, per derived entity class, whether a conversion run
// copies the structure from a prior document or rebuilds it from the raw
// tables. Only stops, routes and shapes are ever reused; each depends on a
// single table and is reused only when that table is not in the changed set.
// Without a prior document or a changed set every class is rebuilt.
type ReusePolicy struct {
	changed map[string]struct{}
	prior   *models.Document
}

// NewReusePolicy builds a policy. prior is only read.
func NewReusePolicy(changed []string, prior *models.Document) *ReusePolicy {
	set := make(map[string]struct{}, len(changed))
	for _, name := range changed {
		set[name] = struct{}{}
	}
	return &ReusePolicy{changed: set, prior: prior}
}

// FullRecompute reports whether the run rebuilds every class.
func (p *ReusePolicy) FullRecompute() bool {
	return p == nil || p.prior == nil || len(p.changed) == 0
}

func (p *ReusePolicy) unchanged(table feed.TableName) bool {
	_, changed := p.changed[string(table)]
	return !changed
}

func (p *ReusePolicy) ShouldReuseStops() bool {
	return !p.FullRecompute() && p.prior.StopsByID != nil && p.unchanged(feed.Stops)
}

func (p *ReusePolicy) ShouldReuseRoutes() bool {
	return !p.FullRecompute() && p.prior.RoutesByID != nil && p.unchanged(feed.Routes)
}

func (p *ReusePolicy) ShouldReuseShapes() bool {
	return !p.FullRecompute() && p.prior.ShapesByID != nil && p.unchanged(feed.Shapes)
}

// ShouldReuseDynamic is always false: trips, stop times, service numbers and
// calendars are rebuilt on every run so they stay consistent with whatever
// static structures were reused.
func (p *ReusePolicy) ShouldReuseDynamic() bool {
	return false
}

// ChangedTables returns the changed set in sorted order.
func (p *ReusePolicy) ChangedTables() []string {
	if p == nil {
		return nil
	}
	return slices.Sorted(maps.Keys(p.changed))
}

// ReusePlan is a snapshot of the policy's decisions for logging.
type ReusePlan struct {
	FullRecompute bool
	Changed       []string
	Stops         bool
	Routes        bool
	Shapes        bool
	Dynamic       bool
}

func (p *ReusePolicy) Plan() ReusePlan {
	return ReusePlan{
		FullRecompute: p.FullRecompute(),
		Changed:       p.ChangedTables(),
		Stops:         p.ShouldReuseStops(),
		Routes:        p.ShouldReuseRoutes(),
		Shapes:        p.ShouldReuseShapes(),
		Dynamic:       p.ShouldReuseDynamic(),
	}
}

// Mode names the plan for run records: "full" or "selective".
func (plan ReusePlan) Mode() string {
	if plan.FullRecompute {
		return "full"
	}
	return "selective"
}

func (p *ReusePolicy) priorStops() map[string]models.Stop {
	return maps.Clone(p.prior.StopsByID)
}

func (p *ReusePolicy) priorRoutes() map[string]models.Route {
	return maps.Clone(p.prior.RoutesByID)
}

func (p *ReusePolicy) priorShapes() map[string]models.Shape {
	shapes := make(map[string]models.Shape, len(p.prior.ShapesByID))
	for id, s := range p.prior.ShapesByID {
		shapes[id] = s.Clone()
	}
	return shapes
}

// LoadPriorDocument reads a previous output document. A missing or corrupt
// file yields nil, which makes the next run a full recompute.
func LoadPriorDocument(path string, logger *slog.Logger) *models.Document {
	if logger == nil {
		logger = slog.Default()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logging.LogOperation(logger, "no_prior_document", slog.String("path", path))
		} else {
			logging.LogWarning(logger, "could not read prior document", slog.String("path", path), slog.String("error", err.Error()))
		}
		return nil
	}

	var doc models.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		logging.LogWarning(logger, "could not parse prior document", slog.String("path", path), slog.String("error", err.Error()))
		return nil
	}

	logging.LogOperation(logger, "prior_document_loaded",
		slog.String("path", path),
		slog.Int("stops", len(doc.StopsByID)),
		slog.Int("routes", len(doc.RoutesByID)),
		slog.Int("shapes", len(doc.ShapesByID)))
	return &doc
}
