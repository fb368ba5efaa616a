package gtfs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/google/uuid"

	"github.com/bilbao-transit/gtfsjson/internal/clock"
	"github.com/bilbao-transit/gtfsjson/internal/feed"
	"github.com/bilbao-transit/gtfsjson/internal/logging"
	"github.com/bilbao-transit/gtfsjson/internal/metrics"
	"github.com/bilbao-transit/gtfsjson/internal/models"
	"github.com/bilbao-transit/gtfsjson/internal/utils"
)

// Counts summarizes one conversion run.
type Counts struct {
	Stops          int
	Routes         int
	Shapes         int
	Trips          int
	ServiceNumbers int
	Projected      int
	Calendar       int
	CalendarDates  int
}

// Result is returned by a successful Convert.
type Result struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Plan       ReusePlan
	Counts     Counts
	Notices    []feed.Notice
	Document   *models.Document
}

// Converter runs the conversion pipeline: stops, routes, shapes, trips,
// service numbers and calendars, then writes the document.
type Converter struct {
	config  Config
	logger  *slog.Logger
	clock   clock.Clock
	metrics *metrics.Metrics
}

func NewConverter(config Config, clk clock.Clock, m *metrics.Metrics, logger *slog.Logger) *Converter {
	if clk == nil {
		clk = clock.RealClock{}
	}
	if m == nil {
		m = metrics.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Converter{
		config:  config,
		logger:  logger.With(slog.String("component", "converter")),
		clock:   clk,
		metrics: m,
	}
}

// Convert builds the document from the tables in the data directory,
// reusing static structures where policy allows, and writes it atomically to
// the output path. A nil policy means a full recompute. On error nothing is
// written.
func (c *Converter) Convert(ctx context.Context, policy *ReusePolicy) (*Result, error) {
	if policy == nil {
		policy = NewReusePolicy(nil, nil)
	}

	result := &Result{
		RunID:     uuid.NewString(),
		StartedAt: c.clock.Now(),
		Plan:      policy.Plan(),
	}
	logger := c.logger.With(slog.String("run_id", result.RunID))

	logging.LogOperation(logger, "conversion_started",
		slog.String("mode", result.Plan.Mode()),
		slog.Any("changed", result.Plan.Changed))
	if c.config.Verbose {
		logger.Debug("reuse plan", slog.String("plan", spew.Sdump(result.Plan)))
	}

	doc, err := c.build(ctx, policy, result, logger)
	if err != nil {
		logging.LogError(logger, "conversion failed", err)
		return nil, err
	}

	start := time.Now()
	if err := WriteDocument(c.config.OutputPath, doc); err != nil {
		logging.LogError(logger, "writing document failed", err)
		return nil, err
	}
	c.metrics.ObserveStage("write", start)

	result.Document = doc
	result.FinishedAt = c.clock.Now()
	c.metrics.MarkSuccess(result.FinishedAt)

	logging.LogOperation(logger, "conversion_finished",
		slog.String("output", c.config.OutputPath),
		slog.Int("stops", result.Counts.Stops),
		slog.Int("routes", result.Counts.Routes),
		slog.Int("shapes", result.Counts.Shapes),
		slog.Int("trips", result.Counts.Trips),
		slog.Int("service_numbers", result.Counts.ServiceNumbers))
	if c.config.Verbose {
		logger.Debug("run counts", slog.String("counts", spew.Sdump(result.Counts)))
	}

	return result, nil
}

func (c *Converter) build(ctx context.Context, policy *ReusePolicy, result *Result, logger *slog.Logger) (*models.Document, error) {
	start := time.Now()
	tables, notices, err := feed.LoadDir(ctx, c.config.DataDir, feed.LoadOptions{Strict: true, Logger: logger})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &IOError{Op: "load", Path: c.config.DataDir, Err: err}
	}
	result.Notices = notices
	c.metrics.ObserveStage("load", start)

	doc := models.NewDocument()

	start = time.Now()
	if policy.ShouldReuseStops() {
		doc.StopsByID = policy.priorStops()
		logging.LogOperation(logger, "stops_reused", slog.Int("count", len(doc.StopsByID)))
	} else {
		if doc.StopsByID, err = IndexStops(tables.Get(feed.Stops)); err != nil {
			return nil, err
		}
	}
	result.Counts.Stops = len(doc.StopsByID)
	c.metrics.RecordEntities("stops", policy.ShouldReuseStops(), result.Counts.Stops)
	c.metrics.ObserveStage("stops", start)

	start = time.Now()
	if policy.ShouldReuseRoutes() {
		doc.RoutesByID = policy.priorRoutes()
		logging.LogOperation(logger, "routes_reused", slog.Int("count", len(doc.RoutesByID)))
	} else {
		doc.RoutesByID = IndexRoutes(tables.Get(feed.Routes))
	}
	result.Counts.Routes = len(doc.RoutesByID)
	c.metrics.RecordEntities("routes", policy.ShouldReuseRoutes(), result.Counts.Routes)
	c.metrics.ObserveStage("routes", start)

	start = time.Now()
	geometries, err := c.shapes(policy, tables, doc, logger)
	if err != nil {
		return nil, err
	}
	result.Counts.Shapes = len(doc.ShapesByID)
	c.metrics.RecordEntities("shapes", policy.ShouldReuseShapes(), result.Counts.Shapes)
	c.metrics.ObserveStage("shapes", start)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start = time.Now()
	assembled, err := AssembleTrips(tables.Get(feed.Trips), tables.Get(feed.StopTimes), doc.StopsByID, geometries, logger)
	if err != nil {
		return nil, err
	}
	doc.TripsByID = assembled.ByID
	doc.TripsByShapeID = assembled.ByShapeID
	result.Counts.Trips = len(assembled.ByID)
	result.Counts.Projected = assembled.Projected
	c.metrics.RecordEntities("trips", false, result.Counts.Trips)
	c.metrics.ObserveStage("trips", start)

	start = time.Now()
	result.Counts.ServiceNumbers = AssignServiceNumbers(assembled.Ordered, doc.StopsByID)
	c.metrics.ServiceNumbersAssigned.Add(float64(result.Counts.ServiceNumbers))
	c.metrics.ObserveStage("service_numbers", start)

	doc.Calendar = calendarRecords(tables.Get(feed.Calendar))
	doc.CalendarDates = calendarRecords(tables.Get(feed.CalendarDates))
	result.Counts.Calendar = len(doc.Calendar)
	result.Counts.CalendarDates = len(doc.CalendarDates)

	return doc, nil
}

// shapes fills doc.ShapesByID and returns the geometries used for
// projection. Reused shapes are rebuilt into geometry from the copied
// document form.
func (c *Converter) shapes(policy *ReusePolicy, tables feed.Tables, doc *models.Document, logger *slog.Logger) (map[string]*ShapeGeometry, error) {
	if policy.ShouldReuseShapes() {
		doc.ShapesByID = policy.priorShapes()
		geometries := make(map[string]*ShapeGeometry, len(doc.ShapesByID))
		for id, s := range doc.ShapesByID {
			geometries[id] = ShapeGeometryFromModel(s)
		}
		logging.LogOperation(logger, "shapes_reused", slog.Int("count", len(doc.ShapesByID)))
		return geometries, nil
	}

	geometries, err := BuildShapes(tables.Get(feed.Shapes))
	if err != nil {
		return nil, err
	}
	for id, g := range geometries {
		doc.ShapesByID[id] = g.Model(c.config.EncodePolylines)
	}
	c.checkShapeRegion(geometries, logger)
	return geometries, nil
}

// checkShapeRegion warns when the shapes reach outside the configured
// network bounds, which usually means swapped or mistyped coordinates.
func (c *Converter) checkShapeRegion(geometries map[string]*ShapeGeometry, logger *slog.Logger) {
	expected := c.config.Bounds
	if expected == (utils.CoordinateBounds{}) {
		return
	}
	region := ComputeRegionBounds(geometries)
	if region == nil || expected.Encloses(*region) {
		return
	}
	logging.LogWarning(logger, "shapes extend outside network bounds",
		slog.Float64("min_lat", region.MinLat),
		slog.Float64("max_lat", region.MaxLat),
		slog.Float64("min_lon", region.MinLon),
		slog.Float64("max_lon", region.MaxLon))
}

func calendarRecords(rows feed.Table) []models.CalendarRecord {
	records := make([]models.CalendarRecord, len(rows))
	for i, rec := range rows {
		records[i] = models.CalendarRecord(rec)
	}
	return records
}

// MarshalDocument serializes doc compactly. Map keys are sorted, so equal
// documents always produce equal bytes.
func MarshalDocument(doc *models.Document) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// WriteDocument writes doc to path through a temporary file in the same
// directory and a rename, so readers never see a partial document.
func WriteDocument(path string, doc *models.Document) (err error) {
	data, err := MarshalDocument(doc)
	if err != nil {
		return fmt.Errorf("encoding document: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &IOError{Op: "mkdir", Path: dir, Err: err}
	}

	tmp, err := os.CreateTemp(dir, ".gtfs-data-*.json")
	if err != nil {
		return &IOError{Op: "create", Path: dir, Err: err}
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return &IOError{Op: "write", Path: tmp.Name(), Err: err}
	}
	if err = tmp.Close(); err != nil {
		return &IOError{Op: "close", Path: tmp.Name(), Err: err}
	}
	if err = os.Chmod(tmp.Name(), 0o644); err != nil {
		return &IOError{Op: "chmod", Path: tmp.Name(), Err: err}
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return &IOError{Op: "rename", Path: path, Err: err}
	}
	return nil
}

// IsDataFormatError reports whether err is or wraps a *DataFormatError.
func IsDataFormatError(err error) bool {
	var dfe *DataFormatError
	return errors.As(err, &dfe)
}
