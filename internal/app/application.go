// Package app wires configuration, logging, metrics and the state database
// into the three commands: convert, validate and update.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bilbao-transit/gtfsjson/gtfsdb"
	"github.com/bilbao-transit/gtfsjson/internal/appconf"
	"github.com/bilbao-transit/gtfsjson/internal/clock"
	"github.com/bilbao-transit/gtfsjson/internal/feed"
	"github.com/bilbao-transit/gtfsjson/internal/fetch"
	"github.com/bilbao-transit/gtfsjson/internal/gtfs"
	"github.com/bilbao-transit/gtfsjson/internal/logging"
	"github.com/bilbao-transit/gtfsjson/internal/metrics"
	"github.com/bilbao-transit/gtfsjson/internal/models"
	"github.com/bilbao-transit/gtfsjson/internal/validation"
)

// Application holds the dependencies shared by every command.
type Application struct {
	Config     appconf.Config
	GtfsConfig gtfs.Config
	Logger     *slog.Logger
	Clock      clock.Clock
	Metrics    *metrics.Metrics
	Fetcher    *fetch.Fetcher
	// StateDB is nil when no state path is configured.
	StateDB *gtfsdb.Client
}

// BuildApplication opens the state database when configured and builds the
// command dependencies. The caller must Close the application.
func BuildApplication(cfg appconf.Config, logger *slog.Logger) (*Application, error) {
	if logger == nil {
		logger = slog.Default()
	}

	m := metrics.NewWithLogger(logger)
	app := &Application{
		Config:     cfg,
		GtfsConfig: gtfs.ConfigFromApp(cfg),
		Logger:     logger,
		Clock:      clock.RealClock{},
		Metrics:    m,
		Fetcher:    fetch.New(cfg, m, logger),
	}

	if cfg.StatePath != "" {
		db, err := gtfsdb.NewClient(gtfsdb.Config{
			DBPath:  cfg.StatePath,
			Env:     cfg.Env,
			Verbose: cfg.Verbose,
		})
		if err != nil {
			return nil, fmt.Errorf("opening state database: %w", err)
		}
		app.StateDB = db
		logging.LogOperation(logger, "state_database_opened", slog.String("path", db.GetDBPath()))
	}

	return app, nil
}

// Close releases the state database.
func (app *Application) Close() error {
	if app.StateDB == nil {
		return nil
	}
	return app.StateDB.Close()
}

// ConvertOptions selects how a conversion decides what changed.
type ConvertOptions struct {
	// Changed is an explicit manifest of changed table file names. Nil means
	// no manifest.
	Changed []string
	// DetectChanges derives the manifest from stored table fingerprints.
	// It requires a state database and takes precedence over Changed.
	DetectChanges bool
}

// RunConvert performs one conversion and records it in the state database.
func (app *Application) RunConvert(ctx context.Context, opts ConvertOptions) (*gtfs.Result, error) {
	logger := app.Logger.With(slog.String("component", "convert_command"))

	changed := opts.Changed
	var fingerprints map[feed.TableName]string
	if opts.DetectChanges {
		if app.StateDB == nil {
			return nil, errors.New("change detection requires a state database")
		}
		var err error
		fingerprints, err = feed.Fingerprint(app.Config.DataDir)
		if err != nil {
			return nil, &gtfs.IOError{Op: "fingerprint", Path: app.Config.DataDir, Err: err}
		}
		changed, err = app.detectChanges(ctx, fingerprints, logger)
		if err != nil {
			return nil, err
		}
	}

	for _, name := range changed {
		if !feed.IsKnown(name) {
			logging.LogWarning(logger, "changed file is not a known table", slog.String("file", name))
		}
	}

	var prior *models.Document
	if changed != nil {
		prior = gtfs.LoadPriorDocument(app.Config.OutputPath, logger)
	}
	policy := gtfs.NewReusePolicy(changed, prior)

	converter := gtfs.NewConverter(app.GtfsConfig, app.Clock, app.Metrics, logger)
	startedAt := app.Clock.Now()
	result, convertErr := converter.Convert(ctx, policy)

	if err := app.recordRun(ctx, policy.Plan(), startedAt, result, convertErr, fingerprints, logger); err != nil {
		logging.LogError(logger, "failed to record conversion run", err)
	}
	app.writeMetrics(logger)

	if convertErr != nil {
		return nil, convertErr
	}
	return result, nil
}

// detectChanges compares fingerprints with the last stored set. Without a
// stored set it returns nil, which makes the run a full recompute.
func (app *Application) detectChanges(ctx context.Context, current map[feed.TableName]string, logger *slog.Logger) ([]string, error) {
	last, err := app.StateDB.LastRun(ctx)
	switch {
	case err == nil:
		logging.LogOperation(logger, "previous_run",
			slog.String("run_id", last.ID),
			slog.String("mode", last.Mode),
			slog.String("status", last.Status),
			slog.Time("finished_at", last.FinishedAt))
	case !errors.Is(err, sql.ErrNoRows):
		return nil, err
	}

	previous, err := app.StateDB.LoadFingerprints(ctx)
	if err != nil {
		return nil, err
	}
	if len(previous) == 0 {
		logging.LogOperation(logger, "no_stored_fingerprints_full_recompute")
		return nil, nil
	}

	changed := feed.ChangedTables(previous, current)
	logging.LogOperation(logger, "changes_detected", slog.Any("changed", changed))
	if changed == nil {
		changed = []string{}
	}
	return changed, nil
}

func (app *Application) recordRun(ctx context.Context, plan gtfs.ReusePlan, startedAt time.Time, result *gtfs.Result, convertErr error, fingerprints map[feed.TableName]string, logger *slog.Logger) error {
	if app.StateDB == nil {
		return nil
	}

	run := gtfsdb.Run{
		ID:           uuid.NewString(),
		StartedAt:    startedAt,
		FinishedAt:   app.Clock.Now(),
		Mode:         plan.Mode(),
		ChangedFiles: plan.Changed,
		Status:       gtfsdb.RunStatusFailed,
	}
	if convertErr == nil {
		run.ID = result.RunID
		run.StartedAt = result.StartedAt
		run.FinishedAt = result.FinishedAt
		run.Stops = result.Counts.Stops
		run.Routes = result.Counts.Routes
		run.Shapes = result.Counts.Shapes
		run.Trips = result.Counts.Trips
		run.ServiceNumbers = result.Counts.ServiceNumbers
		run.Status = gtfsdb.RunStatusSucceeded
	}

	if err := app.StateDB.RecordRun(ctx, run); err != nil {
		return err
	}
	app.Metrics.RecordDBStats(app.StateDB.DB)
	if app.Config.Verbose {
		counts, err := app.StateDB.TableCounts()
		if err != nil {
			logging.LogError(logger, "failed to count state tables", err)
		} else {
			logging.LogOperation(logger, "state_table_counts", slog.Any("counts", counts))
		}
	}

	if convertErr != nil {
		return nil
	}

	if fingerprints == nil {
		var err error
		fingerprints, err = feed.Fingerprint(app.Config.DataDir)
		if err != nil {
			return err
		}
	}
	if err := app.StateDB.SaveFingerprints(ctx, fingerprints, run.FinishedAt); err != nil {
		return err
	}
	logging.LogOperation(logger, "conversion_recorded", slog.String("run_id", run.ID))
	return nil
}

// RunValidate validates the data directory and writes the summary to w. A
// configured feed URL enables the one-shot recovery download.
func (app *Application) RunValidate(ctx context.Context, w io.Writer) (validation.Result, error) {
	var fetcher validation.Fetcher
	if app.Fetcher != nil && app.Config.Fetch.URL != "" {
		fetcher = app.Fetcher
	}

	v := validation.NewValidator(app.Config.DataDir, app.Config.Bounds, fetcher, app.Metrics, app.Logger)
	result := v.Validate(ctx)
	app.writeMetrics(app.Logger)

	if err := validation.WriteSummary(w, result); err != nil {
		return result, fmt.Errorf("writing summary: %w", err)
	}
	return result, nil
}

// RunUpdate fetches and installs the feed, then prints the changed table
// names one per line.
func (app *Application) RunUpdate(ctx context.Context, w io.Writer) (fetch.UpdateResult, error) {
	result, err := app.Fetcher.Update(ctx)
	app.writeMetrics(app.Logger)
	if err != nil {
		return fetch.UpdateResult{}, err
	}

	for _, name := range result.Changed {
		if _, err := fmt.Fprintln(w, name); err != nil {
			return result, fmt.Errorf("writing changed list: %w", err)
		}
	}
	return result, nil
}

func (app *Application) writeMetrics(logger *slog.Logger) {
	if app.Config.MetricsPath == "" {
		return
	}
	if err := app.Metrics.WriteTextfile(app.Config.MetricsPath); err != nil {
		logging.LogError(logger, "failed to write metrics textfile", err,
			slog.String("path", app.Config.MetricsPath))
	}
}
