// Package validation checks a raw feed for cross-table consistency. It never
// aborts on bad data: every check runs and reports findings, and the run
// ends in a single pass or fail verdict.
package validation

import (
	"context"
	"log/slog"

	"github.com/bilbao-transit/gtfsjson/internal/feed"
	"github.com/bilbao-transit/gtfsjson/internal/fetch"
	"github.com/bilbao-transit/gtfsjson/internal/logging"
	"github.com/bilbao-transit/gtfsjson/internal/metrics"
	"github.com/bilbao-transit/gtfsjson/internal/utils"
)

// Fetcher downloads and installs a fresh feed into the data directory.
type Fetcher interface {
	Update(ctx context.Context) (fetch.UpdateResult, error)
}

type Validator struct {
	dataDir string
	bounds  utils.CoordinateBounds
	fetcher Fetcher
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewValidator builds a validator over dataDir. fetcher may be nil, in which
// case an empty data directory fails without a recovery attempt.
func NewValidator(dataDir string, bounds utils.CoordinateBounds, fetcher Fetcher, m *metrics.Metrics, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{
		dataDir: dataDir,
		bounds:  bounds,
		fetcher: fetcher,
		metrics: m,
		logger:  logger.With(slog.String("component", "validator")),
	}
}

// Validate loads the feed and runs every check. When both stops and trips
// are empty it fetches the feed once and reloads before checking.
func (v *Validator) Validate(ctx context.Context) Result {
	result := v.validate(ctx)
	if v.metrics != nil {
		v.metrics.RecordFindings(len(result.Errors), len(result.Warnings))
	}
	LogSummary(v.logger, result)
	return result
}

func (v *Validator) validate(ctx context.Context) Result {
	tables, notices, err := v.load(ctx)
	if err != nil {
		return ioFailure("Error loading GTFS data: %v", err)
	}

	recovered := false
	if noLocalData(tables) {
		if v.fetcher == nil {
			return ioFailure("No GTFS data found locally and no download source is configured")
		}

		logging.LogWarning(v.logger, "no GTFS data found locally, downloading latest feed")
		update, err := v.fetcher.Update(ctx)
		if err != nil {
			logging.LogError(v.logger, "recovery download failed", err)
			return ioFailure("Failed to download GTFS data: %v", err)
		}
		logging.LogOperation(v.logger, "recovery_download_finished",
			slog.Bool("first_install", update.FirstInstall),
			slog.Any("changed", update.Changed))

		tables, notices, err = v.load(ctx)
		if err != nil {
			return ioFailure("Error loading GTFS data: %v", err)
		}
		if noLocalData(tables) {
			return ioFailure("Still no GTFS data found after update attempt")
		}
		recovered = true
	}

	report := CheckLoadNotices(notices).
		Merge(CheckCompleteness(tables)).
		Merge(CheckCoordinates(tables.Get(feed.Stops), v.bounds)).
		Merge(CheckReferences(tables)).
		Merge(CheckSchedule(tables.Get(feed.StopTimes)))

	return newResult(report, recovered)
}

func (v *Validator) load(ctx context.Context) (feed.Tables, []feed.Notice, error) {
	return feed.LoadDir(ctx, v.dataDir, feed.LoadOptions{Logger: v.logger})
}

func noLocalData(tables feed.Tables) bool {
	return tables.Empty(feed.Stops) && tables.Empty(feed.Trips)
}

func ioFailure(format string, args ...any) Result {
	var r Report
	r.addError(KindIO, checkLoad, 0, format, args...)
	return newResult(r, false)
}
