package gtfsdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bilbao-transit/gtfsjson/internal/feed"
	"github.com/bilbao-transit/gtfsjson/internal/logging"
)

// Run is one row of the conversion log.
type Run struct {
	ID             string
	StartedAt      time.Time
	FinishedAt     time.Time
	Mode           string
	ChangedFiles   []string
	Stops          int
	Routes         int
	Shapes         int
	Trips          int
	ServiceNumbers int
	Status         string
}

const (
	RunStatusSucceeded = "succeeded"
	RunStatusFailed    = "failed"
)

// SaveFingerprints replaces the stored fingerprint of every table in fps.
// Tables absent from fps are removed, so the stored set always mirrors the
// data directory at the time of the last successful run.
func (c *Client) SaveFingerprints(ctx context.Context, fps map[feed.TableName]string, at time.Time) (err error) {
	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin fingerprint transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM table_fingerprints`); err != nil {
		return fmt.Errorf("clearing fingerprints: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO table_fingerprints (name, sha256, updated_at) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing fingerprint insert: %w", err)
	}
	defer logging.SafeCloseWithLogging(stmt, c.logger, "fingerprint_statement")

	for name, sum := range fps {
		if _, err = stmt.ExecContext(ctx, string(name), sum, at.Unix()); err != nil {
			return fmt.Errorf("storing fingerprint for %s: %w", name, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit fingerprints: %w", err)
	}
	logging.LogOperation(c.logger, "fingerprints_saved", slog.Int("tables", len(fps)))
	return nil
}

// LoadFingerprints returns the stored fingerprints. An empty map means no
// successful run has been recorded yet.
func (c *Client) LoadFingerprints(ctx context.Context) (map[feed.TableName]string, error) {
	rows, err := c.DB.QueryContext(ctx, `SELECT name, sha256 FROM table_fingerprints`)
	if err != nil {
		return nil, fmt.Errorf("querying fingerprints: %w", err)
	}
	defer logging.SafeCloseWithLogging(rows, c.logger, "database_rows")

	fps := make(map[feed.TableName]string)
	for rows.Next() {
		var name, sum string
		if err := rows.Scan(&name, &sum); err != nil {
			return nil, fmt.Errorf("scanning fingerprint: %w", err)
		}
		fps[feed.TableName(name)] = sum
	}
	return fps, rows.Err()
}

// RecordRun appends a run to the conversion log.
func (c *Client) RecordRun(ctx context.Context, run Run) error {
	_, err := c.DB.ExecContext(ctx, `
		INSERT INTO conversion_runs
			(id, started_at, finished_at, mode, changed_files, stops, routes, shapes, trips, service_numbers, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.StartedAt.UnixMilli(),
		run.FinishedAt.UnixMilli(),
		run.Mode,
		strings.Join(run.ChangedFiles, ","),
		run.Stops,
		run.Routes,
		run.Shapes,
		run.Trips,
		run.ServiceNumbers,
		run.Status,
	)
	if err != nil {
		return fmt.Errorf("recording run %s: %w", run.ID, err)
	}
	return nil
}

// LastRun returns the most recently finished run, or sql.ErrNoRows.
func (c *Client) LastRun(ctx context.Context) (Run, error) {
	var (
		run                 Run
		startedAt, finished int64
		changed             string
	)
	err := c.DB.QueryRowContext(ctx, `
		SELECT id, started_at, finished_at, mode, changed_files, stops, routes, shapes, trips, service_numbers, status
		FROM conversion_runs
		ORDER BY finished_at DESC
		LIMIT 1`).Scan(
		&run.ID, &startedAt, &finished, &run.Mode, &changed,
		&run.Stops, &run.Routes, &run.Shapes, &run.Trips, &run.ServiceNumbers, &run.Status,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("querying last run: %w", err)
	}
	run.StartedAt = time.UnixMilli(startedAt)
	run.FinishedAt = time.UnixMilli(finished)
	run.ChangedFiles = splitList(changed)
	return run, nil
}
