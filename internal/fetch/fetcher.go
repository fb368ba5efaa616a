// Package fetch downloads the published feed archive and installs its tables
// into the data directory.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/OneBusAway/go-gtfs"
	"github.com/klauspost/compress/zip"
	"golang.org/x/time/rate"

	"github.com/bilbao-transit/gtfsjson/internal/appconf"
	"github.com/bilbao-transit/gtfsjson/internal/clock"
	"github.com/bilbao-transit/gtfsjson/internal/feed"
	"github.com/bilbao-transit/gtfsjson/internal/logging"
	"github.com/bilbao-transit/gtfsjson/internal/metrics"
)

// installTables must all be present in the data directory for an update to
// be routine rather than a first install.
var installTables = []feed.TableName{feed.Stops, feed.Routes, feed.Agency}

// refreshTables are replaced on a routine update. Shapes are refreshed with
// the schedules.
var refreshTables = append(slices.Clone(feed.DynamicTables), feed.Shapes)

const progressInterval = 2 * time.Second

// UpdateResult describes an install.
type UpdateResult struct {
	FirstInstall bool
	// Changed lists the table names to declare changed to the converter.
	Changed   []string
	Bytes     int64
	FetchedAt time.Time
}

type Fetcher struct {
	URL             string
	DataDir         string
	MaxBytes        int64
	AuthHeaderKey   string
	AuthHeaderValue string

	HTTPClient *http.Client
	Clock      clock.Clock
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
}

// New builds a Fetcher from the application config.
func New(cfg appconf.Config, m *metrics.Metrics, logger *slog.Logger) *Fetcher {
	return &Fetcher{
		URL:             cfg.Fetch.URL,
		DataDir:         cfg.DataDir,
		MaxBytes:        cfg.Fetch.MaxArchiveBytes,
		AuthHeaderKey:   cfg.Fetch.AuthHeaderKey,
		AuthHeaderValue: cfg.Fetch.AuthHeaderValue,
		HTTPClient: &http.Client{
			Timeout: cfg.Fetch.Timeout,
			Transport: &http.Transport{
				TLSHandshakeTimeout:   10 * time.Second,
				ResponseHeaderTimeout: 30 * time.Second,
				IdleConnTimeout:       90 * time.Second,
			},
		},
		Clock:   clock.RealClock{},
		Metrics: m,
		Logger:  logger,
	}
}

func (f *Fetcher) logger() *slog.Logger {
	if f.Logger == nil {
		return slog.Default().With(slog.String("component", "feed_fetcher"))
	}
	return f.Logger.With(slog.String("component", "feed_fetcher"))
}

// Update downloads the archive, checks that it parses as a feed and installs
// its tables. On a first install every table is copied; otherwise only the
// schedule tables and shapes are replaced and the rest is left untouched.
// Nothing on disk changes if download, parse or extraction fails.
func (f *Fetcher) Update(ctx context.Context) (UpdateResult, error) {
	logger := f.logger()

	data, err := f.download(ctx, logger)
	if err != nil {
		return UpdateResult{}, err
	}
	if f.Metrics != nil {
		f.Metrics.FeedDownloadBytes.Set(float64(len(data)))
	}

	static, err := gtfs.ParseStatic(data, gtfs.ParseStaticOptions{})
	if err != nil {
		return UpdateResult{}, fmt.Errorf("error parsing GTFS data: %w", err)
	}
	logging.LogOperation(logger, "feed_parsed",
		slog.Int("routes", len(static.Routes)),
		slog.Int("stops", len(static.Stops)),
		slog.Int("trips", len(static.Trips)),
		slog.Int("warnings", len(static.Warnings)))

	stagingDir, err := os.MkdirTemp("", "gtfsjson-fetch-*")
	if err != nil {
		return UpdateResult{}, fmt.Errorf("creating staging directory: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(stagingDir); err != nil {
			logging.LogError(logger, "failed to remove staging directory", err, slog.String("path", stagingDir))
		}
	}()

	extracted, err := extractTables(data, stagingDir)
	if err != nil {
		return UpdateResult{}, err
	}

	if err := os.MkdirAll(f.DataDir, 0o755); err != nil {
		return UpdateResult{}, fmt.Errorf("creating data directory: %w", err)
	}

	result := UpdateResult{
		FirstInstall: f.isFirstInstall(),
		Bytes:        int64(len(data)),
		FetchedAt:    f.now(),
	}

	if result.FirstInstall {
		logging.LogOperation(logger, "first_install_copying_all_tables", slog.Int("tables", len(extracted)))
		for _, name := range extracted {
			if err := installFile(filepath.Join(stagingDir, name), filepath.Join(f.DataDir, name)); err != nil {
				return UpdateResult{}, err
			}
		}
		for _, name := range slices.Concat(feed.StaticTables, feed.DynamicTables) {
			result.Changed = append(result.Changed, string(name))
		}
	} else {
		logging.LogOperation(logger, "routine_update_refreshing_schedule_tables")
		for _, name := range refreshTables {
			src := filepath.Join(stagingDir, string(name))
			if _, err := os.Stat(src); err != nil {
				logging.LogWarning(logger, "table missing from download", slog.String("table", string(name)))
				continue
			}
			if err := installFile(src, filepath.Join(f.DataDir, string(name))); err != nil {
				return UpdateResult{}, err
			}
			result.Changed = append(result.Changed, string(name))
		}
	}

	if f.Metrics != nil {
		f.Metrics.FeedTablesReplaced.Add(float64(len(result.Changed)))
	}
	logging.LogOperation(logger, "feed_installed",
		slog.Bool("first_install", result.FirstInstall),
		slog.Any("changed", result.Changed),
		slog.String("data_dir", f.DataDir))

	return result, nil
}

func (f *Fetcher) now() time.Time {
	if f.Clock == nil {
		return time.Now()
	}
	return f.Clock.Now()
}

func (f *Fetcher) isFirstInstall() bool {
	for _, name := range installTables {
		if _, err := os.Stat(filepath.Join(f.DataDir, string(name))); err != nil {
			return true
		}
	}
	return false
}

func isRemote(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}

// download reads the archive from a URL or, for a non-URL source, a local
// file.
func (f *Fetcher) download(ctx context.Context, logger *slog.Logger) ([]byte, error) {
	if f.URL == "" {
		return nil, errors.New("no feed URL configured")
	}

	if !isRemote(f.URL) {
		b, err := os.ReadFile(f.URL)
		if err != nil {
			return nil, fmt.Errorf("error reading local GTFS file: %w", err)
		}
		return b, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating GTFS request: %w", err)
	}
	if f.AuthHeaderKey != "" && f.AuthHeaderValue != "" {
		req.Header.Set(f.AuthHeaderKey, f.AuthHeaderValue)
	}

	client := f.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	logging.LogOperation(logger, "downloading_feed", slog.String("url", f.URL))
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error downloading GTFS data: %w", err)
	}
	defer logging.SafeCloseWithLogging(resp.Body, logger, "http_response_body")

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download GTFS data: received HTTP status %s", resp.Status)
	}

	maxBytes := f.MaxBytes
	if maxBytes <= 0 {
		maxBytes = appconf.DefaultMaxArchiveBytes
	}
	body := &progressReader{
		r:         io.LimitReader(resp.Body, maxBytes+1),
		total:     resp.ContentLength,
		logger:    logger,
		sometimes: &rate.Sometimes{Interval: progressInterval},
	}
	b, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("error reading GTFS data: %w", err)
	}
	if int64(len(b)) > maxBytes {
		return nil, fmt.Errorf("GTFS response exceeds size limit of %d bytes", maxBytes)
	}

	logging.LogOperation(logger, "feed_downloaded", slog.Int("bytes", len(b)))
	return b, nil
}

// progressReader logs the running byte count at most once per interval.
type progressReader struct {
	r         io.Reader
	read      int64
	total     int64
	logger    *slog.Logger
	sometimes *rate.Sometimes
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.r.Read(buf)
	p.read += int64(n)
	p.sometimes.Do(func() {
		p.logger.Info("download progress", slog.Int64("bytes", p.read), slog.Int64("total", p.total))
	})
	return n, err
}

// extractTables writes every top-level *.txt entry of the archive into dir
// and returns their names. Entries in subdirectories are ignored.
func extractTables(data []byte, dir string) ([]string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}

	var names []string
	for _, zf := range zr.File {
		name := zf.Name
		if zf.FileInfo().IsDir() || !strings.HasSuffix(name, ".txt") {
			continue
		}
		if strings.ContainsAny(name, `/\`) || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
			continue
		}

		if err := extractFile(zf, filepath.Join(dir, name)); err != nil {
			return nil, fmt.Errorf("extracting %s: %w", name, err)
		}
		names = append(names, name)
	}
	return names, nil
}

func extractFile(zf *zip.File, dst string) error {
	rc, err := zf.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// installFile copies src over dst through a temporary file and rename.
func installFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*")
	if err != nil {
		return fmt.Errorf("installing %s: %w", filepath.Base(dst), err)
	}
	if _, err := io.Copy(tmp, in); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("installing %s: %w", filepath.Base(dst), err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("installing %s: %w", filepath.Base(dst), err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("installing %s: %w", filepath.Base(dst), err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("installing %s: %w", filepath.Base(dst), err)
	}
	return nil
}
