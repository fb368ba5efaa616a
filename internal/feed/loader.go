package feed

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/bilbao-transit/gtfsjson/internal/logging"
)

const utf8BOM = "\ufeff"

type Severity int

const (
	SeverityWarning Severity = iota
	SeverityError
)

func (s Severity) String() string {
	if s == SeverityError {
		return "error"
	}
	return "warning"
}

// Notice describes a table that could not be loaded. Missing files are
// warnings; unreadable or corrupt files are errors.
type Notice struct {
	Table    TableName
	Severity Severity
	Message  string
	Err      error
}

// LoadOptions controls LoadDir.
type LoadOptions struct {
	// Strict makes an unreadable table a returned error instead of a
	// Notice. Missing tables are always notices.
	Strict bool
	Logger *slog.Logger
}

// LoadDir reads every known table from dir.
func LoadDir(ctx context.Context, dir string, opts LoadOptions) (Tables, []Notice, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default().With(slog.String("component", "feed_loader"))
	}

	tables := make(Tables, len(AllTables))
	var notices []Notice

	for _, name := range AllTables {
		if err := ctx.Err(); err != nil {
			return nil, notices, err
		}

		path := filepath.Join(dir, string(name))
		table, err := ReadTableFile(path)
		switch {
		case err == nil:
			tables[name] = table
			logging.LogOperation(logger, "table_loaded",
				slog.String("table", string(name)),
				slog.Int("records", len(table)))
		case errors.Is(err, fs.ErrNotExist):
			tables[name] = Table{}
			notices = append(notices, Notice{
				Table:    name,
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("File not found: %s", name),
				Err:      err,
			})
			logging.LogWarning(logger, "table not found, skipping", slog.String("table", string(name)))
		default:
			if opts.Strict {
				return nil, notices, fmt.Errorf("loading %s: %w", name, err)
			}
			tables[name] = Table{}
			notices = append(notices, Notice{
				Table:    name,
				Severity: SeverityError,
				Message:  fmt.Sprintf("Error loading %s: %v", name, err),
				Err:      err,
			})
			logging.LogError(logger, "table could not be loaded", err, slog.String("table", string(name)))
		}
	}

	return tables, notices, nil
}

// ReadTableFile parses one CSV file with a header row.
func ReadTableFile(path string) (Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return ReadTable(f)
}

// ReadTable parses CSV with a header row into records. A leading UTF-8 BOM is
// stripped and header names are trimmed. Short rows leave the trailing
// columns absent; extra cells are ignored.
func ReadTable(r io.Reader) (Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return Table{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, utf8BOM)
		}
		header[i] = strings.TrimSpace(h)
	}

	table := Table{}
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		rec := make(Record, len(header))
		for i, col := range header {
			if i < len(row) {
				rec[col] = row[i]
			}
		}
		table = append(table, rec)
	}

	return table, nil
}
