// Package gtfsdb keeps the converter's state between runs: the content
// fingerprint of every source table and a log of conversion runs.
package gtfsdb

import (
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/mattn/go-sqlite3" // CGo-based SQLite driver

	"github.com/bilbao-transit/gtfsjson/internal/appconf"
	"github.com/bilbao-transit/gtfsjson/internal/logging"
)

// Config controls where the state database lives.
type Config struct {
	DBPath  string
	Env     appconf.Environment
	Verbose bool
}

// Client is the main entry point for the state database.
type Client struct {
	config Config
	DB     *sql.DB
	logger *slog.Logger
}

// NewClient opens the database at config.DBPath and applies the schema.
func NewClient(config Config) (*Client, error) {
	logger := slog.Default().With(slog.String("component", "state_db"))

	db, err := createDB(config, logger)
	if err != nil {
		return nil, fmt.Errorf("unable to create DB: %w", err)
	} else if config.Verbose {
		logging.LogOperation(logger, "state_db_ready", slog.String("path", config.DBPath))
	}

	return &Client{
		config: config,
		DB:     db,
		logger: logger,
	}, nil
}

func (c *Client) Close() error {
	return c.DB.Close()
}

func (c *Client) GetDBPath() string {
	return c.config.DBPath
}
