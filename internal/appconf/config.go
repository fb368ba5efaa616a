package appconf

import (
	"time"

	"github.com/bilbao-transit/gtfsjson/internal/logging"
	"github.com/bilbao-transit/gtfsjson/internal/utils"
)

type Environment int

const (
	Development Environment = iota
	Test
	Production
)

// ParseEnvironment maps "development" / "test" / "production" to an
// Environment; anything else is Development.
func ParseEnvironment(s string) Environment {
	switch s {
	case "test":
		return Test
	case "production":
		return Production
	default:
		return Development
	}
}

func (e Environment) String() string {
	switch e {
	case Test:
		return "test"
	case Production:
		return "production"
	default:
		return "development"
	}
}

// FetchConfig controls the remote feed download.
type FetchConfig struct {
	URL             string        `json:"url" yaml:"url" validate:"omitempty,url"`
	Timeout         time.Duration `json:"timeout" yaml:"timeout" validate:"gte=0"`
	MaxArchiveBytes int64         `json:"max_archive_bytes" yaml:"max_archive_bytes" validate:"gte=0"`
	AuthHeaderKey   string        `json:"auth_header_key" yaml:"auth_header_key"`
	AuthHeaderValue string        `json:"auth_header_value" yaml:"auth_header_value"`
}

// Config is the root configuration shared by all subcommands.
type Config struct {
	Env             Environment            `json:"-" yaml:"-"`
	EnvName         string                 `json:"env" yaml:"env" validate:"omitempty,oneof=development test production"`
	DataDir         string                 `json:"data_dir" yaml:"data_dir" validate:"required"`
	OutputPath      string                 `json:"output" yaml:"output" validate:"required"`
	StatePath       string                 `json:"state_db" yaml:"state_db"`
	MetricsPath     string                 `json:"metrics_textfile" yaml:"metrics_textfile"`
	Verbose         bool                   `json:"verbose" yaml:"verbose"`
	EncodePolylines bool                   `json:"encode_polylines" yaml:"encode_polylines"`
	Bounds          utils.CoordinateBounds `json:"bounds" yaml:"bounds"`
	Fetch           FetchConfig            `json:"fetch" yaml:"fetch"`
	Log             logging.Config         `json:"log" yaml:"log"`
}

const (
	DefaultDataDir         = "gtfs"
	DefaultOutputPath      = "gtfs/gtfs-data.json"
	DefaultFeedURL         = "https://cms.metrobilbao.eus/get/open_data/horarios/es"
	DefaultFetchTimeout    = 5 * time.Minute
	DefaultMaxArchiveBytes = 200 * 1024 * 1024
)

// DefaultBounds is the Metro Bilbao service area with a small buffer.
var DefaultBounds = utils.CoordinateBounds{
	MinLat: 42.9,
	MaxLat: 43.5,
	MinLon: -3.2,
	MaxLon: -2.6,
}

// Default returns a config usable without any file.
func Default() Config {
	cfg := Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.DataDir == "" {
		c.DataDir = DefaultDataDir
	}
	if c.OutputPath == "" {
		c.OutputPath = DefaultOutputPath
	}
	if c.Bounds == (utils.CoordinateBounds{}) {
		c.Bounds = DefaultBounds
	}
	if c.Fetch.URL == "" {
		c.Fetch.URL = DefaultFeedURL
	}
	if c.Fetch.Timeout == 0 {
		c.Fetch.Timeout = DefaultFetchTimeout
	}
	if c.Fetch.MaxArchiveBytes == 0 {
		c.Fetch.MaxArchiveBytes = DefaultMaxArchiveBytes
	}
	c.Env = ParseEnvironment(c.EnvName)
	c.EnvName = c.Env.String()
}
