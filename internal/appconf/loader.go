package appconf

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables that override file values.
const (
	EnvDataDir = "GTFSJSON_DATA_DIR"
	EnvOutput  = "GTFSJSON_OUTPUT"
	EnvFeedURL = "GTFSJSON_FEED_URL"
	EnvStateDB = "GTFSJSON_STATE_DB"
	EnvName    = "GTFSJSON_ENV"
)

// LoadFromFile reads a YAML or JSON config file, applies environment
// overrides and defaults, and validates the result. An empty path yields the
// defaults plus environment overrides.
func LoadFromFile(path string) (Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config %s: %w", path, err)
		}

		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			err = yaml.Unmarshal(data, &cfg)
		case ".json":
			err = json.Unmarshal(data, &cfg)
		default:
			return Config{}, fmt.Errorf("unsupported config format %q", filepath.Ext(path))
		}
		if err != nil {
			return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	if err := LoadDotEnv(""); err != nil {
		return Config{}, err
	}
	applyEnvOverrides(&cfg)
	cfg.applyDefaults()

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadDotEnv loads KEY=VALUE pairs from a .env file into the process
// environment without overwriting existing variables. A missing file is not
// an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(EnvDataDir); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv(EnvOutput); v != "" {
		cfg.OutputPath = v
	}
	if v := os.Getenv(EnvFeedURL); v != "" {
		cfg.Fetch.URL = v
	}
	if v := os.Getenv(EnvStateDB); v != "" {
		cfg.StatePath = v
	}
	if v := os.Getenv(EnvName); v != "" {
		cfg.EnvName = v
	}
}

// Validate checks struct tags and cross-field rules.
func Validate(cfg Config) error {
	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if cfg.Bounds.MinLat > cfg.Bounds.MaxLat || cfg.Bounds.MinLon > cfg.Bounds.MaxLon {
		return fmt.Errorf("invalid config: bounds min exceeds max")
	}
	if cfg.Env == Test && cfg.StatePath != "" && cfg.StatePath != ":memory:" {
		return fmt.Errorf("invalid config: test state database must use in-memory storage, got path: %s", cfg.StatePath)
	}
	return nil
}
