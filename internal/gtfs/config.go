package gtfs

import (
	"github.com/bilbao-transit/gtfsjson/internal/appconf"
	"github.com/bilbao-transit/gtfsjson/internal/utils"
)

// Config holds the settings a Converter needs.
type Config struct {
	DataDir         string
	OutputPath      string
	EncodePolylines bool
	// Bounds is the expected network area. Shapes reaching outside it are
	// logged. A zero value disables the check.
	Bounds  utils.CoordinateBounds
	Env     appconf.Environment
	Verbose bool
}

// ConfigFromApp extracts the converter settings from the application config.
func ConfigFromApp(cfg appconf.Config) Config {
	return Config{
		DataDir:         cfg.DataDir,
		OutputPath:      cfg.OutputPath,
		EncodePolylines: cfg.EncodePolylines,
		Bounds:          cfg.Bounds,
		Env:             cfg.Env,
		Verbose:         cfg.Verbose,
	}
}
