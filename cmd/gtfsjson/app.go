package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/bilbao-transit/gtfsjson/internal/app"
	"github.com/bilbao-transit/gtfsjson/internal/appconf"
	"github.com/bilbao-transit/gtfsjson/internal/gtfs"
	"github.com/bilbao-transit/gtfsjson/internal/logging"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

// commonFlags are accepted by every command.
type commonFlags struct {
	configPath string
	dataDir    string
	statePath  string
	verbose    bool
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", "", "Path to a YAML or JSON config file")
	fs.StringVar(&c.dataDir, "data", "", "Directory holding the GTFS tables")
	fs.StringVar(&c.statePath, "state", "", "Path to the state database")
	fs.BoolVar(&c.verbose, "verbose", false, "Enable debug logging")
}

// loadConfig reads the config file and applies flag overrides on top.
func (c *commonFlags) loadConfig(apply func(*appconf.Config)) (appconf.Config, error) {
	cfg, err := appconf.LoadFromFile(c.configPath)
	if err != nil {
		return appconf.Config{}, err
	}
	if c.dataDir != "" {
		cfg.DataDir = c.dataDir
	}
	if c.statePath != "" {
		cfg.StatePath = c.statePath
	}
	if c.verbose {
		cfg.Verbose = true
		cfg.Log.Level = "debug"
	}
	if apply != nil {
		apply(&cfg)
	}
	if err := appconf.Validate(cfg); err != nil {
		return appconf.Config{}, err
	}
	return cfg, nil
}

// ParseChangedFiles splits a comma separated manifest. Blank entries are
// dropped and an empty input yields nil.
func ParseChangedFiles(input string) []string {
	if strings.TrimSpace(input) == "" {
		return nil
	}
	var files []string
	for _, name := range strings.Split(input, ",") {
		if name = strings.TrimSpace(name); name != "" {
			files = append(files, name)
		}
	}
	return files
}

// ReadChangedFiles reads a manifest with one table name per line, as printed
// by the update command.
func ReadChangedFiles(r io.Reader) ([]string, error) {
	files := []string{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if name := strings.TrimSpace(scanner.Text()); name != "" {
			files = append(files, name)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading changed files: %w", err)
	}
	return files, nil
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return exitUsage
	}

	switch args[0] {
	case "convert":
		return runConvert(ctx, args[1:], stdin, stderr)
	case "validate":
		return runValidate(ctx, args[1:], stdout, stderr)
	case "update":
		return runUpdate(ctx, args[1:], stdout, stderr)
	case "-h", "-help", "--help", "help":
		fmt.Fprint(stdout, usage)
		return exitOK
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", args[0], usage)
		return exitUsage
	}
}

// setup builds the logger and application for a command.
func setup(cfg appconf.Config, stderr io.Writer) (*app.Application, func(), error) {
	logger, logCloser := logging.Setup(cfg.Log, stderr)

	coreApp, err := app.BuildApplication(cfg, logger)
	if err != nil {
		logging.SafeCloseWithLogging(logCloser, logger, "log_file")
		return nil, nil, err
	}
	cleanup := func() {
		logging.SafeCloseWithLogging(coreApp, logger, "application")
		logging.SafeCloseWithLogging(logCloser, logger, "log_file")
	}
	return coreApp, cleanup, nil
}

func runConvert(ctx context.Context, args []string, stdin io.Reader, stderr io.Writer) int {
	fs := flag.NewFlagSet("convert", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		common        commonFlags
		output        string
		changed       string
		changedFile   string
		detectChanges bool
		polylines     bool
	)
	common.register(fs)
	fs.StringVar(&output, "out", "", "Path of the JSON document to write")
	fs.StringVar(&changed, "changed", "", "Comma separated table files that changed since the last run")
	fs.StringVar(&changedFile, "changed-file", "", `File listing changed tables one per line ("-" for stdin)`)
	fs.BoolVar(&detectChanges, "detect-changes", false, "Derive changed tables from stored fingerprints")
	fs.BoolVar(&polylines, "polylines", false, "Add an encoded polyline to every shape")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	cfg, err := common.loadConfig(func(cfg *appconf.Config) {
		if output != "" {
			cfg.OutputPath = output
		}
		if polylines {
			cfg.EncodePolylines = true
		}
	})
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitFailure
	}

	opts := app.ConvertOptions{
		Changed:       ParseChangedFiles(changed),
		DetectChanges: detectChanges,
	}
	if changedFile != "" {
		files, err := readManifest(changedFile, stdin)
		if err != nil {
			fmt.Fprintln(stderr, err)
			return exitFailure
		}
		opts.Changed = append(opts.Changed, files...)
	}

	coreApp, cleanup, err := setup(cfg, stderr)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitFailure
	}
	defer cleanup()

	if _, err := coreApp.RunConvert(ctx, opts); err != nil {
		var formatErr *gtfs.DataFormatError
		if errors.As(err, &formatErr) {
			fmt.Fprintf(stderr, "conversion failed, invalid data: %v\n", err)
		} else {
			fmt.Fprintf(stderr, "conversion failed: %v\n", err)
		}
		return exitFailure
	}
	return exitOK
}

func readManifest(path string, stdin io.Reader) ([]string, error) {
	if path == "-" {
		return ReadChangedFiles(stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening changed file list: %w", err)
	}
	defer f.Close()
	return ReadChangedFiles(f)
}

func runValidate(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		common  commonFlags
		offline bool
	)
	common.register(fs)
	fs.BoolVar(&offline, "offline", false, "Never download the feed, even when no local data exists")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	cfg, err := common.loadConfig(func(cfg *appconf.Config) {
		if offline {
			cfg.Fetch.URL = ""
		}
	})
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitFailure
	}

	coreApp, cleanup, err := setup(cfg, stderr)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitFailure
	}
	defer cleanup()

	result, err := coreApp.RunValidate(ctx, stdout)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitFailure
	}
	if !result.Passed {
		return exitFailure
	}
	return exitOK
}

func runUpdate(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("update", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		common commonFlags
		url    string
	)
	common.register(fs)
	fs.StringVar(&url, "url", "", "Feed archive URL or local path")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	cfg, err := common.loadConfig(func(cfg *appconf.Config) {
		if url != "" {
			cfg.Fetch.URL = url
		}
	})
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitFailure
	}

	coreApp, cleanup, err := setup(cfg, stderr)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitFailure
	}
	defer cleanup()

	if _, err := coreApp.RunUpdate(ctx, stdout); err != nil {
		fmt.Fprintf(stderr, "update failed: %v\n", err)
		return exitFailure
	}
	return exitOK
}
