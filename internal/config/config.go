// Package config holds the settings of a sketchbook session. Values come
// from defaults, then an optional JSON file, then SKETCHBOOK_* environment
// variables; the CLI applies flags last.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/serroba/sketchbook/internal/chunk"
	"github.com/serroba/sketchbook/internal/document"
	"github.com/serroba/sketchbook/internal/logging"
	"github.com/serroba/sketchbook/internal/thumbnail"
)

// Environment variables.
const (
	EnvHome            = "SKETCHBOOK_HOME"
	EnvLibraryDir      = "SKETCHBOOK_LIBRARY"
	EnvWorkingDir      = "SKETCHBOOK_WORKDIR"
	EnvAddr            = "SKETCHBOOK_ADDR"
	EnvLogLevel        = "SKETCHBOOK_LOG_LEVEL"
	EnvMargin          = "SKETCHBOOK_MARGIN"
	EnvReadConcurrency = "SKETCHBOOK_READ_CONCURRENCY"
)

// FileName is the config file inside the home directory.
const FileName = "config.json"

// DefaultAddr is where the renderer bridge listens.
const DefaultAddr = "127.0.0.1:7420"

// Config is the configuration of one session.
type Config struct {
	LibraryDir      string         `json:"libraryDir"`
	WorkingDir      string         `json:"workingDir"`
	Margin          float64        `json:"margin"`
	Viewport        chunk.Viewport `json:"viewport"`
	SheetShrink     int            `json:"sheetShrink"`
	LibraryShrink   int            `json:"libraryShrink"`
	ReadConcurrency int            `json:"readConcurrency"`
	Addr            string         `json:"addr"`
	LogLevel        string         `json:"logLevel"`
}

// HomeDir returns the sketchbook home, ~/.sketchbook unless SKETCHBOOK_HOME is set.
func HomeDir() (string, error) {
	if v := strings.TrimSpace(os.Getenv(EnvHome)); v != "" {
		return v, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	return filepath.Join(home, ".sketchbook"), nil
}

// Default returns the defaults rooted at home.
func Default(home string) Config {
	return Config{
		LibraryDir:      filepath.Join(home, "library"),
		WorkingDir:      filepath.Join(home, ".work"),
		Margin:          chunk.DefaultMargin,
		Viewport:        chunk.Viewport{Width: 1920, Height: 1080},
		SheetShrink:     thumbnail.DefaultSheetShrink,
		LibraryShrink:   thumbnail.DefaultLibraryShrink,
		ReadConcurrency: document.DefaultReadConcurrency,
		Addr:            DefaultAddr,
		LogLevel:        "info",
	}
}

// Load builds the configuration: defaults under the home directory, then the
// JSON file at path (the home config file when path is empty; a missing
// default file is fine), then the environment.
func Load(path string) (Config, error) {
	home, err := HomeDir()
	if err != nil {
		return Config{}, fmt.Errorf("home directory: %w", err)
	}

	cfg := Default(home)
	explicit := path != ""

	if !explicit {
		path = filepath.Join(home, FileName)
	}

	b, err := os.ReadFile(path)

	switch {
	case err == nil:
		if err := json.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return Config{}, err
	}

	return cfg, cfg.Validate()
}

// ApplyEnv overrides fields from SKETCHBOOK_* variables read through getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv(EnvLibraryDir); v != "" {
		c.LibraryDir = v
	}

	if v := getenv(EnvWorkingDir); v != "" {
		c.WorkingDir = v
	}

	if v := getenv(EnvAddr); v != "" {
		c.Addr = v
	}

	if v := getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}

	if v := getenv(EnvMargin); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvMargin, err)
		}

		c.Margin = f
	}

	if v := getenv(EnvReadConcurrency); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvReadConcurrency, err)
		}

		c.ReadConcurrency = n
	}

	return nil
}

// Validate checks the values that have no sensible fallback.
func (c Config) Validate() error {
	var errs []error

	if c.LibraryDir == "" {
		errs = append(errs, errors.New("library directory is empty"))
	}

	if c.WorkingDir == "" {
		errs = append(errs, errors.New("working directory is empty"))
	}

	if c.LibraryDir != "" && filepath.Clean(c.LibraryDir) == filepath.Clean(c.WorkingDir) {
		errs = append(errs, errors.New("working directory must differ from the library directory"))
	}

	if math.IsNaN(c.Margin) || c.Margin < chunk.MinMargin {
		errs = append(errs, fmt.Errorf("margin must be at least %v, got %v", chunk.MinMargin, c.Margin))
	}

	if err := c.Viewport.Validate(); err != nil {
		errs = append(errs, err)
	}

	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}

	return nil
}
