// Package cli implements the sketchbook command line.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/serroba/sketchbook/internal/archive"
	"github.com/serroba/sketchbook/internal/config"
	"github.com/serroba/sketchbook/internal/library"
	"github.com/serroba/sketchbook/internal/logging"
	"github.com/serroba/sketchbook/internal/session"
	"github.com/serroba/sketchbook/internal/thumbnail"
	"github.com/spf13/cobra"
)

// App holds the global flags and the configuration they resolve to.
type App struct {
	ConfigPath string
	LibraryDir string
	WorkingDir string
	LogLevel   string
	JSON       bool

	cfg    config.Config
	logger *slog.Logger
}

// NewRootCmd builds the sketchbook command tree.
func NewRootCmd() *cobra.Command {
	app := &App{}

	cmd := &cobra.Command{
		Use:          "sketchbook",
		Short:        "Infinite-canvas sketchbooks paged from disk",
		SilenceUsage: true,
		Example: strings.TrimSpace(`
  # Serve a new sketchbook to a local renderer
  sketchbook serve

  # Open a saved one
  sketchbook serve doodles

  # What is in the library?
  sketchbook list --sort date --order desc
`),
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return app.load(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&app.ConfigPath, "config", envOr("SKETCHBOOK_CONFIG", ""), "Config file (default: ~/.sketchbook/config.json)")
	cmd.PersistentFlags().StringVar(&app.LibraryDir, "library", "", "Library directory (overrides config)")
	cmd.PersistentFlags().StringVar(&app.WorkingDir, "workdir", "", "Working directory (overrides config)")
	cmd.PersistentFlags().StringVar(&app.LogLevel, "log-level", "", "Log level (debug|info|warn|error)")
	cmd.PersistentFlags().BoolVar(&app.JSON, "json", false, "Print JSON instead of tables")

	cmd.AddCommand(newServeCmd(app))
	cmd.AddCommand(newListCmd(app))
	cmd.AddCommand(newInfoCmd(app))
	cmd.AddCommand(newDrawCmd(app))
	cmd.AddCommand(newRecoverCmd(app))
	cmd.AddCommand(newRenameCmd(app))
	cmd.AddCommand(newDeleteCmd(app))

	return cmd
}

// Execute runs the command line and returns the process exit code.
func Execute() int {
	if err := NewRootCmd().Execute(); err != nil {
		return 1
	}

	return 0
}

func (app *App) load(cmd *cobra.Command) error {
	cfg, err := config.Load(app.ConfigPath)
	if err != nil {
		return err
	}

	if app.LibraryDir != "" {
		cfg.LibraryDir = app.LibraryDir
	}

	if app.WorkingDir != "" {
		cfg.WorkingDir = app.WorkingDir
	}

	if app.LogLevel != "" {
		cfg.LogLevel = app.LogLevel
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(cmd.ErrOrStderr(), cfg.LogLevel)
	if err != nil {
		return err
	}

	app.cfg = cfg
	app.logger = logger

	return nil
}

// openLibrary opens the library with its catalog. The returned function
// closes the catalog.
func (app *App) openLibrary(ctx context.Context) (*library.Library, func(), error) {
	if err := os.MkdirAll(app.cfg.LibraryDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create library directory: %w", err)
	}

	cat, err := library.OpenCatalog(ctx, filepath.Join(app.cfg.LibraryDir, library.CatalogFile))
	if err != nil {
		app.logger.Warn("catalog unavailable, listing without it", "error", err)

		cat = nil
	}

	lib, err := library.New(library.Config{Dir: app.cfg.LibraryDir, Catalog: cat, Logger: app.logger})
	if err != nil {
		if cat != nil {
			_ = cat.Close()
		}

		return nil, nil, err
	}

	closeFn := func() {
		if cat != nil {
			_ = cat.Close()
		}
	}

	return lib, closeFn, nil
}

func (app *App) sessionConfig(lib *library.Library) (session.Config, error) {
	codec, err := archive.New(archive.Config{LibraryDir: app.cfg.LibraryDir, Logger: app.logger})
	if err != nil {
		return session.Config{}, err
	}

	return session.Config{
		WorkingDir: app.cfg.WorkingDir,
		Codec:      codec,
		Library:    lib,
		Renderer: thumbnail.NewRenderer(thumbnail.Config{
			SheetShrink:   app.cfg.SheetShrink,
			LibraryShrink: app.cfg.LibraryShrink,
		}),
		Viewport:        app.cfg.Viewport,
		Margin:          app.cfg.Margin,
		ReadConcurrency: app.cfg.ReadConcurrency,
		Logger:          app.logger,
	}, nil
}

func envOr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}

	return d
}

func writeErr(cmd *cobra.Command, err error) error {
	fmt.Fprintln(cmd.ErrOrStderr(), err.Error())

	return err
}
