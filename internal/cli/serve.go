package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/serroba/sketchbook/internal/api"
	"github.com/serroba/sketchbook/internal/library"
	"github.com/serroba/sketchbook/internal/session"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

// errLeftover explains how to get past an unclean exit.
func errLeftover(dir string) error {
	return fmt.Errorf("%w: %s holds unsaved work; run `sketchbook recover <name>` or pass --discard", session.ErrLeftover, dir)
}

// startSession opens name, or a new document when name is empty.
func (app *App) startSession(ctx context.Context, lib *library.Library, name string, discard bool) (*session.Session, error) {
	if session.HasLeftover(app.cfg.WorkingDir) {
		if !discard {
			return nil, errLeftover(app.cfg.WorkingDir)
		}

		app.logger.Warn("discarding leftover working directory", "dir", app.cfg.WorkingDir)

		if err := session.Discard(app.cfg.WorkingDir); err != nil {
			return nil, err
		}
	}

	cfg, err := app.sessionConfig(lib)
	if err != nil {
		return nil, err
	}

	if name == "" {
		return session.New(ctx, cfg)
	}

	return session.Open(ctx, cfg, name)
}

func newServeCmd(app *App) *cobra.Command {
	var (
		addr    string
		discard bool
	)

	cmd := &cobra.Command{
		Use:   "serve [name]",
		Short: "Serve a sketchbook to a renderer over HTTP and WebSocket",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var name string
			if len(args) == 1 {
				name = args[0]
			}

			if addr == "" {
				addr = app.cfg.Addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			lib, closeLib, err := app.openLibrary(ctx)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer closeLib()

			sess, err := app.startSession(ctx, lib, name, discard)
			if err != nil {
				return writeErr(cmd, err)
			}

			srv := api.NewServer(api.ServerConfig{Session: sess, Library: lib, Logger: app.logger})

			serveErr := app.serve(ctx, cmd, srv, addr)

			srv.Close()

			if err := app.finish(sess); err != nil {
				return writeErr(cmd, errors.Join(serveErr, err))
			}

			if serveErr != nil {
				return writeErr(cmd, serveErr)
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config)")
	cmd.Flags().BoolVar(&discard, "discard", false, "Discard unsaved work left by an unclean exit")

	return cmd
}

func (app *App) serve(ctx context.Context, cmd *cobra.Command, srv *api.Server, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Listening on http://%s/\n", ln.Addr())

	errCh := make(chan error, 1)

	go func() {
		errCh <- httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		// Hijacked WebSocket connections are not tracked by Shutdown.
		_ = httpServer.Close()
	}

	return nil
}

// finish saves a named dirty document and closes the session. Unnamed work
// is dropped with a warning.
func (app *App) finish(sess *session.Session) error {
	ctx := context.Background()

	st := sess.State()

	var saveErr error

	switch {
	case !st.Dirty:
	case st.Name == "":
		app.logger.Warn("closing unnamed sketchbook with unsaved strokes", "strokes", st.StrokeCounter)
	default:
		path, err := sess.Save(ctx, "")
		if err != nil {
			saveErr = fmt.Errorf("save on exit: %w", err)
		} else {
			app.logger.Info("saved on exit", "name", st.Name, "path", path)
		}
	}

	if saveErr != nil {
		// Keep the working directory so the next start can recover it.
		return saveErr
	}

	return sess.Close(ctx)
}
