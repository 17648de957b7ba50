package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/serroba/sketchbook/internal/session"
	"github.com/spf13/cobra"
)

func newRecoverCmd(app *App) *cobra.Command {
	var discard bool

	cmd := &cobra.Command{
		Use:   "recover [name]",
		Short: "Save or discard work left behind by an unclean exit",
		Long: strings.TrimSpace(`
A working directory that survives a session means the last run did not exit
cleanly. recover rebuilds the document from it and saves it to the library
under the given name; --discard throws it away instead.
`),
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			dir := app.cfg.WorkingDir

			if !session.HasLeftover(dir) {
				return writeErr(cmd, fmt.Errorf("%w in %s", session.ErrNoLeftover, dir))
			}

			if discard {
				if err := session.Discard(dir); err != nil {
					return writeErr(cmd, err)
				}

				return writeOut(cmd, app, map[string]string{"discarded": dir}, func(w io.Writer) {
					fmt.Fprintf(w, "Discarded %s\n", dir)
				})
			}

			if len(args) == 0 {
				return writeErr(cmd, errors.New("recover: a name to save under is required (or pass --discard)"))
			}

			lib, closeLib, err := app.openLibrary(ctx)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer closeLib()

			cfg, err := app.sessionConfig(lib)
			if err != nil {
				return writeErr(cmd, err)
			}

			sess, err := session.Recover(ctx, cfg)
			if err != nil {
				return writeErr(cmd, err)
			}

			path, err := sess.Save(ctx, args[0])
			if err != nil {
				// Leave the working directory for another attempt.
				return writeErr(cmd, err)
			}

			st := sess.State()

			if err := sess.Close(ctx); err != nil {
				return writeErr(cmd, err)
			}

			return writeOut(cmd, app, map[string]any{"name": args[0], "path": path, "sheets": len(st.Sheets), "strokeCounter": st.StrokeCounter},
				func(w io.Writer) {
					fmt.Fprintf(w, "Recovered %d sheet(s) into %s\n", len(st.Sheets), nameStyle.Render(args[0]))
				})
		},
	}

	cmd.Flags().BoolVar(&discard, "discard", false, "Delete the leftover working directory")

	return cmd
}
