package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/serroba/sketchbook/internal/session"
	"github.com/serroba/sketchbook/internal/stroke"
	"github.com/spf13/cobra"
)

// parsePoints reads "x,y x,y ..." into canvas points.
func parsePoints(s string) ([]stroke.Point, error) {
	fields := strings.Fields(s)
	points := make([]stroke.Point, 0, len(fields))

	for _, f := range fields {
		xs, ys, ok := strings.Cut(f, ",")
		if !ok {
			return nil, fmt.Errorf("point %q: want x,y", f)
		}

		x, err := strconv.ParseFloat(xs, 32)
		if err != nil {
			return nil, fmt.Errorf("point %q: %w", f, err)
		}

		y, err := strconv.ParseFloat(ys, 32)
		if err != nil {
			return nil, fmt.Errorf("point %q: %w", f, err)
		}

		points = append(points, stroke.Point{X: float32(x), Y: float32(y)})
	}

	return points, nil
}

type drawResult struct {
	Name   string `json:"name"`
	Path   string `json:"path"`
	Stroke uint64 `json:"stroke"`
	Chunk  string `json:"chunk"`
	Points int    `json:"points"`
}

func newDrawCmd(app *App) *cobra.Command {
	var (
		points string
		style  = stroke.DefaultStyle()
		sheet  int
	)

	cmd := &cobra.Command{
		Use:   "draw <name>",
		Short: "Add one stroke to a sketchbook and save it",
		Long: strings.TrimSpace(`
Add one stroke to the named sketchbook, creating it if it does not exist,
and save it back to the library. Points are canvas coordinates with y up.
`),
		Example: strings.TrimSpace(`
  sketchbook draw doodles --points "0,10 3,3 10,0 3,-3 0,-10"
  sketchbook draw doodles --sheet 1 --color 4 --thickness 2 --points "0,0 50,20 100,0"
`),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]

			pts, err := parsePoints(points)
			if err != nil {
				return writeErr(cmd, err)
			}

			res, err := app.draw(cmd.Context(), name, pts, style, sheet)
			if err != nil {
				return writeErr(cmd, err)
			}

			return writeOut(cmd, app, res, func(w io.Writer) {
				fmt.Fprintf(w, "Stroke %d (%d points, chunk %s) saved to %s\n",
					res.Stroke, res.Points, res.Chunk, nameStyle.Render(res.Name))
			})
		},
	}

	cmd.Flags().StringVar(&points, "points", "", `Stroke points as "x,y x,y ..."`)
	cmd.Flags().Uint8Var(&style.Color, "color", style.Color, "Palette color index")
	cmd.Flags().Uint8Var(&style.Thickness, "thickness", style.Thickness, "Thickness index")
	cmd.Flags().BoolVar(&style.Eraser, "eraser", false, "Draw with the background color")
	cmd.Flags().IntVar(&sheet, "sheet", -1, "Sheet index (default: the active sheet)")
	_ = cmd.MarkFlagRequired("points")

	return cmd
}

func (app *App) draw(ctx context.Context, name string, pts []stroke.Point, style stroke.Style, sheet int) (drawResult, error) {
	lib, closeLib, err := app.openLibrary(ctx)
	if err != nil {
		return drawResult{}, err
	}
	defer closeLib()

	cfg, err := app.sessionConfig(lib)
	if err != nil {
		return drawResult{}, err
	}

	open := name
	if !cfg.Codec.Exists(name) {
		open = ""
	}

	sess, err := app.startSession(ctx, lib, open, false)
	if err != nil {
		return drawResult{}, err
	}

	res, drawErr := drawAndSave(ctx, sess, name, pts, style, sheet)

	return res, errors.Join(drawErr, sess.Close(ctx))
}

func drawAndSave(ctx context.Context, sess *session.Session, name string, pts []stroke.Point, style stroke.Style, sheet int) (drawResult, error) {
	if sheet >= 0 {
		if err := sess.SwitchSheet(ctx, sheet); err != nil {
			return drawResult{}, err
		}
	}

	st, err := sess.FinalizeStroke(ctx, pts, style)
	if err != nil {
		return drawResult{}, err
	}

	path, err := sess.Save(ctx, name)
	if err != nil {
		return drawResult{}, err
	}

	return drawResult{Name: name, Path: path, Stroke: st.ID, Chunk: st.ChunkID.String(), Points: len(st.Points)}, nil
}
