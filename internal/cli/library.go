package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/serroba/sketchbook/internal/archive"
	"github.com/serroba/sketchbook/internal/document"
	"github.com/serroba/sketchbook/internal/library"
	"github.com/serroba/sketchbook/internal/storage"
	"github.com/spf13/cobra"
)

func newListCmd(app *App) *cobra.Command {
	var by, order string

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List saved sketchbooks",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sortBy, sortOrder, err := library.ParseSort(by, order)
			if err != nil {
				return writeErr(cmd, err)
			}

			lib, closeLib, err := app.openLibrary(cmd.Context())
			if err != nil {
				return writeErr(cmd, err)
			}
			defer closeLib()

			entries, err := lib.List(cmd.Context(), sortBy, sortOrder)
			if err != nil {
				return writeErr(cmd, err)
			}

			if entries == nil {
				entries = []library.Entry{}
			}

			return writeOut(cmd, app, entries, func(w io.Writer) {
				if len(entries) == 0 {
					fmt.Fprintf(w, "No sketchbooks in %s\n", lib.Dir())

					return
				}

				renderEntries(w, entries, time.Now())
			})
		},
	}

	cmd.Flags().StringVar(&by, "sort", "name", "Sort by name or date")
	cmd.Flags().StringVar(&order, "order", "asc", "Sort order (asc|desc)")

	return cmd
}

// sheetInfo is one line of `info` output.
type sheetInfo struct {
	Index  int     `json:"index"`
	ID     uint64  `json:"id"`
	Name   string  `json:"name"`
	X      float32 `json:"x"`
	Y      float32 `json:"y"`
	Zoom   float32 `json:"zoom"`
	Active bool    `json:"active"`
}

type bookInfo struct {
	library.Entry
	StrokeCounter uint64      `json:"strokeCounter"`
	Sheets        []sheetInfo `json:"sheets"`
}

// inspect unpacks name into a scratch directory and loads its metadata.
func (app *App) inspect(ctx context.Context, lib *library.Library, name string) (bookInfo, error) {
	entry, err := lib.Get(ctx, name)
	if err != nil {
		return bookInfo{}, err
	}

	codec, err := archive.New(archive.Config{LibraryDir: lib.Dir(), Logger: app.logger})
	if err != nil {
		return bookInfo{}, err
	}

	tmp, err := os.MkdirTemp("", "sketchbook-info-")
	if err != nil {
		return bookInfo{}, err
	}
	defer os.RemoveAll(tmp)

	if err := codec.Open(name, tmp); err != nil {
		return bookInfo{}, err
	}

	store, err := storage.NewFileStore(storage.FileStoreConfig{Dir: tmp, Logger: app.logger})
	if err != nil {
		return bookInfo{}, err
	}

	doc, err := document.Load(document.Config{Store: store, Logger: app.logger})
	if err != nil {
		return bookInfo{}, err
	}

	info := bookInfo{Entry: entry, StrokeCounter: doc.StrokeCounter()}

	for i, s := range doc.Sheets() {
		info.Sheets = append(info.Sheets, sheetInfo{
			Index:  i,
			ID:     s.ID,
			Name:   s.Name,
			X:      s.Camera.X,
			Y:      s.Camera.Y,
			Zoom:   s.Camera.Zoom,
			Active: i == doc.ActiveIndex(),
		})
	}

	return info, nil
}

func newInfoCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "info <name>",
		Short: "Show the sheets of a saved sketchbook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lib, closeLib, err := app.openLibrary(cmd.Context())
			if err != nil {
				return writeErr(cmd, err)
			}
			defer closeLib()

			info, err := app.inspect(cmd.Context(), lib, args[0])
			if err != nil {
				return writeErr(cmd, err)
			}

			return writeOut(cmd, app, info, func(w io.Writer) {
				field(w, "Name", nameStyle.Render(info.Name))
				field(w, "Path", info.Path)
				field(w, "Size", humanize.Bytes(uint64(info.Size)))
				field(w, "Modified", info.ModifiedAt.Format(time.DateTime))
				field(w, "Strokes", fmt.Sprint(info.StrokeCounter))
				fmt.Fprintln(w, headerStyle.Render("Sheets:"))

				for _, s := range info.Sheets {
					marker := " "
					if s.Active {
						marker = "*"
					}

					fmt.Fprintf(w, "  %s %d %s %s\n", marker, s.Index, s.Name,
						dimStyle.Render(fmt.Sprintf("(%.0f, %.0f) x%.2g", s.X, s.Y, s.Zoom)))
				}
			})
		},
	}
}

func newRenameCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <from> <to>",
		Short: "Rename a saved sketchbook",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			lib, closeLib, err := app.openLibrary(cmd.Context())
			if err != nil {
				return writeErr(cmd, err)
			}
			defer closeLib()

			if err := lib.Rename(cmd.Context(), args[0], args[1]); err != nil {
				return writeErr(cmd, err)
			}

			return writeOut(cmd, app, map[string]string{"from": args[0], "to": args[1]}, func(w io.Writer) {
				fmt.Fprintf(w, "Renamed %s to %s\n", args[0], nameStyle.Render(args[1]))
			})
		},
	}
}

func newDeleteCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <name>",
		Aliases: []string{"rm"},
		Short:   "Delete a saved sketchbook and its thumbnail",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lib, closeLib, err := app.openLibrary(cmd.Context())
			if err != nil {
				return writeErr(cmd, err)
			}
			defer closeLib()

			if err := lib.Delete(cmd.Context(), args[0]); err != nil {
				return writeErr(cmd, err)
			}

			return writeOut(cmd, app, map[string]string{"deleted": args[0]}, func(w io.Writer) {
				fmt.Fprintf(w, "Deleted %s\n", args[0])
			})
		},
	}
}
