package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/serroba/sketchbook/internal/library"
	"github.com/spf13/cobra"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	nameStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

// writeOut prints v as indented JSON with --json, otherwise runs text.
func writeOut(cmd *cobra.Command, app *App, v any, text func(w io.Writer)) error {
	w := cmd.OutOrStdout()

	if app.JSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		return enc.Encode(v)
	}

	text(w)

	return nil
}

// renderEntries lays entries out in aligned columns.
func renderEntries(w io.Writer, entries []library.Entry, now time.Time) {
	width := len("NAME")
	for _, e := range entries {
		width = max(width, lipgloss.Width(e.Name))
	}

	col := lipgloss.NewStyle().Width(width + 2)
	num := lipgloss.NewStyle().Width(8).Align(lipgloss.Right)

	fmt.Fprintln(w, headerStyle.Render(col.Render("NAME")+num.Render("SHEETS")+num.Render("STROKES")+num.Render("SIZE")+"  MODIFIED"))

	for _, e := range entries {
		sheets, strokes := "-", "-"
		if e.Sheets > 0 {
			sheets = fmt.Sprint(e.Sheets)
			strokes = fmt.Sprint(e.StrokeCounter)
		}

		fmt.Fprintln(w, col.Render(nameStyle.Render(e.Name))+
			num.Render(sheets)+
			num.Render(strokes)+
			num.Render(humanize.Bytes(uint64(e.Size)))+
			"  "+dimStyle.Render(humanize.RelTime(e.ModifiedAt, now, "ago", "from now")))
	}
}

func field(w io.Writer, label, value string) {
	fmt.Fprintf(w, "%s %s\n", headerStyle.Render(label+":"), value)
}
