package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/dgnsrekt/readaloud/internal/document"
	"github.com/dgnsrekt/readaloud/internal/queue"
	"github.com/dgnsrekt/readaloud/internal/sentence"
	"github.com/dustin/go-humanize"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	segmentsFormat string
	segmentsStyle  string

	segmentsCmd = &cobra.Command{
		Use:   "segments [SOURCE]",
		Short: "Print the blocks a document would be read in",
		Long: paragraph(fmt.Sprintf("\nLoads SOURCE the way %s does and prints the readable blocks in reading order, with the locator of each block.",
			keyword("readaloud"))),
		Example: paragraph("readaloud segments README.md\nreadaloud segments --format json https://example.com"),
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, _, err := sourceArg(args)
			if err != nil {
				return err
			}
			doc, err := document.Load(cmd.Context(), src)
			if err != nil {
				return err
			}
			a := &app{cfg: cfg}
			infos := a.preview(doc)
			return printSegments(cmd.OutOrStdout(), infos, segmentsFormat, segmentsStyle, terminalWidth(80))
		},
	}
)

func printSegments(w io.Writer, infos []queue.Info, format, style string, width int) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(infos)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(infos); err != nil {
			return err
		}
		return enc.Close()
	case "table", "":
	default:
		return fmt.Errorf("unknown format %q: use table, json or yaml", format)
	}

	if len(infos) == 0 {
		_, err := fmt.Fprintln(w, "Nothing to read.")
		return err
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithColorProfile(lipgloss.ColorProfile()),
		glamourStyle(style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return fmt.Errorf("unable to create renderer: %w", err)
	}
	out, err := r.Render(segmentTable(infos, width))
	if err != nil {
		return fmt.Errorf("unable to render segments: %w", err)
	}
	if _, err := fmt.Fprint(w, out); err != nil {
		return err
	}

	var (
		chars int
		est   time.Duration
	)
	for _, in := range infos {
		chars += utf8.RuneCountInString(in.Text)
		est += sentence.EstimateDuration(in.Text)
	}
	_, err = fmt.Fprintf(w, "  %s segments, %s characters, about %s at 1x\n",
		humanize.Comma(int64(len(infos))), humanize.Comma(int64(chars)), est.Round(time.Second))
	return err
}

// segmentTable renders infos as a markdown table, truncating text so rows
// fit in width.
func segmentTable(infos []queue.Info, width int) string {
	var b strings.Builder
	b.WriteString("| # | Locator | Text |\n|--:|---|---|\n")
	textWidth := max(width-40, 20)
	for _, in := range infos {
		text := runewidth.Truncate(in.Text, textWidth, "…")
		fmt.Fprintf(&b, "| %d | `%s` | %s |\n", in.Index, in.Locator, escapeCell(text))
	}
	return b.String()
}

// glamourStyle picks a style by name or JSON path; "auto" follows the
// terminal background.
func glamourStyle(style string) glamour.TermRendererOption {
	if style == "" || style == "auto" {
		return glamour.WithAutoStyle()
	}
	return glamour.WithStylePath(style)
}

func escapeCell(s string) string {
	return strings.NewReplacer("|", `\|`, "\n", " ").Replace(s)
}

func init() {
	segmentsCmd.Flags().StringVarP(&segmentsFormat, "format", "f", "table", "output format (table, json, yaml)")
	segmentsCmd.Flags().StringVarP(&segmentsStyle, "style", "s", "auto", "style name or JSON path for the table")
}
