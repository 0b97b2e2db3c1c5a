package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/dgnsrekt/readaloud/internal/voice"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"
)

var (
	voicesJSON bool

	voicesCmd = &cobra.Command{
		Use:   "voices [QUERY]",
		Short: "List the voices the speech worker offers",
		Long: paragraph(fmt.Sprintf("\nStarts the configured speech worker and lists its voices. With %s, only the best fuzzy matches are shown.",
			keyword("QUERY"))),
		Example: paragraph("readaloud voices\nreadaloud voices emma\nreadaloud voices --engine mock --json"),
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Bridge.RequestTimeout)
			defer cancel()
			ids, err := a.client.ListVoices(ctx)
			if err != nil {
				return fmt.Errorf("unable to list voices: %w", err)
			}
			if len(args) == 1 {
				id, err := voice.Match(args[0], ids)
				if err != nil {
					return err
				}
				ids = []string{id}
			}
			return printVoices(cmd.OutOrStdout(), voice.Describe(ids), voicesJSON)
		},
	}
)

var voiceIDStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575"))

func printVoices(w io.Writer, voices []voice.Voice, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(voices)
	}
	if len(voices) == 0 {
		_, err := fmt.Fprintln(w, "No voices.")
		return err
	}
	idWidth := 0
	for _, v := range voices {
		idWidth = max(idWidth, runewidth.StringWidth(v.ID))
	}
	for _, v := range voices {
		id := voiceIDStyle.Render(runewidth.FillRight(v.ID, idWidth))
		if _, err := fmt.Fprintf(w, "  %s  %s\n", id, v.Label()); err != nil {
			return err
		}
	}
	return nil
}

func init() {
	voicesCmd.Flags().BoolVar(&voicesJSON, "json", false, "print voices as JSON")
}
