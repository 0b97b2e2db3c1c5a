package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/readaloud/internal/audio"
	"github.com/dgnsrekt/readaloud/internal/document"
	"github.com/dgnsrekt/readaloud/internal/reader"
	"github.com/dgnsrekt/readaloud/internal/voice"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	exportOutput string
	exportGap    time.Duration

	exportCmd = &cobra.Command{
		Use:   "export [SOURCE]",
		Short: "Synthesize a whole document into a WAV file",
		Long: paragraph(fmt.Sprintf("\nReads SOURCE into %s instead of the speakers. Blocks are joined with a short silence.",
			keyword("a WAV file"))),
		Example: paragraph("readaloud export notes.md -o notes.wav\nreadaloud export --voice emma --gap 500ms https://example.com"),
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, _, err := sourceArg(args)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			doc, err := document.Load(ctx, src)
			if err != nil {
				return err
			}
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			clip, err := a.export(ctx, doc, exportGap)
			if err != nil {
				return err
			}
			f, err := os.Create(exportOutput)
			if err != nil {
				return fmt.Errorf("unable to create output: %w", err)
			}
			if err := clip.WriteWAV(f); err != nil {
				_ = f.Close()
				return fmt.Errorf("unable to write wav: %w", err)
			}
			st, err := f.Stat()
			if err != nil {
				_ = f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%s, %s) to %s\n",
				humanize.Bytes(uint64(st.Size())), clip.Duration().Round(time.Second), //nolint:gosec
				humanize.SI(float64(clip.SampleRate), "Hz"), exportOutput)
			return nil
		},
	}
)

// export synthesizes every segment of doc with the configured voice and
// joins them with gap of silence between blocks.
func (a *app) export(ctx context.Context, doc *document.Document, gap time.Duration) (*audio.Clip, error) {
	segs := a.segments(doc)
	if len(segs) == 0 {
		return nil, reader.ErrNothingToRead
	}
	if err := a.synth.Initialize(ctx); err != nil {
		return nil, err
	}

	v := a.cfg.Voice
	if v != "" {
		if ids, err := a.client.ListVoices(ctx); err == nil {
			if v, err = voice.Match(v, ids); err != nil {
				return nil, err
			}
		}
	}

	clips := make([]*audio.Clip, len(segs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.Prefetch.Concurrency)
	for i, seg := range segs {
		g.Go(func() error {
			clip, err := a.synth.Synthesize(gctx, seg.Text, v)
			if err != nil {
				return &reader.SynthesisError{Index: i, Cause: err}
			}
			log.Debug("exported segment", "index", i, "duration", clip.Duration())
			clips[i] = clip
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	rate := clips[0].SampleRate
	parts := make([]*audio.Clip, 0, 2*len(clips))
	for i, c := range clips {
		if c.SampleRate != rate {
			return nil, errors.New("segments came back at different sample rates")
		}
		if i > 0 && gap > 0 {
			parts = append(parts, audio.Silence(gap, rate))
		}
		parts = append(parts, c)
	}
	return audio.Concat(parts...)
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "readaloud.wav", "file to write")
	exportCmd.Flags().DurationVar(&exportGap, "gap", 300*time.Millisecond, "silence between blocks")
}
