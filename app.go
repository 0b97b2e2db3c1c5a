package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/readaloud/internal/audio"
	"github.com/dgnsrekt/readaloud/internal/bridge"
	"github.com/dgnsrekt/readaloud/internal/cache"
	"github.com/dgnsrekt/readaloud/internal/config"
	"github.com/dgnsrekt/readaloud/internal/document"
	"github.com/dgnsrekt/readaloud/internal/engine/mock"
	"github.com/dgnsrekt/readaloud/internal/observe"
	"github.com/dgnsrekt/readaloud/internal/queue"
	"github.com/dgnsrekt/readaloud/internal/reader"
	"github.com/dgnsrekt/readaloud/internal/segment"
	"github.com/dgnsrekt/readaloud/internal/worker"
	gap "github.com/muesli/go-app-paths"
	"golang.org/x/net/html"
)

// app holds what every command shares: the worker bridge and the
// synthesizer the reader uses, which may sit behind the disk cache.
type app struct {
	cfg     config.Config
	client  *bridge.Client
	synth   reader.Synthesizer
	disk    *cache.DiskCache
	metrics *observe.Metrics
}

func dialer(cfg config.Config) (bridge.Dialer, error) {
	if cfg.InProcess() {
		log.Debug("running mock worker in process")
		return bridge.PipeDialer(func(ctx context.Context, r io.Reader, w io.Writer) error {
			return worker.Serve(ctx, r, w, mock.New())
		}), nil
	}
	cmd := cfg.WorkerCommand()
	log.Debug("worker command", "cmd", cmd)
	d, err := bridge.NewExecDialer(cmd)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func newApp(cfg config.Config) (*app, error) {
	d, err := dialer(cfg)
	if err != nil {
		return nil, fmt.Errorf("unable to prepare worker: %w", err)
	}
	m := observe.DefaultMetrics()
	a := &app{
		cfg:     cfg,
		client:  bridge.New(d, cfg.BridgeConfig(), bridge.WithMetrics(m)),
		metrics: m,
	}
	a.synth = a.client

	if cfg.Cache.Disk.Enabled {
		base, err := gap.NewScope(gap.User, "readaloud").CacheDir()
		if err != nil {
			return nil, err
		}
		disk := cfg.Cache.Disk
		a.disk, err = cache.NewDiskCache(cfg.CacheDir(base), disk.MaxSize<<20, disk.Level, disk.TTL)
		if err != nil {
			_ = a.client.Close()
			return nil, fmt.Errorf("unable to open clip cache: %w", err)
		}
		a.synth = cache.NewCachedSynthesizer(a.client, a.disk, m)
	}
	return a, nil
}

func (a *app) segmenter() *segment.Segmenter {
	s := segment.New()
	s.MinChars = a.cfg.Segment.MinChars
	s.MaxChars = a.cfg.Segment.MaxChars
	return s
}

func (a *app) newEngine(doc *document.Document, player audio.Player, opts ...reader.Option) *reader.Engine {
	base := []reader.Option{
		reader.WithSegmenter(a.segmenter()),
		reader.WithHighlightClasses(a.cfg.Highlight.PendingClass, a.cfg.Highlight.ActiveClass),
		reader.WithPrefetchWindow(a.cfg.Prefetch.Window),
		reader.WithConcurrency(a.cfg.Prefetch.Concurrency),
		reader.WithMetrics(a.metrics),
	}
	eng := reader.New(doc, a.synth, player, append(base, opts...)...)
	if err := eng.SetSpeed(a.cfg.Speed); err != nil {
		log.Warn("ignoring configured speed", "speed", a.cfg.Speed, "err", err)
	}
	if a.cfg.Voice != "" {
		eng.SetVoice(a.cfg.Voice)
	}
	return eng
}

// segments returns what a reading of the whole document would queue.
func (a *app) segments(doc *document.Document) []*queue.Segment {
	var segs []*queue.Segment
	doc.View(func(root *html.Node) {
		segs = a.segmenter().Segment(root)
	})
	return segs
}

func (a *app) preview(doc *document.Document) []queue.Info {
	return queue.New(a.segments(doc)).Infos()
}

func (a *app) Close() error {
	var errs []error
	if err := a.client.Close(); err != nil {
		errs = append(errs, err)
	}
	if a.disk != nil {
		if err := a.disk.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
