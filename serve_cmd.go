package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/readaloud/internal/audio"
	"github.com/dgnsrekt/readaloud/internal/document"
	"github.com/dgnsrekt/readaloud/internal/observe"
	"github.com/dgnsrekt/readaloud/internal/queue"
	"github.com/dgnsrekt/readaloud/internal/reader"
	"github.com/dgnsrekt/readaloud/internal/rpc"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

var (
	serveNoAudio bool

	serveCmd = &cobra.Command{
		Use:   "serve SOURCE",
		Short: "Read a document under remote control",
		Long: paragraph(fmt.Sprintf("\nLoads SOURCE and waits for commands over %s and NATS. Commands are JSON objects such as {\"type\":\"start\"}; every reply carries the reader state.",
			keyword("a websocket"))),
		Example: paragraph("readaloud serve --listen 127.0.0.1:7341 article.html\nreadaloud serve --nats nats://127.0.0.1:4222 --metrics-addr :9464 notes.md"),
		Args:    cobra.ExactArgs(1),
		RunE:    serve,
	}
)

func serve(cmd *cobra.Command, args []string) error {
	log.SetOutput(os.Stderr)
	if cfg.Listen == "" && cfg.NATS.URL == "" {
		return errors.New("nothing to serve: set --listen or --nats")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	if cfg.Metrics.Addr != "" {
		handler, shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: Version})
		if err != nil {
			return fmt.Errorf("unable to set up metrics: %w", err)
		}
		defer shutdown(context.Background()) //nolint:errcheck
		g.Go(func() error { return observe.Serve(ctx, cfg.Metrics.Addr, handler) })
	}

	doc, err := document.Load(ctx, args[0])
	if err != nil {
		return err
	}
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close() //nolint:errcheck

	var player audio.Player
	if serveNoAudio {
		player = audio.NewMockPlayer(audio.MockCallbacks{})
	} else {
		p, err := audio.NewOtoPlayer(cfg.PlayerConfig())
		if err != nil {
			return fmt.Errorf("unable to open audio output: %w", err)
		}
		player = p
	}
	defer player.Close() //nolint:errcheck

	eng := a.newEngine(doc, player,
		reader.OnSegment(func(info queue.Info) {
			log.Info("reading", "index", info.Index, "locator", info.Locator)
		}),
		reader.OnError(func(err error) { log.Error("reader error", "err", err) }),
		reader.OnFinished(func() { log.Info("finished reading") }),
	)
	defer eng.Close() //nolint:errcheck
	d := rpc.NewDispatcher(eng, a.client)

	if isLocalFile(doc.Source()) {
		g.Go(func() error {
			if err := doc.Watch(ctx, func() { log.Info("document reloaded", "source", doc.Source()) }); err != nil {
				log.Warn("not watching document", "err", err)
			}
			return nil
		})
	}

	if cfg.NATS.URL != "" {
		ncfg := rpc.DefaultNATSConfig()
		ncfg.URL = cfg.NATS.URL
		ncfg.Prefix = cfg.NATS.Prefix
		ncfg.Token = cfg.NATS.Token
		nc, err := rpc.ConnectNATS(ncfg)
		if err != nil {
			return fmt.Errorf("unable to connect to nats: %w", err)
		}
		defer nc.Close()
		svc := rpc.NewNATSService(ctx, ncfg, nc, d)
		if err := svc.Start(); err != nil {
			return err
		}
		defer svc.Close()
		log.Info("listening for commands", "subject", ncfg.Subject())
	}

	if cfg.Listen != "" {
		mux := http.NewServeMux()
		mux.Handle("/ws", rpc.NewWebSocketHandler(d))
		srv := &http.Server{Addr: cfg.Listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
		g.Go(func() error {
			log.Info("serving websocket", "addr", cfg.Listen, "path", "/ws")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		return nil
	})
	err = g.Wait()
	log.Info("shutting down")
	return err
}

func init() {
	serveCmd.Flags().String("listen", "", "address for the websocket endpoint")
	serveCmd.Flags().String("nats", "", "NATS server to take commands from")
	serveCmd.Flags().String("nats-prefix", "readaloud", "NATS subject prefix")
	serveCmd.Flags().String("metrics-addr", "", "address for the Prometheus endpoint")
	serveCmd.Flags().BoolVar(&serveNoAudio, "no-audio", false, "discard audio instead of playing it")

	_ = viper.BindPFlag("listen", serveCmd.Flags().Lookup("listen"))
	_ = viper.BindPFlag("nats.url", serveCmd.Flags().Lookup("nats"))
	_ = viper.BindPFlag("nats.prefix", serveCmd.Flags().Lookup("nats-prefix"))
	_ = viper.BindPFlag("metrics.addr", serveCmd.Flags().Lookup("metrics-addr"))
}
