// Command readaloud-worker serves speech synthesis to readaloud over
// stdin and stdout, one JSON message per line.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/readaloud/internal/engine/mock"
	"github.com/dgnsrekt/readaloud/internal/engine/piper"
	"github.com/dgnsrekt/readaloud/internal/worker"
	"github.com/spf13/cobra"
)

var (
	engineName  string
	modelDir    string
	piperBinary string
	timeout     time.Duration
	mockDelay   time.Duration
	debug       bool

	rootCmd = &cobra.Command{
		Use:           "readaloud-worker",
		Short:         "Speech worker for readaloud",
		Long:          "Serves speech synthesis on stdin/stdout. readaloud starts it; you rarely need to run it yourself.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}
)

func backend() (worker.Backend, error) {
	switch engineName {
	case "mock":
		e := mock.New()
		if mockDelay > 0 {
			e.Delay = func(string) time.Duration { return mockDelay }
		}
		return e, nil
	case "piper":
		return piper.New(piper.Config{
			BinaryPath:     piperBinary,
			ModelDir:       modelDir,
			RequestTimeout: timeout,
		})
	default:
		return nil, fmt.Errorf("unknown engine %q", engineName)
	}
}

func run(*cobra.Command, []string) error {
	b, err := backend()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Debug("worker serving", "engine", engineName, "pid", os.Getpid())
	return worker.Serve(ctx, os.Stdin, os.Stdout, b)
}

func main() {
	// stdout carries the protocol.
	log.SetOutput(os.Stderr)
	log.SetPrefix("worker")
	cobra.OnInitialize(func() {
		if debug || os.Getenv("READALOUD_DEBUG") != "" {
			log.SetLevel(log.DebugLevel)
		}
	})
	if err := rootCmd.Execute(); err != nil {
		log.Error("worker failed", "err", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().StringVar(&engineName, "engine", "piper", "speech engine (piper, mock)")
	rootCmd.Flags().StringVar(&modelDir, "model-dir", "~/.local/share/piper", "directory of piper voices")
	rootCmd.Flags().StringVar(&piperBinary, "piper", "", "piper executable (default: search PATH)")
	rootCmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "limit for one synthesis")
	rootCmd.Flags().DurationVar(&mockDelay, "mock-delay", 0, "artificial latency of the mock engine")
	rootCmd.Flags().BoolVar(&debug, "debug", false, "log debug output to stderr")
}
