// Package main provides the entry point for the readaloud CLI application.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/readaloud/internal/audio"
	"github.com/dgnsrekt/readaloud/internal/config"
	"github.com/dgnsrekt/readaloud/internal/document"
	"github.com/dgnsrekt/readaloud/internal/rpc"
	"github.com/dgnsrekt/readaloud/ui"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile string
	cfg        config.Config

	rootCmd = &cobra.Command{
		Use:   "readaloud [SOURCE]",
		Short: "Read documents aloud in the terminal",
		Long: paragraph(
			fmt.Sprintf("\nRead HTML and markdown documents %s, highlighting each block as it is spoken.\n\nSOURCE is a file, a URL, %s for stdin, or %s.",
				keyword("aloud"), keyword("-"), keyword(document.ClipboardSource)),
		),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		Args:             cobra.MaximumNArgs(1),
		ValidArgsFunction: func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
			return nil, cobra.ShellCompDirectiveDefault
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return validateOptions(cmd)
		},
		RunE: execute,
	}
)

func validateOptions(cmd *cobra.Command) error {
	if viper.GetBool("debug") {
		log.SetLevel(log.DebugLevel)
	}
	if cmd.Flags().Changed("config") {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("unable to read config %s: %w", configFile, err)
		}
	}
	var err error
	cfg, err = config.Load(viper.GetViper())
	if err != nil {
		return err
	}
	return nil
}

func stdinIsPipe() (bool, error) {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false, fmt.Errorf("unable to open file: %w", err)
	}
	if stat.Mode()&os.ModeCharDevice == 0 || stat.Size() > 0 {
		return true, nil
	}
	return false, nil
}

// sourceArg picks the document to read: the argument, else piped stdin.
func sourceArg(args []string) (string, bool, error) {
	if len(args) == 1 {
		return args[0], args[0] == "-", nil
	}
	yes, err := stdinIsPipe()
	if err != nil {
		return "", false, err
	}
	if !yes {
		return "", false, errors.New("missing source: pass a file, a URL, - or " + document.ClipboardSource)
	}
	return "-", true, nil
}

func execute(cmd *cobra.Command, args []string) error {
	src, fromStdin, err := sourceArg(args)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	doc, err := document.Load(ctx, src)
	if err != nil {
		return err
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close() //nolint:errcheck

	player, err := audio.NewOtoPlayer(cfg.PlayerConfig())
	if err != nil {
		return fmt.Errorf("unable to open audio output: %w", err)
	}
	defer player.Close() //nolint:errcheck

	events := ui.NewEvents()
	eng := a.newEngine(doc, player, events.Options()...)
	defer eng.Close() //nolint:errcheck

	if isLocalFile(doc.Source()) {
		go func() {
			if err := doc.Watch(ctx, nil); err != nil {
				log.Warn("not watching document", "err", err)
			}
		}()
	}

	uiCfg, err := env.ParseAs[ui.Config]()
	if err != nil {
		return fmt.Errorf("error parsing config: %v", err)
	}
	uiCfg.Width = viper.GetUint("width")
	uiCfg.EnableMouse = viper.GetBool("mouse")
	uiCfg.InputTTY = fromStdin
	uiCfg.Title = titleOf(doc.Source())

	session := ui.Session{
		Handler: rpc.NewDispatcher(eng, a.client),
		Queue:   eng.Queue,
		Preview: a.preview(doc),
		Events:  events,
	}
	if _, err := ui.NewProgram(uiCfg, session).Run(); err != nil {
		return fmt.Errorf("unable to run tui program: %w", err)
	}
	return nil
}

func isLocalFile(path string) bool {
	if path == "" || strings.Contains(path, "://") {
		return false
	}
	st, err := os.Stat(path)
	return err == nil && st.Mode().IsRegular()
}

func titleOf(source string) string {
	switch {
	case source == "":
		return "stdin"
	case strings.Contains(source, "://"), source == document.ClipboardSource:
		return source
	default:
		return filepath.Base(source)
	}
}

func main() {
	closer, err := setupLog()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		_ = closer()
		os.Exit(1)
	}
	_ = closer()
}

func init() {
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	flags.Bool("debug", false, "log debug output")
	flags.String("voice", "", "voice to read with (fuzzy matched against the worker's voices)")
	flags.Float64("speed", 1, "reading speed (0.1 to 4)")
	flags.String("engine", config.EnginePiper, "speech engine of the bundled worker (piper, mock)")
	flags.String("worker", "", "command line of a custom speech worker")
	flags.String("model-dir", "", "directory of piper voices")
	flags.Bool("disk-cache", false, "keep synthesized audio on disk between runs")
	rootCmd.Flags().UintP("width", "w", 0, "word-wrap at width (set to 0 to use the terminal width)")
	rootCmd.Flags().BoolP("mouse", "m", false, "enable mouse wheel")
	_ = rootCmd.Flags().MarkHidden("mouse")

	// Config bindings
	_ = viper.BindPFlag("debug", flags.Lookup("debug"))
	_ = viper.BindPFlag("voice", flags.Lookup("voice"))
	_ = viper.BindPFlag("speed", flags.Lookup("speed"))
	_ = viper.BindPFlag("worker.engine", flags.Lookup("engine"))
	_ = viper.BindPFlag("worker.command", flags.Lookup("worker"))
	_ = viper.BindPFlag("worker.model_dir", flags.Lookup("model-dir"))
	_ = viper.BindPFlag("cache.disk.enabled", flags.Lookup("disk-cache"))
	_ = viper.BindPFlag("width", rootCmd.Flags().Lookup("width"))
	_ = viper.BindPFlag("mouse", rootCmd.Flags().Lookup("mouse"))

	config.SetDefaults(viper.GetViper())
	viper.SetDefault("width", 0)
	viper.SetDefault("debug", false)

	rootCmd.AddCommand(configCmd, manCmd, segmentsCmd, voicesCmd, exportCmd, serveCmd)
}

func tryLoadConfigFromDefaultPlaces() {
	scope := gap.NewScope(gap.User, "readaloud")
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not load find configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, "readaloud")}, dirs...)
	}

	if c := os.Getenv("READALOUD_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName("readaloud")
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("readaloud")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", viper.ConfigFileUsed())
		return
	}

	if viper.ConfigFileUsed() == "" {
		configFile = filepath.Join(dirs[0], "readaloud.yml")
	}
	if err := ensureConfigFile(); err != nil {
		log.Error("Could not create default configuration", "error", err)
	}
}

// terminalWidth returns the width of stdout, capped at 120, or fallback
// when stdout is not a terminal.
func terminalWidth(fallback int) int {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return fallback
	}
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return fallback
	}
	return min(w, 120)
}
