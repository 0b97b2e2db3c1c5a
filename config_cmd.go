package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultConfig = `# voice to read with; empty uses the worker's default
voice: ""
# reading speed, 0.1 to 4
speed: 1.0
# word-wrap at width (0 uses the terminal width)
width: 0
# mouse wheel support
mouse: false

worker:
  # full command line of a custom worker; overrides engine
  # command: "my-worker --flag"
  # speech engine of the bundled worker: piper or mock
  engine: "piper"
  model_dir: "~/.local/share/piper"
  # piper_binary: "/usr/local/bin/piper"

# sent to the worker when it initializes
# model:
#   name: "onnx-community/Kokoro-82M-v1.0-ONNX"
#   dtype: "fp32"
#   device: "webgpu"

bridge:
  request_timeout: "60s"
  # 0 disables rate limiting
  requests_per_second: 0

prefetch:
  # segments synthesized ahead of the one playing
  window: 2
  concurrency: 2

cache:
  disk:
    # keep synthesized audio between runs
    enabled: false
    # max_size in MB
    max_size: 256
    level: 3
    ttl: "720h"

segment:
  min_chars: 1
  # split blocks longer than this into sentences (0 keeps whole blocks)
  max_chars: 0

# readaloud serve
# listen: "127.0.0.1:7341"
# nats:
#   url: "nats://127.0.0.1:4222"
#   prefix: "readaloud"
# metrics:
#   addr: "127.0.0.1:9464"
`

var configCmd = &cobra.Command{
	Use:     "config",
	Hidden:  false,
	Short:   "Edit the readaloud config file",
	Long:    paragraph(fmt.Sprintf("\n%s the readaloud config file. We’ll use EDITOR to determine which editor to use. If the config file doesn't exist, it will be created.", keyword("Edit"))),
	Example: paragraph("readaloud config\nreadaloud config --config path/to/config.yml"),
	Args:    cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		if err := ensureConfigFile(); err != nil {
			return err
		}

		c, err := editor.Cmd("readaloud", configFile)
		if err != nil {
			return fmt.Errorf("unable to set config file: %w", err)
		}
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return fmt.Errorf("unable to run command: %w", err)
		}

		fmt.Println("Wrote config file to:", configFile)
		return nil
	},
}

func ensureConfigFile() error {
	if configFile == "" {
		configFile = viper.GetViper().ConfigFileUsed()
		if err := os.MkdirAll(filepath.Dir(configFile), 0o755); err != nil { //nolint:gosec
			return fmt.Errorf("could not write configuration file: %w", err)
		}
	}

	if ext := path.Ext(configFile); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("'%s' is not a supported configuration type: use '%s' or '%s'", ext, ".yaml", ".yml")
	}

	if _, err := os.Stat(configFile); errors.Is(err, fs.ErrNotExist) {
		// File doesn't exist yet, create all necessary directories and
		// write the default config file
		if err := os.MkdirAll(filepath.Dir(configFile), 0o700); err != nil {
			return fmt.Errorf("unable create directory: %w", err)
		}

		f, err := os.Create(configFile)
		if err != nil {
			return fmt.Errorf("unable to create config file: %w", err)
		}
		defer func() { _ = f.Close() }()

		if _, err := f.WriteString(defaultConfig); err != nil {
			return fmt.Errorf("unable to write config file: %w", err)
		}
	} else if err != nil { // some other error occurred
		return fmt.Errorf("unable to stat config file: %w", err)
	}
	return nil
}
