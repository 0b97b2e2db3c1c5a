// Package piper runs the Piper speech engine as a subprocess, one process
// per utterance.
package piper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/readaloud/internal/audio"
	"github.com/dgnsrekt/readaloud/internal/protocol"
	"github.com/mitchellh/go-homedir"
)

var (
	// ErrBinaryNotFound is returned when no piper executable can be located.
	ErrBinaryNotFound = errors.New("piper binary not found")
	// ErrNoVoices is returned when the model directory holds no usable voice.
	ErrNoVoices = errors.New("no piper voices found")
	// ErrUnknownVoice is returned for a voice that is not in the model directory.
	ErrUnknownVoice = errors.New("unknown voice")
	// ErrNoAudio is returned when piper exits without producing samples.
	ErrNoAudio = errors.New("no audio generated")
)

// DefaultSampleRate is assumed when a voice config omits its rate.
const DefaultSampleRate = 22050

// Config configures the engine.
type Config struct {
	// BinaryPath is the piper executable. Empty searches common locations.
	BinaryPath string
	// ModelDir holds <voice>.onnx files with their .onnx.json configs.
	ModelDir string
	// RequestTimeout bounds one piper run.
	RequestTimeout time.Duration
}

// Voice is one discovered model.
type Voice struct {
	ID         string
	ModelPath  string
	SampleRate int
}

// Engine is safe for concurrent use.
type Engine struct {
	cfg Config

	mu           sync.RWMutex
	voices       map[string]Voice
	defaultVoice string
}

// New validates cfg and returns an engine. Voices are loaded by Init.
func New(cfg Config) (*Engine, error) {
	if cfg.BinaryPath == "" {
		cfg.BinaryPath = findPiperBinary()
		if cfg.BinaryPath == "" {
			return nil, ErrBinaryNotFound
		}
	}
	if _, err := exec.LookPath(cfg.BinaryPath); err != nil {
		return nil, fmt.Errorf("piper binary not accessible: %w", err)
	}
	dir, err := homedir.Expand(cfg.ModelDir)
	if err != nil {
		return nil, fmt.Errorf("expand model dir: %w", err)
	}
	cfg.ModelDir = dir
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	return &Engine{cfg: cfg}, nil
}

// Init scans the model directory. cfg.Model selects the default voice when it
// names one of them; otherwise the first voice is the default.
func (e *Engine) Init(ctx context.Context, cfg protocol.ModelConfig) error {
	voices, err := DiscoverVoices(e.cfg.ModelDir)
	if err != nil {
		return err
	}
	if len(voices) == 0 {
		return fmt.Errorf("%w in %s", ErrNoVoices, e.cfg.ModelDir)
	}

	byID := make(map[string]Voice, len(voices))
	for _, v := range voices {
		byID[v.ID] = v
	}
	def := voices[0].ID
	if _, ok := byID[cfg.Model]; ok {
		def = cfg.Model
	}

	e.mu.Lock()
	e.voices = byID
	e.defaultVoice = def
	e.mu.Unlock()

	log.Info("piper initialized", "voices", len(voices), "default", def)
	return nil
}

// Voices returns the discovered voice ids in sorted order.
func (e *Engine) Voices(ctx context.Context) ([]string, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ids := make([]string, 0, len(e.voices))
	for id := range e.voices {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Generate runs piper for text and returns its raw output as a clip.
func (e *Engine) Generate(ctx context.Context, text, voice string) (*audio.Clip, error) {
	e.mu.RLock()
	if voice == "" {
		voice = e.defaultVoice
	}
	v, ok := e.voices[voice]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownVoice, voice)
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.RequestTimeout)
	defer cancel()

	log.Debug("piper generate", "voice", voice, "chars", len(text))
	cmd := exec.CommandContext(ctx, e.cfg.BinaryPath, "--model", v.ModelPath, "--output-raw")
	// Stdin is set before Start so piper never sees a half-written line.
	cmd.Stdin = strings.NewReader(text + "\n")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("piper: %w", ctx.Err())
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("piper failed: %w\nstderr: %s", err, msg)
		}
		return nil, fmt.Errorf("piper failed: %w", err)
	}

	pcm := stdout.Bytes()
	if len(pcm) == 0 {
		return nil, ErrNoAudio
	}
	// Drop a trailing odd byte rather than rejecting the whole utterance.
	pcm = pcm[:len(pcm)/audio.BytesPerSample*audio.BytesPerSample]
	return audio.NewClip(pcm, v.SampleRate)
}

type voiceConfig struct {
	Audio struct {
		SampleRate int `json:"sample_rate"`
	} `json:"audio"`
}

// DiscoverVoices lists *.onnx models in dir that have a sibling .onnx.json
// config.
func DiscoverVoices(dir string) ([]Voice, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.onnx"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)

	var voices []Voice
	for _, model := range matches {
		data, err := os.ReadFile(model + ".json")
		if err != nil {
			log.Debug("skipping piper model without config", "model", model)
			continue
		}
		var vc voiceConfig
		if err := json.Unmarshal(data, &vc); err != nil {
			log.Warn("bad piper voice config", "model", model, "err", err)
			continue
		}
		rate := vc.Audio.SampleRate
		if rate <= 0 {
			rate = DefaultSampleRate
		}
		voices = append(voices, Voice{
			ID:         strings.TrimSuffix(filepath.Base(model), ".onnx"),
			ModelPath:  model,
			SampleRate: rate,
		})
	}
	return voices, nil
}

func findPiperBinary() string {
	locations := []string{"piper", "/usr/local/bin/piper", "/usr/bin/piper"}
	if home, err := homedir.Dir(); err == nil {
		locations = append(locations,
			filepath.Join(home, ".local", "bin", "piper"),
			filepath.Join(home, "bin", "piper"),
		)
	}
	for _, loc := range locations {
		if path, err := exec.LookPath(loc); err == nil {
			return path
		}
	}
	return ""
}
