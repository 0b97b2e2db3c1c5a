package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func newViper(t *testing.T, yaml string) *viper.Viper {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	if yaml != "" {
		v.SetConfigType("yaml")
		if err := v.ReadConfig(strings.NewReader(yaml)); err != nil {
			t.Fatalf("ReadConfig: %v", err)
		}
	}
	return v
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(newViper(t, ""))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Speed != 1 {
		t.Errorf("Speed = %v", cfg.Speed)
	}
	if cfg.Bridge.RequestTimeout != 60*time.Second || cfg.Bridge.MaxChars != 220 {
		t.Errorf("bridge = %+v", cfg.Bridge)
	}
	if cfg.Prefetch.Window != 2 || cfg.Prefetch.Concurrency != 2 {
		t.Errorf("prefetch = %+v", cfg.Prefetch)
	}
	if cfg.Cache.Disk.Enabled {
		t.Error("disk cache enabled by default")
	}
	if cfg.Model.Name != "onnx-community/Kokoro-82M-v1.0-ONNX" || cfg.Model.Dtype != "fp32" || cfg.Model.Device != "webgpu" {
		t.Errorf("model = %+v", cfg.Model)
	}
	home, _ := os.UserHomeDir()
	if home != "" && cfg.Worker.ModelDir != filepath.Join(home, ".local/share/piper") {
		t.Errorf("model dir not expanded: %s", cfg.Worker.ModelDir)
	}
}

func TestLoadFile(t *testing.T) {
	cfg, err := Load(newViper(t, `
voice: af_heart
speed: 1.5
worker:
  engine: mock
bridge:
  request_timeout: 5s
  requests_per_second: 4
cache:
  disk:
    enabled: true
    ttl: 48h
model:
  options:
    speaker: "3"
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s := cfg.Settings(); s.Voice != "af_heart" || s.Speed != 1.5 {
		t.Errorf("settings = %+v", s)
	}
	if !cfg.InProcess() {
		t.Error("mock engine should run in process")
	}
	bc := cfg.BridgeConfig()
	if bc.RequestTimeout != 5*time.Second || bc.RequestsPerSecond != 4 || bc.Model.Options["speaker"] != "3" {
		t.Errorf("bridge config = %+v", bc)
	}
	if !cfg.Cache.Disk.Enabled || cfg.Cache.Disk.TTL != 48*time.Hour {
		t.Errorf("disk cache = %+v", cfg.Cache.Disk)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"speed too low", "speed: 0.01"},
		{"speed too high", "speed: 9"},
		{"unknown engine", "worker:\n  engine: espeak"},
		{"short timeout", "bridge:\n  request_timeout: 10ms"},
		{"negative rate", "bridge:\n  requests_per_second: -1"},
		{"no concurrency", "prefetch:\n  concurrency: 0"},
		{"odd sample rate", "audio:\n  sample_rate: 22050"},
		{"same classes", "highlight:\n  pending_class: x\n  active_class: x"},
		{"bad cache level", "cache:\n  disk:\n    enabled: true\n    level: 40"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(newViper(t, tt.yaml))
			if !errors.Is(err, ErrInvalid) {
				t.Errorf("err = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestWorkerCommand(t *testing.T) {
	tests := []struct {
		name string
		cfg  WorkerConfig
		want string
	}{
		{"explicit", WorkerConfig{Command: "python worker.py", Engine: "piper"}, "python worker.py"},
		{"piper", WorkerConfig{Engine: "piper", ModelDir: "/models"}, `readaloud-worker --engine piper --model-dir "/models"`},
		{"piper binary", WorkerConfig{Engine: "piper", PiperBinary: "/opt/piper"}, `readaloud-worker --engine piper --piper "/opt/piper"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{Worker: tt.cfg}
			if got := cfg.WorkerCommand(); got != tt.want {
				t.Errorf("WorkerCommand() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCacheDir(t *testing.T) {
	cfg := Config{}
	if got := cfg.CacheDir("/data"); got != filepath.Join("/data", "clips") {
		t.Errorf("CacheDir = %q", got)
	}
	cfg.Cache.Disk.Dir = "/elsewhere"
	if got := cfg.CacheDir("/data"); got != "/elsewhere" {
		t.Errorf("CacheDir = %q", got)
	}
}
