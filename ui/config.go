package ui

import "time"

// Config contains TUI-specific configuration. Fields with env tags are
// read with caarlos0/env; the rest come from flags.
type Config struct {
	Width       uint
	EnableMouse bool
	Title       string
	// InputTTY reads keys from the terminal when stdin carries the document.
	InputTTY bool

	SpeedStep    float64       `env:"READALOUD_SPEED_STEP"    envDefault:"0.25"`
	ShowHelp     bool          `env:"READALOUD_SHOW_HELP"     envDefault:"false"`
	AltScreen    bool          `env:"READALOUD_ALT_SCREEN"    envDefault:"true"`
	ActiveColor  string        `env:"READALOUD_ACTIVE_COLOR"  envDefault:"#FFD866"`
	StatusExpiry time.Duration `env:"READALOUD_STATUS_EXPIRY" envDefault:"3s"`
}
