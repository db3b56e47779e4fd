// Package config loads linefollow settings from a YAML file and the
// environment.
//
// Values are resolved in order: struct defaults, the config file, then
// LINEFOLLOW_* environment variables (LINEFOLLOW_SERIAL_PORT,
// LINEFOLLOW_CONTROL_THRESHOLD, ...). Command-line flags are applied by the
// caller on top.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kkyr/fig"

	"github.com/teslashibe/linefollow/pkg/camera"
	"github.com/teslashibe/linefollow/pkg/follower"
	"github.com/teslashibe/linefollow/pkg/overlay"
	"github.com/teslashibe/linefollow/pkg/serialport"
	"github.com/teslashibe/linefollow/pkg/steering"
)

const (
	// EnvPrefix prefixes every environment override
	EnvPrefix = "LINEFOLLOW"
	// DefaultFile is the config file searched for when no path is given
	DefaultFile = "linefollow.yaml"
)

// ErrInvalid is wrapped by every validation failure
var ErrInvalid = errors.New("config: invalid")

// Config is the full application configuration.
//
// fig fills zero-valued fields from the default tags, so options that must
// be switchable off are phrased as Skip/Disable flags. Fields where zero is a
// legal setting carry no tag and are seeded by Default instead.
type Config struct {
	Serial  Serial  `fig:"serial"`
	Camera  Camera  `fig:"camera"`
	Control Control `fig:"control"`
	Overlay Overlay `fig:"overlay"`
	Web     Web     `fig:"web"`
	Log     Log     `fig:"log"`
}

// Serial configures the link to the drive controller
type Serial struct {
	Port         string        `fig:"port"` // Empty runs without a device
	BaudRate     int           `fig:"baud_rate" default:"115200"`
	DataBits     int           `fig:"data_bits" default:"8"`
	Parity       string        `fig:"parity" default:"none"`
	StopBits     int           `fig:"stop_bits" default:"1"`
	ReadTimeout  time.Duration `fig:"read_timeout" default:"100ms"`
	WriteTimeout time.Duration `fig:"write_timeout" default:"10ms"`
}

// Camera configures the frame source
type Camera struct {
	Source    string `fig:"source" default:"camera"`
	Device    string `fig:"device" default:"0"`
	Width     int    `fig:"width" default:"640"`
	Height    int    `fig:"height" default:"480"`
	Framerate int    `fig:"framerate" default:"30"`
	MaxMisses int    `fig:"max_misses" default:"100"`
}

// Control configures sampling and the steering law
type Control struct {
	StartY          int  `fig:"start_y"`
	RowsBetween     int  `fig:"rows_between" default:"150"`
	Baseline        int  `fig:"baseline"`
	Scale           int  `fig:"scale"`
	FrameCenter     int  `fig:"frame_center"` // 0 uses half the frame width
	Threshold       int  `fig:"threshold"`
	MarkerRadius    int  `fig:"marker_radius" default:"5"`
	ConsoleCapacity int  `fig:"console_capacity" default:"500"`
	SkipBaseline    bool `fig:"skip_baseline"`
}

// Overlay configures the dashboard preview
type Overlay struct {
	Quality   int           `fig:"quality" default:"80"`
	MinPeriod time.Duration `fig:"min_period" default:"66ms"`
}

// Web configures the dashboard server
type Web struct {
	Port     string `fig:"port" default:"8080"`
	Disabled bool   `fig:"disabled"`
}

// Log configures logging
type Log struct {
	Level string `fig:"level" default:"info"`
}

// Default returns the settings that have no default tag because zero is a
// valid value for them. Load starts from it.
func Default() Config {
	sc := follower.DefaultSessionConfig()
	return Config{
		Control: Control{
			StartY:    sc.Loop.StartY,
			Baseline:  sc.Loop.Steering.Baseline,
			Scale:     sc.Loop.Steering.Scale,
			Threshold: sc.Threshold,
		},
	}
}

// Load reads the configuration. An empty path searches for DefaultFile in
// the current directory, ./configs and $HOME/.linefollow and falls back to
// defaults plus environment when none exists. An explicit path must exist.
func Load(path string) (*Config, error) {
	cfg := Default()

	opts := []fig.Option{fig.UseEnv(EnvPrefix)}
	if path != "" {
		opts = append(opts, fig.File(filepath.Base(path)), fig.Dirs(filepath.Dir(path)))
	} else {
		opts = append(opts, fig.File(DefaultFile), fig.Dirs(searchDirs()...))
	}

	err := fig.Load(&cfg, opts...)
	if path == "" && errors.Is(err, fig.ErrFileNotFound) {
		cfg = Default()
		err = loadEnv(&cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("config: load: %w", err)
	}
	return &cfg, nil
}

// loadEnv runs fig over an empty document so default tags and LINEFOLLOW_*
// variables still apply when there is no config file.
func loadEnv(cfg *Config) error {
	dir, err := os.MkdirTemp("", "linefollow-config")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	if err := os.WriteFile(filepath.Join(dir, DefaultFile), []byte("{}\n"), 0o600); err != nil {
		return err
	}
	return fig.Load(cfg, fig.File(DefaultFile), fig.Dirs(dir), fig.UseEnv(EnvPrefix))
}

func searchDirs() []string {
	dirs := []string{".", "configs"}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, ".linefollow"))
	}
	return dirs
}

// Validate checks the configuration as a whole. All problems are reported
// together.
func (c *Config) Validate() error {
	var problems []string

	if c.Serial.Port != "" {
		if err := c.SerialConfig().Validate(); err != nil {
			problems = append(problems, err.Error())
		}
	}
	if c.Serial.WriteTimeout <= 0 {
		problems = append(problems, "serial: write timeout must be positive")
	}

	cam := c.CameraConfig()
	for _, p := range cam.Validate() {
		problems = append(problems, "camera: "+p)
	}

	if c.Control.Threshold < follower.MinThreshold || c.Control.Threshold > follower.MaxThreshold {
		problems = append(problems, fmt.Sprintf("control: threshold %d outside %d-%d",
			c.Control.Threshold, follower.MinThreshold, follower.MaxThreshold))
	}
	if err := c.LoopConfig().Validate(c.Camera.Height); err != nil {
		problems = append(problems, err.Error())
	}

	if c.Overlay.Quality < 1 || c.Overlay.Quality > 100 {
		problems = append(problems, "overlay: quality must be between 1 and 100")
	}
	if !c.Web.Disabled && c.Web.Port == "" {
		problems = append(problems, "web: port is required")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

// SerialConfig returns the serial port settings
func (c *Config) SerialConfig() serialport.Config {
	return serialport.Config{
		Name:         c.Serial.Port,
		BaudRate:     c.Serial.BaudRate,
		DataBits:     c.Serial.DataBits,
		Parity:       c.Serial.Parity,
		StopBits:     c.Serial.StopBits,
		ReadTimeout:  c.Serial.ReadTimeout,
		WriteTimeout: c.Serial.WriteTimeout,
	}
}

// CameraConfig returns the frame source settings
func (c *Config) CameraConfig() camera.Config {
	return camera.Config{
		Source:    c.Camera.Source,
		Device:    c.Camera.Device,
		Width:     c.Camera.Width,
		Height:    c.Camera.Height,
		Framerate: c.Camera.Framerate,
		MaxMisses: c.Camera.MaxMisses,
	}
}

// LoopConfig returns the frame loop settings
func (c *Config) LoopConfig() follower.Config {
	return follower.Config{
		StartY:      c.Control.StartY,
		RowsBetween: c.Control.RowsBetween,
		Steering: steering.Config{
			Baseline:    c.Control.Baseline,
			Scale:       c.Control.Scale,
			FrameCenter: c.Control.FrameCenter,
		},
		MarkerRadius: c.Control.MarkerRadius,
	}
}

// SessionConfig returns the session settings
func (c *Config) SessionConfig() follower.SessionConfig {
	return follower.SessionConfig{
		Loop:            c.LoopConfig(),
		Threshold:       c.Control.Threshold,
		WriteTimeout:    c.Serial.WriteTimeout,
		ConsoleCapacity: c.Control.ConsoleCapacity,
		SendBaseline:    !c.Control.SkipBaseline,
	}
}

// OverlayConfig returns the preview renderer settings
func (c *Config) OverlayConfig() overlay.Config {
	cfg := overlay.DefaultConfig()
	cfg.Quality = c.Overlay.Quality
	cfg.MinPeriod = c.Overlay.MinPeriod
	return cfg
}
