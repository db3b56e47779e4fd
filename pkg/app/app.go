// Package app assembles the line follower: serial port, frame source,
// control session, metrics, preview overlay and dashboard.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/teslashibe/linefollow/internal/config"
	"github.com/teslashibe/linefollow/internal/log"
	"github.com/teslashibe/linefollow/pkg/camera"
	"github.com/teslashibe/linefollow/pkg/follower"
	"github.com/teslashibe/linefollow/pkg/metrics"
	"github.com/teslashibe/linefollow/pkg/overlay"
	"github.com/teslashibe/linefollow/pkg/serialport"
	"github.com/teslashibe/linefollow/pkg/web"
)

// App owns every component and their lifecycle.
type App struct {
	config *config.Config
	log    *slog.Logger

	port     *serialport.Port
	source   follower.FrameSource
	session  *follower.Session
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	renderer *overlay.Renderer
	web      *web.Server
}

// New validates cfg and creates an application. Nothing is opened yet.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &App{config: cfg, log: log.Or(logger)}, nil
}

// Init opens the serial port and wires the components.
// Call this after New() and before Run().
func (a *App) Init() error {
	if name := a.config.Serial.Port; name != "" {
		port, err := serialport.Open(a.config.SerialConfig())
		if err != nil {
			return fmt.Errorf("serial: %w", err)
		}
		a.port = port
	}

	switch a.config.Camera.Source {
	case camera.SourceSynthetic:
		a.source = camera.NewSynthetic(a.config.CameraConfig())
	default:
		a.source = camera.NewCapture(a.config.CameraConfig(), a.log)
	}

	// A nil *serialport.Port must not become a non-nil interface
	var port follower.Port
	if a.port != nil {
		port = a.port
	}
	a.session = follower.NewSession(a.config.SessionConfig(), port, a.source, a.log)

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = metrics.New(a.registry)
	a.metrics.Attach(a.session)

	if !a.config.Web.Disabled {
		a.web = web.NewServer(a.config.Web.Port, a.session, web.Options{
			Gatherer: a.registry,
			Logger:   a.log,
		})
		a.renderer = overlay.NewRenderer(a.config.OverlayConfig(), a.web.SendCameraFrame, a.log)
		a.session.Loop.SetDisplay(a.renderer)
	}

	a.session.Loop.OnResult(func(r follower.Result) {
		a.log.Debug("frame",
			"seq", r.Seq, "near", r.Near.COM, "far", r.Far.COM,
			"value", r.Command.Value, "delivered", r.Delivered, "fps", r.FPS)
	})

	a.log.Info("line follower ready",
		"session", a.session.ID,
		"port", a.session.PortName(),
		"source", a.config.Camera.Source,
		"threshold", a.session.Threshold.Value())
	return nil
}

// Session returns the control session. Valid after Init.
func (a *App) Session() *follower.Session {
	return a.session
}

// Run drives the session and the dashboard until ctx is cancelled or the
// frame source fails.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	if a.web != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := a.web.Run(ctx); err != nil {
				a.log.Error("dashboard stopped", "error", err)
			}
		}()
	}

	err := a.session.Run(ctx)
	cancel()
	wg.Wait()
	return err
}

// Shutdown releases the serial port. Safe after a failed Init.
func (a *App) Shutdown() {
	if a.session != nil {
		a.session.Close()
	} else if a.port != nil {
		a.port.Close()
	}
	a.log.Info("line follower stopped")
}
