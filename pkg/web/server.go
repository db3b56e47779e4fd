// Package web serves the control dashboard: session state, threshold and
// modem line controls, the serial console, live websocket feeds and
// prometheus metrics.
package web

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/teslashibe/linefollow/internal/log"
	"github.com/teslashibe/linefollow/pkg/console"
	"github.com/teslashibe/linefollow/pkg/follower"
	"github.com/teslashibe/linefollow/pkg/hub"
)

// DefaultStatusPeriod is how often session state is pushed to /ws/status
const DefaultStatusPeriod = 200 * time.Millisecond

// Options tweak the server
type Options struct {
	StaticDir    string              // Served at / when set
	Gatherer     prometheus.Gatherer // Served at /metrics when set
	StatusPeriod time.Duration       // Defaults to DefaultStatusPeriod
	Logger       *slog.Logger
}

// Server is the web dashboard server
type Server struct {
	app     *fiber.App
	port    string
	session *follower.Session
	period  time.Duration
	log     *slog.Logger

	// Hubs for websocket broadcast
	statusHub  *hub.Hub
	consoleHub *hub.Hub
	cameraHub  *hub.Hub
}

// NewServer creates the dashboard for session
func NewServer(port string, session *follower.Session, opts Options) *Server {
	l := log.Or(opts.Logger).With("component", "web")
	s := &Server{
		port:       port,
		session:    session,
		period:     opts.StatusPeriod,
		log:        l,
		consoleHub: hub.New("console", hub.WithLogger(l)),
		cameraHub:  hub.New("camera", hub.WithReplay(), hub.WithLogger(l)),
	}
	s.statusHub = hub.New("status", hub.WithReplay(), hub.WithHandler(s.handleControl), hub.WithLogger(l))
	if s.period <= 0 {
		s.period = DefaultStatusPeriod
	}

	app := fiber.New(fiber.Config{
		AppName:               "linefollow",
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	app.Use(cors.New())

	if opts.StaticDir != "" {
		app.Static("/", opts.StaticDir)
	}

	// API routes
	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/threshold", s.handleGetThreshold)
	api.Post("/threshold", s.handleSetThreshold)
	api.Get("/modem", s.handleModem)
	api.Post("/lines", s.handleLines)
	api.Get("/console", s.handleConsole)

	if opts.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	// WebSocket routes
	app.Get("/ws/status", websocket.New(s.serveHub(s.statusHub)))
	app.Get("/ws/console", websocket.New(s.serveHub(s.consoleHub)))
	app.Get("/ws/camera", websocket.New(s.serveHub(s.cameraHub)))

	session.Console.OnAppend(func(e console.Entry) {
		s.consoleHub.BroadcastJSON(e)
	})

	s.app = app
	return s
}

// App returns the underlying fiber app
func (s *Server) App() *fiber.App {
	return s.app
}

// Run starts the hubs and the listener and blocks until ctx is cancelled
// or the listener fails.
func (s *Server) Run(ctx context.Context) error {
	s.Start(ctx)

	errc := make(chan error, 1)
	go func() {
		s.log.Info("dashboard listening", "url", "http://localhost:"+s.port)
		errc <- s.app.Listen(":" + s.port)
	}()

	select {
	case <-ctx.Done():
		return s.app.ShutdownWithTimeout(2 * time.Second)
	case err := <-errc:
		return err
	}
}

// Start runs the hubs and the status publisher until ctx is cancelled,
// without listening.
func (s *Server) Start(ctx context.Context) {
	go s.statusHub.Run(ctx)
	go s.consoleHub.Run(ctx)
	go s.cameraHub.Run(ctx)
	go s.publishStatus(ctx)
}

func (s *Server) publishStatus(ctx context.Context) {
	ticker := time.NewTicker(s.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.statusHub.ClientCount() == 0 {
				continue
			}
			if err := s.statusHub.BroadcastJSON(s.session.State()); err != nil {
				s.log.Debug("status encode failed", "error", err)
			}
		}
	}
}

// SendCameraFrame sends an encoded preview frame to camera clients
func (s *Server) SendCameraFrame(jpeg []byte) {
	s.cameraHub.BroadcastBinary(jpeg)
}

// StatusHub returns the status hub
func (s *Server) StatusHub() *hub.Hub {
	return s.statusHub
}

// ConsoleHub returns the console hub
func (s *Server) ConsoleHub() *hub.Hub {
	return s.consoleHub
}

// CameraHub returns the camera hub
func (s *Server) CameraHub() *hub.Hub {
	return s.cameraHub
}

func (s *Server) serveHub(h *hub.Hub) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		client := hub.NewClient(h, c)
		if client == nil {
			c.Close()
			return
		}
		client.Run()
	}
}
