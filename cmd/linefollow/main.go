// linefollow - camera line follower that steers a robot over a serial link
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/teslashibe/linefollow/internal/config"
	"github.com/teslashibe/linefollow/internal/log"
	"github.com/teslashibe/linefollow/pkg/app"
	"github.com/teslashibe/linefollow/pkg/serialport"
)

func main() {
	cfg, list := parseFlags()

	log.Init(cfg.Log.Level)

	if list {
		listPorts()
		return
	}

	a, err := app.New(cfg, log.L())
	if err != nil {
		log.Error("configuration error", "error", err)
		os.Exit(1)
	}

	if err := a.Init(); err != nil {
		log.Error("initialization failed", "error", err)
		os.Exit(1)
	}
	defer a.Shutdown()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := a.Run(ctx); err != nil {
		log.Error("runtime error", "error", err)
		a.Shutdown()
		os.Exit(1)
	}
}

// parseFlags loads the config file and environment, then applies flags
// that were set explicitly.
func parseFlags() (*config.Config, bool) {
	configPath := flag.String("config", "", "Config file (default: search for "+config.DefaultFile+")")
	list := flag.Bool("list", false, "List serial ports and exit")
	port := flag.String("port", "", "Serial device, e.g. /dev/ttyACM0 (empty: no device)")
	baud := flag.Int("baud", 0, "Serial baud rate")
	source := flag.String("source", "", "Frame source: camera or synthetic")
	device := flag.String("device", "", "Camera index or video path")
	threshold := flag.Int("threshold", -1, "Darkness threshold 0-255")
	scale := flag.Int("scale", 0, "Steering gain")
	webPort := flag.String("web-port", "", "Dashboard port")
	noWeb := flag.Bool("no-web", false, "Disable the dashboard")
	debug := flag.Bool("debug", false, "Enable verbose debug logging")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if *port != "" {
		cfg.Serial.Port = *port
	}
	if *baud > 0 {
		cfg.Serial.BaudRate = *baud
	}
	if *source != "" {
		cfg.Camera.Source = *source
	}
	if *device != "" {
		cfg.Camera.Device = *device
	}
	if *threshold >= 0 {
		cfg.Control.Threshold = *threshold
	}
	if *scale != 0 {
		cfg.Control.Scale = *scale
	}
	if *webPort != "" {
		cfg.Web.Port = *webPort
	}
	if *noWeb {
		cfg.Web.Disabled = true
	}
	if *debug {
		cfg.Log.Level = "debug"
	}
	return cfg, *list
}

func listPorts() {
	ports, err := serialport.List()
	if err != nil {
		log.Error("listing serial ports failed", "error", err)
		os.Exit(1)
	}
	if len(ports) == 0 {
		fmt.Println("No serial ports found")
		return
	}
	for _, p := range ports {
		fmt.Println(p)
	}
}
