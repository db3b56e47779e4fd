// linedev - stands in for the drive controller: reads steering commands
// from a serial port and prints them
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/teslashibe/linefollow/internal/log"
	"github.com/teslashibe/linefollow/pkg/command"
	"github.com/teslashibe/linefollow/pkg/serialport"
	"github.com/teslashibe/linefollow/pkg/steering"
)

func main() {
	port := flag.String("port", "", "Serial device to listen on (required)")
	baud := flag.Int("baud", 115200, "Serial baud rate")
	baseline := flag.Int("baseline", steering.DefaultBaseline, "Straight-ahead value")
	ack := flag.Bool("ack", false, "Answer every command with OK")
	flag.Parse()

	log.Init("info")

	if *port == "" {
		fmt.Fprintln(os.Stderr, "Error: -port is required")
		os.Exit(1)
	}

	cfg := serialport.DefaultConfig()
	cfg.Name, cfg.BaudRate = *port, *baud
	// Block on reads; the scanner only returns on a full line
	cfg.ReadTimeout = serialport.NoTimeout

	p, err := serialport.Open(cfg)
	if err != nil {
		log.Error("open failed", "error", err)
		os.Exit(1)
	}
	defer p.Close()

	log.Info("listening for commands", "port", *port, "baud", *baud)

	sc := command.NewScanner(p)
	for sc.Scan() {
		v := sc.Value()
		fmt.Printf("%6d  offset %+d\n", v, v-*baseline)
		if *ack {
			if err := p.WriteTimeout([]byte("OK\n"), cfg.WriteTimeout); err != nil {
				log.Warn("ack failed", "error", err)
			}
		}
	}
	if err := sc.Err(); err != nil {
		log.Error("read failed", "error", err)
		os.Exit(1)
	}
}
