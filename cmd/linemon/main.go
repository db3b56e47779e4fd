// linemon - prints live status and console traffic from a running linefollow,
// and adjusts its threshold and modem lines
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/teslashibe/linefollow/internal/log"
	"github.com/teslashibe/linefollow/pkg/console"
	"github.com/teslashibe/linefollow/pkg/follower"
	"github.com/teslashibe/linefollow/pkg/monitor"
)

func main() {
	addr := flag.String("addr", "localhost:8080", "Dashboard address")
	status := flag.Bool("status", true, "Follow session status")
	consoleFeed := flag.Bool("console", true, "Follow the serial console")
	threshold := flag.Int("set-threshold", -1, "Set the darkness threshold (0-255) and exit")
	percent := flag.Int("set-percent", -1, "Set the threshold as a slider percentage (0-100) and exit")
	dtr := flag.String("dtr", "", "Drive DTR (on/off) and exit")
	rts := flag.String("rts", "", "Drive RTS (on/off) and exit")
	flag.Parse()

	log.Init("info")

	c, err := monitor.New(*addr)
	if err != nil {
		log.Error("invalid address", "error", err)
		os.Exit(1)
	}

	if *threshold >= 0 || *percent >= 0 || *dtr != "" || *rts != "" {
		if err := control(c, *threshold, *percent, *dtr, *rts); err != nil {
			log.Error("request failed", "error", err)
			os.Exit(1)
		}
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var wg sync.WaitGroup
	if *status {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := c.WatchStatus(ctx, func(st follower.State) {
				fmt.Printf("\r%s", monitor.FormatState(st))
			})
			if err != nil {
				log.Error("status feed stopped", "error", err)
				cancel()
			}
		}()
	}
	if *consoleFeed {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := c.WatchConsole(ctx, func(e console.Entry) {
				fmt.Printf("\n%s [%s] %s\n", e.Time.Format("15:04:05.000"), e.Kind, e.Text)
			})
			if err != nil {
				log.Error("console feed stopped", "error", err)
				cancel()
			}
		}()
	}
	wg.Wait()
}

// control applies one-shot settings
func control(c *monitor.Client, threshold, percent int, dtr, rts string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if threshold >= 0 || percent >= 0 {
		var t monitor.Threshold
		var err error
		if threshold >= 0 {
			t, err = c.SetThreshold(ctx, threshold)
		} else {
			t, err = c.SetThresholdPercent(ctx, percent)
		}
		if err != nil {
			return err
		}
		fmt.Printf("threshold %d (%d%%)\n", t.Value, t.Percent)
	}

	if dtr != "" || rts != "" {
		d, err := parseLine(dtr)
		if err != nil {
			return err
		}
		r, err := parseLine(rts)
		if err != nil {
			return err
		}
		st, err := c.SetLines(ctx, d, r)
		if err != nil {
			return err
		}
		fmt.Printf("DTR=%v RTS=%v CTS=%v DSR=%v CD=%v RI=%v\n", st.DTR, st.RTS, st.CTS, st.DSR, st.CD, st.RI)
	}
	return nil
}

func parseLine(s string) (*bool, error) {
	switch s {
	case "":
		return nil, nil
	case "on", "1", "true":
		v := true
		return &v, nil
	case "off", "0", "false":
		v := false
		return &v, nil
	}
	return nil, fmt.Errorf("invalid line state %q, want on or off", s)
}
