// Package monitor follows and drives a running dashboard from another
// process: websocket feeds for status and console, REST for the threshold
// and modem lines.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/linefollow/internal/httpc"
	"github.com/teslashibe/linefollow/pkg/console"
	"github.com/teslashibe/linefollow/pkg/follower"
	"github.com/teslashibe/linefollow/pkg/serialport"
)

// Feed paths served by the dashboard
const (
	StatusPath  = "/ws/status"
	ConsolePath = "/ws/console"
)

// Client talks to one dashboard
type Client struct {
	base   string // ws:// or wss://
	api    string // http:// or https://
	dialer websocket.Dialer
	http   *http.Client
}

// New creates a client for a dashboard at addr ("localhost:8080",
// "http://host:8080" or "ws://host:8080").
func New(addr string) (*Client, error) {
	if !strings.Contains(addr, "://") {
		addr = "ws://" + addr
	}
	u, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("monitor: invalid address %q: %w", addr, err)
	}
	var httpScheme string
	switch u.Scheme {
	case "http", "ws":
		u.Scheme, httpScheme = "ws", "http"
	case "https", "wss":
		u.Scheme, httpScheme = "wss", "https"
	default:
		return nil, fmt.Errorf("monitor: unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/")
	base := u.String()
	u.Scheme = httpScheme

	return &Client{
		base:   base,
		api:    u.String(),
		dialer: websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		http:   httpc.Client,
	}, nil
}

// URL returns the websocket URL for path
func (c *Client) URL(path string) string {
	return c.base + path
}

// Threshold is the dashboard's view of the darkness threshold
type Threshold struct {
	Value   int `json:"value"`
	Percent int `json:"percent"`
}

// Threshold fetches the current threshold
func (c *Client) Threshold(ctx context.Context) (Threshold, error) {
	var t Threshold
	err := httpc.GetJSON(ctx, c.http, c.api+"/api/threshold", &t)
	return t, err
}

// SetThreshold sets the threshold to v (0-255)
func (c *Client) SetThreshold(ctx context.Context, v int) (Threshold, error) {
	var t Threshold
	err := httpc.PostJSON(ctx, c.http, c.api+"/api/threshold", map[string]int{"value": v}, &t)
	return t, err
}

// SetThresholdPercent sets the threshold from a 0-100 slider position
func (c *Client) SetThresholdPercent(ctx context.Context, p int) (Threshold, error) {
	var t Threshold
	err := httpc.PostJSON(ctx, c.http, c.api+"/api/threshold", map[string]int{"percent": p}, &t)
	return t, err
}

// SetLines drives DTR and RTS. nil leaves a line unchanged.
func (c *Client) SetLines(ctx context.Context, dtr, rts *bool) (serialport.ModemStatus, error) {
	req := struct {
		DTR *bool `json:"dtr,omitempty"`
		RTS *bool `json:"rts,omitempty"`
	}{dtr, rts}
	var st serialport.ModemStatus
	err := httpc.PostJSON(ctx, c.http, c.api+"/api/lines", req, &st)
	return st, err
}

// Watch reads messages from path and hands each to fn until ctx is
// cancelled or the connection fails.
func (c *Client) Watch(ctx context.Context, path string, fn func([]byte)) error {
	ws, _, err := c.dialer.DialContext(ctx, c.URL(path), nil)
	if err != nil {
		return fmt.Errorf("monitor: dial %s: %w", path, err)
	}
	defer ws.Close()

	// Unblock ReadMessage on cancel
	stop := context.AfterFunc(ctx, func() {
		ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		ws.Close()
	})
	defer stop()

	for {
		_, msg, err := ws.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("monitor: read %s: %w", path, err)
		}
		fn(msg)
	}
}

// WatchStatus decodes session snapshots from the status feed
func (c *Client) WatchStatus(ctx context.Context, fn func(follower.State)) error {
	return c.Watch(ctx, StatusPath, func(msg []byte) {
		var st follower.State
		if err := json.Unmarshal(msg, &st); err == nil {
			fn(st)
		}
	})
}

// WatchConsole decodes console entries from the console feed
func (c *Client) WatchConsole(ctx context.Context, fn func(console.Entry)) error {
	return c.Watch(ctx, ConsolePath, func(msg []byte) {
		var e console.Entry
		if err := json.Unmarshal(msg, &e); err == nil {
			fn(e)
		}
	})
}

// FormatState renders a snapshot as one status line
func FormatState(st follower.State) string {
	link := "no device"
	if st.Connected {
		link = st.Port
	}
	return fmt.Sprintf("near=%-4d far=%-4d value=%-5d thr=%-3d fps=%5.1f sent=%d dropped=%d [%s]",
		st.Last.Near.COM, st.Last.Far.COM, st.Last.Command.Value, st.Threshold,
		st.FPS, st.CommandsSent, st.CommandsDropped, link)
}
