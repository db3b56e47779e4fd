// Package metrics exposes the control loop as prometheus collectors.
package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/teslashibe/linefollow/pkg/follower"
)

const namespace = "linefollow"

// Metrics holds the collectors for one session
type Metrics struct {
	FramesProcessed prometheus.Counter
	FrameErrors     prometheus.Counter
	FramesDropped   prometheus.CounterFunc
	CommandsSent    prometheus.Counter
	CommandsDropped prometheus.Counter
	SerialRxBytes   prometheus.Counter

	FPS          prometheus.Gauge
	ControlValue prometheus.Gauge
	COM          *prometheus.GaugeVec
	LineMass     *prometheus.GaugeVec
	Threshold    prometheus.Gauge
	FrameSeconds prometheus.Histogram

	dropped atomic.Pointer[func() uint64] // Set by Attach
}

// New creates the collectors and registers them with reg.
// A nil reg leaves them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FramesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_processed_total",
			Help:      "Frames that produced a steering command.",
		}),
		FrameErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frame_errors_total",
			Help:      "Frames skipped because of a processing error.",
		}),
		CommandsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_sent_total",
			Help:      "Steering commands written to the serial device.",
		}),
		CommandsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_dropped_total",
			Help:      "Steering commands that could not be written.",
		}),
		SerialRxBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "serial_rx_bytes_total",
			Help:      "Bytes read from the serial device.",
		}),
		FPS: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "fps",
			Help:      "Frame rate measured between consecutive frames.",
		}),
		ControlValue: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "control_value",
			Help:      "Last steering command.",
		}),
		COM: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "center_of_mass",
			Help:      "Last line position per sampled row, in pixels.",
		}, []string{"row"}),
		LineMass: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "line_mass",
			Help:      "Last total line mass per sampled row.",
		}, []string{"row"}),
		Threshold: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "threshold",
			Help:      "Darkness threshold used for the last frame.",
		}),
		FrameSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "frame_duration_seconds",
			Help:      "Time spent processing one frame.",
			Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1},
		}),
	}

	m.FramesDropped = prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "frames_dropped_total",
		Help:      "Frames replaced in the mailbox before being processed.",
	}, m.framesDropped)

	if reg != nil {
		reg.MustRegister(
			m.FramesProcessed, m.FrameErrors, m.FramesDropped,
			m.CommandsSent, m.CommandsDropped, m.SerialRxBytes,
			m.FPS, m.ControlValue, m.COM, m.LineMass, m.Threshold, m.FrameSeconds,
		)
	}
	return m
}

func (m *Metrics) framesDropped() float64 {
	if fn := m.dropped.Load(); fn != nil {
		return float64((*fn)())
	}
	return 0
}

// ObserveResult records one processed frame.
func (m *Metrics) ObserveResult(r follower.Result) {
	m.FramesProcessed.Inc()
	if r.Delivered {
		m.CommandsSent.Inc()
	}
	m.FPS.Set(r.FPS)
	m.ControlValue.Set(float64(r.Command.Value))
	m.COM.WithLabelValues("near").Set(float64(r.Near.COM))
	m.COM.WithLabelValues("far").Set(float64(r.Far.COM))
	m.LineMass.WithLabelValues("near").Set(float64(r.Near.Mass))
	m.LineMass.WithLabelValues("far").Set(float64(r.Far.Mass))
	m.Threshold.Set(float64(r.Threshold))
	m.FrameSeconds.Observe(r.Duration.Seconds())
}

// ObserveError records one skipped frame.
func (m *Metrics) ObserveError(error) {
	m.FrameErrors.Inc()
}

// ObserveDrop records one command that was not written.
func (m *Metrics) ObserveDrop(int, error) {
	m.CommandsDropped.Inc()
}

// ObserveReceive records bytes read from the device.
func (m *Metrics) ObserveReceive(data []byte) {
	m.SerialRxBytes.Add(float64(len(data)))
}

// Attach subscribes the collectors to a session's events.
func (m *Metrics) Attach(s *follower.Session) {
	dropped := func() uint64 { return s.Loop.Stats().Dropped }
	m.dropped.Store(&dropped)

	s.Loop.OnResult(m.ObserveResult)
	s.Loop.OnError(m.ObserveError)
	s.Sink.OnDrop(m.ObserveDrop)
	s.OnReceive(m.ObserveReceive)
}
