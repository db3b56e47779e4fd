package follower

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/linefollow/internal/log"
	"github.com/teslashibe/linefollow/pkg/command"
	"github.com/teslashibe/linefollow/pkg/steering"
	"github.com/teslashibe/linefollow/pkg/vision"
)

// FrameSource delivers frames to onFrame as they become ready, until ctx is
// cancelled or the source fails. Each frame handed over belongs to the
// receiver.
type FrameSource interface {
	Stream(ctx context.Context, onFrame func(*image.RGBA)) error
}

// Display receives the composed frame and its annotations. Best effort.
type Display interface {
	Present(frame *image.RGBA, annotations []Annotation)
}

// AnnotationKind tells circles from text
type AnnotationKind string

const (
	AnnotationCircle AnnotationKind = "circle"
	AnnotationText   AnnotationKind = "text"
)

// Annotation is a drawing primitive for the overlay
type Annotation struct {
	Kind   AnnotationKind `json:"kind"`
	X      int            `json:"x"`
	Y      int            `json:"y"`
	Radius int            `json:"radius,omitempty"`
	Text   string         `json:"text,omitempty"`
}

// RowResult is the measurement of one sampled row
type RowResult struct {
	Y    int `json:"y"`
	COM  int `json:"com"`
	Mass int `json:"mass"`
}

// Result describes one processed frame
type Result struct {
	Seq         uint64           `json:"seq"`
	Width       int              `json:"width"`
	Threshold   int              `json:"threshold"`
	Near        RowResult        `json:"near"`
	Far         RowResult        `json:"far"`
	Command     steering.Command `json:"command"`
	Delivered   bool             `json:"delivered"`
	FPS         float64          `json:"fps"`
	Duration    time.Duration    `json:"duration"`
	Annotations []Annotation     `json:"annotations"`
}

// Loop processes frames one at a time on a single worker goroutine.
//
// Frames arrive through Submit. When a frame is still waiting as the next one
// arrives, the waiting frame is dropped: the loop always works on the newest
// frame and never queues behind a slow one.
type Loop struct {
	cfg       Config
	threshold *Threshold
	sink      *command.Sink
	log       *slog.Logger
	fps       FPSMeter
	now       func() time.Time

	mu      sync.Mutex
	pending *image.RGBA
	signal  chan struct{}
	display Display
	last    Result

	seq       atomic.Uint64
	processed atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64

	handlersMu sync.RWMutex
	onResult   []func(Result)
	onError    []func(error)
}

// NewLoop creates a frame loop. threshold and sink are shared with the caller.
func NewLoop(cfg Config, threshold *Threshold, sink *command.Sink, logger *slog.Logger) *Loop {
	return &Loop{
		cfg:       cfg,
		threshold: threshold,
		sink:      sink,
		log:       log.Or(logger),
		now:       time.Now,
		signal:    make(chan struct{}, 1),
	}
}

// Config returns the loop configuration
func (l *Loop) Config() Config {
	return l.cfg
}

// SetDisplay sets where composed frames go. nil disables presentation.
func (l *Loop) SetDisplay(d Display) {
	l.mu.Lock()
	l.display = d
	l.mu.Unlock()
}

// OnResult registers a handler called after every processed frame.
func (l *Loop) OnResult(fn func(Result)) {
	l.handlersMu.Lock()
	l.onResult = append(l.onResult, fn)
	l.handlersMu.Unlock()
}

// OnError registers a handler called for every frame that failed.
func (l *Loop) OnError(fn func(error)) {
	l.handlersMu.Lock()
	l.onError = append(l.onError, fn)
	l.handlersMu.Unlock()
}

// Submit hands a frame to the loop. It never blocks.
func (l *Loop) Submit(frame *image.RGBA) {
	l.mu.Lock()
	if l.pending != nil {
		l.dropped.Add(1)
	}
	l.pending = frame
	l.mu.Unlock()

	select {
	case l.signal <- struct{}{}:
	default:
	}
}

// Run processes submitted frames until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) {
	l.log.Info("frame loop started",
		"near_row", l.cfg.NearRow(), "far_row", l.cfg.FarRow(),
		"baseline", l.cfg.Steering.Baseline, "scale", l.cfg.Steering.Scale)
	defer l.log.Info("frame loop stopped",
		"processed", l.processed.Load(), "failed", l.failed.Load(), "dropped", l.dropped.Load())

	for {
		select {
		case <-ctx.Done():
			return
		case <-l.signal:
			l.mu.Lock()
			frame := l.pending
			l.pending = nil
			l.mu.Unlock()
			if frame == nil {
				continue
			}
			l.handle(frame)
		}
	}
}

func (l *Loop) handle(frame *image.RGBA) {
	res, err := l.Process(frame)

	l.handlersMu.RLock()
	defer l.handlersMu.RUnlock()

	if err != nil {
		l.log.Warn("frame skipped", "error", err)
		for _, fn := range l.onError {
			fn(err)
		}
		return
	}
	for _, fn := range l.onResult {
		fn(res)
	}
}

// Process runs the full pipeline on one frame: measure both rows, compute
// the command, send it, paint the sampled rows and present the overlay.
// A failed write is not an error; Result.Delivered reports it.
func (l *Loop) Process(frame *image.RGBA) (Result, error) {
	start := l.now()
	seq := l.seq.Add(1)
	t := l.threshold.Value()

	near, err := vision.Measure(frame, l.cfg.NearRow(), t)
	if err != nil {
		l.failed.Add(1)
		return Result{}, fmt.Errorf("frame %d: near row: %w", seq, err)
	}
	far, err := vision.Measure(frame, l.cfg.FarRow(), t)
	if err != nil {
		l.failed.Add(1)
		return Result{}, fmt.Errorf("frame %d: far row: %w", seq, err)
	}

	width := frame.Bounds().Dx()
	sc := l.cfg.Steering
	if sc.FrameCenter == 0 {
		sc.FrameCenter = width / 2
	}
	cmd := sc.Compute(near.COM, far.COM)
	delivered := l.sink.Send(cmd.Value)

	// Both rows were just sampled, so painting cannot fail
	_ = vision.PaintRow(frame, near.Y, near.Colors)
	_ = vision.PaintRow(frame, far.Y, far.Colors)

	end := l.now()
	res := Result{
		Seq:       seq,
		Width:     width,
		Threshold: t,
		Near:      RowResult{Y: near.Y, COM: near.COM, Mass: near.Mass},
		Far:       RowResult{Y: far.Y, COM: far.COM, Mass: far.Mass},
		Command:   cmd,
		Delivered: delivered,
		FPS:       l.fps.Tick(end),
		Duration:  end.Sub(start),
	}
	res.Annotations = l.annotate(res)

	l.mu.Lock()
	l.last = res
	display := l.display
	l.mu.Unlock()
	l.processed.Add(1)

	if display != nil {
		display.Present(frame, res.Annotations)
	}
	return res, nil
}

func (l *Loop) annotate(res Result) []Annotation {
	r := l.cfg.MarkerRadius
	return []Annotation{
		{Kind: AnnotationCircle, X: res.Near.COM, Y: res.Near.Y, Radius: r},
		{Kind: AnnotationCircle, X: res.Far.COM, Y: res.Far.Y, Radius: r},
		{Kind: AnnotationText, X: 10, Y: 200, Text: fmt.Sprintf("COM near = %d", res.Near.COM)},
		{Kind: AnnotationText, X: 10, Y: 220, Text: fmt.Sprintf("COM far = %d", res.Far.COM)},
		{Kind: AnnotationText, X: 10, Y: 240, Text: fmt.Sprintf("Proportion = %d", res.Command.Value)},
		{Kind: AnnotationText, X: 10, Y: 260, Text: fmt.Sprintf("FPS %.0f", res.FPS)},
	}
}

// Last returns the most recent successful result.
func (l *Loop) Last() Result {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.last
}

// Stats are the loop counters
type Stats struct {
	Processed uint64  `json:"processed"`
	Failed    uint64  `json:"failed"`
	Dropped   uint64  `json:"dropped"`
	FPS       float64 `json:"fps"`
}

// Stats returns the loop counters.
func (l *Loop) Stats() Stats {
	return Stats{
		Processed: l.processed.Load(),
		Failed:    l.failed.Load(),
		Dropped:   l.dropped.Load(),
		FPS:       l.fps.FPS(),
	}
}
