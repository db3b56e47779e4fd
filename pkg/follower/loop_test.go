package follower

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/teslashibe/linefollow/internal/log"
	"github.com/teslashibe/linefollow/pkg/command"
	"github.com/teslashibe/linefollow/pkg/vision"
)

var (
	background = color.RGBA{G: 255, A: 255}
	line       = color.RGBA{A: 255}
)

// recordingChannel captures written commands.
type recordingChannel struct {
	mu     sync.Mutex
	values []int
	err    error
}

func (c *recordingChannel) WriteTimeout(p []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	v, err := command.Parse(p)
	if err != nil {
		return err
	}
	c.values = append(c.values, v)
	return nil
}

func (c *recordingChannel) Values() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int(nil), c.values...)
}

func (c *recordingChannel) SetErr(err error) {
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
}

// lineFrame builds a 640x480 background frame with one line pixel on the
// near and far rows.
func lineFrame(nearX, farX int) *image.RGBA {
	f := vision.NewFrame(640, 480, background)
	f.SetRGBA(nearX, 150, line)
	f.SetRGBA(farX, 300, line)
	return f
}

func newTestLoop(ch command.Channel, threshold int) *Loop {
	sink := command.NewSink(ch, 0, log.Discard())
	return NewLoop(DefaultConfig(), NewThreshold(threshold), sink, log.Discard())
}

// recordingDisplay captures presented annotations.
type recordingDisplay struct {
	frames      int
	annotations []Annotation
	nearPixel   color.RGBA
}

func (d *recordingDisplay) Present(frame *image.RGBA, ann []Annotation) {
	d.frames++
	d.annotations = ann
	d.nearPixel = frame.RGBAAt(0, 150)
}

func TestProcess_EndToEnd(t *testing.T) {
	ch := &recordingChannel{}
	l := newTestLoop(ch, 50)

	res, err := l.Process(lineFrame(100, 300))
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if res.Near.COM != 100 || res.Far.COM != 300 {
		t.Errorf("Expected COMs 100/300, got %d/%d", res.Near.COM, res.Far.COM)
	}
	if res.Command.Center != 200 || res.Command.Difference != 200 {
		t.Errorf("Expected center=200 difference=200, got %+v", res.Command)
	}
	if res.Command.Value != 1960 {
		t.Errorf("Expected control 1960, got %d", res.Command.Value)
	}
	if !res.Delivered {
		t.Error("Expected command to be delivered")
	}
	if got := ch.Values(); len(got) != 1 || got[0] != 1960 {
		t.Errorf("Expected 1960 written, got %v", got)
	}
	if res.Threshold != 50 || res.Width != 640 {
		t.Errorf("Unexpected result metadata %+v", res)
	}
}

func TestProcess_NoLineGoesStraight(t *testing.T) {
	ch := &recordingChannel{}
	l := newTestLoop(ch, 50)

	res, err := l.Process(vision.NewFrame(640, 480, background))
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if res.Near.COM != 320 || res.Far.COM != 320 {
		t.Errorf("Expected midpoint fallback, got %d/%d", res.Near.COM, res.Far.COM)
	}
	if res.Command.Value != 1000 {
		t.Errorf("Expected baseline 1000, got %d", res.Command.Value)
	}
}

func TestProcess_WriteFailureIsSwallowed(t *testing.T) {
	ch := &recordingChannel{}
	ch.SetErr(errors.New("write timeout"))
	l := newTestLoop(ch, 50)

	res, err := l.Process(lineFrame(100, 300))
	if err != nil {
		t.Fatalf("Expected write failure to be swallowed, got %v", err)
	}
	if res.Delivered {
		t.Error("Expected Delivered=false")
	}
	if res.Command.Value != 1960 {
		t.Errorf("Expected control still computed, got %d", res.Command.Value)
	}

	// Next frame goes through once the channel recovers
	ch.SetErr(nil)
	res, err = l.Process(lineFrame(320, 320))
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if !res.Delivered || res.Command.Value != 1000 {
		t.Errorf("Expected 1000 delivered, got %+v", res)
	}
	if got := ch.Values(); len(got) != 1 || got[0] != 1000 {
		t.Errorf("Expected only the second command written, got %v", got)
	}
}

func TestProcess_MalformedFrame(t *testing.T) {
	l := newTestLoop(&recordingChannel{}, 50)

	_, err := l.Process(vision.NewFrame(640, 200, background))
	if !errors.Is(err, vision.ErrRowOutOfBounds) {
		t.Errorf("Expected ErrRowOutOfBounds for short frame, got %v", err)
	}
	_, err = l.Process(nil)
	if !errors.Is(err, vision.ErrEmptyFrame) {
		t.Errorf("Expected ErrEmptyFrame, got %v", err)
	}
	if l.Stats().Failed != 2 {
		t.Errorf("Expected 2 failed frames, got %d", l.Stats().Failed)
	}

	// Loop is still usable
	if _, err := l.Process(lineFrame(100, 300)); err != nil {
		t.Errorf("Expected loop to recover, got %v", err)
	}
}

func TestProcess_ThresholdReadPerFrame(t *testing.T) {
	ch := &recordingChannel{}
	l := newTestLoop(ch, 50)

	// Dim pixel: darkness 255 - (150 - 100) = 205
	f := vision.NewFrame(640, 480, background)
	f.SetRGBA(100, 150, color.RGBA{R: 100, G: 150, A: 255})

	res, _ := l.Process(f)
	if res.Near.Mass == 0 {
		t.Error("Expected dim pixel to count as line at threshold 50")
	}

	l.threshold.Set(210)
	f = vision.NewFrame(640, 480, background)
	f.SetRGBA(100, 150, color.RGBA{R: 100, G: 150, A: 255})
	res, _ = l.Process(f)
	if res.Near.Mass != 0 {
		t.Error("Expected dim pixel to be background at threshold 210")
	}
}

func TestProcess_PaintsAndAnnotates(t *testing.T) {
	l := newTestLoop(&recordingChannel{}, 50)
	d := &recordingDisplay{}
	l.SetDisplay(d)

	f := lineFrame(100, 300)
	f.SetRGBA(0, 150, color.RGBA{R: 10, G: 200, B: 77, A: 255}) // darkness 65
	if _, err := l.Process(f); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if d.frames != 1 {
		t.Fatalf("Expected one presented frame, got %d", d.frames)
	}
	if d.nearPixel != vision.LineColor {
		t.Errorf("Expected sampled row painted with line color, got %v", d.nearPixel)
	}
	if f.RGBAAt(5, 300) != vision.BackgroundColor {
		t.Errorf("Expected far row painted with background color, got %v", f.RGBAAt(5, 300))
	}

	var circles, texts int
	for _, a := range d.annotations {
		switch a.Kind {
		case AnnotationCircle:
			circles++
			if a.Radius != 5 {
				t.Errorf("Expected radius 5, got %d", a.Radius)
			}
		case AnnotationText:
			texts++
		}
	}
	if circles != 2 || texts != 4 {
		t.Errorf("Expected 2 circles and 4 texts, got %d/%d", circles, texts)
	}
	// Near row has line pixels at 0 and 100, so COM 50; far stays at 300:
	// 1000 + (175-320)*12 + 250*12 = 2260
	if d.annotations[2].Text != "COM near = 50" {
		t.Errorf("Unexpected near text %q", d.annotations[2].Text)
	}
	if d.annotations[4].Text != "Proportion = 2260" {
		t.Errorf("Unexpected proportion text %q", d.annotations[4].Text)
	}
	if d.annotations[0].X != 50 || d.annotations[0].Y != 150 || d.annotations[1].X != 300 || d.annotations[1].Y != 300 {
		t.Errorf("Unexpected circle positions %+v %+v", d.annotations[0], d.annotations[1])
	}
}

func TestProcess_FPS(t *testing.T) {
	l := newTestLoop(&recordingChannel{}, 50)
	clock := time.Unix(0, 0)
	l.now = func() time.Time { return clock }

	res, _ := l.Process(lineFrame(100, 300))
	if res.FPS != 0 {
		t.Errorf("Expected 0 FPS on first frame, got %v", res.FPS)
	}

	clock = clock.Add(40 * time.Millisecond)
	res, _ = l.Process(lineFrame(100, 300))
	if res.FPS != 25 {
		t.Errorf("Expected 25 FPS, got %v", res.FPS)
	}
}

func TestLoop_RunDropsStaleFrames(t *testing.T) {
	ch := &recordingChannel{}
	l := newTestLoop(ch, 50)

	// Queue two frames before the worker starts: the first is replaced
	l.Submit(lineFrame(100, 100))
	l.Submit(lineFrame(320, 320))
	if l.Stats().Dropped != 1 {
		t.Errorf("Expected 1 dropped frame, got %d", l.Stats().Dropped)
	}

	results := make(chan Result, 4)
	l.OnResult(func(r Result) { results <- r })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.Run(ctx)
		close(done)
	}()

	select {
	case r := <-results:
		if r.Command.Value != 1000 {
			t.Errorf("Expected newest frame (1000), got %d", r.Command.Value)
		}
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for result")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Loop did not stop on cancel")
	}
	if got := ch.Values(); len(got) != 1 {
		t.Errorf("Expected exactly one command, got %v", got)
	}
}

func TestLoop_RunReportsErrors(t *testing.T) {
	l := newTestLoop(&recordingChannel{}, 50)

	errs := make(chan error, 1)
	results := make(chan Result, 1)
	l.OnError(func(err error) { errs <- err })
	l.OnResult(func(r Result) { results <- r })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	l.Submit(vision.NewFrame(10, 10, background))
	select {
	case err := <-errs:
		if !errors.Is(err, vision.ErrRowOutOfBounds) {
			t.Errorf("Expected ErrRowOutOfBounds, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for error")
	}

	l.Submit(lineFrame(100, 300))
	select {
	case r := <-results:
		if r.Command.Value != 1960 {
			t.Errorf("Expected 1960 after error, got %d", r.Command.Value)
		}
	case <-time.After(time.Second):
		t.Fatal("Loop did not continue after error")
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(480); err != nil {
		t.Errorf("Expected default config valid for 480 rows, got %v", err)
	}
	if err := cfg.Validate(300); err == nil {
		t.Error("Expected far row 300 to be rejected for height 300")
	}

	cfg.RowsBetween = 0
	if err := cfg.Validate(480); err == nil {
		t.Error("Expected zero RowsBetween to be rejected")
	}
	cfg = DefaultConfig()
	cfg.StartY = -1
	if err := cfg.Validate(480); err == nil {
		t.Error("Expected negative StartY to be rejected")
	}
}

func TestThreshold(t *testing.T) {
	th := NewThreshold(300)
	if th.Value() != 255 {
		t.Errorf("Expected clamp to 255, got %d", th.Value())
	}
	if got := th.Set(-5); got != 0 {
		t.Errorf("Expected clamp to 0, got %d", got)
	}
	if got := th.SetPercent(50); got != 127 {
		t.Errorf("Expected 50%% -> 127, got %d", got)
	}
	if got := th.SetPercent(100); got != 255 {
		t.Errorf("Expected 100%% -> 255, got %d", got)
	}
	if got := th.SetPercent(150); got != 255 {
		t.Errorf("Expected percent clamp, got %d", got)
	}
	th.Set(51)
	if th.Percent() != 20 {
		t.Errorf("Expected 20%%, got %d", th.Percent())
	}
}

func TestThreshold_PercentRoundTrip(t *testing.T) {
	th := NewThreshold(DefaultThreshold)
	for p := 0; p <= 100; p++ {
		th.SetPercent(p)
		if got := th.Percent(); got != p {
			t.Errorf("SetPercent(%d) stored %d, Percent reports %d", p, th.Value(), got)
		}
	}
}

func TestFPSMeter(t *testing.T) {
	var m FPSMeter
	t0 := time.Unix(100, 0)

	if fps := m.Tick(t0); fps != 0 {
		t.Errorf("Expected 0 on first tick, got %v", fps)
	}
	if fps := m.Tick(t0.Add(100 * time.Millisecond)); fps != 10 {
		t.Errorf("Expected 10 FPS, got %v", fps)
	}
	// Same timestamp keeps the previous rate
	if fps := m.Tick(t0.Add(100 * time.Millisecond)); fps != 10 {
		t.Errorf("Expected rate unchanged, got %v", fps)
	}
	if m.FPS() != 10 {
		t.Errorf("Expected FPS()=10, got %v", m.FPS())
	}
}
