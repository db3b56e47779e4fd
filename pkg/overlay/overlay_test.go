package overlay

import (
	"bytes"
	"image/jpeg"
	"testing"
	"time"

	"github.com/teslashibe/linefollow/internal/log"
	"github.com/teslashibe/linefollow/pkg/follower"
	"github.com/teslashibe/linefollow/pkg/vision"
)

func testAnnotations() []follower.Annotation {
	return []follower.Annotation{
		{Kind: follower.AnnotationCircle, X: 100, Y: 150, Radius: 5},
		{Kind: follower.AnnotationCircle, X: 300, Y: 300, Radius: 5},
		{Kind: follower.AnnotationText, X: 10, Y: 200, Text: "COM near = 100"},
	}
}

func TestRender(t *testing.T) {
	r := NewRenderer(DefaultConfig(), nil, log.Discard())
	frame := vision.NewFrame(640, 480, vision.BackgroundColor)

	data, err := r.Render(frame, testAnnotations())
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Expected valid JPEG: %v", err)
	}
	if img.Bounds().Dx() != 640 || img.Bounds().Dy() != 480 {
		t.Errorf("Expected 640x480 JPEG, got %v", img.Bounds())
	}

	// The source frame is not drawn on
	if frame.RGBAAt(100, 145) != vision.BackgroundColor {
		t.Error("Expected source frame untouched")
	}
}

func TestPresent_Throttles(t *testing.T) {
	var published int
	r := NewRenderer(DefaultConfig(), func([]byte) { published++ }, log.Discard())

	clock := time.Unix(0, 0)
	r.now = func() time.Time { return clock }

	frame := vision.NewFrame(640, 480, vision.BackgroundColor)
	r.Present(frame, testAnnotations())
	clock = clock.Add(10 * time.Millisecond)
	r.Present(frame, testAnnotations())
	clock = clock.Add(100 * time.Millisecond)
	r.Present(frame, testAnnotations())

	if published != 2 {
		t.Errorf("Expected 2 published frames, got %d", published)
	}
}
