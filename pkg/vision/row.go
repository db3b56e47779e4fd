// Package vision extracts line measurements from camera frames.
//
// A measurement looks at a single pixel row: each pixel is classified as
// line or background, and the center of mass of the line pixels gives the
// horizontal position of the line on that row.
package vision

import (
	"errors"
	"fmt"
	"image"
	"image/color"
)

var (
	// ErrEmptyFrame is returned for nil frames or frames with no pixels.
	ErrEmptyFrame = errors.New("vision: empty frame")

	// ErrRowOutOfBounds is returned when a row index falls outside the frame.
	ErrRowOutOfBounds = errors.New("vision: row out of bounds")
)

// Row is one horizontal line of pixels, left to right.
type Row []color.RGBA

// SampleRow copies row y out of the frame. y is relative to the top of the
// frame bounds. The returned row does not alias the frame buffer.
func SampleRow(f *image.RGBA, y int) (Row, error) {
	if err := checkFrame(f); err != nil {
		return nil, err
	}
	b := f.Bounds()
	if y < 0 || y >= b.Dy() {
		return nil, fmt.Errorf("%w: y=%d height=%d", ErrRowOutOfBounds, y, b.Dy())
	}

	row := make(Row, b.Dx())
	off := f.PixOffset(b.Min.X, b.Min.Y+y)
	for i := range row {
		p := f.Pix[off+i*4 : off+i*4+4 : off+i*4+4]
		row[i] = color.RGBA{R: p[0], G: p[1], B: p[2], A: p[3]}
	}
	return row, nil
}

// PaintRow overwrites row y of the frame with colors. Extra colors past the
// frame width are ignored.
func PaintRow(f *image.RGBA, y int, colors []color.RGBA) error {
	if err := checkFrame(f); err != nil {
		return err
	}
	b := f.Bounds()
	if y < 0 || y >= b.Dy() {
		return fmt.Errorf("%w: y=%d height=%d", ErrRowOutOfBounds, y, b.Dy())
	}

	n := min(len(colors), b.Dx())
	off := f.PixOffset(b.Min.X, b.Min.Y+y)
	for i := 0; i < n; i++ {
		c := colors[i]
		f.Pix[off+i*4+0] = c.R
		f.Pix[off+i*4+1] = c.G
		f.Pix[off+i*4+2] = c.B
		f.Pix[off+i*4+3] = c.A
	}
	return nil
}

func checkFrame(f *image.RGBA) error {
	if f == nil || f.Bounds().Empty() {
		return ErrEmptyFrame
	}
	return nil
}
