package vision

import (
	"image"
	"image/color"
	"image/draw"
)

// NewFrame allocates a w x h frame filled with bg.
func NewFrame(w, h int, bg color.RGBA) *image.RGBA {
	f := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(f, f.Bounds(), &image.Uniform{C: bg}, image.Point{}, draw.Src)
	return f
}

// ToRGBA returns img as an *image.RGBA, converting when needed.
func ToRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return rgba
}
