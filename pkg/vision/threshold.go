package vision

import "image/color"

// Mass values written into a Mask.
const (
	LineMass       = 255
	BackgroundMass = 0
)

// Display colors used when painting a thresholded row back into a frame.
var (
	LineColor       = color.RGBA{R: 0, G: 0, B: 0, A: 255}
	BackgroundColor = color.RGBA{R: 0, G: 255, B: 0, A: 255}
)

// Mask holds one mass value per pixel of a row: LineMass or BackgroundMass.
type Mask []int

// Darkness scores a pixel as 255 - (green - red). Blue is ignored. The
// result lies in [0, 510].
func Darkness(c color.RGBA) int {
	return 255 - (int(c.G) - int(c.R))
}

// Threshold classifies every pixel of row: a pixel whose darkness exceeds t is
// line, anything else is background. It returns the mass mask and a parallel
// slice of display colors (black for line, green for background).
func Threshold(row Row, t int) (Mask, []color.RGBA) {
	mask := make(Mask, len(row))
	colors := make([]color.RGBA, len(row))
	for i, px := range row {
		if Darkness(px) > t {
			mask[i] = LineMass
			colors[i] = LineColor
		} else {
			mask[i] = BackgroundMass
			colors[i] = BackgroundColor
		}
	}
	return mask, colors
}
