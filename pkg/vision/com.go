package vision

import (
	"image"
	"image/color"
)

// Mass returns the total mass of the mask.
func (m Mask) Mass() int {
	total := 0
	for _, v := range m {
		total += v
	}
	return total
}

// CenterOfMass returns the mass-weighted mean column of the mask. When the
// mask holds no mass the row midpoint len(m)/2 is returned instead.
func CenterOfMass(m Mask) int {
	total, weighted := 0, 0
	for i, v := range m {
		total += v
		weighted += v * i
	}
	if total <= 0 {
		return len(m) / 2
	}
	return weighted / total
}

// Measurement is the result of measuring one row of a frame.
type Measurement struct {
	Y      int          // Row index that was sampled
	COM    int          // Center of mass column
	Mass   int          // Total mass on the row
	Colors []color.RGBA // Display colors for the row
}

// Found reports whether any line pixel was seen on the row.
func (m Measurement) Found() bool {
	return m.Mass > 0
}

// Measure samples row y of the frame, thresholds it with t and computes its
// center of mass.
func Measure(f *image.RGBA, y, t int) (Measurement, error) {
	row, err := SampleRow(f, y)
	if err != nil {
		return Measurement{}, err
	}
	mask, colors := Threshold(row, t)
	return Measurement{
		Y:      y,
		COM:    CenterOfMass(mask),
		Mass:   mask.Mass(),
		Colors: colors,
	}, nil
}
