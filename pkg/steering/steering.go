package steering

// Command is the output of the control law for one frame
type Command struct {
	Value      int `json:"value"`      // Value sent to the device
	Center     int `json:"center"`     // Midpoint of the two line positions
	Difference int `json:"difference"` // comFar - comNear, the skew between the rows
}

// Compute combines the near and far line positions into a command.
//
//	difference = comFar - comNear
//	center     = (comFar + comNear) / 2
//	value      = baseline + (center-frameCenter)*scale + difference*scale
//
// The first term steers back toward the middle of the frame, the second
// anticipates an upcoming turn.
func (c Config) Compute(comNear, comFar int) Command {
	difference := comFar - comNear
	center := (comFar + comNear) / 2
	return Command{
		Value:      c.Baseline + (center-c.FrameCenter)*c.Scale + difference*c.Scale,
		Center:     center,
		Difference: difference,
	}
}

// Offset returns how far the command deviates from straight ahead
func (c Config) Offset(cmd Command) int {
	return cmd.Value - c.Baseline
}
