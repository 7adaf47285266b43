package coord

// Axis indices for the three primary linear axes.
const (
	X = iota
	Y
	Z
)

// AxisName returns the gcode letter for the axis index.
func AxisName(axis int) byte {
	return "XYZ"[axis]
}

// Axis returns the component of p for the given axis index.
func (p Point) Axis(axis int) float64 {
	switch axis {
	case X:
		return p.X
	case Y:
		return p.Y
	}
	return p.Z
}

// SetAxis returns a copy of p with a single component replaced.
func (p Point) SetAxis(axis int, val float64) Point {
	switch axis {
	case X:
		p.X = val
	case Y:
		p.Y = val
	default:
		p.Z = val
	}
	return p
}
