package coord

import "math"

// Plane is the plane through three points.
type Plane [3]Point

func (p Plane) normal() Point {
	return p[1].Sub(p[0]).Cross(p[2].Sub(p[0]))
}

// Valid returns false if the XY projections of the points are collinear.
func (p Plane) Valid() bool {
	return math.Abs(p.normal().Z) > epsilonSq
}

// Z returns the height of the plane at x,y.
func (p Plane) Z(x, y float64) float64 {
	n := p.normal()
	return p[0].Z - (n.X*(x-p[0].X)+n.Y*(y-p[0].Y))/n.Z
}

// OffsetZ is the height at x,y relative to the first point.
func (p Plane) OffsetZ(x, y float64) (bool, float64) {
	if !p.Valid() {
		return false, 0
	}
	return true, p.Z(x, y) - p[0].Z
}
