package coord

import "math"

const (
	// Epsilon is how far outside of a triangle (or mesh) a point may be
	// and still be considered inside.
	Epsilon   = 0.001
	epsilonSq = Epsilon * Epsilon
)

type Triangle struct{ A, B, C Point }

// weights returns u and v such that x,y = A + u(B-A) + v(C-A) in the XY
// projection. ok is false for a degenerate triangle.
func (t Triangle) weights(x, y float64) (u, v float64, ok bool) {
	e1, e2 := t.B.Sub(t.A), t.C.Sub(t.A)
	det := e1.X*e2.Y - e2.X*e1.Y
	if math.Abs(det) <= epsilonSq {
		return 0, 0, false
	}
	dx, dy := x-t.A.X, y-t.A.Y
	u = (dx*e2.Y - e2.X*dy) / det
	v = (e1.X*dy - dx*e1.Y) / det
	return u, v, true
}

// ContainsXY reports whether x,y is inside the XY projection of t, or
// within Epsilon of one of its edges.
func (t Triangle) ContainsXY(x, y float64) bool {
	u, v, ok := t.weights(x, y)
	if !ok {
		return false
	}
	if u >= 0 && v >= 0 && u+v <= 1 {
		return true
	}

	return segmentDistSq(t.A, t.B, x, y) <= epsilonSq ||
		segmentDistSq(t.B, t.C, x, y) <= epsilonSq ||
		segmentDistSq(t.C, t.A, x, y) <= epsilonSq
}

// Z interpolates the height at x,y from the corners.
func (t Triangle) Z(x, y float64) float64 {
	u, v, _ := t.weights(x, y)
	return t.A.Z + u*(t.B.Z-t.A.Z) + v*(t.C.Z-t.A.Z)
}

// segmentDistSq is the squared XY distance from x,y to the segment a-b.
func segmentDistSq(a, b Point, x, y float64) float64 {
	dx, dy := b.X-a.X, b.Y-a.Y
	lenSq := dx*dx + dy*dy
	t := 0.0
	if lenSq > 0 {
		t = math.Max(0, math.Min(1, ((x-a.X)*dx+(y-a.Y)*dy)/lenSq))
	}
	px, py := a.X+t*dx-x, a.Y+t*dy-y
	return px*px + py*py
}
