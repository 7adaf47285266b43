// Package coord has the geometry used for probing and leveling. All values
// are in mm.
package coord

import "math"

type Point struct{ X, Y, Z float64 }

func (p Point) Equal(b Point) bool { return p == b }

func (p Point) Add(b Point) Point { return Point{p.X + b.X, p.Y + b.Y, p.Z + b.Z} }

func (p Point) Sub(b Point) Point { return Point{p.X - b.X, p.Y - b.Y, p.Z - b.Z} }

func (p Point) Scale(f float64) Point { return Point{p.X * f, p.Y * f, p.Z * f} }

func (p Point) Dot(b Point) float64 { return p.X*b.X + p.Y*b.Y + p.Z*b.Z }

func (p Point) Cross(b Point) Point {
	return Point{
		p.Y*b.Z - p.Z*b.Y,
		p.Z*b.X - p.X*b.Z,
		p.X*b.Y - p.Y*b.X,
	}
}

// Length is the distance from the origin to p.
func (p Point) Length() float64 { return math.Sqrt(p.Dot(p)) }

// DistanceXY is the distance from p to x,y, ignoring Z.
func (p Point) DistanceXY(x, y float64) float64 { return math.Hypot(x-p.X, y-p.Y) }
