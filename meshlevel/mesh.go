// Package meshlevel interpolates Z offsets from a set of probed points.
package meshlevel

import (
	"math"

	"github.com/fogleman/delaunay"
	"github.com/pkg/errors"

	"github.com/mastercactapus/zprobe/coord"
)

// ErrTooFewPoints is returned by NewMesh for fewer than 3 points.
var ErrTooFewPoints = errors.New("need at least 3 points to create a mesh")

// Mesh is a Delaunay triangulation of probed points. Heights are
// interpolated linearly within each triangle; outside the hull there is no
// offset.
type Mesh struct {
	min, max  coord.Point
	triangles []coord.Triangle
}

var _ ZOffsetter = &Mesh{}

func NewMesh(points []coord.Point) (*Mesh, error) {
	if len(points) < 3 {
		return nil, ErrTooFewPoints
	}

	m := &Mesh{min: points[0], max: points[0]}
	xy := make([]delaunay.Point, len(points))
	for i, p := range points {
		xy[i] = delaunay.Point{X: p.X, Y: p.Y}
		m.min.X, m.max.X = math.Min(m.min.X, p.X), math.Max(m.max.X, p.X)
		m.min.Y, m.max.Y = math.Min(m.min.Y, p.Y), math.Max(m.max.Y, p.Y)
		m.min.Z, m.max.Z = math.Min(m.min.Z, p.Z), math.Max(m.max.Z, p.Z)
	}

	tri, err := delaunay.Triangulate(xy)
	if err != nil {
		return nil, errors.Wrap(err, "triangulate")
	}

	// indexes refer to the input points
	idx := tri.Triangles
	m.triangles = make([]coord.Triangle, 0, len(idx)/3)
	for i := 0; i+2 < len(idx); i += 3 {
		m.triangles = append(m.triangles, coord.Triangle{
			A: points[idx[i]],
			B: points[idx[i+1]],
			C: points[idx[i+2]],
		})
	}
	if len(m.triangles) == 0 {
		return nil, errors.New("points are collinear")
	}

	return m, nil
}

// Triangles returns the triangulation.
func (m *Mesh) Triangles() []coord.Triangle { return m.triangles }

// Bounds returns the corners of the box containing every point.
func (m *Mesh) Bounds() (min, max coord.Point) { return m.min, m.max }

func (m *Mesh) OffsetZ(x, y float64) (bool, float64) {
	if x < m.min.X-coord.Epsilon || m.max.X+coord.Epsilon < x ||
		y < m.min.Y-coord.Epsilon || m.max.Y+coord.Epsilon < y {
		return false, 0
	}
	for _, t := range m.triangles {
		if t.ContainsXY(x, y) {
			return true, t.Z(x, y)
		}
	}
	return false, 0
}
