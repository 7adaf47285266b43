package leveling

import (
	"fmt"
	"io"
	"math"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/mastercactapus/zprobe/coord"
	"github.com/mastercactapus/zprobe/gcode"
	"github.com/mastercactapus/zprobe/meshlevel"
)

type GridConfig struct {
	// Origin is the XY machine position of the first corner.
	Origin coord.Point

	SizeX, SizeY float64

	// Granularity is the maximum distance between neighboring points,
	// diagonals included.
	Granularity float64

	Prober  Prober
	Machine Compensator
	Logger  log.FieldLogger
}

// Grid levels the bed with a triangulated mesh of probed points.
//
//	G29   probe the grid and report it
//	G31   report the installed mesh
//	G32   probe the grid and install the mesh
//	M561  clear compensation
type Grid struct {
	cfg    GridConfig
	mesh   *meshlevel.Mesh
	probed []coord.Point

	log log.FieldLogger
}

func NewGrid(cfg GridConfig) (*Grid, error) {
	if cfg.Granularity <= 0 {
		return nil, errors.Errorf("granularity must be positive, got %g", cfg.Granularity)
	}
	if cfg.SizeX <= 0 || cfg.SizeY <= 0 {
		return nil, errors.Errorf("grid size must be positive, got %gx%g", cfg.SizeX, cfg.SizeY)
	}
	g := &Grid{cfg: cfg, log: cfg.Logger}
	if g.log == nil {
		g.log = log.StandardLogger()
	}
	return g, nil
}

// GridPoints returns the XY points of a scan over sizeX by sizeY starting
// at origin, where no two neighbors are farther than granularity apart.
//
// Rows alternate direction so the head never travels back across the bed.
func GridPoints(origin coord.Point, sizeX, sizeY, granularity float64) []coord.Point {
	xyDist := math.Sqrt(granularity * granularity / 2)

	xCount := int(math.Ceil(sizeX / xyDist))
	yCount := int(math.Ceil(sizeY / xyDist))

	points := make([]coord.Point, 0, (xCount+1)*(yCount+1))
	for y := 0; y <= yCount; y++ {
		for x := 0; x <= xCount; x++ {
			xVal := sizeX / float64(xCount) * float64(x)
			if y%2 != 0 {
				xVal = sizeX - xVal
			}
			points = append(points, coord.Point{
				X: origin.X + xVal,
				Y: origin.Y + sizeY/float64(yCount)*float64(y),
			})
		}
	}
	return points
}

func (g *Grid) Points() []coord.Point {
	return GridPoints(g.cfg.Origin, g.cfg.SizeX, g.cfg.SizeY, g.cfg.Granularity)
}

// Probed returns the points of the installed mesh, relative to the first.
func (g *Grid) Probed() []coord.Point { return g.probed }

func (g *Grid) HandleGCode(b gcode.Block, out io.Writer) bool {
	w, code, ok := command(b)
	if !ok {
		return false
	}

	switch {
	case w == 'G' && code == 29:
		g.probe(out)
	case w == 'G' && code == 31:
		g.report(out)
	case w == 'G' && code == 32:
		points, mesh, ok := g.probe(out)
		if ok {
			g.probed = points
			g.mesh = mesh
			g.cfg.Machine.SetCompensation(mesh)
			g.report(out)
		}
	case w == 'M' && code == 561:
		g.clear()
	default:
		return false
	}
	return true
}

func (g *Grid) probe(out io.Writer) ([]coord.Point, *meshlevel.Mesh, bool) {
	g.clear()

	res, err := probePoints(g.cfg.Prober, g.Points(), out, g.log)
	if err != nil {
		g.log.WithError(err).Error("grid probe")
		fmt.Fprintf(out, "error:%s\n", err)
		return nil, nil, false
	}

	// offsets are relative to the first point
	res = meshlevel.OffsetFrom(res[0].Z, res)
	mesh, err := meshlevel.NewMesh(res)
	if err != nil {
		g.log.WithError(err).Error("build mesh")
		fmt.Fprintf(out, "error:%s\n", err)
		return nil, nil, false
	}
	return res, mesh, true
}

func (g *Grid) clear() {
	if g.mesh == nil {
		return
	}
	g.mesh = nil
	g.probed = nil
	g.cfg.Machine.SetCompensation(nil)
	g.log.Info("mesh compensation cleared")
}

func (g *Grid) report(out io.Writer) {
	if g.mesh == nil {
		io.WriteString(out, "no mesh set\n")
		return
	}
	lo, hi := g.mesh.Bounds()
	fmt.Fprintf(out, "mesh: %d points, Z%1.4f to Z%1.4f\n", len(g.probed), lo.Z, hi.Z)
}
