package leveling

import (
	"fmt"
	"io"

	log "github.com/sirupsen/logrus"

	"github.com/mastercactapus/zprobe/coord"
	"github.com/mastercactapus/zprobe/gcode"
)

type ThreePointConfig struct {
	// Points are the XY machine positions probed by G29 and G32.
	Points [3]coord.Point

	Prober  Prober
	Machine Compensator
	Logger  log.FieldLogger
}

// ThreePoint levels the bed as a plane through three probed points.
//
//	G29       probe the points and report them
//	G31       report the installed plane
//	G32       probe the points and install the plane
//	M557 Pn   set point n (0-2) to X Y
//	M561      clear compensation
type ThreePoint struct {
	points [3]coord.Point
	plane  *coord.Plane

	p   Prober
	m   Compensator
	log log.FieldLogger
}

func NewThreePoint(cfg ThreePointConfig) *ThreePoint {
	s := &ThreePoint{
		points: cfg.Points,
		p:      cfg.Prober,
		m:      cfg.Machine,
		log:    cfg.Logger,
	}
	if s.log == nil {
		s.log = log.StandardLogger()
	}
	return s
}

func (s *ThreePoint) Points() [3]coord.Point { return s.points }

// Plane returns the installed plane, or nil.
func (s *ThreePoint) Plane() *coord.Plane { return s.plane }

func (s *ThreePoint) HandleGCode(b gcode.Block, out io.Writer) bool {
	w, code, ok := command(b)
	if !ok {
		return false
	}

	switch {
	case w == 'G' && code == 29:
		s.probe(out)
	case w == 'G' && code == 31:
		s.report(out)
	case w == 'G' && code == 32:
		if plane, ok := s.probe(out); ok {
			s.install(plane, out)
		}
	case w == 'M' && code == 557:
		s.setPoint(b, out)
	case w == 'M' && code == 561:
		s.clear()
	default:
		return false
	}
	return true
}

func (s *ThreePoint) probe(out io.Writer) (coord.Plane, bool) {
	// probing must not be skewed by a previous plane
	s.clear()

	res, err := probePoints(s.p, s.points[:], out, s.log)
	if err != nil {
		s.log.WithError(err).Error("three point probe")
		fmt.Fprintf(out, "error:%s\n", err)
		return coord.Plane{}, false
	}

	plane := coord.Plane{res[0], res[1], res[2]}
	if !plane.Valid() {
		io.WriteString(out, "error:probe points are collinear\n")
		return plane, false
	}
	return plane, true
}

func (s *ThreePoint) install(plane coord.Plane, out io.Writer) {
	s.plane = &plane
	s.m.SetCompensation(plane)
	s.report(out)
}

func (s *ThreePoint) clear() {
	if s.plane == nil {
		return
	}
	s.plane = nil
	s.m.SetCompensation(nil)
	s.log.Info("plane compensation cleared")
}

func (s *ThreePoint) report(out io.Writer) {
	if s.plane == nil {
		io.WriteString(out, "no plane set\n")
		return
	}
	p := *s.plane
	z0 := p.Z(0, 0)
	fmt.Fprintf(out, "plane: Z%1.4f at X0 Y0, slope X%1.6f Y%1.6f\n", z0, p.Z(1, 0)-z0, p.Z(0, 1)-z0)
}

func (s *ThreePoint) setPoint(b gcode.Block, out io.Writer) {
	i := int(b.Get('P'))
	if i < 0 || i > 2 {
		io.WriteString(out, "error:only P0 to P2 supported\n")
		return
	}
	if ok, x := b.Arg('X'); ok {
		s.points[i].X = x
	}
	if ok, y := b.Arg('Y'); ok {
		s.points[i].Y = y
	}
}
