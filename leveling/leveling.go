// Package leveling provides the bed leveling strategies used by G29, G31
// and G32. Each probes a set of points and installs a Z compensation on the
// machine.
package leveling

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/mastercactapus/zprobe/coord"
	"github.com/mastercactapus/zprobe/gcode"
	"github.com/mastercactapus/zprobe/meshlevel"
)

// ErrNotTriggered is returned when a point could not be probed.
var ErrNotTriggered = errors.New("probe not triggered")

// Prober probes at a machine XY position, returning to the starting height.
// The result is the distance travelled down until contact.
type Prober interface {
	ProbeAt(x, y float64) (float64, bool, error)
}

// Compensator holds the Z compensation of the machine.
type Compensator interface {
	SetCompensation(z meshlevel.ZOffsetter)
	Compensation() meshlevel.ZOffsetter
}

// probePoints probes each XY point. The Z of each result is the surface
// height relative to the starting height.
func probePoints(p Prober, points []coord.Point, out io.Writer, l log.FieldLogger) ([]coord.Point, error) {
	res := make([]coord.Point, 0, len(points))
	for i, pt := range points {
		mm, ok, err := p.ProbeAt(pt.X, pt.Y)
		if err != nil {
			return nil, errors.Wrapf(err, "probe point %d", i+1)
		}
		if !ok {
			return nil, errors.Wrapf(ErrNotTriggered, "probe point %d at X%1.3f Y%1.3f", i+1, pt.X, pt.Y)
		}
		pt.Z = -mm
		l.WithFields(log.Fields{"x": pt.X, "y": pt.Y, "z": pt.Z}).Debug("probed point")
		fmt.Fprintf(out, "Probe point %d: X%1.3f Y%1.3f Z%1.4f\n", i+1, pt.X, pt.Y, pt.Z)
		res = append(res, pt)
	}
	return res, nil
}

// command returns the G or M code of b, with ok false if b has none.
func command(b gcode.Block) (w byte, code int, ok bool) {
	cmd, ok := b.Command()
	if !ok {
		return 0, 0, false
	}
	return cmd.W, cmd.Code(), true
}
