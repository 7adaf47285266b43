package probe

import (
	"io"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/mastercactapus/zprobe/coord"
	"github.com/mastercactapus/zprobe/gcode"
)

// DefaultDistance makes RunProbe travel twice the configured MaxZ.
const DefaultDistance = -1

// Measurement is the result of a straight probe.
type Measurement struct {
	Axis int

	// Distance travelled along Axis, signed.
	Distance float64

	// Position is the final machine position.
	Position  coord.Point
	Triggered bool
}

// EngineConfig configures a new Engine.
type EngineConfig struct {
	Settings  Settings
	Input     *Input
	Session   *Session
	Actuators Actuators
	Machine   Machine

	Logger log.FieldLogger

	// Sleep is used for the dwell before probing, time.Sleep if nil.
	Sleep func(time.Duration)
}

// Engine runs probing moves in the command domain. Its methods block and
// must not be called concurrently.
type Engine struct {
	settings  Settings
	input     *Input
	session   *Session
	actuators Actuators
	m         Machine

	log   log.FieldLogger
	sleep func(time.Duration)
}

func NewEngine(cfg EngineConfig) *Engine {
	e := &Engine{
		settings:  cfg.Settings,
		input:     cfg.Input,
		session:   cfg.Session,
		actuators: cfg.Actuators,
		m:         cfg.Machine,
		log:       cfg.Logger,
		sleep:     cfg.Sleep,
	}
	if e.session == nil {
		e.session = NewSession()
	}
	if e.log == nil {
		e.log = log.StandardLogger()
	}
	if e.sleep == nil {
		e.sleep = time.Sleep
	}
	return e
}

// Settings returns the live settings, changes apply to the next probe.
func (e *Engine) Settings() *Settings { return &e.settings }

func (e *Engine) Input() *Input { return e.input }

func (e *Engine) Session() *Session { return e.session }

// Sampler returns a Sampler watching this engine's session.
func (e *Engine) Sampler() *Sampler {
	return NewSampler(e.session, e.input, e.actuators)
}

// RunProbe probes in Z and returns the distance moved by the Z actuator
// and whether contact was made.
//
// A negative maxDist travels DefaultDistance (twice MaxZ). Reverse flips the
// configured probing direction. If the sensor is already active nothing
// moves and (0, false) is returned. An error means nothing moved, either
// because the feedrate is not positive or the machine refused the move.
func (e *Engine) RunProbe(feedrate, maxDist float64, reverse bool) (float64, bool, error) {
	if e.input.Active() {
		e.log.Warn("probe already triggered, not probing")
		return 0, false, nil
	}
	if feedrate <= 0 {
		return 0, false, ErrInvalidFeedrate
	}

	dist := maxDist
	if dist < 0 {
		dist = e.settings.MaxZ * 2
	}

	zStart := e.actuators[coord.Z].CurrentPosition()

	if e.settings.Dwell > .0001 {
		e.sleep(time.Duration(e.settings.Dwell * float64(time.Second)))
	}

	e.session.Arm()

	delta := coord.Point{Z: -dist}
	if e.settings.ReverseZ != reverse {
		delta.Z = dist
	}
	err := e.m.DeltaMove(delta, feedrate)
	if err != nil {
		e.session.Disarm()
		e.log.WithError(err).Error("probe move")
		return 0, false, errors.Wrap(err, "probe move")
	}

	// returns early if the sampler stopped the actuators
	e.m.WaitForIdle()

	// all actuators of a delta move the same amount for a move in Z
	mm := zStart - e.actuators[coord.Z].CurrentPosition()

	triggered := e.session.Disarm()
	e.m.SetLastProbePosition(coord.Point{Z: mm}, triggered)

	if triggered {
		// the move stopped short of where the planner thinks it is
		e.m.ResetPositionFromActuators()
	}

	e.log.WithFields(log.Fields{"distance": mm, "triggered": triggered}).Debug("probe complete")
	return mm, triggered, nil
}

// RunProbeReturn is RunProbe followed by a move back to the starting height.
// There is no return move if the probe move was refused.
func (e *Engine) RunProbeReturn(feedrate, maxDist float64, reverse bool) (float64, bool, error) {
	zStart := e.m.AxisPosition().Z

	mm, ok, err := e.RunProbe(feedrate, maxDist, reverse)
	if err != nil {
		return mm, ok, err
	}

	err = e.MoveAxis(coord.Z, zStart, e.settings.ReturnRate(), false)
	if err != nil {
		e.log.WithError(err).Error("return after probe")
	}

	return mm, ok, nil
}

// ProbeAt moves to x,y at the fast feedrate and probes at the slow feedrate,
// returning to the starting height afterwards.
func (e *Engine) ProbeAt(x, y float64) (float64, bool, error) {
	err := e.MoveXY(x, y, e.settings.FastFeedrate, false)
	if err != nil {
		return 0, false, err
	}
	return e.RunProbeReturn(e.settings.SlowFeedrate, DefaultDistance, false)
}

// ProbeAlongAxis moves up to distance along axis in machine coordinates,
// stopping on contact. It works with any kinematics since it is a regular
// planned move.
//
// When strict is set and no contact was made the machine is halted and
// ErrProbeFail is returned along with the measurement. Any other error
// means the move could not be made.
func (e *Engine) ProbeAlongAxis(axis int, distance, feedrate float64, strict bool) (Measurement, error) {
	res := Measurement{Axis: axis}
	if e.input.Active() {
		return res, ErrAlreadyTriggered
	}
	if feedrate <= 0 {
		return res, ErrInvalidFeedrate
	}

	start := e.m.AxisPosition()

	// segmented moves on non-Cartesian machines break the stop timing
	e.m.SetSegmentation(false)
	e.session.Arm()

	err := e.MoveAxis(axis, distance, feedrate, true)

	res.Triggered = e.session.Disarm()
	e.m.SetSegmentation(true)

	// always done, the move may have been stopped internally
	e.m.ResetPositionFromActuators()
	res.Position = e.m.AxisPosition()
	res.Distance = res.Position.Axis(axis) - start.Axis(axis)

	e.m.SetLastProbePosition(res.Position, res.Triggered)

	l := e.log.WithFields(log.Fields{
		"axis":     string(coord.AxisName(axis)),
		"distance": res.Distance,
	})
	if err != nil {
		// nothing moved, e.g. the machine is halted
		l.WithError(err).Error("probe move")
		return res, errors.Wrap(err, "probe move")
	}
	if res.Triggered {
		l.Info("probe triggered")
		return res, nil
	}

	l.Info("probe not triggered")
	if strict {
		e.m.Halt("probe fail")
		return res, ErrProbeFail
	}
	return res, nil
}

// MoveXY issues a coordinated XY move in machine coordinates and waits for
// it to complete.
func (e *Engine) MoveXY(x, y, feedrate float64, relative bool) error {
	return e.move(gcode.Block{{W: 'X', Arg: x}, {W: 'Y', Arg: y}}, feedrate, relative)
}

// MoveAxis moves a single axis in machine coordinates and waits for it to
// complete.
func (e *Engine) MoveAxis(axis int, val, feedrate float64, relative bool) error {
	return e.move(gcode.Block{{W: coord.AxisName(axis), Arg: val}}, feedrate, relative)
}

// Home dispatches a homing cycle.
func (e *Engine) Home() error {
	err := e.m.Dispatch(gcode.Block{{W: 'G', Arg: 28}}, io.Discard)
	e.m.WaitForIdle()
	return err
}

// move must use machine coordinates in case G92 or a WCS is in effect. The
// modal state is restored even if the move is cut short.
func (e *Engine) move(axes gcode.Block, feedrate float64, relative bool) error {
	e.m.PushState()
	defer e.m.PopState()

	e.m.SetAbsoluteMode(!relative)
	e.m.SetNextCommandMCS()

	b := make(gcode.Block, 0, len(axes)+2)
	b = append(b, gcode.Word{W: 'G', Arg: 0})
	b = append(b, axes...)
	b = append(b, gcode.Word{W: 'F', Arg: feedrate * 60})

	err := e.m.Dispatch(b, io.Discard)
	e.m.WaitForIdle()
	return err
}
