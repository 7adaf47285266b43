// Package vm is a simulated Cartesian machine: a planner that interprets
// motion gcode, a queue executing one move at a time and three stepper
// actuators advanced by a fixed simulated tick.
package vm

import (
	"context"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/mastercactapus/zprobe/coord"
	"github.com/mastercactapus/zprobe/gcode"
	"github.com/mastercactapus/zprobe/meshlevel"
	"github.com/mastercactapus/zprobe/probe"
)

// ErrHalted is returned for motion commands while the machine is halted.
var ErrHalted = errors.New("machine halted, send M999 to clear")

// Config configures a simulated Machine.
type Config struct {
	// Tick is the simulated time advanced by every call to Tick.
	Tick time.Duration

	// Feedrate in mm/s used until a move sets F.
	Feedrate float64

	Logger log.FieldLogger
}

type move struct {
	target   coord.Point
	feedrate float64
}

type modalState struct {
	modal [256]float64
}

type hook struct {
	every uint64
	fn    func()
}

// Machine implements the probe Machine contract over simulated steppers.
type Machine struct {
	mx   sync.Mutex
	idle *sync.Cond

	steppers [3]*Stepper

	// pos is the planner position (last milestone) in machine coordinates.
	pos coord.Point
	wco coord.Point

	// planned is the actuator target at the end of the queue.
	planned coord.Point

	modal   [256]float64
	stack   []modalState
	nextMCS bool
	segment bool

	queue []move
	comp  meshlevel.ZOffsetter

	halted     bool
	haltReason string

	lastProbe   coord.Point
	lastProbeOK bool

	tick     time.Duration
	feedrate float64
	ticks    uint64
	hooks    []hook

	log log.FieldLogger
}

var _ probe.Machine = &Machine{}

func NewMachine(cfg Config) *Machine {
	m := &Machine{
		tick:     cfg.Tick,
		feedrate: cfg.Feedrate,
		segment:  true,
		log:      cfg.Logger,
	}
	if m.tick <= 0 {
		m.tick = time.Millisecond
	}
	if m.feedrate <= 0 {
		m.feedrate = 50
	}
	if m.log == nil {
		m.log = log.StandardLogger()
	}
	m.idle = sync.NewCond(&m.mx)
	for i := range m.steppers {
		m.steppers[i] = &Stepper{}
	}

	// using grbl defaults
	m.modal[gcode.ModalGroupMotion] = 0
	m.modal[gcode.ModalGroupCoordinateSystem] = 54
	m.modal[gcode.ModalGroupPlaneSelection] = 17
	m.modal[gcode.ModalGroupDistanceMode] = 90
	m.modal[gcode.ModalGroupArcDistanceMode] = 91.1
	m.modal[gcode.ModalGroupFeedRateMode] = 94
	m.modal[gcode.ModalGroupUnits] = 21
	m.modal[gcode.ModalGroupCutterCompensationMode] = 40
	m.modal[gcode.ModalGroupToolLength] = 49
	m.modal[gcode.ModalGroupStopping] = 0
	m.modal[gcode.ModalGroupSpindle] = 5
	m.modal[gcode.ModalGroupCoolant] = 9

	return m
}

// Actuators returns the steppers, X, Y and Z.
func (m *Machine) Actuators() probe.Actuators {
	return probe.Actuators{m.steppers[0], m.steppers[1], m.steppers[2]}
}

// Attach calls fn every n ticks, after the steppers have advanced.
func (m *Machine) Attach(every int, fn func()) {
	if every < 1 {
		every = 1
	}
	m.mx.Lock()
	m.hooks = append(m.hooks, hook{every: uint64(every), fn: fn})
	m.mx.Unlock()
}

// Tick advances the simulation by one tick.
func (m *Machine) Tick() {
	m.mx.Lock()
	dt := m.tick.Seconds()
	for _, s := range m.steppers {
		s.step(dt)
	}
	if !m.movingLocked() && len(m.queue) > 0 {
		m.startLocked(m.queue[0])
		m.queue = m.queue[1:]
	}
	m.ticks++
	var due []func()
	for _, h := range m.hooks {
		if m.ticks%h.every == 0 {
			due = append(due, h.fn)
		}
	}
	m.idle.Broadcast()
	m.mx.Unlock()

	// hooks may stop steppers, they must not run under the machine lock
	for _, fn := range due {
		fn()
	}
}

// Run calls Tick every period until ctx is done.
func (m *Machine) Run(ctx context.Context, period time.Duration) {
	t := time.NewTicker(period)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.Tick()
		}
	}
}

func (m *Machine) movingLocked() bool {
	for _, s := range m.steppers {
		if s.IsMoving() {
			return true
		}
	}
	return false
}

func (m *Machine) actualLocked() coord.Point {
	return coord.Point{
		X: m.steppers[coord.X].CurrentPosition(),
		Y: m.steppers[coord.Y].CurrentPosition(),
		Z: m.steppers[coord.Z].CurrentPosition(),
	}
}

func (m *Machine) startLocked(mv move) {
	from := m.actualLocked()
	d := mv.target.Sub(from)
	length := d.Length()
	if length == 0 {
		return
	}
	for i, s := range m.steppers {
		s.start(mv.target.Axis(i), mv.feedrate*math.Abs(d.Axis(i))/length)
	}
}

// queueLocked plans a move to the planner position p.
func (m *Machine) queueLocked(p coord.Point, feedrate float64) {
	m.pos = p
	if m.comp != nil {
		if ok, off := m.comp.OffsetZ(p.X, p.Y); ok {
			p.Z += off
		}
	}
	m.planned = p
	m.queue = append(m.queue, move{target: p, feedrate: feedrate})
}

// Idle returns true if nothing is queued or moving.
func (m *Machine) Idle() bool {
	m.mx.Lock()
	defer m.mx.Unlock()
	return len(m.queue) == 0 && !m.movingLocked()
}

// WaitForIdle blocks until the queue is drained, or the machine is halted.
func (m *Machine) WaitForIdle() {
	m.mx.Lock()
	for !m.halted && (len(m.queue) > 0 || m.movingLocked()) {
		m.idle.Wait()
	}
	m.mx.Unlock()
}

// DeltaMove queues a relative actuator move.
func (m *Machine) DeltaMove(delta coord.Point, feedrate float64) error {
	if feedrate <= 0 {
		return errors.Errorf("invalid feedrate %g", feedrate)
	}
	m.mx.Lock()
	defer m.mx.Unlock()
	if m.halted {
		return ErrHalted
	}
	m.pos = m.pos.Add(delta)
	m.planned = m.planned.Add(delta)
	m.queue = append(m.queue, move{target: m.planned, feedrate: feedrate})
	return nil
}

func (m *Machine) PushState() {
	m.mx.Lock()
	m.stack = append(m.stack, modalState{modal: m.modal})
	m.mx.Unlock()
}

func (m *Machine) PopState() {
	m.mx.Lock()
	defer m.mx.Unlock()
	if len(m.stack) == 0 {
		return
	}
	m.modal = m.stack[len(m.stack)-1].modal
	m.stack = m.stack[:len(m.stack)-1]
}

func (m *Machine) SetAbsoluteMode(absolute bool) {
	m.mx.Lock()
	if absolute {
		m.modal[gcode.ModalGroupDistanceMode] = 90
	} else {
		m.modal[gcode.ModalGroupDistanceMode] = 91
	}
	m.mx.Unlock()
}

func (m *Machine) SetNextCommandMCS() {
	m.mx.Lock()
	m.nextMCS = true
	m.mx.Unlock()
}

func (m *Machine) SetSegmentation(enabled bool) {
	m.mx.Lock()
	m.segment = enabled
	m.mx.Unlock()
}

func (m *Machine) Segmentation() bool {
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.segment
}

func (m *Machine) AxisPosition() coord.Point {
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.pos
}

// ActuatorPosition returns where the steppers physically are.
func (m *Machine) ActuatorPosition() coord.Point {
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.actualLocked()
}

func (m *Machine) ResetPositionFromActuators() {
	m.mx.Lock()
	defer m.mx.Unlock()
	actual := m.actualLocked()
	m.planned = actual
	m.pos = actual
	if m.comp != nil {
		if ok, off := m.comp.OffsetZ(actual.X, actual.Y); ok {
			m.pos.Z -= off
		}
	}
}

func (m *Machine) SetLastProbePosition(p coord.Point, triggered bool) {
	m.mx.Lock()
	m.lastProbe = p
	m.lastProbeOK = triggered
	m.mx.Unlock()
}

func (m *Machine) LastProbePosition() (coord.Point, bool) {
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.lastProbe, m.lastProbeOK
}

// SetCompensation installs a Z offset applied to every planned move. A nil
// offsetter removes compensation.
func (m *Machine) SetCompensation(z meshlevel.ZOffsetter) {
	m.mx.Lock()
	m.comp = z
	m.mx.Unlock()
}

func (m *Machine) Compensation() meshlevel.ZOffsetter {
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.comp
}

// Halt stops all motion, drops the queue and rejects motion until cleared.
func (m *Machine) Halt(reason string) {
	m.mx.Lock()
	defer m.mx.Unlock()
	for _, s := range m.steppers {
		s.StopMoving()
	}
	m.queue = nil
	m.halted = true
	m.haltReason = reason
	m.idle.Broadcast()
	m.log.WithField("reason", reason).Error("machine halted")
}

func (m *Machine) Halted() (bool, string) {
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.halted, m.haltReason
}

// ClearHalt resumes after a halt. The planner position is taken from the
// actuators since the halt may have cut a move short.
func (m *Machine) ClearHalt() {
	m.mx.Lock()
	m.halted = false
	m.haltReason = ""
	m.mx.Unlock()
	m.ResetPositionFromActuators()
}

func (m *Machine) WPos() coord.Point {
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.pos.Sub(m.wco)
}

func (m *Machine) WCO() coord.Point {
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.wco
}

func (m *Machine) inchesLocked() bool   { return m.modal[gcode.ModalGroupUnits] == 20 }
func (m *Machine) relativeLocked() bool { return m.modal[gcode.ModalGroupDistanceMode] == 91 }

// RelativeMotion reports the current distance mode.
func (m *Machine) RelativeMotion() bool {
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.relativeLocked()
}

func isSupported(g gcode.Word) bool {
	if g.IsAxis() {
		return true
	}

	switch g.W {
	case 'G':
		switch g.Arg {
		case 0, 1, 20, 21, 28, 53, 90, 91, 92, 94:
			return true
		}
	case 'M':
		switch g.Arg {
		case 3, 5, 114, 999:
			return true
		}
	case 'F', 'S':
		return true
	}

	return false
}

func applyBlock(p coord.Point, b gcode.Block, mul float64) coord.Point {
	for _, g := range b {
		switch g.W {
		case 'X':
			p.X = g.Arg * mul
		case 'Y':
			p.Y = g.Arg * mul
		case 'Z':
			p.Z = g.Arg * mul
		}
	}

	return p
}

// Dispatch interprets a block of motion gcode.
func (m *Machine) Dispatch(b gcode.Block, out io.Writer) error {
	err := b.Validate()
	if err != nil {
		return err
	}
	for _, g := range b {
		if !isSupported(g) {
			return errors.New("unsupported code: " + g.String())
		}
	}
	if cmd, ok := b.Command(); ok && cmd == (gcode.Word{W: 'M', Arg: 999}) {
		m.ClearHalt()
		return nil
	}

	m.mx.Lock()
	defer m.mx.Unlock()

	machineCoords := m.nextMCS
	m.nextMCS = false

	if m.halted {
		return ErrHalted
	}

	var home, setPos, report bool
	for _, g := range b {
		mg := g.ModalGroup()
		if mg != gcode.ModalGroupNone && mg != gcode.ModalGroupNonModal {
			m.modal[mg] = g.Arg
		}
		switch g {
		case gcode.Word{W: 'G', Arg: 53}:
			machineCoords = true
		case gcode.Word{W: 'G', Arg: 28}:
			home = true
		case gcode.Word{W: 'G', Arg: 92}:
			setPos = true
		case gcode.Word{W: 'M', Arg: 114}:
			report = true
		}
	}

	if report {
		w := m.pos.Sub(m.wco)
		_, err = fmt.Fprintf(out, "X:%1.4f Y:%1.4f Z:%1.4f\n", w.X, w.Y, w.Z)
		return err
	}

	feed := m.feedrate
	if f := m.modal[gcode.ModalGroupFeedRate]; f > 0 {
		feed = f / 60
	}

	if home {
		m.queueLocked(coord.Point{}, feed)
		return nil
	}

	args := b.Args()
	if len(args) == 0 {
		return nil
	}

	mul := 1.0
	if m.inchesLocked() {
		mul = 25.4
	}

	if setPos {
		// G92: the current position becomes the given work position
		w := applyBlock(m.pos.Sub(m.wco), args, mul)
		m.wco = m.pos.Sub(w)
		return nil
	}

	// apply motion
	var target coord.Point
	if m.relativeLocked() {
		target = m.pos.Add(applyBlock(coord.Point{}, args, mul))
	} else if machineCoords {
		target = applyBlock(m.pos, args, mul)
	} else {
		target = applyBlock(m.pos.Sub(m.wco), args, mul).Add(m.wco)
	}
	if target.Equal(m.pos) {
		return nil
	}
	m.queueLocked(target, feed)

	return nil
}
