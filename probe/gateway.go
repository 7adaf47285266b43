package probe

import (
	"io"

	"github.com/mastercactapus/zprobe/coord"
	"github.com/mastercactapus/zprobe/gcode"
)

// An Actuator is a single motor. StopMoving must not block; it is called
// from the sampling domain.
type Actuator interface {
	IsMoving() bool
	CurrentPosition() float64
	StopMoving()
}

// Actuators are all motors of the machine, primary X, Y and Z first.
type Actuators []Actuator

// Moving returns true if any of the primary three actuators is moving.
func (a Actuators) Moving() bool {
	for i, act := range a {
		if i > coord.Z {
			break
		}
		if act.IsMoving() {
			return true
		}
	}
	return false
}

// StopAll stops every actuator, not only the probed axis. On non-Cartesian
// machines all actuators move for any single logical axis.
func (a Actuators) StopAll() {
	for _, act := range a {
		act.StopMoving()
	}
}

// Motion is the planner and motion queue.
type Motion interface {
	// DeltaMove queues a relative move of the actuators in machine units.
	// Nothing is queued if it returns an error.
	DeltaMove(delta coord.Point, feedrate float64) error

	// WaitForIdle blocks until the motion queue is empty.
	WaitForIdle()

	PushState()
	PopState()
	SetAbsoluteMode(absolute bool)

	// SetNextCommandMCS makes the next dispatched move ignore work offsets.
	SetNextCommandMCS()

	SetSegmentation(enabled bool)

	// AxisPosition is the planner's last target in machine coordinates.
	AxisPosition() coord.Point

	// ResetPositionFromActuators replaces the planner position with the one
	// derived from the actuators' real positions.
	ResetPositionFromActuators()

	SetLastProbePosition(p coord.Point, triggered bool)
}

// Dispatcher runs a synthesized command.
type Dispatcher interface {
	Dispatch(b gcode.Block, out io.Writer) error
}

// Halter raises a machine-wide alarm.
type Halter interface {
	Halt(reason string)
}

// Machine is everything the Engine needs from the motion side.
type Machine interface {
	Motion
	Dispatcher
	Halter
}
