package probe

import "github.com/pkg/errors"

var (
	// ErrAlreadyTriggered is returned when the sensor reads active before a probe move starts.
	ErrAlreadyTriggered = errors.New("probe triggered before move")

	// ErrProbeFail is returned by a strict straight probe that did not make contact.
	// The machine has been halted when it is returned.
	ErrProbeFail = errors.New("probe fail")

	// ErrInvalidFeedrate is returned for a probe move with a feedrate that is not positive.
	ErrInvalidFeedrate = errors.New("feedrate must be positive")
)
