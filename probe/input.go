package probe

import "sync/atomic"

// Pin is a raw digital input. A pin that cannot be read must report false.
type Pin interface {
	Get() bool
}

// PinFunc adapts a function to the Pin interface.
type PinFunc func() bool

func (f PinFunc) Get() bool { return f() }

// Input is the probe sensor: a pin, its polarity and the debounce threshold
// in sampling ticks.
//
// Polarity changes take effect on the next read and are safe to make while
// the Sampler is running.
type Input struct {
	pin      Pin
	inverted atomic.Bool
	debounce int
}

// NewInput binds a pin. Negative debounce thresholds are treated as 0.
func NewInput(pin Pin, inverted bool, debounce int) *Input {
	if debounce < 0 {
		debounce = 0
	}
	in := &Input{pin: pin, debounce: debounce}
	in.inverted.Store(inverted)
	return in
}

// Active returns the logical sensor state.
func (in *Input) Active() bool {
	return in.pin.Get() != in.inverted.Load()
}

// Debounce returns the debounce threshold in ticks.
func (in *Input) Debounce() int { return in.debounce }

func (in *Input) Inverting() bool { return in.inverted.Load() }

func (in *Input) SetInverting(inverted bool) { in.inverted.Store(inverted) }

// Toggle flips the polarity when toggle is true and leaves it unchanged
// otherwise. Toggling twice restores the configured polarity.
func (in *Input) Toggle(toggle bool) {
	for {
		old := in.inverted.Load()
		if in.inverted.CompareAndSwap(old, old != toggle) {
			return
		}
	}
}
