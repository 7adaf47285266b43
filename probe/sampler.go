package probe

import (
	"context"
	"time"
)

// DefaultSamplePeriod is the sampling rate of the probe pin (100Hz).
const DefaultSamplePeriod = 10 * time.Millisecond

// Sampler watches the probe pin while a session is armed.
type Sampler struct {
	session   *Session
	input     *Input
	actuators Actuators
}

func NewSampler(session *Session, input *Input, actuators Actuators) *Sampler {
	return &Sampler{
		session:   session,
		input:     input,
		actuators: actuators,
	}
}

// Tick performs a single sample. It returns true on the tick that
// confirmed contact and stopped the actuators.
//
// Nothing is sampled while the machine is stationary, e.g. between arming
// and the start of the move.
func (s *Sampler) Tick() bool {
	if !s.session.listening() {
		return false
	}

	// all axes are checked, it may be a G38.2 X10 and not only a probe in Z
	if !s.actuators.Moving() {
		return false
	}

	d := Debouncer{Threshold: s.input.Debounce()}
	return s.session.sample(d, s.input.Active(), s.actuators.StopAll)
}

// Run calls Tick every period until ctx is done.
func (s *Sampler) Run(ctx context.Context, period time.Duration) {
	t := time.NewTicker(period)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Tick()
		}
	}
}
