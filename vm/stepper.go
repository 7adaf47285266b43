package vm

import (
	"math"
	"sync"
)

// Stepper is a simulated actuator moving at a constant rate toward its target.
type Stepper struct {
	mx     sync.Mutex
	pos    float64
	target float64
	rate   float64
}

func (s *Stepper) IsMoving() bool {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.pos != s.target
}

func (s *Stepper) CurrentPosition() float64 {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.pos
}

// StopMoving abandons the current target. It never blocks on the machine.
func (s *Stepper) StopMoving() {
	s.mx.Lock()
	s.target = s.pos
	s.mx.Unlock()
}

func (s *Stepper) start(target, rate float64) {
	s.mx.Lock()
	s.target = target
	s.rate = rate
	s.mx.Unlock()
}

func (s *Stepper) step(dt float64) {
	s.mx.Lock()
	defer s.mx.Unlock()
	remaining := s.target - s.pos
	if remaining == 0 {
		return
	}
	d := s.rate * dt
	if d <= 0 {
		return
	}
	if math.Abs(remaining) <= d {
		s.pos = s.target
		return
	}
	s.pos += math.Copysign(d, remaining)
}
