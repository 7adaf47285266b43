package probe

import "sync"

// Session is the state of one probing operation, shared between the
// Sampler and the Engine.
//
// The lock is only held for field access and the non-blocking stop fan-out
// of a confirmed trigger. It is never held across a wait.
type Session struct {
	mx       sync.Mutex
	armed    bool
	detected bool
	count    int
}

func NewSession() *Session { return &Session{} }

// Arm starts a new probing period and clears the previous detection.
func (s *Session) Arm() {
	s.mx.Lock()
	s.detected = false
	s.count = 0
	s.armed = true
	s.mx.Unlock()
}

// Disarm ends the probing period and returns whether contact was confirmed
// during it.
func (s *Session) Disarm() bool {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.armed = false
	return s.detected
}

func (s *Session) Armed() bool {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.armed
}

func (s *Session) Detected() bool {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.detected
}

func (s *Session) DebounceCount() int {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.count
}

// listening is true while the sampler has work to do.
func (s *Session) listening() bool {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.armed && !s.detected
}

// sample feeds one reading through the debouncer. On confirmation stop is
// called before detected is set, so an observer of detected can rely on
// the stop having been issued. It returns true only for the sample that
// confirmed the trigger.
func (s *Session) sample(d Debouncer, active bool, stop func()) bool {
	s.mx.Lock()
	defer s.mx.Unlock()
	if !s.armed || s.detected {
		return false
	}

	var confirmed bool
	s.count, confirmed = d.Next(s.count, active)
	if !confirmed {
		return false
	}

	stop()
	s.detected = true
	s.count = 0
	return true
}
