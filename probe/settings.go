package probe

import "fmt"

// Settings are the runtime tunables of the probe. Feedrates are in mm/s,
// distances in mm and the dwell in seconds.
type Settings struct {
	SlowFeedrate   float64
	FastFeedrate   float64
	ReturnFeedrate float64
	ProbeHeight    float64
	MaxZ           float64
	Dwell          float64

	// ReverseZ probes toward +Z instead of -Z.
	ReverseZ bool
}

func DefaultSettings() Settings {
	return Settings{
		SlowFeedrate: 5,
		FastFeedrate: 100,
		ProbeHeight:  5,
	}
}

// ReturnRate is the feedrate used to move back after a probe.
//
// It is ReturnFeedrate when set, otherwise twice the slow feedrate but
// never more than the fast feedrate.
func (s Settings) ReturnRate() float64 {
	if s.ReturnFeedrate != 0 {
		return s.ReturnFeedrate
	}
	fr := s.SlowFeedrate * 2
	if fr > s.FastFeedrate {
		fr = s.FastFeedrate
	}
	return fr
}

// String formats the settings as a replayable M670 line.
func (s Settings) String() string {
	return fmt.Sprintf(";Probe feedrates Slow/fast(K)/Return (mm/sec) max_z (mm) height (mm) dwell (s):\nM670 S%1.2f K%1.2f R%1.2f Z%1.2f H%1.2f D%1.2f\n",
		s.SlowFeedrate, s.FastFeedrate, s.ReturnFeedrate, s.MaxZ, s.ProbeHeight, s.Dwell)
}
