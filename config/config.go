// Package config loads the HCL configuration and wires the probe, the
// simulated machine and the console together.
package config

import (
	"io/ioutil"
	"time"

	"github.com/hashicorp/hcl"
	"github.com/pkg/errors"

	"github.com/mastercactapus/zprobe/probe"
)

const (
	LevelingThreePoint = "three point"
	LevelingGrid       = "grid"

	// SimPin is the probe pin of the simulated machine, active at or below
	// machine.surface_z.
	SimPin = "sim"
)

// ErrNoPin is returned when the probe is enabled without a probe_pin.
var ErrNoPin = errors.New("zprobe: probe_pin must be set")

type Config struct {
	ZProbe   *ZProbe   `hcl:"zprobe"`
	Leveling *Leveling `hcl:"leveling"`
	Machine  *Machine  `hcl:"machine"`
}

// ZProbe holds the probe settings. Feedrates are in mm/s.
type ZProbe struct {
	Enable        bool    `hcl:"enable"`
	ProbePin      string  `hcl:"probe_pin"`
	DebounceTicks int     `hcl:"debounce_ticks"`
	Invert        bool    `hcl:"invert"`
	SlowFeedrate  float64 `hcl:"slow_feedrate"`
	FastFeedrate  float64 `hcl:"fast_feedrate"`
	ReturnRate    float64 `hcl:"return_feedrate"`
	ProbeHeight   float64 `hcl:"probe_height"`
	MaxZ          float64 `hcl:"max_z"`
	ReverseZ      bool    `hcl:"reverse_z"`
	Dwell         float64 `hcl:"dwell_before_probing"`
	LevelingName  string  `hcl:"leveling"`
	Calibration   string  `hcl:"calibration"`
}

// Leveling configures the leveling strategy named by zprobe.leveling.
type Leveling struct {
	// Points are the XY points of the three point strategy.
	Points [][]float64 `hcl:"points"`

	// Origin, Size and Granularity describe the grid.
	Origin      []float64 `hcl:"origin"`
	Size        []float64 `hcl:"size"`
	Granularity float64   `hcl:"granularity"`
}

// Machine configures the simulation.
type Machine struct {
	Tick     string  `hcl:"tick"`
	Sample   string  `hcl:"sample"`
	Feedrate float64 `hcl:"feedrate"`
	SurfaceZ float64 `hcl:"surface_z"`
}

// DefaultMaxZ is the max_z of the default configuration, deep enough for a
// plain G30 to reach the default surface.
const DefaultMaxZ = 20

// Default returns the configuration used without a config file: an enabled
// probe on the simulated pin with no leveling. Unlike a config file it sets
// max_z, the firmware default of 0 makes a plain G30 a zero length move.
func Default() *Config {
	cfg := &Config{
		ZProbe: &ZProbe{Enable: true, ProbePin: SimPin, MaxZ: DefaultMaxZ},
	}
	cfg.applyDefaults()
	return cfg
}

// Parse decodes an HCL document.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	err := hcl.Unmarshal(data, &cfg)
	if err != nil {
		return nil, errors.Wrap(err, "parse config")
	}
	cfg.applyDefaults()
	err = cfg.Validate()
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load reads and parses the file at path.
func Load(path string) (*Config, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read config %s", path)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "load %s", path)
	}
	return cfg, nil
}

// zero means unset for the values that can't sensibly be zero
func (cfg *Config) applyDefaults() {
	if cfg.Machine == nil {
		cfg.Machine = &Machine{}
	}
	if cfg.Machine.Tick == "" {
		cfg.Machine.Tick = "1ms"
	}
	if cfg.Machine.Sample == "" {
		cfg.Machine.Sample = probe.DefaultSamplePeriod.String()
	}
	if cfg.Machine.SurfaceZ == 0 {
		cfg.Machine.SurfaceZ = -10
	}
	if cfg.Leveling == nil {
		cfg.Leveling = &Leveling{}
	}

	z := cfg.ZProbe
	if z == nil {
		return
	}
	def := probe.DefaultSettings()
	if z.SlowFeedrate == 0 {
		z.SlowFeedrate = def.SlowFeedrate
	}
	if z.FastFeedrate == 0 {
		z.FastFeedrate = def.FastFeedrate
	}
	if z.ProbeHeight == 0 {
		z.ProbeHeight = def.ProbeHeight
	}
}

// Enabled reports whether the probe is configured and enabled.
func (cfg *Config) Enabled() bool { return cfg.ZProbe != nil && cfg.ZProbe.Enable }

// Validate checks the values that can be checked without building.
func (cfg *Config) Validate() error {
	if _, _, err := cfg.Machine.periods(); err != nil {
		return err
	}
	if !cfg.Enabled() {
		return nil
	}
	if cfg.ZProbe.ProbePin == "" {
		return ErrNoPin
	}
	if cfg.ZProbe.SlowFeedrate < 0 || cfg.ZProbe.FastFeedrate < 0 || cfg.ZProbe.ReturnRate < 0 {
		return errors.New("zprobe: feedrates must not be negative")
	}
	return nil
}

// Settings returns the initial probe settings.
func (z *ZProbe) Settings() probe.Settings {
	return probe.Settings{
		SlowFeedrate:   z.SlowFeedrate,
		FastFeedrate:   z.FastFeedrate,
		ReturnFeedrate: z.ReturnRate,
		ProbeHeight:    z.ProbeHeight,
		MaxZ:           z.MaxZ,
		Dwell:          z.Dwell,
		ReverseZ:       z.ReverseZ,
	}
}

// periods returns the simulation tick and the sampler period.
func (m *Machine) periods() (tick, sample time.Duration, err error) {
	tick, err = time.ParseDuration(m.Tick)
	if err != nil {
		return 0, 0, errors.Wrap(err, "machine.tick")
	}
	sample, err = time.ParseDuration(m.Sample)
	if err != nil {
		return 0, 0, errors.Wrap(err, "machine.sample")
	}
	if tick <= 0 || sample <= 0 {
		return 0, 0, errors.New("machine: tick and sample must be positive")
	}
	if sample < tick {
		return 0, 0, errors.Errorf("machine: sample period %s is shorter than the tick %s", sample, tick)
	}
	return tick, sample, nil
}
