package config

import (
	"context"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/mastercactapus/zprobe/coord"
	"github.com/mastercactapus/zprobe/grbl"
	"github.com/mastercactapus/zprobe/handler"
	"github.com/mastercactapus/zprobe/leveling"
	"github.com/mastercactapus/zprobe/probe"
	"github.com/mastercactapus/zprobe/vm"
)

// System is a configured machine with its probe and console.
type System struct {
	Machine *vm.Machine

	// Engine and Handler are nil when the probe is disabled.
	Engine  *probe.Engine
	Handler *handler.Handler

	Console *grbl.Console

	Tick time.Duration
}

// Run drives the simulation in real time until ctx is done.
func (s *System) Run(ctx context.Context) {
	s.Machine.Run(ctx, s.Tick)
}

// Build wires a System from cfg.
func (cfg *Config) Build(l log.FieldLogger) (*System, error) {
	if l == nil {
		l = log.StandardLogger()
	}
	err := cfg.Validate()
	if err != nil {
		return nil, err
	}
	tick, sample, err := cfg.Machine.periods()
	if err != nil {
		return nil, err
	}

	m := vm.NewMachine(vm.Config{
		Tick:     tick,
		Feedrate: cfg.Machine.Feedrate,
		Logger:   l.WithField("component", "machine"),
	})
	sys := &System{Machine: m, Tick: tick}

	var d probe.Dispatcher = m
	if cfg.Enabled() {
		err = sys.buildProbe(cfg, l, int(sample/tick))
		if err != nil {
			return nil, err
		}
		d = sys.Handler
	} else {
		l.Info("zprobe disabled")
	}

	sys.Console = grbl.NewConsole(grbl.Config{
		Dispatcher: d,
		Machine:    m,
		Logger:     l.WithField("component", "console"),
	})
	return sys, nil
}

func (sys *System) buildProbe(cfg *Config, l log.FieldLogger, every int) error {
	z := cfg.ZProbe
	pin, err := cfg.pin(sys.Machine)
	if err != nil {
		return err
	}

	sys.Engine = probe.NewEngine(probe.EngineConfig{
		Settings:  z.Settings(),
		Input:     probe.NewInput(pin, z.Invert, z.DebounceTicks),
		Actuators: sys.Machine.Actuators(),
		Machine:   sys.Machine,
		Logger:    l.WithField("component", "zprobe"),
	})
	s := sys.Engine.Sampler()
	sys.Machine.Attach(every, func() { s.Tick() })

	lvl, err := cfg.leveling(sys.Engine, sys.Machine, l)
	if err != nil {
		return err
	}
	if z.Calibration != "" {
		l.WithField("calibration", z.Calibration).Warn("unknown calibration strategy, ignored")
	}

	sys.Handler = handler.New(handler.Config{
		Prober:   sys.Engine,
		Machine:  sys.Machine,
		Leveling: lvl,
		Logger:   l.WithField("component", "zprobe"),
	})
	return nil
}

func (cfg *Config) pin(m *vm.Machine) (probe.Pin, error) {
	switch cfg.ZProbe.ProbePin {
	case "":
		return nil, ErrNoPin
	case SimPin:
		surface := cfg.Machine.SurfaceZ
		return probe.PinFunc(func() bool { return m.ActuatorPosition().Z <= surface }), nil
	}
	return nil, errors.Errorf("zprobe: unsupported probe_pin %q", cfg.ZProbe.ProbePin)
}

func (cfg *Config) leveling(p leveling.Prober, c leveling.Compensator, l log.FieldLogger) (handler.Strategy, error) {
	lc := cfg.Leveling
	l = l.WithField("component", "leveling")

	switch cfg.ZProbe.LevelingName {
	case "":
		return nil, nil
	case LevelingThreePoint:
		if len(lc.Points) != 3 {
			return nil, errors.Errorf("leveling: three point needs 3 points, got %d", len(lc.Points))
		}
		var points [3]coord.Point
		for i, xy := range lc.Points {
			if len(xy) != 2 {
				return nil, errors.Errorf("leveling: point %d must be [x, y]", i+1)
			}
			points[i] = coord.Point{X: xy[0], Y: xy[1]}
		}
		return leveling.NewThreePoint(leveling.ThreePointConfig{
			Points:  points,
			Prober:  p,
			Machine: c,
			Logger:  l,
		}), nil
	case LevelingGrid:
		if len(lc.Size) != 2 {
			return nil, errors.New("leveling: grid size must be [x, y]")
		}
		var origin coord.Point
		if len(lc.Origin) == 2 {
			origin = coord.Point{X: lc.Origin[0], Y: lc.Origin[1]}
		}
		g, err := leveling.NewGrid(leveling.GridConfig{
			Origin:      origin,
			SizeX:       lc.Size[0],
			SizeY:       lc.Size[1],
			Granularity: lc.Granularity,
			Prober:      p,
			Machine:     c,
			Logger:      l,
		})
		if err != nil {
			return nil, errors.Wrap(err, "leveling")
		}
		return g, nil
	}

	l.WithField("leveling", cfg.ZProbe.LevelingName).Warn("unknown leveling strategy, ignored")
	return nil, nil
}
