// Package handler is the command front end of the probe. It interprets the
// probe related G and M codes and formats their results for a console.
package handler

import (
	"fmt"
	"io"

	log "github.com/sirupsen/logrus"

	"github.com/mastercactapus/zprobe/gcode"
	"github.com/mastercactapus/zprobe/probe"
)

// A Strategy handles G29, G31 and G32 (and any other codes it likes, such
// as M561). It returns false if it did not handle the block.
type Strategy interface {
	HandleGCode(b gcode.Block, out io.Writer) bool
}

// Prober is the probe engine as used by the front end.
type Prober interface {
	RunProbe(feedrate, maxDist float64, reverse bool) (float64, bool, error)
	RunProbeReturn(feedrate, maxDist float64, reverse bool) (float64, bool, error)
	ProbeAlongAxis(axis int, distance, feedrate float64, strict bool) (probe.Measurement, error)
	Settings() *probe.Settings
	Input() *probe.Input
}

// Machine is used to wait for pending moves and to dispatch synthesized
// commands.
type Machine interface {
	WaitForIdle()
	probe.Dispatcher
}

type Config struct {
	Prober  Prober
	Machine Machine

	// Leveling is strategy slot 0 (P0), Calibration is slot 1 (P1). Either
	// may be nil.
	Leveling    Strategy
	Calibration Strategy

	Logger log.FieldLogger
}

type Handler struct {
	p          Prober
	m          Machine
	strategies [2]Strategy

	log log.FieldLogger
}

var _ probe.Dispatcher = &Handler{}

func New(cfg Config) *Handler {
	h := &Handler{
		p:          cfg.Prober,
		m:          cfg.Machine,
		strategies: [2]Strategy{cfg.Leveling, cfg.Calibration},
		log:        cfg.Logger,
	}
	if h.log == nil {
		h.log = log.StandardLogger()
	}
	return h
}

// Strategy returns the strategy in slot i, or nil.
func (h *Handler) Strategy(i int) Strategy {
	if i < 0 || i >= len(h.strategies) {
		return nil
	}
	return h.strategies[i]
}

// isProbeCommand reports whether w is one of the G or M codes handled here.
func isProbeCommand(w gcode.Word) bool {
	switch w.W {
	case 'G':
		c := w.Code()
		return c >= 29 && c <= 32 || c == 38
	case 'M':
		switch w.Code() {
		case 119, 670, 500:
			return true
		}
	}
	return false
}

// splitBlock finds the probe command of b, wherever it is in the block.
// The other G and M words are returned separately, the arguments stay with
// the probe command.
func splitBlock(b gcode.Block) (cmd gcode.Word, probeBlock, rest gcode.Block, ok bool) {
	for _, w := range b {
		switch {
		case !ok && isProbeCommand(w):
			cmd, ok = w, true
			probeBlock = append(probeBlock, w)
		case w.IsCommand():
			rest = append(rest, w)
		default:
			probeBlock = append(probeBlock, w)
		}
	}
	return cmd, probeBlock, rest, ok
}

// Handle interprets b if it is a probe command, writing any output to out.
// It returns false if b is not a probe command and should be passed on.
//
// Probe commands are consumed even if they fail; the failure is reported
// on out the same way a successful result would be. Other G and M words
// in the same block, such as G90, go to the machine first.
func (h *Handler) Handle(b gcode.Block, out io.Writer) bool {
	cmd, pb, rest, ok := splitBlock(b)
	if !ok {
		if _, ok := b.Command(); !ok {
			return false
		}
		return h.forward(b, out)
	}

	if len(rest) > 0 {
		err := h.m.Dispatch(rest, out)
		if err != nil {
			fmt.Fprintf(out, "error:%s\n", err)
			return true
		}
	}

	switch cmd.W {
	case 'G':
		switch c := cmd.Code(); {
		case c == 30:
			h.probeZ(pb, out)
		case c == 38:
			h.straightProbe(cmd, pb, out)
		default:
			h.strategy(cmd, pb, out)
		}
	case 'M':
		switch cmd.Code() {
		case 119:
			h.reportPin(out)
		case 670:
			h.configure(pb)
		case 500:
			io.WriteString(out, h.p.Settings().String())
		}
	}
	return true
}

// forward offers codes the front end doesn't know to the strategies, this
// is how M561 and friends reach them.
func (h *Handler) forward(b gcode.Block, out io.Writer) bool {
	for _, s := range h.strategies {
		if s != nil && s.HandleGCode(b, out) {
			return true
		}
	}
	return false
}

// Dispatch handles b as a probe command or passes it on to the machine.
func (h *Handler) Dispatch(b gcode.Block, out io.Writer) error {
	if h.Handle(b, out) {
		return nil
	}
	return h.m.Dispatch(b, out)
}
