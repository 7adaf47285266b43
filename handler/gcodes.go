package handler

import (
	"fmt"
	"io"

	"github.com/mastercactapus/zprobe/coord"
	"github.com/mastercactapus/zprobe/gcode"
	"github.com/mastercactapus/zprobe/probe"
)

const msgTriggered = "ZProbe triggered before move, aborting command.\n"

// feedrate returns F converted to mm/s, or the slow feedrate. The engine
// rejects rates that are not positive.
func (h *Handler) feedrate(b gcode.Block) float64 {
	if ok, f := b.Arg('F'); ok {
		return f / 60
	}
	return h.p.Settings().SlowFeedrate
}

// probeZ handles G30, a simple Z probe.
//
// With Z the probe stays where it stopped and the current position is set
// to Z, otherwise it returns to where it started.
func (h *Handler) probeZ(b gcode.Block, out io.Writer) {
	if h.p.Input().Active() {
		io.WriteString(out, msgTriggered)
		return
	}

	h.m.WaitForIdle()

	setZ := b.Has('Z')
	reverse := b.Get('R') != 0
	rate := h.feedrate(b)

	var mm float64
	var ok bool
	var err error
	if setZ {
		mm, ok, err = h.p.RunProbe(rate, probe.DefaultDistance, reverse)
	} else {
		mm, ok, err = h.p.RunProbeReturn(rate, probe.DefaultDistance, reverse)
	}
	if err != nil {
		h.log.WithField("code", "G30").WithError(err).Error("probe")
		fmt.Fprintf(out, "error:%s\n", err)
		return
	}
	if !ok {
		io.WriteString(out, "ZProbe not triggered\n")
		return
	}

	fmt.Fprintf(out, "Z:%1.4f\n", mm)
	if !setZ {
		return
	}

	err = h.m.Dispatch(gcode.Block{{W: 'G', Arg: 92}, {W: 'Z', Arg: b.Get('Z')}}, out)
	if err != nil {
		h.log.WithError(err).Error("set Z after probe")
		fmt.Fprintf(out, "error:%s\n", err)
	}
}

// strategy routes G29, G31 and G32 to the leveling or calibration strategy.
// P0 and P1 pick one, otherwise the first to accept the block wins.
func (h *Handler) strategy(cmd gcode.Word, b gcode.Block, out io.Writer) {
	if h.p.Input().Active() {
		io.WriteString(out, msgTriggered)
		return
	}

	code := cmd.Code()
	ok, p := b.Arg('P')
	if !ok {
		for _, s := range h.strategies {
			if s != nil && s.HandleGCode(b, out) {
				return
			}
		}
		fmt.Fprintf(out, "No strategy found to handle G%d\n", code)
		return
	}

	i := int(p)
	if i != 0 && i != 1 {
		io.WriteString(out, "Only P0 ad P1 supported\n")
		return
	}
	if s := h.strategies[i]; s != nil && s.HandleGCode(b, out) {
		return
	}
	fmt.Fprintf(out, "strategy #%d did not handle G%d\n", i, code)
}

// straightProbe handles G38.2 and G38.3, reporting in the GRBL format.
// G38.2 halts the machine if nothing was hit.
func (h *Handler) straightProbe(cmd gcode.Word, b gcode.Block, out io.Writer) {
	sub := cmd.Subcode()
	if sub != 2 && sub != 3 {
		io.WriteString(out, "error:Only G38.2 and G38.3 are supported\n")
		return
	}

	if h.p.Input().Active() {
		io.WriteString(out, "error:"+msgTriggered)
		return
	}

	h.m.WaitForIdle()

	axis := -1
	for _, a := range []int{coord.X, coord.Y, coord.Z} {
		if b.Has(coord.AxisName(a)) {
			axis = a
			break
		}
	}
	if axis < 0 {
		io.WriteString(out, "error:at least one of X Y or Z must be specified\n")
		return
	}

	res, err := h.p.ProbeAlongAxis(axis, b.Get(coord.AxisName(axis)), h.feedrate(b), sub == 2)
	switch {
	case err == probe.ErrAlreadyTriggered:
		io.WriteString(out, "error:"+msgTriggered)
		return
	case err != nil && err != probe.ErrProbeFail:
		h.log.WithField("code", cmd.String()).WithError(err).Error("straight probe")
		fmt.Fprintf(out, "error:%s\n", err)
		return
	}

	var probeOK int
	if res.Triggered {
		probeOK = 1
	}
	fmt.Fprintf(out, "[PRB:%1.3f,%1.3f,%1.3f:%d]\n", res.Position.X, res.Position.Y, res.Position.Z, probeOK)

	if err == probe.ErrProbeFail {
		io.WriteString(out, "ALARM: Probe fail\n")
	}
}
