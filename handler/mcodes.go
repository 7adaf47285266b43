package handler

import (
	"fmt"
	"io"

	"github.com/mastercactapus/zprobe/gcode"
)

func (h *Handler) reportPin(out io.Writer) {
	var c int
	if h.p.Input().Active() {
		c = 1
	}
	fmt.Fprintf(out, "Probe: %d\n", c)
}

// configure handles M670. Only the given letters are changed.
func (h *Handler) configure(b gcode.Block) {
	s := h.p.Settings()
	set := func(w byte, dst *float64) {
		if ok, v := b.Arg(w); ok {
			*dst = v
		}
	}
	set('S', &s.SlowFeedrate)
	set('K', &s.FastFeedrate)
	set('R', &s.ReturnFeedrate)
	set('Z', &s.MaxZ)
	set('H', &s.ProbeHeight)
	set('D', &s.Dwell)

	if ok, v := b.Arg('I'); ok {
		// relative to the current polarity, I1 twice restores it
		h.p.Input().Toggle(v != 0)
	}

	h.log.WithField("settings", *s).Debug("probe settings updated")
}
