// Package probe implements contact probing for a motion controller.
//
// Two timing domains share a single Session. The Sampler runs at a fixed
// tick rate, never blocks, and stops every actuator as soon as a debounced
// trigger is confirmed. The Engine runs in the command domain: it arms the
// session, issues a move, waits for the motion queue to drain (either the
// full distance was travelled or the Sampler truncated it) and then
// reconciles the planner position with the real actuator positions.
package probe
