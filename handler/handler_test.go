package handler

import (
	"bytes"
	"errors"
	"io"
	"sync/atomic"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mastercactapus/zprobe/coord"
	"github.com/mastercactapus/zprobe/gcode"
	"github.com/mastercactapus/zprobe/probe"
)

type mockProber struct {
	mock.Mock
	settings probe.Settings
	input    *probe.Input
}

func (p *mockProber) RunProbe(feedrate, maxDist float64, reverse bool) (float64, bool, error) {
	args := p.Called(feedrate, maxDist, reverse)
	return args.Get(0).(float64), args.Bool(1), args.Error(2)
}

func (p *mockProber) RunProbeReturn(feedrate, maxDist float64, reverse bool) (float64, bool, error) {
	args := p.Called(feedrate, maxDist, reverse)
	return args.Get(0).(float64), args.Bool(1), args.Error(2)
}

func (p *mockProber) ProbeAlongAxis(axis int, distance, feedrate float64, strict bool) (probe.Measurement, error) {
	args := p.Called(axis, distance, feedrate, strict)
	return args.Get(0).(probe.Measurement), args.Error(1)
}

func (p *mockProber) Settings() *probe.Settings { return &p.settings }
func (p *mockProber) Input() *probe.Input        { return p.input }

type recordingMachine struct {
	waits      int
	dispatched []gcode.Block
	err        error
}

func (m *recordingMachine) WaitForIdle() { m.waits++ }

func (m *recordingMachine) Dispatch(b gcode.Block, out io.Writer) error {
	m.dispatched = append(m.dispatched, b)
	return m.err
}

type staticPin struct{ v atomic.Bool }

func (p *staticPin) Get() bool { return p.v.Load() }

type stubStrategy struct {
	accept []int
	name   string
}

func (s *stubStrategy) HandleGCode(b gcode.Block, out io.Writer) bool {
	cmd, _ := b.Command()
	for _, c := range s.accept {
		if cmd.Code() == c {
			io.WriteString(out, s.name+" "+cmd.String()+"\n")
			return true
		}
	}
	return false
}

type fixture struct {
	h   *Handler
	p   *mockProber
	m   *recordingMachine
	pin *staticPin
}

func newFixture(leveling, calibration Strategy) *fixture {
	l := log.New()
	l.SetOutput(io.Discard)

	pin := &staticPin{}
	p := &mockProber{settings: probe.DefaultSettings(), input: probe.NewInput(pin, false, 0)}
	m := &recordingMachine{}
	h := New(Config{
		Prober:      p,
		Machine:     m,
		Leveling:    leveling,
		Calibration: calibration,
		Logger:      l,
	})
	return &fixture{h: h, p: p, m: m, pin: pin}
}

func (f *fixture) run(t *testing.T, line string) string {
	t.Helper()
	blocks := gcode.MustParse(line)
	require.Len(t, blocks, 1)
	var buf bytes.Buffer
	require.True(t, f.h.Handle(blocks[0], &buf), "not handled: %s", line)
	return buf.String()
}

func TestHandler_G30Return(t *testing.T) {
	f := newFixture(nil, nil)
	f.p.On("RunProbeReturn", 5.0, float64(probe.DefaultDistance), false).Return(0.0, false, nil).Once()

	assert.Equal(t, "ZProbe not triggered\n", f.run(t, "G30"))
	assert.Equal(t, 1, f.m.waits, "waits for pending moves first")
	assert.Empty(t, f.m.dispatched)
	f.p.AssertExpectations(t)
}

func TestHandler_G30SetZ(t *testing.T) {
	f := newFixture(nil, nil)
	f.p.On("RunProbe", 2.0, float64(probe.DefaultDistance), true).Return(3.2, true, nil).Once()

	assert.Equal(t, "Z:3.2000\n", f.run(t, "G30 Z1.5 F120 R1"))
	require.Len(t, f.m.dispatched, 1)
	assert.Equal(t, "G92Z1.5", f.m.dispatched[0].String())
	f.p.AssertExpectations(t)
}

func TestHandler_G30SetZNotTriggered(t *testing.T) {
	f := newFixture(nil, nil)
	f.p.On("RunProbe", 5.0, float64(probe.DefaultDistance), false).Return(0.0, false, nil).Once()

	assert.Equal(t, "ZProbe not triggered\n", f.run(t, "G30 Z0 R0"))
	assert.Empty(t, f.m.dispatched)
}

func TestHandler_G30Errors(t *testing.T) {
	f := newFixture(nil, nil)
	f.p.On("RunProbeReturn", 0.0, float64(probe.DefaultDistance), false).Return(0.0, false, probe.ErrInvalidFeedrate).Once()
	f.p.On("RunProbe", 5.0, float64(probe.DefaultDistance), false).Return(0.0, false, errors.New("probe move: machine halted")).Once()

	assert.Equal(t, "error:feedrate must be positive\n", f.run(t, "G30 F0"))
	assert.Equal(t, "error:probe move: machine halted\n", f.run(t, "G30 Z0"))
	assert.Empty(t, f.m.dispatched, "no G92 after a failed probe")
	f.p.AssertExpectations(t)
}

func TestHandler_CommandAnywhereInBlock(t *testing.T) {
	f := newFixture(nil, nil)
	f.p.On("ProbeAlongAxis", coord.Z, -5.0, 5.0, true).Return(probe.Measurement{Axis: coord.Z, Position: coord.Point{Z: -2}, Triggered: true}, nil).Once()

	assert.Equal(t, "[PRB:0.000,0.000,-2.000:1]\n", f.run(t, "G90 G38.2 Z-5"))
	require.Len(t, f.m.dispatched, 1)
	assert.Equal(t, "G90", f.m.dispatched[0].String(), "other modal words go to the machine")

	f.p.On("RunProbeReturn", 5.0, float64(probe.DefaultDistance), false).Return(1.5, true, nil).Once()
	assert.Equal(t, "Z:1.5000\n", f.run(t, "G21 G30"))
	f.p.AssertExpectations(t)

	f.m.err = errors.New("unsupported code: G17")
	assert.Equal(t, "error:unsupported code: G17\n", f.run(t, "G17 G38.2 Z-5"))
	f.p.AssertNumberOfCalls(t, "ProbeAlongAxis", 1)
}

func TestHandler_AlreadyTriggered(t *testing.T) {
	f := newFixture(&stubStrategy{accept: []int{32}, name: "lvl"}, nil)
	f.pin.v.Store(true)

	assert.Equal(t, "ZProbe triggered before move, aborting command.\n", f.run(t, "G30"))
	assert.Equal(t, "ZProbe triggered before move, aborting command.\n", f.run(t, "G32"))
	assert.Equal(t, "error:ZProbe triggered before move, aborting command.\n", f.run(t, "G38.2 Z-10"))

	assert.Equal(t, 0, f.m.waits)
	f.p.AssertNotCalled(t, "RunProbe", mock.Anything, mock.Anything, mock.Anything)
	f.p.AssertNotCalled(t, "RunProbeReturn", mock.Anything, mock.Anything, mock.Anything)
	f.p.AssertNotCalled(t, "ProbeAlongAxis", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestHandler_StraightProbe(t *testing.T) {
	f := newFixture(nil, nil)
	f.p.On("ProbeAlongAxis", coord.X, 10.0, 5.0, true).Return(probe.Measurement{
		Axis:      coord.X,
		Distance:  3.214,
		Position:  coord.Point{X: 3.214},
		Triggered: true,
	}, nil).Once()

	assert.Equal(t, "[PRB:3.214,0.000,0.000:1]\n", f.run(t, "G38.2 X10"))
	assert.Equal(t, 1, f.m.waits)
	f.p.AssertExpectations(t)
}

func TestHandler_StraightProbeAxisOrder(t *testing.T) {
	f := newFixture(nil, nil)
	f.p.On("ProbeAlongAxis", coord.Y, -4.0, 1.5, false).Return(probe.Measurement{Axis: coord.Y, Position: coord.Point{Y: -4}}, nil).Once()

	assert.Equal(t, "[PRB:0.000,-4.000,0.000:0]\n", f.run(t, "G38.3 Z-1 Y-4 F90"))
	f.p.AssertExpectations(t)
}

func TestHandler_StraightProbeFail(t *testing.T) {
	f := newFixture(nil, nil)
	f.p.On("ProbeAlongAxis", coord.Z, -5.0, 5.0, true).Return(probe.Measurement{Axis: coord.Z, Position: coord.Point{Z: -5}}, probe.ErrProbeFail).Once()

	assert.Equal(t, "[PRB:0.000,0.000,-5.000:0]\nALARM: Probe fail\n", f.run(t, "G38.2 Z-5"))
}

func TestHandler_StraightProbeMoveError(t *testing.T) {
	f := newFixture(nil, nil)
	f.p.On("ProbeAlongAxis", coord.Z, -5.0, 5.0, true).Return(probe.Measurement{Axis: coord.Z}, errors.New("probe move: machine halted")).Once()

	assert.Equal(t, "error:probe move: machine halted\n", f.run(t, "G38.2 Z-5"))
}

func TestHandler_StraightProbeErrors(t *testing.T) {
	f := newFixture(nil, nil)

	assert.Equal(t, "error:Only G38.2 and G38.3 are supported\n", f.run(t, "G38.4 Z-5"))
	assert.Equal(t, "error:at least one of X Y or Z must be specified\n", f.run(t, "G38.2 F100"))
	f.p.AssertNotCalled(t, "ProbeAlongAxis", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestHandler_StrategyRouting(t *testing.T) {
	lvl := &stubStrategy{accept: []int{31, 32}, name: "lvl"}
	cal := &stubStrategy{accept: []int{29, 32}, name: "cal"}
	f := newFixture(lvl, cal)

	assert.Equal(t, "lvl G32\n", f.run(t, "G32"))
	assert.Equal(t, "cal G29\n", f.run(t, "G29"), "falls through to calibration")
	assert.Equal(t, "cal G32\n", f.run(t, "G32 P1"))
	assert.Equal(t, "strategy #0 did not handle G29\n", f.run(t, "G29 P0"))
	assert.Equal(t, "Only P0 ad P1 supported\n", f.run(t, "G32 P2"))
}

func TestHandler_NoStrategy(t *testing.T) {
	f := newFixture(nil, nil)

	assert.Equal(t, "No strategy found to handle G31\n", f.run(t, "G31"))
	assert.Equal(t, "strategy #1 did not handle G32\n", f.run(t, "G32 P1"))
}

func TestHandler_M119(t *testing.T) {
	f := newFixture(nil, nil)
	assert.Equal(t, "Probe: 0\n", f.run(t, "M119"))

	f.pin.v.Store(true)
	assert.Equal(t, "Probe: 1\n", f.run(t, "M119"))

	f.p.input.SetInverting(true)
	assert.Equal(t, "Probe: 0\n", f.run(t, "M119"))
}

func TestHandler_M670(t *testing.T) {
	f := newFixture(nil, nil)

	assert.Equal(t, "", f.run(t, "M670 S2.5 K50 R7 Z20 H3 D0.5"))
	assert.Equal(t, probe.Settings{
		SlowFeedrate:   2.5,
		FastFeedrate:   50,
		ReturnFeedrate: 7,
		MaxZ:           20,
		ProbeHeight:    3,
		Dwell:          0.5,
	}, f.p.settings)

	// only the given letters change
	f.run(t, "M670 S4")
	assert.Equal(t, 4.0, f.p.settings.SlowFeedrate)
	assert.Equal(t, 50.0, f.p.settings.FastFeedrate)

	f.run(t, "M670 I1")
	assert.True(t, f.p.input.Inverting())
	f.run(t, "M670 I0")
	assert.True(t, f.p.input.Inverting())
	f.run(t, "M670 I1")
	assert.False(t, f.p.input.Inverting())
}

func TestHandler_M500(t *testing.T) {
	f := newFixture(nil, nil)
	f.run(t, "M670 Z10")

	assert.Equal(t,
		";Probe feedrates Slow/fast(K)/Return (mm/sec) max_z (mm) height (mm) dwell (s):\n"+
			"M670 S5.00 K100.00 R0.00 Z10.00 H5.00 D0.00\n",
		f.run(t, "M500"))
}

func TestHandler_Forwarding(t *testing.T) {
	lvl := &stubStrategy{accept: []int{561}, name: "lvl"}
	f := newFixture(lvl, nil)

	var buf bytes.Buffer
	assert.False(t, f.h.Handle(gcode.Block{{W: 'X', Arg: 1}}, &buf))
	assert.False(t, f.h.Handle(gcode.Block{{W: 'G', Arg: 0}, {W: 'X', Arg: 1}}, &buf))

	assert.Equal(t, "lvl M561\n", f.run(t, "M561"))

	require.NoError(t, f.h.Dispatch(gcode.Block{{W: 'G', Arg: 0}, {W: 'X', Arg: 1}}, &buf))
	require.Len(t, f.m.dispatched, 1)
	assert.Equal(t, "G0X1", f.m.dispatched[0].String())
}
