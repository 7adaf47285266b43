package probe

import (
	"errors"
	"io"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mastercactapus/zprobe/coord"
	"github.com/mastercactapus/zprobe/gcode"
)

type mockMachine struct {
	mock.Mock
}

var _ Machine = (*mockMachine)(nil)

func (m *mockMachine) WaitForIdle()                  { m.Called() }
func (m *mockMachine) PushState()                    { m.Called() }
func (m *mockMachine) PopState()                     { m.Called() }
func (m *mockMachine) SetAbsoluteMode(absolute bool) { m.Called(absolute) }
func (m *mockMachine) SetNextCommandMCS()            { m.Called() }
func (m *mockMachine) SetSegmentation(enabled bool)  { m.Called(enabled) }
func (m *mockMachine) ResetPositionFromActuators()   { m.Called() }
func (m *mockMachine) Halt(reason string)            { m.Called(reason) }

func (m *mockMachine) DeltaMove(delta coord.Point, feedrate float64) error {
	return m.Called(delta, feedrate).Error(0)
}

func (m *mockMachine) AxisPosition() coord.Point {
	return m.Called().Get(0).(coord.Point)
}

func (m *mockMachine) SetLastProbePosition(p coord.Point, triggered bool) {
	m.Called(p, triggered)
}

func (m *mockMachine) Dispatch(b gcode.Block, out io.Writer) error {
	return m.Called(b, out).Error(0)
}

type engineFixture struct {
	e    *Engine
	m    *mockMachine
	pin  *fakePin
	acts []*fakeActuator
}

func newEngineFixture(t *testing.T, settings Settings) *engineFixture {
	l := log.New()
	l.SetOutput(io.Discard)

	acts, f := newFakeActuators()
	pin := &fakePin{}
	m := &mockMachine{}
	e := NewEngine(EngineConfig{
		Settings:  settings,
		Input:     NewInput(pin, false, 0),
		Actuators: acts,
		Machine:   m,
		Logger:    l,
		Sleep:     func(time.Duration) { t.Fatal("unexpected dwell") },
	})
	return &engineFixture{e: e, m: m, pin: pin, acts: f}
}

func TestEngine_AlreadyTriggered(t *testing.T) {
	fx := newEngineFixture(t, DefaultSettings())
	fx.pin.active.Store(true)

	mm, ok, err := fx.e.RunProbe(5, 10, false)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0.0, mm)
	assert.False(t, fx.e.Session().Armed())

	_, err = fx.e.ProbeAlongAxis(coord.X, 10, 5, true)
	assert.Equal(t, ErrAlreadyTriggered, err)

	fx.m.AssertNotCalled(t, "DeltaMove", mock.Anything, mock.Anything)
	fx.m.AssertNotCalled(t, "Dispatch", mock.Anything, mock.Anything)
	fx.m.AssertNotCalled(t, "Halt", mock.Anything)
	for _, a := range fx.acts {
		assert.Equal(t, 0, a.stopCount())
	}
}

func TestEngine_RunProbeDirection(t *testing.T) {
	tests := []struct {
		reverseZ, reverse bool
		want              float64
	}{
		{false, false, -20},
		{false, true, 20},
		{true, false, 20},
		{true, true, -20},
	}
	for _, tc := range tests {
		s := DefaultSettings()
		s.MaxZ = 10
		s.ReverseZ = tc.reverseZ
		fx := newEngineFixture(t, s)

		fx.m.On("DeltaMove", coord.Point{Z: tc.want}, 5.0).Return(nil).Once()
		fx.m.On("WaitForIdle").Once()
		fx.m.On("SetLastProbePosition", coord.Point{}, false).Once()

		mm, ok, err := fx.e.RunProbe(5, DefaultDistance, tc.reverse)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, 0.0, mm)
		assert.False(t, fx.e.Session().Armed())

		fx.m.AssertExpectations(t)
		fx.m.AssertNotCalled(t, "ResetPositionFromActuators")
	}
}

func TestEngine_RunProbeTriggered(t *testing.T) {
	s := DefaultSettings()
	s.Dwell = 0.25
	fx := newEngineFixture(t, s)

	var slept time.Duration
	fx.e.sleep = func(d time.Duration) {
		assert.False(t, fx.e.Session().Armed(), "dwell happens before arming")
		slept = d
	}

	fx.acts[coord.Z].pos = 2
	fx.m.On("DeltaMove", coord.Point{Z: -8}, 3.0).Return(nil).Once()
	fx.m.On("WaitForIdle").Run(func(mock.Arguments) {
		// the move gets truncated by the sampler
		fx.acts[coord.Z].setMoving(true)
		fx.acts[coord.Z].pos = -1.5
		fx.pin.active.Store(true)
		require.True(t, fx.e.Sampler().Tick())
	}).Once()
	fx.m.On("SetLastProbePosition", coord.Point{Z: 3.5}, true).Once()
	fx.m.On("ResetPositionFromActuators").Once()

	mm, ok, err := fx.e.RunProbe(3, 8, false)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 3.5, mm)
	assert.Equal(t, 250*time.Millisecond, slept)
	assert.False(t, fx.e.Session().Armed())
	fx.m.AssertExpectations(t)
}

func TestEngine_RunProbeReturn(t *testing.T) {
	s := DefaultSettings()
	s.MaxZ = 5
	fx := newEngineFixture(t, s)

	fx.m.On("AxisPosition").Return(coord.Point{X: 1, Y: 2, Z: 7}).Once()
	fx.m.On("DeltaMove", coord.Point{Z: -10}, 5.0).Return(nil).Once()
	fx.m.On("WaitForIdle")
	fx.m.On("SetLastProbePosition", coord.Point{}, false).Once()
	fx.m.On("PushState").Once()
	fx.m.On("SetAbsoluteMode", true).Once()
	fx.m.On("SetNextCommandMCS").Once()
	fx.m.On("Dispatch", gcode.Block{{W: 'G', Arg: 0}, {W: 'Z', Arg: 7}, {W: 'F', Arg: 600}}, io.Discard).Return(nil).Once()
	fx.m.On("PopState").Once()

	_, ok, err := fx.e.RunProbeReturn(5, DefaultDistance, false)
	require.NoError(t, err)
	assert.False(t, ok)
	fx.m.AssertExpectations(t)
}

func TestEngine_MoveRefused(t *testing.T) {
	fx := newEngineFixture(t, DefaultSettings())
	halted := errors.New("machine halted")

	fx.m.On("AxisPosition").Return(coord.Point{Z: 7}).Once()
	fx.m.On("DeltaMove", mock.Anything, 5.0).Return(halted).Once()

	mm, ok, err := fx.e.RunProbeReturn(5, 10, false)
	assert.ErrorIs(t, err, halted)
	assert.False(t, ok)
	assert.Equal(t, 0.0, mm)
	assert.False(t, fx.e.Session().Armed())

	fx.m.AssertExpectations(t)
	fx.m.AssertNotCalled(t, "WaitForIdle")
	fx.m.AssertNotCalled(t, "SetLastProbePosition", mock.Anything, mock.Anything)
	fx.m.AssertNotCalled(t, "Dispatch", mock.Anything, mock.Anything)
}

func TestEngine_InvalidFeedrate(t *testing.T) {
	fx := newEngineFixture(t, DefaultSettings())

	for _, rate := range []float64{0, -1} {
		_, ok, err := fx.e.RunProbe(rate, 10, false)
		assert.Equal(t, ErrInvalidFeedrate, err)
		assert.False(t, ok)

		_, err = fx.e.ProbeAlongAxis(coord.Z, -10, rate, true)
		assert.Equal(t, ErrInvalidFeedrate, err)
	}
	assert.False(t, fx.e.Session().Armed())
	fx.m.AssertNotCalled(t, "DeltaMove", mock.Anything, mock.Anything)
	fx.m.AssertNotCalled(t, "Dispatch", mock.Anything, mock.Anything)
	fx.m.AssertNotCalled(t, "Halt", mock.Anything)
}

func TestEngine_ProbeAlongAxisStrictFailure(t *testing.T) {
	fx := newEngineFixture(t, DefaultSettings())

	fx.m.On("AxisPosition").Return(coord.Point{}).Once()
	fx.m.On("SetSegmentation", false).Once()
	fx.m.On("PushState").Once()
	fx.m.On("SetAbsoluteMode", false).Once()
	fx.m.On("SetNextCommandMCS").Once()
	fx.m.On("Dispatch", gcode.Block{{W: 'G', Arg: 0}, {W: 'Z', Arg: -10}, {W: 'F', Arg: 120}}, io.Discard).Return(nil).Once()
	fx.m.On("WaitForIdle").Once()
	fx.m.On("PopState").Once()
	fx.m.On("SetSegmentation", true).Once()
	fx.m.On("ResetPositionFromActuators").Once()
	fx.m.On("AxisPosition").Return(coord.Point{Z: -10}).Once()
	fx.m.On("SetLastProbePosition", coord.Point{Z: -10}, false).Once()
	fx.m.On("Halt", "probe fail").Once()

	res, err := fx.e.ProbeAlongAxis(coord.Z, -10, 2, true)
	assert.Equal(t, ErrProbeFail, err)
	assert.False(t, res.Triggered)
	assert.Equal(t, -10.0, res.Distance)
	fx.m.AssertExpectations(t)
}

func TestEngine_ProbeAlongAxisReconcilesWithoutTrigger(t *testing.T) {
	fx := newEngineFixture(t, DefaultSettings())

	fx.m.On("AxisPosition").Return(coord.Point{X: 1}).Once()
	fx.m.On("SetSegmentation", mock.Anything)
	fx.m.On("PushState")
	fx.m.On("PopState")
	fx.m.On("SetAbsoluteMode", false)
	fx.m.On("SetNextCommandMCS")
	fx.m.On("Dispatch", mock.Anything, mock.Anything).Return(nil)
	fx.m.On("WaitForIdle")
	fx.m.On("ResetPositionFromActuators").Once()
	fx.m.On("AxisPosition").Return(coord.Point{X: 6}).Once()
	fx.m.On("SetLastProbePosition", coord.Point{X: 6}, false).Once()

	res, err := fx.e.ProbeAlongAxis(coord.X, 5, 2, false)
	require.NoError(t, err)
	assert.Equal(t, Measurement{Axis: coord.X, Distance: 5, Position: coord.Point{X: 6}}, res)
	fx.m.AssertExpectations(t)
	fx.m.AssertNotCalled(t, "Halt", mock.Anything)
}

func TestEngine_MoveRestoresStateOnError(t *testing.T) {
	fx := newEngineFixture(t, DefaultSettings())

	fx.m.On("PushState").Once()
	fx.m.On("SetAbsoluteMode", true).Once()
	fx.m.On("SetNextCommandMCS").Once()
	fx.m.On("Dispatch", mock.Anything, io.Discard).Return(errors.New("halted")).Once()
	fx.m.On("WaitForIdle").Once()
	fx.m.On("PopState").Once()

	err := fx.e.MoveXY(10, 20, 100, false)
	assert.EqualError(t, err, "halted")
	fx.m.AssertExpectations(t)
}
