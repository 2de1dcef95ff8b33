package statemachine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMachine_HappyPath(t *testing.T) {
	m := New("s1")
	assert.Equal(t, Pending, m.State)

	state, err := m.Apply(Event{Kind: StartRequested})
	require.NoError(t, err)
	assert.Equal(t, Starting, state)

	state, err = m.Apply(Event{Kind: ProcessStarted, PID: 1234})
	require.NoError(t, err)
	assert.Equal(t, Running, state)
	assert.Equal(t, 1234, m.PID)

	state, err = m.Apply(Event{Kind: StopRequested})
	require.NoError(t, err)
	assert.Equal(t, Stopped, state)
	assert.Zero(t, m.PID)
}

func TestMachine_ErrorThenRecover(t *testing.T) {
	m := New("s1")
	_, err := m.Apply(Event{Kind: StartRequested})
	require.NoError(t, err)

	state, err := m.Apply(Event{Kind: ErrorOccurred, Message: "x"})
	require.NoError(t, err)
	assert.Equal(t, Error, state)
	assert.Equal(t, "x", m.LastError)

	state, err = m.Apply(Event{Kind: StartRequested})
	require.NoError(t, err)
	assert.Equal(t, Starting, state)
	assert.Empty(t, m.LastError, "recovering from Error should clear last_error")
}

func TestMachine_QueueingFlow(t *testing.T) {
	m := New("s1")
	_, _ = m.Apply(Event{Kind: StartRequested})

	state, err := m.Apply(Event{Kind: EnqueuedForLimits, Reason: "max streams"})
	require.NoError(t, err)
	assert.Equal(t, Queued, state)
	assert.Equal(t, "max streams", m.LastError)

	state, err = m.Apply(Event{Kind: SlotAvailable})
	require.NoError(t, err)
	assert.Equal(t, Starting, state)
}

func TestMachine_IllegalTransition(t *testing.T) {
	m := New("s1")
	_, err := m.Apply(Event{Kind: ProcessStarted, PID: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid transition from pending")
	assert.Equal(t, Pending, m.State, "a rejected event must not mutate state")
}

func TestState_CanStartCanStop(t *testing.T) {
	assert.True(t, Pending.CanStart())
	assert.True(t, Stopped.CanStart())
	assert.True(t, Error.CanStart())
	assert.False(t, Running.CanStart())
	assert.False(t, Queued.CanStart())

	assert.True(t, Queued.CanStop())
	assert.True(t, Starting.CanStop())
	assert.True(t, Running.CanStop())
	assert.False(t, Pending.CanStop())
	assert.False(t, Stopped.CanStop())
}

func TestMachine_ErrorOccurredFromAnyState(t *testing.T) {
	for _, start := range []State{Pending, Queued, Starting, Running, Stopped} {
		m := &Machine{StreamID: "s", State: start}
		state, err := m.Apply(Event{Kind: ErrorOccurred, Message: "boom"})
		require.NoError(t, err)
		assert.Equal(t, Error, state)
	}
}
