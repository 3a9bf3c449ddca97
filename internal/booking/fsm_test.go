package booking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFSMTransitions(t *testing.T) {
	fsm := NewFSM()

	tests := []struct {
		name        string
		from        State
		to          State
		shouldAllow bool
	}{
		{"draft to validating", StateDraft, StateValidating, true},
		{"validating to checking", StateValidating, StateCheckingConflict, true},
		{"validating to rejected", StateValidating, StateRejected, true},
		{"checking to committing", StateCheckingConflict, StateCommitting, true},
		{"checking to rejected", StateCheckingConflict, StateRejected, true},
		{"committing to confirmed", StateCommitting, StateConfirmed, true},
		{"committing to rejected", StateCommitting, StateRejected, true},
		// Invalid transitions
		{"draft to confirmed", StateDraft, StateConfirmed, false},
		{"validating skips conflict check", StateValidating, StateCommitting, false},
		{"confirmed is terminal", StateConfirmed, StateRejected, false},
		{"rejected is terminal", StateRejected, StateValidating, false},
		{"no way back", StateCommitting, StateCheckingConflict, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.shouldAllow, fsm.CanTransition(tt.from, tt.to))
		})
	}
}

func TestFSM_TransitionRecordsTrail(t *testing.T) {
	fsm := NewFSM()
	sub := NewSubmission(validCandidate())

	require.NoError(t, fsm.Transition(sub, StateValidating))
	require.NoError(t, fsm.Transition(sub, StateCheckingConflict))
	require.Error(t, fsm.Transition(sub, StateConfirmed))
	assert.Equal(t, StateCheckingConflict, sub.State)

	require.NoError(t, fsm.Transition(sub, StateCommitting))
	require.NoError(t, fsm.Transition(sub, StateConfirmed))

	assert.Equal(t, []State{StateDraft, StateValidating, StateCheckingConflict, StateCommitting, StateConfirmed}, sub.Trail)
	assert.True(t, sub.State.Terminal())
	assert.False(t, sub.FinishedAt.IsZero())
	assert.Empty(t, sub.Reason())
}
