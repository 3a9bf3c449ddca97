package booking

import (
	"fmt"
	"time"

	"campusroomz/internal/model"

	"github.com/google/uuid"
)

// State is a step of the submission workflow.
type State string

const (
	StateDraft            State = "draft"
	StateValidating       State = "validating"
	StateCheckingConflict State = "checking_conflict"
	StateCommitting       State = "committing"
	StateConfirmed        State = "confirmed"
	StateRejected         State = "rejected"
)

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateConfirmed || s == StateRejected
}

// FSM holds the allowed submission transitions.
type FSM struct {
	transitions map[State][]State
}

func NewFSM() *FSM {
	return &FSM{
		transitions: map[State][]State{
			StateDraft:            {StateValidating},
			StateValidating:       {StateCheckingConflict, StateRejected},
			StateCheckingConflict: {StateCommitting, StateRejected},
			StateCommitting:       {StateConfirmed, StateRejected},
		},
	}
}

// CanTransition checks if transition is allowed.
func (f *FSM) CanTransition(from, to State) bool {
	for _, s := range f.transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition moves the submission to the next state.
func (f *FSM) Transition(sub *Submission, to State) error {
	if !f.CanTransition(sub.State, to) {
		return fmt.Errorf("illegal submission transition %s -> %s", sub.State, to)
	}
	sub.State = to
	sub.Trail = append(sub.Trail, to)
	if to.Terminal() {
		sub.FinishedAt = time.Now()
	}
	return nil
}

// Submission tracks one booking attempt from draft to a terminal state.
// It is owned by a single request and is not safe for concurrent use.
type Submission struct {
	ID         string
	State      State
	Trail      []State
	Candidate  Candidate
	ExcludeID  string
	Booking    *model.Booking
	Rejection  *Rejection
	StartedAt  time.Time
	FinishedAt time.Time
}

func NewSubmission(c Candidate) *Submission {
	return &Submission{
		ID:        uuid.NewString(),
		State:     StateDraft,
		Trail:     []State{StateDraft},
		Candidate: c,
		StartedAt: time.Now(),
	}
}

// Reason returns the rejection reason or "" when not rejected.
func (s *Submission) Reason() Reason {
	if s.Rejection == nil {
		return ""
	}
	return s.Rejection.Reason
}
