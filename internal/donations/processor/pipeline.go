package processor

import (
	"errors"
	"fmt"

	"charity-server/internal/store"
)

var ErrInvalidTransition = errors.New("invalid donation state transition")

// State is where a donation attempt is in the submission pipeline. Only pending, completed
// and failed are persisted; draft and submitting exist for the attempt being driven.
type State string

const (
	StateDraft           State = "draft"
	StateSubmitting      State = "submitting"
	StateAwaitingPayment State = "awaiting_payment_confirmation"
	StateCompleted       State = "completed"
	StateFailed          State = "failed"
)

// Failed returns to draft on retry. Submitting falls back to draft when nothing was persisted.
var transitions = map[State][]State{
	StateDraft:           {StateSubmitting},
	StateSubmitting:      {StateAwaitingPayment, StateFailed, StateDraft},
	StateAwaitingPayment: {StateCompleted, StateFailed},
	StateFailed:          {StateDraft},
}

// CanTransition reports whether from may move to to.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition checks the move and returns the new state.
func Transition(from, to State) (State, error) {
	if !CanTransition(from, to) {
		return from, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, from, to)
	}
	return to, nil
}

// Terminal reports whether no automatic transition leaves s.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// StateOf maps a persisted donation onto the pipeline.
func StateOf(d store.Donation) State {
	switch d.Status {
	case store.DonationStatusCompleted:
		return StateCompleted
	case store.DonationStatusFailed:
		return StateFailed
	default:
		return StateAwaitingPayment
	}
}

// Attempt is one pass through the pipeline as seen by the donor.
type Attempt struct {
	State       State
	Donation    store.Donation
	CheckoutURL string
	SessionID   string
}

func (a *Attempt) advance(to State) error {
	next, err := Transition(a.State, to)
	if err != nil {
		return err
	}
	a.State = next
	return nil
}
