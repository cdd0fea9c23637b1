package payment

import "fmt"

// StateMachine validates payment transaction state transitions.
type StateMachine struct {
	transitions map[Status][]Status
}

// NewStateMachine creates the transaction state machine. Pending is the
// only initial state; failed, cancelled and refunded are terminal.
// Completed admits exactly one further transition, to refunded.
func NewStateMachine() *StateMachine {
	return &StateMachine{
		transitions: map[Status][]Status{
			StatusPending:    {StatusProcessing, StatusCompleted, StatusFailed, StatusCancelled},
			StatusProcessing: {StatusCompleted, StatusFailed, StatusCancelled},
			StatusCompleted:  {StatusRefunded},
			StatusFailed:     {},
			StatusCancelled:  {},
			StatusRefunded:   {},
		},
	}
}

// CanTransition checks if a transition from `from` to `to` is valid.
func (sm *StateMachine) CanTransition(from, to Status) bool {
	allowed, ok := sm.transitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// Validate returns an error describing an invalid transition.
func (sm *StateMachine) Validate(from, to Status) error {
	if !sm.CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// AllowedSources returns every status from which `to` is reachable.
func (sm *StateMachine) AllowedSources(to Status) []Status {
	var sources []Status
	for from, allowed := range sm.transitions {
		for _, s := range allowed {
			if s == to {
				sources = append(sources, from)
			}
		}
	}
	return sources
}
