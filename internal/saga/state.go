package saga

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is returned when a trigger is not allowed in the current state
var ErrInvalidTransition = errors.New("invalid saga transition")

// State is the lifecycle state of a pick-stock saga
type State string

const (
	StateConsumingReservation State = "ConsumingReservation"
	StateCompleted            State = "Completed"
	StateFailed               State = "Failed"
)

// IsFinal returns true for Completed and Failed
func (s State) IsFinal() bool {
	return s == StateCompleted || s == StateFailed
}

// Trigger is the outcome of a consumption attempt that moves the saga
type Trigger string

const (
	// TriggerReservationConsumed: the reservation accepted the movement
	TriggerReservationConsumed Trigger = "ReservationConsumed"

	// TriggerConsumptionFailed: the attempt failed and another one is scheduled
	TriggerConsumptionFailed Trigger = "ConsumptionFailed"

	// TriggerRetriesExhausted: the attempt failed and no retry budget remains
	TriggerRetriesExhausted Trigger = "RetriesExhausted"
)

var transitions = map[State]map[Trigger]State{
	StateConsumingReservation: {
		TriggerReservationConsumed: StateCompleted,
		TriggerConsumptionFailed:   StateConsumingReservation,
		TriggerRetriesExhausted:    StateFailed,
	},
	StateCompleted: {},
	StateFailed:    {},
}

// Next returns the state reached from s on trigger
func (s State) Next(trigger Trigger) (State, error) {
	allowed, ok := transitions[s]
	if !ok {
		return s, fmt.Errorf("%w: unknown state %q", ErrInvalidTransition, s)
	}
	next, ok := allowed[trigger]
	if !ok {
		return s, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, s, trigger)
	}
	return next, nil
}
