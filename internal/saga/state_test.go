package saga

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestState_Next(t *testing.T) {
	tests := []struct {
		from    State
		trigger Trigger
		want    State
	}{
		{StateConsumingReservation, TriggerReservationConsumed, StateCompleted},
		{StateConsumingReservation, TriggerConsumptionFailed, StateConsumingReservation},
		{StateConsumingReservation, TriggerRetriesExhausted, StateFailed},
	}
	for _, tt := range tests {
		got, err := tt.from.Next(tt.trigger)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "%s on %s", tt.from, tt.trigger)
	}
}

func TestState_FinalStatesAcceptNothing(t *testing.T) {
	for _, s := range []State{StateCompleted, StateFailed} {
		assert.True(t, s.IsFinal())
		for _, trig := range []Trigger{TriggerReservationConsumed, TriggerConsumptionFailed, TriggerRetriesExhausted} {
			_, err := s.Next(trig)
			assert.ErrorIs(t, err, ErrInvalidTransition)
		}
	}
	_, err := State("Bogus").Next(TriggerReservationConsumed)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}
