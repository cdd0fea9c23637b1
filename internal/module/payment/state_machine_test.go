package payment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStateMachine(t *testing.T) {
	sm := NewStateMachine()

	t.Run("Allowed transitions", func(t *testing.T) {
		allowed := []struct{ from, to Status }{
			{StatusPending, StatusProcessing},
			{StatusPending, StatusCompleted},
			{StatusPending, StatusFailed},
			{StatusPending, StatusCancelled},
			{StatusProcessing, StatusCompleted},
			{StatusProcessing, StatusFailed},
			{StatusProcessing, StatusCancelled},
			{StatusCompleted, StatusRefunded},
		}
		for _, tr := range allowed {
			assert.True(t, sm.CanTransition(tr.from, tr.to), "%s -> %s", tr.from, tr.to)
			assert.NoError(t, sm.Validate(tr.from, tr.to))
		}
	})

	t.Run("Terminal states admit nothing", func(t *testing.T) {
		terminals := []Status{StatusFailed, StatusCancelled, StatusRefunded}
		targets := []Status{StatusPending, StatusProcessing, StatusCompleted, StatusFailed, StatusCancelled, StatusRefunded}
		for _, from := range terminals {
			for _, to := range targets {
				assert.False(t, sm.CanTransition(from, to), "%s -> %s", from, to)
			}
		}
	})

	t.Run("Completed only transitions to refunded", func(t *testing.T) {
		assert.False(t, sm.CanTransition(StatusCompleted, StatusPending))
		assert.False(t, sm.CanTransition(StatusCompleted, StatusFailed))
		assert.False(t, sm.CanTransition(StatusCompleted, StatusCompleted))
		assert.True(t, sm.CanTransition(StatusCompleted, StatusRefunded))
	})

	t.Run("No status transitions to itself", func(t *testing.T) {
		all := []Status{StatusPending, StatusProcessing, StatusCompleted, StatusFailed, StatusCancelled, StatusRefunded}
		for _, s := range all {
			assert.False(t, sm.CanTransition(s, s), "%s -> %s", s, s)
		}
	})

	t.Run("Unknown status is rejected", func(t *testing.T) {
		assert.False(t, sm.CanTransition(Status("bogus"), StatusCompleted))
		assert.False(t, sm.CanTransition(StatusPending, Status("bogus")))
	})

	t.Run("Validate wraps ErrInvalidTransition", func(t *testing.T) {
		err := sm.Validate(StatusRefunded, StatusPending)
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("AllowedSources for completed", func(t *testing.T) {
		sources := sm.AllowedSources(StatusCompleted)
		assert.ElementsMatch(t, []Status{StatusPending, StatusProcessing}, sources)
	})

	t.Run("AllowedSources for refunded", func(t *testing.T) {
		sources := sm.AllowedSources(StatusRefunded)
		assert.ElementsMatch(t, []Status{StatusCompleted}, sources)
	})
}
