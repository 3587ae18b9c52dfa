// Package reminder contains the reminder delivery engine: a pure state
// machine over a task's reminder lifecycle and the polling scheduler
// that drives it.
package reminder

import (
	"errors"
	"fmt"
	"time"

	"taskhive/internal/models"
)

// ErrBadTransition is wrapped by every transition rejection
var ErrBadTransition = errors.New("invalid reminder transition")

// Event is a reminder lifecycle event
type Event interface {
	isEvent()
}

// Arm schedules (or reschedules) the reminder for a due time
type Arm struct {
	DueAt       time.Time
	Destination string // optional override address
}

// Disable turns the reminder off
type Disable struct{}

// Fire records the outcome of a delivery attempt
type Fire struct {
	Succeeded bool
}

// Retry manually re-queues a failed reminder
type Retry struct{}

func (Arm) isEvent()     {}
func (Disable) isEvent() {}
func (Fire) isEvent()    {}
func (Retry) isEvent()   {}

// Apply computes the next reminder state for an event. It is pure:
// persistence and delivery are the caller's concern.
//
// Transitions:
//
//	any      --Arm-->     pending
//	any      --Disable--> disabled
//	pending  --Fire ok--> sent
//	pending  --Fire !ok-> failed
//	failed   --Retry-->   pending
func Apply(current models.ReminderState, event Event) (models.ReminderState, error) {
	switch e := event.(type) {
	case Arm:
		if e.DueAt.IsZero() {
			return current, fmt.Errorf("%w: cannot arm without a due time", ErrBadTransition)
		}
		return models.ReminderPending, nil

	case Disable:
		return models.ReminderDisabled, nil

	case Fire:
		if current != models.ReminderPending {
			return current, fmt.Errorf("%w: cannot fire in state %q", ErrBadTransition, current)
		}
		if e.Succeeded {
			return models.ReminderSent, nil
		}
		return models.ReminderFailed, nil

	case Retry:
		if current != models.ReminderFailed {
			return current, fmt.Errorf("%w: cannot retry in state %q", ErrBadTransition, current)
		}
		return models.ReminderPending, nil

	default:
		return current, fmt.Errorf("%w: unknown event %T", ErrBadTransition, event)
	}
}
