package model

import "fmt"

// Status is the lifecycle state of an appointment.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusNoShow    Status = "no_show"
)

// ActiveStatuses occupy the doctor's slot.
var ActiveStatuses = []Status{StatusScheduled, StatusCompleted}

func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

func (s Status) Active() bool {
	return s == StatusScheduled || s == StatusCompleted
}

// CanTransition allows scheduled to move to any other state; the others are final.
func (s Status) CanTransition(to Status) bool {
	return s == StatusScheduled && to.Valid() && to != StatusScheduled
}

type TransitionError struct {
	From, To Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot move appointment from %s to %s", e.From, e.To)
}
