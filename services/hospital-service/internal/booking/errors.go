package booking

import (
	"errors"

	"github.com/knocktern/hospital-booking/services/hospital-service/internal/scheduling"
	"github.com/knocktern/hospital-booking/services/hospital-service/internal/storage"
)

var (
	ErrNotFound  = storage.ErrNotFound
	ErrForbidden = errors.New("access denied")

	// ErrSlotTaken is returned when the database refuses an overlapping
	// appointment that a concurrent writer committed first.
	ErrSlotTaken     = errors.New("time slot was just taken")
	ErrSlotConflict  = errors.New("time slot conflict")
	ErrOutsideHours  = errors.New("time is outside the doctor's working hours")
	ErrPastDate      = errors.New("date is in the past")
	ErrRequestClosed = errors.New("request is no longer pending")
)

// ConflictError carries the checker's verdict. When Verdict.Cause is set the
// slot could not be checked at all and the write was refused to stay safe.
type ConflictError struct {
	Verdict scheduling.Verdict
}

func (e *ConflictError) Error() string { return e.Verdict.Reason }

func (e *ConflictError) Is(target error) bool { return target == ErrSlotConflict }

func (e *ConflictError) Unwrap() error { return e.Verdict.Cause }
