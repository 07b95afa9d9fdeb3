package scheduling

import (
	"context"
	"errors"
)

type WorkingHours struct {
	From Clock
	To   Clock
}

func (w WorkingHours) Valid() bool {
	return w.From >= 0 && w.From < w.To && w.To <= 24*60
}

// HoursLookup returns ErrDoctorNotFound for unknown doctors.
type HoursLookup interface {
	WorkingHours(ctx context.Context, doctorID int64) (WorkingHours, error)
}

type Store interface {
	BookingLister
	HoursLookup
}

type Enumerator struct {
	hours   HoursLookup
	checker *Checker
}

func NewEnumerator(store Store) *Enumerator {
	return &Enumerator{hours: store, checker: NewChecker(store)}
}

// Slots lists the free slot starts of doctorID on day, ascending. A slot is
// offered only if it ends by the doctor's available_to. An unknown doctor
// yields an empty list; a store failure yields a *LookupError so callers can
// tell "fully booked" from "could not tell".
func (e *Enumerator) Slots(ctx context.Context, doctorID int64, day Date) ([]Clock, error) {
	hours, err := e.hours.WorkingHours(ctx, doctorID)
	if errors.Is(err, ErrDoctorNotFound) {
		return []Clock{}, nil
	}
	if err != nil {
		return nil, &LookupError{Op: "working hours", Err: err}
	}

	existing, err := e.checker.bookings.ActiveBookings(ctx, doctorID, day, 0)
	if err != nil {
		return nil, &LookupError{Op: "active bookings", Err: err}
	}

	free := []Clock{}
	if !hours.Valid() {
		return free, nil
	}
	for c := hours.From; c.Add(SlotLength) <= hours.To; c = c.Add(SlotLength) {
		if !Evaluate(c, existing).Conflict {
			free = append(free, c)
		}
	}
	return free, nil
}

func (e *Enumerator) SlotsString(ctx context.Context, doctorID int64, date string) ([]Clock, error) {
	day, err := ParseDate(date)
	if err != nil {
		return nil, err
	}
	return e.Slots(ctx, doctorID, day)
}

// Strings formats slots as "HH:MM".
func Strings(slots []Clock) []string {
	out := make([]string, len(slots))
	for i, c := range slots {
		out[i] = c.String()
	}
	return out
}
