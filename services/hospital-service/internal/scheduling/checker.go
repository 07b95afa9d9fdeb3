// Package scheduling decides whether a doctor's half-hour slot is free and
// lists the free slots of a working day.
package scheduling

import (
	"context"
)

// Booking is the part of an appointment that occupies a doctor's time.
type Booking struct {
	AppointmentID int64
	Start         Clock
}

func (b Booking) End() Clock { return b.Start.Add(SlotLength) }

// BookingLister returns the active (scheduled or completed) appointments of a
// doctor on a day, ascending by start, leaving out excludeID when non-zero.
type BookingLister interface {
	ActiveBookings(ctx context.Context, doctorID int64, day Date, excludeID int64) ([]Booking, error)
}

type SlotQuery struct {
	DoctorID  int64
	Date      Date
	Start     Clock
	ExcludeID int64
}

// Verdict is the outcome of a conflict check. A conflict is a normal outcome;
// Cause is set only when the check itself could not run.
type Verdict struct {
	Conflict bool
	Reason   string
	With     *Booking
	Cause    error
}

const reasonAvailable = "slot available"

// Overlaps reports whether slots starting at a and b intersect.
func Overlaps(a, b Clock) bool {
	return a < b.Add(SlotLength) && a.Add(SlotLength) > b
}

// Evaluate checks start against existing. When several bookings collide the
// earliest one is reported, whatever order existing is in.
func Evaluate(start Clock, existing []Booking) Verdict {
	var hit *Booking
	for i := range existing {
		b := existing[i]
		if !Overlaps(start, b.Start) {
			continue
		}
		if hit == nil || b.Start < hit.Start {
			hit = &b
		}
	}
	if hit == nil {
		return Verdict{Reason: reasonAvailable}
	}
	return Verdict{
		Conflict: true,
		Reason:   "time slot conflicts with existing appointment at " + hit.Start.String(),
		With:     hit,
	}
}

type Checker struct {
	bookings BookingLister
}

func NewChecker(bookings BookingLister) *Checker {
	return &Checker{bookings: bookings}
}

// Check fails closed: if bookings cannot be listed the slot is reported as
// taken and the cause is kept on the verdict.
func (c *Checker) Check(ctx context.Context, q SlotQuery) Verdict {
	existing, err := c.bookings.ActiveBookings(ctx, q.DoctorID, q.Date, q.ExcludeID)
	if err != nil {
		lerr := &LookupError{Op: "active bookings", Err: err}
		return Verdict{
			Conflict: true,
			Reason:   "error checking time conflict: " + err.Error(),
			Cause:    lerr,
		}
	}
	return Evaluate(q.Start, existing)
}

// CheckStrings parses date and clock before touching the store. Parse
// failures return an error matching ErrMalformedInput.
func (c *Checker) CheckStrings(ctx context.Context, doctorID int64, date, clock string, excludeID int64) (Verdict, error) {
	q, err := ParseSlotQuery(doctorID, date, clock, excludeID)
	if err != nil {
		return Verdict{}, err
	}
	return c.Check(ctx, q), nil
}

func ParseSlotQuery(doctorID int64, date, clock string, excludeID int64) (SlotQuery, error) {
	d, err := ParseDate(date)
	if err != nil {
		return SlotQuery{}, err
	}
	t, err := ParseClock(clock)
	if err != nil {
		return SlotQuery{}, err
	}
	return SlotQuery{DoctorID: doctorID, Date: d, Start: t, ExcludeID: excludeID}, nil
}
