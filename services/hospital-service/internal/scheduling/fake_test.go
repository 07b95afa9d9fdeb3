package scheduling

import (
	"context"
	"sort"
)

type fakeAppointment struct {
	id       int64
	doctorID int64
	day      Date
	start    Clock
	active   bool
}

// fakeStore mimics the SQL store: active rows only, ordered by start.
type fakeStore struct {
	appointments []fakeAppointment
	hours        map[int64]WorkingHours
	listErr      error
	hoursErr     error
	listCalls    int
}

func (f *fakeStore) ActiveBookings(_ context.Context, doctorID int64, day Date, excludeID int64) ([]Booking, error) {
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []Booking
	for _, a := range f.appointments {
		if a.doctorID != doctorID || !a.day.Equal(day) || !a.active {
			continue
		}
		if excludeID != 0 && a.id == excludeID {
			continue
		}
		out = append(out, Booking{AppointmentID: a.id, Start: a.start})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out, nil
}

func (f *fakeStore) WorkingHours(_ context.Context, doctorID int64) (WorkingHours, error) {
	if f.hoursErr != nil {
		return WorkingHours{}, f.hoursErr
	}
	h, ok := f.hours[doctorID]
	if !ok {
		return WorkingHours{}, ErrDoctorNotFound
	}
	return h, nil
}
