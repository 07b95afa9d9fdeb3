package booking

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/knocktern/hospital-booking/libs/events"
	"github.com/knocktern/hospital-booking/services/hospital-service/internal/model"
	"github.com/knocktern/hospital-booking/services/hospital-service/internal/scheduling"
)

func requestInput(clock string) RequestInput {
	return RequestInput{DoctorID: 10, PreferredDate: day, PreferredTime: scheduling.MustClock(clock), Disease: "cough"}
}

func TestRequest_ApproveCreatesAppointment(t *testing.T) {
	store := seeded()
	svc := newTestService(store)
	ctx := context.Background()

	req, err := svc.RequestAppointment(ctx, patient, requestInput("15:00"))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if req.Status != model.RequestPending {
		t.Fatalf("expected pending, got %s", req.Status)
	}

	got, appt, err := svc.Approve(ctx, manager, req.ID, "see you")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if got.Status != model.RequestApproved || got.AppointmentID == nil || *got.AppointmentID != appt.ID {
		t.Fatalf("unexpected request after approve %+v", got)
	}
	if got.RespondedBy == nil || *got.RespondedBy != manager.UserID {
		t.Fatalf("responder not stamped")
	}
	if appt.BookingType != model.BookingByRequest || appt.Gender != "Not specified" || appt.Name != "pat" || appt.Phone != "555" {
		t.Fatalf("unexpected appointment %+v", appt)
	}
	if appt.PatientUserID == nil || *appt.PatientUserID != patient.UserID {
		t.Fatalf("appointment not linked to patient")
	}
	want := []string{events.RequestCreated, events.AppointmentBooked, events.RequestApproved}
	if got := store.eventTypes(); !slices.Equal(got, want) {
		t.Fatalf("events %v, want %v", got, want)
	}

	if _, _, err := svc.Approve(ctx, manager, req.ID, ""); !errors.Is(err, ErrRequestClosed) {
		t.Fatalf("second approve: %v", err)
	}
}

func TestRequest_ApproveRechecksSlot(t *testing.T) {
	store := seeded()
	svc := newTestService(store)
	ctx := context.Background()

	req, err := svc.RequestAppointment(ctx, patient, requestInput("15:00"))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if _, _, err := svc.Book(ctx, manager, bookInput("15:00")); err != nil {
		t.Fatalf("book: %v", err)
	}
	if _, _, err := svc.Approve(ctx, manager, req.ID, ""); !errors.Is(err, ErrSlotConflict) {
		t.Fatalf("expected conflict on approve, got %v", err)
	}
	r := store.state.requests[req.ID]
	if r.Status != model.RequestPending {
		t.Fatalf("failed approve changed request to %s", r.Status)
	}
}

func TestRequest_ApproveRefusesPastDay(t *testing.T) {
	store := seeded()
	svc := newTestService(store)
	ctx := context.Background()

	req, err := svc.RequestAppointment(ctx, patient, requestInput("15:00"))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	svc.now = func() time.Time { return day.At(scheduling.MustClock("09:00")).Add(48 * time.Hour) }

	if _, _, err := svc.Approve(ctx, manager, req.ID, ""); !errors.Is(err, ErrPastDate) {
		t.Fatalf("expected ErrPastDate, got %v", err)
	}
	if r := store.state.requests[req.ID]; r.Status != model.RequestPending || r.AppointmentID != nil {
		t.Fatalf("refused approve changed request: %+v", r)
	}
	if n := len(store.state.appointments); n != 0 {
		t.Fatalf("expected no appointment, got %d", n)
	}
	if got := store.eventTypes(); !slices.Equal(got, []string{events.RequestCreated}) {
		t.Fatalf("unexpected events %v", got)
	}
}

func TestRequest_CreateChecksSlot(t *testing.T) {
	store := seeded()
	store.addAppointment(model.Appointment{DoctorID: 10, Date: day, Time: scheduling.MustClock("15:00")})
	svc := newTestService(store)

	if _, err := svc.RequestAppointment(context.Background(), patient, requestInput("15:20")); !errors.Is(err, ErrSlotConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if _, err := svc.RequestAppointment(context.Background(), manager, requestInput("16:00")); !errors.Is(err, ErrForbidden) {
		t.Fatalf("manager request: %v", err)
	}
	in := requestInput("16:00")
	alt := scheduling.MustDate("2026-03-11")
	in.AlternateDate = &alt
	if _, err := svc.RequestAppointment(context.Background(), patient, in); !errors.Is(err, scheduling.ErrMalformedInput) {
		t.Fatalf("alternate date without time: %v", err)
	}
}

func TestRequest_Reject(t *testing.T) {
	store := seeded()
	svc := newTestService(store)
	ctx := context.Background()

	req, err := svc.RequestAppointment(ctx, patient, requestInput("09:30"))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if _, err := svc.Reject(ctx, patient, req.ID, "no"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("patient reject: %v", err)
	}
	got, err := svc.Reject(ctx, manager, req.ID, "fully booked")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if got.Status != model.RequestRejected || got.ManagerResponse != "fully booked" {
		t.Fatalf("unexpected %+v", got)
	}
	if len(store.state.appointments) != 0 {
		t.Fatalf("reject created an appointment")
	}
}

func TestExpireStale(t *testing.T) {
	store := seeded()
	svc := newTestService(store)
	ctx := context.Background()

	if _, err := svc.RequestAppointment(ctx, patient, requestInput("09:00")); err != nil {
		t.Fatalf("request: %v", err)
	}
	if _, err := svc.RequestAppointment(ctx, patient, requestInput("10:00")); err != nil {
		t.Fatalf("request: %v", err)
	}

	if n, err := svc.ExpireStale(ctx, 10); err != nil || n != 0 {
		t.Fatalf("nothing is stale yet: n=%d err=%v", n, err)
	}

	svc.now = func() time.Time { return day.Time().AddDate(0, 0, 1) }
	n, err := svc.ExpireStale(ctx, 1)
	if err != nil || n != 1 {
		t.Fatalf("first batch: n=%d err=%v", n, err)
	}
	n, err = svc.ExpireStale(ctx, 1)
	if err != nil || n != 1 {
		t.Fatalf("second batch: n=%d err=%v", n, err)
	}
	for _, r := range store.state.requests {
		if r.Status != model.RequestExpired {
			t.Fatalf("request %d still %s", r.ID, r.Status)
		}
	}
}

func TestExpiryWorkerDrainsBatches(t *testing.T) {
	store := seeded()
	svc := newTestService(store)
	ctx := context.Background()
	for _, c := range []string{"09:00", "10:00", "11:00"} {
		if _, err := svc.RequestAppointment(ctx, patient, requestInput(c)); err != nil {
			t.Fatalf("request: %v", err)
		}
	}
	svc.now = func() time.Time { return day.Time().AddDate(0, 0, 1) }

	w := NewExpiryWorker(svc, discardLogger(), ExpiryConfig{BatchSize: 2})
	w.drain(ctx)
	for _, r := range store.state.requests {
		if r.Status != model.RequestExpired {
			t.Fatalf("request %d still %s", r.ID, r.Status)
		}
	}
}
