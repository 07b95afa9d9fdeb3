// Package booking writes appointments and appointment requests. Every write
// that claims a slot runs check and insert in one transaction under a
// per-doctor-per-day advisory lock.
package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/knocktern/hospital-booking/libs/events"
	"github.com/knocktern/hospital-booking/services/hospital-service/internal/model"
	"github.com/knocktern/hospital-booking/services/hospital-service/internal/outbox"
	"github.com/knocktern/hospital-booking/services/hospital-service/internal/scheduling"
	"github.com/knocktern/hospital-booking/services/hospital-service/internal/storage"
)

// Actor is the authenticated caller.
type Actor struct {
	UserID int64
	Role   model.Role
	Name   string
	Email  string
}

type Service struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

func NewService(store Store, logger *slog.Logger) *Service {
	return &Service{store: store, logger: logger, now: time.Now}
}

type PatientDetails struct {
	PatientUserID *int64
	Email         string
	Name          string
	Gender        string
	Age           *int
	Disease       string
	Phone         string
}

type BookInput struct {
	DoctorID   int64
	Date       scheduling.Date
	Time       scheduling.Clock
	Department string
	Patient    PatientDetails
	// IdempotencyKey makes a retried booking return the first result.
	IdempotencyKey string
}

// Book creates a manager booking. The second return value is true when the
// appointment was created by an earlier request with the same idempotency key.
func (s *Service) Book(ctx context.Context, actor Actor, in BookInput) (model.Appointment, bool, error) {
	if actor.Role != model.RoleManager {
		return model.Appointment{}, false, ErrForbidden
	}
	if err := s.notPast(in.Date); err != nil {
		return model.Appointment{}, false, err
	}

	var appt model.Appointment
	replayed := false
	err := s.store.InTx(ctx, func(tx Tx) error {
		key := strings.TrimSpace(in.IdempotencyKey)
		if key != "" {
			prevID, found, err := tx.LockIdempotencyKey(ctx, actor.UserID, key)
			if err != nil {
				return fmt.Errorf("lock idempotency key: %w", err)
			}
			if found {
				prev, err := tx.GetAppointment(ctx, prevID)
				if err != nil {
					return err
				}
				appt, replayed = prev, true
				return nil
			}
		}

		doctor, err := tx.GetDoctor(ctx, in.DoctorID)
		if err != nil {
			return fmt.Errorf("doctor %d: %w", in.DoctorID, err)
		}
		if err := s.claimSlot(ctx, tx, doctor, in.Date, in.Time, 0); err != nil {
			return err
		}

		appt = model.Appointment{
			PatientUserID: in.Patient.PatientUserID,
			ManagerUserID: actor.UserID,
			DoctorID:      doctor.ID,
			DoctorName:    doctor.Name,
			BookingType:   model.BookingByManager,
			Status:        model.StatusScheduled,
			PaymentStatus: model.PaymentUnpaid,
		}
		applyDetails(&appt, doctor, in.Date, in.Time, in.Department, in.Patient)
		if err := tx.InsertAppointment(ctx, &appt); err != nil {
			return insertErr(err)
		}
		if key != "" {
			if err := tx.FinalizeIdempotencyKey(ctx, actor.UserID, key, appt.ID); err != nil {
				return err
			}
		}
		return s.record(ctx, tx, actor, appt, "created", "", events.AppointmentBooked, appointmentEvent(appt, doctor, s.now()))
	})
	if err != nil {
		return model.Appointment{}, false, err
	}
	if !replayed {
		s.logger.Info("appointment booked", "appointment_id", appt.ID, "doctor_id", appt.DoctorID,
			"date", appt.Date.String(), "time", appt.Time.String())
	}
	return appt, replayed, nil
}

type EditInput struct {
	DoctorID   int64
	Date       scheduling.Date
	Time       scheduling.Clock
	Department string
	Patient    PatientDetails
}

// Edit rewrites an appointment. A new slot is checked with the appointment
// itself left out, so keeping or nudging the same slot never conflicts with itself.
func (s *Service) Edit(ctx context.Context, actor Actor, id int64, in EditInput) (model.Appointment, error) {
	var appt model.Appointment
	err := s.store.InTx(ctx, func(tx Tx) error {
		cur, err := tx.GetAppointmentForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := authorize(ctx, tx, actor, cur); err != nil {
			return err
		}

		doctor, err := tx.GetDoctor(ctx, in.DoctorID)
		if err != nil {
			return fmt.Errorf("doctor %d: %w", in.DoctorID, err)
		}
		moved := cur.DoctorID != in.DoctorID || !cur.Date.Equal(in.Date) || cur.Time != in.Time
		if moved {
			if err := s.notPast(in.Date); err != nil {
				return err
			}
		}
		if moved && cur.Status.Active() {
			if err := s.claimSlot(ctx, tx, doctor, in.Date, in.Time, cur.ID); err != nil {
				return err
			}
		}

		appt = cur
		appt.DoctorID = doctor.ID
		appt.DoctorName = doctor.Name
		details := in.Patient
		details.PatientUserID = cur.PatientUserID
		applyDetails(&appt, doctor, in.Date, in.Time, in.Department, details)
		if err := tx.UpdateAppointment(ctx, &appt); err != nil {
			return insertErr(err)
		}

		detail := ""
		eventType := ""
		var payload any
		if moved {
			detail = fmt.Sprintf("moved from %s %s (doctor %d)", cur.Date, cur.Time, cur.DoctorID)
			ev := appointmentEvent(appt, doctor, s.now())
			ev.PreviousDate, ev.PreviousTime = cur.Date.String(), cur.Time.String()
			eventType, payload = events.AppointmentRescheduled, ev
		}
		return s.record(ctx, tx, actor, appt, "updated", detail, eventType, payload)
	})
	return appt, err
}

// SetStatus moves a scheduled appointment to completed, cancelled or
// no_show. Patients may only cancel.
func (s *Service) SetStatus(ctx context.Context, actor Actor, id int64, to model.Status) (model.Appointment, error) {
	if actor.Role == model.RolePatient && to != model.StatusCancelled {
		return model.Appointment{}, ErrForbidden
	}
	var appt model.Appointment
	err := s.store.InTx(ctx, func(tx Tx) error {
		cur, err := tx.GetAppointmentForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := authorize(ctx, tx, actor, cur); err != nil {
			return err
		}
		if !cur.Status.CanTransition(to) {
			return &model.TransitionError{From: cur.Status, To: to}
		}
		if err := tx.SetAppointmentStatus(ctx, id, to); err != nil {
			return err
		}
		appt = cur
		appt.Status = to

		doctor, err := tx.GetDoctor(ctx, appt.DoctorID)
		if err != nil {
			return err
		}
		eventType := events.AppointmentStatus
		if to == model.StatusCancelled {
			eventType = events.AppointmentCancelled
		}
		return s.record(ctx, tx, actor, appt, "status:"+string(to), "", eventType, appointmentEvent(appt, doctor, s.now()))
	})
	return appt, err
}

func (s *Service) Delete(ctx context.Context, actor Actor, id int64) error {
	return s.store.InTx(ctx, func(tx Tx) error {
		cur, err := tx.GetAppointmentForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := authorize(ctx, tx, actor, cur); err != nil {
			return err
		}
		if err := tx.DeleteAppointment(ctx, id); err != nil {
			return err
		}

		eventType := ""
		var payload any
		if cur.Status == model.StatusScheduled {
			doctor, err := tx.GetDoctor(ctx, cur.DoctorID)
			if err != nil {
				return err
			}
			ev := appointmentEvent(cur, doctor, s.now())
			ev.Status = string(model.StatusCancelled)
			eventType, payload = events.AppointmentCancelled, ev
		}
		return s.record(ctx, tx, actor, cur, "deleted", "", eventType, payload)
	})
}

// MarkPaid records a settled consultation fee. It is idempotent.
func (s *Service) MarkPaid(ctx context.Context, appointmentID int64) (bool, error) {
	changed := false
	err := s.store.InTx(ctx, func(tx Tx) error {
		appt, err := tx.GetAppointmentForUpdate(ctx, appointmentID)
		if err != nil {
			return err
		}
		if changed, err = tx.MarkAppointmentPaid(ctx, appointmentID); err != nil || !changed {
			return err
		}
		appt.PaymentStatus = model.PaymentPaid
		doctor, err := tx.GetDoctor(ctx, appt.DoctorID)
		if err != nil {
			return err
		}
		system := Actor{Name: "payments"}
		return s.record(ctx, tx, system, appt, "paid", "", events.AppointmentPaid, appointmentEvent(appt, doctor, s.now()))
	})
	return changed, err
}

// claimSlot must run inside the transaction that writes the appointment.
func (s *Service) claimSlot(ctx context.Context, tx Tx, doctor model.Doctor, day scheduling.Date, start scheduling.Clock, excludeID int64) error {
	if !fitsHours(doctor.WorkingHours(), start) {
		return fmt.Errorf("%w (%s-%s)", ErrOutsideHours, doctor.AvailableFrom, doctor.AvailableTo)
	}
	if err := tx.LockDoctorDay(ctx, doctor.ID, day); err != nil {
		return fmt.Errorf("lock doctor day: %w", err)
	}
	v := scheduling.NewChecker(tx).Check(ctx, scheduling.SlotQuery{
		DoctorID: doctor.ID, Date: day, Start: start, ExcludeID: excludeID,
	})
	if v.Conflict {
		return &ConflictError{Verdict: v}
	}
	return nil
}

func fitsHours(h scheduling.WorkingHours, start scheduling.Clock) bool {
	return start >= h.From && start.Add(scheduling.SlotLength) <= h.To
}

func (s *Service) notPast(day scheduling.Date) error {
	if day.Before(scheduling.DateOf(s.now())) {
		return ErrPastDate
	}
	return nil
}

// authorize applies the ownership rules: managers touch what they booked,
// doctors their own appointments, patients their own.
func authorize(ctx context.Context, tx Tx, actor Actor, appt model.Appointment) error {
	switch actor.Role {
	case model.RoleManager:
		if appt.ManagerUserID == actor.UserID {
			return nil
		}
	case model.RoleDoctor:
		doc, err := tx.GetDoctorByUserID(ctx, actor.UserID)
		if errors.Is(err, storage.ErrNotFound) {
			return ErrForbidden
		}
		if err != nil {
			return err
		}
		if doc.ID == appt.DoctorID {
			return nil
		}
	case model.RolePatient:
		if appt.PatientUserID != nil && *appt.PatientUserID == actor.UserID {
			return nil
		}
	}
	return ErrForbidden
}

func applyDetails(a *model.Appointment, doctor model.Doctor, day scheduling.Date, start scheduling.Clock, department string, p PatientDetails) {
	a.PatientUserID = p.PatientUserID
	a.Email = strings.TrimSpace(p.Email)
	a.Name = strings.TrimSpace(p.Name)
	a.Gender = strings.TrimSpace(p.Gender)
	a.Age = p.Age
	a.Disease = strings.TrimSpace(p.Disease)
	a.Phone = strings.TrimSpace(p.Phone)
	a.Date = day
	a.Time = start
	a.DayPart = start.DayPart()
	a.Department = strings.TrimSpace(department)
	if a.Department == "" {
		a.Department = doctor.Department
	}
}

func insertErr(err error) error {
	if errors.Is(err, storage.ErrOverlap) {
		return ErrSlotTaken
	}
	return err
}

// record writes the audit row and, when eventType is set, the outbox event.
func (s *Service) record(ctx context.Context, tx Tx, actor Actor, appt model.Appointment, action, details, eventType string, payload any) error {
	err := tx.RecordAudit(ctx, model.AuditEvent{
		AppointmentID: appt.ID,
		UserID:        actor.UserID,
		Email:         actor.Email,
		Name:          actor.Name,
		Action:        action,
		Details:       details,
	})
	if err != nil {
		return fmt.Errorf("record audit: %w", err)
	}
	if eventType == "" {
		return nil
	}
	return enqueue(ctx, tx, "appointment", appt.ID, eventType, payload)
}

func enqueue(ctx context.Context, tx Tx, aggregate string, id int64, eventType string, payload any) error {
	evt, err := outbox.NewEvent(aggregate, id, eventType, payload)
	if err != nil {
		return err
	}
	if err := tx.EnqueueEvent(ctx, evt); err != nil {
		return fmt.Errorf("enqueue %s: %w", eventType, err)
	}
	return nil
}

func appointmentEvent(a model.Appointment, doctor model.Doctor, now time.Time) events.Appointment {
	return events.Appointment{
		AppointmentID: a.ID,
		DoctorID:      doctor.ID,
		DoctorName:    doctor.Name,
		Department:    a.Department,
		PatientName:   a.Name,
		PatientEmail:  a.Email,
		PatientPhone:  a.Phone,
		Date:          a.Date.String(),
		Time:          a.Time.String(),
		Status:        string(a.Status),
		OccurredAt:    now.UTC(),
	}
}
