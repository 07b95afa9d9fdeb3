package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/knocktern/hospital-booking/libs/events"
	"github.com/knocktern/hospital-booking/services/hospital-service/internal/model"
	"github.com/knocktern/hospital-booking/services/hospital-service/internal/scheduling"
)

type RequestInput struct {
	DoctorID      int64
	PreferredDate scheduling.Date
	PreferredTime scheduling.Clock
	AlternateDate *scheduling.Date
	AlternateTime *scheduling.Clock
	Disease       string
	Message       string
}

// RequestAppointment files a patient's request. The preferred slot is
// checked now so patients are not invited to ask for a taken time; the
// manager's approval checks it again.
func (s *Service) RequestAppointment(ctx context.Context, actor Actor, in RequestInput) (model.AppointmentRequest, error) {
	if actor.Role != model.RolePatient {
		return model.AppointmentRequest{}, ErrForbidden
	}
	if err := s.notPast(in.PreferredDate); err != nil {
		return model.AppointmentRequest{}, err
	}
	if (in.AlternateDate == nil) != (in.AlternateTime == nil) {
		return model.AppointmentRequest{}, &scheduling.MalformedInputError{
			Field: "alternate", Value: "", Err: errors.New("alternate date and time go together"),
		}
	}

	var req model.AppointmentRequest
	err := s.store.InTx(ctx, func(tx Tx) error {
		doctor, err := tx.GetDoctor(ctx, in.DoctorID)
		if err != nil {
			return fmt.Errorf("doctor %d: %w", in.DoctorID, err)
		}
		if !fitsHours(doctor.WorkingHours(), in.PreferredTime) {
			return fmt.Errorf("%w (%s-%s)", ErrOutsideHours, doctor.AvailableFrom, doctor.AvailableTo)
		}
		v := scheduling.NewChecker(tx).Check(ctx, scheduling.SlotQuery{
			DoctorID: doctor.ID, Date: in.PreferredDate, Start: in.PreferredTime,
		})
		if v.Conflict {
			return &ConflictError{Verdict: v}
		}

		req = model.AppointmentRequest{
			PatientUserID: actor.UserID,
			PatientName:   actor.Name,
			PatientEmail:  actor.Email,
			DoctorID:      doctor.ID,
			DoctorName:    doctor.Name,
			Department:    doctor.Department,
			PreferredDate: in.PreferredDate,
			PreferredTime: in.PreferredTime,
			AlternateDate: in.AlternateDate,
			AlternateTime: in.AlternateTime,
			Disease:       strings.TrimSpace(in.Disease),
			Message:       strings.TrimSpace(in.Message),
			Status:        model.RequestPending,
		}
		if err := tx.InsertRequest(ctx, &req); err != nil {
			return err
		}
		return enqueue(ctx, tx, "appointment_request", req.ID, events.RequestCreated, requestEvent(req, s.now()))
	})
	return req, err
}

// Approve turns a pending request into a scheduled appointment owned by the
// approving manager.
func (s *Service) Approve(ctx context.Context, actor Actor, requestID int64, response string) (model.AppointmentRequest, model.Appointment, error) {
	if actor.Role != model.RoleManager {
		return model.AppointmentRequest{}, model.Appointment{}, ErrForbidden
	}
	var (
		req  model.AppointmentRequest
		appt model.Appointment
	)
	err := s.store.InTx(ctx, func(tx Tx) error {
		var err error
		if req, err = tx.GetRequestForUpdate(ctx, requestID); err != nil {
			return err
		}
		if req.Status != model.RequestPending {
			return ErrRequestClosed
		}
		if err := s.notPast(req.PreferredDate); err != nil {
			return err
		}
		doctor, err := tx.GetDoctor(ctx, req.DoctorID)
		if err != nil {
			return err
		}
		patient, err := tx.GetUser(ctx, req.PatientUserID)
		if err != nil {
			return fmt.Errorf("patient %d: %w", req.PatientUserID, err)
		}
		if err := s.claimSlot(ctx, tx, doctor, req.PreferredDate, req.PreferredTime, 0); err != nil {
			return err
		}

		patientID := patient.ID
		appt = model.Appointment{
			ManagerUserID: actor.UserID,
			DoctorID:      doctor.ID,
			DoctorName:    doctor.Name,
			Status:        model.StatusScheduled,
			BookingType:   model.BookingByRequest,
			PaymentStatus: model.PaymentUnpaid,
		}
		applyDetails(&appt, doctor, req.PreferredDate, req.PreferredTime, doctor.Department, PatientDetails{
			PatientUserID: &patientID,
			Email:         patient.Email,
			Name:          patient.Username,
			Gender:        "Not specified",
			Disease:       req.Disease,
			Phone:         patient.Phone,
		})
		if err := tx.InsertAppointment(ctx, &appt); err != nil {
			return insertErr(err)
		}

		req.Status = model.RequestApproved
		req.ManagerResponse = strings.TrimSpace(response)
		req.RespondedBy = &actor.UserID
		req.AppointmentID = &appt.ID
		if err := tx.RespondToRequest(ctx, &req); err != nil {
			return err
		}

		detail := fmt.Sprintf("approved request %d", req.ID)
		if err := s.record(ctx, tx, actor, appt, "created", detail, events.AppointmentBooked, appointmentEvent(appt, doctor, s.now())); err != nil {
			return err
		}
		return enqueue(ctx, tx, "appointment_request", req.ID, events.RequestApproved, requestEvent(req, s.now()))
	})
	if err != nil {
		return model.AppointmentRequest{}, model.Appointment{}, err
	}
	s.logger.Info("appointment request approved", "request_id", req.ID, "appointment_id", appt.ID)
	return req, appt, nil
}

func (s *Service) Reject(ctx context.Context, actor Actor, requestID int64, response string) (model.AppointmentRequest, error) {
	if actor.Role != model.RoleManager {
		return model.AppointmentRequest{}, ErrForbidden
	}
	var req model.AppointmentRequest
	err := s.store.InTx(ctx, func(tx Tx) error {
		var err error
		if req, err = tx.GetRequestForUpdate(ctx, requestID); err != nil {
			return err
		}
		if req.Status != model.RequestPending {
			return ErrRequestClosed
		}
		req.Status = model.RequestRejected
		req.ManagerResponse = strings.TrimSpace(response)
		req.RespondedBy = &actor.UserID
		if err := tx.RespondToRequest(ctx, &req); err != nil {
			return err
		}
		return enqueue(ctx, tx, "appointment_request", req.ID, events.RequestRejected, requestEvent(req, s.now()))
	})
	return req, err
}

// ExpireStale closes pending requests whose preferred day has passed.
func (s *Service) ExpireStale(ctx context.Context, limit int) (int, error) {
	today := scheduling.DateOf(s.now())
	n := 0
	err := s.store.InTx(ctx, func(tx Tx) error {
		expired, err := tx.ExpireRequests(ctx, today, limit)
		if err != nil {
			return err
		}
		for _, r := range expired {
			if err := enqueue(ctx, tx, "appointment_request", r.ID, events.RequestExpired, requestEvent(r, s.now())); err != nil {
				return err
			}
		}
		n = len(expired)
		return nil
	})
	return n, err
}

func requestEvent(r model.AppointmentRequest, now time.Time) events.Request {
	ev := events.Request{
		RequestID:    r.ID,
		DoctorID:     r.DoctorID,
		DoctorName:   r.DoctorName,
		PatientName:  r.PatientName,
		PatientEmail: r.PatientEmail,
		Date:         r.PreferredDate.String(),
		Time:         r.PreferredTime.String(),
		Status:       string(r.Status),
		Response:     r.ManagerResponse,
		OccurredAt:   now.UTC(),
	}
	if r.AppointmentID != nil {
		ev.AppointmentID = *r.AppointmentID
	}
	return ev
}
