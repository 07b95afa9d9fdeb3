package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/knocktern/hospital-booking/libs/httpx"
	"github.com/knocktern/hospital-booking/services/hospital-service/internal/booking"
	"github.com/knocktern/hospital-booking/services/hospital-service/internal/model"
	"github.com/knocktern/hospital-booking/services/hospital-service/internal/scheduling"
	"github.com/knocktern/hospital-booking/services/hospital-service/internal/storage"
)

type availabilityRequest struct {
	DoctorID int64  `json:"doctor_id" validate:"required,gt=0"`
	Date     string `json:"date" validate:"required"`
}

// Availability feeds the slot picker: {"available_slots": ["09:00", ...]}.
// Malformed dates are rejected here rather than producing an empty list.
func (a *API) Availability(w http.ResponseWriter, r *http.Request) {
	var req availabilityRequest
	switch r.Method {
	case http.MethodPost:
		if !a.bind(w, r, &req) {
			return
		}
	case http.MethodGet:
		q := r.URL.Query()
		id, err := strconv.ParseInt(strings.TrimSpace(q.Get("doctor_id")), 10, 64)
		if err != nil || id <= 0 {
			httpx.WriteError(w, http.StatusBadRequest, "doctor_id is required")
			return
		}
		req.DoctorID = id
		req.Date = strings.TrimSpace(q.Get("date"))
		if req.Date == "" {
			httpx.WriteError(w, http.StatusBadRequest, "date is required")
			return
		}
	default:
		httpx.RequireMethod(w, r, http.MethodGet, http.MethodPost)
		return
	}

	slots, err := a.slots.SlotsString(r.Context(), req.DoctorID, req.Date)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"available_slots": scheduling.Strings(slots)})
}

type checkRequest struct {
	DoctorID  int64  `json:"doctor_id" validate:"required,gt=0"`
	Date      string `json:"date" validate:"required"`
	Time      string `json:"time" validate:"required"`
	ExcludeID int64  `json:"exclude_id" validate:"gte=0"`
}

type checkResponse struct {
	Conflict bool   `json:"conflict"`
	Reason   string `json:"reason"`
}

// CheckSlot exposes the conflict checker verdict as is; a failed lookup is a
// conflict, not an error.
func (a *API) CheckSlot(w http.ResponseWriter, r *http.Request) {
	if !httpx.RequireMethod(w, r, http.MethodPost) {
		return
	}
	var req checkRequest
	if !a.bind(w, r, &req) {
		return
	}
	v, err := a.checker.CheckStrings(r.Context(), req.DoctorID, req.Date, req.Time, req.ExcludeID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if v.Cause != nil {
		a.logger.Warn("slot check failed closed", "doctor_id", req.DoctorID, "error", v.Cause)
	}
	httpx.WriteJSON(w, http.StatusOK, checkResponse{Conflict: v.Conflict, Reason: v.Reason})
}

type appointmentRequest struct {
	DoctorID   int64  `json:"doctor_id" validate:"required,gt=0"`
	Date       string `json:"appointment_date" validate:"required,date"`
	Time       string `json:"appointment_time" validate:"required,clock"`
	Name       string `json:"name" validate:"required,max=100"`
	Email      string `json:"email" validate:"omitempty,email"`
	Gender     string `json:"gender" validate:"max=20"`
	Age        *int   `json:"age" validate:"omitempty,gte=0,lte=150"`
	Disease    string `json:"disease" validate:"max=200"`
	Department string `json:"department" validate:"max=100"`
	Phone      string `json:"number" validate:"omitempty,max=20"`
}

func (req appointmentRequest) details() booking.PatientDetails {
	return booking.PatientDetails{
		Email:   req.Email,
		Name:    req.Name,
		Gender:  req.Gender,
		Age:     req.Age,
		Disease: req.Disease,
		Phone:   req.Phone,
	}
}

// Appointments lists appointments visible to the caller or books one (managers).
func (a *API) Appointments(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listAppointments(w, r)
	case http.MethodPost:
		a.bookAppointment(w, r)
	default:
		httpx.RequireMethod(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) listAppointments(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	var f storage.AppointmentFilter
	if raw := strings.TrimSpace(r.URL.Query().Get("date")); raw != "" {
		day, err := scheduling.ParseDate(raw)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		f.Date = day
	}

	switch actor.Role {
	case model.RoleManager:
		f.ManagerID = actor.UserID
	case model.RoleDoctor:
		doc, err := a.store.GetDoctorByUserID(r.Context(), actor.UserID)
		if errors.Is(err, storage.ErrNotFound) {
			httpx.WriteJSON(w, http.StatusOK, map[string]any{"appointments": []model.Appointment{}})
			return
		}
		if err != nil {
			a.fail(w, r, err)
			return
		}
		f.DoctorID = doc.ID
	case model.RolePatient:
		f.PatientID = actor.UserID
	default:
		a.fail(w, r, booking.ErrForbidden)
		return
	}

	appts, err := a.store.ListAppointments(r.Context(), f)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"appointments": nonNil(appts)})
}

func (a *API) bookAppointment(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	if actor.Role != model.RoleManager {
		a.fail(w, r, booking.ErrForbidden)
		return
	}
	var req appointmentRequest
	if !a.bind(w, r, &req) {
		return
	}

	in := booking.BookInput{
		DoctorID:       req.DoctorID,
		Date:           scheduling.MustDate(req.Date),
		Time:           scheduling.MustClock(req.Time),
		Department:     req.Department,
		Patient:        req.details(),
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	}
	// Link the booking to a registered patient when the email matches one.
	if email := strings.ToLower(strings.TrimSpace(req.Email)); email != "" {
		u, err := a.store.GetUserByEmail(r.Context(), email)
		if err == nil && u.Role == model.RolePatient {
			in.Patient.PatientUserID = &u.ID
		} else if err != nil && !errors.Is(err, storage.ErrNotFound) {
			a.fail(w, r, err)
			return
		}
	}

	appt, replayed, err := a.bookings.Book(r.Context(), actor, in)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	code := http.StatusCreated
	if replayed {
		w.Header().Set("Idempotent-Replay", "true")
		code = http.StatusOK
	}
	httpx.WriteJSON(w, code, appt)
}

func (a *API) EditAppointment(w http.ResponseWriter, r *http.Request) {
	if !httpx.RequireMethod(w, r, http.MethodPut, http.MethodPost) {
		return
	}
	id, ok := queryID(r, "id")
	if !ok {
		httpx.WriteError(w, http.StatusBadRequest, "id is required")
		return
	}
	var req appointmentRequest
	if !a.bind(w, r, &req) {
		return
	}
	appt, err := a.bookings.Edit(r.Context(), actorFrom(r), id, booking.EditInput{
		DoctorID:   req.DoctorID,
		Date:       scheduling.MustDate(req.Date),
		Time:       scheduling.MustClock(req.Time),
		Department: req.Department,
		Patient:    req.details(),
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, appt)
}

type statusRequest struct {
	Status string `json:"status" validate:"required,oneof=completed cancelled no_show"`
}

func (a *API) SetStatus(w http.ResponseWriter, r *http.Request) {
	if !httpx.RequireMethod(w, r, http.MethodPost) {
		return
	}
	id, ok := queryID(r, "id")
	if !ok {
		httpx.WriteError(w, http.StatusBadRequest, "id is required")
		return
	}
	var req statusRequest
	if !a.bind(w, r, &req) {
		return
	}
	appt, err := a.bookings.SetStatus(r.Context(), actorFrom(r), id, model.Status(req.Status))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, appt)
}

func (a *API) DeleteAppointment(w http.ResponseWriter, r *http.Request) {
	if !httpx.RequireMethod(w, r, http.MethodDelete, http.MethodPost) {
		return
	}
	id, ok := queryID(r, "id")
	if !ok {
		httpx.WriteError(w, http.StatusBadRequest, "id is required")
		return
	}
	if err := a.bookings.Delete(r.Context(), actorFrom(r), id); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
