package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/knocktern/hospital-booking/libs/httpx"
	"github.com/knocktern/hospital-booking/services/hospital-service/internal/booking"
	"github.com/knocktern/hospital-booking/services/hospital-service/internal/model"
	"github.com/knocktern/hospital-booking/services/hospital-service/internal/scheduling"
	"github.com/knocktern/hospital-booking/services/hospital-service/internal/storage"
)

type createDoctorRequest struct {
	Email           string   `json:"email" validate:"required,email"`
	Name            string   `json:"name" validate:"required,max=100"`
	Department      string   `json:"department" validate:"required,max=100"`
	Specialization  string   `json:"specialization" validate:"max=100"`
	Qualification   string   `json:"qualification" validate:"max=100"`
	ExperienceYears int      `json:"experience_years" validate:"gte=0,lte=80"`
	ConsultationFee *float64 `json:"consultation_fee" validate:"omitempty,gte=0"`
	AvailableFrom   string   `json:"available_from" validate:"omitempty,clock"`
	AvailableTo     string   `json:"available_to" validate:"omitempty,clock"`
}

// Doctors lists the directory (any role) or adds a doctor (managers).
func (a *API) Doctors(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		docs, err := a.store.ListDoctors(r.Context())
		if err != nil {
			a.fail(w, r, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"doctors": nonNil(docs)})
	case http.MethodPost:
		if actorFrom(r).Role != model.RoleManager {
			a.fail(w, r, booking.ErrForbidden)
			return
		}
		a.createDoctor(w, r)
	default:
		httpx.RequireMethod(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) createDoctor(w http.ResponseWriter, r *http.Request) {
	var req createDoctorRequest
	if !a.bind(w, r, &req) {
		return
	}

	d := model.Doctor{
		Email:           strings.ToLower(strings.TrimSpace(req.Email)),
		Name:            strings.TrimSpace(req.Name),
		Department:      strings.TrimSpace(req.Department),
		Specialization:  strings.TrimSpace(req.Specialization),
		Qualification:   strings.TrimSpace(req.Qualification),
		ExperienceYears: req.ExperienceYears,
		ConsultationFee: model.DefaultConsultationFee,
		AvailableFrom:   scheduling.MustClock("09:00"),
		AvailableTo:     scheduling.MustClock("17:00"),
	}
	if req.ConsultationFee != nil {
		d.ConsultationFee = *req.ConsultationFee
	}
	if req.AvailableFrom != "" {
		d.AvailableFrom = scheduling.MustClock(req.AvailableFrom)
	}
	if req.AvailableTo != "" {
		d.AvailableTo = scheduling.MustClock(req.AvailableTo)
	}
	if !d.WorkingHours().Valid() {
		httpx.WriteError(w, http.StatusBadRequest, "available_from must be before available_to")
		return
	}

	u, err := a.store.GetUserByEmail(r.Context(), d.Email)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && u.Role != model.RoleDoctor) {
		httpx.WriteError(w, http.StatusBadRequest, "no doctor account with that email")
		return
	}
	if err != nil {
		a.fail(w, r, err)
		return
	}
	d.UserID = u.ID

	if err := a.store.CreateDoctor(r.Context(), &d); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			httpx.WriteError(w, http.StatusConflict, "doctor with this email already exists")
			return
		}
		a.fail(w, r, err)
		return
	}
	a.logger.Info("doctor added", "doctor_id", d.ID, "department", d.Department)
	httpx.WriteJSON(w, http.StatusCreated, d)
}

// SearchDoctors answers "is this doctor available" by exact name.
func (a *API) SearchDoctors(w http.ResponseWriter, r *http.Request) {
	if !httpx.RequireMethod(w, r, http.MethodGet) {
		return
	}
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		httpx.WriteError(w, http.StatusBadRequest, "name is required")
		return
	}
	docs, err := a.store.SearchDoctors(r.Context(), name)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	msg := "doctor is not available"
	if len(docs) > 0 {
		msg = "doctor is available"
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"available": len(docs) > 0,
		"message":   msg,
		"doctors":   nonNil(docs),
	})
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
