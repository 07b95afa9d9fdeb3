package handlers

import (
	"net/http"

	"github.com/knocktern/hospital-booking/libs/httpx"
	"github.com/knocktern/hospital-booking/services/hospital-service/internal/booking"
	"github.com/knocktern/hospital-booking/services/hospital-service/internal/model"
	"github.com/knocktern/hospital-booking/services/hospital-service/internal/scheduling"
)

type createRequestBody struct {
	DoctorID      int64  `json:"doctor_id" validate:"required,gt=0"`
	PreferredDate string `json:"preferred_date" validate:"required,date"`
	PreferredTime string `json:"preferred_time" validate:"required,clock"`
	AlternateDate string `json:"alternate_date" validate:"omitempty,date"`
	AlternateTime string `json:"alternate_time" validate:"omitempty,clock"`
	Disease       string `json:"disease" validate:"required,max=200"`
	Message       string `json:"message" validate:"max=1000"`
}

type respondBody struct {
	Response string `json:"response" validate:"max=1000"`
}

// Requests lists requests (managers see pending ones, patients their own)
// or files a new one (patients).
func (a *API) Requests(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	switch r.Method {
	case http.MethodGet:
		status, patientID := model.RequestPending, int64(0)
		switch actor.Role {
		case model.RoleManager:
		case model.RolePatient:
			status, patientID = "", actor.UserID
		default:
			a.fail(w, r, booking.ErrForbidden)
			return
		}
		reqs, err := a.store.ListRequests(r.Context(), status, patientID)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"requests": nonNil(reqs)})

	case http.MethodPost:
		var body createRequestBody
		if !a.bind(w, r, &body) {
			return
		}
		in := booking.RequestInput{
			DoctorID:      body.DoctorID,
			PreferredDate: scheduling.MustDate(body.PreferredDate),
			PreferredTime: scheduling.MustClock(body.PreferredTime),
			Disease:       body.Disease,
			Message:       body.Message,
		}
		if body.AlternateDate != "" {
			d := scheduling.MustDate(body.AlternateDate)
			in.AlternateDate = &d
		}
		if body.AlternateTime != "" {
			c := scheduling.MustClock(body.AlternateTime)
			in.AlternateTime = &c
		}
		req, err := a.bookings.RequestAppointment(r.Context(), actor, in)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		httpx.WriteJSON(w, http.StatusCreated, req)

	default:
		httpx.RequireMethod(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) ApproveRequest(w http.ResponseWriter, r *http.Request) {
	if !httpx.RequireMethod(w, r, http.MethodPost) {
		return
	}
	id, ok := queryID(r, "id")
	if !ok {
		httpx.WriteError(w, http.StatusBadRequest, "id is required")
		return
	}
	var body respondBody
	if !a.bindOptional(w, r, &body) {
		return
	}
	req, appt, err := a.bookings.Approve(r.Context(), actorFrom(r), id, body.Response)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"request": req, "appointment": appt})
}

func (a *API) RejectRequest(w http.ResponseWriter, r *http.Request) {
	if !httpx.RequireMethod(w, r, http.MethodPost) {
		return
	}
	id, ok := queryID(r, "id")
	if !ok {
		httpx.WriteError(w, http.StatusBadRequest, "id is required")
		return
	}
	var body respondBody
	if !a.bindOptional(w, r, &body) {
		return
	}
	req, err := a.bookings.Reject(r.Context(), actorFrom(r), id, body.Response)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"request": req})
}
