package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/knocktern/hospital-booking/libs/httpx"
	"github.com/knocktern/hospital-booking/services/hospital-service/internal/model"
	"github.com/knocktern/hospital-booking/services/hospital-service/internal/scheduling"
	"github.com/knocktern/hospital-booking/services/hospital-service/internal/storage"
)

func (a *API) DoctorDashboard(w http.ResponseWriter, r *http.Request) {
	if !httpx.RequireMethod(w, r, http.MethodGet) {
		return
	}
	ctx := r.Context()
	doc, err := a.store.GetDoctorByUserID(ctx, actorFrom(r).UserID)
	if errors.Is(err, storage.ErrNotFound) {
		httpx.WriteError(w, http.StatusNotFound, "doctor profile not found")
		return
	}
	if err != nil {
		a.fail(w, r, err)
		return
	}

	today, err := a.store.ListAppointments(ctx, storage.AppointmentFilter{
		DoctorID: doc.ID, Date: scheduling.DateOf(a.now()), ExcludeStatus: model.StatusCancelled,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	all, err := a.store.ListAppointments(ctx, storage.AppointmentFilter{
		DoctorID: doc.ID, ExcludeStatus: model.StatusCancelled,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"doctor":       doc,
		"today":        nonNil(today),
		"appointments": nonNil(all),
	})
}

func (a *API) PatientDashboard(w http.ResponseWriter, r *http.Request) {
	if !httpx.RequireMethod(w, r, http.MethodGet) {
		return
	}
	ctx := r.Context()
	uid := actorFrom(r).UserID

	appts, err := a.store.ListAppointments(ctx, storage.AppointmentFilter{PatientID: uid})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	docs, err := a.store.ListDoctors(ctx)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	reqs, err := a.store.ListRequests(ctx, "", uid)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"appointments": nonNil(appts),
		"doctors":      nonNil(docs),
		"requests":     nonNil(reqs),
	})
}

func (a *API) Audit(w http.ResponseWriter, r *http.Request) {
	if !httpx.RequireMethod(w, r, http.MethodGet) {
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			httpx.WriteError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	events, err := a.store.ListAudit(r.Context(), limit)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"events": nonNil(events)})
}
