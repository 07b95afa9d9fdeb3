package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/knocktern/hospital-booking/libs/httpx"
	"github.com/knocktern/hospital-booking/services/hospital-service/internal/booking"
	"github.com/knocktern/hospital-booking/services/hospital-service/internal/model"
	"github.com/knocktern/hospital-booking/services/hospital-service/internal/payments"
	"github.com/knocktern/hospital-booking/services/hospital-service/internal/storage"
)

const maxWebhookBytes = 1 << 20

// Checkout starts a Stripe payment for an appointment's consultation fee.
func (a *API) Checkout(w http.ResponseWriter, r *http.Request) {
	if !httpx.RequireMethod(w, r, http.MethodPost) {
		return
	}
	id, ok := queryID(r, "id")
	if !ok {
		httpx.WriteError(w, http.StatusBadRequest, "id is required")
		return
	}
	ctx := r.Context()
	appt, err := a.store.GetAppointment(ctx, id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	actor := actorFrom(r)
	owns := (actor.Role == model.RoleManager && appt.ManagerUserID == actor.UserID) ||
		(actor.Role == model.RolePatient && appt.PatientUserID != nil && *appt.PatientUserID == actor.UserID)
	if !owns {
		a.fail(w, r, booking.ErrForbidden)
		return
	}
	doctor, err := a.store.GetDoctor(ctx, appt.DoctorID)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if key == "" {
		key = "checkout-" + uuid.NewString()
	}
	sess, err := a.payments.Checkout(appt, doctor, key)
	if err != nil {
		if !errors.Is(err, payments.ErrAlreadyPaid) && !errors.Is(err, payments.ErrNotPayable) && !errors.Is(err, payments.ErrNotConfigured) {
			a.logger.Error("stripe checkout session create failed", "appointment_id", appt.ID, "error", err)
			httpx.WriteError(w, http.StatusBadGateway, "failed to create checkout session")
			return
		}
		a.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, sess)
}

// StripeWebhook has no JWT; the Stripe signature is the authentication.
func (a *API) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	if !httpx.RequireMethod(w, r, http.MethodPost) {
		return
	}
	sig := r.Header.Get("Stripe-Signature")
	if strings.TrimSpace(sig) == "" {
		httpx.WriteError(w, http.StatusBadRequest, "missing Stripe-Signature header")
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	evt, err := a.payments.ParseWebhook(body, sig)
	switch {
	case errors.Is(err, payments.ErrNotConfigured):
		httpx.WriteError(w, http.StatusServiceUnavailable, "stripe webhook not configured")
		return
	case errors.Is(err, payments.ErrBadSignature):
		httpx.WriteError(w, http.StatusBadRequest, "invalid signature")
		return
	case err != nil:
		a.logger.Warn("stripe webhook ignored", "provider_event_id", evt.ID, "error", err)
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}
	a.logger.Info("stripe event received", "provider_event_id", evt.ID, "event_type", evt.Type,
		"appointment_id", evt.AppointmentID)

	if evt.AppointmentID == 0 || !evt.Paid {
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}
	changed, err := a.bookings.MarkPaid(r.Context(), evt.AppointmentID)
	if errors.Is(err, storage.ErrNotFound) {
		a.logger.Warn("stripe payment for unknown appointment", "appointment_id", evt.AppointmentID)
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}
	if err != nil {
		a.fail(w, r, err)
		return
	}
	status := "ok"
	if !changed {
		status = "duplicate"
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": status})
}
