// Package handlers is the JSON HTTP surface of hospital-service.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knocktern/hospital-booking/libs/auth"
	"github.com/knocktern/hospital-booking/libs/httpx"
	"github.com/knocktern/hospital-booking/services/hospital-service/internal/booking"
	"github.com/knocktern/hospital-booking/services/hospital-service/internal/model"
	"github.com/knocktern/hospital-booking/services/hospital-service/internal/payments"
	"github.com/knocktern/hospital-booking/services/hospital-service/internal/scheduling"
	"github.com/knocktern/hospital-booking/services/hospital-service/internal/storage"
)

// Store is the read side the handlers query directly; writes that claim a
// slot go through Bookings.
type Store interface {
	CreateUser(ctx context.Context, u *model.User) error
	GetUserByEmail(ctx context.Context, email string) (model.User, error)
	CreateDoctor(ctx context.Context, d *model.Doctor) error
	GetDoctor(ctx context.Context, id int64) (model.Doctor, error)
	GetDoctorByUserID(ctx context.Context, userID int64) (model.Doctor, error)
	ListDoctors(ctx context.Context) ([]model.Doctor, error)
	SearchDoctors(ctx context.Context, name string) ([]model.Doctor, error)
	GetAppointment(ctx context.Context, id int64) (model.Appointment, error)
	ListAppointments(ctx context.Context, f storage.AppointmentFilter) ([]model.Appointment, error)
	ListRequests(ctx context.Context, status model.RequestStatus, patientID int64) ([]model.AppointmentRequest, error)
	ListAudit(ctx context.Context, limit int) ([]model.AuditEvent, error)
}

type Bookings interface {
	Book(ctx context.Context, actor booking.Actor, in booking.BookInput) (model.Appointment, bool, error)
	Edit(ctx context.Context, actor booking.Actor, id int64, in booking.EditInput) (model.Appointment, error)
	SetStatus(ctx context.Context, actor booking.Actor, id int64, to model.Status) (model.Appointment, error)
	Delete(ctx context.Context, actor booking.Actor, id int64) error
	MarkPaid(ctx context.Context, appointmentID int64) (bool, error)
	RequestAppointment(ctx context.Context, actor booking.Actor, in booking.RequestInput) (model.AppointmentRequest, error)
	Approve(ctx context.Context, actor booking.Actor, requestID int64, response string) (model.AppointmentRequest, model.Appointment, error)
	Reject(ctx context.Context, actor booking.Actor, requestID int64, response string) (model.AppointmentRequest, error)
}

type Deps struct {
	Store    Store
	Slots    scheduling.Store
	Bookings Bookings
	Payments *payments.Stripe
	Signer   *auth.Signer
	Logger   *slog.Logger
}

type API struct {
	store    Store
	checker  *scheduling.Checker
	slots    *scheduling.Enumerator
	bookings Bookings
	payments *payments.Stripe
	signer   *auth.Signer
	logger   *slog.Logger
	validate *validator.Validate
	now      func() time.Time
}

func New(d Deps) *API {
	return &API{
		store:    d.Store,
		checker:  scheduling.NewChecker(d.Slots),
		slots:    scheduling.NewEnumerator(d.Slots),
		bookings: d.Bookings,
		payments: d.Payments,
		signer:   d.Signer,
		logger:   d.Logger,
		validate: newValidator(),
		now:      time.Now,
	}
}

const prefix = "/api/v1"

// Register mounts every route on mux.
func (a *API) Register(mux *http.ServeMux) {
	authed := func(h http.HandlerFunc, roles ...model.Role) http.Handler {
		mw := []httpx.Middleware{auth.RequireAuth(a.signer)}
		if len(roles) > 0 {
			names := make([]string, len(roles))
			for i, r := range roles {
				names[i] = string(r)
			}
			mw = append(mw, auth.RequireRole(names...))
		}
		return httpx.Chain(h, mw...)
	}

	mux.HandleFunc(prefix+"/auth/signup", a.Signup)
	mux.HandleFunc(prefix+"/auth/login", a.Login)
	mux.Handle(prefix+"/auth/me", authed(a.Me))

	mux.Handle(prefix+"/doctors", authed(a.Doctors))
	mux.Handle(prefix+"/doctors/search", authed(a.SearchDoctors))
	mux.Handle(prefix+"/availability", authed(a.Availability))

	mux.Handle(prefix+"/appointments", authed(a.Appointments))
	mux.Handle(prefix+"/appointments/check", authed(a.CheckSlot))
	mux.Handle(prefix+"/appointments/edit", authed(a.EditAppointment, model.RoleManager, model.RoleDoctor, model.RolePatient))
	mux.Handle(prefix+"/appointments/status", authed(a.SetStatus))
	mux.Handle(prefix+"/appointments/delete", authed(a.DeleteAppointment))

	mux.Handle(prefix+"/dashboard/doctor", authed(a.DoctorDashboard, model.RoleDoctor))
	mux.Handle(prefix+"/dashboard/patient", authed(a.PatientDashboard, model.RolePatient))

	mux.Handle(prefix+"/requests", authed(a.Requests))
	mux.Handle(prefix+"/requests/approve", authed(a.ApproveRequest, model.RoleManager))
	mux.Handle(prefix+"/requests/reject", authed(a.RejectRequest, model.RoleManager))

	mux.Handle(prefix+"/audit", authed(a.Audit, model.RoleManager))

	mux.Handle(prefix+"/payments/checkout", authed(a.Checkout, model.RoleManager, model.RolePatient))
	mux.HandleFunc(prefix+"/payments/webhook", a.StripeWebhook)
}

func actorFrom(r *http.Request) booking.Actor {
	c, _ := auth.ClaimsFromContext(r.Context())
	if c == nil {
		return booking.Actor{}
	}
	return booking.Actor{UserID: c.UserID, Role: model.Role(c.Role), Name: c.Name, Email: c.Email}
}

func queryID(r *http.Request, key string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(r.URL.Query().Get(key)), 10, 64)
	return id, err == nil && id > 0
}

// fail maps domain errors onto status codes; anything unknown is a 500 and
// gets logged.
func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	var (
		conflict   *booking.ConflictError
		lookup     *scheduling.LookupError
		transition *model.TransitionError
		invalid    validator.ValidationErrors
	)
	switch {
	case errors.As(err, &conflict):
		if conflict.Verdict.Cause != nil {
			httpx.WriteError(w, http.StatusServiceUnavailable, conflict.Verdict.Reason)
			return
		}
		httpx.WriteJSON(w, http.StatusConflict, map[string]any{
			"error":    conflict.Verdict.Reason,
			"conflict": true,
		})
	case errors.As(err, &invalid):
		httpx.WriteError(w, http.StatusBadRequest, describe(invalid))
	case errors.Is(err, scheduling.ErrMalformedInput):
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &lookup):
		httpx.WriteError(w, http.StatusServiceUnavailable, "availability is temporarily unknown")
	case errors.As(err, &transition):
		httpx.WriteError(w, http.StatusConflict, transition.Error())
	case errors.Is(err, booking.ErrSlotTaken),
		errors.Is(err, booking.ErrRequestClosed),
		errors.Is(err, payments.ErrAlreadyPaid),
		errors.Is(err, payments.ErrNotPayable):
		httpx.WriteError(w, http.StatusConflict, rootMessage(err))
	case errors.Is(err, booking.ErrOutsideHours), errors.Is(err, booking.ErrPastDate):
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, booking.ErrForbidden):
		httpx.WriteError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, storage.ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, "not found")
	case errors.Is(err, storage.ErrDuplicate):
		httpx.WriteError(w, http.StatusConflict, "already exists")
	case errors.Is(err, payments.ErrNotConfigured):
		httpx.WriteError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		httpx.WriteError(w, http.StatusGatewayTimeout, "request timed out")
	default:
		a.logger.Error("request failed", "path", r.URL.Path, "request_id", httpx.RequestIDFromContext(r.Context()), "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}

// rootMessage prefers the sentinel text over wrapped driver detail.
func rootMessage(err error) string {
	for _, s := range []error{booking.ErrSlotTaken, booking.ErrRequestClosed, payments.ErrAlreadyPaid, payments.ErrNotPayable} {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return err.Error()
}
