package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/knocktern/hospital-booking/libs/auth"
	"github.com/knocktern/hospital-booking/services/hospital-service/internal/booking"
	"github.com/knocktern/hospital-booking/services/hospital-service/internal/model"
	"github.com/knocktern/hospital-booking/services/hospital-service/internal/payments"
	"github.com/knocktern/hospital-booking/services/hospital-service/internal/scheduling"
	"github.com/knocktern/hospital-booking/services/hospital-service/internal/storage"
)

type fakeStore struct {
	users        map[string]model.User
	doctors      map[int64]model.Doctor
	appointments []model.Appointment
	requests     []model.AppointmentRequest
	listErr      error
	lastFilter   storage.AppointmentFilter
	nextID       int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{users: map[string]model.User{}, doctors: map[int64]model.Doctor{}, nextID: 1}
}

func (f *fakeStore) CreateUser(_ context.Context, u *model.User) error {
	if _, ok := f.users[u.Email]; ok {
		return storage.ErrDuplicate
	}
	f.nextID++
	u.ID = f.nextID
	f.users[u.Email] = *u
	return nil
}

func (f *fakeStore) GetUserByEmail(_ context.Context, email string) (model.User, error) {
	u, ok := f.users[email]
	if !ok {
		return model.User{}, storage.ErrNotFound
	}
	return u, nil
}

func (f *fakeStore) CreateDoctor(_ context.Context, d *model.Doctor) error {
	for _, o := range f.doctors {
		if o.Email == d.Email {
			return storage.ErrDuplicate
		}
	}
	f.nextID++
	d.ID = f.nextID
	f.doctors[d.ID] = *d
	return nil
}

func (f *fakeStore) GetDoctor(_ context.Context, id int64) (model.Doctor, error) {
	d, ok := f.doctors[id]
	if !ok {
		return model.Doctor{}, storage.ErrNotFound
	}
	return d, nil
}

func (f *fakeStore) GetDoctorByUserID(_ context.Context, userID int64) (model.Doctor, error) {
	for _, d := range f.doctors {
		if d.UserID == userID {
			return d, nil
		}
	}
	return model.Doctor{}, storage.ErrNotFound
}

func (f *fakeStore) ListDoctors(context.Context) ([]model.Doctor, error) {
	var out []model.Doctor
	for _, d := range f.doctors {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) SearchDoctors(_ context.Context, name string) ([]model.Doctor, error) {
	var out []model.Doctor
	for _, d := range f.doctors {
		if strings.EqualFold(d.Name, name) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeStore) GetAppointment(_ context.Context, id int64) (model.Appointment, error) {
	for _, a := range f.appointments {
		if a.ID == id {
			return a, nil
		}
	}
	return model.Appointment{}, storage.ErrNotFound
}

func (f *fakeStore) ListAppointments(_ context.Context, filter storage.AppointmentFilter) ([]model.Appointment, error) {
	f.lastFilter = filter
	var out []model.Appointment
	for _, a := range f.appointments {
		if filter.DoctorID != 0 && a.DoctorID != filter.DoctorID {
			continue
		}
		if filter.ManagerID != 0 && a.ManagerUserID != filter.ManagerID {
			continue
		}
		if filter.PatientID != 0 && (a.PatientUserID == nil || *a.PatientUserID != filter.PatientID) {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (f *fakeStore) ListRequests(_ context.Context, status model.RequestStatus, patientID int64) ([]model.AppointmentRequest, error) {
	var out []model.AppointmentRequest
	for _, r := range f.requests {
		if (status == "" || r.Status == status) && (patientID == 0 || r.PatientUserID == patientID) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) ListAudit(context.Context, int) ([]model.AuditEvent, error) {
	return nil, nil
}

func (f *fakeStore) ActiveBookings(_ context.Context, doctorID int64, day scheduling.Date, excludeID int64) ([]scheduling.Booking, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []scheduling.Booking
	for _, a := range f.appointments {
		if a.DoctorID == doctorID && a.Date.Equal(day) && a.Status.Active() && a.ID != excludeID {
			out = append(out, scheduling.Booking{AppointmentID: a.ID, Start: a.Time})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out, nil
}

func (f *fakeStore) WorkingHours(_ context.Context, doctorID int64) (scheduling.WorkingHours, error) {
	d, ok := f.doctors[doctorID]
	if !ok {
		return scheduling.WorkingHours{}, scheduling.ErrDoctorNotFound
	}
	return d.WorkingHours(), nil
}

// fakeBookings returns canned results and records what it was asked.
type fakeBookings struct {
	err      error
	replayed bool
	actor    booking.Actor
	book     booking.BookInput
	paid     []int64
}

func (f *fakeBookings) Book(_ context.Context, actor booking.Actor, in booking.BookInput) (model.Appointment, bool, error) {
	f.actor, f.book = actor, in
	if f.err != nil {
		return model.Appointment{}, false, f.err
	}
	return model.Appointment{ID: 7, DoctorID: in.DoctorID, Date: in.Date, Time: in.Time, Status: model.StatusScheduled}, f.replayed, nil
}

func (f *fakeBookings) Edit(_ context.Context, actor booking.Actor, id int64, in booking.EditInput) (model.Appointment, error) {
	f.actor = actor
	return model.Appointment{ID: id, DoctorID: in.DoctorID, Date: in.Date, Time: in.Time}, f.err
}

func (f *fakeBookings) SetStatus(_ context.Context, actor booking.Actor, id int64, to model.Status) (model.Appointment, error) {
	f.actor = actor
	return model.Appointment{ID: id, Status: to}, f.err
}

func (f *fakeBookings) Delete(_ context.Context, actor booking.Actor, _ int64) error {
	f.actor = actor
	return f.err
}

func (f *fakeBookings) MarkPaid(_ context.Context, id int64) (bool, error) {
	f.paid = append(f.paid, id)
	return len(f.paid) == 1, f.err
}

func (f *fakeBookings) RequestAppointment(_ context.Context, actor booking.Actor, in booking.RequestInput) (model.AppointmentRequest, error) {
	f.actor = actor
	return model.AppointmentRequest{ID: 3, DoctorID: in.DoctorID, Status: model.RequestPending}, f.err
}

func (f *fakeBookings) Approve(_ context.Context, actor booking.Actor, id int64, _ string) (model.AppointmentRequest, model.Appointment, error) {
	f.actor = actor
	return model.AppointmentRequest{ID: id, Status: model.RequestApproved}, model.Appointment{ID: 9}, f.err
}

func (f *fakeBookings) Reject(_ context.Context, actor booking.Actor, id int64, resp string) (model.AppointmentRequest, error) {
	f.actor = actor
	return model.AppointmentRequest{ID: id, Status: model.RequestRejected, ManagerResponse: resp}, f.err
}

const webhookSecret = "whsec_handlers"

type harness struct {
	store    *fakeStore
	bookings *fakeBookings
	signer   *auth.Signer
	mux      *http.ServeMux
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	signer, err := auth.NewSigner("test-secret", "hospital-service", time.Hour)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	h := &harness{store: newFakeStore(), bookings: &fakeBookings{}, signer: signer, mux: http.NewServeMux()}
	h.store.doctors[10] = model.Doctor{
		ID: 10, UserID: 3, Email: "rao@example.com", Name: "Dr Rao", Department: "Cardiology",
		AvailableFrom: scheduling.MustClock("09:00"), AvailableTo: scheduling.MustClock("17:00"),
	}
	api := New(Deps{
		Store:    h.store,
		Slots:    h.store,
		Bookings: h.bookings,
		Payments: payments.NewStripe(payments.Config{WebhookSecret: webhookSecret}),
		Signer:   signer,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	api.Register(h.mux)
	return h
}

func (h *harness) token(t *testing.T, userID int64, role model.Role) string {
	t.Helper()
	tok, _, err := h.signer.Sign(userID, "user", "user@example.com", string(role))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tok
}

func (h *harness) do(t *testing.T, method, target, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.mux.ServeHTTP(rr, req)
	return rr
}
