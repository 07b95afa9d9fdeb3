package booking

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/knocktern/hospital-booking/services/hospital-service/internal/model"
	"github.com/knocktern/hospital-booking/services/hospital-service/internal/outbox"
	"github.com/knocktern/hospital-booking/services/hospital-service/internal/scheduling"
	"github.com/knocktern/hospital-booking/services/hospital-service/internal/storage"
)

type memState struct {
	users        map[int64]model.User
	doctors      map[int64]model.Doctor
	appointments map[int64]model.Appointment
	requests     map[int64]model.AppointmentRequest
	idem         map[string]int64
	audit        []model.AuditEvent
	events       []outbox.Event
	nextID       int64
}

func (s *memState) clone() *memState {
	c := *s
	c.users = cloneMap(s.users)
	c.doctors = cloneMap(s.doctors)
	c.appointments = cloneMap(s.appointments)
	c.requests = cloneMap(s.requests)
	c.idem = cloneMap(s.idem)
	c.audit = append([]model.AuditEvent(nil), s.audit...)
	c.events = append([]outbox.Event(nil), s.events...)
	return &c
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// memStore runs each transaction on a copy and keeps it only on success.
type memStore struct {
	state   *memState
	listErr error
	locks   int
}

func newMemStore() *memStore {
	return &memStore{state: &memState{
		users:        map[int64]model.User{},
		doctors:      map[int64]model.Doctor{},
		appointments: map[int64]model.Appointment{},
		requests:     map[int64]model.AppointmentRequest{},
		idem:         map[string]int64{},
		nextID:       100,
	}}
}

func (m *memStore) InTx(ctx context.Context, fn func(Tx) error) error {
	tx := &memTx{store: m, s: m.state.clone()}
	if err := fn(tx); err != nil {
		return err
	}
	m.state = tx.s
	return nil
}

func (m *memStore) addUser(u model.User) model.User {
	m.state.users[u.ID] = u
	return u
}

func (m *memStore) addDoctor(d model.Doctor) model.Doctor {
	if d.AvailableTo == 0 {
		d.AvailableFrom = scheduling.MustClock("09:00")
		d.AvailableTo = scheduling.MustClock("17:00")
	}
	m.state.doctors[d.ID] = d
	return d
}

func (m *memStore) addAppointment(a model.Appointment) model.Appointment {
	m.state.nextID++
	a.ID = m.state.nextID
	if a.Status == "" {
		a.Status = model.StatusScheduled
	}
	m.state.appointments[a.ID] = a
	return a
}

func (m *memStore) eventTypes() []string {
	var out []string
	for _, e := range m.state.events {
		out = append(out, e.EventType)
	}
	return out
}

type memTx struct {
	store *memStore
	s     *memState
}

func (t *memTx) id() int64 {
	t.s.nextID++
	return t.s.nextID
}

func (t *memTx) ActiveBookings(_ context.Context, doctorID int64, day scheduling.Date, excludeID int64) ([]scheduling.Booking, error) {
	if t.store.listErr != nil {
		return nil, t.store.listErr
	}
	var out []scheduling.Booking
	for _, a := range t.s.appointments {
		if a.DoctorID != doctorID || !a.Date.Equal(day) || !a.Status.Active() || a.ID == excludeID {
			continue
		}
		out = append(out, scheduling.Booking{AppointmentID: a.ID, Start: a.Time})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out, nil
}

func (t *memTx) LockDoctorDay(context.Context, int64, scheduling.Date) error {
	t.store.locks++
	return nil
}

func (t *memTx) GetUser(_ context.Context, id int64) (model.User, error) {
	u, ok := t.s.users[id]
	if !ok {
		return model.User{}, storage.ErrNotFound
	}
	return u, nil
}

func (t *memTx) GetDoctor(_ context.Context, id int64) (model.Doctor, error) {
	d, ok := t.s.doctors[id]
	if !ok {
		return model.Doctor{}, storage.ErrNotFound
	}
	return d, nil
}

func (t *memTx) GetDoctorByUserID(_ context.Context, userID int64) (model.Doctor, error) {
	for _, d := range t.s.doctors {
		if d.UserID == userID {
			return d, nil
		}
	}
	return model.Doctor{}, storage.ErrNotFound
}

func (t *memTx) GetAppointment(_ context.Context, id int64) (model.Appointment, error) {
	a, ok := t.s.appointments[id]
	if !ok {
		return model.Appointment{}, storage.ErrNotFound
	}
	return a, nil
}

func (t *memTx) GetAppointmentForUpdate(ctx context.Context, id int64) (model.Appointment, error) {
	return t.GetAppointment(ctx, id)
}

// overlapping mirrors the exclusion constraint.
func (t *memTx) overlapping(a model.Appointment) bool {
	if !a.Status.Active() {
		return false
	}
	for _, o := range t.s.appointments {
		if o.ID != a.ID && o.DoctorID == a.DoctorID && o.Date.Equal(a.Date) && o.Status.Active() &&
			scheduling.Overlaps(o.Time, a.Time) {
			return true
		}
	}
	return false
}

func (t *memTx) InsertAppointment(_ context.Context, a *model.Appointment) error {
	if t.overlapping(*a) {
		return errors.Join(storage.ErrOverlap, errors.New("23P01"))
	}
	a.ID = t.id()
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	t.s.appointments[a.ID] = *a
	return nil
}

func (t *memTx) UpdateAppointment(_ context.Context, a *model.Appointment) error {
	if _, ok := t.s.appointments[a.ID]; !ok {
		return storage.ErrNotFound
	}
	if t.overlapping(*a) {
		return errors.Join(storage.ErrOverlap, errors.New("23P01"))
	}
	t.s.appointments[a.ID] = *a
	return nil
}

func (t *memTx) SetAppointmentStatus(_ context.Context, id int64, status model.Status) error {
	a, ok := t.s.appointments[id]
	if !ok {
		return storage.ErrNotFound
	}
	a.Status = status
	t.s.appointments[id] = a
	return nil
}

func (t *memTx) MarkAppointmentPaid(_ context.Context, id int64) (bool, error) {
	a, ok := t.s.appointments[id]
	if !ok || a.PaymentStatus == model.PaymentPaid {
		return false, nil
	}
	a.PaymentStatus = model.PaymentPaid
	t.s.appointments[id] = a
	return true, nil
}

func (t *memTx) DeleteAppointment(_ context.Context, id int64) error {
	if _, ok := t.s.appointments[id]; !ok {
		return storage.ErrNotFound
	}
	delete(t.s.appointments, id)
	return nil
}

func idemKey(managerID int64, key string) string {
	return fmt.Sprintf("%d/%s", managerID, key)
}

func (t *memTx) LockIdempotencyKey(_ context.Context, managerID int64, key string) (int64, bool, error) {
	id, ok := t.s.idem[idemKey(managerID, key)]
	return id, ok && id != 0, nil
}

func (t *memTx) FinalizeIdempotencyKey(_ context.Context, managerID int64, key string, appointmentID int64) error {
	t.s.idem[idemKey(managerID, key)] = appointmentID
	return nil
}

func (t *memTx) InsertRequest(_ context.Context, r *model.AppointmentRequest) error {
	r.ID = t.id()
	r.CreatedAt = time.Now()
	t.s.requests[r.ID] = *r
	return nil
}

func (t *memTx) GetRequestForUpdate(_ context.Context, id int64) (model.AppointmentRequest, error) {
	r, ok := t.s.requests[id]
	if !ok {
		return model.AppointmentRequest{}, storage.ErrNotFound
	}
	return r, nil
}

func (t *memTx) RespondToRequest(_ context.Context, r *model.AppointmentRequest) error {
	cur, ok := t.s.requests[r.ID]
	if !ok || cur.Status != model.RequestPending {
		return storage.ErrNotFound
	}
	now := time.Now()
	r.RespondedAt = &now
	t.s.requests[r.ID] = *r
	return nil
}

func (t *memTx) ExpireRequests(_ context.Context, cutoff scheduling.Date, limit int) ([]model.AppointmentRequest, error) {
	ids := make([]int64, 0, len(t.s.requests))
	for id := range t.s.requests {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var out []model.AppointmentRequest
	for _, id := range ids {
		r := t.s.requests[id]
		if r.Status != model.RequestPending || !r.PreferredDate.Before(cutoff) {
			continue
		}
		if len(out) == limit {
			break
		}
		r.Status = model.RequestExpired
		t.s.requests[id] = r
		out = append(out, r)
	}
	return out, nil
}

func (t *memTx) RecordAudit(_ context.Context, e model.AuditEvent) error {
	e.ID = t.id()
	t.s.audit = append(t.s.audit, e)
	return nil
}

func (t *memTx) EnqueueEvent(_ context.Context, evt outbox.Event) error {
	t.s.events = append(t.s.events, evt)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var fixedNow = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

func newTestService(store *memStore) *Service {
	svc := NewService(store, discardLogger())
	svc.now = func() time.Time { return fixedNow }
	return svc
}
