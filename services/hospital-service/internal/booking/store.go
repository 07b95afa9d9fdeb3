package booking

import (
	"context"

	"github.com/knocktern/hospital-booking/services/hospital-service/internal/model"
	"github.com/knocktern/hospital-booking/services/hospital-service/internal/outbox"
	"github.com/knocktern/hospital-booking/services/hospital-service/internal/scheduling"
	"github.com/knocktern/hospital-booking/services/hospital-service/internal/storage"
)

// Tx is the transactional view of the store the service writes through.
type Tx interface {
	scheduling.BookingLister
	LockDoctorDay(ctx context.Context, doctorID int64, day scheduling.Date) error

	GetUser(ctx context.Context, id int64) (model.User, error)
	GetDoctor(ctx context.Context, id int64) (model.Doctor, error)
	GetDoctorByUserID(ctx context.Context, userID int64) (model.Doctor, error)

	GetAppointment(ctx context.Context, id int64) (model.Appointment, error)
	GetAppointmentForUpdate(ctx context.Context, id int64) (model.Appointment, error)
	InsertAppointment(ctx context.Context, a *model.Appointment) error
	UpdateAppointment(ctx context.Context, a *model.Appointment) error
	SetAppointmentStatus(ctx context.Context, id int64, status model.Status) error
	MarkAppointmentPaid(ctx context.Context, id int64) (bool, error)
	DeleteAppointment(ctx context.Context, id int64) error
	LockIdempotencyKey(ctx context.Context, managerID int64, key string) (int64, bool, error)
	FinalizeIdempotencyKey(ctx context.Context, managerID int64, key string, appointmentID int64) error

	InsertRequest(ctx context.Context, r *model.AppointmentRequest) error
	GetRequestForUpdate(ctx context.Context, id int64) (model.AppointmentRequest, error)
	RespondToRequest(ctx context.Context, r *model.AppointmentRequest) error
	ExpireRequests(ctx context.Context, cutoff scheduling.Date, limit int) ([]model.AppointmentRequest, error)

	RecordAudit(ctx context.Context, e model.AuditEvent) error
	EnqueueEvent(ctx context.Context, evt outbox.Event) error
}

type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Postgres adapts *storage.Store to Store.
type Postgres struct {
	S *storage.Store
}

func (p Postgres) InTx(ctx context.Context, fn func(tx Tx) error) error {
	return p.S.InTx(ctx, func(tx *storage.Store) error { return fn(tx) })
}
