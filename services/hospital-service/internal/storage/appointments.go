package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/knocktern/hospital-booking/services/hospital-service/internal/model"
	"github.com/knocktern/hospital-booking/services/hospital-service/internal/scheduling"
)

const appointmentSelect = `
	SELECT a.id, a.patient_user_id, a.manager_user_id, a.doctor_id, COALESCE(d.name, ''), a.email, a.name,
		a.gender, a.age, a.day_part, a.disease, a.appointment_date, to_char(a.appointment_time, 'HH24:MI'),
		a.department, a.phone, a.status, a.booking_type, a.payment_status, a.created_at, a.updated_at
	FROM appointments a
	LEFT JOIN doctors d ON d.id = a.doctor_id`

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var a model.Appointment
	var day time.Time
	var clock string
	err := row.Scan(&a.ID, &a.PatientUserID, &a.ManagerUserID, &a.DoctorID, &a.DoctorName, &a.Email, &a.Name,
		&a.Gender, &a.Age, &a.DayPart, &a.Disease, &day, &clock,
		&a.Department, &a.Phone, &a.Status, &a.BookingType, &a.PaymentStatus, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return model.Appointment{}, err
	}
	a.Date = dateOf(day)
	if a.Time, err = parseClock(clock); err != nil {
		return model.Appointment{}, err
	}
	return a, nil
}

func (s *Store) queryAppointments(ctx context.Context, sql string, args ...any) ([]model.Appointment, error) {
	rows, err := s.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Appointment{}
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ActiveBookings implements scheduling.BookingLister.
func (s *Store) ActiveBookings(ctx context.Context, doctorID int64, day scheduling.Date, excludeID int64) ([]scheduling.Booking, error) {
	rows, err := s.q.Query(ctx, `
		SELECT id, to_char(appointment_time, 'HH24:MI')
		FROM appointments
		WHERE doctor_id = $1
			AND appointment_date = $2
			AND status = ANY($3)
			AND id <> $4
		ORDER BY appointment_time, id
	`, doctorID, day.Time(), activeStatuses(), excludeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []scheduling.Booking
	for rows.Next() {
		var b scheduling.Booking
		var clock string
		if err := rows.Scan(&b.AppointmentID, &clock); err != nil {
			return nil, err
		}
		if b.Start, err = parseClock(clock); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func activeStatuses() []string {
	out := make([]string, len(model.ActiveStatuses))
	for i, st := range model.ActiveStatuses {
		out[i] = string(st)
	}
	return out
}

func (s *Store) InsertAppointment(ctx context.Context, a *model.Appointment) error {
	err := s.q.QueryRow(ctx, `
		INSERT INTO appointments (patient_user_id, manager_user_id, doctor_id, email, name, gender, age, day_part,
			disease, appointment_date, appointment_time, department, phone, status, booking_type, payment_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11::time, $12, $13, $14, $15, $16)
		RETURNING id, created_at, updated_at
	`, a.PatientUserID, a.ManagerUserID, a.DoctorID, a.Email, a.Name, a.Gender, a.Age, a.DayPart,
		a.Disease, a.Date.Time(), a.Time.String(), a.Department, a.Phone, a.Status, a.BookingType, a.PaymentStatus,
	).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	return classify(err)
}

func (s *Store) UpdateAppointment(ctx context.Context, a *model.Appointment) error {
	err := s.q.QueryRow(ctx, `
		UPDATE appointments
		SET doctor_id = $2, email = $3, name = $4, gender = $5, age = $6, day_part = $7, disease = $8,
			appointment_date = $9, appointment_time = $10::time, department = $11, phone = $12, updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`, a.ID, a.DoctorID, a.Email, a.Name, a.Gender, a.Age, a.DayPart, a.Disease,
		a.Date.Time(), a.Time.String(), a.Department, a.Phone).Scan(&a.UpdatedAt)
	return classify(err)
}

func (s *Store) SetAppointmentStatus(ctx context.Context, id int64, status model.Status) error {
	tag, err := s.q.Exec(ctx, `UPDATE appointments SET status = $2, updated_at = now() WHERE id = $1`, id, status)
	if err != nil {
		return classify(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkAppointmentPaid reports false when the appointment was already paid.
func (s *Store) MarkAppointmentPaid(ctx context.Context, id int64) (bool, error) {
	tag, err := s.q.Exec(ctx, `
		UPDATE appointments SET payment_status = 'paid', updated_at = now()
		WHERE id = $1 AND payment_status <> 'paid'
	`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) DeleteAppointment(ctx context.Context, id int64) error {
	tag, err := s.q.Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return classify(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) GetAppointment(ctx context.Context, id int64) (model.Appointment, error) {
	a, err := scanAppointment(s.q.QueryRow(ctx, appointmentSelect+` WHERE a.id = $1`, id))
	return a, classify(err)
}

// GetAppointmentForUpdate locks the row until the transaction ends.
func (s *Store) GetAppointmentForUpdate(ctx context.Context, id int64) (model.Appointment, error) {
	a, err := scanAppointment(s.q.QueryRow(ctx, appointmentSelect+` WHERE a.id = $1 FOR UPDATE OF a`, id))
	return a, classify(err)
}

// AppointmentFilter narrows a listing; zero fields are ignored.
type AppointmentFilter struct {
	ManagerID     int64
	DoctorID      int64
	PatientID     int64
	Date          scheduling.Date
	ExcludeStatus model.Status
	Limit         int
}

func (s *Store) ListAppointments(ctx context.Context, f AppointmentFilter) ([]model.Appointment, error) {
	sql, args := f.query()
	return s.queryAppointments(ctx, sql, args...)
}

// query renders the listing SQL; placeholders are numbered in the order
// their arguments are appended.
func (f AppointmentFilter) query() (string, []any) {
	var where []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.ManagerID != 0 {
		add("a.manager_user_id = $%d", f.ManagerID)
	}
	if f.DoctorID != 0 {
		add("a.doctor_id = $%d", f.DoctorID)
	}
	if f.PatientID != 0 {
		add("a.patient_user_id = $%d", f.PatientID)
	}
	if !f.Date.IsZero() {
		add("a.appointment_date = $%d", f.Date.Time())
	}
	if f.ExcludeStatus != "" {
		add("a.status <> $%d", f.ExcludeStatus)
	}

	sql := appointmentSelect
	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}
	sql += " ORDER BY a.appointment_date, a.appointment_time, a.id"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		sql += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	return sql, args
}

// LockIdempotencyKey claims key for the manager. If a previous request with
// the same key already created an appointment, its id is returned.
func (s *Store) LockIdempotencyKey(ctx context.Context, managerID int64, key string) (int64, bool, error) {
	if _, err := s.q.Exec(ctx, `
		INSERT INTO appointment_idempotency_keys (manager_user_id, idempotency_key)
		VALUES ($1, $2)
		ON CONFLICT (manager_user_id, idempotency_key) DO NOTHING
	`, managerID, key); err != nil {
		return 0, false, err
	}
	var apptID *int64
	err := s.q.QueryRow(ctx, `
		SELECT appointment_id FROM appointment_idempotency_keys
		WHERE manager_user_id = $1 AND idempotency_key = $2
		FOR UPDATE
	`, managerID, key).Scan(&apptID)
	if err != nil {
		return 0, false, classify(err)
	}
	if apptID == nil {
		return 0, false, nil
	}
	return *apptID, true, nil
}

func (s *Store) FinalizeIdempotencyKey(ctx context.Context, managerID int64, key string, appointmentID int64) error {
	_, err := s.q.Exec(ctx, `
		UPDATE appointment_idempotency_keys SET appointment_id = $3
		WHERE manager_user_id = $1 AND idempotency_key = $2
	`, managerID, key, appointmentID)
	return err
}
