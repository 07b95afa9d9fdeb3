package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/knocktern/hospital-booking/services/hospital-service/internal/model"
	"github.com/knocktern/hospital-booking/services/hospital-service/internal/scheduling"
)

const requestSelect = `
	SELECT r.id, r.patient_user_id, COALESCE(u.username, ''), COALESCE(u.email, ''), r.doctor_id,
		COALESCE(d.name, ''), COALESCE(d.department, ''), r.preferred_date, to_char(r.preferred_time, 'HH24:MI'),
		r.alternate_date, to_char(r.alternate_time, 'HH24:MI'), r.disease, r.message, r.status,
		r.manager_response, r.responded_by, r.appointment_id, r.created_at, r.responded_at
	FROM appointment_requests r
	LEFT JOIN users u ON u.id = r.patient_user_id
	LEFT JOIN doctors d ON d.id = r.doctor_id`

func scanRequest(row pgx.Row) (model.AppointmentRequest, error) {
	var r model.AppointmentRequest
	var preferred time.Time
	var preferredClock string
	var alternate *time.Time
	var alternateClock *string
	err := row.Scan(&r.ID, &r.PatientUserID, &r.PatientName, &r.PatientEmail, &r.DoctorID,
		&r.DoctorName, &r.Department, &preferred, &preferredClock,
		&alternate, &alternateClock, &r.Disease, &r.Message, &r.Status,
		&r.ManagerResponse, &r.RespondedBy, &r.AppointmentID, &r.CreatedAt, &r.RespondedAt)
	if err != nil {
		return model.AppointmentRequest{}, err
	}
	r.PreferredDate = dateOf(preferred)
	if r.PreferredTime, err = parseClock(preferredClock); err != nil {
		return model.AppointmentRequest{}, err
	}
	if alternate != nil {
		d := dateOf(*alternate)
		r.AlternateDate = &d
	}
	if alternateClock != nil {
		c, err := parseClock(*alternateClock)
		if err != nil {
			return model.AppointmentRequest{}, err
		}
		r.AlternateTime = &c
	}
	return r, nil
}

func (s *Store) queryRequests(ctx context.Context, sql string, args ...any) ([]model.AppointmentRequest, error) {
	rows, err := s.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.AppointmentRequest{}
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) InsertRequest(ctx context.Context, r *model.AppointmentRequest) error {
	var altDate *time.Time
	if r.AlternateDate != nil {
		t := r.AlternateDate.Time()
		altDate = &t
	}
	var altTime *string
	if r.AlternateTime != nil {
		t := r.AlternateTime.String()
		altTime = &t
	}
	err := s.q.QueryRow(ctx, `
		INSERT INTO appointment_requests (patient_user_id, doctor_id, preferred_date, preferred_time,
			alternate_date, alternate_time, disease, message, status)
		VALUES ($1, $2, $3, $4::time, $5, $6::time, $7, $8, $9)
		RETURNING id, created_at
	`, r.PatientUserID, r.DoctorID, r.PreferredDate.Time(), r.PreferredTime.String(),
		altDate, altTime, r.Disease, r.Message, r.Status).Scan(&r.ID, &r.CreatedAt)
	return classify(err)
}

func (s *Store) GetRequestForUpdate(ctx context.Context, id int64) (model.AppointmentRequest, error) {
	r, err := scanRequest(s.q.QueryRow(ctx, requestSelect+` WHERE r.id = $1 FOR UPDATE OF r`, id))
	return r, classify(err)
}

// ListRequests returns requests in creation order. A zero patientID lists
// every patient; an empty status lists every status.
func (s *Store) ListRequests(ctx context.Context, status model.RequestStatus, patientID int64) ([]model.AppointmentRequest, error) {
	return s.queryRequests(ctx, requestSelect+`
		WHERE ($1::text = '' OR r.status = $1::text) AND ($2::bigint = 0 OR r.patient_user_id = $2::bigint)
		ORDER BY r.created_at, r.id
	`, string(status), patientID)
}

// RespondToRequest records the manager's decision on a pending request.
func (s *Store) RespondToRequest(ctx context.Context, r *model.AppointmentRequest) error {
	err := s.q.QueryRow(ctx, `
		UPDATE appointment_requests
		SET status = $2, manager_response = $3, responded_by = $4, appointment_id = $5, responded_at = now()
		WHERE id = $1 AND status = 'pending'
		RETURNING responded_at
	`, r.ID, r.Status, r.ManagerResponse, r.RespondedBy, r.AppointmentID).Scan(&r.RespondedAt)
	return classify(err)
}

// ExpireRequests marks pending requests preferring a day before cutoff as
// expired and returns them.
func (s *Store) ExpireRequests(ctx context.Context, cutoff scheduling.Date, limit int) ([]model.AppointmentRequest, error) {
	rows, err := s.q.Query(ctx, `
		UPDATE appointment_requests
		SET status = 'expired', responded_at = now()
		WHERE id IN (
			SELECT id FROM appointment_requests
			WHERE status = 'pending' AND preferred_date < $1
			ORDER BY id
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id
	`, cutoff.Time(), limit)
	if err != nil {
		return nil, err
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil || len(ids) == 0 {
		return nil, err
	}
	return s.queryRequests(ctx, requestSelect+` WHERE r.id = ANY($1) ORDER BY r.id`, ids)
}
