package storage

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/knocktern/hospital-booking/services/hospital-service/internal/model"
	"github.com/knocktern/hospital-booking/services/hospital-service/internal/scheduling"
)

const doctorColumns = `id, user_id, email, name, department, specialization, qualification, experience_years,
	consultation_fee::float8, to_char(available_from, 'HH24:MI'), to_char(available_to, 'HH24:MI'), created_at`

func scanDoctor(row pgx.Row) (model.Doctor, error) {
	var d model.Doctor
	var from, to string
	if err := row.Scan(&d.ID, &d.UserID, &d.Email, &d.Name, &d.Department, &d.Specialization, &d.Qualification,
		&d.ExperienceYears, &d.ConsultationFee, &from, &to, &d.CreatedAt); err != nil {
		return model.Doctor{}, err
	}
	var err error
	if d.AvailableFrom, err = parseClock(from); err != nil {
		return model.Doctor{}, err
	}
	if d.AvailableTo, err = parseClock(to); err != nil {
		return model.Doctor{}, err
	}
	return d, nil
}

func (s *Store) CreateDoctor(ctx context.Context, d *model.Doctor) error {
	err := s.q.QueryRow(ctx, `
		INSERT INTO doctors (user_id, email, name, department, specialization, qualification,
			experience_years, consultation_fee, available_from, available_to)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::time, $10::time)
		RETURNING id, created_at
	`, d.UserID, strings.ToLower(d.Email), d.Name, d.Department, d.Specialization, d.Qualification,
		d.ExperienceYears, d.ConsultationFee, d.AvailableFrom.String(), d.AvailableTo.String()).Scan(&d.ID, &d.CreatedAt)
	return classify(err)
}

func (s *Store) GetDoctor(ctx context.Context, id int64) (model.Doctor, error) {
	d, err := scanDoctor(s.q.QueryRow(ctx, `SELECT `+doctorColumns+` FROM doctors WHERE id = $1`, id))
	return d, classify(err)
}

func (s *Store) GetDoctorByUserID(ctx context.Context, userID int64) (model.Doctor, error) {
	d, err := scanDoctor(s.q.QueryRow(ctx, `SELECT `+doctorColumns+` FROM doctors WHERE user_id = $1`, userID))
	return d, classify(err)
}

func (s *Store) ListDoctors(ctx context.Context) ([]model.Doctor, error) {
	return s.queryDoctors(ctx, `SELECT `+doctorColumns+` FROM doctors ORDER BY name, id`)
}

// SearchDoctors matches the name case-insensitively.
func (s *Store) SearchDoctors(ctx context.Context, name string) ([]model.Doctor, error) {
	return s.queryDoctors(ctx, `SELECT `+doctorColumns+` FROM doctors WHERE lower(name) = lower($1) ORDER BY id`, strings.TrimSpace(name))
}

func (s *Store) queryDoctors(ctx context.Context, sql string, args ...any) ([]model.Doctor, error) {
	rows, err := s.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Doctor{}
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// WorkingHours implements scheduling.HoursLookup.
func (s *Store) WorkingHours(ctx context.Context, doctorID int64) (scheduling.WorkingHours, error) {
	var from, to string
	err := s.q.QueryRow(ctx, `
		SELECT to_char(available_from, 'HH24:MI'), to_char(available_to, 'HH24:MI')
		FROM doctors WHERE id = $1
	`, doctorID).Scan(&from, &to)
	if errors.Is(classify(err), ErrNotFound) {
		return scheduling.WorkingHours{}, scheduling.ErrDoctorNotFound
	}
	if err != nil {
		return scheduling.WorkingHours{}, err
	}
	var h scheduling.WorkingHours
	if h.From, err = parseClock(from); err != nil {
		return h, err
	}
	if h.To, err = parseClock(to); err != nil {
		return h, err
	}
	return h, nil
}
