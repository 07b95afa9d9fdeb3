package storage

import (
	"context"

	"github.com/knocktern/hospital-booking/services/hospital-service/internal/model"
)

func (s *Store) RecordAudit(ctx context.Context, e model.AuditEvent) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO audit_events (appointment_id, user_id, email, name, action, details)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, e.AppointmentID, e.UserID, e.Email, e.Name, e.Action, e.Details)
	return err
}

func (s *Store) ListAudit(ctx context.Context, limit int) ([]model.AuditEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.q.Query(ctx, `
		SELECT id, appointment_id, user_id, email, name, action, details, created_at
		FROM audit_events
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.AuditEvent{}
	for rows.Next() {
		var e model.AuditEvent
		if err := rows.Scan(&e.ID, &e.AppointmentID, &e.UserID, &e.Email, &e.Name, &e.Action, &e.Details, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
