// Package storage is the Postgres persistence of hospital-service.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/knocktern/hospital-booking/libs/db"
	"github.com/knocktern/hospital-booking/services/hospital-service/internal/outbox"
	"github.com/knocktern/hospital-booking/services/hospital-service/internal/scheduling"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("already exists")
	// ErrOverlap is the exclusion constraint refusing a second active
	// appointment in the same half hour.
	ErrOverlap = errors.New("appointment overlaps an active appointment")
)

// Store runs queries against the pool, or against a transaction when
// obtained through InTx.
type Store struct {
	pool *db.Pool
	q    db.Querier
}

func New(pool *db.Pool) *Store {
	return &Store{pool: pool, q: pool}
}

func (s *Store) InTx(ctx context.Context, fn func(tx *Store) error) error {
	return s.pool.InTx(ctx, func(tx pgx.Tx) error {
		return fn(&Store{pool: s.pool, q: tx})
	})
}

// LockDoctorDay serializes writers booking the same doctor on the same day
// until the surrounding transaction ends.
func (s *Store) LockDoctorDay(ctx context.Context, doctorID int64, day scheduling.Date) error {
	key := fmt.Sprintf("doctor-day:%d:%s", doctorID, day)
	_, err := s.q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key)
	return err
}

func (s *Store) EnqueueEvent(ctx context.Context, evt outbox.Event) error {
	return outbox.Insert(ctx, s.q, evt)
}

func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case db.IsNotFound(err):
		return ErrNotFound
	case db.HasCode(err, db.CodeUniqueViolation):
		return errors.Join(ErrDuplicate, err)
	case db.HasCode(err, db.CodeExclusionViolation):
		return errors.Join(ErrOverlap, err)
	}
	return err
}

func parseClock(s string) (scheduling.Clock, error) {
	return scheduling.ParseClock(s)
}

func dateOf(t time.Time) scheduling.Date {
	return scheduling.DateOf(t)
}
