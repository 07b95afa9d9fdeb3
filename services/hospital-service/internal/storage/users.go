package storage

import (
	"context"
	"strings"

	"github.com/knocktern/hospital-booking/services/hospital-service/internal/model"
)

const userColumns = `id, username, email, password_hash, role, phone, created_at`

func (s *Store) CreateUser(ctx context.Context, u *model.User) error {
	err := s.q.QueryRow(ctx, `
		INSERT INTO users (username, email, password_hash, role, phone)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, u.Username, strings.ToLower(u.Email), u.PasswordHash, u.Role, u.Phone).Scan(&u.ID, &u.CreatedAt)
	return classify(err)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (model.User, error) {
	var u model.User
	err := s.q.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email).
		Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Role, &u.Phone, &u.CreatedAt)
	return u, classify(err)
}

func (s *Store) GetUser(ctx context.Context, id int64) (model.User, error) {
	var u model.User
	err := s.q.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Role, &u.Phone, &u.CreatedAt)
	return u, classify(err)
}
