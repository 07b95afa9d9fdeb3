package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/knocktern/hospital-booking/libs/auth"
	"github.com/knocktern/hospital-booking/libs/httpx"
	"github.com/knocktern/hospital-booking/services/hospital-service/internal/model"
	"github.com/knocktern/hospital-booking/services/hospital-service/internal/storage"
	"golang.org/x/crypto/bcrypt"
)

type signupRequest struct {
	Username string `json:"username" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6,max=72"`
	Role     string `json:"role" validate:"required,oneof=manager doctor patient"`
	Phone    string `json:"phone" validate:"omitempty,max=20"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expires_at"`
	User      model.User `json:"user"`
}

func (a *API) Signup(w http.ResponseWriter, r *http.Request) {
	if !httpx.RequireMethod(w, r, http.MethodPost) {
		return
	}
	var req signupRequest
	if !a.bind(w, r, &req) {
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	u := model.User{
		Username:     strings.TrimSpace(req.Username),
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		PasswordHash: string(hash),
		Role:         model.Role(req.Role),
		Phone:        strings.TrimSpace(req.Phone),
	}
	if err := a.store.CreateUser(r.Context(), &u); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			httpx.WriteError(w, http.StatusConflict, "email already registered")
			return
		}
		a.fail(w, r, err)
		return
	}
	a.logger.Info("user signed up", "user_id", u.ID, "role", u.Role)
	httpx.WriteJSON(w, http.StatusCreated, u)
}

func (a *API) Login(w http.ResponseWriter, r *http.Request) {
	if !httpx.RequireMethod(w, r, http.MethodPost) {
		return
	}
	var req loginRequest
	if !a.bind(w, r, &req) {
		return
	}

	u, err := a.store.GetUserByEmail(r.Context(), strings.ToLower(strings.TrimSpace(req.Email)))
	if errors.Is(err, storage.ErrNotFound) {
		httpx.WriteError(w, http.StatusUnauthorized, "invalid email or password")
		return
	}
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)) != nil {
		httpx.WriteError(w, http.StatusUnauthorized, "invalid email or password")
		return
	}

	token, exp, err := a.signer.Sign(u.ID, u.Username, u.Email, string(u.Role))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, loginResponse{Token: token, ExpiresAt: exp, User: u})
}

func (a *API) Me(w http.ResponseWriter, r *http.Request) {
	if !httpx.RequireMethod(w, r, http.MethodGet) {
		return
	}
	c, _ := auth.ClaimsFromContext(r.Context())
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"user_id": c.UserID,
		"name":    c.Name,
		"email":   c.Email,
		"role":    c.Role,
	})
}
