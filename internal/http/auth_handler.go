package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jeffersonhds/storefront/internal/domain"
	"github.com/jeffersonhds/storefront/internal/identity"
	"github.com/jeffersonhds/storefront/internal/retry"
	"github.com/sirupsen/logrus"
)

type AuthService interface {
	SignIn(ctx context.Context, email, password string, progress identity.Progress) (domain.Identity, error)
	SignUp(ctx context.Context, name, email, password string, progress identity.Progress) (domain.Identity, error)
	SendPasswordReset(ctx context.Context, email string, progress identity.Progress) error
}

type SignOuter interface {
	SignOut(ctx context.Context) error
}

type AuthHandler struct {
	auth    AuthService
	session SignOuter
	// timeout covers every retry attempt plus the backoff between them.
	timeout time.Duration
	log     logrus.FieldLogger
}

func NewAuthHandler(a AuthService, session SignOuter, timeout time.Duration, log logrus.FieldLogger) *AuthHandler {
	return &AuthHandler{auth: a, session: session, timeout: timeout, log: log}
}

type SignInRequestDTO struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type SignUpRequestDTO struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type PasswordResetRequestDTO struct {
	Email string `json:"email"`
}

type IdentityResponseDTO struct {
	UserID  string `json:"user_id"`
	Email   string `json:"email"`
	Warning string `json:"warning,omitempty"`
}

func (h *AuthHandler) progress(r *http.Request) identity.Progress {
	return func(st retry.State) {
		h.log.WithField("request_id", getRequestID(r.Context())).Info(st.Message)
	}
}

func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req SignInRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	id, err := h.auth.SignIn(ctx, req.Email, req.Password, h.progress(r))
	if err != nil {
		handleAppError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, IdentityResponseDTO{UserID: id.UserID, Email: id.Email})
}

// SignUp answers 201 even when only the profile could not be saved; the
// account exists and the user is signed in.
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req SignUpRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	id, err := h.auth.SignUp(ctx, req.Name, req.Email, req.Password, h.progress(r))
	if err != nil && !errors.Is(err, identity.ErrProfileNotSaved) {
		handleAppError(w, h.log, err)
		return
	}
	dto := IdentityResponseDTO{UserID: id.UserID, Email: id.Email}
	if err != nil {
		dto.Warning = identity.ErrProfileNotSaved.Error()
	}
	respondJSON(w, http.StatusCreated, dto)
}

func (h *AuthHandler) PasswordReset(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req PasswordResetRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.auth.SendPasswordReset(ctx, req.Email, h.progress(r)); err != nil {
		handleAppError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SignOut always forgets the session; hook failures are only logged.
func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	if err := h.session.SignOut(r.Context()); err != nil {
		h.log.WithError(err).Warn("sign-out cleanup incomplete")
	}
	w.WriteHeader(http.StatusNoContent)
}
