package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"sessionhub/internal/models"
	"sessionhub/internal/observability/metrics"
	"sessionhub/internal/storage"
)

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token     string       `json:"token"`
	ExpiresAt string       `json:"expires_at"`
	User      userResponse `json:"user"`
}

type userResponse struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	CreatedAt string `json:"created_at"`
}

func newUserResponse(user models.User) userResponse {
	return userResponse{
		ID:        user.ID,
		Email:     user.Email,
		CreatedAt: user.CreatedAt.Format(time.RFC3339Nano),
	}
}

func newAuthResponse(user models.User, token string, expires time.Time) authResponse {
	return authResponse{
		Token:     token,
		ExpiresAt: expires.UTC().Format(time.RFC3339Nano),
		User:      newUserResponse(user),
	}
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}

	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := validateCredentials(req.Email, req.Password); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	user, err := h.Store.CreateUser(storage.CreateUserParams{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		if errors.Is(err, storage.ErrEmailInUse) {
			writeError(w, http.StatusConflict, err)
			return
		}
		slog.Error("register create user failed", "email", storage.NormalizeEmail(req.Email), "error", err)
		writeError(w, http.StatusInternalServerError, errors.New("unable to create account"))
		return
	}

	metrics.ObserveAuthEvent("register")
	writeJSON(w, http.StatusCreated, map[string]userResponse{"user": newUserResponse(user)})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}

	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	user, err := h.Store.AuthenticateUser(req.Email, req.Password)
	if err != nil {
		if errors.Is(err, storage.ErrInvalidCredentials) {
			metrics.ObserveAuthEvent("login_failed")
			writeError(w, http.StatusUnauthorized, err)
			return
		}
		slog.Error("login failed", "error", err)
		writeError(w, http.StatusInternalServerError, errors.New("unable to log in"))
		return
	}

	token, expiresAt, err := h.Tokens.Issue(user.ID)
	if err != nil {
		slog.Error("issue token failed", "user_id", user.ID, "error", err)
		writeError(w, http.StatusInternalServerError, errors.New("unable to log in"))
		return
	}

	metrics.ObserveAuthEvent("login")
	writeJSON(w, http.StatusOK, newAuthResponse(user, token, expiresAt))
}

func validateCredentials(email, password string) error {
	trimmed := strings.TrimSpace(email)
	if trimmed == "" {
		return errors.New("email is required")
	}
	if !strings.Contains(trimmed, "@") {
		return errors.New("email is invalid")
	}
	if len(password) < 8 {
		return errors.New("password must be at least 8 characters")
	}
	return nil
}
