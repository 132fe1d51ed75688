package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"sessionhub/internal/models"
	"sessionhub/internal/observability/metrics"
	"sessionhub/internal/storage"
)

type sessionRequest struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Tags        string `json:"tags"`
	JSONFileURL string `json:"json_file_url"`
}

// PublicSessions lists every published session for anonymous callers.
func (h *Handler) PublicSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}

	sessions, err := h.Store.ListPublishedSessions()
	if err != nil {
		slog.Error("list published sessions failed", "error", err)
		writeError(w, http.StatusInternalServerError, errors.New("unable to list sessions"))
		return
	}
	if sessions == nil {
		sessions = []storage.PublishedSession{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

// MySessions lists the caller's sessions, drafts included.
func (h *Handler) MySessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}
	user, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}

	sessions, err := h.Store.ListUserSessions(user.ID)
	if err != nil {
		slog.Error("list user sessions failed", "user_id", user.ID, "error", err)
		writeError(w, http.StatusInternalServerError, errors.New("unable to list sessions"))
		return
	}
	if sessions == nil {
		sessions = []models.Session{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

// MySessionByID returns one of the caller's sessions. A session owned by
// someone else reports not-found, never forbidden.
func (h *Handler) MySessionByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}
	user, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}

	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/my-sessions/"), "/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, storage.ErrSessionNotFound)
		return
	}

	session, err := h.Store.GetUserSession(user.ID, id)
	if err != nil {
		if errors.Is(err, storage.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		slog.Error("get user session failed", "user_id", user.ID, "session_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, errors.New("unable to load session"))
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// SaveDraft creates or updates a session, forcing draft status. Updating a
// previously published session demotes it.
func (h *Handler) SaveDraft(w http.ResponseWriter, r *http.Request) {
	h.upsertSession(w, r, models.StatusDraft)
}

// Publish creates or updates a session, forcing published status.
func (h *Handler) Publish(w http.ResponseWriter, r *http.Request) {
	h.upsertSession(w, r, models.StatusPublished)
}

func (h *Handler) upsertSession(w http.ResponseWriter, r *http.Request, status models.SessionStatus) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}
	user, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}

	var req sessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	params, err := validateSessionRequest(req, status)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	session, err := h.Store.UpsertSession(user.ID, params)
	if err != nil {
		if errors.Is(err, storage.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		slog.Error("upsert session failed", "user_id", user.ID, "session_id", req.ID, "error", err)
		writeError(w, http.StatusInternalServerError, errors.New("unable to save session"))
		return
	}
	if status == models.StatusPublished {
		metrics.ObserveSessionEvent("published")
	} else {
		metrics.ObserveSessionEvent("draft_saved")
	}
	writeJSON(w, http.StatusOK, session)
}
