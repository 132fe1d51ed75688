package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"sessionhub/internal/models"
	"sessionhub/internal/observability/metrics"
	"sessionhub/internal/storage"
)

func registerTestUser(t *testing.T, store *storage.Storage, email string) models.User {
	t.Helper()
	user, err := store.CreateUser(storage.CreateUserParams{
		Email:    email,
		Password: "supersecret",
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return user
}

func authedRequest(t *testing.T, user models.User, method, target string, payload interface{}) *http.Request {
	t.Helper()
	var body *bytes.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(data)
	} else {
		body = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, body)
	return req.WithContext(ContextWithUser(req.Context(), user))
}

func decodeSession(t *testing.T, rec *httptest.ResponseRecorder) models.Session {
	t.Helper()
	var session models.Session
	if err := json.NewDecoder(rec.Body).Decode(&session); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	return session
}

func TestSaveDraftCreatesSession(t *testing.T) {
	handler, store := newTestHandler(t)
	user := registerTestUser(t, store, "creator@example.com")

	req := authedRequest(t, user, http.MethodPost, "/api/my-sessions/save-draft", sessionRequest{
		Title:       "Morning Notes",
		Tags:        "go, backend ,go",
		JSONFileURL: "https://files.example.com/notes.json",
	})
	rec := httptest.NewRecorder()
	handler.SaveDraft(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	session := decodeSession(t, rec)
	if session.ID == "" {
		t.Fatal("expected generated session id")
	}
	if session.Status != models.StatusDraft {
		t.Fatalf("expected draft status, got %q", session.Status)
	}
	if want := []string{"go", "backend", "go"}; !reflect.DeepEqual(session.Tags, want) {
		t.Fatalf("expected tags %v, got %v", want, session.Tags)
	}
	if session.UserID != user.ID {
		t.Fatalf("expected owner %q, got %q", user.ID, session.UserID)
	}
}

func TestUpsertValidation(t *testing.T) {
	handler, store := newTestHandler(t)
	user := registerTestUser(t, store, "creator@example.com")

	cases := []struct {
		name string
		req  sessionRequest
	}{
		{name: "missing title", req: sessionRequest{JSONFileURL: "https://files.example.com/a.json"}},
		{name: "missing url", req: sessionRequest{Title: "T"}},
		{name: "relative url", req: sessionRequest{Title: "T", JSONFileURL: "/a.json"}},
		{name: "bad scheme", req: sessionRequest{Title: "T", JSONFileURL: "ftp://files.example.com/a.json"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := authedRequest(t, user, http.MethodPost, "/api/my-sessions/save-draft", tc.req)
			rec := httptest.NewRecorder()
			handler.SaveDraft(rec, req)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected status 400, got %d", rec.Code)
			}
		})
	}
}

func TestUpsertUnknownIDReportsNotFound(t *testing.T) {
	handler, store := newTestHandler(t)
	user := registerTestUser(t, store, "creator@example.com")

	req := authedRequest(t, user, http.MethodPost, "/api/my-sessions/publish", sessionRequest{
		ID:          "missing-id",
		Title:       "T",
		JSONFileURL: "https://files.example.com/a.json",
	})
	rec := httptest.NewRecorder()
	handler.Publish(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rec.Code)
	}
}

func TestSessionRoutesRequireAuthentication(t *testing.T) {
	handler, _ := newTestHandler(t)

	for _, target := range []struct {
		name    string
		handler http.HandlerFunc
		method  string
		path    string
	}{
		{name: "list mine", handler: handler.MySessions, method: http.MethodGet, path: "/api/my-sessions"},
		{name: "get one", handler: handler.MySessionByID, method: http.MethodGet, path: "/api/my-sessions/abc"},
		{name: "save draft", handler: handler.SaveDraft, method: http.MethodPost, path: "/api/my-sessions/save-draft"},
		{name: "publish", handler: handler.Publish, method: http.MethodPost, path: "/api/my-sessions/publish"},
	} {
		t.Run(target.name, func(t *testing.T) {
			req := httptest.NewRequest(target.method, target.path, bytes.NewReader(nil))
			rec := httptest.NewRecorder()
			target.handler(rec, req)
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("expected status 401, got %d", rec.Code)
			}
		})
	}
}

func TestMySessionByIDHidesForeignSessions(t *testing.T) {
	handler, store := newTestHandler(t)
	owner := registerTestUser(t, store, "owner@example.com")
	other := registerTestUser(t, store, "other@example.com")

	created, err := store.UpsertSession(owner.ID, storage.UpsertSessionParams{
		Title:       "Private",
		JSONFileURL: "https://files.example.com/private.json",
		Status:      models.StatusDraft,
	})
	if err != nil {
		t.Fatalf("UpsertSession: %v", err)
	}

	req := authedRequest(t, other, http.MethodGet, "/api/my-sessions/"+created.ID, nil)
	rec := httptest.NewRecorder()
	handler.MySessionByID(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 for foreign session, got %d", rec.Code)
	}

	req = authedRequest(t, owner, http.MethodGet, "/api/my-sessions/"+created.ID, nil)
	rec = httptest.NewRecorder()
	handler.MySessionByID(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 for owner, got %d", rec.Code)
	}
	if got := decodeSession(t, rec); got.ID != created.ID {
		t.Fatalf("expected session %q, got %q", created.ID, got.ID)
	}
}

func TestPublicSessionsReturnsEmptyArray(t *testing.T) {
	handler, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
	rec := httptest.NewRecorder()
	handler.PublicSessions(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if body := rec.Body.String(); body != "[]\n" {
		t.Fatalf("expected empty JSON array, got %q", body)
	}
}

func TestDraftPublishLifecycle(t *testing.T) {
	handler, store := newTestHandler(t)
	creator := registerTestUser(t, store, "u@x.com")

	draftReq := authedRequest(t, creator, http.MethodPost, "/api/my-sessions/save-draft", sessionRequest{
		Title:       "T1",
		JSONFileURL: "https://x/1",
	})
	rec := httptest.NewRecorder()
	handler.SaveDraft(rec, draftReq)
	if rec.Code != http.StatusOK {
		t.Fatalf("save-draft: expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	draft := decodeSession(t, rec)
	if draft.Status != models.StatusDraft {
		t.Fatalf("expected draft status, got %q", draft.Status)
	}
	if draft.ID == "" {
		t.Fatal("expected generated id")
	}

	// Draft stays out of the public listing.
	rec = httptest.NewRecorder()
	handler.PublicSessions(rec, httptest.NewRequest(http.MethodGet, "/api/sessions", nil))
	var public []storage.PublishedSession
	if err := json.NewDecoder(rec.Body).Decode(&public); err != nil {
		t.Fatalf("decode public sessions: %v", err)
	}
	if len(public) != 0 {
		t.Fatalf("expected no public sessions while drafted, got %d", len(public))
	}

	time.Sleep(5 * time.Millisecond)

	publishReq := authedRequest(t, creator, http.MethodPost, "/api/my-sessions/publish", sessionRequest{
		ID:          draft.ID,
		Title:       "T1",
		JSONFileURL: "https://x/1",
	})
	rec = httptest.NewRecorder()
	handler.Publish(rec, publishReq)
	if rec.Code != http.StatusOK {
		t.Fatalf("publish: expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	published := decodeSession(t, rec)
	if published.ID != draft.ID {
		t.Fatalf("expected same id %q, got %q", draft.ID, published.ID)
	}
	if published.Status != models.StatusPublished {
		t.Fatalf("expected published status, got %q", published.Status)
	}
	if !published.UpdatedAt.After(draft.UpdatedAt) {
		t.Fatalf("expected updated_at to advance: %v -> %v", draft.UpdatedAt, published.UpdatedAt)
	}
	if !published.CreatedAt.Equal(draft.CreatedAt) {
		t.Fatalf("expected created_at preserved: %v -> %v", draft.CreatedAt, published.CreatedAt)
	}

	rec = httptest.NewRecorder()
	handler.PublicSessions(rec, httptest.NewRequest(http.MethodGet, "/api/sessions", nil))
	public = nil
	if err := json.NewDecoder(rec.Body).Decode(&public); err != nil {
		t.Fatalf("decode public sessions: %v", err)
	}
	if len(public) != 1 || public[0].ID != draft.ID {
		t.Fatalf("expected published session in public listing, got %+v", public)
	}
	if public[0].OwnerEmail != "u@x.com" {
		t.Fatalf("expected owner email populated, got %q", public[0].OwnerEmail)
	}

	// A second user's listing stays empty.
	bystander := registerTestUser(t, store, "b@x.com")
	rec = httptest.NewRecorder()
	handler.MySessions(rec, authedRequest(t, bystander, http.MethodGet, "/api/my-sessions", nil))
	var mine []models.Session
	if err := json.NewDecoder(rec.Body).Decode(&mine); err != nil {
		t.Fatalf("decode my sessions: %v", err)
	}
	if len(mine) != 0 {
		t.Fatalf("expected no sessions for second user, got %d", len(mine))
	}
}

func TestUpsertHandlersRecordSessionEvents(t *testing.T) {
	handler, store := newTestHandler(t)
	user := registerTestUser(t, store, "counted@example.com")
	metrics.Default().Reset()

	req := authedRequest(t, user, http.MethodPost, "/api/my-sessions/save-draft", sessionRequest{
		Title:       "Counted Draft",
		JSONFileURL: "https://files.example.com/counted.json",
	})
	rec := httptest.NewRecorder()
	handler.SaveDraft(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	draft := decodeSession(t, rec)

	req = authedRequest(t, user, http.MethodPost, "/api/my-sessions/publish", sessionRequest{
		ID:          draft.ID,
		Title:       "Counted Draft",
		JSONFileURL: "https://files.example.com/counted.json",
	})
	rec = httptest.NewRecorder()
	handler.Publish(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var sb strings.Builder
	metrics.Default().Write(&sb)
	rendered := sb.String()
	for _, line := range []string{
		`sessionhub_session_events_total{event="draft_saved"} 1`,
		`sessionhub_session_events_total{event="published"} 1`,
	} {
		if !strings.Contains(rendered, line) {
			t.Fatalf("expected metrics output to contain %q:\n%s", line, rendered)
		}
	}
}
