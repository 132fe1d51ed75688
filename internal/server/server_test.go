package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"sessionhub/internal/api"
	"sessionhub/internal/auth"
	"sessionhub/internal/models"
	"sessionhub/internal/storage"
)

func newTestHandler(t *testing.T) (*api.Handler, *storage.Storage) {
	t.Helper()
	store, err := storage.NewStorage(filepath.Join(t.TempDir(), "store.json"))
	if err != nil {
		t.Fatalf("NewStorage error: %v", err)
	}
	tokens, err := auth.NewManager([]byte("server-test-secret"), time.Hour)
	if err != nil {
		t.Fatalf("NewManager error: %v", err)
	}
	return api.NewHandler(store, tokens), store
}

func newTestServer(t *testing.T) (*Server, *api.Handler, *storage.Storage) {
	t.Helper()
	handler, store := newTestHandler(t)
	srv, err := New(handler, Config{})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	return srv, handler, store
}

func TestNewReturnsErrorWhenHandlerNil(t *testing.T) {
	t.Parallel()

	srv, err := New(nil, Config{})
	if err == nil {
		t.Fatalf("expected error when handler is nil, got server: %#v", srv)
	}
}

func TestAuthMiddlewareAcceptsBearerToken(t *testing.T) {
	handler, store := newTestHandler(t)
	user, err := store.CreateUser(storage.CreateUserParams{
		Email:    "tester@example.com",
		Password: "supersecret",
	})
	if err != nil {
		t.Fatalf("CreateUser error: %v", err)
	}
	token, _, err := handler.Tokens.Issue(user.ID)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	nextCalled := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nextCalled = true
		ctxUser, ok := api.UserFromContext(r.Context())
		if !ok {
			t.Fatal("expected user in context")
		}
		if ctxUser.ID != user.ID {
			t.Fatalf("expected user %s, got %s", user.ID, ctxUser.ID)
		}
	})

	req := httptest.NewRequest(http.MethodGet, "/api/my-sessions", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	authMiddleware(handler, next).ServeHTTP(rec, req)

	if !nextCalled {
		t.Fatal("expected middleware to call next handler")
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
}

func TestAuthMiddlewareRejectsMissingToken(t *testing.T) {
	handler, _ := newTestHandler(t)
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("unexpected call to next handler")
	})

	req := httptest.NewRequest(http.MethodGet, "/api/my-sessions", nil)
	rec := httptest.NewRecorder()

	authMiddleware(handler, next).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
	var payload map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload["error"] == "" {
		t.Fatal("expected error message in response")
	}
}

func TestAuthMiddlewareRejectsInvalidToken(t *testing.T) {
	handler, _ := newTestHandler(t)
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("unexpected call to next handler")
	})

	req := httptest.NewRequest(http.MethodPost, "/api/my-sessions/save-draft", nil)
	req.Header.Set("Authorization", "Bearer bogus-token")
	rec := httptest.NewRecorder()

	authMiddleware(handler, next).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
}

func TestAuthMiddlewarePassesPublicRoutes(t *testing.T) {
	handler, _ := newTestHandler(t)

	for _, path := range []string{"/healthz", "/metrics", "/api/sessions", "/api/auth/login", "/api/auth/register"} {
		nextCalled := false
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			nextCalled = true
		})
		req := httptest.NewRequest(http.MethodGet, path, nil)
		authMiddleware(handler, next).ServeHTTP(httptest.NewRecorder(), req)
		if !nextCalled {
			t.Fatalf("expected %s to bypass authentication", path)
		}
	}
}

func postJSON(t *testing.T, srv *Server, path, token string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func getJSON(t *testing.T, srv *Server, path, token string, dest interface{}) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if dest != nil && rec.Code == http.StatusOK {
		if err := json.NewDecoder(rec.Body).Decode(dest); err != nil {
			t.Fatalf("decode %s response: %v", path, err)
		}
	}
	return rec
}

func TestServerEndToEndDraftPublishFlow(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := postJSON(t, srv, "/api/auth/register", "", map[string]string{
		"email":    "u@x.com",
		"password": "password1",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = postJSON(t, srv, "/api/auth/login", "", map[string]string{
		"email":    "u@x.com",
		"password": "password1",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var login struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&login); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	if login.Token == "" {
		t.Fatal("expected login token")
	}

	rec = postJSON(t, srv, "/api/my-sessions/save-draft", login.Token, map[string]string{
		"title":         "T1",
		"json_file_url": "https://x/1",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("save-draft: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var draft models.Session
	if err := json.NewDecoder(rec.Body).Decode(&draft); err != nil {
		t.Fatalf("decode draft: %v", err)
	}
	if draft.Status != models.StatusDraft || draft.ID == "" {
		t.Fatalf("unexpected draft: %+v", draft)
	}

	time.Sleep(5 * time.Millisecond)

	rec = postJSON(t, srv, "/api/my-sessions/publish", login.Token, map[string]string{
		"id":            draft.ID,
		"title":         "T1",
		"json_file_url": "https://x/1",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("publish: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var published models.Session
	if err := json.NewDecoder(rec.Body).Decode(&published); err != nil {
		t.Fatalf("decode published: %v", err)
	}
	if published.Status != models.StatusPublished || published.ID != draft.ID {
		t.Fatalf("unexpected published session: %+v", published)
	}
	if !published.UpdatedAt.After(draft.UpdatedAt) {
		t.Fatalf("expected updated_at to advance: %v -> %v", draft.UpdatedAt, published.UpdatedAt)
	}

	var public []storage.PublishedSession
	rec = getJSON(t, srv, "/api/sessions", "", &public)
	if rec.Code != http.StatusOK {
		t.Fatalf("public list: expected 200, got %d", rec.Code)
	}
	if len(public) != 1 || public[0].ID != draft.ID || public[0].OwnerEmail != "u@x.com" {
		t.Fatalf("unexpected public listing: %+v", public)
	}

	var mine []models.Session
	rec = getJSON(t, srv, "/api/my-sessions", login.Token, &mine)
	if rec.Code != http.StatusOK {
		t.Fatalf("my-sessions: expected 200, got %d", rec.Code)
	}
	if len(mine) != 1 {
		t.Fatalf("expected one session, got %d", len(mine))
	}

	var single models.Session
	rec = getJSON(t, srv, "/api/my-sessions/"+draft.ID, login.Token, &single)
	if rec.Code != http.StatusOK {
		t.Fatalf("my-sessions/{id}: expected 200, got %d", rec.Code)
	}
	if single.ID != draft.ID {
		t.Fatalf("expected session %s, got %s", draft.ID, single.ID)
	}

	// Second user sees nothing of the first user's data under /api/my-sessions.
	rec = postJSON(t, srv, "/api/auth/register", "", map[string]string{
		"email":    "b@x.com",
		"password": "password2",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("second register: expected 201, got %d", rec.Code)
	}
	rec = postJSON(t, srv, "/api/auth/login", "", map[string]string{
		"email":    "b@x.com",
		"password": "password2",
	})
	var secondLogin struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&secondLogin); err != nil {
		t.Fatalf("decode second login: %v", err)
	}
	var othersSessions []models.Session
	rec = getJSON(t, srv, "/api/my-sessions", secondLogin.Token, &othersSessions)
	if rec.Code != http.StatusOK {
		t.Fatalf("second my-sessions: expected 200, got %d", rec.Code)
	}
	if len(othersSessions) != 0 {
		t.Fatalf("expected empty listing for second user, got %d", len(othersSessions))
	}
	rec = getJSON(t, srv, "/api/my-sessions/"+draft.ID, secondLogin.Token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for foreign session, got %d", rec.Code)
	}
}

func TestServerHealthAndMetricsAreUnprotected(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := getJSON(t, srv, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz: expected 200, got %d", rec.Code)
	}

	rec = getJSON(t, srv, "/metrics", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics: expected 200, got %d", rec.Code)
	}
}

func TestExtractClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.7:4411"
	if got := extractClientIP(req); got != "203.0.113.7" {
		t.Fatalf("expected remote addr host, got %q", got)
	}

	req.Header.Set("X-Real-IP", "198.51.100.2")
	if got := extractClientIP(req); got != "198.51.100.2" {
		t.Fatalf("expected X-Real-IP, got %q", got)
	}

	req.Header.Set("X-Forwarded-For", "192.0.2.1, 10.0.0.1")
	if got := extractClientIP(req); got != "192.0.2.1" {
		t.Fatalf("expected first forwarded entry, got %q", got)
	}
}
