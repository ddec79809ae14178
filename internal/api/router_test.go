package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/chatdeck/internal/api/middleware"
	"github.com/eldtechnologies/chatdeck/internal/auth"
	"github.com/eldtechnologies/chatdeck/internal/config"
	"github.com/eldtechnologies/chatdeck/internal/crypto"
	"github.com/eldtechnologies/chatdeck/internal/realtime"
	"github.com/eldtechnologies/chatdeck/internal/store"
	"github.com/eldtechnologies/chatdeck/internal/telemetry"
)

const sessionCookie = "test_session"

type stubVerifier struct{}

func (stubVerifier) Provider() string      { return "test" }
func (stubVerifier) CookieNames() []string { return []string{sessionCookie} }

func (stubVerifier) Verify(token string) (*auth.Identity, error) {
	if token != "valid" {
		return nil, auth.ErrInvalidSession
	}
	return &auth.Identity{Provider: "test", Subject: "user_1", Email: "user@example.com"}, nil
}

func newTestRouter(t *testing.T, cfg *config.Config) http.Handler {
	t.Helper()

	data, err := store.NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "router.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(data.Close)
	live := store.NewMemoryStore()

	signer, err := crypto.NewCSRFSigner("router-secret")
	if err != nil {
		t.Fatal(err)
	}

	logger := zerolog.Nop()
	return NewRouter(logger, Services{
		Config:    cfg,
		Data:      data,
		Live:      live,
		Hub:       realtime.NewHub(live, logger, cfg.AllowedOrigins),
		CSRF:      signer,
		Verifier:  stubVerifier{},
		Reporter:  telemetry.Nop(logger),
		Analytics: telemetry.NopAnalytics(),
	})
}

func baseConfig() *config.Config {
	return &config.Config{
		Env:            "development",
		AuthProvider:   "test",
		SignInURL:      "https://accounts.example.com/sign-in",
		ProtectedPaths: []string{"/chat", "/settings"},
		AllowedOrigins: []string{"http://localhost:3000"},
	}
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestBackendProxy(t *testing.T) {
	var gotPath, gotCookie, gotBody string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.RequestURI()
		if c, err := r.Cookie(sessionCookie); err == nil {
			gotCookie = c.Value
		}
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.Header().Set("X-Upstream", "yes")
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("from backend"))
	}))
	defer backend.Close()

	cfg := baseConfig()
	cfg.BackendURL = backend.URL
	router := newTestRouter(t, cfg)

	req := httptest.NewRequest(http.MethodPost, "/api/completions?stream=1", strings.NewReader("prompt"))
	req.Header.Set("Content-Type", "text/plain")
	req.AddCookie(&http.Cookie{Name: sessionCookie, Value: "valid"})
	rec := serve(router, req)

	if rec.Code != http.StatusTeapot {
		t.Fatalf("expected upstream status 418, got %d", rec.Code)
	}
	if rec.Body.String() != "from backend" || rec.Header().Get("X-Upstream") != "yes" {
		t.Fatalf("response not relayed: %q %v", rec.Body.String(), rec.Header())
	}
	if gotPath != "/completions?stream=1" {
		t.Fatalf("expected /api prefix stripped, got %q", gotPath)
	}
	if gotCookie != "valid" || gotBody != "prompt" {
		t.Fatalf("request not forwarded intact: cookie=%q body=%q", gotCookie, gotBody)
	}
}

func TestBackendNotConfigured(t *testing.T) {
	router := newTestRouter(t, baseConfig())

	rec := serve(router, httptest.NewRequest(http.MethodGet, "/api/models", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil || body["error"] == "" {
		t.Fatalf("expected JSON error, got %q", rec.Body.String())
	}
}

func TestBackendUnreachable(t *testing.T) {
	backend := httptest.NewServer(http.NotFoundHandler())
	backend.Close()

	cfg := baseConfig()
	cfg.BackendURL = backend.URL
	router := newTestRouter(t, cfg)

	rec := serve(router, httptest.NewRequest(http.MethodGet, "/api/models", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestGatewaySessionAndCSRF(t *testing.T) {
	router := newTestRouter(t, baseConfig())

	// Unauthenticated
	req := httptest.NewRequest(http.MethodPost, "/api/chats", strings.NewReader(`{"model":"m"}`))
	req.Header.Set("Content-Type", "application/json")
	if rec := serve(router, req); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	// Fetch a CSRF token
	rec := serve(router, httptest.NewRequest(http.MethodGet, "/api/csrf", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from /api/csrf, got %d", rec.Code)
	}
	var tok struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&tok); err != nil {
		t.Fatal(err)
	}

	// Session without CSRF header
	req = httptest.NewRequest(http.MethodPost, "/api/chats", strings.NewReader(`{"model":"m"}`))
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(&http.Cookie{Name: sessionCookie, Value: "valid"})
	req.AddCookie(&http.Cookie{Name: middleware.CSRFCookie, Value: tok.Token})
	if rec := serve(router, req); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}

	// Session with matching CSRF pair
	req = httptest.NewRequest(http.MethodPost, "/api/chats", strings.NewReader(`{"model":"m"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.CSRFHeader, tok.Token)
	req.AddCookie(&http.Cookie{Name: sessionCookie, Value: "valid"})
	req.AddCookie(&http.Cookie{Name: middleware.CSRFCookie, Value: tok.Token})
	rec = serve(router, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatal("expected security headers on gateway routes")
	}

	// Reads only need the session
	req = httptest.NewRequest(http.MethodGet, "/api/chats", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookie, Value: "valid"})
	if rec := serve(router, req); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestGatewayBodyLimit(t *testing.T) {
	router := newTestRouter(t, baseConfig())

	body := `{"model":"` + strings.Repeat("m", middleware.MaxGatewayBody) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/chats", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if rec := serve(router, req); rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rec.Code)
	}
}

func TestFrontendPageGate(t *testing.T) {
	frontend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("page " + r.URL.Path))
	}))
	defer frontend.Close()

	cfg := baseConfig()
	cfg.FrontendURL = frontend.URL
	router := newTestRouter(t, cfg)

	req := httptest.NewRequest(http.MethodGet, "/pricing", nil)
	req.Header.Set("Accept", "text/html")
	rec := serve(router, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "page /pricing" {
		t.Fatalf("expected public page, got %d %q", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/chat/42", nil)
	req.Header.Set("Accept", "text/html")
	rec = serve(router, req)
	if rec.Code != http.StatusFound {
		t.Fatalf("expected redirect, got %d", rec.Code)
	}
	want := "https://accounts.example.com/sign-in?redirect_url=%2Fchat%2F42"
	if loc := rec.Header().Get("Location"); loc != want {
		t.Fatalf("expected %s, got %s", want, loc)
	}

	req = httptest.NewRequest(http.MethodGet, "/chat/42", nil)
	req.Header.Set("Accept", "text/html")
	req.AddCookie(&http.Cookie{Name: sessionCookie, Value: "valid"})
	rec = serve(router, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "page /chat/42" {
		t.Fatalf("expected gated page for signed-in user, got %d %q", rec.Code, rec.Body.String())
	}
}

func TestHealthAndMetrics(t *testing.T) {
	router := newTestRouter(t, baseConfig())

	if rec := serve(router, httptest.NewRequest(http.MethodGet, "/health", nil)); rec.Code != http.StatusOK {
		t.Fatalf("expected healthy, got %d", rec.Code)
	}
	rec := serve(router, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "chatdeck_http_requests_total") {
		t.Fatalf("expected metrics output, got %d", rec.Code)
	}
}
