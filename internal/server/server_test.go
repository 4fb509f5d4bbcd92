package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/dibas-borborah-interface/mobile-core-v1/internal/api"
	"github.com/dibas-borborah-interface/mobile-core-v1/internal/auth"
	"github.com/dibas-borborah-interface/mobile-core-v1/internal/blob"
	"github.com/dibas-borborah-interface/mobile-core-v1/internal/observability/metrics"
	"github.com/dibas-borborah-interface/mobile-core-v1/internal/storage"
)

func newTestHandler(t *testing.T) *api.Handler {
	t.Helper()
	store := storage.NewMemoryRepository()
	tokens, err := auth.NewTokenIssuer("server-test-secret")
	if err != nil {
		t.Fatalf("NewTokenIssuer: %v", err)
	}
	handler := api.NewHandler(store, tokens, blob.NewMemoryClient(""))
	handler.StagingDir = t.TempDir()
	return handler
}

func newTestServer(t *testing.T, cfg Config) http.Handler {
	t.Helper()
	srv, err := New(newTestHandler(t), cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return srv.Handler()
}

func registerJSON(username, password, company string) *bytes.Reader {
	payload, _ := json.Marshal(map[string]string{
		"username": username,
		"password": password,
		"company":  company,
	})
	return bytes.NewReader(payload)
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var payload map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return payload["error"]
}

func imageBody(t *testing.T, filename string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	header.Set("Content-Type", "image/png")
	part, err := writer.CreatePart(header)
	if err != nil {
		t.Fatalf("CreatePart: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return body, writer.FormDataContentType()
}

func TestServerServesGreeting(t *testing.T) {
	chain := newTestServer(t, Config{})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()

	chain.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte("Hello from Mobile Core API!")) {
		t.Fatalf("unexpected greeting body: %s", rec.Body.String())
	}
}

func TestServerAppliesSecurityHeaders(t *testing.T) {
	chain := newTestServer(t, Config{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	chain.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("expected nosniff, got %q", got)
	}
	if got := rec.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Fatalf("expected DENY, got %q", got)
	}
	if rec.Header().Get("Content-Security-Policy") == "" {
		t.Fatal("expected Content-Security-Policy header")
	}
}

func TestServerRegisterLoginUploadFlow(t *testing.T) {
	chain := newTestServer(t, Config{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/register", registerJSON("founder", "supersecret", "Acme Media"))
	chain.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	loginBody, _ := json.Marshal(map[string]string{"username": "founder", "password": "supersecret"})
	req = httptest.NewRequest(http.MethodPost, "/api/login", bytes.NewReader(loginBody))
	chain.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var login struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &login); err != nil {
		t.Fatalf("decode login body: %v", err)
	}
	if login.AccessToken == "" {
		t.Fatal("expected access token")
	}

	body, contentType := imageBody(t, "logo.png", []byte("png-bytes"))
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/image-upload", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+login.AccessToken)
	chain.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("upload: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestServerGuardsUploadEndpoints(t *testing.T) {
	chain := newTestServer(t, Config{})

	cases := []struct {
		name    string
		header  string
		wantMsg string
	}{
		{name: "missing token", header: "", wantMsg: "Authentication required"},
		{name: "garbage token", header: "Bearer junk", wantMsg: "Invalid authentication token"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for _, path := range []string{"/api/image-upload", "/api/video-upload"} {
				body, contentType := imageBody(t, "logo.png", []byte("png"))
				req := httptest.NewRequest(http.MethodPost, path, body)
				req.Header.Set("Content-Type", contentType)
				if tc.header != "" {
					req.Header.Set("Authorization", tc.header)
				}
				rec := httptest.NewRecorder()
				chain.ServeHTTP(rec, req)
				if rec.Code != http.StatusUnauthorized {
					t.Fatalf("%s: expected 401, got %d: %s", path, rec.Code, rec.Body.String())
				}
				if got := errorMessage(t, rec); got != tc.wantMsg {
					t.Fatalf("%s: expected %q, got %q", path, tc.wantMsg, got)
				}
			}
		})
	}
}

func TestServerLoginAndRegisterStayPublic(t *testing.T) {
	chain := newTestServer(t, Config{})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/register", registerJSON("founder", "supersecret", "Acme Media"))
	chain.ServeHTTP(rec, req)
	if rec.Code == http.StatusUnauthorized {
		t.Fatalf("register must not require authentication: %s", rec.Body.String())
	}
}

func TestServerRateLimitsRegistration(t *testing.T) {
	chain := newTestServer(t, Config{
		RateLimit: RateLimitConfig{RegisterLimit: 1, RegisterWindow: time.Minute},
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/register", registerJSON("first", "supersecret", "First Co"))
	req.Header.Set("X-Forwarded-For", "203.0.113.9")
	chain.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("first register: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/register", registerJSON("second", "supersecret", "Second Co"))
	req.Header.Set("X-Forwarded-For", "203.0.113.9")
	chain.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second register: expected 429, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := errorMessage(t, rec); got != "Too many registration attempts. Please try again later." {
		t.Fatalf("unexpected message: %q", got)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}

	// Another IP keeps its own budget.
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/register", registerJSON("third", "supersecret", "Third Co"))
	req.Header.Set("X-Forwarded-For", "203.0.113.10")
	chain.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("other IP register: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestServerExposesMetricsEndpoint(t *testing.T) {
	recorder := metrics.New()
	srv, err := New(newTestHandler(t), Config{Metrics: recorder})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	chain := srv.Handler()

	rec := httptest.NewRecorder()
	chain.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz: expected 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	chain.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics: expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "text/plain; version=0.0.4" {
		t.Fatalf("unexpected content type: %q", got)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte(`mobile_core_http_requests_total{method="GET",path="/healthz",status="200"} 1`)) {
		t.Fatalf("expected healthz sample in metrics output: %s", rec.Body.String())
	}
}

func TestRouteClass(t *testing.T) {
	cases := []struct {
		method string
		path   string
		want   string
	}{
		{method: http.MethodPost, path: "/api/login", want: "login"},
		{method: http.MethodPost, path: "/api/register", want: "register"},
		{method: http.MethodPost, path: "/api/image-upload", want: "upload"},
		{method: http.MethodPost, path: "/api/video-upload", want: "upload"},
		{method: http.MethodGet, path: "/api/login", want: ""},
		{method: http.MethodPost, path: "/healthz", want: ""},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(tc.method, tc.path, nil)
		if got := routeClass(req); got != tc.want {
			t.Fatalf("%s %s: expected %q, got %q", tc.method, tc.path, tc.want, got)
		}
	}
}

func TestExtractClientIP(t *testing.T) {
	cases := []struct {
		name      string
		configure func(req *http.Request)
		want      string
	}{
		{
			name:      "remote addr",
			configure: func(req *http.Request) { req.RemoteAddr = "198.51.100.7:4711" },
			want:      "198.51.100.7",
		},
		{
			name: "forwarded for wins",
			configure: func(req *http.Request) {
				req.RemoteAddr = "10.0.0.1:80"
				req.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.2")
			},
			want: "203.0.113.5",
		},
		{
			name: "real ip fallback",
			configure: func(req *http.Request) {
				req.RemoteAddr = "10.0.0.1:80"
				req.Header.Set("X-Real-IP", "203.0.113.6")
			},
			want: "203.0.113.6",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			tc.configure(req)
			if got := extractClientIP(req); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestServerShutdownClosesRateLimitStore(t *testing.T) {
	mr := miniredis.RunT(t)
	srv, err := New(newTestHandler(t), Config{RateLimit: RateLimitConfig{RedisAddr: mr.Addr()}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	if _, _, err := srv.rateLimiter.Allow("login", "10.0.0.1"); err == nil {
		t.Fatal("expected window store to be closed after shutdown")
	}
}
