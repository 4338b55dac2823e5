//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ashureev/careportal/internal/app"
	"github.com/ashureev/careportal/internal/config"
	"github.com/ashureev/careportal/internal/domain"
	"github.com/go-chi/chi/v5"
)

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"foo": "bar"}

	JSON(w, http.StatusOK, data)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	var got map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if got["foo"] != "bar" {
		t.Errorf("Expected foo=bar, got %v", got["foo"])
	}
}

func TestFailureStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.Validation("Signature required"), http.StatusBadRequest},
		{&domain.Failure{Kind: domain.KindBackend, Message: "x", Fields: []domain.FieldError{{Field: "a"}}}, http.StatusUnprocessableEntity},
		{&domain.Failure{Kind: domain.KindBackend, Message: "x"}, http.StatusBadGateway},
		{&domain.Failure{Kind: domain.KindUnauthorized, Message: "x"}, http.StatusUnauthorized},
		{&domain.Failure{Kind: domain.KindTransport, Message: "x"}, http.StatusServiceUnavailable},
		{domain.Busy(), http.StatusConflict},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		Failure(w, tt.err)
		if w.Code != tt.want {
			t.Errorf("Failure(%v) status = %d, want %d", tt.err, w.Code, tt.want)
		}
	}
}

type backendStub struct {
	creates atomic.Int32
}

func (b *backendStub) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /login", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"access_token":"T","username":"Pat"}`)
	})
	mux.HandleFunc("GET /agreements", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `[{"id":3,"clt_first_name":"Ann","clt_last_name":"Lee","care_last_name":"Lee","branch_code":"B1","hourly_rate":30}]`)
	})
	mux.HandleFunc("POST /agreements", func(w http.ResponseWriter, _ *http.Request) {
		b.creates.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = io.WriteString(w, `{"detail":[{"loc":["body","clt_first_name"],"msg":"field required"},{"loc":["body","care_last_name"],"msg":"field required"}]}`)
	})
	mux.HandleFunc("GET /agreements/3/pdf", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "%PDF-1.4\n")
	})
	mux.HandleFunc("GET /branches", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `[{"branch_code":"B1","branch_name":"Baltimore","branch_state":"MD"}]`)
	})
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func newConsole(t *testing.T) (*httptest.Server, *backendStub) {
	t.Helper()
	stub := &backendStub{}
	backendSrv := httptest.NewServer(stub.handler())
	t.Cleanup(backendSrv.Close)

	cfg := &config.Config{
		BackendURL: backendSrv.URL,
		DBPath:     filepath.Join(t.TempDir(), "client.db"),
		Timeout:    config.TimeoutConfig{Request: 5 * time.Second, HealthCheck: time.Second},
		Redirect:   config.RedirectConfig{AfterSignup: time.Second, AfterReset: time.Second},
	}
	a, err := app.New(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("app.New failed: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })

	r := chi.NewRouter()
	NewHandler(a).RegisterRoutes(r, nil)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, stub
}

func do(t *testing.T, method, url, body string) (*http.Response, map[string]interface{}) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()

	var out map[string]interface{}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			t.Fatalf("decode %s %s: %v", method, url, err)
		}
	}
	return resp, out
}

func TestConsole_DashboardRequiresSession(t *testing.T) {
	srv, _ := newConsole(t)

	resp, body := do(t, http.MethodGet, srv.URL+"/api/agreements", "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("Expected 401 before login, got %d", resp.StatusCode)
	}
	if body["kind"] != "unauthorized" {
		t.Errorf("unexpected body %v", body)
	}

	resp, body = do(t, http.MethodGet, srv.URL+"/api/view", "")
	if resp.StatusCode != http.StatusOK || body["view"] != "login" {
		t.Fatalf("Expected login view, got %d %v", resp.StatusCode, body)
	}
}

func TestConsole_SwitchView(t *testing.T) {
	srv, _ := newConsole(t)

	resp, body := do(t, http.MethodPost, srv.URL+"/api/view/signup", "")
	if resp.StatusCode != http.StatusOK || body["view"] != "signup" {
		t.Fatalf("Expected signup view, got %d %v", resp.StatusCode, body)
	}
	resp, _ = do(t, http.MethodPost, srv.URL+"/api/view/dashboard", "")
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("Expected 409 for dashboard switch, got %d", resp.StatusCode)
	}
	resp, _ = do(t, http.MethodPost, srv.URL+"/api/view/nowhere", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("Expected 404 for unknown screen, got %d", resp.StatusCode)
	}
}

func TestConsole_ResetPasswordValidation(t *testing.T) {
	srv, _ := newConsole(t)

	resp, body := do(t, http.MethodPost, srv.URL+"/api/auth/reset-password",
		`{"token":"tok","password":"abcdef","confirm_password":"abcdeg"}`)
	if resp.StatusCode != http.StatusBadRequest || body["error"] != "Passwords do not match" {
		t.Fatalf("Expected mismatch error, got %d %v", resp.StatusCode, body)
	}
}

func TestConsole_LoginAndSubmitFlow(t *testing.T) {
	srv, stub := newConsole(t)

	resp, body := do(t, http.MethodPost, srv.URL+"/api/auth/login", `{"identifier":"User@X.com","password":"secret"}`)
	if resp.StatusCode != http.StatusOK || body["view"] != "dashboard" {
		t.Fatalf("Expected dashboard after login, got %d %v", resp.StatusCode, body)
	}

	resp, body = do(t, http.MethodGet, srv.URL+"/api/status", "")
	if resp.StatusCode != http.StatusOK || body["online"] != true {
		t.Fatalf("unexpected status %d %v", resp.StatusCode, body)
	}

	resp, _ = do(t, http.MethodPost, srv.URL+"/api/draft", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("open draft: %d", resp.StatusCode)
	}

	resp, body = do(t, http.MethodPost, srv.URL+"/api/draft/submit", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("Expected validation error without signature, got %d %v", resp.StatusCode, body)
	}
	if stub.creates.Load() != 0 {
		t.Fatal("Expected no create request without a signature")
	}

	resp, _ = do(t, http.MethodPatch, srv.URL+"/api/draft", `{"branch_code":"B1","clt_first_name":"Ann"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("patch draft: %d", resp.StatusCode)
	}
	resp, _ = do(t, http.MethodPut, srv.URL+"/api/draft/signature", `{"strokes":[[{"x":1,"y":1},{"x":9,"y":9}]]}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("put signature: %d", resp.StatusCode)
	}

	resp, body = do(t, http.MethodPost, srv.URL+"/api/draft/submit", "")
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("Expected 422, got %d %v", resp.StatusCode, body)
	}
	msg, _ := body["error"].(string)
	if !strings.Contains(msg, "clt_first_name") || !strings.Contains(msg, "care_last_name") {
		t.Errorf("Expected both field names in %q", msg)
	}

	resp, body = do(t, http.MethodGet, srv.URL+"/api/draft", "")
	if resp.StatusCode != http.StatusOK || body["open"] != true {
		t.Fatalf("Expected draft retained after 422, got %v", body)
	}
}

func TestConsole_DownloadAgreement(t *testing.T) {
	srv, _ := newConsole(t)
	do(t, http.MethodPost, srv.URL+"/api/auth/login", `{"identifier":"u","password":"p"}`)
	do(t, http.MethodGet, srv.URL+"/api/agreements", "")

	resp, err := http.Get(srv.URL + "/api/agreements/3/pdf")
	if err != nil {
		t.Fatalf("GET pdf: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "Agreement_Lee.pdf") {
		t.Errorf("unexpected Content-Disposition %q", cd)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("unexpected Content-Type %q", ct)
	}
}

func TestConsole_LogoutIsIdempotent(t *testing.T) {
	srv, _ := newConsole(t)
	do(t, http.MethodPost, srv.URL+"/api/auth/login", `{"identifier":"u","password":"p"}`)

	for i := 0; i < 2; i++ {
		resp, body := do(t, http.MethodPost, srv.URL+"/api/auth/logout", "")
		if resp.StatusCode != http.StatusOK || body["view"] != "login" {
			t.Fatalf("logout #%d: %d %v", i+1, resp.StatusCode, body)
		}
	}
}
