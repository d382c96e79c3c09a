package httpserver_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fairyhunter13/job-scheduler/internal/adapter/httpserver"
	"github.com/fairyhunter13/job-scheduler/internal/adapter/registry"
	"github.com/fairyhunter13/job-scheduler/internal/config"
	"github.com/fairyhunter13/job-scheduler/internal/domain"
	"github.com/fairyhunter13/job-scheduler/internal/usecase"
)

func newAdminTestServer(t *testing.T) (*httpserver.AdminServer, *httpserver.Server, domain.WorkerRegistry) {
	t.Helper()
	store := newFakeStore(testPlan())
	reg := registry.NewMemory(time.Minute)
	admission := usecase.NewAdmissionService(store, time.Second)
	status := usecase.NewStatusService(store)
	cfg := config.Config{AdminUsername: "admin", AdminPassword: "s3cret", AdminSessionSecret: "topsecret"}
	srv := httpserver.NewServer(cfg, admission, status, reg, store, func(context.Context) error { return nil })
	admin, err := httpserver.NewAdminServer(cfg, srv)
	if err != nil {
		t.Fatalf("NewAdminServer: %v", err)
	}
	return admin, srv, reg
}

func issueAdminToken(t *testing.T, admin *httpserver.AdminServer) string {
	t.Helper()
	form := url.Values{"username": {"admin"}, "password": {"s3cret"}}
	r := httptest.NewRequest(http.MethodPost, "/admin/token", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	admin.AdminTokenHandler()(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("token issuance failed: %d %s", w.Code, w.Body.String())
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode token response: %v", err)
	}
	tok, _ := body["token"].(string)
	if tok == "" {
		t.Fatalf("expected non-empty token")
	}
	return tok
}

func TestAdminTokenHandler_InvalidCredentials(t *testing.T) {
	admin, _, _ := newAdminTestServer(t)
	form := url.Values{"username": {"admin"}, "password": {"wrong"}}
	r := httptest.NewRequest(http.MethodPost, "/admin/token", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	admin.AdminTokenHandler()(w, r)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestAdminFleetHandler_RequiresAuth(t *testing.T) {
	admin, _, _ := newAdminTestServer(t)
	r := httptest.NewRequest(http.MethodGet, "/admin/api/fleet", nil)
	w := httptest.NewRecorder()
	admin.AdminFleetHandler()(w, r)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestAdminFleetHandler_ReturnsWorkers(t *testing.T) {
	admin, _, reg := newAdminTestServer(t)
	reg.Register("w1", "http://worker1", []domain.Capability{domain.CapabilityImage})
	tok := issueAdminToken(t, admin)

	r := httptest.NewRequest(http.MethodGet, "/admin/api/fleet", nil)
	r.Header.Set("Authorization", "Bearer "+tok)
	w := httptest.NewRecorder()
	admin.AdminFleetHandler()(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var body struct {
		Workers []map[string]any `json:"workers"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Workers) != 1 {
		t.Fatalf("expected 1 worker, got %d", len(body.Workers))
	}
}

func TestAdminJobsHandler_FiltersByStatus(t *testing.T) {
	admin, srv, _ := newAdminTestServer(t)
	if _, err := srv.Store.CreateJob(context.Background(), domain.Job{UserID: "u1", Frontend: "telegram", Capability: domain.CapabilityImage, Status: domain.JobQueued, CreatedAt: time.Now().UTC()}); err != nil {
		t.Fatalf("create job: %v", err)
	}
	tok := issueAdminToken(t, admin)

	r := httptest.NewRequest(http.MethodGet, "/admin/api/jobs?status=QUEUED", nil)
	r.Header.Set("Authorization", "Bearer "+tok)
	w := httptest.NewRecorder()
	admin.AdminJobsHandler()(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var body struct {
		Jobs []domain.Job `json:"jobs"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Jobs) != 1 {
		t.Fatalf("expected 1 job, got %d", len(body.Jobs))
	}
}

func TestAdminJobsHandler_InvalidStatusFilter(t *testing.T) {
	admin, _, _ := newAdminTestServer(t)
	tok := issueAdminToken(t, admin)

	r := httptest.NewRequest(http.MethodGet, "/admin/api/jobs?status=BOGUS", nil)
	r.Header.Set("Authorization", "Bearer "+tok)
	w := httptest.NewRecorder()
	admin.AdminJobsHandler()(w, r)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestAdminJobDetailsHandler_NotFound(t *testing.T) {
	admin, _, _ := newAdminTestServer(t)
	tok := issueAdminToken(t, admin)

	r := httptest.NewRequest(http.MethodGet, "/admin/api/jobs/missing", nil)
	r.Header.Set("Authorization", "Bearer "+tok)
	rc := chi.NewRouteContext()
	rc.URLParams.Add("id", "missing")
	r = r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rc))
	w := httptest.NewRecorder()
	admin.AdminJobDetailsHandler()(w, r)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestMountAdmin_DisabledWhenNoCredentials(t *testing.T) {
	store := newFakeStore(testPlan())
	reg := registry.NewMemory(time.Minute)
	admission := usecase.NewAdmissionService(store, time.Second)
	status := usecase.NewStatusService(store)
	srv := httpserver.NewServer(config.Config{}, admission, status, reg, store, nil)
	r := chi.NewRouter()
	srv.MountAdmin(r)
}
