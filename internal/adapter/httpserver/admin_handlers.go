// Package httpserver contains the Admin API server and HTTP adapters.
package httpserver

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/job-scheduler/internal/config"
	"github.com/fairyhunter13/job-scheduler/internal/domain"
)

// AdminServer handles the admin introspection routes: fleet snapshot and
// job listing by status, SPEC_FULL.md §10.6.
type AdminServer struct {
	cfg            config.Config
	sessionManager *SessionManager
	server         *Server
}

// NewAdminServer creates a new admin server.
func NewAdminServer(cfg config.Config, server *Server) (*AdminServer, error) {
	return &AdminServer{
		cfg:            cfg,
		sessionManager: NewSessionManager(cfg),
		server:         server,
	}, nil
}

// authenticate returns the authenticated admin username, or "" if the
// request carries neither a trusted SSO header nor a valid bearer JWT.
func (a *AdminServer) authenticate(r *http.Request) string {
	if u := getSSOUsernameFromHeaders(r); u != "" {
		return u
	}
	authz := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
		return ""
	}
	token := strings.TrimSpace(authz[len("Bearer "):])
	sub, err := a.sessionManager.ValidateJWT(token)
	if err != nil {
		return ""
	}
	return sub
}

// AdminTokenHandler issues a JWT for the admin API.
func (a *AdminServer) AdminTokenHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tracer := otel.Tracer("http.admin")
		_, span := tracer.Start(r.Context(), "AdminServer.AdminTokenHandler")
		defer span.End()
		lg := LoggerFrom(r)

		var username, password string
		ct := r.Header.Get("Content-Type")
		if strings.HasPrefix(strings.ToLower(ct), "application/json") {
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			username = strings.TrimSpace(body["username"])
			password = strings.TrimSpace(body["password"])
		} else {
			username = strings.TrimSpace(r.FormValue("username"))
			password = strings.TrimSpace(r.FormValue("password"))
		}

		if username != a.cfg.AdminUsername || password != a.cfg.AdminPassword {
			span.SetAttributes(attribute.Bool("auth.success", false))
			http.Error(w, "Invalid credentials", http.StatusUnauthorized)
			lg.Warn("admin token request rejected", slog.String("username", username))
			return
		}

		token, err := a.sessionManager.GenerateJWT(username, 24*time.Hour)
		if err != nil {
			http.Error(w, "Failed to issue token", http.StatusInternalServerError)
			lg.Error("failed to issue admin token", slog.Any("error", err))
			return
		}
		span.SetAttributes(attribute.Bool("auth.success", true), attribute.String("admin.username", username))
		writeJSON(w, http.StatusOK, map[string]any{
			"token":    token,
			"username": username,
			"expires":  time.Now().Add(24 * time.Hour).Unix(),
		})
	}
}

// AdminStatusHandler confirms the caller's admin session is valid.
func (a *AdminServer) AdminStatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		username := a.authenticate(r)
		if username == "" {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "authenticated", "username": username})
	}
}

// AdminFleetHandler returns every known worker, GET /admin/api/fleet.
func (a *AdminServer) AdminFleetHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if a.authenticate(r) == "" {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		workers := a.server.Registry.Snapshot()
		out := make([]map[string]any, 0, len(workers))
		for _, w := range workers {
			caps := make([]string, 0, len(w.Capabilities))
			for c := range w.Capabilities {
				caps = append(caps, string(c))
			}
			out = append(out, map[string]any{
				"id":                w.ID,
				"base_url":          w.BaseURL,
				"capabilities":      caps,
				"status":            string(w.Status),
				"loaded_models":     w.LoadedModels,
				"last_heartbeat_at": w.LastHeartbeatAt,
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{"workers": out})
	}
}

// AdminJobsHandler returns a page of jobs filtered by status, GET
// /admin/api/jobs?status=QUEUED&page=&limit=.
func (a *AdminServer) AdminJobsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tracer := otel.Tracer("http.admin")
		ctx, span := tracer.Start(r.Context(), "AdminServer.AdminJobsHandler")
		defer span.End()

		if a.authenticate(r) == "" {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		status := SanitizeString(r.URL.Query().Get("status"))
		if validation := ValidateStatus(status); !validation.Valid {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": map[string]any{"code": "VALIDATION_ERROR", "details": validation.Errors}})
			return
		}
		if status == "" {
			status = string(domain.JobQueued)
		}

		page, limit := 1, 20
		if p, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && p > 0 {
			page = p
		}
		if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 && l <= 100 {
			limit = l
		}
		span.SetAttributes(attribute.String("job.status_filter", status))

		jobs, err := a.server.Store.ListJobsByStatus(ctx, domain.JobStatus(status), (page-1)*limit, limit)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": map[string]any{"code": "INTERNAL", "message": err.Error()}})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs, "page": page, "limit": limit})
	}
}

// MountAdmin mounts the admin introspection routes under /admin, gated by
// AdminEnabled().
func (s *Server) MountAdmin(r chi.Router) {
	if !s.Cfg.AdminEnabled() {
		return
	}
	admin, err := NewAdminServer(s.Cfg, s)
	if err != nil {
		return
	}
	r.Post("/admin/token", admin.AdminTokenHandler())
	r.Get("/admin/api/status", admin.AdminStatusHandler())
	r.Get("/admin/api/fleet", admin.AdminFleetHandler())
	r.Get("/admin/api/jobs", admin.AdminJobsHandler())
	r.Get("/admin/api/jobs/{id}", admin.AdminJobDetailsHandler())
}

// AdminJobDetailsHandler returns one job plus its artifacts, GET /admin/api/jobs/{id}.
func (a *AdminServer) AdminJobDetailsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if a.authenticate(r) == "" {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		jobID := SanitizeJobID(chi.URLParam(r, "id"))
		if validation := ValidateJobID(jobID); !validation.Valid {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": map[string]any{"code": "VALIDATION_ERROR", "details": validation.Errors}})
			return
		}

		view, err := a.server.Status.GetJob(r.Context(), jobID)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}
