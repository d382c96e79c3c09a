// Package httpserver contains HTTP handlers and middleware.
//
// It exposes the admission, heartbeat, and status endpoints described in
// SPEC_FULL.md §6, and follows clean architecture principles: a thin layer
// translating HTTP concerns onto the usecase package.
package httpserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/fairyhunter13/job-scheduler/internal/config"
	"github.com/fairyhunter13/job-scheduler/internal/domain"
	"github.com/fairyhunter13/job-scheduler/internal/usecase"
)

// Server aggregates handler dependencies.
type Server struct {
	Cfg       config.Config
	Admission usecase.AdmissionService
	Status    usecase.StatusService
	Registry  domain.WorkerRegistry
	Store     domain.Store
	DBCheck   func(ctx context.Context) error
}

// NewServer constructs an HTTP server with all handlers wired.
func NewServer(cfg config.Config, admission usecase.AdmissionService, status usecase.StatusService, registry domain.WorkerRegistry, store domain.Store, dbCheck func(context.Context) error) *Server {
	return &Server{Cfg: cfg, Admission: admission, Status: status, Registry: registry, Store: store, DBCheck: dbCheck}
}

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() { vld = validator.New() })
	return vld
}

// allowedAttachmentMIME enforces an allowlist for params.attachment_base64
// payloads, sniffed from decoded content rather than trusted from the caller.
func allowedAttachmentMIME(m string) bool {
	m = strings.ToLower(m)
	switch {
	case strings.HasPrefix(m, "image/"):
		return true
	case strings.HasPrefix(m, "audio/"):
		return true
	case strings.HasPrefix(m, "video/"):
		return true
	case strings.HasPrefix(m, "text/plain"):
		return true
	}
	return false
}

// validateAttachment sniffs params.attachment_base64, if present, and
// rejects the request if its decoded content-type is not allowlisted.
func validateAttachment(params json.RawMessage) error {
	if len(params) == 0 {
		return nil
	}
	var body struct {
		AttachmentBase64 string `json:"attachment_base64"`
	}
	if err := json.Unmarshal(params, &body); err != nil || body.AttachmentBase64 == "" {
		return nil
	}
	data, err := base64.StdEncoding.DecodeString(body.AttachmentBase64)
	if err != nil {
		return fmt.Errorf("%w: params.attachment_base64 is not valid base64", domain.ErrInvalidArgument)
	}
	mt := mimetype.Detect(data)
	if !allowedAttachmentMIME(mt.String()) {
		return fmt.Errorf("%w: unsupported attachment content-type %q", domain.ErrInvalidArgument, mt.String())
	}
	return nil
}

// AdmitJobHandler handles POST /api/v1/jobs, SPEC_FULL.md §6.
func (s *Server) AdmitJobHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB
		var req usecase.AdmissionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, fmt.Errorf("%w: invalid json", domain.ErrInvalidArgument), nil)
			return
		}
		if err := getValidator().Struct(req); err != nil {
			verrs := map[string]string{}
			if ve, ok := err.(validator.ValidationErrors); ok {
				for _, fe := range ve {
					verrs[strings.ToLower(fe.Field())] = fe.Tag()
				}
			}
			writeError(w, r, fmt.Errorf("%w: validation failed", domain.ErrInvalidArgument), verrs)
			return
		}
		if err := validateAttachment(req.Params); err != nil {
			writeError(w, r, err, nil)
			return
		}

		result, err := s.Admission.Admit(r.Context(), req)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

// GetJobHandler handles GET /api/v1/jobs/{id}, SPEC_FULL.md §4.6.
func (s *Server) GetJobHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id == "" {
			writeError(w, r, fmt.Errorf("%w: id missing", domain.ErrInvalidArgument), nil)
			return
		}
		view, err := s.Status.GetJob(r.Context(), id)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

type heartbeatRequest struct {
	WorkerID     string   `json:"worker_id" validate:"required"`
	URL          string   `json:"url" validate:"required"`
	Capabilities []string `json:"capabilities" validate:"required,min=1"`
}

// HeartbeatHandler handles POST /api/internal/heartbeat, SPEC_FULL.md §4.5.
func (s *Server) HeartbeatHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, 1<<16)
		var req heartbeatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, fmt.Errorf("%w: invalid json", domain.ErrInvalidArgument), nil)
			return
		}
		if err := getValidator().Struct(req); err != nil {
			writeError(w, r, fmt.Errorf("%w: validation failed", domain.ErrInvalidArgument), nil)
			return
		}

		caps := make([]domain.Capability, 0, len(req.Capabilities))
		for _, c := range req.Capabilities {
			cap := domain.Capability(c)
			if !domain.ValidCapability(cap) {
				writeError(w, r, fmt.Errorf("%w: unknown capability %q", domain.ErrInvalidArgument, c), nil)
				return
			}
			caps = append(caps, cap)
		}

		s.Registry.Register(req.WorkerID, req.URL, caps)
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// GetUsageHandler handles GET /api/v1/users/{platform}/{uid}/usage, the
// expansion's usage-snapshot endpoint.
func (s *Server) GetUsageHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		platform := chi.URLParam(r, "platform")
		uid := chi.URLParam(r, "uid")
		if platform == "" || uid == "" {
			writeError(w, r, fmt.Errorf("%w: platform and uid required", domain.ErrInvalidArgument), nil)
			return
		}
		user, err := s.Store.GetOrCreateUser(r.Context(), platform, uid, "")
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		view, err := s.Status.GetUsage(r.Context(), user)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

// ReadyzHandler probes the Store for readiness.
func (s *Server) ReadyzHandler() http.HandlerFunc {
	type check struct {
		Name    string `json:"name"`
		OK      bool   `json:"ok"`
		Details string `json:"details"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		checks := make([]check, 0, 1)
		if s.DBCheck != nil {
			if err := s.DBCheck(ctx); err != nil {
				checks = append(checks, check{Name: "store", OK: false, Details: err.Error()})
			} else {
				checks = append(checks, check{Name: "store", OK: true})
			}
		}
		ok := true
		for _, c := range checks {
			if !c.OK {
				ok = false
				break
			}
		}
		st := http.StatusOK
		if !ok {
			st = http.StatusServiceUnavailable
		}
		writeJSON(w, st, map[string]any{"checks": checks})
	}
}

// LivezHandler is an unconditional liveness probe.
func (s *Server) LivezHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
