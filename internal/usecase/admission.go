package usecase

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/job-scheduler/internal/adapter/observability"
	"github.com/fairyhunter13/job-scheduler/internal/domain"
	obsctx "github.com/fairyhunter13/job-scheduler/internal/observability"
)

// AdmissionRequest is the parsed body of POST /api/v1/jobs.
type AdmissionRequest struct {
	Frontend     string          `json:"frontend" validate:"required"`
	BotID        string          `json:"bot_id"`
	Capability   string          `json:"capability" validate:"required"`
	UserRef      string          `json:"user_ref" validate:"required"`
	Params       json.RawMessage `json:"params"`
	ReplyContext json.RawMessage `json:"reply_context"`
}

// AdmissionResult is the acknowledgement returned to the caller on success.
type AdmissionResult struct {
	JobID                string        `json:"job_id"`
	Status               string        `json:"status"`
	QueuePosition        int64         `json:"queue_position"`
	EstimatedTimeSeconds int64         `json:"estimated_time_seconds"`
	CostTokens           domain.Tokens `json:"cost_tokens"`
}

// AdmissionService implements the quota-gated job admission path, SPEC_FULL.md §4.3.
type AdmissionService struct {
	Store          domain.Store
	PerJobEstimate time.Duration
}

// NewAdmissionService constructs an AdmissionService.
func NewAdmissionService(store domain.Store, perJobEstimate time.Duration) AdmissionService {
	return AdmissionService{Store: store, PerJobEstimate: perJobEstimate}
}

// Admit runs the admission algorithm and either creates a QUEUED job or
// returns ErrQuotaExceeded/ErrInvalidArgument without mutating state.
func (s AdmissionService) Admit(ctx domain.Context, req AdmissionRequest) (AdmissionResult, error) {
	tracer := otel.Tracer("usecase.admission")
	ctx, span := tracer.Start(ctx, "AdmissionService.Admit")
	defer span.End()
	lg := obsctx.LoggerFromContext(ctx)

	if req.Frontend == "" || req.UserRef == "" {
		return AdmissionResult{}, fmt.Errorf("%w: frontend and user_ref are required", domain.ErrInvalidArgument)
	}
	capability := domain.Capability(req.Capability)
	if !domain.ValidCapability(capability) {
		return AdmissionResult{}, fmt.Errorf("%w: unsupported capability %q", domain.ErrInvalidArgument, req.Capability)
	}
	idx := strings.LastIndex(req.UserRef, ":")
	if idx < 0 {
		return AdmissionResult{}, fmt.Errorf("%w: malformed user_ref %q", domain.ErrInvalidArgument, req.UserRef)
	}
	uid := req.UserRef[idx+1:]
	if uid == "" {
		return AdmissionResult{}, fmt.Errorf("%w: malformed user_ref %q", domain.ErrInvalidArgument, req.UserRef)
	}
	platform := req.Frontend

	user, err := s.Store.GetOrCreateUser(ctx, platform, uid, "")
	if err != nil {
		return AdmissionResult{}, fmt.Errorf("op=admission.get_or_create_user: %w", err)
	}

	today := time.Now().UTC().Truncate(24 * time.Hour)
	usage, err := s.Store.GetUsage(ctx, user.ID, today)
	if err != nil {
		return AdmissionResult{}, fmt.Errorf("op=admission.get_usage: %w", err)
	}

	cost := costOf(capability, req.Params)
	if usage.TokensUsed+cost > user.Plan.DailyTokenLimit {
		lg.Info("admission quota exceeded",
			slog.String("user_id", user.ID),
			slog.String("capability", string(capability)),
			slog.String("tokens_used", usage.TokensUsed.String()),
			slog.String("cost", cost.String()),
			slog.String("limit", user.Plan.DailyTokenLimit.String()))
		return AdmissionResult{}, fmt.Errorf("op=admission.quota: %w", domain.ErrQuotaExceeded)
	}

	now := time.Now().UTC()
	job := domain.Job{
		UserID:       user.ID,
		Frontend:     req.Frontend,
		BotID:        req.BotID,
		Capability:   capability,
		Status:       domain.JobCreated,
		Priority:     user.Plan.Priority,
		Params:       req.Params,
		CostTokens:   cost,
		ReplyContext: req.ReplyContext,
		CreatedAt:    now,
	}
	jobID, err := s.Store.CreateJob(ctx, job)
	if err != nil {
		return AdmissionResult{}, fmt.Errorf("op=admission.create_job: %w", err)
	}

	queuedAt := time.Now().UTC()
	ok, err := s.Store.TransitionJob(ctx, jobID, domain.JobCreated, domain.JobQueued, domain.JobUpdate{QueuedAt: &queuedAt})
	if err != nil {
		return AdmissionResult{}, fmt.Errorf("op=admission.transition_queued: %w", err)
	}
	if !ok {
		return AdmissionResult{}, fmt.Errorf("op=admission.transition_queued: %w: job %s not in CREATED state", domain.ErrInternal, jobID)
	}

	position, err := s.Store.CountQueuedAhead(ctx, jobID)
	if err != nil {
		return AdmissionResult{}, fmt.Errorf("op=admission.count_queued_ahead: %w", err)
	}

	lg.Info("job admitted",
		slog.String("job_id", jobID),
		slog.String("user_id", user.ID),
		slog.String("capability", string(capability)),
		slog.Int64("queue_position", position),
		slog.String("cost_tokens", cost.String()))
	observability.AdmitJob(string(capability))

	return AdmissionResult{
		JobID:                jobID,
		Status:               string(domain.JobQueued),
		QueuePosition:        position,
		EstimatedTimeSeconds: int64((position + 1)) * int64(s.PerJobEstimate.Seconds()),
		CostTokens:           cost,
	}, nil
}
