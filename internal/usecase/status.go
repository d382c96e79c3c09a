package usecase

import (
	"fmt"
	"time"

	"github.com/fairyhunter13/job-scheduler/internal/domain"
)

// JobView is the read-side projection returned by the Status API, SPEC_FULL.md §4.6.
type JobView struct {
	ID                   string            `json:"id"`
	UserID               string            `json:"user_id"`
	Frontend             string            `json:"frontend"`
	BotID                string            `json:"bot_id,omitempty"`
	Capability           domain.Capability `json:"capability"`
	Status               domain.JobStatus  `json:"status"`
	Priority             int               `json:"priority"`
	CostTokens           domain.Tokens     `json:"cost_tokens"`
	WorkerID             string            `json:"worker_id,omitempty"`
	CreatedAt            time.Time         `json:"created_at"`
	QueuedAt             *time.Time        `json:"queued_at,omitempty"`
	StartedAt            *time.Time        `json:"started_at,omitempty"`
	EndedAt              *time.Time        `json:"ended_at,omitempty"`
	ExecutionTimeSeconds *float64          `json:"execution_time_seconds,omitempty"`
	Error                *domain.JobError  `json:"error,omitempty"`
	QueuePosition        *int64            `json:"queue_position,omitempty"`
	Artifacts            []domain.Artifact `json:"artifacts,omitempty"`
}

// UsageView is the daily usage snapshot returned by the expansion's usage endpoint.
type UsageView struct {
	UserID        string        `json:"user_id"`
	Date          time.Time     `json:"date"`
	TokensUsed    domain.Tokens `json:"tokens_used"`
	JobsCompleted int64         `json:"jobs_completed"`
	DailyLimit    domain.Tokens `json:"daily_limit"`
}

// StatusService implements the job-read and usage-snapshot paths.
type StatusService struct {
	Store domain.Store
}

// NewStatusService constructs a StatusService.
func NewStatusService(store domain.Store) StatusService {
	return StatusService{Store: store}
}

// GetJob returns the projection for job id, including queue position if
// QUEUED and artifacts if COMPLETED. Returns domain.ErrNotFound if unknown.
func (s StatusService) GetJob(ctx domain.Context, jobID string) (JobView, error) {
	job, err := s.Store.GetJob(ctx, jobID)
	if err != nil {
		return JobView{}, fmt.Errorf("op=status.get_job: %w", err)
	}

	view := JobView{
		ID:                   job.ID,
		UserID:               job.UserID,
		Frontend:             job.Frontend,
		BotID:                job.BotID,
		Capability:           job.Capability,
		Status:               job.Status,
		Priority:             job.Priority,
		CostTokens:           job.CostTokens,
		WorkerID:             job.WorkerID,
		CreatedAt:            job.CreatedAt,
		QueuedAt:             job.QueuedAt,
		StartedAt:            job.StartedAt,
		EndedAt:              job.EndedAt,
		ExecutionTimeSeconds: job.ExecutionTimeSeconds,
		Error:                job.Error,
	}

	if job.Status == domain.JobQueued {
		position, err := s.Store.CountQueuedAhead(ctx, jobID)
		if err != nil {
			return JobView{}, fmt.Errorf("op=status.count_queued_ahead: %w", err)
		}
		view.QueuePosition = &position
	}

	if job.Status == domain.JobCompleted {
		artifacts, err := s.Store.ListArtifacts(ctx, jobID)
		if err != nil {
			return JobView{}, fmt.Errorf("op=status.list_artifacts: %w", err)
		}
		view.Artifacts = artifacts
	}

	return view, nil
}

// GetUsage returns today's usage snapshot for a user, including their plan's
// daily limit for client-side quota display.
func (s StatusService) GetUsage(ctx domain.Context, user domain.User) (UsageView, error) {
	today := time.Now().UTC().Truncate(24 * time.Hour)
	usage, err := s.Store.GetUsage(ctx, user.ID, today)
	if err != nil {
		return UsageView{}, fmt.Errorf("op=status.get_usage: %w", err)
	}
	return UsageView{
		UserID:        usage.UserID,
		Date:          usage.Date,
		TokensUsed:    usage.TokensUsed,
		JobsCompleted: usage.JobsCompleted,
		DailyLimit:    user.Plan.DailyTokenLimit,
	}, nil
}
