// Package domain defines core entities, ports, and domain-specific errors
// for the job scheduling subsystem.
package domain

import (
	"context"
	"errors"
	"time"
)

// Context is an alias kept for parity with the rest of the codebase's call
// signatures.
type Context = context.Context

// Error taxonomy (sentinels). Each maps to exactly one HTTP status and one
// dispatcher-facing error kind; see httpserver.writeError.
var (
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflict")
	ErrQuotaExceeded    = errors.New("quota exceeded")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrDispatch         = errors.New("dispatch error")
	ErrWorkerFailure    = errors.New("worker reported failure")
	ErrOrphaned         = errors.New("job orphaned by restart")
	ErrInternal         = errors.New("internal error")
)

// Capability enumerates the workload kinds a job or worker may carry.
type Capability string

// Supported capabilities.
const (
	CapabilityImage Capability = "image"
	CapabilityText  Capability = "text"
	CapabilityAudio Capability = "audio"
	CapabilityVideo Capability = "video"
)

// ValidCapability reports whether c is one of the supported capabilities.
func ValidCapability(c Capability) bool {
	switch c {
	case CapabilityImage, CapabilityText, CapabilityAudio, CapabilityVideo:
		return true
	default:
		return false
	}
}

// JobStatus captures the lifecycle state of a scheduled job.
type JobStatus string

// Job status values, forming the state machine described in §3 of the spec.
const (
	JobCreated   JobStatus = "CREATED"
	JobQueued    JobStatus = "QUEUED"
	JobRunning   JobStatus = "RUNNING"
	JobCompleted JobStatus = "COMPLETED"
	JobFailed    JobStatus = "FAILED"
	JobCancelled JobStatus = "CANCELLED"
)

// Terminal reports whether a status can never transition further.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobCompleted, JobFailed, JobCancelled:
		return true
	default:
		return false
	}
}

// PriorityOrder is the dispatch priority sweep order, highest first.
var PriorityOrder = [4]int{3, 2, 1, 0}

// Plan is an immutable, seeded quota/priority tier.
type Plan struct {
	ID              int64
	Name            string
	DailyTokenLimit Tokens
	Priority        int
}

// DefaultPlanID is the plan assigned to users that have no explicit plan.
const DefaultPlanID int64 = 1

// User is a lazily-created caller identity, unique on (platform, platform_user_id).
type User struct {
	ID             string
	Platform       string
	PlatformUserID string
	PlanID         int64
	Plan           Plan
	IPAddress      string
	CreatedAt      time.Time
}

// JobError is the structured error payload recorded on a FAILED job.
type JobError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Job is the central scheduled unit of work.
type Job struct {
	ID                   string
	UserID               string
	Frontend             string
	BotID                string
	Capability           Capability
	Status               JobStatus
	Priority             int
	Params               []byte // opaque JSON blob, never introspected beyond Capability
	CostTokens           Tokens
	ReplyContext         []byte // opaque JSON blob
	WorkerID             string
	CreatedAt            time.Time
	QueuedAt             *time.Time
	StartedAt            *time.Time
	EndedAt              *time.Time
	ExecutionTimeSeconds *float64
	Error                *JobError
	Metadata             []byte // opaque JSON blob
}

// Artifact is an output produced by a worker on job completion.
type Artifact struct {
	ID        string
	JobID     string
	Type      Capability
	LocalPath string
	PublicURL string
	Format    string
	Metadata  []byte
}

// UsageDaily is the per-user, per-UTC-day token/usage counter.
type UsageDaily struct {
	UserID        string
	Date          time.Time // truncated to UTC midnight
	TokensUsed    Tokens
	JobsCompleted int64
}

// WorkerStatus is the in-memory assignment state of a registered worker.
type WorkerStatus string

// Worker assignment states.
const (
	WorkerIdle WorkerStatus = "idle"
	WorkerBusy WorkerStatus = "busy"
)

// Worker is an in-memory-only record of a registered GPU worker process.
// Rebuilt entirely from heartbeats after a scheduler restart.
type Worker struct {
	ID              string
	BaseURL         string
	Capabilities    map[Capability]struct{}
	Status          WorkerStatus
	LoadedModels    []string
	LastHeartbeatAt time.Time
}

// HasCapability reports whether w advertises capability c.
func (w Worker) HasCapability(c Capability) bool {
	_, ok := w.Capabilities[c]
	return ok
}
