package domain

import "time"

//go:generate mockery --name=Store --with-expecter --filename=store_mock.go
//go:generate mockery --name=WorkerRegistry --with-expecter --filename=worker_registry_mock.go
//go:generate mockery --name=WorkerClient --with-expecter --filename=worker_client_mock.go

// JobUpdate carries the optional field updates applied by a TransitionJob
// call. Zero-value pointers mean "leave unchanged".
type JobUpdate struct {
	QueuedAt             *time.Time
	StartedAt            *time.Time
	EndedAt              *time.Time
	WorkerID             *string
	ExecutionTimeSeconds *float64
	Error                *JobError
	Metadata             []byte
}

// Store is the durable persistence port. Every method is atomic with
// respect to the job state machine and usage counters; see SPEC_FULL.md §4.1.
type Store interface {
	// GetOrCreateUser resolves (platform, platformUID) to a User, creating
	// one on the default plan if none exists. Idempotent under concurrency.
	GetOrCreateUser(ctx Context, platform, platformUID, ip string) (User, error)
	// CreateJob inserts a job with caller-supplied status and returns its id.
	CreateJob(ctx Context, j Job) (string, error)
	// TransitionJob compare-and-sets status from -> to, applying upd. Returns
	// false (not an error) if the current status does not equal from.
	TransitionJob(ctx Context, jobID string, from, to JobStatus, upd JobUpdate) (bool, error)
	// ClaimNextQueued atomically selects and claims the highest-priority
	// QUEUED job matching capabilities, oldest created_at first on ties.
	// Returns nil, nil if no matching job is queued.
	ClaimNextQueued(ctx Context, capabilities []Capability, workerID string) (*Job, error)
	// CountQueuedAhead counts QUEUED jobs that would be dispatched before jobID.
	CountQueuedAhead(ctx Context, jobID string) (int64, error)
	// CreateArtifact inserts an artifact and returns its id.
	CreateArtifact(ctx Context, a Artifact) (string, error)
	// ListArtifacts returns all artifacts recorded for a job.
	ListArtifacts(ctx Context, jobID string) ([]Artifact, error)
	// IncrementUsage upserts usage_daily, adding to any existing counters.
	IncrementUsage(ctx Context, userID string, date time.Time, deltaTokens Tokens, deltaJobs int64) error
	// GetUsage returns the usage row for (userID, date), zeroed if absent.
	GetUsage(ctx Context, userID string, date time.Time) (UsageDaily, error)
	// GetJob loads a job by id.
	GetJob(ctx Context, jobID string) (Job, error)
	// ListJobsByStatus returns a page of jobs in the given status, oldest
	// started_at first (jobs without one last), then oldest created_at, for
	// use by the sweeper and admin introspection.
	ListJobsByStatus(ctx Context, status JobStatus, offset, limit int) ([]Job, error)
}

// WorkerRegistry is the in-memory worker liveness and assignment table.
// All methods must be safe for concurrent use.
type WorkerRegistry interface {
	// Register upserts a worker record and refreshes its heartbeat. A new
	// record starts idle; an existing record's status is preserved.
	Register(workerID, baseURL string, capabilities []Capability)
	// MarkBusy transitions a worker to busy.
	MarkBusy(workerID string)
	// MarkIdle transitions a worker to idle.
	MarkIdle(workerID string)
	// HealthyIdleWorkers returns idle workers whose heartbeat is within TTL.
	HealthyIdleWorkers() []Worker
	// ForgetStale removes workers whose heartbeat is older than 2x TTL.
	ForgetStale(now time.Time)
	// Snapshot returns every known worker, for introspection.
	Snapshot() []Worker
}

// WorkerRunArtifact is one artifact entry in a worker RPC response.
type WorkerRunArtifact struct {
	Type     string
	Path     string
	URL      string
	Metadata []byte
}

// WorkerRunResult is the parsed response of a worker RPC call.
type WorkerRunResult struct {
	Status               string // "completed" | "failed"
	ExecutionTimeSeconds float64
	Artifacts            []WorkerRunArtifact
	ErrorCode            string
	ErrorMessage         string
}

// WorkerClient issues the scheduler -> worker RPC described in SPEC_FULL.md §4.4/§6.
type WorkerClient interface {
	RunJob(ctx Context, w Worker, job Job) (WorkerRunResult, error)
}
