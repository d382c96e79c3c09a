package usecase

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/job-scheduler/internal/adapter/observability"
	"github.com/fairyhunter13/job-scheduler/internal/domain"
	obsctx "github.com/fairyhunter13/job-scheduler/internal/observability"
)

// Dispatcher pairs idle workers from the Registry with the highest-priority
// matching job in the Store, issues the worker RPC, and drives each job to
// a terminal state, SPEC_FULL.md §4.4.
type Dispatcher struct {
	Store    domain.Store
	Registry domain.WorkerRegistry
	Worker   domain.WorkerClient

	IdlePollInterval time.Duration
	ErrorBackoff     time.Duration

	// OnTerminal, if set, is invoked after a job reaches COMPLETED or FAILED.
	// It backs the optional audit-event publisher; nil is a no-op.
	OnTerminal func(job domain.Job)

	wg sync.WaitGroup
}

// Run blocks, driving the dispatch loop until ctx is cancelled. In-flight
// run() tasks are awaited before Run returns.
func (d *Dispatcher) Run(ctx domain.Context) {
	lg := obsctx.LoggerFromContext(ctx)
	for {
		select {
		case <-ctx.Done():
			d.wg.Wait()
			return
		default:
		}

		if !d.tick(ctx, lg) {
			select {
			case <-ctx.Done():
				d.wg.Wait()
				return
			case <-time.After(d.IdlePollInterval):
			}
		}
	}
}

// tick performs one iteration of step 1-4 and reports whether it dispatched
// a job (true means the caller should retry immediately rather than sleep).
func (d *Dispatcher) tick(ctx domain.Context, lg *slog.Logger) (dispatched bool) {
	defer func() {
		if r := recover(); r != nil {
			lg.Error("dispatcher tick panicked", slog.Any("panic", r))
			time.Sleep(d.ErrorBackoff)
		}
	}()

	idle := d.Registry.HealthyIdleWorkers()
	if len(idle) == 0 {
		return false
	}
	w := idle[0]

	caps := make([]domain.Capability, 0, len(w.Capabilities))
	for c := range w.Capabilities {
		caps = append(caps, c)
	}

	job, err := d.Store.ClaimNextQueued(ctx, caps, w.ID)
	if err != nil {
		lg.Error("claim_next_queued failed", slog.String("worker_id", w.ID), slog.Any("error", err))
		time.Sleep(d.ErrorBackoff)
		return false
	}
	if job == nil {
		return false
	}

	d.Registry.MarkBusy(w.ID)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.run(ctx, w, *job)
	}()
	return true
}

// run executes steps a-e of SPEC_FULL.md §4.4 for one claimed job.
func (d *Dispatcher) run(ctx domain.Context, w domain.Worker, job domain.Job) {
	tracer := otel.Tracer("usecase.dispatcher")
	ctx, span := tracer.Start(ctx, "Dispatcher.run")
	defer span.End()
	lg := obsctx.LoggerFromContext(ctx)

	defer d.Registry.MarkIdle(w.ID)
	defer func() {
		if r := recover(); r != nil {
			lg.Error("dispatch run panicked", slog.String("job_id", job.ID), slog.Any("panic", r))
			d.fail(ctx, lg, job, "DISPATCH_ERROR", fmt.Sprintf("panic: %v", r))
		}
	}()
	observability.StartDispatch(string(job.Capability))

	result, err := d.Worker.RunJob(ctx, w, job)
	if err != nil {
		d.fail(ctx, lg, job, "DISPATCH_ERROR", err.Error())
		return
	}
	if result.Status != "completed" {
		code := result.ErrorCode
		if code == "" {
			code = "WORKER_REPORTED_FAILURE"
		}
		d.fail(ctx, lg, job, code, result.ErrorMessage)
		return
	}
	d.complete(ctx, lg, job, result)
}

func (d *Dispatcher) complete(ctx domain.Context, lg *slog.Logger, job domain.Job, result domain.WorkerRunResult) {
	artifactIDs := make([]string, 0, len(result.Artifacts))
	for _, a := range result.Artifacts {
		typ := a.Type
		if typ == "" {
			typ = string(job.Capability)
		}
		id, err := d.Store.CreateArtifact(ctx, domain.Artifact{
			JobID:     job.ID,
			Type:      domain.Capability(typ),
			LocalPath: a.Path,
			PublicURL: a.URL,
			Metadata:  a.Metadata,
		})
		if err != nil {
			lg.Error("create_artifact failed", slog.String("job_id", job.ID), slog.Any("error", err))
			continue
		}
		artifactIDs = append(artifactIDs, id)
	}

	now := time.Now().UTC()
	execSeconds := result.ExecutionTimeSeconds
	meta, _ := json.Marshal(map[string]any{"artifact_ids": artifactIDs})

	ok, err := d.Store.TransitionJob(ctx, job.ID, domain.JobRunning, domain.JobCompleted, domain.JobUpdate{
		EndedAt:              &now,
		ExecutionTimeSeconds: &execSeconds,
		Metadata:             meta,
	})
	if err != nil {
		lg.Error("transition to COMPLETED failed", slog.String("job_id", job.ID), slog.Any("error", err))
		return
	}
	if !ok {
		lg.Info("job already left RUNNING, skipping completion side-effects", slog.String("job_id", job.ID))
		return
	}

	if err := d.Store.IncrementUsage(ctx, job.UserID, now, job.CostTokens, 1); err != nil {
		lg.Error("increment_usage failed", slog.String("job_id", job.ID), slog.Any("error", err))
	}

	observability.CompleteDispatch(string(job.Capability), job.CostTokens.Float64())

	job.Status = domain.JobCompleted
	job.EndedAt = &now
	if d.OnTerminal != nil {
		d.OnTerminal(job)
	}
}

func (d *Dispatcher) fail(ctx domain.Context, lg *slog.Logger, job domain.Job, code, message string) {
	now := time.Now().UTC()
	ok, err := d.Store.TransitionJob(ctx, job.ID, domain.JobRunning, domain.JobFailed, domain.JobUpdate{
		EndedAt: &now,
		Error:   &domain.JobError{Code: code, Message: message},
	})
	if err != nil {
		lg.Error("transition to FAILED failed", slog.String("job_id", job.ID), slog.Any("error", err))
		return
	}
	if !ok {
		lg.Info("job already left RUNNING, skipping fail side-effects", slog.String("job_id", job.ID))
		return
	}
	lg.Warn("job failed", slog.String("job_id", job.ID), slog.String("code", code), slog.String("message", message))
	observability.FailDispatch(string(job.Capability), code)

	job.Status = domain.JobFailed
	job.EndedAt = &now
	job.Error = &domain.JobError{Code: code, Message: message}
	if d.OnTerminal != nil {
		d.OnTerminal(job)
	}
}
