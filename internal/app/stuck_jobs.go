package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/fairyhunter13/job-scheduler/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// OrphanSweeper periodically finds jobs stuck in RUNNING past the worker
// timeout plus dispatch grace and transitions them to FAILED with code
// ORPHANED. A worker that crashes or loses network mid-job never reports
// back, so nothing else ever resolves these jobs.
type OrphanSweeper struct {
	store    domain.Store
	maxAge   time.Duration
	interval time.Duration
}

// NewOrphanSweeper builds a sweeper. Returns nil if store is nil, so callers
// can skip Run entirely when the sweeper is unconfigured.
func NewOrphanSweeper(store domain.Store, maxAge, interval time.Duration) *OrphanSweeper {
	if store == nil {
		return nil
	}
	if maxAge <= 0 {
		maxAge = 3 * time.Minute
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &OrphanSweeper{store: store, maxAge: maxAge, interval: interval}
}

// Run sweeps immediately, then on every tick of interval, until ctx is done.
func (s *OrphanSweeper) Run(ctx context.Context) {
	if s == nil || s.store == nil {
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweepOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("orphan sweeper stopping")
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *OrphanSweeper) sweepOnce(ctx context.Context) {
	tracer := otel.Tracer("app.sweeper")
	ctx, span := tracer.Start(ctx, "OrphanSweeper.sweepOnce")
	defer span.End()

	cutoff := time.Now().Add(-s.maxAge)
	const pageSize = 100
	span.SetAttributes(
		attribute.Int("sweeper.page_size", pageSize),
		attribute.Float64("sweeper.max_age_seconds", s.maxAge.Seconds()),
	)

	totalChecked := 0
	totalOrphaned := 0

	for offset := 0; ; offset += pageSize {
		jobs, err := s.store.ListJobsByStatus(ctx, domain.JobRunning, offset, pageSize)
		if err != nil {
			span.RecordError(err)
			slog.Error("orphan sweep failed to list running jobs", slog.Any("error", err))
			return
		}
		totalChecked += len(jobs)
		if len(jobs) == 0 {
			break
		}

		for _, j := range jobs {
			started := j.StartedAt
			if started == nil || started.After(cutoff) {
				continue
			}
			now := time.Now().UTC()
			ok, err := s.store.TransitionJob(ctx, j.ID, domain.JobRunning, domain.JobFailed, domain.JobUpdate{
				EndedAt: &now,
				Error: &domain.JobError{
					Code:    "ORPHANED",
					Message: "worker stopped reporting heartbeat before job completion",
				},
			})
			if err != nil {
				slog.Error("orphan sweep failed to transition job", slog.String("job_id", j.ID), slog.Any("error", err))
				continue
			}
			if ok {
				totalOrphaned++
			}
		}

		if len(jobs) < pageSize {
			break
		}
	}

	span.SetAttributes(
		attribute.Int("sweeper.total_checked", totalChecked),
		attribute.Int("sweeper.total_orphaned", totalOrphaned),
	)
}
