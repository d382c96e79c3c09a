package postgres

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/job-scheduler/internal/domain"
)

// CreateJob inserts a new job and returns its id.
func (s *Store) CreateJob(ctx domain.Context, j domain.Job) (string, error) {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.CreateJob")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "INSERT"),
		attribute.String("db.sql.table", "jobs"),
	)
	id := j.ID
	if id == "" {
		id = uuid.New().String()
	}
	q := `INSERT INTO jobs (id, user_id, frontend, bot_id, capability, status, priority, params, cost_tokens, reply_context, created_at)
	      VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`
	_, err := s.Pool.Exec(ctx, q, id, j.UserID, j.Frontend, nullStr(j.BotID), string(j.Capability), string(j.Status),
		j.Priority, jsonOrEmpty(j.Params), int64(j.CostTokens), jsonOrNil(j.ReplyContext), j.CreatedAt)
	if err != nil {
		return "", fmt.Errorf("op=job.create: %w", err)
	}
	return id, nil
}

// TransitionJob compare-and-sets status from -> to, applying upd. It runs in
// an explicit transaction so the CAS and field update are atomic, mirroring
// the transactional update pattern used throughout this repo layer.
func (s *Store) TransitionJob(ctx domain.Context, jobID string, from, to domain.JobStatus, upd domain.JobUpdate) (bool, error) {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.TransitionJob")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "UPDATE"),
		attribute.String("db.sql.table", "jobs"),
		attribute.String("job.from", string(from)),
		attribute.String("job.to", string(to)),
	)

	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return false, fmt.Errorf("op=job.transition.begin_tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			if rerr := tx.Rollback(ctx); rerr != nil {
				slog.Error("failed to rollback job transition", slog.String("job_id", jobID), slog.Any("error", rerr))
			}
		}
	}()

	var errCode, errMsg *string
	if upd.Error != nil {
		errCode = &upd.Error.Code
		errMsg = &upd.Error.Message
	}
	q := `UPDATE jobs SET status=$3,
	        queued_at=COALESCE($4, queued_at),
	        started_at=COALESCE($5, started_at),
	        ended_at=COALESCE($6, ended_at),
	        worker_id=COALESCE($7, worker_id),
	        execution_time_seconds=COALESCE($8, execution_time_seconds),
	        error_code=COALESCE($9, error_code),
	        error_message=COALESCE($10, error_message),
	        metadata=COALESCE($11, metadata)
	      WHERE id=$1 AND status=$2`
	tag, err := tx.Exec(ctx, q, jobID, string(from), string(to),
		upd.QueuedAt, upd.StartedAt, upd.EndedAt, upd.WorkerID, upd.ExecutionTimeSeconds,
		errCode, errMsg, jsonOrNil(upd.Metadata))
	if err != nil {
		return false, fmt.Errorf("op=job.transition.exec: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("op=job.transition.commit: %w", err)
	}
	committed = true
	return tag.RowsAffected() > 0, nil
}

// ClaimNextQueued atomically selects and claims the highest-priority QUEUED
// job among the given capabilities, oldest created_at first on ties. A single
// UPDATE ... FROM (SELECT ... FOR UPDATE SKIP LOCKED) statement guarantees no
// two concurrent callers ever claim the same row.
func (s *Store) ClaimNextQueued(ctx domain.Context, capabilities []domain.Capability, workerID string) (*domain.Job, error) {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.ClaimNextQueued")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "UPDATE"),
		attribute.String("db.sql.table", "jobs"),
		attribute.String("worker.id", workerID),
	)
	if len(capabilities) == 0 {
		return nil, nil
	}
	caps := make([]string, len(capabilities))
	for i, c := range capabilities {
		caps[i] = string(c)
	}

	now := time.Now().UTC()
	q := `WITH next AS (
	        SELECT id FROM jobs
	        WHERE status = 'QUEUED' AND capability = ANY($1)
	        ORDER BY priority DESC, created_at ASC
	        FOR UPDATE SKIP LOCKED
	        LIMIT 1
	      )
	      UPDATE jobs SET status = 'RUNNING', started_at = $2, worker_id = $3
	      FROM next WHERE jobs.id = next.id
	      RETURNING jobs.id, jobs.user_id, jobs.frontend, COALESCE(jobs.bot_id,''), jobs.capability, jobs.status,
	                jobs.priority, jobs.params, jobs.cost_tokens, jobs.reply_context, jobs.worker_id,
	                jobs.created_at, jobs.queued_at, jobs.started_at, jobs.ended_at`
	row := s.Pool.QueryRow(ctx, q, caps, now, workerID)
	j, err := scanJob(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("op=job.claim_next_queued: %w", err)
	}
	return &j, nil
}

// CountQueuedAhead counts QUEUED jobs that would be dispatched before jobID:
// strictly higher priority, or equal priority and strictly earlier created_at.
func (s *Store) CountQueuedAhead(ctx domain.Context, jobID string) (int64, error) {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.CountQueuedAhead")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.sql.table", "jobs"),
	)
	q := `SELECT COUNT(*) FROM jobs j, (SELECT priority, created_at FROM jobs WHERE id=$1) t
	      WHERE j.status = 'QUEUED' AND (j.priority > t.priority OR (j.priority = t.priority AND j.created_at < t.created_at))`
	row := s.Pool.QueryRow(ctx, q, jobID)
	var n int64
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("op=job.count_queued_ahead: %w", err)
	}
	return n, nil
}

// GetJob loads a job by id.
func (s *Store) GetJob(ctx domain.Context, jobID string) (domain.Job, error) {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.GetJob")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.sql.table", "jobs"),
	)
	q := `SELECT id, user_id, frontend, COALESCE(bot_id,''), capability, status, priority, params, cost_tokens,
	             reply_context, COALESCE(worker_id,''), created_at, queued_at, started_at, ended_at,
	             execution_time_seconds, error_code, error_message
	      FROM jobs WHERE id=$1`
	row := s.Pool.QueryRow(ctx, q, jobID)
	j, err := scanJobWithTerminal(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Job{}, fmt.Errorf("op=job.get: %w", domain.ErrNotFound)
		}
		return domain.Job{}, fmt.Errorf("op=job.get: %w", err)
	}
	return j, nil
}

// ListJobsByStatus returns a page of jobs in the given status, ordered by
// started_at ascending (oldest running first); used by the orphan sweeper
// and admin introspection.
func (s *Store) ListJobsByStatus(ctx domain.Context, status domain.JobStatus, offset, limit int) ([]domain.Job, error) {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.ListJobsByStatus")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.sql.table", "jobs"),
	)
	q := `SELECT id, user_id, frontend, COALESCE(bot_id,''), capability, status, priority, params, cost_tokens,
	             reply_context, COALESCE(worker_id,''), created_at, queued_at, started_at, ended_at,
	             execution_time_seconds, error_code, error_message
	      FROM jobs WHERE status=$1 ORDER BY started_at ASC NULLS LAST, created_at ASC LIMIT $2 OFFSET $3`
	rows, err := s.Pool.Query(ctx, q, string(status), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("op=job.list_by_status: %w", err)
	}
	defer rows.Close()

	var jobs []domain.Job
	for rows.Next() {
		j, err := scanJobWithTerminal(rows)
		if err != nil {
			return nil, fmt.Errorf("op=job.list_by_status_scan: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=job.list_by_status_rows: %w", err)
	}
	return jobs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (domain.Job, error) {
	var j domain.Job
	var cap, status string
	var costTokens int64
	var params, replyCtx []byte
	if err := row.Scan(&j.ID, &j.UserID, &j.Frontend, &j.BotID, &cap, &status, &j.Priority,
		&params, &costTokens, &replyCtx, &j.WorkerID, &j.CreatedAt, &j.QueuedAt, &j.StartedAt, &j.EndedAt); err != nil {
		return domain.Job{}, err
	}
	j.Capability = domain.Capability(cap)
	j.Status = domain.JobStatus(status)
	j.CostTokens = domain.Tokens(costTokens)
	j.Params = params
	j.ReplyContext = replyCtx
	return j, nil
}

func scanJobWithTerminal(row scanner) (domain.Job, error) {
	var j domain.Job
	var cap, status string
	var costTokens int64
	var params, replyCtx []byte
	var execSeconds *float64
	var errCode, errMsg *string
	if err := row.Scan(&j.ID, &j.UserID, &j.Frontend, &j.BotID, &cap, &status, &j.Priority,
		&params, &costTokens, &replyCtx, &j.WorkerID, &j.CreatedAt, &j.QueuedAt, &j.StartedAt, &j.EndedAt,
		&execSeconds, &errCode, &errMsg); err != nil {
		return domain.Job{}, err
	}
	j.Capability = domain.Capability(cap)
	j.Status = domain.JobStatus(status)
	j.CostTokens = domain.Tokens(costTokens)
	j.Params = params
	j.ReplyContext = replyCtx
	j.ExecutionTimeSeconds = execSeconds
	if errCode != nil && *errCode != "" {
		j.Error = &domain.JobError{Code: *errCode, Message: strDeref(errMsg)}
	}
	return j, nil
}

func strDeref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nullStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func jsonOrEmpty(b []byte) []byte {
	if len(b) == 0 {
		return []byte("{}")
	}
	return b
}

func jsonOrNil(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}
