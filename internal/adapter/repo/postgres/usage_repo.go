package postgres

import (
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/job-scheduler/internal/domain"
)

// IncrementUsage upserts usage_daily, additively merging on conflict of
// (user_id, date), the only permitted write path besides a fresh zero row.
func (s *Store) IncrementUsage(ctx domain.Context, userID string, date time.Time, deltaTokens domain.Tokens, deltaJobs int64) error {
	tracer := otel.Tracer("repo.usage")
	ctx, span := tracer.Start(ctx, "usage.IncrementUsage")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "UPSERT"),
		attribute.String("db.sql.table", "usage_daily"),
	)
	q := `INSERT INTO usage_daily (user_id, date, tokens_used, jobs_completed)
	      VALUES ($1,$2,$3,$4)
	      ON CONFLICT (user_id, date) DO UPDATE SET
	        tokens_used = usage_daily.tokens_used + EXCLUDED.tokens_used,
	        jobs_completed = usage_daily.jobs_completed + EXCLUDED.jobs_completed`
	_, err := s.Pool.Exec(ctx, q, userID, date.UTC().Truncate(24*time.Hour), int64(deltaTokens), deltaJobs)
	if err != nil {
		return fmt.Errorf("op=usage.increment: %w", err)
	}
	return nil
}

// GetUsage returns the usage row for (userID, date), zeroed if absent.
func (s *Store) GetUsage(ctx domain.Context, userID string, date time.Time) (domain.UsageDaily, error) {
	tracer := otel.Tracer("repo.usage")
	ctx, span := tracer.Start(ctx, "usage.GetUsage")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.sql.table", "usage_daily"),
	)
	day := date.UTC().Truncate(24 * time.Hour)
	q := `SELECT tokens_used, jobs_completed FROM usage_daily WHERE user_id=$1 AND date=$2`
	row := s.Pool.QueryRow(ctx, q, userID, day)
	var tokens, jobs int64
	if err := row.Scan(&tokens, &jobs); err != nil {
		if err == pgx.ErrNoRows {
			return domain.UsageDaily{UserID: userID, Date: day}, nil
		}
		return domain.UsageDaily{}, fmt.Errorf("op=usage.get: %w", err)
	}
	return domain.UsageDaily{UserID: userID, Date: day, TokensUsed: domain.Tokens(tokens), JobsCompleted: jobs}, nil
}
