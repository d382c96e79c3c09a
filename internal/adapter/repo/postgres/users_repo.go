package postgres

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/job-scheduler/internal/domain"
)

// GetOrCreateUser resolves (platform, platformUID) to a User on the default
// plan, inserting a new row only if none exists. The INSERT ... ON CONFLICT
// DO NOTHING / fallback SELECT pair makes this idempotent under concurrent
// callers racing on the same unique key.
func (s *Store) GetOrCreateUser(ctx domain.Context, platform, platformUID, ip string) (domain.User, error) {
	tracer := otel.Tracer("repo.users")
	ctx, span := tracer.Start(ctx, "users.GetOrCreateUser")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "UPSERT"),
		attribute.String("db.sql.table", "users"),
	)

	id := uuid.New().String()
	now := time.Now().UTC()
	insertQ := `INSERT INTO users (id, platform, platform_user_id, plan_id, ip_address, created_at)
	            VALUES ($1,$2,$3,$4,$5,$6)
	            ON CONFLICT (platform, platform_user_id) DO NOTHING`
	if _, err := s.Pool.Exec(ctx, insertQ, id, platform, platformUID, domain.DefaultPlanID, ip, now); err != nil {
		return domain.User{}, fmt.Errorf("op=user.get_or_create.insert: %w", err)
	}

	selectQ := `SELECT id, platform, platform_user_id, plan_id, COALESCE(ip_address,''), created_at
	            FROM users WHERE platform=$1 AND platform_user_id=$2`
	row := s.Pool.QueryRow(ctx, selectQ, platform, platformUID)
	var u domain.User
	if err := row.Scan(&u.ID, &u.Platform, &u.PlatformUserID, &u.PlanID, &u.IPAddress, &u.CreatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return domain.User{}, fmt.Errorf("op=user.get_or_create.select: %w", domain.ErrNotFound)
		}
		return domain.User{}, fmt.Errorf("op=user.get_or_create.select: %w", err)
	}

	plan, err := s.getPlan(ctx, u.PlanID)
	if err != nil {
		return domain.User{}, fmt.Errorf("op=user.get_or_create.plan: %w", err)
	}
	u.Plan = plan
	return u, nil
}

func (s *Store) getPlan(ctx domain.Context, id int64) (domain.Plan, error) {
	tracer := otel.Tracer("repo.plans")
	ctx, span := tracer.Start(ctx, "plans.Get")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.sql.table", "plans"),
	)
	row := s.Pool.QueryRow(ctx, `SELECT id, name, daily_token_limit, priority FROM plans WHERE id=$1`, id)
	var p domain.Plan
	var limit int64
	if err := row.Scan(&p.ID, &p.Name, &limit, &p.Priority); err != nil {
		if err == pgx.ErrNoRows {
			return domain.Plan{}, fmt.Errorf("op=plan.get: %w", domain.ErrNotFound)
		}
		return domain.Plan{}, fmt.Errorf("op=plan.get: %w", err)
	}
	p.DailyTokenLimit = domain.Tokens(limit)
	return p, nil
}
