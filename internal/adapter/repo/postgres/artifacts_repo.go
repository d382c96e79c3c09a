package postgres

import (
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/job-scheduler/internal/domain"
)

// CreateArtifact inserts an artifact and returns its id.
func (s *Store) CreateArtifact(ctx domain.Context, a domain.Artifact) (string, error) {
	tracer := otel.Tracer("repo.artifacts")
	ctx, span := tracer.Start(ctx, "artifacts.CreateArtifact")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "INSERT"),
		attribute.String("db.sql.table", "artifacts"),
	)
	id := a.ID
	if id == "" {
		id = uuid.New().String()
	}
	q := `INSERT INTO artifacts (id, job_id, type, local_path, public_url, format, metadata)
	      VALUES ($1,$2,$3,$4,$5,$6,$7)`
	_, err := s.Pool.Exec(ctx, q, id, a.JobID, string(a.Type), nullStr(a.LocalPath), nullStr(a.PublicURL), a.Format, jsonOrNil(a.Metadata))
	if err != nil {
		return "", fmt.Errorf("op=artifact.create: %w", err)
	}
	return id, nil
}

// ListArtifacts returns all artifacts recorded for a job.
func (s *Store) ListArtifacts(ctx domain.Context, jobID string) ([]domain.Artifact, error) {
	tracer := otel.Tracer("repo.artifacts")
	ctx, span := tracer.Start(ctx, "artifacts.ListArtifacts")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.sql.table", "artifacts"),
	)
	q := `SELECT id, job_id, type, COALESCE(local_path,''), COALESCE(public_url,''), COALESCE(format,''), metadata
	      FROM artifacts WHERE job_id=$1 ORDER BY id ASC`
	rows, err := s.Pool.Query(ctx, q, jobID)
	if err != nil {
		return nil, fmt.Errorf("op=artifact.list: %w", err)
	}
	defer rows.Close()

	var out []domain.Artifact
	for rows.Next() {
		var a domain.Artifact
		var typ string
		if err := rows.Scan(&a.ID, &a.JobID, &typ, &a.LocalPath, &a.PublicURL, &a.Format, &a.Metadata); err != nil {
			return nil, fmt.Errorf("op=artifact.list_scan: %w", err)
		}
		a.Type = domain.Capability(typ)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=artifact.list_rows: %w", err)
	}
	return out, nil
}
