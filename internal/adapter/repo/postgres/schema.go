package postgres

import (
	"context"
	_ "embed"
	"fmt"
)

//go:embed schema.sql
var schemaSQL string

// Migrate applies the scheduler schema idempotently. The teacher project
// ships no migration tool and this schema is small and stable, so it is
// embedded and applied with CREATE TABLE IF NOT EXISTS rather than pulling
// in a migration framework; see DESIGN.md.
func Migrate(ctx context.Context, pool PgxPool) error {
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("op=postgres.Migrate: %w", err)
	}
	return nil
}
