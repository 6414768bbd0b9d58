package cli

import (
	"context"
	_ "embed"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

//go:embed schema.sql
var schemaSQL string

// runMigrations applies the hub's schema. Statements are idempotent
// (CREATE TABLE/INDEX IF NOT EXISTS), so running this against an
// already-migrated database is a no-op.
func runMigrations(ctx context.Context, pgURL string, log *zap.Logger) error {
	pool, err := pgxpool.New(ctx, pgURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return err
	}
	log.Info("migrations applied")
	return nil
}
