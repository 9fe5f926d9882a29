package db

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	"go.uber.org/zap"
)

//go:embed schema.sql
var schema string

// Migrate applies the idempotent schema. Every statement uses IF NOT EXISTS so it is safe to
// run on each start.
func Migrate(ctx context.Context, db *sql.DB, logger *zap.Logger) error {
	logger.Info("applying database schema")
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("db: apply schema: %w", err)
	}
	logger.Info("database schema up to date")
	return nil
}
