package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/markdave123-py/corpora-indexer/internal/logger"
)

//go:embed scripts/initdb.sql
var bootstrapFS embed.FS

const schemaVersion = 1

// schemaReady reports whether initdb.sql has been applied at the current version.
func schemaReady(ctx context.Context, db *sql.DB) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx, `
		SELECT EXISTS (
		  SELECT 1 FROM information_schema.tables
		  WHERE table_name = 'indexer_meta'
		)`).
		Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("meta table check failed: %w", err)
	}
	if !exists {
		return false, nil
	}

	var hasVersion bool
	if err := db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM indexer_meta WHERE version = $1)`, schemaVersion).Scan(&hasVersion); err != nil {
		return false, fmt.Errorf("meta version check failed: %w", err)
	}
	return hasVersion, nil
}

func runBootstrap(ctx context.Context, db *sql.DB) error {
	ctxBoot, cancel := context.WithTimeout(ctx, 3*time.Minute)
	defer cancel()

	sqlBytes, err := bootstrapFS.ReadFile("scripts/initdb.sql")
	if err != nil {
		return fmt.Errorf("read initdb.sql: %w", err)
	}

	tx, err := db.BeginTx(ctxBoot, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if _, err := tx.ExecContext(ctxBoot, string(sqlBytes)); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("exec bootstrap: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit bootstrap: %w", err)
	}
	logger.Info("database schema bootstrapped", "version", schemaVersion)
	return nil
}
