package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	dbsql "lookout/pkg/database/sql"
	"lookout/pkg/logging"
)

// ApplySchema runs the embedded Postgres DDL. Statements are written to be
// idempotent (IF NOT EXISTS), so this is safe to run on every startup.
func ApplySchema(ctx context.Context, db *sql.DB, logger logging.Logger) error {
	content, err := dbsql.Content.ReadFile("schema/lookout.sql")
	if err != nil {
		return fmt.Errorf("failed to read embedded schema: %w", err)
	}

	if _, err := db.ExecContext(ctx, string(content)); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}

	logger.WithFields(logging.Fields{"file": "schema/lookout.sql"}).Info("Postgres schema applied")
	return nil
}

// ApplyDemoSeeds loads the demo dataset. Intended for local development only.
func ApplyDemoSeeds(ctx context.Context, db *sql.DB, logger logging.Logger) error {
	content, err := dbsql.Content.ReadFile("seeds/demo/lookout_demo.sql")
	if err != nil {
		return fmt.Errorf("failed to read embedded demo seeds: %w", err)
	}

	if _, err := db.ExecContext(ctx, string(content)); err != nil {
		return fmt.Errorf("failed to apply demo seeds: %w", err)
	}

	logger.WithFields(logging.Fields{"file": "seeds/demo/lookout_demo.sql"}).Info("Demo seeds applied")
	return nil
}

// ApplyClickHouseSchema runs the embedded ClickHouse DDL over the native
// connection. The native driver executes one statement per call, so the file
// is split on statement boundaries.
func ApplyClickHouseSchema(ctx context.Context, conn ClickHouseNativeConn, logger logging.Logger) error {
	content, err := dbsql.Content.ReadFile("clickhouse/lookout.sql")
	if err != nil {
		return fmt.Errorf("failed to read embedded ClickHouse schema: %w", err)
	}

	for _, stmt := range strings.Split(string(content), ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if err := conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply ClickHouse schema: %w", err)
		}
	}

	logger.WithFields(logging.Fields{"file": "clickhouse/lookout.sql"}).Info("ClickHouse schema applied")
	return nil
}
