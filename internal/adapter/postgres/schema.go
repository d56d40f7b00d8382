package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// createTable has %[1]s for the table and %[2]s for the guard function.
// The trigger makes the table append-only.
const createTable = `
	CREATE TABLE IF NOT EXISTS %[1]s (
		log_time      text             NOT NULL,
		remote_host   text,
		user_name     text,
		database_name text,
		duration_ms   double precision NOT NULL,
		raw_message   text             NOT NULL
	);

	CREATE OR REPLACE FUNCTION %[2]s() RETURNS trigger
	LANGUAGE plpgsql AS $$
	BEGIN
		RAISE EXCEPTION 'table_log rows are append-only';
	END
	$$;

	DROP TRIGGER IF EXISTS table_log_append_only ON %[1]s;
	CREATE TRIGGER table_log_append_only
		BEFORE UPDATE OR DELETE ON %[1]s
		FOR EACH ROW EXECUTE FUNCTION %[2]s();`

// EnsureTable creates the log table and its append-only trigger if needed.
func EnsureTable(ctx context.Context, pool *pgxpool.Pool, table pgx.Identifier) error {
	guard := make(pgx.Identifier, len(table))
	copy(guard, table)
	guard[len(guard)-1] += "_append_only"

	if _, err := pool.Exec(ctx, fmt.Sprintf(createTable, table.Sanitize(), guard.Sanitize())); err != nil {
		return fmt.Errorf("creating %s: %w", table.Sanitize(), err)
	}
	return nil
}
