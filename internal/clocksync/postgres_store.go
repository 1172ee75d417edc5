package clocksync

import (
	"fmt"

	_ "github.com/lib/pq"
)

const postgresTableName = "clocksync_operations"

// NewPostgresStore returns a QueueStore backed by Postgres, for deployments
// where the client queue is hosted alongside other tenant state rather than
// on the device itself.
func NewPostgresStore(dsn string) (QueueStore, error) {
	return newSQLStore(dsn, postgresTableName, sqlDialect{
		driver:      "postgres",
		placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
		createTable: `
			CREATE TABLE IF NOT EXISTS %s (
				id TEXT PRIMARY KEY,
				status TEXT NOT NULL,
				enqueued_at_ns BIGINT NOT NULL,
				record TEXT NOT NULL
			)`,
		createIndex: "CREATE INDEX IF NOT EXISTS %s ON %s (status, enqueued_at_ns)",
	})
}
