package clocksync

import (
	_ "modernc.org/sqlite"
)

const sqliteTableName = "clocksync_operations"

// NewSQLiteStore returns a QueueStore backed by a SQLite database file.
// This is the default durable backend on a client device: single file,
// pure-Go driver, survives process restarts.
func NewSQLiteStore(path string) (QueueStore, error) {
	return newSQLStore(path, sqliteTableName, sqlDialect{
		driver:      "sqlite",
		placeholder: func(int) string { return "?" },
		createTable: `
			CREATE TABLE IF NOT EXISTS %s (
				id TEXT PRIMARY KEY,
				status TEXT NOT NULL,
				enqueued_at_ns INTEGER NOT NULL,
				record TEXT NOT NULL
			)`,
		createIndex: "CREATE INDEX IF NOT EXISTS %s ON %s (status, enqueued_at_ns)",
	})
}
