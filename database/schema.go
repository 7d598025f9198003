package database

import (
	"context"
	"fmt"
	"log"
)

const clickHouseEventsDDL = `
CREATE TABLE IF NOT EXISTS events (
	event_id   String,
	session_id String,
	event_type LowCardinality(String),
	url        String,
	timestamp  DateTime64(3, 'UTC'),
	data       String
) ENGINE = MergeTree
ORDER BY (session_id, timestamp)`

var postgresDDL = []string{
	`CREATE TABLE IF NOT EXISTS sessions (
		session_id    TEXT PRIMARY KEY,
		start_time    TIMESTAMPTZ NOT NULL,
		end_time      TIMESTAMPTZ,
		event_count   BIGINT NOT NULL DEFAULT 0 CHECK (event_count >= 0),
		page_views    BIGINT NOT NULL DEFAULT 0 CHECK (page_views >= 0),
		clicks        BIGINT NOT NULL DEFAULT 0 CHECK (clicks >= 0),
		is_active     BOOLEAN NOT NULL DEFAULT TRUE,
		last_activity TIMESTAMPTZ NOT NULL,
		user_agent    TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_start_time ON sessions (start_time DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_active ON sessions (is_active, last_activity DESC)`,
}

// SQLite keeps instants as unix milliseconds.
var sqliteDDL = []string{
	`CREATE TABLE IF NOT EXISTS events (
		event_id   TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		url        TEXT NOT NULL,
		timestamp  INTEGER NOT NULL,
		data       TEXT NOT NULL DEFAULT '{}'
	)`,
	`CREATE INDEX IF NOT EXISTS idx_events_session ON events (session_id, timestamp)`,
	`CREATE INDEX IF NOT EXISTS idx_events_heatmap ON events (url, event_type, timestamp)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		session_id    TEXT PRIMARY KEY,
		start_time    INTEGER NOT NULL,
		end_time      INTEGER,
		event_count   INTEGER NOT NULL DEFAULT 0,
		page_views    INTEGER NOT NULL DEFAULT 0,
		clicks        INTEGER NOT NULL DEFAULT 0,
		is_active     INTEGER NOT NULL DEFAULT 1,
		last_activity INTEGER NOT NULL,
		user_agent    TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_start_time ON sessions (start_time DESC)`,
}

func (c *ClickHouseClient) EnsureSchema(ctx context.Context) error {
	if err := c.Conn.Exec(ctx, clickHouseEventsDDL); err != nil {
		return fmt.Errorf("failed to create ClickHouse events table: %w", err)
	}
	log.Println("ClickHouse schema ready.")
	return nil
}

// EnsurePostgresSchema creates the session ledger table.
func (c *DBClient) EnsurePostgresSchema(ctx context.Context) error {
	return c.exec(ctx, postgresDDL)
}

// EnsureSQLiteSchema creates both the events and the sessions tables.
func (c *DBClient) EnsureSQLiteSchema(ctx context.Context) error {
	return c.exec(ctx, sqliteDDL)
}

func (c *DBClient) exec(ctx context.Context, statements []string) error {
	for _, stmt := range statements {
		if _, err := c.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement: %w", err)
		}
	}
	return nil
}
