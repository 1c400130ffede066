package database

import "fmt"

const schema = `
CREATE TABLE IF NOT EXISTS agents (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL UNIQUE,
	description TEXT NOT NULL DEFAULT '',
	definition  TEXT NOT NULL,
	dialect     TEXT NOT NULL DEFAULT 'json',
	created_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS tasks (
	id           TEXT PRIMARY KEY,
	agent        TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL,
	logs         TEXT NOT NULL DEFAULT '[]',
	output       TEXT,
	error        TEXT NOT NULL DEFAULT '',
	callback     TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMP NOT NULL,
	completed_at TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
CREATE INDEX IF NOT EXISTS idx_tasks_agent ON tasks(agent);
`

// initSchema creates the tables if they do not exist yet.
func (db *DB) initSchema() error {
	if _, err := db.conn.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}
