package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/zenovak/2100-AAA/internal/types"
)

const (
	AGENT_NOT_FOUND types.ErrorCode = "AGENT_NOT_FOUND"
)

// AgentRecord is a persisted workflow definition. Definition holds the raw
// source text; Dialect says how to parse it ("json" or "dsl").
type AgentRecord struct {
	ID          types.ID  `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Definition  string    `json:"definition"`
	Dialect     string    `json:"dialect"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// AgentDAO provides database operations for agent definitions.
type AgentDAO interface {
	// Upsert inserts the record or replaces the definition registered
	// under the same name.
	Upsert(ctx context.Context, record *AgentRecord) error

	// GetByName retrieves an agent definition by name.
	GetByName(ctx context.Context, name string) (*AgentRecord, error)

	// List lists all agent definitions ordered by name.
	List(ctx context.Context) ([]*AgentRecord, error)

	// Delete removes an agent definition.
	Delete(ctx context.Context, name string) error
}

type agentDAO struct {
	db *DB
}

// NewAgentDAO creates a new agent DAO.
func NewAgentDAO(db *DB) AgentDAO {
	return &agentDAO{db: db}
}

func (d *agentDAO) Upsert(ctx context.Context, record *AgentRecord) error {
	if record.ID == "" {
		record.ID = types.NewID()
	}
	if record.Dialect == "" {
		record.Dialect = "json"
	}

	query := `
		INSERT INTO agents (id, name, description, definition, dialect, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT(name) DO UPDATE SET
			description = excluded.description,
			definition = excluded.definition,
			dialect = excluded.dialect,
			updated_at = CURRENT_TIMESTAMP
	`

	_, err := d.db.conn.ExecContext(ctx, query,
		record.ID,
		record.Name,
		record.Description,
		record.Definition,
		record.Dialect,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert agent: %w", err)
	}
	return nil
}

func (d *agentDAO) GetByName(ctx context.Context, name string) (*AgentRecord, error) {
	query := `
		SELECT id, name, description, definition, dialect, created_at, updated_at
		FROM agents
		WHERE name = ?
	`

	var record AgentRecord
	err := d.db.conn.QueryRowContext(ctx, query, name).Scan(
		&record.ID,
		&record.Name,
		&record.Description,
		&record.Definition,
		&record.Dialect,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, types.NewError(AGENT_NOT_FOUND,
			fmt.Sprintf("agent not found: %s", name))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get agent: %w", err)
	}
	return &record, nil
}

func (d *agentDAO) List(ctx context.Context) ([]*AgentRecord, error) {
	query := `
		SELECT id, name, description, definition, dialect, created_at, updated_at
		FROM agents
		ORDER BY name
	`

	rows, err := d.db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	defer rows.Close()

	var records []*AgentRecord
	for rows.Next() {
		var record AgentRecord
		if err := rows.Scan(
			&record.ID,
			&record.Name,
			&record.Description,
			&record.Definition,
			&record.Dialect,
			&record.CreatedAt,
			&record.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan agent: %w", err)
		}
		records = append(records, &record)
	}
	return records, rows.Err()
}

func (d *agentDAO) Delete(ctx context.Context, name string) error {
	result, err := d.db.conn.ExecContext(ctx, "DELETE FROM agents WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("failed to delete agent: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return types.NewError(AGENT_NOT_FOUND,
			fmt.Sprintf("agent not found: %s", name))
	}
	return nil
}
