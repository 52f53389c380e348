package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/theo-nash/claude-slack/internal/domain/identity"
	"github.com/theo-nash/claude-slack/internal/repository"
)

// AgentRepository implements identity.AgentRepository for SQLite
type AgentRepository struct {
	db *DB
}

// NewAgentRepository creates a new AgentRepository
func NewAgentRepository(db *DB) *AgentRepository {
	return &AgentRepository{db: db}
}

// Upsert inserts the agent or refreshes its description and policies.
// Status is left untouched on re-registration so a deactivated agent is
// not silently reactivated.
func (r *AgentRepository) Upsert(ctx context.Context, agent *identity.Agent) error {
	query := `
		INSERT INTO agents (name, project_id, description, status, dm_policy, discoverable, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name, project_id) DO UPDATE SET
			description = excluded.description,
			dm_policy = excluded.dm_policy,
			discoverable = excluded.discoverable
	`

	err := r.db.WriterTxn(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, query,
			agent.Name,
			agent.ProjectID,
			agent.Description,
			agent.Status,
			agent.DMPolicy,
			agent.Discoverable,
			agent.CreatedAt.Unix(),
		)
		return err
	})
	if err != nil {
		if classified := classifyErr(err); classified != err {
			return classified
		}
		return fmt.Errorf("failed to upsert agent: %w", err)
	}
	return nil
}

// Get retrieves an agent by its composite key
func (r *AgentRepository) Get(ctx context.Context, ref identity.AgentRef) (*identity.Agent, error) {
	query := `
		SELECT name, project_id, description, status, dm_policy, discoverable, created_at
		FROM agents
		WHERE name = ? AND project_id = ?
	`

	var agent identity.Agent
	var createdAt int64
	err := r.db.QueryRowContext(ctx, query, ref.Name, ref.ProjectID).Scan(
		&agent.Name,
		&agent.ProjectID,
		&agent.Description,
		&agent.Status,
		&agent.DMPolicy,
		&agent.Discoverable,
		&createdAt,
	)
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get agent: %w", err)
	}
	agent.CreatedAt = time.Unix(createdAt, 0)
	return &agent, nil
}

// List returns agents, restricted to what the caller may discover when a
// caller is given: public agents, the caller itself, and project-scoped
// agents whose project is the caller's or links to it in the agent-to-
// caller direction.
func (r *AgentRepository) List(ctx context.Context, opts identity.ListAgentsOptions) ([]identity.Agent, error) {
	query := `
		SELECT name, project_id, description, status, dm_policy, discoverable, created_at
		FROM agents a
		WHERE (? = '' OR a.project_id = ?)
	`
	args := []any{opts.ProjectID, opts.ProjectID}

	if opts.Caller != nil {
		query += `
		AND (
			a.discoverable = 'public'
			OR (a.name = ? AND a.project_id = ?)
			OR (a.discoverable = 'project' AND a.project_id != '' AND (
				a.project_id = ?
				OR EXISTS (
					SELECT 1 FROM project_links pl
					WHERE (pl.project_a = a.project_id AND pl.project_b = ?
						AND pl.direction IN ('a_to_b', 'bidirectional'))
					   OR (pl.project_b = a.project_id AND pl.project_a = ?
						AND pl.direction IN ('b_to_a', 'bidirectional'))
				)
			))
		)
		`
		c := *opts.Caller
		args = append(args, c.Name, c.ProjectID, c.ProjectID, c.ProjectID, c.ProjectID)
	}

	query += ` ORDER BY a.project_id, a.name`
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	defer rows.Close()

	var agents []identity.Agent
	for rows.Next() {
		var agent identity.Agent
		var createdAt int64
		err := rows.Scan(
			&agent.Name,
			&agent.ProjectID,
			&agent.Description,
			&agent.Status,
			&agent.DMPolicy,
			&agent.Discoverable,
			&createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan agent: %w", err)
		}
		agent.CreatedAt = time.Unix(createdAt, 0)
		agents = append(agents, agent)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating agent rows: %w", err)
	}
	return agents, nil
}

// SetDMPermission upserts an allow/block entry for the agent pair
func (r *AgentRepository) SetDMPermission(ctx context.Context, agent, other identity.AgentRef, kind identity.DMPermissionKind) error {
	query := `
		INSERT INTO dm_permissions (agent_name, agent_project_id, other_name, other_project_id, permission, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(agent_name, agent_project_id, other_name, other_project_id) DO UPDATE SET
			permission = excluded.permission
	`

	err := r.db.WriterTxn(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, query,
			agent.Name, agent.ProjectID, other.Name, other.ProjectID, kind, time.Now().Unix())
		return err
	})
	if err != nil {
		if classified := classifyErr(err); classified != err {
			return classified
		}
		return fmt.Errorf("failed to set dm permission: %w", err)
	}
	return nil
}

// GetDMPermission looks up the allow/block entry for the agent pair
func (r *AgentRepository) GetDMPermission(ctx context.Context, agent, other identity.AgentRef) (identity.DMPermissionKind, bool, error) {
	query := `
		SELECT permission FROM dm_permissions
		WHERE agent_name = ? AND agent_project_id = ? AND other_name = ? AND other_project_id = ?
	`

	var kind identity.DMPermissionKind
	err := r.db.QueryRowContext(ctx, query,
		agent.Name, agent.ProjectID, other.Name, other.ProjectID).Scan(&kind)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get dm permission: %w", err)
	}
	return kind, true, nil
}
