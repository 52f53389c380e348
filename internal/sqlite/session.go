package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/theo-nash/claude-slack/internal/domain/identity"
	"github.com/theo-nash/claude-slack/internal/repository"
)

// SessionRepository implements identity.SessionRepository for SQLite
type SessionRepository struct {
	db *DB
}

// NewSessionRepository creates a new SessionRepository
func NewSessionRepository(db *DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Upsert inserts or refreshes a session row
func (r *SessionRepository) Upsert(ctx context.Context, sess *identity.Session) error {
	query := `
		INSERT INTO sessions (id, project_id, transcript_path, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			project_id = excluded.project_id,
			transcript_path = excluded.transcript_path,
			updated_at = excluded.updated_at
	`

	err := r.db.WriterTxn(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, query,
			sess.ID,
			sess.ProjectID,
			sess.TranscriptPath,
			sess.CreatedAt.Unix(),
			sess.UpdatedAt.Unix(),
		)
		return err
	})
	if err != nil {
		if classified := classifyErr(err); classified != err {
			return classified
		}
		return fmt.Errorf("failed to upsert session: %w", err)
	}
	return nil
}

// Touch bumps updated_at on an existing session
func (r *SessionRepository) Touch(ctx context.Context, id string) error {
	return r.db.WriterTxn(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE sessions SET updated_at = ? WHERE id = ?`, time.Now().Unix(), id)
		if err != nil {
			return fmt.Errorf("failed to touch session: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if affected == 0 {
			return repository.ErrNotFound
		}
		return nil
	})
}

// Get retrieves a session by id
func (r *SessionRepository) Get(ctx context.Context, id string) (*identity.Session, error) {
	query := `
		SELECT id, project_id, transcript_path, created_at, updated_at
		FROM sessions
		WHERE id = ?
	`

	var sess identity.Session
	var createdAt, updatedAt int64
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&sess.ID,
		&sess.ProjectID,
		&sess.TranscriptPath,
		&createdAt,
		&updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	sess.CreatedAt = time.Unix(createdAt, 0)
	sess.UpdatedAt = time.Unix(updatedAt, 0)
	return &sess, nil
}

// RecordToolCall appends a tool_calls row and bumps the session's
// updated_at in the same transaction.
func (r *SessionRepository) RecordToolCall(ctx context.Context, call *identity.ToolCall) (int64, error) {
	var id int64
	err := r.db.WriterTxn(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			INSERT INTO tool_calls (session_id, tool_name, tool_inputs_hash, tool_inputs, created_at)
			VALUES (?, ?, ?, ?, ?)
		`,
			call.SessionID,
			call.ToolName,
			call.InputsHash,
			call.Inputs,
			call.CreatedAt.Unix(),
		)
		if err != nil {
			return fmt.Errorf("failed to record tool call: %w", err)
		}
		id, err = result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get tool call id: %w", err)
		}

		// The session may not be registered yet; the update is best effort.
		_, err = tx.ExecContext(ctx,
			`UPDATE sessions SET updated_at = ? WHERE id = ?`,
			call.CreatedAt.Unix(), call.SessionID)
		if err != nil {
			return fmt.Errorf("failed to update session activity: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}
