package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/theo-nash/claude-slack/internal/domain/membership"
	"github.com/theo-nash/claude-slack/internal/repository"
)

// ChannelRepository implements membership.ChannelRepository for SQLite
type ChannelRepository struct {
	db *DB
}

// NewChannelRepository creates a new ChannelRepository
func NewChannelRepository(db *DB) *ChannelRepository {
	return &ChannelRepository{db: db}
}

const channelColumns = `id, channel_type, access_type, scope, project_id, name, description, created_by, is_default, archived, created_at`

// Create inserts a new channel
func (r *ChannelRepository) Create(ctx context.Context, ch *membership.Channel) error {
	query := `
		INSERT INTO channels (` + channelColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	err := r.db.WriterTxn(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, query,
			ch.ID,
			ch.ChannelType,
			ch.AccessType,
			ch.Scope,
			ch.ProjectID,
			ch.Name,
			ch.Description,
			ch.CreatedBy,
			ch.IsDefault,
			ch.Archived,
			ch.CreatedAt.Unix(),
		)
		return err
	})
	if err != nil {
		if classified := classifyErr(err); classified != err {
			return classified
		}
		return fmt.Errorf("failed to create channel: %w", err)
	}
	return nil
}

// Get retrieves a channel by id
func (r *ChannelRepository) Get(ctx context.Context, id string) (*membership.Channel, error) {
	query := `SELECT ` + channelColumns + ` FROM channels WHERE id = ?`

	ch, err := scanChannel(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get channel: %w", err)
	}
	return ch, nil
}

// List returns channels matching the options
func (r *ChannelRepository) List(ctx context.Context, opts membership.ListChannelsOptions) ([]membership.Channel, error) {
	query := `
		SELECT c.id, c.channel_type, c.access_type, c.scope, c.project_id, c.name,
			c.description, c.created_by, c.is_default, c.archived, c.created_at
		FROM channels c`
	var args []any

	if opts.Agent != nil {
		query += `
		JOIN channel_members cm ON cm.channel_id = c.id
			AND cm.agent_name = ? AND cm.agent_project_id = ?`
		args = append(args, opts.Agent.Name, opts.Agent.ProjectID)
	}

	query += ` WHERE 1=1`
	if !opts.IncludeArchived {
		query += ` AND c.archived = 0`
	}
	if opts.ProjectID != "" {
		query += ` AND c.project_id = ?`
		args = append(args, opts.ProjectID)
	}
	if opts.IsDefault != nil {
		query += ` AND c.is_default = ?`
		args = append(args, *opts.IsDefault)
	}
	query += ` ORDER BY c.id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list channels: %w", err)
	}
	defer rows.Close()

	var channels []membership.Channel
	for rows.Next() {
		ch, err := scanChannelRows(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan channel: %w", err)
		}
		channels = append(channels, *ch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating channel rows: %w", err)
	}
	return channels, nil
}

// ListDefaults returns non-archived default channels in a scope
func (r *ChannelRepository) ListDefaults(ctx context.Context, scope membership.Scope, projectID string) ([]membership.Channel, error) {
	query := `
		SELECT ` + channelColumns + ` FROM channels
		WHERE is_default = 1 AND archived = 0 AND channel_type = 'channel'
			AND scope = ? AND project_id = ?
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, query, scope, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list default channels: %w", err)
	}
	defer rows.Close()

	var channels []membership.Channel
	for rows.Next() {
		ch, err := scanChannelRows(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan channel: %w", err)
		}
		channels = append(channels, *ch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating channel rows: %w", err)
	}
	return channels, nil
}

// SetArchived updates the archived flag
func (r *ChannelRepository) SetArchived(ctx context.Context, id string, archived bool) error {
	return r.db.WriterTxn(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE channels SET archived = ? WHERE id = ?`, archived, id)
		if err != nil {
			return fmt.Errorf("failed to update channel: %w", err)
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChannel(row *sql.Row) (*membership.Channel, error) {
	return scanChannelFrom(row)
}

func scanChannelRows(rows *sql.Rows) (*membership.Channel, error) {
	return scanChannelFrom(rows)
}

func scanChannelFrom(s rowScanner) (*membership.Channel, error) {
	var ch membership.Channel
	var createdAt int64
	err := s.Scan(
		&ch.ID,
		&ch.ChannelType,
		&ch.AccessType,
		&ch.Scope,
		&ch.ProjectID,
		&ch.Name,
		&ch.Description,
		&ch.CreatedBy,
		&ch.IsDefault,
		&ch.Archived,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}
	ch.CreatedAt = time.Unix(createdAt, 0)
	return &ch, nil
}
