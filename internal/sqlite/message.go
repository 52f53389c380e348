package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/theo-nash/claude-slack/internal/domain/membership"
	"github.com/theo-nash/claude-slack/internal/domain/messaging"
	"github.com/theo-nash/claude-slack/internal/repository"
)

// MessageRepository implements messaging.MessageRepository for SQLite
type MessageRepository struct {
	db *DB
}

// NewMessageRepository creates a new MessageRepository
func NewMessageRepository(db *DB) *MessageRepository {
	return &MessageRepository{db: db}
}

const messageColumns = `id, channel_id, sender_name, sender_project_id, content, metadata, confidence, thread_id, timestamp`

// Create checks the sender's membership and inserts the message in one
// write transaction, so a concurrent removal cannot race the post.
func (r *MessageRepository) Create(ctx context.Context, msg *messaging.Message) (int64, error) {
	metadata, err := json.Marshal(msg.Metadata)
	if err != nil {
		return 0, fmt.Errorf("failed to encode metadata: %w", err)
	}

	var id int64
	err = r.db.WriterTxn(ctx, func(tx *sql.Tx) error {
		var archived bool
		err := tx.QueryRowContext(ctx,
			`SELECT archived FROM channels WHERE id = ?`, msg.ChannelID).Scan(&archived)
		if err == sql.ErrNoRows {
			return membership.ErrChannelNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to check channel: %w", err)
		}
		if archived {
			return membership.ErrArchived
		}

		var canSend bool
		err = tx.QueryRowContext(ctx, `
			SELECT can_send FROM channel_members
			WHERE channel_id = ? AND agent_name = ? AND agent_project_id = ?
		`, msg.ChannelID, msg.Sender.Name, msg.Sender.ProjectID).Scan(&canSend)
		if err == sql.ErrNoRows {
			return membership.ErrNotAMember
		}
		if err != nil {
			return fmt.Errorf("failed to check membership: %w", err)
		}
		if !canSend {
			return messaging.ErrCannotSend
		}

		if msg.ThreadID != nil {
			var exists bool
			err = tx.QueryRowContext(ctx, `
				SELECT EXISTS (SELECT 1 FROM messages WHERE id = ? OR thread_id = ?)
			`, *msg.ThreadID, *msg.ThreadID).Scan(&exists)
			if err != nil {
				return fmt.Errorf("failed to check thread: %w", err)
			}
			if !exists {
				return messaging.ErrInvalidThread
			}
		}

		result, err := tx.ExecContext(ctx, `
			INSERT INTO messages (channel_id, sender_name, sender_project_id, content, metadata, confidence, thread_id, timestamp)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`,
			msg.ChannelID,
			msg.Sender.Name,
			msg.Sender.ProjectID,
			msg.Content,
			string(metadata),
			msg.Confidence,
			msg.ThreadID,
			msg.Timestamp.Unix(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
		id, err = result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get message id: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// Get retrieves a message by id
func (r *MessageRepository) Get(ctx context.Context, id int64) (*messaging.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE id = ?`

	msg, err := scanMessageFrom(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return msg, nil
}

// List returns messages from a channel, newest first
func (r *MessageRepository) List(ctx context.Context, opts messaging.ListMessagesOptions) ([]messaging.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE channel_id = ?`
	args := []any{opts.ChannelID}

	if opts.Since != nil {
		query += ` AND timestamp >= ?`
		args = append(args, opts.Since.Unix())
	}
	if opts.Before != nil {
		query += ` AND timestamp < ?`
		args = append(args, opts.Before.Unix())
	}

	query += ` ORDER BY id DESC`
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	}
	if opts.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, opts.Offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	return collectMessages(rows)
}

// DeleteExpired removes messages older than cutoff. Notes channels are
// exempt from retention.
func (r *MessageRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	var deleted int64
	err := r.db.WriterTxn(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			DELETE FROM messages
			WHERE timestamp < ? AND channel_id NOT LIKE 'notes:%'
		`, cutoff.Unix())
		if err != nil {
			return fmt.Errorf("failed to delete expired messages: %w", err)
		}
		deleted, err = result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

func collectMessages(rows *sql.Rows) ([]messaging.Message, error) {
	var messages []messaging.Message
	for rows.Next() {
		msg, err := scanMessageFrom(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, *msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating message rows: %w", err)
	}
	return messages, nil
}

func scanMessageFrom(s rowScanner) (*messaging.Message, error) {
	var msg messaging.Message
	var metadata string
	var timestamp int64
	err := s.Scan(
		&msg.ID,
		&msg.ChannelID,
		&msg.Sender.Name,
		&msg.Sender.ProjectID,
		&msg.Content,
		&metadata,
		&msg.Confidence,
		&msg.ThreadID,
		&timestamp,
	)
	if err != nil {
		return nil, err
	}
	if metadata != "" {
		if err := json.Unmarshal([]byte(metadata), &msg.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata: %w", err)
		}
	}
	msg.Timestamp = time.Unix(timestamp, 0)
	return &msg, nil
}
