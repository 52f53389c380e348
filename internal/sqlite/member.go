package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/theo-nash/claude-slack/internal/domain/identity"
	"github.com/theo-nash/claude-slack/internal/domain/membership"
	"github.com/theo-nash/claude-slack/internal/repository"
)

// MemberRepository implements membership.MemberRepository for SQLite
type MemberRepository struct {
	db *DB
}

// NewMemberRepository creates a new MemberRepository
func NewMemberRepository(db *DB) *MemberRepository {
	return &MemberRepository{db: db}
}

const memberColumns = `channel_id, agent_name, agent_project_id, invited_by, source, can_leave, can_send, can_invite, can_manage, is_from_default, is_muted, joined_at`

// Add inserts the membership row if absent and reports whether it did.
// An existing row is never modified; capability flags are fixed at
// creation.
func (r *MemberRepository) Add(ctx context.Context, m *membership.Member) (bool, error) {
	query := `
		INSERT INTO channel_members (` + memberColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(channel_id, agent_name, agent_project_id) DO NOTHING
	`

	var inserted bool
	err := r.db.WriterTxn(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, query,
			m.ChannelID,
			m.Agent.Name,
			m.Agent.ProjectID,
			m.InvitedBy,
			m.Source,
			m.CanLeave,
			m.CanSend,
			m.CanInvite,
			m.CanManage,
			m.IsFromDefault,
			m.IsMuted,
			m.JoinedAt.Unix(),
		)
		if err != nil {
			return err
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		inserted = affected > 0
		return nil
	})
	if err != nil {
		if classified := classifyErr(err); classified != err {
			return false, classified
		}
		return false, fmt.Errorf("failed to add channel member: %w", err)
	}
	return inserted, nil
}

// Get retrieves a membership row
func (r *MemberRepository) Get(ctx context.Context, channelID string, agent identity.AgentRef) (*membership.Member, error) {
	query := `
		SELECT ` + memberColumns + ` FROM channel_members
		WHERE channel_id = ? AND agent_name = ? AND agent_project_id = ?
	`

	m, err := scanMember(r.db.QueryRowContext(ctx, query, channelID, agent.Name, agent.ProjectID))
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get channel member: %w", err)
	}
	return m, nil
}

// Promote rewrites the provenance of an existing row, clearing the
// default-provisioning mark so reconciliation drift preserves it.
func (r *MemberRepository) Promote(ctx context.Context, channelID string, agent identity.AgentRef, source membership.MemberSource, invitedBy string) error {
	return r.db.WriterTxn(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE channel_members
			SET source = ?, invited_by = ?, is_from_default = 0
			WHERE channel_id = ? AND agent_name = ? AND agent_project_id = ?
		`, source, invitedBy, channelID, agent.Name, agent.ProjectID)
		if err != nil {
			return fmt.Errorf("failed to promote channel member: %w", err)
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

// Remove deletes a membership row
func (r *MemberRepository) Remove(ctx context.Context, channelID string, agent identity.AgentRef) error {
	return r.db.WriterTxn(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			DELETE FROM channel_members
			WHERE channel_id = ? AND agent_name = ? AND agent_project_id = ?
		`, channelID, agent.Name, agent.ProjectID)
		if err != nil {
			return fmt.Errorf("failed to remove channel member: %w", err)
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

// ListByChannel returns all membership rows of a channel
func (r *MemberRepository) ListByChannel(ctx context.Context, channelID string) ([]membership.Member, error) {
	query := `
		SELECT ` + memberColumns + ` FROM channel_members
		WHERE channel_id = ?
		ORDER BY agent_project_id, agent_name
	`
	return r.queryMembers(ctx, query, channelID)
}

// ListByAgent returns all membership rows of an agent
func (r *MemberRepository) ListByAgent(ctx context.Context, agent identity.AgentRef) ([]membership.Member, error) {
	query := `
		SELECT ` + memberColumns + ` FROM channel_members
		WHERE agent_name = ? AND agent_project_id = ?
		ORDER BY channel_id
	`
	return r.queryMembers(ctx, query, agent.Name, agent.ProjectID)
}

// SetMuted flips the is_muted flag
func (r *MemberRepository) SetMuted(ctx context.Context, channelID string, agent identity.AgentRef, muted bool) error {
	return r.db.WriterTxn(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE channel_members SET is_muted = ?
			WHERE channel_id = ? AND agent_name = ? AND agent_project_id = ?
		`, muted, channelID, agent.Name, agent.ProjectID)
		if err != nil {
			return fmt.Errorf("failed to set mute: %w", err)
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

// AccessibleChannelIDs returns ids of non-archived channels the agent
// belongs to
func (r *MemberRepository) AccessibleChannelIDs(ctx context.Context, agent identity.AgentRef) ([]string, error) {
	query := `
		SELECT cm.channel_id
		FROM channel_members cm
		JOIN channels c ON c.id = cm.channel_id
		WHERE cm.agent_name = ? AND cm.agent_project_id = ? AND c.archived = 0
		ORDER BY cm.channel_id
	`

	rows, err := r.db.QueryContext(ctx, query, agent.Name, agent.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list accessible channels: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan channel id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating channel ids: %w", err)
	}
	return ids, nil
}

// PartitionMentions splits the input references into member / known-but-
// not-member / unknown in one query over a VALUES list. The three sets
// are disjoint and cover the input.
func (r *MemberRepository) PartitionMentions(ctx context.Context, channelID string, refs []identity.AgentRef) (*membership.MentionPartition, error) {
	part := &membership.MentionPartition{
		Valid:   []identity.AgentRef{},
		Invalid: []identity.AgentRef{},
		Unknown: []identity.AgentRef{},
	}
	if len(refs) == 0 {
		return part, nil
	}

	placeholders := make([]string, len(refs))
	args := make([]any, 0, len(refs)*2+1)
	for i, ref := range refs {
		placeholders[i] = "(?, ?)"
		args = append(args, ref.Name, ref.ProjectID)
	}
	args = append(args, channelID)

	query := `
		WITH input(name, project_id) AS (VALUES ` + strings.Join(placeholders, ", ") + `)
		SELECT i.name, i.project_id,
			EXISTS (
				SELECT 1 FROM agents a
				WHERE a.name = i.name AND a.project_id = i.project_id
			) AS known,
			EXISTS (
				SELECT 1 FROM channel_members m
				WHERE m.channel_id = ? AND m.agent_name = i.name AND m.agent_project_id = i.project_id
			) AS is_member
		FROM input i
	`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to partition mentions: %w", err)
	}
	defer rows.Close()

	results := make(map[identity.AgentRef][2]bool, len(refs))
	for rows.Next() {
		var ref identity.AgentRef
		var known, isMember bool
		if err := rows.Scan(&ref.Name, &ref.ProjectID, &known, &isMember); err != nil {
			return nil, fmt.Errorf("failed to scan mention row: %w", err)
		}
		results[ref] = [2]bool{known, isMember}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating mention rows: %w", err)
	}

	// Preserve the input order in each partition.
	seen := make(map[identity.AgentRef]bool, len(refs))
	for _, ref := range refs {
		if seen[ref] {
			continue
		}
		seen[ref] = true
		flags := results[ref]
		switch {
		case flags[0] && flags[1]:
			part.Valid = append(part.Valid, ref)
		case flags[0]:
			part.Invalid = append(part.Invalid, ref)
		default:
			part.Unknown = append(part.Unknown, ref)
		}
	}
	return part, nil
}

func (r *MemberRepository) queryMembers(ctx context.Context, query string, args ...any) ([]membership.Member, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list channel members: %w", err)
	}
	defer rows.Close()

	var members []membership.Member
	for rows.Next() {
		m, err := scanMemberFrom(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan channel member: %w", err)
		}
		members = append(members, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating member rows: %w", err)
	}
	return members, nil
}

func scanMember(row *sql.Row) (*membership.Member, error) {
	return scanMemberFrom(row)
}

func scanMemberFrom(s rowScanner) (*membership.Member, error) {
	var m membership.Member
	var joinedAt int64
	err := s.Scan(
		&m.ChannelID,
		&m.Agent.Name,
		&m.Agent.ProjectID,
		&m.InvitedBy,
		&m.Source,
		&m.CanLeave,
		&m.CanSend,
		&m.CanInvite,
		&m.CanManage,
		&m.IsFromDefault,
		&m.IsMuted,
		&joinedAt,
	)
	if err != nil {
		return nil, err
	}
	m.JoinedAt = time.Unix(joinedAt, 0)
	return &m, nil
}
