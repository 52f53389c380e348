package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/theo-nash/claude-slack/internal/domain/identity"
	"github.com/theo-nash/claude-slack/internal/domain/membership"
	"github.com/theo-nash/claude-slack/internal/domain/reconcile"
)

// ReconcileStore implements reconcile.StateReader and reconcile.Applier.
// Reads delegate to the regular repositories; a phase of plan actions
// commits in a single write transaction, with per-action errors collected
// instead of aborting the phase.
type ReconcileStore struct {
	db       *DB
	channels *ChannelRepository
	members  *MemberRepository
	agents   *AgentRepository
}

// NewReconcileStore creates a new ReconcileStore
func NewReconcileStore(db *DB) *ReconcileStore {
	return &ReconcileStore{
		db:       db,
		channels: NewChannelRepository(db),
		members:  NewMemberRepository(db),
		agents:   NewAgentRepository(db),
	}
}

// GetChannel reads a channel by id
func (s *ReconcileStore) GetChannel(ctx context.Context, id string) (*membership.Channel, error) {
	return s.channels.Get(ctx, id)
}

// ListDefaultChannels reads the default channels of a scope
func (s *ReconcileStore) ListDefaultChannels(ctx context.Context, scope membership.Scope, projectID string) ([]membership.Channel, error) {
	return s.channels.ListDefaults(ctx, scope, projectID)
}

// GetAgent reads an agent by its composite key
func (s *ReconcileStore) GetAgent(ctx context.Context, ref identity.AgentRef) (*identity.Agent, error) {
	return s.agents.Get(ctx, ref)
}

// GetMember reads a membership row
func (s *ReconcileStore) GetMember(ctx context.Context, channelID string, agent identity.AgentRef) (*membership.Member, error) {
	return s.members.Get(ctx, channelID, agent)
}

// ListDefaultMembers returns rows still owned by default provisioning
func (s *ReconcileStore) ListDefaultMembers(ctx context.Context, channelID string) ([]membership.Member, error) {
	members, err := s.members.ListByChannel(ctx, channelID)
	if err != nil {
		return nil, err
	}
	var defaults []membership.Member
	for _, m := range members {
		if m.IsFromDefault && m.Source == membership.SourceDefault {
			defaults = append(defaults, m)
		}
	}
	return defaults, nil
}

// HasProjectLink reports whether a link row exists for the pair in either
// orientation
func (s *ReconcileStore) HasProjectLink(ctx context.Context, projectA, projectB string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM project_links
			WHERE (project_a = ? AND project_b = ?) OR (project_a = ? AND project_b = ?)
		)
	`, projectA, projectB, projectB, projectA).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check project link: %w", err)
	}
	return exists, nil
}

// ApplyPhase executes one phase of a plan inside a single write
// transaction. SQLite statements are atomic individually, so a failing
// action leaves the rest of the phase intact.
func (s *ReconcileStore) ApplyPhase(ctx context.Context, actions []reconcile.Action) []reconcile.ActionError {
	var errs []reconcile.ActionError
	err := s.db.WriterTxn(ctx, func(tx *sql.Tx) error {
		for _, action := range actions {
			if err := s.apply(ctx, tx, action); err != nil {
				errs = append(errs, reconcile.ActionError{Action: action, Err: err})
			}
		}
		return nil
	})
	if err != nil {
		// The whole phase failed to commit; surface the error on every
		// action.
		errs = errs[:0]
		for _, action := range actions {
			errs = append(errs, reconcile.ActionError{Action: action, Err: err})
		}
	}
	return errs
}

func (s *ReconcileStore) apply(ctx context.Context, tx *sql.Tx, action reconcile.Action) error {
	now := time.Now().Unix()
	switch a := action.(type) {
	case reconcile.CreateChannelAction:
		id := membership.ChannelIDFor(a.Scope, a.ProjectID, a.Name)
		var exists bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM channels WHERE id = ?)`, id).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check channel: %w", err)
		}
		if exists {
			_, err := tx.ExecContext(ctx,
				`UPDATE channels SET is_default = ? WHERE id = ?`, a.IsDefault, id)
			if err != nil {
				return fmt.Errorf("failed to update channel default: %w", err)
			}
			return nil
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO channels (id, channel_type, access_type, scope, project_id, name, description, created_by, is_default, archived, created_at)
			VALUES (?, 'channel', 'open', ?, ?, ?, ?, 'system', ?, 0, ?)
		`, id, a.Scope, a.ProjectID, a.Name, a.Description, a.IsDefault, now)
		if err != nil {
			return classifyErr(err)
		}
		return nil

	case reconcile.CreateProjectLinkAction:
		direction := a.Direction
		if direction == "" {
			direction = identity.LinkBidirectional
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO project_links (project_a, project_b, direction, created_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(project_a, project_b) DO UPDATE SET direction = excluded.direction
		`, a.ProjectA, a.ProjectB, direction, now)
		if err != nil {
			return classifyErr(err)
		}
		return nil

	case reconcile.RegisterAgentAction:
		_, err := tx.ExecContext(ctx, `
			INSERT INTO agents (name, project_id, description, status, dm_policy, discoverable, created_at)
			VALUES (?, ?, ?, 'active', ?, ?, ?)
			ON CONFLICT(name, project_id) DO UPDATE SET
				description = excluded.description,
				dm_policy = excluded.dm_policy,
				discoverable = excluded.discoverable
		`, a.Agent.Name, a.Agent.ProjectID, a.Description, a.DMPolicy, a.Discoverable, now)
		if err != nil {
			return classifyErr(err)
		}
		if a.CreateNotesChannel {
			return s.applyNotesChannel(ctx, tx, a.Agent, now)
		}
		return nil

	case reconcile.AddMembershipAction:
		invitedBy := membership.InvitedBySystem
		_, err := tx.ExecContext(ctx, `
			INSERT INTO channel_members (channel_id, agent_name, agent_project_id, invited_by, source, can_leave, can_send, can_invite, can_manage, is_from_default, is_muted, joined_at)
			VALUES (?, ?, ?, ?, ?, 1, 1, 0, 0, ?, 0, ?)
			ON CONFLICT(channel_id, agent_name, agent_project_id) DO NOTHING
		`, a.ChannelID, a.Agent.Name, a.Agent.ProjectID, invitedBy, a.Source, a.IsFromDefault, now)
		if err != nil {
			return classifyErr(err)
		}
		return nil

	case reconcile.RemoveMembershipAction:
		// The WHERE clause re-checks eligibility: only rows default
		// provisioning still owns are removed.
		_, err := tx.ExecContext(ctx, `
			DELETE FROM channel_members
			WHERE channel_id = ? AND agent_name = ? AND agent_project_id = ?
				AND source = 'default' AND is_from_default = 1 AND can_leave = 1
		`, a.ChannelID, a.Agent.Name, a.Agent.ProjectID)
		if err != nil {
			return classifyErr(err)
		}
		return nil

	default:
		return fmt.Errorf("unknown action type %T", action)
	}
}

func (s *ReconcileStore) applyNotesChannel(ctx context.Context, tx *sql.Tx, agent identity.AgentRef, now int64) error {
	id := membership.NotesChannelID(agent)
	scope := membership.ScopeGlobal
	if agent.ProjectID != "" {
		scope = membership.ScopeProject
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO channels (id, channel_type, access_type, scope, project_id, name, description, created_by, is_default, archived, created_at)
		VALUES (?, 'notes', 'private', ?, ?, ?, '', 'system', 0, 0, ?)
		ON CONFLICT(id) DO NOTHING
	`, id, scope, agent.ProjectID, agent.Name, now)
	if err != nil {
		return classifyErr(err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO channel_members (channel_id, agent_name, agent_project_id, invited_by, source, can_leave, can_send, can_invite, can_manage, is_from_default, is_muted, joined_at)
		VALUES (?, ?, ?, 'system', 'notes', 0, 1, 0, 1, 0, 0, ?)
		ON CONFLICT(channel_id, agent_name, agent_project_id) DO NOTHING
	`, id, agent.Name, agent.ProjectID, now)
	if err != nil {
		return classifyErr(err)
	}
	return nil
}
