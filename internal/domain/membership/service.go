package membership

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/theo-nash/claude-slack/internal/domain/identity"
	"github.com/theo-nash/claude-slack/internal/repository"
)

// Service handles channel and membership business logic.
type Service struct {
	channels ChannelRepository
	members  MemberRepository
	agents   AgentDirectory
	logger   *slog.Logger
}

// NewService creates a new membership service.
func NewService(channels ChannelRepository, members MemberRepository, agents AgentDirectory, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{channels: channels, members: members, agents: agents, logger: logger}
}

// CreateChannelRequest describes a channel creation.
type CreateChannelRequest struct {
	Scope       Scope
	Name        string
	Description string
	AccessType  AccessType
	ProjectID   string
	CreatedBy   identity.AgentRef
	IsDefault   bool
}

// CreateChannel creates a named channel. Members and private channels add
// their creator as the initial member.
func (s *Service) CreateChannel(ctx context.Context, req CreateChannelRequest) (*Channel, error) {
	if !ValidName(req.Name) {
		return nil, ErrInvalidInput
	}
	if req.AccessType == "" {
		req.AccessType = AccessOpen
	}
	switch req.Scope {
	case ScopeGlobal:
		if req.ProjectID != "" {
			return nil, ErrInvalidInput
		}
	case ScopeProject:
		if req.ProjectID == "" {
			return nil, ErrInvalidInput
		}
	default:
		return nil, ErrInvalidInput
	}
	if req.IsDefault && req.AccessType != AccessOpen {
		return nil, ErrInvalidInput
	}

	ch := &Channel{
		ID:          ChannelIDFor(req.Scope, req.ProjectID, req.Name),
		ChannelType: TypeChannel,
		AccessType:  req.AccessType,
		Scope:       req.Scope,
		ProjectID:   req.ProjectID,
		Name:        req.Name,
		Description: req.Description,
		CreatedBy:   req.CreatedBy.Key(),
		IsDefault:   req.IsDefault,
		CreatedAt:   time.Now(),
	}
	if err := s.channels.Create(ctx, ch); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("creating channel: %w", err)
	}

	// Non-open channels need an initial member who can invite others; the
	// creator takes that role.
	if req.AccessType != AccessOpen && req.CreatedBy.Name != "" {
		member := &Member{
			ChannelID: ch.ID,
			Agent:     req.CreatedBy,
			InvitedBy: InvitedBySelf,
			Source:    SourceExplicit,
			CanLeave:  req.AccessType != AccessPrivate,
			CanSend:   true,
			CanInvite: req.AccessType == AccessMembers,
			CanManage: true,
			JoinedAt:  time.Now(),
		}
		if _, err := s.members.Add(ctx, member); err != nil {
			return nil, fmt.Errorf("adding channel creator: %w", err)
		}
	}

	s.logger.Info("created channel", "channel_id", ch.ID, "access", ch.AccessType)
	return ch, nil
}

// GetChannel returns a channel by id.
func (s *Service) GetChannel(ctx context.Context, id string) (*Channel, error) {
	ch, err := s.channels.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrChannelNotFound
		}
		return nil, fmt.Errorf("getting channel: %w", err)
	}
	return ch, nil
}

// ListChannels lists channels with optional filters.
func (s *Service) ListChannels(ctx context.Context, opts ListChannelsOptions) ([]Channel, error) {
	return s.channels.List(ctx, opts)
}

// JoinChannel adds the agent to an open channel, or confirms an existing
// invitation on a members channel. Idempotent.
func (s *Service) JoinChannel(ctx context.Context, agent identity.AgentRef, channelID string) error {
	ch, err := s.GetChannel(ctx, channelID)
	if err != nil {
		return err
	}
	if ch.Archived {
		return ErrArchived
	}
	if _, err := s.agents.GetAgent(ctx, agent); err != nil {
		if errors.Is(err, identity.ErrAgentNotFound) {
			return ErrAgentNotFound
		}
		return err
	}

	existing, err := s.members.Get(ctx, channelID, agent)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("checking membership: %w", err)
	}
	if existing != nil {
		// Joining over a default-provisioned row pins it as explicit so
		// default drift no longer removes it.
		if existing.Source == SourceDefault {
			if err := s.members.Promote(ctx, channelID, agent, SourceExplicit, InvitedBySelf); err != nil {
				return fmt.Errorf("promoting membership: %w", err)
			}
		}
		return nil
	}

	if ch.AccessType != AccessOpen {
		return ErrAccessDenied
	}

	member := &Member{
		ChannelID: channelID,
		Agent:     agent,
		InvitedBy: InvitedBySelf,
		Source:    SourceExplicit,
		CanLeave:  true,
		CanSend:   true,
		JoinedAt:  time.Now(),
	}
	if _, err := s.members.Add(ctx, member); err != nil {
		return fmt.Errorf("joining channel: %w", err)
	}
	return nil
}

// LeaveChannel removes the agent's membership row when it is allowed to
// leave.
func (s *Service) LeaveChannel(ctx context.Context, agent identity.AgentRef, channelID string) error {
	if _, err := s.GetChannel(ctx, channelID); err != nil {
		return err
	}
	member, err := s.members.Get(ctx, channelID, agent)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotAMember
		}
		return fmt.Errorf("checking membership: %w", err)
	}
	if !member.CanLeave {
		return ErrNotAllowedToLeave
	}
	if err := s.members.Remove(ctx, channelID, agent); err != nil {
		return fmt.Errorf("leaving channel: %w", err)
	}
	return nil
}

// InviteToChannel adds invitee on behalf of inviter, who must hold the
// can_invite capability.
func (s *Service) InviteToChannel(ctx context.Context, channelID string, invitee, inviter identity.AgentRef) error {
	ch, err := s.GetChannel(ctx, channelID)
	if err != nil {
		return err
	}
	if ch.Archived {
		return ErrArchived
	}
	inviterRow, err := s.members.Get(ctx, channelID, inviter)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotAllowedToInvite
		}
		return fmt.Errorf("checking inviter: %w", err)
	}
	if !inviterRow.CanInvite {
		return ErrNotAllowedToInvite
	}
	if _, err := s.agents.GetAgent(ctx, invitee); err != nil {
		if errors.Is(err, identity.ErrAgentNotFound) {
			return ErrAgentNotFound
		}
		return err
	}

	existing, err := s.members.Get(ctx, channelID, invitee)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("checking invitee: %w", err)
	}
	if existing != nil {
		if existing.Source == SourceDefault {
			if err := s.members.Promote(ctx, channelID, invitee, SourceInvitation, inviter.Key()); err != nil {
				return fmt.Errorf("promoting membership: %w", err)
			}
		}
		return nil
	}

	member := &Member{
		ChannelID: channelID,
		Agent:     invitee,
		InvitedBy: inviter.Key(),
		Source:    SourceInvitation,
		CanLeave:  true,
		CanSend:   true,
		JoinedAt:  time.Now(),
	}
	if _, err := s.members.Add(ctx, member); err != nil {
		return fmt.Errorf("inviting to channel: %w", err)
	}
	return nil
}

// CreateOrGetDM provisions the direct-message channel between two agents,
// enforcing both DM policies. The channel id is canonical for the pair.
func (s *Service) CreateOrGetDM(ctx context.Context, a, b identity.AgentRef) (*Channel, error) {
	if a == b {
		return nil, ErrInvalidInput
	}
	agentA, err := s.agents.GetAgent(ctx, a)
	if err != nil {
		if errors.Is(err, identity.ErrAgentNotFound) {
			return nil, ErrAgentNotFound
		}
		return nil, err
	}
	agentB, err := s.agents.GetAgent(ctx, b)
	if err != nil {
		if errors.Is(err, identity.ErrAgentNotFound) {
			return nil, ErrAgentNotFound
		}
		return nil, err
	}

	id := DMChannelID(a, b)
	existing, err := s.channels.Get(ctx, id)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("getting dm channel: %w", err)
	}

	okA, err := s.agents.DMAllowed(ctx, agentA, b)
	if err != nil {
		return nil, err
	}
	okB, err := s.agents.DMAllowed(ctx, agentB, a)
	if err != nil {
		return nil, err
	}
	if !okA || !okB {
		return nil, ErrDMForbidden
	}

	ch := &Channel{
		ID:          id,
		ChannelType: TypeDirect,
		AccessType:  AccessPrivate,
		Scope:       ScopeGlobal,
		CreatedBy:   a.Key(),
		CreatedAt:   time.Now(),
	}
	if err := s.channels.Create(ctx, ch); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return s.GetChannel(ctx, id)
		}
		return nil, fmt.Errorf("creating dm channel: %w", err)
	}

	for _, ref := range []identity.AgentRef{a, b} {
		member := &Member{
			ChannelID: id,
			Agent:     ref,
			InvitedBy: InvitedBySystem,
			Source:    SourceDM,
			CanSend:   true,
			JoinedAt:  time.Now(),
		}
		if _, err := s.members.Add(ctx, member); err != nil {
			return nil, fmt.Errorf("adding dm member: %w", err)
		}
	}
	return ch, nil
}

// EnsureNotesChannel provisions the agent's private notes channel. Any
// number of calls yields one channel and one member row.
func (s *Service) EnsureNotesChannel(ctx context.Context, agent identity.AgentRef) (*Channel, error) {
	if _, err := s.agents.GetAgent(ctx, agent); err != nil {
		if errors.Is(err, identity.ErrAgentNotFound) {
			return nil, ErrAgentNotFound
		}
		return nil, err
	}

	id := NotesChannelID(agent)
	ch, err := s.channels.Get(ctx, id)
	if err == nil {
		return ch, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("getting notes channel: %w", err)
	}

	scope := ScopeGlobal
	if agent.ProjectID != "" {
		scope = ScopeProject
	}
	ch = &Channel{
		ID:          id,
		ChannelType: TypeNotes,
		AccessType:  AccessPrivate,
		Scope:       scope,
		ProjectID:   agent.ProjectID,
		Name:        agent.Name,
		CreatedBy:   InvitedBySystem,
		CreatedAt:   time.Now(),
	}
	if err := s.channels.Create(ctx, ch); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return s.GetChannel(ctx, id)
		}
		return nil, fmt.Errorf("creating notes channel: %w", err)
	}

	member := &Member{
		ChannelID: id,
		Agent:     agent,
		InvitedBy: InvitedBySystem,
		Source:    SourceNotes,
		CanSend:   true,
		CanManage: true,
		JoinedAt:  time.Now(),
	}
	if _, err := s.members.Add(ctx, member); err != nil {
		return nil, fmt.Errorf("adding notes member: %w", err)
	}
	return ch, nil
}

// CheckAccess reports whether the agent holds a membership row on a
// non-archived channel. Used uniformly by messaging, search and peek.
func (s *Service) CheckAccess(ctx context.Context, agent identity.AgentRef, channelID string) (bool, error) {
	ch, err := s.channels.Get(ctx, channelID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("getting channel: %w", err)
	}
	if ch.Archived {
		return false, nil
	}
	_, err = s.members.Get(ctx, channelID, agent)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("checking membership: %w", err)
	}
	return true, nil
}

// GetMember returns the membership row for (channel, agent).
func (s *Service) GetMember(ctx context.Context, channelID string, agent identity.AgentRef) (*Member, error) {
	m, err := s.members.Get(ctx, channelID, agent)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotAMember
		}
		return nil, fmt.Errorf("getting member: %w", err)
	}
	return m, nil
}

// ListMembers returns all membership rows of a channel.
func (s *Service) ListMembers(ctx context.Context, channelID string) ([]Member, error) {
	return s.members.ListByChannel(ctx, channelID)
}

// AccessibleChannelIDs returns ids of non-archived channels the agent is a
// member of.
func (s *Service) AccessibleChannelIDs(ctx context.Context, agent identity.AgentRef) ([]string, error) {
	return s.members.AccessibleChannelIDs(ctx, agent)
}

// ValidateMentions partitions agent references against channel membership.
func (s *Service) ValidateMentions(ctx context.Context, channelID string, refs []identity.AgentRef) (*MentionPartition, error) {
	if _, err := s.GetChannel(ctx, channelID); err != nil {
		return nil, err
	}
	part, err := s.members.PartitionMentions(ctx, channelID, refs)
	if err != nil {
		return nil, fmt.Errorf("partitioning mentions: %w", err)
	}
	return part, nil
}

// SetMuted flips the is_muted flag on the agent's membership row.
func (s *Service) SetMuted(ctx context.Context, agent identity.AgentRef, channelID string, muted bool) error {
	if err := s.members.SetMuted(ctx, channelID, agent, muted); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotAMember
		}
		return fmt.Errorf("setting mute: %w", err)
	}
	return nil
}

// ArchiveChannel marks a channel archived; archived channels reject posts
// and access checks.
func (s *Service) ArchiveChannel(ctx context.Context, channelID string, archived bool) error {
	if err := s.channels.SetArchived(ctx, channelID, archived); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrChannelNotFound
		}
		return fmt.Errorf("archiving channel: %w", err)
	}
	return nil
}

// ApplyDefaultChannels joins the agent to every default channel in its
// scopes, honoring per-agent exclusions. Idempotent; existing rows are left
// untouched.
func (s *Service) ApplyDefaultChannels(ctx context.Context, agent identity.AgentRef, exclusions []string, neverDefault bool) (int, error) {
	if neverDefault {
		return 0, nil
	}
	excluded := make(map[string]bool, len(exclusions))
	for _, name := range exclusions {
		excluded[name] = true
	}

	defaults, err := s.channels.ListDefaults(ctx, ScopeGlobal, "")
	if err != nil {
		return 0, fmt.Errorf("listing global defaults: %w", err)
	}
	if agent.ProjectID != "" {
		projDefaults, err := s.channels.ListDefaults(ctx, ScopeProject, agent.ProjectID)
		if err != nil {
			return 0, fmt.Errorf("listing project defaults: %w", err)
		}
		defaults = append(defaults, projDefaults...)
	}

	added := 0
	for _, ch := range defaults {
		if excluded[ch.Name] || ch.Archived {
			continue
		}
		member := &Member{
			ChannelID:     ch.ID,
			Agent:         agent,
			InvitedBy:     InvitedBySystem,
			Source:        SourceDefault,
			CanLeave:      true,
			CanSend:       true,
			IsFromDefault: true,
			JoinedAt:      time.Now(),
		}
		inserted, err := s.members.Add(ctx, member)
		if err != nil {
			return added, fmt.Errorf("adding default membership: %w", err)
		}
		if inserted {
			added++
		}
	}
	return added, nil
}
