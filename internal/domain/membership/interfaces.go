package membership

import (
	"context"

	"github.com/theo-nash/claude-slack/internal/domain/identity"
)

// ChannelRepository provides persistence for channels.
type ChannelRepository interface {
	Create(ctx context.Context, ch *Channel) error
	Get(ctx context.Context, id string) (*Channel, error)
	List(ctx context.Context, opts ListChannelsOptions) ([]Channel, error)
	ListDefaults(ctx context.Context, scope Scope, projectID string) ([]Channel, error)
	SetArchived(ctx context.Context, id string, archived bool) error
}

// MemberRepository provides persistence for membership rows.
type MemberRepository interface {
	// Add inserts the row if absent and reports whether it inserted.
	Add(ctx context.Context, m *Member) (bool, error)
	Get(ctx context.Context, channelID string, agent identity.AgentRef) (*Member, error)
	// Promote rewrites the provenance of an existing row, clearing
	// is_from_default.
	Promote(ctx context.Context, channelID string, agent identity.AgentRef, source MemberSource, invitedBy string) error
	Remove(ctx context.Context, channelID string, agent identity.AgentRef) error
	ListByChannel(ctx context.Context, channelID string) ([]Member, error)
	ListByAgent(ctx context.Context, agent identity.AgentRef) ([]Member, error)
	SetMuted(ctx context.Context, channelID string, agent identity.AgentRef, muted bool) error
	// PartitionMentions splits refs into member / non-member / unregistered
	// in a single query.
	PartitionMentions(ctx context.Context, channelID string, refs []identity.AgentRef) (*MentionPartition, error)
	// AccessibleChannelIDs returns ids of non-archived channels the agent
	// belongs to.
	AccessibleChannelIDs(ctx context.Context, agent identity.AgentRef) ([]string, error)
}

// AgentDirectory resolves agents and DM policy. Implemented by the
// identity service.
type AgentDirectory interface {
	GetAgent(ctx context.Context, ref identity.AgentRef) (*identity.Agent, error)
	DMAllowed(ctx context.Context, agent *identity.Agent, other identity.AgentRef) (bool, error)
}
