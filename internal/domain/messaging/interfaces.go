package messaging

import (
	"context"
	"time"

	"github.com/theo-nash/claude-slack/internal/domain/identity"
	"github.com/theo-nash/claude-slack/internal/domain/membership"
)

// MessageRepository provides persistence for messages. Create performs the
// membership check and the insert in one write transaction.
type MessageRepository interface {
	Create(ctx context.Context, msg *Message) (int64, error)
	Get(ctx context.Context, id int64) (*Message, error)
	List(ctx context.Context, opts ListMessagesOptions) ([]Message, error)
	// Candidates returns messages matching the query and filters within
	// the given channel set.
	Candidates(ctx context.Context, opts CandidateOptions) ([]Message, error)
	// DeleteExpired removes messages older than cutoff, sparing notes
	// channels. Returns the number of rows removed.
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// AccessControl is the slice of the membership service messaging relies
// on.
type AccessControl interface {
	GetChannel(ctx context.Context, channelID string) (*membership.Channel, error)
	GetMember(ctx context.Context, channelID string, agent identity.AgentRef) (*membership.Member, error)
	AccessibleChannelIDs(ctx context.Context, agent identity.AgentRef) ([]string, error)
	ValidateMentions(ctx context.Context, channelID string, refs []identity.AgentRef) (*membership.MentionPartition, error)
	EnsureNotesChannel(ctx context.Context, agent identity.AgentRef) (*membership.Channel, error)
}

// Ranker scores a candidate message set. The core guarantees only that
// inaccessible messages never reach the ranker and that results come back
// ordered by final score, then id, both descending.
type Ranker interface {
	Rank(ctx context.Context, query, profile string, candidates []Message) ([]ScoredMessage, error)
}
