package reconcile

import (
	"context"

	"github.com/theo-nash/claude-slack/internal/domain/identity"
	"github.com/theo-nash/claude-slack/internal/domain/membership"
)

// StateReader exposes the slice of current store state the planner diffs
// against.
type StateReader interface {
	GetChannel(ctx context.Context, id string) (*membership.Channel, error)
	ListDefaultChannels(ctx context.Context, scope membership.Scope, projectID string) ([]membership.Channel, error)
	GetAgent(ctx context.Context, ref identity.AgentRef) (*identity.Agent, error)
	GetMember(ctx context.Context, channelID string, agent identity.AgentRef) (*membership.Member, error)
	// ListDefaultMembers returns rows with is_from_default=true and
	// source=default for the channel.
	ListDefaultMembers(ctx context.Context, channelID string) ([]membership.Member, error)
	HasProjectLink(ctx context.Context, projectA, projectB string) (bool, error)
}

// Applier executes one phase of a plan inside a single write transaction,
// returning per-action errors without aborting the phase.
type Applier interface {
	ApplyPhase(ctx context.Context, actions []Action) []ActionError
}
