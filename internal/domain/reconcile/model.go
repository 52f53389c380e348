package reconcile

import (
	"fmt"

	"github.com/theo-nash/claude-slack/internal/domain/identity"
	"github.com/theo-nash/claude-slack/internal/domain/membership"
)

// Phase orders plan execution. Phases run strictly in sequence; actions
// within a phase commit in one write transaction.
type Phase int

const (
	PhaseInfrastructure Phase = iota
	PhaseAgents
	PhaseAccess
)

func (p Phase) String() string {
	switch p {
	case PhaseInfrastructure:
		return "infrastructure"
	case PhaseAgents:
		return "agents"
	case PhaseAccess:
		return "access"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Action is one step of a reconciliation plan.
type Action interface {
	Phase() Phase
	Describe() string
}

// CreateChannelAction converges a channel to existence with the desired
// default flag. Creating an already-present channel only updates the flag.
type CreateChannelAction struct {
	Scope       membership.Scope
	ProjectID   string
	Name        string
	Description string
	IsDefault   bool
}

func (a CreateChannelAction) Phase() Phase { return PhaseInfrastructure }
func (a CreateChannelAction) Describe() string {
	return fmt.Sprintf("create_channel %s default=%t", membership.ChannelIDFor(a.Scope, a.ProjectID, a.Name), a.IsDefault)
}

// CreateProjectLinkAction links two projects for discoverability.
type CreateProjectLinkAction struct {
	ProjectA  string
	ProjectB  string
	Direction identity.LinkDirection
}

func (a CreateProjectLinkAction) Phase() Phase { return PhaseInfrastructure }
func (a CreateProjectLinkAction) Describe() string {
	return fmt.Sprintf("create_project_link %s<->%s %s", a.ProjectA, a.ProjectB, a.Direction)
}

// RegisterAgentAction registers or refreshes an agent, optionally
// provisioning its notes channel.
type RegisterAgentAction struct {
	Agent              identity.AgentRef
	Description        string
	DMPolicy           identity.DMPolicy
	Discoverable       identity.Discoverability
	CreateNotesChannel bool
}

func (a RegisterAgentAction) Phase() Phase { return PhaseAgents }
func (a RegisterAgentAction) Describe() string {
	return fmt.Sprintf("register_agent %s notes=%t", a.Agent, a.CreateNotesChannel)
}

// AddMembershipAction inserts a membership row.
type AddMembershipAction struct {
	ChannelID     string
	Agent         identity.AgentRef
	Source        membership.MemberSource
	IsFromDefault bool
}

func (a AddMembershipAction) Phase() Phase { return PhaseAccess }
func (a AddMembershipAction) Describe() string {
	return fmt.Sprintf("add_membership %s -> %s (%s)", a.Agent, a.ChannelID, a.Source)
}

// RemoveMembershipAction removes a default-provisioned row whose channel
// is no longer a default. Only rows still carrying source=default and
// is_from_default=true are eligible.
type RemoveMembershipAction struct {
	ChannelID string
	Agent     identity.AgentRef
}

func (a RemoveMembershipAction) Phase() Phase { return PhaseAccess }
func (a RemoveMembershipAction) Describe() string {
	return fmt.Sprintf("remove_membership %s -> %s", a.Agent, a.ChannelID)
}

// Plan is the ordered set of actions that converges the store to the
// desired state. A plan built against a converged store is empty.
type Plan struct {
	Actions []Action
}

// ByPhase returns the plan's actions grouped in execution order.
func (p *Plan) ByPhase() [][]Action {
	groups := make([][]Action, PhaseAccess+1)
	for _, a := range p.Actions {
		groups[a.Phase()] = append(groups[a.Phase()], a)
	}
	return groups
}

// ActionError pairs a failed action with its error.
type ActionError struct {
	Action Action
	Err    error
}

func (e ActionError) Error() string {
	return fmt.Sprintf("%s: %v", e.Action.Describe(), e.Err)
}

// Result summarizes a reconciliation run.
type Result struct {
	Total    int
	Executed int
	Failed   int
	Errors   []ActionError
	Success  bool
}

// DesiredState is the declarative input: configured defaults and links
// plus discovered agents, scoped to one optional project.
type DesiredState struct {
	// ProjectID is empty when only the global scope is reconciled.
	ProjectID       string
	GlobalChannels  []ChannelDef
	ProjectChannels []ChannelDef
	Links           []LinkDef
	Agents          []DiscoveredAgent
}

// ChannelDef is a configured default channel.
type ChannelDef struct {
	Name        string
	Description string
}

// LinkDef is a configured project link, already resolved to project ids.
type LinkDef struct {
	ProjectA  string
	ProjectB  string
	Direction identity.LinkDirection
}

// DiscoveredAgent is an agent definition parsed from frontmatter.
type DiscoveredAgent struct {
	Name            string
	ProjectID       string
	Description     string
	DMPolicy        identity.DMPolicy
	Discoverable    identity.Discoverability
	GlobalChannels  []string
	ProjectChannels []string
	Exclude         []string
	NeverDefault    bool
}

// Ref returns the agent's composite key.
func (d DiscoveredAgent) Ref() identity.AgentRef {
	return identity.AgentRef{Name: d.Name, ProjectID: d.ProjectID}
}
