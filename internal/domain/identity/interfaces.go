package identity

import "context"

// ProjectRepository provides persistence for projects and project links.
type ProjectRepository interface {
	Create(ctx context.Context, proj *Project) error
	Get(ctx context.Context, id string) (*Project, error)
	GetByPath(ctx context.Context, path string) (*Project, error)
	List(ctx context.Context) ([]Project, error)
	CreateLink(ctx context.Context, link *ProjectLink) error
	ListLinks(ctx context.Context) ([]ProjectLink, error)
}

// AgentRepository provides persistence for agents.
type AgentRepository interface {
	Upsert(ctx context.Context, agent *Agent) error
	Get(ctx context.Context, ref AgentRef) (*Agent, error)
	List(ctx context.Context, opts ListAgentsOptions) ([]Agent, error)
	SetDMPermission(ctx context.Context, agent, other AgentRef, kind DMPermissionKind) error
	GetDMPermission(ctx context.Context, agent, other AgentRef) (DMPermissionKind, bool, error)
}

// SessionRepository provides persistence for sessions and tool calls.
type SessionRepository interface {
	Upsert(ctx context.Context, sess *Session) error
	Touch(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*Session, error)
	RecordToolCall(ctx context.Context, call *ToolCall) (int64, error)
}

// ListAgentsOptions filters agent listings. Caller, when set, restricts the
// result to agents the caller may discover.
type ListAgentsOptions struct {
	Caller    *AgentRef
	ProjectID string
	Limit     int
}
