package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"time"
)

// agentNameRe is the NAME production of the agent-key grammar.
var agentNameRe = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

// ValidAgentName reports whether s is a legal agent name.
func ValidAgentName(s string) bool { return agentNameRe.MatchString(s) }

// AgentStatus represents the lifecycle status of an agent
type AgentStatus string

const (
	StatusActive   AgentStatus = "active"
	StatusInactive AgentStatus = "inactive"
)

// DMPolicy controls who may open a direct-message channel with an agent
type DMPolicy string

const (
	DMOpen       DMPolicy = "open"
	DMRestricted DMPolicy = "restricted"
	DMClosed     DMPolicy = "closed"
)

// Discoverability controls who can see an agent in listings
type Discoverability string

const (
	DiscoverPublic  Discoverability = "public"
	DiscoverProject Discoverability = "project"
	DiscoverPrivate Discoverability = "private"
)

// LinkDirection describes the discoverability direction of a project link
type LinkDirection string

const (
	LinkAToB          LinkDirection = "a_to_b"
	LinkBToA          LinkDirection = "b_to_a"
	LinkBidirectional LinkDirection = "bidirectional"
)

// AgentRef identifies an agent by its composite key. An empty ProjectID
// denotes a global agent.
type AgentRef struct {
	Name      string `json:"name"`
	ProjectID string `json:"project_id,omitempty"`
}

// Key renders the reference in agent-key form: "name" or "name@<project_id>".
func (r AgentRef) Key() string {
	if r.ProjectID == "" {
		return r.Name
	}
	return fmt.Sprintf("%s@%s", r.Name, r.ProjectID)
}

func (r AgentRef) String() string { return r.Key() }

// Project represents a workspace directory registered with the system
type Project struct {
	ID        string    `json:"id"`
	Path      string    `json:"path"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// ProjectIDForPath derives the stable project id: the first 32 hex
// characters of SHA-256 over the absolute path.
func ProjectIDForPath(absPath string) string {
	sum := sha256.Sum256([]byte(absPath))
	return hex.EncodeToString(sum[:])[:32]
}

// Agent represents a registered agent identity
type Agent struct {
	Name         string          `json:"name"`
	ProjectID    string          `json:"project_id,omitempty"`
	Description  string          `json:"description,omitempty"`
	Status       AgentStatus     `json:"status"`
	DMPolicy     DMPolicy        `json:"dm_policy"`
	Discoverable Discoverability `json:"discoverable"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Ref returns the agent's composite key.
func (a *Agent) Ref() AgentRef {
	return AgentRef{Name: a.Name, ProjectID: a.ProjectID}
}

// Session tracks the active context of a Claude Code session
type Session struct {
	ID             string    `json:"id"`
	ProjectID      string    `json:"project_id,omitempty"`
	TranscriptPath string    `json:"transcript_path,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ToolCall records a single tool invocation correlated to a session
type ToolCall struct {
	ID         int64     `json:"id"`
	SessionID  string    `json:"session_id"`
	ToolName   string    `json:"tool_name"`
	InputsHash string    `json:"tool_inputs_hash"`
	Inputs     string    `json:"tool_inputs"`
	CreatedAt  time.Time `json:"created_at"`
}

// ProjectLink governs cross-project agent discoverability
type ProjectLink struct {
	ProjectA  string        `json:"project_a"`
	ProjectB  string        `json:"project_b"`
	Direction LinkDirection `json:"direction"`
	CreatedAt time.Time     `json:"created_at"`
}

// DMPermissionKind is an allow or block entry backing the restricted policy
type DMPermissionKind string

const (
	DMAllow DMPermissionKind = "allow"
	DMBlock DMPermissionKind = "block"
)
