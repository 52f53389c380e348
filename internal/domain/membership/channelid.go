package membership

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/theo-nash/claude-slack/internal/domain/identity"
)

// Channel id grammar:
//
//	channel_id := "global:" NAME
//	            | "proj:"  HEX32 ":" NAME
//	            | "dm:"    AGENT_KEY ":" AGENT_KEY   (keys sorted)
//	            | "notes:" NAME ":" ("global" | HEX32)
//	AGENT_KEY  := NAME ("@" HEX32)?
//	NAME       := [a-z0-9][a-z0-9_-]{0,63}
//	HEX32      := 32 hex chars

var (
	nameRe  = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)
	hex32Re = regexp.MustCompile(`^[0-9a-f]{32}$`)
)

// ValidName reports whether s is a legal channel or agent name.
func ValidName(s string) bool { return nameRe.MatchString(s) }

// ValidProjectID reports whether s is a legal 32-hex project id.
func ValidProjectID(s string) bool { return hex32Re.MatchString(s) }

// GlobalChannelID returns the id of a global channel.
func GlobalChannelID(name string) string {
	return "global:" + name
}

// ProjectChannelID returns the id of a project-scoped channel.
func ProjectChannelID(projectID, name string) string {
	return fmt.Sprintf("proj:%s:%s", projectID, name)
}

// ChannelIDFor returns the channel id for a scope/project/name triple.
func ChannelIDFor(scope Scope, projectID, name string) string {
	if scope == ScopeProject {
		return ProjectChannelID(projectID, name)
	}
	return GlobalChannelID(name)
}

// DMChannelID returns the canonical id of the direct-message channel
// between two agents. The agent keys are sorted so both orderings map to
// the same id.
func DMChannelID(a, b identity.AgentRef) string {
	keys := []string{a.Key(), b.Key()}
	sort.Strings(keys)
	return fmt.Sprintf("dm:%s:%s", keys[0], keys[1])
}

// NotesChannelID returns the id of an agent's private notes channel.
func NotesChannelID(agent identity.AgentRef) string {
	scopeKey := "global"
	if agent.ProjectID != "" {
		scopeKey = agent.ProjectID
	}
	return fmt.Sprintf("notes:%s:%s", agent.Name, scopeKey)
}

// ParsedChannelID holds the decomposed form of a channel id.
type ParsedChannelID struct {
	Type      ChannelType
	Scope     Scope
	ProjectID string
	Name      string
	Agents    [2]identity.AgentRef // populated for dm ids
	Owner     identity.AgentRef    // populated for notes ids
}

// ParseChannelID decomposes a channel id, rejecting anything outside the
// grammar.
func ParseChannelID(id string) (*ParsedChannelID, error) {
	prefix, rest, ok := strings.Cut(id, ":")
	if !ok {
		return nil, ErrInvalidChannelID
	}

	switch prefix {
	case "global":
		if !ValidName(rest) {
			return nil, ErrInvalidChannelID
		}
		return &ParsedChannelID{Type: TypeChannel, Scope: ScopeGlobal, Name: rest}, nil

	case "proj":
		projectID, name, ok := strings.Cut(rest, ":")
		if !ok || !ValidProjectID(projectID) || !ValidName(name) {
			return nil, ErrInvalidChannelID
		}
		return &ParsedChannelID{Type: TypeChannel, Scope: ScopeProject, ProjectID: projectID, Name: name}, nil

	case "dm":
		keyA, keyB, ok := strings.Cut(rest, ":")
		if !ok {
			return nil, ErrInvalidChannelID
		}
		a, err := parseAgentKey(keyA)
		if err != nil {
			return nil, err
		}
		b, err := parseAgentKey(keyB)
		if err != nil {
			return nil, err
		}
		if keyA > keyB {
			return nil, ErrInvalidChannelID
		}
		return &ParsedChannelID{Type: TypeDirect, Scope: ScopeGlobal, Agents: [2]identity.AgentRef{a, b}}, nil

	case "notes":
		name, scopeKey, ok := strings.Cut(rest, ":")
		if !ok || !ValidName(name) {
			return nil, ErrInvalidChannelID
		}
		owner := identity.AgentRef{Name: name}
		scope := ScopeGlobal
		if scopeKey != "global" {
			if !ValidProjectID(scopeKey) {
				return nil, ErrInvalidChannelID
			}
			owner.ProjectID = scopeKey
			scope = ScopeProject
		}
		return &ParsedChannelID{Type: TypeNotes, Scope: scope, Name: name, Owner: owner}, nil

	default:
		return nil, ErrInvalidChannelID
	}
}

// ParseAgentKey parses an AGENT_KEY of the form "name" or "name@hex32".
func ParseAgentKey(key string) (identity.AgentRef, error) {
	return parseAgentKey(key)
}

func parseAgentKey(key string) (identity.AgentRef, error) {
	name, projectID, found := strings.Cut(key, "@")
	if !ValidName(name) {
		return identity.AgentRef{}, ErrInvalidChannelID
	}
	if !found {
		return identity.AgentRef{Name: name}, nil
	}
	if !ValidProjectID(projectID) {
		return identity.AgentRef{}, ErrInvalidChannelID
	}
	return identity.AgentRef{Name: name, ProjectID: projectID}, nil
}
