package membership

import (
	"time"

	"github.com/theo-nash/claude-slack/internal/domain/identity"
)

// ChannelType distinguishes regular channels, DMs and notes journals
type ChannelType string

const (
	TypeChannel ChannelType = "channel"
	TypeDirect  ChannelType = "direct"
	TypeNotes   ChannelType = "notes"
)

// AccessType controls how membership is acquired
type AccessType string

const (
	AccessOpen    AccessType = "open"
	AccessMembers AccessType = "members"
	AccessPrivate AccessType = "private"
)

// Scope determines a channel's namespace key
type Scope string

const (
	ScopeGlobal  Scope = "global"
	ScopeProject Scope = "project"
)

// MemberSource records how a membership row came to exist
type MemberSource string

const (
	SourceDefault    MemberSource = "default"
	SourceExplicit   MemberSource = "explicit"
	SourceDM         MemberSource = "dm"
	SourceNotes      MemberSource = "notes"
	SourceInvitation MemberSource = "invitation"
)

// InvitedBySystem and InvitedBySelf are the non-agent invited_by markers.
const (
	InvitedBySystem = "system"
	InvitedBySelf   = "self"
)

// Channel represents a conversation container
type Channel struct {
	ID          string      `json:"id"`
	ChannelType ChannelType `json:"channel_type"`
	AccessType  AccessType  `json:"access_type"`
	Scope       Scope       `json:"scope"`
	ProjectID   string      `json:"project_id,omitempty"`
	Name        string      `json:"name,omitempty"`
	Description string      `json:"description,omitempty"`
	CreatedBy   string      `json:"created_by,omitempty"`
	IsDefault   bool        `json:"is_default"`
	Archived    bool        `json:"archived"`
	CreatedAt   time.Time   `json:"created_at"`
}

// Member is the (channel, agent) relationship with capability flags and
// provenance
type Member struct {
	ChannelID     string       `json:"channel_id"`
	Agent         identity.AgentRef `json:"agent"`
	InvitedBy     string       `json:"invited_by"`
	Source        MemberSource `json:"source"`
	CanLeave      bool         `json:"can_leave"`
	CanSend       bool         `json:"can_send"`
	CanInvite     bool         `json:"can_invite"`
	CanManage     bool         `json:"can_manage"`
	IsFromDefault bool         `json:"is_from_default"`
	IsMuted       bool         `json:"is_muted"`
	JoinedAt      time.Time    `json:"joined_at"`
}

// MentionPartition is the result of validating a list of @mentions against
// a channel: valid are members, invalid exist but lack access, unknown were
// never registered. The three sets are disjoint and cover the input.
type MentionPartition struct {
	Valid   []identity.AgentRef `json:"valid"`
	Invalid []identity.AgentRef `json:"invalid"`
	Unknown []identity.AgentRef `json:"unknown"`
}

// ListChannelsOptions filters channel listings.
type ListChannelsOptions struct {
	Agent           *identity.AgentRef
	ProjectID       string
	IncludeArchived bool
	IsDefault       *bool
}
