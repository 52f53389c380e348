package membership

import "errors"

var (
	// ErrChannelNotFound indicates the channel doesn't exist.
	ErrChannelNotFound = errors.New("channel not found")
	// ErrAgentNotFound indicates the agent doesn't exist.
	ErrAgentNotFound = errors.New("agent not found")
	// ErrNotAMember indicates the agent has no membership row.
	ErrNotAMember = errors.New("not a member of channel")
	// ErrNotAllowedToLeave indicates the membership is fixed.
	ErrNotAllowedToLeave = errors.New("not allowed to leave channel")
	// ErrNotAllowedToInvite indicates the inviter lacks the capability.
	ErrNotAllowedToInvite = errors.New("not allowed to invite to channel")
	// ErrAccessDenied indicates the channel does not admit the agent.
	ErrAccessDenied = errors.New("access denied")
	// ErrDMForbidden indicates a DM policy rejected the pairing.
	ErrDMForbidden = errors.New("dm forbidden by policy")
	// ErrArchived indicates the channel is archived.
	ErrArchived = errors.New("channel is archived")
	// ErrDuplicate indicates a unique-key clash on create.
	ErrDuplicate = errors.New("channel already exists")
	// ErrInvalidChannelID indicates a malformed channel id.
	ErrInvalidChannelID = errors.New("invalid channel id")
	// ErrInvalidInput indicates a bad scope/project combination or name.
	ErrInvalidInput = errors.New("invalid channel input")
)
