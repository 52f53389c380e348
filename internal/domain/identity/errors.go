package identity

import "errors"

var (
	// ErrProjectNotFound indicates the project doesn't exist.
	ErrProjectNotFound = errors.New("project not found")
	// ErrAgentNotFound indicates the agent doesn't exist.
	ErrAgentNotFound = errors.New("agent not found")
	// ErrSessionNotFound indicates the session doesn't exist.
	ErrSessionNotFound = errors.New("session not found")
	// ErrInvalidInput indicates invalid input for identity operations.
	ErrInvalidInput = errors.New("invalid identity input")
)
