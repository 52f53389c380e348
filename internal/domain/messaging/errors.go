package messaging

import "errors"

var (
	// ErrMessageNotFound indicates the message doesn't exist.
	ErrMessageNotFound = errors.New("message not found")
	// ErrMessageTooLong indicates the content exceeds the configured limit.
	ErrMessageTooLong = errors.New("message too long")
	// ErrInvalidThread indicates the thread id matches no existing message.
	ErrInvalidThread = errors.New("invalid thread id")
	// ErrCannotSend indicates the membership row lacks can_send.
	ErrCannotSend = errors.New("not allowed to send to channel")
	// ErrInvalidInput indicates invalid input for messaging operations.
	ErrInvalidInput = errors.New("invalid message input")
)
