package transport

import (
	"errors"
	"net/http"

	"github.com/theo-nash/claude-slack/internal/domain/identity"
	"github.com/theo-nash/claude-slack/internal/domain/membership"
	"github.com/theo-nash/claude-slack/internal/domain/messaging"
	"github.com/theo-nash/claude-slack/internal/repository"
)

// Error kinds surfaced over the API.
const (
	KindNotFound           = "NotFound"
	KindPreconditionFailed = "PreconditionFailed"
	KindConflict           = "Conflict"
	KindInvalid            = "Invalid"
	KindStoreBusy          = "StoreBusy"
	KindInternal           = "Internal"
)

// APIError is the error body of a failed request.
type APIError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// mapError classifies a domain error into an HTTP status and API error
// kind. Unexpected errors map to Internal with details withheld.
func mapError(err error) (int, APIError) {
	switch {
	case errors.Is(err, membership.ErrChannelNotFound),
		errors.Is(err, membership.ErrAgentNotFound),
		errors.Is(err, identity.ErrProjectNotFound),
		errors.Is(err, identity.ErrAgentNotFound),
		errors.Is(err, identity.ErrSessionNotFound),
		errors.Is(err, messaging.ErrMessageNotFound),
		errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound, APIError{Kind: KindNotFound, Message: err.Error()}

	case errors.Is(err, membership.ErrNotAMember),
		errors.Is(err, membership.ErrNotAllowedToLeave),
		errors.Is(err, membership.ErrNotAllowedToInvite),
		errors.Is(err, membership.ErrAccessDenied),
		errors.Is(err, membership.ErrArchived),
		errors.Is(err, membership.ErrDMForbidden),
		errors.Is(err, messaging.ErrMessageTooLong),
		errors.Is(err, messaging.ErrInvalidThread),
		errors.Is(err, messaging.ErrCannotSend):
		return http.StatusConflict, APIError{Kind: KindPreconditionFailed, Message: err.Error()}

	case errors.Is(err, membership.ErrDuplicate),
		errors.Is(err, repository.ErrDuplicate):
		return http.StatusConflict, APIError{Kind: KindConflict, Message: err.Error()}

	case errors.Is(err, membership.ErrInvalidChannelID),
		errors.Is(err, membership.ErrInvalidInput),
		errors.Is(err, identity.ErrInvalidInput),
		errors.Is(err, messaging.ErrInvalidInput),
		errors.Is(err, repository.ErrInvalidInput):
		return http.StatusBadRequest, APIError{Kind: KindInvalid, Message: err.Error()}

	case errors.Is(err, repository.ErrBusy):
		return http.StatusServiceUnavailable, APIError{Kind: KindStoreBusy, Message: err.Error()}

	default:
		return http.StatusInternalServerError, APIError{Kind: KindInternal, Message: "internal error"}
	}
}
