package app

import (
	"errors"
	"fmt"
	"net/http"

	"huddle/api/internal/directory"
	"huddle/api/internal/membership"
	"huddle/api/internal/msglog"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

// asDomainError maps package sentinels onto the caller-visible outcomes. All
// of these are recoverable; nothing here is fatal to the process.
func asDomainError(err error) error {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return err
	}
	switch {
	case errors.Is(err, directory.ErrInvalidName):
		return domainError(http.StatusUnprocessableEntity, "INVALID_NAME", "community name is required", nil)
	case errors.Is(err, directory.ErrInvalidInviteCode):
		return domainError(http.StatusNotFound, "INVALID_INVITE_CODE", "invalid invite code", nil)
	case errors.Is(err, directory.ErrCodeSpaceExhausted):
		return domainError(http.StatusServiceUnavailable, "CODE_SPACE_EXHAUSTED", "could not allocate an invite code", nil)
	case errors.Is(err, directory.ErrNotFound):
		return domainError(http.StatusNotFound, "NOT_FOUND", "community not found", nil)
	case errors.Is(err, msglog.ErrEmptyMessage):
		return domainError(http.StatusUnprocessableEntity, "EMPTY_MESSAGE", "message text is required", nil)
	case errors.Is(err, membership.ErrWriteDenied):
		return domainError(http.StatusForbidden, "CHANNEL_WRITE_DENIED", "not permitted", nil)
	case errors.Is(err, membership.ErrSelfKick):
		return domainError(http.StatusUnprocessableEntity, "SELF_KICK_FORBIDDEN", "you cannot kick yourself", nil)
	case errors.Is(err, membership.ErrNotMember):
		return domainError(http.StatusNotFound, "MEMBERSHIP_NOT_FOUND", "not a member of this community", nil)
	default:
		return err
	}
}
