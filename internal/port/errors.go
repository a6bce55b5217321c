package port

import "errors"

// Sentinel errors used across ports. Handlers match these with errors.Is to
// pick the user-facing message; anything else surfaces as "server error".
var (
	ErrUserNotFound    = errors.New("user not found")
	ErrProfileNotFound = errors.New("profile not found")
	ErrStatusNotFound  = errors.New("analysis status record not found")
	ErrRepoNotFound    = errors.New("repository not found")
	ErrNotConnected    = errors.New("no github account is associated with the user")
	ErrInvalidRepo     = errors.New("invalid repository selection")
	ErrQuotaExceeded   = errors.New("analysis quota exceeded")
	ErrAlreadyRunning  = errors.New("an analysis is already running")
	ErrPublish         = errors.New("failed to publish analysis job")
	ErrInvalidPayload  = errors.New("invalid payload")
	ErrUnauthorized    = errors.New("unauthorized")
)
