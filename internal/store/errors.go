package store

import "errors"

var (
	ErrOrganizationNotFound = errors.New("organization not found")
	ErrTokenNotFound        = errors.New("token not found")
	ErrCounterNotFound      = errors.New("counter not found")
	ErrUserNotFound         = errors.New("user not found")
	ErrInvalidState         = errors.New("invalid token state")
	ErrCounterMismatch      = errors.New("counter mismatch")
	ErrQueueNotConfigured   = errors.New("queue not configured for this customer type")
	ErrQueueInactive        = errors.New("queue inactive for this customer type")
	ErrBulkMismatch         = errors.New("bulk request references unknown or foreign tokens")
	ErrEmailTaken           = errors.New("email already registered")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrAccessDenied         = errors.New("access denied")
)
