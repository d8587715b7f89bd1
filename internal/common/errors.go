// Package common defines shared constants and sentinel errors used across
// zoneboard server layers. Callers should use errors.Is to match these values.
package common

import (
	"errors"
	"fmt"
)

var (
	// Repository-level errors.
	ErrorNotFound    = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")

	// Validation errors.
	ErrInvalidInput     = errors.New("invalid input")
	ErrInvalidEmail     = errors.New("invalid email")
	ErrInvalidSettings  = errors.New("invalid settings")
	ErrSettingsTooLarge = errors.New("settings too large")
	ErrRequestTooLarge  = errors.New("request body too large")

	// Conflicts the client is expected to reconcile.
	ErrVersionConflict            = errors.New("version conflict")
	ErrPurchaseClaimedByOtherUser = errors.New("purchase token claimed by another user")

	// Auth errors. Clients only ever see ErrInvalidToken; the specific
	// reasons below are wrapped into it for logs.
	ErrInvalidToken     = errors.New("invalid token")
	ErrTokenExpired     = errors.New("token expired")
	ErrTokenAlreadyUsed = errors.New("token already used")
	ErrTokenRevoked     = errors.New("token revoked")
	ErrTokenReplayed    = errors.New("token replayed")

	ErrRateLimited = errors.New("rate limited")

	// Configuration errors. Fatal at startup.
	ErrMissingSecret = errors.New("missing secret")
	ErrSecretReuse   = errors.New("certificate secret must differ from session secret")

	// External collaborators.
	ErrUpstream          = errors.New("upstream error")
	ErrPurchaseNotActive = errors.New("purchase not active")
	ErrProductNotAllowed = errors.New("product not allowed")
)

// InvalidToken wraps a specific credential failure so that it matches both
// ErrInvalidToken and reason.
func InvalidToken(reason error) error {
	if reason == nil {
		return ErrInvalidToken
	}
	return fmt.Errorf("%w: %w", ErrInvalidToken, reason)
}
