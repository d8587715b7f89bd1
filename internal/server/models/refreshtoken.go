package models

import (
	"time"

	"github.com/dmitrijs2005/zoneboard/internal/tokens"
)

// RefreshToken is a long-lived, rotating session credential. Each rotation
// revokes the presented row and links it to its successor.
type RefreshToken struct {
	ID                string
	UserID            string
	DeviceID          *string
	TokenHash         string
	CreatedAt         time.Time
	ExpiresAt         time.Time
	LastUsedAt        time.Time
	RevokedAt         *time.Time
	ReplacedByTokenID *string
	DeletedAt         *time.Time
}

// Active reports whether the token can still be rotated at now.
func (t RefreshToken) Active(now time.Time) bool {
	if t.RevokedAt != nil || t.DeletedAt != nil {
		return false
	}
	return !tokens.IsExpired(t.ExpiresAt, now)
}

// Rotated reports whether the token was revoked by a rotation, so a second
// presentation is a replay rather than a plain logout or expiry.
func (t RefreshToken) Rotated() bool {
	return t.RevokedAt != nil && t.ReplacedByTokenID != nil
}

// NewRefreshToken assembles a fresh, active row.
func NewRefreshToken(id, userID string, deviceID *string, tokenHash string, now time.Time, ttlDays int) RefreshToken {
	return RefreshToken{
		ID:         id,
		UserID:     userID,
		DeviceID:   deviceID,
		TokenHash:  tokenHash,
		CreatedAt:  now,
		ExpiresAt:  tokens.AddDays(now, ttlDays),
		LastUsedAt: now,
	}
}

// RevokeUpdate is the change applied to a token leaving the active set.
// ReplacedByTokenID is nil for a logout.
type RevokeUpdate struct {
	RevokedAt         time.Time
	ReplacedByTokenID *string
	LastUsedAt        time.Time
}

// Apply returns t with the update applied.
func (u RevokeUpdate) Apply(t RefreshToken) RefreshToken {
	revokedAt := u.RevokedAt
	t.RevokedAt = &revokedAt
	t.ReplacedByTokenID = u.ReplacedByTokenID
	t.LastUsedAt = u.LastUsedAt
	return t
}

// Rotation holds both writes of a refresh: they must be applied in one
// transaction.
type Rotation struct {
	Revoke RevokeUpdate
	Next   RefreshToken
}

// BuildRotation computes the rotation of current into a new token with the
// given id and hash. The successor inherits the user and device.
func BuildRotation(current RefreshToken, newTokenID, newTokenHash string, now time.Time, ttlDays int) Rotation {
	next := newTokenID
	return Rotation{
		Revoke: RevokeUpdate{
			RevokedAt:         now,
			ReplacedByTokenID: &next,
			LastUsedAt:        now,
		},
		Next: NewRefreshToken(newTokenID, current.UserID, current.DeviceID, newTokenHash, now, ttlDays),
	}
}
