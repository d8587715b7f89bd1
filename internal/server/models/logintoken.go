package models

import (
	"time"

	"github.com/dmitrijs2005/zoneboard/internal/tokens"
)

// LoginToken is a single-use, time-boxed magic-link credential. Only the
// digest of the emailed token is stored.
type LoginToken struct {
	ID        string
	Email     string
	TokenHash string
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}

// Usable reports whether the token may still be exchanged at now.
// Consumption itself happens through a conditional update by the caller.
func (t LoginToken) Usable(now time.Time) bool {
	if t.UsedAt != nil {
		return false
	}
	return !tokens.IsExpired(t.ExpiresAt, now)
}
