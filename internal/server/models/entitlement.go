package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/zoneboard/internal/common"
)

// EntitlementStatus is the lifecycle state of an entitlement row.
type EntitlementStatus string

const (
	EntitlementActive  EntitlementStatus = "active"
	EntitlementRevoked EntitlementStatus = "revoked"
)

// ParseEntitlementStatus converts a stored value into a known status.
func ParseEntitlementStatus(s string) (EntitlementStatus, error) {
	switch st := EntitlementStatus(s); st {
	case EntitlementActive, EntitlementRevoked:
		return st, nil
	default:
		return "", fmt.Errorf("%w: entitlement status %q", common.ErrInvalidInput, s)
	}
}

// EntitlementSource names the system that granted an entitlement.
type EntitlementSource string

const SourceGooglePlay EntitlementSource = "google_play"

// ParseEntitlementSource converts a stored value into a known source.
func ParseEntitlementSource(s string) (EntitlementSource, error) {
	switch src := EntitlementSource(s); src {
	case SourceGooglePlay:
		return src, nil
	default:
		return "", fmt.Errorf("%w: entitlement source %q", common.ErrInvalidInput, s)
	}
}

// Entitlement is one (user, key) row.
type Entitlement struct {
	ID        string
	UserID    string
	Key       string
	Status    EntitlementStatus
	Source    EntitlementSource
	RevokedAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

// EntitlementChange is a write against the entitlements table. The set of
// implementations is closed: EntitlementGrant and EntitlementRevocation.
type EntitlementChange interface {
	entitlementChange()
	UserID() string
	Key() string
	At() time.Time
}

type entitlementTarget struct {
	userID string
	key    string
	at     time.Time
}

func (t entitlementTarget) UserID() string { return t.userID }
func (t entitlementTarget) Key() string    { return t.key }
func (t entitlementTarget) At() time.Time  { return t.at }

func newTarget(userID, key string, at time.Time) (entitlementTarget, error) {
	userID = strings.TrimSpace(userID)
	key = strings.TrimSpace(key)
	if userID == "" || key == "" {
		return entitlementTarget{}, fmt.Errorf("%w: entitlement needs user and key", common.ErrInvalidInput)
	}
	return entitlementTarget{userID: userID, key: key, at: at}, nil
}

// EntitlementGrant makes (user, key) active from source. It always carries
// status active and a known source.
type EntitlementGrant struct {
	entitlementTarget
	source EntitlementSource
}

func (EntitlementGrant) entitlementChange() {}

// Source is the granting system.
func (g EntitlementGrant) Source() EntitlementSource { return g.source }

// Status is always EntitlementActive.
func (g EntitlementGrant) Status() EntitlementStatus { return EntitlementActive }

// NewEntitlementGrant validates the inputs and builds a grant.
func NewEntitlementGrant(userID, key string, source EntitlementSource, at time.Time) (EntitlementGrant, error) {
	target, err := newTarget(userID, key, at)
	if err != nil {
		return EntitlementGrant{}, err
	}
	if _, err := ParseEntitlementSource(string(source)); err != nil {
		return EntitlementGrant{}, err
	}
	return EntitlementGrant{entitlementTarget: target, source: source}, nil
}

// EntitlementRevocation moves (user, key) to revoked, stamping RevokedAt.
type EntitlementRevocation struct {
	entitlementTarget
}

func (EntitlementRevocation) entitlementChange() {}

// Status is always EntitlementRevoked.
func (r EntitlementRevocation) Status() EntitlementStatus { return EntitlementRevoked }

// NewEntitlementRevocation validates the inputs and builds a revocation.
func NewEntitlementRevocation(userID, key string, at time.Time) (EntitlementRevocation, error) {
	target, err := newTarget(userID, key, at)
	if err != nil {
		return EntitlementRevocation{}, err
	}
	return EntitlementRevocation{entitlementTarget: target}, nil
}
