package models

import (
	"testing"
	"time"

	"github.com/dmitrijs2005/zoneboard/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

func TestLoginToken_Usable(t *testing.T) {
	tests := []struct {
		name  string
		token LoginToken
		now   time.Time
		want  bool
	}{
		{name: "fresh", token: LoginToken{ExpiresAt: t0.Add(time.Minute)}, now: t0, want: true},
		{name: "used but not expired", token: LoginToken{ExpiresAt: t0.Add(time.Hour), UsedAt: ptr(t0)}, now: t0, want: false},
		{name: "expired exactly at boundary", token: LoginToken{ExpiresAt: t0}, now: t0, want: false},
		{name: "expired and unused", token: LoginToken{ExpiresAt: t0}, now: t0.Add(time.Hour), want: false},
		{name: "expired and used", token: LoginToken{ExpiresAt: t0, UsedAt: ptr(t0)}, now: t0.Add(time.Hour), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.token.Usable(tt.now))
		})
	}
}

func TestRefreshToken_Active(t *testing.T) {
	live := RefreshToken{ExpiresAt: t0.Add(24 * time.Hour)}

	revoked := live
	revoked.RevokedAt = ptr(t0)

	deleted := live
	deleted.DeletedAt = ptr(t0)

	assert.True(t, live.Active(t0))
	assert.False(t, revoked.Active(t0))
	assert.False(t, deleted.Active(t0))
	assert.False(t, live.Active(t0.Add(24*time.Hour)))
}

func TestNewRefreshToken(t *testing.T) {
	dev := ptr("pixel-8")
	rt := NewRefreshToken("rt-1", "u1", dev, "hash", t0, 30)

	assert.Equal(t, "rt-1", rt.ID)
	assert.Equal(t, "u1", rt.UserID)
	assert.Equal(t, dev, rt.DeviceID)
	assert.Equal(t, "hash", rt.TokenHash)
	assert.Equal(t, t0, rt.CreatedAt)
	assert.Equal(t, t0, rt.LastUsedAt)
	assert.Equal(t, time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC), rt.ExpiresAt)
	assert.Nil(t, rt.RevokedAt)
	assert.Nil(t, rt.ReplacedByTokenID)
	assert.True(t, rt.Active(t0))
}

func TestBuildRotation(t *testing.T) {
	current := NewRefreshToken("old", "u1", ptr("ipad"), "old-hash", t0, 30)
	now := t0.Add(2 * time.Hour)

	rot := BuildRotation(current, "new", "new-hash", now, 30)

	assert.Equal(t, now, rot.Revoke.RevokedAt)
	require.NotNil(t, rot.Revoke.ReplacedByTokenID)
	assert.Equal(t, "new", *rot.Revoke.ReplacedByTokenID)
	assert.Equal(t, now, rot.Revoke.LastUsedAt)

	assert.Equal(t, "new", rot.Next.ID)
	assert.Equal(t, "u1", rot.Next.UserID)
	assert.Equal(t, "ipad", *rot.Next.DeviceID)
	assert.Equal(t, "new-hash", rot.Next.TokenHash)
	assert.Equal(t, now.Add(30*24*time.Hour), rot.Next.ExpiresAt)
	assert.True(t, rot.Next.Active(now))

	revoked := rot.Revoke.Apply(current)
	assert.False(t, revoked.Active(now))
	assert.True(t, revoked.Rotated())
	assert.True(t, current.Active(now), "input must not be mutated")
}

func TestRevokeUpdate_LogoutIsNotRotation(t *testing.T) {
	current := NewRefreshToken("old", "u1", nil, "h", t0, 30)
	out := RevokeUpdate{RevokedAt: t0, LastUsedAt: t0}.Apply(current)

	assert.False(t, out.Active(t0))
	assert.False(t, out.Rotated())
}

func TestNewEntitlementGrant(t *testing.T) {
	g, err := NewEntitlementGrant("u1", "pro", SourceGooglePlay, t0)
	require.NoError(t, err)
	assert.Equal(t, "u1", g.UserID())
	assert.Equal(t, "pro", g.Key())
	assert.Equal(t, SourceGooglePlay, g.Source())
	assert.Equal(t, EntitlementActive, g.Status())
	assert.Equal(t, t0, g.At())

	_, err = NewEntitlementGrant("u1", "pro", EntitlementSource("app_store"), t0)
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	_, err = NewEntitlementGrant("", "pro", SourceGooglePlay, t0)
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	_, err = NewEntitlementGrant("u1", "  ", SourceGooglePlay, t0)
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestNewEntitlementRevocation(t *testing.T) {
	r, err := NewEntitlementRevocation("u1", "pro", t0)
	require.NoError(t, err)
	assert.Equal(t, EntitlementRevoked, r.Status())

	var change EntitlementChange = r
	_, isGrant := change.(EntitlementGrant)
	assert.False(t, isGrant)

	_, err = NewEntitlementRevocation("u1", "", t0)
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestParseEntitlementEnums(t *testing.T) {
	st, err := ParseEntitlementStatus("revoked")
	require.NoError(t, err)
	assert.Equal(t, EntitlementRevoked, st)

	_, err = ParseEntitlementStatus("paused")
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	src, err := ParseEntitlementSource("google_play")
	require.NoError(t, err)
	assert.Equal(t, SourceGooglePlay, src)

	_, err = ParseEntitlementSource("")
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}
