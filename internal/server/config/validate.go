package config

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/dmitrijs2005/zoneboard/internal/common"
)

// Validate reports every problem that must stop the server from starting.
func (c *Config) Validate() error {
	var errs []error

	if c.SessionSecret == "" {
		errs = append(errs, fmt.Errorf("session secret: %w", common.ErrMissingSecret))
	}
	if c.CertificateSecret == "" {
		errs = append(errs, fmt.Errorf("certificate secret: %w", common.ErrMissingSecret))
	}
	if c.SessionSecret != "" && c.SessionSecret == c.CertificateSecret {
		errs = append(errs, fmt.Errorf("certificate secret: %w", common.ErrSecretReuse))
	}

	invalid := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{common.ErrInvalidInput}, args...)...))
	}

	if c.DatabaseDSN == "" {
		invalid("database dsn is empty")
	}
	if c.HTTPAddr == "" {
		invalid("http address is empty")
	}
	if u, err := url.Parse(c.PublicBaseURL); err != nil || !u.IsAbs() {
		invalid("magic link base url %q must be absolute", c.PublicBaseURL)
	}
	if c.AccessTokenTTL <= 0 {
		invalid("access token ttl must be positive")
	}
	if c.LoginTokenTTL <= 0 {
		invalid("login token ttl must be positive")
	}
	if c.RefreshTokenTTLDays <= 0 {
		invalid("refresh token ttl days must be positive")
	}
	if c.CertificateTTLDays <= 0 {
		invalid("certificate ttl days must be positive")
	}
	if c.MagicLinkMaxRequests < 0 {
		invalid("magic link max requests must not be negative")
	}
	if c.MagicLinkMaxRequests > 0 && c.MagicLinkWindow <= 0 {
		invalid("magic link window must be positive")
	}
	if c.SettingsMaxBytes <= 0 {
		invalid("settings max bytes must be positive")
	}
	if c.SettingsRetainCount < 1 {
		invalid("settings retain count must be at least 1")
	}
	if c.PurgeInterval <= 0 {
		invalid("purge interval must be positive")
	}
	if c.PurgeRetentionDays < 0 {
		invalid("purge retention days must not be negative")
	}
	if c.EntitlementKey == "" {
		invalid("entitlement key is empty")
	}

	return errors.Join(errs...)
}
