// Package services contains server-side business logic. Services own the
// transactions, logging and metrics around the pure rules in models,
// entitlements and settings.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrijs2005/zoneboard/internal/common"
	"github.com/dmitrijs2005/zoneboard/internal/dbx"
	"github.com/dmitrijs2005/zoneboard/internal/logging"
	"github.com/dmitrijs2005/zoneboard/internal/server/auth"
	"github.com/dmitrijs2005/zoneboard/internal/server/config"
	"github.com/dmitrijs2005/zoneboard/internal/server/mailer"
	"github.com/dmitrijs2005/zoneboard/internal/server/metrics"
	"github.com/dmitrijs2005/zoneboard/internal/server/models"
	"github.com/dmitrijs2005/zoneboard/internal/server/ratelimit"
	"github.com/dmitrijs2005/zoneboard/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/zoneboard/internal/tokens"
	"github.com/google/uuid"
)

// TokenPair bundles a short-lived access token and a rotating refresh token.
type TokenPair struct {
	AccessToken          string
	RefreshToken         string
	AccessTokenExpiresAt time.Time
}

// AuthService implements passwordless sign-in and session rotation.
type AuthService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	limiter     ratelimit.Limiter
	mailer      mailer.Mailer
	logger      logging.Logger

	sessionSecret       []byte
	accessTokenTTL      time.Duration
	loginTokenTTL       time.Duration
	refreshTokenTTLDays int
	magicLinkBaseURL    string
}

func NewAuthService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config, limiter ratelimit.Limiter, mail mailer.Mailer, logger logging.Logger) *AuthService {
	if limiter == nil {
		limiter = ratelimit.Disabled{}
	}
	return &AuthService{
		db:                  db,
		repomanager:         m,
		limiter:             limiter,
		mailer:              mail,
		logger:              logger.With("module", "auth"),
		sessionSecret:       []byte(cfg.SessionSecret),
		accessTokenTTL:      cfg.AccessTokenTTL,
		loginTokenTTL:       cfg.LoginTokenTTL,
		refreshTokenTTLDays: cfg.RefreshTokenTTLDays,
		magicLinkBaseURL:    cfg.PublicBaseURL,
	}
}

// NormalizeEmail lowercases and trims addr and checks it is a bare address.
func NormalizeEmail(addr string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(addr))
	if email == "" {
		return "", common.ErrInvalidEmail
	}
	parsed, err := mail.ParseAddress(email)
	if err != nil || parsed.Address != email {
		return "", common.ErrInvalidEmail
	}
	return email, nil
}

// RequestMagicLink stores a fresh login token for email and mails the link.
// Earlier unexpired links for the same address stay valid.
func (s *AuthService) RequestMagicLink(ctx context.Context, email string, now time.Time) error {
	email, err := NormalizeEmail(email)
	if err != nil {
		return err
	}

	if err := s.limiter.Allow(ctx, email); err != nil {
		if errors.Is(err, common.ErrRateLimited) {
			metrics.MagicLinksRateLimited.Inc()
			s.logger.Info(ctx, "magic link rate limited", "email_hash", tokens.Hash(email))
			return err
		}
		// Fail open while the limiter is unavailable.
		s.logger.Warn(ctx, "rate limiter unavailable, allowing request", "error", err)
	}

	raw, err := tokens.GenerateOpaque(tokens.DefaultByteLength)
	if err != nil {
		return fmt.Errorf("generate login token: %w", err)
	}

	token := models.LoginToken{
		ID:        uuid.NewString(),
		Email:     email,
		TokenHash: tokens.Hash(raw),
		ExpiresAt: now.Add(s.loginTokenTTL),
		CreatedAt: now,
	}
	if err := s.repomanager.LoginTokens(s.db).Create(ctx, token); err != nil {
		return fmt.Errorf("error creating login token: %w", err)
	}

	link, err := s.magicLink(raw)
	if err != nil {
		return err
	}
	if err := s.mailer.SendMagicLink(ctx, email, link, s.loginTokenTTL); err != nil {
		return fmt.Errorf("%w: send magic link: %v", common.ErrUpstream, err)
	}

	s.logger.Info(ctx, "magic link issued", "login_token_id", token.ID, "expires_at", token.ExpiresAt)
	return nil
}

func (s *AuthService) magicLink(token string) (string, error) {
	u, err := url.Parse(s.magicLinkBaseURL)
	if err != nil {
		return "", fmt.Errorf("magic link base url: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ExchangeMagicLink consumes a login token and opens a session for its
// email, creating the user on first sign-in. Of two concurrent exchanges of
// the same token exactly one succeeds.
func (s *AuthService) ExchangeMagicLink(ctx context.Context, token string, deviceID *string, now time.Time) (*TokenPair, *models.User, error) {
	if token == "" {
		return nil, nil, s.reject(ctx, "login_missing", common.InvalidToken(nil))
	}

	lt, err := s.repomanager.LoginTokens(s.db).FindByHash(ctx, tokens.Hash(token))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, nil, s.reject(ctx, "login_unknown", common.InvalidToken(common.ErrorNotFound))
		}
		return nil, nil, fmt.Errorf("error searching login token: %w", err)
	}
	if lt.UsedAt != nil {
		return nil, nil, s.reject(ctx, "login_used", common.InvalidToken(common.ErrTokenAlreadyUsed))
	}
	if !lt.Usable(now) {
		return nil, nil, s.reject(ctx, "login_expired", common.InvalidToken(common.ErrTokenExpired))
	}

	var (
		pair *TokenPair
		user *models.User
	)
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		ok, err := s.repomanager.LoginTokens(tx).MarkUsed(ctx, lt.ID, now)
		if err != nil {
			return fmt.Errorf("error consuming login token: %w", err)
		}
		if !ok {
			return common.InvalidToken(common.ErrTokenAlreadyUsed)
		}

		user, err = s.repomanager.Users(tx).Upsert(ctx, lt.Email, now)
		if err != nil {
			return fmt.Errorf("error upserting user: %w", err)
		}

		pair, err = s.issue(ctx, tx, user.ID, deviceID, now)
		return err
	})
	if err != nil {
		if errors.Is(err, common.ErrInvalidToken) {
			return nil, nil, s.reject(ctx, "login_used", err)
		}
		return nil, nil, err
	}

	s.logger.Info(ctx, "signed in", "user_id", user.ID)
	return pair, user, nil
}

// Refresh rotates a refresh token. A token that was already rotated is a
// replay: it is rejected and logged, and the newer tokens of the chain stay
// valid.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string, now time.Time) (*TokenPair, error) {
	current, err := s.findRefreshToken(ctx, refreshToken)
	if err != nil {
		return nil, err
	}

	switch {
	case current.Rotated():
		s.logger.Warn(ctx, "refresh token replay",
			"user_id", current.UserID,
			"token_id", current.ID,
			"replaced_by", *current.ReplacedByTokenID,
		)
		return nil, s.reject(ctx, "refresh_replayed", common.InvalidToken(common.ErrTokenReplayed))
	case current.RevokedAt != nil || current.DeletedAt != nil:
		return nil, s.reject(ctx, "refresh_revoked", common.InvalidToken(common.ErrTokenRevoked))
	case !current.Active(now):
		return nil, s.reject(ctx, "refresh_expired", common.InvalidToken(common.ErrTokenExpired))
	}

	raw, err := tokens.GenerateOpaque(tokens.DefaultByteLength)
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}
	rot := models.BuildRotation(*current, uuid.NewString(), tokens.Hash(raw), now, s.refreshTokenTTLDays)

	var pair *TokenPair
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.RefreshTokens(tx)

		ok, err := repo.Revoke(ctx, current.ID, rot.Revoke, now)
		if err != nil {
			return fmt.Errorf("error revoking refresh token: %w", err)
		}
		if !ok {
			return common.InvalidToken(common.ErrTokenReplayed)
		}
		if err := repo.Create(ctx, rot.Next); err != nil {
			return fmt.Errorf("error creating refresh token: %w", err)
		}

		pair, err = s.accessPair(current.UserID, raw, now)
		return err
	})
	if err != nil {
		if errors.Is(err, common.ErrInvalidToken) {
			return nil, s.reject(ctx, "refresh_race", err)
		}
		return nil, err
	}

	return pair, nil
}

// Logout revokes the presented refresh token. Unknown or already inactive
// tokens are accepted silently.
func (s *AuthService) Logout(ctx context.Context, refreshToken string, now time.Time) error {
	current, err := s.findRefreshToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, common.ErrInvalidToken) {
			return nil
		}
		return err
	}
	if !current.Active(now) {
		return nil
	}

	if _, err := s.repomanager.RefreshTokens(s.db).Revoke(ctx, current.ID, models.RevokeUpdate{RevokedAt: now, LastUsedAt: now}, now); err != nil {
		return fmt.Errorf("error revoking refresh token: %w", err)
	}
	s.logger.Info(ctx, "signed out", "user_id", current.UserID, "token_id", current.ID)
	return nil
}

// Authenticate validates an access token and returns its user id.
func (s *AuthService) Authenticate(accessToken string) (string, error) {
	userID, err := auth.GetUserIDFromToken(accessToken, s.sessionSecret)
	if err != nil {
		if errors.Is(err, common.ErrTokenExpired) {
			return "", common.InvalidToken(err)
		}
		return "", err
	}
	return userID, nil
}

func (s *AuthService) Me(ctx context.Context, userID string) (*models.User, error) {
	u, err := s.repomanager.Users(s.db).GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error getting user: %w", err)
	}
	return u, nil
}

func (s *AuthService) findRefreshToken(ctx context.Context, raw string) (*models.RefreshToken, error) {
	if raw == "" {
		return nil, common.InvalidToken(nil)
	}
	t, err := s.repomanager.RefreshTokens(s.db).FindByHash(ctx, tokens.Hash(raw))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.InvalidToken(common.ErrorNotFound)
		}
		return nil, fmt.Errorf("error searching refresh token: %w", err)
	}
	return t, nil
}

func (s *AuthService) issue(ctx context.Context, tx dbx.DBTX, userID string, deviceID *string, now time.Time) (*TokenPair, error) {
	raw, err := tokens.GenerateOpaque(tokens.DefaultByteLength)
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}

	rt := models.NewRefreshToken(uuid.NewString(), userID, deviceID, tokens.Hash(raw), now, s.refreshTokenTTLDays)
	if err := s.repomanager.RefreshTokens(tx).Create(ctx, rt); err != nil {
		return nil, fmt.Errorf("error creating refresh token: %w", err)
	}

	return s.accessPair(userID, raw, now)
}

func (s *AuthService) accessPair(userID, refresh string, now time.Time) (*TokenPair, error) {
	access, err := auth.GenerateToken(userID, s.sessionSecret, s.accessTokenTTL, now)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	return &TokenPair{
		AccessToken:          access,
		RefreshToken:         refresh,
		AccessTokenExpiresAt: now.Add(s.accessTokenTTL),
	}, nil
}

func (s *AuthService) reject(ctx context.Context, reason string, err error) error {
	metrics.AuthFailures.WithLabelValues(reason).Inc()
	s.logger.Info(ctx, "credential rejected", "reason", reason, "error", err)
	return err
}
