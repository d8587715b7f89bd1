package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/dmitrijs2005/zoneboard/internal/common"
	"github.com/dmitrijs2005/zoneboard/internal/server/models"
	"github.com/dmitrijs2005/zoneboard/internal/server/services"
)

// AuthService is the subset of services.AuthService the handlers use.
type AuthService interface {
	Authenticator
	RequestMagicLink(ctx context.Context, email string, now time.Time) error
	ExchangeMagicLink(ctx context.Context, token string, deviceID *string, now time.Time) (*services.TokenPair, *models.User, error)
	Refresh(ctx context.Context, refreshToken string, now time.Time) (*services.TokenPair, error)
	Logout(ctx context.Context, refreshToken string, now time.Time) error
	Me(ctx context.Context, userID string) (*models.User, error)
}

type EntitlementService interface {
	List(ctx context.Context, userID string) ([]string, error)
	Certificate(ctx context.Context, userID string, now time.Time) (*services.CertificateResponse, error)
	PublicKey() services.PublicKeyResponse
	VerifyGooglePlayPurchase(ctx context.Context, userID, productID, purchaseToken string, now time.Time) ([]string, error)
}

type SettingsService interface {
	Latest(ctx context.Context, userID string) (*models.SettingsSnapshot, error)
	Save(ctx context.Context, userID string, deviceID *string, version int64, raw json.RawMessage, now time.Time) (*models.SettingsSnapshot, error)
}

// Handlers holds the services behind the REST endpoints.
type Handlers struct {
	Auth         AuthService
	Entitlements EntitlementService
	Settings     SettingsService

	settingsBodyLimit int64
	now               func() time.Time
}

// NewHandlers builds the handlers. settingsMaxBytes bounds the settings
// document; the request body may carry a small envelope on top.
func NewHandlers(a AuthService, e EntitlementService, s SettingsService, settingsMaxBytes int) *Handlers {
	return &Handlers{
		Auth:              a,
		Entitlements:      e,
		Settings:          s,
		settingsBodyLimit: int64(settingsMaxBytes) + 1024,
		now:               func() time.Time { return time.Now().UTC() },
	}
}

func (h *Handlers) userID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, ok := UserIDFrom(r.Context())
	if !ok {
		WriteError(w, r, common.ErrInvalidToken)
	}
	return id, ok
}

// --- auth ---

func (h *Handlers) RequestMagicLink(w http.ResponseWriter, r *http.Request) {
	var in magicLinkRequest
	if err := decodeStrict(w, r, maxBodyBytes, common.ErrRequestTooLarge, &in); err != nil {
		WriteError(w, r, err)
		return
	}
	if err := h.Auth.RequestMagicLink(r.Context(), in.Email, h.now()); err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, okResponse{OK: true})
}

func (h *Handlers) ExchangeMagicLink(w http.ResponseWriter, r *http.Request) {
	var in exchangeRequest
	if err := decodeStrict(w, r, maxBodyBytes, common.ErrRequestTooLarge, &in); err != nil {
		WriteError(w, r, err)
		return
	}
	now := h.now()
	pair, user, err := h.Auth.ExchangeMagicLink(r.Context(), in.Token, in.DeviceID, now)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenPairFrom(pair, user, now))
}

func (h *Handlers) Refresh(w http.ResponseWriter, r *http.Request) {
	var in refreshRequest
	if err := decodeStrict(w, r, maxBodyBytes, common.ErrRequestTooLarge, &in); err != nil {
		WriteError(w, r, err)
		return
	}
	now := h.now()
	pair, err := h.Auth.Refresh(r.Context(), in.RefreshToken, now)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenPairFrom(pair, nil, now))
}

func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	var in refreshRequest
	if err := decodeStrict(w, r, maxBodyBytes, common.ErrRequestTooLarge, &in); err != nil {
		WriteError(w, r, err)
		return
	}
	if err := h.Auth.Logout(r.Context(), in.RefreshToken, h.now()); err != nil {
		WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	u, err := h.Auth.Me(r.Context(), userID)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, userFromModel(u))
}

// --- entitlements ---

func (h *Handlers) ListEntitlements(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	keys, err := h.Entitlements.List(r.Context(), userID)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entitlementsResponse{Entitlements: keys})
}

func (h *Handlers) Certificate(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	c, err := h.Entitlements.Certificate(r.Context(), userID, h.now())
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, certificateResponse{
		Entitlements:      c.Entitlements,
		Certificate:       c.Certificate,
		OfflineValidUntil: c.OfflineValidUntil,
	})
}

func (h *Handlers) PublicKey(w http.ResponseWriter, r *http.Request) {
	pk := h.Entitlements.PublicKey()
	w.Header().Set("Cache-Control", "public, max-age=3600")
	writeJSON(w, http.StatusOK, publicKeyResponse{Alg: pk.Algorithm, Kid: pk.KeyID, PublicKey: pk.PublicKey})
}

func (h *Handlers) VerifyGooglePlayPurchase(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	var in verifyPurchaseRequest
	if err := decodeStrict(w, r, maxBodyBytes, common.ErrRequestTooLarge, &in); err != nil {
		WriteError(w, r, err)
		return
	}
	keys, err := h.Entitlements.VerifyGooglePlayPurchase(r.Context(), userID, in.ProductID, in.PurchaseToken, h.now())
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entitlementsResponse{Entitlements: keys})
}

// --- settings ---

func (h *Handlers) GetSettings(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	snap, err := h.Settings.Latest(r.Context(), userID)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settingsResponse{
		Version:   snap.Version,
		Settings:  snap.SettingsJSON,
		UpdatedAt: snap.UpdatedAt,
	})
}

func (h *Handlers) PutSettings(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	var in putSettingsRequest
	if err := decodeStrict(w, r, h.settingsBodyLimit, common.ErrSettingsTooLarge, &in); err != nil {
		WriteError(w, r, err)
		return
	}
	if in.Version == nil {
		WriteError(w, r, fmt.Errorf("%w: version is required", common.ErrInvalidInput))
		return
	}
	snap, err := h.Settings.Save(r.Context(), userID, in.DeviceID, *in.Version, in.Settings, h.now())
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saveSettingsResponse{Version: snap.Version})
}
