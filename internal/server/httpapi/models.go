package httpapi

import (
	"encoding/json"
	"time"

	"github.com/dmitrijs2005/zoneboard/internal/server/models"
	"github.com/dmitrijs2005/zoneboard/internal/server/services"
)

type magicLinkRequest struct {
	Email string `json:"email"`
}

type exchangeRequest struct {
	Token    string  `json:"token"`
	DeviceID *string `json:"deviceId,omitempty"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type verifyPurchaseRequest struct {
	ProductID     string `json:"productId"`
	PurchaseToken string `json:"purchaseToken"`
}

type putSettingsRequest struct {
	Version  *int64          `json:"version"`
	Settings json.RawMessage `json:"settings"`
	DeviceID *string         `json:"deviceId,omitempty"`
}

type okResponse struct {
	OK bool `json:"ok"`
}

type userResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

func userFromModel(u *models.User) *userResponse {
	if u == nil {
		return nil
	}
	return &userResponse{ID: u.ID, Email: u.Email, CreatedAt: u.CreatedAt}
}

type tokenPairResponse struct {
	AccessToken  string        `json:"accessToken"`
	RefreshToken string        `json:"refreshToken"`
	TokenType    string        `json:"tokenType"`
	ExpiresIn    int64         `json:"expiresIn"`
	User         *userResponse `json:"user,omitempty"`
}

func tokenPairFrom(p *services.TokenPair, u *models.User, now time.Time) tokenPairResponse {
	return tokenPairResponse{
		AccessToken:  p.AccessToken,
		RefreshToken: p.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(p.AccessTokenExpiresAt.Sub(now).Seconds()),
		User:         userFromModel(u),
	}
}

type entitlementsResponse struct {
	Entitlements []string `json:"entitlements"`
}

type certificateResponse struct {
	Entitlements      []string `json:"entitlements"`
	Certificate       string   `json:"certificate"`
	OfflineValidUntil string   `json:"offlineValidUntil"`
}

type publicKeyResponse struct {
	Alg       string `json:"alg"`
	Kid       string `json:"kid"`
	PublicKey string `json:"publicKey"`
}

type settingsResponse struct {
	Version   int64           `json:"version"`
	Settings  json.RawMessage `json:"settings"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

type saveSettingsResponse struct {
	Version int64 `json:"version"`
}
