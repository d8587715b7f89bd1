// Package auth signs and verifies the two JWT kinds the server issues:
// short-lived HS256 access tokens and EdDSA entitlement certificates. Each
// kind uses its own key material.
package auth

import (
	"errors"
	"time"

	"github.com/dmitrijs2005/zoneboard/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

const accessTokenType = "access"

// Claims carries the user id of an access token.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"uid"`
	Type   string `json:"typ"`
}

// GenerateToken signs an access token for userID valid from now for validity.
func GenerateToken(userID string, secretKey []byte, validity time.Duration, now time.Time) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validity)),
		},
		UserID: userID,
		Type:   accessTokenType,
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// GetUserIDFromToken validates an access token and returns its user id.
// Expired tokens yield common.ErrTokenExpired, anything else
// common.ErrInvalidToken.
func GetUserIDFromToken(tokenString string, secretKey []byte) (string, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", common.ErrTokenExpired
		}
		return "", common.ErrInvalidToken
	}

	if !token.Valid || claims.Type != accessTokenType || claims.UserID == "" {
		return "", common.ErrInvalidToken
	}

	return claims.UserID, nil
}
