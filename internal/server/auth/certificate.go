package auth

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"time"

	"github.com/dmitrijs2005/zoneboard/internal/common"
	"github.com/dmitrijs2005/zoneboard/internal/server/entitlements"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/hkdf"
)

const certificateKeyInfo = "zoneboard/entitlement-certificate/ed25519/v1"

// CertificateClaims is the JWT form of an entitlements.CertificatePayload.
type CertificateClaims struct {
	jwt.RegisteredClaims
	Entitlements []string `json:"entitlements"`
	Nonce        string   `json:"nonce"`
}

// ClaimsFromPayload maps a payload onto registered JWT claims.
func ClaimsFromPayload(p entitlements.CertificatePayload) CertificateClaims {
	return CertificateClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.Sub,
			IssuedAt:  jwt.NewNumericDate(time.Unix(p.Iat, 0)),
			ExpiresAt: jwt.NewNumericDate(time.Unix(p.Exp, 0)),
		},
		Entitlements: p.Entitlements,
		Nonce:        p.Nonce,
	}
}

// CertificateSigner signs entitlement certificates with an Ed25519 key
// derived from the certificate secret, so clients can verify them offline
// with the published public key.
type CertificateSigner struct {
	private ed25519.PrivateKey
	public  ed25519.PublicKey
	keyID   string
}

// NewCertificateSigner derives the signing key from secret with HKDF-SHA256.
func NewCertificateSigner(secret []byte) (*CertificateSigner, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("certificate signer: %w", common.ErrMissingSecret)
	}

	seed := make([]byte, ed25519.SeedSize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(certificateKeyInfo)), seed); err != nil {
		return nil, fmt.Errorf("certificate signer: derive key: %w", err)
	}

	private := ed25519.NewKeyFromSeed(seed)
	public := private.Public().(ed25519.PublicKey)
	sum := sha256.Sum256(public)

	return &CertificateSigner{
		private: private,
		public:  public,
		keyID:   base64.RawURLEncoding.EncodeToString(sum[:8]),
	}, nil
}

// Sign returns the compact JWS for p.
func (s *CertificateSigner) Sign(p entitlements.CertificatePayload) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, ClaimsFromPayload(p))
	token.Header["kid"] = s.keyID
	return token.SignedString(s.private)
}

// Verify checks signature and expiry as of now and returns the claims.
func (s *CertificateSigner) Verify(certificate string, now time.Time) (*CertificateClaims, error) {
	claims := &CertificateClaims{}
	_, err := jwt.ParseWithClaims(certificate, claims, func(t *jwt.Token) (any, error) {
		return s.public, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}
	return claims, nil
}

// PublicKey is the verification key, base64url without padding.
func (s *CertificateSigner) PublicKey() string {
	return base64.RawURLEncoding.EncodeToString(s.public)
}

// KeyID identifies the key in the certificate header.
func (s *CertificateSigner) KeyID() string {
	return s.keyID
}

// Algorithm is the JWS alg of issued certificates.
func (s *CertificateSigner) Algorithm() string {
	return jwt.SigningMethodEdDSA.Alg()
}
