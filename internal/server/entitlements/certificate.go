// Package entitlements decides what a user is entitled to: it shapes the
// offline-verifiable certificate payload and gates purchase verification.
// Nothing here performs I/O beyond the injected verifier call.
package entitlements

import (
	"fmt"
	"time"

	"github.com/dmitrijs2005/zoneboard/internal/common"
	"github.com/dmitrijs2005/zoneboard/internal/tokens"
)

// OfflineValidUntilLayout renders exp as ISO-8601 with millisecond precision.
const OfflineValidUntilLayout = "2006-01-02T15:04:05.000Z"

const nonceBytes = 16

// CertificatePayload is the claim set signed into an entitlement certificate.
type CertificatePayload struct {
	Sub          string   `json:"sub"`
	Entitlements []string `json:"entitlements"`
	Iat          int64    `json:"iat"`
	Exp          int64    `json:"exp"`
	Nonce        string   `json:"nonce"`
}

// CertificateInput describes one certificate request. Now and Nonce are
// optional; nil selects the current time and a random nonce.
type CertificateInput struct {
	UserID       string
	Entitlements []string
	TTLDays      int
	Now          *time.Time
	Nonce        *string
}

// BuildCertificatePayload returns the payload and its expiry rendered for
// clients that check freshness without a network call.
func BuildCertificatePayload(in CertificateInput) (CertificatePayload, string, error) {
	if in.UserID == "" || in.TTLDays <= 0 {
		return CertificatePayload{}, "", fmt.Errorf("%w: certificate needs a user and positive ttl", common.ErrInvalidInput)
	}

	now := time.Now()
	if in.Now != nil {
		now = *in.Now
	}

	var nonce string
	if in.Nonce != nil {
		nonce = *in.Nonce
	} else {
		n, err := tokens.GenerateOpaque(nonceBytes)
		if err != nil {
			return CertificatePayload{}, "", fmt.Errorf("certificate nonce: %w", err)
		}
		nonce = n
	}

	keys := make([]string, len(in.Entitlements))
	copy(keys, in.Entitlements)

	exp := tokens.AddDays(now, in.TTLDays).Unix()
	payload := CertificatePayload{
		Sub:          in.UserID,
		Entitlements: keys,
		Iat:          now.Unix(),
		Exp:          exp,
		Nonce:        nonce,
	}

	return payload, time.Unix(exp, 0).UTC().Format(OfflineValidUntilLayout), nil
}
