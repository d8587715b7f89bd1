package entitlements

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/dmitrijs2005/zoneboard/internal/common"
)

// VerifyRequest identifies a store purchase to check.
type VerifyRequest struct {
	ProductID     string
	PurchaseToken string
}

// VerifiedPurchase is what a store reports for an active purchase.
type VerifiedPurchase struct {
	OrderID      *string
	PurchaseTime *time.Time
	RawResponse  json.RawMessage
}

// Verifier checks a purchase with the store. Implementations return
// common.ErrPurchaseNotActive for purchases that exist but do not entitle,
// and wrap common.ErrUpstream for transport or credential failures.
type Verifier interface {
	Verify(ctx context.Context, req VerifyRequest) (*VerifiedPurchase, error)
}

// Allowlist is the set of product ids the server will verify.
type Allowlist map[string]struct{}

// NewAllowlist builds an allowlist, ignoring blank ids.
func NewAllowlist(ids ...string) Allowlist {
	a := make(Allowlist, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			a[id] = struct{}{}
		}
	}
	return a
}

// Allows is an exact membership test.
func (a Allowlist) Allows(productID string) bool {
	_, ok := a[productID]
	return ok
}

// VerifyAllowlisted rejects products outside the allowlist with
// common.ErrProductNotAllowed without calling verify. Otherwise the result
// and error of verify are returned unchanged.
func VerifyAllowlisted[T any](allowlist Allowlist, productID string, verify func() (T, error)) (T, error) {
	if !allowlist.Allows(productID) {
		var zero T
		return zero, common.ErrProductNotAllowed
	}
	return verify()
}

// IsClaimedByOtherUser reports whether a purchase token already belongs to
// someone other than currentUserID.
func IsClaimedByOtherUser(existingUserID *string, currentUserID string) bool {
	return existingUserID != nil && *existingUserID != currentUserID
}
