package models

import (
	"encoding/json"
	"time"
)

// PurchaseToken records which user claimed a store purchase token. A token
// is claimed by at most one user.
type PurchaseToken struct {
	ID            string
	UserID        string
	ProductID     string
	PurchaseToken string
	OrderID       *string
	PurchaseTime  *time.Time
	RawResponse   json.RawMessage
	CreatedAt     time.Time
}
