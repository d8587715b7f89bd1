package models

import (
	"encoding/json"
	"time"
)

// SettingsSnapshot is one accepted version of a user's synced settings.
type SettingsSnapshot struct {
	ID           string
	UserID       string
	DeviceID     *string
	Version      int64
	SettingsJSON json.RawMessage
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    *time.Time
}
