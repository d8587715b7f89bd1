// Package models defines the server-side records persisted in PostgreSQL and
// the pure rules attached to them.
package models

import "time"

// User is an account identified by its normalized email address.
type User struct {
	ID        string
	Email     string
	CreatedAt time.Time
	UpdatedAt time.Time
}
