package dbx

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestIsUniqueViolation(t *testing.T) {
	unique := &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "purchase_tokens_purchase_token_key"}
	fk := &pgconn.PgError{Code: pgerrcode.ForeignKeyViolation}

	tests := []struct {
		name       string
		err        error
		constraint string
		want       bool
	}{
		{"nil", nil, "", false},
		{"plain error", errors.New("boom"), "", false},
		{"unique any constraint", unique, "", true},
		{"unique wrapped", fmt.Errorf("db error: %w", unique), "", true},
		{"unique matching constraint", unique, "purchase_tokens_purchase_token_key", true},
		{"unique other constraint", unique, "users_email_key", false},
		{"foreign key", fk, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsUniqueViolation(tt.err, tt.constraint))
		})
	}
}
