package common

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInvalidToken_MatchesBothSentinels(t *testing.T) {
	reasons := []error{ErrTokenExpired, ErrTokenAlreadyUsed, ErrTokenRevoked, ErrTokenReplayed, ErrorNotFound}

	for _, reason := range reasons {
		t.Run(reason.Error(), func(t *testing.T) {
			err := InvalidToken(reason)
			assert.ErrorIs(t, err, ErrInvalidToken)
			assert.ErrorIs(t, err, reason)
		})
	}
}

func TestInvalidToken_NilReason(t *testing.T) {
	err := InvalidToken(nil)
	assert.Same(t, ErrInvalidToken, err)
	assert.False(t, errors.Is(err, ErrTokenExpired))
}
