package failure

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorIs(t *testing.T) {
	err := State("DISPUTE_NOT_OPEN", "dispute is %s", "waiting")
	wrapped := fmt.Errorf("apply: %w", err)

	assert.True(t, errors.Is(wrapped, ErrState))
	assert.True(t, errors.Is(wrapped, &Error{Kind: KindState, Code: "DISPUTE_NOT_OPEN"}))
	assert.False(t, errors.Is(wrapped, &Error{Kind: KindState, Code: "OTHER"}))
	assert.False(t, errors.Is(wrapped, ErrValidation))
	assert.Equal(t, "dispute is waiting", err.Error())
}

func TestKindAndCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind Kind
		code string
	}{
		{"forbidden", Forbidden("ROLE", "no"), KindAuthorization, "ROLE"},
		{"outbid", ConcurrencyLoss("lost"), KindConcurrency, CodeOutbid},
		{"not found", fmt.Errorf("x: %w", NotFound("TENDER", "missing")), KindNotFound, "TENDER"},
		{"plain", errors.New("boom"), "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, KindOf(tt.err))
			assert.Equal(t, tt.code, CodeOf(tt.err))
		})
	}
}

func TestWithDetailCopies(t *testing.T) {
	base := ConcurrencyLoss("lost")
	withBest := base.WithDetail("best_bid_id", "b1")

	require.NotNil(t, withBest.Details)
	assert.Equal(t, "b1", withBest.Details["best_bid_id"])
	assert.Nil(t, base.Details)
}
