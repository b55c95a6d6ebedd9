package protocol

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canal-compras/disputa/internal/domain/identity"
)

func supplier() identity.Caller {
	return identity.Caller{UserID: "u-a", Role: identity.RoleSupplier, CompanyID: "acme"}
}

func TestTxSignAndVerify(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	tx, err := New(OpBidSubmit, "tender-1", supplier(), time.Now(), BidSubmitPayload{BidID: "b1", LotID: "l1", Value: 995})
	require.NoError(t, err)
	require.NoError(t, tx.Sign(priv))
	require.NoError(t, tx.Verify())

	tampered := tx
	tampered.Actor.CompanyID = "other"
	assert.Error(t, tampered.Verify())

	raw, err := tx.Marshal()
	require.NoError(t, err)
	decoded, err := UnmarshalTx(raw)
	require.NoError(t, err)
	require.NoError(t, decoded.Verify())

	payload, err := DecodePayload[BidSubmitPayload](decoded.Payload)
	require.NoError(t, err)
	assert.Equal(t, int64(995), payload.Value)
	assert.Equal(t, "l1", payload.LotID)
}

func TestValidateBasic(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*Tx)
	}{
		{"missing tender", func(tx *Tx) { tx.TenderID = "" }},
		{"unknown op", func(tx *Tx) { tx.Op = "HACK" }},
		{"bad actor", func(tx *Tx) { tx.Actor = identity.Caller{} }},
		{"missing signature", func(tx *Tx) { tx.Signature = "" }},
		{"zero timestamp", func(tx *Tx) { tx.Timestamp = time.Time{} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx, err := New(OpLotJoin, "tender-1", supplier(), time.Now(), LotJoinPayload{LotID: "l1"})
			require.NoError(t, err)
			require.NoError(t, tx.Sign(priv))
			tt.mutate(&tx)
			assert.Error(t, tx.ValidateBasic())
		})
	}
}

func TestTickNeedsNoTender(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	tx, err := New(OpTick, "", identity.System("n1"), time.Now(), TickPayload{Node: "n1"})
	require.NoError(t, err)
	require.NoError(t, tx.Sign(priv))
	assert.NoError(t, tx.Verify())
}

func TestPermitted(t *testing.T) {
	auctioneer := identity.Caller{UserID: "p1", Role: identity.RoleAuctioneer}
	assert.True(t, Permitted(OpBidCancel, supplier()))
	assert.True(t, Permitted(OpBidCancel, auctioneer))
	assert.False(t, Permitted(OpBidSubmit, auctioneer))
	assert.False(t, Permitted(OpTick, auctioneer))
	assert.True(t, Permitted(OpTick, identity.System("n1")))
}
