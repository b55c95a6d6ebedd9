// Package protocol defines the signed command envelope applied by the session store.
package protocol

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/canal-compras/disputa/internal/codec"
	"github.com/canal-compras/disputa/internal/domain/identity"
)

// Operation is a session store write.
type Operation string

const (
	OpSessionOpen       Operation = "SESSION_OPEN"
	OpLotJoin           Operation = "LOT_JOIN"
	OpClassify          Operation = "PARTICIPANT_CLASSIFY"
	OpDisputeStart      Operation = "DISPUTE_START"
	OpDisputeStatus     Operation = "DISPUTE_STATUS"
	OpBidSubmit         Operation = "BID_SUBMIT"
	OpBidCancel         Operation = "BID_CANCEL"
	OpMessageSend       Operation = "MESSAGE_SEND"
	OpChatToggle        Operation = "CHAT_TOGGLE"
	OpWinnerDeclare     Operation = "WINNER_DECLARE"
	OpResourceFile      Operation = "RESOURCE_FILE"
	OpResourceReason    Operation = "RESOURCE_REASON"
	OpCounterArgument   Operation = "COUNTER_ARGUMENT"
	OpResourceAdvance   Operation = "RESOURCE_ADVANCE"
	OpAuthorityDecision Operation = "AUTHORITY_DECISION"
	OpTick              Operation = "TICK"
)

// Actions maps each operation to the capabilities that allow it; any one suffices.
var Actions = map[Operation][]identity.Action{
	OpSessionOpen:       {identity.ActionOpenSession},
	OpLotJoin:           {identity.ActionJoinLot},
	OpClassify:          {identity.ActionClassify},
	OpDisputeStart:      {identity.ActionStartDispute},
	OpDisputeStatus:     {identity.ActionChangeStatus},
	OpBidSubmit:         {identity.ActionSubmitBid},
	OpBidCancel:         {identity.ActionCancelOwnBid, identity.ActionCancelAnyBid},
	OpMessageSend:       {identity.ActionSendMessage},
	OpChatToggle:        {identity.ActionToggleChat},
	OpWinnerDeclare:     {identity.ActionDeclareWinner},
	OpResourceFile:      {identity.ActionFileResource},
	OpResourceReason:    {identity.ActionSubmitReasoning},
	OpCounterArgument:   {identity.ActionCounterArgue},
	OpResourceAdvance:   {identity.ActionAdvanceResource},
	OpAuthorityDecision: {identity.ActionDecideResource},
	OpTick:              {identity.ActionTick},
}

// Permitted reports whether caller's role may issue op.
func Permitted(op Operation, caller identity.Caller) bool {
	for _, a := range Actions[op] {
		if caller.Can(a) {
			return true
		}
	}
	return false
}

// Tx is the signed, replicated command envelope.
type Tx struct {
	TxID      string           `json:"tx_id"`
	TenderID  string           `json:"tender_id,omitempty"`
	Nonce     string           `json:"nonce"`
	Timestamp time.Time        `json:"timestamp"`
	Actor     identity.Caller  `json:"actor"`
	Op        Operation        `json:"op"`
	Payload   codec.RawMessage `json:"payload"`
	PublicKey string           `json:"public_key"`
	Signature string           `json:"signature"`
}

type txSignable struct {
	TxID      string           `json:"tx_id"`
	TenderID  string           `json:"tender_id,omitempty"`
	Nonce     string           `json:"nonce"`
	Timestamp time.Time        `json:"timestamp"`
	Actor     identity.Caller  `json:"actor"`
	Op        Operation        `json:"op"`
	Payload   codec.RawMessage `json:"payload"`
	PublicKey string           `json:"public_key"`
}

// New builds an unsigned tx with fresh ids and an encoded payload.
func New(op Operation, tenderID string, actor identity.Caller, at time.Time, payload any) (Tx, error) {
	raw, err := codec.Marshal(payload)
	if err != nil {
		return Tx{}, fmt.Errorf("encode %s payload: %w", op, err)
	}
	return Tx{
		TxID:      uuid.NewString(),
		TenderID:  tenderID,
		Nonce:     uuid.NewString(),
		Timestamp: at.UTC(),
		Actor:     actor,
		Op:        op,
		Payload:   raw,
	}, nil
}

// CanonicalBytes returns the deterministic signing payload.
func (t Tx) CanonicalBytes() ([]byte, error) {
	return codec.Marshal(txSignable{
		TxID:      strings.TrimSpace(t.TxID),
		TenderID:  strings.TrimSpace(t.TenderID),
		Nonce:     strings.TrimSpace(t.Nonce),
		Timestamp: t.Timestamp.UTC(),
		Actor:     t.Actor,
		Op:        t.Op,
		Payload:   t.Payload,
		PublicKey: strings.TrimSpace(t.PublicKey),
	})
}

// ValidateBasic checks required immutable tx fields.
func (t Tx) ValidateBasic() error {
	if strings.TrimSpace(t.TxID) == "" {
		return errors.New("tx_id is required")
	}
	if strings.TrimSpace(t.Nonce) == "" {
		return errors.New("nonce is required")
	}
	if err := t.Actor.Validate(); err != nil {
		return fmt.Errorf("actor: %w", err)
	}
	if t.Timestamp.IsZero() {
		return errors.New("timestamp is required")
	}
	if _, ok := Actions[t.Op]; !ok {
		return fmt.Errorf("unsupported op: %s", t.Op)
	}
	if t.Op != OpTick && strings.TrimSpace(t.TenderID) == "" {
		return errors.New("tender_id is required")
	}
	if len(t.Payload) == 0 {
		return errors.New("payload is required")
	}
	if strings.TrimSpace(t.PublicKey) == "" {
		return errors.New("public_key is required")
	}
	if strings.TrimSpace(t.Signature) == "" {
		return errors.New("signature is required")
	}
	return nil
}

// Sign sets tx public key/signature for the given private key.
func (t *Tx) Sign(privateKey ed25519.PrivateKey) error {
	if len(privateKey) != ed25519.PrivateKeySize {
		return errors.New("invalid private key")
	}
	t.PublicKey = base64.StdEncoding.EncodeToString(privateKey.Public().(ed25519.PublicKey))
	payload, err := t.CanonicalBytes()
	if err != nil {
		return err
	}
	t.Signature = base64.StdEncoding.EncodeToString(ed25519.Sign(privateKey, payload))
	return nil
}

// Verify validates tx signature using the included public key.
func (t Tx) Verify() error {
	if err := t.ValidateBasic(); err != nil {
		return err
	}
	pubRaw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(t.PublicKey))
	if err != nil {
		return fmt.Errorf("invalid public_key: %w", err)
	}
	if len(pubRaw) != ed25519.PublicKeySize {
		return errors.New("invalid public_key size")
	}
	sigRaw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(t.Signature))
	if err != nil {
		return fmt.Errorf("invalid signature: %w", err)
	}
	if len(sigRaw) != ed25519.SignatureSize {
		return errors.New("invalid signature size")
	}
	payload, err := t.CanonicalBytes()
	if err != nil {
		return err
	}
	if !ed25519.Verify(ed25519.PublicKey(pubRaw), payload, sigRaw) {
		return errors.New("signature verification failed")
	}
	return nil
}

func (t Tx) Marshal() ([]byte, error) {
	return codec.Marshal(t)
}

func UnmarshalTx(data []byte) (Tx, error) {
	var tx Tx
	if err := codec.Unmarshal(data, &tx); err != nil {
		return Tx{}, err
	}
	return tx, nil
}

// DecodePayload decodes operation payloads.
func DecodePayload[T any](raw codec.RawMessage) (T, error) {
	var out T
	if err := codec.Unmarshal(raw, &out); err != nil {
		return out, err
	}
	return out, nil
}
