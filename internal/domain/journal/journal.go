// Package journal is the durable log of session events kept for historical reads.
package journal

//go:generate go run go.uber.org/mock/mockgen -source=journal.go -destination=mocks/mock_repository.go -package=mocks

import (
	"context"
	"encoding/json"
	"time"
)

type Entry struct {
	TenderID    string          `json:"tenderId"`
	Seq         int64           `json:"seq"`
	Type        string          `json:"type"`
	LotID       string          `json:"lotId,omitempty"`
	Actor       string          `json:"actor"`
	TxID        string          `json:"txId"`
	Private     bool            `json:"private"`
	RecipientID string          `json:"recipientId,omitempty"`
	Payload     json.RawMessage `json:"payload"`
	At          time.Time       `json:"at"`
}

// Repository persists entries. Append must ignore entries already stored for (tender, seq).
type Repository interface {
	Append(ctx context.Context, entries []Entry) error
	ListByTender(ctx context.Context, tenderID string, afterSeq int64, limit int) ([]Entry, error)
}
