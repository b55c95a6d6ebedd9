package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/canal-compras/disputa/internal/domain/journal"
)

// JournalRepository implements journal.Repository.
type JournalRepository struct {
	pool *pgxpool.Pool
}

func NewJournalRepository(pool *pgxpool.Pool) *JournalRepository {
	return &JournalRepository{pool: pool}
}

// Append writes entries in one batch; rows already stored for (tender, seq) are kept.
func (r *JournalRepository) Append(ctx context.Context, entries []journal.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(`
			INSERT INTO session_journal (tender_id, seq, type, lot_id, actor, tx_id, private, recipient_id, payload, at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
			ON CONFLICT (tender_id, seq) DO NOTHING
		`, e.TenderID, e.Seq, e.Type, e.LotID, e.Actor, e.TxID, e.Private, e.RecipientID, []byte(e.Payload), e.At)
	}
	return r.pool.SendBatch(ctx, batch).Close()
}

func (r *JournalRepository) ListByTender(ctx context.Context, tenderID string, afterSeq int64, limit int) ([]journal.Entry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT tender_id, seq, type, lot_id, actor, tx_id, private, recipient_id, payload, at
		FROM session_journal WHERE tender_id=$1 AND seq > $2
		ORDER BY seq LIMIT $3
	`, tenderID, afterSeq, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	entries := make([]journal.Entry, 0)
	for rows.Next() {
		var e journal.Entry
		var payload []byte
		if err := rows.Scan(&e.TenderID, &e.Seq, &e.Type, &e.LotID, &e.Actor, &e.TxID, &e.Private, &e.RecipientID, &payload, &e.At); err != nil {
			return nil, err
		}
		e.Payload = payload
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
