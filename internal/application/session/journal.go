package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/canal-compras/disputa/internal/dispute/state"
	"github.com/canal-compras/disputa/internal/domain/journal"
)

const defaultJournalBuffer = 10000

// JournalWriter buffers store events and persists them on Flush. Observers
// run on the apply path, so events are never written inline.
type JournalWriter struct {
	repo    journal.Repository
	max     int
	mu      sync.Mutex
	pending []journal.Entry
	logger  zerolog.Logger
}

func NewJournalWriter(repo journal.Repository, logger zerolog.Logger) *JournalWriter {
	return &JournalWriter{
		repo:   repo,
		max:    defaultJournalBuffer,
		logger: logger.With().Str("component", "journal").Logger(),
	}
}

// Add queues events. When the buffer is full the oldest entries are dropped.
func (w *JournalWriter) Add(events []state.Event) {
	entries := make([]journal.Entry, 0, len(events))
	for i := range events {
		entry, err := toEntry(&events[i])
		if err != nil {
			w.logger.Error().Err(err).Str("tender_id", events[i].TenderID).Int64("seq", events[i].Seq).Msg("journal entry skipped")
			continue
		}
		entries = append(entries, entry)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending = append(w.pending, entries...)
	if over := len(w.pending) - w.max; over > 0 {
		w.pending = append([]journal.Entry(nil), w.pending[over:]...)
		w.logger.Warn().Int("dropped", over).Msg("journal buffer full")
	}
}

func (w *JournalWriter) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

// Flush writes the buffered entries. Failed entries go back to the front of
// the buffer; Append ignores entries already stored, so a retry is safe.
func (w *JournalWriter) Flush(ctx context.Context) error {
	w.mu.Lock()
	batch := w.pending
	w.pending = nil
	w.mu.Unlock()
	if len(batch) == 0 {
		return nil
	}
	if err := w.repo.Append(ctx, batch); err != nil {
		w.mu.Lock()
		w.pending = append(batch, w.pending...)
		w.mu.Unlock()
		return fmt.Errorf("flush journal: %w", err)
	}
	w.logger.Debug().Int("entries", len(batch)).Msg("journal flushed")
	return nil
}

func toEntry(ev *state.Event) (journal.Entry, error) {
	payload, err := json.Marshal(ev.Data)
	if err != nil {
		return journal.Entry{}, fmt.Errorf("encode %s event: %w", ev.Type, err)
	}
	return journal.Entry{
		TenderID:    ev.TenderID,
		Seq:         ev.Seq,
		Type:        string(ev.Type),
		LotID:       ev.LotID,
		Actor:       ev.Actor,
		TxID:        ev.TxID,
		Private:     ev.Private,
		RecipientID: ev.RecipientID,
		Payload:     payload,
		At:          ev.At,
	}, nil
}
