package state

import (
	"sort"
	"strings"
	"time"

	"github.com/canal-compras/disputa/internal/domain/bid"
	"github.com/canal-compras/disputa/internal/domain/dispute"
	"github.com/canal-compras/disputa/internal/domain/identity"
	"github.com/canal-compras/disputa/internal/domain/message"
)

type LotView struct {
	Lot
	Participants []dispute.Participant  `json:"participants"`
	Bids         []bid.Bid              `json:"bids"`
	Ranking      []bid.Bid              `json:"ranking"`
	BestBid      *bid.Bid               `json:"bestBid,omitempty"`
	Sealed       bool                   `json:"sealed"`
	Resource     *dispute.ResourceState `json:"resource,omitempty"`
}

// SessionView is the state of a session as one viewer may see it.
type SessionView struct {
	Session  Session           `json:"session"`
	Lots     []LotView         `json:"lots"`
	Messages []message.Message `json:"messages"`
	Seq      int64             `json:"seq"`
}

// History is the complete ordered read of a tender used for the session minutes.
type History struct {
	Session  Session           `json:"session"`
	Lots     []LotView         `json:"lots"`
	Messages []message.Message `json:"messages"`
	Seq      int64             `json:"seq"`
	ChainOK  bool              `json:"chainOk"`
}

func (m *Machine) record(tenderID string) (*record, bool) {
	rec, ok := m.s.Tenders[strings.TrimSpace(tenderID)]
	return rec, ok
}

func (m *Machine) GetSession(tenderID string) (Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.record(tenderID)
	if !ok {
		return Session{}, false
	}
	return cloneSession(rec.Session), true
}

// TenderIDs lists every tender with a session, sorted.
func (m *Machine) TenderIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.s.Tenders))
	for id := range m.s.Tenders {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// sealedFor reports whether competitors' bids on lotID are hidden from viewer.
func (r *record) sealedFor(lotID string, viewer identity.Caller) bool {
	s := &r.Session
	if viewer.PrivilegedFor(s.AgencyID) || s.ActiveLotID != lotID {
		return false
	}
	return s.Status == dispute.StatusOpen && s.sealed()
}

func (r *record) lotView(lotID string, viewer identity.Caller, full bool) LotView {
	lot := r.Lots[lotID]
	view := LotView{Lot: lot}

	parts := make([]dispute.Participant, 0, len(r.Participants[lotID]))
	for _, p := range r.Participants[lotID] {
		parts = append(parts, p)
	}
	sort.Slice(parts, func(i, j int) bool {
		if !parts[i].JoinedAt.Equal(parts[j].JoinedAt) {
			return parts[i].JoinedAt.Before(parts[j].JoinedAt)
		}
		return parts[i].SupplierID < parts[j].SupplierID
	})
	view.Participants = parts

	bids := r.Bids[lotID]
	if !full && r.sealedFor(lotID, viewer) {
		view.Sealed = true
		visible := make([]bid.Bid, 0)
		for i, b := range bids {
			if i < r.Session.SealedAfter || b.SupplierID == viewer.SupplierKey() {
				visible = append(visible, b)
			}
		}
		view.Bids = visible
		view.Ranking = []bid.Bid{}
	} else {
		view.Bids = append([]bid.Bid(nil), bids...)
		view.Ranking = bid.Rank(bids, r.Session.Criterion)
		if best, ok := bid.Best(bids, r.Session.Criterion); ok {
			view.BestBid = &best
		}
	}
	if rs, ok := r.Resources[lotID]; ok {
		cp := cloneResourceState(rs)
		view.Resource = &cp
	}
	return view
}

// View returns the session filtered for viewer.
func (m *Machine) View(tenderID string, viewer identity.Caller) (SessionView, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.record(tenderID)
	if !ok {
		return SessionView{}, false
	}
	session := cloneSession(rec.Session)
	if session.Mode.RandomEnd() && !viewer.PrivilegedFor(session.AgencyID) && !session.BiddingElapsed {
		session.EndsAt = nil
	}
	view := SessionView{
		Session:  session,
		Lots:     make([]LotView, 0, len(rec.LotOrder)),
		Messages: message.Filter(rec.Messages, viewer, rec.Session.AgencyID),
		Seq:      rec.Seq,
	}
	for _, lotID := range rec.LotOrder {
		view.Lots = append(view.Lots, rec.lotView(lotID, viewer, false))
	}
	return view, true
}

// Ranking returns the ordered active bids of a lot as viewer may see them.
func (m *Machine) Ranking(tenderID, lotID string, viewer identity.Caller) ([]bid.Bid, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.record(tenderID)
	if !ok {
		return nil, false
	}
	if _, ok := rec.Lots[lotID]; !ok {
		return nil, false
	}
	return rec.lotView(lotID, viewer, false).Ranking, true
}

// History returns every lot, bid and message in order. Messages are still
// filtered for viewer; bids are never sealed.
func (m *Machine) History(tenderID string, viewer identity.Caller) (History, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.record(tenderID)
	if !ok {
		return History{}, false
	}
	idx, err := message.VerifyChain(rec.Messages)
	h := History{
		Session:  cloneSession(rec.Session),
		Lots:     make([]LotView, 0, len(rec.LotOrder)),
		Messages: message.Filter(rec.Messages, viewer, rec.Session.AgencyID),
		Seq:      rec.Seq,
		ChainOK:  err == nil && idx < 0,
	}
	for _, lotID := range rec.LotOrder {
		h.Lots = append(h.Lots, rec.lotView(lotID, viewer, true))
	}
	return h, true
}

// VerifyChain returns the index of the first tampered message of a tender, or -1.
func (m *Machine) VerifyChain(tenderID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.record(tenderID)
	if !ok {
		return -1, nil
	}
	return message.VerifyChain(rec.Messages)
}

func (m *Machine) Message(tenderID, messageID string) (message.Message, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.record(tenderID)
	if !ok {
		return message.Message{}, false
	}
	for i := len(rec.Messages) - 1; i >= 0; i-- {
		if rec.Messages[i].ID == messageID {
			return rec.Messages[i], true
		}
	}
	return message.Message{}, false
}

func (m *Machine) Bid(tenderID, bidID string) (bid.Bid, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.record(tenderID)
	if !ok {
		return bid.Bid{}, false
	}
	lotID, idx, found := rec.findBid(bidID)
	if !found {
		return bid.Bid{}, false
	}
	return rec.Bids[lotID][idx], true
}

// Participants returns the supplier ids of a lot, or of every lot when lotID is empty.
func (m *Machine) Participants(tenderID, lotID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.record(tenderID)
	if !ok {
		return nil
	}
	seen := map[string]struct{}{}
	for lid, parts := range rec.Participants {
		if lotID != "" && lid != lotID {
			continue
		}
		for sid := range parts {
			seen[sid] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for sid := range seen {
		out = append(out, sid)
	}
	sort.Strings(out)
	return out
}

// ResourceFiler returns the supplier that filed a resource.
func (m *Machine) ResourceFiler(tenderID, resourceID string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.record(tenderID)
	if !ok {
		return "", false
	}
	lotID, idx, found := rec.findResource(resourceID)
	if !found {
		return "", false
	}
	return rec.Resources[lotID].Resources[idx].SupplierID, true
}

// PendingWork reports whether a tick at now would change any session.
func (m *Machine) PendingWork(now time.Time) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	now = now.UTC()
	for _, rec := range m.s.Tenders {
		if rec.hasDeadlineDue(now) {
			return true
		}
	}
	return false
}

type Stats struct {
	Tenders   int `json:"tenders"`
	Open      int `json:"open"`
	Bids      int `json:"bids"`
	Messages  int `json:"messages"`
	AppliedTx int `json:"appliedTx"`
}

func (m *Machine) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st := Stats{Tenders: len(m.s.Tenders), AppliedTx: len(m.s.AppliedTx)}
	for _, rec := range m.s.Tenders {
		if rec.Session.Status == dispute.StatusOpen {
			st.Open++
		}
		for _, bids := range rec.Bids {
			st.Bids += len(bids)
		}
		st.Messages += len(rec.Messages)
	}
	return st
}
