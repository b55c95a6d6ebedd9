// Package state is the session state store: a deterministic machine that
// applies signed commands to every tender's dispute session.
package state

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/canal-compras/disputa/internal/codec"
	"github.com/canal-compras/disputa/internal/dispute/protocol"
	"github.com/canal-compras/disputa/internal/domain/bid"
	"github.com/canal-compras/disputa/internal/domain/dispute"
	"github.com/canal-compras/disputa/internal/domain/failure"
	"github.com/canal-compras/disputa/internal/domain/identity"
	"github.com/canal-compras/disputa/internal/domain/message"
)

// Observer receives the events of one applied tx, in commit order. Calls are
// serialized, so an observer must not apply txs to the same machine.
type Observer func(events []Event)

// Machine never reads the wall clock: time is the tx timestamp, clamped to be
// monotone per tender.
type Machine struct {
	mu sync.RWMutex
	s  snapshot

	// dispatchMu is taken before mu is released so observers see txs in commit order.
	dispatchMu sync.Mutex

	obsMu     sync.Mutex
	observers map[int]Observer
	nextObs   int
}

func NewMachine() *Machine {
	return &Machine{s: emptySnapshot(), observers: map[int]Observer{}}
}

func emptySnapshot() snapshot {
	return snapshot{
		Tenders:   map[string]*record{},
		AppliedTx: map[string]bool{},
	}
}

// Observe registers fn and returns a function that removes it.
func (m *Machine) Observe(fn Observer) (cancel func()) {
	m.obsMu.Lock()
	id := m.nextObs
	m.nextObs++
	m.observers[id] = fn
	m.obsMu.Unlock()
	return func() {
		m.obsMu.Lock()
		delete(m.observers, id)
		m.obsMu.Unlock()
	}
}

func (m *Machine) notify(events []Event) {
	if len(events) == 0 {
		return
	}
	m.obsMu.Lock()
	ids := make([]int, 0, len(m.observers))
	for id := range m.observers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]Observer, 0, len(ids))
	for _, id := range ids {
		fns = append(fns, m.observers[id])
	}
	m.obsMu.Unlock()
	for _, fn := range fns {
		fn(events)
	}
}

// Marshal serializes the current machine snapshot.
func (m *Machine) Marshal() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return codec.Marshal(m.s)
}

// Unmarshal restores machine state from a snapshot payload.
func (m *Machine) Unmarshal(data []byte) error {
	if len(data) == 0 {
		return errors.New("empty snapshot")
	}
	var s snapshot
	if err := codec.Unmarshal(data, &s); err != nil {
		return err
	}
	normalizeSnapshot(&s)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s = s
	return nil
}

func normalizeSnapshot(s *snapshot) {
	if s.Tenders == nil {
		s.Tenders = map[string]*record{}
	}
	if s.AppliedTx == nil {
		s.AppliedTx = map[string]bool{}
	}
	for id, rec := range s.Tenders {
		if rec == nil {
			delete(s.Tenders, id)
			continue
		}
		rec.normalize()
	}
}

func newRecord() *record {
	r := &record{}
	r.normalize()
	return r
}

func (r *record) normalize() {
	if r.Session.Mode != "" && r.Session.Stage == "" {
		r.Session.Stage = r.Session.Mode.FirstStage()
	}
	if r.Lots == nil {
		r.Lots = map[string]Lot{}
	}
	if r.Bids == nil {
		r.Bids = map[string][]bid.Bid{}
	}
	if r.Participants == nil {
		r.Participants = map[string]map[string]dispute.Participant{}
	}
	if r.Resources == nil {
		r.Resources = map[string]dispute.ResourceState{}
	}
}

// clone deep-copies the record so a failed tx never leaves partial writes.
func (r *record) clone() *record {
	out := &record{
		Session:      cloneSession(r.Session),
		Lots:         make(map[string]Lot, len(r.Lots)),
		LotOrder:     append([]string(nil), r.LotOrder...),
		Bids:         make(map[string][]bid.Bid, len(r.Bids)),
		Participants: make(map[string]map[string]dispute.Participant, len(r.Participants)),
		Resources:    make(map[string]dispute.ResourceState, len(r.Resources)),
		Messages:     append([]message.Message(nil), r.Messages...),
		Seq:          r.Seq,
		LastAt:       r.LastAt,
	}
	for k, v := range r.Lots {
		out.Lots[k] = v
	}
	for k, v := range r.Bids {
		out.Bids[k] = append([]bid.Bid(nil), v...)
	}
	for k, v := range r.Participants {
		cp := make(map[string]dispute.Participant, len(v))
		for sid, p := range v {
			cp[sid] = p
		}
		out.Participants[k] = cp
	}
	for k, v := range r.Resources {
		out.Resources[k] = cloneResourceState(v)
	}
	return out
}

func cloneSession(s Session) Session {
	s.Settings.Holidays = append([]string(nil), s.Settings.Holidays...)
	s.Finalists = append([]string(nil), s.Finalists...)
	return s
}

func cloneResourceState(in dispute.ResourceState) dispute.ResourceState {
	in.Resources = append([]dispute.Resource(nil), in.Resources...)
	in.CounterArguments = append([]dispute.CounterArgument(nil), in.CounterArguments...)
	in.Decisions = append([]dispute.AuthorityDecision(nil), in.Decisions...)
	return in
}

// applyCtx carries one tx through its operation handler.
type applyCtx struct {
	tx     protocol.Tx
	at     time.Time
	rec    *record
	cal    dispute.Calendar
	events []Event
}

func (c *applyCtx) emit(typ EventType, lotID string, data any) *Event {
	c.rec.Seq++
	c.events = append(c.events, Event{
		TenderID: c.rec.Session.TenderID,
		AgencyID: c.rec.Session.AgencyID,
		Seq:      c.rec.Seq,
		Type:     typ,
		LotID:    lotID,
		Actor:    c.tx.Actor.Actor(),
		TxID:     c.tx.TxID,
		At:       c.at,
		Data:     data,
	})
	return &c.events[len(c.events)-1]
}

// derivedID is deterministic across replicas.
func (c *applyCtx) derivedID(kind string) string {
	name := fmt.Sprintf("%s/%s/%d", c.tx.TxID, kind, c.rec.Seq+1)
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
}

// appendMessage seals msg onto the tender chain and publishes it.
func (c *applyCtx) appendMessage(msg message.Message) (message.Message, error) {
	msg.TenderID = c.rec.Session.TenderID
	msg.Seq = c.rec.Seq + 1
	msg.CreatedAt = c.at
	prev := ""
	if n := len(c.rec.Messages); n > 0 {
		prev = c.rec.Messages[n-1].Hash
	}
	if err := msg.Seal(prev); err != nil {
		return message.Message{}, fmt.Errorf("seal message: %w", err)
	}
	c.rec.Messages = append(c.rec.Messages, msg)
	ev := c.emit(EventMessagePosted, msg.LotID, msg)
	if msg.IsPrivate() {
		ev.Private = true
		ev.RecipientID = msg.RecipientID
	}
	return msg, nil
}

// announce appends an immutable public system message.
func (c *applyCtx) announce(lotID, format string, args ...any) error {
	_, err := c.appendMessage(message.Message{
		ID:         c.derivedID("system-message"),
		LotID:      lotID,
		Kind:       message.KindSystem,
		AuthorID:   "sistema",
		AuthorName: "Sistema",
		AuthorRole: identity.RoleSystem,
		Content:    fmt.Sprintf(format, args...),
		Visibility: message.VisibilityPublic,
	})
	return err
}

// ApplyTx validates and applies one signed transaction.
func (m *Machine) ApplyTx(tx protocol.Tx) error {
	if err := tx.Verify(); err != nil {
		return failure.Invalid("INVALID_TX", "invalid tx: %v", err)
	}
	m.mu.Lock()
	events, err := m.applyLocked(tx)
	if err != nil || len(events) == 0 {
		m.mu.Unlock()
		return err
	}
	m.dispatchMu.Lock()
	m.mu.Unlock()
	defer m.dispatchMu.Unlock()
	m.notify(events)
	return nil
}

// applyLocked runs with mu held.
func (m *Machine) applyLocked(tx protocol.Tx) ([]Event, error) {
	if m.s.AppliedTx[tx.TxID] {
		return nil, nil
	}
	if !protocol.Permitted(tx.Op, tx.Actor) {
		return nil, failure.Forbidden("ROLE_NOT_ALLOWED", "role %s may not perform %s", tx.Actor.Role, tx.Op)
	}

	if tx.Op == protocol.OpTick {
		events, err := m.applyTickLocked(tx)
		if err != nil {
			return nil, err
		}
		m.s.AppliedTx[tx.TxID] = true
		return events, nil
	}

	tenderID := strings.TrimSpace(tx.TenderID)
	current, exists := m.s.Tenders[tenderID]
	var rec *record
	switch {
	case tx.Op == protocol.OpSessionOpen:
		if exists {
			return nil, failure.State("SESSION_EXISTS", "session already open for tender %s", tenderID)
		}
		rec = newRecord()
	case !exists:
		return nil, failure.NotFound("SESSION_NOT_FOUND", "no session for tender %s", tenderID)
	default:
		rec = current.clone()
		if tx.Actor.AgencyBound() && tx.Actor.AgencyID != rec.Session.AgencyID {
			return nil, failure.Forbidden("AGENCY_MISMATCH", "caller does not belong to the tender agency")
		}
	}

	c, err := newApplyCtx(tx, rec)
	if err != nil {
		return nil, err
	}
	switch tx.Op {
	case protocol.OpSessionOpen:
		err = applySessionOpen(c)
	case protocol.OpLotJoin:
		err = applyLotJoin(c)
	case protocol.OpClassify:
		err = applyClassify(c)
	case protocol.OpDisputeStart:
		err = applyDisputeStart(c)
	case protocol.OpDisputeStatus:
		err = applyDisputeStatus(c)
	case protocol.OpBidSubmit:
		err = applyBidSubmit(c)
	case protocol.OpBidCancel:
		err = applyBidCancel(c)
	case protocol.OpMessageSend:
		err = applyMessageSend(c)
	case protocol.OpChatToggle:
		err = applyChatToggle(c)
	case protocol.OpWinnerDeclare:
		err = applyWinnerDeclare(c)
	case protocol.OpResourceFile:
		err = applyResourceFile(c)
	case protocol.OpResourceReason:
		err = applyResourceReason(c)
	case protocol.OpCounterArgument:
		err = applyCounterArgument(c)
	case protocol.OpResourceAdvance:
		err = applyResourceAdvance(c)
	case protocol.OpAuthorityDecision:
		err = applyAuthorityDecision(c)
	default:
		err = failure.Invalid("UNSUPPORTED_OP", "unsupported op: %s", tx.Op)
	}
	if err != nil {
		return nil, err
	}
	c.commit()
	m.s.Tenders[rec.Session.TenderID] = rec
	m.s.AppliedTx[tx.TxID] = true
	return c.events, nil
}

func newApplyCtx(tx protocol.Tx, rec *record) (*applyCtx, error) {
	at := tx.Timestamp.UTC()
	if at.Before(rec.LastAt) {
		at = rec.LastAt
	}
	cal, err := dispute.NewCalendar(rec.Session.Settings.Holidays)
	if err != nil {
		return nil, failure.Invalid("INVALID_HOLIDAYS", "%v", err)
	}
	return &applyCtx{tx: tx, at: at, rec: rec, cal: cal}, nil
}

func (c *applyCtx) commit() {
	c.rec.LastAt = c.at
	if len(c.events) > 0 {
		c.rec.Session.UpdatedAt = c.at
	}
}

// applyTickLocked evaluates deadlines of every tender in id order.
func (m *Machine) applyTickLocked(tx protocol.Tx) ([]Event, error) {
	ids := make([]string, 0, len(m.s.Tenders))
	for id := range m.s.Tenders {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var (
		all     []Event
		changed = map[string]*record{}
	)
	for _, id := range ids {
		current := m.s.Tenders[id]
		if !current.hasDeadlineDue(tx.Timestamp.UTC()) {
			continue
		}
		rec := current.clone()
		c, err := newApplyCtx(tx, rec)
		if err != nil {
			return nil, fmt.Errorf("tender %s: %w", id, err)
		}
		if err := evaluateDeadlines(c); err != nil {
			return nil, fmt.Errorf("tender %s: %w", id, err)
		}
		if len(c.events) == 0 {
			continue
		}
		c.commit()
		changed[id] = rec
		all = append(all, c.events...)
	}
	// A tick commits every tender or none.
	for id, rec := range changed {
		m.s.Tenders[id] = rec
	}
	return all, nil
}

func evaluateDeadlines(c *applyCtx) error {
	if err := effectuateDue(c); err != nil {
		return err
	}
	if err := expireBidding(c); err != nil {
		return err
	}
	return advanceResourcePhases(c)
}

// hasDeadlineDue reports whether a tick at t would change the record.
func (r *record) hasDeadlineDue(t time.Time) bool {
	if t.Before(r.LastAt) {
		t = r.LastAt
	}
	for lotID, bids := range r.Bids {
		if r.Lots[lotID].Finalized {
			continue
		}
		for i := range bids {
			if bids[i].IsActive() && !bids[i].Effective && !t.Before(bids[i].ConfirmBy) {
				return true
			}
		}
	}
	s := &r.Session
	if s.Status == dispute.StatusOpen && !s.BiddingElapsed && s.EndsAt != nil && !t.Before(*s.EndsAt) {
		return true
	}
	for _, rs := range r.Resources {
		if rs.Due(t) {
			return true
		}
	}
	return false
}
