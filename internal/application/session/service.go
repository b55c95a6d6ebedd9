// Package session is the boundary of the session state store: it turns an
// authenticated caller's request into a signed tx, applies it through the
// replica and reads filtered views back.
package session

import (
	"context"
	"crypto/ed25519"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/canal-compras/disputa/internal/dispute/protocol"
	"github.com/canal-compras/disputa/internal/dispute/state"
	"github.com/canal-compras/disputa/internal/domain/bid"
	"github.com/canal-compras/disputa/internal/domain/dispute"
	"github.com/canal-compras/disputa/internal/domain/failure"
	"github.com/canal-compras/disputa/internal/domain/identity"
	"github.com/canal-compras/disputa/internal/domain/journal"
	"github.com/canal-compras/disputa/internal/domain/message"
	"github.com/canal-compras/disputa/internal/domain/tender"
)

// Replica applies txs to the replicated machine. The local replica and the
// raft node both satisfy it.
type Replica interface {
	ID() string
	ApplyTx(ctx context.Context, tx protocol.Tx) error
	Machine() *state.Machine
	IsAuthority() bool
}

// Settings are the timing rules given to new sessions.
type Settings struct {
	Session      protocol.SessionSettings
	RandomBase   time.Duration
	RandomSpread time.Duration
}

const (
	defaultRandomBase   = 10 * time.Minute
	defaultRandomSpread = 10 * time.Minute
	defaultJournalLimit = 200
	maxJournalLimit     = 1000
)

// Service is the only writer of session data.
type Service struct {
	replica  Replica
	catalog  tender.Repository
	journal  journal.Repository
	key      ed25519.PrivateKey
	settings Settings
	now      func() time.Time
	spread   func(n int64) int64
	logger   zerolog.Logger
}

type Option func(*Service)

// WithClock replaces the wall clock used to stamp txs.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithSpread replaces the draw in [0, n) used for random end times.
func WithSpread(fn func(n int64) int64) Option {
	return func(s *Service) { s.spread = fn }
}

// WithJournal enables the persisted journal read.
func WithJournal(repo journal.Repository) Option {
	return func(s *Service) { s.journal = repo }
}

// NewService creates the session service.
func NewService(
	replica Replica,
	catalog tender.Repository,
	key ed25519.PrivateKey,
	settings Settings,
	logger zerolog.Logger,
	opts ...Option,
) *Service {
	if settings.RandomBase <= 0 {
		settings.RandomBase = defaultRandomBase
	}
	if settings.RandomSpread < 0 {
		settings.RandomSpread = defaultRandomSpread
	}
	s := &Service{
		replica:  replica,
		catalog:  catalog,
		key:      key,
		settings: settings,
		now:      func() time.Time { return time.Now().UTC() },
		spread:   rand.Int63n,
		logger:   logger.With().Str("service", "session").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Machine() *state.Machine { return s.replica.Machine() }

func (s *Service) submit(ctx context.Context, op protocol.Operation, tenderID string, caller identity.Caller, payload any) error {
	if err := caller.Validate(); err != nil {
		return failure.Forbidden("INVALID_IDENTITY", "%v", err)
	}
	if caller.Role == identity.RoleSystem {
		return failure.Forbidden("ROLE_NOT_ALLOWED", "system role is reserved for the evaluator")
	}
	return s.apply(ctx, op, tenderID, caller, payload)
}

func (s *Service) apply(ctx context.Context, op protocol.Operation, tenderID string, caller identity.Caller, payload any) error {
	tx, err := protocol.New(op, strings.TrimSpace(tenderID), caller, s.now(), payload)
	if err != nil {
		return err
	}
	if err := tx.Sign(s.key); err != nil {
		return err
	}
	if err := s.replica.ApplyTx(ctx, tx); err != nil {
		if failure.KindOf(err) == failure.KindTransient || failure.KindOf(err) == "" {
			s.logger.Warn().Err(err).Str("op", string(op)).Str("tender_id", tenderID).Msg("tx not applied")
		} else {
			s.logger.Debug().Err(err).Str("op", string(op)).Str("tender_id", tenderID).Msg("tx rejected")
		}
		return err
	}
	return nil
}

// OpenSession opens the dispute session of a published tender from the catalog.
func (s *Service) OpenSession(ctx context.Context, caller identity.Caller, tenderID string) (state.SessionView, error) {
	id, err := uuid.Parse(strings.TrimSpace(tenderID))
	if err != nil {
		return state.SessionView{}, failure.Invalid("INVALID_TENDER_ID", "tender id must be a uuid")
	}
	t, err := s.catalog.GetTender(ctx, id)
	if err != nil {
		return state.SessionView{}, failure.Transient("CATALOG_UNAVAILABLE", "load tender: %v", err)
	}
	if t == nil {
		return state.SessionView{}, failure.NotFound("TENDER_NOT_FOUND", "tender %s not found", id)
	}
	if err := t.CanHostDispute(); err != nil {
		return state.SessionView{}, failure.State("TENDER_NOT_DISPUTABLE", "tender is %s", t.Status)
	}
	lots, err := s.catalog.ListLots(ctx, id)
	if err != nil {
		return state.SessionView{}, failure.Transient("CATALOG_UNAVAILABLE", "load lots: %v", err)
	}
	if len(lots) == 0 {
		return state.SessionView{}, failure.Invalid("LOTS_REQUIRED", "%v", tender.ErrNoLots)
	}

	payload := protocol.SessionOpenPayload{
		AgencyID:  t.AgencyID,
		Number:    t.Number,
		Title:     t.Title,
		Criterion: string(t.Criterion),
		Settings:  s.settings.Session,
		Lots:      make([]protocol.LotSpec, 0, len(lots)),
	}
	for _, lot := range lots {
		payload.Lots = append(payload.Lots, protocol.LotSpec{
			LotID:           lot.ID.String(),
			Number:          lot.Number,
			Name:            lot.Name,
			Type:            string(lot.Type),
			BenefitType:     string(lot.BenefitType),
			EligibilityRule: lot.EffectiveRule(),
			EstimatedValue:  int64(lot.EstimatedValue),
			MinDecrement:    int64(lot.MinDecrement),
		})
	}
	if err := s.submit(ctx, protocol.OpSessionOpen, id.String(), caller, payload); err != nil {
		return state.SessionView{}, err
	}
	s.logger.Info().Str("tender_id", id.String()).Str("actor", caller.Actor()).Int("lots", len(lots)).Msg("session opened")
	return s.View(caller, id.String())
}

func (s *Service) JoinLot(ctx context.Context, caller identity.Caller, tenderID, lotID string) error {
	return s.submit(ctx, protocol.OpLotJoin, tenderID, caller, protocol.LotJoinPayload{LotID: lotID})
}

func (s *Service) Classify(ctx context.Context, caller identity.Caller, tenderID, lotID, supplierID, status, justification string) error {
	return s.submit(ctx, protocol.OpClassify, tenderID, caller, protocol.ClassifyPayload{
		LotID:         lotID,
		SupplierID:    supplierID,
		Status:        status,
		Justification: justification,
	})
}

// StartInput opens the dispute of one lot. StageMinutes is the length of the
// second stage of a two-stage mode.
type StartInput struct {
	LotID            string
	Mode             string
	TimeLimitMinutes int
	StageMinutes     int
}

// StartDispute opens bidding. Random-end sessions get their end drawn here so
// every replica applies the same instant.
func (s *Service) StartDispute(ctx context.Context, caller identity.Caller, tenderID string, in StartInput) error {
	payload := protocol.DisputeStartPayload{
		LotID:            in.LotID,
		Mode:             in.Mode,
		TimeLimitMinutes: in.TimeLimitMinutes,
		StageMinutes:     in.StageMinutes,
	}
	if mode, err := dispute.ParseMode(in.Mode); err == nil && mode.RandomEnd() {
		endsAt := s.randomEnd()
		payload.EndsAt = &endsAt
		payload.TimeLimitMinutes = 0
	}
	return s.submit(ctx, protocol.OpDisputeStart, tenderID, caller, payload)
}

func (s *Service) randomEnd() time.Time {
	extra := time.Duration(0)
	if s.settings.RandomSpread > 0 {
		extra = time.Duration(s.spread(int64(s.settings.RandomSpread) + 1))
	}
	return s.now().UTC().Add(s.settings.RandomBase + extra)
}

func (s *Service) ChangeStatus(ctx context.Context, caller identity.Caller, tenderID, status, reason string) error {
	return s.submit(ctx, protocol.OpDisputeStatus, tenderID, caller, protocol.DisputeStatusPayload{Status: status, Reason: reason})
}

// SubmitBid places a bid. observedBestBidID is the best bid the client last saw.
func (s *Service) SubmitBid(ctx context.Context, caller identity.Caller, tenderID, lotID string, value bid.Money, observedBestBidID string) (bid.Bid, error) {
	bidID := uuid.NewString()
	err := s.submit(ctx, protocol.OpBidSubmit, tenderID, caller, protocol.BidSubmitPayload{
		BidID:             bidID,
		LotID:             lotID,
		Value:             int64(value),
		ObservedBestBidID: observedBestBidID,
	})
	if err != nil {
		return bid.Bid{}, err
	}
	return s.readBid(tenderID, bidID)
}

func (s *Service) CancelBid(ctx context.Context, caller identity.Caller, tenderID, bidID, reason string) (bid.Bid, error) {
	if err := s.submit(ctx, protocol.OpBidCancel, tenderID, caller, protocol.BidCancelPayload{BidID: bidID, Reason: reason}); err != nil {
		return bid.Bid{}, err
	}
	return s.readBid(tenderID, bidID)
}

func (s *Service) readBid(tenderID, bidID string) (bid.Bid, error) {
	b, ok := s.Machine().Bid(tenderID, bidID)
	if !ok {
		// Applied on the leader, not yet on this replica.
		return bid.Bid{ID: bidID, TenderID: tenderID}, nil
	}
	return b, nil
}

// MessageInput is a chat message.
type MessageInput struct {
	LotID       string
	Content     string
	Private     bool
	RecipientID string
}

func (s *Service) SendMessage(ctx context.Context, caller identity.Caller, tenderID string, in MessageInput) (message.Message, error) {
	id := uuid.NewString()
	err := s.submit(ctx, protocol.OpMessageSend, tenderID, caller, protocol.MessageSendPayload{
		MessageID:   id,
		LotID:       in.LotID,
		Content:     in.Content,
		Private:     in.Private,
		RecipientID: in.RecipientID,
	})
	if err != nil {
		return message.Message{}, err
	}
	msg, ok := s.Machine().Message(tenderID, id)
	if !ok {
		return message.Message{ID: id, TenderID: tenderID}, nil
	}
	return msg, nil
}

// ToggleChat flips the chat switch and returns the new value.
func (s *Service) ToggleChat(ctx context.Context, caller identity.Caller, tenderID, reason string) (bool, error) {
	if err := s.submit(ctx, protocol.OpChatToggle, tenderID, caller, protocol.ChatTogglePayload{Reason: reason}); err != nil {
		return false, err
	}
	sess, _ := s.Machine().GetSession(tenderID)
	return sess.ChatEnabled, nil
}

func (s *Service) DeclareWinner(ctx context.Context, caller identity.Caller, tenderID, lotID, supplierID string) error {
	return s.submit(ctx, protocol.OpWinnerDeclare, tenderID, caller, protocol.WinnerDeclarePayload{LotID: lotID, SupplierID: supplierID})
}

// FileResource records a supplier's intention to appeal and returns its id.
func (s *Service) FileResource(ctx context.Context, caller identity.Caller, tenderID, lotID, intent string) (string, error) {
	id := uuid.NewString()
	err := s.submit(ctx, protocol.OpResourceFile, tenderID, caller, protocol.ResourceFilePayload{ResourceID: id, LotID: lotID, Intent: intent})
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *Service) SubmitReasoning(ctx context.Context, caller identity.Caller, tenderID, resourceID, text string) error {
	return s.submit(ctx, protocol.OpResourceReason, tenderID, caller, protocol.ResourceReasonPayload{ResourceID: resourceID, Reasoning: text})
}

func (s *Service) CounterArgue(ctx context.Context, caller identity.Caller, tenderID, lotID, text string) (string, error) {
	id := uuid.NewString()
	err := s.submit(ctx, protocol.OpCounterArgument, tenderID, caller, protocol.CounterArgumentPayload{CounterID: id, LotID: lotID, Text: text})
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *Service) AdvanceResource(ctx context.Context, caller identity.Caller, tenderID, lotID string) error {
	return s.submit(ctx, protocol.OpResourceAdvance, tenderID, caller, protocol.ResourceAdvancePayload{LotID: lotID})
}

func (s *Service) Decide(ctx context.Context, caller identity.Caller, tenderID, resourceID, outcome, justification string) (string, error) {
	id := uuid.NewString()
	err := s.submit(ctx, protocol.OpAuthorityDecision, tenderID, caller, protocol.AuthorityDecisionPayload{
		DecisionID:    id,
		ResourceID:    resourceID,
		Outcome:       outcome,
		Justification: justification,
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// Tick applies every deadline reached by now. It is a no-op on replicas that
// are not the authoritative evaluator and when nothing is due.
func (s *Service) Tick(ctx context.Context) (bool, error) {
	if !s.replica.IsAuthority() {
		return false, nil
	}
	now := s.now()
	if !s.Machine().PendingWork(now) {
		return false, nil
	}
	err := s.apply(ctx, protocol.OpTick, "", identity.System(s.replica.ID()), protocol.TickPayload{Node: s.replica.ID()})
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) View(caller identity.Caller, tenderID string) (state.SessionView, error) {
	if !caller.Can(identity.ActionViewSession) {
		return state.SessionView{}, failure.Forbidden("ROLE_NOT_ALLOWED", "role %s cannot view sessions", caller.Role)
	}
	view, ok := s.Machine().View(tenderID, caller)
	if !ok {
		return state.SessionView{}, sessionNotFound(tenderID)
	}
	return view, nil
}

func (s *Service) Ranking(caller identity.Caller, tenderID, lotID string) ([]bid.Bid, error) {
	if !caller.Can(identity.ActionViewSession) {
		return nil, failure.Forbidden("ROLE_NOT_ALLOWED", "role %s cannot view sessions", caller.Role)
	}
	ranking, ok := s.Machine().Ranking(tenderID, lotID, caller)
	if !ok {
		if _, exists := s.Machine().GetSession(tenderID); !exists {
			return nil, sessionNotFound(tenderID)
		}
		return nil, failure.NotFound("LOT_NOT_FOUND", "lot %s not found", lotID)
	}
	return ranking, nil
}

// History is the complete ordered read used for the session minutes.
func (s *Service) History(caller identity.Caller, tenderID string) (state.History, error) {
	if _, err := s.readableSession(caller, tenderID, identity.ActionViewHistoryLive); err != nil {
		return state.History{}, err
	}
	h, ok := s.Machine().History(tenderID, caller)
	if !ok {
		return state.History{}, sessionNotFound(tenderID)
	}
	return h, nil
}

// Journal reads persisted events after afterSeq, filtered for caller.
func (s *Service) Journal(ctx context.Context, caller identity.Caller, tenderID string, afterSeq int64, limit int) ([]journal.Entry, error) {
	if s.journal == nil {
		return nil, failure.Transient("JOURNAL_UNAVAILABLE", "no journal repository configured")
	}
	sess, err := s.readableSession(caller, tenderID, identity.ActionReadJournal)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultJournalLimit
	}
	if limit > maxJournalLimit {
		limit = maxJournalLimit
	}
	entries, err := s.journal.ListByTender(ctx, strings.TrimSpace(tenderID), afterSeq, limit)
	if err != nil {
		return nil, failure.Transient("JOURNAL_UNAVAILABLE", "list journal: %v", err)
	}
	out := make([]journal.Entry, 0, len(entries))
	for _, e := range entries {
		if e.Private && !caller.PrivilegedFor(sess.AgencyID) && !caller.Matches(e.RecipientID) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// readableSession gates the history reads. Callers granted live read at any
// time, within their own agency when agency bound. Everyone else needs
// ActionViewHistory and a closed session.
func (s *Service) readableSession(caller identity.Caller, tenderID string, live identity.Action) (state.Session, error) {
	sess, ok := s.Machine().GetSession(tenderID)
	if !ok {
		return state.Session{}, sessionNotFound(tenderID)
	}
	switch {
	case caller.Can(live) && (!caller.AgencyBound() || caller.AgencyID == sess.AgencyID):
		return sess, nil
	case !caller.Can(identity.ActionViewHistory):
		return state.Session{}, failure.Forbidden("ROLE_NOT_ALLOWED", "role %s cannot read the session history", caller.Role)
	case sess.Status == dispute.StatusClosed:
		return sess, nil
	case caller.Can(live):
		return state.Session{}, failure.Forbidden("AGENCY_MISMATCH", "caller does not belong to the tender agency")
	default:
		return state.Session{}, failure.Forbidden("HISTORY_NOT_AVAILABLE", "history is available once the session is closed")
	}
}

func sessionNotFound(tenderID string) error {
	return failure.NotFound("SESSION_NOT_FOUND", "no session for tender %s", tenderID)
}

