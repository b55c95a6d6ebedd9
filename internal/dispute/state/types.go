package state

import (
	"time"

	"github.com/canal-compras/disputa/internal/dispute/protocol"
	"github.com/canal-compras/disputa/internal/domain/bid"
	"github.com/canal-compras/disputa/internal/domain/dispute"
	"github.com/canal-compras/disputa/internal/domain/identity"
	"github.com/canal-compras/disputa/internal/domain/message"
)

// Session is the live dispute state of one tender. Finalists may bid in the
// second stage of a two-stage mode; SealedAfter counts the lot bids placed
// before the current sealed stage, which stay public while it runs.
type Session struct {
	TenderID         string                   `json:"tenderId"`
	AgencyID         string                   `json:"agencyId"`
	Number           string                   `json:"number"`
	Title            string                   `json:"title"`
	Criterion        bid.Criterion            `json:"criterion"`
	Status           dispute.Status           `json:"status"`
	Mode             dispute.Mode             `json:"mode,omitempty"`
	Stage            dispute.Stage            `json:"stage,omitempty"`
	ActiveLotID      string                   `json:"activeLotId,omitempty"`
	TimeLimitMinutes int                      `json:"timeLimitMinutes,omitempty"`
	StageMinutes     int                      `json:"stageMinutes,omitempty"`
	Finalists        []string                 `json:"finalists,omitempty"`
	SealedAfter      int                      `json:"sealedAfter,omitempty"`
	StartedAt        *time.Time               `json:"startedAt,omitempty"`
	EndsAt           *time.Time               `json:"endsAt,omitempty"`
	CountdownEndsAt  *time.Time               `json:"countdownEndsAt,omitempty"`
	BiddingElapsed   bool                     `json:"biddingElapsed"`
	ChatEnabled      bool                     `json:"chatEnabled"`
	Settings         protocol.SessionSettings `json:"settings"`
	OpenedBy         string                   `json:"openedBy"`
	CreatedAt        time.Time                `json:"createdAt"`
	UpdatedAt        time.Time                `json:"updatedAt"`
}

// sealed reports whether the current stage hides competitors' bids.
func (s *Session) sealed() bool {
	return s.Stage.Sealed() && !s.BiddingElapsed
}

func (s *Session) finalist(supplierID string) bool {
	if !s.Mode.TwoStage() || s.Stage == s.Mode.FirstStage() {
		return true
	}
	for _, id := range s.Finalists {
		if id == supplierID {
			return true
		}
	}
	return false
}

// biddingClosed reports whether bids are no longer accepted at t.
func (s *Session) biddingClosed(t time.Time) bool {
	return s.BiddingElapsed || (s.EndsAt != nil && !t.Before(*s.EndsAt))
}

type Lot struct {
	LotID           string     `json:"lotId"`
	Number          int        `json:"number"`
	Name            string     `json:"name"`
	Type            string     `json:"type"`
	BenefitType     string     `json:"benefitType"`
	EligibilityRule string     `json:"eligibilityRule,omitempty"`
	EstimatedValue  bid.Money  `json:"estimatedValue"`
	MinDecrement    bid.Money  `json:"minDecrement"`
	Finalized       bool       `json:"finalized"`
	FinalizedAt     *time.Time `json:"finalizedAt,omitempty"`
	WinnerID        string     `json:"winnerId,omitempty"`
}

// record is everything the store keeps for one tender.
type record struct {
	Session      Session                                   `json:"session"`
	Lots         map[string]Lot                            `json:"lots"`
	LotOrder     []string                                  `json:"lotOrder"`
	Bids         map[string][]bid.Bid                      `json:"bids"`
	Participants map[string]map[string]dispute.Participant `json:"participants"`
	Resources    map[string]dispute.ResourceState          `json:"resources"`
	Messages     []message.Message                         `json:"messages"`
	Seq          int64                                     `json:"seq"`
	LastAt       time.Time                                 `json:"lastAt"`
}

type snapshot struct {
	Tenders   map[string]*record `json:"tenders"`
	AppliedTx map[string]bool    `json:"appliedTx"`
}

type EventType string

const (
	EventSessionOpened         EventType = "SESSION_OPENED"
	EventParticipantJoined     EventType = "PARTICIPANT_JOINED"
	EventParticipantClassified EventType = "PARTICIPANT_CLASSIFIED"
	EventDisputeStarted        EventType = "DISPUTE_STARTED"
	EventStatusChanged         EventType = "DISPUTE_STATUS_CHANGED"
	EventEndExtended           EventType = "DISPUTE_END_EXTENDED"
	EventBiddingElapsed        EventType = "BIDDING_TIME_ELAPSED"
	EventStageChanged          EventType = "DISPUTE_STAGE_CHANGED"
	EventChatToggled           EventType = "CHAT_TOGGLED"
	EventMessagePosted         EventType = "MESSAGE_POSTED"
	EventBidAccepted           EventType = "BID_ACCEPTED"
	EventBidEffective          EventType = "BID_EFFECTIVE"
	EventBidCancelled          EventType = "BID_CANCELLED"
	EventWinnerDeclared        EventType = "WINNER_DECLARED"
	EventResourcePhaseChanged  EventType = "RESOURCE_PHASE_CHANGED"
	EventResourceFiled         EventType = "RESOURCE_FILED"
	EventResourceReasoned      EventType = "RESOURCE_REASONED"
	EventCounterArgumentFiled  EventType = "COUNTER_ARGUMENT_FILED"
	EventAuthorityDecision     EventType = "AUTHORITY_DECISION"
)

// Event is one change produced by an applied tx. Data holds a copy of the changed entity.
type Event struct {
	TenderID    string    `json:"tenderId"`
	AgencyID    string    `json:"agencyId,omitempty"`
	Seq         int64     `json:"seq"`
	Type        EventType `json:"type"`
	LotID       string    `json:"lotId,omitempty"`
	Actor       string    `json:"actor"`
	TxID        string    `json:"txId"`
	At          time.Time `json:"at"`
	Private     bool      `json:"private,omitempty"`
	RecipientID string    `json:"recipientId,omitempty"`
	SealedFor   string    `json:"-"`
	Data        any       `json:"data"`
}

// VisibleTo applies the same audience rules as the session view.
func (e *Event) VisibleTo(viewer identity.Caller) bool {
	if e.PrivilegedFor(viewer) {
		return true
	}
	if e.Private {
		return viewer.Matches(e.RecipientID)
	}
	if e.SealedFor != "" {
		return viewer.SupplierKey() == e.SealedFor
	}
	return true
}

// PrivilegedFor reports whether viewer sees this event unredacted.
func (e *Event) PrivilegedFor(viewer identity.Caller) bool {
	return viewer.PrivilegedFor(e.AgencyID)
}

// StatusChange is the data of a DISPUTE_STATUS_CHANGED event.
type StatusChange struct {
	From    dispute.Status `json:"from"`
	To      dispute.Status `json:"to"`
	Session Session        `json:"session"`
}

// PhaseChange is the data of a RESOURCE_PHASE_CHANGED event.
type PhaseChange struct {
	From  dispute.ResourcePhase `json:"from,omitempty"`
	To    dispute.ResourcePhase `json:"to"`
	State dispute.ResourceState `json:"state"`
}
