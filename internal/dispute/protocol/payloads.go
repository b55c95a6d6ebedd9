package protocol

import "time"

// SessionSettings are the timing rules fixed when the session opens.
type SessionSettings struct {
	ConfirmWindow         time.Duration `json:"confirm_window"`
	ExtensionWindow       time.Duration `json:"extension_window"`
	ManifestationWindow   time.Duration `json:"manifestation_window"`
	ReasoningBusinessDays int           `json:"reasoning_business_days"`
	CounterBusinessDays   int           `json:"counter_business_days"`
	Holidays              []string      `json:"holidays,omitempty"`
}

type LotSpec struct {
	LotID           string `json:"lot_id"`
	Number          int    `json:"number"`
	Name            string `json:"name"`
	Type            string `json:"type"`
	BenefitType     string `json:"benefit_type"`
	EligibilityRule string `json:"eligibility_rule,omitempty"`
	EstimatedValue  int64  `json:"estimated_value"`
	MinDecrement    int64  `json:"min_decrement"`
}

type SessionOpenPayload struct {
	AgencyID  string          `json:"agency_id"`
	Number    string          `json:"number"`
	Title     string          `json:"title"`
	Criterion string          `json:"criterion"`
	Settings  SessionSettings `json:"settings"`
	Lots      []LotSpec       `json:"lots"`
}

type LotJoinPayload struct {
	LotID string `json:"lot_id"`
}

type ClassifyPayload struct {
	LotID         string `json:"lot_id"`
	SupplierID    string `json:"supplier_id"`
	Status        string `json:"status"`
	Justification string `json:"justification"`
}

type DisputeStartPayload struct {
	LotID            string     `json:"lot_id"`
	Mode             string     `json:"mode"`
	TimeLimitMinutes int        `json:"time_limit_minutes,omitempty"`
	StageMinutes     int        `json:"stage_minutes,omitempty"`
	EndsAt           *time.Time `json:"ends_at,omitempty"`
}

type DisputeStatusPayload struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

type BidSubmitPayload struct {
	BidID             string `json:"bid_id"`
	LotID             string `json:"lot_id"`
	Value             int64  `json:"value"`
	ObservedBestBidID string `json:"observed_best_bid_id,omitempty"`
}

type BidCancelPayload struct {
	BidID  string `json:"bid_id"`
	Reason string `json:"reason,omitempty"`
}

type MessageSendPayload struct {
	MessageID   string `json:"message_id"`
	LotID       string `json:"lot_id,omitempty"`
	Content     string `json:"content"`
	Private     bool   `json:"private,omitempty"`
	RecipientID string `json:"recipient_id,omitempty"`
}

type ChatTogglePayload struct {
	Reason string `json:"reason,omitempty"`
}

type WinnerDeclarePayload struct {
	LotID      string `json:"lot_id"`
	SupplierID string `json:"supplier_id"`
}

type ResourceFilePayload struct {
	ResourceID string `json:"resource_id"`
	LotID      string `json:"lot_id"`
	Intent     string `json:"intent"`
}

type ResourceReasonPayload struct {
	ResourceID string `json:"resource_id"`
	Reasoning  string `json:"reasoning"`
}

type CounterArgumentPayload struct {
	CounterID string `json:"counter_id"`
	LotID     string `json:"lot_id"`
	Text      string `json:"text"`
}

type ResourceAdvancePayload struct {
	LotID string `json:"lot_id"`
}

type AuthorityDecisionPayload struct {
	DecisionID    string `json:"decision_id"`
	ResourceID    string `json:"resource_id"`
	Outcome       string `json:"outcome"`
	Justification string `json:"justification"`
}

// TickPayload asks the store to evaluate every deadline reached by the tx timestamp.
type TickPayload struct {
	Node string `json:"node,omitempty"`
}
