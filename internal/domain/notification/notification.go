package notification

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/canal-compras/disputa/internal/domain/identity"
)

// Kind names the business event a notification reports.
type Kind string

const (
	KindStatusChanged  Kind = "DISPUTE_STATUS_CHANGED"
	KindClassified     Kind = "PARTICIPANT_CLASSIFIED"
	KindWinnerDeclared Kind = "WINNER_DECLARED"
	KindResourceFiled  Kind = "RESOURCE_FILED"
	KindDecision       Kind = "AUTHORITY_DECISION"
)

// Priority represents the notification priority
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
)

var (
	ErrClientNotFound = errors.New("SSE client not found")
	ErrChannelFull    = errors.New("SSE message channel full")
	ErrQueueFull      = errors.New("notification queue full")
)

// Notification is handed to the notification collaborator. Delivery is best effort.
type Notification struct {
	NotificationID uuid.UUID       `json:"notificationId"`
	DedupeKey      string          `json:"dedupeKey"`
	Kind           Kind            `json:"kind"`
	Priority       Priority        `json:"priority"`
	TenderID       string          `json:"tenderId"`
	LotID          string          `json:"lotId,omitempty"`
	Title          string          `json:"title"`
	Body           string          `json:"body"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	TargetUserID   *string         `json:"targetUserId,omitempty"`
	TargetGroup    *string         `json:"targetGroup,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// NewNotification creates a notification whose id is stable for the same dedupe key,
// so a collaborator can drop repeats.
func NewNotification(kind Kind, priority Priority, tenderID, dedupeKey, title, body string, at time.Time) *Notification {
	return &Notification{
		NotificationID: uuid.NewSHA1(uuid.NameSpaceURL, []byte("notification:"+tenderID+":"+dedupeKey)),
		DedupeKey:      dedupeKey,
		Kind:           kind,
		Priority:       priority,
		TenderID:       tenderID,
		Title:          title,
		Body:           body,
		CreatedAt:      at.UTC(),
	}
}

// SetTarget sets the notification target (user or group)
func (n *Notification) SetTarget(userID *string, group *string) {
	n.TargetUserID = userID
	n.TargetGroup = group
}

// SSEClient is one open change feed of a tender, bound to the viewer that opened it.
type SSEClient struct {
	ClientID    string
	TenderID    string
	Viewer      identity.Caller
	ConnectedAt time.Time
	MessageChan chan *SSEMessage
}

// NewSSEClient creates a new SSE client
func NewSSEClient(clientID, tenderID string, viewer identity.Caller) *SSEClient {
	return &SSEClient{
		ClientID:    clientID,
		TenderID:    tenderID,
		Viewer:      viewer,
		ConnectedAt: time.Now().UTC(),
		MessageChan: make(chan *SSEMessage, 100),
	}
}

// Close closes the client's message channel
func (c *SSEClient) Close() {
	close(c.MessageChan)
}

// SSEMessage represents a message to be sent via SSE
type SSEMessage struct {
	ID        string          `json:"id"`
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data"`
	Retry     *int            `json:"retry,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewSSEMessage creates a message; id is the SSE event id used for Last-Event-ID.
func NewSSEMessage(id, event string, data json.RawMessage, at time.Time) *SSEMessage {
	return &SSEMessage{
		ID:        id,
		Event:     event,
		Data:      data,
		Timestamp: at.UTC(),
	}
}
