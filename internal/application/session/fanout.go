package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/canal-compras/disputa/internal/dispute/state"
	"github.com/canal-compras/disputa/internal/domain/dispute"
	"github.com/canal-compras/disputa/internal/domain/identity"
	"github.com/canal-compras/disputa/internal/domain/notification"
)

// Fanout delivers applied events. Every replica streams to its own SSE
// clients; the journal and notifications are produced by the authority only.
type Fanout struct {
	hub       notification.SSEHub
	notifier  notification.Notifier
	journal   *JournalWriter
	authority func() bool
	logger    zerolog.Logger
}

// NewFanout creates the observer. notifier and journal may be nil.
func NewFanout(hub notification.SSEHub, notifier notification.Notifier, journal *JournalWriter, authority func() bool, logger zerolog.Logger) *Fanout {
	return &Fanout{
		hub:       hub,
		notifier:  notifier,
		journal:   journal,
		authority: authority,
		logger:    logger.With().Str("component", "fanout").Logger(),
	}
}

// Attach registers the fanout on m and returns the cancel func.
func (f *Fanout) Attach(m *state.Machine) func() {
	return m.Observe(f.Observe)
}

func (f *Fanout) Observe(events []state.Event) {
	if f.hub != nil {
		for i := range events {
			f.stream(&events[i])
		}
	}
	if f.authority == nil || !f.authority() {
		return
	}
	if f.journal != nil {
		f.journal.Add(events)
	}
	if f.notifier == nil {
		return
	}
	for i := range events {
		if n := notificationFor(&events[i]); n != nil {
			f.notifier.Notify(context.Background(), n)
		}
	}
}

func (f *Fanout) stream(ev *state.Event) {
	hidden := redacted(ev)
	if hidden == nil {
		f.broadcast(ev, ev.VisibleTo)
		return
	}
	f.broadcast(ev, func(v identity.Caller) bool { return ev.PrivilegedFor(v) })
	f.broadcast(hidden, func(v identity.Caller) bool { return !ev.PrivilegedFor(v) && ev.VisibleTo(v) })
}

func (f *Fanout) broadcast(ev *state.Event, visible func(identity.Caller) bool) {
	data, err := json.Marshal(ev)
	if err != nil {
		f.logger.Error().Err(err).Str("type", string(ev.Type)).Msg("encode event")
		return
	}
	msg := notification.NewSSEMessage(strconv.FormatInt(ev.Seq, 10), string(ev.Type), data, ev.At)
	f.hub.BroadcastToTender(ev.TenderID, msg, visible)
}

// redacted returns a copy of ev without a random end time that is still
// secret, or nil when ev reveals nothing.
func redacted(ev *state.Event) *state.Event {
	hide := func(s state.Session) (state.Session, bool) {
		if !s.Mode.RandomEnd() || s.BiddingElapsed || s.EndsAt == nil {
			return s, false
		}
		s.EndsAt = nil
		return s, true
	}
	cp := *ev
	switch data := ev.Data.(type) {
	case state.Session:
		s, ok := hide(data)
		if !ok {
			return nil
		}
		cp.Data = s
	case state.StatusChange:
		s, ok := hide(data.Session)
		if !ok {
			return nil
		}
		data.Session = s
		cp.Data = data
	default:
		return nil
	}
	return &cp
}

func participantsGroup(tenderID string) *string {
	g := "tender:" + tenderID + ":participants"
	return &g
}

func agencyGroup(tenderID string) *string {
	g := "tender:" + tenderID + ":agency"
	return &g
}

// notificationFor maps the events the notification collaborator cares about.
func notificationFor(ev *state.Event) *notification.Notification {
	dedupe := fmt.Sprintf("%s:%d", ev.Type, ev.Seq)
	var n *notification.Notification
	switch data := ev.Data.(type) {
	case state.StatusChange:
		if ev.Type != state.EventStatusChanged {
			return nil
		}
		priority := notification.PriorityMedium
		if data.To == dispute.StatusClosed {
			priority = notification.PriorityHigh
		}
		n = notification.NewNotification(notification.KindStatusChanged, priority, ev.TenderID, dedupe,
			"Status da disputa alterado",
			fmt.Sprintf("A disputa passou de %s para %s", data.From.Label(), data.To.Label()), ev.At)
		n.SetTarget(nil, participantsGroup(ev.TenderID))
	case state.Session:
		if ev.Type != state.EventDisputeStarted {
			return nil
		}
		n = notification.NewNotification(notification.KindStatusChanged, notification.PriorityMedium, ev.TenderID, dedupe,
			"Disputa iniciada",
			fmt.Sprintf("A disputa passou de %s para %s", dispute.StatusWaiting.Label(), data.Status.Label()), ev.At)
		n.SetTarget(nil, participantsGroup(ev.TenderID))
	case dispute.Participant:
		switch ev.Type {
		case state.EventParticipantClassified:
			n = notification.NewNotification(notification.KindClassified, notification.PriorityMedium, ev.TenderID, dedupe,
				"Classificação atualizada",
				fmt.Sprintf("%s classificado como %s", data.Name, data.Status), ev.At)
			user := data.UserID
			n.SetTarget(&user, nil)
		case state.EventWinnerDeclared:
			n = notification.NewNotification(notification.KindWinnerDeclared, notification.PriorityHigh, ev.TenderID, dedupe,
				"Vencedor declarado",
				fmt.Sprintf("Fornecedor %s declarado vencedor", data.Name), ev.At)
			n.SetTarget(nil, participantsGroup(ev.TenderID))
		default:
			return nil
		}
	case dispute.Resource:
		if ev.Type != state.EventResourceFiled {
			return nil
		}
		n = notification.NewNotification(notification.KindResourceFiled, notification.PriorityHigh, ev.TenderID, dedupe,
			"Intenção de recurso registrada",
			fmt.Sprintf("Fornecedor %s manifestou intenção de recurso", data.SupplierID), ev.At)
		n.SetTarget(nil, agencyGroup(ev.TenderID))
	case dispute.AuthorityDecision:
		n = notification.NewNotification(notification.KindDecision, notification.PriorityHigh, ev.TenderID, dedupe,
			"Recurso julgado",
			fmt.Sprintf("Recurso %s julgado: %s", data.ResourceID, data.Outcome), ev.At)
		n.SetTarget(nil, participantsGroup(ev.TenderID))
	default:
		return nil
	}
	n.LotID = ev.LotID
	data := ev.Data
	if hidden := redacted(ev); hidden != nil {
		data = hidden.Data
	}
	if payload, err := json.Marshal(data); err == nil {
		n.Payload = payload
	}
	return n
}
