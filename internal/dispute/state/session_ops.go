package state

import (
	"strings"
	"time"

	"github.com/canal-compras/disputa/internal/dispute/protocol"
	"github.com/canal-compras/disputa/internal/domain/bid"
	"github.com/canal-compras/disputa/internal/domain/dispute"
	"github.com/canal-compras/disputa/internal/domain/failure"
	"github.com/canal-compras/disputa/internal/domain/identity"
	"github.com/canal-compras/disputa/internal/domain/message"
)

const (
	defaultConfirmWindow       = 10 * time.Second
	defaultExtensionWindow     = 2 * time.Minute
	defaultManifestationWindow = 4 * time.Hour
	defaultBusinessDays        = 3
	defaultStageMinutes        = 5

	// Second stage admission: the best offer and those within finalistMargin
	// percent of it, topped up to minFinalists.
	finalistMargin = 10
	minFinalists   = 3
)

func normalizeSettings(s protocol.SessionSettings) protocol.SessionSettings {
	if s.ConfirmWindow <= 0 {
		s.ConfirmWindow = defaultConfirmWindow
	}
	if s.ExtensionWindow <= 0 {
		s.ExtensionWindow = defaultExtensionWindow
	}
	if s.ManifestationWindow <= 0 {
		s.ManifestationWindow = defaultManifestationWindow
	}
	if s.ReasoningBusinessDays <= 0 {
		s.ReasoningBusinessDays = defaultBusinessDays
	}
	if s.CounterBusinessDays <= 0 {
		s.CounterBusinessDays = defaultBusinessDays
	}
	return s
}

func decode[T any](c *applyCtx) (T, error) {
	p, err := protocol.DecodePayload[T](c.tx.Payload)
	if err != nil {
		return p, failure.Invalid("INVALID_PAYLOAD", "%s payload: %v", c.tx.Op, err)
	}
	return p, nil
}

func applySessionOpen(c *applyCtx) error {
	p, err := decode[protocol.SessionOpenPayload](c)
	if err != nil {
		return err
	}
	agency := strings.TrimSpace(p.AgencyID)
	if agency == "" {
		return failure.Invalid("AGENCY_REQUIRED", "agency_id is required")
	}
	if c.tx.Actor.AgencyID != agency {
		return failure.Forbidden("AGENCY_MISMATCH", "caller does not belong to the tender agency")
	}
	criterion := bid.Criterion(p.Criterion)
	if criterion == "" {
		criterion = bid.CriterionLowestPrice
	}
	if !criterion.Valid() {
		return failure.Invalid("INVALID_CRITERION", "unknown judgment criterion %q", p.Criterion)
	}
	if len(p.Lots) == 0 {
		return failure.Invalid("LOTS_REQUIRED", "a session needs at least one lot")
	}
	settings := normalizeSettings(p.Settings)
	cal, err := dispute.NewCalendar(settings.Holidays)
	if err != nil {
		return failure.Invalid("INVALID_HOLIDAYS", "%v", err)
	}
	c.cal = cal

	rec := c.rec
	rec.Session = Session{
		TenderID:    strings.TrimSpace(c.tx.TenderID),
		AgencyID:    agency,
		Number:      strings.TrimSpace(p.Number),
		Title:       strings.TrimSpace(p.Title),
		Criterion:   criterion,
		Status:      dispute.StatusWaiting,
		ChatEnabled: true,
		Settings:    settings,
		OpenedBy:    c.tx.Actor.UserID,
		CreatedAt:   c.at,
		UpdatedAt:   c.at,
	}
	for _, spec := range p.Lots {
		id := strings.TrimSpace(spec.LotID)
		if id == "" {
			return failure.Invalid("LOT_ID_REQUIRED", "lot_id is required")
		}
		if _, dup := rec.Lots[id]; dup {
			return failure.Invalid("DUPLICATE_LOT", "duplicate lot %s", id)
		}
		if spec.MinDecrement < 0 {
			return failure.Invalid("INVALID_DECREMENT", "lot %s minimum decrement is negative", id)
		}
		rec.Lots[id] = Lot{
			LotID:           id,
			Number:          spec.Number,
			Name:            strings.TrimSpace(spec.Name),
			Type:            spec.Type,
			BenefitType:     spec.BenefitType,
			EligibilityRule: spec.EligibilityRule,
			EstimatedValue:  bid.Money(spec.EstimatedValue),
			MinDecrement:    bid.Money(spec.MinDecrement),
		}
		rec.LotOrder = append(rec.LotOrder, id)
	}
	c.emit(EventSessionOpened, "", cloneSession(rec.Session))
	return c.announce("", "Sessão pública do processo %s aberta pelo pregoeiro", displayNumber(rec.Session))
}

func displayNumber(s Session) string {
	if s.Number != "" {
		return s.Number
	}
	return s.TenderID
}

func (r *record) lot(id string) (Lot, error) {
	lot, ok := r.Lots[strings.TrimSpace(id)]
	if !ok {
		return Lot{}, failure.NotFound("LOT_NOT_FOUND", "lot %s not found", id)
	}
	return lot, nil
}

func (r *record) openLot(id string) (Lot, error) {
	lot, err := r.lot(id)
	if err != nil {
		return Lot{}, err
	}
	if lot.Finalized {
		return Lot{}, failure.State("LOT_FINALIZED", "lot %d is finalized", lot.Number)
	}
	return lot, nil
}

func applyDisputeStart(c *applyCtx) error {
	p, err := decode[protocol.DisputeStartPayload](c)
	if err != nil {
		return err
	}
	s := &c.rec.Session
	if !s.Status.CanTransitionTo(dispute.StatusOpen) {
		return failure.State("INVALID_TRANSITION", "cannot open the dispute from %s", s.Status)
	}
	lot, err := c.rec.openLot(p.LotID)
	if err != nil {
		return err
	}
	mode, err := dispute.ParseMode(p.Mode)
	if err != nil {
		return failure.Invalid("INVALID_MODE", "%v", err)
	}

	var endsAt time.Time
	if mode.RandomEnd() {
		if p.EndsAt == nil || !p.EndsAt.After(c.at) {
			return failure.Invalid("ENDS_AT_REQUIRED", "random mode needs an end time after the start")
		}
		endsAt = p.EndsAt.UTC()
	} else {
		if p.TimeLimitMinutes <= 0 {
			return failure.Invalid("TIME_LIMIT_REQUIRED", "time_limit_minutes must be positive")
		}
		endsAt = c.at.Add(time.Duration(p.TimeLimitMinutes) * time.Minute)
	}

	stageMinutes := 0
	if mode.TwoStage() {
		stageMinutes = p.StageMinutes
		if stageMinutes == 0 {
			stageMinutes = defaultStageMinutes
		}
		if stageMinutes < 0 {
			return failure.Invalid("STAGE_LIMIT_INVALID", "stage_minutes must be positive")
		}
	}

	started := c.at
	s.Status = dispute.StatusOpen
	s.Mode = mode
	s.Stage = mode.FirstStage()
	s.ActiveLotID = lot.LotID
	s.TimeLimitMinutes = p.TimeLimitMinutes
	s.StageMinutes = stageMinutes
	s.Finalists = nil
	s.SealedAfter = len(c.rec.Bids[lot.LotID])
	s.StartedAt = &started
	s.EndsAt = &endsAt
	s.CountdownEndsAt = nil
	s.BiddingElapsed = false

	c.emit(EventDisputeStarted, lot.LotID, cloneSession(*s))
	if mode.RandomEnd() {
		return c.announce(lot.LotID, "Disputa do lote %d iniciada no modo aleatório", lot.Number)
	}
	if mode.TwoStage() {
		return c.announce(lot.LotID, "Disputa do lote %d iniciada no modo %s: %s por %d minutos, depois %s por %d minutos",
			lot.Number, modeLabel(mode), stageLabel(mode.Stages()[0]), p.TimeLimitMinutes, stageLabel(mode.Stages()[1]), stageMinutes)
	}
	return c.announce(lot.LotID, "Disputa do lote %d iniciada no modo %s com duração de %d minutos",
		lot.Number, modeLabel(mode), p.TimeLimitMinutes)
}

func stageLabel(st dispute.Stage) string {
	if st.Sealed() {
		return "etapa fechada"
	}
	return "etapa aberta"
}

func modeLabel(m dispute.Mode) string {
	switch m {
	case dispute.ModeOpen:
		return "aberto"
	case dispute.ModeClosed:
		return "fechado"
	case dispute.ModeOpenClosed:
		return "aberto-fechado"
	case dispute.ModeClosedOpen:
		return "fechado-aberto"
	default:
		return "aleatório"
	}
}

func applyDisputeStatus(c *applyCtx) error {
	p, err := decode[protocol.DisputeStatusPayload](c)
	if err != nil {
		return err
	}
	target, err := dispute.ParseStatus(p.Status)
	if err != nil {
		return failure.Invalid("INVALID_STATUS", "unknown dispute status %q", p.Status)
	}
	s := &c.rec.Session
	from := s.Status
	if target == dispute.StatusOpen {
		return failure.State("START_REQUIRED", "opening the dispute requires a lot and a mode")
	}
	if !from.CanTransitionTo(target) {
		return failure.State("INVALID_TRANSITION", "cannot move the dispute from %s to %s", from, target)
	}

	lotID := s.ActiveLotID
	switch {
	case from == dispute.StatusOpen && target == dispute.StatusNegotiation:
		if err := effectuateAll(c, lotID); err != nil {
			return err
		}
		s.BiddingElapsed = true
		s.CountdownEndsAt = nil
	case from == dispute.StatusOpen && target == dispute.StatusWaiting:
		s.EndsAt = nil
		s.CountdownEndsAt = nil
	case target == dispute.StatusClosed:
		if err := effectuateAll(c, lotID); err != nil {
			return err
		}
		if lot, ok := c.rec.Lots[lotID]; ok {
			at := c.at
			lot.Finalized = true
			lot.FinalizedAt = &at
			c.rec.Lots[lotID] = lot
		}
	case from == dispute.StatusClosed && target == dispute.StatusWaiting:
		s.ActiveLotID = ""
		s.Mode = ""
		s.Stage = ""
		s.TimeLimitMinutes = 0
		s.StageMinutes = 0
		s.Finalists = nil
		s.SealedAfter = 0
		s.StartedAt = nil
		s.EndsAt = nil
		s.CountdownEndsAt = nil
		s.BiddingElapsed = false
	}
	s.Status = target

	c.emit(EventStatusChanged, lotID, StatusChange{From: from, To: target, Session: cloneSession(*s)})
	text := "Status da disputa alterado de " + from.Label() + " para " + target.Label()
	if reason := strings.TrimSpace(p.Reason); reason != "" {
		text += ": " + reason
	}
	return c.announce(lotID, "%s", text)
}

func applyChatToggle(c *applyCtx) error {
	if _, err := decode[protocol.ChatTogglePayload](c); err != nil {
		return err
	}
	s := &c.rec.Session
	s.ChatEnabled = !s.ChatEnabled
	c.emit(EventChatToggled, "", map[string]bool{"chatEnabled": s.ChatEnabled})
	if s.ChatEnabled {
		return c.announce("", "Chat habilitado pelo pregoeiro")
	}
	return c.announce("", "Chat desabilitado pelo pregoeiro")
}

func applyMessageSend(c *applyCtx) error {
	p, err := decode[protocol.MessageSendPayload](c)
	if err != nil {
		return err
	}
	author := c.tx.Actor
	content, err := message.NormalizeContent(p.Content)
	if err != nil {
		return failure.Invalid("INVALID_CONTENT", "%v", err)
	}
	if strings.TrimSpace(p.MessageID) == "" {
		return failure.Invalid("MESSAGE_ID_REQUIRED", "message_id is required")
	}
	if !c.rec.Session.ChatEnabled && author.Role != identity.RoleAuctioneer {
		return failure.State("CHAT_DISABLED", "chat is disabled by the auctioneer")
	}
	if p.LotID != "" {
		if _, err := c.rec.lot(p.LotID); err != nil {
			return err
		}
	}
	msg := message.Message{
		ID:         p.MessageID,
		LotID:      p.LotID,
		Kind:       message.KindChat,
		AuthorID:   author.UserID,
		AuthorName: author.DisplayName(),
		AuthorRole: author.Role,
		Content:    content,
		Visibility: message.VisibilityPublic,
	}
	if p.Private {
		if !author.Can(identity.ActionSendPrivate) {
			return failure.Forbidden("PRIVATE_NOT_ALLOWED", "only the auctioneer sends private messages")
		}
		recipient := strings.TrimSpace(p.RecipientID)
		if recipient == "" {
			return failure.Invalid("RECIPIENT_REQUIRED", "private messages need a recipient")
		}
		msg.Visibility = message.VisibilityPrivate
		msg.RecipientID = recipient
	}
	_, err = c.appendMessage(msg)
	return err
}
