package state

import (
	"strconv"
	"strings"

	"github.com/canal-compras/disputa/internal/dispute/protocol"
	"github.com/canal-compras/disputa/internal/domain/dispute"
	"github.com/canal-compras/disputa/internal/domain/failure"
	"github.com/canal-compras/disputa/internal/domain/message"
)

const deadlineLayout = "02/01/2006 15:04"

func applyWinnerDeclare(c *applyCtx) error {
	p, err := decode[protocol.WinnerDeclarePayload](c)
	if err != nil {
		return err
	}
	s := &c.rec.Session
	if s.Status != dispute.StatusNegotiation {
		return failure.State("NOT_IN_NEGOTIATION", "the winner is declared during negotiation")
	}
	lot, err := c.rec.openLot(p.LotID)
	if err != nil {
		return err
	}
	if lot.LotID != s.ActiveLotID {
		return failure.State("LOT_NOT_ACTIVE", "lot %d is not under dispute", lot.Number)
	}
	if lot.WinnerID != "" {
		return failure.State("WINNER_ALREADY_DECLARED", "lot %d already has a winner", lot.Number)
	}
	participant, ok := c.rec.Participants[lot.LotID][strings.TrimSpace(p.SupplierID)]
	if !ok {
		return failure.NotFound("PARTICIPANT_NOT_FOUND", "supplier %s did not join lot %d", p.SupplierID, lot.Number)
	}
	if participant.Status != dispute.ParticipantQualified {
		return failure.State("NOT_QUALIFIED", "only a qualified supplier can win lot %d", lot.Number)
	}

	participant.Status = dispute.ParticipantWinner
	c.rec.Participants[lot.LotID][participant.SupplierID] = participant
	lot.WinnerID = participant.SupplierID
	c.rec.Lots[lot.LotID] = lot

	rs := dispute.ResourceState{
		LotID:                 lot.LotID,
		Phase:                 dispute.PhaseManifestation,
		EnteredAt:             c.at,
		ManifestationDeadline: c.at.Add(s.Settings.ManifestationWindow),
	}
	c.rec.Resources[lot.LotID] = rs
	c.emit(EventWinnerDeclared, lot.LotID, participant)
	c.emit(EventResourcePhaseChanged, lot.LotID, PhaseChange{To: rs.Phase, State: cloneResourceState(rs)})
	return c.announce(lot.LotID, "Fornecedor %s declarado vencedor do lote %d. Intenção de recurso até %s",
		participant.Name, lot.Number, rs.ManifestationDeadline.Format(deadlineLayout))
}

func (r *record) resourceState(lotID string) (dispute.ResourceState, Lot, error) {
	lot, err := r.lot(lotID)
	if err != nil {
		return dispute.ResourceState{}, Lot{}, err
	}
	rs, ok := r.Resources[lot.LotID]
	if !ok {
		return dispute.ResourceState{}, Lot{}, failure.State("RESOURCE_PHASE_NOT_OPEN", "lot %d has no resource phase", lot.Number)
	}
	return rs, lot, nil
}

func (r *record) findResource(id string) (string, int, bool) {
	id = strings.TrimSpace(id)
	for _, lotID := range r.LotOrder {
		rs, ok := r.Resources[lotID]
		if !ok {
			continue
		}
		if idx, found := rs.FindResource(id); found {
			return lotID, idx, true
		}
	}
	return "", -1, false
}

func normalizeText(raw, field string) (string, error) {
	text, err := message.NormalizeContent(raw)
	if err != nil {
		return "", failure.Invalid("INVALID_TEXT", "%s: %v", field, err)
	}
	return text, nil
}

func applyResourceFile(c *applyCtx) error {
	p, err := decode[protocol.ResourceFilePayload](c)
	if err != nil {
		return err
	}
	rs, lot, err := c.rec.resourceState(p.LotID)
	if err != nil {
		return err
	}
	if rs.Phase != dispute.PhaseManifestation && rs.Phase != dispute.PhaseReasoning {
		return failure.State("MANIFESTATION_CLOSED", "the manifestation window of lot %d is closed", lot.Number)
	}
	if !c.at.Before(rs.ManifestationDeadline) {
		return failure.State("MANIFESTATION_CLOSED", "the manifestation window of lot %d is closed", lot.Number)
	}
	key := c.tx.Actor.SupplierKey()
	participant, ok := c.rec.Participants[lot.LotID][key]
	if !ok {
		return failure.Forbidden("NOT_A_PARTICIPANT", "only participants of lot %d may appeal", lot.Number)
	}
	if participant.Status == dispute.ParticipantWinner {
		return failure.Forbidden("WINNER_CANNOT_APPEAL", "the winner does not appeal its own lot")
	}
	if rs.FiledBy(key) {
		return failure.State("ALREADY_FILED", "supplier already filed a resource for lot %d", lot.Number)
	}
	if strings.TrimSpace(p.ResourceID) == "" {
		return failure.Invalid("RESOURCE_ID_REQUIRED", "resource_id is required")
	}
	intent, err := normalizeText(p.Intent, "intent")
	if err != nil {
		return err
	}

	resource := dispute.Resource{
		ID:         p.ResourceID,
		LotID:      lot.LotID,
		SupplierID: key,
		FiledBy:    c.tx.Actor.UserID,
		Intent:     intent,
		Status:     dispute.ResourceFiled,
		FiledAt:    c.at,
	}
	rs.Resources = append(rs.Resources, resource)
	c.rec.Resources[lot.LotID] = rs
	c.emit(EventResourceFiled, lot.LotID, resource)
	if err := c.announce(lot.LotID, "Intenção de recurso registrada por %s no lote %d", participant.Name, lot.Number); err != nil {
		return err
	}
	if rs.Phase == dispute.PhaseManifestation {
		deadline := c.cal.AddBusinessDays(c.at, c.rec.Session.Settings.ReasoningBusinessDays)
		rs.ReasoningDeadline = &deadline
		return c.moveResourcePhase(lot, rs, dispute.PhaseReasoning)
	}
	return nil
}

// moveResourcePhase stores rs in phase next and announces the change.
func (c *applyCtx) moveResourcePhase(lot Lot, rs dispute.ResourceState, next dispute.ResourcePhase) error {
	from := rs.Phase
	if !from.CanAdvanceTo(next) {
		return failure.State("INVALID_PHASE", "resource phase cannot move from %s to %s", from, next)
	}
	rs.Phase = next
	rs.EnteredAt = c.at
	if next == dispute.PhaseDecided {
		at := c.at
		rs.DecidedAt = &at
	}
	c.rec.Resources[lot.LotID] = rs
	c.emit(EventResourcePhaseChanged, lot.LotID, PhaseChange{From: from, To: next, State: cloneResourceState(rs)})

	text := "Lote " + strconv.Itoa(lot.Number) + ": fase de " + next.Label()
	if d, ok := rs.Deadline(); ok {
		text += " até " + d.Format(deadlineLayout)
	}
	return c.announce(lot.LotID, "%s", text)
}

func applyResourceReason(c *applyCtx) error {
	p, err := decode[protocol.ResourceReasonPayload](c)
	if err != nil {
		return err
	}
	lotID, idx, ok := c.rec.findResource(p.ResourceID)
	if !ok {
		return failure.NotFound("RESOURCE_NOT_FOUND", "resource %s not found", p.ResourceID)
	}
	rs := c.rec.Resources[lotID]
	res := rs.Resources[idx]
	if res.SupplierID != c.tx.Actor.SupplierKey() {
		return failure.Forbidden("NOT_RESOURCE_OWNER", "only the filer submits the reasoning")
	}
	if rs.Phase != dispute.PhaseReasoning || rs.ReasoningDeadline == nil || !c.at.Before(*rs.ReasoningDeadline) {
		return failure.State("REASONING_CLOSED", "the reasoning window is closed")
	}
	text, err := normalizeText(p.Reasoning, "reasoning")
	if err != nil {
		return err
	}
	at := c.at
	res.Reasoning = text
	res.ReasonedAt = &at
	res.Status = dispute.ResourceReasoned
	rs.Resources[idx] = res
	c.rec.Resources[lotID] = rs
	c.emit(EventResourceReasoned, lotID, res)
	return nil
}

func applyCounterArgument(c *applyCtx) error {
	p, err := decode[protocol.CounterArgumentPayload](c)
	if err != nil {
		return err
	}
	rs, lot, err := c.rec.resourceState(p.LotID)
	if err != nil {
		return err
	}
	if rs.Phase != dispute.PhaseCounterArgument || rs.CounterDeadline == nil || !c.at.Before(*rs.CounterDeadline) {
		return failure.State("COUNTER_ARGUMENT_CLOSED", "the counter-argument window of lot %d is closed", lot.Number)
	}
	key := c.tx.Actor.SupplierKey()
	if _, ok := c.rec.Participants[lot.LotID][key]; !ok {
		return failure.Forbidden("NOT_A_PARTICIPANT", "only participants of lot %d may counter-argue", lot.Number)
	}
	if strings.TrimSpace(p.CounterID) == "" {
		return failure.Invalid("COUNTER_ID_REQUIRED", "counter_id is required")
	}
	text, err := normalizeText(p.Text, "text")
	if err != nil {
		return err
	}
	ca := dispute.CounterArgument{
		ID:         p.CounterID,
		LotID:      lot.LotID,
		SupplierID: key,
		Text:       text,
		FiledAt:    c.at,
	}
	rs.CounterArguments = append(rs.CounterArguments, ca)
	c.rec.Resources[lot.LotID] = rs
	c.emit(EventCounterArgumentFiled, lot.LotID, ca)
	return nil
}

func applyResourceAdvance(c *applyCtx) error {
	p, err := decode[protocol.ResourceAdvancePayload](c)
	if err != nil {
		return err
	}
	rs, lot, err := c.rec.resourceState(p.LotID)
	if err != nil {
		return err
	}
	if _, ok := rs.Deadline(); !ok {
		return failure.State("NOTHING_TO_ADVANCE", "resource phase %s has no deadline to advance", rs.Phase)
	}
	if !rs.Due(c.at) {
		return failure.State("DEADLINE_NOT_REACHED", "the %s deadline has not passed", rs.Phase.Label())
	}
	return advanceResource(c, lot, rs)
}

// advanceResourcePhases moves every lot whose phase deadline has passed.
func advanceResourcePhases(c *applyCtx) error {
	for _, lotID := range c.rec.LotOrder {
		rs, ok := c.rec.Resources[lotID]
		if !ok || !rs.Due(c.at) {
			continue
		}
		if err := advanceResource(c, c.rec.Lots[lotID], rs); err != nil {
			return err
		}
	}
	return nil
}

func advanceResource(c *applyCtx, lot Lot, rs dispute.ResourceState) error {
	settings := c.rec.Session.Settings
	switch rs.Phase {
	case dispute.PhaseManifestation:
		if len(rs.Resources) == 0 {
			if err := c.announce(lot.LotID, "Lote %d: nenhuma intenção de recurso registrada", lot.Number); err != nil {
				return err
			}
			return c.moveResourcePhase(lot, rs, dispute.PhaseDecided)
		}
		deadline := c.cal.AddBusinessDays(rs.ManifestationDeadline, settings.ReasoningBusinessDays)
		rs.ReasoningDeadline = &deadline
		return c.moveResourcePhase(lot, rs, dispute.PhaseReasoning)
	case dispute.PhaseReasoning:
		reasoned := rs.Count(dispute.ResourceReasoned)
		for i := range rs.Resources {
			if rs.Resources[i].Status == dispute.ResourceFiled {
				rs.Resources[i].Status = dispute.ResourceLapsed
			}
		}
		if reasoned == 0 {
			if err := c.announce(lot.LotID, "Lote %d: recursos sem razões apresentadas no prazo", lot.Number); err != nil {
				return err
			}
			return c.moveResourcePhase(lot, rs, dispute.PhaseDecided)
		}
		deadline := c.cal.AddBusinessDays(*rs.ReasoningDeadline, settings.CounterBusinessDays)
		rs.CounterDeadline = &deadline
		return c.moveResourcePhase(lot, rs, dispute.PhaseCounterArgument)
	case dispute.PhaseCounterArgument:
		return c.moveResourcePhase(lot, rs, dispute.PhaseJudgment)
	}
	return nil
}

func applyAuthorityDecision(c *applyCtx) error {
	p, err := decode[protocol.AuthorityDecisionPayload](c)
	if err != nil {
		return err
	}
	lotID, idx, ok := c.rec.findResource(p.ResourceID)
	if !ok {
		return failure.NotFound("RESOURCE_NOT_FOUND", "resource %s not found", p.ResourceID)
	}
	rs := c.rec.Resources[lotID]
	lot := c.rec.Lots[lotID]
	if rs.Phase != dispute.PhaseJudgment {
		return failure.State("NOT_IN_JUDGMENT", "decisions are recorded during judgment")
	}
	res := rs.Resources[idx]
	if res.Status != dispute.ResourceReasoned {
		return failure.State("RESOURCE_NOT_PENDING", "resource %s is not awaiting a decision", res.ID)
	}
	outcome, ok := dispute.ParseOutcome(p.Outcome)
	if !ok {
		return failure.Invalid("INVALID_OUTCOME", "outcome must be GRANTED or DENIED")
	}
	justification := strings.TrimSpace(p.Justification)
	if justification == "" {
		return failure.Invalid("JUSTIFICATION_REQUIRED", "a decision needs a justification")
	}
	if strings.TrimSpace(p.DecisionID) == "" {
		return failure.Invalid("DECISION_ID_REQUIRED", "decision_id is required")
	}
	decision := dispute.AuthorityDecision{
		ID:            p.DecisionID,
		ResourceID:    res.ID,
		Outcome:       outcome,
		Justification: justification,
		DecidedBy:     c.tx.Actor.UserID,
		DecidedAt:     c.at,
	}
	res.Status = outcome
	rs.Resources[idx] = res
	rs.Decisions = append(rs.Decisions, decision)
	c.rec.Resources[lotID] = rs
	c.emit(EventAuthorityDecision, lotID, decision)

	verdict := "provido"
	if outcome == dispute.ResourceDenied {
		verdict = "não provido"
	}
	if err := c.announce(lotID, "Recurso do lote %d julgado %s pela autoridade competente", lot.Number, verdict); err != nil {
		return err
	}
	if rs.Count(dispute.ResourceReasoned) == 0 {
		return c.moveResourcePhase(lot, rs, dispute.PhaseDecided)
	}
	return nil
}
