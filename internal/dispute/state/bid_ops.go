package state

import (
	"errors"
	"strings"
	"time"

	"github.com/canal-compras/disputa/internal/dispute/protocol"
	"github.com/canal-compras/disputa/internal/domain/bid"
	"github.com/canal-compras/disputa/internal/domain/dispute"
	"github.com/canal-compras/disputa/internal/domain/failure"
	"github.com/canal-compras/disputa/internal/domain/identity"
	"github.com/canal-compras/disputa/internal/domain/tender"
)

func applyLotJoin(c *applyCtx) error {
	p, err := decode[protocol.LotJoinPayload](c)
	if err != nil {
		return err
	}
	lot, err := c.rec.openLot(p.LotID)
	if err != nil {
		return err
	}
	caller := c.tx.Actor
	key := caller.SupplierKey()
	if _, joined := c.rec.Participants[lot.LotID][key]; joined {
		return nil
	}
	rule := (&tender.Lot{BenefitType: tender.BenefitType(lot.BenefitType), EligibilityRule: lot.EligibilityRule}).EffectiveRule()
	ok, err := tender.Eligible(rule, tender.SupplierParams(caller.CompanySize, caller.CompanyState))
	if err != nil {
		return failure.Invalid("ELIGIBILITY_RULE", "%v", err)
	}
	if !ok {
		return failure.Forbidden("NOT_ELIGIBLE", "supplier is not eligible for lot %d", lot.Number)
	}
	participant := dispute.Participant{
		SupplierID:   key,
		UserID:       caller.UserID,
		Name:         caller.DisplayName(),
		CompanySize:  caller.CompanySize,
		CompanyState: caller.CompanyState,
		Status:       dispute.ParticipantPending,
		JoinedAt:     c.at,
	}
	if c.rec.Participants[lot.LotID] == nil {
		c.rec.Participants[lot.LotID] = map[string]dispute.Participant{}
	}
	c.rec.Participants[lot.LotID][key] = participant
	c.emit(EventParticipantJoined, lot.LotID, participant)
	return nil
}

func applyClassify(c *applyCtx) error {
	p, err := decode[protocol.ClassifyPayload](c)
	if err != nil {
		return err
	}
	if c.rec.Session.Status == dispute.StatusClosed {
		return failure.State("SESSION_CLOSED", "participants cannot be classified while the dispute is closed")
	}
	lot, err := c.rec.openLot(p.LotID)
	if err != nil {
		return err
	}
	status, err := dispute.ParseClassification(p.Status)
	if err != nil {
		return failure.Invalid("INVALID_CLASSIFICATION", "%v", err)
	}
	participant, ok := c.rec.Participants[lot.LotID][strings.TrimSpace(p.SupplierID)]
	if !ok {
		return failure.NotFound("PARTICIPANT_NOT_FOUND", "supplier %s did not join lot %d", p.SupplierID, lot.Number)
	}
	if err := participant.Classify(status, p.Justification, c.tx.Actor.UserID, c.at); err != nil {
		if errors.Is(err, dispute.ErrJustificationRequired) {
			return failure.Invalid("JUSTIFICATION_REQUIRED", "%v", err)
		}
		return failure.State("CLASSIFICATION_LOCKED", "%v", err)
	}
	c.rec.Participants[lot.LotID][participant.SupplierID] = participant
	c.emit(EventParticipantClassified, lot.LotID, participant)

	verb := "classificado"
	if status == dispute.ParticipantDisqualified {
		verb = "desclassificado"
	}
	return c.announce(lot.LotID, "Fornecedor %s %s no lote %d. Justificativa: %s",
		participant.Name, verb, lot.Number, participant.Justification)
}

func applyBidSubmit(c *applyCtx) error {
	p, err := decode[protocol.BidSubmitPayload](c)
	if err != nil {
		return err
	}
	s := &c.rec.Session
	if s.Status != dispute.StatusOpen {
		return failure.State("DISPUTE_NOT_OPEN", "bids are accepted only while the dispute is open")
	}
	lot, err := c.rec.openLot(p.LotID)
	if err != nil {
		return err
	}
	if lot.LotID != s.ActiveLotID {
		return failure.State("LOT_NOT_ACTIVE", "lot %d is not under dispute", lot.Number)
	}
	if s.biddingClosed(c.at) {
		return failure.State("BIDDING_TIME_ELAPSED", "bidding time for lot %d has elapsed", lot.Number)
	}
	caller := c.tx.Actor
	key := caller.SupplierKey()
	participant, ok := c.rec.Participants[lot.LotID][key]
	if !ok || !participant.Qualified() {
		return failure.Forbidden("NOT_QUALIFIED", "supplier is not a qualified participant of lot %d", lot.Number)
	}
	if strings.TrimSpace(p.BidID) == "" {
		return failure.Invalid("BID_ID_REQUIRED", "bid_id is required")
	}
	if _, _, found := c.rec.findBid(p.BidID); found {
		return failure.State("DUPLICATE_BID", "bid %s already submitted", p.BidID)
	}
	value := bid.Money(p.Value)
	if value <= 0 {
		return failure.Invalid("INVALID_VALUE", "bid value must be positive")
	}

	if !s.finalist(key) {
		return failure.Forbidden("NOT_FINALIST", "only the finalists of the first stage bid in lot %d now", lot.Number)
	}
	if err := c.rec.checkImprovement(lot, key, value, p.ObservedBestBidID); err != nil {
		return err
	}

	bids := c.rec.Bids[lot.LotID]
	accepted := bid.Bid{
		ID:          p.BidID,
		TenderID:    s.TenderID,
		LotID:       lot.LotID,
		SupplierID:  key,
		SubmittedBy: caller.UserID,
		Value:       value,
		Seq:         int64(len(bids) + 1),
		Status:      bid.StatusActive,
		SubmittedAt: c.at,
		ConfirmBy:   c.at.Add(s.Settings.ConfirmWindow),
	}
	c.rec.Bids[lot.LotID] = append(bids, accepted)
	countdown := accepted.ConfirmBy
	s.CountdownEndsAt = &countdown

	ev := c.emit(EventBidAccepted, lot.LotID, accepted)
	if s.sealed() {
		ev.SealedFor = key
	}

	if s.Mode.Extends(s.Stage) && s.EndsAt != nil && s.EndsAt.Sub(c.at) < s.Settings.ExtensionWindow {
		extended := c.at.Add(s.Settings.ExtensionWindow)
		if extended.After(*s.EndsAt) {
			s.EndsAt = &extended
			c.emit(EventEndExtended, lot.LotID, cloneSession(*s))
			return c.announce(lot.LotID, "Prorrogação automática: disputa do lote %d encerra às %s",
				lot.Number, extended.Format("15:04:05"))
		}
	}
	return nil
}

// checkImprovement applies the acceptance rule of the current stage. A sealed
// round of a two-stage mode takes one bid per supplier, compared only with the
// supplier's own offers. Elsewhere a bid must beat the lot's best, and while
// bids are sealed the rejection carries no value.
func (r *record) checkImprovement(lot Lot, supplierID string, value bid.Money, observedBestBidID string) error {
	s := &r.Session
	bids := r.Bids[lot.LotID]
	if s.Mode.TwoStage() && s.Stage.Sealed() {
		own := make([]bid.Bid, 0)
		for i, b := range bids {
			if b.SupplierID != supplierID || !b.IsActive() {
				continue
			}
			if i >= s.SealedAfter {
				return failure.State("STAGE_BID_SUBMITTED", "only one bid per supplier in the sealed stage of lot %d", lot.Number)
			}
			own = append(own, b)
		}
		if mine, ok := bid.Best(own, s.Criterion); ok && !bid.Acceptable(value, &mine, lot.MinDecrement, s.Criterion) {
			return failure.Invalid("BID_NOT_LOW_ENOUGH", "bid must beat your own offer of %s", mine.Value.BRL())
		}
		return nil
	}

	best, hasBest := bid.Best(bids, s.Criterion)
	var bestPtr *bid.Bid
	if hasBest {
		bestPtr = &best
	}
	if bid.Acceptable(value, bestPtr, lot.MinDecrement, s.Criterion) {
		return nil
	}
	raced := observedBestBidID != "" && hasBest && best.ID != observedBestBidID
	if s.sealed() {
		if raced {
			return failure.ConcurrencyLoss("another bid became the best before yours was committed")
		}
		return failure.Invalid("BID_NOT_LOW_ENOUGH", "bid does not improve the current best")
	}
	threshold := bid.Threshold(best.Value, lot.MinDecrement, s.Criterion)
	if raced {
		return failure.ConcurrencyLoss("another bid became the best before yours was committed").
			WithDetail("best_bid_id", best.ID).
			WithDetail("best_value", best.Value.String()).
			WithDetail("threshold", threshold.String())
	}
	return failure.Invalid("BID_NOT_LOW_ENOUGH", "bid must beat %s", threshold.BRL()).
		WithDetail("best_value", best.Value.String()).
		WithDetail("threshold", threshold.String())
}

func (r *record) findBid(id string) (lotID string, idx int, ok bool) {
	id = strings.TrimSpace(id)
	for _, lid := range r.LotOrder {
		for i := range r.Bids[lid] {
			if r.Bids[lid][i].ID == id {
				return lid, i, true
			}
		}
	}
	return "", -1, false
}

func applyBidCancel(c *applyCtx) error {
	p, err := decode[protocol.BidCancelPayload](c)
	if err != nil {
		return err
	}
	lotID, idx, ok := c.rec.findBid(p.BidID)
	if !ok {
		return failure.NotFound("BID_NOT_FOUND", "bid %s not found", p.BidID)
	}
	caller := c.tx.Actor
	b := c.rec.Bids[lotID][idx]
	anyBid := caller.Can(identity.ActionCancelAnyBid)
	if !anyBid && b.SupplierID != caller.SupplierKey() {
		return failure.Forbidden("NOT_BID_OWNER", "only the bidder or the auctioneer may cancel this bid")
	}
	if !b.IsActive() {
		return nil
	}
	lot := c.rec.Lots[lotID]
	if lot.Finalized {
		return failure.State("LOT_FINALIZED", "bids of lot %d are immutable", lot.Number)
	}
	if !anyBid && !b.BidderMayCancel(c.at) {
		return failure.State("CONFIRMATION_ELAPSED", "the confirmation countdown of this bid has ended")
	}
	wasEffective := b.Effective
	at := c.at
	b.Status = bid.StatusCancelled
	b.CancelledAt = &at
	b.CancelledBy = caller.UserID
	c.rec.Bids[lotID][idx] = b

	ev := c.emit(EventBidCancelled, lotID, b)
	if s := &c.rec.Session; s.sealed() && lotID == s.ActiveLotID && idx >= s.SealedAfter {
		ev.SealedFor = b.SupplierID
	}
	if !wasEffective && !anyBid {
		return nil
	}
	text := "Lance de " + b.Value.BRL() + " cancelado no lote "
	if reason := strings.TrimSpace(p.Reason); reason != "" {
		return c.announce(lotID, "%s%d. Motivo: %s", text, lot.Number, reason)
	}
	return c.announce(lotID, "%s%d", text, lot.Number)
}

// effectuateDue confirms every bid whose countdown ended by c.at.
func effectuateDue(c *applyCtx) error {
	for _, lotID := range c.rec.LotOrder {
		if c.rec.Lots[lotID].Finalized {
			continue
		}
		for i := range c.rec.Bids[lotID] {
			b := &c.rec.Bids[lotID][i]
			if !b.IsActive() || b.Effective || c.at.Before(b.ConfirmBy) {
				continue
			}
			if err := effectuate(c, lotID, i); err != nil {
				return err
			}
		}
	}
	return nil
}

// effectuateAll confirms every pending bid of a lot, used when bidding stops.
func effectuateAll(c *applyCtx, lotID string) error {
	for i := range c.rec.Bids[lotID] {
		b := &c.rec.Bids[lotID][i]
		if b.IsActive() && !b.Effective {
			if err := effectuate(c, lotID, i); err != nil {
				return err
			}
		}
	}
	return nil
}

func effectuate(c *applyCtx, lotID string, idx int) error {
	b := &c.rec.Bids[lotID][idx]
	at := b.ConfirmBy
	if c.at.Before(at) {
		at = c.at
	}
	b.Effective = true
	b.EffectiveAt = &at
	lot := c.rec.Lots[lotID]
	s := &c.rec.Session

	ev := c.emit(EventBidEffective, lotID, *b)
	if s.sealed() && lotID == s.ActiveLotID && idx >= s.SealedAfter {
		ev.SealedFor = b.SupplierID
		return c.announce(lotID, "Lance registrado para o lote %d", lot.Number)
	}
	return c.announce(lotID, "Lance de %s registrado para o lote %d", b.Value.BRL(), lot.Number)
}

func expireBidding(c *applyCtx) error {
	s := &c.rec.Session
	if s.Status != dispute.StatusOpen || s.BiddingElapsed || s.EndsAt == nil || c.at.Before(*s.EndsAt) {
		return nil
	}
	lot := c.rec.Lots[s.ActiveLotID]
	if next, ok := s.Mode.NextStage(s.Stage); ok {
		advanced, err := advanceStage(c, lot, next)
		if err != nil || advanced {
			return err
		}
	}
	s.BiddingElapsed = true
	s.CountdownEndsAt = nil
	c.emit(EventBiddingElapsed, lot.LotID, cloneSession(*s))
	return c.announce(lot.LotID, "Tempo de disputa do lote %d encerrado", lot.Number)
}

// advanceStage ends the first round of a two-stage mode and opens the second
// for the finalists. It reports false when no bid was placed, leaving the
// caller to end the bidding.
func advanceStage(c *applyCtx, lot Lot, next dispute.Stage) (bool, error) {
	if err := effectuateAll(c, lot.LotID); err != nil {
		return false, err
	}
	s := &c.rec.Session
	bids := c.rec.Bids[lot.LotID]
	finalists := bid.Finalists(bids, s.Criterion, finalistMargin, minFinalists)
	if len(finalists) == 0 {
		return false, nil
	}
	endsAt := c.at.Add(time.Duration(s.StageMinutes) * time.Minute)
	s.Stage = next
	s.Finalists = finalists
	s.SealedAfter = len(bids)
	s.EndsAt = &endsAt
	s.CountdownEndsAt = nil
	c.emit(EventStageChanged, lot.LotID, cloneSession(*s))
	return true, c.announce(lot.LotID, "Lote %d em %s até %s para %d finalistas",
		lot.Number, stageLabel(next), endsAt.Format("15:04:05"), len(finalists))
}
