package state

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canal-compras/disputa/internal/dispute/protocol"
	"github.com/canal-compras/disputa/internal/domain/dispute"
	"github.com/canal-compras/disputa/internal/domain/failure"
	"github.com/canal-compras/disputa/internal/domain/identity"
)

var (
	declaredAt     = t0.Add(6 * time.Minute)
	manifestLimit  = declaredAt.Add(4 * time.Hour)
	filedAt        = time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	reasoningLimit = time.Date(2026, 3, 5, 15, 0, 0, 0, time.UTC)
	counterLimit   = time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
)

// awardedToB runs lot-1 to negotiation and declares sup-b the winner.
func awardedToB(t *testing.T) *harness {
	h := openDispute(t)
	_, err := h.bid(supplierA, 995, t0.Add(time.Minute))
	require.NoError(t, err)
	_, err = h.bid(supplierB, 990, t0.Add(2*time.Minute))
	require.NoError(t, err)
	require.NoError(t, h.status(dispute.StatusNegotiation, t0.Add(5*time.Minute)))
	h.must(protocol.OpWinnerDeclare, auctioneer, declaredAt, protocol.WinnerDeclarePayload{LotID: lotID, SupplierID: "sup-b"})
	return h
}

func (h *harness) resource() dispute.ResourceState {
	h.t.Helper()
	rs := h.view(admin).Lots[0].Resource
	require.NotNil(h.t, rs)
	return *rs
}

func (h *harness) file(c identity.Caller, at time.Time) (string, error) {
	h.t.Helper()
	id := uuid.NewString()
	err := h.apply(protocol.OpResourceFile, c, at, protocol.ResourceFilePayload{ResourceID: id, LotID: lotID, Intent: "proposta inexequível"})
	return id, err
}

func TestWinnerDeclarationRules(t *testing.T) {
	h := openDispute(t)
	err := h.apply(protocol.OpWinnerDeclare, auctioneer, t0.Add(time.Minute), protocol.WinnerDeclarePayload{LotID: lotID, SupplierID: "sup-b"})
	assert.Equal(t, "NOT_IN_NEGOTIATION", failure.CodeOf(err))

	require.NoError(t, h.status(dispute.StatusNegotiation, t0.Add(2*time.Minute)))
	err = h.apply(protocol.OpWinnerDeclare, auctioneer, t0.Add(3*time.Minute), protocol.WinnerDeclarePayload{LotID: lotID, SupplierID: "sup-x"})
	assert.ErrorIs(t, err, failure.ErrNotFound)

	err = h.apply(protocol.OpWinnerDeclare, supplierA, t0.Add(3*time.Minute), protocol.WinnerDeclarePayload{LotID: lotID, SupplierID: "sup-a"})
	assert.ErrorIs(t, err, failure.ErrAuthorization)

	h.must(protocol.OpWinnerDeclare, auctioneer, declaredAt, protocol.WinnerDeclarePayload{LotID: lotID, SupplierID: "sup-b"})
	err = h.apply(protocol.OpWinnerDeclare, auctioneer, declaredAt, protocol.WinnerDeclarePayload{LotID: lotID, SupplierID: "sup-a"})
	assert.Equal(t, "WINNER_ALREADY_DECLARED", failure.CodeOf(err))

	lot := h.view(citizen).Lots[0]
	assert.Equal(t, "sup-b", lot.WinnerID)
	rs := h.resource()
	assert.Equal(t, dispute.PhaseManifestation, rs.Phase)
	assert.True(t, manifestLimit.Equal(rs.ManifestationDeadline))
	assert.Equal(t, "Fornecedor Beta SA declarado vencedor do lote 1. Intenção de recurso até 02/03/2026 18:06", h.lastMessage())

	err = h.apply(protocol.OpClassify, auctioneer, declaredAt, protocol.ClassifyPayload{
		LotID: lotID, SupplierID: "sup-b", Status: "DISQUALIFIED", Justification: "revisão",
	})
	assert.Equal(t, "CLASSIFICATION_LOCKED", failure.CodeOf(err))
}

func TestResourceFullFlow(t *testing.T) {
	h := awardedToB(t)

	_, err := h.file(supplierB, filedAt)
	assert.Equal(t, "WINNER_CANNOT_APPEAL", failure.CodeOf(err))
	_, err = h.file(citizen, filedAt)
	assert.ErrorIs(t, err, failure.ErrAuthorization)

	resID, err := h.file(supplierA, filedAt)
	require.NoError(t, err)
	rs := h.resource()
	assert.Equal(t, dispute.PhaseReasoning, rs.Phase)
	require.NotNil(t, rs.ReasoningDeadline)
	assert.True(t, reasoningLimit.Equal(*rs.ReasoningDeadline), "three business days after filing")
	assert.Equal(t, "Lote 1: fase de razões de recurso até 05/03/2026 15:00", h.lastMessage())

	_, err = h.file(supplierA, filedAt.Add(time.Minute))
	assert.Equal(t, "ALREADY_FILED", failure.CodeOf(err))

	err = h.apply(protocol.OpResourceReason, supplierB, filedAt.Add(time.Hour), protocol.ResourceReasonPayload{ResourceID: resID, Reasoning: "x"})
	assert.Equal(t, "NOT_RESOURCE_OWNER", failure.CodeOf(err))
	h.must(protocol.OpResourceReason, supplierA, time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC), protocol.ResourceReasonPayload{
		ResourceID: resID, Reasoning: "Preço abaixo do custo dos insumos",
	})

	err = h.apply(protocol.OpResourceAdvance, auctioneer, time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC), protocol.ResourceAdvancePayload{LotID: lotID})
	assert.Equal(t, "DEADLINE_NOT_REACHED", failure.CodeOf(err))

	assert.True(t, h.m.PendingWork(reasoningLimit))
	h.tick(reasoningLimit)
	rs = h.resource()
	assert.Equal(t, dispute.PhaseCounterArgument, rs.Phase)
	require.NotNil(t, rs.CounterDeadline)
	assert.True(t, counterLimit.Equal(*rs.CounterDeadline), "weekend is skipped")

	err = h.apply(protocol.OpAuthorityDecision, authority, reasoningLimit.Add(time.Hour), protocol.AuthorityDecisionPayload{
		DecisionID: "d-1", ResourceID: resID, Outcome: "DENIED", Justification: "preço compatível",
	})
	assert.Equal(t, "NOT_IN_JUDGMENT", failure.CodeOf(err))

	h.must(protocol.OpCounterArgument, supplierB, time.Date(2026, 3, 6, 11, 0, 0, 0, time.UTC), protocol.CounterArgumentPayload{
		CounterID: "c-1", LotID: lotID, Text: "Planilha de custos anexada",
	})
	err = h.apply(protocol.OpCounterArgument, citizen, time.Date(2026, 3, 6, 12, 0, 0, 0, time.UTC), protocol.CounterArgumentPayload{
		CounterID: "c-2", LotID: lotID, Text: "opinião",
	})
	assert.ErrorIs(t, err, failure.ErrAuthorization)

	h.must(protocol.OpResourceAdvance, auctioneer, counterLimit, protocol.ResourceAdvancePayload{LotID: lotID})
	rs = h.resource()
	assert.Equal(t, dispute.PhaseJudgment, rs.Phase)
	require.Len(t, rs.CounterArguments, 1)

	err = h.apply(protocol.OpAuthorityDecision, supplierA, counterLimit.Add(time.Hour), protocol.AuthorityDecisionPayload{
		DecisionID: "d-1", ResourceID: resID, Outcome: "GRANTED", Justification: "ok",
	})
	assert.ErrorIs(t, err, failure.ErrAuthorization)
	err = h.apply(protocol.OpAuthorityDecision, authority, counterLimit.Add(time.Hour), protocol.AuthorityDecisionPayload{
		DecisionID: "d-1", ResourceID: resID, Outcome: "DENIED",
	})
	assert.Equal(t, "JUSTIFICATION_REQUIRED", failure.CodeOf(err))

	h.must(protocol.OpAuthorityDecision, authority, counterLimit.Add(time.Hour), protocol.AuthorityDecisionPayload{
		DecisionID: "d-1", ResourceID: resID, Outcome: "DENIED", Justification: "preço compatível com o mercado",
	})
	rs = h.resource()
	assert.Equal(t, dispute.PhaseDecided, rs.Phase)
	require.NotNil(t, rs.DecidedAt)
	require.Len(t, rs.Decisions, 1)
	assert.Equal(t, dispute.ResourceDenied, rs.Resources[0].Status)
	assert.False(t, h.m.PendingWork(counterLimit.Add(48*time.Hour)))

	filer, ok := h.m.ResourceFiler(tenderID, resID)
	require.True(t, ok)
	assert.Equal(t, "sup-a", filer)
}

func TestNoManifestationDecidesAtDeadline(t *testing.T) {
	h := awardedToB(t)
	assert.False(t, h.m.PendingWork(manifestLimit.Add(-time.Second)))

	h.tick(manifestLimit)
	assert.Equal(t, dispute.PhaseDecided, h.resource().Phase)

	_, err := h.file(supplierA, manifestLimit.Add(time.Minute))
	assert.Equal(t, "MANIFESTATION_CLOSED", failure.CodeOf(err))
}

func TestUnreasonedResourceLapses(t *testing.T) {
	h := awardedToB(t)
	resID, err := h.file(supplierA, filedAt)
	require.NoError(t, err)

	h.tick(reasoningLimit)
	rs := h.resource()
	assert.Equal(t, dispute.PhaseDecided, rs.Phase)
	assert.Equal(t, dispute.ResourceLapsed, rs.Resources[0].Status)

	err = h.apply(protocol.OpResourceReason, supplierA, reasoningLimit.Add(time.Minute), protocol.ResourceReasonPayload{ResourceID: resID, Reasoning: "atrasado"})
	assert.Equal(t, "REASONING_CLOSED", failure.CodeOf(err))
}

func TestResourceOpsNeedPhase(t *testing.T) {
	h := openDispute(t)
	_, err := h.file(supplierA, t0.Add(time.Minute))
	assert.Equal(t, "RESOURCE_PHASE_NOT_OPEN", failure.CodeOf(err))

	err = h.apply(protocol.OpResourceAdvance, auctioneer, t0.Add(time.Minute), protocol.ResourceAdvancePayload{LotID: lotID})
	assert.Equal(t, "RESOURCE_PHASE_NOT_OPEN", failure.CodeOf(err))
}
