package state

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/canal-compras/disputa/internal/dispute/protocol"
	"github.com/canal-compras/disputa/internal/domain/dispute"
	"github.com/canal-compras/disputa/internal/domain/identity"
)

const (
	tenderID = "tender-1"
	lotID    = "lot-1"
	agencyID = "agency-1"
)

// Monday 2 March 2026, 14:00 UTC.
var t0 = time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)

var (
	auctioneer = identity.Caller{UserID: "pregoeiro", Name: "Pregoeira Ana", Role: identity.RoleAuctioneer, AgencyID: agencyID}
	authority  = identity.Caller{UserID: "autoridade", Name: "Secretário", Role: identity.RoleAuthority, AgencyID: agencyID}
	admin      = identity.Caller{UserID: "admin", Role: identity.RoleAdmin}
	citizen    = identity.Caller{UserID: "cidadao", Role: identity.RoleCitizen}
	supplierA  = identity.Caller{UserID: "user-a", Name: "Alfa ME", Role: identity.RoleSupplier, CompanyID: "sup-a", CompanySize: "ME", CompanyState: "MG"}
	supplierB  = identity.Caller{UserID: "user-b", Name: "Beta SA", Role: identity.RoleSupplier, CompanyID: "sup-b", CompanySize: "DEMAIS", CompanyState: "SP"}
)

type harness struct {
	t      *testing.T
	m      *Machine
	key    ed25519.PrivateKey
	events []Event
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	h := &harness{t: t, m: NewMachine(), key: priv}
	h.m.Observe(func(events []Event) {
		h.events = append(h.events, events...)
	})
	return h
}

func (h *harness) tx(op protocol.Operation, caller identity.Caller, at time.Time, payload any) protocol.Tx {
	h.t.Helper()
	tender := tenderID
	if op == protocol.OpTick {
		tender = ""
	}
	tx, err := protocol.New(op, tender, caller, at, payload)
	require.NoError(h.t, err)
	require.NoError(h.t, tx.Sign(h.key))
	return tx
}

func (h *harness) apply(op protocol.Operation, caller identity.Caller, at time.Time, payload any) error {
	h.t.Helper()
	return h.m.ApplyTx(h.tx(op, caller, at, payload))
}

func (h *harness) must(op protocol.Operation, caller identity.Caller, at time.Time, payload any) {
	h.t.Helper()
	require.NoError(h.t, h.apply(op, caller, at, payload))
}

func (h *harness) open(lots ...protocol.LotSpec) {
	h.t.Helper()
	if len(lots) == 0 {
		lots = []protocol.LotSpec{{LotID: lotID, Number: 1, Name: "Papel A4", BenefitType: "OPEN", MinDecrement: 1}}
	}
	h.must(protocol.OpSessionOpen, auctioneer, t0, protocol.SessionOpenPayload{
		AgencyID:  agencyID,
		Number:    "PE 12/2026",
		Title:     "Aquisição de material de expediente",
		Criterion: "LOWEST_PRICE",
		Lots:      lots,
	})
}

func (h *harness) join(c identity.Caller, lot string) {
	h.t.Helper()
	h.must(protocol.OpLotJoin, c, t0, protocol.LotJoinPayload{LotID: lot})
}

func (h *harness) qualify(c identity.Caller, lot string) {
	h.t.Helper()
	h.join(c, lot)
	h.must(protocol.OpClassify, auctioneer, t0, protocol.ClassifyPayload{
		LotID: lot, SupplierID: c.SupplierKey(), Status: "QUALIFIED", Justification: "habilitação conferida",
	})
}

func (h *harness) start(mode dispute.Mode, minutes int, at time.Time) {
	h.t.Helper()
	h.must(protocol.OpDisputeStart, auctioneer, at, protocol.DisputeStartPayload{LotID: lotID, Mode: string(mode), TimeLimitMinutes: minutes})
}

// openDispute opens lot-1 in open mode for 10 minutes with A and B qualified.
func openDispute(t *testing.T) *harness {
	h := newHarness(t)
	h.open()
	h.qualify(supplierA, lotID)
	h.qualify(supplierB, lotID)
	h.start(dispute.ModeOpen, 10, t0)
	return h
}

func (h *harness) bid(c identity.Caller, cents int64, at time.Time) (string, error) {
	h.t.Helper()
	id := uuid.NewString()
	err := h.apply(protocol.OpBidSubmit, c, at, protocol.BidSubmitPayload{BidID: id, LotID: lotID, Value: cents})
	return id, err
}

func (h *harness) tick(at time.Time) {
	h.t.Helper()
	h.must(protocol.OpTick, identity.System("n1"), at, protocol.TickPayload{Node: "n1"})
}

func (h *harness) view(c identity.Caller) SessionView {
	h.t.Helper()
	v, ok := h.m.View(tenderID, c)
	require.True(h.t, ok)
	return v
}

func (h *harness) lastMessage() string {
	h.t.Helper()
	v := h.view(admin)
	require.NotEmpty(h.t, v.Messages)
	return v.Messages[len(v.Messages)-1].Content
}
