package state

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canal-compras/disputa/internal/dispute/protocol"
	"github.com/canal-compras/disputa/internal/domain/bid"
	"github.com/canal-compras/disputa/internal/domain/dispute"
	"github.com/canal-compras/disputa/internal/domain/failure"
	"github.com/canal-compras/disputa/internal/domain/identity"
)

var (
	supplierC = identity.Caller{UserID: "user-c", Name: "Gama Ltda", Role: identity.RoleSupplier, CompanyID: "sup-c", CompanySize: "EPP", CompanyState: "RJ"}
	supplierD = identity.Caller{UserID: "user-d", Name: "Delta SA", Role: identity.RoleSupplier, CompanyID: "sup-d", CompanySize: "DEMAIS", CompanyState: "BA"}
	foreign   = identity.Caller{UserID: "outro", Role: identity.RoleAuctioneer, AgencyID: "agency-2"}
)

// fourBidders opens lot-1 with A, B, C and D qualified.
func fourBidders(t *testing.T) *harness {
	h := newHarness(t)
	h.open()
	for _, c := range []identity.Caller{supplierA, supplierB, supplierC, supplierD} {
		h.qualify(c, lotID)
	}
	return h
}

func lastEvent(h *harness, typ EventType) *Event {
	for i := len(h.events) - 1; i >= 0; i-- {
		if h.events[i].Type == typ {
			return &h.events[i]
		}
	}
	return nil
}

func TestSealedRejectionRevealsNothing(t *testing.T) {
	h := newHarness(t)
	h.open()
	h.qualify(supplierA, lotID)
	h.qualify(supplierB, lotID)
	h.start(dispute.ModeClosed, 5, t0)

	first, err := h.bid(supplierB, 1000, t0.Add(time.Second))
	require.NoError(t, err)
	_, err = h.bid(supplierA, 900, t0.Add(2*time.Second))
	require.NoError(t, err)

	_, err = h.bid(supplierB, 950, t0.Add(3*time.Second))
	assert.Equal(t, "BID_NOT_LOW_ENOUGH", failure.CodeOf(err))
	fe, ok := failure.As(err)
	require.True(t, ok)
	assert.Empty(t, fe.Details)
	assert.NotContains(t, fe.Message, "9,")

	err = h.apply(protocol.OpBidSubmit, supplierB, t0.Add(4*time.Second), protocol.BidSubmitPayload{
		BidID: uuid.NewString(), LotID: lotID, Value: 950, ObservedBestBidID: first,
	})
	assert.ErrorIs(t, err, failure.ErrConcurrency)
	fe, ok = failure.As(err)
	require.True(t, ok)
	assert.Empty(t, fe.Details)
}

func TestForeignAuctioneerSeesPublicView(t *testing.T) {
	t.Run("private messages", func(t *testing.T) {
		h := newHarness(t)
		h.open()
		h.must(protocol.OpMessageSend, auctioneer, t0, protocol.MessageSendPayload{
			MessageID: uuid.NewString(), Content: "envie a planilha", Private: true, RecipientID: "sup-a",
		})
		posted := lastEvent(h, EventMessagePosted)
		require.NotNil(t, posted)
		assert.Equal(t, agencyID, posted.AgencyID)
		assert.False(t, posted.VisibleTo(foreign))
		assert.True(t, posted.VisibleTo(auctioneer))
		assert.True(t, posted.VisibleTo(admin))

		for _, m := range h.view(foreign).Messages {
			assert.False(t, m.IsPrivate())
		}
		assert.Len(t, h.view(auctioneer).Messages, len(h.view(foreign).Messages)+1)
	})

	t.Run("sealed bids", func(t *testing.T) {
		h := newHarness(t)
		h.open()
		h.qualify(supplierA, lotID)
		h.start(dispute.ModeClosed, 5, t0)
		_, err := h.bid(supplierA, 900, t0.Add(time.Second))
		require.NoError(t, err)

		accepted := lastEvent(h, EventBidAccepted)
		require.NotNil(t, accepted)
		assert.False(t, accepted.VisibleTo(foreign))
		v := h.view(foreign)
		assert.True(t, v.Lots[0].Sealed)
		assert.Empty(t, v.Lots[0].Bids)
		assert.False(t, h.view(auctioneer).Lots[0].Sealed)
	})

	t.Run("random end time", func(t *testing.T) {
		h := newHarness(t)
		h.open()
		endsAt := t0.Add(7 * time.Minute)
		h.must(protocol.OpDisputeStart, auctioneer, t0, protocol.DisputeStartPayload{LotID: lotID, Mode: "RANDOM", EndsAt: &endsAt})
		assert.Nil(t, h.view(foreign).Session.EndsAt)
		got := h.view(auctioneer).Session.EndsAt
		require.NotNil(t, got)
		assert.True(t, endsAt.Equal(*got))
	})
}

func TestObserversSeeCommitOrder(t *testing.T) {
	h := newHarness(t)
	h.open()

	var seqs []int64
	h.m.Observe(func(events []Event) {
		for _, ev := range events {
			seqs = append(seqs, ev.Seq)
		}
	})

	const n = 2000
	txs := make([]protocol.Tx, n)
	for i := range txs {
		txs[i] = h.tx(protocol.OpMessageSend, auctioneer, t0.Add(time.Second), protocol.MessageSendPayload{
			MessageID: uuid.NewString(), Content: "mensagem",
		})
	}
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := range txs {
		wg.Add(1)
		go func(tx protocol.Tx) {
			defer wg.Done()
			if err := h.m.ApplyTx(tx); err != nil {
				errs <- err
			}
		}(txs[i])
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	require.Len(t, seqs, n)
	for i := 1; i < len(seqs); i++ {
		require.Less(t, seqs[i-1], seqs[i], "event %d delivered out of order", i)
	}
}

func TestTickCommitsAllTendersOrNone(t *testing.T) {
	h := openDispute(t)
	endsAt := t0.Add(10 * time.Minute)

	// A second tender that sorts after tender-1 and cannot be evaluated.
	broken := h.m.s.Tenders[tenderID].clone()
	broken.Session.TenderID = "tender-z"
	broken.Session.Settings.Holidays = []string{"not-a-date"}
	h.m.s.Tenders["tender-z"] = broken

	before := len(h.events)
	tick := h.tx(protocol.OpTick, identity.System("n1"), endsAt, protocol.TickPayload{Node: "n1"})
	err := h.m.ApplyTx(tick)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tender-z")

	sess, _ := h.m.GetSession(tenderID)
	assert.False(t, sess.BiddingElapsed, "tender-1 must not be committed by a failed tick")
	assert.Len(t, h.events, before)

	delete(h.m.s.Tenders, "tender-z")
	require.NoError(t, h.m.ApplyTx(tick))
	sess, _ = h.m.GetSession(tenderID)
	assert.True(t, sess.BiddingElapsed)
}

func TestOpenClosedEndsWithSealedFinalBids(t *testing.T) {
	h := fourBidders(t)
	h.start(dispute.ModeOpenClosed, 10, t0)
	sess, _ := h.m.GetSession(tenderID)
	assert.Equal(t, dispute.StageOpen, sess.Stage)
	assert.Equal(t, 5, sess.StageMinutes)

	for i, b := range []struct {
		who   identity.Caller
		cents int64
	}{{supplierD, 1600}, {supplierC, 1500}, {supplierA, 1000}, {supplierB, 990}} {
		_, err := h.bid(b.who, b.cents, t0.Add(time.Duration(i+1)*time.Second))
		require.NoError(t, err)
	}
	assert.Len(t, h.view(supplierB).Lots[0].Bids, 4, "open stage bids are public")

	late := t0.Add(9*time.Minute + 40*time.Second)
	_, err := h.bid(supplierA, 980, late)
	require.NoError(t, err)
	sess, _ = h.m.GetSession(tenderID)
	stageOneEnd := late.Add(2 * time.Minute)
	assert.Equal(t, stageOneEnd, *sess.EndsAt, "open stage extends")

	h.tick(stageOneEnd)
	sess, _ = h.m.GetSession(tenderID)
	assert.Equal(t, dispute.StageSealed, sess.Stage)
	assert.False(t, sess.BiddingElapsed)
	assert.Equal(t, []string{"sup-a", "sup-b", "sup-c"}, sess.Finalists)
	assert.Equal(t, 5, sess.SealedAfter)
	stageTwoEnd := stageOneEnd.Add(5 * time.Minute)
	assert.Equal(t, stageTwoEnd, *sess.EndsAt)
	assert.Contains(t, h.lastMessage(), "etapa fechada")
	require.NotNil(t, lastEvent(h, EventStageChanged))

	at := stageOneEnd.Add(time.Second)
	_, err = h.bid(supplierD, 900, at)
	assert.Equal(t, "NOT_FINALIST", failure.CodeOf(err))
	_, err = h.bid(supplierB, 950, at)
	require.NoError(t, err)
	_, err = h.bid(supplierB, 940, at)
	assert.Equal(t, "STAGE_BID_SUBMITTED", failure.CodeOf(err))
	_, err = h.bid(supplierA, 985, at)
	assert.Equal(t, "BID_NOT_LOW_ENOUGH", failure.CodeOf(err), "a final bid must beat the supplier's own offer")

	_, err = h.bid(supplierC, 970, stageTwoEnd.Add(-10*time.Second))
	require.NoError(t, err)
	sess, _ = h.m.GetSession(tenderID)
	assert.Equal(t, stageTwoEnd, *sess.EndsAt, "sealed stage does not extend")

	viewA := h.view(supplierA)
	assert.True(t, viewA.Lots[0].Sealed)
	assert.Len(t, viewA.Lots[0].Bids, 5, "only the open stage bids are visible")
	assert.Len(t, h.view(supplierB).Lots[0].Bids, 6)
	assert.Len(t, h.view(auctioneer).Lots[0].Bids, 7)
	assert.False(t, lastEvent(h, EventBidAccepted).VisibleTo(supplierA))

	h.tick(stageTwoEnd)
	sess, _ = h.m.GetSession(tenderID)
	assert.True(t, sess.BiddingElapsed)
	viewA = h.view(supplierA)
	assert.False(t, viewA.Lots[0].Sealed)
	require.NotNil(t, viewA.Lots[0].BestBid)
	assert.Equal(t, bid.Money(950), viewA.Lots[0].BestBid.Value)
	assert.Equal(t, "sup-b", viewA.Lots[0].BestBid.SupplierID)
}

func TestClosedOpenStartsSealedThenOpens(t *testing.T) {
	h := fourBidders(t)
	h.must(protocol.OpDisputeStart, auctioneer, t0, protocol.DisputeStartPayload{
		LotID: lotID, Mode: "CLOSED_OPEN", TimeLimitMinutes: 10, StageMinutes: 3,
	})
	sess, _ := h.m.GetSession(tenderID)
	assert.Equal(t, dispute.StageSealed, sess.Stage)

	for i, b := range []struct {
		who   identity.Caller
		cents int64
	}{{supplierA, 1000}, {supplierB, 1200}, {supplierC, 1100}} {
		_, err := h.bid(b.who, b.cents, t0.Add(time.Duration(i+1)*time.Second))
		require.NoError(t, err, "sealed proposals are independent of each other")
	}
	_, err := h.bid(supplierA, 900, t0.Add(5*time.Second))
	assert.Equal(t, "STAGE_BID_SUBMITTED", failure.CodeOf(err))

	h.tick(t0.Add(20 * time.Second))
	viewB := h.view(supplierB)
	assert.True(t, viewB.Lots[0].Sealed)
	require.Len(t, viewB.Lots[0].Bids, 1)
	assert.Equal(t, "sup-b", viewB.Lots[0].Bids[0].SupplierID)
	assert.Equal(t, "Lance registrado para o lote 1", lastMessageLike(h, "Lance"), "sealed bids are announced without value")

	stageOneEnd := t0.Add(10 * time.Minute)
	late := stageOneEnd.Add(-20 * time.Second)
	_, err = h.bid(supplierD, 1500, late)
	require.NoError(t, err)
	sess, _ = h.m.GetSession(tenderID)
	assert.Equal(t, stageOneEnd, *sess.EndsAt, "sealed stage does not extend")

	h.tick(stageOneEnd)
	sess, _ = h.m.GetSession(tenderID)
	assert.Equal(t, dispute.StageOpen, sess.Stage)
	assert.Equal(t, []string{"sup-a", "sup-c", "sup-b"}, sess.Finalists)
	stageTwoEnd := stageOneEnd.Add(3 * time.Minute)
	assert.Equal(t, stageTwoEnd, *sess.EndsAt)

	viewB = h.view(supplierB)
	assert.False(t, viewB.Lots[0].Sealed)
	assert.Len(t, viewB.Lots[0].Bids, 4)

	at := stageOneEnd.Add(time.Second)
	_, err = h.bid(supplierD, 800, at)
	assert.Equal(t, "NOT_FINALIST", failure.CodeOf(err))
	_, err = h.bid(supplierB, 990, at)
	require.NoError(t, err)
	_, err = h.bid(supplierA, 995, at)
	assert.Equal(t, "BID_NOT_LOW_ENOUGH", failure.CodeOf(err))
	fe, ok := failure.As(err)
	require.True(t, ok)
	assert.Equal(t, "9.90", fe.Details["best_value"], "the open stage shows the best value")

	late = stageTwoEnd.Add(-30 * time.Second)
	_, err = h.bid(supplierC, 980, late)
	require.NoError(t, err)
	sess, _ = h.m.GetSession(tenderID)
	assert.Equal(t, late.Add(2*time.Minute), *sess.EndsAt, "open stage extends")

	h.tick(late.Add(2 * time.Minute))
	sess, _ = h.m.GetSession(tenderID)
	assert.True(t, sess.BiddingElapsed)
	assert.Equal(t, dispute.StageOpen, sess.Stage)
}

func TestTwoStageWithoutBidsEndsBidding(t *testing.T) {
	h := fourBidders(t)
	h.start(dispute.ModeClosedOpen, 10, t0)

	h.tick(t0.Add(10 * time.Minute))
	sess, _ := h.m.GetSession(tenderID)
	assert.True(t, sess.BiddingElapsed)
	assert.Equal(t, dispute.StageSealed, sess.Stage)
	assert.Nil(t, lastEvent(h, EventStageChanged))
}

func lastMessageLike(h *harness, prefix string) string {
	h.t.Helper()
	msgs := h.view(admin).Messages
	for i := len(msgs) - 1; i >= 0; i-- {
		if strings.HasPrefix(msgs[i].Content, prefix) {
			return msgs[i].Content
		}
	}
	return ""
}
