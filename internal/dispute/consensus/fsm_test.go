package consensus

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/hashicorp/raft"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canal-compras/disputa/internal/dispute/protocol"
	"github.com/canal-compras/disputa/internal/dispute/state"
	"github.com/canal-compras/disputa/internal/domain/failure"
	"github.com/canal-compras/disputa/internal/domain/identity"
)

type memorySink struct {
	bytes.Buffer
	closed    bool
	cancelled bool
}

func (s *memorySink) ID() string    { return "snap-1" }
func (s *memorySink) Close() error  { s.closed = true; return nil }
func (s *memorySink) Cancel() error { s.cancelled = true; return nil }

var auctioneer = identity.Caller{UserID: "pregoeiro", Role: identity.RoleAuctioneer, AgencyID: "agency-1"}

func signedOpen(t *testing.T, tenderID string) protocol.Tx {
	t.Helper()
	_, key, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	tx, err := protocol.New(protocol.OpSessionOpen, tenderID, auctioneer, time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC), protocol.SessionOpenPayload{
		AgencyID: "agency-1",
		Number:   "PE 1/2026",
		Lots:     []protocol.LotSpec{{LotID: "lot-1", Number: 1, MinDecrement: 1}},
	})
	require.NoError(t, err)
	require.NoError(t, tx.Sign(key))
	return tx
}

func applyLog(t *testing.T, f *fsm, tx protocol.Tx) any {
	t.Helper()
	data, err := tx.Marshal()
	require.NoError(t, err)
	return f.Apply(&raft.Log{Index: 1, Data: data})
}

func TestFSMApplyReturnsMachineVerdict(t *testing.T) {
	f := newFSM(state.NewMachine())
	tx := signedOpen(t, "tender-1")

	assert.Nil(t, applyLog(t, f, tx))
	_, ok := f.machine.GetSession("tender-1")
	assert.True(t, ok)

	again := signedOpen(t, "tender-1")
	resp := applyLog(t, f, again)
	err, isErr := resp.(error)
	require.True(t, isErr)
	assert.Equal(t, "SESSION_EXISTS", failure.CodeOf(err))

	resp = f.Apply(&raft.Log{Data: []byte("garbage")})
	assert.Error(t, resp.(error))
}

func TestFSMSnapshotRoundTrip(t *testing.T) {
	src := newFSM(state.NewMachine())
	for i := 0; i < 3; i++ {
		require.Nil(t, applyLog(t, src, signedOpen(t, fmt.Sprintf("tender-%d", i))))
	}
	snap, err := src.Snapshot()
	require.NoError(t, err)

	sink := &memorySink{}
	require.NoError(t, snap.Persist(sink))
	assert.True(t, sink.closed)
	assert.False(t, sink.cancelled)

	dst := newFSM(state.NewMachine())
	require.NoError(t, dst.Restore(io.NopCloser(bytes.NewReader(sink.Bytes()))))
	assert.Equal(t, src.machine.TenderIDs(), dst.machine.TenderIDs())

	want, err := src.machine.Marshal()
	require.NoError(t, err)
	got, err := dst.machine.Marshal()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestRestoreRejectsUncompressedData(t *testing.T) {
	f := newFSM(state.NewMachine())
	err := f.Restore(io.NopCloser(bytes.NewReader([]byte("not zstd"))))
	assert.Error(t, err)
}

func TestLocalReplica(t *testing.T) {
	l := NewLocal("n1", nil)
	assert.True(t, l.IsAuthority())
	require.NoError(t, l.ApplyTx(context.Background(), signedOpen(t, "tender-1")))
	_, ok := l.Machine().GetSession("tender-1")
	assert.True(t, ok)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := l.ApplyTx(ctx, signedOpen(t, "tender-2"))
	assert.ErrorIs(t, err, failure.ErrTransient)
}

func TestNotLeaderIsTransient(t *testing.T) {
	for _, err := range []error{raft.ErrNotLeader, raft.ErrLeadershipLost, raft.ErrLeadershipTransferInProgress} {
		require.True(t, isLeadershipErr(err))
		mapped := notLeader(err, "10.0.0.2:17000")
		assert.ErrorIs(t, mapped, failure.ErrTransient)
		assert.Equal(t, "NOT_LEADER", failure.CodeOf(mapped))
		fe, ok := failure.As(mapped)
		require.True(t, ok)
		assert.Equal(t, "10.0.0.2:17000", fe.Details["leader"])
	}
	assert.False(t, isLeadershipErr(raft.ErrRaftShutdown))
}

func TestConfigNormalized(t *testing.T) {
	_, err := Config{RaftAddr: "127.0.0.1:0", DataDir: t.TempDir()}.normalized()
	assert.Error(t, err)

	cfg, err := Config{NodeID: " n1 ", RaftAddr: "127.0.0.1:0", DataDir: t.TempDir()}.normalized()
	require.NoError(t, err)
	assert.Equal(t, "n1", cfg.NodeID)
	assert.Equal(t, 2, cfg.SnapshotRetain)
	assert.Equal(t, 5*time.Second, cfg.ApplyTimeout)
}
