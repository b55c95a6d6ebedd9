package consensus

import (
	"context"
	"errors"

	"github.com/hashicorp/raft"

	"github.com/canal-compras/disputa/internal/dispute/protocol"
	"github.com/canal-compras/disputa/internal/dispute/state"
	"github.com/canal-compras/disputa/internal/domain/failure"
)

// Local applies txs directly to an in-process machine. It is always the authority.
type Local struct {
	id      string
	machine *state.Machine
}

func NewLocal(nodeID string, machine *state.Machine) *Local {
	if machine == nil {
		machine = state.NewMachine()
	}
	return &Local{id: nodeID, machine: machine}
}

func (l *Local) ApplyTx(ctx context.Context, tx protocol.Tx) error {
	if err := ctx.Err(); err != nil {
		return failure.Transient("CANCELLED", "apply %s: %v", tx.Op, err)
	}
	return l.machine.ApplyTx(tx)
}

func (l *Local) ID() string              { return l.id }
func (l *Local) Machine() *state.Machine { return l.machine }
func (l *Local) IsAuthority() bool       { return true }
func (l *Local) LeaderAddr() string      { return "" }

func isLeadershipErr(err error) bool {
	return errors.Is(err, raft.ErrNotLeader) ||
		errors.Is(err, raft.ErrLeadershipLost) ||
		errors.Is(err, raft.ErrLeadershipTransferInProgress)
}

// notLeader converts raft leadership errors into a retryable failure naming the leader.
func notLeader(err error, leader string) error {
	return failure.Transient("NOT_LEADER", "%v", err).WithDetail("leader", leader)
}
