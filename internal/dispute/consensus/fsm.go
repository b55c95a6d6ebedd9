package consensus

import (
	"fmt"
	"io"

	"github.com/hashicorp/raft"
	"github.com/klauspost/compress/zstd"

	"github.com/canal-compras/disputa/internal/dispute/protocol"
	"github.com/canal-compras/disputa/internal/dispute/state"
)

// fsm wires raft log entries into the state machine.
type fsm struct {
	machine *state.Machine
}

func newFSM(machine *state.Machine) *fsm {
	return &fsm{machine: machine}
}

// Apply returns the machine error so the leader can hand it back to the caller.
// Followers reach the same verdict from the same log.
func (f *fsm) Apply(log *raft.Log) interface{} {
	tx, err := protocol.UnmarshalTx(log.Data)
	if err != nil {
		return fmt.Errorf("decode tx: %w", err)
	}
	if err := f.machine.ApplyTx(tx); err != nil {
		return err
	}
	return nil
}

func (f *fsm) Snapshot() (raft.FSMSnapshot, error) {
	data, err := f.machine.Marshal()
	if err != nil {
		return nil, err
	}
	return &fsmSnapshot{data: data}, nil
}

func (f *fsm) Restore(rc io.ReadCloser) error {
	defer rc.Close()
	dec, err := zstd.NewReader(rc)
	if err != nil {
		return fmt.Errorf("open snapshot: %w", err)
	}
	defer dec.Close()
	data, err := io.ReadAll(dec)
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}
	if len(data) == 0 {
		return nil
	}
	return f.machine.Unmarshal(data)
}

// fsmSnapshot persists the CBOR machine snapshot zstd-compressed.
type fsmSnapshot struct {
	data []byte
}

func (s *fsmSnapshot) Persist(sink raft.SnapshotSink) error {
	enc, err := zstd.NewWriter(sink)
	if err != nil {
		_ = sink.Cancel()
		return err
	}
	if _, err := enc.Write(s.data); err != nil {
		_ = enc.Close()
		_ = sink.Cancel()
		return err
	}
	if err := enc.Close(); err != nil {
		_ = sink.Cancel()
		return err
	}
	return sink.Close()
}

func (s *fsmSnapshot) Release() {}
