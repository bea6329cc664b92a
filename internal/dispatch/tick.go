package dispatch

import (
	"context"
	"fmt"

	"github.com/moose-platform/moosecore/common/go/recbuf"
	"github.com/moose-platform/moosecore/internal/exchange"
	"github.com/moose-platform/moosecore/internal/registry"
)

// ClearQueue is the single-node-optimised tick entry point (spec §4.7):
// merge, then read the local and inbound buffers directly -- no
// collective is ever invoked, so this path never needs an
// exchange.Collective.
func (m *GroupManager) ClearQueue(proc registry.ProcInfo, reg *registry.Registry) error {
	if err := m.Merge(proc.GroupID); err != nil {
		return err
	}

	local, err := m.Local(proc.GroupID)
	if err != nil {
		return err
	}
	if err := ReadBuffer(local, reg, proc); err != nil {
		return err
	}

	inbound, err := m.Inbound(proc.GroupID)
	if err != nil {
		return err
	}
	if err := ReadBuffer(inbound, reg, proc); err != nil {
		return err
	}

	inbound.ResizeTo(m.blockSize)
	return nil
}

// MPIClearQueue is the multi-node tick entry point (spec §4.7): merge,
// then -- when the group spans more than one node -- broadcast the
// controller's inbound buffer and gather every node's inbound buffer back
// to it, before reading local, inbound, and (non-local) MPI records.
func (m *GroupManager) MPIClearQueue(ctx context.Context, proc registry.ProcInfo, reg *registry.Registry, coll exchange.Collective) error {
	if err := m.Merge(proc.GroupID); err != nil {
		return err
	}

	g, err := m.Group(proc.GroupID)
	if err != nil {
		return err
	}
	local, err := m.Local(proc.GroupID)
	if err != nil {
		return err
	}
	inbound, err := m.Inbound(proc.GroupID)
	if err != nil {
		return err
	}

	if g.NumNodes > 1 {
		if err := m.rootToAll(ctx, proc, inbound, coll); err != nil {
			return err
		}
		if err := ReadBuffer(local, reg, proc); err != nil {
			return err
		}
		if err := ReadBuffer(inbound, reg, proc); err != nil {
			return err
		}
		if err := m.ReadMPI(proc.GroupID, reg, proc); err != nil {
			return err
		}
	} else {
		if err := ReadBuffer(local, reg, proc); err != nil {
			return err
		}
		if err := ReadBuffer(inbound, reg, proc); err != nil {
			return err
		}
	}

	inbound.ResizeTo(m.blockSize)
	return nil
}

// SendAllToAll is the symmetric simulation-time collective exposed for
// bulk data exchange (spec §4.7): merge, then all-gather every node's
// inbound buffer into every node's MPI buffer, before reading local,
// inbound, and MPI records.
func (m *GroupManager) SendAllToAll(ctx context.Context, proc registry.ProcInfo, reg *registry.Registry, coll exchange.Collective) error {
	if err := m.Merge(proc.GroupID); err != nil {
		return err
	}

	g, err := m.Group(proc.GroupID)
	if err != nil {
		return err
	}
	local, err := m.Local(proc.GroupID)
	if err != nil {
		return err
	}
	inbound, err := m.Inbound(proc.GroupID)
	if err != nil {
		return err
	}

	if g.NumNodes > 1 {
		if err := m.checkFitsBlock(inbound.Len()); err != nil {
			return err
		}

		send := make([]byte, m.blockSize)
		copy(send, inbound.Bytes())

		gathered, err := coll.AllGather(ctx, send, m.blockSize)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrCollective, err)
		}

		mpiBuf, err := m.MPI(proc.GroupID)
		if err != nil {
			return err
		}
		copy(mpiBuf.Bytes(), gathered)

		if err := ReadBuffer(local, reg, proc); err != nil {
			return err
		}
		if err := ReadBuffer(inbound, reg, proc); err != nil {
			return err
		}
		if err := m.ReadMPI(proc.GroupID, reg, proc); err != nil {
			return err
		}
	} else {
		if err := ReadBuffer(local, reg, proc); err != nil {
			return err
		}
		if err := ReadBuffer(inbound, reg, proc); err != nil {
			return err
		}
	}

	inbound.ResizeTo(m.blockSize)
	return nil
}

// rootToAll implements spec §4.5's root_to_all: the controller (node 0)
// broadcasts its inbound buffer to every other node, and a gather
// collects every node's inbound buffer back into the controller's MPI
// buffer. Node 1..N-1 receive the broadcast content into slot 0 of their
// own MPI buffer (spec §8 scenario S5: non-root nodes observe the
// broadcast record via the MPI path, the root via its own inbound).
func (m *GroupManager) rootToAll(ctx context.Context, proc registry.ProcInfo, inbound *recbuf.Buffer, coll exchange.Collective) error {
	if err := m.checkFitsBlock(inbound.Len()); err != nil {
		return err
	}

	send := make([]byte, m.blockSize)
	copy(send, inbound.Bytes())

	broadcast, gathered, err := coll.RootBroadcastAndGather(ctx, send, m.blockSize)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCollective, err)
	}

	mpiBuf, err := m.MPI(proc.GroupID)
	if err != nil {
		return err
	}
	raw := mpiBuf.Bytes()

	if proc.NodeIndex == 0 {
		copy(raw, gathered)
	} else {
		copy(raw[:m.blockSize], broadcast)
	}
	return nil
}
