package dispatch

import (
	"fmt"

	"github.com/moose-platform/moosecore/common/go/recbuf"
	"github.com/moose-platform/moosecore/internal/registry"
)

// DispatchOne resolves and invokes the handler for a single record (C6,
// spec §4.6). When the record carries an explicit target, the trailing
// DataId in its payload picks the target row directly and ExecThread
// decides whether the current (node, thread) executes it; otherwise the
// record's binding is asked to fan it out itself.
func DispatchOne(reg *registry.Registry, h recbuf.Header, payload []byte, ctx registry.ProcInfo) error {
	if h.UseExplicitTarget {
		if len(payload) < recbuf.DataIdSize {
			return fmt.Errorf("%w: explicit-target record payload shorter than a DataId", recbuf.ErrCorruptBuffer)
		}
		targetRow := recbuf.DecodeDataId(payload[len(payload)-recbuf.DataIdSize:])
		body := payload[:len(payload)-recbuf.DataIdSize]

		binding, err := reg.GetMsg(h.MessageID)
		if err != nil {
			return err
		}
		target := binding.E1()
		if h.IsForward {
			target = binding.E2()
		}

		if !registry.ExecThread(ctx, target, targetRow.Row) {
			return nil
		}
		handler, ok := target.GetOpFunc(h.FunctionID)
		if !ok {
			return registry.ErrUnknownBinding
		}
		return handler.Op(targetRow, h, body)
	}

	binding, err := reg.GetMsg(h.MessageID)
	if err != nil {
		return err
	}
	return binding.Exec(h, payload, ctx)
}

// ReadBuffer walks buf (C1's Walk) and dispatches each record in turn,
// then resets the buffer to just its length prefix (spec §4.6's
// read_buffer). The buffer is treated as read-only for the duration of the
// walk. A buffer whose length prefix is smaller than PrefixSize is rejected
// with ErrPrecondition.
func ReadBuffer(buf *recbuf.Buffer, reg *registry.Registry, ctx registry.ProcInfo) error {
	if used := buf.UsedLength(); used < recbuf.PrefixSize {
		return fmt.Errorf("%w: buffer length prefix %d is smaller than the prefix size", ErrPrecondition, used)
	}
	err := buf.Walk(func(h recbuf.Header, payload []byte) error {
		return DispatchOne(reg, h, payload, ctx)
	})
	buf.Reset()
	return err
}

// ReadMPI walks every node slot of a group's MPI buffer except the local
// node's own slot, dispatching each record and then resetting that slot's
// length prefix to PrefixSize (spec §4.6's read_mpi).
func (m *GroupManager) ReadMPI(groupID uint32, reg *registry.Registry, ctx registry.ProcInfo) error {
	g, err := m.Group(groupID)
	if err != nil {
		return err
	}
	mpiBuf, err := m.MPI(groupID)
	if err != nil {
		return err
	}

	raw := mpiBuf.Bytes()
	for i := uint32(0); i < g.NumNodes; i++ {
		if i == ctx.NodeIndex {
			continue
		}

		lo, hi := int(i)*m.blockSize, int(i+1)*m.blockSize
		if hi > len(raw) {
			return fmt.Errorf("%w: MPI buffer too small for node slot %d", ErrPrecondition, i)
		}
		slot := raw[lo:hi]

		if err := recbuf.Walk(slot, func(h recbuf.Header, payload []byte) error {
			return DispatchOne(reg, h, payload, ctx)
		}); err != nil {
			return err
		}
		recbuf.SetUsedLength(slot, recbuf.PrefixSize)
	}
	return nil
}
