package dispatch

import (
	"fmt"

	"go.uber.org/zap"
)

// Merge runs the merge stage (C4) for a group: single-threaded, with every
// other thread of the group quiescent (guaranteed by an external barrier,
// spec §5). It concatenates every thread's output buffer into the group's
// inbound buffer (lane 0 records) and shared local buffer (lane 1
// records), in ascending thread-id then append order, then clears every
// thread's output buffer and descriptor list.
func (m *GroupManager) Merge(groupID uint32) error {
	g, err := m.Group(groupID)
	if err != nil {
		return err
	}

	inbound, err := m.Inbound(groupID)
	if err != nil {
		return err
	}
	local, err := m.Local(groupID)
	if err != nil {
		return err
	}

	inbound.Reset()
	local.Reset()

	start, end := g.ThreadsOf()
	for t := start; t < end; t++ {
		tq, err := m.ThreadQueue(t)
		if err != nil {
			return err
		}

		out := tq.Out().Bytes()
		for _, b := range tq.Blocks() {
			raw := out[b.Start : b.Start+b.Size]
			switch b.Lane {
			case LaneCluster:
				inbound.AppendRaw(raw)
			case LaneLocal:
				local.AppendRaw(raw)
			default:
				return fmt.Errorf("%w: thread %d has unknown lane %d", ErrPrecondition, t, b.Lane)
			}
		}

		tq.Clear()
	}

	m.log.Debugw("merged group output",
		zap.Uint32("group_id", groupID),
		zap.Int("inbound_bytes", inbound.Len()),
		zap.Int("local_bytes", local.Len()),
	)

	return nil
}

// checkFitsBlock enforces the precondition that a merged inbound buffer
// fits within BlockSize before it is handed to the exchange stage (spec
// §4.4's "Precondition" and §9's resolved open question: this is checked,
// never silently truncated).
func (m *GroupManager) checkFitsBlock(usedBytes int) error {
	if usedBytes > m.blockSize {
		return fmt.Errorf("%w: %d bytes exceeds block size %d", ErrOverflow, usedBytes, m.blockSize)
	}
	return nil
}
