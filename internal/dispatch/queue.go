package dispatch

import (
	"fmt"

	"github.com/moose-platform/moosecore/common/go/recbuf"
	"github.com/moose-platform/moosecore/internal/registry"
)

// Lane selects which of the two parallel queues (C2/C4) a record belongs
// to: lane 0 is the cluster-wide queue that participates in exchange,
// lane 1 is the node-local queue that never leaves its origin node.
type Lane uint8

const (
	// LaneCluster is the cluster-wide lane (exchanged across nodes).
	LaneCluster Lane = 0
	// LaneLocal is the node-local lane (never exchanged).
	LaneLocal Lane = 1
)

// BlockDescriptor records that a contiguous byte range of a thread's
// output buffer belongs to a single lane (spec §3/§4.2).
type BlockDescriptor struct {
	Lane   Lane
	Start  int
	Size   int
}

// ThreadQueue is one worker thread's append-only output buffer plus the
// parallel list of block descriptors tagging each appended record's lane
// (C2). It is owned exclusively by its thread during production; no
// locking is used or required (spec §5).
type ThreadQueue struct {
	out    *recbuf.Buffer
	blocks []BlockDescriptor
}

// NewThreadQueue returns an empty thread-local output buffer.
func NewThreadQueue() *ThreadQueue {
	return &ThreadQueue{out: recbuf.NewBuffer(256)}
}

// Blocks returns the current block-descriptor list, in append order.
func (q *ThreadQueue) Blocks() []BlockDescriptor {
	return q.blocks
}

// Out returns the underlying output buffer.
func (q *ThreadQueue) Out() *recbuf.Buffer {
	return q.out
}

// Append writes a record with the given header and payload, then assigns
// it to a lane by consulting the registry (spec §4.2's append/assign_lane
// pair). h.Size is overwritten with len(payload).
func (q *ThreadQueue) Append(reg *registry.Registry, h recbuf.Header, payload []byte) error {
	lane, err := laneOf(reg, h)
	if err != nil {
		return fmt.Errorf("assign lane: %w", err)
	}

	offset := q.out.Len()
	q.out.AppendRecord(h, payload)
	q.extendOrAppendDescriptor(lane, offset, recbuf.RecordSize(len(payload)))
	return nil
}

// AppendWithTarget is Append, but extends the payload with the binary
// encoding of targetRow and sets UseExplicitTarget in the header (spec
// §4.2's append_with_target).
func (q *ThreadQueue) AppendWithTarget(reg *registry.Registry, h recbuf.Header, payload []byte, targetRow recbuf.DataId) error {
	h.UseExplicitTarget = true

	extended := make([]byte, len(payload)+recbuf.DataIdSize)
	copy(extended, payload)
	targetRow.Encode(extended[len(payload):])

	lane, err := laneOf(reg, h)
	if err != nil {
		return fmt.Errorf("assign lane: %w", err)
	}

	offset := q.out.Len()
	q.out.AppendRecord(h, extended)
	q.extendOrAppendDescriptor(lane, offset, recbuf.RecordSize(len(extended)))
	return nil
}

func (q *ThreadQueue) extendOrAppendDescriptor(lane Lane, offset, size int) {
	if n := len(q.blocks); n > 0 && q.blocks[n-1].Lane == lane {
		q.blocks[n-1].Size += size
		return
	}
	q.blocks = append(q.blocks, BlockDescriptor{Lane: lane, Start: offset, Size: size})
}

// Clear empties the output buffer and descriptor list (called by merge,
// spec §4.4 step 3).
func (q *ThreadQueue) Clear() {
	q.out.Reset()
	q.blocks = q.blocks[:0]
}

// laneOf implements spec §4.2's assign_lane rule: the reserved "set"
// binding, or any binding whose destination element (in the record's own
// direction) is globally replicated, routes to LaneLocal; everything else
// routes to LaneCluster.
func laneOf(reg *registry.Registry, h recbuf.Header) (Lane, error) {
	if h.MessageID == registry.SetMsgID {
		return LaneLocal, nil
	}

	binding, err := reg.GetMsg(h.MessageID)
	if err != nil {
		return 0, err
	}

	dest := binding.E1()
	if h.IsForward {
		dest = binding.E2()
	}
	if dest.IsGlobal() {
		return LaneLocal, nil
	}
	return LaneCluster, nil
}
