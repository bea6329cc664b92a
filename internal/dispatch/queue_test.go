package dispatch_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moose-platform/moosecore/common/go/recbuf"
	"github.com/moose-platform/moosecore/internal/dispatch"
	"github.com/moose-platform/moosecore/internal/registry"
)

func newNonGlobalBinding(reg *registry.Registry, id registry.MessageID, sink *registry.SimpleElement) {
	src := registry.NewSimpleElement("src", false)
	reg.Register(id, &registry.SimpleBinding{E1Ref: src, E2Ref: sink, FunctionID: 1})
}

// S2: a single thread appending lane0, lane0, lane1, lane1, lane0 records
// ends up with exactly three coalesced block descriptors.
func Test_ThreadQueueCoalescesAdjacentSameLaneDescriptors(t *testing.T) {
	sink := registry.NewSimpleElement("sink", false)
	sink.SetLocal(0)

	reg := registry.New()
	newNonGlobalBinding(reg, 1, sink)

	tq := dispatch.NewThreadQueue()

	lane0 := recbuf.Header{IsForward: true, MessageID: 1, SrcIndex: recbuf.DataId{Row: 0}}
	lane1 := recbuf.Header{IsForward: true, MessageID: registry.SetMsgID, SrcIndex: recbuf.DataId{Row: 0}}

	payload := []byte("X")
	require.NoError(t, tq.Append(reg, lane0, payload))
	require.NoError(t, tq.Append(reg, lane0, payload))
	require.NoError(t, tq.Append(reg, lane1, payload))
	require.NoError(t, tq.Append(reg, lane1, payload))
	require.NoError(t, tq.Append(reg, lane0, payload))

	recordSize := recbuf.RecordSize(len(payload))
	blocks := tq.Blocks()
	require.Len(t, blocks, 3)
	assert.Equal(t, dispatch.LaneCluster, blocks[0].Lane)
	assert.Equal(t, 2*recordSize, blocks[0].Size)
	assert.Equal(t, dispatch.LaneLocal, blocks[1].Lane)
	assert.Equal(t, 2*recordSize, blocks[1].Size)
	assert.Equal(t, dispatch.LaneCluster, blocks[2].Lane)
	assert.Equal(t, recordSize, blocks[2].Size)
}

func Test_ThreadQueueAppendWithTargetSetsExplicitFlag(t *testing.T) {
	sink := registry.NewSimpleElement("sink", false)
	reg := registry.New()
	newNonGlobalBinding(reg, 1, sink)

	tq := dispatch.NewThreadQueue()
	h := recbuf.Header{IsForward: true, MessageID: 1}
	require.NoError(t, tq.AppendWithTarget(reg, h, []byte("p"), recbuf.DataId{Row: 7}))

	var got recbuf.Header
	var payload []byte
	require.NoError(t, tq.Out().Walk(func(rh recbuf.Header, rp []byte) error {
		got = rh
		payload = append([]byte(nil), rp...)
		return nil
	}))

	assert.True(t, got.UseExplicitTarget)
	target := recbuf.DecodeDataId(payload[len(payload)-recbuf.DataIdSize:])
	assert.Equal(t, uint32(7), target.Row)
}
