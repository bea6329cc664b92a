package dispatch_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/moose-platform/moosecore/common/go/recbuf"
	"github.com/moose-platform/moosecore/internal/dispatch"
	"github.com/moose-platform/moosecore/internal/exchange"
	"github.com/moose-platform/moosecore/internal/registry"
)

// S1: single thread, single node. Three records dispatched via bindings
// m1, m2, m1 fire their handlers in append order, and the group's buffers
// end empty.
func Test_ClearQueueDispatchesInAppendOrder(t *testing.T) {
	sink := registry.NewSimpleElement("sink", false)
	sink.SetLocal(0)

	var calls []string
	sink.RegisterHandler(1, registry.HandlerFunc(func(_ recbuf.DataId, _ recbuf.Header, payload []byte) error {
		calls = append(calls, "m1:"+string(payload))
		return nil
	}))
	sink.RegisterHandler(2, registry.HandlerFunc(func(_ recbuf.DataId, _ recbuf.Header, payload []byte) error {
		calls = append(calls, "m2:"+string(payload))
		return nil
	}))

	reg := registry.New()
	src := registry.NewSimpleElement("src", false)
	reg.Register(1, &registry.SimpleBinding{E1Ref: src, E2Ref: sink, FunctionID: 1})
	reg.Register(2, &registry.SimpleBinding{E1Ref: src, E2Ref: sink, FunctionID: 2})

	manager := dispatch.NewGroupManager(4096)
	groupID, err := manager.AddGroup(1, 1)
	require.NoError(t, err)

	tq, err := manager.ThreadQueue(0)
	require.NoError(t, err)

	row := recbuf.DataId{Row: 0}
	require.NoError(t, tq.Append(reg, recbuf.Header{IsForward: true, MessageID: 1, SrcIndex: row}, []byte("A")))
	require.NoError(t, tq.Append(reg, recbuf.Header{IsForward: true, MessageID: 2, SrcIndex: row}, []byte("BB")))
	require.NoError(t, tq.Append(reg, recbuf.Header{IsForward: true, MessageID: 1, SrcIndex: row}, []byte("CCC")))

	proc := registry.ProcInfo{NodeIndex: 0, NumNodesInGroup: 1, ThreadIndexGroup: 0, NumThreadsInGroup: 1, GroupID: groupID}
	require.NoError(t, manager.ClearQueue(proc, reg))

	require.Equal(t, []string{"m1:A", "m2:BB", "m1:CCC"}, calls)

	inbound, err := manager.Inbound(groupID)
	require.NoError(t, err)
	local, err := manager.Local(groupID)
	require.NoError(t, err)
	require.Equal(t, recbuf.PrefixSize, inbound.Len())
	require.Equal(t, recbuf.PrefixSize, local.Len())
}

// S6: a record addressed to a globally-replicated element always routes
// to the node-local lane, never to the cluster (MPI) lane.
func Test_GlobalTargetRoutesToLocalLane(t *testing.T) {
	global := registry.NewSimpleElement("fields", true)

	var invoked int
	global.RegisterHandler(1, registry.HandlerFunc(func(_ recbuf.DataId, _ recbuf.Header, _ []byte) error {
		invoked++
		return nil
	}))

	src := registry.NewSimpleElement("particles", false)
	reg := registry.New()
	reg.Register(1, &registry.SimpleBinding{E1Ref: src, E2Ref: global, FunctionID: 1})

	manager := dispatch.NewGroupManager(4096)
	groupID, err := manager.AddGroup(1, 1)
	require.NoError(t, err)

	tq, err := manager.ThreadQueue(0)
	require.NoError(t, err)
	require.NoError(t, tq.Append(reg, recbuf.Header{IsForward: true, MessageID: 1, SrcIndex: recbuf.DataId{Row: 3}}, []byte("v")))

	require.Len(t, tq.Blocks(), 1)
	require.Equal(t, dispatch.LaneLocal, tq.Blocks()[0].Lane)

	proc := registry.ProcInfo{NodeIndex: 0, NumNodesInGroup: 1, ThreadIndexGroup: 0, NumThreadsInGroup: 1, GroupID: groupID}
	require.NoError(t, manager.ClearQueue(proc, reg))
	require.Equal(t, 1, invoked)
}

// S7: an explicit-target record addressed to a globally replicated
// element executes on every node's designated local thread, not on a
// single cluster-wide owner picked by the row-sharded formula.
func Test_DispatchOneExplicitTargetReplicatesGlobalAcrossNodes(t *testing.T) {
	const numNodes = 3

	src := registry.NewSimpleElement("particles", false)
	global := registry.NewSimpleElement("fields", true)

	var calls int
	global.RegisterHandler(1, registry.HandlerFunc(func(_ recbuf.DataId, _ recbuf.Header, _ []byte) error {
		calls++
		return nil
	}))

	reg := registry.New()
	reg.Register(1, &registry.SimpleBinding{E1Ref: src, E2Ref: global, FunctionID: 1})

	payload := append([]byte("v"), make([]byte, recbuf.DataIdSize)...)
	recbuf.DataId{Row: 9}.Encode(payload[len(payload)-recbuf.DataIdSize:])
	h := recbuf.Header{IsForward: true, MessageID: 1, FunctionID: 1, UseExplicitTarget: true}

	for node := uint32(0); node < numNodes; node++ {
		ctx := registry.ProcInfo{NodeIndex: node, NumNodesInGroup: numNodes, ThreadIndexGroup: 0, NumThreadsInGroup: 1}
		require.NoError(t, dispatch.DispatchOne(reg, h, payload, ctx))
	}
	require.Equal(t, numNodes, calls)
}

// S5-shaped sanity check at the orchestrator level: with a single-node
// Collective, MPIClearQueue behaves exactly like ClearQueue (no exchange
// is ever invoked).
func Test_MPIClearQueueSingleNodeMatchesClearQueue(t *testing.T) {
	sink := registry.NewSimpleElement("sink", false)
	sink.SetLocal(0)

	var invoked int
	sink.RegisterHandler(1, registry.HandlerFunc(func(_ recbuf.DataId, _ recbuf.Header, _ []byte) error {
		invoked++
		return nil
	}))

	src := registry.NewSimpleElement("src", false)
	reg := registry.New()
	reg.Register(1, &registry.SimpleBinding{E1Ref: src, E2Ref: sink, FunctionID: 1})

	manager := dispatch.NewGroupManager(4096)
	groupID, err := manager.AddGroup(1, 1)
	require.NoError(t, err)

	tq, err := manager.ThreadQueue(0)
	require.NoError(t, err)
	require.NoError(t, tq.Append(reg, recbuf.Header{IsForward: true, MessageID: 1, SrcIndex: recbuf.DataId{Row: 0}}, []byte("v")))

	proc := registry.ProcInfo{NodeIndex: 0, NumNodesInGroup: 1, ThreadIndexGroup: 0, NumThreadsInGroup: 1, GroupID: groupID}
	require.NoError(t, manager.MPIClearQueue(context.Background(), proc, reg, exchange.NewLocal()))
	require.Equal(t, 1, invoked)
}
