package dispatch_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/moose-platform/moosecore/common/go/recbuf"
	"github.com/moose-platform/moosecore/internal/dispatch"
	"github.com/moose-platform/moosecore/internal/registry"
)

// S3: two threads each append two lane-0 records; after Merge the group's
// inbound buffer reads them back in thread-id-then-append order.
func Test_MergeOrdersByThreadThenAppend(t *testing.T) {
	sink := registry.NewSimpleElement("sink", false)
	sink.SetLocal(0)
	reg := registry.New()
	newNonGlobalBinding(reg, 1, sink)

	manager := dispatch.NewGroupManager(4096)
	groupID, err := manager.AddGroup(2, 1)
	require.NoError(t, err)

	header := recbuf.Header{IsForward: true, MessageID: 1, SrcIndex: recbuf.DataId{Row: 0}}

	t0, err := manager.ThreadQueue(0)
	require.NoError(t, err)
	require.NoError(t, t0.Append(reg, header, []byte("t0a")))
	require.NoError(t, t0.Append(reg, header, []byte("t0b")))

	t1, err := manager.ThreadQueue(1)
	require.NoError(t, err)
	require.NoError(t, t1.Append(reg, header, []byte("t1a")))
	require.NoError(t, t1.Append(reg, header, []byte("t1b")))

	require.NoError(t, manager.Merge(groupID))

	inbound, err := manager.Inbound(groupID)
	require.NoError(t, err)

	var order []string
	require.NoError(t, inbound.Walk(func(_ recbuf.Header, payload []byte) error {
		order = append(order, string(payload))
		return nil
	}))

	require.Equal(t, []string{"t0a", "t0b", "t1a", "t1b"}, order)

	require.Len(t, t0.Blocks(), 0)
	require.Len(t, t1.Blocks(), 0)
}

// Groups registered after others never alias an earlier group's thread
// slots (spec §9's resolved qBlock_ indexing bug).
func Test_AddGroupAssignsDenseGlobalThreadSlots(t *testing.T) {
	manager := dispatch.NewGroupManager(1024)

	g0, err := manager.AddGroup(3, 1)
	require.NoError(t, err)
	g1, err := manager.AddGroup(2, 1)
	require.NoError(t, err)

	group0, err := manager.Group(g0)
	require.NoError(t, err)
	group1, err := manager.Group(g1)
	require.NoError(t, err)

	require.Equal(t, uint32(0), group0.StartThread)
	require.Equal(t, uint32(3), group1.StartThread)

	start, end := group1.ThreadsOf()
	require.Equal(t, uint32(3), start)
	require.Equal(t, uint32(5), end)
}

// Each thread owns its own ThreadQueue exclusively during production (spec
// §5), so concurrent appends from different threads of the same group
// never need external locking; this fans the append across goroutines with
// errgroup and checks every record survives the merge.
func Test_MergeToleratesConcurrentAppendAcrossThreads(t *testing.T) {
	const numThreads = 8

	sink := registry.NewSimpleElement("sink", false)
	sink.SetLocal(0)
	reg := registry.New()
	newNonGlobalBinding(reg, 1, sink)

	manager := dispatch.NewGroupManager(4096)
	groupID, err := manager.AddGroup(numThreads, 1)
	require.NoError(t, err)

	header := recbuf.Header{IsForward: true, MessageID: 1, SrcIndex: recbuf.DataId{Row: 0}}

	var g errgroup.Group
	for i := 0; i < numThreads; i++ {
		i := i
		g.Go(func() error {
			tq, err := manager.ThreadQueue(uint32(i))
			if err != nil {
				return err
			}
			return tq.Append(reg, header, []byte(fmt.Sprintf("t%d", i)))
		})
	}
	require.NoError(t, g.Wait())

	require.NoError(t, manager.Merge(groupID))

	inbound, err := manager.Inbound(groupID)
	require.NoError(t, err)

	var seen []string
	require.NoError(t, inbound.Walk(func(_ recbuf.Header, payload []byte) error {
		seen = append(seen, string(payload))
		return nil
	}))
	require.Len(t, seen, numThreads)
}
