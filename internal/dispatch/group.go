package dispatch

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/moose-platform/moosecore/common/go/recbuf"
)

// SimGroup is a contiguous range of worker threads, on every participating
// node, that share an inbound buffer and exchange together (spec §3).
type SimGroup struct {
	ID          uint32
	NumThreads  uint32
	StartThread uint32
	NumNodes    uint32
}

// GroupManager registers groups and owns every buffer the dispatch core
// touches: each group's inbound and MPI buffers, the shared local buffer,
// and every thread's output buffer/descriptor list, indexed by *global*
// thread slot (spec §4.3; see SPEC_FULL.md's resolution of the qBlock_
// indexing bug -- groups never alias each other's thread state).
type GroupManager struct {
	mu sync.Mutex

	blockSize int
	groups    []SimGroup
	threads   []*ThreadQueue
	inbound   []*recbuf.Buffer
	local     []*recbuf.Buffer
	mpi       []*recbuf.Buffer

	log *zap.SugaredLogger
}

// Option configures a GroupManager.
type Option func(*GroupManager)

// WithLog sets the logger used by the manager.
func WithLog(log *zap.SugaredLogger) Option {
	return func(m *GroupManager) { m.log = log }
}

// NewGroupManager creates an empty group manager. blockSize is the fixed
// BLOCK_SIZE of spec §3, set once per manager (the capacity every inbound
// buffer is reset to, and the per-node slot width of every MPI buffer).
func NewGroupManager(blockSize int, opts ...Option) *GroupManager {
	m := &GroupManager{blockSize: blockSize, log: zap.NewNop().Sugar()}
	for _, o := range opts {
		o(m)
	}
	return m
}

// BlockSize returns the manager's fixed buffer capacity.
func (m *GroupManager) BlockSize() int {
	return m.blockSize
}

// AddGroup registers a new group, reserving numThreads new thread output
// buffers (at the next dense global thread slot), one inbound buffer, and
// one MPI buffer sized BlockSize*numNodes (spec §4.3).
func (m *GroupManager) AddGroup(numThreads, numNodes uint32) (uint32, error) {
	if numThreads == 0 {
		return 0, fmt.Errorf("%w: a group needs at least one thread", ErrPrecondition)
	}
	if numNodes == 0 {
		return 0, fmt.Errorf("%w: a group needs at least one node", ErrPrecondition)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	id := uint32(len(m.groups))
	startThread := uint32(len(m.threads))

	g := SimGroup{ID: id, NumThreads: numThreads, StartThread: startThread, NumNodes: numNodes}
	m.groups = append(m.groups, g)

	for i := uint32(0); i < numThreads; i++ {
		m.threads = append(m.threads, NewThreadQueue())
	}

	m.inbound = append(m.inbound, recbuf.NewBuffer(m.blockSize))
	m.local = append(m.local, recbuf.NewBuffer(m.blockSize))
	mpi := recbuf.NewBuffer(m.blockSize * int(numNodes))
	if n := m.blockSize*int(numNodes) - recbuf.PrefixSize; n > 0 {
		mpi.AppendRaw(make([]byte, n))
		recbuf.SetUsedLength(mpi.Bytes(), recbuf.PrefixSize)
	}
	m.mpi = append(m.mpi, mpi)

	m.log.Infow("registered simulation group",
		zap.Uint32("group_id", id),
		zap.Uint32("num_threads", numThreads),
		zap.Uint32("start_thread", startThread),
		zap.Uint32("num_nodes", numNodes),
	)

	return id, nil
}

// Group returns the SimGroup registered under id.
func (m *GroupManager) Group(id uint32) (SimGroup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if int(id) >= len(m.groups) {
		return SimGroup{}, fmt.Errorf("%w: group id %d out of range", ErrPrecondition, id)
	}
	return m.groups[id], nil
}

// ThreadQueue returns the thread-local output buffer for the given global
// thread slot (spec §4.3's "thread slots are dense").
func (m *GroupManager) ThreadQueue(globalThread uint32) (*ThreadQueue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if int(globalThread) >= len(m.threads) {
		return nil, fmt.Errorf("%w: thread slot %d out of range", ErrPrecondition, globalThread)
	}
	return m.threads[globalThread], nil
}

// Inbound returns the group's inbound (cluster-wide) buffer.
func (m *GroupManager) Inbound(groupID uint32) (*recbuf.Buffer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if int(groupID) >= len(m.inbound) {
		return nil, fmt.Errorf("%w: group id %d out of range", ErrPrecondition, groupID)
	}
	return m.inbound[groupID], nil
}

// Local returns the group's shared node-local buffer.
func (m *GroupManager) Local(groupID uint32) (*recbuf.Buffer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if int(groupID) >= len(m.local) {
		return nil, fmt.Errorf("%w: group id %d out of range", ErrPrecondition, groupID)
	}
	return m.local[groupID], nil
}

// MPI returns the group's MPI exchange buffer (BlockSize*NumNodes bytes).
func (m *GroupManager) MPI(groupID uint32) (*recbuf.Buffer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if int(groupID) >= len(m.mpi) {
		return nil, fmt.Errorf("%w: group id %d out of range", ErrPrecondition, groupID)
	}
	return m.mpi[groupID], nil
}

// ThreadsOf returns the global thread-slot range [start, start+numThreads)
// owned by a group, for iterating in ascending thread-id order (spec
// §4.4's merge ordering guarantee).
func (g SimGroup) ThreadsOf() (start, end uint32) {
	return g.StartThread, g.StartThread + g.NumThreads
}
