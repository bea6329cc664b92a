// Package registry defines the contracts the dispatch core consumes from
// the (out-of-scope, per spec.md §1) object registry and element handler
// tables, plus a minimal in-memory reference implementation used by tests
// and the cmd/simcored demo driver.
//
// This mirrors coordinator/internal/registry: a name-or-id
// keyed map guarded by a mutex, with a small typed lookup API -- adapted
// here from "named module" to "message binding" lookup.
package registry

import (
	"fmt"
	"sync"

	"github.com/moose-platform/moosecore/common/go/recbuf"
)

// MessageID is an opaque handle into the registry identifying a binding
// between two elements (spec §3's "message_id").
type MessageID = uint64

// FunctionID is an opaque handle into a target element's handler table
// (spec §3's "function_id").
type FunctionID = uint32

// SetMsgID is the reserved binding id that always routes to lane 1
// (node-local), matching the original's Msg::setMsg (spec §6, "External
// interfaces").
const SetMsgID MessageID = 0

// DataHandler is the per-element contract the lane-assignment and
// dispatch-fanout logic consult: whether the element is replicated on
// every node, and whether a given row is resident on this node.
type DataHandler interface {
	// IsGlobal reports whether this element is replicated on every node,
	// so records addressed to it must never leave their origin node
	// (spec §4.2's lane rule, §4.6's replication policy).
	IsGlobal() bool
	// IsDataHere reports whether row is resident on this node, consulted
	// by the execThread fan-out predicate for globally replicated
	// elements (always true) to pick the row's owning local thread.
	IsDataHere(row uint32) bool
}

// Element is the registry's view of one addressable simulation element: a
// name (for diagnostics, see C8) plus its handler function table and
// residency contract.
type Element interface {
	DataHandler
	// Name is used only for diagnostics (C8 introspection).
	Name() string
	// GetOpFunc resolves a handler by function id.
	GetOpFunc(fn FunctionID) (Handler, bool)
}

// Handler is a target element's registered operation, invoked once per
// delivered record against one target row.
type Handler interface {
	Op(target recbuf.DataId, h recbuf.Header, payload []byte) error
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(target recbuf.DataId, h recbuf.Header, payload []byte) error

func (f HandlerFunc) Op(target recbuf.DataId, h recbuf.Header, payload []byte) error {
	return f(target, h, payload)
}

// Binding is a registered directed edge between two elements (spec §6's
// Msg::getMsg contract). Exec fans a record out to zero or more target
// rows according to the binding's own type (simple 1:1, sparse
// projection, broadcast, ...).
type Binding interface {
	E1() Element
	E2() Element
	// Exec is called by the dispatch stage when the record does not carry
	// an explicit target (spec §4.6).
	Exec(h recbuf.Header, payload []byte, ctx ProcInfo) error
}

// ProcInfo is the thread/node identity the tick orchestrator (C7) carries
// into dispatch, and that a binding's Exec (and the execThread fan-out
// predicate it implements, spec §4.6/§8) consults to decide whether the
// current worker is responsible for a given delivery. It mirrors the
// original's Qinfo bundle (see SPEC_FULL.md's supplemented features).
type ProcInfo struct {
	NodeIndex        uint32
	NumNodesInGroup  uint32
	ThreadIndexGroup uint32
	NumThreadsInGroup uint32
	GroupID          uint32
}

// ExecThread implements the execThread fan-out predicate (spec §4.6): for
// a globally replicated target, every node's matching local thread
// executes, since the target is resident everywhere (spec §8, property 7);
// for a partitioned target, row r is owned by node (r % NumNodesInGroup)
// and, within that node, by thread (r / NumNodesInGroup) % NumThreadsInGroup,
// so exactly one (node, thread) pair across the whole cluster satisfies it
// for any given row (spec §8, property 8).
func ExecThread(ctx ProcInfo, target DataHandler, row uint32) bool {
	if ctx.NumThreadsInGroup == 0 {
		return true
	}

	if target.IsGlobal() {
		return target.IsDataHere(row) && row%ctx.NumThreadsInGroup == ctx.ThreadIndexGroup
	}

	if ctx.NumNodesInGroup == 0 {
		return true
	}
	ownerNode := row % ctx.NumNodesInGroup
	if ownerNode != ctx.NodeIndex {
		return false
	}
	ownerThread := (row / ctx.NumNodesInGroup) % ctx.NumThreadsInGroup
	return ownerThread == ctx.ThreadIndexGroup
}

// Registry owns the set of registered bindings, keyed by MessageID.
type Registry struct {
	mu       sync.RWMutex
	bindings map[MessageID]Binding
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{bindings: make(map[MessageID]Binding)}
}

// Register adds or replaces a binding under id.
func (r *Registry) Register(id MessageID, b Binding) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bindings[id] = b
}

// GetMsg resolves a binding by id, matching the external interface's
// Msg::getMsg contract (spec §6).
func (r *Registry) GetMsg(id MessageID) (Binding, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.bindings[id]
	if !ok {
		return nil, fmt.Errorf("%w: message id %d", ErrUnknownBinding, id)
	}
	return b, nil
}
