package registry

import (
	"sync"

	"github.com/moose-platform/moosecore/common/go/recbuf"
)

// SimpleElement is a minimal in-memory Element, sufficient for tests and
// the cmd/simcored demo driver. It is not part of the dispatch core
// proper (the real object registry is an external collaborator per
// spec.md §1) but gives the core something concrete to dispatch against.
type SimpleElement struct {
	name   string
	global bool

	mu       sync.RWMutex
	local    map[uint32]bool
	handlers map[FunctionID]Handler
}

// NewSimpleElement creates an element. When global is true, every row is
// considered resident on every node (spec §3/§4.2's "globally replicated"
// element rule).
func NewSimpleElement(name string, global bool) *SimpleElement {
	return &SimpleElement{
		name:     name,
		global:   global,
		local:    make(map[uint32]bool),
		handlers: make(map[FunctionID]Handler),
	}
}

func (e *SimpleElement) Name() string { return e.name }

func (e *SimpleElement) IsGlobal() bool { return e.global }

// SetLocal marks rows as resident on this node. No-op (and unnecessary)
// for global elements, which are resident everywhere by definition.
func (e *SimpleElement) SetLocal(rows ...uint32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, r := range rows {
		e.local[r] = true
	}
}

func (e *SimpleElement) IsDataHere(row uint32) bool {
	if e.global {
		return true
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.local[row]
}

// RegisterHandler binds a handler function under fn.
func (e *SimpleElement) RegisterHandler(fn FunctionID, h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[fn] = h
}

func (e *SimpleElement) GetOpFunc(fn FunctionID) (Handler, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	h, ok := e.handlers[fn]
	return h, ok
}

// SimpleBinding is a 1:1 binding: the target row equals the record's
// SrcIndex.Row, and the target element is the "other end" of the
// direction the record travels.
type SimpleBinding struct {
	E1Ref, E2Ref Element
	FunctionID   FunctionID
}

func (b *SimpleBinding) E1() Element { return b.E1Ref }
func (b *SimpleBinding) E2() Element { return b.E2Ref }

func (b *SimpleBinding) Exec(h recbuf.Header, payload []byte, ctx ProcInfo) error {
	target := targetOf(b, h)
	row := h.SrcIndex.Row
	if !ExecThread(ctx, target, row) {
		return nil
	}
	handler, ok := target.GetOpFunc(b.FunctionID)
	if !ok {
		return ErrUnknownBinding
	}
	return handler.Op(h.SrcIndex, h, payload)
}

// SparseBinding fans a single send out to an arbitrary set of target rows
// per source row, modelling the original's sparse projection matrix
// (original_source/msg/SparseMsg.cpp) referenced in SPEC_FULL.md's
// supplemented features.
type SparseBinding struct {
	E1Ref, E2Ref Element
	FunctionID   FunctionID
	// Projection maps a source row to the target rows it fans out to.
	Projection map[uint32][]uint32
}

func (b *SparseBinding) E1() Element { return b.E1Ref }
func (b *SparseBinding) E2() Element { return b.E2Ref }

func (b *SparseBinding) Exec(h recbuf.Header, payload []byte, ctx ProcInfo) error {
	target := targetOf(b, h)
	handler, ok := target.GetOpFunc(b.FunctionID)
	if !ok {
		return ErrUnknownBinding
	}

	for _, row := range b.Projection[h.SrcIndex.Row] {
		if !ExecThread(ctx, target, row) {
			continue
		}
		dst := recbuf.DataId{Row: row, Field: h.SrcIndex.Field}
		if err := handler.Op(dst, h, payload); err != nil {
			return err
		}
	}
	return nil
}

// targetOf resolves the "other end" of a binding's edge given the
// record's direction flag (spec §4.6: forward -> e2, reverse -> e1).
func targetOf(b interface{ E1() Element; E2() Element }, h recbuf.Header) Element {
	if h.IsForward {
		return b.E2()
	}
	return b.E1()
}
