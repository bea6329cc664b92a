package dispatch

import (
	"fmt"
	"io"

	"github.com/gobwas/glob"

	"github.com/moose-platform/moosecore/common/go/recbuf"
	"github.com/moose-platform/moosecore/internal/registry"
)

// Report dumps buffer sizes and decodes every non-empty buffer for every
// registered group, writing one human-readable line per buffer/record to
// w (C8, spec §4.8). When namePattern is non-empty it is compiled as a
// glob (see SPEC_FULL.md's domain-stack table) and only records whose
// source or target element name matches it are printed.
func (m *GroupManager) Report(w io.Writer, reg *registry.Registry, namePattern string) error {
	var matcher glob.Glob
	if namePattern != "" {
		g, err := glob.Compile(namePattern)
		if err != nil {
			return fmt.Errorf("report: compile pattern %q: %w", namePattern, err)
		}
		matcher = g
	}

	m.mu.Lock()
	groups := append([]SimGroup(nil), m.groups...)
	m.mu.Unlock()

	for _, g := range groups {
		if err := m.reportGroup(w, g, reg, matcher); err != nil {
			return err
		}
	}
	return nil
}

func (m *GroupManager) reportGroup(w io.Writer, g SimGroup, reg *registry.Registry, matcher glob.Glob) error {
	inbound, err := m.Inbound(g.ID)
	if err != nil {
		return err
	}
	local, err := m.Local(g.ID)
	if err != nil {
		return err
	}
	mpiBuf, err := m.MPI(g.ID)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "group %d: threads=[%d,%d) nodes=%d inbound=%dB local=%dB mpi=%dB\n",
		g.ID, g.StartThread, g.StartThread+g.NumThreads, g.NumNodes, inbound.Len(), local.Len(), mpiBuf.Len())

	start, end := g.ThreadsOf()
	for t := start; t < end; t++ {
		tq, err := m.ThreadQueue(t)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "  thread %d: out=%dB blocks=%d\n", t, tq.Out().Len(), len(tq.Blocks()))
		if tq.Out().Len() > recbuf.PrefixSize {
			if err := reportBuffer(w, fmt.Sprintf("thread[%d]", t), tq.Out().Bytes(), reg, matcher); err != nil {
				return err
			}
		}
	}

	for _, named := range []struct {
		label string
		buf   *recbuf.Buffer
	}{
		{"inbound", inbound},
		{"local", local},
	} {
		if named.buf.Len() <= recbuf.PrefixSize {
			continue
		}
		if err := reportBuffer(w, named.label, named.buf.Bytes(), reg, matcher); err != nil {
			return err
		}
	}

	raw := mpiBuf.Bytes()
	for i := uint32(0); i < g.NumNodes; i++ {
		lo, hi := int(i)*m.blockSize, int(i+1)*m.blockSize
		if hi > len(raw) {
			break
		}
		slot := raw[lo:hi]
		if recbuf.UsedLength(slot) <= recbuf.PrefixSize {
			continue
		}
		if err := reportBuffer(w, fmt.Sprintf("mpi[%d]", i), slot, reg, matcher); err != nil {
			return err
		}
	}
	return nil
}

func reportBuffer(w io.Writer, label string, buf []byte, reg *registry.Registry, matcher glob.Glob) error {
	return recbuf.Walk(buf, func(h recbuf.Header, payload []byte) error {
		sourceName, targetName := "?", "?"
		if binding, err := reg.GetMsg(h.MessageID); err == nil {
			source, target := binding.E1(), binding.E2()
			if !h.IsForward {
				source, target = target, source
			}
			sourceName, targetName = source.Name(), target.Name()
		}

		if matcher != nil && !matcher.Match(sourceName) && !matcher.Match(targetName) {
			return nil
		}

		fmt.Fprintf(w, "  %s: message_id=%d function_id=%d src_index=(%d,%d) size=%d source=%s target=%s\n",
			label, h.MessageID, h.FunctionID, h.SrcIndex.Row, h.SrcIndex.Field, h.Size, sourceName, targetName)
		return nil
	})
}
