// Package exchange implements the C5 collective-communication abstraction
// of the message dispatch core: spec §4.5's two collectives, all-gather
// and root-to-all broadcast+gather, behind a single Collective interface
// so the rest of the core (internal/dispatch) is testable without a real
// cluster (see spec §9's "Collective abstraction" design note).
//
// The wire contract is spec §6's raw fixed-size byte blocks, not an RPC
// framing -- see DESIGN.md's "Why not gRPC" entry for why this package
// speaks plain TCP instead of a gRPC+protobuf stack.
package exchange

import (
	"context"
	"errors"
	"fmt"
)

// ErrCollective wraps any failure of the underlying collective transport
// (spec §7's CollectiveFailure taxonomy entry).
var ErrCollective = errors.New("exchange: collective failed")

// Collective is the transport a node uses to exchange BlockSize-sized
// buffers with its peers. Every method is a synchronisation point: no
// method returns until every participating node (for all-gather) or every
// non-root node (for root broadcast) has observed the exchange, matching
// spec §5's "the collective call itself is the synchronisation point".
type Collective interface {
	// NumNodes is the number of nodes participating in this collective
	// (the owning group's SimGroup.NumNodes).
	NumNodes() int
	// NodeIndex is this process's 0-based index among NumNodes.
	NodeIndex() int

	// AllGather contributes send (exactly blockSize bytes) and returns a
	// buffer of blockSize*NumNodes bytes, slot i holding node i's
	// contribution (spec §4.5, §6's MPI_Allgather contract).
	AllGather(ctx context.Context, send []byte, blockSize int) ([]byte, error)

	// RootBroadcastAndGather broadcasts the root's (node 0's) send buffer
	// to every node, then gathers every node's send buffer back to the
	// root (spec §4.5, §6's MPI_Bcast+MPI_Gather contract). On a
	// non-root node, gathered is nil. On the root, broadcast is a copy of
	// its own send buffer and gathered has blockSize*NumNodes bytes, slot
	// i holding node i's contribution.
	RootBroadcastAndGather(ctx context.Context, send []byte, blockSize int) (broadcast, gathered []byte, err error)
}

func wrapf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrCollective}, args...)...)
}
