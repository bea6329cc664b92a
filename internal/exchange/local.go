package exchange

import "context"

// Local is the single-node no-op Collective: every call is a no-op that
// simply echoes the caller's own contribution back, matching spec §4.5's
// "when num_nodes == 1 the call is a no-op" clause for both collectives.
type Local struct{}

// NewLocal returns a single-node Collective.
func NewLocal() Local { return Local{} }

func (Local) NumNodes() int  { return 1 }
func (Local) NodeIndex() int { return 0 }

func (Local) AllGather(_ context.Context, send []byte, blockSize int) ([]byte, error) {
	if len(send) != blockSize {
		return nil, wrapf("all-gather: send buffer is %d bytes, want %d", len(send), blockSize)
	}
	out := make([]byte, blockSize)
	copy(out, send)
	return out, nil
}

func (Local) RootBroadcastAndGather(_ context.Context, send []byte, blockSize int) ([]byte, []byte, error) {
	if len(send) != blockSize {
		return nil, nil, wrapf("root-to-all: send buffer is %d bytes, want %d", len(send), blockSize)
	}
	broadcast := make([]byte, blockSize)
	copy(broadcast, send)
	gathered := make([]byte, blockSize)
	copy(gathered, send)
	return broadcast, gathered, nil
}
