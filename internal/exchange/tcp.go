package exchange

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/moose-platform/moosecore/common/go/bitset"
)

const (
	kindAllGather uint32 = iota
	kindBroadcast
	kindGather
)

// frameHeaderSize is the fixed wire header preceding every frame's
// payload: epoch (8 bytes), sender index (4), kind (4), payload length (4).
const frameHeaderSize = 20

type frame struct {
	epoch   uint64
	sender  uint32
	kind    uint32
	payload []byte
}

func writeFrame(w io.Writer, f frame) error {
	header := make([]byte, frameHeaderSize)
	binary.BigEndian.PutUint64(header[0:8], f.epoch)
	binary.BigEndian.PutUint32(header[8:12], f.sender)
	binary.BigEndian.PutUint32(header[12:16], f.kind)
	binary.BigEndian.PutUint32(header[16:20], uint32(len(f.payload)))
	if _, err := w.Write(header); err != nil {
		return err
	}
	_, err := w.Write(f.payload)
	return err
}

func readFrame(r io.Reader) (frame, error) {
	header := make([]byte, frameHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return frame{}, err
	}
	f := frame{
		epoch:  binary.BigEndian.Uint64(header[0:8]),
		sender: binary.BigEndian.Uint32(header[8:12]),
		kind:   binary.BigEndian.Uint32(header[12:16]),
	}
	length := binary.BigEndian.Uint32(header[16:20])
	f.payload = make([]byte, length)
	if _, err := io.ReadFull(r, f.payload); err != nil {
		return frame{}, err
	}
	return f, nil
}

// TCPCollective is a plain-TCP stand-in for the MPI collectives of spec
// §4.5/§6: one frame per contribution, demultiplexed by a per-call epoch
// so that sequential ticks never race each other. It exists so the
// dispatch core has a real multi-process transport without depending on
// an actual MPI binding (none exists in the reference dependency set; see
// DESIGN.md).
//
// One TCPCollective instance backs exactly one group's exchange; the
// caller is expected to barrier externally (spec §5) before invoking
// either collective -- the receive side itself then acts as the
// synchronisation point, since no call returns until every peer's frame
// for that epoch has arrived.
type TCPCollective struct {
	nodeIndex int
	peers     []string

	ln  net.Listener
	log *zap.SugaredLogger

	epoch atomic.Uint64

	mu       sync.Mutex
	waiters  map[uint64]chan frame
	buffered map[uint64][]frame

	dialTimeout time.Duration
}

// NewTCPCollective starts listening on peers[nodeIndex] and returns a
// Collective that exchanges with the rest of peers. peers must be
// index-ordered so that peers[i] is node i's listen address.
func NewTCPCollective(nodeIndex int, peers []string, log *zap.SugaredLogger) (*TCPCollective, error) {
	if nodeIndex < 0 || nodeIndex >= len(peers) {
		return nil, fmt.Errorf("exchange: node index %d out of range for %d peers", nodeIndex, len(peers))
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	ln, err := net.Listen("tcp", peers[nodeIndex])
	if err != nil {
		return nil, fmt.Errorf("exchange: listen on %s: %w", peers[nodeIndex], err)
	}

	c := &TCPCollective{
		nodeIndex:   nodeIndex,
		peers:       peers,
		ln:          ln,
		log:         log.Named("exchange.tcp"),
		waiters:     make(map[uint64]chan frame),
		buffered:    make(map[uint64][]frame),
		dialTimeout: 2 * time.Second,
	}
	go c.acceptLoop()
	return c, nil
}

// Addr returns the address this collective is listening on.
func (c *TCPCollective) Addr() string {
	return c.ln.Addr().String()
}

// Close stops accepting new connections.
func (c *TCPCollective) Close() error {
	return c.ln.Close()
}

func (c *TCPCollective) acceptLoop() {
	for {
		conn, err := c.ln.Accept()
		if err != nil {
			return
		}
		go c.handleConn(conn)
	}
}

func (c *TCPCollective) handleConn(conn net.Conn) {
	defer conn.Close()
	f, err := readFrame(conn)
	if err != nil {
		c.log.Warnw("failed to read frame", zap.Error(err))
		return
	}
	c.deliver(f)
}

func (c *TCPCollective) deliver(f frame) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ch, ok := c.waiters[f.epoch]; ok {
		ch <- f
		return
	}
	c.buffered[f.epoch] = append(c.buffered[f.epoch], f)
}

// register opens a channel for epoch, replaying any frames that already
// arrived before the caller started waiting.
func (c *TCPCollective) register(epoch uint64, want int) chan frame {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan frame, want)
	for _, f := range c.buffered[epoch] {
		ch <- f
	}
	delete(c.buffered, epoch)
	c.waiters[epoch] = ch
	return ch
}

func (c *TCPCollective) unregister(epoch uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.waiters, epoch)
}

const maxDialAttempts = 5

// dialWithBackoff retries a TCP dial up to maxDialAttempts times, waiting
// an exponentially growing backoff (capped at one second) between attempts.
func (c *TCPCollective) dialWithBackoff(ctx context.Context, addr string) (net.Conn, error) {
	bo := backoff.ExponentialBackOff{
		InitialInterval:     backoff.DefaultInitialInterval,
		RandomizationFactor: backoff.DefaultRandomizationFactor,
		Multiplier:          backoff.DefaultMultiplier,
		MaxInterval:         time.Second,
	}
	bo.Reset()

	var lastErr error
	for attempt := 0; attempt < maxDialAttempts; attempt++ {
		conn, err := net.DialTimeout("tcp", addr, c.dialTimeout)
		if err == nil {
			return conn, nil
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(bo.NextBackOff()):
		}
	}
	return nil, lastErr
}

func (c *TCPCollective) dialAndSend(ctx context.Context, addr string, f frame) error {
	conn, err := c.dialWithBackoff(ctx, addr)
	if err != nil {
		return wrapf("dial %s: %v", addr, err)
	}
	defer conn.Close()

	if err := writeFrame(conn, f); err != nil {
		return wrapf("send to %s: %v", addr, err)
	}
	return nil
}

func (c *TCPCollective) NumNodes() int  { return len(c.peers) }
func (c *TCPCollective) NodeIndex() int { return c.nodeIndex }

// AllGather implements Collective.AllGather over plain TCP frames, one
// per peer, demultiplexed by a shared per-call epoch.
func (c *TCPCollective) AllGather(ctx context.Context, send []byte, blockSize int) ([]byte, error) {
	if len(send) != blockSize {
		return nil, wrapf("all-gather: send buffer is %d bytes, want %d", len(send), blockSize)
	}

	epoch := c.epoch.Add(1)
	want := len(c.peers) - 1
	ch := c.register(epoch, want)
	defer c.unregister(epoch)

	out := make([]byte, blockSize*len(c.peers))
	copy(out[c.nodeIndex*blockSize:], send)

	g, gctx := errgroup.WithContext(ctx)
	for i, addr := range c.peers {
		if i == c.nodeIndex {
			continue
		}
		i, addr := i, addr
		g.Go(func() error {
			return c.dialAndSend(gctx, addr, frame{epoch: epoch, sender: uint32(c.nodeIndex), kind: kindAllGather, payload: send})
		})
	}

	var seen bitset.TinyBitset
	for int(seen.Count()) < want {
		select {
		case f := <-ch:
			if !seen.Contains(f.sender) {
				copy(out[int(f.sender)*blockSize:], f.payload)
				seen.Insert(f.sender)
			}
		case <-ctx.Done():
			return nil, wrapf("all-gather: %v", ctx.Err())
		}
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// RootBroadcastAndGather implements Collective.RootBroadcastAndGather:
// node 0 broadcasts, then every node (root included) contributes to a
// gather back at node 0 (spec §4.5, §6).
func (c *TCPCollective) RootBroadcastAndGather(ctx context.Context, send []byte, blockSize int) ([]byte, []byte, error) {
	if len(send) != blockSize {
		return nil, nil, wrapf("root-to-all: send buffer is %d bytes, want %d", len(send), blockSize)
	}

	const root = 0
	base := c.epoch.Add(2)
	bcastEpoch, gatherEpoch := base-1, base

	if c.nodeIndex == root {
		g, gctx := errgroup.WithContext(ctx)
		for i, addr := range c.peers {
			if i == root {
				continue
			}
			i, addr := i, addr
			g.Go(func() error {
				return c.dialAndSend(gctx, addr, frame{epoch: bcastEpoch, sender: uint32(root), kind: kindBroadcast, payload: send})
			})
		}
		if err := g.Wait(); err != nil {
			return nil, nil, err
		}

		broadcast := append([]byte(nil), send...)

		want := len(c.peers) - 1
		ch := c.register(gatherEpoch, want)
		defer c.unregister(gatherEpoch)

		gathered := make([]byte, blockSize*len(c.peers))
		copy(gathered[root*blockSize:], send)

		var seen bitset.TinyBitset
		for int(seen.Count()) < want {
			select {
			case f := <-ch:
				if !seen.Contains(f.sender) {
					copy(gathered[int(f.sender)*blockSize:], f.payload)
					seen.Insert(f.sender)
				}
			case <-ctx.Done():
				return nil, nil, wrapf("root-to-all gather: %v", ctx.Err())
			}
		}
		return broadcast, gathered, nil
	}

	ch := c.register(bcastEpoch, 1)
	var broadcast []byte
	select {
	case f := <-ch:
		broadcast = f.payload
	case <-ctx.Done():
		c.unregister(bcastEpoch)
		return nil, nil, wrapf("root-to-all broadcast: %v", ctx.Err())
	}
	c.unregister(bcastEpoch)

	if err := c.dialAndSend(ctx, c.peers[root], frame{epoch: gatherEpoch, sender: uint32(c.nodeIndex), kind: kindGather, payload: send}); err != nil {
		return nil, nil, err
	}
	return broadcast, nil, nil
}
