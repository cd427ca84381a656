package dht

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/dep2p/go-kaddht/pkg/interfaces"
	"github.com/dep2p/go-kaddht/pkg/types"
)

// errUnreachable 模拟拨号失败
var errUnreachable = errors.New("peer unreachable")

// memNet 进程内网络，流由 net.Pipe 承载
type memNet struct {
	mu    sync.RWMutex
	hosts map[types.PeerID]*memHost
}

func newMemNet() *memNet {
	return &memNet{hosts: make(map[types.PeerID]*memHost)}
}

// newHost 创建并注册一个主机
func (n *memNet) newHost(t testing.TB, seed string) *memHost {
	t.Helper()

	id := testPeer(t, seed)
	h := &memHost{
		net:      n,
		id:       id,
		addrs:    []string{"/memory/" + seed},
		handlers: make(map[string]interfaces.StreamHandler),
	}

	n.mu.Lock()
	n.hosts[id] = h
	n.mu.Unlock()
	return h
}

func (n *memNet) host(id types.PeerID) (*memHost, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	h, ok := n.hosts[id]
	return h, ok && !h.down.Load()
}

// memHost interfaces.Host 的进程内实现
type memHost struct {
	net   *memNet
	id    types.PeerID
	addrs []string

	mu       sync.RWMutex
	handlers map[string]interfaces.StreamHandler

	// down 为 true 时所有拨入失败
	down atomic.Bool

	dials atomic.Int32
}

func (h *memHost) ID() types.PeerID { return h.id }

func (h *memHost) Addrs() []string { return append([]string(nil), h.addrs...) }

func (h *memHost) info() types.PeerInfo {
	return types.PeerInfo{ID: h.id, Addrs: h.Addrs()}
}

func (h *memHost) SetStreamHandler(protocolID string, handler interfaces.StreamHandler) {
	h.mu.Lock()
	h.handlers[protocolID] = handler
	h.mu.Unlock()
}

func (h *memHost) RemoveStreamHandler(protocolID string) {
	h.mu.Lock()
	delete(h.handlers, protocolID)
	h.mu.Unlock()
}

func (h *memHost) handler(protocolID string) interfaces.StreamHandler {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.handlers[protocolID]
}

func (h *memHost) NewStream(ctx context.Context, peerID types.PeerID, protocolID string) (interfaces.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h.dials.Add(1)

	remote, ok := h.net.host(peerID)
	if !ok {
		return nil, fmt.Errorf("dial %s: %w", peerID.ShortString(), errUnreachable)
	}
	handler := remote.handler(protocolID)
	if handler == nil {
		return nil, fmt.Errorf("dial %s: protocol %s not supported", peerID.ShortString(), protocolID)
	}

	local, inbound := net.Pipe()
	go handler(&memStream{Conn: inbound, remote: h.id, protocol: protocolID})
	return &memStream{Conn: local, remote: peerID, protocol: protocolID}, nil
}

func (h *memHost) Connectedness(peerID types.PeerID) types.Connectedness {
	if _, ok := h.net.host(peerID); ok {
		return types.Connected
	}
	return types.CannotConnect
}

// memStream interfaces.Stream 的 net.Pipe 实现
type memStream struct {
	net.Conn
	remote   types.PeerID
	protocol string
}

func (s *memStream) Reset() error { return s.Conn.Close() }

func (s *memStream) RemotePeer() types.PeerID { return s.remote }

func (s *memStream) Protocol() string { return s.protocol }

var (
	_ interfaces.Host   = (*memHost)(nil)
	_ interfaces.Stream = (*memStream)(nil)
)
