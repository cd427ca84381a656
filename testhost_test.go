package kaddht

import (
	"context"
	"fmt"
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-kaddht/pkg/interfaces"
	"github.com/dep2p/go-kaddht/pkg/types"
)

// pipeNet 进程内网络
type pipeNet struct {
	mu    sync.RWMutex
	hosts map[types.PeerID]*pipeHost
}

func newPipeNet() *pipeNet {
	return &pipeNet{hosts: make(map[types.PeerID]*pipeHost)}
}

// host 创建并注册主机，同一 seed 得到同一 PeerID
func (n *pipeNet) host(t *testing.T, seed string) *pipeHost {
	t.Helper()

	id, err := types.PeerIDFromPublicKey([]byte(seed))
	require.NoError(t, err)

	h := &pipeHost{
		net:      n,
		id:       id,
		addrs:    []string{"/pipe/" + seed},
		handlers: make(map[string]interfaces.StreamHandler),
	}
	n.mu.Lock()
	n.hosts[id] = h
	n.mu.Unlock()
	return h
}

func (n *pipeNet) lookup(id types.PeerID) *pipeHost {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.hosts[id]
}

// pipeHost 以 net.Pipe 承载流的 interfaces.Host
type pipeHost struct {
	net   *pipeNet
	id    types.PeerID
	addrs []string

	mu       sync.RWMutex
	handlers map[string]interfaces.StreamHandler
}

func (h *pipeHost) ID() types.PeerID { return h.id }

func (h *pipeHost) Addrs() []string { return append([]string(nil), h.addrs...) }

func (h *pipeHost) SetStreamHandler(protocolID string, handler interfaces.StreamHandler) {
	h.mu.Lock()
	h.handlers[protocolID] = handler
	h.mu.Unlock()
}

func (h *pipeHost) RemoveStreamHandler(protocolID string) {
	h.mu.Lock()
	delete(h.handlers, protocolID)
	h.mu.Unlock()
}

func (h *pipeHost) NewStream(ctx context.Context, peerID types.PeerID, protocolID string) (interfaces.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	remote := h.net.lookup(peerID)
	if remote == nil {
		return nil, fmt.Errorf("dial %s: no route", peerID.ShortString())
	}

	remote.mu.RLock()
	handler := remote.handlers[protocolID]
	remote.mu.RUnlock()
	if handler == nil {
		return nil, fmt.Errorf("dial %s: protocol %s not supported", peerID.ShortString(), protocolID)
	}

	local, inbound := net.Pipe()
	go handler(&pipeStream{Conn: inbound, remote: h.id, protocol: protocolID})
	return &pipeStream{Conn: local, remote: peerID, protocol: protocolID}, nil
}

func (h *pipeHost) Connectedness(peerID types.PeerID) types.Connectedness {
	if h.net.lookup(peerID) != nil {
		return types.Connected
	}
	return types.NotConnected
}

// pipeStream interfaces.Stream 的 net.Pipe 实现
type pipeStream struct {
	net.Conn
	remote   types.PeerID
	protocol string
}

func (s *pipeStream) Reset() error { return s.Conn.Close() }

func (s *pipeStream) RemotePeer() types.PeerID { return s.remote }

func (s *pipeStream) Protocol() string { return s.protocol }
