package dht

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dep2p/go-kaddht/pkg/interfaces"
	pb "github.com/dep2p/go-kaddht/pkg/lib/proto/dht"
	"github.com/dep2p/go-kaddht/pkg/types"
)

// streamIdleTimeout 入站流在两次请求之间允许的最长空闲时间
const streamIdleTimeout = time.Minute

// MessageHandler 入站请求处理接口（*Handler 满足）
type MessageHandler interface {
	HandleMessage(ctx context.Context, from types.PeerID, req *pb.Message) (*pb.Message, error)
}

// NetworkAdapter 基于 Host 协议流的 interfaces.Network 实现
//
// 出站：每个请求打开一条新流，写出带长度前缀的请求，读回一条响应。
// 入站：同一条流上可以连续处理多个请求，直到对端关闭或空闲超时。
// 不做任何重试。
type NetworkAdapter struct {
	host       interfaces.Host
	protocolID string
	handler    MessageHandler

	// requestTimeout 入站请求的处理超时
	requestTimeout time.Duration
	idleTimeout    time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	// mu 保护 wg.Add 与 Close 之间的顺序
	mu sync.Mutex
	wg sync.WaitGroup

	serving atomic.Bool
	closed  atomic.Bool
}

// NewNetworkAdapter 创建网络适配器
//
// handler 为 nil 时适配器只能发送请求，Serve 不可用。
func NewNetworkAdapter(host interfaces.Host, protocolID string, handler MessageHandler, requestTimeout time.Duration) *NetworkAdapter {
	ctx, cancel := context.WithCancel(context.Background())
	return &NetworkAdapter{
		host:           host,
		protocolID:     protocolID,
		handler:        handler,
		requestTimeout: requestTimeout,
		idleTimeout:    streamIdleTimeout,
		ctx:            ctx,
		cancel:         cancel,
	}
}

// ============================================================================
//                              出站
// ============================================================================

// SendMessage 发送请求并等待响应
//
// 截止时间来自 ctx。对端在响应中报告的错误返回为匹配 ErrRemote 的错误。
func (na *NetworkAdapter) SendMessage(ctx context.Context, peer types.PeerID, req *pb.Message) (*pb.Message, error) {
	if na.closed.Load() {
		return nil, ErrNetworkClosed
	}

	stream, err := na.host.NewStream(ctx, peer, na.protocolID)
	if err != nil {
		return nil, na.transportError(ctx, peer, "open stream", err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = stream.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = stream.Reset()
	})
	defer stop()

	if err := pb.WriteDelimited(stream, req); err != nil {
		_ = stream.Reset()
		return nil, na.transportError(ctx, peer, "write request", err)
	}

	resp, err := pb.ReadDelimited(bufio.NewReader(stream), pb.MaxMessageSize)
	if err != nil {
		_ = stream.Reset()
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, na.transportError(ctx, peer, "read response", err)
	}
	_ = stream.Close()

	if resp.Error != "" {
		return nil, newRemoteError(peer, resp.Error)
	}
	if resp.Type != req.Type {
		return nil, fmt.Errorf("%w: expected %s, got %s", ErrInvalidResponse, req.Type, resp.Type)
	}
	return resp, nil
}

// transportError 把传输层错误归类为 ErrTimeout / ErrCancelled
func (na *NetworkAdapter) transportError(ctx context.Context, peer types.PeerID, op string, err error) error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded), errors.Is(err, os.ErrDeadlineExceeded):
		return fmt.Errorf("%w: %s %s", ErrTimeout, op, peer.ShortString())
	case errors.Is(ctx.Err(), context.Canceled):
		return fmt.Errorf("%w: %s %s", ErrCancelled, op, peer.ShortString())
	default:
		return fmt.Errorf("%s %s: %w", op, peer.ShortString(), err)
	}
}

// ============================================================================
//                              入站
// ============================================================================

// Serve 在 Host 上注册协议处理器
func (na *NetworkAdapter) Serve() error {
	if na.closed.Load() {
		return ErrNetworkClosed
	}
	if na.handler == nil {
		return fmt.Errorf("%w: no message handler", ErrInvalidConfig)
	}
	if !na.serving.CompareAndSwap(false, true) {
		return nil
	}
	na.host.SetStreamHandler(na.protocolID, na.handleStream)
	return nil
}

// Close 注销协议处理器并等待入站流结束
func (na *NetworkAdapter) Close() error {
	na.mu.Lock()
	if !na.closed.CompareAndSwap(false, true) {
		na.mu.Unlock()
		return nil
	}
	na.mu.Unlock()

	if na.serving.Load() {
		na.host.RemoveStreamHandler(na.protocolID)
	}
	na.cancel()
	na.wg.Wait()
	return nil
}

func (na *NetworkAdapter) handleStream(s interfaces.Stream) {
	na.mu.Lock()
	if na.closed.Load() {
		na.mu.Unlock()
		_ = s.Reset()
		return
	}
	na.wg.Add(1)
	na.mu.Unlock()
	defer na.wg.Done()

	from := s.RemotePeer()
	stop := context.AfterFunc(na.ctx, func() {
		_ = s.Reset()
	})
	defer stop()

	r := bufio.NewReader(s)
	for {
		_ = s.SetReadDeadline(time.Now().Add(na.idleTimeout))
		req, err := pb.ReadDelimited(r, pb.MaxMessageSize)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logger.Debug("读取请求失败", "from", from.ShortString(), "err", err)
				_ = s.Reset()
				return
			}
			_ = s.Close()
			return
		}

		resp := na.dispatch(from, req)

		_ = s.SetDeadline(time.Now().Add(na.requestTimeout))
		if err := pb.WriteDelimited(s, resp); err != nil {
			logger.Debug("写出响应失败", "from", from.ShortString(), "err", err)
			_ = s.Reset()
			return
		}
	}
}

// dispatch 调用处理器，错误转为响应中的 Error 字段
func (na *NetworkAdapter) dispatch(from types.PeerID, req *pb.Message) *pb.Message {
	ctx, cancel := context.WithTimeout(na.ctx, na.requestTimeout)
	defer cancel()

	resp, err := na.handler.HandleMessage(ctx, from, req)
	if err != nil {
		resp = req.NewResponse()
		resp.Error = err.Error()
	}
	return resp
}

var _ interfaces.Network = (*NetworkAdapter)(nil)
