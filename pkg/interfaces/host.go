package interfaces

import (
	"context"
	"time"

	"github.com/dep2p/go-kaddht/pkg/types"
)

// Host 定义 P2P 主机接口
//
// 连接建立、多路复用、协议协商和加密都由 Host 的实现负责，
// DHT 只通过协议流与对端交换消息。
type Host interface {
	// ID 返回主机的 PeerID
	ID() types.PeerID

	// Addrs 返回主机对外公告的地址列表
	Addrs() []string

	// SetStreamHandler 为指定协议设置流处理器
	SetStreamHandler(protocolID string, handler StreamHandler)

	// RemoveStreamHandler 移除指定协议的流处理器
	RemoveStreamHandler(protocolID string)

	// NewStream 创建到指定节点的新流
	NewStream(ctx context.Context, peerID types.PeerID, protocolID string) (Stream, error)

	// Connectedness 返回与指定节点的连接状态
	Connectedness(peerID types.PeerID) types.Connectedness
}

// StreamHandler 流处理函数
type StreamHandler func(Stream)

// Stream 定义流接口
type Stream interface {
	// Read 从流中读取数据
	Read(p []byte) (n int, err error)

	// Write 向流中写入数据
	Write(p []byte) (n int, err error)

	// Close 关闭流
	Close() error

	// Reset 重置流（异常关闭）
	Reset() error

	// SetDeadline 设置读写超时
	//
	// 传入零值 time.Time{} 表示不超时。
	SetDeadline(t time.Time) error

	// SetReadDeadline 设置读超时
	SetReadDeadline(t time.Time) error

	// RemotePeer 返回对端节点 ID
	RemotePeer() types.PeerID

	// Protocol 返回流使用的协议 ID
	Protocol() string
}
