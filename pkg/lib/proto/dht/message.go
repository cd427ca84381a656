// Package dht 定义 Kademlia DHT 协议消息
//
// 消息结构见 dht.proto。编解码为手写的 protobuf wire 实现，
// 不依赖生成代码。
package dht

import (
	"fmt"

	"github.com/dep2p/go-kaddht/pkg/types"
)

// ============================================================================
//                              枚举
// ============================================================================

// MessageType 消息类型
type MessageType int32

const (
	MessageType_PUT_VALUE     MessageType = 0
	MessageType_GET_VALUE     MessageType = 1
	MessageType_ADD_PROVIDER  MessageType = 2
	MessageType_GET_PROVIDERS MessageType = 3
	MessageType_FIND_NODE     MessageType = 4
	MessageType_PING          MessageType = 5
)

var messageTypeNames = map[MessageType]string{
	MessageType_PUT_VALUE:     "PUT_VALUE",
	MessageType_GET_VALUE:     "GET_VALUE",
	MessageType_ADD_PROVIDER:  "ADD_PROVIDER",
	MessageType_GET_PROVIDERS: "GET_PROVIDERS",
	MessageType_FIND_NODE:     "FIND_NODE",
	MessageType_PING:          "PING",
}

// String 返回消息类型名
func (t MessageType) String() string {
	if s, ok := messageTypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("UNKNOWN(%d)", int32(t))
}

// Valid 是否为已知消息类型
func (t MessageType) Valid() bool {
	_, ok := messageTypeNames[t]
	return ok
}

// ConnectionType 对端连接状态
type ConnectionType int32

const (
	ConnectionType_NOT_CONNECTED  ConnectionType = 0
	ConnectionType_CONNECTED      ConnectionType = 1
	ConnectionType_CAN_CONNECT    ConnectionType = 2
	ConnectionType_CANNOT_CONNECT ConnectionType = 3
)

// String 返回连接状态名
func (c ConnectionType) String() string {
	switch c {
	case ConnectionType_NOT_CONNECTED:
		return "NOT_CONNECTED"
	case ConnectionType_CONNECTED:
		return "CONNECTED"
	case ConnectionType_CAN_CONNECT:
		return "CAN_CONNECT"
	case ConnectionType_CANNOT_CONNECT:
		return "CANNOT_CONNECT"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int32(c))
	}
}

// ============================================================================
//                              PeerEntry
// ============================================================================

// PeerEntry 消息中携带的节点信息
//
// Addrs 在 wire 上是 repeated bytes，内存中以字符串保存（multiaddr 文本）。
type PeerEntry struct {
	ID         types.PeerID
	Addrs      []string
	Connection ConnectionType
}

// NewPeerEntry 创建 PeerEntry，地址切片会被复制
func NewPeerEntry(id types.PeerID, addrs []string, conn ConnectionType) PeerEntry {
	return PeerEntry{
		ID:         id,
		Addrs:      append([]string(nil), addrs...),
		Connection: conn,
	}
}

// ============================================================================
//                              Record
// ============================================================================

// Record DHT 值记录
type Record struct {
	Key      []byte
	Value    []byte
	Metadata []byte

	// TimeReceived 接收时间（unix 纳秒），由存储方填写，线上以 RFC 3339 字符串传输
	TimeReceived int64
}

// NewRecord 创建记录
func NewRecord(key, value, metadata []byte) *Record {
	return &Record{
		Key:      append([]byte(nil), key...),
		Value:    append([]byte(nil), value...),
		Metadata: append([]byte(nil), metadata...),
	}
}

// Clone 深拷贝
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := NewRecord(r.Key, r.Value, r.Metadata)
	c.TimeReceived = r.TimeReceived
	return c
}

// ============================================================================
//                              Message
// ============================================================================

// Message DHT 请求/响应信封
type Message struct {
	Type          MessageType
	Key           []byte
	Record        *Record
	CloserPeers   []PeerEntry
	ProviderPeers []PeerEntry

	// Error 处理失败时由服务端填写，请求中始终为空
	Error string

	clusterLevelRaw int32
}

// NewMessage 创建指定类型的消息
func NewMessage(typ MessageType, key []byte) *Message {
	return &Message{
		Type: typ,
		Key:  append([]byte(nil), key...),
	}
}

// ClusterLevel 返回跳数提示
//
// 对外读取的值为原始值减一，最小为 0。
func (m *Message) ClusterLevel() int {
	level := int(m.clusterLevelRaw) - 1
	if level < 0 {
		return 0
	}
	return level
}

// SetClusterLevel 设置跳数提示的原始值
func (m *Message) SetClusterLevel(level int) {
	m.clusterLevelRaw = int32(level)
}

// ClusterLevelRaw 返回未经调整的原始值
func (m *Message) ClusterLevelRaw() int32 {
	return m.clusterLevelRaw
}

// NewResponse 创建对 m 的响应（同类型、同键、同跳数）
func (m *Message) NewResponse() *Message {
	resp := NewMessage(m.Type, m.Key)
	resp.clusterLevelRaw = m.clusterLevelRaw
	return resp
}

// String 返回简短描述（日志用）
func (m *Message) String() string {
	return fmt.Sprintf("%s key=%x closer=%d providers=%d record=%t",
		m.Type, m.Key, len(m.CloserPeers), len(m.ProviderPeers), m.Record != nil)
}
