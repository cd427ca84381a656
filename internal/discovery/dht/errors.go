package dht

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dep2p/go-kaddht/pkg/types"
)

// 预定义错误
var (
	// ErrMissingKey 请求缺少键
	ErrMissingKey = types.ErrMissingKey

	// ErrInvalidKey 键无法映射到 DHT-ID 空间
	ErrInvalidKey = types.ErrInvalidKey

	// ErrValidationFailed 记录被 Validator 拒绝
	ErrValidationFailed = errors.New("dht: record validation failed")

	// ErrNotFound 没有找到记录或提供者
	ErrNotFound = errors.New("dht: not found")

	// ErrTimeout 超时（单次请求或整个查询）
	ErrTimeout = errors.New("dht: timeout")

	// ErrCancelled 调用方取消
	ErrCancelled = errors.New("dht: cancelled")

	// ErrNoPeersAvailable 路由表中没有可用于查询的节点
	ErrNoPeersAvailable = errors.New("dht: no peers available")
)

// 运行期错误
var (
	// ErrDHTClosed DHT 已关闭
	ErrDHTClosed = errors.New("dht: DHT is closed")

	// ErrAlreadyStarted DHT 已启动
	ErrAlreadyStarted = errors.New("dht: DHT already started")

	// ErrNotStarted DHT 未启动
	ErrNotStarted = errors.New("dht: DHT not started")

	// ErrInvalidConfig 无效配置
	ErrInvalidConfig = errors.New("dht: invalid config")

	// ErrNilHost Host 为空
	ErrNilHost = errors.New("dht: host is nil")

	// ErrNetworkClosed 网络已关闭
	ErrNetworkClosed = errors.New("dht: network adapter is closed")

	// ErrInvalidResponse 无效响应
	ErrInvalidResponse = errors.New("dht: invalid response")

	// ErrInvalidRecord 记录缺失或与请求键不一致
	ErrInvalidRecord = errors.New("dht: invalid record")

	// ErrRateLimitExceeded 速率限制超限
	ErrRateLimitExceeded = errors.New("dht: rate limit exceeded")

	// ErrUnknownMessageType 未知消息类型
	ErrUnknownMessageType = errors.New("dht: unknown message type")

	// ErrValueStoreDisabled 值存储未启用
	ErrValueStoreDisabled = errors.New("dht: value store disabled")

	// ErrRemote 对端返回错误
	ErrRemote = errors.New("dht: remote error")
)

// DHTError DHT 错误类型
type DHTError struct {
	Op      string // 操作名称
	Err     error  // 底层错误
	Message string // 错误消息
}

// Error 实现 error 接口
func (e *DHTError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("dht %s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("dht %s: %v", e.Op, e.Err)
}

// Unwrap 实现错误解包
func (e *DHTError) Unwrap() error {
	return e.Err
}

// NewDHTError 创建 DHT 错误
func NewDHTError(op string, err error, message string) *DHTError {
	return &DHTError{
		Op:      op,
		Err:     err,
		Message: message,
	}
}

// remoteError 对端在响应中报告的错误
//
// 对端错误文本若能对应已知错误，则同时匹配该错误，
// 使 MissingKey/InvalidKey/ValidationFailed 在调用方同步可见。
type remoteError struct {
	peer types.PeerID
	msg  string
	kind error
}

func (e *remoteError) Error() string {
	return fmt.Sprintf("dht: remote error from %s: %s", e.peer.ShortString(), e.msg)
}

func (e *remoteError) Is(target error) bool {
	return target == ErrRemote || (e.kind != nil && target == e.kind)
}

// newRemoteError 解析对端错误文本
func newRemoteError(peer types.PeerID, msg string) error {
	return &remoteError{peer: peer, msg: msg, kind: classifyRemote(msg)}
}

var remoteKinds = []error{
	ErrValidationFailed,
	ErrInvalidRecord,
	ErrRateLimitExceeded,
	ErrUnknownMessageType,
	ErrValueStoreDisabled,
	ErrMissingKey,
	ErrInvalidKey,
}

func classifyRemote(msg string) error {
	for _, kind := range remoteKinds {
		if strings.Contains(msg, kind.Error()) {
			return kind
		}
	}
	return nil
}
