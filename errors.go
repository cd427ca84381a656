package kaddht

import (
	"errors"

	"github.com/dep2p/go-kaddht/internal/discovery/dht"
)

// 公共错误定义
var (
	// ────────────────────────────────────────────────────────────────────────
	// 节点生命周期错误
	// ────────────────────────────────────────────────────────────────────────

	// ErrNotStarted 节点未启动
	ErrNotStarted = errors.New("node not started")

	// ErrAlreadyStarted 节点已启动
	ErrAlreadyStarted = errors.New("node already started")

	// ErrNodeClosed 节点已关闭
	ErrNodeClosed = errors.New("node closed")

	// ErrNilHost 未提供 Host
	ErrNilHost = dht.ErrNilHost

	// ────────────────────────────────────────────────────────────────────────
	// 查询错误（与内部 DHT 错误同一实例，可用 errors.Is 匹配）
	// ────────────────────────────────────────────────────────────────────────

	// ErrMissingKey 缺少键
	ErrMissingKey = dht.ErrMissingKey

	// ErrInvalidKey 键无法映射到 DHT-ID 空间
	ErrInvalidKey = dht.ErrInvalidKey

	// ErrValidationFailed 记录校验失败
	ErrValidationFailed = dht.ErrValidationFailed

	// ErrNotFound 没有找到记录、提供者或节点
	ErrNotFound = dht.ErrNotFound

	// ErrTimeout 查询超时
	ErrTimeout = dht.ErrTimeout

	// ErrCancelled 调用方取消
	ErrCancelled = dht.ErrCancelled

	// ErrNoPeersAvailable 路由表为空
	ErrNoPeersAvailable = dht.ErrNoPeersAvailable

	// ErrValueStoreDisabled 未启用值存储
	ErrValueStoreDisabled = dht.ErrValueStoreDisabled

	// ErrRemote 对端返回错误
	ErrRemote = dht.ErrRemote
)
