package types

import "errors"

// ============================================================================
//                              ID 相关错误
// ============================================================================

var (
	// ErrEmptyPeerID 空节点 ID
	ErrEmptyPeerID = errors.New("empty peer ID")

	// ErrInvalidPeerID 无效的节点 ID
	ErrInvalidPeerID = errors.New("invalid peer ID")
)

// ============================================================================
//                              Key 相关错误
// ============================================================================

var (
	// ErrMissingKey 缺少键
	ErrMissingKey = errors.New("missing key")

	// ErrInvalidKey 键无法解析到 DHT-ID 空间
	ErrInvalidKey = errors.New("invalid key")
)
