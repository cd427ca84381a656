package types

import (
	"fmt"

	sha256 "github.com/minio/sha256-simd"
	"github.com/multiformats/go-varint"
)

// ============================================================================
//                              ContentKey - 内容键
// ============================================================================

const (
	// MultihashSHA2256 sha2-256 的 multihash 编码
	MultihashSHA2256 = 0x12

	// MaxDigestSize 允许的最大摘要长度
	MaxDigestSize = 128
)

// ContentKey 内容键（multihash 格式）
//
// 格式: <varint code><varint length><digest>
// Provider 记录只接受能解析为 ContentKey 的键。
type ContentKey []byte

// NewContentKey 对数据做 sha2-256 摘要，生成 ContentKey
func NewContentKey(data []byte) ContentKey {
	digest := sha256.Sum256(data)

	buf := varint.ToUvarint(MultihashSHA2256)
	buf = append(buf, varint.ToUvarint(uint64(len(digest)))...)
	buf = append(buf, digest[:]...)
	return ContentKey(buf)
}

// ParseContentKey 解析并校验内容键
//
// 空输入返回 ErrMissingKey，非 multihash 格式返回 ErrInvalidKey。
func ParseContentKey(b []byte) (ContentKey, error) {
	if len(b) == 0 {
		return nil, ErrMissingKey
	}

	_, n, err := varint.FromUvarint(b)
	if err != nil {
		return nil, fmt.Errorf("%w: bad hash code: %v", ErrInvalidKey, err)
	}
	rest := b[n:]

	length, n, err := varint.FromUvarint(rest)
	if err != nil {
		return nil, fmt.Errorf("%w: bad digest length: %v", ErrInvalidKey, err)
	}
	rest = rest[n:]

	if length == 0 || length > MaxDigestSize {
		return nil, fmt.Errorf("%w: digest length %d out of range", ErrInvalidKey, length)
	}
	if uint64(len(rest)) != length {
		return nil, fmt.Errorf("%w: digest length mismatch (declared %d, got %d)", ErrInvalidKey, length, len(rest))
	}

	return ContentKey(b), nil
}

// DHTID 返回内容键在 DHT 空间中的坐标
func (k ContentKey) DHTID() DHTID {
	return ConvertKey(k)
}

// String 返回 Base58 表示
func (k ContentKey) String() string {
	return Base58Encode(k)
}
