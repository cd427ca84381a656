package types

import (
	"bytes"
	"encoding/hex"
	"math/bits"

	sha256 "github.com/minio/sha256-simd"
)

// ============================================================================
//                              PeerID - 节点标识
// ============================================================================

// PeerID 节点唯一标识符
//
// 不透明的定长字节串，通常由公钥摘要派生（见 PeerIDFromPublicKey）。
// 使用 string 作为底层类型，保证不可变且可作为 map 键。
//
// 外部表示格式：
//   - String(): Base58 编码
//   - ShortString(): Base58 前缀（日志简短标识）
type PeerID string

// EmptyPeerID 空节点 ID
const EmptyPeerID PeerID = ""

// PeerIDFromBytes 从字节切片创建 PeerID
func PeerIDFromBytes(b []byte) (PeerID, error) {
	if len(b) == 0 {
		return EmptyPeerID, ErrEmptyPeerID
	}
	return PeerID(b), nil
}

// PeerIDFromPublicKey 从公钥派生 PeerID
//
// PeerID = multihash(sha2-256, SHA256(pubKey))
func PeerIDFromPublicKey(pubKey []byte) (PeerID, error) {
	if len(pubKey) == 0 {
		return EmptyPeerID, ErrInvalidPeerID
	}
	return PeerID(NewContentKey(pubKey)), nil
}

// String 返回 Base58 字符串表示
func (id PeerID) String() string {
	return Base58Encode([]byte(id))
}

// ShortString 返回短字符串表示（日志用）
func (id PeerID) ShortString() string {
	s := id.String()
	if len(s) > 8 {
		return s[len(s)-8:]
	}
	return s
}

// Bytes 返回字节表示
func (id PeerID) Bytes() []byte {
	return []byte(id)
}

// IsEmpty 检查是否为空
func (id PeerID) IsEmpty() bool {
	return id == EmptyPeerID
}

// Validate 校验 PeerID
func (id PeerID) Validate() error {
	if id.IsEmpty() {
		return ErrEmptyPeerID
	}
	return nil
}

// PeerIDFromString 从 Base58 字符串解析 PeerID
func PeerIDFromString(s string) (PeerID, error) {
	if s == "" {
		return EmptyPeerID, ErrEmptyPeerID
	}
	b, err := Base58Decode(s)
	if err != nil {
		return EmptyPeerID, ErrInvalidPeerID
	}
	return PeerIDFromBytes(b)
}

// ComparePeers 按字节序比较两个 PeerID
func ComparePeers(a, b PeerID) int {
	return bytes.Compare([]byte(a), []byte(b))
}

// ============================================================================
//                              DHTID - Kademlia 空间坐标
// ============================================================================

// DHTIDSize DHT-ID 字节长度（256 位）
const DHTIDSize = 32

// DHTID Kademlia 空间中的 256 位坐标
//
// 由键或 PeerID 的 SHA-256 摘要得到，两者在同一空间中用 XOR 距离比较。
type DHTID [DHTIDSize]byte

// ConvertKey 将任意键映射到 DHT-ID 空间
func ConvertKey(key []byte) DHTID {
	return DHTID(sha256.Sum256(key))
}

// ConvertPeerID 将 PeerID 映射到 DHT-ID 空间
func ConvertPeerID(id PeerID) DHTID {
	return ConvertKey([]byte(id))
}

// String 返回十六进制表示
func (d DHTID) String() string {
	return hex.EncodeToString(d[:])
}

// Xor 计算 XOR 距离
func (d DHTID) Xor(other DHTID) DHTID {
	var out DHTID
	for i := range d {
		out[i] = d[i] ^ other[i]
	}
	return out
}

// CommonPrefixLen 计算与另一个 DHT-ID 的共同前缀位数
func (d DHTID) CommonPrefixLen(other DHTID) int {
	for i := range d {
		if x := d[i] ^ other[i]; x != 0 {
			return i*8 + bits.LeadingZeros8(x)
		}
	}
	return DHTIDSize * 8
}

// Compare 按大端无符号整数比较
func (d DHTID) Compare(other DHTID) int {
	return bytes.Compare(d[:], other[:])
}

// Less 是否小于 other
func (d DHTID) Less(other DHTID) bool {
	return d.Compare(other) < 0
}

// CompareDistance 比较 a、b 到 target 的 XOR 距离
//
// 返回：
//
//	-1 如果 dist(a, target) < dist(b, target)
//	 0 如果两者是同一节点
//	 1 如果 dist(a, target) > dist(b, target)
//
// 距离相等时按 PeerID 字节序决定先后，保证排序确定性。
func CompareDistance(a, b PeerID, target DHTID) int {
	da := ConvertPeerID(a).Xor(target)
	db := ConvertPeerID(b).Xor(target)
	if c := da.Compare(db); c != 0 {
		return c
	}
	return ComparePeers(a, b)
}
