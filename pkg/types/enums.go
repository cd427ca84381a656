package types

// ============================================================================
//                              Connectedness - 连接状态
// ============================================================================

// Connectedness 节点连接状态
type Connectedness int

const (
	// NotConnected 未连接
	NotConnected Connectedness = iota
	// Connected 已连接
	Connected
	// CanConnect 可连接（有地址但未连接）
	CanConnect
	// CannotConnect 无法连接
	CannotConnect
)

// String 返回连接状态的字符串表示
func (c Connectedness) String() string {
	switch c {
	case NotConnected:
		return "not_connected"
	case Connected:
		return "connected"
	case CanConnect:
		return "can_connect"
	case CannotConnect:
		return "cannot_connect"
	default:
		return "unknown"
	}
}

// ============================================================================
//                              PeerInfo - 节点信息
// ============================================================================

// PeerInfo 节点 ID 及其地址
type PeerInfo struct {
	// ID 节点 ID
	ID PeerID

	// Addrs 地址列表（multiaddr 文本）
	Addrs []string
}

// HasAddrs 检查是否有地址
func (pi PeerInfo) HasAddrs() bool {
	return len(pi.Addrs) > 0
}
