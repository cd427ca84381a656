package config

import (
	"errors"
	"time"
)

// BootstrapPeer 引导节点
type BootstrapPeer struct {
	// PeerID 节点 ID（Base58）
	PeerID string `json:"peer_id"`

	// Addrs 节点地址，格式由 Host 解释
	Addrs []string `json:"addrs,omitempty"`
}

// DHTConfig DHT 配置
//
// 零值字段在转换为组件配置时回落到默认值。
type DHTConfig struct {
	// ProtocolID 流协议 ID
	ProtocolID string `json:"protocol_id,omitempty"`

	// BucketSize K-桶大小
	BucketSize int `json:"bucket_size,omitempty"`

	// Alpha 每条路径的并发查询数
	Alpha int `json:"alpha,omitempty"`

	// DisjointPaths 不相交路径数
	DisjointPaths int `json:"disjoint_paths,omitempty"`

	// RequestTimeout 单次 RPC 超时
	RequestTimeout Duration `json:"request_timeout,omitempty"`

	// QueryTimeout 整个查询的超时
	QueryTimeout Duration `json:"query_timeout,omitempty"`

	// RefreshInterval 路由表刷新间隔
	RefreshInterval Duration `json:"refresh_interval,omitempty"`

	// ValueQuorum GetValue 需要的记录数
	ValueQuorum int `json:"value_quorum,omitempty"`

	// EnableValueStore 启用值存储
	EnableValueStore bool `json:"enable_value_store"`

	// MaxRecordAge 记录最大存活时间
	MaxRecordAge Duration `json:"max_record_age,omitempty"`

	// ProviderTTL Provider 记录 TTL
	ProviderTTL Duration `json:"provider_ttl,omitempty"`

	// CleanupInterval 过期记录清理间隔
	CleanupInterval Duration `json:"cleanup_interval,omitempty"`

	// BootstrapPeers 引导节点
	BootstrapPeers []BootstrapPeer `json:"bootstrap_peers,omitempty"`
}

// DefaultDHTConfig 返回默认 DHT 配置
func DefaultDHTConfig() DHTConfig {
	return DHTConfig{
		BucketSize:       20,
		Alpha:            3,
		DisjointPaths:    3,
		RequestTimeout:   Duration(10 * time.Second),
		QueryTimeout:     Duration(60 * time.Second),
		RefreshInterval:  Duration(1 * time.Hour),
		ValueQuorum:      3,
		EnableValueStore: true,
		MaxRecordAge:     Duration(36 * time.Hour),
		ProviderTTL:      Duration(24 * time.Hour),
		CleanupInterval:  Duration(10 * time.Minute),
	}
}

// Validate 验证 DHT 配置
//
// 零值表示使用默认值，只拒绝负数和不一致的组合。
func (c DHTConfig) Validate() error {
	if c.BucketSize < 0 || c.Alpha < 0 || c.DisjointPaths < 0 || c.ValueQuorum < 0 {
		return errors.New("dht: sizes must not be negative")
	}
	if c.RequestTimeout < 0 || c.QueryTimeout < 0 || c.RefreshInterval < 0 ||
		c.MaxRecordAge < 0 || c.ProviderTTL < 0 || c.CleanupInterval < 0 {
		return errors.New("dht: durations must not be negative")
	}
	if c.RequestTimeout > 0 && c.QueryTimeout > 0 && c.RequestTimeout > c.QueryTimeout {
		return errors.New("dht: request_timeout must not exceed query_timeout")
	}
	for _, p := range c.BootstrapPeers {
		if p.PeerID == "" {
			return errors.New("dht: bootstrap peer without peer_id")
		}
	}
	return nil
}
