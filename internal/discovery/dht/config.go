package dht

import (
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dep2p/go-kaddht/internal/core/storage/engine"
	"github.com/dep2p/go-kaddht/pkg/interfaces"
	"github.com/dep2p/go-kaddht/pkg/types"
)

// ProtocolID DHT 协议 ID
const ProtocolID = "/kaddht/kad/1.0.0"

// Config DHT 配置
type Config struct {
	// ProtocolID 流协议 ID
	ProtocolID string

	// BucketSize K-桶大小（k）
	BucketSize int

	// Alpha 每条路径的并发查询数
	Alpha int

	// DisjointPaths 不相交路径数（S/Kademlia）
	DisjointPaths int

	// RequestTimeout 单次 RPC 超时
	RequestTimeout time.Duration

	// QueryTimeout 整个查询的超时
	QueryTimeout time.Duration

	// RefreshInterval 路由表刷新间隔
	RefreshInterval time.Duration

	// MaxFailures 连续失败多少次后移出路由表
	MaxFailures int

	// ValueQuorum GetValue 收集多少个有效记录后提前结束
	ValueQuorum int

	// ProviderQuorum FindProviders 默认期望的提供者数量
	ProviderQuorum int

	// EnableValueStore 启用值存储
	EnableValueStore bool

	// MaxRecordAge 记录最大存活时间
	MaxRecordAge time.Duration

	// MaxValueSize 单个值的最大字节数
	MaxValueSize int

	// ProviderTTL Provider 记录 TTL
	ProviderTTL time.Duration

	// CleanupInterval 清理间隔
	CleanupInterval time.Duration

	// BootstrapPeers 引导节点
	BootstrapPeers []types.PeerInfo

	// ============= 限流配置 =============

	// ProviderRateLimit 每个发送方每秒允许的 ADD_PROVIDER 数
	ProviderRateLimit float64

	// ProviderRateBurst ADD_PROVIDER 突发上限
	ProviderRateBurst int

	// PutValueRateLimit 每个发送方每秒允许的 PUT_VALUE 数
	PutValueRateLimit float64

	// PutValueRateBurst PUT_VALUE 突发上限
	PutValueRateBurst int

	// RateLimiterCacheSize 限流器缓存的发送方数量上限
	RateLimiterCacheSize int

	// ============= 存储配置 =============

	// DataDir 数据目录（从 config.Storage.DataDir 继承）
	// 为空时 Provider/Record 仅保存在内存中
	DataDir string

	// ============= 可插拔组件（不参与序列化） =============

	// Validator 记录校验器，nil 时使用 SequenceValidator
	Validator interfaces.Validator

	// Selector 记录择优器，nil 时与 Validator 相同（若其实现了 Selector）
	Selector interfaces.Selector

	// Clock 时钟，nil 时使用系统时钟
	Clock clock.Clock

	// Registerer 指标注册器，nil 时使用私有 registry
	Registerer prometheus.Registerer

	// Network 出站消息通道，nil 时使用基于 Host 协议流的 NetworkAdapter
	Network interfaces.Network

	// Engine 持久化引擎，nil 且 DataDir 非空时由 DHT 自行打开
	Engine engine.Engine
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		ProtocolID:           ProtocolID,
		BucketSize:           20,
		Alpha:                3,
		DisjointPaths:        3,
		RequestTimeout:       10 * time.Second,
		QueryTimeout:         60 * time.Second,
		RefreshInterval:      1 * time.Hour,
		MaxFailures:          3,
		ValueQuorum:          3,
		ProviderQuorum:       20,
		EnableValueStore:     true,
		MaxRecordAge:         36 * time.Hour,
		MaxValueSize:         64 << 10,
		ProviderTTL:          24 * time.Hour,
		CleanupInterval:      10 * time.Minute,
		ProviderRateLimit:    10,
		ProviderRateBurst:    20,
		PutValueRateLimit:    10,
		PutValueRateBurst:    20,
		RateLimiterCacheSize: 1024,
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.ProtocolID == "" {
		return fmt.Errorf("%w: protocol ID must not be empty", ErrInvalidConfig)
	}

	positive := []struct {
		name string
		ok   bool
	}{
		{"bucket size", c.BucketSize > 0},
		{"alpha", c.Alpha > 0},
		{"disjoint paths", c.DisjointPaths > 0},
		{"request timeout", c.RequestTimeout > 0},
		{"query timeout", c.QueryTimeout > 0},
		{"refresh interval", c.RefreshInterval > 0},
		{"max failures", c.MaxFailures > 0},
		{"value quorum", c.ValueQuorum > 0},
		{"provider quorum", c.ProviderQuorum > 0},
		{"max record age", c.MaxRecordAge > 0},
		{"max value size", c.MaxValueSize > 0},
		{"provider TTL", c.ProviderTTL > 0},
		{"cleanup interval", c.CleanupInterval > 0},
		{"provider rate limit", c.ProviderRateLimit > 0 && c.ProviderRateBurst > 0},
		{"put value rate limit", c.PutValueRateLimit > 0 && c.PutValueRateBurst > 0},
		{"rate limiter cache size", c.RateLimiterCacheSize > 0},
	}
	for _, p := range positive {
		if !p.ok {
			return fmt.Errorf("%w: %s must be positive", ErrInvalidConfig, p.name)
		}
	}

	if c.RequestTimeout > c.QueryTimeout {
		return fmt.Errorf("%w: request timeout must not exceed query timeout", ErrInvalidConfig)
	}

	return nil
}

// ConfigOption 配置选项函数
type ConfigOption func(*Config)

// WithBucketSize 设置K-桶大小
func WithBucketSize(size int) ConfigOption {
	return func(c *Config) {
		c.BucketSize = size
	}
}

// WithAlpha 设置并发查询参数
func WithAlpha(alpha int) ConfigOption {
	return func(c *Config) {
		c.Alpha = alpha
	}
}

// WithDisjointPaths 设置不相交路径数
func WithDisjointPaths(n int) ConfigOption {
	return func(c *Config) {
		c.DisjointPaths = n
	}
}

// WithRequestTimeout 设置单次 RPC 超时
func WithRequestTimeout(timeout time.Duration) ConfigOption {
	return func(c *Config) {
		c.RequestTimeout = timeout
	}
}

// WithQueryTimeout 设置查询超时
func WithQueryTimeout(timeout time.Duration) ConfigOption {
	return func(c *Config) {
		c.QueryTimeout = timeout
	}
}

// WithRefreshInterval 设置刷新间隔
func WithRefreshInterval(interval time.Duration) ConfigOption {
	return func(c *Config) {
		c.RefreshInterval = interval
	}
}

// WithBootstrapPeers 设置引导节点
func WithBootstrapPeers(peers []types.PeerInfo) ConfigOption {
	return func(c *Config) {
		c.BootstrapPeers = peers
	}
}

// WithValueStore 设置是否启用值存储
func WithValueStore(enabled bool) ConfigOption {
	return func(c *Config) {
		c.EnableValueStore = enabled
	}
}

// WithProviderTTL 设置 Provider 记录 TTL
func WithProviderTTL(ttl time.Duration) ConfigOption {
	return func(c *Config) {
		c.ProviderTTL = ttl
	}
}

// WithDataDir 设置数据目录
func WithDataDir(dir string) ConfigOption {
	return func(c *Config) {
		c.DataDir = dir
	}
}

// WithValidator 设置记录校验器
func WithValidator(v interfaces.Validator) ConfigOption {
	return func(c *Config) {
		c.Validator = v
	}
}

// WithSelector 设置记录择优器
func WithSelector(s interfaces.Selector) ConfigOption {
	return func(c *Config) {
		c.Selector = s
	}
}

// WithClock 设置时钟（测试用）
func WithClock(clk clock.Clock) ConfigOption {
	return func(c *Config) {
		c.Clock = clk
	}
}

// WithRegisterer 设置指标注册器
func WithRegisterer(reg prometheus.Registerer) ConfigOption {
	return func(c *Config) {
		c.Registerer = reg
	}
}

// WithNetwork 设置出站消息通道
func WithNetwork(n interfaces.Network) ConfigOption {
	return func(c *Config) {
		c.Network = n
	}
}

// WithEngine 设置持久化引擎（由调用方负责关闭）
func WithEngine(eng engine.Engine) ConfigOption {
	return func(c *Config) {
		c.Engine = eng
	}
}

// WithValueQuorum 设置 GetValue 的记录数量配额
func WithValueQuorum(n int) ConfigOption {
	return func(c *Config) {
		c.ValueQuorum = n
	}
}

// WithMaxRecordAge 设置记录最大存活时间
func WithMaxRecordAge(age time.Duration) ConfigOption {
	return func(c *Config) {
		c.MaxRecordAge = age
	}
}

// WithMaxFailures 设置节点移出路由表前允许的连续失败次数
func WithMaxFailures(n int) ConfigOption {
	return func(c *Config) {
		c.MaxFailures = n
	}
}
