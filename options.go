package kaddht

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	"github.com/dep2p/go-kaddht/config"
	"github.com/dep2p/go-kaddht/pkg/interfaces"
	"github.com/dep2p/go-kaddht/pkg/types"
)

// Option 用户配置选项函数
type Option func(*options) error

// options 内部选项结构
type options struct {
	// 统一配置
	config *config.Config

	// 可选注入
	registerer prometheus.Registerer
	network    interfaces.Network

	// 用户自定义 Fx 选项
	userFxOptions []fx.Option
}

func newOptions() *options {
	return &options{config: config.NewConfig()}
}

// ════════════════════════════════════════════════════════════════════════════
//                              配置来源
// ════════════════════════════════════════════════════════════════════════════

// WithConfig 使用完整配置
//
// 会替换此前选项做出的修改，应放在其他选项之前。
func WithConfig(cfg *config.Config) Option {
	return func(o *options) error {
		if cfg == nil {
			return errors.New("config is nil")
		}
		o.config = cfg.Clone()
		return nil
	}
}

// WithConfigFile 从 JSON 文件加载配置
//
// 与 WithConfig 相同，会替换此前选项做出的修改。
func WithConfigFile(path string) Option {
	return func(o *options) error {
		cfg, err := config.Load(path)
		if err != nil {
			return fmt.Errorf("load config file: %w", err)
		}
		o.config = cfg
		return nil
	}
}

// ════════════════════════════════════════════════════════════════════════════
//                              DHT 配置
// ════════════════════════════════════════════════════════════════════════════

// WithBootstrapPeers 追加引导节点
//
// 启动后节点会在后台向引导节点执行一次 Bootstrap。
func WithBootstrapPeers(peers ...types.PeerInfo) Option {
	return func(o *options) error {
		for _, p := range peers {
			if err := p.ID.Validate(); err != nil {
				return fmt.Errorf("bootstrap peer: %w", err)
			}
			o.config.DHT.BootstrapPeers = append(o.config.DHT.BootstrapPeers, config.BootstrapPeer{
				PeerID: p.ID.String(),
				Addrs:  append([]string(nil), p.Addrs...),
			})
		}
		return nil
	}
}

// WithBucketSize 设置 K-桶大小
func WithBucketSize(k int) Option {
	return func(o *options) error {
		if k <= 0 {
			return fmt.Errorf("bucket size must be positive, got %d", k)
		}
		o.config.DHT.BucketSize = k
		return nil
	}
}

// WithAlpha 设置每条路径的并发数
func WithAlpha(alpha int) Option {
	return func(o *options) error {
		if alpha <= 0 {
			return fmt.Errorf("alpha must be positive, got %d", alpha)
		}
		o.config.DHT.Alpha = alpha
		return nil
	}
}

// WithDisjointPaths 设置不相交路径数
func WithDisjointPaths(d int) Option {
	return func(o *options) error {
		if d <= 0 {
			return fmt.Errorf("disjoint paths must be positive, got %d", d)
		}
		o.config.DHT.DisjointPaths = d
		return nil
	}
}

// WithTimeouts 设置单次请求与整个查询的超时
func WithTimeouts(request, query time.Duration) Option {
	return func(o *options) error {
		if request <= 0 || query <= 0 {
			return errors.New("timeouts must be positive")
		}
		o.config.DHT.RequestTimeout = config.Duration(request)
		o.config.DHT.QueryTimeout = config.Duration(query)
		return nil
	}
}

// WithValueStore 启用或禁用值存储
func WithValueStore(enabled bool) Option {
	return func(o *options) error {
		o.config.DHT.EnableValueStore = enabled
		return nil
	}
}

// WithDataDir 设置数据目录，启用持久化存储
func WithDataDir(dir string) Option {
	return func(o *options) error {
		o.config.Storage.DataDir = dir
		return nil
	}
}

// ════════════════════════════════════════════════════════════════════════════
//                              日志与注入
// ════════════════════════════════════════════════════════════════════════════

// WithLogLevel 设置日志级别（debug/info/warn/error）
func WithLogLevel(level string) Option {
	return func(o *options) error {
		o.config.Log.Level = level
		return nil
	}
}

// WithLogFormat 设置日志格式（text/json）
func WithLogFormat(format string) Option {
	return func(o *options) error {
		o.config.Log.Format = format
		return nil
	}
}

// WithRegisterer 注册 Prometheus 指标
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) error {
		o.registerer = reg
		return nil
	}
}

// WithNetwork 替换默认的流式网络适配器
func WithNetwork(n interfaces.Network) Option {
	return func(o *options) error {
		o.network = n
		return nil
	}
}

// WithFxOptions 追加自定义 Fx 选项
func WithFxOptions(opts ...fx.Option) Option {
	return func(o *options) error {
		o.userFxOptions = append(o.userFxOptions, opts...)
		return nil
	}
}
