package dht

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	"github.com/dep2p/go-kaddht/config"
	"github.com/dep2p/go-kaddht/internal/core/storage/engine"
	"github.com/dep2p/go-kaddht/pkg/interfaces"
	"github.com/dep2p/go-kaddht/pkg/types"
)

// Module DHT Fx 模块
var Module = fx.Module("discovery_dht",
	fx.Provide(
		NewFromParams,
	),
	fx.Invoke(registerDHTLifecycle),
)

// Params DHT 依赖参数
type Params struct {
	fx.In

	Host       interfaces.Host       // 网络主机
	UnifiedCfg *config.Config        `optional:"true"`
	Engine     engine.Engine         `optional:"true"` // 由 storage 模块提供，未配置数据目录时为 nil
	Network    interfaces.Network    `optional:"true"` // 替换默认的 NetworkAdapter
	Registerer prometheus.Registerer `optional:"true"`
}

// Result DHT 导出结果
type Result struct {
	fx.Out

	DHT          *DHT
	DHTInterface interfaces.DHT
}

// ConfigFromUnified 从统一配置创建 DHT 配置
//
// 统一配置中的零值字段保持默认值。
func ConfigFromUnified(cfg *config.Config) *Config {
	c := DefaultConfig()
	if cfg == nil {
		return c
	}
	d := cfg.DHT

	if d.ProtocolID != "" {
		c.ProtocolID = d.ProtocolID
	}
	setInt(&c.BucketSize, d.BucketSize)
	setInt(&c.Alpha, d.Alpha)
	setInt(&c.DisjointPaths, d.DisjointPaths)
	setInt(&c.ValueQuorum, d.ValueQuorum)
	setDuration(&c.RequestTimeout, d.RequestTimeout)
	setDuration(&c.QueryTimeout, d.QueryTimeout)
	setDuration(&c.RefreshInterval, d.RefreshInterval)
	setDuration(&c.MaxRecordAge, d.MaxRecordAge)
	setDuration(&c.ProviderTTL, d.ProviderTTL)
	setDuration(&c.CleanupInterval, d.CleanupInterval)
	c.EnableValueStore = d.EnableValueStore

	c.BootstrapPeers = parseBootstrapPeers(d.BootstrapPeers)
	if len(d.BootstrapPeers) > 0 {
		logger.Info("DHT 从统一配置解析引导节点",
			"configuredCount", len(d.BootstrapPeers),
			"parsedCount", len(c.BootstrapPeers))
	}
	return c
}

func setInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v config.Duration) {
	if v > 0 {
		*dst = v.Duration()
	}
}

// parseBootstrapPeers 解析引导节点，跳过 ID 非法的条目
func parseBootstrapPeers(peers []config.BootstrapPeer) []types.PeerInfo {
	var out []types.PeerInfo
	for _, p := range peers {
		id, err := types.PeerIDFromString(p.PeerID)
		if err != nil {
			logger.Debug("解析 DHT 引导节点失败", "peer", p.PeerID, "error", err)
			continue
		}
		out = append(out, types.PeerInfo{
			ID:    id,
			Addrs: append([]string(nil), p.Addrs...),
		})
	}
	return out
}

// NewFromParams 从 Fx 参数创建 DHT
func NewFromParams(p Params) (Result, error) {
	cfg := ConfigFromUnified(p.UnifiedCfg)
	cfg.Engine = p.Engine
	cfg.Network = p.Network
	cfg.Registerer = p.Registerer

	if p.Host == nil {
		return Result{}, ErrNilHost
	}
	d, err := newDHT(p.Host, cfg)
	if err != nil {
		return Result{}, err
	}

	return Result{
		DHT:          d,
		DHTInterface: d,
	}, nil
}

// registerDHTLifecycle 注册 DHT 生命周期钩子
func registerDHTLifecycle(lc fx.Lifecycle, d *DHT) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := d.Start(ctx); err != nil {
				logger.Error("DHT 启动失败", "error", err)
				return err
			}
			if len(d.config.BootstrapPeers) > 0 {
				d.wg.Add(1)
				go d.scheduleBootstrap()
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := d.Stop(ctx); err != nil {
				logger.Error("DHT 停止失败", "error", err)
				return err
			}
			return nil
		},
	})
}

// scheduleBootstrap 启动后在后台执行一次 Bootstrap，失败只记录日志
func (d *DHT) scheduleBootstrap() {
	defer d.wg.Done()

	ctx, cancel := context.WithTimeout(d.ctx, d.config.QueryTimeout)
	defer cancel()

	logger.Info("DHT 自动 Bootstrap 开始")
	if err := d.Bootstrap(ctx); err != nil {
		logger.Warn("DHT 自动 Bootstrap 失败", "error", err)
		return
	}
	logger.Info("DHT 自动 Bootstrap 完成", "routingTableSize", d.routingTable.Size())
}
