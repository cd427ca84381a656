package kaddht

import (
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap/zapcore"

	"github.com/dep2p/go-kaddht/config"
	"github.com/dep2p/go-kaddht/internal/core/storage"
	"github.com/dep2p/go-kaddht/internal/discovery/dht"
	"github.com/dep2p/go-kaddht/pkg/interfaces"
	"github.com/dep2p/go-kaddht/pkg/lib/log"
)

var fxLogger = log.Logger("kaddht/fx")

// ════════════════════════════════════════════════════════════════════════════
//                              Fx 应用构建
// ════════════════════════════════════════════════════════════════════════════

// buildFxApp 构建 Fx 应用
//
// 模块依赖顺序：
//
//	config → storage → dht
//
// Host 由调用方提供，节点不负责传输层。
func buildFxApp(host interfaces.Host, o *options, node *Node) (*fx.App, error) {
	// ════════════════════════════════════════════════════════════════════════
	// 1. 配置验证（前置）
	// ════════════════════════════════════════════════════════════════════════
	if err := o.config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	// ════════════════════════════════════════════════════════════════════════
	// 2. 核心模块
	// ════════════════════════════════════════════════════════════════════════
	modules := []fx.Option{
		// 配置注入
		fx.Supply(o.config),
		fx.Provide(func() interfaces.Host { return host }),

		storage.Module(), // 未配置数据目录时不创建引擎
		dht.Module,
	}

	// ════════════════════════════════════════════════════════════════════════
	// 3. 可选注入
	// ════════════════════════════════════════════════════════════════════════
	if o.registerer != nil {
		reg := o.registerer
		modules = append(modules, fx.Provide(func() prometheus.Registerer { return reg }))
		fxLogger.Debug("已启用 DHT 指标")
	}
	if o.network != nil {
		network := o.network
		modules = append(modules, fx.Provide(func() interfaces.Network { return network }))
		fxLogger.Debug("使用自定义网络适配器")
	}

	// ════════════════════════════════════════════════════════════════════════
	// 4. 用户自定义选项
	// ════════════════════════════════════════════════════════════════════════
	if len(o.userFxOptions) > 0 {
		modules = append(modules, o.userFxOptions...)
	}

	// ════════════════════════════════════════════════════════════════════════
	// 5. Node 组件注入
	// ════════════════════════════════════════════════════════════════════════
	modules = append(modules, fx.Invoke(injectNodeComponents(node)))

	// ════════════════════════════════════════════════════════════════════════
	// 6. Fx 配置
	// ════════════════════════════════════════════════════════════════════════
	modules = append(modules,
		// Fx 事件日志与节点日志共用输出，常规事件降为 Debug
		fx.WithLogger(func() fxevent.Logger {
			l := &fxevent.ZapLogger{Logger: log.NewZap()}
			l.UseLogLevel(zapcore.DebugLevel)
			return l
		}),
	)

	app := fx.New(modules...)
	if err := app.Err(); err != nil {
		return nil, err
	}
	return app, nil
}

// nodeInjectParams Node 需要的组件
type nodeInjectParams struct {
	fx.In

	DHT *dht.DHT
}

// injectNodeComponents 将 Fx 构建的组件注入 Node
func injectNodeComponents(node *Node) interface{} {
	return func(params nodeInjectParams) {
		node.dht = params.DHT
	}
}

// ════════════════════════════════════════════════════════════════════════════
// 配置转换函数
// ════════════════════════════════════════════════════════════════════════════

// applyLogConfig 按统一配置重建默认 logger
//
// 环境变量 KADDHT_LOG_LEVEL / KADDHT_LOG_FORMAT 优先于配置。
func applyLogConfig(cfg config.LogConfig) {
	lc := log.DefaultConfig()
	if level, ok := log.ParseLevel(cfg.Level); ok {
		lc.Level = level
	}
	if cfg.Format != "" {
		lc.Format = log.ParseFormat(cfg.Format)
	}

	env := log.ConfigFromEnv()
	if os.Getenv(log.EnvLogLevel) != "" {
		lc.Level = env.Level
	}
	if os.Getenv(log.EnvLogFormat) != "" {
		lc.Format = env.Format
	}
	log.Setup(lc)
}
