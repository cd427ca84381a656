package storage

import (
	"time"

	"github.com/dep2p/go-kaddht/config"
	"github.com/dep2p/go-kaddht/internal/core/storage/engine"
)

// Config Storage 模块配置
type Config struct {
	// Path BadgerDB 数据库目录，为空表示不启用持久化
	Path string

	// SyncWrites 每次写入都同步到磁盘
	SyncWrites bool

	// GCInterval 值日志垃圾回收间隔
	GCInterval time.Duration

	// GCDiscardRatio 垃圾回收丢弃比例
	GCDiscardRatio float64

	// BlockCacheSize 块缓存大小（字节）
	BlockCacheSize int64

	// Compression ZSTD 压缩级别（0 禁用）
	Compression int
}

// DefaultConfig 返回默认配置（不启用持久化）
func DefaultConfig() Config {
	return Config{
		GCInterval:     10 * time.Minute,
		GCDiscardRatio: 0.5,
		BlockCacheSize: 32 << 20,
		Compression:    1,
	}
}

// ConfigFromUnified 从统一配置创建 Storage 配置
func ConfigFromUnified(cfg *config.Config) Config {
	storageCfg := DefaultConfig()
	if cfg == nil {
		return storageCfg
	}
	if cfg.Storage.Persistent() {
		storageCfg.Path = cfg.Storage.DBPath()
	}
	return storageCfg
}

// Enabled 是否启用持久化
func (c *Config) Enabled() bool {
	return c.Path != ""
}

// ToEngineConfig 转换为引擎配置
func (c *Config) ToEngineConfig() *engine.Config {
	engineCfg := engine.DefaultConfig(c.Path)

	engineCfg.SyncWrites = c.SyncWrites
	engineCfg.Badger.GCInterval = c.GCInterval
	engineCfg.Badger.GCDiscardRatio = c.GCDiscardRatio
	engineCfg.Badger.BlockCacheSize = c.BlockCacheSize
	engineCfg.Badger.ZSTDCompressionLevel = c.Compression
	engineCfg.Logger = badgerLogger{}

	return engineCfg
}

// Validate 规范化 GC 参数
func (c *Config) Validate() error {
	if c.GCInterval < time.Minute {
		c.GCInterval = time.Minute
	}
	if c.GCDiscardRatio <= 0 || c.GCDiscardRatio > 1 {
		c.GCDiscardRatio = 0.5
	}
	return nil
}

// WithPath 设置存储路径
func (c Config) WithPath(path string) Config {
	c.Path = path
	return c
}

// WithSyncWrites 设置同步写入
func (c Config) WithSyncWrites(sync bool) Config {
	c.SyncWrites = sync
	return c
}
