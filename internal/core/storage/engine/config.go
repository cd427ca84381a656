package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config 存储引擎配置
//
// 测试代码应使用 t.TempDir() 创建临时目录。
type Config struct {
	// Path 数据目录路径（必需）
	Path string

	// SyncWrites 每次写入都同步到磁盘
	SyncWrites bool

	// ReadOnly 只读模式
	ReadOnly bool

	// Logger 日志记录器，nil 时禁用 BadgerDB 日志
	Logger Logger

	// Badger 特定选项
	Badger BadgerOptions
}

// BadgerOptions BadgerDB 特定选项
//
// DHT 记录体积小、数量有限，默认值比 BadgerDB 自带的要保守。
type BadgerOptions struct {
	// MemTableSize 内存表大小（字节）
	MemTableSize int64

	// ValueLogFileSize 值日志文件大小（字节）
	ValueLogFileSize int64

	// NumMemtables 内存表数量
	NumMemtables int

	// ValueThreshold 大于此值的值存入值日志
	ValueThreshold int64

	// BlockCacheSize 块缓存大小（字节）
	BlockCacheSize int64

	// NumCompactors 压缩器数量
	NumCompactors int

	// ZSTDCompressionLevel ZSTD 压缩级别，0 表示禁用
	ZSTDCompressionLevel int

	// GCInterval 值日志垃圾回收间隔，0 表示禁用
	GCInterval time.Duration

	// GCDiscardRatio 垃圾回收丢弃比例
	GCDiscardRatio float64
}

// Logger BadgerDB 日志接口
type Logger interface {
	Errorf(format string, args ...interface{})
	Warningf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

// DefaultConfig 返回默认配置
func DefaultConfig(path string) *Config {
	return &Config{
		Path:   path,
		Badger: DefaultBadgerOptions(),
	}
}

// DefaultBadgerOptions 返回默认 BadgerDB 选项
func DefaultBadgerOptions() BadgerOptions {
	return BadgerOptions{
		MemTableSize:         16 << 20,  // 16MB
		ValueLogFileSize:     256 << 20, // 256MB
		NumMemtables:         3,
		ValueThreshold:       1 << 10,  // 1KB
		BlockCacheSize:       32 << 20, // 32MB
		NumCompactors:        2,
		ZSTDCompressionLevel: 1,
		GCInterval:           10 * time.Minute,
		GCDiscardRatio:       0.5,
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("%w: path is required", ErrInvalidConfig)
	}
	if c.Badger.MemTableSize < 1<<20 {
		return fmt.Errorf("%w: memtable size below 1MB", ErrInvalidConfig)
	}
	if c.Badger.ValueLogFileSize < 1<<20 {
		return fmt.Errorf("%w: value log file size below 1MB", ErrInvalidConfig)
	}
	if c.Badger.NumCompactors < 2 {
		return fmt.Errorf("%w: need at least 2 compactors", ErrInvalidConfig)
	}
	return nil
}

// EnsureDir 确保数据目录存在，并把 Path 转为绝对路径
func (c *Config) EnsureDir() error {
	absPath, err := filepath.Abs(c.Path)
	if err != nil {
		return err
	}
	c.Path = absPath

	return os.MkdirAll(c.Path, 0755)
}
