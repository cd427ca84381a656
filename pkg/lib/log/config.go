package log

import (
	"log/slog"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// 环境变量
const (
	// EnvLogLevel 日志级别（debug/info/warn/error）
	EnvLogLevel = "KADDHT_LOG_LEVEL"
	// EnvLogFormat 日志格式（text/json）
	EnvLogFormat = "KADDHT_LOG_FORMAT"
)

// Format 日志输出格式
type Format int

const (
	// FormatText 文本格式（默认）
	FormatText Format = iota
	// FormatJSON JSON 格式
	FormatJSON
)

// Config 日志配置
type Config struct {
	// Level 日志级别
	Level slog.Level

	// Format 输出格式
	Format Format

	// AddSource 是否添加源码位置
	AddSource bool
}

// DefaultConfig 返回默认日志配置
func DefaultConfig() Config {
	return Config{
		Level:  slog.LevelInfo,
		Format: FormatText,
	}
}

// ConfigFromEnv 从环境变量解析配置
//
// 环境变量:
//   - KADDHT_LOG_LEVEL: debug/info/warn/error
//   - KADDHT_LOG_FORMAT: text 或 json
func ConfigFromEnv() Config {
	cfg := DefaultConfig()
	if s := os.Getenv(EnvLogLevel); s != "" {
		if level, ok := ParseLevel(s); ok {
			cfg.Level = level
		}
	}
	if s := os.Getenv(EnvLogFormat); s != "" {
		cfg.Format = ParseFormat(s)
	}
	return cfg
}

// ParseLevel 解析日志级别名称
func ParseLevel(name string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

// ParseFormat 解析日志格式名称，未知值视为 text
func ParseFormat(name string) Format {
	if strings.EqualFold(strings.TrimSpace(name), "json") {
		return FormatJSON
	}
	return FormatText
}

// Setup 按配置重建默认 logger
func Setup(cfg Config) {
	levelVar.Set(cfg.Level)

	opts := &slog.HandlerOptions{
		Level:     levelVar,
		AddSource: cfg.AddSource,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Key = "ts"
			}
			return a
		},
	}

	var h slog.Handler
	if cfg.Format == FormatJSON {
		h = slog.NewJSONHandler(dynamicWriter{}, opts)
	} else {
		h = slog.NewTextHandler(dynamicWriter{}, opts)
	}
	slog.SetDefault(slog.New(h))
}

// ============================================================================
//                              zap 桥接
// ============================================================================

// NewZap 创建与当前级别一致的 zap logger
//
// 用于 fx 事件日志（fxevent.ZapLogger）。输出与 slog 共用同一目标。
func NewZap() *zap.Logger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.AddSync(dynamicWriter{}),
		zap.LevelEnablerFunc(func(l zapcore.Level) bool {
			return slogLevel(l) >= levelVar.Level()
		}),
	)
	return zap.New(core)
}

// slogLevel 将 zap 级别映射到 slog 级别
func slogLevel(l zapcore.Level) slog.Level {
	switch {
	case l <= zapcore.DebugLevel:
		return slog.LevelDebug
	case l == zapcore.InfoLevel:
		return slog.LevelInfo
	case l == zapcore.WarnLevel:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}
