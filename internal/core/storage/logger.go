package storage

import (
	"fmt"
	"strings"

	"github.com/dep2p/go-kaddht/pkg/lib/log"
)

var badgerLog = log.Logger("storage/badger")

// badgerLogger 把 BadgerDB 的 printf 风格日志接到 slog
//
// BadgerDB 的 Info 级别很嘈杂，降为 Debug。
type badgerLogger struct{}

func (badgerLogger) Errorf(format string, args ...interface{}) {
	badgerLog.Error(sprintf(format, args...))
}

func (badgerLogger) Warningf(format string, args ...interface{}) {
	badgerLog.Warn(sprintf(format, args...))
}

func (badgerLogger) Infof(format string, args ...interface{}) {
	badgerLog.Debug(sprintf(format, args...))
}

func (badgerLogger) Debugf(format string, args ...interface{}) {
	badgerLog.Debug(sprintf(format, args...))
}

func sprintf(format string, args ...interface{}) string {
	return strings.TrimSpace(fmt.Sprintf(format, args...))
}
