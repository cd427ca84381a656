// Package lib 包含基础设施工具库
//
// 本目录包含与架构组件无关的通用工具库：
//
//   - log: 日志封装（slog，fx 事件日志桥接到 zap）
//   - proto: 网络消息定义与编解码
//
// # 与 pkg/ 其他目录的关系
//
// pkg/ 目录包含三类内容：
//
//   - interfaces/: 组件公共接口（架构核心）
//   - types/: 公共类型定义（架构核心）
//   - lib/: 基础设施工具库（本目录）
//
// # 使用示例
//
//	import (
//	    "github.com/dep2p/go-kaddht/pkg/lib/log"
//	    pb "github.com/dep2p/go-kaddht/pkg/lib/proto/dht"
//	)
package lib
