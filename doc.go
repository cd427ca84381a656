// Package kaddht 提供基于 S/Kademlia 的分布式哈希表节点
//
// kaddht 在调用方提供的 Host（流式传输）之上运行 Kademlia 查询引擎，
// 支持节点查找、内容路由（Provider）和带版本号的值存储。
//
// # 核心概念
//
//   - Node: DHT 节点，用户交互的主入口
//   - Host: 传输层抽象，负责地址、拨号和协议流（由调用方实现）
//   - config.Config: 统一 JSON 配置（DHT / Storage / Log）
//
// # 快速开始
//
//	import "github.com/dep2p/go-kaddht"
//
//	// 1. 创建并启动节点
//	node, err := kaddht.Start(ctx, host,
//	    kaddht.WithBootstrapPeers(boot),
//	    kaddht.WithDataDir("./data"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer node.Close()
//
//	// 2. 内容路由
//	key := types.NewContentKey(data)
//	_ = node.Provide(ctx, key, true)
//	providers, _ := node.FindProviders(ctx, key, 20)
//
//	// 3. 值存储
//	_ = node.PutValue(ctx, []byte("/v/name"), []byte("value"))
//	value, _ := node.GetValue(ctx, []byte("/v/name"))
//
// # 模块组装
//
// Node 使用 Fx 组装组件：
//
//	config → storage（BadgerDB，可选）→ dht
//
// 未配置数据目录时 Provider 与值记录只保存在内存中。
//
// # 错误处理
//
// 查询错误与内部 DHT 使用同一组错误值，可用 errors.Is 匹配：
//
//	if errors.Is(err, kaddht.ErrNotFound) {
//	    // 没有节点持有该记录
//	}
package kaddht
