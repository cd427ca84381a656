// Package dht 实现 Kademlia DHT 查询引擎
//
// # 模块概述
//
// dht 基于 Kademlia 协议实现分布式哈希表，提供节点查找、内容路由
// （Provider）和值存储。查询采用 S/Kademlia 的多条不相交路径。
//
// # 核心组件
//
// 1. 路由表（RoutingTable）
//   - 256 个 K-Bucket，按与本地 DHT-ID 的公共前缀长度分桶
//   - 桶满时只有新节点可达才驱逐最久未活跃的节点，否则进入替换缓存
//   - 连续失败 MaxFailures 次的节点被移除，替换缓存中的候选补位
//
// 2. 查询（Query / Run / path）
//   - 种子为路由表中距离目标最近的 k 个节点，按距离轮流分配到 DisjointPaths 条路径
//   - 每条路径 Alpha 个 worker，共享 peersQueried 集合，每个节点每次 Run 最多查询一次
//   - 返回的节点都不比本路径已查询的最近节点更近时，路径收敛
//   - QueryFunc 宣告成功时整个 Run 提前结束
//
// 3. 存储
//   - ProviderStore: (key, peer) 唯一，TTL 到期惰性清除
//   - RecordStore: 每个键一条由 Selector 择优的记录，写入前经 Validator 校验
//   - 配置了数据目录时写穿到 BadgerDB（前缀 d/p/ 与 d/v/）
//
// 4. 协议
//   - Handler: 处理 PING / FIND_NODE / GET_VALUE / PUT_VALUE / ADD_PROVIDER / GET_PROVIDERS
//   - NetworkAdapter: 基于 Host 协议流的 varint 长度前缀 protobuf 帧
//   - ADD_PROVIDER 只接受发送方声明自己，PUT_VALUE 与 ADD_PROVIDER 按发送方限流
//
// # 使用示例
//
//	d, err := dht.New(host,
//	    dht.WithBootstrapPeers(peers),
//	    dht.WithDataDir("/var/lib/kaddht"))
//	if err != nil {
//	    return err
//	}
//	if err := d.Start(ctx); err != nil {
//	    return err
//	}
//	defer d.Stop(ctx)
//
//	_ = d.Bootstrap(ctx)
//
//	key := types.NewContentKey(data)
//	_ = d.Provide(ctx, key, true)
//	providers, err := d.FindProviders(ctx, key, 20)
//
// # 错误
//
// 查询中单个节点的失败在路径内部消化，不会直接返回给调用方。
// 调用方看到的错误：
//   - ErrMissingKey / ErrInvalidKey / ErrValidationFailed: 同步返回
//   - ErrNoPeersAvailable: 路由表为空
//   - ErrNotFound: 没有任何节点成功响应，或没有找到记录
//   - ErrTimeout: 查询超时，同时返回部分结果
//   - ErrCancelled: 调用方取消
//
// 对端在响应中报告的错误匹配 ErrRemote，能识别时同时匹配对应的错误。
//
// # Fx 模块
//
//	fx.New(
//	    fx.Supply(cfg),
//	    fx.Provide(func() interfaces.Host { return host }),
//	    storage.Module(),
//	    dht.Module,
//	)
package dht
