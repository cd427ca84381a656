package interfaces

import (
	"context"

	"github.com/dep2p/go-kaddht/pkg/types"
)

// DHT 定义分布式哈希表接口
//
// 架构位置：Discovery Layer
// 实现位置：internal/discovery/dht/
//
// 使用示例:
//
//	d, _ := dht.New(host, dht.WithBucketSize(20))
//	d.Start(ctx)
//	defer d.Stop()
//
//	d.PutValue(ctx, []byte("/v/key"), []byte("value"))
//	value, _ := d.GetValue(ctx, []byte("/v/key"))
//
//	key := types.NewContentKey(data)
//	d.Provide(ctx, key, true)
//	providers, _ := d.FindProviders(ctx, key, 20)
type DHT interface {
	// Bootstrap 执行引导过程：查找自身以填充路由表
	Bootstrap(ctx context.Context) error

	// Ping 检测节点存活
	Ping(ctx context.Context, peer types.PeerID) error

	// GetClosestPeers 查找距离 key 最近的节点
	GetClosestPeers(ctx context.Context, key []byte) ([]types.PeerID, error)

	// FindPeer 查找特定节点的地址
	FindPeer(ctx context.Context, peer types.PeerID) (types.PeerInfo, error)

	// Provide 声明本节点提供指定内容
	//
	// announce 为 false 时只写入本地 ProviderStore。
	Provide(ctx context.Context, key types.ContentKey, announce bool) error

	// FindProviders 查找内容提供者，count<=0 时使用默认配额
	FindProviders(ctx context.Context, key types.ContentKey, count int) ([]types.PeerInfo, error)

	// PutValue 存储值
	PutValue(ctx context.Context, key, value []byte) error

	// GetValue 获取值
	GetValue(ctx context.Context, key []byte) ([]byte, error)
}
