package interfaces

import (
	"context"

	pb "github.com/dep2p/go-kaddht/pkg/lib/proto/dht"
	"github.com/dep2p/go-kaddht/pkg/types"
)

//go:generate mockgen -destination=mocks/mock_network.go -package=mocks github.com/dep2p/go-kaddht/pkg/interfaces Network

// Network DHT 的消息收发边界
//
// SendMessage 把请求送达 peer 并等待响应，截止时间由 ctx 决定。
// 实现不得在内部重试：重试属于查询层的决策。
type Network interface {
	SendMessage(ctx context.Context, peer types.PeerID, req *pb.Message) (*pb.Message, error)
}
