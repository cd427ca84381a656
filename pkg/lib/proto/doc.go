// Package proto 定义 go-kaddht 的网络协议消息（wire format）
//
// # 子包
//
//   - dht: Kademlia DHT 请求/响应消息及其编解码
//
// # 与 pkg/types 的区别
//
// pkg/proto 定义网络协议消息（wire format），
// pkg/types 定义 Go 内部数据结构（内存结构）。
//
// 消息按 protobuf wire 格式编码（google.golang.org/protobuf/encoding/protowire），
// 字段编号与 libp2p dht.proto 保持兼容。
//
// # 使用示例
//
//	import pb "github.com/dep2p/go-kaddht/pkg/lib/proto/dht"
//
//	msg := pb.NewMessage(pb.MessageType_FIND_NODE, target)
//	data, err := msg.Marshal()
package proto
