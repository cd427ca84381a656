package interfaces

import (
	pb "github.com/dep2p/go-kaddht/pkg/lib/proto/dht"
)

// Validator 记录校验器
//
// 存储或接受任何记录之前都必须通过校验。
type Validator interface {
	// Validate 校验记录，拒绝时返回错误
	Validate(key []byte, rec *pb.Record) error
}

// Selector 记录择优器
//
// 对于固定的 key，Select 必须构成全序：任意调用方对同一组候选得到相同结果。
type Selector interface {
	// Select 返回 a、b 中更优的一个（相同时返回 a）
	Select(key []byte, a, b *pb.Record) *pb.Record
}
