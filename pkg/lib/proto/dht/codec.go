package dht

import (
	"errors"
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/dep2p/go-kaddht/pkg/types"
)

// ErrMalformedMessage 消息无法解码
var ErrMalformedMessage = errors.New("dht: malformed message")

// 字段编号（与 dht.proto 一致）
const (
	fieldMessageType     protowire.Number = 1
	fieldMessageKey      protowire.Number = 2
	fieldMessageRecord   protowire.Number = 3
	fieldMessageCloser   protowire.Number = 8
	fieldMessageProvider protowire.Number = 9
	fieldMessageCluster  protowire.Number = 10
	fieldMessageError    protowire.Number = 20

	fieldPeerID         protowire.Number = 1
	fieldPeerAddrs      protowire.Number = 2
	fieldPeerConnection protowire.Number = 3

	fieldRecordKey          protowire.Number = 1
	fieldRecordValue        protowire.Number = 2
	fieldRecordMetadata     protowire.Number = 3
	fieldRecordTimeReceived protowire.Number = 5
)

// ============================================================================
//                              编码
// ============================================================================

// Marshal 按 protobuf wire 格式编码消息
//
// proto3 语义：零值字段不写出。
func (m *Message) Marshal() ([]byte, error) {
	var b []byte
	if m.Type != 0 {
		b = protowire.AppendTag(b, fieldMessageType, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(int64(m.Type)))
	}
	if len(m.Key) > 0 {
		b = protowire.AppendTag(b, fieldMessageKey, protowire.BytesType)
		b = protowire.AppendBytes(b, m.Key)
	}
	if m.Record != nil {
		b = protowire.AppendTag(b, fieldMessageRecord, protowire.BytesType)
		b = protowire.AppendBytes(b, m.Record.marshal())
	}
	for i := range m.CloserPeers {
		b = protowire.AppendTag(b, fieldMessageCloser, protowire.BytesType)
		b = protowire.AppendBytes(b, m.CloserPeers[i].marshal())
	}
	for i := range m.ProviderPeers {
		b = protowire.AppendTag(b, fieldMessageProvider, protowire.BytesType)
		b = protowire.AppendBytes(b, m.ProviderPeers[i].marshal())
	}
	if m.clusterLevelRaw != 0 {
		b = protowire.AppendTag(b, fieldMessageCluster, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(int64(m.clusterLevelRaw)))
	}
	if m.Error != "" {
		b = protowire.AppendTag(b, fieldMessageError, protowire.BytesType)
		b = protowire.AppendString(b, m.Error)
	}
	return b, nil
}

func (p *PeerEntry) marshal() []byte {
	var b []byte
	if p.ID != "" {
		b = protowire.AppendTag(b, fieldPeerID, protowire.BytesType)
		b = protowire.AppendBytes(b, p.ID.Bytes())
	}
	for _, addr := range p.Addrs {
		b = protowire.AppendTag(b, fieldPeerAddrs, protowire.BytesType)
		b = protowire.AppendString(b, addr)
	}
	if p.Connection != 0 {
		b = protowire.AppendTag(b, fieldPeerConnection, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(int64(p.Connection)))
	}
	return b
}

func (r *Record) marshal() []byte {
	var b []byte
	if len(r.Key) > 0 {
		b = protowire.AppendTag(b, fieldRecordKey, protowire.BytesType)
		b = protowire.AppendBytes(b, r.Key)
	}
	if len(r.Value) > 0 {
		b = protowire.AppendTag(b, fieldRecordValue, protowire.BytesType)
		b = protowire.AppendBytes(b, r.Value)
	}
	if len(r.Metadata) > 0 {
		b = protowire.AppendTag(b, fieldRecordMetadata, protowire.BytesType)
		b = protowire.AppendBytes(b, r.Metadata)
	}
	if r.TimeReceived != 0 {
		b = protowire.AppendTag(b, fieldRecordTimeReceived, protowire.BytesType)
		b = protowire.AppendString(b, formatTimeReceived(r.TimeReceived))
	}
	return b
}

// ============================================================================
//                              解码
// ============================================================================

// Unmarshal 解码消息，覆盖 m 的全部字段
//
// 未知字段被跳过；截断或格式错误返回 ErrMalformedMessage。
func (m *Message) Unmarshal(b []byte) error {
	*m = Message{}
	return walkFields(b, func(num protowire.Number, typ protowire.Type, v []byte, x uint64) error {
		switch {
		case num == fieldMessageType && typ == protowire.VarintType:
			m.Type = MessageType(int32(x))
		case num == fieldMessageKey && typ == protowire.BytesType:
			m.Key = cloneBytes(v)
		case num == fieldMessageRecord && typ == protowire.BytesType:
			rec := &Record{}
			if err := rec.unmarshal(v); err != nil {
				return err
			}
			m.Record = rec
		case num == fieldMessageCloser && typ == protowire.BytesType:
			var p PeerEntry
			if err := p.unmarshal(v); err != nil {
				return err
			}
			m.CloserPeers = append(m.CloserPeers, p)
		case num == fieldMessageProvider && typ == protowire.BytesType:
			var p PeerEntry
			if err := p.unmarshal(v); err != nil {
				return err
			}
			m.ProviderPeers = append(m.ProviderPeers, p)
		case num == fieldMessageCluster && typ == protowire.VarintType:
			m.clusterLevelRaw = int32(x)
		case num == fieldMessageError && typ == protowire.BytesType:
			m.Error = string(v)
		}
		return nil
	})
}

func (p *PeerEntry) unmarshal(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, v []byte, x uint64) error {
		switch {
		case num == fieldPeerID && typ == protowire.BytesType:
			p.ID = types.PeerID(v)
		case num == fieldPeerAddrs && typ == protowire.BytesType:
			p.Addrs = append(p.Addrs, string(v))
		case num == fieldPeerConnection && typ == protowire.VarintType:
			p.Connection = ConnectionType(int32(x))
		}
		return nil
	})
}

func (r *Record) unmarshal(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, v []byte, x uint64) error {
		switch {
		case num == fieldRecordKey && typ == protowire.BytesType:
			r.Key = cloneBytes(v)
		case num == fieldRecordValue && typ == protowire.BytesType:
			r.Value = cloneBytes(v)
		case num == fieldRecordMetadata && typ == protowire.BytesType:
			r.Metadata = cloneBytes(v)
		case num == fieldRecordTimeReceived && typ == protowire.BytesType:
			r.TimeReceived = parseTimeReceived(string(v))
		}
		return nil
	})
}

// formatTimeReceived 接收时间的线上格式：RFC 3339 字符串
func formatTimeReceived(ns int64) string {
	return time.Unix(0, ns).UTC().Format(time.RFC3339Nano)
}

// parseTimeReceived 解析接收时间，无法解析时视为未填写
func parseTimeReceived(s string) int64 {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return 0
	}
	return t.UnixNano()
}

// walkFields 依次回调每个字段
//
// varint 字段的值通过 x 传入，bytes 字段通过 v 传入；其它 wire 类型直接跳过。
func walkFields(b []byte, fn func(num protowire.Number, typ protowire.Type, v []byte, x uint64) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrMalformedMessage, protowire.ParseError(n))
		}
		b = b[n:]

		switch typ {
		case protowire.VarintType:
			x, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return fmt.Errorf("%w: field %d: %v", ErrMalformedMessage, num, protowire.ParseError(n))
			}
			if err := fn(num, typ, nil, x); err != nil {
				return err
			}
			b = b[n:]
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return fmt.Errorf("%w: field %d: %v", ErrMalformedMessage, num, protowire.ParseError(n))
			}
			if err := fn(num, typ, v, 0); err != nil {
				return err
			}
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return fmt.Errorf("%w: field %d: %v", ErrMalformedMessage, num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return nil
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte{}, b...)
}
