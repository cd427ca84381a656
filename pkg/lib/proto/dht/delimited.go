package dht

import (
	"errors"
	"fmt"
	"io"

	"github.com/multiformats/go-varint"
)

// MaxMessageSize 单条消息最大字节数
const MaxMessageSize = 4 << 20

// ErrMessageTooLarge 消息超过大小限制
var ErrMessageTooLarge = errors.New("dht: message too large")

// Reader 带长度前缀读取所需的接口（bufio.Reader 满足）
type Reader interface {
	io.Reader
	io.ByteReader
}

// WriteDelimited 写出 <uvarint 长度><消息体>
func WriteDelimited(w io.Writer, m *Message) error {
	data, err := m.Marshal()
	if err != nil {
		return err
	}
	if len(data) > MaxMessageSize {
		return fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, len(data))
	}

	buf := make([]byte, 0, varint.UvarintSize(uint64(len(data)))+len(data))
	buf = append(buf, varint.ToUvarint(uint64(len(data)))...)
	buf = append(buf, data...)

	_, err = w.Write(buf)
	return err
}

// ReadDelimited 读取一条带长度前缀的消息
//
// 流在消息边界处结束时返回 io.EOF。
func ReadDelimited(r Reader, maxSize int) (*Message, error) {
	if maxSize <= 0 {
		maxSize = MaxMessageSize
	}

	length, err := varint.ReadUvarint(r)
	if err != nil {
		switch {
		case errors.Is(err, io.EOF):
			return nil, io.EOF
		case errors.Is(err, varint.ErrOverflow), errors.Is(err, varint.ErrNotMinimal):
			return nil, fmt.Errorf("%w: bad length prefix: %v", ErrMalformedMessage, err)
		default:
			return nil, fmt.Errorf("read length prefix: %w", err)
		}
	}
	if length > uint64(maxSize) {
		return nil, fmt.Errorf("%w: %d > %d", ErrMessageTooLarge, length, maxSize)
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("read message body: %w", err)
	}

	msg := &Message{}
	if err := msg.Unmarshal(data); err != nil {
		return nil, err
	}
	return msg, nil
}
