package badger

import (
	"bytes"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"

	"github.com/dep2p/go-kaddht/internal/core/storage/engine"
)

// Iterator BadgerDB 迭代器实现
//
// 持有一个只读事务，Close 时释放。
type Iterator struct {
	txn      *badger.Txn
	iter     *badger.Iterator
	prefix   []byte
	startKey []byte
	endKey   []byte
	started  bool
	closed   atomic.Bool
	err      error
}

// First 移动到第一个键值对
func (it *Iterator) First() bool {
	if it.closed.Load() {
		return false
	}

	it.started = true
	switch {
	case len(it.startKey) > 0:
		it.iter.Seek(it.startKey)
	case len(it.prefix) > 0:
		it.iter.Seek(it.prefix)
	default:
		it.iter.Rewind()
	}
	return it.inRange()
}

// Next 移动到下一个键值对
func (it *Iterator) Next() bool {
	if it.closed.Load() {
		return false
	}
	if !it.started {
		return it.First()
	}

	it.iter.Next()
	return it.inRange()
}

// inRange 当前键是否仍在前缀和结束键范围内
func (it *Iterator) inRange() bool {
	if !it.iter.Valid() {
		return false
	}

	key := it.iter.Item().Key()
	if len(it.prefix) > 0 && !bytes.HasPrefix(key, it.prefix) {
		return false
	}
	if len(it.endKey) > 0 && bytes.Compare(key, it.endKey) >= 0 {
		return false
	}
	return true
}

// Valid 检查迭代器是否指向有效位置
func (it *Iterator) Valid() bool {
	if it.closed.Load() {
		return false
	}
	return it.inRange()
}

// Key 返回当前键
func (it *Iterator) Key() []byte {
	if it.closed.Load() || !it.iter.Valid() {
		return nil
	}
	return it.iter.Item().KeyCopy(nil)
}

// Value 返回当前值
func (it *Iterator) Value() []byte {
	if it.closed.Load() || !it.iter.Valid() {
		return nil
	}

	value, err := it.iter.Item().ValueCopy(nil)
	if err != nil {
		it.err = err
		return nil
	}
	return value
}

// Close 关闭迭代器
func (it *Iterator) Close() {
	if it.closed.Swap(true) {
		return
	}
	it.iter.Close()
	it.txn.Discard()
}

// Error 返回迭代过程中的错误
func (it *Iterator) Error() error {
	return it.err
}

var _ engine.Iterator = (*Iterator)(nil)
