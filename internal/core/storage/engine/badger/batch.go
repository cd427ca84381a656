package badger

import (
	"github.com/dgraph-io/badger/v4"

	"github.com/dep2p/go-kaddht/internal/core/storage/engine"
)

// WriteBatch BadgerDB 批量写入实现
//
// 非并发安全。
type WriteBatch struct {
	db    *Engine
	batch *badger.WriteBatch
	count int
	err   error
}

// Put 添加一个写入操作
func (b *WriteBatch) Put(key, value []byte) {
	if len(key) == 0 || b.err != nil {
		return
	}
	b.err = b.batch.Set(key, value)
	b.count++
}

// Delete 添加一个删除操作
func (b *WriteBatch) Delete(key []byte) {
	if len(key) == 0 || b.err != nil {
		return
	}
	b.err = b.batch.Delete(key)
	b.count++
}

// Write 执行批量写入
//
// 无论成功与否，批量对象都会被重置。
func (b *WriteBatch) Write() error {
	if b.db.closed.Load() {
		return engine.ErrClosed
	}
	if b.db.config.ReadOnly {
		return engine.ErrReadOnly
	}
	defer b.Reset()

	if b.err != nil {
		return convertError(b.err)
	}
	if err := b.batch.Flush(); err != nil {
		return convertError(err)
	}

	b.db.stats.numWrites.Add(int64(b.count))
	return nil
}

// Reset 丢弃所有待写入的操作
//
// badger.WriteBatch 没有 Reset，取消后重新创建。
func (b *WriteBatch) Reset() {
	b.batch.Cancel()
	b.batch = b.db.db.NewWriteBatch()
	b.count = 0
	b.err = nil
}

// Size 返回待写入的操作数量
func (b *WriteBatch) Size() int {
	return b.count
}

var _ engine.Batch = (*WriteBatch)(nil)
