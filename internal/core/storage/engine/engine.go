package engine

// Engine 存储引擎接口
//
// Provider 记录和值记录的持久化后端。实现必须并发安全。
type Engine interface {
	// Get 获取指定键的值，键不存在返回 ErrNotFound
	Get(key []byte) ([]byte, error)

	// Put 设置键值对
	Put(key, value []byte) error

	// Delete 删除指定键
	Delete(key []byte) error

	// Has 检查键是否存在
	Has(key []byte) (bool, error)

	// --- 批量操作 ---

	// NewBatch 创建新的批量写入对象
	//
	// 调用者负责在使用后调用 Write() 或 Reset()。
	NewBatch() Batch

	// Write 原子地执行批量写入，写入完成后 Batch 被重置
	Write(batch Batch) error

	// --- 迭代器 ---

	// NewIterator 创建新的迭代器，opts 为 nil 时使用默认选项
	//
	// 调用者负责在使用后调用 Close()。
	NewIterator(opts *IteratorOptions) Iterator

	// NewPrefixIterator 创建只遍历指定前缀的迭代器
	NewPrefixIterator(prefix []byte) Iterator

	// --- 维护操作 ---

	// Start 启动后台任务（GC 等）
	Start() error

	// Sync 同步数据到磁盘
	Sync() error

	// Stats 获取引擎统计信息
	Stats() *Stats

	// Close 关闭存储引擎
	Close() error
}

// Batch 批量写入接口
//
// Batch 不是线程安全的，不应在多个 goroutine 中并发使用。
type Batch interface {
	// Put 添加一个写入操作
	Put(key, value []byte)

	// Delete 添加一个删除操作
	Delete(key []byte)

	// Write 原子地写入所有操作，写入后自动重置
	Write() error

	// Reset 清空所有待写入的操作
	Reset()

	// Size 返回待写入的操作数量
	Size() int
}

// Iterator 迭代器接口
//
// 迭代器保持创建时的快照视图，不受后续写入影响。
//
//	iter := eng.NewPrefixIterator(prefix)
//	defer iter.Close()
//
//	for iter.First(); iter.Valid(); iter.Next() {
//	    key, value := iter.Key(), iter.Value()
//	}
//	if err := iter.Error(); err != nil {
//	    return err
//	}
type Iterator interface {
	// First 移动到第一个键值对
	First() bool

	// Next 移动到下一个键值对
	Next() bool

	// Valid 当前位置是否有效
	Valid() bool

	// Key 返回当前键的副本
	Key() []byte

	// Value 返回当前值的副本
	Value() []byte

	// Close 释放迭代器资源，可重复调用
	Close()

	// Error 返回迭代过程中的错误
	Error() error
}

// IteratorOptions 迭代器选项
type IteratorOptions struct {
	// Prefix 仅迭代具有此前缀的键
	Prefix []byte

	// Reverse 是否反向迭代
	Reverse bool

	// StartKey 起始键（包含）
	StartKey []byte

	// EndKey 结束键（不包含）
	EndKey []byte

	// PrefetchSize 预取数量（0 表示使用默认值）
	PrefetchSize int

	// PrefetchValues 是否预取值
	PrefetchValues bool
}

// DefaultIteratorOptions 返回默认迭代器选项
func DefaultIteratorOptions() *IteratorOptions {
	return &IteratorOptions{
		PrefetchSize:   100,
		PrefetchValues: true,
	}
}

// Stats 引擎统计信息
type Stats struct {
	LSMSize    int64 `json:"lsm_size"`
	VlogSize   int64 `json:"vlog_size"`
	NumWrites  int64 `json:"num_writes"`
	NumReads   int64 `json:"num_reads"`
	NumDeletes int64 `json:"num_deletes"`
}

// DiskSize 返回磁盘占用
func (s *Stats) DiskSize() int64 {
	return s.LSMSize + s.VlogSize
}
