package dht

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-kaddht/internal/core/storage/kv"
	"github.com/dep2p/go-kaddht/pkg/interfaces"
	pb "github.com/dep2p/go-kaddht/pkg/lib/proto/dht"
	"github.com/dep2p/go-kaddht/pkg/types"
)

// persistedRecord 持久化格式
type persistedRecord struct {
	Key          []byte `json:"key"`
	Value        []byte `json:"value"`
	Metadata     []byte `json:"metadata,omitempty"`
	TimeReceived int64  `json:"time_received"`
}

// RecordStore 值记录存储
//
// 每个键保留 Selector 认为最优的一条记录。写入前必须通过 Validator。
// 超过 maxAge 的记录在读取时惰性清除，CleanupExpired 做周期性清扫。
type RecordStore struct {
	validator interfaces.Validator
	selector  interfaces.Selector
	maxAge    time.Duration
	clock     clock.Clock
	store     *kv.Store

	mu      sync.RWMutex
	records map[string]*pb.Record
}

// NewRecordStore 创建值记录存储
//
// store 不为 nil 时写穿到 BadgerDB，启动时加载。
func NewRecordStore(v interfaces.Validator, s interfaces.Selector, maxAge time.Duration, clk clock.Clock, store *kv.Store) (*RecordStore, error) {
	if clk == nil {
		clk = clock.New()
	}
	rs := &RecordStore{
		validator: v,
		selector:  s,
		maxAge:    maxAge,
		clock:     clk,
		store:     store,
		records:   make(map[string]*pb.Record),
	}
	if store != nil {
		if err := rs.load(); err != nil {
			return nil, fmt.Errorf("load records: %w", err)
		}
	}
	return rs, nil
}

func (rs *RecordStore) load() error {
	var stale [][]byte
	loaded := 0

	err := rs.store.PrefixScan(nil, func(storeKey, value []byte) bool {
		var p persistedRecord
		if err := json.Unmarshal(value, &p); err != nil || len(p.Key) == 0 {
			stale = append(stale, storeKey)
			return true
		}

		rec := &pb.Record{
			Key:          p.Key,
			Value:        p.Value,
			Metadata:     p.Metadata,
			TimeReceived: p.TimeReceived,
		}
		if rs.expired(rec) || rs.validator.Validate(p.Key, rec) != nil {
			stale = append(stale, storeKey)
			return true
		}

		rs.records[string(p.Key)] = rec
		loaded++
		return true
	})
	if err != nil {
		return err
	}

	if err := deleteKeys(rs.store, stale); err != nil {
		logger.Warn("删除失效的持久化记录失败", "err", err)
	}
	if loaded > 0 || len(stale) > 0 {
		logger.Debug("加载值记录", "loaded", loaded, "dropped", len(stale))
	}
	return nil
}

func (rs *RecordStore) expired(rec *pb.Record) bool {
	return rs.clock.Now().Sub(time.Unix(0, rec.TimeReceived)) >= rs.maxAge
}

// Validate 用配置的 Validator 校验记录
//
// 失败时返回同时匹配 ErrValidationFailed 和校验器原始错误的错误。
func (rs *RecordStore) Validate(key []byte, rec *pb.Record) error {
	if len(key) == 0 {
		return ErrMissingKey
	}
	if err := rs.validator.Validate(key, rec); err != nil {
		return fmt.Errorf("%w: %w", ErrValidationFailed, err)
	}
	return nil
}

// Select 用配置的 Selector 在两条记录中择优
func (rs *RecordStore) Select(key []byte, a, b *pb.Record) *pb.Record {
	return rs.selector.Select(key, a, b)
}

// PutValue 校验并存储记录，返回是否写入
//
// 没有已存记录，或 Selector 选中新记录时替换。Selector 的选择按内容比较，
// 返回副本的 Selector 同样适用。重新发布相同的记录会刷新接收时间。
func (rs *RecordStore) PutValue(key []byte, rec *pb.Record) (bool, error) {
	if err := rs.Validate(key, rec); err != nil {
		return false, err
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()

	if existing, ok := rs.records[string(key)]; ok && !rs.expired(existing) {
		if !sameRecord(existing, rec) && !sameRecord(rs.selector.Select(key, existing, rec), rec) {
			return false, nil
		}
	}

	stored := pb.NewRecord(key, rec.Value, rec.Metadata)
	stored.TimeReceived = rs.clock.Now().UnixNano()
	rs.records[string(key)] = stored

	if rs.store != nil {
		p := persistedRecord{
			Key:          stored.Key,
			Value:        stored.Value,
			Metadata:     stored.Metadata,
			TimeReceived: stored.TimeReceived,
		}
		if err := rs.store.PutJSON(recordKey(key), &p); err != nil {
			return true, fmt.Errorf("persist record: %w", err)
		}
	}
	return true, nil
}

// sameRecord 值与元数据都相同
func sameRecord(a, b *pb.Record) bool {
	if a == nil || b == nil {
		return a == b
	}
	return bytes.Equal(a.Value, b.Value) && bytes.Equal(a.Metadata, b.Metadata)
}

// GetValue 返回已存记录的副本，不存在或已过期时返回 ErrNotFound
func (rs *RecordStore) GetValue(key []byte) (*pb.Record, error) {
	if len(key) == 0 {
		return nil, ErrMissingKey
	}

	rs.mu.RLock()
	rec, ok := rs.records[string(key)]
	rs.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	if rs.expired(rec) {
		rs.mu.Lock()
		if cur, ok := rs.records[string(key)]; ok && cur == rec {
			delete(rs.records, string(key))
			rs.deletePersisted(key)
		}
		rs.mu.Unlock()
		return nil, ErrNotFound
	}
	return rec.Clone(), nil
}

// RemoveValue 删除记录
func (rs *RecordStore) RemoveValue(key []byte) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if _, ok := rs.records[string(key)]; ok {
		delete(rs.records, string(key))
		rs.deletePersisted(key)
	}
}

// CleanupExpired 清理过期记录，返回清理数量
func (rs *RecordStore) CleanupExpired() int {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	count := 0
	for k, rec := range rs.records {
		if rs.expired(rec) {
			delete(rs.records, k)
			rs.deletePersisted([]byte(k))
			count++
		}
	}
	return count
}

// Size 返回记录数量
func (rs *RecordStore) Size() int {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return len(rs.records)
}

func (rs *RecordStore) deletePersisted(key []byte) {
	if rs.store == nil {
		return
	}
	if err := rs.store.Delete(recordKey(key)); err != nil {
		logger.Warn("删除持久化记录失败", "err", err)
	}
}

// deleteKeys 批量删除持久化键
func deleteKeys(store *kv.Store, keys [][]byte) error {
	if len(keys) == 0 {
		return nil
	}
	batch := store.NewBatch()
	for _, k := range keys {
		batch.Delete(k)
	}
	return batch.Write()
}

func recordKey(key []byte) []byte {
	return []byte(types.Base58Encode(key))
}
