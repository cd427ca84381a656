package dht

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-kaddht/internal/core/storage/kv"
	"github.com/dep2p/go-kaddht/pkg/types"
)

// ProviderRecord Provider 记录
type ProviderRecord struct {
	// PeerID 提供者节点 ID
	PeerID types.PeerID

	// Addrs 提供者声明的地址，可以为空
	Addrs []string

	// InsertedAt 最近一次写入时间
	InsertedAt time.Time
}

func (r *ProviderRecord) expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(r.InsertedAt) >= ttl
}

func (r *ProviderRecord) clone() ProviderRecord {
	c := *r
	c.Addrs = append([]string(nil), r.Addrs...)
	return c
}

// persistedProvider 持久化格式
type persistedProvider struct {
	PeerID     string   `json:"peer_id"` // Base58
	Addrs      []string `json:"addrs,omitempty"`
	InsertedAt int64    `json:"inserted_at"`
}

// ProviderStore Provider 存储
//
// 每个 (key, peer) 只保留一条记录；重复添加刷新时间并替换地址。
// 过期记录在读取时惰性清除，CleanupExpired 做周期性清扫。
// store 不为 nil 时写穿到 BadgerDB，启动时加载。
type ProviderStore struct {
	ttl   time.Duration
	clock clock.Clock
	store *kv.Store

	mu        sync.RWMutex
	providers map[string]map[types.PeerID]*ProviderRecord
}

// NewProviderStore 创建 Provider 存储
func NewProviderStore(ttl time.Duration, clk clock.Clock, store *kv.Store) (*ProviderStore, error) {
	if clk == nil {
		clk = clock.New()
	}
	ps := &ProviderStore{
		ttl:       ttl,
		clock:     clk,
		store:     store,
		providers: make(map[string]map[types.PeerID]*ProviderRecord),
	}
	if store != nil {
		if err := ps.load(); err != nil {
			return nil, fmt.Errorf("load providers: %w", err)
		}
	}
	return ps, nil
}

// load 从持久化存储加载未过期的记录
func (ps *ProviderStore) load() error {
	now := ps.clock.Now()
	var stale [][]byte
	loaded := 0

	err := ps.store.PrefixScan(nil, func(storeKey, value []byte) bool {
		key, peerID, ok := parseProviderKey(storeKey)
		if !ok {
			stale = append(stale, storeKey)
			return true
		}

		var p persistedProvider
		if err := json.Unmarshal(value, &p); err != nil || p.PeerID != peerID.String() {
			stale = append(stale, storeKey)
			return true
		}

		rec := &ProviderRecord{
			PeerID:     peerID,
			Addrs:      p.Addrs,
			InsertedAt: time.Unix(0, p.InsertedAt),
		}
		if rec.expired(now, ps.ttl) {
			stale = append(stale, storeKey)
			return true
		}

		ps.putLocked(key, rec)
		loaded++
		return true
	})
	if err != nil {
		return err
	}

	if err := deleteKeys(ps.store, stale); err != nil {
		logger.Warn("删除失效的持久化记录失败", "err", err)
	}
	if loaded > 0 || len(stale) > 0 {
		logger.Debug("加载 Provider 记录", "loaded", loaded, "dropped", len(stale))
	}
	return nil
}

// AddProvider 添加或刷新 Provider
//
// key 必须是合法的内容键。addrs 可以为空，此时只记录节点引用。
func (ps *ProviderStore) AddProvider(key []byte, peerID types.PeerID, addrs []string) error {
	if _, err := types.ParseContentKey(key); err != nil {
		return err
	}
	if peerID.IsEmpty() {
		return types.ErrEmptyPeerID
	}

	rec := &ProviderRecord{
		PeerID:     peerID,
		Addrs:      append([]string(nil), addrs...),
		InsertedAt: ps.clock.Now(),
	}

	ps.mu.Lock()
	ps.putLocked(string(key), rec)
	ps.mu.Unlock()

	if ps.store != nil {
		p := persistedProvider{
			PeerID:     peerID.String(),
			Addrs:      rec.Addrs,
			InsertedAt: rec.InsertedAt.UnixNano(),
		}
		if err := ps.store.PutJSON(providerKey(string(key), peerID), &p); err != nil {
			return fmt.Errorf("persist provider: %w", err)
		}
	}
	return nil
}

func (ps *ProviderStore) putLocked(key string, rec *ProviderRecord) {
	set, ok := ps.providers[key]
	if !ok {
		set = make(map[types.PeerID]*ProviderRecord)
		ps.providers[key] = set
	}
	set[rec.PeerID] = rec
}

// GetProviders 返回 key 的未过期 Provider，按 PeerID 排序
func (ps *ProviderStore) GetProviders(key []byte) []ProviderRecord {
	now := ps.clock.Now()

	ps.mu.Lock()
	defer ps.mu.Unlock()

	set, ok := ps.providers[string(key)]
	if !ok {
		return nil
	}

	out := make([]ProviderRecord, 0, len(set))
	for id, rec := range set {
		if rec.expired(now, ps.ttl) {
			delete(set, id)
			ps.deletePersisted(string(key), id)
			continue
		}
		out = append(out, rec.clone())
	}
	if len(set) == 0 {
		delete(ps.providers, string(key))
	}

	sort.Slice(out, func(i, j int) bool {
		return types.ComparePeers(out[i].PeerID, out[j].PeerID) < 0
	})
	return out
}

// RemoveProvider 移除 Provider
func (ps *ProviderStore) RemoveProvider(key []byte, peerID types.PeerID) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	set, ok := ps.providers[string(key)]
	if !ok {
		return
	}
	if _, ok := set[peerID]; !ok {
		return
	}
	delete(set, peerID)
	if len(set) == 0 {
		delete(ps.providers, string(key))
	}
	ps.deletePersisted(string(key), peerID)
}

// CleanupExpired 清理所有过期记录，返回清理数量
func (ps *ProviderStore) CleanupExpired() int {
	now := ps.clock.Now()

	ps.mu.Lock()
	defer ps.mu.Unlock()

	count := 0
	for key, set := range ps.providers {
		for id, rec := range set {
			if rec.expired(now, ps.ttl) {
				delete(set, id)
				ps.deletePersisted(key, id)
				count++
			}
		}
		if len(set) == 0 {
			delete(ps.providers, key)
		}
	}
	return count
}

// Size 返回记录总数（含尚未清理的过期记录）
func (ps *ProviderStore) Size() int {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	total := 0
	for _, set := range ps.providers {
		total += len(set)
	}
	return total
}

func (ps *ProviderStore) deletePersisted(key string, peerID types.PeerID) {
	if ps.store == nil {
		return
	}
	if err := ps.store.Delete(providerKey(key, peerID)); err != nil {
		logger.Warn("删除持久化 Provider 失败", "peer", peerID.ShortString(), "err", err)
	}
}

// providerKey 持久化键：base58(key)/base58(peer)
func providerKey(key string, peerID types.PeerID) []byte {
	return []byte(types.Base58Encode([]byte(key)) + "/" + peerID.String())
}

func parseProviderKey(storeKey []byte) (string, types.PeerID, bool) {
	k, p, ok := strings.Cut(string(storeKey), "/")
	if !ok {
		return "", "", false
	}
	key, err := types.Base58Decode(k)
	if err != nil || len(key) == 0 {
		return "", "", false
	}
	peerID, err := types.PeerIDFromString(p)
	if err != nil {
		return "", "", false
	}
	return string(key), peerID, true
}
