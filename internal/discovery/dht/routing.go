package dht

import (
	"crypto/rand"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-kaddht/pkg/types"
)

// ============================================================================
//                              常量定义
// ============================================================================

const (
	// KeySize 密钥大小（256 位），也是桶的数量
	KeySize = types.DHTIDSize * 8

	// maxCplForRefresh 刷新时生成随机键的最大前缀长度
	maxCplForRefresh = 15
)

// ============================================================================
//                              路由表节点
// ============================================================================

// RoutingNode 路由表节点
type RoutingNode struct {
	// ID 节点 ID
	ID types.PeerID

	// Addrs 节点地址
	Addrs []string

	// LastSeen 最后一次见到的时间
	LastSeen time.Time

	// FailCount 连续失败次数
	FailCount int

	dhtID types.DHTID
}

// DHTID 返回节点在 DHT 空间中的坐标
func (n *RoutingNode) DHTID() types.DHTID {
	return n.dhtID
}

func (n *RoutingNode) clone() RoutingNode {
	c := *n
	c.Addrs = append([]string(nil), n.Addrs...)
	return c
}

// ============================================================================
//                              K 桶
// ============================================================================

// kBucket K 桶
//
// 不自带锁，由 RoutingTable 统一加锁。
type kBucket struct {
	// 节点列表（最近活跃的在前）
	nodes []*RoutingNode

	// 替换缓存（桶满且新节点不可达时暂存，查询不会使用）
	replacementCache []*RoutingNode

	// 最后刷新时间
	lastRefresh time.Time
}

func (b *kBucket) indexOf(id types.PeerID) int {
	for i, n := range b.nodes {
		if n.ID == id {
			return i
		}
	}
	return -1
}

func (b *kBucket) moveToFront(i int) {
	n := b.nodes[i]
	copy(b.nodes[1:i+1], b.nodes[:i])
	b.nodes[0] = n
}

func (b *kBucket) pushFront(n *RoutingNode) {
	b.nodes = append(b.nodes, nil)
	copy(b.nodes[1:], b.nodes)
	b.nodes[0] = n
}

func (b *kBucket) addReplacement(n *RoutingNode, limit int) {
	for i, existing := range b.replacementCache {
		if existing.ID == n.ID {
			b.replacementCache = append(b.replacementCache[:i], b.replacementCache[i+1:]...)
			break
		}
	}
	b.replacementCache = append([]*RoutingNode{n}, b.replacementCache...)
	if len(b.replacementCache) > limit {
		b.replacementCache = b.replacementCache[:limit]
	}
}

func (b *kBucket) removeReplacement(id types.PeerID) bool {
	for i, n := range b.replacementCache {
		if n.ID == id {
			b.replacementCache = append(b.replacementCache[:i], b.replacementCache[i+1:]...)
			return true
		}
	}
	return false
}

// ============================================================================
//                              路由表
// ============================================================================

// RoutingTable 路由表
//
// 256 个 K 桶，桶 i 存放与本地 DHT-ID 恰好共享 i 位前缀的节点。
// 纯内存结构，不做网络 I/O；所有读写由一把读写锁串行化。
type RoutingTable struct {
	localID    types.PeerID
	localDHTID types.DHTID
	bucketSize int
	clock      clock.Clock

	mu      sync.RWMutex
	buckets [KeySize]*kBucket
}

// NewRoutingTable 创建新的路由表
func NewRoutingTable(localID types.PeerID, bucketSize int, clk clock.Clock) *RoutingTable {
	if clk == nil {
		clk = clock.New()
	}
	rt := &RoutingTable{
		localID:    localID,
		localDHTID: types.ConvertPeerID(localID),
		bucketSize: bucketSize,
		clock:      clk,
	}
	now := clk.Now()
	for i := range rt.buckets {
		rt.buckets[i] = &kBucket{lastRefresh: now}
	}
	return rt
}

// LocalID 返回本地节点 ID
func (rt *RoutingTable) LocalID() types.PeerID {
	return rt.localID
}

func (rt *RoutingTable) bucketIndex(id types.DHTID) int {
	cpl := rt.localDHTID.CommonPrefixLen(id)
	if cpl >= KeySize {
		cpl = KeySize - 1
	}
	return cpl
}

// TryAdd 添加或刷新节点
//
//   - 已存在：更新地址；可达时同时刷新最后活跃时间并移到桶首
//   - 桶未满：插入桶首
//   - 桶已满：仅当新节点可达时驱逐最久未活跃的节点，否则放入替换缓存
//
// 返回节点是否在路由表中。添加自身是空操作。
func (rt *RoutingTable) TryAdd(id types.PeerID, addrs []string, reachable bool) bool {
	if id == rt.localID || id.IsEmpty() {
		return false
	}

	dhtID := types.ConvertPeerID(id)

	rt.mu.Lock()
	defer rt.mu.Unlock()

	b := rt.buckets[rt.bucketIndex(dhtID)]
	now := rt.clock.Now()

	if i := b.indexOf(id); i >= 0 {
		n := b.nodes[i]
		if len(addrs) > 0 {
			n.Addrs = append([]string(nil), addrs...)
		}
		if reachable {
			n.LastSeen = now
			n.FailCount = 0
			b.moveToFront(i)
		}
		return true
	}

	node := &RoutingNode{
		ID:       id,
		Addrs:    append([]string(nil), addrs...),
		LastSeen: now,
		dhtID:    dhtID,
	}

	if len(b.nodes) < rt.bucketSize {
		b.removeReplacement(id)
		b.pushFront(node)
		return true
	}

	if !reachable {
		b.addReplacement(node, rt.bucketSize)
		return false
	}

	// 驱逐最久未活跃的节点
	evicted := b.nodes[len(b.nodes)-1]
	b.nodes = b.nodes[:len(b.nodes)-1]
	b.removeReplacement(id)
	b.pushFront(node)

	logger.Debug("路由表驱逐节点",
		"evicted", evicted.ID.ShortString(),
		"added", id.ShortString())
	return true
}

// Remove 移除节点，并从替换缓存中提升最新的候选
func (rt *RoutingTable) Remove(id types.PeerID) bool {
	if id == rt.localID {
		return false
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.removeLocked(id)
}

func (rt *RoutingTable) removeLocked(id types.PeerID) bool {
	b := rt.buckets[rt.bucketIndex(types.ConvertPeerID(id))]

	i := b.indexOf(id)
	if i < 0 {
		return b.removeReplacement(id)
	}

	b.nodes = append(b.nodes[:i], b.nodes[i+1:]...)
	if len(b.replacementCache) > 0 {
		promoted := b.replacementCache[0]
		b.replacementCache = b.replacementCache[1:]
		b.nodes = append(b.nodes, promoted)
	}
	return true
}

// MarkFailed 记录一次 RPC 失败
//
// 连续失败达到 maxFailures 次时移除节点，返回是否已移除。
func (rt *RoutingTable) MarkFailed(id types.PeerID, maxFailures int) bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	b := rt.buckets[rt.bucketIndex(types.ConvertPeerID(id))]
	i := b.indexOf(id)
	if i < 0 {
		return false
	}

	n := b.nodes[i]
	n.FailCount++
	if n.FailCount < maxFailures {
		return false
	}
	return rt.removeLocked(id)
}

// Find 查找节点
func (rt *RoutingTable) Find(id types.PeerID) (RoutingNode, bool) {
	rt.mu.RLock()
	defer rt.mu.RUnlock()

	b := rt.buckets[rt.bucketIndex(types.ConvertPeerID(id))]
	if i := b.indexOf(id); i >= 0 {
		return b.nodes[i].clone(), true
	}
	return RoutingNode{}, false
}

// GetAddrs 返回节点地址
func (rt *RoutingTable) GetAddrs(id types.PeerID) []string {
	n, ok := rt.Find(id)
	if !ok {
		return nil
	}
	return n.Addrs
}

// Size 返回路由表中的节点总数
func (rt *RoutingTable) Size() int {
	rt.mu.RLock()
	defer rt.mu.RUnlock()

	total := 0
	for _, b := range rt.buckets {
		total += len(b.nodes)
	}
	return total
}

// ListPeers 返回所有节点 ID
func (rt *RoutingTable) ListPeers() []types.PeerID {
	rt.mu.RLock()
	defer rt.mu.RUnlock()

	var peers []types.PeerID
	for _, b := range rt.buckets {
		for _, n := range b.nodes {
			peers = append(peers, n.ID)
		}
	}
	return peers
}

// NearestNodes 返回距离 target 最近的最多 count 个节点
//
// 按 XOR 距离非递减排序，距离相同按 PeerID 字节序。
func (rt *RoutingTable) NearestNodes(target types.DHTID, count int) []RoutingNode {
	if count <= 0 {
		return nil
	}

	rt.mu.RLock()
	all := make([]*RoutingNode, 0, rt.bucketSize)
	for _, b := range rt.buckets {
		all = append(all, b.nodes...)
	}

	sort.Slice(all, func(i, j int) bool {
		c := all[i].dhtID.Xor(target).Compare(all[j].dhtID.Xor(target))
		if c != 0 {
			return c < 0
		}
		return types.ComparePeers(all[i].ID, all[j].ID) < 0
	})

	if len(all) > count {
		all = all[:count]
	}
	out := make([]RoutingNode, len(all))
	for i, n := range all {
		out[i] = n.clone()
	}
	rt.mu.RUnlock()

	return out
}

// NearestPeers 返回距离 target 最近的最多 count 个节点 ID
func (rt *RoutingTable) NearestPeers(target types.DHTID, count int) []types.PeerID {
	nodes := rt.NearestNodes(target, count)
	peers := make([]types.PeerID, len(nodes))
	for i := range nodes {
		peers[i] = nodes[i].ID
	}
	return peers
}

// ============================================================================
//                              刷新
// ============================================================================

// BucketsNeedingRefresh 返回超过 interval 未刷新的桶索引
//
// 只考虑不超过最深非空桶（且不超过 maxCplForRefresh）的桶。
func (rt *RoutingTable) BucketsNeedingRefresh(interval time.Duration) []int {
	rt.mu.RLock()
	defer rt.mu.RUnlock()

	maxIdx := 0
	for i, b := range rt.buckets {
		if len(b.nodes) > 0 {
			maxIdx = i
		}
	}
	if maxIdx > maxCplForRefresh {
		maxIdx = maxCplForRefresh
	}

	now := rt.clock.Now()
	var indices []int
	for i := 0; i <= maxIdx; i++ {
		if now.Sub(rt.buckets[i].lastRefresh) >= interval {
			indices = append(indices, i)
		}
	}
	return indices
}

// MarkBucketRefreshed 标记桶已刷新
func (rt *RoutingTable) MarkBucketRefreshed(idx int) {
	if idx < 0 || idx >= KeySize {
		return
	}
	rt.mu.Lock()
	rt.buckets[idx].lastRefresh = rt.clock.Now()
	rt.mu.Unlock()
}

// RandomKeyForBucket 生成一个落入桶 idx 的随机键
//
// 键经 SHA-256 映射后与本地 ID 恰好共享 idx 位前缀。idx 超过
// maxCplForRefresh 时按 maxCplForRefresh 处理。
func (rt *RoutingTable) RandomKeyForBucket(idx int) []byte {
	if idx > maxCplForRefresh {
		idx = maxCplForRefresh
	}
	if idx < 0 {
		idx = 0
	}

	key := make([]byte, 16)
	for {
		_, _ = rand.Read(key)
		if rt.localDHTID.CommonPrefixLen(types.ConvertKey(key)) == idx {
			return key
		}
	}
}
