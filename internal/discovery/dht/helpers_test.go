package dht

import (
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-kaddht/internal/core/storage/kv"
	"github.com/dep2p/go-kaddht/pkg/types"
)

// testPeer 由种子派生确定的 PeerID
func testPeer(t testing.TB, seed string) types.PeerID {
	t.Helper()

	id, err := types.PeerIDFromPublicKey([]byte(seed))
	require.NoError(t, err)
	return id
}

// testPeers 生成 n 个确定的 PeerID
func testPeers(t testing.TB, prefix string, n int) []types.PeerID {
	t.Helper()

	peers := make([]types.PeerID, n)
	for i := range peers {
		peers[i] = testPeer(t, fmt.Sprintf("%s-%d", prefix, i))
	}
	return peers
}

// byDistance 按到 target 的距离升序排列
func byDistance(peers []types.PeerID, target types.DHTID) []types.PeerID {
	out := append([]types.PeerID(nil), peers...)
	sort.Slice(out, func(i, j int) bool {
		return types.CompareDistance(out[i], out[j], target) < 0
	})
	return out
}

// peersInBucket 生成 n 个落在 local 的第 cpl 个桶中的节点
func peersInBucket(t testing.TB, local types.PeerID, cpl, n int) []types.PeerID {
	t.Helper()

	localID := types.ConvertPeerID(local)
	var out []types.PeerID
	for i := 0; len(out) < n; i++ {
		require.Less(t, i, 1<<20, "too many attempts")
		p := testPeer(t, fmt.Sprintf("bucket-%d-%d", cpl, i))
		if localID.CommonPrefixLen(types.ConvertPeerID(p)) == cpl {
			out = append(out, p)
		}
	}
	return out
}

// testConfig 测试用的小规模配置
func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.BucketSize = 20
	cfg.Alpha = 3
	cfg.DisjointPaths = 3
	cfg.RequestTimeout = time.Second
	cfg.QueryTimeout = 5 * time.Second
	return cfg
}

// persistedCount 统计持久化存储中的条目数
func persistedCount(t testing.TB, store *kv.Store) int {
	t.Helper()

	n := 0
	require.NoError(t, store.PrefixScan(nil, func(_, _ []byte) bool {
		n++
		return true
	}))
	return n
}
