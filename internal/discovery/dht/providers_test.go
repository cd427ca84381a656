package dht

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-kaddht/internal/core/storage/engine"
	"github.com/dep2p/go-kaddht/internal/core/storage/engine/badger"
	"github.com/dep2p/go-kaddht/internal/core/storage/kv"
	"github.com/dep2p/go-kaddht/pkg/types"
)

// openTestEngine 在 path 打开 BadgerDB
func openTestEngine(t *testing.T, path string) engine.Engine {
	t.Helper()

	eng, err := badger.New(engine.DefaultConfig(path))
	require.NoError(t, err)
	return eng
}

// TestProviderStore_AddGet 添加与读取
func TestProviderStore_AddGet(t *testing.T) {
	ps, err := NewProviderStore(time.Hour, clock.NewMock(), nil)
	require.NoError(t, err)

	key := types.NewContentKey([]byte("content"))
	p1, p2 := testPeer(t, "p1"), testPeer(t, "p2")

	require.NoError(t, ps.AddProvider(key, p1, []string{"mem:1"}))
	require.NoError(t, ps.AddProvider(key, p2, nil))

	got := ps.GetProviders(key)
	require.Len(t, got, 2)
	byID := map[types.PeerID]ProviderRecord{}
	for _, r := range got {
		byID[r.PeerID] = r
	}
	assert.Equal(t, []string{"mem:1"}, byID[p1].Addrs)
	assert.Empty(t, byID[p2].Addrs, "provider without addrs is kept as a bare reference")
	assert.Equal(t, 2, ps.Size())

	assert.Empty(t, ps.GetProviders(types.NewContentKey([]byte("other"))))
}

// TestProviderStore_InvalidKey 非 multihash 键被拒绝
func TestProviderStore_InvalidKey(t *testing.T) {
	ps, err := NewProviderStore(time.Hour, nil, nil)
	require.NoError(t, err)

	p := testPeer(t, "p")
	assert.ErrorIs(t, ps.AddProvider(nil, p, nil), ErrMissingKey)
	assert.ErrorIs(t, ps.AddProvider([]byte("not a multihash"), p, nil), ErrInvalidKey)
	assert.ErrorIs(t, ps.AddProvider(types.NewContentKey([]byte("k")), types.EmptyPeerID, nil), types.ErrEmptyPeerID)
}

// TestProviderStore_Refresh 重复添加刷新时间并替换地址
func TestProviderStore_Refresh(t *testing.T) {
	mock := clock.NewMock()
	ps, err := NewProviderStore(time.Hour, mock, nil)
	require.NoError(t, err)

	key := types.NewContentKey([]byte("content"))
	p := testPeer(t, "p")

	require.NoError(t, ps.AddProvider(key, p, []string{"mem:old"}))
	mock.Add(50 * time.Minute)
	require.NoError(t, ps.AddProvider(key, p, []string{"mem:new"}))
	mock.Add(50 * time.Minute)

	got := ps.GetProviders(key)
	require.Len(t, got, 1)
	assert.Equal(t, []string{"mem:new"}, got[0].Addrs)
	assert.Equal(t, 1, ps.Size())
}

// TestProviderStore_Expiry 过期记录在读取时清除
func TestProviderStore_Expiry(t *testing.T) {
	mock := clock.NewMock()
	ps, err := NewProviderStore(time.Hour, mock, nil)
	require.NoError(t, err)

	key := types.NewContentKey([]byte("content"))
	require.NoError(t, ps.AddProvider(key, testPeer(t, "old"), nil))
	mock.Add(30 * time.Minute)
	require.NoError(t, ps.AddProvider(key, testPeer(t, "new"), nil))
	mock.Add(31 * time.Minute)

	got := ps.GetProviders(key)
	require.Len(t, got, 1)
	assert.Equal(t, testPeer(t, "new"), got[0].PeerID)
	assert.Equal(t, 1, ps.Size())

	mock.Add(time.Hour)
	assert.Equal(t, 1, ps.CleanupExpired())
	assert.Equal(t, 0, ps.Size())
}

// TestProviderStore_Remove 移除 Provider
func TestProviderStore_Remove(t *testing.T) {
	ps, err := NewProviderStore(time.Hour, nil, nil)
	require.NoError(t, err)

	key := types.NewContentKey([]byte("content"))
	p := testPeer(t, "p")
	require.NoError(t, ps.AddProvider(key, p, nil))

	ps.RemoveProvider(key, p)
	ps.RemoveProvider(key, p)
	assert.Empty(t, ps.GetProviders(key))
}

// TestProviderStore_Persistence 重启后从 BadgerDB 恢复，过期记录不加载
func TestProviderStore_Persistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "providers.db")
	mock := clock.NewMock()
	mock.Set(time.Unix(1_700_000_000, 0))

	key := types.NewContentKey([]byte("content"))
	fresh, stale := testPeer(t, "fresh"), testPeer(t, "stale")

	eng := openTestEngine(t, path)
	ps, err := NewProviderStore(time.Hour, mock, kv.New(eng, providerPrefix))
	require.NoError(t, err)

	require.NoError(t, ps.AddProvider(key, stale, nil))
	mock.Add(40 * time.Minute)
	require.NoError(t, ps.AddProvider(key, fresh, []string{"mem:fresh"}))
	require.NoError(t, eng.Close())

	mock.Add(30 * time.Minute)

	eng = openTestEngine(t, path)
	defer eng.Close()
	store := kv.New(eng, providerPrefix)

	ps, err = NewProviderStore(time.Hour, mock, store)
	require.NoError(t, err)

	got := ps.GetProviders(key)
	require.Len(t, got, 1)
	assert.Equal(t, fresh, got[0].PeerID)
	assert.Equal(t, []string{"mem:fresh"}, got[0].Addrs)

	assert.Equal(t, 1, persistedCount(t, store), "stale entry should be deleted on load")
}

// TestProviderKey 持久化键可以往返解析
func TestProviderKey(t *testing.T) {
	key := types.NewContentKey([]byte("content"))
	p := testPeer(t, "p")

	k, id, ok := parseProviderKey(providerKey(string(key), p))
	require.True(t, ok)
	assert.Equal(t, string(key), k)
	assert.Equal(t, p, id)

	_, _, ok = parseProviderKey([]byte("garbage"))
	assert.False(t, ok)
}
