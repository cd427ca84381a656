package dht

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/dep2p/go-kaddht/pkg/interfaces/mocks"
	pb "github.com/dep2p/go-kaddht/pkg/lib/proto/dht"
	"github.com/dep2p/go-kaddht/pkg/types"
)

// callLog 记录 QueryFunc 的调用顺序
type callLog struct {
	mu    sync.Mutex
	order []types.PeerID
	count map[types.PeerID]int
}

func newCallLog() *callLog {
	return &callLog{count: make(map[types.PeerID]int)}
}

func (c *callLog) record(p types.PeerID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order = append(c.order, p)
	c.count[p]++
}

func (c *callLog) calls() []types.PeerID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]types.PeerID(nil), c.order...)
}

// newTestRun 用给定种子构造 Run
func newTestRun(t *testing.T, target types.DHTID, seeds []types.PeerID, cfg queryConfig, fn QueryFunc) (*Run, *RoutingTable) {
	t.Helper()

	rt := NewRoutingTable(testPeer(t, "local"), 20, nil)
	for _, p := range seeds {
		require.True(t, rt.TryAdd(p, nil, true))
	}
	return newRun(NewQuery(target, fn), rt, cfg, nil), rt
}

func singlePathConfig() queryConfig {
	return queryConfig{
		BucketSize:     20,
		DisjointPaths:  1,
		Alpha:          1,
		RequestTimeout: time.Second,
		RunTimeout:     5 * time.Second,
		MaxFailures:    3,
	}
}

// ============================================================================
// 顺序与收敛
// ============================================================================

// TestRun_DistanceOrder 空 closerPeers 不会使路径收敛，种子按距离依次查询
func TestRun_DistanceOrder(t *testing.T) {
	target := types.ConvertKey([]byte("order"))
	sorted := byDistance(testPeers(t, "s", 3), target)
	b, a, c := sorted[0], sorted[1], sorted[2]

	log := newCallLog()
	run, _ := newTestRun(t, target, []types.PeerID{c, a, b}, singlePathConfig(),
		func(_ context.Context, p types.PeerID) (*QueryResult, error) {
			log.record(p)
			return &QueryResult{}, nil
		})

	res, err := run.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []types.PeerID{b, a, c}, log.calls())
	assert.Equal(t, []types.PeerID{b, a, c}, res.PeersQueried)
	assert.Len(t, res.Responded, 3)
	assert.False(t, res.Success)
}

// TestRun_Convergence 返回的节点都不更近时路径收敛，不再查询新节点
func TestRun_Convergence(t *testing.T) {
	target := types.ConvertKey([]byte("converge"))
	sorted := byDistance(testPeers(t, "c", 10), target)
	nearest, seed, far := sorted[0], sorted[5], sorted[8]

	log := newCallLog()
	run, _ := newTestRun(t, target, []types.PeerID{seed}, singlePathConfig(),
		func(_ context.Context, p types.PeerID) (*QueryResult, error) {
			log.record(p)
			switch p {
			case seed:
				return &QueryResult{CloserPeers: []pb.PeerEntry{{ID: nearest}}}, nil
			case nearest:
				return &QueryResult{CloserPeers: []pb.PeerEntry{{ID: far}}}, nil
			default:
				return &QueryResult{}, nil
			}
		})

	res, err := run.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []types.PeerID{seed, nearest}, log.calls())
	assert.NotContains(t, res.PeersQueried, far)
}

// TestRun_FollowsCloserPeers 更近的节点并入候选队列并按距离查询
func TestRun_FollowsCloserPeers(t *testing.T) {
	target := types.ConvertKey([]byte("follow"))
	sorted := byDistance(testPeers(t, "f", 12), target)
	seed := sorted[11]
	hop1, hop2a, hop2b := sorted[6], sorted[1], sorted[3]

	log := newCallLog()
	run, _ := newTestRun(t, target, []types.PeerID{seed}, singlePathConfig(),
		func(_ context.Context, p types.PeerID) (*QueryResult, error) {
			log.record(p)
			switch p {
			case seed:
				return &QueryResult{CloserPeers: []pb.PeerEntry{{ID: hop1}}}, nil
			case hop1:
				return &QueryResult{CloserPeers: []pb.PeerEntry{{ID: hop2b}, {ID: hop2a}}}, nil
			default:
				return &QueryResult{}, nil
			}
		})

	_, err := run.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []types.PeerID{seed, hop1, hop2a, hop2b}, log.calls())
}

// ============================================================================
// 多路径
// ============================================================================

// TestRun_Partition 种子按距离轮流分配，各路径互不相交
func TestRun_Partition(t *testing.T) {
	target := types.ConvertKey([]byte("partition"))
	seeds := byDistance(testPeers(t, "p", 7), target)

	cfg := singlePathConfig()
	cfg.DisjointPaths = 3
	run, _ := newTestRun(t, target, seeds, cfg, nil)

	paths := run.partition(seeds)
	require.Len(t, paths, 3)
	assert.Equal(t, []types.PeerID{seeds[0], seeds[3], seeds[6]}, paths[0].initialPeers)
	assert.Equal(t, []types.PeerID{seeds[1], seeds[4]}, paths[1].initialPeers)
	assert.Equal(t, []types.PeerID{seeds[2], seeds[5]}, paths[2].initialPeers)

	seen := map[types.PeerID]bool{}
	for _, p := range paths {
		for _, id := range p.initialPeers {
			assert.False(t, seen[id], "seed assigned twice")
			seen[id] = true
		}
	}
}

// TestRun_AtMostOnce 所有路径共享 peersQueried，每个节点最多查询一次
func TestRun_AtMostOnce(t *testing.T) {
	target := types.ConvertKey([]byte("once"))
	all := testPeers(t, "o", 24)

	// 每个节点都把全部节点当作更近节点返回
	entries := make([]pb.PeerEntry, len(all))
	for i, p := range all {
		entries[i] = pb.PeerEntry{ID: p}
	}

	log := newCallLog()
	cfg := singlePathConfig()
	cfg.DisjointPaths = 3
	cfg.Alpha = 3
	run, _ := newTestRun(t, target, all[:9], cfg,
		func(_ context.Context, p types.PeerID) (*QueryResult, error) {
			log.record(p)
			time.Sleep(time.Millisecond)
			return &QueryResult{CloserPeers: entries}, nil
		})

	res, err := run.Execute(context.Background())
	require.NoError(t, err)

	for p, n := range log.count {
		assert.Equal(t, 1, n, "peer %s queried %d times", p.ShortString(), n)
	}
	assert.Len(t, res.PeersQueried, len(log.calls()))
}

// TestRun_EarlyExit Success 立即结束整个 Run
func TestRun_EarlyExit(t *testing.T) {
	target := types.ConvertKey([]byte("early"))
	sorted := byDistance(testPeers(t, "e", 3), target)
	b, a, c := sorted[0], sorted[1], sorted[2]

	log := newCallLog()
	run, _ := newTestRun(t, target, sorted, singlePathConfig(),
		func(_ context.Context, p types.PeerID) (*QueryResult, error) {
			log.record(p)
			return &QueryResult{Success: p == a}, nil
		})

	res, err := run.Execute(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, []types.PeerID{b, a}, log.calls())
	assert.NotContains(t, log.calls(), c)
}

// TestRun_EarlyExitStopsAllPaths 一条路径成功后所有路径的 worker 都停止发起查询
func TestRun_EarlyExitStopsAllPaths(t *testing.T) {
	target := types.ConvertKey([]byte("early-multi"))
	cfg := singlePathConfig()
	cfg.DisjointPaths = 2
	cfg.Alpha = 2
	workers := int32(cfg.DisjointPaths * cfg.Alpha)

	var started atomic.Int32
	log := newCallLog()
	run, _ := newTestRun(t, target, testPeers(t, "em", 12), cfg,
		func(ctx context.Context, p types.PeerID) (*QueryResult, error) {
			log.record(p)
			// 最后一个 worker 宣告成功，其余请求阻塞到 Run 结束
			if started.Add(1) == workers {
				return &QueryResult{Success: true}, nil
			}
			<-ctx.Done()
			return nil, ctx.Err()
		})

	res, err := run.Execute(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Len(t, log.calls(), int(workers), "no query may start after success")

	time.Sleep(50 * time.Millisecond)
	assert.Len(t, log.calls(), int(workers))
	assert.Len(t, res.Responded, 1)
}

// ============================================================================
// 结束条件
// ============================================================================

// TestRun_NoPeers 路由表为空
func TestRun_NoPeers(t *testing.T) {
	run, _ := newTestRun(t, types.ConvertKey([]byte("x")), nil, singlePathConfig(),
		func(context.Context, types.PeerID) (*QueryResult, error) {
			t.Fatal("query function must not be called")
			return nil, nil
		})

	_, err := run.Execute(context.Background())
	assert.ErrorIs(t, err, ErrNoPeersAvailable)
}

// TestRun_AllFail 所有节点失败返回 ErrNotFound，失败节点被移出路由表
func TestRun_AllFail(t *testing.T) {
	target := types.ConvertKey([]byte("fail"))
	seeds := testPeers(t, "bad", 4)

	cfg := singlePathConfig()
	cfg.MaxFailures = 1
	run, rt := newTestRun(t, target, seeds, cfg,
		func(context.Context, types.PeerID) (*QueryResult, error) {
			return nil, errors.New("connection refused")
		})

	res, err := run.Execute(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Len(t, res.PeersQueried, 4)
	assert.Empty(t, res.Responded)
	assert.Equal(t, 0, rt.Size())
}

// TestRun_FailureDoesNotStopPath 单个节点失败不影响路径继续
func TestRun_FailureDoesNotStopPath(t *testing.T) {
	target := types.ConvertKey([]byte("partial"))
	sorted := byDistance(testPeers(t, "pf", 3), target)

	run, _ := newTestRun(t, target, sorted, singlePathConfig(),
		func(_ context.Context, p types.PeerID) (*QueryResult, error) {
			if p == sorted[0] {
				return nil, errors.New("boom")
			}
			return &QueryResult{}, nil
		})

	res, err := run.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []types.PeerID{sorted[1], sorted[2]}, res.Responded)
	assert.Equal(t, []types.PeerID{sorted[1]}, res.ClosestResponded(1))
}

// TestRun_Cancelled 调用方取消返回 ErrCancelled
func TestRun_Cancelled(t *testing.T) {
	target := types.ConvertKey([]byte("cancel"))
	started := make(chan struct{}, 8)

	run, _ := newTestRun(t, target, testPeers(t, "cx", 3), singlePathConfig(),
		func(ctx context.Context, _ types.PeerID) (*QueryResult, error) {
			started <- struct{}{}
			<-ctx.Done()
			return nil, ctx.Err()
		})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	_, err := run.Execute(ctx)
	assert.ErrorIs(t, err, ErrCancelled)
}

// TestRun_Timeout 整体超时返回 ErrTimeout 和部分结果
func TestRun_Timeout(t *testing.T) {
	target := types.ConvertKey([]byte("timeout"))
	sorted := byDistance(testPeers(t, "tt", 2), target)
	fast, slow := sorted[0], sorted[1]

	cfg := singlePathConfig()
	cfg.RunTimeout = 100 * time.Millisecond

	run, _ := newTestRun(t, target, sorted, cfg,
		func(ctx context.Context, p types.PeerID) (*QueryResult, error) {
			if p == fast {
				return &QueryResult{}, nil
			}
			<-ctx.Done()
			return nil, ctx.Err()
		})

	res, err := run.Execute(context.Background())
	assert.ErrorIs(t, err, ErrTimeout)
	require.NotNil(t, res)
	assert.Equal(t, []types.PeerID{fast}, res.Responded)
	assert.Contains(t, res.PeersQueried, slow)
}

// TestRun_RequestTimeoutWithMockNetwork 单次请求超时只丢弃该节点
func TestRun_RequestTimeoutWithMockNetwork(t *testing.T) {
	ctrl := gomock.NewController(t)
	network := mocks.NewMockNetwork(ctrl)

	target := types.ConvertKey([]byte("mock"))
	sorted := byDistance(testPeers(t, "mk", 2), target)
	hung, ok := sorted[0], sorted[1]

	network.EXPECT().
		SendMessage(gomock.Any(), hung, gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ types.PeerID, _ *pb.Message) (*pb.Message, error) {
			<-ctx.Done()
			return nil, ErrTimeout
		})
	network.EXPECT().
		SendMessage(gomock.Any(), ok, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ types.PeerID, req *pb.Message) (*pb.Message, error) {
			return req.NewResponse(), nil
		})

	cfg := singlePathConfig()
	cfg.RequestTimeout = 50 * time.Millisecond

	key := []byte("mock")
	run, _ := newTestRun(t, target, sorted, cfg,
		func(ctx context.Context, p types.PeerID) (*QueryResult, error) {
			resp, err := network.SendMessage(ctx, p, pb.NewMessage(pb.MessageType_FIND_NODE, key))
			if err != nil {
				return nil, err
			}
			return &QueryResult{CloserPeers: resp.CloserPeers}, nil
		})

	res, err := run.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []types.PeerID{ok}, res.Responded)
	assert.Equal(t, []types.PeerID{hung, ok}, res.PeersQueried)
}
