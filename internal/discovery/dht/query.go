package dht

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	pb "github.com/dep2p/go-kaddht/pkg/lib/proto/dht"
	"github.com/dep2p/go-kaddht/pkg/types"
)

// ============================================================================
//                           多路径迭代查询
// ============================================================================
//
// 一次查询（Run）从路由表取 k 个最近节点作为种子，按距离轮流分配到
// DisjointPaths 条互不相交的路径（Path）上。每条路径有自己的候选队列和
// Alpha 个 worker；所有路径共享 peersQueried 集合，保证同一节点在一次
// Run 中最多被查询一次。

// QueryFunc 对单个节点发起查询
//
// ctx 带有单次请求的截止时间。返回错误表示该节点失败，节点会被丢弃。
type QueryFunc func(ctx context.Context, peer types.PeerID) (*QueryResult, error)

// QueryResult 单个节点的查询结果
type QueryResult struct {
	// CloserPeers 对端返回的更近节点
	CloserPeers []pb.PeerEntry

	// Success 调用方已得到所需结果，整个 Run 提前结束
	Success bool
}

// Query 查询目标与单节点查询函数，在 Run 期间不可变
type Query struct {
	target types.DHTID
	fn     QueryFunc
}

// NewQuery 创建查询
func NewQuery(target types.DHTID, fn QueryFunc) *Query {
	return &Query{target: target, fn: fn}
}

// Target 返回查询目标
func (q *Query) Target() types.DHTID {
	return q.target
}

// queryConfig 查询参数
type queryConfig struct {
	BucketSize     int
	DisjointPaths  int
	Alpha          int
	RequestTimeout time.Duration
	RunTimeout     time.Duration
	MaxFailures    int
}

func queryConfigFrom(c *Config) queryConfig {
	return queryConfig{
		BucketSize:     c.BucketSize,
		DisjointPaths:  c.DisjointPaths,
		Alpha:          c.Alpha,
		RequestTimeout: c.RequestTimeout,
		RunTimeout:     c.QueryTimeout,
		MaxFailures:    c.MaxFailures,
	}
}

// RunResult 查询结果
type RunResult struct {
	// ID 本次查询的标识（日志关联用）
	ID string

	// Target 查询目标
	Target types.DHTID

	// PeersQueried 按发起顺序排列的已查询节点
	PeersQueried []types.PeerID

	// Responded 成功响应的节点
	Responded []types.PeerID

	// Success 是否由 QueryFunc 宣告成功而提前结束
	Success bool
}

// ClosestResponded 返回成功响应的节点中距离目标最近的 n 个
func (r *RunResult) ClosestResponded(n int) []types.PeerID {
	peers := append([]types.PeerID(nil), r.Responded...)
	sort.Slice(peers, func(i, j int) bool {
		return types.CompareDistance(peers[i], peers[j], r.Target) < 0
	})
	if n >= 0 && len(peers) > n {
		peers = peers[:n]
	}
	return peers
}

// ============================================================================
//                              Run
// ============================================================================

// Run 一次顶层查询的执行状态
type Run struct {
	id      string
	query   *Query
	cfg     queryConfig
	rt      *RoutingTable
	metrics *metrics

	mu           sync.Mutex
	peersQueried map[types.PeerID]struct{}
	queryOrder   []types.PeerID
	responded    []types.PeerID
	success      bool
	cancel       context.CancelFunc
}

func newRun(q *Query, rt *RoutingTable, cfg queryConfig, m *metrics) *Run {
	return &Run{
		id:           uuid.NewString(),
		query:        q,
		cfg:          cfg,
		rt:           rt,
		metrics:      m,
		peersQueried: make(map[types.PeerID]struct{}),
	}
}

// Execute 执行查询直到所有路径结束、提前成功、取消或超时
//
// 超时返回 ErrTimeout，同时返回已得到的部分结果。
func (r *Run) Execute(ctx context.Context) (*RunResult, error) {
	seeds := r.rt.NearestPeers(r.query.target, r.cfg.BucketSize)
	if len(seeds) == 0 {
		r.metrics.runFinished(outcomeNoPeers, 0)
		return r.result(), ErrNoPeersAvailable
	}
	return r.executePaths(ctx, r.partition(seeds))
}

// partition 按距离顺序轮流把种子分配到各条路径
func (r *Run) partition(seeds []types.PeerID) []*path {
	n := r.cfg.DisjointPaths
	if n <= 0 {
		n = 1
	}
	initial := make([][]types.PeerID, n)
	for i, id := range seeds {
		initial[i%n] = append(initial[i%n], id)
	}

	paths := make([]*path, n)
	for i := range paths {
		paths[i] = r.newPath(i, initial[i])
	}
	return paths
}

func (r *Run) executePaths(ctx context.Context, paths []*path) (*RunResult, error) {
	start := time.Now()
	r.metrics.runStarted()

	runCtx, cancel := context.WithTimeout(ctx, r.cfg.RunTimeout)
	defer cancel()

	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()

	logger.Debug("开始查询",
		"run", r.id,
		"target", log16(r.query.target),
		"paths", len(paths),
		"alpha", r.cfg.Alpha)

	var g errgroup.Group
	for _, p := range paths {
		g.Go(func() error {
			p.execute(runCtx)
			return nil
		})
	}
	_ = g.Wait()

	result := r.result()
	err := r.outcome(ctx, runCtx, result)

	r.metrics.runFinished(outcomeOf(err), time.Since(start))
	logger.Debug("查询结束",
		"run", r.id,
		"queried", len(result.PeersQueried),
		"responded", len(result.Responded),
		"success", result.Success,
		"duration", time.Since(start),
		"err", err)

	return result, err
}

func (r *Run) outcome(ctx, runCtx context.Context, result *RunResult) error {
	switch {
	case result.Success:
		return nil
	case ctx.Err() != nil:
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ErrTimeout
		}
		return ErrCancelled
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		return ErrTimeout
	case len(result.Responded) == 0:
		return ErrNotFound
	default:
		return nil
	}
}

// markQueried 原子地检查并插入 peersQueried，已存在时返回 false
func (r *Run) markQueried(id types.PeerID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.peersQueried[id]; ok {
		return false
	}
	r.peersQueried[id] = struct{}{}
	r.queryOrder = append(r.queryOrder, id)
	return true
}

func (r *Run) isQueried(id types.PeerID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.peersQueried[id]
	return ok
}

func (r *Run) addResponded(id types.PeerID, success bool) {
	r.mu.Lock()
	r.responded = append(r.responded, id)
	cancel := r.cancel
	first := success && !r.success
	if success {
		r.success = true
	}
	r.mu.Unlock()

	if first {
		logger.Debug("查询提前成功", "run", r.id, "peer", id.ShortString())
		if cancel != nil {
			cancel()
		}
	}
}

func (r *Run) result() *RunResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return &RunResult{
		ID:           r.id,
		Target:       r.query.target,
		PeersQueried: append([]types.PeerID(nil), r.queryOrder...),
		Responded:    append([]types.PeerID(nil), r.responded...),
		Success:      r.success,
	}
}

// ============================================================================
//                              Path
// ============================================================================

// path 一条独立的查询路径，由所属 Run 独占
type path struct {
	id           int
	run          *Run
	initialPeers []types.PeerID

	mu       sync.Mutex
	cond     *sync.Cond
	frontier *peerQueue
	inFlight int

	converged bool

	// closest 本路径已发起查询的节点中到目标的最小距离
	closest    types.DHTID
	hasClosest bool
}

func (r *Run) newPath(id int, initial []types.PeerID) *path {
	p := &path{
		id:           id,
		run:          r,
		initialPeers: append([]types.PeerID(nil), initial...),
		frontier:     newPeerQueue(r.query.target),
	}
	p.cond = sync.NewCond(&p.mu)
	for _, peer := range initial {
		p.frontier.push(peer)
	}
	return p
}

// execute 运行路径直到收敛、候选耗尽或 ctx 结束
func (p *path) execute(ctx context.Context) {
	if len(p.initialPeers) == 0 {
		p.mu.Lock()
		p.converged = true
		p.mu.Unlock()
		return
	}

	stop := context.AfterFunc(ctx, func() {
		p.mu.Lock()
		p.cond.Broadcast()
		p.mu.Unlock()
	})
	defer stop()

	var wg sync.WaitGroup
	for i := 0; i < p.run.cfg.Alpha; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.worker(ctx)
		}()
	}
	wg.Wait()
}

func (p *path) worker(ctx context.Context) {
	for {
		peer, ok := p.next(ctx)
		if !ok {
			return
		}
		p.queryPeer(ctx, peer)
	}
}

// next 取出下一个待查询节点
//
// 队列为空但仍有请求在途时等待；路径收敛、ctx 结束或候选耗尽时返回 false。
func (p *path) next(ctx context.Context) (types.PeerID, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for {
		if ctx.Err() != nil || p.converged {
			return types.EmptyPeerID, false
		}

		if p.frontier.len() > 0 {
			peer, _ := p.frontier.pop()
			if !p.run.markQueried(peer) {
				continue
			}

			d := types.ConvertPeerID(peer).Xor(p.run.query.target)
			if !p.hasClosest || d.Less(p.closest) {
				p.closest = d
				p.hasClosest = true
			}
			p.inFlight++
			return peer, true
		}

		if p.inFlight == 0 {
			return types.EmptyPeerID, false
		}
		p.cond.Wait()
	}
}

func (p *path) queryPeer(ctx context.Context, peer types.PeerID) {
	run := p.run

	reqCtx, cancel := context.WithTimeout(ctx, run.cfg.RequestTimeout)
	run.metrics.rpcSent()
	res, err := run.query.fn(reqCtx, peer)
	cancel()

	if err != nil {
		run.metrics.rpcFailed()
		if ctx.Err() == nil {
			logger.Debug("查询节点失败",
				"run", run.id,
				"path", p.id,
				"peer", peer.ShortString(),
				"err", err)
			if run.rt.MarkFailed(peer, run.cfg.MaxFailures) {
				logger.Debug("节点连续失败，移出路由表", "peer", peer.ShortString())
			}
		}
		p.done()
		return
	}
	if res == nil {
		res = &QueryResult{}
	}

	run.rt.TryAdd(peer, nil, true)
	run.addResponded(peer, res.Success)

	p.mu.Lock()
	defer p.mu.Unlock()

	p.inFlight--
	defer p.cond.Broadcast()

	if res.Success || p.converged || len(res.CloserPeers) == 0 {
		return
	}

	closer := false
	for _, entry := range res.CloserPeers {
		if entry.ID.IsEmpty() || entry.ID == run.rt.LocalID() {
			continue
		}
		d := types.ConvertPeerID(entry.ID).Xor(run.query.target)
		if d.Less(p.closest) {
			closer = true
			break
		}
	}

	if !closer {
		p.converged = true
		logger.Debug("路径收敛", "run", run.id, "path", p.id)
		return
	}

	for _, entry := range res.CloserPeers {
		if entry.ID.IsEmpty() || entry.ID == run.rt.LocalID() || run.isQueried(entry.ID) {
			continue
		}
		p.frontier.push(entry.ID)
	}
}

// done 在途请求结束（失败）
func (p *path) done() {
	p.mu.Lock()
	p.inFlight--
	p.cond.Broadcast()
	p.mu.Unlock()
}

// log16 目标的前 8 字节十六进制，日志用
func log16(id types.DHTID) string {
	return id.String()[:16]
}
