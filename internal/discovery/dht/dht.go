package dht

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/dep2p/go-kaddht/config"
	"github.com/dep2p/go-kaddht/internal/core/storage"
	"github.com/dep2p/go-kaddht/internal/core/storage/engine"
	"github.com/dep2p/go-kaddht/internal/core/storage/kv"
	"github.com/dep2p/go-kaddht/pkg/interfaces"
	"github.com/dep2p/go-kaddht/pkg/lib/log"
	pb "github.com/dep2p/go-kaddht/pkg/lib/proto/dht"
	"github.com/dep2p/go-kaddht/pkg/types"
)

var logger = log.Logger("discovery/dht")

const (
	// addrBookSize 地址簿容量
	addrBookSize = 4096

	// addrBookTTL 从响应中学到的地址的有效期
	addrBookTTL = time.Hour
)

// 持久化键前缀
var (
	providerPrefix = []byte("d/p/")
	recordPrefix   = []byte("d/v/")
)

// DHT Kademlia DHT 实现
type DHT struct {
	// host 网络主机
	host interfaces.Host

	// config 配置
	config *Config
	qcfg   queryConfig
	clock  clock.Clock

	// routingTable 路由表
	routingTable *RoutingTable

	// providers Provider 存储
	providers *ProviderStore

	// records 值存储，EnableValueStore 为 false 时为 nil
	records *RecordStore

	// handler 入站请求处理器
	handler *Handler

	// adapter 基于 Host 的网络适配器（服务入站流）
	adapter *NetworkAdapter

	// network 出站消息通道，默认即 adapter
	network interfaces.Network

	// addrBook 从响应中学到的节点地址
	addrBook *expirable.LRU[types.PeerID, []string]

	// engine 持久化引擎，ownsEngine 表示由 DHT 打开并负责关闭
	engine     engine.Engine
	ownsEngine bool

	metrics *metrics

	// 生命周期
	ctx       context.Context
	ctxCancel context.CancelFunc
	started   atomic.Bool
	closed    atomic.Bool
	wg        sync.WaitGroup
}

// New 创建 DHT 实例
func New(host interfaces.Host, opts ...ConfigOption) (*DHT, error) {
	if host == nil {
		return nil, ErrNilHost
	}

	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return newDHT(host, cfg)
}

func newDHT(host interfaces.Host, cfg *Config) (*DHT, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	localID := host.ID()
	if err := localID.Validate(); err != nil {
		return nil, fmt.Errorf("%w: local peer: %v", ErrInvalidConfig, err)
	}

	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}

	d := &DHT{
		host:         host,
		config:       cfg,
		qcfg:         queryConfigFrom(cfg),
		clock:        clk,
		routingTable: NewRoutingTable(localID, cfg.BucketSize, clk),
		addrBook:     expirable.NewLRU[types.PeerID, []string](addrBookSize, nil, addrBookTTL),
		metrics:      newMetrics(cfg.Registerer),
		engine:       cfg.Engine,
	}

	if err := d.openStores(); err != nil {
		return nil, multierr.Append(err, d.closeEngine())
	}

	d.handler = NewHandler(cfg, d.routingTable, d.providers, d.records,
		WithConnectedness(host.Connectedness),
		withHandlerMetrics(d.metrics))
	d.adapter = NewNetworkAdapter(host, cfg.ProtocolID, d.handler, cfg.RequestTimeout)

	d.network = cfg.Network
	if d.network == nil {
		d.network = d.adapter
	}

	d.ctx, d.ctxCancel = context.WithCancel(context.Background())
	return d, nil
}

// openStores 创建 Provider 与值存储，配置了数据目录时写穿到 BadgerDB
func (d *DHT) openStores() error {
	cfg := d.config

	if d.engine == nil && cfg.DataDir != "" {
		path := config.StorageConfig{DataDir: cfg.DataDir}.DBPath()
		eng, err := storage.New(path)
		if err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
		d.engine = eng
		d.ownsEngine = true
	}

	var providerKV, recordKV *kv.Store
	if d.engine != nil {
		providerKV = kv.New(d.engine, providerPrefix)
		recordKV = kv.New(d.engine, recordPrefix)
		d.metrics.watchStorage(d.engine)
	}

	providers, err := NewProviderStore(cfg.ProviderTTL, d.clock, providerKV)
	if err != nil {
		return err
	}
	d.providers = providers

	if !cfg.EnableValueStore {
		return nil
	}

	validator := cfg.Validator
	if validator == nil {
		validator = NewSequenceValidator(cfg.MaxValueSize)
	}
	selector := cfg.Selector
	if selector == nil {
		if s, ok := validator.(interfaces.Selector); ok {
			selector = s
		} else {
			selector = NewSequenceValidator(cfg.MaxValueSize)
		}
	}

	records, err := NewRecordStore(validator, selector, cfg.MaxRecordAge, d.clock, recordKV)
	if err != nil {
		return err
	}
	d.records = records
	return nil
}

// Start 启动 DHT
func (d *DHT) Start(_ context.Context) error {
	if d.closed.Load() {
		return ErrDHTClosed
	}
	if !d.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	logger.Info("正在启动 DHT", "peer", d.host.ID().ShortString())

	if d.ownsEngine {
		if err := d.engine.Start(); err != nil {
			return d.abortStart(fmt.Errorf("start storage: %w", err))
		}
	}

	if err := d.adapter.Serve(); err != nil {
		return d.abortStart(err)
	}

	for _, p := range d.config.BootstrapPeers {
		d.addPeer(p.ID, p.Addrs)
	}

	d.wg.Add(2)
	go d.refreshLoop()
	go d.cleanupLoop()

	logger.Info("DHT 启动成功", "routingTableSize", d.routingTable.Size())
	return nil
}

// abortStart 启动失败后释放已打开的资源，DHT 不可再用
func (d *DHT) abortStart(err error) error {
	d.closed.Store(true)
	d.ctxCancel()
	logger.Warn("DHT 启动失败", "error", err)
	return multierr.Append(err, d.closeEngine())
}

// Stop 停止 DHT
func (d *DHT) Stop(_ context.Context) error {
	if !d.started.Load() {
		return ErrNotStarted
	}
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}

	logger.Info("正在停止 DHT")

	d.ctxCancel()
	d.wg.Wait()

	err := d.adapter.Close()
	err = multierr.Append(err, d.closeEngine())
	if err != nil {
		logger.Warn("停止 DHT 时出错", "error", err)
		return err
	}

	logger.Info("DHT 已停止")
	return nil
}

func (d *DHT) closeEngine() error {
	if !d.ownsEngine || d.engine == nil {
		return nil
	}
	return d.engine.Close()
}

// checkRunning 网络操作前检查生命周期状态
func (d *DHT) checkRunning() error {
	switch {
	case d.closed.Load():
		return ErrDHTClosed
	case !d.started.Load():
		return ErrNotStarted
	default:
		return nil
	}
}

// ============================================================================
//                              访问器
// ============================================================================

// RoutingTable 返回路由表
func (d *DHT) RoutingTable() *RoutingTable {
	return d.routingTable
}

// Handler 返回入站请求处理器
func (d *DHT) Handler() *Handler {
	return d.handler
}

// ProviderStore 返回本地 Provider 存储
func (d *DHT) ProviderStore() *ProviderStore {
	return d.providers
}

// RecordStore 返回本地值存储，未启用时为 nil
func (d *DHT) RecordStore() *RecordStore {
	return d.records
}

// ============================================================================
//                              节点与地址
// ============================================================================

// addPeer 以未验证节点加入路由表并记录地址
//
// 未验证的节点不会驱逐满桶中的成员，只在收到响应后才算可达。
func (d *DHT) addPeer(id types.PeerID, addrs []string) {
	if id.IsEmpty() || id == d.host.ID() {
		return
	}
	if len(addrs) > 0 {
		d.addrBook.Add(id, append([]string(nil), addrs...))
	}
	d.routingTable.TryAdd(id, addrs, false)
}

// learn 记录响应中携带的地址
func (d *DHT) learn(entries []pb.PeerEntry) {
	for _, e := range entries {
		if e.ID.IsEmpty() || len(e.Addrs) == 0 || e.ID == d.host.ID() {
			continue
		}
		d.addrBook.Add(e.ID, append([]string(nil), e.Addrs...))
	}
}

// knownAddrs 节点的已知地址：路由表优先，其次地址簿
func (d *DHT) knownAddrs(id types.PeerID) []string {
	if addrs := d.routingTable.GetAddrs(id); len(addrs) > 0 {
		return addrs
	}
	if addrs, ok := d.addrBook.Get(id); ok {
		return append([]string(nil), addrs...)
	}
	return nil
}

// sendRequest 发送请求并从响应中学习地址
//
// ctx 的截止时间由调用方决定。
func (d *DHT) sendRequest(ctx context.Context, peer types.PeerID, req *pb.Message) (*pb.Message, error) {
	resp, err := d.network.SendMessage(ctx, peer, req)
	if err != nil {
		return nil, err
	}
	d.learn(resp.CloserPeers)
	d.learn(resp.ProviderPeers)
	return resp, nil
}

// sendWithTimeout 以单次请求超时发送
func (d *DHT) sendWithTimeout(ctx context.Context, peer types.PeerID, req *pb.Message) (*pb.Message, error) {
	reqCtx, cancel := context.WithTimeout(ctx, d.config.RequestTimeout)
	defer cancel()
	return d.sendRequest(reqCtx, peer, req)
}

// runQuery 执行一次多路径查询
func (d *DHT) runQuery(ctx context.Context, target types.DHTID, fn QueryFunc) (*RunResult, error) {
	return newRun(NewQuery(target, fn), d.routingTable, d.qcfg, d.metrics).Execute(ctx)
}

// ============================================================================
//                              Ping / Bootstrap
// ============================================================================

// Ping 检测节点存活，成功后节点进入路由表
func (d *DHT) Ping(ctx context.Context, peer types.PeerID) error {
	if err := d.checkRunning(); err != nil {
		return err
	}
	if peer == d.host.ID() {
		return nil
	}

	_, err := d.sendWithTimeout(ctx, peer, pb.NewMessage(pb.MessageType_PING, nil))
	if err != nil {
		d.routingTable.MarkFailed(peer, d.config.MaxFailures)
		return err
	}
	d.routingTable.TryAdd(peer, d.knownAddrs(peer), true)
	return nil
}

// Bootstrap 执行引导：加入引导节点，查找自身，刷新过期的桶
func (d *DHT) Bootstrap(ctx context.Context) error {
	if err := d.checkRunning(); err != nil {
		return err
	}

	for _, p := range d.config.BootstrapPeers {
		d.addPeer(p.ID, p.Addrs)
	}
	if d.routingTable.Size() == 0 {
		logger.Warn("DHT Bootstrap: 路由表为空且无引导节点")
		return ErrNoPeersAvailable
	}

	logger.Info("DHT Bootstrap 开始", "routingTableSize", d.routingTable.Size())

	if _, err := d.closestPeers(ctx, []byte(d.host.ID())); err != nil {
		if errors.Is(err, ErrCancelled) || errors.Is(err, ErrNoPeersAvailable) {
			return err
		}
		logger.Warn("DHT Bootstrap: 查找自身失败", "error", err)
	}
	d.refreshBuckets(ctx, false)

	logger.Info("DHT Bootstrap 完成", "routingTableSize", d.routingTable.Size())
	return nil
}

// ============================================================================
//                              节点查找
// ============================================================================

// GetClosestPeers 查找距离 key 最近的 k 个节点
//
// 超时返回 ErrTimeout，同时返回已响应节点中最近的部分结果。
func (d *DHT) GetClosestPeers(ctx context.Context, key []byte) ([]types.PeerID, error) {
	if err := d.checkRunning(); err != nil {
		return nil, err
	}
	if len(key) == 0 {
		return nil, ErrMissingKey
	}
	return d.closestPeers(ctx, key)
}

func (d *DHT) closestPeers(ctx context.Context, key []byte) ([]types.PeerID, error) {
	res, err := d.runQuery(ctx, types.ConvertKey(key), func(ctx context.Context, peer types.PeerID) (*QueryResult, error) {
		resp, err := d.sendRequest(ctx, peer, pb.NewMessage(pb.MessageType_FIND_NODE, key))
		if err != nil {
			return nil, err
		}
		return &QueryResult{CloserPeers: resp.CloserPeers}, nil
	})
	if res == nil {
		return nil, err
	}

	peers := res.ClosestResponded(d.config.BucketSize)
	if err != nil && !errors.Is(err, ErrTimeout) {
		return nil, err
	}
	return peers, err
}

// FindPeer 查找节点地址
//
// 路由表中已有的节点直接返回；否则在网络中查找，找不到返回 ErrNotFound。
func (d *DHT) FindPeer(ctx context.Context, id types.PeerID) (types.PeerInfo, error) {
	if err := d.checkRunning(); err != nil {
		return types.PeerInfo{}, err
	}
	if err := id.Validate(); err != nil {
		return types.PeerInfo{}, err
	}
	if id == d.host.ID() {
		return types.PeerInfo{ID: id, Addrs: d.host.Addrs()}, nil
	}
	if _, ok := d.routingTable.Find(id); ok {
		return types.PeerInfo{ID: id, Addrs: d.knownAddrs(id)}, nil
	}

	var (
		mu    sync.Mutex
		found *types.PeerInfo
	)
	key := []byte(id)
	_, err := d.runQuery(ctx, types.ConvertKey(key), func(ctx context.Context, peer types.PeerID) (*QueryResult, error) {
		if peer == id {
			mu.Lock()
			found = &types.PeerInfo{ID: id, Addrs: d.knownAddrs(id)}
			mu.Unlock()
			return &QueryResult{Success: true}, nil
		}

		resp, err := d.sendRequest(ctx, peer, pb.NewMessage(pb.MessageType_FIND_NODE, key))
		if err != nil {
			return nil, err
		}
		for _, e := range resp.CloserPeers {
			if e.ID == id {
				mu.Lock()
				found = &types.PeerInfo{ID: id, Addrs: append([]string(nil), e.Addrs...)}
				mu.Unlock()
				return &QueryResult{CloserPeers: resp.CloserPeers, Success: true}, nil
			}
		}
		return &QueryResult{CloserPeers: resp.CloserPeers}, nil
	})

	mu.Lock()
	defer mu.Unlock()
	if found != nil {
		return *found, nil
	}
	if err == nil {
		err = ErrNotFound
	}
	return types.PeerInfo{}, err
}

// ============================================================================
//                              Provider
// ============================================================================

// Provide 声明本节点提供指定内容
//
// 总是写入本地 ProviderStore；announce 为 true 时再向距离 key 最近的
// k 个节点发送 ADD_PROVIDER，至少一个节点接受才算成功。
func (d *DHT) Provide(ctx context.Context, key types.ContentKey, announce bool) error {
	if err := d.checkRunning(); err != nil {
		return err
	}
	if _, err := types.ParseContentKey(key); err != nil {
		return err
	}

	self := d.host.ID()
	addrs := d.host.Addrs()
	if err := d.providers.AddProvider(key, self, addrs); err != nil {
		return err
	}
	if !announce {
		return nil
	}

	peers, err := d.closestPeers(ctx, key)
	if len(peers) == 0 {
		if err == nil {
			err = ErrNotFound
		}
		return NewDHTError("provide", err, "no peers to announce to")
	}

	req := pb.NewMessage(pb.MessageType_ADD_PROVIDER, key)
	req.ProviderPeers = []pb.PeerEntry{pb.NewPeerEntry(self, addrs, pb.ConnectionType_CONNECTED)}

	acked := d.broadcast(ctx, peers, req)
	logger.Debug("Provider 已公告",
		"key", key.String(),
		"peers", len(peers),
		"acked", acked)
	if acked == 0 {
		return NewDHTError("provide", ErrNotFound, "no peer accepted the record")
	}
	return nil
}

// FindProviders 查找内容提供者
//
// count<=0 时使用 ProviderQuorum。本地已知的提供者排在最前；
// 凑够 count 个后查询提前结束。
func (d *DHT) FindProviders(ctx context.Context, key types.ContentKey, count int) ([]types.PeerInfo, error) {
	if err := d.checkRunning(); err != nil {
		return nil, err
	}
	if _, err := types.ParseContentKey(key); err != nil {
		return nil, err
	}
	if count <= 0 {
		count = d.config.ProviderQuorum
	}

	var (
		mu    sync.Mutex
		seen  = make(map[types.PeerID]struct{})
		found []types.PeerInfo
	)
	add := func(id types.PeerID, addrs []string) bool {
		mu.Lock()
		defer mu.Unlock()
		if _, ok := seen[id]; !ok && len(found) < count {
			seen[id] = struct{}{}
			found = append(found, types.PeerInfo{ID: id, Addrs: append([]string(nil), addrs...)})
		}
		return len(found) >= count
	}

	for _, rec := range d.providers.GetProviders(key) {
		if add(rec.PeerID, rec.Addrs) {
			return found, nil
		}
	}

	_, err := d.runQuery(ctx, key.DHTID(), func(ctx context.Context, peer types.PeerID) (*QueryResult, error) {
		resp, err := d.sendRequest(ctx, peer, pb.NewMessage(pb.MessageType_GET_PROVIDERS, key))
		if err != nil {
			return nil, err
		}

		done := false
		for _, e := range resp.ProviderPeers {
			if e.ID.IsEmpty() {
				continue
			}
			addrs := e.Addrs
			if len(addrs) == 0 {
				addrs = d.knownAddrs(e.ID)
			}
			if add(e.ID, addrs) {
				done = true
				break
			}
		}
		return &QueryResult{CloserPeers: resp.CloserPeers, Success: done}, nil
	})

	mu.Lock()
	defer mu.Unlock()
	switch {
	case len(found) == 0 && err == nil:
		return nil, ErrNotFound
	case len(found) == 0:
		return nil, err
	case errors.Is(err, ErrTimeout):
		return found, err
	default:
		return found, nil
	}
}

// ============================================================================
//                              值存储
// ============================================================================

// PutValue 存储值
//
// 记录的序号在本地已有记录的基础上加一。记录先写入本地，
// 再复制到距离 key 最近的 k 个节点，至少一个节点接受才算成功。
func (d *DHT) PutValue(ctx context.Context, key, value []byte) error {
	if err := d.checkRunning(); err != nil {
		return err
	}
	if len(key) == 0 {
		return ErrMissingKey
	}
	if d.records == nil {
		return ErrValueStoreDisabled
	}

	var seq uint64
	if existing, err := d.records.GetValue(key); err == nil {
		if s, err := RecordSequence(existing); err == nil {
			seq = s + 1
		}
	}

	rec := pb.NewRecord(key, value, EncodeSequence(seq))
	if err := d.records.Validate(key, rec); err != nil {
		return err
	}
	if _, err := d.records.PutValue(key, rec); err != nil {
		return err
	}

	peers, err := d.closestPeers(ctx, key)
	if len(peers) == 0 {
		if err == nil {
			err = ErrNotFound
		}
		return NewDHTError("put value", err, "no peers to replicate to")
	}

	req := pb.NewMessage(pb.MessageType_PUT_VALUE, key)
	req.Record = rec
	acked := d.broadcast(ctx, peers, req)
	logger.Debug("值已复制", "seq", seq, "peers", len(peers), "acked", acked)
	if acked == 0 {
		return NewDHTError("put value", ErrNotFound, "no peer accepted the record")
	}
	return nil
}

// receivedRecord 查询中收到的记录
type receivedRecord struct {
	from types.PeerID
	rec  *pb.Record
}

// GetValue 获取值
//
// 收集到 ValueQuorum 个有效记录后提前结束，用 Selector 选出最优记录，
// 并把最优记录推送给返回了旧记录的节点。
func (d *DHT) GetValue(ctx context.Context, key []byte) ([]byte, error) {
	if err := d.checkRunning(); err != nil {
		return nil, err
	}
	if len(key) == 0 {
		return nil, ErrMissingKey
	}
	if d.records == nil {
		return nil, ErrValueStoreDisabled
	}

	var (
		mu       sync.Mutex
		received []receivedRecord
	)
	local, lerr := d.records.GetValue(key)
	if lerr == nil {
		received = append(received, receivedRecord{from: d.host.ID(), rec: local})
	}

	var err error
	if len(received) < d.config.ValueQuorum {
		_, err = d.runQuery(ctx, types.ConvertKey(key), func(ctx context.Context, peer types.PeerID) (*QueryResult, error) {
			resp, err := d.sendRequest(ctx, peer, pb.NewMessage(pb.MessageType_GET_VALUE, key))
			if err != nil {
				return nil, err
			}

			res := &QueryResult{CloserPeers: resp.CloserPeers}
			if resp.Record == nil {
				return res, nil
			}
			if err := d.records.Validate(key, resp.Record); err != nil {
				logger.Debug("丢弃无效记录", "peer", peer.ShortString(), "err", err)
				return res, nil
			}

			mu.Lock()
			received = append(received, receivedRecord{from: peer, rec: resp.Record})
			res.Success = len(received) >= d.config.ValueQuorum
			mu.Unlock()
			return res, nil
		})
	}

	mu.Lock()
	collected := append([]receivedRecord(nil), received...)
	mu.Unlock()

	if len(collected) == 0 {
		if err == nil {
			err = ErrNotFound
		}
		return nil, err
	}
	// 超时且未达到法定数量时不返回部分结果
	if errors.Is(err, ErrTimeout) && len(collected) < d.config.ValueQuorum {
		logger.Debug("获取值超时", "received", len(collected), "quorum", d.config.ValueQuorum)
		return nil, err
	}

	best := collected[0].rec
	for _, r := range collected[1:] {
		best = d.records.Select(key, best, r.rec)
	}

	// 读取不刷新本地已有记录的接收时间
	if lerr != nil || !sameRecord(local, best) {
		if _, perr := d.records.PutValue(key, best); perr != nil {
			logger.Debug("缓存最优记录失败", "err", perr)
		}
	}
	d.fixupStale(ctx, key, best, collected)

	if errors.Is(err, ErrTimeout) {
		return best.Value, err
	}
	return best.Value, nil
}

// fixupStale 把最优记录推送给返回了旧记录的节点
func (d *DHT) fixupStale(ctx context.Context, key []byte, best *pb.Record, collected []receivedRecord) {
	self := d.host.ID()

	var stale []types.PeerID
	for _, r := range collected {
		if r.from == self || sameRecord(r.rec, best) {
			continue
		}
		stale = append(stale, r.from)
	}
	if len(stale) == 0 {
		return
	}

	req := pb.NewMessage(pb.MessageType_PUT_VALUE, key)
	req.Record = pb.NewRecord(key, best.Value, best.Metadata)
	fixed := d.broadcast(ctx, stale, req)
	logger.Debug("修正旧记录", "stale", len(stale), "fixed", fixed)
}

// broadcast 并发向 peers 发送同一请求，返回成功数量
func (d *DHT) broadcast(ctx context.Context, peers []types.PeerID, req *pb.Message) int {
	var acked atomic.Int32

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.config.Alpha * d.config.DisjointPaths)
	for _, p := range peers {
		g.Go(func() error {
			if _, err := d.sendWithTimeout(gctx, p, req); err != nil {
				logger.Debug("发送失败",
					"type", req.Type.String(),
					"peer", p.ShortString(),
					"err", err)
				return nil
			}
			acked.Add(1)
			return nil
		})
	}
	_ = g.Wait()
	return int(acked.Load())
}

// ============================================================================
//                              后台循环
// ============================================================================

// refreshBuckets 对超过刷新间隔的桶做一次随机查找
func (d *DHT) refreshBuckets(ctx context.Context, force bool) {
	interval := d.config.RefreshInterval
	if force {
		interval = 0
	}

	for _, idx := range d.routingTable.BucketsNeedingRefresh(interval) {
		key := d.routingTable.RandomKeyForBucket(idx)
		if _, err := d.closestPeers(ctx, key); err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Debug("刷新桶失败", "bucket", idx, "err", err)
		}
		d.routingTable.MarkBucketRefreshed(idx)
	}
}

// refreshLoop 路由表刷新循环
func (d *DHT) refreshLoop() {
	defer d.wg.Done()

	ticker := d.clock.Ticker(d.config.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if d.routingTable.Size() > 0 {
				d.refreshBuckets(d.ctx, false)
			}
		case <-d.ctx.Done():
			return
		}
	}
}

// cleanupLoop 清理循环
func (d *DHT) cleanupLoop() {
	defer d.wg.Done()

	ticker := d.clock.Ticker(d.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.cleanup()
		case <-d.ctx.Done():
			return
		}
	}
}

func (d *DHT) cleanup() {
	providers := d.providers.CleanupExpired()
	records := 0
	if d.records != nil {
		records = d.records.CleanupExpired()
	}
	if providers > 0 || records > 0 {
		logger.Debug("清理过期数据", "providers", providers, "records", records)
	}
}

var _ interfaces.DHT = (*DHT)(nil)
