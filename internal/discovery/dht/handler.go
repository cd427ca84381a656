package dht

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/benbjohnson/clock"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	pb "github.com/dep2p/go-kaddht/pkg/lib/proto/dht"
	"github.com/dep2p/go-kaddht/pkg/types"
)

// ============================================================================
//                              速率限制
// ============================================================================

// limiterSet 按发送方分配的令牌桶
//
// 发送方数量受 LRU 容量约束，被淘汰的发送方下次出现时重新获得满桶。
type limiterSet struct {
	limit rate.Limit
	burst int
	clock clock.Clock

	mu       sync.Mutex
	limiters *lru.Cache[types.PeerID, *rate.Limiter]
}

func newLimiterSet(perSecond float64, burst, size int, clk clock.Clock) *limiterSet {
	cache, err := lru.New[types.PeerID, *rate.Limiter](size)
	if err != nil {
		// 仅在 size <= 0 时发生，Config.Validate 已排除
		panic(err)
	}
	return &limiterSet{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		clock:    clk,
		limiters: cache,
	}
}

// Allow 检查发送方是否还有令牌
func (ls *limiterSet) Allow(sender types.PeerID) bool {
	ls.mu.Lock()
	l, ok := ls.limiters.Get(sender)
	if !ok {
		l = rate.NewLimiter(ls.limit, ls.burst)
		ls.limiters.Add(sender, l)
	}
	ls.mu.Unlock()

	return l.AllowN(ls.clock.Now(), 1)
}

// ============================================================================
//                              Handler
// ============================================================================

// Handler 处理入站 DHT 请求
//
// Handler 不做任何网络 I/O：输入是已解码的请求和发送方，
// 输出是响应或错误。错误由网络层写入响应的 Error 字段。
type Handler struct {
	localID    types.PeerID
	bucketSize int

	rt        *RoutingTable
	providers *ProviderStore
	records   *RecordStore // 值存储未启用时为 nil

	connectedness func(types.PeerID) types.Connectedness
	metrics       *metrics

	providerLimits *limiterSet
	putLimits      *limiterSet
}

// HandlerOption Handler 选项
type HandlerOption func(*Handler)

// WithConnectedness 设置连接状态查询函数
//
// 用于在响应中标注节点的连接状态，未设置时一律为 NOT_CONNECTED。
func WithConnectedness(fn func(types.PeerID) types.Connectedness) HandlerOption {
	return func(h *Handler) {
		h.connectedness = fn
	}
}

// withHandlerMetrics 设置指标
func withHandlerMetrics(m *metrics) HandlerOption {
	return func(h *Handler) {
		h.metrics = m
	}
}

// NewHandler 创建请求处理器
//
// records 为 nil 表示不提供值存储：GET_VALUE 只返回更近节点，PUT_VALUE 被拒绝。
func NewHandler(cfg *Config, rt *RoutingTable, providers *ProviderStore, records *RecordStore, opts ...HandlerOption) *Handler {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}

	h := &Handler{
		localID:        rt.LocalID(),
		bucketSize:     cfg.BucketSize,
		rt:             rt,
		providers:      providers,
		records:        records,
		providerLimits: newLimiterSet(cfg.ProviderRateLimit, cfg.ProviderRateBurst, cfg.RateLimiterCacheSize, clk),
		putLimits:      newLimiterSet(cfg.PutValueRateLimit, cfg.PutValueRateBurst, cfg.RateLimiterCacheSize, clk),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleMessage 处理一条请求
func (h *Handler) HandleMessage(ctx context.Context, from types.PeerID, req *pb.Message) (*pb.Message, error) {
	if req == nil {
		return nil, ErrInvalidResponse
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	typ := req.Type.String()
	h.metrics.request(typ)

	// 每个请求都证明发送方可达
	h.rt.TryAdd(from, nil, true)

	var (
		resp *pb.Message
		err  error
	)
	switch req.Type {
	case pb.MessageType_PING:
		resp = req.NewResponse()
	case pb.MessageType_FIND_NODE:
		resp, err = h.handleFindNode(from, req)
	case pb.MessageType_GET_VALUE:
		resp, err = h.handleGetValue(from, req)
	case pb.MessageType_PUT_VALUE:
		resp, err = h.handlePutValue(from, req)
	case pb.MessageType_ADD_PROVIDER:
		resp, err = h.handleAddProvider(from, req)
	case pb.MessageType_GET_PROVIDERS:
		resp, err = h.handleGetProviders(from, req)
	default:
		err = fmt.Errorf("%w: %s", ErrUnknownMessageType, req.Type)
	}

	if err != nil {
		h.metrics.reject(typ)
		logger.Debug("拒绝请求",
			"type", typ,
			"from", from.ShortString(),
			"err", err)
		return nil, err
	}
	return resp, nil
}

// handleFindNode 返回距离键最近的 k 个节点
func (h *Handler) handleFindNode(from types.PeerID, req *pb.Message) (*pb.Message, error) {
	if len(req.Key) == 0 {
		return nil, ErrMissingKey
	}

	resp := req.NewResponse()
	resp.CloserPeers = h.closerPeers(types.ConvertKey(req.Key), from)
	return resp, nil
}

// handleGetValue 返回本地记录（如有）和更近节点
func (h *Handler) handleGetValue(from types.PeerID, req *pb.Message) (*pb.Message, error) {
	if len(req.Key) == 0 {
		return nil, ErrMissingKey
	}

	resp := req.NewResponse()
	if h.records != nil {
		rec, err := h.records.GetValue(req.Key)
		switch {
		case err == nil:
			resp.Record = rec
		case !errors.Is(err, ErrNotFound):
			return nil, err
		}
	}
	resp.CloserPeers = h.closerPeers(types.ConvertKey(req.Key), from)
	return resp, nil
}

// handlePutValue 校验并存储记录，响应回显请求
func (h *Handler) handlePutValue(from types.PeerID, req *pb.Message) (*pb.Message, error) {
	if len(req.Key) == 0 {
		return nil, ErrMissingKey
	}
	if h.records == nil {
		return nil, ErrValueStoreDisabled
	}
	if req.Record == nil {
		return nil, fmt.Errorf("%w: missing record", ErrInvalidRecord)
	}
	if !bytes.Equal(req.Record.Key, req.Key) {
		return nil, fmt.Errorf("%w: record key does not match request key", ErrInvalidRecord)
	}
	if !h.putLimits.Allow(from) {
		return nil, ErrRateLimitExceeded
	}

	replaced, err := h.records.PutValue(req.Key, req.Record)
	if err != nil {
		return nil, err
	}
	logger.Debug("存储值记录",
		"from", from.ShortString(),
		"replaced", replaced)

	resp := req.NewResponse()
	resp.Record = req.Record.Clone()
	return resp, nil
}

// handleAddProvider 记录发送方为提供者
//
// 只接受发送方声明自己：指向其他节点的条目被忽略，
// 发送方的地址只取自指向它自己的条目。
func (h *Handler) handleAddProvider(from types.PeerID, req *pb.Message) (*pb.Message, error) {
	if _, err := types.ParseContentKey(req.Key); err != nil {
		return nil, err
	}
	if !h.providerLimits.Allow(from) {
		return nil, ErrRateLimitExceeded
	}

	var addrs []string
	for _, entry := range req.ProviderPeers {
		if entry.ID != from {
			logger.Debug("忽略第三方 Provider",
				"from", from.ShortString(),
				"claimed", entry.ID.ShortString())
			continue
		}
		addrs = append(addrs, entry.Addrs...)
	}

	if err := h.providers.AddProvider(req.Key, from, addrs); err != nil {
		return nil, err
	}
	if len(addrs) > 0 {
		h.rt.TryAdd(from, addrs, true)
	}
	return req.NewResponse(), nil
}

// handleGetProviders 返回已知提供者和更近节点
func (h *Handler) handleGetProviders(from types.PeerID, req *pb.Message) (*pb.Message, error) {
	key, err := types.ParseContentKey(req.Key)
	if err != nil {
		return nil, err
	}

	resp := req.NewResponse()
	for _, rec := range h.providers.GetProviders(req.Key) {
		addrs := rec.Addrs
		if len(addrs) == 0 {
			addrs = h.rt.GetAddrs(rec.PeerID)
		}
		resp.ProviderPeers = append(resp.ProviderPeers,
			pb.NewPeerEntry(rec.PeerID, addrs, h.connection(rec.PeerID)))
	}
	resp.CloserPeers = h.closerPeers(key.DHTID(), from)
	return resp, nil
}

// closerPeers 路由表中距离 target 最近的 k 个节点，不含请求方
func (h *Handler) closerPeers(target types.DHTID, from types.PeerID) []pb.PeerEntry {
	nodes := h.rt.NearestNodes(target, h.bucketSize+1)

	entries := make([]pb.PeerEntry, 0, len(nodes))
	for _, n := range nodes {
		if n.ID == from || n.ID == h.localID {
			continue
		}
		entries = append(entries, pb.NewPeerEntry(n.ID, n.Addrs, h.connection(n.ID)))
		if len(entries) == h.bucketSize {
			break
		}
	}
	return entries
}

func (h *Handler) connection(id types.PeerID) pb.ConnectionType {
	if h.connectedness == nil {
		return pb.ConnectionType_NOT_CONNECTED
	}
	return toConnectionType(h.connectedness(id))
}

// toConnectionType 连接状态转换为消息枚举
func toConnectionType(c types.Connectedness) pb.ConnectionType {
	switch c {
	case types.Connected:
		return pb.ConnectionType_CONNECTED
	case types.CanConnect:
		return pb.ConnectionType_CAN_CONNECT
	case types.CannotConnect:
		return pb.ConnectionType_CANNOT_CONNECT
	default:
		return pb.ConnectionType_NOT_CONNECTED
	}
}
