package dht

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pb "github.com/dep2p/go-kaddht/pkg/lib/proto/dht"
	"github.com/dep2p/go-kaddht/pkg/types"
)

// handlerFixture Handler 及其依赖
type handlerFixture struct {
	local     types.PeerID
	clock     *clock.Mock
	rt        *RoutingTable
	providers *ProviderStore
	records   *RecordStore
	metrics   *metrics
	h         *Handler
}

func newHandlerFixture(t *testing.T, cfg *Config, valueStore bool, opts ...HandlerOption) *handlerFixture {
	t.Helper()

	mock := clock.NewMock()
	cfg.Clock = mock

	f := &handlerFixture{
		local:   testPeer(t, "handler-local"),
		clock:   mock,
		metrics: newMetrics(prometheus.NewRegistry()),
	}
	f.rt = NewRoutingTable(f.local, cfg.BucketSize, mock)

	var err error
	f.providers, err = NewProviderStore(cfg.ProviderTTL, mock, nil)
	require.NoError(t, err)

	if valueStore {
		v := NewSequenceValidator(cfg.MaxValueSize)
		f.records, err = NewRecordStore(v, v, cfg.MaxRecordAge, mock, nil)
		require.NoError(t, err)
	}

	opts = append(opts, withHandlerMetrics(f.metrics))
	f.h = NewHandler(cfg, f.rt, f.providers, f.records, opts...)
	return f
}

// counterValue 读取计数器当前值
func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()

	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func (f *handlerFixture) handle(from types.PeerID, req *pb.Message) (*pb.Message, error) {
	return f.h.HandleMessage(context.Background(), from, req)
}

// ============================================================================
// 通用
// ============================================================================

// TestHandler_Ping PING 回显并把发送方加入路由表
func TestHandler_Ping(t *testing.T) {
	f := newHandlerFixture(t, testConfig(), true)
	from := testPeer(t, "sender")

	resp, err := f.handle(from, pb.NewMessage(pb.MessageType_PING, nil))
	require.NoError(t, err)
	assert.Equal(t, pb.MessageType_PING, resp.Type)
	assert.Empty(t, resp.Error)

	_, ok := f.rt.Find(from)
	assert.True(t, ok, "sender should be added to the routing table")
	assert.Equal(t, 1.0, counterValue(t, f.metrics.requests.WithLabelValues("PING")))
}

// TestHandler_InvalidInput 空请求、未知类型、已取消的 ctx
func TestHandler_InvalidInput(t *testing.T) {
	f := newHandlerFixture(t, testConfig(), true)
	from := testPeer(t, "sender")

	_, err := f.handle(from, nil)
	assert.ErrorIs(t, err, ErrInvalidResponse)

	_, err = f.handle(from, pb.NewMessage(pb.MessageType(42), []byte("k")))
	assert.ErrorIs(t, err, ErrUnknownMessageType)
	assert.Equal(t, 1.0, counterValue(t, f.metrics.rejected.WithLabelValues("UNKNOWN(42)")))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = f.h.HandleMessage(ctx, from, pb.NewMessage(pb.MessageType_PING, nil))
	assert.ErrorIs(t, err, context.Canceled)
}

// ============================================================================
// FIND_NODE
// ============================================================================

// TestHandler_FindNode 返回最近的 k 个节点，不含发送方和自身
func TestHandler_FindNode(t *testing.T) {
	cfg := testConfig()
	cfg.BucketSize = 5
	f := newHandlerFixture(t, cfg, true)

	peers := testPeers(t, "fn", 30)
	for _, p := range peers {
		f.rt.TryAdd(p, []string{"mem:" + p.ShortString()}, true)
	}
	key := []byte("target")
	target := types.ConvertKey(key)

	// 发送方是距离最近的节点之一
	from := f.rt.NearestPeers(target, 1)[0]

	resp, err := f.handle(from, pb.NewMessage(pb.MessageType_FIND_NODE, key))
	require.NoError(t, err)
	require.Len(t, resp.CloserPeers, 5)

	var got []types.PeerID
	for _, e := range resp.CloserPeers {
		assert.NotEqual(t, from, e.ID)
		assert.NotEqual(t, f.local, e.ID)
		assert.Equal(t, []string{"mem:" + e.ID.ShortString()}, e.Addrs)
		got = append(got, e.ID)
	}
	assert.Equal(t, f.rt.NearestPeers(target, 6)[1:], got)

	_, err = f.handle(from, pb.NewMessage(pb.MessageType_FIND_NODE, nil))
	assert.ErrorIs(t, err, ErrMissingKey)
}

// ============================================================================
// GET_VALUE / PUT_VALUE
// ============================================================================

// TestHandler_PutGetValue 存储后可以读取
func TestHandler_PutGetValue(t *testing.T) {
	f := newHandlerFixture(t, testConfig(), true)
	from := testPeer(t, "writer")
	key := []byte("/v/name")

	get := pb.NewMessage(pb.MessageType_GET_VALUE, key)
	resp, err := f.handle(from, get)
	require.NoError(t, err)
	assert.Nil(t, resp.Record)

	put := pb.NewMessage(pb.MessageType_PUT_VALUE, key)
	put.Record = pb.NewRecord(key, []byte("hello"), EncodeSequence(1))
	resp, err = f.handle(from, put)
	require.NoError(t, err)
	assert.Equal(t, pb.MessageType_PUT_VALUE, resp.Type)
	require.NotNil(t, resp.Record)
	assert.Equal(t, []byte("hello"), resp.Record.Value)

	resp, err = f.handle(from, get)
	require.NoError(t, err)
	require.NotNil(t, resp.Record)
	assert.Equal(t, []byte("hello"), resp.Record.Value)
	assert.Equal(t, f.clock.Now().UnixNano(), resp.Record.TimeReceived)
}

// TestHandler_PutValueRejected 缺键、缺记录、键不一致、校验失败
func TestHandler_PutValueRejected(t *testing.T) {
	f := newHandlerFixture(t, testConfig(), true)
	from := testPeer(t, "writer")
	key := []byte("k")

	tests := []struct {
		name    string
		msg     func() *pb.Message
		wantErr error
	}{
		{"missing key", func() *pb.Message {
			return pb.NewMessage(pb.MessageType_PUT_VALUE, nil)
		}, ErrMissingKey},
		{"missing record", func() *pb.Message {
			return pb.NewMessage(pb.MessageType_PUT_VALUE, key)
		}, ErrInvalidRecord},
		{"key mismatch", func() *pb.Message {
			m := pb.NewMessage(pb.MessageType_PUT_VALUE, key)
			m.Record = pb.NewRecord([]byte("other"), []byte("v"), nil)
			return m
		}, ErrInvalidRecord},
		{"validation failed", func() *pb.Message {
			m := pb.NewMessage(pb.MessageType_PUT_VALUE, key)
			m.Record = pb.NewRecord(key, nil, nil)
			return m
		}, ErrValidationFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.handle(from, tt.msg())
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	assert.Equal(t, 0, f.records.Size())
}

// TestHandler_ValueStoreDisabled 未启用值存储时 GET 只返回节点，PUT 被拒绝
func TestHandler_ValueStoreDisabled(t *testing.T) {
	f := newHandlerFixture(t, testConfig(), false)
	from := testPeer(t, "writer")
	f.rt.TryAdd(testPeer(t, "other"), nil, true)
	key := []byte("k")

	resp, err := f.handle(from, pb.NewMessage(pb.MessageType_GET_VALUE, key))
	require.NoError(t, err)
	assert.Nil(t, resp.Record)
	assert.Len(t, resp.CloserPeers, 1)

	put := pb.NewMessage(pb.MessageType_PUT_VALUE, key)
	put.Record = pb.NewRecord(key, []byte("v"), nil)
	_, err = f.handle(from, put)
	assert.ErrorIs(t, err, ErrValueStoreDisabled)
}

// TestHandler_PutValueRateLimit 超过突发上限后拒绝，时间推进后恢复
func TestHandler_PutValueRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.PutValueRateLimit = 1
	cfg.PutValueRateBurst = 2
	f := newHandlerFixture(t, cfg, true)

	from := testPeer(t, "spammer")
	other := testPeer(t, "polite")
	key := []byte("k")

	put := func(sender types.PeerID, seq uint64) error {
		m := pb.NewMessage(pb.MessageType_PUT_VALUE, key)
		m.Record = pb.NewRecord(key, []byte("v"), EncodeSequence(seq))
		_, err := f.handle(sender, m)
		return err
	}

	require.NoError(t, put(from, 1))
	require.NoError(t, put(from, 2))
	assert.ErrorIs(t, put(from, 3), ErrRateLimitExceeded)

	// 限流按发送方独立计算
	assert.NoError(t, put(other, 4))

	f.clock.Add(time.Second)
	assert.NoError(t, put(from, 5))
	assert.ErrorIs(t, put(from, 6), ErrRateLimitExceeded)
}

// ============================================================================
// ADD_PROVIDER / GET_PROVIDERS
// ============================================================================

// TestHandler_AddProvider 只记录发送方自己
func TestHandler_AddProvider(t *testing.T) {
	f := newHandlerFixture(t, testConfig(), true)
	from := testPeer(t, "provider")
	victim := testPeer(t, "victim")
	key := types.NewContentKey([]byte("content"))

	req := pb.NewMessage(pb.MessageType_ADD_PROVIDER, key)
	req.ProviderPeers = []pb.PeerEntry{
		pb.NewPeerEntry(victim, []string{"mem:victim"}, pb.ConnectionType_NOT_CONNECTED),
		pb.NewPeerEntry(from, []string{"mem:provider"}, pb.ConnectionType_NOT_CONNECTED),
	}

	resp, err := f.handle(from, req)
	require.NoError(t, err)
	assert.Equal(t, pb.MessageType_ADD_PROVIDER, resp.Type)

	got := f.providers.GetProviders(key)
	require.Len(t, got, 1)
	assert.Equal(t, from, got[0].PeerID)
	assert.Equal(t, []string{"mem:provider"}, got[0].Addrs)
	assert.Equal(t, []string{"mem:provider"}, f.rt.GetAddrs(from))

	_, ok := f.rt.Find(victim)
	assert.False(t, ok)
}

// TestHandler_AddProviderNoAddrs 没有地址时只记录节点引用
func TestHandler_AddProviderNoAddrs(t *testing.T) {
	f := newHandlerFixture(t, testConfig(), true)
	from := testPeer(t, "provider")
	key := types.NewContentKey([]byte("content"))

	_, err := f.handle(from, pb.NewMessage(pb.MessageType_ADD_PROVIDER, key))
	require.NoError(t, err)

	got := f.providers.GetProviders(key)
	require.Len(t, got, 1)
	assert.Empty(t, got[0].Addrs)
}

// TestHandler_AddProviderInvalidKey 非内容键被拒绝
func TestHandler_AddProviderInvalidKey(t *testing.T) {
	f := newHandlerFixture(t, testConfig(), true)
	from := testPeer(t, "provider")

	_, err := f.handle(from, pb.NewMessage(pb.MessageType_ADD_PROVIDER, []byte("not a multihash")))
	assert.ErrorIs(t, err, ErrInvalidKey)

	_, err = f.handle(from, pb.NewMessage(pb.MessageType_ADD_PROVIDER, nil))
	assert.ErrorIs(t, err, ErrMissingKey)

	_, err = f.handle(from, pb.NewMessage(pb.MessageType_GET_PROVIDERS, []byte("not a multihash")))
	assert.ErrorIs(t, err, ErrInvalidKey)
}

// TestHandler_AddProviderRateLimit Provider 公告按发送方限流
func TestHandler_AddProviderRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.ProviderRateLimit = 1
	cfg.ProviderRateBurst = 1
	f := newHandlerFixture(t, cfg, true)
	from := testPeer(t, "provider")

	add := func(data string) error {
		_, err := f.handle(from, pb.NewMessage(pb.MessageType_ADD_PROVIDER, types.NewContentKey([]byte(data))))
		return err
	}

	require.NoError(t, add("a"))
	assert.ErrorIs(t, add("b"), ErrRateLimitExceeded)
	f.clock.Add(time.Second)
	assert.NoError(t, add("c"))
}

// TestHandler_GetProviders 返回提供者（带连接状态）和更近节点
func TestHandler_GetProviders(t *testing.T) {
	connected := testPeer(t, "connected")
	bare := testPeer(t, "bare")

	f := newHandlerFixture(t, testConfig(), true, WithConnectedness(func(id types.PeerID) types.Connectedness {
		if id == connected {
			return types.Connected
		}
		return types.CannotConnect
	}))

	key := types.NewContentKey([]byte("content"))
	require.NoError(t, f.providers.AddProvider(key, connected, []string{"mem:connected"}))
	require.NoError(t, f.providers.AddProvider(key, bare, nil))
	f.rt.TryAdd(bare, []string{"mem:bare-rt"}, true)

	from := testPeer(t, "asker")
	resp, err := f.handle(from, pb.NewMessage(pb.MessageType_GET_PROVIDERS, key))
	require.NoError(t, err)
	require.Len(t, resp.ProviderPeers, 2)

	byID := map[types.PeerID]pb.PeerEntry{}
	for _, e := range resp.ProviderPeers {
		byID[e.ID] = e
	}
	assert.Equal(t, pb.ConnectionType_CONNECTED, byID[connected].Connection)
	assert.Equal(t, []string{"mem:connected"}, byID[connected].Addrs)
	assert.Equal(t, pb.ConnectionType_CANNOT_CONNECT, byID[bare].Connection)
	assert.Equal(t, []string{"mem:bare-rt"}, byID[bare].Addrs, "falls back to routing table addrs")

	// 发送方此时已在路由表中，但不出现在 closerPeers
	require.Len(t, resp.CloserPeers, 1)
	assert.Equal(t, bare, resp.CloserPeers[0].ID)
}

// TestToConnectionType 连接状态转换
func TestToConnectionType(t *testing.T) {
	assert.Equal(t, pb.ConnectionType_NOT_CONNECTED, toConnectionType(types.NotConnected))
	assert.Equal(t, pb.ConnectionType_CONNECTED, toConnectionType(types.Connected))
	assert.Equal(t, pb.ConnectionType_CAN_CONNECT, toConnectionType(types.CanConnect))
	assert.Equal(t, pb.ConnectionType_CANNOT_CONNECT, toConnectionType(types.CannotConnect))
}
