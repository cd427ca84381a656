package kaddht

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/fx"

	"github.com/dep2p/go-kaddht/config"
	"github.com/dep2p/go-kaddht/internal/discovery/dht"
	"github.com/dep2p/go-kaddht/pkg/interfaces"
	"github.com/dep2p/go-kaddht/pkg/lib/log"
	"github.com/dep2p/go-kaddht/pkg/types"
)

var logger = log.Logger("kaddht")

// stopTimeout Close 使用的停止超时
const stopTimeout = 10 * time.Second

// ════════════════════════════════════════════════════════════════════════════
//                              节点状态
// ════════════════════════════════════════════════════════════════════════════

// NodeState 节点状态
type NodeState int

const (
	// StateIdle 空闲状态（已创建，未启动）
	StateIdle NodeState = iota

	// StateStarting 启动中（Fx App 启动中）
	StateStarting

	// StateRunning 运行中
	StateRunning

	// StateStopping 停止中
	StateStopping

	// StateStopped 已停止（不可重新启动）
	StateStopped
)

// String 返回状态名称
func (s NodeState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// ════════════════════════════════════════════════════════════════════════════
//                              Node 结构
// ════════════════════════════════════════════════════════════════════════════

// Node Kademlia DHT 节点
//
// Node 把统一配置、存储引擎和 DHT 组装为一个 Fx 应用，
// 并以 interfaces.DHT 的形式对外提供查询操作。
type Node struct {
	config *config.Config
	app    *fx.App
	host   interfaces.Host

	// 由 Fx 注入
	dht *dht.DHT

	mu    sync.RWMutex
	state NodeState
}

var _ interfaces.DHT = (*Node)(nil)

// ════════════════════════════════════════════════════════════════════════════
//                              构造函数
// ════════════════════════════════════════════════════════════════════════════

// New 创建新节点
//
// 创建节点但不启动，需要调用 Start() 启动。
//
// 示例：
//
//	node, err := kaddht.New(host,
//	    kaddht.WithBootstrapPeers(boot),
//	    kaddht.WithDataDir("/var/lib/kaddht"),
//	)
func New(host interfaces.Host, opts ...Option) (*Node, error) {
	if host == nil {
		return nil, ErrNilHost
	}

	o := newOptions()
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}
	applyLogConfig(o.config.Log)

	node := &Node{
		config: o.config,
		host:   host,
	}

	var err error
	node.app, err = buildFxApp(host, o, node)
	if err != nil {
		return nil, fmt.Errorf("build fx app: %w", err)
	}
	return node, nil
}

// Start 快捷启动函数
//
// 创建节点并立即启动，等价于 New() + Start()。
func Start(ctx context.Context, host interfaces.Host, opts ...Option) (*Node, error) {
	node, err := New(host, opts...)
	if err != nil {
		return nil, err
	}
	if err := node.Start(ctx); err != nil {
		return nil, fmt.Errorf("start node: %w", err)
	}
	return node, nil
}

// ════════════════════════════════════════════════════════════════════════════
//                              生命周期管理
// ════════════════════════════════════════════════════════════════════════════

// Start 启动节点
//
// 启动存储引擎和 DHT；配置了引导节点时在后台执行一次 Bootstrap。
func (n *Node) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	switch n.state {
	case StateIdle:
	case StateStopping, StateStopped:
		return ErrNodeClosed
	default:
		return ErrAlreadyStarted
	}

	n.state = StateStarting
	logger.Info("正在启动节点", "peer", n.host.ID().ShortString())

	if err := n.app.Start(ctx); err != nil {
		n.state = StateStopped
		logger.Error("节点启动失败", "error", err)
		return fmt.Errorf("start fx app: %w", err)
	}

	n.state = StateRunning
	logger.Info("节点已启动", "addrs", n.host.Addrs())
	return nil
}

// Stop 停止节点
//
// 停止后节点不能再次启动。未启动的节点直接进入停止状态。
func (n *Node) Stop(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	switch n.state {
	case StateStopping, StateStopped:
		return nil
	case StateIdle:
		n.state = StateStopped
		return nil
	}

	n.state = StateStopping
	logger.Info("正在停止节点")

	err := n.app.Stop(ctx)
	n.state = StateStopped
	if err != nil {
		logger.Warn("节点停止出错", "error", err)
		return fmt.Errorf("stop fx app: %w", err)
	}
	logger.Info("节点已停止")
	return nil
}

// Close 使用默认超时停止节点
func (n *Node) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	return n.Stop(ctx)
}

// State 返回节点状态
func (n *Node) State() NodeState {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.state
}

// IsRunning 节点是否运行中
func (n *Node) IsRunning() bool {
	return n.State() == StateRunning
}

// running 返回可用的 DHT
func (n *Node) running() (*dht.DHT, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	switch n.state {
	case StateRunning:
		return n.dht, nil
	case StateStopping, StateStopped:
		return nil, ErrNodeClosed
	default:
		return nil, ErrNotStarted
	}
}

// ════════════════════════════════════════════════════════════════════════════
//                              基本信息
// ════════════════════════════════════════════════════════════════════════════

// ID 返回节点 ID
func (n *Node) ID() types.PeerID {
	return n.host.ID()
}

// Addrs 返回 Host 的地址
func (n *Node) Addrs() []string {
	return n.host.Addrs()
}

// Info 返回节点 ID 与地址
func (n *Node) Info() types.PeerInfo {
	return types.PeerInfo{ID: n.host.ID(), Addrs: n.host.Addrs()}
}

// Config 返回节点配置的副本
func (n *Node) Config() *config.Config {
	return n.config.Clone()
}

// DHT 返回底层 DHT，节点启动前为 nil
func (n *Node) DHT() interfaces.DHT {
	d, err := n.running()
	if err != nil {
		return nil
	}
	return d
}

// RoutingTableSize 返回路由表中的节点数
func (n *Node) RoutingTableSize() int {
	d, err := n.running()
	if err != nil {
		return 0
	}
	return d.RoutingTable().Size()
}

// ════════════════════════════════════════════════════════════════════════════
//                              DHT 操作
// ════════════════════════════════════════════════════════════════════════════

// Bootstrap 查找自身以填充路由表
func (n *Node) Bootstrap(ctx context.Context) error {
	d, err := n.running()
	if err != nil {
		return err
	}
	return d.Bootstrap(ctx)
}

// Ping 检测节点存活
func (n *Node) Ping(ctx context.Context, peer types.PeerID) error {
	d, err := n.running()
	if err != nil {
		return err
	}
	return d.Ping(ctx, peer)
}

// GetClosestPeers 查找距离 key 最近的节点
func (n *Node) GetClosestPeers(ctx context.Context, key []byte) ([]types.PeerID, error) {
	d, err := n.running()
	if err != nil {
		return nil, err
	}
	return d.GetClosestPeers(ctx, key)
}

// FindPeer 查找节点地址
func (n *Node) FindPeer(ctx context.Context, peer types.PeerID) (types.PeerInfo, error) {
	d, err := n.running()
	if err != nil {
		return types.PeerInfo{}, err
	}
	return d.FindPeer(ctx, peer)
}

// Provide 声明本节点提供内容
func (n *Node) Provide(ctx context.Context, key types.ContentKey, announce bool) error {
	d, err := n.running()
	if err != nil {
		return err
	}
	return d.Provide(ctx, key, announce)
}

// FindProviders 查找内容提供者
func (n *Node) FindProviders(ctx context.Context, key types.ContentKey, count int) ([]types.PeerInfo, error) {
	d, err := n.running()
	if err != nil {
		return nil, err
	}
	return d.FindProviders(ctx, key, count)
}

// PutValue 存储值
func (n *Node) PutValue(ctx context.Context, key, value []byte) error {
	d, err := n.running()
	if err != nil {
		return err
	}
	return d.PutValue(ctx, key, value)
}

// GetValue 获取值
func (n *Node) GetValue(ctx context.Context, key []byte) ([]byte, error) {
	d, err := n.running()
	if err != nil {
		return nil, err
	}
	return d.GetValue(ctx, key)
}
