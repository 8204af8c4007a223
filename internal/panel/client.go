package panel

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"nodelink/internal/pkg"
	"nodelink/internal/protocol"
	"nodelink/internal/transport"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrNotConnected = errors.New("未连接到节点")
	ErrAlreadyStart = errors.New("客户端已经启动")
)

// ClientState 客户端状态
type ClientState int32

const (
	ClientConnecting ClientState = iota
	ClientActive
	ClientClosed
)

func (s ClientState) String() string {
	switch s {
	case ClientConnecting:
		return "CONNECTING"
	case ClientActive:
		return "ACTIVE"
	default:
		return "CLOSED"
	}
}

// DialFunc 建立到节点的连接
type DialFunc func(ctx context.Context, addr string) (net.Conn, error)

// RemoteClient 是面板到一个远端节点的连接。命令都是单向的，应答通过接收循环异步到达。
type RemoteClient struct {
	id       string
	ctx      context.Context
	nodeID   string
	addr     string
	timeout  time.Duration
	maxFrame int
	dial     DialFunc
	handler  MessageHandler
	metrics  *pkg.Metrics

	state      atomic.Int32
	conn       atomic.Pointer[transport.FrameConn]
	seen       sync.Map // 收到过的消息 nodeId，断开时交给 handler 清理
	looping    atomic.Bool
	done       chan struct{}
	closeOnce  sync.Once
	finishOnce sync.Once
}

type ClientOption func(*RemoteClient)

func WithDialTimeout(d time.Duration) ClientOption {
	return func(c *RemoteClient) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithClientMaxFrameSize(n int) ClientOption {
	return func(c *RemoteClient) { c.maxFrame = n }
}

// WithDialFunc 替换拨号方式，测试中可以接入 net.Pipe
func WithDialFunc(fn DialFunc) ClientOption {
	return func(c *RemoteClient) { c.dial = fn }
}

func WithClientMetrics(m *pkg.Metrics) ClientOption {
	return func(c *RemoteClient) { c.metrics = m }
}

// NewRemoteClient 创建客户端，此时还没有连接
func NewRemoteClient(ctx context.Context, cfg pkg.RemoteNodeConfig, handler MessageHandler, opts ...ClientOption) (*RemoteClient, error) {
	nodeID := strings.TrimSpace(cfg.ID)
	if nodeID == "" {
		return nil, protocol.ErrBlankNodeID
	}
	c := &RemoteClient{
		id:       uuid.NewString(),
		nodeID:   nodeID,
		addr:     cfg.Addr,
		timeout:  pkg.DefaultDialTimeout,
		maxFrame: pkg.DefaultMaxFrameSize,
		handler:  handler,
		metrics:  pkg.GetMetrics(),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.dial == nil {
		c.dial = func(ctx context.Context, addr string) (net.Conn, error) {
			d := net.Dialer{Timeout: c.timeout}
			return d.DialContext(ctx, "tcp", addr)
		}
	}
	c.ctx = pkg.WithLogger(ctx, pkg.LoggerFromContext(ctx).With(
		zap.String("module", "remote"),
		zap.String("client", c.id),
		zap.String("node", nodeID),
		zap.String("addr", cfg.Addr),
	))
	return c, nil
}

func (c *RemoteClient) ID() string            { return c.id }
func (c *RemoteClient) NodeID() string        { return c.nodeID }
func (c *RemoteClient) Addr() string          { return c.addr }
func (c *RemoteClient) State() ClientState    { return ClientState(c.state.Load()) }
func (c *RemoteClient) Done() <-chan struct{} { return c.done }

// Connect 建立连接，发送 HELLO（不等待应答），然后在后台进入接收循环
func (c *RemoteClient) Connect(ctx context.Context) error {
	if c.State() != ClientConnecting || c.conn.Load() != nil {
		return ErrAlreadyStart
	}
	conn, err := c.dial(ctx, c.addr)
	if err != nil {
		return fmt.Errorf("连接节点 %s(%s) 失败: %w", c.nodeID, c.addr, err)
	}
	c.conn.Store(transport.New(conn, transport.WithMaxFrameSize(c.maxFrame)))
	if !c.state.CompareAndSwap(int32(ClientConnecting), int32(ClientActive)) {
		_ = conn.Close()
		return ErrAlreadyStart
	}
	c.metrics.SessionOpened("panel")
	pkg.LoggerFromContext(c.ctx).Info("已连接节点")

	if err := c.send(protocol.Hello, ""); err != nil {
		pkg.LoggerFromContext(c.ctx).Warn("发送 HELLO 失败", zap.Error(err))
	}
	c.looping.Store(true)
	go c.receiveLoop()
	return nil
}

func (c *RemoteClient) receiveLoop() {
	log := pkg.LoggerFromContext(c.ctx)
	defer c.finish()
	defer c.Close()
	for c.State() == ClientActive {
		text, err := c.conn.Load().RecvText()
		if err != nil {
			if transport.IsDisconnect(err) || c.State() != ClientActive {
				log.Info("节点断开连接")
				return
			}
			c.metrics.IncErrors("transport")
			log.Error("接收帧失败", zap.Error(err))
			return
		}
		msg, err := protocol.Decode(text)
		if err != nil {
			c.metrics.IncErrors("protocol")
			log.Warn("丢弃无法解析的帧", zap.String("text", text), zap.Error(err))
			continue
		}
		c.seen.Store(msg.NodeID(), struct{}{})
		c.handler.Dispatch(msg)
	}
}

// SendCommand 设置执行器状态，target 可以是设备 ID 或类型名
func (c *RemoteClient) SendCommand(target string, on bool) error {
	return c.send(protocol.Command, protocol.StatePayload(target, on))
}

// RequestDataRefresh 请求全量快照，target 为 sensors、actuators、all 或空
func (c *RemoteClient) RequestDataRefresh(target string) error {
	return c.send(protocol.Command, protocol.CommandPayload(target, protocol.ActionRefresh))
}

func (c *RemoteClient) send(t protocol.MessageType, payload string) error {
	if c.State() != ClientActive {
		return ErrNotConnected
	}
	msg, err := protocol.NewMessage(t, c.nodeID, payload)
	if err != nil {
		return err
	}
	if err := c.conn.Load().SendText(protocol.Encode(msg)); err != nil {
		c.metrics.IncErrors("transport")
		return fmt.Errorf("发送 %s 失败: %w", t, err)
	}
	c.metrics.IncMsgSent(t.String())
	return nil
}

// Close 关闭连接，可重复调用。缓存在接收循环退出后丢弃，之后 Done 被关闭。
func (c *RemoteClient) Close() error {
	var err error
	c.closeOnce.Do(func() {
		if c.state.Swap(int32(ClientClosed)) == int32(ClientActive) {
			c.metrics.SessionClosed("panel")
		}
		if fc := c.conn.Load(); fc != nil {
			if cerr := fc.Close(); cerr != nil && !transport.IsDisconnect(cerr) {
				err = cerr
			}
		}
		if !c.looping.Load() {
			c.finish()
		}
	})
	return err
}

func (c *RemoteClient) finish() {
	c.finishOnce.Do(func() {
		c.seen.Range(func(key, _ any) bool {
			c.handler.Forget(key.(string))
			return true
		})
		close(c.done)
		pkg.LoggerFromContext(c.ctx).Info("已断开节点")
	})
}
