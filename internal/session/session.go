package session

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"nodelink/internal/device"
	"nodelink/internal/node"
	"nodelink/internal/pkg"
	"nodelink/internal/protocol"
	"nodelink/internal/transport"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// DefaultActuatorHeartbeat 执行器心跳的固定周期
	DefaultActuatorHeartbeat = 10 * time.Second
	// DefaultOutboxSize 推送发件箱容量
	DefaultOutboxSize = 64
)

// InvalidMessageReply 收到无法解析的帧时回复的 ERROR 负载
const InvalidMessageReply = "Invalid message"

// State 会话状态
type State int32

const (
	Connecting State = iota
	Active
	Closed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "CONNECTING"
	case Active:
		return "ACTIVE"
	default:
		return "CLOSED"
	}
}

// Session 是节点侧的单连接会话
type Session struct {
	id      string
	ctx     context.Context
	node    *node.SensorNode
	conn    *transport.FrameConn
	remote  string
	metrics *pkg.Metrics

	actuatorHeartbeat time.Duration
	onClose           func(*Session)

	state    atomic.Int32
	outbox   chan protocol.Message
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

type Option func(*Session)

// WithActuatorHeartbeat 修改执行器心跳周期
func WithActuatorHeartbeat(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.actuatorHeartbeat = d
		}
	}
}

// WithOutboxSize 修改推送发件箱容量
func WithOutboxSize(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.outbox = make(chan protocol.Message, n)
		}
	}
}

func WithMetrics(m *pkg.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// WithRemote 设置对端地址，仅用于日志
func WithRemote(addr string) Option {
	return func(s *Session) { s.remote = addr }
}

// WithOnClose 会话结束后回调，每个会话只回调一次
func WithOnClose(fn func(*Session)) Option {
	return func(s *Session) { s.onClose = fn }
}

// New 创建会话，此时处于 CONNECTING 状态
func New(ctx context.Context, n *node.SensorNode, conn *transport.FrameConn, opts ...Option) *Session {
	s := &Session{
		id:                uuid.NewString(),
		node:              n,
		conn:              conn,
		metrics:           pkg.GetMetrics(),
		actuatorHeartbeat: DefaultActuatorHeartbeat,
		outbox:            make(chan protocol.Message, DefaultOutboxSize),
		done:              make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ctx = pkg.WithLogger(ctx, pkg.LoggerFromContext(ctx).With(
		zap.String("module", "session"),
		zap.String("session", s.id),
		zap.String("node", n.ID()),
		zap.String("remote", s.remote),
	))
	return s
}

// ID 是会话的随机标识，用于日志关联
func (s *Session) ID() string { return s.id }

func (s *Session) State() State { return State(s.state.Load()) }

// Done 在会话结束后关闭
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) Remote() string { return s.remote }

func (s *Session) log() *zap.Logger { return pkg.LoggerFromContext(s.ctx) }

// Start 进入 ACTIVE 状态并在后台运行命令循环
func (s *Session) Start() {
	if !s.state.CompareAndSwap(int32(Connecting), int32(Active)) {
		return
	}
	s.metrics.SessionOpened("node")
	s.node.AddListener(s)

	s.wg.Add(3)
	go s.writeLoop()
	go s.heartbeat(s.node.ReportInterval())
	go s.heartbeat(s.actuatorHeartbeat)
	go s.commandLoop()
	s.log().Info("会话已建立")
}

// Stop 结束会话，可重复调用
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		prev := State(s.state.Swap(int32(Closed)))
		s.node.RemoveListener(s)
		close(s.done)
		if err := s.conn.Close(); err != nil && !transport.IsDisconnect(err) {
			s.log().Warn("关闭连接失败", zap.Error(err))
		}
		if prev == Active {
			s.metrics.SessionClosed("node")
		}
		s.log().Info("会话已关闭")
		if s.onClose != nil {
			s.onClose(s)
		}
	})
}

// Wait 等待后台协程全部退出
func (s *Session) Wait() {
	<-s.done
	s.wg.Wait()
}

func (s *Session) running() bool {
	return s.State() == Active
}

// commandLoop 阻塞接收帧，只有连接结束才会退出
func (s *Session) commandLoop() {
	defer s.Stop()
	for s.running() {
		text, err := s.conn.RecvText()
		if err != nil {
			if transport.IsDisconnect(err) || !s.running() {
				s.log().Info("对端断开连接")
				return
			}
			s.metrics.IncErrors("transport")
			s.log().Error("接收帧失败", zap.Error(err))
			return
		}
		msg, err := protocol.Decode(text)
		if err != nil {
			s.metrics.IncErrors("protocol")
			s.log().Warn("无法解析的消息", zap.String("text", text), zap.Error(err))
			s.reply(protocol.Error, InvalidMessageReply)
			continue
		}
		s.metrics.IncMsgReceived(msg.Type().String())
		s.handle(msg)
	}
}

func (s *Session) handle(msg protocol.Message) {
	switch msg.Type() {
	case protocol.Command:
		s.handleCommand(msg.Payload())
	case protocol.Hello:
		s.log().Info("收到握手", zap.String("peer", msg.NodeID()))
		s.reply(protocol.Welcome, "")
	case protocol.KeepAlive:
	default:
		s.log().Debug("忽略消息", zap.Stringer("msg", msg))
	}
}

func (s *Session) handleCommand(payload string) {
	target, action, err := protocol.ParseCommand(payload)
	if err != nil {
		s.metrics.IncErrors("command")
		s.reply(protocol.Error, protocol.InvalidCommandReply)
		return
	}

	if action == protocol.ActionRefresh {
		kind, ok := protocol.NormalizeRefreshTarget(target)
		if !ok {
			s.metrics.IncErrors("command")
			s.reply(protocol.Error, "Unknown refresh target: "+target)
			return
		}
		if kind == protocol.RefreshSensors || kind == protocol.RefreshAll {
			s.reply(protocol.Data, s.node.SensorSnapshot())
		}
		if kind == protocol.RefreshActuators || kind == protocol.RefreshAll {
			s.reply(protocol.Data, s.node.ActuatorSnapshot())
		}
		s.reply(protocol.Success, protocol.CommandPayload(protocol.ActionRefresh, target))
		return
	}

	a, ok := s.node.ResolveActuator(target)
	if !ok {
		s.metrics.IncErrors("command")
		s.reply(protocol.Error, "Unknown actuator: "+target)
		return
	}
	a.SetState(action == protocol.ActionOn)
	s.log().Info("执行器状态已变更", zap.String("actuator", a.Key().String()), zap.String("action", action))
	s.reply(protocol.Success, protocol.CommandPayload(target, action))
}

// reply 直接在调用者的 goroutine 上发送
func (s *Session) reply(t protocol.MessageType, payload string) {
	msg, err := protocol.NewMessage(t, s.node.ID(), payload)
	if err != nil {
		s.log().Error("构造消息失败", zap.Error(err))
		return
	}
	s.send(msg)
}

func (s *Session) send(msg protocol.Message) {
	if err := s.conn.SendText(protocol.Encode(msg)); err != nil {
		if !transport.IsDisconnect(err) {
			s.metrics.IncErrors("transport")
			s.log().Warn("发送失败", zap.String("type", msg.Type().String()), zap.Error(err))
		}
		return
	}
	s.metrics.IncMsgSent(msg.Type().String())
}

// push 非阻塞地把推送放入发件箱
func (s *Session) push(payload string) {
	if !s.running() {
		return
	}
	msg, err := protocol.NewMessage(protocol.Data, s.node.ID(), payload)
	if err != nil {
		return
	}
	select {
	case s.outbox <- msg:
	default:
		s.metrics.IncDropped("session_outbox")
		s.log().Warn("发件箱已满，丢弃推送", zap.Int("len", len(payload)))
	}
}

func (s *Session) writeLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case msg := <-s.outbox:
			s.send(msg)
		}
	}
}

// heartbeat 周期发送空 DATA，仅表示存活
func (s *Session) heartbeat(interval time.Duration) {
	defer s.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if !s.running() {
				return
			}
			s.reply(protocol.Data, "")
		}
	}
}

// OnSensorUpdated 实现 node.Listener，推送自上次以来的增量
func (s *Session) OnSensorUpdated(n *node.SensorNode, _ device.Sensor) {
	if !s.running() {
		return
	}
	if delta := n.DrainPendingSensorUpdates(); strings.TrimSpace(delta) != "" {
		s.push(delta)
	}
}

// OnActuatorUpdated 实现 node.Listener，推送全量执行器状态
func (s *Session) OnActuatorUpdated(n *node.SensorNode, _ device.Actuator) {
	if !s.running() {
		return
	}
	s.push(n.ActuatorSnapshot())
}
