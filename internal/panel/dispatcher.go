package panel

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"nodelink/internal/pkg"
	"nodelink/internal/protocol"

	"go.uber.org/zap"
)

// HistorySink 接收每一条合并进缓存的传感器读数，调用方不关心结果，失败由实现方记录
type HistorySink interface {
	RecordSample(nodeID, key string, value float64, ts time.Time)
}

// MessageHandler 处理 RemoteClient 收到的消息
type MessageHandler interface {
	Dispatch(msg protocol.Message)
	// Forget 在连接断开后丢弃该节点的缓存
	Forget(nodeID string)
}

// Dispatcher 按消息类型把数据合并进各节点的 NodeData
type Dispatcher struct {
	ctx     context.Context
	window  time.Duration
	sink    HistorySink
	metrics *pkg.Metrics
	opts    []NodeDataOption

	caches sync.Map // nodeID -> *NodeData
}

type DispatcherOption func(*Dispatcher)

// WithHistorySink 设置历史输出
func WithHistorySink(s HistorySink) DispatcherOption {
	return func(d *Dispatcher) { d.sink = s }
}

func WithDispatcherMetrics(m *pkg.Metrics) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithNodeDataOptions 新建 NodeData 时附加的选项
func WithNodeDataOptions(opts ...NodeDataOption) DispatcherOption {
	return func(d *Dispatcher) { d.opts = append(d.opts, opts...) }
}

func NewDispatcher(ctx context.Context, window time.Duration, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		ctx:     pkg.WithLoggerAndModule(ctx, pkg.LoggerFromContext(ctx), "dispatcher"),
		window:  window,
		metrics: pkg.GetMetrics(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Node 返回节点缓存
func (d *Dispatcher) Node(nodeID string) (*NodeData, bool) {
	v, ok := d.caches.Load(nodeID)
	if !ok {
		return nil, false
	}
	return v.(*NodeData), true
}

// Nodes 返回所有已缓存的节点 ID（有序）
func (d *Dispatcher) Nodes() []string {
	var ids []string
	d.caches.Range(func(key, _ any) bool {
		ids = append(ids, key.(string))
		return true
	})
	sort.Strings(ids)
	return ids
}

func (d *Dispatcher) nodeData(nodeID string) *NodeData {
	if v, ok := d.caches.Load(nodeID); ok {
		return v.(*NodeData)
	}
	opts := append([]NodeDataOption{WithWindow(d.window)}, d.opts...)
	v, _ := d.caches.LoadOrStore(nodeID, NewNodeData(nodeID, opts...))
	return v.(*NodeData)
}

// Forget 实现 MessageHandler
func (d *Dispatcher) Forget(nodeID string) {
	d.caches.Delete(nodeID)
}

// DispatchText 解码并分发一条文本消息，解码失败只记录日志
func (d *Dispatcher) DispatchText(text string) error {
	msg, err := protocol.Decode(text)
	if err != nil {
		d.metrics.IncErrors("protocol")
		pkg.LoggerFromContext(d.ctx).Warn("无法解析的消息", zap.String("text", text), zap.Error(err))
		return err
	}
	d.Dispatch(msg)
	return nil
}

// Dispatch 实现 MessageHandler
func (d *Dispatcher) Dispatch(msg protocol.Message) {
	log := pkg.LoggerFromContext(d.ctx)
	d.metrics.IncMsgReceived(msg.Type().String())
	switch msg.Type() {
	case protocol.Data:
		cache := d.nodeData(msg.NodeID())
		if strings.TrimSpace(msg.Payload()) == "" {
			cache.Touch()
			return
		}
		d.merge(cache, msg.Payload())
	case protocol.Success, protocol.Welcome:
		log.Info("节点应答", zap.Stringer("msg", msg))
	case protocol.Failure, protocol.Error:
		log.Warn("节点返回错误", zap.Stringer("msg", msg))
	default:
		log.Debug("忽略消息", zap.Stringer("msg", msg))
	}
}

func (d *Dispatcher) merge(cache *NodeData, payload string) {
	merged, errs := cache.MergePayload(payload)
	for _, err := range errs {
		d.metrics.IncErrors("payload")
		pkg.LoggerFromContext(d.ctx).Warn("丢弃数据项", zap.String("node", cache.NodeID()), zap.Error(err))
	}
	if d.sink == nil {
		return
	}
	for _, m := range merged {
		d.sink.RecordSample(cache.NodeID(), m.Key, m.Value, m.Ts)
	}
}
