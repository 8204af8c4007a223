package sink

import (
	"context"
	"strings"
	"sync"
	"time"

	"nodelink/internal/pkg"

	"github.com/expr-lang/expr/vm"
	"go.uber.org/zap"
)

// DefaultBufferSize 每个 sink 通道的默认容量
const DefaultBufferSize = 1024

type output struct {
	sink   Template
	filter *vm.Program
	ch     chan pkg.Sample
}

// Recorder 实现面板的 HistorySink，把采样点扇出到所有 sink。
// 记录永远不会阻塞调用方，某个 sink 的通道满时该点对这个 sink 丢弃。
type Recorder struct {
	ctx     context.Context
	metrics *pkg.Metrics
	buffer  int

	mu      sync.RWMutex
	outputs []*output
	started bool
	wg      sync.WaitGroup
}

type RecorderOption func(*Recorder)

func WithBufferSize(n int) RecorderOption {
	return func(r *Recorder) {
		if n > 0 {
			r.buffer = n
		}
	}
}

func WithRecorderMetrics(m *pkg.Metrics) RecorderOption {
	return func(r *Recorder) { r.metrics = m }
}

func NewRecorder(ctx context.Context, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		ctx:     pkg.WithLoggerAndModule(ctx, pkg.LoggerFromContext(ctx), "sink"),
		metrics: pkg.GetMetrics(),
		buffer:  DefaultBufferSize,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// FromConfig 按配置创建全部启用的 sink
func FromConfig(ctx context.Context, cfgs []pkg.SinkConfig, opts ...RecorderOption) (*Recorder, error) {
	r := NewRecorder(ctx, opts...)
	for _, cfg := range cfgs {
		if !cfg.Enable {
			continue
		}
		t, err := New(r.ctx, cfg)
		if err != nil {
			r.Close()
			return nil, err
		}
		if err := r.Attach(t, cfg.Filter); err != nil {
			t.Stop()
			r.Close()
			return nil, err
		}
	}
	return r, nil
}

// Attach 挂载一个 sink，Start 之后挂载的 sink 会立即启动
func (r *Recorder) Attach(t Template, filter string) error {
	program, err := CompileFilter(filter)
	if err != nil {
		return err
	}
	o := &output{sink: t, filter: program, ch: make(chan pkg.Sample, r.buffer)}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outputs = append(r.outputs, o)
	if r.started {
		r.launch(o)
	}
	return nil
}

// Start 启动全部 sink
func (r *Recorder) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}
	r.started = true
	for _, o := range r.outputs {
		r.launch(o)
	}
}

func (r *Recorder) launch(o *output) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		o.sink.Start(o.ch)
	}()
	pkg.LoggerFromContext(r.ctx).Info("sink 已启动", zap.String("type", o.sink.GetType()))
}

// Types 返回已挂载的 sink 类型
func (r *Recorder) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.outputs))
	for _, o := range r.outputs {
		types = append(types, o.sink.GetType())
	}
	return types
}

// RecordSample 实现 panel.HistorySink
func (r *Recorder) RecordSample(nodeID, key string, value float64, ts time.Time) {
	typ, _, _ := strings.Cut(key, "#")
	s := pkg.Sample{NodeID: nodeID, Key: key, Type: typ, Value: value, Ts: ts}
	log := pkg.LoggerFromContext(r.ctx)

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, o := range r.outputs {
		ok, err := Match(o.filter, s)
		if err != nil {
			r.metrics.IncErrors("sink_filter")
			log.Warn("过滤表达式执行失败", zap.String("type", o.sink.GetType()), zap.Error(err))
			continue
		}
		if !ok {
			continue
		}
		select {
		case o.ch <- s:
		default:
			r.metrics.IncDropped("sink_" + o.sink.GetType())
			log.Warn("sink 通道已满，丢弃采样点", zap.String("type", o.sink.GetType()), zap.String("key", key))
		}
	}
}

// Close 停止全部 sink 并等待退出
func (r *Recorder) Close() {
	r.mu.Lock()
	outputs := r.outputs
	r.outputs = nil
	r.mu.Unlock()
	for _, o := range outputs {
		o.sink.Stop()
	}
	r.wg.Wait()
}
