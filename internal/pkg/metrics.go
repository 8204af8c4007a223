package pkg

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

// Metrics 存储协议层的指标数据，全部注册在独立的 Registry 上
type Metrics struct {
	StartTime time.Time
	registry  *prometheus.Registry

	received *prometheus.CounterVec // 按消息类型统计的接收数
	sent     *prometheus.CounterVec // 按消息类型统计的发送数
	errors   *prometheus.CounterVec // 按错误种类统计
	dropped  *prometheus.CounterVec // 按位置统计的丢弃数
	sessions *prometheus.GaugeVec   // 活跃的会话数（node / panel 两侧）
}

// 全局指标实例
var (
	metrics     *Metrics
	metricsOnce sync.Once
)

// GetMetrics 返回指标实例
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		metrics = NewMetrics(prometheus.NewRegistry())
		metrics.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	})
	return metrics
}

// NewMetrics 在给定的 Registry 上创建一组指标，测试中可以使用独立的 Registry
func NewMetrics(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		StartTime: time.Now(),
		registry:  reg,
		received: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nodelink",
			Name:      "messages_received_total",
			Help:      "Messages received, by message type.",
		}, []string{"type"}),
		sent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nodelink",
			Name:      "messages_sent_total",
			Help:      "Messages sent, by message type.",
		}, []string{"type"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nodelink",
			Name:      "errors_total",
			Help:      "Errors, by kind.",
		}, []string{"kind"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nodelink",
			Name:      "dropped_total",
			Help:      "Pushes or samples dropped because a queue was full.",
		}, []string{"where"}),
		sessions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "nodelink",
			Name:      "sessions_active",
			Help:      "Live connections, by side.",
		}, []string{"side"}),
	}
	reg.MustRegister(m.received, m.sent, m.errors, m.dropped, m.sessions)
	return m
}

// Registry 返回指标所在的 Registry，供 /metrics 与 prometheus sink 使用
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// IncMsgReceived 增加特定类型的接收消息计数
func (m *Metrics) IncMsgReceived(msgType string) {
	m.received.WithLabelValues(msgType).Inc()
}

// IncMsgSent 增加特定类型的发送消息计数
func (m *Metrics) IncMsgSent(msgType string) {
	m.sent.WithLabelValues(msgType).Inc()
}

// IncErrors 增加特定种类的错误计数
func (m *Metrics) IncErrors(kind string) {
	m.errors.WithLabelValues(kind).Inc()
}

// IncDropped 增加丢弃计数
func (m *Metrics) IncDropped(where string) {
	m.dropped.WithLabelValues(where).Inc()
}

// SessionOpened / SessionClosed 维护活跃会话数
func (m *Metrics) SessionOpened(side string) {
	m.sessions.WithLabelValues(side).Inc()
}

func (m *Metrics) SessionClosed(side string) {
	m.sessions.WithLabelValues(side).Dec()
}

// LogMetrics 将运行时间写入日志
func (m *Metrics) LogMetrics(logger *zap.Logger) {
	logger.Info("指标统计", zap.Duration("uptime", time.Since(m.StartTime)))
}
