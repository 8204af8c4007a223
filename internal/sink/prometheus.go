package sink

import (
	"context"
	"errors"
	"fmt"

	"nodelink/internal/pkg"

	"github.com/mitchellh/mapstructure"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

func init() {
	Register("prometheus", NewPrometheusSink)
}

// DefaultGaugeName 传感器最新值的指标名
const DefaultGaugeName = "nodelink_sensor_value"

// PrometheusInfo Prometheus 的专属配置
type PrometheusInfo struct {
	Name string `mapstructure:"name"`
}

// PrometheusSink 把最新读数写到 gauge 上，由面板 API 的 /metrics 暴露，不单独起 HTTP 服务
type PrometheusSink struct {
	gauge  *prometheus.GaugeVec
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger
}

// NewPrometheusSink 在全局指标的 Registry 上注册 gauge
func NewPrometheusSink(ctx context.Context, cfg pkg.SinkConfig) (Template, error) {
	return newPrometheusSink(ctx, cfg, pkg.GetMetrics().Registry())
}

func newPrometheusSink(ctx context.Context, cfg pkg.SinkConfig, reg prometheus.Registerer) (*PrometheusSink, error) {
	var info PrometheusInfo
	if err := mapstructure.Decode(cfg.Para, &info); err != nil {
		return nil, fmt.Errorf("解析 prometheus 配置失败: %w", err)
	}
	if info.Name == "" {
		info.Name = DefaultGaugeName
	}
	gauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: info.Name,
		Help: "Latest sensor reading merged by the panel.",
	}, []string{"node", "key", "type"})
	if err := reg.Register(gauge); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return nil, fmt.Errorf("注册 Prometheus 指标失败: %w", err)
		}
		existing, ok := are.ExistingCollector.(*prometheus.GaugeVec)
		if !ok {
			return nil, fmt.Errorf("指标 %s 已被其他类型占用", info.Name)
		}
		gauge = existing
	}
	ctx, cancel := context.WithCancel(ctx)
	return &PrometheusSink{
		gauge:  gauge,
		ctx:    ctx,
		cancel: cancel,
		logger: pkg.LoggerFromContext(ctx).With(zap.String("sink_type", "prometheus")),
	}, nil
}

func (p *PrometheusSink) GetType() string {
	return "prometheus"
}

func (p *PrometheusSink) Start(ch chan pkg.Sample) {
	p.logger.Info("===PrometheusSink started===")
	for {
		select {
		case <-p.ctx.Done():
			p.logger.Info("===PrometheusSink stopped===")
			return
		case s, ok := <-ch:
			if !ok {
				return
			}
			p.Publish(s)
		}
	}
}

// Publish 更新 gauge
func (p *PrometheusSink) Publish(s pkg.Sample) {
	p.gauge.WithLabelValues(s.NodeID, s.Key, s.Type).Set(s.Value)
}

func (p *PrometheusSink) Stop() {
	p.cancel()
}
