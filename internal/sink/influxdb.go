package sink

import (
	"context"
	"fmt"

	"nodelink/internal/pkg"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"
)

func init() {
	Register("influxdb", NewInfluxDbSink)
}

// InfluxDbInfo InfluxDB 的专属配置
type InfluxDbInfo struct {
	URL       string `mapstructure:"url"`
	Org       string `mapstructure:"org"`
	Token     string `mapstructure:"token"`
	Bucket    string `mapstructure:"bucket"`
	BatchSize uint   `mapstructure:"batch_size"`
}

// pointWriter 是 api.WriteAPI 中用到的部分
type pointWriter interface {
	WritePoint(point *write.Point)
	Flush()
}

// InfluxDbSink 把采样点写入 InfluxDB：measurement 为设备类型，tag 为 node/key/id
type InfluxDbSink struct {
	client influxdb2.Client
	writer pointWriter
	info   InfluxDbInfo
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger
}

// NewInfluxDbSink 构造函数
func NewInfluxDbSink(ctx context.Context, cfg pkg.SinkConfig) (Template, error) {
	var info InfluxDbInfo
	if err := mapstructure.Decode(cfg.Para, &info); err != nil {
		return nil, fmt.Errorf("解析 influxdb 配置失败: %w", err)
	}
	if info.URL == "" {
		return nil, fmt.Errorf("influxdb 配置缺少 url")
	}
	// 批大小为 0 时客户端会出现除零 panic
	if info.BatchSize == 0 {
		info.BatchSize = 100
	}
	log := pkg.LoggerFromContext(ctx)
	log.Debug("InfluxDB配置", zap.String("url", info.URL), zap.String("bucket", info.Bucket))

	client := influxdb2.NewClientWithOptions(info.URL, info.Token, influxdb2.DefaultOptions().SetBatchSize(info.BatchSize))
	writeAPI := client.WriteAPI(info.Org, info.Bucket)
	go func() {
		for err := range writeAPI.Errors() {
			pkg.GetMetrics().IncErrors("influxdb")
			log.Error("influxdb 写入失败", zap.Error(err))
		}
	}()
	s := newInfluxDbSink(ctx, writeAPI, info)
	s.client = client
	return s, nil
}

func newInfluxDbSink(ctx context.Context, w pointWriter, info InfluxDbInfo) *InfluxDbSink {
	ctx, cancel := context.WithCancel(ctx)
	return &InfluxDbSink{
		writer: w,
		info:   info,
		ctx:    ctx,
		cancel: cancel,
		logger: pkg.LoggerFromContext(ctx).With(zap.String("sink_type", "influxdb")),
	}
}

func (b *InfluxDbSink) GetType() string {
	return "influxdb"
}

func (b *InfluxDbSink) Start(ch chan pkg.Sample) {
	b.logger.Debug("===InfluxDbSink started===")
	defer b.close()
	for {
		select {
		case <-b.ctx.Done():
			b.logger.Debug("===InfluxDbSink stopped===")
			return
		case s, ok := <-ch:
			if !ok {
				return
			}
			b.writer.WritePoint(b.point(s))
		}
	}
}

func (b *InfluxDbSink) point(s pkg.Sample) *write.Point {
	return influxdb2.NewPoint(
		s.Type,
		map[string]string{
			"node": s.NodeID,
			"key":  s.Key,
			"id":   s.DeviceID(),
		},
		map[string]interface{}{"value": s.Value},
		s.Ts,
	)
}

func (b *InfluxDbSink) close() {
	b.writer.Flush()
	if b.client != nil {
		b.client.Close()
	}
}

func (b *InfluxDbSink) Stop() {
	b.cancel()
}
