package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"nodelink/internal/pkg"

	"github.com/mitchellh/mapstructure"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

func init() {
	Register("kafka", NewKafkaSink)
}

// KafkaSinkConfig Kafka sink 的专属配置
type KafkaSinkConfig struct {
	Brokers         []string `mapstructure:"brokers"`
	Topic           string   `mapstructure:"topic"`
	Async           bool     `mapstructure:"async"`
	WriteTimeoutSec int      `mapstructure:"writeTimeoutSec"`
	RequiredAcks    int      `mapstructure:"requiredAcks"`
	BatchSize       int      `mapstructure:"batchSize"`
}

// messageWriter 是 kafka.Writer 中用到的部分
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink 以 node/key 为消息键写入 Kafka，同一设备的数据落在同一分区
type KafkaSink struct {
	writer    messageWriter
	config    KafkaSinkConfig
	logger    *zap.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	batchWait time.Duration
}

// NewKafkaSink 构造函数
func NewKafkaSink(ctx context.Context, cfg pkg.SinkConfig) (Template, error) {
	var kc KafkaSinkConfig
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &kc,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, fmt.Errorf("创建 kafka 配置解码器失败: %w", err)
	}
	if err := decoder.Decode(cfg.Para); err != nil {
		return nil, fmt.Errorf("解析 kafka 配置失败: %w", err)
	}
	if len(kc.Brokers) == 0 {
		return nil, fmt.Errorf("kafka 配置缺少 brokers")
	}
	if kc.Topic == "" {
		return nil, fmt.Errorf("kafka 配置缺少 topic")
	}
	if kc.WriteTimeoutSec == 0 {
		kc.WriteTimeoutSec = 10
	}
	if kc.BatchSize <= 0 {
		kc.BatchSize = 100
	}
	acks := kafka.RequireOne
	switch kc.RequiredAcks {
	case -1:
		acks = kafka.RequireAll
	case 0:
		acks = kafka.RequireNone
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(kc.Brokers...),
		Topic:        kc.Topic,
		Balancer:     &kafka.Hash{},
		WriteTimeout: time.Duration(kc.WriteTimeoutSec) * time.Second,
		RequiredAcks: acks,
		Async:        kc.Async,
		BatchSize:    kc.BatchSize,
	}
	return newKafkaSink(ctx, writer, kc), nil
}

func newKafkaSink(ctx context.Context, w messageWriter, kc KafkaSinkConfig) *KafkaSink {
	ctx, cancel := context.WithCancel(ctx)
	if kc.BatchSize <= 0 {
		kc.BatchSize = 100
	}
	return &KafkaSink{
		writer:    w,
		config:    kc,
		logger:    pkg.LoggerFromContext(ctx).With(zap.String("sink_type", "kafka"), zap.String("topic", kc.Topic)),
		ctx:       ctx,
		cancel:    cancel,
		batchWait: 200 * time.Millisecond,
	}
}

func (ks *KafkaSink) GetType() string {
	return "kafka"
}

// Start 攒批写入：批满或等待超时后发送
func (ks *KafkaSink) Start(ch chan pkg.Sample) {
	ks.logger.Info("===KafkaSink Started===")
	defer func() {
		if err := ks.writer.Close(); err != nil {
			ks.logger.Error("关闭 kafka writer 失败", zap.Error(err))
		}
		ks.logger.Info("===KafkaSink Finished===")
	}()

	batch := make([]kafka.Message, 0, ks.config.BatchSize)
	ticker := time.NewTicker(ks.batchWait)
	defer ticker.Stop()
	for {
		select {
		case <-ks.ctx.Done():
			// 用独立的 context 把残留的批次发完
			ks.flush(context.Background(), batch)
			return
		case s, ok := <-ch:
			if !ok {
				ks.flush(context.Background(), batch)
				return
			}
			msg, err := ks.message(s)
			if err != nil {
				ks.logger.Error("序列化采样点失败", zap.Error(err))
				continue
			}
			batch = append(batch, msg)
			if len(batch) >= ks.config.BatchSize {
				ks.flush(ks.ctx, batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				ks.flush(ks.ctx, batch)
				batch = batch[:0]
			}
		}
	}
}

func (ks *KafkaSink) message(s pkg.Sample) (kafka.Message, error) {
	body, err := json.Marshal(s)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:   []byte(s.NodeID + "/" + s.Key),
		Value: body,
		Time:  s.Ts,
	}, nil
}

func (ks *KafkaSink) flush(ctx context.Context, batch []kafka.Message) {
	if len(batch) == 0 {
		return
	}
	if err := ks.writer.WriteMessages(ctx, batch...); err != nil {
		if ks.ctx.Err() != nil && ctx == ks.ctx {
			ks.logger.Warn("关闭过程中写入被取消", zap.Error(err))
			return
		}
		pkg.GetMetrics().IncErrors("kafka")
		ks.logger.Error("写入 kafka 失败", zap.Error(err), zap.Int("batch_size", len(batch)))
		return
	}
	ks.logger.Debug("批次已写入 kafka", zap.Int("count", len(batch)))
}

func (ks *KafkaSink) Stop() {
	ks.cancel()
}
