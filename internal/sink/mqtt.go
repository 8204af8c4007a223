package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"nodelink/internal/pkg"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"
)

func init() {
	Register("mqtt", NewMqttSink)
}

// MQTTClientInterface 定义了我们需要的 MQTT 客户端方法
type MQTTClientInterface interface {
	Connect() mqtt.Token
	Disconnect(quiesce uint)
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MqttInfo MQTT 的专属配置
type MqttInfo struct {
	Broker         string `mapstructure:"broker"`
	Port           int    `mapstructure:"port"`
	Username       string `mapstructure:"username"`
	Password       string `mapstructure:"password"`
	ClientID       string `mapstructure:"clientID"`
	Topic          string `mapstructure:"topic"` // 基础 topic
	QoS            byte   `mapstructure:"qos"`
	Retained       bool   `mapstructure:"retained"`
	KeepAliveSec   uint   `mapstructure:"keepAliveSec"`
	PingTimeoutSec uint   `mapstructure:"pingTimeoutSec"`
}

// MqttSink 把采样点以 JSON 发布到 <topic>/<node>/<type>/<id>
type MqttSink struct {
	client MQTTClientInterface
	info   MqttInfo
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger
}

// NewMqttSink 构造函数，连接失败时返回错误
func NewMqttSink(ctx context.Context, cfg pkg.SinkConfig) (Template, error) {
	log := pkg.LoggerFromContext(ctx)
	var info MqttInfo
	if err := mapstructure.Decode(cfg.Para, &info); err != nil {
		return nil, fmt.Errorf("解析 mqtt 配置失败: %w", err)
	}
	if info.Broker == "" {
		return nil, fmt.Errorf("mqtt 配置缺少 broker")
	}
	if info.Topic == "" {
		return nil, fmt.Errorf("mqtt 配置缺少 topic")
	}
	if info.Port == 0 {
		info.Port = 1883
	}
	if info.ClientID == "" {
		info.ClientID = fmt.Sprintf("nodelink-panel-%d", time.Now().UnixNano())
	}
	if info.KeepAliveSec == 0 {
		info.KeepAliveSec = 60
	}
	if info.PingTimeoutSec == 0 {
		info.PingTimeoutSec = 2
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", info.Broker, info.Port))
	opts.SetClientID(info.ClientID)
	opts.SetUsername(info.Username)
	opts.SetPassword(info.Password)
	opts.SetKeepAlive(time.Duration(info.KeepAliveSec) * time.Second)
	opts.SetPingTimeout(time.Duration(info.PingTimeoutSec) * time.Second)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(10 * time.Second)
	opts.OnConnect = func(mqtt.Client) {
		log.Info("MQTT connected", zap.String("broker", info.Broker))
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Error("MQTT connection lost", zap.Error(err), zap.String("broker", info.Broker))
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt 连接 %s 失败: %w", info.Broker, token.Error())
	}
	return newMqttSink(ctx, client, info), nil
}

func newMqttSink(ctx context.Context, client MQTTClientInterface, info MqttInfo) *MqttSink {
	ctx, cancel := context.WithCancel(ctx)
	return &MqttSink{
		client: client,
		info:   info,
		ctx:    ctx,
		cancel: cancel,
		logger: pkg.LoggerFromContext(ctx).With(zap.String("sink_type", "mqtt"), zap.String("base_topic", info.Topic)),
	}
}

func (b *MqttSink) GetType() string {
	return "mqtt"
}

// Topic MQTT 的 topic 不允许出现通配符 #，设备键拆成 type/id 两级
func (b *MqttSink) Topic(s pkg.Sample) string {
	parts := []string{strings.TrimSuffix(b.info.Topic, "/"), s.NodeID, s.Type}
	if id := s.DeviceID(); id != "" {
		parts = append(parts, id)
	}
	return strings.Join(parts, "/")
}

func (b *MqttSink) Start(ch chan pkg.Sample) {
	b.logger.Info("===MqttSink Started===")
	defer func() {
		if b.client.IsConnected() {
			b.client.Disconnect(250)
		}
		b.logger.Info("===MqttSink Finished===")
	}()
	for {
		select {
		case <-b.ctx.Done():
			return
		case s, ok := <-ch:
			if !ok {
				return
			}
			body, err := json.Marshal(s)
			if err != nil {
				b.logger.Error("序列化采样点失败", zap.Error(err))
				continue
			}
			topic := b.Topic(s)
			// 不等待 token，断线期间由 paho 的自动重连兜底
			b.client.Publish(topic, b.info.QoS, b.info.Retained, body)
			b.logger.Debug("已发布", zap.String("topic", topic), zap.Int("payload_size", len(body)))
		}
	}
}

func (b *MqttSink) Stop() {
	b.cancel()
}
