package node

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"nodelink/internal/device"
	"nodelink/internal/pkg"
)

var (
	ErrBlankNodeID    = errors.New("节点 ID 不能为空")
	ErrDuplicateKey   = errors.New("设备键已存在")
	ErrUnsupportedDev = errors.New("设备既不是传感器也不是执行器")
)

// Listener 接收节点上的设备更新，回调运行在变更设备的 goroutine 上，不得阻塞
type Listener interface {
	OnSensorUpdated(n *SensorNode, s device.Sensor)
	OnActuatorUpdated(n *SensorNode, a device.Actuator)
}

// SensorNode 聚合一个节点上的传感器和执行器
type SensorNode struct {
	id             string
	reportInterval time.Duration
	now            func() time.Time
	ids            *device.IDRegistry

	sensors   Registry[device.Sensor]
	actuators Registry[device.Actuator]
	listeners Registry[Listener]
	tracker   *Tracker
}

type Option func(*SensorNode)

// WithReportInterval 设置传感器心跳周期
func WithReportInterval(d time.Duration) Option {
	return func(n *SensorNode) {
		if d > 0 {
			n.reportInterval = d
		}
	}
}

// WithIDRegistry 使用共享的 ID 注册表保证跨节点的设备 ID 唯一
func WithIDRegistry(r *device.IDRegistry) Option {
	return func(n *SensorNode) { n.ids = r }
}

// WithClock 替换时间源，测试用
func WithClock(now func() time.Time) Option {
	return func(n *SensorNode) { n.now = now }
}

func New(id string, opts ...Option) (*SensorNode, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrBlankNodeID
	}
	n := &SensorNode{
		id:             id,
		reportInterval: pkg.DefaultReportInterval,
		now:            time.Now,
		tracker:        NewTracker(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// Build 按配置创建节点及其全部设备
func Build(ctx context.Context, cfg pkg.NodeConfig, ids *device.IDRegistry) (*SensorNode, error) {
	n, err := New(cfg.ID, WithReportInterval(cfg.ReportInterval), WithIDRegistry(ids))
	if err != nil {
		return nil, err
	}
	for _, dc := range cfg.Devices {
		d, err := device.New(ctx, dc)
		if err != nil {
			return nil, err
		}
		if err := n.Add(d); err != nil {
			return nil, err
		}
	}
	return n, nil
}

func (n *SensorNode) ID() string                    { return n.id }
func (n *SensorNode) ReportInterval() time.Duration { return n.reportInterval }

// Add 按设备种类添加
func (n *SensorNode) Add(d device.Device) error {
	switch v := d.(type) {
	case device.Sensor:
		return n.AddSensor(v)
	case device.Actuator:
		return n.AddActuator(v)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedDev, d.Key())
	}
}

// AddSensor 注册传感器，节点成为它唯一的观察者
func (n *SensorNode) AddSensor(s device.Sensor) error {
	if err := n.reserve(s); err != nil {
		return err
	}
	key := s.Key()
	if !n.sensors.AddIfAbsent(s, func(v device.Sensor) bool { return v.Key() == key }) {
		n.release(s)
		return fmt.Errorf("%w: %s", ErrDuplicateKey, key)
	}
	s.SetObserver(n)
	return nil
}

// AddActuator 注册执行器，节点成为它唯一的观察者
func (n *SensorNode) AddActuator(a device.Actuator) error {
	if err := n.reserve(a); err != nil {
		return err
	}
	key := a.Key()
	if !n.actuators.AddIfAbsent(a, func(v device.Actuator) bool { return v.Key() == key }) {
		n.release(a)
		return fmt.Errorf("%w: %s", ErrDuplicateKey, key)
	}
	a.SetObserver(n)
	return nil
}

// RemoveSensor 按设备 ID 删除传感器并清除其跟踪状态
func (n *SensorNode) RemoveSensor(id string) (device.Sensor, bool) {
	id = strings.ToLower(strings.TrimSpace(id))
	s, ok := n.sensors.Remove(func(v device.Sensor) bool { return v.ID() == id })
	if ok {
		n.detach(s)
	}
	return s, ok
}

// RemoveActuator 按设备 ID 删除执行器并清除其跟踪状态
func (n *SensorNode) RemoveActuator(id string) (device.Actuator, bool) {
	id = strings.ToLower(strings.TrimSpace(id))
	a, ok := n.actuators.Remove(func(v device.Actuator) bool { return v.ID() == id })
	if ok {
		n.detach(a)
	}
	return a, ok
}

func (n *SensorNode) detach(d device.Device) {
	d.SetObserver(nil)
	n.tracker.Forget(d.ID(), d.Key().String())
	n.release(d)
}

func (n *SensorNode) reserve(d device.Device) error {
	if n.ids == nil {
		return nil
	}
	return n.ids.Reserve(d.ID())
}

func (n *SensorNode) release(d device.Device) {
	if n.ids != nil {
		n.ids.Release(d.ID())
	}
}

func (n *SensorNode) Sensors() []device.Sensor     { return n.sensors.Snapshot() }
func (n *SensorNode) Actuators() []device.Actuator { return n.actuators.Snapshot() }

func (n *SensorNode) AddListener(l Listener) {
	n.listeners.Add(l)
}

func (n *SensorNode) RemoveListener(l Listener) {
	n.listeners.Remove(func(v Listener) bool { return v == l })
}

// OnDeviceUpdated 实现 device.Observer
func (n *SensorNode) OnDeviceUpdated(d device.Device) {
	n.tracker.Touch(d.ID(), n.now())
	switch v := d.(type) {
	case device.Sensor:
		n.tracker.MarkPending(v.Key().String())
		for _, l := range n.listeners.Snapshot() {
			l.OnSensorUpdated(n, v)
		}
	case device.Actuator:
		for _, l := range n.listeners.Snapshot() {
			l.OnActuatorUpdated(n, v)
		}
	}
}

// LastUpdate 返回设备的最后更新时间
func (n *SensorNode) LastUpdate(deviceID string) (time.Time, bool) {
	return n.tracker.LastUpdate(deviceID)
}

// DrainPendingSensorUpdates 取出自上次调用以来变化过的传感器读数，
// 格式为逗号分隔的 type#id:value，没有变化时返回空串
func (n *SensorNode) DrainPendingSensorUpdates() string {
	pending := n.tracker.Drain()
	if len(pending) == 0 {
		return ""
	}
	readings := make([]string, 0, len(pending))
	for _, s := range n.sensors.Snapshot() {
		if _, ok := pending[s.Key().String()]; ok {
			readings = append(readings, device.Reading{Key: s.Key(), Value: s.CurrentValue()}.String())
		}
	}
	return strings.Join(readings, ",")
}

// SensorSnapshot 先让所有开启的执行器作用于传感器，再返回全部传感器的当前读数
func (n *SensorNode) SensorSnapshot() string {
	sensors := n.sensors.Snapshot()
	for _, a := range n.actuators.Snapshot() {
		if a.State() {
			a.ApplyEffect(sensors)
		}
	}
	readings := make([]string, 0, len(sensors))
	for _, s := range sensors {
		readings = append(readings, device.Reading{Key: s.Key(), Value: s.CurrentValue()}.String())
	}
	return strings.Join(readings, ",")
}

// ActuatorSnapshot 返回全部执行器的当前状态，格式为 type#id:0|1
func (n *SensorNode) ActuatorSnapshot() string {
	actuators := n.actuators.Snapshot()
	states := make([]string, 0, len(actuators))
	for _, a := range actuators {
		states = append(states, a.Key().String()+":"+device.FormatState(a.State()))
	}
	return strings.Join(states, ",")
}

// ResolveActuator 先按设备 ID 精确匹配，再按类型名匹配，均不区分大小写
func (n *SensorNode) ResolveActuator(target string) (device.Actuator, bool) {
	target = strings.ToLower(strings.TrimSpace(target))
	if target == "" {
		return nil, false
	}
	if a, ok := n.actuators.Find(func(v device.Actuator) bool { return v.ID() == target }); ok {
		return a, true
	}
	return n.actuators.Find(func(v device.Actuator) bool { return v.Type() == target })
}
