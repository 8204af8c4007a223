package panel

import (
	"math"
	"sync"
	"time"

	"nodelink/internal/device"
	"nodelink/internal/pkg"
)

// DefaultMaxSamples 单个传感器历史队列的硬上限，防止窗口很大时无限增长
const DefaultMaxSamples = 4096

// Sample 一条带时间戳的历史读数
type Sample struct {
	Value float64   `json:"value"`
	Ts    time.Time `json:"ts"`
}

type sensorEntry struct {
	value   float64
	updated time.Time
	history []Sample // 按时间递增，写入时从头部惰性裁剪
}

type actuatorEntry struct {
	state   bool
	updated time.Time
}

// NodeData 是一个远端节点的并发缓存：最新值、更新时间以及窗口内的历史读数
type NodeData struct {
	nodeID     string
	window     time.Duration
	maxSamples int
	now        func() time.Time

	mu         sync.RWMutex
	sensors    map[string]*sensorEntry
	actuators  map[string]*actuatorEntry
	lastUpdate time.Time
}

type NodeDataOption func(*NodeData)

// WithWindow 设置历史窗口
func WithWindow(d time.Duration) NodeDataOption {
	return func(n *NodeData) {
		if d > 0 {
			n.window = d
		}
	}
}

// WithNow 替换时间源
func WithNow(now func() time.Time) NodeDataOption {
	return func(n *NodeData) { n.now = now }
}

func WithMaxSamples(max int) NodeDataOption {
	return func(n *NodeData) {
		if max > 0 {
			n.maxSamples = max
		}
	}
}

func NewNodeData(nodeID string, opts ...NodeDataOption) *NodeData {
	n := &NodeData{
		nodeID:     nodeID,
		window:     pkg.DefaultHistoryWindow,
		maxSamples: DefaultMaxSamples,
		now:        time.Now,
		sensors:    make(map[string]*sensorEntry),
		actuators:  make(map[string]*actuatorEntry),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

func (n *NodeData) NodeID() string        { return n.nodeID }
func (n *NodeData) Window() time.Duration { return n.window }

// normKey 规范化外部传入的键，非法键返回空串
func normKey(key string) string {
	k, err := device.ParseKey(key)
	if err != nil {
		return ""
	}
	return k.String()
}

// UpdateSensor 记录最新值和时间，追加历史并裁剪窗口外的样本。
// 返回写入时间，无效键时返回零值。
func (n *NodeData) UpdateSensor(key string, value float64) time.Time {
	key = normKey(key)
	if key == "" {
		return time.Time{}
	}
	now := n.now()
	n.mu.Lock()
	defer n.mu.Unlock()
	e, ok := n.sensors[key]
	if !ok {
		e = &sensorEntry{}
		n.sensors[key] = e
	}
	e.value = value
	e.updated = now
	e.history = append(e.history, Sample{Value: value, Ts: now})
	e.history = prune(e.history, now.Add(-n.window), n.maxSamples)
	n.lastUpdate = now
	return now
}

// prune 从头部丢弃早于 cutoff 的样本以及超出上限的样本
func prune(history []Sample, cutoff time.Time, max int) []Sample {
	i := 0
	for i < len(history) && history[i].Ts.Before(cutoff) {
		i++
	}
	if over := len(history) - i - max; over > 0 {
		i += over
	}
	if i == 0 {
		return history
	}
	return append(history[:0:0], history[i:]...)
}

// UpdateActuator 记录执行器的最新状态
func (n *NodeData) UpdateActuator(key string, state bool) {
	key = normKey(key)
	if key == "" {
		return
	}
	now := n.now()
	n.mu.Lock()
	defer n.mu.Unlock()
	n.actuators[key] = &actuatorEntry{state: state, updated: now}
	n.lastUpdate = now
}

// Touch 只刷新节点的最后活跃时间（心跳）
func (n *NodeData) Touch() {
	now := n.now()
	n.mu.Lock()
	n.lastUpdate = now
	n.mu.Unlock()
}

func (n *NodeData) LastUpdate() time.Time {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.lastUpdate
}

func (n *NodeData) SensorValue(key string) (float64, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if e, ok := n.sensors[normKey(key)]; ok {
		return e.value, true
	}
	return 0, false
}

func (n *NodeData) SensorUpdatedAt(key string) (time.Time, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if e, ok := n.sensors[normKey(key)]; ok {
		return e.updated, true
	}
	return time.Time{}, false
}

func (n *NodeData) ActuatorState(key string) (bool, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if e, ok := n.actuators[normKey(key)]; ok {
		return e.state, true
	}
	return false, false
}

// SensorAverage 计算时间戳不早于 now-window 的样本均值，没有样本时返回 NaN
func (n *NodeData) SensorAverage(key string, window time.Duration) float64 {
	cutoff := n.now().Add(-window)
	n.mu.RLock()
	defer n.mu.RUnlock()
	e, ok := n.sensors[normKey(key)]
	if !ok {
		return math.NaN()
	}
	var sum float64
	var count int
	for _, s := range e.history {
		if !s.Ts.Before(cutoff) {
			sum += s.Value
			count++
		}
	}
	if count == 0 {
		return math.NaN()
	}
	return sum / float64(count)
}

// History 返回传感器历史的副本
func (n *NodeData) History(key string) []Sample {
	n.mu.RLock()
	defer n.mu.RUnlock()
	e, ok := n.sensors[normKey(key)]
	if !ok {
		return nil
	}
	out := make([]Sample, len(e.history))
	copy(out, e.history)
	return out
}

// Sensors 返回所有传感器最新值的副本
func (n *NodeData) Sensors() map[string]float64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make(map[string]float64, len(n.sensors))
	for k, e := range n.sensors {
		out[k] = e.value
	}
	return out
}

// Actuators 返回所有执行器状态的副本
func (n *NodeData) Actuators() map[string]bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make(map[string]bool, len(n.actuators))
	for k, e := range n.actuators {
		out[k] = e.state
	}
	return out
}

// RemoveSensor 清除该传感器的全部缓存
func (n *NodeData) RemoveSensor(key string) {
	n.mu.Lock()
	delete(n.sensors, normKey(key))
	n.mu.Unlock()
}

// RemoveActuator 清除该执行器的全部缓存
func (n *NodeData) RemoveActuator(key string) {
	n.mu.Lock()
	delete(n.actuators, normKey(key))
	n.mu.Unlock()
}

// Merged 是一条合并进缓存的传感器读数
type Merged struct {
	Key   string
	Value float64
	Ts    time.Time
}

// MergePayload 解析 DATA 负载并合并进缓存，返回合并的传感器读数和被丢弃项的错误
func (n *NodeData) MergePayload(payload string) ([]Merged, []error) {
	entries, errs := ParsePayload(payload)
	merged := make([]Merged, 0, len(entries))
	for _, e := range entries {
		key := e.Key.String()
		if !e.Sensor {
			n.UpdateActuator(key, e.State)
			continue
		}
		ts := n.UpdateSensor(key, e.Value)
		merged = append(merged, Merged{Key: key, Value: e.Value, Ts: ts})
	}
	return merged, errs
}
