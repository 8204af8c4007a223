package device

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultUpdateInterval 传感器默认的读取周期
const DefaultUpdateInterval = 2 * time.Second

// BasicSensor 是一个带上下限、随机漂移读数的传感器
type BasicSensor struct {
	key      Key
	id       string
	min, max float64
	interval time.Duration
	drift    float64 // 单次读取的最大漂移量

	mu       sync.Mutex    // 串行化 读取-修改-钳位-写入-通知
	value    atomic.Uint64 // math.Float64bits
	observer observerSlot
}

// SensorOption 配置 BasicSensor
type SensorOption func(*BasicSensor)

// WithInterval 设置读取周期
func WithInterval(d time.Duration) SensorOption {
	return func(s *BasicSensor) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithInitial 设置初始值（会被钳位）
func WithInitial(v float64) SensorOption {
	return func(s *BasicSensor) {
		s.value.Store(math.Float64bits(s.clamp(v)))
	}
}

// WithDrift 设置单次读取的最大漂移量
func WithDrift(d float64) SensorOption {
	return func(s *BasicSensor) {
		if d >= 0 {
			s.drift = d
		}
	}
}

// NewBasicSensor 创建传感器，ID 或类型为空、上下限非法时失败
func NewBasicSensor(deviceType, deviceID string, min, max float64, opts ...SensorOption) (*BasicSensor, error) {
	key, err := NewKey(deviceType, deviceID)
	if err != nil {
		return nil, err
	}
	id := normalize(deviceID)
	if id == "" {
		return nil, ErrBlankID
	}
	if math.IsNaN(min) || math.IsNaN(max) || min > max {
		return nil, fmt.Errorf("%w: [%v, %v]", ErrBadBounds, min, max)
	}
	s := &BasicSensor{
		key:      key,
		id:       id,
		min:      min,
		max:      max,
		interval: DefaultUpdateInterval,
		drift:    (max - min) * 0.02,
	}
	s.value.Store(math.Float64bits(min + (max-min)/2))
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *BasicSensor) ID() string                    { return s.id }
func (s *BasicSensor) Type() string                  { return s.key.Type() }
func (s *BasicSensor) Key() Key                      { return s.key }
func (s *BasicSensor) Min() float64                  { return s.min }
func (s *BasicSensor) Max() float64                  { return s.max }
func (s *BasicSensor) UpdateInterval() time.Duration { return s.interval }
func (s *BasicSensor) SetObserver(o Observer)        { s.observer.set(o) }

// CurrentValue 无锁读取当前值
func (s *BasicSensor) CurrentValue() float64 {
	return math.Float64frombits(s.value.Load())
}

// ReadValue 随机漂移一次并通知观察者
func (s *BasicSensor) ReadValue() (float64, error) {
	delta := (rand.Float64()*2 - 1) * s.drift
	return s.Adjust(delta), nil
}

// Adjust 叠加增量后钳位到 [min, max]
func (s *BasicSensor) Adjust(delta float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store(s.CurrentValue() + delta)
}

// SetValue 设置当前值并钳位到 [min, max]
func (s *BasicSensor) SetValue(v float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store(v)
}

// store 必须在持有 mu 时调用
func (s *BasicSensor) store(v float64) float64 {
	v = s.clamp(v)
	s.value.Store(math.Float64bits(v))
	s.observer.notify(s)
	return v
}

func (s *BasicSensor) clamp(v float64) float64 {
	if math.IsNaN(v) {
		return s.CurrentValue()
	}
	return math.Min(s.max, math.Max(s.min, v))
}

func (s *BasicSensor) String() string {
	return Reading{Key: s.key, Value: s.CurrentValue()}.String()
}
