package device

import (
	"sync"
	"sync/atomic"
)

// Effect 是执行器作用于传感器的外部钩子，可以修改传感器也可以什么都不做
type Effect func(a Actuator, sensors []Sensor)

// NoEffect 不产生任何作用
func NoEffect(Actuator, []Sensor) {}

// BasicActuator 是一个开关型执行器
type BasicActuator struct {
	key    Key
	id     string
	effect Effect

	mu       sync.Mutex // 串行化 写入-通知
	state    atomic.Bool
	observer observerSlot
}

// NewBasicActuator 创建执行器，effect 为 nil 时不产生作用
func NewBasicActuator(deviceType, deviceID string, effect Effect) (*BasicActuator, error) {
	key, err := NewKey(deviceType, deviceID)
	if err != nil {
		return nil, err
	}
	id := normalize(deviceID)
	if id == "" {
		return nil, ErrBlankID
	}
	if effect == nil {
		effect = NoEffect
	}
	return &BasicActuator{key: key, id: id, effect: effect}, nil
}

func (a *BasicActuator) ID() string             { return a.id }
func (a *BasicActuator) Type() string           { return a.key.Type() }
func (a *BasicActuator) Key() Key               { return a.key }
func (a *BasicActuator) SetObserver(o Observer) { a.observer.set(o) }

// State 无锁读取开关状态
func (a *BasicActuator) State() bool {
	return a.state.Load()
}

// SetState 设置开关状态并通知观察者
func (a *BasicActuator) SetState(on bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state.Store(on)
	a.observer.notify(a)
}

// ApplyEffect 调用作用钩子
func (a *BasicActuator) ApplyEffect(sensors []Sensor) {
	a.effect(a, sensors)
}

func (a *BasicActuator) String() string {
	return a.key.String() + ":" + FormatState(a.State())
}
