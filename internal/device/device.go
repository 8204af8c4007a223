package device

import (
	"errors"
	"time"
)

var (
	ErrBadBounds    = errors.New("传感器上下限非法")
	ErrDuplicateID  = errors.New("设备 ID 重复")
	ErrUnknownType  = errors.New("未注册的设备类型")
	ErrNotAvailable = errors.New("设备读取失败")
)

// Observer 接收设备状态变化的通知，设备只有一个所属观察者
type Observer interface {
	OnDeviceUpdated(d Device)
}

// Device 是传感器和执行器共有的能力面
type Device interface {
	ID() string
	Type() string
	Key() Key
	// SetObserver 设置所属观察者，传 nil 表示取消注册
	SetObserver(o Observer)
}

// Sensor 是带上下限的数值设备
type Sensor interface {
	Device
	// ReadValue 执行一次读取（可能改变当前值），返回读取后的值
	ReadValue() (float64, error)
	CurrentValue() float64
	Min() float64
	Max() float64
	UpdateInterval() time.Duration
	// Adjust 在当前值上叠加增量并钳位
	Adjust(delta float64) float64
	// SetValue 设置当前值并钳位
	SetValue(v float64) float64
}

// Actuator 是开关型设备
type Actuator interface {
	Device
	State() bool
	SetState(on bool)
	// ApplyEffect 由快照逻辑调用，让处于开启状态的执行器作用于传感器
	ApplyEffect(sensors []Sensor)
}
