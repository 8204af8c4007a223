package device

import (
	"context"
	"fmt"
	"sort"

	"nodelink/internal/pkg"

	"go.uber.org/zap"
)

// FactoryFunc 根据配置创建一个设备
type FactoryFunc func(cfg pkg.DeviceConfig) (Device, error)

// Factories 全局工厂映射，键为设备类型
var Factories = make(map[string]FactoryFunc)

// Register 注册一种设备类型
func Register(deviceType string, factory FactoryFunc) {
	Factories[normalize(deviceType)] = factory
}

// Types 返回已注册的设备类型（有序）
func Types() []string {
	types := make([]string, 0, len(Factories))
	for key := range Factories {
		types = append(types, key)
	}
	sort.Strings(types)
	return types
}

// New 按配置中的类型创建设备
func New(ctx context.Context, cfg pkg.DeviceConfig) (Device, error) {
	log := pkg.LoggerFromContext(ctx)
	factory, ok := Factories[normalize(cfg.Type)]
	if !ok {
		log.Debug("Device Factory:", zap.Strings("Factories", Types()))
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, cfg.Type)
	}
	d, err := factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("初始化设备 %s#%s 失败: %w", cfg.Type, cfg.ID, err)
	}
	log.Debug("设备已创建", zap.String("key", d.Key().String()))
	return d, nil
}

// sensorBounds 内置传感器的默认量程
var sensorBounds = map[string][2]float64{
	"temperature":   {-20, 60},
	"humidity":      {0, 100},
	"light":         {0, 100000},
	"co2":           {0, 5000},
	"soil_moisture": {0, 100},
}

var builtinActuators = []string{"heater", "fan", "window", "lamp", "sprinkler"}

func init() {
	for typ, bounds := range sensorBounds {
		Register(typ, sensorFactory(bounds[0], bounds[1]))
	}
	for _, typ := range builtinActuators {
		Register(typ, newActuatorFromConfig)
	}
}

func sensorFactory(defMin, defMax float64) FactoryFunc {
	return func(cfg pkg.DeviceConfig) (Device, error) {
		min, max := cfg.Min, cfg.Max
		if min == 0 && max == 0 {
			min, max = defMin, defMax
		}
		opts := []SensorOption{WithInterval(cfg.Interval)}
		if cfg.Initial != nil {
			opts = append(opts, WithInitial(*cfg.Initial))
		}
		return NewBasicSensor(cfg.Type, cfg.ID, min, max, opts...)
	}
}

func newActuatorFromConfig(cfg pkg.DeviceConfig) (Device, error) {
	effect, err := CompileEffect(cfg.Effect)
	if err != nil {
		return nil, err
	}
	return NewBasicActuator(cfg.Type, cfg.ID, effect)
}
