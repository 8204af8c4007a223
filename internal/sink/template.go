package sink

import (
	"context"
	"fmt"
	"sort"

	"nodelink/internal/pkg"

	"go.uber.org/zap"
)

// Template 是所有 sink 的通用接口
type Template interface {
	GetType() string
	// Start 阻塞消费通道，直到 Stop 或通道关闭
	Start(ch chan pkg.Sample)
	Stop()
}

// FactoryFunc 根据 sink 配置创建实例
type FactoryFunc func(ctx context.Context, cfg pkg.SinkConfig) (Template, error)

// Factories 全局工厂映射
var Factories = make(map[string]FactoryFunc)

// Register 注册一种 sink
func Register(sinkType string, factory FactoryFunc) {
	Factories[sinkType] = factory
}

// New 创建指定类型的 sink
func New(ctx context.Context, cfg pkg.SinkConfig) (Template, error) {
	log := pkg.LoggerFromContext(ctx)
	factoryTypes := make([]string, 0, len(Factories))
	for key := range Factories {
		factoryTypes = append(factoryTypes, key)
	}
	sort.Strings(factoryTypes)
	log.Debug("Sink Factory:", zap.Strings("Factories", factoryTypes))

	factory, ok := Factories[cfg.Type]
	if !ok {
		return nil, fmt.Errorf("未找到 sink 类型: %s", cfg.Type)
	}
	t, err := factory(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("初始化 sink %s 失败: %w", cfg.Type, err)
	}
	return t, nil
}
