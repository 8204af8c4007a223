package pkg

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

const (
	// DefaultReportInterval 传感器心跳默认周期
	DefaultReportInterval = 5 * time.Second
	// DefaultMaxFrameSize 帧最大长度 1 MiB
	DefaultMaxFrameSize = 1 << 20
	// DefaultHistoryWindow 面板侧历史窗口
	DefaultHistoryWindow = 5 * time.Minute
	// DefaultDialTimeout 面板连接节点的超时时间
	DefaultDialTimeout = 5 * time.Second
)

type LogConfig struct {
	LogPath    string `mapstructure:"log_path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
	Level      string `mapstructure:"level"`
}

// DeviceConfig 描述节点上挂载的一个设备，由 device 工厂解析
type DeviceConfig struct {
	Type     string        `mapstructure:"type"`
	ID       string        `mapstructure:"id"`
	Min      float64       `mapstructure:"min"`
	Max      float64       `mapstructure:"max"`
	Initial  *float64      `mapstructure:"initial"`
	Interval time.Duration `mapstructure:"interval"`
	Effect   string        `mapstructure:"effect"` // 执行器的作用表达式 (expr)
}

// NodeConfig 节点侧配置
type NodeConfig struct {
	ID             string         `mapstructure:"id"`
	Listen         string         `mapstructure:"listen"`
	ReportInterval time.Duration  `mapstructure:"reportInterval"`
	MaxFrameSize   int            `mapstructure:"maxFrameSize"`
	Devices        []DeviceConfig `mapstructure:"devices"`
}

// RemoteNodeConfig 面板需要连接的远端节点
type RemoteNodeConfig struct {
	ID   string `mapstructure:"id"`
	Addr string `mapstructure:"addr"`
}

type APIConfig struct {
	Listen string `mapstructure:"listen"`
}

// PanelConfig 面板侧配置
type PanelConfig struct {
	ID            string             `mapstructure:"id"`
	Nodes         []RemoteNodeConfig `mapstructure:"nodes"`
	HistoryWindow time.Duration      `mapstructure:"historyWindow"`
	DialTimeout   time.Duration      `mapstructure:"dialTimeout"`
	MaxFrameSize  int                `mapstructure:"maxFrameSize"`
	API           APIConfig          `mapstructure:"api"`
}

// SinkConfig 历史数据输出配置，可以有多个
type SinkConfig struct {
	Type   string                 `mapstructure:"type"`   // 输出类型
	Enable bool                   `mapstructure:"enable"` // 是否启用
	Filter string                 `mapstructure:"filter"` // 过滤表达式，为空代表全部接收
	Para   map[string]interface{} `mapstructure:",remain"`
}

type Config struct {
	Version string       `mapstructure:"version"`
	Log     LogConfig    `mapstructure:"log"`
	Node    NodeConfig   `mapstructure:"node"`
	Panel   PanelConfig  `mapstructure:"panel"`
	Sink    []SinkConfig `mapstructure:"sink"`
}

// ApplyDefaults 为未配置的项填充默认值
func (c *Config) ApplyDefaults() {
	if c.Node.ReportInterval <= 0 {
		c.Node.ReportInterval = DefaultReportInterval
	}
	if c.Node.MaxFrameSize <= 0 {
		c.Node.MaxFrameSize = DefaultMaxFrameSize
	}
	if c.Node.Listen == "" {
		c.Node.Listen = ":9000"
	}
	if c.Panel.HistoryWindow <= 0 {
		c.Panel.HistoryWindow = DefaultHistoryWindow
	}
	if c.Panel.DialTimeout <= 0 {
		c.Panel.DialTimeout = DefaultDialTimeout
	}
	if c.Panel.MaxFrameSize <= 0 {
		c.Panel.MaxFrameSize = DefaultMaxFrameSize
	}
	if c.Panel.ID == "" {
		c.Panel.ID = "panel"
	}
}

// InitCommon 用于初始化全局配置
func InitCommon(configDir string) (*Config, *viper.Viper, error) {
	v := viper.NewWithOptions(viper.KeyDelimiter("::")) // 设置 key 分隔符为 ::，因为默认的 . 会和 IP 地址冲突
	v.AddConfigPath(configDir)
	v.AutomaticEnv() // 读取环境变量
	// 遍历配置目录及其子目录中的所有文件
	err := filepath.WalkDir(configDir, func(filePath string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("访问路径 %s 失败: %w", filePath, err)
		}
		if d.IsDir() {
			return nil
		}
		ext := filepath.Ext(filePath)
		// 只处理 .yaml 或 .yml 文件
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		v.SetConfigFile(filePath)
		// 读取并合并配置文件 (会覆盖之前的配置)
		if err := v.MergeInConfig(); err != nil {
			return fmt.Errorf("读取配置文件失败 %s: %w", filePath, err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	var common Config
	// 反序列化到结构体
	if err := v.Unmarshal(&common); err != nil {
		return nil, nil, fmt.Errorf("反序列化配置失败: %w", err)
	}
	common.ApplyDefaults()
	return &common, v, nil
}
