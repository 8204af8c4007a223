package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"nodelink/internal/device"
	"nodelink/internal/node"
	"nodelink/internal/pkg"
	"nodelink/internal/scheduler"
	"nodelink/internal/session"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// syncLog 安全地同步日志，忽略与标准输出相关的错误
func syncLog(log *zap.Logger) {
	err := log.Sync()
	if err != nil && !strings.Contains(err.Error(), "The handle is invalid") && !errors.Is(err, syscall.EINVAL) {
		log.Error("程序退出时同步日志失败", zap.Error(err))
	}
}

func main() {
	var configDir string
	rootCmd := &cobra.Command{
		Use:   "nodelink-node",
		Short: "Sensor node: serves readings and accepts actuator commands",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configDir)
		},
	}
	rootCmd.Flags().StringVarP(&configDir, "config", "c", "yaml/node", "配置目录")
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(configDir string) error {
	// 1. 初始化配置
	config, _, err := pkg.InitCommon(configDir)
	if err != nil {
		return fmt.Errorf("加载配置失败: %w", err)
	}

	// 2. 初始化log
	log := pkg.NewLogger(&config.Log)
	defer syncLog(log)
	log.Info("节点启动", zap.String("version", config.Version), zap.String("node", config.Node.ID))
	log.Info("配置信息", zap.Any("node", config.Node))

	// 3. 创建上下文
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errChan := make(chan error, 10)
	ctx = pkg.WithErrChan(ctx, errChan)
	ctx = pkg.WithConfig(ctx, config)
	ctx = pkg.WithLogger(ctx, log)

	// 4. 创建节点和设备
	n, err := node.Build(ctx, config.Node, device.NewIDRegistry())
	if err != nil {
		log.Error("创建节点失败", zap.Error(err))
		return err
	}

	// 5. 启动传感器调度
	sched := scheduler.New(ctx)
	sched.ScheduleAll(n.Sensors())
	defer sched.Stop()

	// 6. 启动 TCP 服务
	server, err := session.Listen(ctx, n, config.Node.Listen, config.Node.MaxFrameSize)
	if err != nil {
		log.Error("监听失败", zap.Error(err))
		return err
	}
	go func() {
		if err := server.Serve(); err != nil {
			pkg.ReportErr(ctx, fmt.Errorf("服务异常退出: %w", err))
		}
	}()
	log.Info("==== 节点已就绪 ====", zap.Stringer("addr", server.Addr()),
		zap.Int("sensors", len(n.Sensors())), zap.Int("actuators", len(n.Actuators())))

	// 7. 主线程监听终止信号
	si := make(chan os.Signal, 1)
	signal.Notify(si, os.Interrupt, syscall.SIGTERM)
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-si:
			log.Info("Caught exit signal, shutting down node...")
			cancel()
			_ = server.Close()
			pkg.GetMetrics().LogMetrics(log)
			return nil
		case bad := <-errChan:
			log.Error("Error occurred", zap.Error(bad))
			cancel()
			_ = server.Close()
			return bad
		case <-ticker.C:
			pkg.GetMetrics().LogMetrics(log)
		}
	}
}
