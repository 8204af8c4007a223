package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"nodelink/internal/admin/api"
	"nodelink/internal/admin/router"
	"nodelink/internal/panel"
	"nodelink/internal/pkg"
	"nodelink/internal/sink"

	"github.com/gin-gonic/gin"
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
		Use:   "nodelink-panel",
		Short: "Control panel: connects to sensor nodes, caches readings and serves the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configDir)
		},
	}
	rootCmd.Flags().StringVarP(&configDir, "config", "c", "yaml/panel", "配置目录")
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
	log.Info("面板启动", zap.String("version", config.Version), zap.String("panel", config.Panel.ID))
	log.Info("配置信息", zap.Any("panel", config.Panel), zap.Int("sinks", len(config.Sink)))

	// 3. 创建上下文
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errChan := make(chan error, 10)
	ctx = pkg.WithErrChan(ctx, errChan)
	ctx = pkg.WithConfig(ctx, config)
	ctx = pkg.WithLogger(ctx, log)

	// 4. 启动历史数据输出
	recorder, err := sink.FromConfig(ctx, config.Sink)
	if err != nil {
		log.Error("创建 sink 失败", zap.Error(err))
		return err
	}
	recorder.Start()
	defer recorder.Close()

	// 5. 连接远端节点
	dispatcher := panel.NewDispatcher(ctx, config.Panel.HistoryWindow, panel.WithHistorySink(recorder))
	hub := panel.NewHub(ctx, dispatcher,
		panel.WithDialTimeout(config.Panel.DialTimeout),
		panel.WithClientMaxFrameSize(config.Panel.MaxFrameSize))
	defer hub.Close()
	if err := hub.ConnectAll(ctx, config.Panel.Nodes); err != nil {
		// 部分节点不可达时面板仍然可用
		log.Warn("部分节点连接失败", zap.Error(err))
	}
	log.Info("已连接节点", zap.Strings("nodes", hub.Clients()))

	// 6. 启动 HTTP API
	var srv *http.Server
	if config.Panel.API.Listen != "" {
		gin.SetMode(gin.ReleaseMode)
		r := router.SetupRouter(api.NewHandler(hub, dispatcher), pkg.GetMetrics().Registry())
		srv = &http.Server{Addr: config.Panel.API.Listen, Handler: r}
		go func() {
			log.Info("面板 API 启动", zap.String("addr", config.Panel.API.Listen))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				pkg.ReportErr(ctx, fmt.Errorf("API 服务异常退出: %w", err))
			}
		}()
	}

	// 7. 主线程监听终止信号
	si := make(chan os.Signal, 1)
	signal.Notify(si, os.Interrupt, syscall.SIGTERM)
	var exitErr error
	select {
	case <-si:
		log.Info("Caught exit signal, shutting down panel...")
	case exitErr = <-errChan:
		log.Error("Error occurred", zap.Error(exitErr))
	}
	cancel()
	if srv != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("API 服务关闭失败", zap.Error(err))
		}
	}
	pkg.GetMetrics().LogMetrics(log)
	return exitErr
}
