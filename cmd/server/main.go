package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/palemoky/quest-arena/internal/config"
	"github.com/palemoky/quest-arena/internal/logger"
	"github.com/palemoky/quest-arena/internal/server"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "配置文件路径")
	shutdownTimeout := flag.Duration("shutdown-timeout", 2*time.Minute, "等待进行中会话结束的最长时间")
	flag.Parse()

	// 加载配置，文件不存在时只读环境变量
	cfg, err := config.Load(*configPath)
	if errors.Is(err, fs.ErrNotExist) {
		logrus.WithField("path", *configPath).Warn("配置文件不存在，使用环境变量和默认配置")
		cfg, err = config.FromEnv()
	}
	if err != nil {
		logrus.WithError(err).Fatal("加载配置失败")
	}

	if err := logger.Init(cfg.Log); err != nil {
		logrus.WithError(err).Fatal("初始化日志失败")
	}
	defer logger.Close()

	srv, err := server.NewServer(cfg)
	if err != nil {
		logrus.WithError(err).Fatal("创建服务器失败")
	}

	restoreCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := srv.Restore(restoreCtx); err != nil {
		logrus.WithError(err).Warn("⚠️ 状态恢复失败，以空状态启动")
	}
	cancel()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logrus.Info("🎲 Quest Arena 服务器启动中...")
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logrus.WithError(err).Error("服务器启动失败")
			srv.Shutdown()
			logger.Close()
			os.Exit(1)
		}
	case <-ctx.Done():
		logrus.Info("正在关闭服务器...")
		srv.GracefulShutdown(*shutdownTimeout)
	}
}
