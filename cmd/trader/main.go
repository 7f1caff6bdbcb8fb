package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"alpha-arena/internal/app"
	"alpha-arena/internal/config"
	"alpha-arena/internal/log"
	"alpha-arena/internal/store"
)

func main() {
	var (
		configPath string
		dryRun     bool
	)
	flag.StringVar(&configPath, "config", "", "配置文件路径，默认使用 configs/config.yaml")
	flag.BoolVar(&dryRun, "dry-run", false, "只生成决策不下单，覆盖配置中的 execution.dry_run")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}
	if dryRun {
		cfg.Execution.DryRun = true
	}

	logger, err := log.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	logger.Info("alpha-arena 启动",
		zap.Int("agents", len(cfg.Agents)),
		zap.Bool("dry_run", cfg.Execution.DryRun),
	)
	defer func(logger *zap.Logger) {
		_ = logger.Sync()
	}(logger)

	sqliteStore, err := store.NewSQLite(cfg.Database)
	if err != nil {
		logger.Error("初始化数据库失败", zap.Error(err))
		os.Exit(1)
	}
	defer func() {
		if closeErr := sqliteStore.Close(); closeErr != nil {
			logger.Warn("关闭数据库失败", zap.Error(closeErr))
		}
	}()

	tradingApp := app.New(cfg, logger, sqliteStore)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := tradingApp.Run(ctx); err != nil {
		logger.Error("交易系统运行异常", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("全部 agent 已停止，系统退出")
}
