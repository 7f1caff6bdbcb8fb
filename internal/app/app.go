// Package app 负责装配：按配置为每个交易代理构建独立的
// 交易所客户端、定量器、括号委托管理器与执行器，并发运行。
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"alpha-arena/internal/agent"
	"alpha-arena/internal/bracket"
	"alpha-arena/internal/config"
	"alpha-arena/internal/decision"
	"alpha-arena/internal/executor"
	"alpha-arena/internal/journal"
	"alpha-arena/internal/llm"
	"alpha-arena/internal/market"
	"alpha-arena/internal/sizing"
	"alpha-arena/internal/store"
	"alpha-arena/internal/venue"
)

// App 聚合核心依赖并驱动系统生命周期。
type App struct {
	cfg    *config.Config
	logger *zap.Logger
	store  *store.Store
}

// New 创建 App 实例。
func New(cfg *config.Config, logger *zap.Logger, st *store.Store) *App {
	return &App{
		cfg:    cfg,
		logger: logger,
		store:  st,
	}
}

// Run 构建所有交易代理并并发运行，直至 ctx 取消。
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("交易系统已初始化",
		zap.String("environment", a.cfg.App.Environment),
		zap.Int("agents", len(a.cfg.Agents)),
	)

	jnl, err := journal.New(a.store, a.logger)
	if err != nil {
		return fmt.Errorf("初始化周期日志失败: %w", err)
	}

	model, err := llm.NewClient(a.cfg.OpenAI, a.logger)
	if err != nil {
		return fmt.Errorf("初始化模型客户端失败: %w", err)
	}

	agents := make([]*agent.Agent, 0, len(a.cfg.Agents))
	for _, agentCfg := range a.cfg.Agents {
		ag, err := a.buildAgent(agentCfg, model, jnl)
		if err != nil {
			return fmt.Errorf("构建代理 %s 失败: %w", agentCfg.Name, err)
		}
		agents = append(agents, ag)
	}

	group, groupCtx := errgroup.WithContext(ctx)

	if a.cfg.Monitor.Enabled {
		journal.StartServer(groupCtx, jnl, a.cfg.Monitor.Port, a.logger)
	}

	for _, ag := range agents {
		group.Go(func() error {
			return ag.Run(groupCtx)
		})
	}

	return group.Wait()
}

func (a *App) buildAgent(agentCfg config.AgentConfig, model *llm.Client, jnl *journal.Journal) (*agent.Agent, error) {
	adapter, err := venue.New(agentCfg.Venue, a.cfg.Venues, agentCfg.Markets, a.logger)
	if err != nil {
		return nil, err
	}

	collector := market.NewCollector(adapter, a.logger)
	sizer := sizing.NewSizer(adapter, a.cfg.Sizing.Interval, a.cfg.Sizing.KlineLimit, a.logger)
	brackets := bracket.NewManager(adapter, a.logger)
	parser := decision.NewValidator(a.logger)

	orch := executor.NewOrchestrator(adapter, sizer, brackets, a.logger,
		executor.WithLimitOffset(a.cfg.Execution.LimitOffset),
		executor.WithDryRun(a.cfg.Execution.DryRun),
		executor.WithRiskCap(agentCfg.RiskUSD),
		executor.WithDefaultLeverage(agentCfg.Leverage),
	)

	// 配置里写的是交易所市场标识，代理内部统一用币种。
	coins := make([]string, 0, len(agentCfg.Markets))
	for _, m := range agentCfg.Markets {
		coins = append(coins, venue.CoinFromMarket(m))
	}

	return agent.New(agentCfg.Name, coins, agentCfg.Interval,
		collector, adapter, model, parser, orch, jnl, a.logger)
}
