// Package agent 驱动单个交易代理的决策循环：
// 采集行情 → 获取账户 → 请求模型 → 解析校验 → 执行 → 落库。
// 每个代理独占自己的交易所客户端与括号委托登记表，互不干扰。
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"alpha-arena/internal/decision"
	"alpha-arena/internal/executor"
	"alpha-arena/internal/journal"
	"alpha-arena/internal/market"
	"alpha-arena/internal/venue"
)

// marketCollector 采集行情特征快照。
type marketCollector interface {
	Collect(ctx context.Context, symbols []string) (market.Snapshot, error)
}

// accountClient 提供账户快照。
type accountClient interface {
	GetAccountInfo(ctx context.Context) (venue.AccountSnapshot, error)
}

// modelClient 生成模型原始输出。
type modelClient interface {
	GenerateDecision(ctx context.Context, snapshot market.Snapshot, account venue.AccountSnapshot) (string, error)
}

// decisionParser 解析并校验模型输出。
type decisionParser interface {
	Parse(raw string) (decision.TradingDecision, error)
}

// decisionExecutor 把决策落实为交易所动作。
type decisionExecutor interface {
	Execute(ctx context.Context, d decision.TradingDecision) (executor.Outcome, error)
}

// cycleJournal 持久化周期记录与异常。
type cycleJournal interface {
	RecordCycle(ctx context.Context, record journal.CycleRecord) error
	RecordError(ctx context.Context, agent, msg string, cause error)
}

// Agent 是一个独立运行的交易代理。
type Agent struct {
	name     string
	symbols  []string
	interval time.Duration

	collector marketCollector
	account   accountClient
	model     modelClient
	parser    decisionParser
	executor  decisionExecutor
	journal   cycleJournal
	logger    *zap.Logger
}

// New 创建交易代理。
func New(name string, symbols []string, interval time.Duration,
	collector marketCollector, account accountClient, model modelClient,
	parser decisionParser, exec decisionExecutor, j cycleJournal, logger *zap.Logger) (*Agent, error) {
	if name == "" {
		return nil, errors.New("agent: 名称不能为空")
	}
	if len(symbols) == 0 {
		return nil, fmt.Errorf("agent: %s 未配置交易标的", name)
	}
	if interval <= 0 {
		interval = time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Agent{
		name:      name,
		symbols:   symbols,
		interval:  interval,
		collector: collector,
		account:   account,
		model:     model,
		parser:    parser,
		executor:  exec,
		journal:   j,
		logger:    logger.With(zap.String("agent", name)),
	}, nil
}

// Run 以固定周期驱动决策循环，启动后立即执行一次。
// 单个周期失败只记录并等待下一周期，ctx 取消后退出。
func (a *Agent) Run(ctx context.Context) error {
	a.logger.Info("交易代理已启动",
		zap.Strings("symbols", a.symbols),
		zap.Duration("interval", a.interval),
	)

	if err := a.runCycle(ctx); err != nil {
		a.logger.Error("决策周期失败", zap.Error(err))
	}

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("交易代理收到退出信号")
			return nil
		case <-ticker.C:
			if err := a.runCycle(ctx); err != nil {
				a.logger.Error("决策周期失败", zap.Error(err))
			}
		}
	}
}

// runCycle 执行一个完整的决策周期。周期内任何一步失败都会
// 连同已有的中间产物一起落库，保证事后可回放。
func (a *Agent) runCycle(ctx context.Context) error {
	record := journal.CycleRecord{Agent: a.name, CreatedAt: time.Now().UTC()}

	snapshot, err := a.collector.Collect(ctx, a.symbols)
	if err != nil {
		a.journal.RecordError(ctx, a.name, "行情采集失败", err)
		return fmt.Errorf("行情采集失败: %w", err)
	}
	record.Market = marshalLenient(snapshot)
	if len(snapshot.Assets) == 0 {
		a.journal.RecordError(ctx, a.name, "行情快照为空", nil)
		return errors.New("行情快照为空，跳过本周期")
	}

	account, err := a.account.GetAccountInfo(ctx)
	if err != nil {
		a.journal.RecordError(ctx, a.name, "获取账户快照失败", err)
		return fmt.Errorf("获取账户快照失败: %w", err)
	}
	record.Account = marshalLenient(account)

	raw, err := a.model.GenerateDecision(ctx, snapshot, account)
	if err != nil {
		a.journal.RecordError(ctx, a.name, "模型调用失败", err)
		return fmt.Errorf("模型调用失败: %w", err)
	}
	record.RawResponse = raw

	d, err := a.parser.Parse(raw)
	if err != nil {
		record.ParseError = err.Error()
		a.record(ctx, record)
		return fmt.Errorf("模型输出解析失败: %w", err)
	}
	record.Decision = marshalLenient(d)

	outcome, err := a.executor.Execute(ctx, d)
	if err != nil {
		record.ExecError = err.Error()
		a.record(ctx, record)
		return fmt.Errorf("决策执行失败: %w", err)
	}
	record.Outcome = marshalLenient(outcome)
	a.record(ctx, record)

	a.logger.Info("决策周期完成",
		zap.String("symbol", d.Symbol),
		zap.String("action", string(d.Action)),
		zap.Bool("executed", outcome.Executed),
	)
	return nil
}

func (a *Agent) record(ctx context.Context, record journal.CycleRecord) {
	if err := a.journal.RecordCycle(ctx, record); err != nil {
		a.logger.Warn("周期记录落库失败", zap.Error(err))
	}
}

func marshalLenient(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}
