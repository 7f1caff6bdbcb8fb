// Package executor 把一条已校验的交易决策落实为交易所动作：
// 取价、定量、按偏移计算限价，最后交给括号委托管理器。
package executor

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"alpha-arena/internal/bracket"
	"alpha-arena/internal/decision"
	"alpha-arena/internal/sizing"
	"alpha-arena/internal/venue"
)

// defaultLimitOffset 为限价相对中间价的让步比例，
// 买单上浮、卖单下压各 0.1%，提升成交概率。
const defaultLimitOffset = 0.001

// midsClient 提供全市场中间价。
type midsClient interface {
	GetAllMids(ctx context.Context) (map[string]float64, error)
}

// riskSizer 把风险预算换算为下单数量。
type riskSizer interface {
	QuantityForRisk(ctx context.Context, symbol string, entry, stop, riskUsd float64) (sizing.Result, error)
}

// bracketPlacer 提交三腿括号委托。
type bracketPlacer interface {
	PlaceBracket(ctx context.Context, symbol string, side venue.Side, quantity, limitPrice float64, takeProfit, stopLoss *float64, leverage int, orderType venue.OrderType) (*bracket.BracketOrder, error)
}

// Outcome 是一次执行的结果摘要，journal 原样落库。
type Outcome struct {
	Symbol   string  `json:"symbol"`
	Action   string  `json:"action"`
	Executed bool    `json:"executed"`
	DryRun   bool    `json:"dry_run,omitempty"`
	Reason   string  `json:"reason,omitempty"`
	Quantity float64 `json:"quantity,omitempty"`
	Price    float64 `json:"price,omitempty"`

	Bracket *bracket.BracketOrder `json:"bracket,omitempty"`
}

// Orchestrator 串联取价、定量与括号委托。
type Orchestrator struct {
	venue       midsClient
	sizer       riskSizer
	brackets    bracketPlacer
	limitOffset float64
	maxRiskUSD  float64
	defLeverage int
	dryRun      bool
	logger      *zap.Logger
}

// Option 调整执行器行为。
type Option func(*Orchestrator)

// WithLimitOffset 覆盖默认的限价让步比例。
func WithLimitOffset(offset float64) Option {
	return func(o *Orchestrator) {
		if offset > 0 {
			o.limitOffset = offset
		}
	}
}

// WithDryRun 启用模拟模式：走完全部决策流程但不向交易所下单。
func WithDryRun(enabled bool) Option {
	return func(o *Orchestrator) { o.dryRun = enabled }
}

// WithRiskCap 设置单笔风险金额上限，模型给出的 risk_usd 超出时截断。
// 0 表示不设上限。
func WithRiskCap(maxRiskUSD float64) Option {
	return func(o *Orchestrator) {
		if maxRiskUSD > 0 {
			o.maxRiskUSD = maxRiskUSD
		}
	}
}

// WithDefaultLeverage 设置决策未给出杠杆时的默认值。
func WithDefaultLeverage(leverage int) Option {
	return func(o *Orchestrator) {
		if leverage > 0 {
			o.defLeverage = leverage
		}
	}
}

// NewOrchestrator 创建执行器。
func NewOrchestrator(v midsClient, sizer riskSizer, brackets bracketPlacer, logger *zap.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := &Orchestrator{
		venue:       v,
		sizer:       sizer,
		brackets:    brackets,
		limitOffset: defaultLimitOffset,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Execute 执行一条交易决策。HOLD 直接短路，不触碰交易所。
// 任何环节失败都放弃整条决策并返回原因，不做部分执行。
func (o *Orchestrator) Execute(ctx context.Context, d decision.TradingDecision) (Outcome, error) {
	outcome := Outcome{Symbol: d.Symbol, Action: string(d.Action)}

	if d.Action == decision.ActionHold {
		outcome.Reason = "HOLD 决策无需下单"
		o.logger.Info("决策为 HOLD，跳过执行", zap.String("symbol", d.Symbol))
		return outcome, nil
	}

	mids, err := o.venue.GetAllMids(ctx)
	if err != nil {
		return outcome, fmt.Errorf("executor: 获取中间价失败: %w", err)
	}
	price, ok := mids[d.Symbol]
	if !ok || price <= 0 {
		return outcome, fmt.Errorf("executor: 中间价缺少 %s，放弃执行", d.Symbol)
	}

	// 止损价与风险预算齐备时按风险定量，否则退回模型文本中的数量。
	quantity := d.Quantity
	if d.StopLoss != nil && d.RiskUSD != nil {
		riskUsd := *d.RiskUSD
		if o.maxRiskUSD > 0 && riskUsd > o.maxRiskUSD {
			o.logger.Warn("风险预算超出上限，按上限截断",
				zap.String("symbol", d.Symbol),
				zap.Float64("requested", riskUsd),
				zap.Float64("cap", o.maxRiskUSD),
			)
			riskUsd = o.maxRiskUSD
		}
		res, err := o.sizer.QuantityForRisk(ctx, d.Symbol, price, *d.StopLoss, riskUsd)
		if err != nil {
			return outcome, fmt.Errorf("executor: %s 风险定量失败: %w", d.Symbol, err)
		}
		quantity = res.Quantity
	}
	if quantity <= 0 {
		return outcome, fmt.Errorf("executor: %s 下单数量非正数: %v", d.Symbol, quantity)
	}

	var side venue.Side
	var limitPrice float64
	switch d.Action {
	case decision.ActionBuy:
		side = venue.SideBuy
		limitPrice = price * (1 + o.limitOffset)
	case decision.ActionSell:
		side = venue.SideSell
		limitPrice = price * (1 - o.limitOffset)
	default:
		return outcome, fmt.Errorf("executor: 未知动作 %q", d.Action)
	}

	leverage := d.Leverage
	if leverage == 0 {
		leverage = o.defLeverage
	}

	outcome.Quantity = quantity
	outcome.Price = limitPrice

	if o.dryRun {
		outcome.Executed = true
		outcome.DryRun = true
		outcome.Reason = "模拟模式，未实际下单"
		o.logger.Info("模拟执行完成",
			zap.String("symbol", d.Symbol),
			zap.String("side", string(side)),
			zap.Float64("quantity", quantity),
			zap.Float64("limit_price", limitPrice),
		)
		return outcome, nil
	}

	order, err := o.brackets.PlaceBracket(ctx, d.Symbol, side, quantity, limitPrice, d.ProfitTarget, d.StopLoss, leverage, venue.OrderTypeLimit)
	if err != nil {
		return outcome, fmt.Errorf("executor: %s 括号委托失败: %w", d.Symbol, err)
	}

	outcome.Executed = true
	outcome.Bracket = order
	o.logger.Info("决策执行完成",
		zap.String("symbol", d.Symbol),
		zap.String("side", string(side)),
		zap.Float64("quantity", quantity),
		zap.Float64("limit_price", limitPrice),
		zap.String("bracket_key", order.Key),
		zap.String("bracket_status", string(order.Status)),
	)
	return outcome, nil
}
