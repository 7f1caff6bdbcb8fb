// Package sizing 负责把"愿意亏多少钱"换算成"下多少量"。
// 换算依赖止损距离：quantity = riskUsd / |entry - stop|，
// ATR 仅作为波动率参考随结果一并返回。
package sizing

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"alpha-arena/internal/venue"
)

// atrPeriod 为真实波幅均值的回看周期，需要 atrPeriod+1 根K线
// 才能得到第一个前收盘价。
const atrPeriod = 14

// InvalidInputError 表示入场价与止损价重合，风险距离为零无法定量。
type InvalidInputError struct {
	Reason string
}

func (e *InvalidInputError) Error() string {
	return "sizing: 输入无效: " + e.Reason
}

// RiskQuantity 返回以 riskUsd 为单笔最大亏损、止损距离为
// |entry-stop| 时的下单数量。距离为零时返回 InvalidInputError。
func RiskQuantity(entry, stop, riskUsd float64) (float64, error) {
	distance := math.Abs(entry - stop)
	if distance == 0 {
		return 0, &InvalidInputError{Reason: fmt.Sprintf("入场价与止损价重合 (%v)", entry)}
	}
	return riskUsd / distance, nil
}

// AverageTrueRange 返回最近 atrPeriod 根K线真实波幅的简单平均。
// 真实波幅 = max(high-low, |high-prevClose|, |low-prevClose|)。
// K线不足 atrPeriod+1 根时返回错误。
func AverageTrueRange(candles []venue.Candle) (float64, error) {
	if len(candles) < atrPeriod+1 {
		return 0, fmt.Errorf("sizing: K线不足，需要至少 %d 根，实际 %d 根", atrPeriod+1, len(candles))
	}

	start := len(candles) - atrPeriod
	sum := 0.0
	for i := start; i < len(candles); i++ {
		prevClose := candles[i-1].Close
		tr := candles[i].High - candles[i].Low
		if d := math.Abs(candles[i].High - prevClose); d > tr {
			tr = d
		}
		if d := math.Abs(candles[i].Low - prevClose); d > tr {
			tr = d
		}
		sum += tr
	}

	return sum / atrPeriod, nil
}

// Result 是一次定量的完整输出。
type Result struct {
	Quantity float64
	ATR      float64
}

// klineClient 是定量所需的最小交易所能力，便于测试替换。
type klineClient interface {
	GetKlines(ctx context.Context, symbol, interval string, limit int) ([]venue.Candle, error)
}

// Sizer 在定量前从交易所拉取K线核实波动率数据充足。
type Sizer struct {
	venue      klineClient
	interval   string
	klineLimit int
	logger     *zap.Logger
}

// NewSizer 创建风险定量器。interval 为K线周期（如 "4h"），
// klineLimit 为每次拉取的K线数量。
func NewSizer(v klineClient, interval string, klineLimit int, logger *zap.Logger) *Sizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sizer{
		venue:      v,
		interval:   interval,
		klineLimit: klineLimit,
		logger:     logger,
	}
}

// QuantityForRisk 拉取K线确认波动率数据充足后，按止损距离定量。
// K线获取失败或数量不足时放弃本次定量，不做任何估算兜底。
func (s *Sizer) QuantityForRisk(ctx context.Context, symbol string, entry, stop, riskUsd float64) (Result, error) {
	candles, err := s.venue.GetKlines(ctx, symbol, s.interval, s.klineLimit)
	if err != nil {
		return Result{}, fmt.Errorf("sizing: 获取 %s K线失败: %w", symbol, err)
	}

	atr, err := AverageTrueRange(candles)
	if err != nil {
		return Result{}, err
	}

	quantity, err := RiskQuantity(entry, stop, riskUsd)
	if err != nil {
		return Result{}, err
	}

	s.logger.Debug("风险定量完成",
		zap.String("symbol", symbol),
		zap.Float64("entry", entry),
		zap.Float64("stop", stop),
		zap.Float64("risk_usd", riskUsd),
		zap.Float64("quantity", quantity),
		zap.Float64("atr", atr),
	)

	return Result{Quantity: quantity, ATR: atr}, nil
}
