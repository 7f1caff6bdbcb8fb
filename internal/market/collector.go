// Package market 为每个交易标的采集行情特征快照：
// 日内短周期指标序列、长周期趋势统计，以及资金费率与持仓量。
// 快照随后渲染进模型提示词，是模型看到市场的唯一窗口。
package market

import (
	"context"
	"errors"
	"sync"
	"time"

	talib "github.com/markcheno/go-talib"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"alpha-arena/internal/venue"
)

const (
	defaultIntradayInterval = "3m"
	defaultIntradayLimit    = 60
	defaultTrendInterval    = "4h"
	defaultTrendLimit       = 60

	// seriesTail 为提示词里展示的指标序列长度。
	seriesTail = 10
)

var errEmptyKlines = errors.New("market: K线数据为空")

// IntradaySeries 是短周期的指标序列，仅保留末尾 seriesTail 个值。
type IntradaySeries struct {
	Prices []float64 `json:"prices"`
	EMA20  []float64 `json:"ema20"`
	MACD   []float64 `json:"macd"`
	RSI7   []float64 `json:"rsi7"`
	RSI14  []float64 `json:"rsi14"`
}

// TrendStats 是长周期的趋势统计。
type TrendStats struct {
	EMA20         float64 `json:"ema20"`
	EMA50         float64 `json:"ema50"`
	ATR3          float64 `json:"atr3"`
	ATR14         float64 `json:"atr14"`
	VolumeCurrent float64 `json:"volume_current"`
	VolumeAverage float64 `json:"volume_average"`
}

// AssetSnapshot 是单个标的的完整行情特征。
type AssetSnapshot struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`

	FundingRate     float64 `json:"funding_rate"`
	HasFundingRate  bool    `json:"has_funding_rate"`
	OpenInterest    float64 `json:"open_interest"`
	HasOpenInterest bool    `json:"has_open_interest"`

	Intraday IntradaySeries `json:"intraday"`
	Trend    TrendStats     `json:"trend"`
}

// Snapshot 汇总一次采集周期内所有标的的特征。
type Snapshot struct {
	Assets      []AssetSnapshot `json:"assets"`
	GeneratedAt time.Time       `json:"generated_at"`
}

// marketClient 是采集所需的交易所能力子集。
type marketClient interface {
	GetKlines(ctx context.Context, symbol, interval string, limit int) ([]venue.Candle, error)
	GetFundingRate(ctx context.Context, symbol string) (float64, bool, error)
	GetOpenInterest(ctx context.Context, symbol string) (float64, bool, error)
}

// Collector 并发采集多个标的的行情特征。
type Collector struct {
	venue  marketClient
	logger *zap.Logger

	intradayInterval string
	intradayLimit    int
	trendInterval    string
	trendLimit       int
}

// NewCollector 创建行情特征采集器。
func NewCollector(v marketClient, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collector{
		venue:            v,
		logger:           logger,
		intradayInterval: defaultIntradayInterval,
		intradayLimit:    defaultIntradayLimit,
		trendInterval:    defaultTrendInterval,
		trendLimit:       defaultTrendLimit,
	}
}

// Collect 并发采集所有标的。单个标的失败或数据为空时跳过该标的
// 并记录原因，不影响其他标的；全部失败时返回空快照。
func (c *Collector) Collect(ctx context.Context, symbols []string) (Snapshot, error) {
	snapshot := Snapshot{GeneratedAt: time.Now().UTC()}

	var mu sync.Mutex
	group, groupCtx := errgroup.WithContext(ctx)
	results := make([]*AssetSnapshot, len(symbols))

	for i, symbol := range symbols {
		group.Go(func() error {
			asset, err := c.collectAsset(groupCtx, symbol)
			if err != nil {
				c.logger.Warn("标的行情采集失败，跳过",
					zap.String("symbol", symbol),
					zap.Error(err),
				)
				return nil
			}
			mu.Lock()
			results[i] = asset
			mu.Unlock()
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return Snapshot{}, err
	}

	for _, asset := range results {
		if asset != nil {
			snapshot.Assets = append(snapshot.Assets, *asset)
		}
	}
	return snapshot, nil
}

func (c *Collector) collectAsset(ctx context.Context, symbol string) (*AssetSnapshot, error) {
	intraday, err := c.venue.GetKlines(ctx, symbol, c.intradayInterval, c.intradayLimit)
	if err != nil {
		return nil, err
	}
	trend, err := c.venue.GetKlines(ctx, symbol, c.trendInterval, c.trendLimit)
	if err != nil {
		return nil, err
	}
	if len(intraday) == 0 || len(trend) == 0 {
		return nil, errEmptyKlines
	}

	asset := &AssetSnapshot{
		Symbol:   symbol,
		Price:    intraday[len(intraday)-1].Close,
		Intraday: computeIntraday(NewSeries(intraday)),
		Trend:    computeTrend(NewSeries(trend)),
	}

	// 资金费率与持仓量属于可选数据：交易所不支持时静默省略。
	if rate, ok, err := c.venue.GetFundingRate(ctx, symbol); err != nil {
		c.logger.Debug("获取资金费率失败", zap.String("symbol", symbol), zap.Error(err))
	} else if ok {
		asset.FundingRate = rate
		asset.HasFundingRate = true
	}

	if oi, ok, err := c.venue.GetOpenInterest(ctx, symbol); err != nil {
		c.logger.Debug("获取持仓量失败", zap.String("symbol", symbol), zap.Error(err))
	} else if ok {
		asset.OpenInterest = oi
		asset.HasOpenInterest = true
	}

	return asset, nil
}

func computeIntraday(series Series) IntradaySeries {
	closes := series.Close
	macd, _, _ := talib.Macd(closes, 12, 26, 9)

	return IntradaySeries{
		Prices: Tail(closes, seriesTail),
		EMA20:  Tail(talib.Ema(closes, 20), seriesTail),
		MACD:   Tail(macd, seriesTail),
		RSI7:   Tail(talib.Rsi(closes, 7), seriesTail),
		RSI14:  Tail(talib.Rsi(closes, 14), seriesTail),
	}
}

func computeTrend(series Series) TrendStats {
	closes := series.Close
	volumes := series.Volume

	return TrendStats{
		EMA20:         Last(talib.Ema(closes, 20)),
		EMA50:         Last(talib.Ema(closes, 50)),
		ATR3:          Last(talib.Atr(series.High, series.Low, closes, 3)),
		ATR14:         Last(talib.Atr(series.High, series.Low, closes, 14)),
		VolumeCurrent: Last(volumes),
		VolumeAverage: average(Tail(volumes, 20)),
	}
}
