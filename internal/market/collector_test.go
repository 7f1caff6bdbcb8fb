package market

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"alpha-arena/internal/venue"
)

type stubMarket struct {
	klines     map[string][]venue.Candle
	klinesErr  map[string]error
	funding    map[string]float64
	openInt    map[string]float64
	fundingErr error
}

func (s *stubMarket) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]venue.Candle, error) {
	if err, ok := s.klinesErr[symbol]; ok {
		return nil, err
	}
	return s.klines[symbol], nil
}

func (s *stubMarket) GetFundingRate(ctx context.Context, symbol string) (float64, bool, error) {
	if s.fundingErr != nil {
		return 0, false, s.fundingErr
	}
	rate, ok := s.funding[symbol]
	return rate, ok, nil
}

func (s *stubMarket) GetOpenInterest(ctx context.Context, symbol string) (float64, bool, error) {
	oi, ok := s.openInt[symbol]
	return oi, ok, nil
}

func candles(n int) []venue.Candle {
	out := make([]venue.Candle, n)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range out {
		price := 100.0 + math.Sin(float64(i)/5)*10
		out[i] = venue.Candle{
			Timestamp: base.Add(time.Duration(i) * 3 * time.Minute),
			Open:      price,
			High:      price + 2,
			Low:       price - 2,
			Close:     price + 1,
			Volume:    1000 + float64(i),
		}
	}
	return out
}

func TestCollect(t *testing.T) {
	stub := &stubMarket{
		klines:  map[string][]venue.Candle{"ETH": candles(60), "BTC": candles(60)},
		funding: map[string]float64{"ETH": 0.0001},
		openInt: map[string]float64{"ETH": 123456},
	}
	c := NewCollector(stub, nil)

	snap, err := c.Collect(context.Background(), []string{"ETH", "BTC"})
	if err != nil {
		t.Fatalf("Collect 失败: %v", err)
	}
	if len(snap.Assets) != 2 {
		t.Fatalf("标的数 = %d, 期望 2", len(snap.Assets))
	}

	// 顺序与传入一致。
	eth := snap.Assets[0]
	if eth.Symbol != "ETH" {
		t.Fatalf("首个标的 = %s, 期望 ETH", eth.Symbol)
	}
	if !eth.HasFundingRate || eth.FundingRate != 0.0001 {
		t.Errorf("资金费率 = %v/%v", eth.FundingRate, eth.HasFundingRate)
	}
	if !eth.HasOpenInterest || eth.OpenInterest != 123456 {
		t.Errorf("持仓量 = %v/%v", eth.OpenInterest, eth.HasOpenInterest)
	}
	if len(eth.Intraday.Prices) != 10 || len(eth.Intraday.RSI14) != 10 {
		t.Errorf("指标序列长度 = %d/%d, 期望 10", len(eth.Intraday.Prices), len(eth.Intraday.RSI14))
	}
	if eth.Price <= 0 {
		t.Errorf("价格 = %v", eth.Price)
	}
	if math.IsNaN(eth.Trend.EMA50) || eth.Trend.ATR14 <= 0 {
		t.Errorf("趋势统计异常: %+v", eth.Trend)
	}

	btc := snap.Assets[1]
	if btc.HasFundingRate || btc.HasOpenInterest {
		t.Errorf("BTC 未配置资金费率/持仓量: %+v", btc)
	}
}

func TestCollectSkipsFailedSymbols(t *testing.T) {
	stub := &stubMarket{
		klines:    map[string][]venue.Candle{"ETH": candles(60)},
		klinesErr: map[string]error{"SOL": errors.New("连接超时")},
	}
	c := NewCollector(stub, nil)

	// SOL 拉取失败，BTC 无数据，都不应影响 ETH。
	snap, err := c.Collect(context.Background(), []string{"SOL", "ETH", "BTC"})
	if err != nil {
		t.Fatalf("Collect 失败: %v", err)
	}
	if len(snap.Assets) != 1 || snap.Assets[0].Symbol != "ETH" {
		t.Errorf("应只保留 ETH: %+v", snap.Assets)
	}
}

func TestCollectFundingFailureTolerated(t *testing.T) {
	stub := &stubMarket{
		klines:     map[string][]venue.Candle{"ETH": candles(60)},
		fundingErr: errors.New("接口限流"),
	}
	c := NewCollector(stub, nil)

	snap, err := c.Collect(context.Background(), []string{"ETH"})
	if err != nil {
		t.Fatalf("Collect 失败: %v", err)
	}
	if len(snap.Assets) != 1 {
		t.Fatalf("标的数 = %d, 期望 1", len(snap.Assets))
	}
	if snap.Assets[0].HasFundingRate {
		t.Error("资金费率失败时应省略而非置零")
	}
}

func TestTail(t *testing.T) {
	vals := []float64{1, 2, 3, 4, 5}
	got := Tail(vals, 3)
	if len(got) != 3 || got[0] != 3 || got[2] != 5 {
		t.Errorf("Tail = %v", got)
	}
	if got := Tail(vals, 10); len(got) != 5 {
		t.Errorf("Tail 超长 = %v", got)
	}
	if got := Tail(nil, 3); got != nil {
		t.Errorf("Tail(nil) = %v", got)
	}
}
