package venue

import (
	"context"
	"sync"
	"time"

	ccxt "github.com/ccxt/ccxt/go/v4"
	"go.uber.org/zap"

	"alpha-arena/internal/config"
)

// BingX 适配器，基于 ccxt 封装 BingX USDT 本位永续。
// 请求签名（HMAC-SHA256 查询串）由 ccxt 处理。
type BingX struct {
	exchange *ccxt.Bingx
	index    marketIndex
	logger   *zap.Logger

	marketsMu     sync.Mutex
	marketsLoaded bool
}

var _ Adapter = (*BingX)(nil)

// NewBingX 构造 BingX 适配器。markets 为 ccxt 交易对标识，如 "BTC/USDT:USDT"。
func NewBingX(cfg config.BingXConfig, markets []string, logger *zap.Logger) *BingX {
	if logger == nil {
		logger = zap.NewNop()
	}

	userConfig := map[string]interface{}{
		"enableRateLimit": true,
		"options": map[string]interface{}{
			"defaultType": "swap",
		},
	}
	if cfg.APIKey != "" {
		userConfig["apiKey"] = cfg.APIKey
	}
	if cfg.APISecret != "" {
		userConfig["secret"] = cfg.APISecret
	}

	ex := ccxt.NewBingx(userConfig)
	if cfg.UseSandbox {
		ex.SetSandboxMode(true)
	}

	return &BingX{
		exchange: ex,
		index:    newMarketIndex(markets),
		logger:   logger,
	}
}

// Name 返回交易所标识。
func (b *BingX) Name() string {
	return config.VenueBingX
}

// GetAccountInfo 返回账户总值与可用保证金。字段缺失时保持零值。
func (b *BingX) GetAccountInfo(ctx context.Context) (AccountSnapshot, error) {
	if err := b.ready(ctx); err != nil {
		return AccountSnapshot{}, err
	}

	balances, err := b.exchange.FetchBalance()
	if err != nil {
		return AccountSnapshot{}, classifyError(b.Name(), "fetch_balance", err)
	}

	snapshot := AccountSnapshot{RetrievedAt: time.Now().UTC()}

	if balances.Total != nil {
		if total, ok := balances.Total["USDT"]; ok && total != nil {
			snapshot.TotalValue = *total
		}
	}
	if balances.Free != nil {
		if free, ok := balances.Free["USDT"]; ok && free != nil {
			snapshot.AvailableCash = *free
		}
	}
	if balances.Info != nil {
		// BingX 把权益细节放在 data.balance 下，equity 比钱包余额更接近账户总值。
		if data, ok := balances.Info["data"].(map[string]interface{}); ok {
			if bal, ok := data["balance"].(map[string]interface{}); ok {
				if v := parseNumeric(bal["equity"]); v > 0 {
					snapshot.TotalValue = v
				}
				if v := parseNumeric(bal["availableMargin"]); v > 0 {
					snapshot.AvailableCash = v
				}
			}
		}
	}

	return snapshot, nil
}

// GetPositions 返回全部非零持仓，"BTC-USDT" 之类的命名归一化为 "BTC"。
func (b *BingX) GetPositions(ctx context.Context) ([]Position, error) {
	if err := b.ready(ctx); err != nil {
		return nil, err
	}

	raw, err := b.exchange.FetchPositions()
	if err != nil {
		return nil, classifyError(b.Name(), "fetch_positions", err)
	}

	positions := make([]Position, 0, len(raw))
	for _, rawPos := range raw {
		coin := CoinFromMarket(derefString(rawPos.Symbol))
		pos, ok := convertPosition(rawPos, coin)
		if !ok {
			continue
		}
		positions = append(positions, pos)
	}

	return positions, nil
}

// GetAllMids 逐个交易对取中间价，单个失败只跳过。
func (b *BingX) GetAllMids(ctx context.Context) (map[string]float64, error) {
	if err := b.ready(ctx); err != nil {
		return nil, err
	}

	mids := make(map[string]float64, len(b.index.coins))
	for _, coin := range b.index.Coins() {
		market, _ := b.index.Market(coin)
		ticker, err := b.exchange.FetchTicker(market)
		if err != nil {
			b.logger.Debug("获取中间价失败，跳过该币种",
				zap.String("coin", coin),
				zap.Error(err),
			)
			continue
		}
		if mid, ok := midFromTicker(ticker); ok {
			mids[coin] = mid
		}
	}

	return mids, nil
}

// PlaceOrder 创建委托。
func (b *BingX) PlaceOrder(ctx context.Context, symbol string, side Side, quantity, limitPrice float64, orderType OrderType, reduceOnly bool) (*OrderAck, error) {
	if err := b.ready(ctx); err != nil {
		return nil, err
	}

	market, ok := b.index.Market(symbol)
	if !ok {
		return nil, ErrUnknownSymbol
	}

	params := map[string]interface{}{}
	if reduceOnly {
		params["reduceOnly"] = true
	}

	ccxtSide := "buy"
	if side == SideSell {
		ccxtSide = "sell"
	}

	var order ccxt.Order
	var err error
	if orderType == OrderTypeMarket {
		var opts []ccxt.CreateMarketOrderOptions
		if len(params) > 0 {
			opts = append(opts, ccxt.WithCreateMarketOrderParams(params))
		}
		order, err = b.exchange.CreateMarketOrder(market, ccxtSide, quantity, opts...)
	} else {
		var opts []ccxt.CreateLimitOrderOptions
		if len(params) > 0 {
			opts = append(opts, ccxt.WithCreateLimitOrderParams(params))
		}
		order, err = b.exchange.CreateLimitOrder(market, ccxtSide, quantity, limitPrice, opts...)
	}
	if err != nil {
		return nil, classifyError(b.Name(), "place_order", err)
	}

	ack := orderAck(order)
	b.logger.Info("委托已提交",
		zap.String("venue", b.Name()),
		zap.String("coin", symbol),
		zap.String("side", string(side)),
		zap.Float64("quantity", quantity),
		zap.Float64("limit_price", limitPrice),
		zap.Bool("reduce_only", reduceOnly),
		zap.String("order_id", ack.OrderID),
	)
	return ack, nil
}

// CancelOrder 撤销委托；BingX 撤单需要同时提供交易对。
func (b *BingX) CancelOrder(ctx context.Context, orderID, symbol string) (*OrderAck, error) {
	if err := b.ready(ctx); err != nil {
		return nil, err
	}

	market, ok := b.index.Market(symbol)
	if !ok {
		return nil, ErrUnknownSymbol
	}

	order, err := b.exchange.CancelOrder(orderID, ccxt.WithCancelOrderSymbol(market))
	if err != nil {
		return nil, classifyError(b.Name(), "cancel_order", err)
	}

	return orderAck(order), nil
}

// GetKlines 返回按时间升序的K线。
func (b *BingX) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]Candle, error) {
	if err := b.ready(ctx); err != nil {
		return nil, err
	}

	market, ok := b.index.Market(symbol)
	if !ok {
		return nil, ErrUnknownSymbol
	}
	if limit <= 0 {
		limit = 1
	}

	raw, err := b.exchange.FetchOHLCV(
		market,
		ccxt.WithFetchOHLCVTimeframe(interval),
		ccxt.WithFetchOHLCVLimit(int64(limit)),
	)
	if err != nil {
		return nil, classifyError(b.Name(), "fetch_ohlcv", err)
	}

	return convertOHLCV(raw), nil
}

// GetFundingRate 返回当前资金费率。
func (b *BingX) GetFundingRate(ctx context.Context, symbol string) (float64, bool, error) {
	if err := b.ready(ctx); err != nil {
		return 0, false, err
	}

	market, ok := b.index.Market(symbol)
	if !ok {
		return 0, false, nil
	}

	rate, err := b.exchange.FetchFundingRate(market)
	if err != nil {
		if isUnsupported(err) {
			return 0, false, nil
		}
		return 0, false, classifyError(b.Name(), "fetch_funding_rate", err)
	}
	if rate.FundingRate == nil {
		return 0, false, nil
	}
	return *rate.FundingRate, true, nil
}

// GetOpenInterest 返回当前未平仓量；BingX 不提供时返回 ok=false。
func (b *BingX) GetOpenInterest(ctx context.Context, symbol string) (float64, bool, error) {
	if err := b.ready(ctx); err != nil {
		return 0, false, err
	}

	market, ok := b.index.Market(symbol)
	if !ok {
		return 0, false, nil
	}

	oi, err := b.exchange.FetchOpenInterest(market)
	if err != nil {
		if isUnsupported(err) {
			return 0, false, nil
		}
		return 0, false, classifyError(b.Name(), "fetch_open_interest", err)
	}
	if oi.OpenInterestAmount != nil {
		return *oi.OpenInterestAmount, true, nil
	}
	if oi.OpenInterestValue != nil {
		return *oi.OpenInterestValue, true, nil
	}
	return 0, false, nil
}

func (b *BingX) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if b.marketsLoaded {
		return nil
	}

	b.marketsMu.Lock()
	defer b.marketsMu.Unlock()

	if b.marketsLoaded {
		return nil
	}

	if _, err := b.exchange.LoadMarkets(); err != nil {
		return classifyError(b.Name(), "load_markets", err)
	}

	b.marketsLoaded = true
	b.logger.Info("已完成市场元数据加载",
		zap.String("venue", b.Name()),
		zap.Strings("coins", b.index.Coins()),
	)
	return nil
}
