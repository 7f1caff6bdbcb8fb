package venue

import (
	"context"
	"sync"
	"time"

	ccxt "github.com/ccxt/ccxt/go/v4"
	"go.uber.org/zap"

	"alpha-arena/internal/config"
)

// Hyperliquid 为参考适配器实现，基于 ccxt 封装 Hyperliquid 永续合约。
// 下单走 EIP-191 钱包签名，均由 ccxt 处理；本类型只负责语义翻译。
type Hyperliquid struct {
	exchange *ccxt.Hyperliquid
	index    marketIndex
	logger   *zap.Logger

	marketsMu     sync.Mutex
	marketsLoaded bool
}

var _ Adapter = (*Hyperliquid)(nil)

// NewHyperliquid 构造 Hyperliquid 适配器。markets 为 ccxt 交易对标识，
// 如 "BTC/USDC:USDC"。
func NewHyperliquid(cfg config.HyperliquidConfig, markets []string, logger *zap.Logger) *Hyperliquid {
	if logger == nil {
		logger = zap.NewNop()
	}

	userConfig := map[string]interface{}{
		"enableRateLimit": true,
	}
	if cfg.Wallet != "" {
		userConfig["walletAddress"] = cfg.Wallet
	}
	if cfg.PrivateKey != "" {
		userConfig["privateKey"] = cfg.PrivateKey
	}

	ex := ccxt.NewHyperliquid(userConfig)
	if cfg.UseSandbox {
		ex.SetSandboxMode(true)
	}

	return &Hyperliquid{
		exchange: ex,
		index:    newMarketIndex(markets),
		logger:   logger,
	}
}

// Name 返回交易所标识。
func (h *Hyperliquid) Name() string {
	return config.VenueHyperliquid
}

// GetAccountInfo 返回账户总值与可提取余额。字段缺失时保持零值，不视为错误。
func (h *Hyperliquid) GetAccountInfo(ctx context.Context) (AccountSnapshot, error) {
	if err := h.ready(ctx); err != nil {
		return AccountSnapshot{}, err
	}

	balances, err := h.exchange.FetchBalance()
	if err != nil {
		return AccountSnapshot{}, classifyError(h.Name(), "fetch_balance", err)
	}

	snapshot := AccountSnapshot{RetrievedAt: time.Now().UTC()}

	if balances.Total != nil {
		for _, code := range []string{"USDC", "USD", "USDT"} {
			if total, ok := balances.Total[code]; ok && total != nil && *total > 0 {
				snapshot.TotalValue = *total
				break
			}
		}
	}
	if balances.Free != nil {
		for _, code := range []string{"USDC", "USD", "USDT"} {
			if free, ok := balances.Free[code]; ok && free != nil && *free > 0 {
				snapshot.AvailableCash = *free
				break
			}
		}
	}
	if balances.Info != nil {
		if summary, ok := balances.Info["marginSummary"].(map[string]interface{}); ok {
			if v := parseNumeric(summary["accountValue"]); v > 0 {
				snapshot.TotalValue = v
			}
		}
		if v := parseNumeric(balances.Info["withdrawable"]); v > 0 {
			snapshot.AvailableCash = v
		}
	}

	return snapshot, nil
}

// GetPositions 返回全部非零持仓，szi 符号约定翻译为 LONG/SHORT。
func (h *Hyperliquid) GetPositions(ctx context.Context) ([]Position, error) {
	if err := h.ready(ctx); err != nil {
		return nil, err
	}

	raw, err := h.exchange.FetchPositions()
	if err != nil {
		return nil, classifyError(h.Name(), "fetch_positions", err)
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

// GetAllMids 逐个交易对取盘口中间价，单个失败只记录并跳过。
func (h *Hyperliquid) GetAllMids(ctx context.Context) (map[string]float64, error) {
	if err := h.ready(ctx); err != nil {
		return nil, err
	}

	mids := make(map[string]float64, len(h.index.coins))
	for _, coin := range h.index.Coins() {
		market, _ := h.index.Market(coin)
		ticker, err := h.exchange.FetchTicker(market)
		if err != nil {
			h.logger.Debug("获取中间价失败，跳过该币种",
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

// PlaceOrder 创建委托。限价单始终 GTC；reduceOnly 用于止盈止损腿。
func (h *Hyperliquid) PlaceOrder(ctx context.Context, symbol string, side Side, quantity, limitPrice float64, orderType OrderType, reduceOnly bool) (*OrderAck, error) {
	if err := h.ready(ctx); err != nil {
		return nil, err
	}

	market, ok := h.index.Market(symbol)
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
		order, err = h.exchange.CreateMarketOrder(market, ccxtSide, quantity, opts...)
	} else {
		var opts []ccxt.CreateLimitOrderOptions
		if len(params) > 0 {
			opts = append(opts, ccxt.WithCreateLimitOrderParams(params))
		}
		order, err = h.exchange.CreateLimitOrder(market, ccxtSide, quantity, limitPrice, opts...)
	}
	if err != nil {
		return nil, classifyError(h.Name(), "place_order", err)
	}

	ack := orderAck(order)
	h.logger.Info("委托已提交",
		zap.String("venue", h.Name()),
		zap.String("coin", symbol),
		zap.String("side", string(side)),
		zap.Float64("quantity", quantity),
		zap.Float64("limit_price", limitPrice),
		zap.Bool("reduce_only", reduceOnly),
		zap.String("order_id", ack.OrderID),
	)
	return ack, nil
}

// CancelOrder 撤销委托。
func (h *Hyperliquid) CancelOrder(ctx context.Context, orderID, symbol string) (*OrderAck, error) {
	if err := h.ready(ctx); err != nil {
		return nil, err
	}

	market, ok := h.index.Market(symbol)
	if !ok {
		return nil, ErrUnknownSymbol
	}

	order, err := h.exchange.CancelOrder(orderID, ccxt.WithCancelOrderSymbol(market))
	if err != nil {
		return nil, classifyError(h.Name(), "cancel_order", err)
	}

	return orderAck(order), nil
}

// GetKlines 返回按时间升序的K线。
func (h *Hyperliquid) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]Candle, error) {
	if err := h.ready(ctx); err != nil {
		return nil, err
	}

	market, ok := h.index.Market(symbol)
	if !ok {
		return nil, ErrUnknownSymbol
	}
	if limit <= 0 {
		limit = 1
	}

	raw, err := h.exchange.FetchOHLCV(
		market,
		ccxt.WithFetchOHLCVTimeframe(interval),
		ccxt.WithFetchOHLCVLimit(int64(limit)),
	)
	if err != nil {
		return nil, classifyError(h.Name(), "fetch_ohlcv", err)
	}

	return convertOHLCV(raw), nil
}

// GetFundingRate 返回当前资金费率。
func (h *Hyperliquid) GetFundingRate(ctx context.Context, symbol string) (float64, bool, error) {
	if err := h.ready(ctx); err != nil {
		return 0, false, err
	}

	market, ok := h.index.Market(symbol)
	if !ok {
		return 0, false, nil
	}

	rate, err := h.exchange.FetchFundingRate(market)
	if err != nil {
		if isUnsupported(err) {
			return 0, false, nil
		}
		return 0, false, classifyError(h.Name(), "fetch_funding_rate", err)
	}
	if rate.FundingRate == nil {
		return 0, false, nil
	}
	return *rate.FundingRate, true, nil
}

// GetOpenInterest 返回当前未平仓量。
func (h *Hyperliquid) GetOpenInterest(ctx context.Context, symbol string) (float64, bool, error) {
	if err := h.ready(ctx); err != nil {
		return 0, false, err
	}

	market, ok := h.index.Market(symbol)
	if !ok {
		return 0, false, nil
	}

	oi, err := h.exchange.FetchOpenInterest(market)
	if err != nil {
		if isUnsupported(err) {
			return 0, false, nil
		}
		return 0, false, classifyError(h.Name(), "fetch_open_interest", err)
	}
	if oi.OpenInterestAmount != nil {
		return *oi.OpenInterestAmount, true, nil
	}
	if oi.OpenInterestValue != nil {
		return *oi.OpenInterestValue, true, nil
	}
	return 0, false, nil
}

// ready 确保市场元数据已加载，并尊重调用方取消。
func (h *Hyperliquid) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if h.marketsLoaded {
		return nil
	}

	h.marketsMu.Lock()
	defer h.marketsMu.Unlock()

	if h.marketsLoaded {
		return nil
	}

	if _, err := h.exchange.LoadMarkets(); err != nil {
		return classifyError(h.Name(), "load_markets", err)
	}

	h.marketsLoaded = true
	h.logger.Info("已完成市场元数据加载",
		zap.String("venue", h.Name()),
		zap.Strings("coins", h.index.Coins()),
	)
	return nil
}
