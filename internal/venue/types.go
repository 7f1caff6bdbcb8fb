package venue

import "time"

// Side 表示下单方向。
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite 返回相反方向，用于 reduce-only 的止盈/止损腿。
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderType 表示委托类型。
type OrderType string

const (
	OrderTypeLimit  OrderType = "limit"
	OrderTypeMarket OrderType = "market"
)

// Candle 代表单根K线，按时间升序返回。
type Candle struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Position 为归一化后的持仓：正向约定为 LONG，数量恒为正。
type Position struct {
	Symbol           string // 币种标识，如 "BTC"
	Side             string // LONG | SHORT
	Quantity         float64
	EntryPrice       float64
	Leverage         float64
	UnrealizedPnl    float64
	LiquidationPrice float64
}

// AccountSnapshot 描述账户快照。每个周期整体替换，绝不原地修改。
type AccountSnapshot struct {
	TotalValue    float64
	AvailableCash float64
	Positions     []Position
	RetrievedAt   time.Time
}

// OrderAck 为交易所对一次委托的确认回执。
type OrderAck struct {
	OrderID string
	Status  string
}
