package venue

import "context"

// Adapter 是交易所能力边界：所有调用方只依赖该接口，绝不依赖具体交易所类型。
// 各实现负责协议翻译，包括交易对命名（"BTC-USDT" ↔ "BTC"）、签名方案与错误格式。
//
// 约定：
//   - "预期中的缺失"（可选字段缺失、交易所不支持的能力）不返回错误，返回零值或 ok=false；
//   - 连接与鉴权失败返回 *TransportError / *AuthError；
//   - 任何调用都不在内部重试，重试策略由调用方决定。
type Adapter interface {
	// Name 返回交易所标识。
	Name() string
	// GetAccountInfo 返回账户总值与可用资金（不含持仓明细）。
	GetAccountInfo(ctx context.Context) (AccountSnapshot, error)
	// GetPositions 返回全部非零持仓，方向已按符号约定归一化。
	GetPositions(ctx context.Context) ([]Position, error)
	// GetAllMids 尽力返回各币种的参考中间价；取不到的币种直接缺席，不算错误。
	GetAllMids(ctx context.Context) (map[string]float64, error)
	// PlaceOrder 在交易所创建委托；返回 nil 回执表示失败，调用方必须检查。
	PlaceOrder(ctx context.Context, symbol string, side Side, quantity, limitPrice float64, orderType OrderType, reduceOnly bool) (*OrderAck, error)
	// CancelOrder 撤销指定委托。
	CancelOrder(ctx context.Context, orderID, symbol string) (*OrderAck, error)
	// GetKlines 返回按时间升序排列的K线；空序列表示"数据不足"，调用方不得当作零值数据。
	GetKlines(ctx context.Context, symbol, interval string, limit int) ([]Candle, error)
	// GetFundingRate 返回当前资金费率；交易所未提供时 ok=false，绝不伪造。
	GetFundingRate(ctx context.Context, symbol string) (float64, bool, error)
	// GetOpenInterest 返回当前未平仓量；交易所未提供时 ok=false。
	GetOpenInterest(ctx context.Context, symbol string) (float64, bool, error)
}
