package decision

import "fmt"

// Action 表示模型给出的交易动作。
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// TradingDecision 为校验后的交易决策。每个周期从模型输出构造一次，
// 解析完成后不可变，执行尝试结束即丢弃。
//
// 不变式：Action 为 HOLD 时无论其他字段如何都不会下单。
type TradingDecision struct {
	Symbol                string
	Action                Action
	Confidence            float64 // [0,1]
	Justification         string
	Leverage              int // 0 表示推理块未给出
	StopLoss              *float64
	ProfitTarget          *float64
	InvalidationCondition string
	RiskUSD               *float64
	// Quantity 为自由文本块给出的原始数量，仅在无法按风险计算仓位时作为回退。
	Quantity float64
}

// ParseError 表示模型输出不符合两段式文本格式，整个周期被放弃。
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("decision: 解析模型输出失败: %s", e.Reason)
}

// ValidationError 表示推理块的某个字段违反约束，携带出错字段便于定位。
type ValidationError struct {
	Symbol string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Symbol != "" {
		return fmt.Sprintf("decision: 字段校验失败 [%s.%s]: %s", e.Symbol, e.Field, e.Reason)
	}
	return fmt.Sprintf("decision: 字段校验失败 [%s]: %s", e.Field, e.Reason)
}
