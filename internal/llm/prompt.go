package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"text/template"

	"alpha-arena/internal/market"
	"alpha-arena/internal/venue"
)

const decisionTemplate = `
你是一个专业的加密货币永续合约交易员。你管理一个独立账户，目标是在严格风险控制下最大化账户净值。每个决策周期你会收到最新的市场数据与账户状态，请基于它们给出交易决策。

=== MARKET DATA ===
{{ .MarketJSON }}

=== ACCOUNT STATE ===
- 账户总净值: {{ printf "%.2f" .Account.TotalValue }} USD
- 可用保证金: {{ printf "%.2f" .Account.AvailableCash }} USD
- 当前持仓:
{{- if .Account.Positions }}
{{- range .Account.Positions }}
  - {{ .Symbol }} {{ .Side }} 数量 {{ printf "%.4f" .Quantity }} 入场价 {{ printf "%.2f" .EntryPrice }} 杠杆 {{ printf "%.0f" .Leverage }}x 浮动盈亏 {{ printf "%.2f" .UnrealizedPnl }} 强平价 {{ printf "%.2f" .LiquidationPrice }}
{{- end }}
{{- else }}
  - 无
{{- end }}

制定决策时请遵循：
1. 先分析各标的的趋势、动量与波动率，确认是否存在高胜率方向；
2. 没有把握时输出 HOLD，保守永远优于冒进；
3. 开仓必须同时给出止损价、止盈价与单笔风险金额（risk_usd）；
4. 杠杆为 1 到 100 的整数，按波动率反向调节。

输出必须包含以下两个部分，顺序与格式严格遵守：

第一部分，以单独一行 CHAIN_OF_THOUGHT 开头，随后是一个 JSON 对象，以币种为键：
{
  "ETH": {
    "signal": "BUY|SELL|HOLD",
    "confidence": 0.0-1.0,
    "leverage": 1-100 的整数,
    "justification": "支撑结论的关键理由，不能为空",
    "stop_loss": 止损价格数值,
    "profit_target": 止盈价格数值,
    "risk_usd": 单笔风险金额数值,
    "invalidation_condition": "使该决策失效的市场条件"
  }
}

第二部分，以单独一行 TRADING_DECISIONS 开头，随后按行依次给出：
币种
BUY|SELL|HOLD
信心度百分比（如 88%）
一句话理由
QUANTITY: 数量

除这两个部分外不要输出任何其他内容。
`

var tmpl = template.Must(template.New("decision").Parse(decisionTemplate))

type promptContext struct {
	Account    venue.AccountSnapshot
	MarketJSON string
}

// BuildPrompt 将行情快照与账户状态渲染成提示词。
func BuildPrompt(snapshot market.Snapshot, account venue.AccountSnapshot) (string, error) {
	marketJSON, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return "", fmt.Errorf("序列化行情快照失败: %w", err)
	}

	var buf bytes.Buffer
	if err = tmpl.Execute(&buf, promptContext{
		Account:    account,
		MarketJSON: string(marketJSON),
	}); err != nil {
		return "", fmt.Errorf("渲染提示词失败: %w", err)
	}

	return buf.String(), nil
}
