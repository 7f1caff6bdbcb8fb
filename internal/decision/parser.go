package decision

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// 模型输出由两个标记段组成：结构化推理块（按币种组织的 JSON）
// 与位置固定的自由文本决策块。两段独立解析，便于各自定位失败原因。
const (
	ReasoningMarker = "CHAIN_OF_THOUGHT"
	DecisionMarker  = "TRADING_DECISIONS"
)

var (
	symbolPattern     = regexp.MustCompile(`^[A-Z0-9]{2,12}$`)
	confidencePattern = regexp.MustCompile(`^(\d+)%$`)
	quantityPattern   = regexp.MustCompile(`^QUANTITY:\s*(-?[0-9]*\.?[0-9]+)$`)
)

// reasoningEntry 为推理块中单个币种的条目。指针字段区分"缺失"与"零值"。
type reasoningEntry struct {
	Signal                *string  `json:"signal"`
	Confidence            *float64 `json:"confidence"`
	Leverage              *float64 `json:"leverage"`
	Justification         *string  `json:"justification"`
	StopLoss              *float64 `json:"stop_loss"`
	ProfitTarget          *float64 `json:"profit_target"`
	InvalidationCondition *string  `json:"invalidation_condition"`
	RiskUSD               *float64 `json:"risk_usd"`
	Quantity              *float64 `json:"quantity"`
	Coin                  *string  `json:"coin"`
}

// Validator 把模型原始文本解析并校验为 TradingDecision。
type Validator struct {
	logger *zap.Logger
}

// NewValidator 创建决策校验器。
func NewValidator(logger *zap.Logger) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{logger: logger}
}

// Parse 执行两段式解析：
//  1. 定位并反序列化推理块，逐币种做约束校验（任一违规放弃整个周期）；
//  2. 按固定位置解析决策块；
//  3. 交叉引用后合并：杠杆/止损/止盈/风险取推理块，
//     动作/信心/理由/币种取决策块。
func (v *Validator) Parse(raw string) (TradingDecision, error) {
	reasoning, err := v.parseReasoningBlock(raw)
	if err != nil {
		return TradingDecision{}, err
	}

	free, err := v.parseDecisionBlock(raw)
	if err != nil {
		return TradingDecision{}, err
	}

	decision := TradingDecision{
		Symbol:        free.symbol,
		Action:        free.action,
		Confidence:    float64(free.confidencePct) / 100.0,
		Justification: free.justification,
		Quantity:      free.quantity,
	}

	entry, ok := reasoning[free.symbol]
	if !ok {
		// 两个块由模型独立生成，允许不一致：推理块缺少该币种时用默认值继续。
		v.logger.Warn("决策块币种未出现在推理块中，使用默认值",
			zap.String("symbol", free.symbol),
		)
		return decision, nil
	}

	decision.Leverage = int(*entry.Leverage)
	decision.StopLoss = entry.StopLoss
	decision.ProfitTarget = entry.ProfitTarget
	decision.RiskUSD = entry.RiskUSD
	if entry.InvalidationCondition != nil {
		decision.InvalidationCondition = *entry.InvalidationCondition
	}

	return decision, nil
}

func (v *Validator) parseReasoningBlock(raw string) (map[string]reasoningEntry, error) {
	markerIdx := strings.Index(raw, ReasoningMarker)
	if markerIdx < 0 {
		return nil, &ParseError{Reason: "缺少推理块标记 " + ReasoningMarker}
	}

	payload, ok := extractJSONObject(raw[markerIdx+len(ReasoningMarker):])
	if !ok {
		return nil, &ParseError{Reason: "推理块标记后未找到完整 JSON 对象"}
	}

	var entries map[string]reasoningEntry
	if err := json.Unmarshal([]byte(payload), &entries); err != nil {
		return nil, &ParseError{Reason: fmt.Sprintf("推理块 JSON 无法解析: %v", err)}
	}

	for symbol, entry := range entries {
		if err := validateEntry(symbol, entry); err != nil {
			return nil, err
		}
	}

	return entries, nil
}

func validateEntry(symbol string, e reasoningEntry) error {
	if e.Signal == nil {
		return &ValidationError{Symbol: symbol, Field: "signal", Reason: "缺失"}
	}
	switch Action(strings.ToUpper(strings.TrimSpace(*e.Signal))) {
	case ActionBuy, ActionSell, ActionHold:
	default:
		return &ValidationError{Symbol: symbol, Field: "signal", Reason: "取值必须为 HOLD/BUY/SELL: " + *e.Signal}
	}

	if e.Confidence == nil {
		return &ValidationError{Symbol: symbol, Field: "confidence", Reason: "缺失"}
	}
	if *e.Confidence < 0 || *e.Confidence > 1 {
		return &ValidationError{Symbol: symbol, Field: "confidence", Reason: fmt.Sprintf("必须位于 [0,1]，当前为 %v", *e.Confidence)}
	}

	if e.Leverage == nil {
		return &ValidationError{Symbol: symbol, Field: "leverage", Reason: "缺失"}
	}
	if *e.Leverage != math.Trunc(*e.Leverage) {
		return &ValidationError{Symbol: symbol, Field: "leverage", Reason: fmt.Sprintf("必须为整数，当前为 %v", *e.Leverage)}
	}
	if *e.Leverage < 1 || *e.Leverage > 100 {
		return &ValidationError{Symbol: symbol, Field: "leverage", Reason: fmt.Sprintf("必须位于 [1,100]，当前为 %v", *e.Leverage)}
	}

	if e.Justification == nil || strings.TrimSpace(*e.Justification) == "" {
		return &ValidationError{Symbol: symbol, Field: "justification", Reason: "不能为空"}
	}

	if e.RiskUSD != nil && *e.RiskUSD <= 0 {
		return &ValidationError{Symbol: symbol, Field: "risk_usd", Reason: fmt.Sprintf("必须为正数，当前为 %v", *e.RiskUSD)}
	}

	return nil
}

type freeTextDecision struct {
	symbol        string
	action        Action
	confidencePct int
	justification string
	quantity      float64
}

// parseDecisionBlock 按固定位置解析决策块：
//
//	TRADING_DECISIONS
//	ETH
//	HOLD
//	88%
//	<理由，可为多行或为空>
//	QUANTITY: 22.66
func (v *Validator) parseDecisionBlock(raw string) (freeTextDecision, error) {
	markerIdx := strings.Index(raw, DecisionMarker)
	if markerIdx < 0 {
		return freeTextDecision{}, &ParseError{Reason: "缺少决策块标记 " + DecisionMarker}
	}

	var lines []string
	for _, line := range strings.Split(raw[markerIdx+len(DecisionMarker):], "\n") {
		line = strings.TrimSpace(line)
		if line == "" || line == "▶" {
			continue
		}
		lines = append(lines, line)
	}

	if len(lines) < 4 {
		return freeTextDecision{}, &ParseError{Reason: "决策块字段不完整"}
	}

	qtyIdx := -1
	for i, line := range lines {
		if quantityPattern.MatchString(line) {
			qtyIdx = i
			break
		}
	}
	if qtyIdx < 3 {
		return freeTextDecision{}, &ParseError{Reason: "决策块缺少 QUANTITY 行"}
	}

	symbol := strings.ToUpper(lines[0])
	if !symbolPattern.MatchString(symbol) {
		return freeTextDecision{}, &ParseError{Reason: "决策块首行不是合法币种: " + lines[0]}
	}

	var action Action
	switch Action(strings.ToUpper(lines[1])) {
	case ActionBuy:
		action = ActionBuy
	case ActionSell:
		action = ActionSell
	case ActionHold:
		action = ActionHold
	default:
		return freeTextDecision{}, &ValidationError{Field: "action", Reason: "取值必须为 HOLD/BUY/SELL: " + lines[1]}
	}

	confMatch := confidencePattern.FindStringSubmatch(lines[2])
	if confMatch == nil {
		return freeTextDecision{}, &ParseError{Reason: "决策块第三行不是百分比信心度: " + lines[2]}
	}
	confidencePct, err := strconv.Atoi(confMatch[1])
	if err != nil || confidencePct > 100 {
		return freeTextDecision{}, &ValidationError{Field: "confidence", Reason: "信心度百分比必须位于 [0,100]: " + lines[2]}
	}

	// 理由行位于信心度与 QUANTITY 之间，允许为空：
	// 自由文本块仅用于展示，不强制非空（与机器校验的推理块不同）。
	justification := strings.Join(lines[3:qtyIdx], " ")

	qtyMatch := quantityPattern.FindStringSubmatch(lines[qtyIdx])
	quantity, err := strconv.ParseFloat(qtyMatch[1], 64)
	if err != nil {
		return freeTextDecision{}, &ParseError{Reason: "QUANTITY 数值无法解析: " + lines[qtyIdx]}
	}

	return freeTextDecision{
		symbol:        symbol,
		action:        action,
		confidencePct: confidencePct,
		justification: justification,
		quantity:      quantity,
	}, nil
}

// extractJSONObject 返回 s 中第一个配平的 JSON 对象（考虑字符串与转义）。
func extractJSONObject(s string) (string, bool) {
	start := strings.Index(s, "{")
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return s[start : i+1], true
				}
			}
		}
	}

	return "", false
}
