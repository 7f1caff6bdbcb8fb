package executor

import (
	"context"
	"errors"
	"math"
	"testing"

	"alpha-arena/internal/bracket"
	"alpha-arena/internal/decision"
	"alpha-arena/internal/sizing"
	"alpha-arena/internal/venue"
)

type mockVenue struct {
	mids     map[string]float64
	midsErr  error
	midCalls int
}

func (m *mockVenue) GetAllMids(ctx context.Context) (map[string]float64, error) {
	m.midCalls++
	return m.mids, m.midsErr
}

type mockSizer struct {
	result sizing.Result
	err    error
	calls  int
}

func (m *mockSizer) QuantityForRisk(ctx context.Context, symbol string, entry, stop, riskUsd float64) (sizing.Result, error) {
	m.calls++
	return m.result, m.err
}

type mockBrackets struct {
	order *bracket.BracketOrder
	err   error
	calls []bracketCall
}

type bracketCall struct {
	symbol     string
	side       venue.Side
	quantity   float64
	limitPrice float64
	takeProfit *float64
	stopLoss   *float64
	leverage   int
}

func (m *mockBrackets) PlaceBracket(ctx context.Context, symbol string, side venue.Side, quantity, limitPrice float64, takeProfit, stopLoss *float64, leverage int, orderType venue.OrderType) (*bracket.BracketOrder, error) {
	m.calls = append(m.calls, bracketCall{symbol, side, quantity, limitPrice, takeProfit, stopLoss, leverage})
	return m.order, m.err
}

func fptr(v float64) *float64 { return &v }

func buyDecision() decision.TradingDecision {
	return decision.TradingDecision{
		Symbol:       "ETH",
		Action:       decision.ActionBuy,
		Confidence:   0.88,
		Leverage:     25,
		StopLoss:     fptr(4120),
		ProfitTarget: fptr(4280),
		RiskUSD:      fptr(1560),
	}
}

func TestExecuteHoldNeverTouchesVenue(t *testing.T) {
	mids := &mockVenue{mids: map[string]float64{"ETH": 4200}}
	sizer := &mockSizer{}
	brackets := &mockBrackets{}
	o := NewOrchestrator(mids, sizer, brackets, nil)

	d := buyDecision()
	d.Action = decision.ActionHold

	outcome, err := o.Execute(context.Background(), d)
	if err != nil {
		t.Fatalf("HOLD 执行失败: %v", err)
	}
	if outcome.Executed {
		t.Error("HOLD 不应标记为已执行")
	}
	if mids.midCalls != 0 || sizer.calls != 0 || len(brackets.calls) != 0 {
		t.Errorf("HOLD 不应触碰任何下游: mids=%d sizer=%d brackets=%d",
			mids.midCalls, sizer.calls, len(brackets.calls))
	}
}

func TestExecuteBuy(t *testing.T) {
	mids := &mockVenue{mids: map[string]float64{"ETH": 4200}}
	sizer := &mockSizer{result: sizing.Result{Quantity: 19.5, ATR: 42}}
	brackets := &mockBrackets{order: &bracket.BracketOrder{Key: "ETH_1", Status: bracket.StatusActive}}
	o := NewOrchestrator(mids, sizer, brackets, nil)

	outcome, err := o.Execute(context.Background(), buyDecision())
	if err != nil {
		t.Fatalf("Execute 失败: %v", err)
	}
	if !outcome.Executed {
		t.Error("应标记为已执行")
	}
	if len(brackets.calls) != 1 {
		t.Fatalf("括号委托次数 = %d, 期望 1", len(brackets.calls))
	}

	call := brackets.calls[0]
	if call.side != venue.SideBuy {
		t.Errorf("side = %s, 期望 BUY", call.side)
	}
	if call.quantity != 19.5 {
		t.Errorf("quantity = %v, 期望 19.5（来自风险定量）", call.quantity)
	}
	// 买单限价上浮 0.1%。
	if want := 4200 * 1.001; math.Abs(call.limitPrice-want) > 1e-9 {
		t.Errorf("limitPrice = %v, 期望 %v", call.limitPrice, want)
	}
	if call.takeProfit == nil || *call.takeProfit != 4280 || call.stopLoss == nil || *call.stopLoss != 4120 {
		t.Errorf("tp/sl = %v/%v, 期望 4280/4120", call.takeProfit, call.stopLoss)
	}
	if call.leverage != 25 {
		t.Errorf("leverage = %d, 期望 25", call.leverage)
	}
}

func TestExecuteSellLimitOffset(t *testing.T) {
	mids := &mockVenue{mids: map[string]float64{"ETH": 4200}}
	sizer := &mockSizer{result: sizing.Result{Quantity: 5}}
	brackets := &mockBrackets{order: &bracket.BracketOrder{Key: "ETH_2", Status: bracket.StatusActive}}
	o := NewOrchestrator(mids, sizer, brackets, nil, WithLimitOffset(0.002))

	d := buyDecision()
	d.Action = decision.ActionSell
	d.StopLoss = fptr(4300)
	d.ProfitTarget = fptr(4000)

	_, err := o.Execute(context.Background(), d)
	if err != nil {
		t.Fatalf("Execute 失败: %v", err)
	}
	call := brackets.calls[0]
	if call.side != venue.SideSell {
		t.Errorf("side = %s, 期望 SELL", call.side)
	}
	if want := 4200 * 0.998; math.Abs(call.limitPrice-want) > 1e-9 {
		t.Errorf("limitPrice = %v, 期望 %v", call.limitPrice, want)
	}
}

func TestExecuteAbortCases(t *testing.T) {
	cases := []struct {
		name     string
		venue    *mockVenue
		sizer    *mockSizer
		decision func() decision.TradingDecision
	}{
		{
			"中间价缺失",
			&mockVenue{mids: map[string]float64{"BTC": 65000}},
			&mockSizer{result: sizing.Result{Quantity: 1}},
			buyDecision,
		},
		{
			"取价失败",
			&mockVenue{midsErr: errors.New("连接超时")},
			&mockSizer{result: sizing.Result{Quantity: 1}},
			buyDecision,
		},
		{
			"定量失败",
			&mockVenue{mids: map[string]float64{"ETH": 4200}},
			&mockSizer{err: errors.New("K线不足")},
			buyDecision,
		},
		{
			"数量非正数",
			&mockVenue{mids: map[string]float64{"ETH": 4200}},
			&mockSizer{result: sizing.Result{}},
			buyDecision,
		},
		{
			"缺少止损价且无后备数量",
			&mockVenue{mids: map[string]float64{"ETH": 4200}},
			&mockSizer{result: sizing.Result{Quantity: 1}},
			func() decision.TradingDecision {
				d := buyDecision()
				d.StopLoss = nil
				return d
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			brackets := &mockBrackets{}
			o := NewOrchestrator(tc.venue, tc.sizer, brackets, nil)
			outcome, err := o.Execute(context.Background(), tc.decision())
			if err == nil {
				t.Fatal("期望执行失败")
			}
			if outcome.Executed {
				t.Error("失败时不应标记为已执行")
			}
			if len(brackets.calls) != 0 {
				t.Errorf("失败时不应提交括号委托: %d", len(brackets.calls))
			}
		})
	}
}

func TestExecuteFallbackQuantity(t *testing.T) {
	mids := &mockVenue{mids: map[string]float64{"ETH": 4200}}
	sizer := &mockSizer{}
	brackets := &mockBrackets{order: &bracket.BracketOrder{Key: "ETH_3", Status: bracket.StatusActive}}
	o := NewOrchestrator(mids, sizer, brackets, nil)

	// 推理块未给出风险预算时，退回模型文本中的 QUANTITY。
	d := buyDecision()
	d.RiskUSD = nil
	d.Quantity = 3.3

	_, err := o.Execute(context.Background(), d)
	if err != nil {
		t.Fatalf("Execute 失败: %v", err)
	}
	if sizer.calls != 0 {
		t.Errorf("无风险预算时不应调用定量器: %d", sizer.calls)
	}
	if brackets.calls[0].quantity != 3.3 {
		t.Errorf("quantity = %v, 期望 3.3", brackets.calls[0].quantity)
	}
}

func TestExecuteRiskCap(t *testing.T) {
	mids := &mockVenue{mids: map[string]float64{"ETH": 4200}}
	sizer := &recordingSizer{result: sizing.Result{Quantity: 2}}
	brackets := &mockBrackets{order: &bracket.BracketOrder{Key: "ETH_4", Status: bracket.StatusActive}}
	o := NewOrchestrator(mids, sizer, brackets, nil, WithRiskCap(500))

	d := buyDecision()
	d.RiskUSD = fptr(1560)

	if _, err := o.Execute(context.Background(), d); err != nil {
		t.Fatalf("Execute 失败: %v", err)
	}
	if sizer.lastRisk != 500 {
		t.Errorf("风险预算 = %v, 期望截断到 500", sizer.lastRisk)
	}
}

type recordingSizer struct {
	result   sizing.Result
	lastRisk float64
}

func (r *recordingSizer) QuantityForRisk(ctx context.Context, symbol string, entry, stop, riskUsd float64) (sizing.Result, error) {
	r.lastRisk = riskUsd
	return r.result, nil
}

func TestExecuteDryRun(t *testing.T) {
	mids := &mockVenue{mids: map[string]float64{"ETH": 4200}}
	sizer := &mockSizer{result: sizing.Result{Quantity: 2}}
	brackets := &mockBrackets{}
	o := NewOrchestrator(mids, sizer, brackets, nil, WithDryRun(true))

	outcome, err := o.Execute(context.Background(), buyDecision())
	if err != nil {
		t.Fatalf("Execute 失败: %v", err)
	}
	if !outcome.Executed || !outcome.DryRun {
		t.Errorf("模拟执行应标记 Executed 与 DryRun: %+v", outcome)
	}
	if len(brackets.calls) != 0 {
		t.Errorf("模拟模式不应下单: %d", len(brackets.calls))
	}
}
