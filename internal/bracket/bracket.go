// Package bracket 管理三腿委托：主单加上一对 reduce-only 的
// 止盈/止损腿。两条保护腿互相独立，任何一条失败都不影响另一条，
// 部分成立的组合以 PARTIALLY_PLACED 状态留在登记表中供人工处理。
package bracket

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"alpha-arena/internal/venue"
)

// Status 表示一组括号委托的生命周期状态。
type Status string

const (
	StatusPlacing         Status = "PLACING"
	StatusActive          Status = "ACTIVE"
	StatusPartiallyPlaced Status = "PARTIALLY_PLACED"
	StatusCancelled       Status = "CANCELLED"
	StatusFailed          Status = "FAILED"
)

// BracketOrder 记录一组括号委托的所有腿与状态。
type BracketOrder struct {
	Key      string
	Symbol   string
	Side     venue.Side
	Quantity float64

	EntryOrderID      string
	TakeProfitOrderID string
	StopLossOrderID   string

	TakeProfit *float64
	StopLoss   *float64
	Leverage   int

	Status    Status
	CreatedAt time.Time
}

// orderClient 是括号委托所需的最小交易所能力。
type orderClient interface {
	PlaceOrder(ctx context.Context, symbol string, side venue.Side, quantity, limitPrice float64, orderType venue.OrderType, reduceOnly bool) (*venue.OrderAck, error)
	CancelOrder(ctx context.Context, orderID, symbol string) (*venue.OrderAck, error)
}

// Manager 维护当前存活的括号委托登记表。
type Manager struct {
	venue  orderClient
	logger *zap.Logger
	now    func() time.Time

	mu       sync.Mutex
	brackets map[string]*BracketOrder
}

// NewManager 创建括号委托管理器。
func NewManager(v orderClient, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		venue:    v,
		logger:   logger,
		now:      time.Now,
		brackets: make(map[string]*BracketOrder),
	}
}

// PlaceBracket 依次提交主单、止盈腿、止损腿。止盈/止损价为 nil 时
// 省略对应腿。主单失败立即放弃，不提交任何保护腿；保护腿各自
// 独立提交，部分失败的组合记为 PARTIALLY_PLACED 而非回滚。
func (m *Manager) PlaceBracket(ctx context.Context, symbol string, side venue.Side, quantity, limitPrice float64, takeProfit, stopLoss *float64, leverage int, orderType venue.OrderType) (*BracketOrder, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("bracket: 数量必须为正数: %v", quantity)
	}

	ack, err := m.venue.PlaceOrder(ctx, symbol, side, quantity, limitPrice, orderType, false)
	if err != nil {
		return nil, fmt.Errorf("bracket: %s 主单提交失败: %w", symbol, err)
	}
	if ack == nil {
		return nil, fmt.Errorf("bracket: %s 主单回执为空", symbol)
	}

	order := &BracketOrder{
		Key:          fmt.Sprintf("%s_%d", symbol, m.now().Unix()),
		Symbol:       symbol,
		Side:         side,
		Quantity:     quantity,
		EntryOrderID: ack.OrderID,
		TakeProfit:   takeProfit,
		StopLoss:     stopLoss,
		Leverage:     leverage,
		Status:       StatusPlacing,
		CreatedAt:    m.now(),
	}

	closeSide := side.Opposite()
	legFailed := false

	if takeProfit != nil {
		tpAck, err := m.venue.PlaceOrder(ctx, symbol, closeSide, quantity, *takeProfit, venue.OrderTypeLimit, true)
		if err != nil || tpAck == nil {
			legFailed = true
			m.logger.Warn("止盈腿提交失败",
				zap.String("key", order.Key),
				zap.Float64("take_profit", *takeProfit),
				zap.Error(err),
			)
		} else {
			order.TakeProfitOrderID = tpAck.OrderID
		}
	}

	if stopLoss != nil {
		slAck, err := m.venue.PlaceOrder(ctx, symbol, closeSide, quantity, *stopLoss, venue.OrderTypeLimit, true)
		if err != nil || slAck == nil {
			legFailed = true
			m.logger.Warn("止损腿提交失败",
				zap.String("key", order.Key),
				zap.Float64("stop_loss", *stopLoss),
				zap.Error(err),
			)
		} else {
			order.StopLossOrderID = slAck.OrderID
		}
	}

	if legFailed {
		order.Status = StatusPartiallyPlaced
	} else {
		order.Status = StatusActive
	}
	// 所有腿处理完毕后才对外登记，保证并发读永远看不到写入中的组合。
	snapshot := *order
	m.register(order)

	m.logger.Info("括号委托已建立",
		zap.String("key", order.Key),
		zap.String("symbol", symbol),
		zap.String("side", string(side)),
		zap.Float64("quantity", quantity),
		zap.String("status", string(snapshot.Status)),
	)

	return &snapshot, nil
}

// CancelBracket 撤销一组括号委托的所有腿。未知 key 视为无事可做。
// 每条腿的撤销互相独立、尽力而为，无论结果如何都会从登记表移除。
func (m *Manager) CancelBracket(ctx context.Context, key string) error {
	m.mu.Lock()
	order, ok := m.brackets[key]
	if ok {
		delete(m.brackets, key)
	}
	m.mu.Unlock()
	if !ok {
		return nil
	}

	var failures int
	for _, leg := range []struct {
		name    string
		orderID string
	}{
		{"entry", order.EntryOrderID},
		{"take_profit", order.TakeProfitOrderID},
		{"stop_loss", order.StopLossOrderID},
	} {
		if leg.orderID == "" {
			continue
		}
		if _, err := m.venue.CancelOrder(ctx, leg.orderID, order.Symbol); err != nil {
			failures++
			m.logger.Warn("撤单失败",
				zap.String("key", key),
				zap.String("leg", leg.name),
				zap.String("order_id", leg.orderID),
				zap.Error(err),
			)
		}
	}

	if failures > 0 {
		return fmt.Errorf("bracket: %s 有 %d 条腿撤销失败", key, failures)
	}
	return nil
}

// ListActive 返回登记表中所有括号委托的副本。
func (m *Manager) ListActive() []BracketOrder {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]BracketOrder, 0, len(m.brackets))
	for _, order := range m.brackets {
		out = append(out, *order)
	}
	return out
}

// Get 返回指定 key 的括号委托副本。
func (m *Manager) Get(key string) (BracketOrder, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	order, ok := m.brackets[key]
	if !ok {
		return BracketOrder{}, false
	}
	return *order, true
}

func (m *Manager) register(order *BracketOrder) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.brackets[order.Key] = order
}
