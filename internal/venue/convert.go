package venue

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	ccxt "github.com/ccxt/ccxt/go/v4"
)

func convertOHLCV(raw []ccxt.OHLCV) []Candle {
	candles := make([]Candle, 0, len(raw))
	for _, item := range raw {
		candles = append(candles, Candle{
			Timestamp: time.UnixMilli(item.Timestamp).UTC(),
			Open:      item.Open,
			High:      item.High,
			Low:       item.Low,
			Close:     item.Close,
			Volume:    item.Volume,
		})
	}
	return candles
}

// convertPosition 将 ccxt 持仓翻译为归一化 Position；零仓位返回 ok=false。
func convertPosition(raw ccxt.Position, coin string) (Position, bool) {
	size := derefFloat(raw.Contracts)
	if size == 0 {
		return Position{}, false
	}

	side := strings.ToUpper(strings.TrimSpace(derefString(raw.Side)))
	if side == "" {
		// 约定：数量为正即 LONG。
		side = "LONG"
		if size < 0 {
			side = "SHORT"
		}
	}
	if size < 0 {
		size = -size
	}

	return Position{
		Symbol:           coin,
		Side:             side,
		Quantity:         size,
		EntryPrice:       derefFloat(raw.EntryPrice),
		Leverage:         derefFloat(raw.Leverage),
		UnrealizedPnl:    derefFloat(raw.UnrealizedPnl),
		LiquidationPrice: derefFloat(raw.LiquidationPrice),
	}, true
}

func midFromTicker(ticker ccxt.Ticker) (float64, bool) {
	bid := derefFloat(ticker.Bid)
	ask := derefFloat(ticker.Ask)
	if bid > 0 && ask > 0 {
		return (bid + ask) / 2, true
	}
	if last := derefFloat(ticker.Last); last > 0 {
		return last, true
	}
	return 0, false
}

func orderAck(order ccxt.Order) *OrderAck {
	return &OrderAck{
		OrderID: derefString(order.Id),
		Status:  derefString(order.Status),
	}
}

func derefFloat(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

// parseNumeric 宽容地把 info 载荷里的任意数值表示转成 float64，缺失即 0。
func parseNumeric(value interface{}) float64 {
	switch v := value.(type) {
	case nil:
		return 0
	case float64:
		return v
	case *float64:
		if v != nil {
			return *v
		}
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f
		}
	case fmt.Stringer:
		s := strings.TrimSpace(v.String())
		if s == "" {
			return 0
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return 0
}
