package venue

import (
	"strings"
)

// CoinFromMarket 从 ccxt 交易对标识提取币种，如 "BTC/USDC:USDC" -> "BTC"、
// "ETH-USDT" -> "ETH"。未知格式原样大写返回。
func CoinFromMarket(market string) string {
	s := strings.TrimSpace(market)
	if s == "" {
		return ""
	}
	if idx := strings.IndexAny(s, "/-"); idx > 0 {
		s = s[:idx]
	}
	if idx := strings.Index(s, ":"); idx > 0 {
		s = s[:idx]
	}
	return strings.ToUpper(s)
}

// marketIndex 维护币种到交易所交易对的双向映射，并保留配置顺序。
type marketIndex struct {
	coins   []string
	markets map[string]string
}

func newMarketIndex(markets []string) marketIndex {
	idx := marketIndex{
		coins:   make([]string, 0, len(markets)),
		markets: make(map[string]string, len(markets)),
	}
	for _, market := range markets {
		coin := CoinFromMarket(market)
		if coin == "" {
			continue
		}
		if _, exists := idx.markets[coin]; exists {
			continue
		}
		idx.coins = append(idx.coins, coin)
		idx.markets[coin] = market
	}
	return idx
}

// Market 返回币种对应的交易对标识。
func (m marketIndex) Market(coin string) (string, bool) {
	market, ok := m.markets[strings.ToUpper(strings.TrimSpace(coin))]
	return market, ok
}

// Coins 返回配置顺序下的币种列表。
func (m marketIndex) Coins() []string {
	out := make([]string, len(m.coins))
	copy(out, m.coins)
	return out
}
