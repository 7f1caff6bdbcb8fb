package venue

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"alpha-arena/internal/config"
)

// New 根据名称构造对应的交易所适配器。
func New(name string, venues config.VenuesConfig, markets []string, logger *zap.Logger) (Adapter, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case config.VenueHyperliquid:
		return NewHyperliquid(venues.Hyperliquid, markets, logger), nil
	case config.VenueBingX:
		return NewBingX(venues.BingX, markets, logger), nil
	default:
		return nil, fmt.Errorf("venue: 不支持的交易所 %q", name)
	}
}
