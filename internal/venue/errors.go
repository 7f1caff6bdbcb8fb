package venue

import (
	"context"
	"errors"
	"fmt"
	"net"

	ccxt "github.com/ccxt/ccxt/go/v4"
)

// TransportError 表示到达交易所的网络/HTTP 层失败，调用方可自行决定重试。
type TransportError struct {
	Venue string
	Op    string
	Err   error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("venue %s: %s: 网络请求失败: %v", e.Venue, e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// AuthError 表示凭证被交易所拒绝，对该适配器实例而言是致命错误。
type AuthError struct {
	Venue string
	Err   error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("venue %s: 鉴权失败: %v", e.Venue, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// ErrUnknownSymbol 表示该适配器未配置对应币种的交易对。
var ErrUnknownSymbol = errors.New("venue: 未配置的币种")

// classifyError 将底层 ccxt 错误翻译为本包的错误分类；不可识别的错误原样返回。
func classifyError(venueName, op string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var ccxtErr *ccxt.Error
	if errors.As(err, &ccxtErr) {
		switch ccxtErr.Type {
		case ccxt.AuthenticationErrorErrType,
			ccxt.PermissionDeniedErrType:
			return &AuthError{Venue: venueName, Err: err}
		case ccxt.NetworkErrorErrType,
			ccxt.RequestTimeoutErrType,
			ccxt.ExchangeNotAvailableErrType,
			ccxt.RateLimitExceededErrType,
			ccxt.DDoSProtectionErrType,
			ccxt.BadResponseErrType,
			ccxt.NullResponseErrType,
			ccxt.OnMaintenanceErrType:
			return &TransportError{Venue: venueName, Op: op, Err: err}
		default:
			return err
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return &TransportError{Venue: venueName, Op: op, Err: err}
	}

	return err
}

// isUnsupported 判断错误是否为"交易所不支持该能力"，此类缺失不算错误。
func isUnsupported(err error) bool {
	var ccxtErr *ccxt.Error
	if errors.As(err, &ccxtErr) {
		return ccxtErr.Type == ccxt.NotSupportedErrType
	}
	return false
}
