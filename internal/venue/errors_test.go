package venue

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	ccxt "github.com/ccxt/ccxt/go/v4"
)

func TestClassifyErrorAuth(t *testing.T) {
	raw := &ccxt.Error{Type: ccxt.AuthenticationErrorErrType, Message: "invalid signature"}
	err := classifyError("hyperliquid", "GetAccountInfo", raw)

	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("期望 AuthError, 实际 %T: %v", err, err)
	}
	if authErr.Venue != "hyperliquid" {
		t.Errorf("Venue = %q", authErr.Venue)
	}
	if !errors.Is(err, raw) {
		t.Error("分类后应仍可解包出原始错误")
	}
}

func TestClassifyErrorTransport(t *testing.T) {
	for _, raw := range []*ccxt.Error{
		{Type: ccxt.NetworkErrorErrType, Message: "boom"},
		{Type: ccxt.RequestTimeoutErrType, Message: "boom"},
		{Type: ccxt.RateLimitExceededErrType, Message: "boom"},
		{Type: ccxt.OnMaintenanceErrType, Message: "boom"},
	} {
		err := classifyError("bingx", "GetKlines", raw)

		var transportErr *TransportError
		if !errors.As(err, &transportErr) {
			t.Errorf("%v: 期望 TransportError, 实际 %T", raw.Type, err)
			continue
		}
		if transportErr.Venue != "bingx" || transportErr.Op != "GetKlines" {
			t.Errorf("%v: Venue/Op = %q/%q", raw.Type, transportErr.Venue, transportErr.Op)
		}
	}
}

func TestClassifyErrorPassthrough(t *testing.T) {
	// 上下文取消与不可归类的业务错误都原样返回。
	if err := classifyError("bingx", "PlaceOrder", context.Canceled); !errors.Is(err, context.Canceled) {
		t.Errorf("context.Canceled 被改写为 %v", err)
	}

	raw := &ccxt.Error{Type: ccxt.InvalidOrderErrType, Message: "size too small"}
	if err := classifyError("bingx", "PlaceOrder", raw); err != error(raw) {
		t.Errorf("业务错误被改写为 %v", err)
	}

	if err := classifyError("bingx", "PlaceOrder", nil); err != nil {
		t.Errorf("nil 错误应返回 nil, 实际 %v", err)
	}
}

func TestClassifyErrorWrapped(t *testing.T) {
	// 分类基于 errors.As，被包装过的 ccxt 错误同样能识别。
	raw := fmt.Errorf("请求失败: %w", &ccxt.Error{Type: ccxt.ExchangeNotAvailableErrType, Message: "503"})
	var transportErr *TransportError
	if !errors.As(classifyError("hyperliquid", "GetAllMids", raw), &transportErr) {
		t.Fatal("包装后的网络类错误应分类为 TransportError")
	}
}

func TestClassifyErrorNet(t *testing.T) {
	raw := &net.DNSError{Err: "no such host", Name: "api.bingx.com", IsNotFound: true}
	var transportErr *TransportError
	if !errors.As(classifyError("bingx", "GetPositions", raw), &transportErr) {
		t.Fatal("net.Error 应分类为 TransportError")
	}
}

func TestIsUnsupported(t *testing.T) {
	if !isUnsupported(&ccxt.Error{Type: ccxt.NotSupportedErrType, Message: "fetchOpenInterest"}) {
		t.Error("NotSupported 应判定为能力缺失")
	}
	if isUnsupported(&ccxt.Error{Type: ccxt.NetworkErrorErrType, Message: "boom"}) {
		t.Error("网络错误不应判定为能力缺失")
	}
	if isUnsupported(errors.New("其他错误")) {
		t.Error("普通错误不应判定为能力缺失")
	}
}
