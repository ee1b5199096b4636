package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorCodeRetryable(t *testing.T) {
	retryable := []ErrorCode{ErrNoRouteFound, ErrRPC, ErrRPCTimeout, ErrNetworkError}
	for _, c := range retryable {
		if !c.Retryable() {
			t.Fatalf("%s should be retryable", c)
		}
	}
	terminal := []ErrorCode{ErrInvalidRequest, ErrInvalidAddress, ErrUnsupportedChain,
		ErrInsufficientLiquidity, ErrExecutionReverted, ErrInvalidConfig, ErrInternal}
	for _, c := range terminal {
		if c.Retryable() {
			t.Fatalf("%s should not be retryable", c)
		}
	}
}

func TestIsCodeWalksChain(t *testing.T) {
	base := Errorf(ErrRPCTimeout, "probe timed out")
	wrapped := WrapErr(ErrNoRouteFound, base, "discovery failed")
	outer := fmt.Errorf("request aborted: %w", wrapped)

	if !IsCode(outer, ErrNoRouteFound) {
		t.Fatalf("outer code not found in chain")
	}
	if !IsCode(outer, ErrRPCTimeout) {
		t.Fatalf("inner code not found in chain")
	}
	if IsCode(outer, ErrInvalidAmount) {
		t.Fatalf("unrelated code matched")
	}
}

func TestCodeOf(t *testing.T) {
	if got := CodeOf(Errorf(ErrUnsupportedChain, "nope")); got != ErrUnsupportedChain {
		t.Fatalf("CodeOf=%s want %s", got, ErrUnsupportedChain)
	}
	if got := CodeOf(errors.New("plain")); got != ErrInternal {
		t.Fatalf("plain errors must map to internal_error, got %s", got)
	}
}

func TestWrapErrNilPassthrough(t *testing.T) {
	if WrapErr(ErrRPC, nil, "context") != nil {
		t.Fatalf("wrapping nil must stay nil")
	}
}

func TestRouterErrorMessage(t *testing.T) {
	err := WrapErr(ErrRPC, errors.New("boom"), "eth_call")
	want := "rpc_error: eth_call: boom"
	if err.Error() != want {
		t.Fatalf("message %q want %q", err.Error(), want)
	}
}
