package core

// errors.go – stable error taxonomy for the routing engine. Codes are wire
// stable: callers and the outer API layer match on the string code, never on
// message text. Retryability is a property of the code.
// -----------------------------------------------------------------------------

import (
	"errors"
	"fmt"
)

// ErrorCode is a stable machine-readable failure class.
type ErrorCode string

const (
	// Caller errors – non-retryable.
	ErrInvalidRequest   ErrorCode = "invalid_request"
	ErrInvalidAddress   ErrorCode = "invalid_address"
	ErrInvalidAmount    ErrorCode = "invalid_amount"
	ErrUnsupportedChain ErrorCode = "unsupported_chain"
	ErrUnsupportedToken ErrorCode = "unsupported_token"

	// Routing failures.
	ErrNoRouteFound          ErrorCode = "no_route_found"
	ErrInsufficientLiquidity ErrorCode = "insufficient_liquidity"
	ErrPriceImpactTooHigh    ErrorCode = "price_impact_too_high"

	// Transport failures – retryable.
	ErrRPC          ErrorCode = "rpc_error"
	ErrRPCTimeout   ErrorCode = "rpc_timeout"
	ErrNetworkError ErrorCode = "network_error"

	// Downstream failures – not retryable without a state change.
	ErrContract              ErrorCode = "contract_error"
	ErrExecutionReverted     ErrorCode = "execution_reverted"
	ErrInsufficientBalance   ErrorCode = "insufficient_balance"
	ErrInsufficientAllowance ErrorCode = "insufficient_allowance"

	// Quote lifecycle – informational to the core, owned by the outer layer.
	ErrQuoteNotFound    ErrorCode = "quote_not_found"
	ErrQuoteExpired     ErrorCode = "quote_expired"
	ErrQuoteMismatch    ErrorCode = "quote_mismatch"
	ErrSimulationFailed ErrorCode = "simulation_failed"

	// Programmer errors.
	ErrMissingConfig  ErrorCode = "missing_config"
	ErrInvalidConfig  ErrorCode = "invalid_config"
	ErrInternal       ErrorCode = "internal_error"
	ErrNotImplemented ErrorCode = "not_implemented"
)

// Retryable reports whether a caller may retry the same request unchanged.
// no_route_found is retryable because a block advance may surface liquidity.
func (c ErrorCode) Retryable() bool {
	switch c {
	case ErrNoRouteFound, ErrRPC, ErrRPCTimeout, ErrNetworkError:
		return true
	}
	return false
}

// RouterError pairs a stable code with human context and an optional cause.
type RouterError struct {
	Code ErrorCode
	Msg  string
	Err  error
}

func (e *RouterError) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Msg, e.Err)
	case e.Msg != "":
		return fmt.Sprintf("%s: %s", e.Code, e.Msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return string(e.Code)
}

func (e *RouterError) Unwrap() error { return e.Err }

// Errorf builds a RouterError with a formatted message.
func Errorf(code ErrorCode, format string, args ...interface{}) error {
	return &RouterError{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// WrapErr attaches a code and context to an underlying error. Returns nil
// for a nil cause so call sites can wrap unconditionally.
func WrapErr(code ErrorCode, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &RouterError{Code: code, Msg: msg, Err: err}
}

// CodeOf extracts the ErrorCode from err, walking the wrap chain. Errors
// that never passed through this taxonomy map to internal_error.
func CodeOf(err error) ErrorCode {
	var re *RouterError
	if errors.As(err, &re) {
		return re.Code
	}
	return ErrInternal
}

// IsCode reports whether err carries the given code anywhere in its chain.
func IsCode(err error, code ErrorCode) bool {
	var re *RouterError
	for e := err; e != nil; {
		if errors.As(e, &re) {
			if re.Code == code {
				return true
			}
			e = re.Err
			continue
		}
		break
	}
	return false
}
