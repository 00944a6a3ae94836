// Package apierr centralizes the error taxonomy shared by the pool,
// poolmanager, anchor, and server packages, per spec §7. Every internal
// error that should reach a client as a stable code is wrapped as an *Error
// here; anything else is rendered as an opaque internal error.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind enumerates the error taxonomy of spec §7.
type Kind string

const (
	InvalidInput          Kind = "INVALID_INPUT"
	InsufficientLiquidity Kind = "INSUFFICIENT_LIQUIDITY"
	InsufficientShares    Kind = "INSUFFICIENT_SHARES"
	SlippageExceeded      Kind = "SLIPPAGE_EXCEEDED"
	LedgerTimeout         Kind = "LEDGER_TIMEOUT"
	LedgerRejected        Kind = "LEDGER_REJECTED"
	Unauthorized          Kind = "UNAUTHORIZED"
	PoolNotFound          Kind = "POOL_NOT_FOUND"
	PoolAlreadyExists     Kind = "POOL_ALREADY_EXISTS"
	IndexStale            Kind = "INDEX_STALE"
	Internal              Kind = "INTERNAL"
)

var httpStatus = map[Kind]int{
	InvalidInput:          http.StatusBadRequest,
	InsufficientLiquidity: http.StatusUnprocessableEntity,
	InsufficientShares:    http.StatusUnprocessableEntity,
	SlippageExceeded:      http.StatusUnprocessableEntity,
	LedgerTimeout:         http.StatusGatewayTimeout,
	LedgerRejected:        http.StatusBadGateway,
	Unauthorized:          http.StatusForbidden,
	PoolNotFound:          http.StatusNotFound,
	PoolAlreadyExists:     http.StatusConflict,
	IndexStale:            http.StatusOK,
	Internal:              http.StatusInternalServerError,
}

// Error is the wrapped error type every component in this module returns for
// client-visible failures. Kind selects the stable code and HTTP status; Err
// is the underlying cause, kept for logging but never rendered to the client.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New wraps err under Kind. A nil err still produces a valid *Error carrying
// just the Kind, useful when the caller has no underlying cause to report.
func New(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// Newf is New with a formatted message as the underlying cause.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// HTTPStatus returns the status code to render for err, defaulting to 500
// for errors that do not carry a *Error wrapper.
func HTTPStatus(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		if status, ok := httpStatus[apiErr.Kind]; ok {
			return status
		}
	}
	return http.StatusInternalServerError
}

// Code returns the stable client-facing code for err.
func Code(err error) string {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return string(apiErr.Kind)
	}
	return string(Internal)
}

// KindOf extracts the Kind of err, defaulting to Internal.
func KindOf(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return Internal
}
