package rpc

import (
	"errors"
	"fmt"

	"github.com/Klingon-tech/crosslock/internal/auction"
	"github.com/Klingon-tech/crosslock/internal/chain"
	"github.com/Klingon-tech/crosslock/internal/escrow"
	"github.com/Klingon-tech/crosslock/internal/storage"
	"github.com/Klingon-tech/crosslock/internal/swap"
)

// Standard error codes.
const (
	ParseError     = -32700
	InvalidRequest = -32600
	MethodNotFound = -32601
	InvalidParams  = -32602
	InternalError  = -32603
)

// Domain error codes.
const (
	CodeInvalidParameter = -32001
	CodeUnauthorized     = -32002
	CodeInvalidSecret    = -32003
	CodeWindowExpired    = -32004
	CodeTooEarly         = -32005
	CodeNotFound         = -32006
	CodeAlreadyClosed    = -32007
)

// paramsError marks a request whose params could not be decoded.
type paramsError struct {
	err error
}

func (e *paramsError) Error() string { return "invalid params: " + e.err.Error() }
func (e *paramsError) Unwrap() error { return e.err }

func invalidParams(format string, args ...interface{}) error {
	return &paramsError{err: fmt.Errorf(format, args...)}
}

// errorCode maps an error to its JSON-RPC code.
func errorCode(err error) int {
	var pe *paramsError
	switch {
	case errors.As(err, &pe):
		return InvalidParams

	case errors.Is(err, escrow.ErrInvalidSecret):
		return CodeInvalidSecret
	case errors.Is(err, escrow.ErrWindowExpired):
		return CodeWindowExpired
	case errors.Is(err, escrow.ErrTooEarly):
		return CodeTooEarly

	case errors.Is(err, escrow.ErrUnauthorized),
		errors.Is(err, auction.ErrUnauthorized),
		errors.Is(err, auction.ErrNotWhitelisted),
		errors.Is(err, chain.ErrNoSigner):
		return CodeUnauthorized

	case errors.Is(err, escrow.ErrNotFound),
		errors.Is(err, auction.ErrNotFound),
		errors.Is(err, swap.ErrSwapNotFound),
		errors.Is(err, storage.ErrSwapNotFound),
		errors.Is(err, chain.ErrUnknownChain):
		return CodeNotFound

	case errors.Is(err, escrow.ErrAlreadyClosed),
		errors.Is(err, auction.ErrAlreadySold):
		return CodeAlreadyClosed

	case errors.Is(err, escrow.ErrInvalidParameter),
		errors.Is(err, escrow.ErrTakerPending),
		errors.Is(err, escrow.ErrTakerAssigned),
		errors.Is(err, escrow.ErrFundingFailed),
		errors.Is(err, auction.ErrInvalidParameter),
		errors.Is(err, chain.ErrAmountOverflow),
		errors.Is(err, swap.ErrSwapExists),
		errors.Is(err, swap.ErrInvalidState),
		errors.Is(err, swap.ErrLegMismatch),
		errors.Is(err, swap.ErrUnsafeTimelocks),
		errors.Is(err, swap.ErrLegsNotFunded),
		errors.Is(err, swap.ErrSameChain):
		return CodeInvalidParameter
	}
	return InternalError
}
