package escrow

import "errors"

// Escrow errors. Every failed operation leaves the registry unchanged.
var (
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrInvalidSecret    = errors.New("invalid secret")
	ErrWindowExpired    = errors.New("withdraw window expired, use cancel")
	ErrTooEarly         = errors.New("rescue time not reached")
	ErrNotFound         = errors.New("escrow not found")
	ErrAlreadyClosed    = errors.New("escrow already closed")
	ErrTakerPending     = errors.New("taker not assigned")
	ErrTakerAssigned    = errors.New("taker already assigned")
	ErrPaymentFailed    = errors.New("payment failed")
	ErrFundingFailed    = errors.New("funding transfer failed")
)
