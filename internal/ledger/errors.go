package ledger

import "errors"

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrOverflow            = errors.New("amount overflow")
	ErrPropertyNotFound    = errors.New("property not found")
	ErrNotIssuer           = errors.New("sender is not the issuer")
	ErrNotManaged          = errors.New("property is not managed")
	ErrNothingToSend       = errors.New("no balances to send")
	ErrConservation        = errors.New("token conservation violated")
)
