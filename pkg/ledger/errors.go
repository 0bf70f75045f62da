package ledger

import "errors"

// Every failure is a rejected operation, never a corrupted-state condition:
// an operation that returns one of these has made no observable change to
// balances, orders, or the event log.
var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrOrderNotFound       = errors.New("order not found")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrAlreadyFilled       = errors.New("order already filled")
	ErrAlreadyCancelled    = errors.New("order already cancelled")
	ErrTransferFailed      = errors.New("token transfer failed")
	ErrInvalidArgument     = errors.New("invalid argument")
)
