package payment

import "errors"

// Module errors.
var (
	ErrTransactionNotFound = errors.New("payment transaction not found")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrUnsupportedMethod   = errors.New("unsupported payment method")
)
