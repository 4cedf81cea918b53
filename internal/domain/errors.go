// Package domain holds the error taxonomy shared by the order and cart
// packages. Specific errors wrap one of these sentinels so callers can
// classify them with errors.Is.
package domain

import "errors"

var (
	ErrValidation         = errors.New("validation failed")
	ErrNotFound           = errors.New("not found")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrPaymentGateway     = errors.New("payment gateway error")
	ErrPaymentNotApproved = errors.New("payment not approved")
)
