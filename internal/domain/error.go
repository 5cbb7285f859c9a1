package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound        = errors.New("entity not found")
	ErrAlreadyExists   = errors.New("entity already exists")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrStorage         = errors.New("storage failure")

	// Payment authorization errors
	ErrInvalidTariff   = errors.New("invalid tariff")
	ErrBadSignature    = errors.New("bad callback signature")
	ErrUnknownInvoice  = errors.New("unknown invoice")
	ErrAmountMismatch  = errors.New("callback amount does not match invoice")
	ErrMalformedNotice = errors.New("malformed callback notification")
	ErrInvalidCode     = errors.New("invalid promo code")
	ErrMethodDisabled  = errors.New("payment method disabled")

	// Conversation errors
	ErrNoActiveEntitlement = errors.New("no active entitlement")
	ErrEmptyMessage        = errors.New("empty message")
)
