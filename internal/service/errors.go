package service

import "errors"

var (
	ErrValidation        = errors.New("validation failed")
	ErrMappingNotFound   = errors.New("order mapping not found")
	ErrCredentialInvalid = errors.New("callback credentials invalid")
	ErrOrderAlreadyPaid  = errors.New("order already paid")
	ErrAmountMismatch    = errors.New("amount differs from the initiated order")
	ErrStoreFailed       = errors.New("mapping store failed")
	ErrGatewayNotReady   = errors.New("payment gateway not configured")
	ErrLockUnavailable   = errors.New("order lock unavailable")

	ErrEmailServiceDisabled      = errors.New("email service disabled")
	ErrEmailServiceNotConfigured = errors.New("email service not configured")
	ErrInvalidEmail              = errors.New("invalid email address")
	ErrEmailRecipientRejected    = errors.New("email recipient rejected")
)
