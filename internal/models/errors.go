package models

import "errors"

// Sentinel errors shared across services and handlers. Handlers map these to
// HTTP statuses; anything else is treated as an internal error.
var (
	ErrOutOfHours            = errors.New("requested time is outside provider working hours")
	ErrPastOrTooSoon         = errors.New("requested time is in the past or within the minimum lead time")
	ErrSlotConflict          = errors.New("time slot conflicts with an existing booking or hold")
	ErrHoldNotFound          = errors.New("hold not found")
	ErrBookingNotFound       = errors.New("booking not found")
	ErrServiceNotFound       = errors.New("service not found")
	ErrProviderNotFound      = errors.New("provider not found")
	ErrNotBookingParty       = errors.New("user is not a party to this booking")
	ErrInvalidTransition     = errors.New("booking status does not allow this action")
	ErrInvalidCompletionCode = errors.New("completion code does not match")
	ErrCompletionCodeMissing = errors.New("no completion code has been issued")
	ErrAlreadyRated          = errors.New("booking has already been rated")
	ErrNotPaid               = errors.New("booking payment is not in paid state")
	ErrAlreadyRefunded       = errors.New("booking payment has already been refunded")
	ErrRefundWindowClosed    = errors.New("self-service refund window has closed")
	ErrPayoutMissing         = errors.New("provider payout destination is not configured")
	ErrPaymentIncomplete     = errors.New("payment session is not completed")
)
