package domain

import "errors"

// Validation errors: rejected before any mutation.
var (
	ErrInvalidTransferAmount = errors.New("transfer amount must be greater than zero")
	ErrInvalidAccountNumber  = errors.New("account number must be 10 digits")
	ErrInvalidSender         = errors.New("sender id is required")
	ErrInvalidBankStatus     = errors.New("invalid partner bank status")
	ErrInvalidDuration       = errors.New("duration must be greater than zero")
)

// Business-rule errors: surfaced to the caller verbatim.
var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrUserNotFound        = errors.New("user not found")
	ErrRecipientNotFound   = errors.New("recipient account not found")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrDuplicateReference  = errors.New("pending shadow entry already exists for reference")
	ErrShadowEntryNotFound = errors.New("no pending shadow entry for reference")
	ErrBankNotFound        = errors.New("partner bank not found")
	ErrSelfTransfer        = errors.New("cannot transfer to the sending account")
	ErrRateLimited         = errors.New("too many transfer requests")
)
