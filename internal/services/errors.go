package services

import "errors"

var (
	ErrOperationInProgress   = errors.New("another operation is in progress for this campaign")
	ErrNotOwner              = errors.New("only the campaign owner can do this")
	ErrInvalidState          = errors.New("operation not allowed in the current campaign state")
	ErrAlreadyWithdrawn      = errors.New("campaign funds already withdrawn")
	ErrWithdrawalUnconfirmed = errors.New("previous withdrawal is not confirmed yet")
	ErrHasDonations          = errors.New("campaign has donations and cannot be cancelled")
	ErrDeadlineNotReached    = errors.New("campaign deadline has not passed")
	ErrInvalidAmount         = errors.New("amount must be positive")
	ErrReceiptNotFound       = errors.New("donation receipt not found")
	ErrReadOnly              = errors.New("no signing wallet configured")
	ErrInvalidName           = errors.New("display name must be printable and at most 64 characters")
)
