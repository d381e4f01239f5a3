package ledger

import (
	"errors"
	"fmt"
)

// Domain-level error values returned by the ledger service.
var (
	ErrInvalidAmount           = errors.New("invalid amount")
	ErrBelowMinimum            = errors.New("below minimum withdrawal")
	ErrInsufficientFunds       = errors.New("insufficient balance")
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")
	ErrDuplicateCompletion     = errors.New("duplicate completion")
	ErrAlreadyReversed         = errors.New("completion already reversed")
	ErrCompletionNotCredited   = errors.New("completion was never credited")
	ErrInvalidMethod           = errors.New("invalid withdrawal method")
	ErrInvalidDetails          = errors.New("invalid withdrawal details")
	ErrInvalidOutcome          = errors.New("invalid withdrawal outcome")
	ErrUnknownAccount          = errors.New("unknown account")
	ErrUnknownEntry            = errors.New("unknown entry")
	ErrUnknownCompletion       = errors.New("unknown completion")
	ErrUnknownWithdrawal       = errors.New("unknown withdrawal")
	ErrStatusConflict          = errors.New("status changed concurrently")
	ErrInvalidAccountID        = errors.New("invalid account id")
	ErrInvalidEntryID          = errors.New("invalid entry id")
	ErrInvalidUserID           = errors.New("invalid user id")
	ErrInvalidCompletionID     = errors.New("invalid completion id")
	ErrInvalidWithdrawalID     = errors.New("invalid withdrawal id")
	ErrInvalidProviderID       = errors.New("invalid provider id")
	ErrInvalidOfferID          = errors.New("invalid offer id")
	ErrInvalidIdempotencyKey   = errors.New("invalid idempotency key")
	ErrInvalidMetadataJSON     = errors.New("invalid metadata json")
	ErrInvalidEntry            = errors.New("invalid entry")
	ErrInvalidEntryKind        = errors.New("invalid entry kind")
	ErrInvalidCompletionStatus = errors.New("invalid completion status")
	ErrInvalidWithdrawalStatus = errors.New("invalid withdrawal status")
	ErrInvalidServiceConfig    = errors.New("invalid service config")
	ErrInvalidBalance          = errors.New("invalid balance")
)

// IsNotFound reports whether err refers to an unknown completion, withdrawal, account or entry.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrUnknownCompletion) ||
		errors.Is(err, ErrUnknownWithdrawal) ||
		errors.Is(err, ErrUnknownAccount) ||
		errors.Is(err, ErrUnknownEntry)
}

// OperationError wraps a failure with a stable operation code.
type OperationError struct {
	operation string
	subject   string
	code      string
	err       error
}

// Error returns the formatted error message.
func (operationError OperationError) Error() string {
	return fmt.Sprintf("%s.%s.%s: %v", operationError.operation, operationError.subject, operationError.code, operationError.err)
}

// Unwrap returns the underlying error.
func (operationError OperationError) Unwrap() error {
	return operationError.err
}

// Operation returns the operation segment.
func (operationError OperationError) Operation() string {
	return operationError.operation
}

// Subject returns the subject segment.
func (operationError OperationError) Subject() string {
	return operationError.subject
}

// Code returns the stable error code segment.
func (operationError OperationError) Code() string {
	return operationError.code
}

// WrapError wraps an error with operation, subject, and code metadata.
func WrapError(operation string, subject string, code string, err error) error {
	if err == nil {
		return nil
	}
	return OperationError{
		operation: operation,
		subject:   subject,
		code:      code,
		err:       err,
	}
}
