package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// WithdrawalRequest is a user's cash-out request as received from the API layer.
type WithdrawalRequest struct {
	UserID  UserID
	Amount  int64
	Method  string
	Details string
}

// WithdrawalResult carries the withdrawal and the account after the operation.
// Changed is false when ResolveWithdrawal found the request already resolved.
type WithdrawalResult struct {
	Withdrawal Withdrawal
	Account    Account
	Changed    bool
}

type validatedWithdrawal struct {
	amount  Points
	method  WithdrawalMethod
	details string
}

// RequestWithdrawal reserves funds for a new pending withdrawal.
// The balance check and the reservation happen in the same transaction.
func (service *Service) RequestWithdrawal(ctx context.Context, request WithdrawalRequest) (WithdrawalResult, error) {
	var result WithdrawalResult
	validated, operationError := service.validateWithdrawal(request)
	if operationError == nil {
		operationError = service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
			account, err := transactionStore.GetOrCreateAccount(ctx, request.UserID)
			if err != nil {
				return err
			}
			if account.Available < validated.amount {
				return ErrInsufficientFunds
			}
			withdrawalID, err := NewWithdrawalID(service.newID(withdrawalIDPrefix))
			if err != nil {
				return err
			}
			nowUTC := service.nowFn().UTC()
			withdrawal := Withdrawal{
				WithdrawalID: withdrawalID,
				UserID:       request.UserID,
				Amount:       validated.amount,
				Method:       validated.method,
				Details:      validated.details,
				Status:       WithdrawalStatusPending,
				CreatedAt:    nowUTC,
			}
			if err := transactionStore.CreateWithdrawal(ctx, withdrawal); err != nil {
				return err
			}
			key, err := withdrawalKey(withdrawalID, idempotencySuffixReserve)
			if err != nil {
				return err
			}
			metadata, err := MetadataFromMap(map[string]string{metadataKeyMethod: validated.method.String()})
			if err != nil {
				return err
			}
			entryInput, err := NewReserveEntry(account.AccountID, withdrawalID, validated.amount, key, metadata, nowUTC)
			if err != nil {
				return err
			}
			updated, err := transactionStore.AppendEntry(ctx, entryInput)
			if err != nil {
				return err
			}
			result = WithdrawalResult{Withdrawal: withdrawal, Account: updated, Changed: true}
			return nil
		})
	}
	service.logOperation(ctx, OperationLog{
		Operation: operationRequestWithdrawal,
		UserID:    request.UserID,
		Reference: result.Withdrawal.WithdrawalID.String(),
		Amount:    Points(request.Amount),
		Error:     operationError,
	})
	if operationError != nil {
		return WithdrawalResult{}, operationError
	}
	return result, nil
}

// ResolveWithdrawal settles (completed) or releases (rejected) a pending withdrawal.
// Resolving an already resolved withdrawal returns its current state unchanged.
func (service *Service) ResolveWithdrawal(ctx context.Context, withdrawalID WithdrawalID, outcome WithdrawalStatus) (WithdrawalResult, error) {
	var (
		result WithdrawalResult
		key    IdempotencyKey
	)
	operationError := validateOutcome(outcome)
	if operationError == nil {
		operationError = service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
			withdrawal, err := transactionStore.GetWithdrawal(ctx, withdrawalID)
			if err != nil {
				return err
			}
			if withdrawal.Status != WithdrawalStatusPending {
				account, err := accountOrEmpty(ctx, transactionStore, withdrawal.UserID)
				if err != nil {
					return err
				}
				result = WithdrawalResult{Withdrawal: withdrawal, Account: account}
				return nil
			}
			account, err := transactionStore.GetOrCreateAccount(ctx, withdrawal.UserID)
			if err != nil {
				return err
			}
			nowUTC := service.nowFn().UTC()
			var entryInput EntryInput
			switch outcome {
			case WithdrawalStatusCompleted:
				key, err = withdrawalKey(withdrawalID, idempotencySuffixSettle)
				if err != nil {
					return err
				}
				entryInput, err = NewSettleEntry(account.AccountID, withdrawalID, withdrawal.Amount, key, MetadataJSON{}, nowUTC)
			default:
				key, err = withdrawalKey(withdrawalID, idempotencySuffixRelease)
				if err != nil {
					return err
				}
				entryInput, err = NewReleaseEntry(account.AccountID, withdrawalID, withdrawal.Amount, key, MetadataJSON{}, nowUTC)
			}
			if err != nil {
				return err
			}
			if err := transactionStore.UpdateWithdrawalStatus(ctx, withdrawalID, WithdrawalStatusPending, outcome, nowUTC); err != nil {
				return err
			}
			updated, err := transactionStore.AppendEntry(ctx, entryInput)
			if err != nil {
				return err
			}
			withdrawal.Status = outcome
			withdrawal.ResolvedAt = &nowUTC
			result = WithdrawalResult{Withdrawal: withdrawal, Account: updated, Changed: true}
			return nil
		})
	}
	if errors.Is(operationError, ErrStatusConflict) || isDuplicateEvent(operationError) {
		// Resolved concurrently; report the winner's state.
		result, operationError = service.currentWithdrawal(ctx, withdrawalID)
	}
	status := ""
	if operationError == nil && !result.Changed {
		status = operationStatusUnchanged
	}
	service.logOperation(ctx, OperationLog{
		Operation:      operationResolveWithdrawal,
		UserID:         result.Withdrawal.UserID,
		Reference:      withdrawalID.String(),
		Amount:         result.Withdrawal.Amount,
		IdempotencyKey: key,
		Status:         status,
		Error:          operationError,
	})
	if operationError != nil {
		return WithdrawalResult{}, operationError
	}
	return result, nil
}

// GetWithdrawal returns a single withdrawal.
func (service *Service) GetWithdrawal(ctx context.Context, withdrawalID WithdrawalID) (Withdrawal, error) {
	return service.store.GetWithdrawal(ctx, withdrawalID)
}

func (service *Service) currentWithdrawal(ctx context.Context, withdrawalID WithdrawalID) (WithdrawalResult, error) {
	withdrawal, err := service.store.GetWithdrawal(ctx, withdrawalID)
	if err != nil {
		return WithdrawalResult{}, err
	}
	account, err := accountOrEmpty(ctx, service.store, withdrawal.UserID)
	if err != nil {
		return WithdrawalResult{}, err
	}
	return WithdrawalResult{Withdrawal: withdrawal, Account: account}, nil
}

func (service *Service) validateWithdrawal(request WithdrawalRequest) (validatedWithdrawal, error) {
	amount, err := NewPositivePoints(request.Amount)
	if err != nil {
		return validatedWithdrawal{}, err
	}
	if amount < service.minimumWithdrawal {
		return validatedWithdrawal{}, fmt.Errorf("%w: minimum is %d points", ErrBelowMinimum, service.minimumWithdrawal)
	}
	method, err := ParseWithdrawalMethod(request.Method)
	if err != nil {
		return validatedWithdrawal{}, err
	}
	details := strings.TrimSpace(request.Details)
	if details == "" {
		return validatedWithdrawal{}, fmt.Errorf("%w: destination details are required", ErrInvalidDetails)
	}
	return validatedWithdrawal{amount: amount, method: method, details: details}, nil
}

func validateOutcome(outcome WithdrawalStatus) error {
	if outcome != WithdrawalStatusCompleted && outcome != WithdrawalStatusRejected {
		return fmt.Errorf("%w: %q", ErrInvalidOutcome, outcome)
	}
	return nil
}
