package ledger

import (
	"context"
	"errors"
	"strings"
)

// CompletionRequest describes a provider-reported survey completion.
type CompletionRequest struct {
	UserID               UserID
	Provider             ProviderID
	OfferID              OfferID
	ExternalCompletionID string
	Points               int64
	Metadata             MetadataJSON
}

// CompletionResult is returned by ApplyCompletion.
// Duplicate is set when the event had already been applied; nothing changed in that case.
type CompletionResult struct {
	Completion Completion
	Account    Account
	Duplicate  bool
}

// DisqualificationRequest describes a provider screen-out. No points are awarded.
type DisqualificationRequest struct {
	UserID               UserID
	Provider             ProviderID
	OfferID              OfferID
	ExternalCompletionID string
	Metadata             MetadataJSON
}

// ReversalResult is returned by ApplyReversal.
type ReversalResult struct {
	Completion Completion
	Account    Account
	Shortfall  Points
}

// ApplyCompletion credits a survey completion exactly once per (provider, offer, completion id).
func (service *Service) ApplyCompletion(ctx context.Context, request CompletionRequest) (CompletionResult, error) {
	var (
		result CompletionResult
		key    IdempotencyKey
	)
	points, operationError := NewPositivePoints(request.Points)
	if operationError == nil {
		key, operationError = CompletionKey(request.Provider, request.OfferID, request.ExternalCompletionID)
	}
	if operationError == nil {
		operationError = service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
			prior, found, err := findPriorCompletion(ctx, transactionStore, key, request)
			if err != nil {
				return err
			}
			if found {
				result = prior
				return nil
			}
			account, err := transactionStore.GetOrCreateAccount(ctx, request.UserID)
			if err != nil {
				return err
			}
			nowUTC := service.nowFn().UTC()
			completionID, err := NewCompletionID(service.newID(completionIDPrefix))
			if err != nil {
				return err
			}
			completion := Completion{
				CompletionID:         completionID,
				UserID:               request.UserID,
				Provider:             request.Provider,
				OfferID:              request.OfferID,
				ExternalCompletionID: strings.TrimSpace(request.ExternalCompletionID),
				Points:               points,
				Status:               CompletionStatusCompleted,
				CreatedAt:            nowUTC,
			}
			if err := transactionStore.CreateCompletion(ctx, completion); err != nil {
				return err
			}
			entryInput, err := NewCreditEntry(account.AccountID, completionID, points, key, request.Metadata, nowUTC)
			if err != nil {
				return err
			}
			updated, err := transactionStore.AppendEntry(ctx, entryInput)
			if err != nil {
				return err
			}
			result = CompletionResult{Completion: completion, Account: updated}
			return nil
		})
	}
	if isDuplicateEvent(operationError) {
		// A concurrent delivery of the same event won the race; report its result.
		var found bool
		result, found, operationError = findPriorCompletion(ctx, service.store, key, request)
		if operationError == nil && !found {
			operationError = ErrDuplicateIdempotencyKey
		}
	}
	service.logOperation(ctx, OperationLog{
		Operation:      operationApplyCompletion,
		UserID:         request.UserID,
		Reference:      result.Completion.CompletionID.String(),
		Amount:         Points(request.Points),
		IdempotencyKey: key,
		Status:         duplicateStatus(result.Duplicate, operationError),
		Error:          operationError,
	})
	if operationError != nil {
		return CompletionResult{}, operationError
	}
	return result, nil
}

// RecordDisqualification stores a screened-out completion without touching balances.
func (service *Service) RecordDisqualification(ctx context.Context, request DisqualificationRequest) (CompletionResult, error) {
	var result CompletionResult
	key, operationError := CompletionKey(request.Provider, request.OfferID, request.ExternalCompletionID)
	if operationError == nil {
		operationError = service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
			existing, err := transactionStore.FindCompletionByExternalRef(ctx, request.Provider, request.OfferID, strings.TrimSpace(request.ExternalCompletionID))
			if err == nil {
				account, accountErr := accountOrEmpty(ctx, transactionStore, existing.UserID)
				if accountErr != nil {
					return accountErr
				}
				result = CompletionResult{Completion: existing, Account: account, Duplicate: true}
				return nil
			}
			if !errors.Is(err, ErrUnknownCompletion) {
				return err
			}
			completionID, err := NewCompletionID(service.newID(completionIDPrefix))
			if err != nil {
				return err
			}
			completion := Completion{
				CompletionID:         completionID,
				UserID:               request.UserID,
				Provider:             request.Provider,
				OfferID:              request.OfferID,
				ExternalCompletionID: strings.TrimSpace(request.ExternalCompletionID),
				Status:               CompletionStatusDisqualified,
				CreatedAt:            service.nowFn().UTC(),
			}
			if err := transactionStore.CreateCompletion(ctx, completion); err != nil {
				return err
			}
			account, err := accountOrEmpty(ctx, transactionStore, request.UserID)
			if err != nil {
				return err
			}
			result = CompletionResult{Completion: completion, Account: account}
			return nil
		})
	}
	if isDuplicateEvent(operationError) {
		var found bool
		result, found, operationError = findPriorCompletion(ctx, service.store, key, CompletionRequest{
			UserID:               request.UserID,
			Provider:             request.Provider,
			OfferID:              request.OfferID,
			ExternalCompletionID: request.ExternalCompletionID,
		})
		if operationError == nil && !found {
			operationError = ErrDuplicateCompletion
		}
	}
	service.logOperation(ctx, OperationLog{
		Operation:      operationDisqualify,
		UserID:         request.UserID,
		Reference:      result.Completion.CompletionID.String(),
		IdempotencyKey: key,
		Status:         duplicateStatus(result.Duplicate, operationError),
		Error:          operationError,
	})
	if operationError != nil {
		return CompletionResult{}, operationError
	}
	return result, nil
}

// ApplyReversal undoes the credit of a completed survey.
//
// Available balance never goes negative: when the user has already withdrawn the
// points, the balance is clamped to zero and the missing amount is recorded as a
// shortfall on the reversal entry and accumulated in the account's debt.
func (service *Service) ApplyReversal(ctx context.Context, completionID CompletionID, reason string) (ReversalResult, error) {
	var (
		result ReversalResult
		key    IdempotencyKey
	)
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		completion, err := transactionStore.GetCompletion(ctx, completionID)
		if err != nil {
			return err
		}
		switch completion.Status {
		case CompletionStatusReversed:
			return ErrAlreadyReversed
		case CompletionStatusDisqualified:
			return ErrCompletionNotCredited
		}
		account, err := transactionStore.GetOrCreateAccount(ctx, completion.UserID)
		if err != nil {
			return err
		}
		creditKey, err := completion.IdempotencyKey()
		if err != nil {
			return err
		}
		key, err = deriveIdempotencyKey(creditKey, idempotencySuffixReverse)
		if err != nil {
			return err
		}
		trimmedReason := strings.TrimSpace(reason)
		metadata, err := MetadataFromMap(map[string]string{metadataKeyReason: trimmedReason})
		if err != nil {
			return err
		}
		shortfall := ShortfallFor(account.Available, completion.Points)
		entryInput, err := NewReversalEntry(account.AccountID, completionID, completion.Points, shortfall, key, metadata, service.nowFn().UTC())
		if err != nil {
			return err
		}
		if err := transactionStore.UpdateCompletionStatus(ctx, completionID, CompletionStatusCompleted, CompletionStatusReversed, trimmedReason); err != nil {
			if errors.Is(err, ErrStatusConflict) {
				return ErrAlreadyReversed
			}
			return err
		}
		updated, err := transactionStore.AppendEntry(ctx, entryInput)
		if err != nil {
			if isDuplicateEvent(err) {
				return ErrAlreadyReversed
			}
			return err
		}
		completion.Status = CompletionStatusReversed
		completion.ReversalReason = trimmedReason
		result = ReversalResult{Completion: completion, Account: updated, Shortfall: shortfall}
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation:      operationApplyReversal,
		UserID:         result.Completion.UserID,
		Reference:      completionID.String(),
		Amount:         result.Completion.Points,
		IdempotencyKey: key,
		Error:          operationError,
	})
	if operationError != nil {
		return ReversalResult{}, operationError
	}
	return result, nil
}

// ReverseByExternalRef reverses the completion a provider identifies by its own ids.
func (service *Service) ReverseByExternalRef(ctx context.Context, provider ProviderID, offer OfferID, externalCompletionID string, reason string) (ReversalResult, error) {
	completion, err := service.store.FindCompletionByExternalRef(ctx, provider, offer, strings.TrimSpace(externalCompletionID))
	if err != nil {
		return ReversalResult{}, err
	}
	return service.ApplyReversal(ctx, completion.CompletionID, reason)
}

func findPriorCompletion(ctx context.Context, store Store, key IdempotencyKey, request CompletionRequest) (CompletionResult, bool, error) {
	var completion Completion
	entry, err := store.FindEntryByIdempotencyKey(ctx, key)
	switch {
	case err == nil:
		completionID, idErr := NewCompletionID(entry.Reference)
		if idErr != nil {
			return CompletionResult{}, false, idErr
		}
		completion, err = store.GetCompletion(ctx, completionID)
		if err != nil {
			return CompletionResult{}, false, err
		}
	case errors.Is(err, ErrUnknownEntry):
		// Disqualified completions have no credit entry but still claim the event.
		completion, err = store.FindCompletionByExternalRef(ctx, request.Provider, request.OfferID, strings.TrimSpace(request.ExternalCompletionID))
		if errors.Is(err, ErrUnknownCompletion) {
			return CompletionResult{}, false, nil
		}
		if err != nil {
			return CompletionResult{}, false, err
		}
	default:
		return CompletionResult{}, false, err
	}
	account, err := accountOrEmpty(ctx, store, completion.UserID)
	if err != nil {
		return CompletionResult{}, false, err
	}
	return CompletionResult{Completion: completion, Account: account, Duplicate: true}, true, nil
}

func accountOrEmpty(ctx context.Context, store Store, userID UserID) (Account, error) {
	account, err := store.GetAccount(ctx, userID)
	if errors.Is(err, ErrUnknownAccount) {
		return Account{UserID: userID}, nil
	}
	return account, err
}

func isDuplicateEvent(err error) bool {
	return errors.Is(err, ErrDuplicateIdempotencyKey) || errors.Is(err, ErrDuplicateCompletion)
}

func duplicateStatus(duplicate bool, err error) string {
	if err == nil && duplicate {
		return operationStatusDuplicate
	}
	return ""
}
