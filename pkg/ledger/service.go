package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Service contains the reward ledger domain logic over a Store.
type Service struct {
	store             Store
	nowFn             func() time.Time
	newID             func(prefix string) string
	logger            OperationLogger
	minimumWithdrawal Points
}

// NewService wires a Service.
func NewService(store Store, now func() time.Time, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{
		store:             store,
		nowFn:             now,
		newID:             randomID,
		minimumWithdrawal: MinimumWithdrawalPoints,
	}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

// MinimumWithdrawal returns the configured minimum withdrawal amount.
func (service *Service) MinimumWithdrawal() Points {
	return service.minimumWithdrawal
}

// Account returns the user's account, or a zero-balance account when none exists yet.
func (service *Service) Account(ctx context.Context, userID UserID) (Account, error) {
	account, err := service.store.GetAccount(ctx, userID)
	if errors.Is(err, ErrUnknownAccount) {
		return Account{UserID: userID}, nil
	}
	if err != nil {
		return Account{}, err
	}
	return account, nil
}

// AuditReport compares the materialized balances with a replay of the entries.
type AuditReport struct {
	UserID     UserID
	Entries    int
	Expected   Balances
	Actual     Balances
	Consistent bool
}

// Audit replays every entry of the user's account and compares it with the stored balances.
func (service *Service) Audit(ctx context.Context, userID UserID) (AuditReport, error) {
	account, err := service.store.GetAccount(ctx, userID)
	if errors.Is(err, ErrUnknownAccount) {
		return AuditReport{UserID: userID, Consistent: true}, nil
	}
	if err != nil {
		return AuditReport{}, err
	}
	entries, err := service.store.ListEntries(ctx, account.AccountID, EntryFilter{})
	if err != nil {
		return AuditReport{}, err
	}
	// ListEntries is newest first; replay needs creation order.
	ordered := make([]Entry, len(entries))
	for index, entry := range entries {
		ordered[len(entries)-1-index] = entry
	}
	expected, err := Replay(ordered)
	if err != nil {
		return AuditReport{}, WrapError(errorOperationService, errorSubjectBalance, errorCodeInconsistentReplay, err)
	}
	return AuditReport{
		UserID:     userID,
		Entries:    len(entries),
		Expected:   expected,
		Actual:     account.Balances,
		Consistent: expected == account.Balances,
	}, nil
}

func (service *Service) logOperation(ctx context.Context, entry OperationLog) {
	if service.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	service.logger.LogOperation(ctx, entry)
}

func deriveIdempotencyKey(baseKey IdempotencyKey, suffix string) (IdempotencyKey, error) {
	combined := baseKey.String() + idempotencyKeyDelimiter + suffix
	return NewIdempotencyKey(combined)
}

func withdrawalKey(withdrawalID WithdrawalID, suffix string) (IdempotencyKey, error) {
	return NewIdempotencyKey(strings.Join([]string{idempotencyPrefixWithdraw, withdrawalID.String(), suffix}, idempotencyKeyDelimiter))
}

func randomID(prefix string) string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return prefix + raw[:generatedIDLength]
}
