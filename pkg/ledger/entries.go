package ledger

import (
	"fmt"
	"time"
)

// EntryInput is a validated ledger entry that has not been stored yet.
//
// Amount is the signed effect on the available balance, ReservedDelta the signed
// effect on the reserved balance. Shortfall is only set on reversals and records
// the points that could not be taken from the available balance.
type EntryInput struct {
	AccountID      AccountID
	Kind           EntryKind
	Amount         int64
	ReservedDelta  int64
	Shortfall      Points
	Reference      string
	IdempotencyKey IdempotencyKey
	Metadata       MetadataJSON
	CreatedAt      time.Time
}

// Entry is a single immutable line in the ledger.
type Entry struct {
	EntryID EntryID
	EntryInput
}

// BalanceEffect is the change an entry applies to the materialized balances.
type BalanceEffect struct {
	Available   int64
	Reserved    int64
	TotalEarned int64
	Debt        int64
}

// NewCreditEntry builds the entry that credits a survey completion.
func NewCreditEntry(accountID AccountID, completionID CompletionID, points Points, key IdempotencyKey, metadata MetadataJSON, createdAt time.Time) (EntryInput, error) {
	return newEntryInput(EntryInput{
		AccountID:      accountID,
		Kind:           EntryCredit,
		Amount:         points.Int64(),
		Reference:      completionID.String(),
		IdempotencyKey: key,
		Metadata:       metadata,
		CreatedAt:      createdAt,
	})
}

// NewReversalEntry builds the entry that negates a prior credit.
func NewReversalEntry(accountID AccountID, completionID CompletionID, points Points, shortfall Points, key IdempotencyKey, metadata MetadataJSON, createdAt time.Time) (EntryInput, error) {
	return newEntryInput(EntryInput{
		AccountID:      accountID,
		Kind:           EntryReversal,
		Amount:         -points.Int64(),
		Shortfall:      shortfall,
		Reference:      completionID.String(),
		IdempotencyKey: key,
		Metadata:       metadata,
		CreatedAt:      createdAt,
	})
}

// NewReserveEntry moves a withdrawal amount from available to reserved.
func NewReserveEntry(accountID AccountID, withdrawalID WithdrawalID, amount Points, key IdempotencyKey, metadata MetadataJSON, createdAt time.Time) (EntryInput, error) {
	return newEntryInput(EntryInput{
		AccountID:      accountID,
		Kind:           EntryWithdrawalReserve,
		Amount:         -amount.Int64(),
		ReservedDelta:  amount.Int64(),
		Reference:      withdrawalID.String(),
		IdempotencyKey: key,
		Metadata:       metadata,
		CreatedAt:      createdAt,
	})
}

// NewReleaseEntry returns a rejected withdrawal's reservation to available.
func NewReleaseEntry(accountID AccountID, withdrawalID WithdrawalID, amount Points, key IdempotencyKey, metadata MetadataJSON, createdAt time.Time) (EntryInput, error) {
	return newEntryInput(EntryInput{
		AccountID:      accountID,
		Kind:           EntryWithdrawalRelease,
		Amount:         amount.Int64(),
		ReservedDelta:  -amount.Int64(),
		Reference:      withdrawalID.String(),
		IdempotencyKey: key,
		Metadata:       metadata,
		CreatedAt:      createdAt,
	})
}

// NewSettleEntry permanently removes a completed withdrawal's reservation.
func NewSettleEntry(accountID AccountID, withdrawalID WithdrawalID, amount Points, key IdempotencyKey, metadata MetadataJSON, createdAt time.Time) (EntryInput, error) {
	return newEntryInput(EntryInput{
		AccountID:      accountID,
		Kind:           EntryWithdrawalSettle,
		ReservedDelta:  -amount.Int64(),
		Reference:      withdrawalID.String(),
		IdempotencyKey: key,
		Metadata:       metadata,
		CreatedAt:      createdAt,
	})
}

func newEntryInput(input EntryInput) (EntryInput, error) {
	if err := input.Validate(); err != nil {
		return EntryInput{}, err
	}
	return input, nil
}

// Validate checks the per-kind shape of an entry.
func (input EntryInput) Validate() error {
	if input.AccountID.String() == "" {
		return fmt.Errorf("%w: empty value", ErrInvalidAccountID)
	}
	if input.IdempotencyKey.String() == "" {
		return fmt.Errorf("%w: empty value", ErrInvalidIdempotencyKey)
	}
	if input.Reference == "" {
		return fmt.Errorf("%w: reference is required", ErrInvalidEntry)
	}
	if input.Shortfall < 0 {
		return fmt.Errorf("%w: negative shortfall", ErrInvalidEntry)
	}
	if input.Kind != EntryReversal && input.Shortfall != 0 {
		return fmt.Errorf("%w: shortfall only applies to reversals", ErrInvalidEntry)
	}
	switch input.Kind {
	case EntryCredit:
		if input.Amount <= 0 || input.ReservedDelta != 0 {
			return fmt.Errorf("%w: credit must add to available only", ErrInvalidEntry)
		}
	case EntryReversal:
		if input.Amount >= 0 || input.ReservedDelta != 0 {
			return fmt.Errorf("%w: reversal must subtract from available only", ErrInvalidEntry)
		}
		if input.Shortfall.Int64() > -input.Amount {
			return fmt.Errorf("%w: shortfall exceeds reversal", ErrInvalidEntry)
		}
	case EntryWithdrawalReserve:
		if input.Amount >= 0 || input.ReservedDelta != -input.Amount {
			return fmt.Errorf("%w: reserve must move available to reserved", ErrInvalidEntry)
		}
	case EntryWithdrawalRelease:
		if input.Amount <= 0 || input.ReservedDelta != -input.Amount {
			return fmt.Errorf("%w: release must move reserved to available", ErrInvalidEntry)
		}
	case EntryWithdrawalSettle:
		if input.Amount != 0 || input.ReservedDelta >= 0 {
			return fmt.Errorf("%w: settle must only remove reserved", ErrInvalidEntry)
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidEntryKind, input.Kind)
	}
	return nil
}

// Effect returns the balance change this entry applies.
func (input EntryInput) Effect() BalanceEffect {
	effect := BalanceEffect{
		Available: input.Amount + input.Shortfall.Int64(),
		Reserved:  input.ReservedDelta,
		Debt:      input.Shortfall.Int64(),
	}
	if input.Kind == EntryCredit {
		effect.TotalEarned = input.Amount
	}
	return effect
}

// Apply returns the balances after effect, refusing to go negative.
func (balances Balances) Apply(effect BalanceEffect) (Balances, error) {
	updated := Balances{
		Available:   Points(balances.Available.Int64() + effect.Available),
		Reserved:    Points(balances.Reserved.Int64() + effect.Reserved),
		TotalEarned: Points(balances.TotalEarned.Int64() + effect.TotalEarned),
		Debt:        Points(balances.Debt.Int64() + effect.Debt),
	}
	if updated.Available < 0 {
		return balances, ErrInsufficientFunds
	}
	if updated.Reserved < 0 {
		return balances, WrapError(errorOperationService, errorSubjectBalance, errorCodeNegativeReserved, ErrInvalidBalance)
	}
	return updated, nil
}

// Replay rebuilds balances from entries in creation order.
func Replay(entries []Entry) (Balances, error) {
	var balances Balances
	for _, entry := range entries {
		next, err := balances.Apply(entry.Effect())
		if err != nil {
			return balances, fmt.Errorf("replay entry %s: %w", entry.EntryID.String(), err)
		}
		balances = next
	}
	return balances, nil
}

// ShortfallFor computes how much of a reversal cannot be taken from available.
func ShortfallFor(available Points, points Points) Points {
	if available >= points {
		return 0
	}
	return points - available
}
