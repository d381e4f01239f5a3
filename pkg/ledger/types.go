package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Points is an integer amount of reward points.
type Points int64

// UserID identifies an account owner.
type UserID struct {
	value string
}

// AccountID identifies a ledger account.
type AccountID struct {
	value string
}

// EntryID identifies a stored ledger entry.
type EntryID struct {
	value string
}

// CompletionID identifies a survey completion.
type CompletionID struct {
	value string
}

// WithdrawalID identifies a withdrawal request.
type WithdrawalID struct {
	value string
}

// ProviderID names the survey provider that emitted an event (e.g. "inbrain").
type ProviderID struct {
	value string
}

// OfferID identifies a survey/offer within a provider.
type OfferID struct {
	value string
}

// IdempotencyKey scopes duplicate detection.
type IdempotencyKey struct {
	value string
}

// MetadataJSON stores arbitrary event metadata.
type MetadataJSON struct {
	value string
}

// NewPositivePoints validates an amount and ensures it is strictly positive.
func NewPositivePoints(raw int64) (Points, error) {
	if raw <= 0 {
		return 0, fmt.Errorf("%w: must be greater than zero", ErrInvalidAmount)
	}
	return Points(raw), nil
}

// NewPoints validates a non-negative amount.
func NewPoints(raw int64) (Points, error) {
	if raw < 0 {
		return 0, fmt.Errorf("%w: must not be negative", ErrInvalidAmount)
	}
	return Points(raw), nil
}

// Int64 returns the raw amount.
func (points Points) Int64() int64 {
	return int64(points)
}

func normalizeIdentifier(raw string, sentinel error) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty value", sentinel)
	}
	return trimmed, nil
}

// NewUserID validates and normalizes a user id.
func NewUserID(raw string) (UserID, error) {
	value, err := normalizeIdentifier(raw, ErrInvalidUserID)
	if err != nil {
		return UserID{}, err
	}
	return UserID{value: value}, nil
}

// String returns the normalized identifier.
func (id UserID) String() string {
	return id.value
}

// NewAccountID validates an account id.
func NewAccountID(raw string) (AccountID, error) {
	value, err := normalizeIdentifier(raw, ErrInvalidAccountID)
	if err != nil {
		return AccountID{}, err
	}
	return AccountID{value: value}, nil
}

// String returns the normalized identifier.
func (id AccountID) String() string {
	return id.value
}

// NewEntryID validates an entry id.
func NewEntryID(raw string) (EntryID, error) {
	value, err := normalizeIdentifier(raw, ErrInvalidEntryID)
	if err != nil {
		return EntryID{}, err
	}
	return EntryID{value: value}, nil
}

// String returns the normalized identifier.
func (id EntryID) String() string {
	return id.value
}

// NewCompletionID validates a completion id.
func NewCompletionID(raw string) (CompletionID, error) {
	value, err := normalizeIdentifier(raw, ErrInvalidCompletionID)
	if err != nil {
		return CompletionID{}, err
	}
	return CompletionID{value: value}, nil
}

// String returns the normalized identifier.
func (id CompletionID) String() string {
	return id.value
}

// NewWithdrawalID validates a withdrawal id.
func NewWithdrawalID(raw string) (WithdrawalID, error) {
	value, err := normalizeIdentifier(raw, ErrInvalidWithdrawalID)
	if err != nil {
		return WithdrawalID{}, err
	}
	return WithdrawalID{value: value}, nil
}

// String returns the normalized identifier.
func (id WithdrawalID) String() string {
	return id.value
}

// NewProviderID validates a provider identifier. Provider ids are case-insensitive.
func NewProviderID(raw string) (ProviderID, error) {
	value, err := normalizeIdentifier(raw, ErrInvalidProviderID)
	if err != nil {
		return ProviderID{}, err
	}
	if strings.Contains(value, idempotencyKeyDelimiter) {
		return ProviderID{}, fmt.Errorf("%w: must not contain %q", ErrInvalidProviderID, idempotencyKeyDelimiter)
	}
	return ProviderID{value: strings.ToLower(value)}, nil
}

// String returns the normalized identifier.
func (id ProviderID) String() string {
	return id.value
}

// NewOfferID validates an offer id.
func NewOfferID(raw string) (OfferID, error) {
	value, err := normalizeIdentifier(raw, ErrInvalidOfferID)
	if err != nil {
		return OfferID{}, err
	}
	if strings.Contains(value, idempotencyKeyDelimiter) {
		return OfferID{}, fmt.Errorf("%w: must not contain %q", ErrInvalidOfferID, idempotencyKeyDelimiter)
	}
	return OfferID{value: value}, nil
}

// String returns the normalized identifier.
func (id OfferID) String() string {
	return id.value
}

// NewIdempotencyKey validates and normalizes an idempotency key.
func NewIdempotencyKey(raw string) (IdempotencyKey, error) {
	value, err := normalizeIdentifier(raw, ErrInvalidIdempotencyKey)
	if err != nil {
		return IdempotencyKey{}, err
	}
	return IdempotencyKey{value: value}, nil
}

// String returns the normalized key.
func (key IdempotencyKey) String() string {
	return key.value
}

// NewMetadataJSON validates metadata string (defaulting to "{}" for empty inputs).
func NewMetadataJSON(raw string) (MetadataJSON, error) {
	normalized := strings.TrimSpace(raw)
	if normalized == "" {
		normalized = "{}"
	}
	if !json.Valid([]byte(normalized)) {
		return MetadataJSON{}, fmt.Errorf("%w: must be valid json", ErrInvalidMetadataJSON)
	}
	return MetadataJSON{value: normalized}, nil
}

// MetadataFromMap marshals a flat map into MetadataJSON.
func MetadataFromMap(values map[string]string) (MetadataJSON, error) {
	raw, err := json.Marshal(values)
	if err != nil {
		return MetadataJSON{}, fmt.Errorf("%w: %v", ErrInvalidMetadataJSON, err)
	}
	return NewMetadataJSON(string(raw))
}

// String returns the normalized JSON blob.
func (metadata MetadataJSON) String() string {
	if metadata.value == "" {
		return "{}"
	}
	return metadata.value
}

// CompletionKey derives the idempotency key of a provider completion event.
func CompletionKey(provider ProviderID, offer OfferID, externalCompletionID string) (IdempotencyKey, error) {
	external, err := normalizeIdentifier(externalCompletionID, ErrInvalidCompletionID)
	if err != nil {
		return IdempotencyKey{}, err
	}
	return NewIdempotencyKey(strings.Join([]string{provider.String(), offer.String(), external}, idempotencyKeyDelimiter))
}

// EntryKind enumerates ledger entry kinds.
type EntryKind string

const (
	EntryCredit            EntryKind = "credit"
	EntryReversal          EntryKind = "reversal"
	EntryWithdrawalReserve EntryKind = "withdrawal_reserve"
	EntryWithdrawalRelease EntryKind = "withdrawal_release"
	EntryWithdrawalSettle  EntryKind = "withdrawal_settle"
)

// ParseEntryKind validates a stored entry kind.
func ParseEntryKind(raw string) (EntryKind, error) {
	switch EntryKind(strings.TrimSpace(raw)) {
	case EntryCredit:
		return EntryCredit, nil
	case EntryReversal:
		return EntryReversal, nil
	case EntryWithdrawalReserve:
		return EntryWithdrawalReserve, nil
	case EntryWithdrawalRelease:
		return EntryWithdrawalRelease, nil
	case EntryWithdrawalSettle:
		return EntryWithdrawalSettle, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidEntryKind, raw)
	}
}

// String returns the stored representation.
func (kind EntryKind) String() string {
	return string(kind)
}

// CompletionStatus defines the survey completion lifecycle.
type CompletionStatus string

const (
	CompletionStatusCompleted    CompletionStatus = "completed"
	CompletionStatusDisqualified CompletionStatus = "disqualified"
	CompletionStatusReversed     CompletionStatus = "reversed"
)

// ParseCompletionStatus validates a stored completion status.
func ParseCompletionStatus(raw string) (CompletionStatus, error) {
	switch CompletionStatus(strings.TrimSpace(raw)) {
	case CompletionStatusCompleted:
		return CompletionStatusCompleted, nil
	case CompletionStatusDisqualified:
		return CompletionStatusDisqualified, nil
	case CompletionStatusReversed:
		return CompletionStatusReversed, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidCompletionStatus, raw)
	}
}

// String returns the stored representation.
func (status CompletionStatus) String() string {
	return string(status)
}

// WithdrawalStatus defines the withdrawal lifecycle.
type WithdrawalStatus string

const (
	WithdrawalStatusPending   WithdrawalStatus = "pending"
	WithdrawalStatusCompleted WithdrawalStatus = "completed"
	WithdrawalStatusRejected  WithdrawalStatus = "rejected"
)

// ParseWithdrawalStatus validates a stored withdrawal status.
func ParseWithdrawalStatus(raw string) (WithdrawalStatus, error) {
	switch WithdrawalStatus(strings.ToLower(strings.TrimSpace(raw))) {
	case WithdrawalStatusPending:
		return WithdrawalStatusPending, nil
	case WithdrawalStatusCompleted:
		return WithdrawalStatusCompleted, nil
	case WithdrawalStatusRejected:
		return WithdrawalStatusRejected, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidWithdrawalStatus, raw)
	}
}

// ParseWithdrawalOutcome validates an administrative resolution outcome.
func ParseWithdrawalOutcome(raw string) (WithdrawalStatus, error) {
	status, err := ParseWithdrawalStatus(raw)
	if err != nil || status == WithdrawalStatusPending {
		return "", fmt.Errorf("%w: %q", ErrInvalidOutcome, raw)
	}
	return status, nil
}

// String returns the stored representation.
func (status WithdrawalStatus) String() string {
	return string(status)
}

// WithdrawalMethod enumerates payout rails.
type WithdrawalMethod string

const (
	WithdrawalMethodPayPal WithdrawalMethod = "paypal"
	WithdrawalMethodBank   WithdrawalMethod = "bank"
	WithdrawalMethodCrypto WithdrawalMethod = "crypto"
)

// ParseWithdrawalMethod validates a payout method.
func ParseWithdrawalMethod(raw string) (WithdrawalMethod, error) {
	switch WithdrawalMethod(strings.ToLower(strings.TrimSpace(raw))) {
	case WithdrawalMethodPayPal:
		return WithdrawalMethodPayPal, nil
	case WithdrawalMethodBank:
		return WithdrawalMethodBank, nil
	case WithdrawalMethodCrypto:
		return WithdrawalMethodCrypto, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMethod, raw)
	}
}

// String returns the stored representation.
func (method WithdrawalMethod) String() string {
	return string(method)
}

// Balances is the materialized balance projection of an account.
type Balances struct {
	Available   Points
	Reserved    Points
	TotalEarned Points
	Debt        Points
}

// Account is a user's ledger account with its current balances.
type Account struct {
	AccountID AccountID
	UserID    UserID
	Balances
	CreatedAt time.Time
}

// Survey completion recorded by the reward engine.
type Completion struct {
	CompletionID         CompletionID
	UserID               UserID
	Provider             ProviderID
	OfferID              OfferID
	ExternalCompletionID string
	Points               Points
	Status               CompletionStatus
	ReversalReason       string
	CreatedAt            time.Time
}

// IdempotencyKey returns the key of the credit entry that funded this completion.
func (completion Completion) IdempotencyKey() (IdempotencyKey, error) {
	return CompletionKey(completion.Provider, completion.OfferID, completion.ExternalCompletionID)
}

// Withdrawal is a user's cash-out request.
type Withdrawal struct {
	WithdrawalID WithdrawalID
	UserID       UserID
	Amount       Points
	Method       WithdrawalMethod
	Details      string
	Status       WithdrawalStatus
	CreatedAt    time.Time
	ResolvedAt   *time.Time
}

// EntryFilter narrows ListEntries.
type EntryFilter struct {
	Kinds []EntryKind
	Limit int
}

// LeaderboardRow is a ranked account summary.
type LeaderboardRow struct {
	Rank             int
	UserID           UserID
	TotalEarned      Points
	CompletedSurveys int64
	AccountCreatedAt time.Time
}

// Store is the persistence contract used by Service.
// Every balance mutation goes through AppendEntry.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error

	GetOrCreateAccount(ctx context.Context, userID UserID) (Account, error)
	GetAccount(ctx context.Context, userID UserID) (Account, error)
	AppendEntry(ctx context.Context, entry EntryInput) (Account, error)
	FindEntryByIdempotencyKey(ctx context.Context, key IdempotencyKey) (Entry, error)
	ListEntries(ctx context.Context, accountID AccountID, filter EntryFilter) ([]Entry, error)

	CreateCompletion(ctx context.Context, completion Completion) error
	GetCompletion(ctx context.Context, completionID CompletionID) (Completion, error)
	FindCompletionByExternalRef(ctx context.Context, provider ProviderID, offer OfferID, externalCompletionID string) (Completion, error)
	UpdateCompletionStatus(ctx context.Context, completionID CompletionID, from, to CompletionStatus, reason string) error
	ListCompletions(ctx context.Context, userID UserID, limit int) ([]Completion, error)
	CountCompletions(ctx context.Context, userID UserID, status CompletionStatus) (int64, error)

	CreateWithdrawal(ctx context.Context, withdrawal Withdrawal) error
	GetWithdrawal(ctx context.Context, withdrawalID WithdrawalID) (Withdrawal, error)
	UpdateWithdrawalStatus(ctx context.Context, withdrawalID WithdrawalID, from, to WithdrawalStatus, resolvedAt time.Time) error
	ListWithdrawals(ctx context.Context, userID UserID, limit int) ([]Withdrawal, error)

	ListLeaderboard(ctx context.Context, limit int) ([]LeaderboardRow, error)
}
