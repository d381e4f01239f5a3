package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"
)

type stubState struct {
	accounts    map[string]Account
	entries     []Entry
	completions map[string]Completion
	withdrawals map[string]Withdrawal
	sequence    int
}

func (state stubState) clone() stubState {
	copied := stubState{
		accounts:    make(map[string]Account, len(state.accounts)),
		entries:     append([]Entry(nil), state.entries...),
		completions: make(map[string]Completion, len(state.completions)),
		withdrawals: make(map[string]Withdrawal, len(state.withdrawals)),
		sequence:    state.sequence,
	}
	for key, value := range state.accounts {
		copied.accounts[key] = value
	}
	for key, value := range state.completions {
		copied.completions[key] = value
	}
	for key, value := range state.withdrawals {
		copied.withdrawals[key] = value
	}
	return copied
}

// stubStore is an in-memory Store. WithTx serializes transactions and rolls back on error.
type stubStore struct {
	txMutex   sync.Mutex
	dataMutex sync.Mutex
	state     stubState
	clock     func() time.Time

	getAccountError  error
	appendEntryError error
	createCompletion error
	createWithdrawal error
	listError        error
	leaderboardError error
}

func newStubStore(test *testing.T) *stubStore {
	test.Helper()
	return &stubStore{
		state: stubState{
			accounts:    map[string]Account{},
			completions: map[string]Completion{},
			withdrawals: map[string]Withdrawal{},
		},
		clock: func() time.Time { return time.Unix(100, 0).UTC() },
	}
}

func (store *stubStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	store.txMutex.Lock()
	defer store.txMutex.Unlock()
	store.dataMutex.Lock()
	snapshot := store.state.clone()
	store.dataMutex.Unlock()
	if err := fn(ctx, store); err != nil {
		store.dataMutex.Lock()
		store.state = snapshot
		store.dataMutex.Unlock()
		return err
	}
	return nil
}

func (store *stubStore) GetOrCreateAccount(ctx context.Context, userID UserID) (Account, error) {
	if store.getAccountError != nil {
		return Account{}, store.getAccountError
	}
	store.dataMutex.Lock()
	defer store.dataMutex.Unlock()
	if account, ok := store.state.accounts[userID.String()]; ok {
		return account, nil
	}
	store.state.sequence++
	accountID, err := NewAccountID(fmt.Sprintf("acct-%d", store.state.sequence))
	if err != nil {
		return Account{}, err
	}
	account := Account{AccountID: accountID, UserID: userID, CreatedAt: store.clock()}
	store.state.accounts[userID.String()] = account
	return account, nil
}

func (store *stubStore) GetAccount(ctx context.Context, userID UserID) (Account, error) {
	if store.getAccountError != nil {
		return Account{}, store.getAccountError
	}
	store.dataMutex.Lock()
	defer store.dataMutex.Unlock()
	account, ok := store.state.accounts[userID.String()]
	if !ok {
		return Account{}, ErrUnknownAccount
	}
	return account, nil
}

func (store *stubStore) AppendEntry(ctx context.Context, entryInput EntryInput) (Account, error) {
	if store.appendEntryError != nil {
		return Account{}, store.appendEntryError
	}
	if err := entryInput.Validate(); err != nil {
		return Account{}, err
	}
	store.dataMutex.Lock()
	defer store.dataMutex.Unlock()
	for _, existing := range store.state.entries {
		if existing.IdempotencyKey == entryInput.IdempotencyKey {
			return Account{}, ErrDuplicateIdempotencyKey
		}
	}
	var (
		account Account
		found   bool
	)
	for _, candidate := range store.state.accounts {
		if candidate.AccountID == entryInput.AccountID {
			account, found = candidate, true
			break
		}
	}
	if !found {
		return Account{}, ErrUnknownAccount
	}
	updated, err := account.Balances.Apply(entryInput.Effect())
	if err != nil {
		return Account{}, err
	}
	account.Balances = updated
	store.state.accounts[account.UserID.String()] = account
	store.state.sequence++
	entryID, err := NewEntryID(fmt.Sprintf("entry-%d", store.state.sequence))
	if err != nil {
		return Account{}, err
	}
	store.state.entries = append(store.state.entries, Entry{EntryID: entryID, EntryInput: entryInput})
	return account, nil
}

func (store *stubStore) FindEntryByIdempotencyKey(ctx context.Context, key IdempotencyKey) (Entry, error) {
	store.dataMutex.Lock()
	defer store.dataMutex.Unlock()
	for _, entry := range store.state.entries {
		if entry.IdempotencyKey == key {
			return entry, nil
		}
	}
	return Entry{}, ErrUnknownEntry
}

func (store *stubStore) ListEntries(ctx context.Context, accountID AccountID, filter EntryFilter) ([]Entry, error) {
	if store.listError != nil {
		return nil, store.listError
	}
	store.dataMutex.Lock()
	defer store.dataMutex.Unlock()
	kinds := map[EntryKind]bool{}
	for _, kind := range filter.Kinds {
		kinds[kind] = true
	}
	result := []Entry{}
	for index := len(store.state.entries) - 1; index >= 0; index-- {
		entry := store.state.entries[index]
		if entry.AccountID != accountID {
			continue
		}
		if len(kinds) > 0 && !kinds[entry.Kind] {
			continue
		}
		result = append(result, entry)
		if filter.Limit > 0 && len(result) == filter.Limit {
			break
		}
	}
	return result, nil
}

func (store *stubStore) CreateCompletion(ctx context.Context, completion Completion) error {
	if store.createCompletion != nil {
		return store.createCompletion
	}
	store.dataMutex.Lock()
	defer store.dataMutex.Unlock()
	for _, existing := range store.state.completions {
		if existing.Provider == completion.Provider && existing.OfferID == completion.OfferID && existing.ExternalCompletionID == completion.ExternalCompletionID {
			return ErrDuplicateCompletion
		}
	}
	store.state.completions[completion.CompletionID.String()] = completion
	return nil
}

func (store *stubStore) GetCompletion(ctx context.Context, completionID CompletionID) (Completion, error) {
	store.dataMutex.Lock()
	defer store.dataMutex.Unlock()
	completion, ok := store.state.completions[completionID.String()]
	if !ok {
		return Completion{}, ErrUnknownCompletion
	}
	return completion, nil
}

func (store *stubStore) FindCompletionByExternalRef(ctx context.Context, provider ProviderID, offer OfferID, externalCompletionID string) (Completion, error) {
	store.dataMutex.Lock()
	defer store.dataMutex.Unlock()
	for _, completion := range store.state.completions {
		if completion.Provider == provider && completion.OfferID == offer && completion.ExternalCompletionID == externalCompletionID {
			return completion, nil
		}
	}
	return Completion{}, ErrUnknownCompletion
}

func (store *stubStore) UpdateCompletionStatus(ctx context.Context, completionID CompletionID, from, to CompletionStatus, reason string) error {
	store.dataMutex.Lock()
	defer store.dataMutex.Unlock()
	completion, ok := store.state.completions[completionID.String()]
	if !ok {
		return ErrUnknownCompletion
	}
	if completion.Status != from {
		return ErrStatusConflict
	}
	completion.Status = to
	completion.ReversalReason = reason
	store.state.completions[completionID.String()] = completion
	return nil
}

func (store *stubStore) ListCompletions(ctx context.Context, userID UserID, limit int) ([]Completion, error) {
	if store.listError != nil {
		return nil, store.listError
	}
	store.dataMutex.Lock()
	defer store.dataMutex.Unlock()
	result := []Completion{}
	for _, completion := range store.state.completions {
		if completion.UserID == userID {
			result = append(result, completion)
		}
	}
	sort.Slice(result, func(left, right int) bool {
		if !result[left].CreatedAt.Equal(result[right].CreatedAt) {
			return result[left].CreatedAt.After(result[right].CreatedAt)
		}
		return result[left].CompletionID.String() > result[right].CompletionID.String()
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (store *stubStore) CountCompletions(ctx context.Context, userID UserID, status CompletionStatus) (int64, error) {
	store.dataMutex.Lock()
	defer store.dataMutex.Unlock()
	var count int64
	for _, completion := range store.state.completions {
		if completion.UserID == userID && completion.Status == status {
			count++
		}
	}
	return count, nil
}

func (store *stubStore) CreateWithdrawal(ctx context.Context, withdrawal Withdrawal) error {
	if store.createWithdrawal != nil {
		return store.createWithdrawal
	}
	store.dataMutex.Lock()
	defer store.dataMutex.Unlock()
	store.state.withdrawals[withdrawal.WithdrawalID.String()] = withdrawal
	return nil
}

func (store *stubStore) GetWithdrawal(ctx context.Context, withdrawalID WithdrawalID) (Withdrawal, error) {
	store.dataMutex.Lock()
	defer store.dataMutex.Unlock()
	withdrawal, ok := store.state.withdrawals[withdrawalID.String()]
	if !ok {
		return Withdrawal{}, ErrUnknownWithdrawal
	}
	return withdrawal, nil
}

func (store *stubStore) UpdateWithdrawalStatus(ctx context.Context, withdrawalID WithdrawalID, from, to WithdrawalStatus, resolvedAt time.Time) error {
	store.dataMutex.Lock()
	defer store.dataMutex.Unlock()
	withdrawal, ok := store.state.withdrawals[withdrawalID.String()]
	if !ok {
		return ErrUnknownWithdrawal
	}
	if withdrawal.Status != from {
		return ErrStatusConflict
	}
	withdrawal.Status = to
	withdrawal.ResolvedAt = &resolvedAt
	store.state.withdrawals[withdrawalID.String()] = withdrawal
	return nil
}

func (store *stubStore) ListWithdrawals(ctx context.Context, userID UserID, limit int) ([]Withdrawal, error) {
	if store.listError != nil {
		return nil, store.listError
	}
	store.dataMutex.Lock()
	defer store.dataMutex.Unlock()
	result := []Withdrawal{}
	for _, withdrawal := range store.state.withdrawals {
		if withdrawal.UserID == userID {
			result = append(result, withdrawal)
		}
	}
	sort.Slice(result, func(left, right int) bool {
		if !result[left].CreatedAt.Equal(result[right].CreatedAt) {
			return result[left].CreatedAt.After(result[right].CreatedAt)
		}
		return result[left].WithdrawalID.String() > result[right].WithdrawalID.String()
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (store *stubStore) ListLeaderboard(ctx context.Context, limit int) ([]LeaderboardRow, error) {
	if store.leaderboardError != nil {
		return nil, store.leaderboardError
	}
	store.dataMutex.Lock()
	defer store.dataMutex.Unlock()
	rows := []LeaderboardRow{}
	for _, account := range store.state.accounts {
		var completed int64
		for _, completion := range store.state.completions {
			if completion.UserID == account.UserID && completion.Status == CompletionStatusCompleted {
				completed++
			}
		}
		rows = append(rows, LeaderboardRow{
			UserID:           account.UserID,
			TotalEarned:      account.TotalEarned,
			CompletedSurveys: completed,
			AccountCreatedAt: account.CreatedAt,
		})
	}
	if limit > 0 && len(rows) > limit {
		sort.Slice(rows, func(left, right int) bool { return rows[left].TotalEarned > rows[right].TotalEarned })
		rows = rows[:limit]
	}
	return rows, nil
}

func (store *stubStore) mustAccount(test *testing.T, userID UserID) Account {
	test.Helper()
	account, err := store.GetAccount(context.Background(), userID)
	if err != nil {
		test.Fatalf("account %s: %v", userID.String(), err)
	}
	return account
}

func (store *stubStore) entryCount() int {
	store.dataMutex.Lock()
	defer store.dataMutex.Unlock()
	return len(store.state.entries)
}

// steppingClock returns a clock that advances one second per call.
func steppingClock(start int64) func() time.Time {
	var mutex sync.Mutex
	current := start
	return func() time.Time {
		mutex.Lock()
		defer mutex.Unlock()
		current++
		return time.Unix(current, 0).UTC()
	}
}

func sequentialIDs() func(prefix string) string {
	var mutex sync.Mutex
	counter := 0
	return func(prefix string) string {
		mutex.Lock()
		defer mutex.Unlock()
		counter++
		return fmt.Sprintf("%s%04d", prefix, counter)
	}
}

func mustNewService(test *testing.T, store Store, options ...ServiceOption) *Service {
	test.Helper()
	options = append([]ServiceOption{WithIDGenerator(sequentialIDs())}, options...)
	service, err := NewService(store, steppingClock(1000), options...)
	if err != nil {
		test.Fatalf("new service: %v", err)
	}
	return service
}

func mustUserID(test *testing.T, raw string) UserID {
	test.Helper()
	value, err := NewUserID(raw)
	if err != nil {
		test.Fatalf("user id: %v", err)
	}
	return value
}

func mustProviderID(test *testing.T, raw string) ProviderID {
	test.Helper()
	value, err := NewProviderID(raw)
	if err != nil {
		test.Fatalf("provider id: %v", err)
	}
	return value
}

func mustOfferID(test *testing.T, raw string) OfferID {
	test.Helper()
	value, err := NewOfferID(raw)
	if err != nil {
		test.Fatalf("offer id: %v", err)
	}
	return value
}

func mustIdempotencyKey(test *testing.T, raw string) IdempotencyKey {
	test.Helper()
	value, err := NewIdempotencyKey(raw)
	if err != nil {
		test.Fatalf("idempotency key: %v", err)
	}
	return value
}

func mustMetadata(test *testing.T, raw string) MetadataJSON {
	test.Helper()
	value, err := NewMetadataJSON(raw)
	if err != nil {
		test.Fatalf("metadata: %v", err)
	}
	return value
}

func mustAccountID(test *testing.T, raw string) AccountID {
	test.Helper()
	value, err := NewAccountID(raw)
	if err != nil {
		test.Fatalf("account id: %v", err)
	}
	return value
}

func mustCompletionID(test *testing.T, raw string) CompletionID {
	test.Helper()
	value, err := NewCompletionID(raw)
	if err != nil {
		test.Fatalf("completion id: %v", err)
	}
	return value
}

func mustWithdrawalID(test *testing.T, raw string) WithdrawalID {
	test.Helper()
	value, err := NewWithdrawalID(raw)
	if err != nil {
		test.Fatalf("withdrawal id: %v", err)
	}
	return value
}

func completeSurvey(test *testing.T, service *Service, userID UserID, offer string, externalID string, points int64) CompletionResult {
	test.Helper()
	result, err := service.ApplyCompletion(context.Background(), CompletionRequest{
		UserID:               userID,
		Provider:             mustProviderID(test, "inbrain"),
		OfferID:              mustOfferID(test, offer),
		ExternalCompletionID: externalID,
		Points:               points,
	})
	if err != nil {
		test.Fatalf("apply completion %s/%s: %v", offer, externalID, err)
	}
	return result
}

func requestWithdrawal(test *testing.T, service *Service, userID UserID, amount int64) WithdrawalResult {
	test.Helper()
	result, err := service.RequestWithdrawal(context.Background(), WithdrawalRequest{
		UserID:  userID,
		Amount:  amount,
		Method:  "paypal",
		Details: "user@example.com",
	})
	if err != nil {
		test.Fatalf("request withdrawal %d: %v", amount, err)
	}
	return result
}

func assertBalances(test *testing.T, account Account, available, reserved, earned int64) {
	test.Helper()
	if account.Available.Int64() != available || account.Reserved.Int64() != reserved || account.TotalEarned.Int64() != earned {
		test.Fatalf("expected available=%d reserved=%d earned=%d, got available=%d reserved=%d earned=%d",
			available, reserved, earned, account.Available, account.Reserved, account.TotalEarned)
	}
}
