package ledger

import (
	"context"
	"sort"
	"time"
)

// Stats is the dashboard summary of a user's account.
type Stats struct {
	Account          Account
	CompletedSurveys int64
	PendingWithdrawn Points
	RecentCredits    []Entry
}

// Wallet is the account plus the most recent withdrawals.
type Wallet struct {
	Account           Account
	PendingWithdrawn  Points
	RecentWithdrawals []Withdrawal
}

// HistoryKind tags a history item.
type HistoryKind string

const (
	HistoryCompletion HistoryKind = "completion"
	HistoryWithdrawal HistoryKind = "withdrawal"
)

// HistoryItem is either a completion or a withdrawal.
type HistoryItem struct {
	Kind       HistoryKind
	Completion *Completion
	Withdrawal *Withdrawal
	CreatedAt  time.Time
}

func (item HistoryItem) id() string {
	if item.Completion != nil {
		return item.Completion.CompletionID.String()
	}
	if item.Withdrawal != nil {
		return item.Withdrawal.WithdrawalID.String()
	}
	return ""
}

// Stats aggregates balances, completion count and recent credits.
func (service *Service) Stats(ctx context.Context, userID UserID) (Stats, error) {
	account, err := service.Account(ctx, userID)
	if err != nil {
		return Stats{}, err
	}
	completed, err := service.store.CountCompletions(ctx, userID, CompletionStatusCompleted)
	if err != nil {
		return Stats{}, err
	}
	recent := []Entry{}
	if account.AccountID.String() != "" {
		recent, err = service.store.ListEntries(ctx, account.AccountID, EntryFilter{
			Kinds: []EntryKind{EntryCredit},
			Limit: DefaultRecentCreditsLimit,
		})
		if err != nil {
			return Stats{}, err
		}
	}
	return Stats{
		Account:          account,
		CompletedSurveys: completed,
		PendingWithdrawn: account.Reserved,
		RecentCredits:    recent,
	}, nil
}

// Wallet returns the account and its most recent withdrawals.
func (service *Service) Wallet(ctx context.Context, userID UserID) (Wallet, error) {
	account, err := service.Account(ctx, userID)
	if err != nil {
		return Wallet{}, err
	}
	withdrawals, err := service.store.ListWithdrawals(ctx, userID, DefaultRecentWithdrawalsLimit)
	if err != nil {
		return Wallet{}, err
	}
	return Wallet{
		Account:           account,
		PendingWithdrawn:  account.Reserved,
		RecentWithdrawals: withdrawals,
	}, nil
}

// ListWithdrawals returns the user's withdrawals, newest first.
func (service *Service) ListWithdrawals(ctx context.Context, userID UserID, limit int) ([]Withdrawal, error) {
	if limit <= 0 {
		limit = DefaultWithdrawalsLimit
	}
	return service.store.ListWithdrawals(ctx, userID, limit)
}

// ListCompletions returns the user's completions, newest first.
func (service *Service) ListCompletions(ctx context.Context, userID UserID, limit int) ([]Completion, error) {
	if limit <= 0 {
		limit = DefaultCompletionsLimit
	}
	return service.store.ListCompletions(ctx, userID, limit)
}

// ListEntries returns the user's ledger entries, newest first.
func (service *Service) ListEntries(ctx context.Context, userID UserID, filter EntryFilter) ([]Entry, error) {
	account, err := service.Account(ctx, userID)
	if err != nil {
		return nil, err
	}
	if account.AccountID.String() == "" {
		return []Entry{}, nil
	}
	return service.store.ListEntries(ctx, account.AccountID, filter)
}

// Leaderboard ranks users by lifetime earnings.
// Ties go to the account created first, then to the lower user id.
func (service *Service) Leaderboard(ctx context.Context, limit int) ([]LeaderboardRow, error) {
	if limit <= 0 {
		limit = DefaultLeaderboardLimit
	}
	if limit > MaxLeaderboardLimit {
		limit = MaxLeaderboardLimit
	}
	rows, err := service.store.ListLeaderboard(ctx, limit)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(rows, func(left, right int) bool {
		if rows[left].TotalEarned != rows[right].TotalEarned {
			return rows[left].TotalEarned > rows[right].TotalEarned
		}
		if !rows[left].AccountCreatedAt.Equal(rows[right].AccountCreatedAt) {
			return rows[left].AccountCreatedAt.Before(rows[right].AccountCreatedAt)
		}
		return rows[left].UserID.String() < rows[right].UserID.String()
	})
	for index := range rows {
		rows[index].Rank = index + 1
	}
	return rows, nil
}

// History merges completions and withdrawals, newest first.
func (service *Service) History(ctx context.Context, userID UserID) ([]HistoryItem, error) {
	completions, err := service.store.ListCompletions(ctx, userID, 0)
	if err != nil {
		return nil, err
	}
	withdrawals, err := service.store.ListWithdrawals(ctx, userID, 0)
	if err != nil {
		return nil, err
	}
	items := make([]HistoryItem, 0, len(completions)+len(withdrawals))
	for index := range completions {
		completion := completions[index]
		items = append(items, HistoryItem{Kind: HistoryCompletion, Completion: &completion, CreatedAt: completion.CreatedAt})
	}
	for index := range withdrawals {
		withdrawal := withdrawals[index]
		items = append(items, HistoryItem{Kind: HistoryWithdrawal, Withdrawal: &withdrawal, CreatedAt: withdrawal.CreatedAt})
	}
	sort.SliceStable(items, func(left, right int) bool {
		if !items[left].CreatedAt.Equal(items[right].CreatedAt) {
			return items[left].CreatedAt.After(items[right].CreatedAt)
		}
		return items[left].id() > items[right].id()
	})
	return items, nil
}
