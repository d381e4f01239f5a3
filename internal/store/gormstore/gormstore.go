package gormstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/surveypay/internal/database"
	"github.com/MarkoPoloResearchLab/surveypay/pkg/ledger"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultMetadataJSON     = "{}"
	errorOperationStore     = "store"
	errorSubjectAccount     = "account"
	errorSubjectBalance     = "balance"
	errorSubjectEntry       = "entry"
	errorSubjectCompletion  = "completion"
	errorSubjectWithdrawal  = "withdrawal"
	errorSubjectLeaderboard = "leaderboard"
	errorCodeCount          = "count"
	errorCodeCreate         = "create"
	errorCodeDuplicate      = "duplicate"
	errorCodeGet            = "get"
	errorCodeInsert         = "insert"
	errorCodeInvalid        = "invalid"
	errorCodeList           = "list"
	errorCodeLookup         = "lookup"
	errorCodeApply          = "apply"
	errorCodeUpdateStatus   = "update_status"
	lockStrengthUpdate      = "UPDATE"
)

// Store implements ledger.Store using GORM.
type Store struct {
	db           *gorm.DB
	now          func() time.Time
	participants string
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock used for account creation timestamps.
func WithClock(now func() time.Time) Option {
	return func(store *Store) {
		if now != nil {
			store.now = now
		}
	}
}

// WithParticipants ranks every row of table on the leaderboard, including users without an account.
// The table needs user_id and created_at columns.
func WithParticipants(table string) Option {
	return func(store *Store) {
		store.participants = strings.TrimSpace(table)
	}
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB, options ...Option) *Store {
	store := &Store{db: db, now: time.Now}
	for _, option := range options {
		option(store)
	}
	return store
}

// WithTx executes fn within a transaction.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore ledger.Store) error) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &Store{db: transaction, now: store.now, participants: store.participants})
	})
}

// GetOrCreateAccount returns the user's account, creating it on first use.
// The row is locked for the rest of the transaction where the dialect supports it.
func (store *Store) GetOrCreateAccount(ctx context.Context, userID ledger.UserID) (ledger.Account, error) {
	model, err := store.lockAccount(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		created := Account{UserID: userID.String(), CreatedAt: store.now().UTC()}
		err = store.db.WithContext(ctx).
			Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
			Create(&created).Error
		if err != nil {
			return ledger.Account{}, wrapStoreError(errorSubjectAccount, errorCodeCreate, err)
		}
		model, err = store.lockAccount(ctx, userID)
	}
	if err != nil {
		return ledger.Account{}, wrapStoreError(errorSubjectAccount, errorCodeLookup, err)
	}
	account, err := mapAccount(model)
	if err != nil {
		return ledger.Account{}, wrapStoreError(errorSubjectAccount, errorCodeInvalid, err)
	}
	return account, nil
}

// GetAccount returns the user's account or ledger.ErrUnknownAccount.
func (store *Store) GetAccount(ctx context.Context, userID ledger.UserID) (ledger.Account, error) {
	var model Account
	err := store.db.WithContext(ctx).Where("user_id = ?", userID.String()).Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ledger.Account{}, wrapStoreError(errorSubjectAccount, errorCodeGet, ledger.ErrUnknownAccount)
	}
	if err != nil {
		return ledger.Account{}, wrapStoreError(errorSubjectAccount, errorCodeGet, err)
	}
	account, err := mapAccount(model)
	if err != nil {
		return ledger.Account{}, wrapStoreError(errorSubjectAccount, errorCodeInvalid, err)
	}
	return account, nil
}

// AppendEntry inserts the entry and applies its effect to the account balances.
// The insert and the balance update commit together; inside WithTx they join the caller's transaction.
// The balance update is conditional, so a concurrent writer can never push a balance below zero.
func (store *Store) AppendEntry(ctx context.Context, entryInput ledger.EntryInput) (ledger.Account, error) {
	if err := entryInput.Validate(); err != nil {
		return ledger.Account{}, wrapStoreError(errorSubjectEntry, errorCodeInvalid, err)
	}
	var account ledger.Account
	err := store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		applied, err := (&Store{db: transaction, now: store.now, participants: store.participants}).appendEntry(ctx, entryInput)
		if err != nil {
			return err
		}
		account = applied
		return nil
	})
	if err != nil {
		return ledger.Account{}, err
	}
	return account, nil
}

func (store *Store) appendEntry(ctx context.Context, entryInput ledger.EntryInput) (ledger.Account, error) {
	entry := LedgerEntry{
		AccountID:       entryInput.AccountID.String(),
		Kind:            entryInput.Kind.String(),
		AmountPoints:    entryInput.Amount,
		ReservedDelta:   entryInput.ReservedDelta,
		ShortfallPoints: entryInput.Shortfall.Int64(),
		Reference:       entryInput.Reference,
		IdempotencyKey:  entryInput.IdempotencyKey.String(),
		Metadata:        datatypesJSON(entryInput.Metadata.String()),
		CreatedAt:       entryInput.CreatedAt.UTC(),
	}
	if entryInput.CreatedAt.IsZero() {
		entry.CreatedAt = store.now().UTC()
	}
	err := store.db.WithContext(ctx).Create(&entry).Error
	if database.IsUniqueViolation(err) {
		return ledger.Account{}, wrapStoreError(errorSubjectEntry, errorCodeDuplicate, ledger.ErrDuplicateIdempotencyKey)
	}
	if err != nil {
		return ledger.Account{}, wrapStoreError(errorSubjectEntry, errorCodeInsert, err)
	}

	effect := entryInput.Effect()
	result := store.db.WithContext(ctx).
		Model(&Account{}).
		Where("account_id = ? AND available_points + ? >= 0 AND reserved_points + ? >= 0",
			entryInput.AccountID.String(), effect.Available, effect.Reserved).
		Updates(map[string]interface{}{
			"available_points":    gorm.Expr("available_points + ?", effect.Available),
			"reserved_points":     gorm.Expr("reserved_points + ?", effect.Reserved),
			"total_earned_points": gorm.Expr("total_earned_points + ?", effect.TotalEarned),
			"debt_points":         gorm.Expr("debt_points + ?", effect.Debt),
		})
	if result.Error != nil {
		return ledger.Account{}, wrapStoreError(errorSubjectBalance, errorCodeApply, result.Error)
	}

	var model Account
	if err := store.db.WithContext(ctx).Where("account_id = ?", entryInput.AccountID.String()).Take(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ledger.Account{}, wrapStoreError(errorSubjectAccount, errorCodeGet, ledger.ErrUnknownAccount)
		}
		return ledger.Account{}, wrapStoreError(errorSubjectAccount, errorCodeGet, err)
	}
	account, err := mapAccount(model)
	if err != nil {
		return ledger.Account{}, wrapStoreError(errorSubjectAccount, errorCodeInvalid, err)
	}
	if result.RowsAffected == 0 {
		if _, applyErr := account.Balances.Apply(effect); applyErr != nil {
			return ledger.Account{}, applyErr
		}
		return ledger.Account{}, wrapStoreError(errorSubjectBalance, errorCodeApply, ledger.ErrInvalidBalance)
	}
	return account, nil
}

// FindEntryByIdempotencyKey returns the entry recorded under key or ledger.ErrUnknownEntry.
func (store *Store) FindEntryByIdempotencyKey(ctx context.Context, key ledger.IdempotencyKey) (ledger.Entry, error) {
	var row LedgerEntry
	err := store.db.WithContext(ctx).Where("idempotency_key = ?", key.String()).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ledger.Entry{}, wrapStoreError(errorSubjectEntry, errorCodeLookup, ledger.ErrUnknownEntry)
	}
	if err != nil {
		return ledger.Entry{}, wrapStoreError(errorSubjectEntry, errorCodeLookup, err)
	}
	entry, err := mapLedgerEntry(row)
	if err != nil {
		return ledger.Entry{}, wrapStoreError(errorSubjectEntry, errorCodeInvalid, err)
	}
	return entry, nil
}

// ListEntries returns the account's entries newest first.
func (store *Store) ListEntries(ctx context.Context, accountID ledger.AccountID, filter ledger.EntryFilter) ([]ledger.Entry, error) {
	query := store.db.WithContext(ctx).Where("account_id = ?", accountID.String())
	if len(filter.Kinds) > 0 {
		kinds := make([]string, 0, len(filter.Kinds))
		for _, kind := range filter.Kinds {
			kinds = append(kinds, kind.String())
		}
		query = query.Where("kind IN ?", kinds)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	var rows []LedgerEntry
	if err := query.Order("id DESC").Find(&rows).Error; err != nil {
		return nil, wrapStoreError(errorSubjectEntry, errorCodeList, err)
	}
	entries := make([]ledger.Entry, 0, len(rows))
	for _, row := range rows {
		entry, err := mapLedgerEntry(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectEntry, errorCodeInvalid, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// CreateCompletion inserts a completion. A second completion for the same
// provider event fails with ledger.ErrDuplicateCompletion.
func (store *Store) CreateCompletion(ctx context.Context, completion ledger.Completion) error {
	model := SurveyCompletion{
		CompletionID:         completion.CompletionID.String(),
		UserID:               completion.UserID.String(),
		Provider:             completion.Provider.String(),
		OfferID:              completion.OfferID.String(),
		ExternalCompletionID: completion.ExternalCompletionID,
		Points:               completion.Points.Int64(),
		Status:               completion.Status.String(),
		ReversalReason:       completion.ReversalReason,
		CreatedAt:            completion.CreatedAt.UTC(),
	}
	err := store.db.WithContext(ctx).Create(&model).Error
	if database.IsUniqueViolation(err) {
		return wrapStoreError(errorSubjectCompletion, errorCodeDuplicate, ledger.ErrDuplicateCompletion)
	}
	if err != nil {
		return wrapStoreError(errorSubjectCompletion, errorCodeCreate, err)
	}
	return nil
}

func (store *Store) GetCompletion(ctx context.Context, completionID ledger.CompletionID) (ledger.Completion, error) {
	return store.takeCompletion(ctx, store.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: lockStrengthUpdate}).
		Where("completion_id = ?", completionID.String()))
}

func (store *Store) FindCompletionByExternalRef(ctx context.Context, provider ledger.ProviderID, offer ledger.OfferID, externalCompletionID string) (ledger.Completion, error) {
	return store.takeCompletion(ctx, store.db.WithContext(ctx).
		Where("provider = ? AND offer_id = ? AND external_completion_id = ?", provider.String(), offer.String(), externalCompletionID))
}

// UpdateCompletionStatus moves a completion from one status to another.
// It fails with ledger.ErrStatusConflict when the completion is no longer in from.
func (store *Store) UpdateCompletionStatus(ctx context.Context, completionID ledger.CompletionID, from, to ledger.CompletionStatus, reason string) error {
	result := store.db.WithContext(ctx).
		Model(&SurveyCompletion{}).
		Where("completion_id = ? AND status = ?", completionID.String(), from.String()).
		Updates(map[string]interface{}{"status": to.String(), "reversal_reason": reason})
	if result.Error != nil {
		return wrapStoreError(errorSubjectCompletion, errorCodeUpdateStatus, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectCompletion, errorCodeUpdateStatus, ledger.ErrStatusConflict)
	}
	return nil
}

func (store *Store) ListCompletions(ctx context.Context, userID ledger.UserID, limit int) ([]ledger.Completion, error) {
	query := store.db.WithContext(ctx).
		Where("user_id = ?", userID.String()).
		Order("created_at DESC").
		Order("completion_id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var rows []SurveyCompletion
	if err := query.Find(&rows).Error; err != nil {
		return nil, wrapStoreError(errorSubjectCompletion, errorCodeList, err)
	}
	completions := make([]ledger.Completion, 0, len(rows))
	for _, row := range rows {
		completion, err := mapCompletion(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectCompletion, errorCodeInvalid, err)
		}
		completions = append(completions, completion)
	}
	return completions, nil
}

func (store *Store) CountCompletions(ctx context.Context, userID ledger.UserID, status ledger.CompletionStatus) (int64, error) {
	var count int64
	err := store.db.WithContext(ctx).
		Model(&SurveyCompletion{}).
		Where("user_id = ? AND status = ?", userID.String(), status.String()).
		Count(&count).Error
	if err != nil {
		return 0, wrapStoreError(errorSubjectCompletion, errorCodeCount, err)
	}
	return count, nil
}

func (store *Store) CreateWithdrawal(ctx context.Context, withdrawal ledger.Withdrawal) error {
	model := Withdrawal{
		WithdrawalID: withdrawal.WithdrawalID.String(),
		UserID:       withdrawal.UserID.String(),
		AmountPoints: withdrawal.Amount.Int64(),
		Method:       withdrawal.Method.String(),
		Details:      withdrawal.Details,
		Status:       withdrawal.Status.String(),
		CreatedAt:    withdrawal.CreatedAt.UTC(),
		ResolvedAt:   withdrawal.ResolvedAt,
	}
	err := store.db.WithContext(ctx).Create(&model).Error
	if database.IsUniqueViolation(err) {
		return wrapStoreError(errorSubjectWithdrawal, errorCodeDuplicate, ledger.ErrDuplicateIdempotencyKey)
	}
	if err != nil {
		return wrapStoreError(errorSubjectWithdrawal, errorCodeCreate, err)
	}
	return nil
}

// GetWithdrawal loads a withdrawal, locking it for the rest of the transaction.
func (store *Store) GetWithdrawal(ctx context.Context, withdrawalID ledger.WithdrawalID) (ledger.Withdrawal, error) {
	var model Withdrawal
	err := store.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: lockStrengthUpdate}).
		Where("withdrawal_id = ?", withdrawalID.String()).
		Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ledger.Withdrawal{}, wrapStoreError(errorSubjectWithdrawal, errorCodeGet, ledger.ErrUnknownWithdrawal)
	}
	if err != nil {
		return ledger.Withdrawal{}, wrapStoreError(errorSubjectWithdrawal, errorCodeGet, err)
	}
	withdrawal, err := mapWithdrawal(model)
	if err != nil {
		return ledger.Withdrawal{}, wrapStoreError(errorSubjectWithdrawal, errorCodeInvalid, err)
	}
	return withdrawal, nil
}

func (store *Store) UpdateWithdrawalStatus(ctx context.Context, withdrawalID ledger.WithdrawalID, from, to ledger.WithdrawalStatus, resolvedAt time.Time) error {
	result := store.db.WithContext(ctx).
		Model(&Withdrawal{}).
		Where("withdrawal_id = ? AND status = ?", withdrawalID.String(), from.String()).
		Updates(map[string]interface{}{"status": to.String(), "resolved_at": resolvedAt.UTC()})
	if result.Error != nil {
		return wrapStoreError(errorSubjectWithdrawal, errorCodeUpdateStatus, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectWithdrawal, errorCodeUpdateStatus, ledger.ErrStatusConflict)
	}
	return nil
}

func (store *Store) ListWithdrawals(ctx context.Context, userID ledger.UserID, limit int) ([]ledger.Withdrawal, error) {
	query := store.db.WithContext(ctx).
		Where("user_id = ?", userID.String()).
		Order("created_at DESC").
		Order("withdrawal_id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var rows []Withdrawal
	if err := query.Find(&rows).Error; err != nil {
		return nil, wrapStoreError(errorSubjectWithdrawal, errorCodeList, err)
	}
	withdrawals := make([]ledger.Withdrawal, 0, len(rows))
	for _, row := range rows {
		withdrawal, err := mapWithdrawal(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectWithdrawal, errorCodeInvalid, err)
		}
		withdrawals = append(withdrawals, withdrawal)
	}
	return withdrawals, nil
}

type leaderboardRow struct {
	UserID               string
	TotalEarnedPoints    int64
	AccountCreatedAt     *time.Time
	ParticipantCreatedAt *time.Time
	CompletedSurveys     int64
}

const completedSurveysColumn = "(SELECT COUNT(*) FROM survey_completions WHERE survey_completions.user_id = %s.user_id AND survey_completions.status = ?) AS completed_surveys"

// ListLeaderboard ranks users by lifetime earnings, oldest first on ties.
// Without participants only users holding an account are ranked.
func (store *Store) ListLeaderboard(ctx context.Context, limit int) ([]ledger.LeaderboardRow, error) {
	completed := ledger.CompletionStatusCompleted.String()
	var query *gorm.DB
	if store.participants == "" {
		query = store.db.WithContext(ctx).
			Model(&Account{}).
			Select("accounts.user_id, accounts.total_earned_points, accounts.created_at AS account_created_at, "+
				fmt.Sprintf(completedSurveysColumn, "accounts"), completed).
			Order("accounts.total_earned_points DESC").
			Order("accounts.created_at ASC").
			Order("accounts.user_id ASC")
	} else {
		query = store.db.WithContext(ctx).
			Table(store.participants+" AS participants").
			Joins("LEFT JOIN accounts ON accounts.user_id = participants.user_id").
			Select("participants.user_id, COALESCE(accounts.total_earned_points, 0) AS total_earned_points, "+
				"accounts.created_at AS account_created_at, participants.created_at AS participant_created_at, "+
				fmt.Sprintf(completedSurveysColumn, "participants"), completed).
			Order("total_earned_points DESC").
			Order("COALESCE(accounts.created_at, participants.created_at) ASC").
			Order("participants.user_id ASC")
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	var rows []leaderboardRow
	if err := query.Scan(&rows).Error; err != nil {
		return nil, wrapStoreError(errorSubjectLeaderboard, errorCodeList, err)
	}
	result := make([]ledger.LeaderboardRow, 0, len(rows))
	for _, row := range rows {
		userID, err := ledger.NewUserID(row.UserID)
		if err != nil {
			return nil, wrapStoreError(errorSubjectLeaderboard, errorCodeInvalid, err)
		}
		var createdAt time.Time
		switch {
		case row.AccountCreatedAt != nil:
			createdAt = row.AccountCreatedAt.UTC()
		case row.ParticipantCreatedAt != nil:
			createdAt = row.ParticipantCreatedAt.UTC()
		}
		result = append(result, ledger.LeaderboardRow{
			UserID:           userID,
			TotalEarned:      ledger.Points(row.TotalEarnedPoints),
			CompletedSurveys: row.CompletedSurveys,
			AccountCreatedAt: createdAt,
		})
	}
	return result, nil
}

func (store *Store) lockAccount(ctx context.Context, userID ledger.UserID) (Account, error) {
	var model Account
	err := store.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: lockStrengthUpdate}).
		Where("user_id = ?", userID.String()).
		Take(&model).Error
	return model, err
}

func (store *Store) takeCompletion(ctx context.Context, query *gorm.DB) (ledger.Completion, error) {
	var model SurveyCompletion
	err := query.Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ledger.Completion{}, wrapStoreError(errorSubjectCompletion, errorCodeGet, ledger.ErrUnknownCompletion)
	}
	if err != nil {
		return ledger.Completion{}, wrapStoreError(errorSubjectCompletion, errorCodeGet, err)
	}
	completion, err := mapCompletion(model)
	if err != nil {
		return ledger.Completion{}, wrapStoreError(errorSubjectCompletion, errorCodeInvalid, err)
	}
	return completion, nil
}

func wrapStoreError(subject string, code string, err error) error {
	return ledger.WrapError(errorOperationStore, subject, code, err)
}

func mapAccount(model Account) (ledger.Account, error) {
	accountID, err := ledger.NewAccountID(model.AccountID)
	if err != nil {
		return ledger.Account{}, err
	}
	userID, err := ledger.NewUserID(model.UserID)
	if err != nil {
		return ledger.Account{}, err
	}
	return ledger.Account{
		AccountID: accountID,
		UserID:    userID,
		Balances: ledger.Balances{
			Available:   ledger.Points(model.AvailablePoints),
			Reserved:    ledger.Points(model.ReservedPoints),
			TotalEarned: ledger.Points(model.TotalEarnedPoints),
			Debt:        ledger.Points(model.DebtPoints),
		},
		CreatedAt: model.CreatedAt.UTC(),
	}, nil
}

func mapLedgerEntry(row LedgerEntry) (ledger.Entry, error) {
	entryID, err := ledger.NewEntryID(row.EntryID)
	if err != nil {
		return ledger.Entry{}, err
	}
	accountID, err := ledger.NewAccountID(row.AccountID)
	if err != nil {
		return ledger.Entry{}, err
	}
	kind, err := ledger.ParseEntryKind(row.Kind)
	if err != nil {
		return ledger.Entry{}, err
	}
	shortfall, err := ledger.NewPoints(row.ShortfallPoints)
	if err != nil {
		return ledger.Entry{}, err
	}
	idempotencyKey, err := ledger.NewIdempotencyKey(row.IdempotencyKey)
	if err != nil {
		return ledger.Entry{}, err
	}
	metadata, err := ledger.NewMetadataJSON(string(row.Metadata))
	if err != nil {
		return ledger.Entry{}, err
	}
	return ledger.Entry{
		EntryID: entryID,
		EntryInput: ledger.EntryInput{
			AccountID:      accountID,
			Kind:           kind,
			Amount:         row.AmountPoints,
			ReservedDelta:  row.ReservedDelta,
			Shortfall:      shortfall,
			Reference:      row.Reference,
			IdempotencyKey: idempotencyKey,
			Metadata:       metadata,
			CreatedAt:      row.CreatedAt.UTC(),
		},
	}, nil
}

func mapCompletion(model SurveyCompletion) (ledger.Completion, error) {
	completionID, err := ledger.NewCompletionID(model.CompletionID)
	if err != nil {
		return ledger.Completion{}, err
	}
	userID, err := ledger.NewUserID(model.UserID)
	if err != nil {
		return ledger.Completion{}, err
	}
	provider, err := ledger.NewProviderID(model.Provider)
	if err != nil {
		return ledger.Completion{}, err
	}
	offer, err := ledger.NewOfferID(model.OfferID)
	if err != nil {
		return ledger.Completion{}, err
	}
	points, err := ledger.NewPoints(model.Points)
	if err != nil {
		return ledger.Completion{}, err
	}
	status, err := ledger.ParseCompletionStatus(model.Status)
	if err != nil {
		return ledger.Completion{}, err
	}
	return ledger.Completion{
		CompletionID:         completionID,
		UserID:               userID,
		Provider:             provider,
		OfferID:              offer,
		ExternalCompletionID: model.ExternalCompletionID,
		Points:               points,
		Status:               status,
		ReversalReason:       model.ReversalReason,
		CreatedAt:            model.CreatedAt.UTC(),
	}, nil
}

func mapWithdrawal(model Withdrawal) (ledger.Withdrawal, error) {
	withdrawalID, err := ledger.NewWithdrawalID(model.WithdrawalID)
	if err != nil {
		return ledger.Withdrawal{}, err
	}
	userID, err := ledger.NewUserID(model.UserID)
	if err != nil {
		return ledger.Withdrawal{}, err
	}
	amount, err := ledger.NewPositivePoints(model.AmountPoints)
	if err != nil {
		return ledger.Withdrawal{}, err
	}
	method, err := ledger.ParseWithdrawalMethod(model.Method)
	if err != nil {
		return ledger.Withdrawal{}, err
	}
	status, err := ledger.ParseWithdrawalStatus(model.Status)
	if err != nil {
		return ledger.Withdrawal{}, err
	}
	var resolvedAt *time.Time
	if model.ResolvedAt != nil {
		value := model.ResolvedAt.UTC()
		resolvedAt = &value
	}
	return ledger.Withdrawal{
		WithdrawalID: withdrawalID,
		UserID:       userID,
		Amount:       amount,
		Method:       method,
		Details:      model.Details,
		Status:       status,
		CreatedAt:    model.CreatedAt.UTC(),
		ResolvedAt:   resolvedAt,
	}, nil
}

func datatypesJSON(raw string) datatypes.JSON {
	if raw == "" {
		return datatypes.JSON([]byte(defaultMetadataJSON))
	}
	return datatypes.JSON([]byte(raw))
}
