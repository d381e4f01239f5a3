package httpapi

import (
	"encoding/json"
	"time"

	"github.com/MarkoPoloResearchLab/surveypay/internal/surveys"
	"github.com/MarkoPoloResearchLab/surveypay/internal/users"
	"github.com/MarkoPoloResearchLab/surveypay/pkg/ledger"
	"github.com/shopspring/decimal"
)

var pointsPerDollar = decimal.NewFromInt(ledger.PointsPerDollar)

// pointsToUSD renders points as a dollar amount with two decimals. Display only.
func pointsToUSD(points ledger.Points) string {
	return decimal.NewFromInt(points.Int64()).Div(pointsPerDollar).StringFixed(2)
}

type registerRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	Name     string `json:"name" binding:"required"`
	Picture  string `json:"picture"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type federatedSessionRequest struct {
	Code  string `json:"code" binding:"required"`
	State string `json:"state" binding:"required"`
}

type withdrawalRequest struct {
	Amount         int64  `json:"amount"`
	Method         string `json:"method"`
	AccountDetails string `json:"account_details"`
}

type surveyActionRequest struct {
	SurveyID string `json:"survey_id" binding:"required"`
}

type resolveRequest struct {
	Outcome string `json:"outcome" binding:"required"`
}

type userPayload struct {
	UserID           string    `json:"user_id"`
	Email            string    `json:"email"`
	Name             string    `json:"name"`
	Picture          string    `json:"picture"`
	Role             string    `json:"role"`
	Balance          int64     `json:"balance"`
	BalanceUSD       string    `json:"balance_usd"`
	Reserved         int64     `json:"reserved"`
	TotalEarned      int64     `json:"total_earned"`
	Debt             int64     `json:"debt"`
	SurveysCompleted int64     `json:"surveys_completed"`
	PendingSurveys   int64     `json:"pending_surveys"`
	CreatedAt        time.Time `json:"created_at"`
}

type authResponse struct {
	Token string      `json:"token"`
	User  userPayload `json:"user"`
}

type withdrawalPayload struct {
	WithdrawalID   string     `json:"withdrawal_id"`
	UserID         string     `json:"user_id"`
	Amount         int64      `json:"amount"`
	AmountUSD      string     `json:"amount_usd"`
	Method         string     `json:"method"`
	AccountDetails string     `json:"account_details"`
	Status         string     `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
}

type completionPayload struct {
	CompletionID   string    `json:"completion_id"`
	SurveyID       string    `json:"survey_id"`
	UserID         string    `json:"user_id"`
	Provider       string    `json:"provider"`
	Title          string    `json:"title"`
	PointsEarned   int64     `json:"points_earned"`
	CompletedAt    time.Time `json:"completed_at"`
	Status         string    `json:"status"`
	ReversalReason string    `json:"reversal_reason,omitempty"`
}

type entryPayload struct {
	EntryID        string          `json:"entry_id"`
	Kind           string          `json:"kind"`
	Amount         int64           `json:"amount"`
	ReservedDelta  int64           `json:"reserved_delta"`
	Shortfall      int64           `json:"shortfall"`
	Reference      string          `json:"reference"`
	IdempotencyKey string          `json:"idempotency_key"`
	Metadata       json.RawMessage `json:"metadata"`
	CreatedAt      time.Time       `json:"created_at"`
}

type surveyPayload struct {
	SurveyID      string `json:"survey_id"`
	Provider      string `json:"provider"`
	Title         string `json:"title"`
	Description   string `json:"description"`
	Points        int64  `json:"points"`
	EstimatedTime int    `json:"estimated_time"`
	Category      string `json:"category"`
	Difficulty    string `json:"difficulty"`
	Status        string `json:"status"`
}

type statsResponse struct {
	Balance           int64               `json:"balance"`
	BalanceUSD        string              `json:"balance_usd"`
	Reserved          int64               `json:"reserved"`
	TotalEarned       int64               `json:"total_earned"`
	Debt              int64               `json:"debt"`
	SurveysCompleted  int64               `json:"surveys_completed"`
	PendingSurveys    int64               `json:"pending_surveys"`
	RecentCompletions []completionPayload `json:"recent_completions"`
	RecentCredits     []entryPayload      `json:"recent_credits"`
}

type walletResponse struct {
	Balance            int64               `json:"balance"`
	BalanceUSD         string              `json:"balance_usd"`
	TotalEarned        int64               `json:"total_earned"`
	PendingWithdrawals int64               `json:"pending_withdrawals"`
	Debt               int64               `json:"debt"`
	MinimumWithdrawal  int64               `json:"minimum_withdrawal"`
	PointsPerDollar    int64               `json:"points_per_dollar"`
	RecentWithdrawals  []withdrawalPayload `json:"recent_withdrawals"`
}

type leaderboardPayload struct {
	Rank             int    `json:"rank"`
	UserID           string `json:"user_id"`
	Name             string `json:"name"`
	Picture          string `json:"picture"`
	TotalEarned      int64  `json:"total_earned"`
	SurveysCompleted int64  `json:"surveys_completed"`
}

type historyPayload struct {
	Type       string             `json:"type"`
	CreatedAt  time.Time          `json:"created_at"`
	Completion *completionPayload `json:"completion,omitempty"`
	Withdrawal *withdrawalPayload `json:"withdrawal,omitempty"`
}

type surveyCompletionResponse struct {
	completionPayload
	Duplicate bool  `json:"duplicate"`
	Balance   int64 `json:"balance"`
}

type postbackResponse struct {
	Status       string `json:"status"`
	Kind         string `json:"kind"`
	Duplicate    bool   `json:"duplicate"`
	CompletionID string `json:"completion_id,omitempty"`
	Shortfall    int64  `json:"shortfall"`
}

type resolveResponse struct {
	Withdrawal withdrawalPayload `json:"withdrawal"`
	Changed    bool              `json:"changed"`
}

func newUserPayload(user users.User, stats ledger.Stats, pendingSurveys int64) userPayload {
	return userPayload{
		UserID:           user.UserID,
		Email:            user.Email,
		Name:             user.Name,
		Picture:          user.AvatarURL,
		Role:             string(user.Role),
		Balance:          stats.Account.Available.Int64(),
		BalanceUSD:       pointsToUSD(stats.Account.Available),
		Reserved:         stats.Account.Reserved.Int64(),
		TotalEarned:      stats.Account.TotalEarned.Int64(),
		Debt:             stats.Account.Debt.Int64(),
		SurveysCompleted: stats.CompletedSurveys,
		PendingSurveys:   pendingSurveys,
		CreatedAt:        user.CreatedAt,
	}
}

func newWithdrawalPayload(withdrawal ledger.Withdrawal) withdrawalPayload {
	return withdrawalPayload{
		WithdrawalID:   withdrawal.WithdrawalID.String(),
		UserID:         withdrawal.UserID.String(),
		Amount:         withdrawal.Amount.Int64(),
		AmountUSD:      pointsToUSD(withdrawal.Amount),
		Method:         withdrawal.Method.String(),
		AccountDetails: withdrawal.Details,
		Status:         withdrawal.Status.String(),
		CreatedAt:      withdrawal.CreatedAt,
		ResolvedAt:     withdrawal.ResolvedAt,
	}
}

func newWithdrawalPayloads(withdrawals []ledger.Withdrawal) []withdrawalPayload {
	payloads := make([]withdrawalPayload, 0, len(withdrawals))
	for _, withdrawal := range withdrawals {
		payloads = append(payloads, newWithdrawalPayload(withdrawal))
	}
	return payloads
}

// newCompletionPayload uses the catalog title when the offer is a catalog survey.
func newCompletionPayload(completion ledger.Completion, catalog *surveys.Catalog) completionPayload {
	title := completion.OfferID.String()
	if survey, ok := catalog.Get(completion.OfferID.String()); ok && survey.Provider.String() == completion.Provider.String() {
		title = survey.Title
	}
	return completionPayload{
		CompletionID:   completion.CompletionID.String(),
		SurveyID:       completion.OfferID.String(),
		UserID:         completion.UserID.String(),
		Provider:       completion.Provider.String(),
		Title:          title,
		PointsEarned:   completion.Points.Int64(),
		CompletedAt:    completion.CreatedAt,
		Status:         completion.Status.String(),
		ReversalReason: completion.ReversalReason,
	}
}

func newEntryPayloads(entries []ledger.Entry) []entryPayload {
	payloads := make([]entryPayload, 0, len(entries))
	for _, entry := range entries {
		payloads = append(payloads, entryPayload{
			EntryID:        entry.EntryID.String(),
			Kind:           entry.Kind.String(),
			Amount:         entry.Amount,
			ReservedDelta:  entry.ReservedDelta,
			Shortfall:      entry.Shortfall.Int64(),
			Reference:      entry.Reference,
			IdempotencyKey: entry.IdempotencyKey.String(),
			Metadata:       json.RawMessage(entry.Metadata.String()),
			CreatedAt:      entry.CreatedAt,
		})
	}
	return payloads
}

func newSurveyPayload(listing surveys.Listing) surveyPayload {
	return surveyPayload{
		SurveyID:      listing.SurveyID,
		Provider:      listing.Provider.String(),
		Title:         listing.Title,
		Description:   listing.Description,
		Points:        listing.Points,
		EstimatedTime: listing.EstimatedMinutes,
		Category:      listing.Category,
		Difficulty:    listing.Difficulty,
		Status:        string(listing.Status),
	}
}
