package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/MarkoPoloResearchLab/surveypay/pkg/ledger"
	"github.com/gin-gonic/gin"
)

const (
	recentCompletionsLimit = 5
	anonymousName          = "Anonymous"
)

func (handler *httpHandler) handleStats(ctx *gin.Context) {
	userID, ok := handler.sessionUser(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	stats, err := handler.ledger.Stats(requestCtx, userID)
	if err != nil {
		handler.respondError(ctx, "stats", err)
		return
	}
	completions, err := handler.ledger.ListCompletions(requestCtx, userID, recentCompletionsLimit)
	if err != nil {
		handler.respondError(ctx, "stats", err)
		return
	}
	pending, err := handler.surveys.PendingCount(requestCtx, userID)
	if err != nil {
		handler.respondError(ctx, "stats", err)
		return
	}
	recent := make([]completionPayload, 0, len(completions))
	for _, completion := range completions {
		recent = append(recent, newCompletionPayload(completion, handler.catalog))
	}
	ctx.JSON(http.StatusOK, statsResponse{
		Balance:           stats.Account.Available.Int64(),
		BalanceUSD:        pointsToUSD(stats.Account.Available),
		Reserved:          stats.Account.Reserved.Int64(),
		TotalEarned:       stats.Account.TotalEarned.Int64(),
		Debt:              stats.Account.Debt.Int64(),
		SurveysCompleted:  stats.CompletedSurveys,
		PendingSurveys:    pending,
		RecentCompletions: recent,
		RecentCredits:     newEntryPayloads(stats.RecentCredits),
	})
}

func (handler *httpHandler) handleWallet(ctx *gin.Context) {
	userID, ok := handler.sessionUser(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	wallet, err := handler.ledger.Wallet(requestCtx, userID)
	if err != nil {
		handler.respondError(ctx, "wallet", err)
		return
	}
	ctx.JSON(http.StatusOK, walletResponse{
		Balance:            wallet.Account.Available.Int64(),
		BalanceUSD:         pointsToUSD(wallet.Account.Available),
		TotalEarned:        wallet.Account.TotalEarned.Int64(),
		PendingWithdrawals: wallet.PendingWithdrawn.Int64(),
		Debt:               wallet.Account.Debt.Int64(),
		MinimumWithdrawal:  handler.ledger.MinimumWithdrawal().Int64(),
		PointsPerDollar:    ledger.PointsPerDollar,
		RecentWithdrawals:  newWithdrawalPayloads(wallet.RecentWithdrawals),
	})
}

func (handler *httpHandler) handleCreateWithdrawal(ctx *gin.Context) {
	userID, ok := handler.sessionUser(ctx)
	if !ok {
		return
	}
	var request withdrawalRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(codeInvalidPayload, "expected amount, method and account_details"))
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	result, err := handler.ledger.RequestWithdrawal(requestCtx, ledger.WithdrawalRequest{
		UserID:  userID,
		Amount:  request.Amount,
		Method:  request.Method,
		Details: request.AccountDetails,
	})
	if err != nil {
		handler.respondError(ctx, "request_withdrawal", err)
		return
	}
	ctx.JSON(http.StatusOK, newWithdrawalPayload(result.Withdrawal))
}

func (handler *httpHandler) handleListWithdrawals(ctx *gin.Context) {
	userID, ok := handler.sessionUser(ctx)
	if !ok {
		return
	}
	limit, ok := queryLimit(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	withdrawals, err := handler.ledger.ListWithdrawals(requestCtx, userID, limit)
	if err != nil {
		handler.respondError(ctx, "list_withdrawals", err)
		return
	}
	ctx.JSON(http.StatusOK, newWithdrawalPayloads(withdrawals))
}

func (handler *httpHandler) handleHistory(ctx *gin.Context) {
	userID, ok := handler.sessionUser(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	items, err := handler.ledger.History(requestCtx, userID)
	if err != nil {
		handler.respondError(ctx, "history", err)
		return
	}
	payloads := make([]historyPayload, 0, len(items))
	for _, item := range items {
		payload := historyPayload{Type: string(item.Kind), CreatedAt: item.CreatedAt}
		if item.Completion != nil {
			completion := newCompletionPayload(*item.Completion, handler.catalog)
			payload.Completion = &completion
		}
		if item.Withdrawal != nil {
			withdrawal := newWithdrawalPayload(*item.Withdrawal)
			payload.Withdrawal = &withdrawal
		}
		payloads = append(payloads, payload)
	}
	ctx.JSON(http.StatusOK, payloads)
}

func (handler *httpHandler) handleEntries(ctx *gin.Context) {
	userID, ok := handler.sessionUser(ctx)
	if !ok {
		return
	}
	limit, ok := queryLimit(ctx)
	if !ok {
		return
	}
	filter := ledger.EntryFilter{Limit: limit}
	for _, raw := range ctx.QueryArray("kind") {
		for _, part := range strings.Split(raw, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			kind, err := ledger.ParseEntryKind(part)
			if err != nil {
				handler.respondError(ctx, "list_entries", err)
				return
			}
			filter.Kinds = append(filter.Kinds, kind)
		}
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	entries, err := handler.ledger.ListEntries(requestCtx, userID, filter)
	if err != nil {
		handler.respondError(ctx, "list_entries", err)
		return
	}
	ctx.JSON(http.StatusOK, newEntryPayloads(entries))
}

func (handler *httpHandler) handleLeaderboard(ctx *gin.Context) {
	limit, ok := queryLimit(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	rows, err := handler.ledger.Leaderboard(requestCtx, limit)
	if err != nil {
		handler.respondError(ctx, "leaderboard", err)
		return
	}
	userIDs := make([]string, 0, len(rows))
	for _, row := range rows {
		userIDs = append(userIDs, row.UserID.String())
	}
	profiles, err := handler.users.GetMany(requestCtx, userIDs)
	if err != nil {
		handler.respondError(ctx, "leaderboard", err)
		return
	}
	payloads := make([]leaderboardPayload, 0, len(rows))
	for _, row := range rows {
		profile := profiles[row.UserID.String()]
		name := strings.TrimSpace(profile.Name)
		if name == "" {
			name = anonymousName
		}
		payloads = append(payloads, leaderboardPayload{
			Rank:             row.Rank,
			UserID:           row.UserID.String(),
			Name:             name,
			Picture:          profile.AvatarURL,
			TotalEarned:      row.TotalEarned.Int64(),
			SurveysCompleted: row.CompletedSurveys,
		})
	}
	ctx.JSON(http.StatusOK, payloads)
}

// queryLimit parses ?limit=; absent means the operation's default.
func queryLimit(ctx *gin.Context) (int, bool) {
	raw := strings.TrimSpace(ctx.Query("limit"))
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		ctx.JSON(http.StatusBadRequest, errorResponse(codeInvalidPayload, "limit must be a non-negative integer"))
		return 0, false
	}
	return limit, true
}
