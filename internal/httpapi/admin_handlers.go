package httpapi

import (
	"net/http"

	"github.com/MarkoPoloResearchLab/surveypay/pkg/ledger"
	"github.com/gin-gonic/gin"
)

func (handler *httpHandler) handleResolveWithdrawal(ctx *gin.Context) {
	withdrawalID, err := ledger.NewWithdrawalID(ctx.Param("id"))
	if err != nil {
		handler.respondError(ctx, "resolve_withdrawal", err)
		return
	}
	var request resolveRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(codeInvalidPayload, "outcome is required"))
		return
	}
	outcome, err := ledger.ParseWithdrawalOutcome(request.Outcome)
	if err != nil {
		handler.respondError(ctx, "resolve_withdrawal", err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	result, err := handler.ledger.ResolveWithdrawal(requestCtx, withdrawalID, outcome)
	if err != nil {
		handler.respondError(ctx, "resolve_withdrawal", err)
		return
	}
	ctx.JSON(http.StatusOK, resolveResponse{
		Withdrawal: newWithdrawalPayload(result.Withdrawal),
		Changed:    result.Changed,
	})
}

func (handler *httpHandler) handleAudit(ctx *gin.Context) {
	userID, err := ledger.NewUserID(ctx.Param("user_id"))
	if err != nil {
		handler.respondError(ctx, "audit", err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	report, err := handler.ledger.Audit(requestCtx, userID)
	if err != nil {
		handler.respondError(ctx, "audit", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"user_id":    report.UserID.String(),
		"entries":    report.Entries,
		"consistent": report.Consistent,
		"expected":   balancesPayload(report.Expected),
		"actual":     balancesPayload(report.Actual),
	})
}

func balancesPayload(balances ledger.Balances) gin.H {
	return gin.H{
		"available":    balances.Available.Int64(),
		"reserved":     balances.Reserved.Int64(),
		"total_earned": balances.TotalEarned.Int64(),
		"debt":         balances.Debt.Int64(),
	}
}
