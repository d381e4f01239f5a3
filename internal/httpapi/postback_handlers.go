package httpapi

import (
	"io"
	"net/http"
	"strings"

	"github.com/MarkoPoloResearchLab/surveypay/internal/providers"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	headerPostbackSecret = "X-Postback-Secret"
	querySecret          = "secret"
	maxPostbackBytes     = 64 << 10
)

// handlePostback verifies a provider callback and applies it to the ledger.
// Retried events answer 200 with duplicate set so providers stop retrying.
func (handler *httpHandler) handlePostback(ctx *gin.Context) {
	adapter, err := handler.providers.Lookup(ctx.Param("provider"))
	if err != nil {
		handler.respondError(ctx, "postback", err)
		return
	}
	secret := strings.TrimSpace(ctx.GetHeader(headerPostbackSecret))
	if secret == "" {
		secret = ctx.Query(querySecret)
	}
	body, err := io.ReadAll(http.MaxBytesReader(ctx.Writer, ctx.Request.Body, maxPostbackBytes))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(codeInvalidPayload, "postback body too large"))
		return
	}
	query := ctx.Request.URL.Query()
	query.Del(querySecret)
	postback := providers.Postback{Secret: secret, Query: query, Body: body}
	if err := adapter.VerifyEvent(postback); err != nil {
		handler.logger.Warn("postback rejected", zap.String("provider", adapter.Provider().String()), zap.Error(err))
		handler.respondError(ctx, "postback", err)
		return
	}
	event, err := adapter.MapPayload(postback)
	if err != nil {
		handler.respondError(ctx, "postback", err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	if _, err := handler.users.Get(requestCtx, event.UserID); err != nil {
		handler.logger.Warn("postback for unknown user", zap.String("provider", adapter.Provider().String()), zap.String("user_id", event.UserID))
		handler.respondError(ctx, "postback", err)
		return
	}
	outcome, err := providers.Apply(requestCtx, handler.ledger, event)
	if err != nil {
		handler.respondError(ctx, "postback", err)
		return
	}
	ctx.JSON(http.StatusOK, postbackResponse{
		Status:       "ok",
		Kind:         string(outcome.Kind),
		Duplicate:    outcome.Duplicate,
		CompletionID: outcome.Completion.CompletionID.String(),
		Shortfall:    outcome.Shortfall.Int64(),
	})
}
