package httpapi

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	oauthStateCookie = "oauth_state"
	oauthStateTTL    = 10 * time.Minute
)

// handleOAuthStart redirects to the identity provider's consent page with a fresh state.
func (handler *httpHandler) handleOAuthStart(ctx *gin.Context) {
	if handler.identity == nil {
		ctx.JSON(http.StatusServiceUnavailable, errorResponse(codeUnavailable, "federated sign-in is not configured"))
		return
	}
	state := uuid.NewString()
	ctx.SetSameSite(http.SameSiteLaxMode)
	ctx.SetCookie(oauthStateCookie, state, int(oauthStateTTL.Seconds()), cookiePath, "", handler.cfg.SecureCookies, true)
	ctx.Redirect(http.StatusFound, handler.identity.AuthCodeURL(state))
}

// handleFederatedSession exchanges an authorization code for a SurveyPay session.
// The state must match the cookie set by handleOAuthStart.
func (handler *httpHandler) handleFederatedSession(ctx *gin.Context) {
	if handler.identity == nil {
		ctx.JSON(http.StatusServiceUnavailable, errorResponse(codeUnavailable, "federated sign-in is not configured"))
		return
	}
	var request federatedSessionRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(codeInvalidPayload, "code and state are required"))
		return
	}
	expected, err := ctx.Cookie(oauthStateCookie)
	if err != nil || expected == "" || subtle.ConstantTimeCompare([]byte(expected), []byte(request.State)) != 1 {
		ctx.JSON(http.StatusUnauthorized, errorResponse(codeUnauthorized, "state mismatch"))
		return
	}
	ctx.SetSameSite(http.SameSiteLaxMode)
	ctx.SetCookie(oauthStateCookie, "", -1, cookiePath, "", handler.cfg.SecureCookies, true)

	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	verified, err := handler.identity.Verify(requestCtx, request.Code)
	if err != nil {
		handler.logger.Warn("federated sign-in rejected", zap.Error(err))
		handler.respondError(ctx, "federated_session", err)
		return
	}
	user, err := handler.users.UpsertFederated(requestCtx, verified.Email, verified.Name, verified.Picture)
	if err != nil {
		handler.respondError(ctx, "federated_session", err)
		return
	}
	handler.respondWithSession(ctx, requestCtx, user)
}
