package httpapi

import (
	"context"
	"net/http"

	"github.com/MarkoPoloResearchLab/surveypay/internal/users"
	"github.com/MarkoPoloResearchLab/surveypay/pkg/ledger"
	"github.com/gin-gonic/gin"
)

func (handler *httpHandler) handleRegister(ctx *gin.Context) {
	var request registerRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(codeInvalidPayload, "email, password and name are required"))
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	user, err := handler.users.Register(requestCtx, users.Registration{
		Email:     request.Email,
		Password:  request.Password,
		Name:      request.Name,
		AvatarURL: request.Picture,
	})
	if err != nil {
		handler.respondError(ctx, "register", err)
		return
	}
	handler.respondWithSession(ctx, requestCtx, user)
}

func (handler *httpHandler) handleLogin(ctx *gin.Context) {
	var request loginRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(codeInvalidPayload, "email and password are required"))
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	user, err := handler.users.Authenticate(requestCtx, request.Email, request.Password)
	if err != nil {
		handler.respondError(ctx, "login", err)
		return
	}
	handler.respondWithSession(ctx, requestCtx, user)
}

// handleLogout revokes the presented session token and clears the cookie.
// Missing or already invalid tokens still log out.
func (handler *httpHandler) handleLogout(ctx *gin.Context) {
	if token := handler.sessions.requestToken(ctx); token != "" {
		claims, err := handler.sessions.parse(token)
		if err == nil && claims.ID != "" && claims.ExpiresAt != nil {
			requestCtx, cancel := handler.requestContext(ctx)
			defer cancel()
			if err := handler.users.RevokeSession(requestCtx, claims.ID, claims.UserID, claims.ExpiresAt.Time); err != nil {
				handler.respondError(ctx, "logout", err)
				return
			}
		}
	}
	handler.sessions.clearCookie(ctx)
	ctx.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

func (handler *httpHandler) handleMe(ctx *gin.Context) {
	userID, ok := handler.sessionUser(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	user, err := handler.users.Get(requestCtx, userID.String())
	if err != nil {
		handler.respondError(ctx, "me", err)
		return
	}
	payload, err := handler.buildUserPayload(requestCtx, user)
	if err != nil {
		handler.respondError(ctx, "me", err)
		return
	}
	ctx.JSON(http.StatusOK, payload)
}

func (handler *httpHandler) respondWithSession(ctx *gin.Context, requestCtx context.Context, user users.User) {
	token, _, err := handler.sessions.mint(user)
	if err != nil {
		handler.respondError(ctx, "mint_session", err)
		return
	}
	payload, err := handler.buildUserPayload(requestCtx, user)
	if err != nil {
		handler.respondError(ctx, "user_payload", err)
		return
	}
	handler.sessions.setCookie(ctx, token)
	ctx.JSON(http.StatusOK, authResponse{Token: token, User: payload})
}

func (handler *httpHandler) buildUserPayload(ctx context.Context, user users.User) (userPayload, error) {
	userID, err := ledger.NewUserID(user.UserID)
	if err != nil {
		return userPayload{}, err
	}
	stats, err := handler.ledger.Stats(ctx, userID)
	if err != nil {
		return userPayload{}, err
	}
	pending, err := handler.surveys.PendingCount(ctx, userID)
	if err != nil {
		return userPayload{}, err
	}
	return newUserPayload(user, stats, pending), nil
}
