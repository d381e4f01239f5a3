package httpapi

import (
	"net/http"

	"github.com/MarkoPoloResearchLab/surveypay/internal/surveys"
	"github.com/gin-gonic/gin"
)

func (handler *httpHandler) handleListSurveys(ctx *gin.Context) {
	userID, ok := handler.sessionUser(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	listings, err := handler.surveys.List(requestCtx, userID, surveys.Filter{
		Provider: ctx.Query("provider"),
		Category: ctx.Query("category"),
	})
	if err != nil {
		handler.respondError(ctx, "list_surveys", err)
		return
	}
	payloads := make([]surveyPayload, 0, len(listings))
	for _, listing := range listings {
		payloads = append(payloads, newSurveyPayload(listing))
	}
	ctx.JSON(http.StatusOK, payloads)
}

func (handler *httpHandler) handleStartSurvey(ctx *gin.Context) {
	userID, ok := handler.sessionUser(ctx)
	if !ok {
		return
	}
	var request surveyActionRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(codeInvalidPayload, "survey_id is required"))
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	listing, err := handler.surveys.Start(requestCtx, userID, request.SurveyID)
	if err != nil {
		handler.respondError(ctx, "start_survey", err)
		return
	}
	ctx.JSON(http.StatusOK, newSurveyPayload(listing))
}

func (handler *httpHandler) handleCompleteSurvey(ctx *gin.Context) {
	userID, ok := handler.sessionUser(ctx)
	if !ok {
		return
	}
	var request surveyActionRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(codeInvalidPayload, "survey_id is required"))
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	outcome, err := handler.surveys.Complete(requestCtx, userID, request.SurveyID)
	if err != nil {
		handler.respondError(ctx, "complete_survey", err)
		return
	}
	ctx.JSON(http.StatusOK, surveyCompletionResponse{
		completionPayload: newCompletionPayload(outcome.Completion, handler.catalog),
		Duplicate:         outcome.Duplicate,
		Balance:           outcome.Account.Available.Int64(),
	})
}

func (handler *httpHandler) handleSurveyHistory(ctx *gin.Context) {
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
	items, err := handler.surveys.History(requestCtx, userID, limit)
	if err != nil {
		handler.respondError(ctx, "survey_history", err)
		return
	}
	payloads := make([]completionPayload, 0, len(items))
	for _, item := range items {
		payloads = append(payloads, newCompletionPayload(item.Completion, handler.catalog))
	}
	ctx.JSON(http.StatusOK, payloads)
}
