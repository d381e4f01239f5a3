package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/MarkoPoloResearchLab/surveypay/internal/identity"
	"github.com/MarkoPoloResearchLab/surveypay/internal/providers"
	"github.com/MarkoPoloResearchLab/surveypay/internal/surveys"
	"github.com/MarkoPoloResearchLab/surveypay/internal/users"
	"github.com/MarkoPoloResearchLab/surveypay/pkg/ledger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	codeInvalidPayload      = "invalid_payload"
	codeInvalidAmount       = "invalid_amount"
	codeBelowMinimum        = "below_minimum"
	codeInvalidMethod       = "invalid_method"
	codeInvalidDetails      = "invalid_details"
	codeInvalidOutcome      = "invalid_outcome"
	codeInsufficientBalance = "insufficient_balance"
	codeAlreadyReversed     = "already_reversed"
	codeNotCredited         = "not_credited"
	codeAlreadyCompleted    = "already_completed"
	codeNotFound            = "not_found"
	codeUnauthorized        = "unauthorized"
	codeForbidden           = "forbidden"
	codeEmailTaken          = "email_taken"
	codeInvalidCredentials  = "invalid_credentials"
	codeUnavailable         = "unavailable"
	codeTimeout             = "ledger_timeout"
	codeInternal            = "internal_error"
)

type errorMapping struct {
	target  error
	status  int
	code    string
	message string
}

var errorMappings = []errorMapping{
	{target: ledger.ErrInvalidAmount, status: http.StatusBadRequest, code: codeInvalidAmount, message: "amount must be a positive number of points"},
	{target: ledger.ErrBelowMinimum, status: http.StatusBadRequest, code: codeBelowMinimum, message: "amount is below the minimum withdrawal"},
	{target: ledger.ErrInvalidMethod, status: http.StatusBadRequest, code: codeInvalidMethod, message: "method must be paypal, bank or crypto"},
	{target: ledger.ErrInvalidDetails, status: http.StatusBadRequest, code: codeInvalidDetails, message: "account details are required"},
	{target: ledger.ErrInvalidOutcome, status: http.StatusBadRequest, code: codeInvalidOutcome, message: "outcome must be completed or rejected"},
	{target: ledger.ErrInsufficientFunds, status: http.StatusConflict, code: codeInsufficientBalance, message: "insufficient balance"},
	{target: ledger.ErrAlreadyReversed, status: http.StatusConflict, code: codeAlreadyReversed, message: "completion already reversed"},
	{target: ledger.ErrCompletionNotCredited, status: http.StatusConflict, code: codeNotCredited, message: "completion was never credited"},
	{target: surveys.ErrAlreadyCompleted, status: http.StatusBadRequest, code: codeAlreadyCompleted, message: "Survey already completed"},
	{target: surveys.ErrUnknownSurvey, status: http.StatusNotFound, code: codeNotFound, message: "Survey not found"},
	{target: users.ErrUnknownUser, status: http.StatusNotFound, code: codeNotFound, message: "User not found"},
	{target: providers.ErrUnknownProvider, status: http.StatusNotFound, code: codeNotFound, message: "unknown provider"},
	{target: users.ErrEmailTaken, status: http.StatusConflict, code: codeEmailTaken, message: "Email already registered"},
	{target: users.ErrInvalidCredentials, status: http.StatusUnauthorized, code: codeInvalidCredentials, message: "Invalid email or password"},
	{target: identity.ErrUnverified, status: http.StatusUnauthorized, code: codeUnauthorized, message: "identity not verified"},
	{target: identity.ErrMissingCode, status: http.StatusBadRequest, code: codeInvalidPayload, message: "authorization code is required"},
	{target: providers.ErrUnverified, status: http.StatusUnauthorized, code: codeUnauthorized, message: "postback not verified"},
	{target: providers.ErrInvalidPayload, status: http.StatusBadRequest, code: codeInvalidPayload, message: "invalid postback payload"},
	{target: users.ErrInvalidEmail, status: http.StatusBadRequest, code: codeInvalidPayload, message: "invalid email"},
	{target: users.ErrInvalidPassword, status: http.StatusBadRequest, code: codeInvalidPayload, message: "password must be 6 to 72 characters"},
	{target: users.ErrInvalidName, status: http.StatusBadRequest, code: codeInvalidPayload, message: "name is required"},
	{target: ledger.ErrInvalidUserID, status: http.StatusBadRequest, code: codeInvalidPayload, message: "invalid user id"},
	{target: ledger.ErrInvalidProviderID, status: http.StatusBadRequest, code: codeInvalidPayload, message: "invalid provider"},
	{target: ledger.ErrInvalidOfferID, status: http.StatusBadRequest, code: codeInvalidPayload, message: "invalid offer id"},
	{target: ledger.ErrInvalidCompletionID, status: http.StatusBadRequest, code: codeInvalidPayload, message: "invalid completion id"},
	{target: ledger.ErrInvalidWithdrawalID, status: http.StatusBadRequest, code: codeInvalidPayload, message: "invalid withdrawal id"},
	{target: ledger.ErrInvalidEntryKind, status: http.StatusBadRequest, code: codeInvalidPayload, message: "invalid entry kind"},
	{target: context.DeadlineExceeded, status: http.StatusGatewayTimeout, code: codeTimeout, message: "ledger timed out"},
}

// respondError maps err onto the JSON error envelope. Unmapped errors are logged and reported as 500.
func (handler *httpHandler) respondError(ctx *gin.Context, operation string, err error) {
	if ledger.IsNotFound(err) {
		ctx.JSON(http.StatusNotFound, errorResponse(codeNotFound, "not found"))
		return
	}
	for _, mapping := range errorMappings {
		if errors.Is(err, mapping.target) {
			ctx.JSON(mapping.status, errorResponse(mapping.code, mapping.message))
			return
		}
	}
	handler.logger.Error("request failed", zap.String("operation", operation), zap.Error(err))
	ctx.JSON(http.StatusInternalServerError, errorResponse(codeInternal, "internal error"))
}

func errorResponse(code string, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}
