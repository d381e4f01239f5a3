package ledger

const (
	operationApplyCompletion    = "apply_completion"
	operationDisqualify         = "record_disqualification"
	operationApplyReversal      = "apply_reversal"
	operationRequestWithdrawal  = "request_withdrawal"
	operationResolveWithdrawal  = "resolve_withdrawal"
	operationStatusOK           = "ok"
	operationStatusDuplicate    = "duplicate"
	operationStatusError        = "error"
	operationStatusUnchanged    = "unchanged"
	errorOperationService       = "service"
	errorSubjectBalance         = "balance"
	errorSubjectCompletion      = "completion"
	errorSubjectWithdrawal      = "withdrawal"
	errorCodeNegativeAvailable  = "negative_available"
	errorCodeNegativeReserved   = "negative_reserved"
	errorCodeInconsistentReplay = "inconsistent_replay"

	idempotencyKeyDelimiter   = ":"
	idempotencySuffixReverse  = "reverse"
	idempotencySuffixReserve  = "reserve"
	idempotencySuffixSettle   = "settle"
	idempotencySuffixRelease  = "release"
	idempotencyPrefixWithdraw = "withdrawal"

	completionIDPrefix = "comp_"
	withdrawalIDPrefix = "wd_"
	generatedIDLength  = 12

	metadataKeyReason = "reason"
	metadataKeyMethod = "method"
)

const (
	// MinimumWithdrawalPoints is the smallest amount a user may cash out.
	MinimumWithdrawalPoints Points = 500
	// PointsPerDollar is the display conversion rate; the ledger never enforces it.
	PointsPerDollar int64 = 1000

	DefaultRecentCreditsLimit     = 5
	DefaultRecentWithdrawalsLimit = 10
	DefaultWithdrawalsLimit       = 50
	DefaultCompletionsLimit       = 100
	DefaultLeaderboardLimit       = 20
	MaxLeaderboardLimit           = 100
)
