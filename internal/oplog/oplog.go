// Package oplog writes ledger operation logs through zap.
package oplog

import (
	"context"

	"github.com/MarkoPoloResearchLab/surveypay/pkg/ledger"
	"go.uber.org/zap"
)

const (
	messageOperation    = "ledger operation"
	statusError         = "error"
	fieldOperation      = "operation"
	fieldStatus         = "status"
	fieldUserID         = "user_id"
	fieldReference      = "reference"
	fieldAmountPoints   = "amount_points"
	fieldIdempotencyKey = "idempotency_key"
)

// Logger implements ledger.OperationLogger.
type Logger struct {
	logger *zap.Logger
}

// New wraps logger. A nil logger discards everything.
func New(logger *zap.Logger) *Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Logger{logger: logger.Named("ledger")}
}

// LogOperation emits one structured line per ledger operation. Failures are logged at warn level.
func (logger *Logger) LogOperation(_ context.Context, entry ledger.OperationLog) {
	fields := []zap.Field{
		zap.String(fieldOperation, entry.Operation),
		zap.String(fieldStatus, entry.Status),
		zap.String(fieldUserID, entry.UserID.String()),
		zap.Int64(fieldAmountPoints, entry.Amount.Int64()),
	}
	if entry.Reference != "" {
		fields = append(fields, zap.String(fieldReference, entry.Reference))
	}
	if key := entry.IdempotencyKey.String(); key != "" {
		fields = append(fields, zap.String(fieldIdempotencyKey, key))
	}
	if entry.Error != nil || entry.Status == statusError {
		fields = append(fields, zap.Error(entry.Error))
		logger.logger.Warn(messageOperation, fields...)
		return
	}
	logger.logger.Info(messageOperation, fields...)
}

var _ ledger.OperationLogger = (*Logger)(nil)
