package ledger

import "context"

// ServiceOption configures a Service instance.
type ServiceOption func(*Service)

// OperationLogger records domain-level events emitted by Service operations.
type OperationLogger interface {
	LogOperation(ctx context.Context, entry OperationLog)
}

// OperationLog describes a state-changing ledger operation.
type OperationLog struct {
	Operation      string
	UserID         UserID
	Reference      string
	Amount         Points
	IdempotencyKey IdempotencyKey
	Status         string
	Error          error
}

// WithOperationLogger wires a logger that receives callbacks for every operation.
func WithOperationLogger(logger OperationLogger) ServiceOption {
	return func(service *Service) {
		service.logger = logger
	}
}

// WithIDGenerator replaces the random completion/withdrawal id generator.
func WithIDGenerator(generator func(prefix string) string) ServiceOption {
	return func(service *Service) {
		if generator != nil {
			service.newID = generator
		}
	}
}

// WithMinimumWithdrawal overrides MinimumWithdrawalPoints.
func WithMinimumWithdrawal(minimum Points) ServiceOption {
	return func(service *Service) {
		if minimum > 0 {
			service.minimumWithdrawal = minimum
		}
	}
}
