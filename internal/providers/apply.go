package providers

import (
	"context"
	"errors"
	"fmt"

	"github.com/MarkoPoloResearchLab/surveypay/pkg/ledger"
)

// RewardEngine is the part of ledger.Service a postback can drive.
type RewardEngine interface {
	ApplyCompletion(ctx context.Context, request ledger.CompletionRequest) (ledger.CompletionResult, error)
	RecordDisqualification(ctx context.Context, request ledger.DisqualificationRequest) (ledger.CompletionResult, error)
	ReverseByExternalRef(ctx context.Context, provider ledger.ProviderID, offer ledger.OfferID, externalCompletionID string, reason string) (ledger.ReversalResult, error)
}

// Outcome reports what a postback did to the ledger.
// Duplicate is set for retried events that changed nothing.
type Outcome struct {
	Kind       EventKind
	Completion ledger.Completion
	Account    ledger.Account
	Duplicate  bool
	Shortfall  ledger.Points
}

// Apply routes event to the matching ledger operation.
// A retried reversal of an already reversed completion is reported as a duplicate.
func Apply(ctx context.Context, engine RewardEngine, event Event) (Outcome, error) {
	providerID, err := ledger.NewProviderID(event.Provider.String())
	if err != nil {
		return Outcome{}, err
	}
	offerID, err := ledger.NewOfferID(event.OfferID)
	if err != nil {
		return Outcome{}, err
	}
	switch event.Kind {
	case EventCompletion, EventDisqualification:
		userID, err := ledger.NewUserID(event.UserID)
		if err != nil {
			return Outcome{}, err
		}
		metadata, err := ledger.MetadataFromMap(event.Metadata)
		if err != nil {
			return Outcome{}, err
		}
		var result ledger.CompletionResult
		if event.Kind == EventCompletion {
			result, err = engine.ApplyCompletion(ctx, ledger.CompletionRequest{
				UserID:               userID,
				Provider:             providerID,
				OfferID:              offerID,
				ExternalCompletionID: event.ExternalCompletionID,
				Points:               event.Points,
				Metadata:             metadata,
			})
		} else {
			result, err = engine.RecordDisqualification(ctx, ledger.DisqualificationRequest{
				UserID:               userID,
				Provider:             providerID,
				OfferID:              offerID,
				ExternalCompletionID: event.ExternalCompletionID,
				Metadata:             metadata,
			})
		}
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{Kind: event.Kind, Completion: result.Completion, Account: result.Account, Duplicate: result.Duplicate}, nil
	case EventReversal:
		result, err := engine.ReverseByExternalRef(ctx, providerID, offerID, event.ExternalCompletionID, event.Reason)
		if errors.Is(err, ledger.ErrAlreadyReversed) {
			return Outcome{Kind: EventReversal, Duplicate: true}, nil
		}
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{Kind: EventReversal, Completion: result.Completion, Account: result.Account, Shortfall: result.Shortfall}, nil
	default:
		return Outcome{}, fmt.Errorf("%w: unsupported event kind %q", ErrInvalidPayload, event.Kind)
	}
}
