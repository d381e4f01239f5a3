package providers

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	cpxStatusCompleted = "1"
	cpxStatusCanceled  = "2"
	cpxTypeComplete    = "complete"
	cpxTypeBonus       = "bonus"
	cpxTypeScreenOut   = "out"
	cpxDefaultReversal = "provider canceled"
)

// CPXAdapter decodes CPX Research query-string postbacks.
type CPXAdapter struct {
	sharedSecret
}

// NewCPXAdapter builds an adapter that accepts postbacks carrying secret.
func NewCPXAdapter(secret string) *CPXAdapter {
	return &CPXAdapter{sharedSecret: sharedSecret{secret: []byte(secret)}}
}

// Provider returns CPXResearch.
func (adapter *CPXAdapter) Provider() Provider {
	return CPXResearch
}

// MapPayload reads status, type, trans_id, user_id, offer_id and amount_local.
func (adapter *CPXAdapter) MapPayload(postback Postback) (Event, error) {
	values := postback.Query
	userID, err := requireField("user_id", values.Get("user_id"))
	if err != nil {
		return Event{}, err
	}
	transactionID, err := requireField("trans_id", values.Get("trans_id"))
	if err != nil {
		return Event{}, err
	}
	offerID, err := requireField("offer_id", values.Get("offer_id"))
	if err != nil {
		return Event{}, err
	}
	status := strings.TrimSpace(values.Get("status"))
	eventType := strings.ToLower(strings.TrimSpace(values.Get("type")))
	event := Event{
		Provider:             CPXResearch,
		UserID:               userID,
		OfferID:              offerID,
		ExternalCompletionID: transactionID,
		Reason:               strings.TrimSpace(values.Get("message")),
		Metadata: map[string]string{
			"provider":     CPXResearch.String(),
			"status":       status,
			"type":         eventType,
			"amount_local": values.Get("amount_local"),
			"amount_usd":   values.Get("amount_usd"),
		},
	}
	switch status {
	case cpxStatusCanceled:
		event.Kind = EventReversal
		if event.Reason == "" {
			event.Reason = cpxDefaultReversal
		}
		return event, nil
	case cpxStatusCompleted:
	default:
		return Event{}, fmt.Errorf("%w: unsupported status %q", ErrInvalidPayload, status)
	}
	switch eventType {
	case cpxTypeScreenOut:
		event.Kind = EventDisqualification
	case cpxTypeComplete, cpxTypeBonus, "":
		amount, err := decimal.NewFromString(strings.TrimSpace(values.Get("amount_local")))
		if err != nil {
			return Event{}, fmt.Errorf("%w: amount_local: %v", ErrInvalidPayload, err)
		}
		points, err := wholePoints("amount_local", amount)
		if err != nil {
			return Event{}, err
		}
		event.Kind = EventCompletion
		event.Points = points
	default:
		return Event{}, fmt.Errorf("%w: unsupported type %q", ErrInvalidPayload, eventType)
	}
	return event, nil
}
