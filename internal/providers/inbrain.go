package providers

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	inbrainRewardCompleted    = "survey_completed"
	inbrainRewardTerminated   = "survey_terminated"
	inbrainRewardReversed     = "survey_reversed"
	inbrainDefaultReversalMsg = "provider reversal"
)

// InbrainAdapter decodes Inbrain JSON callbacks.
type InbrainAdapter struct {
	sharedSecret
}

// NewInbrainAdapter builds an adapter that accepts callbacks carrying secret.
func NewInbrainAdapter(secret string) *InbrainAdapter {
	return &InbrainAdapter{sharedSecret: sharedSecret{secret: []byte(secret)}}
}

// Provider returns Inbrain.
func (adapter *InbrainAdapter) Provider() Provider {
	return Inbrain
}

type inbrainCallback struct {
	PanelistID string          `json:"PanelistId"`
	RewardID   string          `json:"RewardId"`
	SurveyID   string          `json:"SurveyId"`
	Reward     decimal.Decimal `json:"Reward"`
	RewardType string          `json:"RewardType"`
	Reason     string          `json:"Reason"`
	IsTest     bool            `json:"IsTest"`
}

// MapPayload decodes a callback body into an Event.
func (adapter *InbrainAdapter) MapPayload(postback Postback) (Event, error) {
	var callback inbrainCallback
	if err := json.Unmarshal(postback.Body, &callback); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	userID, err := requireField("PanelistId", callback.PanelistID)
	if err != nil {
		return Event{}, err
	}
	rewardID, err := requireField("RewardId", callback.RewardID)
	if err != nil {
		return Event{}, err
	}
	surveyID, err := requireField("SurveyId", callback.SurveyID)
	if err != nil {
		return Event{}, err
	}
	event := Event{
		Provider:             Inbrain,
		UserID:               userID,
		OfferID:              surveyID,
		ExternalCompletionID: rewardID,
		Reason:               strings.TrimSpace(callback.Reason),
		Metadata: map[string]string{
			"provider":    Inbrain.String(),
			"reward_type": callback.RewardType,
			"reward":      callback.Reward.String(),
		},
	}
	if callback.IsTest {
		event.Metadata["test"] = "true"
	}
	switch strings.ToLower(strings.TrimSpace(callback.RewardType)) {
	case inbrainRewardCompleted, "":
		points, err := wholePoints("Reward", callback.Reward)
		if err != nil {
			return Event{}, err
		}
		event.Kind = EventCompletion
		event.Points = points
	case inbrainRewardTerminated:
		event.Kind = EventDisqualification
	case inbrainRewardReversed:
		event.Kind = EventReversal
		if event.Reason == "" {
			event.Reason = inbrainDefaultReversalMsg
		}
	default:
		return Event{}, fmt.Errorf("%w: unsupported RewardType %q", ErrInvalidPayload, callback.RewardType)
	}
	return event, nil
}

// wholePoints truncates a provider amount to integer points and requires it to be positive.
func wholePoints(field string, amount decimal.Decimal) (int64, error) {
	points := amount.Truncate(0)
	if !points.IsPositive() {
		return 0, fmt.Errorf("%w: %s must be positive", ErrInvalidPayload, field)
	}
	return points.IntPart(), nil
}
