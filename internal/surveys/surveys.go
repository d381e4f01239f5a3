// Package surveys runs the mocked offer wall: listing, starting and completing catalog surveys.
package surveys

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/surveypay/pkg/ledger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const completionScanLimit = 1000

var (
	ErrUnknownSurvey    = errors.New("survey not found")
	ErrAlreadyCompleted = errors.New("survey already completed")
	ErrInvalidCatalog   = errors.New("invalid survey catalog")
	ErrInvalidConfig    = errors.New("invalid surveys config")
)

// Status is a survey's state for one user.
type Status string

const (
	StatusAvailable  Status = "available"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// Listing is a survey as shown to one user.
type Listing struct {
	Survey
	Status Status
}

// Filter narrows List. Empty fields match everything.
type Filter struct {
	Provider string
	Category string
}

// Ledger is the part of ledger.Service the offer wall uses.
type Ledger interface {
	ApplyCompletion(ctx context.Context, request ledger.CompletionRequest) (ledger.CompletionResult, error)
	ListCompletions(ctx context.Context, userID ledger.UserID, limit int) ([]ledger.Completion, error)
}

// CompletionOutcome pairs a credited completion with its catalog survey.
type CompletionOutcome struct {
	Survey Survey
	ledger.CompletionResult
}

// HistoryItem is a completion with the catalog survey it refers to, when there is one.
type HistoryItem struct {
	Completion ledger.Completion
	Survey     Survey
	InCatalog  bool
}

// Service implements the offer wall over a catalog, the ledger and the pending_surveys table.
type Service struct {
	db      *gorm.DB
	catalog *Catalog
	ledger  Ledger
	now     func() time.Time
}

// NewService wires a Service.
func NewService(db *gorm.DB, catalog *Catalog, rewards Ledger, now func() time.Time) (*Service, error) {
	switch {
	case db == nil:
		return nil, fmt.Errorf("%w: db dependency is nil", ErrInvalidConfig)
	case catalog == nil:
		return nil, fmt.Errorf("%w: catalog dependency is nil", ErrInvalidConfig)
	case rewards == nil:
		return nil, fmt.Errorf("%w: ledger dependency is nil", ErrInvalidConfig)
	case now == nil:
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidConfig)
	}
	return &Service{db: db, catalog: catalog, ledger: rewards, now: now}, nil
}

// List returns the surveys the user has not finished yet, marking started ones as in progress.
func (service *Service) List(ctx context.Context, userID ledger.UserID, filter Filter) ([]Listing, error) {
	finished, err := service.finishedSurveys(ctx, userID)
	if err != nil {
		return nil, err
	}
	pending, err := service.pendingSurveys(ctx, userID)
	if err != nil {
		return nil, err
	}
	provider := strings.ToLower(strings.TrimSpace(filter.Provider))
	category := strings.TrimSpace(filter.Category)
	listings := make([]Listing, 0)
	for _, survey := range service.catalog.All() {
		if provider != "" && survey.Provider.String() != provider {
			continue
		}
		if category != "" && !strings.EqualFold(survey.Category, category) {
			continue
		}
		if _, done := finished[survey.SurveyID]; done {
			continue
		}
		status := StatusAvailable
		if _, started := pending[survey.SurveyID]; started {
			status = StatusInProgress
		}
		listings = append(listings, Listing{Survey: survey, Status: status})
	}
	return listings, nil
}

// Start marks a survey as in progress. Starting twice is a no-op.
func (service *Service) Start(ctx context.Context, userID ledger.UserID, surveyID string) (Listing, error) {
	survey, ok := service.catalog.Get(surveyID)
	if !ok {
		return Listing{}, fmt.Errorf("%w: %q", ErrUnknownSurvey, surveyID)
	}
	finished, err := service.finishedSurveys(ctx, userID)
	if err != nil {
		return Listing{}, err
	}
	if _, done := finished[survey.SurveyID]; done {
		return Listing{}, fmt.Errorf("%w: %s", ErrAlreadyCompleted, survey.SurveyID)
	}
	record := PendingSurvey{
		UserID:    userID.String(),
		SurveyID:  survey.SurveyID,
		Provider:  survey.Provider.String(),
		StartedAt: service.now().UTC(),
	}
	err = service.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&record).Error
	if err != nil {
		return Listing{}, fmt.Errorf("start survey: %w", err)
	}
	return Listing{Survey: survey, Status: StatusInProgress}, nil
}

// Complete credits the survey's points once per user and clears its pending marker.
// A repeated completion returns the original one with Duplicate set.
func (service *Service) Complete(ctx context.Context, userID ledger.UserID, surveyID string) (CompletionOutcome, error) {
	survey, ok := service.catalog.Get(surveyID)
	if !ok {
		return CompletionOutcome{}, fmt.Errorf("%w: %q", ErrUnknownSurvey, surveyID)
	}
	providerID, err := ledger.NewProviderID(survey.Provider.String())
	if err != nil {
		return CompletionOutcome{}, err
	}
	offerID, err := ledger.NewOfferID(survey.SurveyID)
	if err != nil {
		return CompletionOutcome{}, err
	}
	metadata, err := ledger.MetadataFromMap(map[string]string{
		"source": "offer_wall",
		"title":  survey.Title,
	})
	if err != nil {
		return CompletionOutcome{}, err
	}
	result, err := service.ledger.ApplyCompletion(ctx, ledger.CompletionRequest{
		UserID:               userID,
		Provider:             providerID,
		OfferID:              offerID,
		ExternalCompletionID: userID.String(),
		Points:               survey.Points,
		Metadata:             metadata,
	})
	if err != nil {
		return CompletionOutcome{}, err
	}
	err = service.db.WithContext(ctx).
		Where("user_id = ? AND survey_id = ?", userID.String(), survey.SurveyID).
		Delete(&PendingSurvey{}).Error
	if err != nil {
		return CompletionOutcome{}, fmt.Errorf("clear pending survey: %w", err)
	}
	return CompletionOutcome{Survey: survey, CompletionResult: result}, nil
}

// History lists the user's completions, newest first.
func (service *Service) History(ctx context.Context, userID ledger.UserID, limit int) ([]HistoryItem, error) {
	completions, err := service.ledger.ListCompletions(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	items := make([]HistoryItem, 0, len(completions))
	for _, completion := range completions {
		survey, ok := service.catalog.Get(completion.OfferID.String())
		if ok && survey.Provider.String() != completion.Provider.String() {
			ok = false
		}
		items = append(items, HistoryItem{Completion: completion, Survey: survey, InCatalog: ok})
	}
	return items, nil
}

// PendingCount reports how many surveys the user has started and not finished.
func (service *Service) PendingCount(ctx context.Context, userID ledger.UserID) (int64, error) {
	var count int64
	err := service.db.WithContext(ctx).
		Model(&PendingSurvey{}).
		Where("user_id = ?", userID.String()).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("count pending surveys: %w", err)
	}
	return count, nil
}

func (service *Service) finishedSurveys(ctx context.Context, userID ledger.UserID) (map[string]struct{}, error) {
	completions, err := service.ledger.ListCompletions(ctx, userID, completionScanLimit)
	if err != nil {
		return nil, err
	}
	finished := make(map[string]struct{}, len(completions))
	for _, completion := range completions {
		survey, ok := service.catalog.Get(completion.OfferID.String())
		if ok && survey.Provider.String() == completion.Provider.String() {
			finished[survey.SurveyID] = struct{}{}
		}
	}
	return finished, nil
}

func (service *Service) pendingSurveys(ctx context.Context, userID ledger.UserID) (map[string]struct{}, error) {
	var records []PendingSurvey
	if err := service.db.WithContext(ctx).Where("user_id = ?", userID.String()).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("list pending surveys: %w", err)
	}
	pending := make(map[string]struct{}, len(records))
	for _, record := range records {
		pending[record.SurveyID] = struct{}{}
	}
	return pending, nil
}
