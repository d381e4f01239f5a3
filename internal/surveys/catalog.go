package surveys

import (
	"fmt"
	"strings"

	"github.com/MarkoPoloResearchLab/surveypay/internal/providers"
)

// Survey is one entry of the offer wall.
type Survey struct {
	SurveyID         string
	Provider         providers.Provider
	Title            string
	Description      string
	Points           int64
	EstimatedMinutes int
	Category         string
	Difficulty       string
}

// Catalog is an immutable, ordered set of surveys.
type Catalog struct {
	surveys []Survey
	index   map[string]Survey
}

// NewCatalog validates surveys and indexes them by id.
func NewCatalog(surveys []Survey) (*Catalog, error) {
	catalog := &Catalog{
		surveys: make([]Survey, 0, len(surveys)),
		index:   make(map[string]Survey, len(surveys)),
	}
	for _, survey := range surveys {
		survey.SurveyID = strings.TrimSpace(survey.SurveyID)
		if survey.SurveyID == "" {
			return nil, fmt.Errorf("%w: survey id is required", ErrInvalidCatalog)
		}
		if _, err := providers.ParseProvider(survey.Provider.String()); err != nil {
			return nil, fmt.Errorf("%w: survey %s: %v", ErrInvalidCatalog, survey.SurveyID, err)
		}
		if survey.Points <= 0 {
			return nil, fmt.Errorf("%w: survey %s must award points", ErrInvalidCatalog, survey.SurveyID)
		}
		if _, exists := catalog.index[survey.SurveyID]; exists {
			return nil, fmt.Errorf("%w: duplicate survey %s", ErrInvalidCatalog, survey.SurveyID)
		}
		catalog.index[survey.SurveyID] = survey
		catalog.surveys = append(catalog.surveys, survey)
	}
	return catalog, nil
}

// DefaultCatalog returns the mocked Inbrain and CPX Research offer wall.
func DefaultCatalog() *Catalog {
	catalog, err := NewCatalog(defaultSurveys)
	if err != nil {
		panic(err)
	}
	return catalog
}

// Get looks a survey up by id.
func (catalog *Catalog) Get(surveyID string) (Survey, bool) {
	survey, ok := catalog.index[strings.TrimSpace(surveyID)]
	return survey, ok
}

// All returns the surveys in catalog order.
func (catalog *Catalog) All() []Survey {
	surveys := make([]Survey, len(catalog.surveys))
	copy(surveys, catalog.surveys)
	return surveys
}

var defaultSurveys = []Survey{
	{SurveyID: "inbrain_001", Provider: providers.Inbrain, Title: "Consumer Shopping Habits", Description: "Share your shopping preferences and habits", Points: 150, EstimatedMinutes: 10, Category: "Shopping", Difficulty: "Easy"},
	{SurveyID: "inbrain_002", Provider: providers.Inbrain, Title: "Technology Usage Survey", Description: "Tell us about your tech devices and usage", Points: 200, EstimatedMinutes: 15, Category: "Technology", Difficulty: "Medium"},
	{SurveyID: "inbrain_003", Provider: providers.Inbrain, Title: "Health & Wellness Check", Description: "Share your health and wellness routines", Points: 300, EstimatedMinutes: 20, Category: "Health", Difficulty: "Medium"},
	{SurveyID: "inbrain_004", Provider: providers.Inbrain, Title: "Entertainment Preferences", Description: "What do you watch, listen to, and play?", Points: 100, EstimatedMinutes: 8, Category: "Entertainment", Difficulty: "Easy"},
	{SurveyID: "inbrain_005", Provider: providers.Inbrain, Title: "Financial Planning Survey", Description: "Your approach to saving and investing", Points: 400, EstimatedMinutes: 25, Category: "Finance", Difficulty: "Hard"},
	{SurveyID: "cpx_001", Provider: providers.CPXResearch, Title: "Social Media Usage", Description: "How do you use social media platforms?", Points: 175, EstimatedMinutes: 12, Category: "Social", Difficulty: "Easy"},
	{SurveyID: "cpx_002", Provider: providers.CPXResearch, Title: "Travel Preferences", Description: "Share your travel experiences and plans", Points: 250, EstimatedMinutes: 18, Category: "Travel", Difficulty: "Medium"},
	{SurveyID: "cpx_003", Provider: providers.CPXResearch, Title: "Food & Dining Habits", Description: "Your restaurant and cooking preferences", Points: 125, EstimatedMinutes: 10, Category: "Food", Difficulty: "Easy"},
	{SurveyID: "cpx_004", Provider: providers.CPXResearch, Title: "Automotive Survey", Description: "Your vehicle preferences and habits", Points: 350, EstimatedMinutes: 22, Category: "Automotive", Difficulty: "Hard"},
	{SurveyID: "cpx_005", Provider: providers.CPXResearch, Title: "Home Improvement", Description: "DIY projects and home renovation plans", Points: 275, EstimatedMinutes: 16, Category: "Home", Difficulty: "Medium"},
}
