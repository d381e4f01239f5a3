package surveys

import "time"

// PendingSurvey mirrors the pending_surveys table: surveys a user has started but not finished.
type PendingSurvey struct {
	UserID    string    `gorm:"primaryKey"`
	SurveyID  string    `gorm:"primaryKey"`
	Provider  string    `gorm:"not null"`
	StartedAt time.Time `gorm:"not null"`
}

func (PendingSurvey) TableName() string { return "pending_surveys" }

// Models lists the tables owned by this package.
func Models() []interface{} {
	return []interface{}{&PendingSurvey{}}
}
