package users

import "time"

// Record mirrors the users table.
type Record struct {
	UserID       string    `gorm:"primaryKey"`
	Email        string    `gorm:"not null;uniqueIndex:uniq_users_email"`
	Name         string    `gorm:"not null"`
	AvatarURL    string    `gorm:"not null;default:''"`
	PasswordHash string    `gorm:"not null;default:''"`
	Role         string    `gorm:"not null;default:'member'"`
	CreatedAt    time.Time `gorm:"not null"`
}

func (Record) TableName() string { return "users" }

// RevokedSession records a session token that was logged out before it expired.
type RevokedSession struct {
	TokenID   string    `gorm:"primaryKey"`
	UserID    string    `gorm:"not null;index"`
	ExpiresAt time.Time `gorm:"not null;index"`
	RevokedAt time.Time `gorm:"not null"`
}

func (RevokedSession) TableName() string { return "revoked_sessions" }

// Models lists the tables owned by this package.
func Models() []interface{} {
	return []interface{}{&Record{}, &RevokedSession{}}
}
