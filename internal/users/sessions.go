package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrInvalidSession reports a session token without an id.
var ErrInvalidSession = errors.New("invalid session")

// RevokeSession marks tokenID as logged out until expiresAt.
// Rows whose tokens have expired on their own are purged on the way.
func (service *Service) RevokeSession(ctx context.Context, tokenID string, userID string, expiresAt time.Time) error {
	tokenID = strings.TrimSpace(tokenID)
	if tokenID == "" {
		return fmt.Errorf("%w: empty token id", ErrInvalidSession)
	}
	now := service.now().UTC()
	return service.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		if err := transaction.Where("expires_at < ?", now).Delete(&RevokedSession{}).Error; err != nil {
			return fmt.Errorf("purge revoked sessions: %w", err)
		}
		if !expiresAt.After(now) {
			return nil
		}
		record := RevokedSession{
			TokenID:   tokenID,
			UserID:    strings.TrimSpace(userID),
			ExpiresAt: expiresAt.UTC(),
			RevokedAt: now,
		}
		err := transaction.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "token_id"}}, DoNothing: true}).Create(&record).Error
		if err != nil {
			return fmt.Errorf("revoke session: %w", err)
		}
		return nil
	})
}

// IsSessionRevoked reports whether tokenID was logged out.
func (service *Service) IsSessionRevoked(ctx context.Context, tokenID string) (bool, error) {
	var count int64
	err := service.db.WithContext(ctx).
		Model(&RevokedSession{}).
		Where("token_id = ?", strings.TrimSpace(tokenID)).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("lookup revoked session: %w", err)
	}
	return count > 0, nil
}
