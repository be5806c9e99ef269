package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"mediabridge/storage/models"
)

type SessionRepository interface {
	Touch(ctx context.Context, userID, libraryItemID string, at time.Time) error
	FindByUser(ctx context.Context, userID string) ([]models.ActiveSession, error)
	PurgeStale(ctx context.Context, before time.Time) (int64, error)
	Delete(ctx context.Context, userID, libraryItemID string) error
}

type sessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) SessionRepository {
	return &sessionRepository{db: db}
}

// Touch upserts the heartbeat row for (userID, libraryItemID), spec.md
// §3 "ActiveSession": last write for the pair always wins.
func (r *sessionRepository) Touch(ctx context.Context, userID, libraryItemID string, at time.Time) error {
	row := models.ActiveSession{UserID: userID, LibraryItemID: libraryItemID, LastUpdatedAt: at}
	return r.db.WithContext(ctx).Save(&row).Error
}

func (r *sessionRepository) FindByUser(ctx context.Context, userID string) ([]models.ActiveSession, error) {
	var rows []models.ActiveSession
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// PurgeStale deletes every session last touched before cutoff, the
// periodic GC backing models.ActiveSessionTTL.
func (r *sessionRepository) PurgeStale(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("last_updated_at < ?", before).Delete(&models.ActiveSession{})
	return result.RowsAffected, result.Error
}

func (r *sessionRepository) Delete(ctx context.Context, userID, libraryItemID string) error {
	return r.db.WithContext(ctx).
		Where("user_id = ? AND library_item_id = ?", userID, libraryItemID).
		Delete(&models.ActiveSession{}).Error
}

type QuotaRepository interface {
	GetOrCreate(ctx context.Context, date string, limit int) (*models.SubscriptionDailyQuota, error)
	Increment(ctx context.Context, date string) error
}

type quotaRepository struct {
	db *gorm.DB
}

func NewQuotaRepository(db *gorm.DB) QuotaRepository {
	return &quotaRepository{db: db}
}

func (r *quotaRepository) GetOrCreate(ctx context.Context, date string, limit int) (*models.SubscriptionDailyQuota, error) {
	var row models.SubscriptionDailyQuota
	err := r.db.WithContext(ctx).Where("quota_date = ?", date).First(&row).Error
	if err == nil {
		return &row, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}
	row = models.SubscriptionDailyQuota{Date: date, Count: 0, Limit: limit}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

// Increment bumps today's counter; spec.md §7's rate-limit kind is
// raised by the caller once Remaining() reaches zero.
func (r *quotaRepository) Increment(ctx context.Context, date string) error {
	return r.db.WithContext(ctx).
		Model(&models.SubscriptionDailyQuota{}).
		Where("quota_date = ?", date).
		Update("count", gorm.Expr("count + 1")).Error
}
