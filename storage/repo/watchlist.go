package repo

import (
	"context"

	"gorm.io/gorm"

	"mediabridge/storage/models"
)

type WatchlistRepository interface {
	Save(ctx context.Context, entry *models.WatchlistEntry) error
	Find(ctx context.Context, librarySeriesID string) (*models.WatchlistEntry, error)
	FindByStatus(ctx context.Context, status models.WatchlistStatus) ([]models.WatchlistEntry, error)
	All(ctx context.Context) ([]models.WatchlistEntry, error)
	Delete(ctx context.Context, librarySeriesID string) error
}

type watchlistRepository struct {
	db *gorm.DB
}

func NewWatchlistRepository(db *gorm.DB) WatchlistRepository {
	return &watchlistRepository{db: db}
}

func (r *watchlistRepository) Save(ctx context.Context, entry *models.WatchlistEntry) error {
	return r.db.WithContext(ctx).Save(entry).Error
}

func (r *watchlistRepository) Find(ctx context.Context, librarySeriesID string) (*models.WatchlistEntry, error) {
	var row models.WatchlistEntry
	if err := r.db.WithContext(ctx).Where("library_series_id = ?", librarySeriesID).First(&row).Error; err != nil {
		return nil, wrapNotFound(err)
	}
	return &row, nil
}

func (r *watchlistRepository) FindByStatus(ctx context.Context, status models.WatchlistStatus) ([]models.WatchlistEntry, error) {
	var rows []models.WatchlistEntry
	if err := r.db.WithContext(ctx).Where("status = ?", status).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *watchlistRepository) All(ctx context.Context) ([]models.WatchlistEntry, error) {
	var rows []models.WatchlistEntry
	if err := r.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *watchlistRepository) Delete(ctx context.Context, librarySeriesID string) error {
	return r.db.WithContext(ctx).Where("library_series_id = ?", librarySeriesID).Delete(&models.WatchlistEntry{}).Error
}

type UserMediaStateRepository interface {
	Save(ctx context.Context, state *models.UserMediaState) error
	Find(ctx context.Context, userID, libraryItemID string) (*models.UserMediaState, error)
	FindByUser(ctx context.Context, userID string) ([]models.UserMediaState, error)
}

type userMediaStateRepository struct {
	db *gorm.DB
}

func NewUserMediaStateRepository(db *gorm.DB) UserMediaStateRepository {
	return &userMediaStateRepository{db: db}
}

func (r *userMediaStateRepository) Save(ctx context.Context, state *models.UserMediaState) error {
	return r.db.WithContext(ctx).Save(state).Error
}

func (r *userMediaStateRepository) Find(ctx context.Context, userID, libraryItemID string) (*models.UserMediaState, error) {
	var row models.UserMediaState
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND library_item_id = ?", userID, libraryItemID).
		First(&row).Error
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return &row, nil
}

func (r *userMediaStateRepository) FindByUser(ctx context.Context, userID string) ([]models.UserMediaState, error) {
	var rows []models.UserMediaState
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
