package repo

import (
	"context"

	"gorm.io/gorm"

	"mediabridge/storage/models"
)

type CollectionRepository interface {
	Create(ctx context.Context, c *models.CustomCollection) error
	Save(ctx context.Context, c *models.CustomCollection) error
	Find(ctx context.Context, id uint64) (*models.CustomCollection, error)
	All(ctx context.Context) ([]models.CustomCollection, error)
	FindByType(ctx context.Context, t models.CollectionType) ([]models.CustomCollection, error)
	Delete(ctx context.Context, id uint64) error
}

type collectionRepository struct {
	db *gorm.DB
}

func NewCollectionRepository(db *gorm.DB) CollectionRepository {
	return &collectionRepository{db: db}
}

func (r *collectionRepository) Create(ctx context.Context, c *models.CustomCollection) error {
	return r.db.WithContext(ctx).Create(c).Error
}

func (r *collectionRepository) Save(ctx context.Context, c *models.CustomCollection) error {
	return r.db.WithContext(ctx).Save(c).Error
}

func (r *collectionRepository) Find(ctx context.Context, id uint64) (*models.CustomCollection, error) {
	var row models.CustomCollection
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return nil, wrapNotFound(err)
	}
	return &row, nil
}

func (r *collectionRepository) All(ctx context.Context) ([]models.CustomCollection, error) {
	var rows []models.CustomCollection
	if err := r.db.WithContext(ctx).Order("sort_order").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *collectionRepository) FindByType(ctx context.Context, t models.CollectionType) ([]models.CustomCollection, error) {
	var rows []models.CustomCollection
	if err := r.db.WithContext(ctx).Where("type = ?", t).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *collectionRepository) Delete(ctx context.Context, id uint64) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.CustomCollection{}).Error
}

type CleanupRepository interface {
	Save(ctx context.Context, t *models.CleanupTask) error
	Find(ctx context.Context, metadataID int64, itemType models.ItemType) (*models.CleanupTask, error)
	Pending(ctx context.Context) ([]models.CleanupTask, error)
	Delete(ctx context.Context, metadataID int64, itemType models.ItemType) error
}

type cleanupRepository struct {
	db *gorm.DB
}

func NewCleanupRepository(db *gorm.DB) CleanupRepository {
	return &cleanupRepository{db: db}
}

func (r *cleanupRepository) Save(ctx context.Context, t *models.CleanupTask) error {
	return r.db.WithContext(ctx).Save(t).Error
}

func (r *cleanupRepository) Find(ctx context.Context, metadataID int64, itemType models.ItemType) (*models.CleanupTask, error) {
	var row models.CleanupTask
	err := r.db.WithContext(ctx).
		Where("metadata_id = ? AND item_type = ?", metadataID, itemType).
		First(&row).Error
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return &row, nil
}

func (r *cleanupRepository) Pending(ctx context.Context) ([]models.CleanupTask, error) {
	var rows []models.CleanupTask
	if err := r.db.WithContext(ctx).Where("status = ?", "pending").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *cleanupRepository) Delete(ctx context.Context, metadataID int64, itemType models.ItemType) error {
	return r.db.WithContext(ctx).
		Where("metadata_id = ? AND item_type = ?", metadataID, itemType).
		Delete(&models.CleanupTask{}).Error
}
