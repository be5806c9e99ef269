package repo

import (
	"context"

	"gorm.io/gorm"

	"mediabridge/storage/models"
)

// ReviewQueueRepository manages spec.md §4.2's review queue of cast
// lists the processor declined to write back automatically.
type ReviewQueueRepository interface {
	Upsert(ctx context.Context, e *models.ReviewQueueEntry) error
	Find(ctx context.Context, libraryItemID string) (*models.ReviewQueueEntry, error)
	Pending(ctx context.Context) ([]models.ReviewQueueEntry, error)
	Resolve(ctx context.Context, libraryItemID string) error
}

type reviewQueueRepository struct {
	db *gorm.DB
}

func NewReviewQueueRepository(db *gorm.DB) ReviewQueueRepository {
	return &reviewQueueRepository{db: db}
}

func (r *reviewQueueRepository) Upsert(ctx context.Context, e *models.ReviewQueueEntry) error {
	var existing models.ReviewQueueEntry
	err := r.db.WithContext(ctx).Where("library_item_id = ?", e.LibraryItemID).First(&existing).Error
	if err == nil {
		e.ID = existing.ID
		return r.db.WithContext(ctx).Save(e).Error
	}
	if err == gorm.ErrRecordNotFound {
		return r.db.WithContext(ctx).Create(e).Error
	}
	return err
}

func (r *reviewQueueRepository) Find(ctx context.Context, libraryItemID string) (*models.ReviewQueueEntry, error) {
	var row models.ReviewQueueEntry
	err := r.db.WithContext(ctx).Where("library_item_id = ?", libraryItemID).First(&row).Error
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return &row, nil
}

func (r *reviewQueueRepository) Pending(ctx context.Context) ([]models.ReviewQueueEntry, error) {
	var rows []models.ReviewQueueEntry
	err := r.db.WithContext(ctx).Where("resolved = ?", false).Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *reviewQueueRepository) Resolve(ctx context.Context, libraryItemID string) error {
	return r.db.WithContext(ctx).
		Model(&models.ReviewQueueEntry{}).
		Where("library_item_id = ?", libraryItemID).
		Update("resolved", true).Error
}

// ProcessedItemRepository backs spec.md §4.2's idempotence cache.
type ProcessedItemRepository interface {
	Get(ctx context.Context, libraryItemID string) (*models.ProcessedItem, error)
	Save(ctx context.Context, p *models.ProcessedItem) error
	Clear(ctx context.Context, libraryItemID string) error
}

type processedItemRepository struct {
	db *gorm.DB
}

func NewProcessedItemRepository(db *gorm.DB) ProcessedItemRepository {
	return &processedItemRepository{db: db}
}

func (r *processedItemRepository) Get(ctx context.Context, libraryItemID string) (*models.ProcessedItem, error) {
	var row models.ProcessedItem
	err := r.db.WithContext(ctx).Where("library_item_id = ?", libraryItemID).First(&row).Error
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return &row, nil
}

func (r *processedItemRepository) Save(ctx context.Context, p *models.ProcessedItem) error {
	return r.db.WithContext(ctx).Save(p).Error
}

func (r *processedItemRepository) Clear(ctx context.Context, libraryItemID string) error {
	return r.db.WithContext(ctx).
		Where("library_item_id = ?", libraryItemID).
		Delete(&models.ProcessedItem{}).Error
}
