package repo

import (
	"context"

	"gorm.io/gorm"

	"mediabridge/storage/models"
)

type TranslationRepository interface {
	Get(ctx context.Context, phrase string) (*models.TranslationEntry, error)
	Save(ctx context.Context, entry *models.TranslationEntry) error
}

type translationRepository struct {
	db *gorm.DB
}

func NewTranslationRepository(db *gorm.DB) TranslationRepository {
	return &translationRepository{db: db}
}

func (r *translationRepository) Get(ctx context.Context, phrase string) (*models.TranslationEntry, error) {
	var entry models.TranslationEntry
	if err := r.db.WithContext(ctx).Where("source_phrase = ?", phrase).First(&entry).Error; err != nil {
		return nil, wrapNotFound(err)
	}
	return &entry, nil
}

func (r *translationRepository) Save(ctx context.Context, entry *models.TranslationEntry) error {
	return r.db.WithContext(ctx).Save(entry).Error
}
