// Package repo wraps every storage entity behind a small repository
// interface, grounded on the teacher's repository package (one file,
// one interface, one gorm-backed implementation per entity).
package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"mediabridge/storage/models"
)

// ErrNotFound is returned in place of gorm.ErrRecordNotFound so callers
// never import gorm directly.
var ErrNotFound = errors.New("record not found")

type IdentityRepository interface {
	Create(ctx context.Context, row *models.PersonIdentity) error
	Save(ctx context.Context, row *models.PersonIdentity) error
	FindByMapID(ctx context.Context, mapID uint64) (*models.PersonIdentity, error)
	FindByLibraryID(ctx context.Context, libraryID string) (*models.PersonIdentity, error)
	FindByMetadataID(ctx context.Context, metadataID uint64) (*models.PersonIdentity, error)
	FindByIMDbID(ctx context.Context, imdbID string) (*models.PersonIdentity, error)
	FindByCulturalID(ctx context.Context, culturalID string) (*models.PersonIdentity, error)
	All(ctx context.Context) ([]models.PersonIdentity, error)
	Delete(ctx context.Context, mapID uint64) error
}

type identityRepository struct {
	db *gorm.DB
}

func NewIdentityRepository(db *gorm.DB) IdentityRepository {
	return &identityRepository{db: db}
}

func (r *identityRepository) Create(ctx context.Context, row *models.PersonIdentity) error {
	return r.db.WithContext(ctx).Create(row).Error
}

func (r *identityRepository) Save(ctx context.Context, row *models.PersonIdentity) error {
	return r.db.WithContext(ctx).Save(row).Error
}

func (r *identityRepository) FindByMapID(ctx context.Context, mapID uint64) (*models.PersonIdentity, error) {
	var row models.PersonIdentity
	if err := r.db.WithContext(ctx).Where("map_id = ?", mapID).First(&row).Error; err != nil {
		return nil, wrapNotFound(err)
	}
	return &row, nil
}

func (r *identityRepository) FindByLibraryID(ctx context.Context, libraryID string) (*models.PersonIdentity, error) {
	var row models.PersonIdentity
	if err := r.db.WithContext(ctx).Where("library_person_id = ?", libraryID).First(&row).Error; err != nil {
		return nil, wrapNotFound(err)
	}
	return &row, nil
}

func (r *identityRepository) FindByMetadataID(ctx context.Context, metadataID uint64) (*models.PersonIdentity, error) {
	var row models.PersonIdentity
	if err := r.db.WithContext(ctx).Where("metadata_person_id = ?", metadataID).First(&row).Error; err != nil {
		return nil, wrapNotFound(err)
	}
	return &row, nil
}

func (r *identityRepository) FindByIMDbID(ctx context.Context, imdbID string) (*models.PersonIdentity, error) {
	var row models.PersonIdentity
	if err := r.db.WithContext(ctx).Where("imdb_id = ?", imdbID).First(&row).Error; err != nil {
		return nil, wrapNotFound(err)
	}
	return &row, nil
}

func (r *identityRepository) FindByCulturalID(ctx context.Context, culturalID string) (*models.PersonIdentity, error) {
	var row models.PersonIdentity
	if err := r.db.WithContext(ctx).Where("cultural_person_id = ?", culturalID).First(&row).Error; err != nil {
		return nil, wrapNotFound(err)
	}
	return &row, nil
}

func (r *identityRepository) All(ctx context.Context) ([]models.PersonIdentity, error) {
	var rows []models.PersonIdentity
	if err := r.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *identityRepository) Delete(ctx context.Context, mapID uint64) error {
	return r.db.WithContext(ctx).Where("map_id = ?", mapID).Delete(&models.PersonIdentity{}).Error
}

func wrapNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
