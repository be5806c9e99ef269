package repo

import (
	"context"
	"encoding/json"

	"gorm.io/gorm"

	"mediabridge/storage/models"
)

type MediaRepository interface {
	Create(ctx context.Context, row *models.MediaMetadata) error
	Save(ctx context.Context, row *models.MediaMetadata) error
	Find(ctx context.Context, metadataID int64, itemType models.ItemType) (*models.MediaMetadata, error)
	FindByLibraryItemID(ctx context.Context, libraryItemID string) (*models.MediaMetadata, error)
	FindSeasons(ctx context.Context, parentSeriesMetadataID int64) ([]models.MediaMetadata, error)
	FindBySubscriptionStatus(ctx context.Context, status models.SubscriptionStatus) ([]models.MediaMetadata, error)
	FindBySubscriptionSource(ctx context.Context, sourceType, sourceID string) ([]models.MediaMetadata, error)
	FindDuplicates(ctx context.Context) ([]models.MediaMetadata, error)
	FindInLibrary(ctx context.Context) ([]models.MediaMetadata, error)
	Delete(ctx context.Context, metadataID int64, itemType models.ItemType) error
	// All returns every row, optionally narrowed to itemTypes (empty
	// means every type). Used by the custom-collection rule evaluator
	// (collections package), which matches in Go rather than SQL since
	// the rule DSL spans JSON list/date/numeric fields.
	All(ctx context.Context, itemTypes []models.ItemType) ([]models.MediaMetadata, error)
	FindByMetadataIDs(ctx context.Context, pairs []MetadataKey) ([]models.MediaMetadata, error)
	FilterVisible(ctx context.Context, pairs []MetadataKey, policy PermissionPolicy) ([]models.MediaMetadata, error)
}

// MetadataKey identifies one MediaMetadata row by its composite key.
type MetadataKey struct {
	MetadataID int64
	ItemType   models.ItemType
}

type mediaRepository struct {
	db *gorm.DB
}

func NewMediaRepository(db *gorm.DB) MediaRepository {
	return &mediaRepository{db: db}
}

func (r *mediaRepository) Create(ctx context.Context, row *models.MediaMetadata) error {
	return r.db.WithContext(ctx).Create(row).Error
}

func (r *mediaRepository) Save(ctx context.Context, row *models.MediaMetadata) error {
	return r.db.WithContext(ctx).Save(row).Error
}

func (r *mediaRepository) Find(ctx context.Context, metadataID int64, itemType models.ItemType) (*models.MediaMetadata, error) {
	var row models.MediaMetadata
	err := r.db.WithContext(ctx).
		Where("metadata_id = ? AND item_type = ?", metadataID, itemType).
		First(&row).Error
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return &row, nil
}

// FindByLibraryItemID looks inside the JSON LibraryItemIDs column,
// since one metadata row can back several library items (e.g. a
// season shared across a re-scan).
func (r *mediaRepository) FindByLibraryItemID(ctx context.Context, libraryItemID string) (*models.MediaMetadata, error) {
	var row models.MediaMetadata
	err := r.db.WithContext(ctx).
		Where("library_item_ids @> ?", datatypesJSONArray(libraryItemID)).
		First(&row).Error
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return &row, nil
}

func (r *mediaRepository) FindSeasons(ctx context.Context, parentSeriesMetadataID int64) ([]models.MediaMetadata, error) {
	var rows []models.MediaMetadata
	err := r.db.WithContext(ctx).
		Where("parent_series_metadata_id = ? AND item_type = ?", parentSeriesMetadataID, models.ItemTypeSeason).
		Order("season_number").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *mediaRepository) FindBySubscriptionStatus(ctx context.Context, status models.SubscriptionStatus) ([]models.MediaMetadata, error) {
	var rows []models.MediaMetadata
	err := r.db.WithContext(ctx).Where("subscription_status = ?", status).Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// FindBySubscriptionSource finds every row currently tracked by a given
// subscription source (e.g. one actor subscription), used to detect
// works that have fallen out of an actor's current filmography.
func (r *mediaRepository) FindBySubscriptionSource(ctx context.Context, sourceType, sourceID string) ([]models.MediaMetadata, error) {
	var rows []models.MediaMetadata
	// Only type/id are asserted — jsonb "@>" containment requires every
	// key present in the probe to match, so Name must stay out of it.
	source, err := json.Marshal([]map[string]string{{"type": sourceType, "id": sourceID}})
	if err != nil {
		return nil, err
	}
	err = r.db.WithContext(ctx).
		Where("subscription_sources @> ?", string(source)).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// FindDuplicates returns every row backed by more than one library
// item id, the input set for the duplicate-version cleanup scanner.
func (r *mediaRepository) FindDuplicates(ctx context.Context) ([]models.MediaMetadata, error) {
	var rows []models.MediaMetadata
	err := r.db.WithContext(ctx).
		Where("jsonb_array_length(library_item_ids) > 1").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// FindInLibrary returns every row currently backed by at least one
// library item, the input set for the quality-upgrade scanner.
func (r *mediaRepository) FindInLibrary(ctx context.Context) ([]models.MediaMetadata, error) {
	var rows []models.MediaMetadata
	err := r.db.WithContext(ctx).Where("in_library = ?", true).Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *mediaRepository) Delete(ctx context.Context, metadataID int64, itemType models.ItemType) error {
	return r.db.WithContext(ctx).
		Where("metadata_id = ? AND item_type = ?", metadataID, itemType).
		Delete(&models.MediaMetadata{}).Error
}

func (r *mediaRepository) All(ctx context.Context, itemTypes []models.ItemType) ([]models.MediaMetadata, error) {
	q := r.db.WithContext(ctx)
	if len(itemTypes) > 0 {
		q = q.Where("item_type IN ?", itemTypes)
	}
	var rows []models.MediaMetadata
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// FindByMetadataIDs batches a lookup by (metadata_id, item_type) pairs,
// the shape a list/AI collection's generated_media_info resolves
// against when the proxy materializes a synthetic library page.
func (r *mediaRepository) FindByMetadataIDs(ctx context.Context, pairs []MetadataKey) ([]models.MediaMetadata, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	db := r.db.WithContext(ctx)
	tx := db.Where("1 = 0")
	for _, p := range pairs {
		tx = tx.Or("metadata_id = ? AND item_type = ?", p.MetadataID, p.ItemType)
	}
	var rows []models.MediaMetadata
	if err := tx.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// datatypesJSONArray renders a single-element JSON array literal for a
// Postgres jsonb containment query ("@>").
func datatypesJSONArray(s string) string {
	return `["` + s + `"]`
}

// PermissionPolicy is the subset of a Library Server user policy the
// effective-permissions filter reads, spec.md §4.8 "Effective
// permissions (SQL-level)".
type PermissionPolicy struct {
	EnableAllFolders   bool
	EnabledFolders     []string
	ExcludedSubFolders []string
	BlockedTags        []string
	MaxParentalRating  *int
	BlockUnratedItems  bool
}

// FilterVisible narrows the (metadata_id, item_type) pairs in pairs down
// to those whose asset placement, tags, and parental rating satisfy
// policy, evaluated entirely in SQL so a synthetic-library page never
// has to pull a row into Go only to discard it. Grounded on
// original_source/database/queries_db.py's query_virtual_library_items
// permission clauses, rewritten without jsonb's `?`/`?|` operators
// (which collide with GORM's own `?` placeholder syntax) in favor of
// EXISTS over jsonb_array_elements_text.
func (r *mediaRepository) FilterVisible(ctx context.Context, pairs []MetadataKey, policy PermissionPolicy) ([]models.MediaMetadata, error) {
	if len(pairs) == 0 {
		return nil, nil
	}

	db := r.db.WithContext(ctx).Model(&models.MediaMetadata{})
	idClause := db.Where("1 = 0")
	for _, p := range pairs {
		idClause = idClause.Or("metadata_id = ? AND item_type = ?", p.MetadataID, p.ItemType)
	}
	q := db.Where(idClause)

	if !policy.EnableAllFolders {
		if len(policy.EnabledFolders) == 0 {
			return nil, nil
		}
		q = q.Where(`EXISTS (
			SELECT 1 FROM jsonb_array_elements(asset_details) AS asset
			WHERE (asset->>'sourceLibraryId') IN ?
			   OR EXISTS (
				SELECT 1 FROM jsonb_array_elements_text(COALESCE(asset->'ancestorIds', '[]'::jsonb)) AS ancestor
				WHERE ancestor IN ?
			   )
		)`, policy.EnabledFolders, policy.EnabledFolders)
	}
	if len(policy.ExcludedSubFolders) > 0 {
		q = q.Where(`NOT EXISTS (
			SELECT 1 FROM jsonb_array_elements(asset_details) AS asset,
			     jsonb_array_elements_text(COALESCE(asset->'ancestorIds', '[]'::jsonb)) AS ancestor
			WHERE ancestor IN ?
		)`, policy.ExcludedSubFolders)
	}
	if len(policy.BlockedTags) > 0 {
		q = q.Where(`NOT EXISTS (
			SELECT 1 FROM jsonb_array_elements_text(COALESCE(tags, '[]'::jsonb)) AS tag
			WHERE tag IN ?
		)`, policy.BlockedTags)
	}
	if policy.MaxParentalRating != nil {
		q = q.Where(`(unified_rating IS NOT NULL AND unified_rating ~ '^[0-9]+$' AND (unified_rating)::int <= ?)`, *policy.MaxParentalRating)
	}
	if policy.BlockUnratedItems {
		q = q.Where(`NOT (
			unified_rating IS NULL OR unified_rating = '' OR
			(CASE WHEN unified_rating ~ '^[0-9]+$' THEN (unified_rating)::int ELSE 0 END) = 0
		)`)
	}

	var rows []models.MediaMetadata
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
