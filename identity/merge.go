// Package identity implements the person-identity merge, cast
// role-cleanup/selection, translation cache, and cast quality scoring
// described in spec.md §4.1.
package identity

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"mediabridge/apperrors"
	"mediabridge/storage/models"
)

// fieldValue reads one of the four external-ID columns off a row by
// field name, returning ("", false) when it is null.
func fieldValue(row *models.PersonIdentity, f models.IDField) (string, bool) {
	switch f {
	case models.IDFieldLibrary:
		if row.LibraryPersonID != nil {
			return *row.LibraryPersonID, true
		}
	case models.IDFieldMetadata:
		if row.MetadataPersonID != nil {
			return fmt.Sprintf("%d", *row.MetadataPersonID), true
		}
	case models.IDFieldIMDb:
		if row.IMDbID != nil {
			return *row.IMDbID, true
		}
	case models.IDFieldCultural:
		if row.CulturalPersonID != nil {
			return *row.CulturalPersonID, true
		}
	}
	return "", false
}

// setFieldValue assigns value onto the named ID column of a row
// identified by mapID, inside tx.
func setFieldValue(tx *gorm.DB, f models.IDField, mapID uint64, value string) error {
	return tx.Model(&models.PersonIdentity{}).Where("map_id = ?", mapID).Update(string(f), value).Error
}

func clearFieldValue(tx *gorm.DB, f models.IDField, mapID uint64) error {
	return tx.Model(&models.PersonIdentity{}).Where("map_id = ?", mapID).Update(string(f), nil).Error
}

func findByField(tx *gorm.DB, f models.IDField, value string) (*models.PersonIdentity, error) {
	var row models.PersonIdentity
	err := tx.Where(fmt.Sprintf("%s = ?", f), value).First(&row).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// SafeMerge executes the conflict-resolution algorithm of spec.md
// §4.1 "Identity map merge": sourceMapID is the row being updated,
// targetMapID is the row already holding the value that caused the
// unique-constraint collision. Every external-ID field the source
// holds and the target lacks is transplanted onto the target — first
// stripping that value from whatever third-party row might also hold
// it — after which the now-empty source row is deleted. The whole
// operation runs inside a SAVEPOINT on tx so a secondary collision
// (e.g. two third-party rows disagreeing) rolls back only this merge
// attempt, not the caller's outer transaction.
func SafeMerge(ctx context.Context, tx *gorm.DB, sourceMapID, targetMapID uint64) error {
	if sourceMapID == targetMapID {
		return nil
	}

	const savepoint = "safe_merge"
	if err := tx.Exec("SAVEPOINT " + savepoint).Error; err != nil {
		return apperrors.Wrap(apperrors.KindInternal, "safe merge: creating savepoint", err)
	}

	if err := runMerge(tx, sourceMapID, targetMapID); err != nil {
		tx.Exec("ROLLBACK TO SAVEPOINT " + savepoint)
		return apperrors.Wrap(apperrors.KindMergeConflict, "safe merge failed, rolled back to savepoint", err)
	}

	if err := tx.Exec("RELEASE SAVEPOINT " + savepoint).Error; err != nil {
		return apperrors.Wrap(apperrors.KindInternal, "safe merge: releasing savepoint", err)
	}
	return nil
}

func runMerge(tx *gorm.DB, sourceMapID, targetMapID uint64) error {
	var source, target models.PersonIdentity
	if err := tx.Where("map_id = ?", sourceMapID).First(&source).Error; err != nil {
		return fmt.Errorf("loading source row %d: %w", sourceMapID, err)
	}
	if err := tx.Where("map_id = ?", targetMapID).First(&target).Error; err != nil {
		return fmt.Errorf("loading target row %d: %w", targetMapID, err)
	}

	for _, f := range models.AllIDFields {
		sourceVal, sourceHas := fieldValue(&source, f)
		if !sourceHas {
			continue
		}
		if _, targetHas := fieldValue(&target, f); targetHas {
			continue // target already carries this field; source's value is dropped
		}

		thirdParty, err := findByField(tx, f, sourceVal)
		if err != nil {
			return fmt.Errorf("checking third-party holder of %s=%s: %w", f, sourceVal, err)
		}
		if thirdParty != nil && thirdParty.MapID != sourceMapID && thirdParty.MapID != targetMapID {
			if err := clearFieldValue(tx, f, thirdParty.MapID); err != nil {
				return fmt.Errorf("stripping %s from third-party row %d: %w", f, thirdParty.MapID, err)
			}
		}

		// Release the value from the source row first: each ID column has
		// a unique index, so the target cannot take it while source holds it.
		if err := clearFieldValue(tx, f, sourceMapID); err != nil {
			return fmt.Errorf("releasing %s from source row %d: %w", f, sourceMapID, err)
		}
		if err := setFieldValue(tx, f, targetMapID, sourceVal); err != nil {
			return fmt.Errorf("setting %s on target row %d: %w", f, targetMapID, err)
		}
	}

	if err := tx.Where("map_id = ?", sourceMapID).Delete(&models.PersonIdentity{}).Error; err != nil {
		return fmt.Errorf("deleting emptied source row %d: %w", sourceMapID, err)
	}
	return nil
}

// AttachID sets field=value on the row identified by mapID. If that
// collides with a unique constraint (another row already holds
// value), it resolves the collision via SafeMerge and returns the
// surviving map_id (which may differ from mapID if mapID's row was
// the one absorbed).
func AttachID(ctx context.Context, tx *gorm.DB, mapID uint64, f models.IDField, value string) (uint64, error) {
	err := setFieldValue(tx, f, mapID, value)
	if err == nil {
		return mapID, nil
	}
	if !isUniqueViolation(err) {
		return 0, apperrors.Wrap(apperrors.KindInternal, "attaching identity field", err)
	}

	target, ferr := findByField(tx, f, value)
	if ferr != nil || target == nil {
		return 0, apperrors.Wrap(apperrors.KindInternal, "locating conflicting identity row", ferr)
	}
	if err := SafeMerge(ctx, tx, mapID, target.MapID); err != nil {
		return 0, err
	}
	return target.MapID, nil
}

func isUniqueViolation(err error) bool {
	// Postgres unique_violation is SQLSTATE 23505; pgx/gorm surface it
	// as an error whose message contains the constraint text, which is
	// the same substring match the original implementation keys off.
	if err == nil {
		return false
	}
	msg := err.Error()
	return containsAny(msg, "duplicate key value violates unique constraint", "23505", "SQLSTATE 23505")
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if len(sub) == 0 {
			continue
		}
		if indexOf(s, sub) >= 0 {
			return true
		}
	}
	return false
}

func indexOf(s, sub string) int {
	n, m := len(s), len(sub)
	if m == 0 || m > n {
		return -1
	}
	for i := 0; i+m <= n; i++ {
		if s[i:i+m] == sub {
			return i
		}
	}
	return -1
}
