package identity

import (
	"context"
	"strconv"

	"gorm.io/gorm"

	"mediabridge/apperrors"
	"mediabridge/storage/models"
)

// candidateFields enumerates the (field, value) pairs a RawActor
// carries, in the lookup priority spec.md §4.1 assigns the four IDs.
func candidateFields(a RawActor) []struct {
	field models.IDField
	value string
} {
	var out []struct {
		field models.IDField
		value string
	}
	if a.LibraryID != "" {
		out = append(out, struct {
			field models.IDField
			value string
		}{models.IDFieldLibrary, a.LibraryID})
	}
	if a.MetadataID != nil {
		out = append(out, struct {
			field models.IDField
			value string
		}{models.IDFieldMetadata, strconv.FormatUint(*a.MetadataID, 10)})
	}
	if a.IMDbID != "" {
		out = append(out, struct {
			field models.IDField
			value string
		}{models.IDFieldIMDb, a.IMDbID})
	}
	if a.CulturalID != "" {
		out = append(out, struct {
			field models.IDField
			value string
		}{models.IDFieldCultural, a.CulturalID})
	}
	return out
}

// Resolve finds the PersonIdentity row matching any ID carried by a,
// merging across rows via AttachID when more than one existing row
// claims a distinct field, or creates a new row when none match. Name
// matching by NormalizeName is used only as a last resort, when a
// carries no external ID at all.
func Resolve(ctx context.Context, tx *gorm.DB, a RawActor) (*models.PersonIdentity, error) {
	fields := candidateFields(a)

	var mapID uint64
	var found bool
	for _, c := range fields {
		row, err := findByField(tx, c.field, c.value)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.KindInternal, "resolving identity by id", err)
		}
		if row == nil {
			continue
		}
		if !found {
			mapID = row.MapID
			found = true
			continue
		}
		if row.MapID != mapID {
			merged, err := AttachID(ctx, tx, mapID, c.field, c.value)
			if err != nil {
				return nil, err
			}
			mapID = merged
		}
	}

	if !found && len(fields) == 0 {
		if a.Name == "" {
			return nil, apperrors.New(apperrors.KindValidation, "cannot resolve identity: no id and no name")
		}
		row, err := resolveByName(tx, a.Name)
		if err != nil {
			return nil, err
		}
		if row != nil {
			mapID = row.MapID
			found = true
		}
	}

	if !found {
		row := models.PersonIdentity{PrimaryName: a.Name}
		if err := applyFields(&row, fields); err != nil {
			return nil, err
		}
		if err := tx.Create(&row).Error; err != nil {
			return nil, apperrors.Wrap(apperrors.KindInternal, "creating identity row", err)
		}
		return &row, nil
	}

	for _, c := range fields {
		merged, err := AttachID(ctx, tx, mapID, c.field, c.value)
		if err != nil {
			return nil, err
		}
		mapID = merged
	}

	var row models.PersonIdentity
	if err := tx.Where("map_id = ?", mapID).First(&row).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "reloading resolved identity row", err)
	}
	return &row, nil
}

func applyFields(row *models.PersonIdentity, fields []struct {
	field models.IDField
	value string
}) error {
	for _, c := range fields {
		v := c.value
		switch c.field {
		case models.IDFieldLibrary:
			row.LibraryPersonID = &v
		case models.IDFieldIMDb:
			row.IMDbID = &v
		case models.IDFieldCultural:
			row.CulturalPersonID = &v
		case models.IDFieldMetadata:
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return apperrors.Wrap(apperrors.KindValidation, "invalid metadata id", err)
			}
			row.MetadataPersonID = &n
		}
	}
	return nil
}

func resolveByName(tx *gorm.DB, name string) (*models.PersonIdentity, error) {
	key := NormalizeName(name)
	var rows []models.PersonIdentity
	if err := tx.Find(&rows).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "scanning identity rows for name match", err)
	}
	for i := range rows {
		if NormalizeName(rows[i].PrimaryName) == key {
			return &rows[i], nil
		}
	}
	return nil, nil
}
