package collections

import (
	"encoding/json"

	"gorm.io/datatypes"

	"mediabridge/storage/models"
)

// decodeDefinition unmarshals a CustomCollection's raw Definition
// column into its type-specific shape (FilterDefinition/ListDefinition).
func decodeDefinition(raw datatypes.JSON, out interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}

// decodeLimit reads the "limit" field common to both definition shapes
// without committing to one of them, used by ai_recommendation_global
// syncing where the definition only carries a pool size.
func decodeLimit(raw datatypes.JSON) (int, error) {
	if len(raw) == 0 {
		return 0, nil
	}
	var payload struct {
		Limit int `json:"limit"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return 0, err
	}
	return payload.Limit, nil
}

// jsonEntries wraps a GeneratedMediaEntry slice for storage in the
// GeneratedMediaInfo column.
func jsonEntries(entries []models.GeneratedMediaEntry) datatypes.JSONType[[]models.GeneratedMediaEntry] {
	return datatypes.NewJSONType(entries)
}
