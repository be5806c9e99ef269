package identity

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"mediabridge/apperrors"
	"mediabridge/storage/models"
)

// Translator performs an online translation of phrase when the cache
// has no usable entry. Implementations live in clients/ai; identity
// only depends on this narrow shape so it stays free of HTTP concerns.
type Translator interface {
	Translate(ctx context.Context, phrase string) (string, error)
}

// TranslateCached implements spec.md §4.1 "Translation cache": a hit on
// a poison entry (translation recorded as permanently unavailable)
// short-circuits without calling fn, so a phrase the engine is known to
// choke on is never retried on every cast member that carries it.
func TranslateCached(ctx context.Context, db *gorm.DB, engine, phrase string, fn Translator) (string, error) {
	phrase = strings.TrimSpace(phrase)
	if phrase == "" {
		return "", nil
	}
	if len(phrase) <= 2 && phrase == strings.ToUpper(phrase) {
		return phrase, nil
	}

	var entry models.TranslationEntry
	err := db.Where("source_phrase = ?", phrase).First(&entry).Error
	switch {
	case err == nil:
		if entry.IsPoison() {
			return "", apperrors.New(apperrors.KindValidation, "translation previously failed permanently for this phrase")
		}
		if entry.Translation != nil {
			return *entry.Translation, nil
		}
	case err == gorm.ErrRecordNotFound:
		// fall through to online lookup
	default:
		return "", apperrors.Wrap(apperrors.KindInternal, "reading translation cache", err)
	}

	result, terr := fn.Translate(ctx, phrase)
	if terr != nil {
		poisoned := models.TranslationEntry{SourcePhrase: phrase, Translation: nil, Engine: engine}
		db.Save(&poisoned)
		return "", apperrors.Wrap(apperrors.KindTransient, "online translation failed", terr)
	}

	saved := models.TranslationEntry{SourcePhrase: phrase, Translation: &result, Engine: engine}
	if err := db.Save(&saved).Error; err != nil {
		return "", apperrors.Wrap(apperrors.KindInternal, "writing translation cache", err)
	}
	return result, nil
}
