package repo

import (
	"context"

	"gorm.io/gorm"

	"mediabridge/storage/models"
)

type ActorSubscriptionRepository interface {
	Create(ctx context.Context, row *models.ActorSubscription) error
	Save(ctx context.Context, row *models.ActorSubscription) error
	Find(ctx context.Context, id uint) (*models.ActorSubscription, error)
	FindByPerson(ctx context.Context, metadataPersonID string) (*models.ActorSubscription, error)
	ListActive(ctx context.Context) ([]models.ActorSubscription, error)
	List(ctx context.Context) ([]models.ActorSubscription, error)
	Delete(ctx context.Context, id uint) error
	TouchLastChecked(ctx context.Context, id uint) error
}

type actorSubscriptionRepository struct {
	db *gorm.DB
}

func NewActorSubscriptionRepository(db *gorm.DB) ActorSubscriptionRepository {
	return &actorSubscriptionRepository{db: db}
}

func (r *actorSubscriptionRepository) Create(ctx context.Context, row *models.ActorSubscription) error {
	return r.db.WithContext(ctx).Create(row).Error
}

func (r *actorSubscriptionRepository) Save(ctx context.Context, row *models.ActorSubscription) error {
	return r.db.WithContext(ctx).Save(row).Error
}

func (r *actorSubscriptionRepository) Find(ctx context.Context, id uint) (*models.ActorSubscription, error) {
	var row models.ActorSubscription
	if err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, wrapNotFound(err)
	}
	return &row, nil
}

func (r *actorSubscriptionRepository) FindByPerson(ctx context.Context, metadataPersonID string) (*models.ActorSubscription, error) {
	var row models.ActorSubscription
	err := r.db.WithContext(ctx).
		Where("metadata_person_id = ?", metadataPersonID).
		First(&row).Error
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return &row, nil
}

// ListActive is the source of the scheduled scan's work list, spec.md
// §4.3 "each active actor subscription".
func (r *actorSubscriptionRepository) ListActive(ctx context.Context) ([]models.ActorSubscription, error) {
	var rows []models.ActorSubscription
	err := r.db.WithContext(ctx).
		Where("status = ?", models.ActorSubscriptionActive).
		Find(&rows).Error
	return rows, err
}

func (r *actorSubscriptionRepository) List(ctx context.Context) ([]models.ActorSubscription, error) {
	var rows []models.ActorSubscription
	err := r.db.WithContext(ctx).Order("actor_name").Find(&rows).Error
	return rows, err
}

func (r *actorSubscriptionRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&models.ActorSubscription{}, "id = ?", id).Error
}

func (r *actorSubscriptionRepository) TouchLastChecked(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).
		Model(&models.ActorSubscription{}).
		Where("id = ?", id).
		Update("last_checked_at", gorm.Expr("CURRENT_TIMESTAMP")).Error
}
