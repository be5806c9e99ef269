package repo

import (
	"context"

	"gorm.io/gorm"

	"mediabridge/storage/models"
)

type TemplateRepository interface {
	Create(ctx context.Context, t *models.UserTemplate) error
	Save(ctx context.Context, t *models.UserTemplate) error
	Find(ctx context.Context, id uint64) (*models.UserTemplate, error)
	All(ctx context.Context) ([]models.UserTemplate, error)
	Delete(ctx context.Context, id uint64) error
}

type templateRepository struct {
	db *gorm.DB
}

func NewTemplateRepository(db *gorm.DB) TemplateRepository {
	return &templateRepository{db: db}
}

func (r *templateRepository) Create(ctx context.Context, t *models.UserTemplate) error {
	return r.db.WithContext(ctx).Create(t).Error
}

func (r *templateRepository) Save(ctx context.Context, t *models.UserTemplate) error {
	return r.db.WithContext(ctx).Save(t).Error
}

func (r *templateRepository) Find(ctx context.Context, id uint64) (*models.UserTemplate, error) {
	var row models.UserTemplate
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return nil, wrapNotFound(err)
	}
	return &row, nil
}

func (r *templateRepository) All(ctx context.Context) ([]models.UserTemplate, error) {
	var rows []models.UserTemplate
	if err := r.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *templateRepository) Delete(ctx context.Context, id uint64) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.UserTemplate{}).Error
}

type InvitationRepository interface {
	Create(ctx context.Context, inv *models.Invitation) error
	Save(ctx context.Context, inv *models.Invitation) error
	Find(ctx context.Context, token string) (*models.Invitation, error)
}

type invitationRepository struct {
	db *gorm.DB
}

func NewInvitationRepository(db *gorm.DB) InvitationRepository {
	return &invitationRepository{db: db}
}

func (r *invitationRepository) Create(ctx context.Context, inv *models.Invitation) error {
	return r.db.WithContext(ctx).Create(inv).Error
}

func (r *invitationRepository) Save(ctx context.Context, inv *models.Invitation) error {
	return r.db.WithContext(ctx).Save(inv).Error
}

func (r *invitationRepository) Find(ctx context.Context, token string) (*models.Invitation, error) {
	var row models.Invitation
	if err := r.db.WithContext(ctx).Where("token = ?", token).First(&row).Error; err != nil {
		return nil, wrapNotFound(err)
	}
	return &row, nil
}

type UserExtensionRepository interface {
	Save(ctx context.Context, ext *models.UserExtension) error
	Find(ctx context.Context, userID string) (*models.UserExtension, error)
	Expiring(ctx context.Context) ([]models.UserExtension, error)
	ByTemplate(ctx context.Context, templateID uint64) ([]models.UserExtension, error)
}

type userExtensionRepository struct {
	db *gorm.DB
}

func NewUserExtensionRepository(db *gorm.DB) UserExtensionRepository {
	return &userExtensionRepository{db: db}
}

func (r *userExtensionRepository) Save(ctx context.Context, ext *models.UserExtension) error {
	return r.db.WithContext(ctx).Save(ext).Error
}

func (r *userExtensionRepository) Find(ctx context.Context, userID string) (*models.UserExtension, error) {
	var row models.UserExtension
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&row).Error; err != nil {
		return nil, wrapNotFound(err)
	}
	return &row, nil
}

func (r *userExtensionRepository) Expiring(ctx context.Context) ([]models.UserExtension, error) {
	var rows []models.UserExtension
	err := r.db.WithContext(ctx).
		Where("expiration_date IS NOT NULL AND expiration_date <= now()").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ByTemplate lists every extension row bound to templateID, the users
// a template sync force-pushes its replayed policy to.
func (r *userExtensionRepository) ByTemplate(ctx context.Context, templateID uint64) ([]models.UserExtension, error) {
	var rows []models.UserExtension
	if err := r.db.WithContext(ctx).Where("template_id = ?", templateID).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
