// Package templates implements user templates and invitation
// redemption, spec.md §4.7: a template snapshots a Library Server
// user's policy (and optionally configuration) for replay onto other
// users, and an invitation provisions a fresh user against a template
// in one transaction. Grounded on the teacher's services/user_template
// pairing of a snapshot record with a force-push replay step, adapted
// onto this system's own library client and GORM transaction scoping.
package templates

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"mediabridge/apperrors"
	"mediabridge/clients/library"
	"mediabridge/logging"
	"mediabridge/storage/models"
	"mediabridge/storage/repo"
)

// PolicyPushMarker suppresses the policy-update event a force-push
// itself triggers, spec.md §4.6 "Policy-update recursion suppression".
type PolicyPushMarker interface {
	MarkPolicyPush(userID string)
}

// Service implements template snapshot/replay and invitation
// redemption. Redemption's DB writes share a single transaction;
// SyncTemplate saves through the repositories without one.
type Service struct {
	db         *gorm.DB
	templates  repo.TemplateRepository
	invites    repo.InvitationRepository
	extensions repo.UserExtensionRepository
	library    *library.Client
	policyPush PolicyPushMarker
}

func New(
	db *gorm.DB,
	templates repo.TemplateRepository,
	invites repo.InvitationRepository,
	extensions repo.UserExtensionRepository,
	lib *library.Client,
	policyPush PolicyPushMarker,
) *Service {
	return &Service{
		db:         db,
		templates:  templates,
		invites:    invites,
		extensions: extensions,
		library:    lib,
		policyPush: policyPush,
	}
}

// SyncTemplate replays the template's source user's current policy (and
// configuration, when the template carries one) into the template
// record, then force-pushes that policy/configuration to every user
// bound to the template, spec.md §4.7 "Sync-template replays the
// current source user's policy ... into the template and force-pushes
// to all bound users."
func (s *Service) SyncTemplate(ctx context.Context, templateID uint64) error {
	log := logging.FromContext(ctx)

	tmpl, err := s.templates.Find(ctx, templateID)
	if err != nil {
		return err
	}

	policy, err := s.library.GetUserPolicy(ctx, tmpl.SourceUserID)
	if err != nil {
		return fmt.Errorf("templates: fetching source user policy: %w", err)
	}
	policyJSON, err := json.Marshal(policy)
	if err != nil {
		return apperrors.Wrap(apperrors.KindInternal, "encoding source policy", err)
	}
	tmpl.EmbyPolicy = policyJSON

	if len(tmpl.EmbyConfiguration) > 0 {
		configuration, err := s.library.GetUserConfiguration(ctx, tmpl.SourceUserID)
		if err != nil {
			return fmt.Errorf("templates: fetching source user configuration: %w", err)
		}
		configJSON, err := json.Marshal(configuration)
		if err != nil {
			return apperrors.Wrap(apperrors.KindInternal, "encoding source configuration", err)
		}
		tmpl.EmbyConfiguration = configJSON
	}

	if err := s.templates.Save(ctx, tmpl); err != nil {
		return err
	}

	bound, err := s.extensions.ByTemplate(ctx, templateID)
	if err != nil {
		return err
	}

	var decodedPolicy any
	if err := json.Unmarshal(tmpl.EmbyPolicy, &decodedPolicy); err != nil {
		return apperrors.Wrap(apperrors.KindInternal, "decoding template policy", err)
	}
	var decodedConfiguration any
	if len(tmpl.EmbyConfiguration) > 0 {
		if err := json.Unmarshal(tmpl.EmbyConfiguration, &decodedConfiguration); err != nil {
			return apperrors.Wrap(apperrors.KindInternal, "decoding template configuration", err)
		}
	}

	for _, ext := range bound {
		if err := s.pushPolicy(ctx, ext.UserID, decodedPolicy, decodedConfiguration); err != nil {
			log.Warn().Err(err).Str("user_id", ext.UserID).Msg("force-pushing template policy failed")
			continue
		}
	}
	return nil
}

func (s *Service) pushPolicy(ctx context.Context, userID string, policy, configuration any) error {
	if err := s.library.SetUserPolicy(ctx, userID, policy); err != nil {
		return err
	}
	if configuration != nil {
		if err := s.library.SetUserConfiguration(ctx, userID, configuration); err != nil {
			return err
		}
	}
	if s.policyPush != nil {
		s.policyPush.MarkPolicyPush(userID)
	}
	return nil
}

// CreateInvitation issues a fresh redeemable token bound to templateID,
// expiresAt nil meaning the invitation itself never expires (the bound
// user's own expirationDays still applies at redemption time).
func (s *Service) CreateInvitation(ctx context.Context, templateID uint64, expirationDays *int, expiresAt *time.Time) (*models.Invitation, error) {
	inv := &models.Invitation{
		Token:          uuid.NewString(),
		TemplateID:     templateID,
		ExpirationDays: expirationDays,
		ExpiresAt:      expiresAt,
		Status:         models.InvitationPending,
		CreatedAt:      time.Now(),
	}
	if err := s.invites.Create(ctx, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

// Redeem performs the four-step invitation redemption spec.md §4.7
// describes: (a) create a library user with a name-collision check,
// (b) force-apply the template
// policy (and configuration), (c) insert an extension row, (d) mark
// the invitation used. (a) and (b) are remote calls made first; (c)
// and (d) share one DB transaction.
func (s *Service) Redeem(ctx context.Context, token, desiredName string) (*models.UserExtension, error) {
	inv, err := s.invites.Find(ctx, token)
	if err != nil {
		return nil, err
	}
	if inv.Status != models.InvitationPending {
		return nil, apperrors.New(apperrors.KindValidation, "invitation is not pending")
	}
	if inv.ExpiresAt != nil && time.Now().After(*inv.ExpiresAt) {
		inv.Status = models.InvitationExpired
		_ = s.invites.Save(ctx, inv)
		return nil, apperrors.New(apperrors.KindValidation, "invitation has expired")
	}

	tmpl, err := s.templates.Find(ctx, inv.TemplateID)
	if err != nil {
		return nil, err
	}

	// (a) create the library user outside the DB transaction: it is a
	// remote side effect that cannot be rolled back by GORM, so any
	// later failure must be surfaced rather than silently retried.
	newUser, err := s.library.CreateUser(ctx, desiredName)
	if err != nil {
		return nil, fmt.Errorf("templates: redeeming invitation: %w", err)
	}

	var decodedPolicy any
	if err := json.Unmarshal(tmpl.EmbyPolicy, &decodedPolicy); err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "decoding template policy", err)
	}
	var decodedConfiguration any
	if len(tmpl.EmbyConfiguration) > 0 {
		if err := json.Unmarshal(tmpl.EmbyConfiguration, &decodedConfiguration); err != nil {
			return nil, apperrors.Wrap(apperrors.KindInternal, "decoding template configuration", err)
		}
	}

	// (b) force-apply policy/configuration before the row is committed,
	// so a push failure aborts redemption instead of leaving a user
	// extension with no matching library-side policy.
	if err := s.pushPolicy(ctx, newUser.ID, decodedPolicy, decodedConfiguration); err != nil {
		return nil, fmt.Errorf("templates: applying template policy: %w", err)
	}

	expirationDays := tmpl.DefaultExpirationDays
	if inv.ExpirationDays != nil {
		expirationDays = *inv.ExpirationDays
	}
	var expirationDate *time.Time
	if expirationDays > 0 {
		t := time.Now().AddDate(0, 0, expirationDays)
		expirationDate = &t
	}

	ext := &models.UserExtension{
		UserID:         newUser.ID,
		Status:         "active",
		ExpirationDate: expirationDate,
		TemplateID:     tmpl.ID,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// (c) insert the extension row. Create, not Save: UserID is
		// already populated from the newly provisioned library user, and
		// GORM's Save treats a non-zero primary key as an update-existing
		// that silently affects zero rows when none exists yet.
		if err := tx.Create(ext).Error; err != nil {
			return err
		}
		// (d) mark the invitation used.
		inv.Status = models.InvitationUsed
		if err := tx.Save(inv).Error; err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "persisting invitation redemption", err)
	}

	return ext, nil
}

// CheckExpirations disables the Library Server account of every
// extension row whose expiration_date has passed and marks the row
// expired, the scheduled counterpart to the admin "set user
// expiration" endpoint original_source/routes/user_management.py
// exposes interactively.
func (s *Service) CheckExpirations(ctx context.Context) error {
	log := logging.FromContext(ctx)

	due, err := s.extensions.Expiring(ctx)
	if err != nil {
		return err
	}
	for _, ext := range due {
		if ext.Status == "expired" {
			continue
		}
		policy, err := s.library.GetUserPolicy(ctx, ext.UserID)
		if err != nil {
			log.Warn().Err(err).Str("user_id", ext.UserID).Msg("expiration check: fetching policy failed")
			continue
		}
		policy["IsDisabled"] = true
		if err := s.library.SetUserPolicy(ctx, ext.UserID, policy); err != nil {
			log.Warn().Err(err).Str("user_id", ext.UserID).Msg("expiration check: disabling user failed")
			continue
		}
		ext := ext
		ext.Status = "expired"
		if err := s.extensions.Save(ctx, &ext); err != nil {
			log.Warn().Err(err).Str("user_id", ext.UserID).Msg("expiration check: saving extension failed")
		}
	}
	return nil
}
