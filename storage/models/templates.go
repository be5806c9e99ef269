package models

import (
	"time"

	"gorm.io/datatypes"
)

// UserTemplate snapshots a Library Server user's policy (and optionally
// configuration) for replay onto other users, spec.md §4.7.
type UserTemplate struct {
	ID                      uint64         `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Name                    string         `gorm:"column:name" json:"name"`
	SourceUserID            string         `gorm:"column:source_user_id" json:"sourceUserId"`
	EmbyPolicy              datatypes.JSON `gorm:"column:emby_policy" json:"embyPolicy"`
	EmbyConfiguration       datatypes.JSON `gorm:"column:emby_configuration" json:"embyConfiguration,omitempty"`
	MaxConcurrentStreams    int            `gorm:"column:max_concurrent_streams" json:"maxConcurrentStreams"`
	DefaultExpirationDays   int            `gorm:"column:default_expiration_days" json:"defaultExpirationDays"`
	CreatedAt               time.Time      `json:"createdAt"`
	UpdatedAt               time.Time      `json:"updatedAt"`
}

func (UserTemplate) TableName() string { return "user_templates" }

type InvitationStatus string

const (
	InvitationPending InvitationStatus = "pending"
	InvitationUsed    InvitationStatus = "used"
	InvitationExpired InvitationStatus = "expired"
)

// Invitation is spec.md §3/§4.7: a redeemable token bound to a template.
type Invitation struct {
	Token           string           `gorm:"column:token;primaryKey" json:"token"`
	TemplateID      uint64           `gorm:"column:template_id" json:"templateId"`
	ExpirationDays  *int             `gorm:"column:expiration_days" json:"expirationDays,omitempty"`
	ExpiresAt       *time.Time       `gorm:"column:expires_at" json:"expiresAt,omitempty"`
	Status          InvitationStatus `gorm:"column:status" json:"status"`
	CreatedAt       time.Time        `json:"createdAt"`
}

func (Invitation) TableName() string { return "invitations" }

// UserExtension is the local extension row created on invitation
// redemption, spec.md §4.7 step (c).
type UserExtension struct {
	UserID         string     `gorm:"column:user_id;primaryKey" json:"userId"`
	Status         string     `gorm:"column:status" json:"status"`
	ExpirationDate *time.Time `gorm:"column:expiration_date" json:"expirationDate,omitempty"`
	TemplateID     uint64     `gorm:"column:template_id" json:"templateId"`
}

func (UserExtension) TableName() string { return "user_extensions" }

// ActiveSession is the per-user playback heartbeat, spec.md §3
// "ActiveSession". repo.SessionRepository.PurgeStale deletes rows
// older than a cutoff; no scheduled task calls it, so stale rows stay
// until something does.
type ActiveSession struct {
	UserID        string    `gorm:"column:user_id;primaryKey" json:"userId"`
	LibraryItemID string    `gorm:"column:library_item_id;primaryKey" json:"libraryItemId"`
	LastUpdatedAt time.Time `gorm:"column:last_updated_at" json:"lastUpdatedAt"`
}

func (ActiveSession) TableName() string { return "active_sessions" }

const ActiveSessionTTL = 15 * time.Minute

// SubscriptionDailyQuota backs the downloader rate-limit error kind in
// spec.md §7: one counter row per UTC day.
type SubscriptionDailyQuota struct {
	Date  string `gorm:"column:quota_date;primaryKey" json:"date"` // YYYY-MM-DD
	Count int    `gorm:"column:count" json:"count"`
	Limit int    `gorm:"column:quota_limit" json:"limit"`
}

func (SubscriptionDailyQuota) TableName() string { return "subscription_daily_quota" }

// Remaining reports how many subscription requests are left for today.
func (q SubscriptionDailyQuota) Remaining() int {
	if q.Limit <= 0 {
		return 1 // unlimited: report a permissive nonzero value
	}
	r := q.Limit - q.Count
	if r < 0 {
		return 0
	}
	return r
}
