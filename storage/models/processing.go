package models

import (
	"time"

	"gorm.io/datatypes"
)

// ReviewQueueEntry holds an item the processor parked instead of
// writing back, spec.md §4.2 step 6 "the item is parked on a review
// queue with the computed reason".
type ReviewQueueEntry struct {
	ID            uint64                       `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	LibraryItemID string                       `gorm:"column:library_item_id;uniqueIndex" json:"libraryItemId"`
	Reason        string                       `gorm:"column:reason" json:"reason"`
	QualityScore  float64                      `gorm:"column:quality_score" json:"qualityScore"`
	Cast          datatypes.JSONType[[]ActorRef] `gorm:"column:cast" json:"cast"`
	Resolved      bool                         `gorm:"column:resolved" json:"resolved"`
	CreatedAt     time.Time                    `json:"createdAt"`
	UpdatedAt     time.Time                    `json:"updatedAt"`
}

func (ReviewQueueEntry) TableName() string { return "review_queue" }

// ProcessedItem is the idempotence cache spec.md §4.2 describes: "a
// re-run on an already-processed item with force_full_update=false
// short-circuits via the processed-items cache". ResultKind is "ok" or
// "needs_review"; Reason is set only for the latter.
type ProcessedItem struct {
	LibraryItemID string    `gorm:"column:library_item_id;primaryKey" json:"libraryItemId"`
	ResultKind    string    `gorm:"column:result_kind" json:"resultKind"`
	Reason        string    `gorm:"column:reason" json:"reason,omitempty"`
	ProcessedAt   time.Time `gorm:"column:processed_at" json:"processedAt"`
}

func (ProcessedItem) TableName() string { return "processed_items" }
