package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// DeadLetterStatus describes the lifecycle of a quarantined message.
type DeadLetterStatus string

const (
	DeadLetterStatusPending  DeadLetterStatus = "pending"
	DeadLetterStatusResolved DeadLetterStatus = "resolved"
	DeadLetterStatusFailed   DeadLetterStatus = "failed"
)

// DeadLetterEntry is a quarantined message awaiting manual intervention.
// A partial unique index on (original_message_id) WHERE status = 'pending'
// guarantees at most one live entry per message.
type DeadLetterEntry struct {
	ID                uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	OriginalMessageID string           `gorm:"size:255;not null;index" json:"original_message_id"`
	ConsumerName      string           `gorm:"size:255;not null" json:"consumer_name"`
	PayloadSnapshot   datatypes.JSON   `gorm:"type:jsonb" json:"payload_snapshot"`
	FailureTimestamp  time.Time        `gorm:"index" json:"failure_timestamp"`
	AttemptNumber     int              `gorm:"not null" json:"attempt_number"`
	FailureReason     string           `gorm:"type:text" json:"failure_reason"`
	Status            DeadLetterStatus `gorm:"size:32;not null;default:pending;index" json:"status"`
	ResolvedTimestamp *time.Time       `json:"resolved_timestamp,omitempty"`
	ResolutionNotes   string           `gorm:"type:text" json:"resolution_notes,omitempty"`
}

// DeadLetterStats is an aggregate snapshot over the dead-letter store.
type DeadLetterStats struct {
	TotalMessages    int64          `json:"total_messages"`
	PendingMessages  int64          `json:"pending_messages"`
	ResolvedMessages int64          `json:"resolved_messages"`
	FailedMessages   int64          `json:"failed_messages"`
	OldestPendingAge *time.Duration `json:"oldest_pending_age,omitempty"`
}
