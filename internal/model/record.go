package model

import (
	"time"
)

// RecordStatus describes the lifecycle of a processing record.
type RecordStatus string

const (
	// RecordStatusClaimed marks a delivery that is currently owned by a worker.
	RecordStatusClaimed RecordStatus = "claimed"
	// RecordStatusProcessed marks a message whose business effect is durable.
	RecordStatusProcessed RecordStatus = "processed"
)

// ProcessingRecord is the idempotency record for one (message, consumer) pair.
// At most one row exists per pair; the composite primary key is what turns a
// concurrent duplicate insert into a unique-constraint violation.
type ProcessingRecord struct {
	MessageID    string       `gorm:"primaryKey;size:255" json:"message_id"`
	ConsumerName string       `gorm:"primaryKey;size:255" json:"consumer_name"`
	Status       RecordStatus `gorm:"size:32;not null;default:claimed" json:"status"`
	Result       string       `gorm:"type:text" json:"result"`
	ClaimedAt    time.Time    `json:"claimed_at"`
	ProcessedAt  *time.Time   `json:"processed_at,omitempty"`
}

// IsProcessed reports whether the record reached its terminal success state.
func (r *ProcessingRecord) IsProcessed() bool {
	return r.Status == RecordStatusProcessed
}
