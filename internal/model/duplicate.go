package model

import (
	"time"

	"github.com/google/uuid"
)

// DuplicateAttempt is an audit row recorded whenever a delivery is rejected
// because its message was already claimed or processed.
type DuplicateAttempt struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	MessageID    string    `gorm:"size:255;not null;index" json:"message_id"`
	ConsumerName string    `gorm:"size:255;not null" json:"consumer_name"`
	Source       string    `gorm:"size:64" json:"source"`
	DetectedAt   time.Time `gorm:"index" json:"detected_at"`
}
