package model

import "time"

// ProcessingStats is the aggregate snapshot served by the statistics endpoint.
// OldestClaimAge surfaces deliveries stuck in the claimed state.
type ProcessingStats struct {
	TotalProcessed     int64           `json:"total_processed"`
	DuplicatesDetected int64           `json:"duplicates_detected"`
	SuccessfulOrders   int64           `json:"successful_orders"`
	OldestClaimAge     *time.Duration  `json:"oldest_claim_age,omitempty"`
	DeadLetter         DeadLetterStats `json:"dead_letter"`
}
