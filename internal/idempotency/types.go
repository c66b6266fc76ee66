package idempotency

import "time"

// Status values for trigger claims
const (
	StatusInProgress = "IN_PROGRESS"
	StatusDone       = "DONE"
	StatusFailed     = "FAILED"
)

// Claim records that a trigger (a scheduled event delivery) has started a
// sync run. Duplicate deliveries of the same trigger find the claim and skip.
type Claim struct {
	TriggerID string    `dynamodbav:"trigger_id"` // PK
	Status    string    `dynamodbav:"status"`
	RunID     string    `dynamodbav:"run_id,omitempty"`
	Summary   string    `dynamodbav:"summary,omitempty"`
	Note      string    `dynamodbav:"note,omitempty"`
	Attempts  int       `dynamodbav:"attempts"`
	CreatedAt time.Time `dynamodbav:"created_at"`
	UpdatedAt time.Time `dynamodbav:"updated_at"`
	ExpiresAt int64     `dynamodbav:"expires_at"` // TTL epoch seconds
}
