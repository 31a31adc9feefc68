package idempotency

import "time"

// Record states. IN_PROGRESS -> DONE, or IN_PROGRESS -> FAILED -> IN_PROGRESS
// when a client retries with the same key.
const (
	StatusInProgress = "IN_PROGRESS"
	StatusDone       = "DONE"
	StatusFailed     = "FAILED"
)

// Record is one Idempotency-Key as stored in DynamoDB.
type Record struct {
	Key            string    `dynamodbav:"idempotency_key"`
	Status         string    `dynamodbav:"status"`
	OrderID        string    `dynamodbav:"order_id,omitempty"`
	ResponseBody   string    `dynamodbav:"response_body,omitempty"`
	ResponseStatus int       `dynamodbav:"response_status,omitempty"`
	CreatedAt      time.Time `dynamodbav:"created_at"`
	UpdatedAt      time.Time `dynamodbav:"updated_at"`
	ExpiresAt      int64     `dynamodbav:"expires_at"` // TTL attribute, epoch seconds
	Note           string    `dynamodbav:"note,omitempty"`
}

// Replayable reports whether the stored response can be sent again as is.
func (r *Record) Replayable() bool {
	return r.Status == StatusDone && r.ResponseStatus != 0 && r.ResponseBody != ""
}
