package message

import "time"

// AttemptStatus is the outcome recorded for a single delivery try.
type AttemptStatus string

const (
	AttemptSuccess AttemptStatus = "SUCCESS"
	AttemptFailed  AttemptStatus = "FAILED"
)

// Well-known error codes written by the dispatcher itself, as opposed to
// codes passed through from a provider.
const (
	ErrCodeWindowExpired = "WINDOW_EXPIRED"
	ErrCodeTimeout       = "TIMEOUT"
	ErrCodeNoProvider    = "NO_PROVIDER"
)

// Attempt is one row of the append-only delivery audit trail. Rows are
// never updated or deleted once written.
type Attempt struct {
	ID           int64         `json:"id,string"`
	MessageID    int64         `json:"message_id,string"`
	TenantID     string        `json:"tenant_id"`
	AttemptNo    int           `json:"attempt_no"`
	Status       AttemptStatus `json:"status"`
	ErrorCode    string        `json:"error_code,omitempty"`
	ErrorMessage string        `json:"error_message,omitempty"`
	NextRetryAt  *time.Time    `json:"next_retry_at,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}
