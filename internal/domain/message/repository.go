package message

import (
	"context"
	"time"
)

// Counts is an aggregate snapshot used by the metrics reporter.
type Counts struct {
	ByStatus        map[Status]int64
	QueuedByChannel map[Channel]int64
	RetryByChannel  map[Channel]int64
	StuckSending    int64
}

// Repository defines persistence for outbound messages and their attempt
// audit trail. The store is the single source of truth for status; every
// mutation is conditional on the current status so illegal transitions
// cannot be persisted.
type Repository interface {
	// Create persists a new QUEUED message. Returns ErrDuplicateKey when
	// (tenant, channel, idempotency key) already exists.
	Create(ctx context.Context, m *OutboundMessage) error

	// FindByID returns ErrNotFound when the message does not exist for
	// the tenant.
	FindByID(ctx context.Context, tenantID string, id int64) (*OutboundMessage, error)

	// FindByIdempotencyKey returns nil when no message matches.
	FindByIdempotencyKey(ctx context.Context, tenantID string, channel Channel, key string) (*OutboundMessage, error)

	// ClaimDue atomically transitions up to limit due QUEUED messages to
	// SENDING and returns them. Two concurrent callers never both
	// receive the same message.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]*OutboundMessage, error)

	// Release puts a claimed (SENDING) message back to QUEUED with a
	// deferred due time, without consuming attempt budget.
	Release(ctx context.Context, id int64, dueAt time.Time) error

	// MarkSent transitions SENDING -> SENT and records the provider
	// reference.
	MarkSent(ctx context.Context, id int64, attemptCount int, providerMessageID string, at time.Time) error

	// ScheduleRetry transitions SENDING -> QUEUED with the new attempt
	// count and computed due time.
	ScheduleRetry(ctx context.Context, id int64, attemptCount int, dueAt time.Time, errCode, errMsg string) error

	// MarkFailed transitions SENDING -> FAILED (dead letter).
	MarkFailed(ctx context.Context, id int64, attemptCount int, errCode, errMsg string) error

	// MarkDelivered applies SENT -> DELIVERED for the message holding
	// the provider reference. Returns false without error when the
	// message is already DELIVERED or FAILED (idempotent on repeats).
	MarkDelivered(ctx context.Context, providerMessageID string, at time.Time) (bool, error)

	// RecoverStale reclassifies messages stuck in SENDING longer than
	// the threshold back to QUEUED, as if they had failed retryably.
	RecoverStale(ctx context.Context, olderThan time.Time, limit int) (int64, error)

	// AppendAttempt writes one immutable audit row.
	AppendAttempt(ctx context.Context, a *Attempt) error

	// ListAttempts returns the audit trail ordered by attempt number.
	ListAttempts(ctx context.Context, tenantID string, messageID int64) ([]*Attempt, error)

	// AggregateCounts produces the gauge snapshot for the metrics
	// reporter. stuckAfter bounds the stuck-SENDING count.
	AggregateCounts(ctx context.Context, stuckAfter time.Time) (*Counts, error)
}
