package testhelper

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dossierlabs/dossier-messaging/internal/domain/message"
	"github.com/dossierlabs/dossier-messaging/internal/domain/session"
)

// MemoryMessageRepository is a mutex-guarded in-memory implementation of
// message.Repository with the same conditional-transition semantics as
// the postgres adapter. Claims are atomic under the lock, so it is safe
// for concurrent-dispatch tests.
type MemoryMessageRepository struct {
	mu       sync.Mutex
	nextID   int64
	messages map[int64]*message.OutboundMessage
	attempts []*message.Attempt
}

func NewMemoryMessageRepository() *MemoryMessageRepository {
	return &MemoryMessageRepository{
		nextID:   1,
		messages: make(map[int64]*message.OutboundMessage),
	}
}

func (r *MemoryMessageRepository) Create(_ context.Context, m *message.OutboundMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.messages {
		if existing.TenantID == m.TenantID && existing.Channel == m.Channel && existing.IdempotencyKey == m.IdempotencyKey {
			return message.ErrDuplicateKey
		}
	}
	if m.ID == 0 {
		m.ID = r.nextID
		r.nextID++
	}
	r.messages[m.ID] = copyMessage(m)
	return nil
}

func (r *MemoryMessageRepository) FindByID(_ context.Context, tenantID string, id int64) (*message.OutboundMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.messages[id]
	if !ok || m.TenantID != tenantID {
		return nil, message.ErrNotFound
	}
	return copyMessage(m), nil
}

func (r *MemoryMessageRepository) FindByIdempotencyKey(_ context.Context, tenantID string, channel message.Channel, key string) (*message.OutboundMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, m := range r.messages {
		if m.TenantID == tenantID && m.Channel == channel && m.IdempotencyKey == key {
			return copyMessage(m), nil
		}
	}
	return nil, nil
}

func (r *MemoryMessageRepository) ClaimDue(_ context.Context, now time.Time, limit int) ([]*message.OutboundMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var due []*message.OutboundMessage
	for _, m := range r.messages {
		if m.Status == message.StatusQueued && !m.DueAt.After(now) {
			due = append(due, m)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].DueAt.Before(due[j].DueAt) })
	if len(due) > limit {
		due = due[:limit]
	}

	claimed := make([]*message.OutboundMessage, 0, len(due))
	for _, m := range due {
		m.Status = message.StatusSending
		m.UpdatedAt = now
		claimed = append(claimed, copyMessage(m))
	}
	return claimed, nil
}

func (r *MemoryMessageRepository) Release(_ context.Context, id int64, dueAt time.Time) error {
	return r.transition(id, message.StatusSending, func(m *message.OutboundMessage) {
		m.Status = message.StatusQueued
		m.DueAt = dueAt
	})
}

func (r *MemoryMessageRepository) MarkSent(_ context.Context, id int64, attemptCount int, providerMessageID string, at time.Time) error {
	return r.transition(id, message.StatusSending, func(m *message.OutboundMessage) {
		m.Status = message.StatusSent
		m.AttemptCount = attemptCount
		m.ProviderMessageID = providerMessageID
		m.LastErrorCode = ""
		m.LastErrorMessage = ""
		sentAt := at
		m.SentAt = &sentAt
	})
}

func (r *MemoryMessageRepository) ScheduleRetry(_ context.Context, id int64, attemptCount int, dueAt time.Time, errCode, errMsg string) error {
	return r.transition(id, message.StatusSending, func(m *message.OutboundMessage) {
		m.Status = message.StatusQueued
		m.AttemptCount = attemptCount
		m.DueAt = dueAt
		m.LastErrorCode = errCode
		m.LastErrorMessage = errMsg
	})
}

func (r *MemoryMessageRepository) MarkFailed(_ context.Context, id int64, attemptCount int, errCode, errMsg string) error {
	return r.transition(id, message.StatusSending, func(m *message.OutboundMessage) {
		m.Status = message.StatusFailed
		m.AttemptCount = attemptCount
		m.LastErrorCode = errCode
		m.LastErrorMessage = errMsg
	})
}

func (r *MemoryMessageRepository) transition(id int64, from message.Status, apply func(*message.OutboundMessage)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.messages[id]
	if !ok {
		return message.ErrNotFound
	}
	if m.Status != from {
		return fmt.Errorf("%w: message %d is not %s", message.ErrInvalidTransition, id, from)
	}
	apply(m)
	m.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *MemoryMessageRepository) MarkDelivered(_ context.Context, providerMessageID string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, m := range r.messages {
		if m.ProviderMessageID != providerMessageID {
			continue
		}
		switch m.Status {
		case message.StatusSent:
			m.Status = message.StatusDelivered
			deliveredAt := at
			m.DeliveredAt = &deliveredAt
			m.UpdatedAt = at
			return true, nil
		case message.StatusDelivered, message.StatusFailed:
			return false, nil
		default:
			return false, fmt.Errorf("%w: receipt for message in status %s", message.ErrInvalidTransition, m.Status)
		}
	}
	return false, message.ErrNotFound
}

func (r *MemoryMessageRepository) RecoverStale(_ context.Context, olderThan time.Time, limit int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var recovered int64
	for _, m := range r.messages {
		if recovered >= int64(limit) {
			break
		}
		if m.Status == message.StatusSending && m.UpdatedAt.Before(olderThan) {
			m.Status = message.StatusQueued
			m.UpdatedAt = time.Now().UTC()
			recovered++
		}
	}
	return recovered, nil
}

func (r *MemoryMessageRepository) AppendAttempt(_ context.Context, a *message.Attempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *a
	if stored.ID == 0 {
		stored.ID = r.nextID
		r.nextID++
	}
	r.attempts = append(r.attempts, &stored)
	return nil
}

func (r *MemoryMessageRepository) ListAttempts(_ context.Context, tenantID string, messageID int64) ([]*message.Attempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*message.Attempt
	for _, a := range r.attempts {
		if a.TenantID == tenantID && a.MessageID == messageID {
			copied := *a
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AttemptNo < out[j].AttemptNo })
	return out, nil
}

func (r *MemoryMessageRepository) AggregateCounts(_ context.Context, stuckAfter time.Time) (*message.Counts, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	counts := &message.Counts{
		ByStatus:        make(map[message.Status]int64),
		QueuedByChannel: make(map[message.Channel]int64),
		RetryByChannel:  make(map[message.Channel]int64),
	}
	for _, m := range r.messages {
		counts.ByStatus[m.Status]++
		if m.Status == message.StatusQueued {
			counts.QueuedByChannel[m.Channel]++
		}
		if m.AttemptCount > 0 {
			counts.RetryByChannel[m.Channel]++
		}
		if m.Status == message.StatusSending && m.UpdatedAt.Before(stuckAfter) {
			counts.StuckSending++
		}
	}
	return counts, nil
}

// Get returns the stored message regardless of tenant, for assertions.
func (r *MemoryMessageRepository) Get(id int64) *message.OutboundMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.messages[id]
	if !ok {
		return nil
	}
	return copyMessage(m)
}

func copyMessage(m *message.OutboundMessage) *message.OutboundMessage {
	copied := *m
	return &copied
}

// MemorySessionRepository is an in-memory session.Repository.
type MemorySessionRepository struct {
	mu      sync.Mutex
	nextID  int64
	windows map[string]*session.Window
}

func NewMemorySessionRepository() *MemorySessionRepository {
	return &MemorySessionRepository{
		nextID:  1,
		windows: make(map[string]*session.Window),
	}
}

func sessionKey(tenantID string, channel message.Channel, contact string) string {
	return tenantID + "|" + string(channel) + "|" + contact
}

func (r *MemorySessionRepository) Find(_ context.Context, tenantID string, channel message.Channel, contact string) (*session.Window, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.windows[sessionKey(tenantID, channel, contact)]
	if !ok {
		return nil, nil
	}
	copied := *w
	return &copied, nil
}

func (r *MemorySessionRepository) Save(_ context.Context, w *session.Window) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if w.ID == 0 {
		w.ID = r.nextID
		r.nextID++
	}
	copied := *w
	r.windows[sessionKey(w.TenantID, w.Channel, w.Contact)] = &copied
	return nil
}
