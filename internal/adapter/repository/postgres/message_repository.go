package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/dossierlabs/dossier-messaging/internal/domain/message"
	"github.com/dossierlabs/dossier-messaging/pkg/snowflake"
)

// MessageRepository is the gorm-backed system of record for outbound
// messages. Claims use row-level locks with skip-on-contention so
// concurrent dispatcher processes never double-claim.
type MessageRepository struct {
	db   *gorm.DB
	node *snowflake.Node
}

func NewMessageRepository(db *gorm.DB, node *snowflake.Node) *MessageRepository {
	return &MessageRepository{db: db, node: node}
}

func (r *MessageRepository) Create(ctx context.Context, m *message.OutboundMessage) error {
	if m.ID == 0 {
		m.ID = r.node.GenerateID()
	}
	model := toModelMessage(m)
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) || isUniqueViolation(err) {
			return message.ErrDuplicateKey
		}
		return err
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "uk_outbound_idempotency")
}

func (r *MessageRepository) FindByID(ctx context.Context, tenantID string, id int64) (*message.OutboundMessage, error) {
	var model outboundMessageModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, message.ErrNotFound
		}
		return nil, err
	}
	return toDomainMessage(model), nil
}

func (r *MessageRepository) FindByIdempotencyKey(ctx context.Context, tenantID string, channel message.Channel, key string) (*message.OutboundMessage, error) {
	var model outboundMessageModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND channel = ? AND idempotency_key = ?", tenantID, string(channel), key).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return toDomainMessage(model), nil
}

// ClaimDue fetches due QUEUED rows under FOR UPDATE SKIP LOCKED and
// flips them to SENDING inside the same transaction. Rows another worker
// holds are skipped, so exactly one claimer wins each message.
func (r *MessageRepository) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*message.OutboundMessage, error) {
	var models []outboundMessageModel

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Raw(
			`SELECT * FROM outbound_messages
			 WHERE status = ?
			   AND due_at <= ?
			 ORDER BY due_at ASC
			 LIMIT ?
			 FOR UPDATE SKIP LOCKED`,
			string(message.StatusQueued),
			now,
			limit,
		).Scan(&models).Error; err != nil {
			return err
		}

		if len(models) == 0 {
			return nil
		}

		ids := make([]int64, 0, len(models))
		for i := range models {
			ids = append(ids, models[i].ID)
			models[i].Status = string(message.StatusSending)
			models[i].UpdatedAt = now
		}

		return tx.Model(&outboundMessageModel{}).
			Where("id IN ? AND status = ?", ids, string(message.StatusQueued)).
			Updates(map[string]any{
				"status":     string(message.StatusSending),
				"updated_at": now,
			}).Error
	})
	if err != nil {
		return nil, err
	}

	claimed := make([]*message.OutboundMessage, 0, len(models))
	for _, model := range models {
		claimed = append(claimed, toDomainMessage(model))
	}
	return claimed, nil
}

func (r *MessageRepository) Release(ctx context.Context, id int64, dueAt time.Time) error {
	return r.transition(ctx, id, message.StatusSending, message.StatusQueued, map[string]any{
		"due_at": dueAt,
	})
}

func (r *MessageRepository) MarkSent(ctx context.Context, id int64, attemptCount int, providerMessageID string, at time.Time) error {
	return r.transition(ctx, id, message.StatusSending, message.StatusSent, map[string]any{
		"attempt_count":       attemptCount,
		"provider_message_id": providerMessageID,
		"last_error_code":     "",
		"last_error_message":  "",
		"sent_at":             at,
	})
}

func (r *MessageRepository) ScheduleRetry(ctx context.Context, id int64, attemptCount int, dueAt time.Time, errCode, errMsg string) error {
	return r.transition(ctx, id, message.StatusSending, message.StatusQueued, map[string]any{
		"attempt_count":      attemptCount,
		"due_at":             dueAt,
		"last_error_code":    errCode,
		"last_error_message": errMsg,
	})
}

func (r *MessageRepository) MarkFailed(ctx context.Context, id int64, attemptCount int, errCode, errMsg string) error {
	return r.transition(ctx, id, message.StatusSending, message.StatusFailed, map[string]any{
		"attempt_count":      attemptCount,
		"last_error_code":    errCode,
		"last_error_message": errMsg,
	})
}

// transition performs a conditional status update so an illegal or stale
// transition never reaches the table.
func (r *MessageRepository) transition(ctx context.Context, id int64, from, to message.Status, updates map[string]any) error {
	updates["status"] = string(to)
	updates["updated_at"] = time.Now().UTC()

	result := r.db.WithContext(ctx).Model(&outboundMessageModel{}).
		Where("id = ? AND status = ?", id, string(from)).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: message %d is not %s", message.ErrInvalidTransition, id, from)
	}
	return nil
}

func (r *MessageRepository) MarkDelivered(ctx context.Context, providerMessageID string, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&outboundMessageModel{}).
		Where("provider_message_id = ? AND status = ?", providerMessageID, string(message.StatusSent)).
		Updates(map[string]any{
			"status":       string(message.StatusDelivered),
			"delivered_at": at,
			"updated_at":   at,
		})
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected > 0 {
		return true, nil
	}

	var status string
	err := r.db.WithContext(ctx).Model(&outboundMessageModel{}).
		Select("status").
		Where("provider_message_id = ?", providerMessageID).
		Scan(&status).Error
	if err != nil {
		return false, err
	}
	switch message.Status(status) {
	case message.StatusDelivered, message.StatusFailed:
		// Duplicate or out-of-order receipt; ignore.
		return false, nil
	case "":
		return false, message.ErrNotFound
	default:
		return false, fmt.Errorf("%w: receipt for message in status %s", message.ErrInvalidTransition, status)
	}
}

func (r *MessageRepository) RecoverStale(ctx context.Context, olderThan time.Time, limit int) (int64, error) {
	result := r.db.WithContext(ctx).Exec(
		`UPDATE outbound_messages
		 SET status = ?, updated_at = NOW()
		 WHERE id IN (
		   SELECT id FROM outbound_messages
		   WHERE status = ? AND updated_at < ?
		   LIMIT ?
		   FOR UPDATE SKIP LOCKED
		 )`,
		string(message.StatusQueued),
		string(message.StatusSending),
		olderThan,
		limit,
	)
	return result.RowsAffected, result.Error
}

func (r *MessageRepository) AppendAttempt(ctx context.Context, a *message.Attempt) error {
	if a.ID == 0 {
		a.ID = r.node.GenerateID()
	}
	model := outboundAttemptModel{
		ID:           a.ID,
		MessageID:    a.MessageID,
		TenantID:     a.TenantID,
		AttemptNo:    a.AttemptNo,
		Status:       string(a.Status),
		ErrorCode:    a.ErrorCode,
		ErrorMessage: a.ErrorMessage,
		NextRetryAt:  a.NextRetryAt,
		CreatedAt:    a.CreatedAt,
	}
	return r.db.WithContext(ctx).Create(&model).Error
}

func (r *MessageRepository) ListAttempts(ctx context.Context, tenantID string, messageID int64) ([]*message.Attempt, error) {
	var models []outboundAttemptModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND message_id = ?", tenantID, messageID).
		Order("attempt_no ASC, created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	attempts := make([]*message.Attempt, 0, len(models))
	for _, model := range models {
		attempts = append(attempts, toDomainAttempt(model))
	}
	return attempts, nil
}

func (r *MessageRepository) AggregateCounts(ctx context.Context, stuckAfter time.Time) (*message.Counts, error) {
	counts := &message.Counts{
		ByStatus:        make(map[message.Status]int64),
		QueuedByChannel: make(map[message.Channel]int64),
		RetryByChannel:  make(map[message.Channel]int64),
	}

	type statusRow struct {
		Status string
		N      int64
	}
	var byStatus []statusRow
	if err := r.db.WithContext(ctx).Model(&outboundMessageModel{}).
		Select("status, COUNT(*) AS n").
		Group("status").
		Scan(&byStatus).Error; err != nil {
		return nil, err
	}
	for _, row := range byStatus {
		counts.ByStatus[message.Status(row.Status)] = row.N
	}

	type channelRow struct {
		Channel string
		N       int64
	}
	var queuedByChannel []channelRow
	if err := r.db.WithContext(ctx).Model(&outboundMessageModel{}).
		Select("channel, COUNT(*) AS n").
		Where("status = ?", string(message.StatusQueued)).
		Group("channel").
		Scan(&queuedByChannel).Error; err != nil {
		return nil, err
	}
	for _, row := range queuedByChannel {
		counts.QueuedByChannel[message.Channel(row.Channel)] = row.N
	}

	var retryByChannel []channelRow
	if err := r.db.WithContext(ctx).Model(&outboundMessageModel{}).
		Select("channel, COUNT(*) AS n").
		Where("attempt_count > 0").
		Group("channel").
		Scan(&retryByChannel).Error; err != nil {
		return nil, err
	}
	for _, row := range retryByChannel {
		counts.RetryByChannel[message.Channel(row.Channel)] = row.N
	}

	if err := r.db.WithContext(ctx).Model(&outboundMessageModel{}).
		Where("status = ? AND updated_at < ?", string(message.StatusSending), stuckAfter).
		Count(&counts.StuckSending).Error; err != nil {
		return nil, err
	}

	return counts, nil
}
