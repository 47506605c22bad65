package messaging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dossierlabs/dossier-messaging/internal/domain/message"
)

// EnqueueRequest is the caller-facing shape of one send request.
type EnqueueRequest struct {
	TenantID       string
	Channel        message.Channel
	Tier           message.Tier
	Recipient      string
	TemplateCode   string
	Subject        string
	Content        map[string]any
	IdempotencyKey string
	MaxAttempts    int
}

// Service accepts send requests into the queue and exposes read access
// to messages and their attempt history.
type Service struct {
	repo   message.Repository
	logger *zap.Logger
	now    func() time.Time
}

func NewService(repo message.Repository, logger *zap.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger.Named("messaging"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Enqueue accepts a message in QUEUED state, due immediately. Replaying
// the same (tenant, channel, idempotency key) returns the existing
// message with created=false, no new row and no state change, whatever
// state the original has reached.
func (s *Service) Enqueue(ctx context.Context, req EnqueueRequest) (*message.OutboundMessage, bool, error) {
	if err := req.validate(); err != nil {
		return nil, false, err
	}

	now := s.now()
	m := &message.OutboundMessage{
		TenantID:       req.TenantID,
		Channel:        req.Channel,
		Tier:           req.Tier,
		Recipient:      req.Recipient,
		TemplateCode:   req.TemplateCode,
		Subject:        req.Subject,
		Content:        req.Content,
		IdempotencyKey: req.IdempotencyKey,
		Status:         message.StatusQueued,
		MaxAttempts:    req.MaxAttempts,
		DueAt:          now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if m.Tier == "" {
		m.Tier = message.TierStandard
	}
	if m.MaxAttempts <= 0 {
		m.MaxAttempts = message.DefaultMaxAttempts
	}

	err := s.repo.Create(ctx, m)
	if err == nil {
		s.logger.Info("message_enqueued",
			zap.Int64("message_id", m.ID),
			zap.String("tenant_id", m.TenantID),
			zap.String("channel", string(m.Channel)),
		)
		return m, true, nil
	}
	if !errors.Is(err, message.ErrDuplicateKey) {
		return nil, false, fmt.Errorf("enqueue message: %w", err)
	}

	existing, ferr := s.repo.FindByIdempotencyKey(ctx, req.TenantID, req.Channel, req.IdempotencyKey)
	if ferr != nil {
		return nil, false, fmt.Errorf("resolve duplicate enqueue: %w", ferr)
	}
	if existing == nil {
		return nil, false, fmt.Errorf("resolve duplicate enqueue: %w", message.ErrNotFound)
	}
	s.logger.Debug("enqueue_deduplicated",
		zap.Int64("message_id", existing.ID),
		zap.String("idempotency_key", req.IdempotencyKey),
	)
	return existing, false, nil
}

func (s *Service) Get(ctx context.Context, tenantID string, id int64) (*message.OutboundMessage, error) {
	return s.repo.FindByID(ctx, tenantID, id)
}

// ListAttempts returns the audit trail for a message the tenant owns.
func (s *Service) ListAttempts(ctx context.Context, tenantID string, id int64) ([]*message.Attempt, error) {
	if _, err := s.repo.FindByID(ctx, tenantID, id); err != nil {
		return nil, err
	}
	return s.repo.ListAttempts(ctx, tenantID, id)
}

func (r EnqueueRequest) validate() error {
	if r.TenantID == "" {
		return errors.New("tenant_id is required")
	}
	if !r.Channel.Valid() {
		return fmt.Errorf("unknown channel %q", r.Channel)
	}
	if r.Recipient == "" {
		return errors.New("recipient is required")
	}
	if r.IdempotencyKey == "" {
		return errors.New("idempotency_key is required")
	}
	return nil
}
