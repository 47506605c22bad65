package webhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dossierlabs/dossier-messaging/internal/domain/message"
	"github.com/dossierlabs/dossier-messaging/internal/domain/session"
)

// Service ingests asynchronous provider callbacks: delivery receipts for
// messages we sent, and inbound customer messages that open or refresh
// session windows.
type Service struct {
	repo    message.Repository
	tracker *session.Tracker
	logger  *zap.Logger
	now     func() time.Time
}

func NewService(repo message.Repository, tracker *session.Tracker, logger *zap.Logger) *Service {
	return &Service{
		repo:    repo,
		tracker: tracker,
		logger:  logger.Named("webhook"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// RecordReceipt confirms delivery of a previously sent message,
// identified by the provider's reference. Receipts are replay-safe:
// a duplicate or late receipt for an already-final message is accepted
// and dropped.
func (s *Service) RecordReceipt(ctx context.Context, providerMessageID string, at time.Time) error {
	if providerMessageID == "" {
		return errors.New("provider message id is required")
	}
	if at.IsZero() {
		at = s.now()
	}

	applied, err := s.repo.MarkDelivered(ctx, providerMessageID, at)
	if err != nil {
		if errors.Is(err, message.ErrNotFound) {
			s.logger.Warn("receipt_unmatched", zap.String("provider_message_id", providerMessageID))
		}
		return err
	}
	if !applied {
		s.logger.Debug("receipt_replayed", zap.String("provider_message_id", providerMessageID))
		return nil
	}
	s.logger.Info("message_delivered", zap.String("provider_message_id", providerMessageID))
	return nil
}

// RecordInbound registers a customer-initiated message, opening a fresh
// session window or extending a live one for the contact.
func (s *Service) RecordInbound(ctx context.Context, tenantID string, channel message.Channel, contact string, at time.Time) error {
	if tenantID == "" || contact == "" {
		return errors.New("tenant_id and contact are required")
	}
	if !channel.Valid() {
		return fmt.Errorf("unknown channel %q", channel)
	}
	if at.IsZero() {
		at = s.now()
	}
	return s.tracker.RecordInbound(ctx, tenantID, channel, contact, at)
}
