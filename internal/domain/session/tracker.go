package session

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/dossierlabs/dossier-messaging/internal/domain/message"
)

// Tracker answers window-eligibility questions for the dispatcher and
// applies inbound-message refreshes. The dispatcher only reads; rows are
// written when the messaging collaborator reports inbound traffic.
type Tracker struct {
	repo   Repository
	logger *zap.Logger
}

func NewTracker(repo Repository, logger *zap.Logger) *Tracker {
	return &Tracker{
		repo:   repo,
		logger: logger.Named("session.tracker"),
	}
}

// IsOpen reports whether the contact has a live window at now. Absence of
// a row means closed.
func (t *Tracker) IsOpen(ctx context.Context, tenantID string, channel message.Channel, contact string, now time.Time) (bool, error) {
	w, err := t.repo.Find(ctx, tenantID, channel, contact)
	if err != nil {
		return false, err
	}
	if w == nil {
		return false, nil
	}
	return w.Open(now), nil
}

// RecordInbound creates or refreshes the window for an inbound message.
func (t *Tracker) RecordInbound(ctx context.Context, tenantID string, channel message.Channel, contact string, at time.Time) error {
	w, err := t.repo.Find(ctx, tenantID, channel, contact)
	if err != nil {
		return err
	}
	if w == nil {
		w = NewWindow(tenantID, channel, contact, at)
	} else {
		w.Refresh(at)
	}
	if err := t.repo.Save(ctx, w); err != nil {
		return err
	}
	t.logger.Debug("session_window_refreshed",
		zap.String("tenant_id", tenantID),
		zap.String("channel", string(channel)),
		zap.Time("expires_at", w.WindowExpires),
	)
	return nil
}

// RecordOutbound stamps the last outbound activity on an existing window.
// Missing windows are ignored; outbound traffic never opens one.
func (t *Tracker) RecordOutbound(ctx context.Context, tenantID string, channel message.Channel, contact string, at time.Time) error {
	w, err := t.repo.Find(ctx, tenantID, channel, contact)
	if err != nil || w == nil {
		return err
	}
	w.LastOutboundAt = &at
	w.UpdatedAt = at
	return t.repo.Save(ctx, w)
}
