package session

import (
	"context"

	"github.com/dossierlabs/dossier-messaging/internal/domain/message"
)

// Repository persists session windows keyed by (tenant, channel, contact).
type Repository interface {
	// Find returns nil when no window exists for the key.
	Find(ctx context.Context, tenantID string, channel message.Channel, contact string) (*Window, error)

	// Save creates or updates the window row.
	Save(ctx context.Context, w *Window) error
}
