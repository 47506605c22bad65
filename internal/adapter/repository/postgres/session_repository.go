package postgres

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dossierlabs/dossier-messaging/internal/domain/message"
	"github.com/dossierlabs/dossier-messaging/internal/domain/session"
	"github.com/dossierlabs/dossier-messaging/pkg/snowflake"
)

// SessionRepository persists conversational windows.
type SessionRepository struct {
	db   *gorm.DB
	node *snowflake.Node
}

func NewSessionRepository(db *gorm.DB, node *snowflake.Node) *SessionRepository {
	return &SessionRepository{db: db, node: node}
}

func (r *SessionRepository) Find(ctx context.Context, tenantID string, channel message.Channel, contact string) (*session.Window, error) {
	var model sessionWindowModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND channel = ? AND contact = ?", tenantID, string(channel), contact).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return toDomainWindow(model), nil
}

func (r *SessionRepository) Save(ctx context.Context, w *session.Window) error {
	if w.ID == 0 {
		w.ID = r.node.GenerateID()
	}
	model := sessionWindowModel{
		ID:             w.ID,
		TenantID:       w.TenantID,
		Channel:        string(w.Channel),
		Contact:        w.Contact,
		WindowOpensAt:  w.WindowOpensAt,
		WindowExpires:  w.WindowExpires,
		LastInboundAt:  w.LastInboundAt,
		LastOutboundAt: w.LastOutboundAt,
		CreatedAt:      w.CreatedAt,
		UpdatedAt:      time.Now().UTC(),
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "tenant_id"}, {Name: "channel"}, {Name: "contact"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"window_opens_at", "window_expires", "last_inbound_at", "last_outbound_at", "updated_at",
		}),
	}).Create(&model).Error
}
