package postgres

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dossierlabs/dossier-messaging/internal/domain/message"
	"github.com/dossierlabs/dossier-messaging/internal/domain/session"
)

// jsonMap stores a provider-agnostic content map as jsonb.
type jsonMap map[string]any

func (m jsonMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func (m *jsonMap) Scan(value any) error {
	if value == nil {
		*m = nil
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported jsonb source type %T", value)
	}
	return json.Unmarshal(raw, m)
}

// outboundMessageModel is the database DTO with Gorm tags.
type outboundMessageModel struct {
	ID             int64   `gorm:"primaryKey"`
	TenantID       string  `gorm:"type:varchar(255);not null;uniqueIndex:uk_outbound_idempotency,priority:1"`
	Channel        string  `gorm:"type:varchar(50);not null;uniqueIndex:uk_outbound_idempotency,priority:2"`
	IdempotencyKey string  `gorm:"type:varchar(255);not null;uniqueIndex:uk_outbound_idempotency,priority:3"`
	Tier           string  `gorm:"type:varchar(50)"`
	Recipient      string  `gorm:"type:varchar(255);not null"`
	TemplateCode   string  `gorm:"type:varchar(255)"`
	Subject        string  `gorm:"type:varchar(500)"`
	Content        jsonMap `gorm:"type:jsonb"`

	Status            string    `gorm:"type:varchar(50);not null;index:idx_outbound_due,priority:1"`
	AttemptCount      int       `gorm:"not null;default:0"`
	MaxAttempts       int       `gorm:"not null;default:5"`
	DueAt             time.Time `gorm:"index:idx_outbound_due,priority:2"`
	ProviderMessageID string    `gorm:"type:varchar(255);index"`
	LastErrorCode     string    `gorm:"type:varchar(100)"`
	LastErrorMessage  string    `gorm:"type:text"`

	SentAt      *time.Time
	DeliveredAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (outboundMessageModel) TableName() string {
	return "outbound_messages"
}

// outboundAttemptModel rows are insert-only.
type outboundAttemptModel struct {
	ID           int64  `gorm:"primaryKey"`
	MessageID    int64  `gorm:"not null;index"`
	TenantID     string `gorm:"type:varchar(255);not null"`
	AttemptNo    int    `gorm:"not null"`
	Status       string `gorm:"type:varchar(50);not null"`
	ErrorCode    string `gorm:"type:varchar(100)"`
	ErrorMessage string `gorm:"type:text"`
	NextRetryAt  *time.Time
	CreatedAt    time.Time
}

func (outboundAttemptModel) TableName() string {
	return "outbound_attempts"
}

type sessionWindowModel struct {
	ID             int64  `gorm:"primaryKey"`
	TenantID       string `gorm:"type:varchar(255);not null;uniqueIndex:uk_session_contact,priority:1"`
	Channel        string `gorm:"type:varchar(50);not null;uniqueIndex:uk_session_contact,priority:2"`
	Contact        string `gorm:"type:varchar(255);not null;uniqueIndex:uk_session_contact,priority:3"`
	WindowOpensAt  time.Time
	WindowExpires  time.Time
	LastInboundAt  time.Time
	LastOutboundAt *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (sessionWindowModel) TableName() string {
	return "session_windows"
}

// Mappers

func toDomainMessage(m outboundMessageModel) *message.OutboundMessage {
	return &message.OutboundMessage{
		ID:                m.ID,
		TenantID:          m.TenantID,
		Channel:           message.Channel(m.Channel),
		Tier:              message.Tier(m.Tier),
		Recipient:         m.Recipient,
		TemplateCode:      m.TemplateCode,
		Subject:           m.Subject,
		Content:           m.Content,
		IdempotencyKey:    m.IdempotencyKey,
		Status:            message.Status(m.Status),
		AttemptCount:      m.AttemptCount,
		MaxAttempts:       m.MaxAttempts,
		DueAt:             m.DueAt,
		ProviderMessageID: m.ProviderMessageID,
		LastErrorCode:     m.LastErrorCode,
		LastErrorMessage:  m.LastErrorMessage,
		SentAt:            m.SentAt,
		DeliveredAt:       m.DeliveredAt,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}

func toModelMessage(d *message.OutboundMessage) outboundMessageModel {
	return outboundMessageModel{
		ID:                d.ID,
		TenantID:          d.TenantID,
		Channel:           string(d.Channel),
		Tier:              string(d.Tier),
		Recipient:         d.Recipient,
		TemplateCode:      d.TemplateCode,
		Subject:           d.Subject,
		Content:           jsonMap(d.Content),
		IdempotencyKey:    d.IdempotencyKey,
		Status:            string(d.Status),
		AttemptCount:      d.AttemptCount,
		MaxAttempts:       d.MaxAttempts,
		DueAt:             d.DueAt,
		ProviderMessageID: d.ProviderMessageID,
		LastErrorCode:     d.LastErrorCode,
		LastErrorMessage:  d.LastErrorMessage,
		SentAt:            d.SentAt,
		DeliveredAt:       d.DeliveredAt,
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
	}
}

func toDomainAttempt(m outboundAttemptModel) *message.Attempt {
	return &message.Attempt{
		ID:           m.ID,
		MessageID:    m.MessageID,
		TenantID:     m.TenantID,
		AttemptNo:    m.AttemptNo,
		Status:       message.AttemptStatus(m.Status),
		ErrorCode:    m.ErrorCode,
		ErrorMessage: m.ErrorMessage,
		NextRetryAt:  m.NextRetryAt,
		CreatedAt:    m.CreatedAt,
	}
}

func toDomainWindow(m sessionWindowModel) *session.Window {
	return &session.Window{
		ID:             m.ID,
		TenantID:       m.TenantID,
		Channel:        message.Channel(m.Channel),
		Contact:        m.Contact,
		WindowOpensAt:  m.WindowOpensAt,
		WindowExpires:  m.WindowExpires,
		LastInboundAt:  m.LastInboundAt,
		LastOutboundAt: m.LastOutboundAt,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}
