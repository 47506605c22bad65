package message

import (
	"errors"
	"time"
)

// Channel identifies the delivery channel a message goes out on.
type Channel string

const (
	ChannelEmail    Channel = "EMAIL"
	ChannelSMS      Channel = "SMS"
	ChannelWhatsApp Channel = "WHATSAPP"
	ChannelChat     Channel = "CHAT"
	ChannelInApp    Channel = "IN_APP"
)

// AllChannels returns every supported delivery channel.
func AllChannels() []Channel {
	return []Channel{ChannelEmail, ChannelSMS, ChannelWhatsApp, ChannelChat, ChannelInApp}
}

// WindowScoped reports whether freeform sends on this channel require an
// active customer-care session window.
func (c Channel) WindowScoped() bool {
	return c == ChannelWhatsApp
}

func (c Channel) Valid() bool {
	switch c {
	case ChannelEmail, ChannelSMS, ChannelWhatsApp, ChannelChat, ChannelInApp:
		return true
	}
	return false
}

// Tier is the caller tier used for rate-limit admission on externally
// exposed sends.
type Tier string

const (
	TierStandard Tier = "TIER1"
	TierGrowth   Tier = "TIER2"
	TierScale    Tier = "TIER3"
)

// Status represents the lifecycle state of an outbound message.
type Status string

const (
	StatusQueued    Status = "QUEUED"
	StatusSending   Status = "SENDING"
	StatusSent      Status = "SENT"
	StatusDelivered Status = "DELIVERED"
	StatusFailed    Status = "FAILED"
)

// AllStatuses returns every lifecycle state.
func AllStatuses() []Status {
	return []Status{StatusQueued, StatusSending, StatusSent, StatusDelivered, StatusFailed}
}

// Terminal reports whether no further transition is legal from s.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusFailed
}

// legalTransitions is the full transition table of the state machine.
// QUEUED -> SENDING is the claim; SENT -> DELIVERED comes from the
// delivery-receipt webhook. Everything else is rejected.
var legalTransitions = map[Status][]Status{
	StatusQueued:  {StatusSending},
	StatusSending: {StatusSent, StatusQueued, StatusFailed},
	StatusSent:    {StatusDelivered},
}

// CanTransition reports whether from -> to is a legal state change.
func CanTransition(from, to Status) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

var (
	ErrNotFound          = errors.New("outbound message not found")
	ErrDuplicateKey      = errors.New("idempotency key already used")
	ErrInvalidTransition = errors.New("invalid message state transition")
)

const DefaultMaxAttempts = 5

// OutboundMessage is the system of record for one logical send request.
// It contains no database tags or infrastructure details.
type OutboundMessage struct {
	ID             int64          `json:"id,string"`
	TenantID       string         `json:"tenant_id"`
	Channel        Channel        `json:"channel"`
	Tier           Tier           `json:"tier"`
	Recipient      string         `json:"recipient"`
	TemplateCode   string         `json:"template_code,omitempty"`
	Subject        string         `json:"subject,omitempty"`
	Content        map[string]any `json:"content,omitempty"`
	IdempotencyKey string         `json:"idempotency_key"`

	Status            Status    `json:"status"`
	AttemptCount      int       `json:"attempt_count"`
	MaxAttempts       int       `json:"max_attempts"`
	DueAt             time.Time `json:"due_at"`
	ProviderMessageID string    `json:"provider_message_id,omitempty"`
	LastErrorCode     string    `json:"last_error_code,omitempty"`
	LastErrorMessage  string    `json:"last_error_message,omitempty"`

	SentAt      *time.Time `json:"sent_at,omitempty"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// NewOutboundMessage creates a message in QUEUED state, due immediately.
func NewOutboundMessage(tenantID string, channel Channel, recipient, idempotencyKey string) *OutboundMessage {
	now := time.Now().UTC()
	return &OutboundMessage{
		TenantID:       tenantID,
		Channel:        channel,
		Tier:           TierStandard,
		Recipient:      recipient,
		IdempotencyKey: idempotencyKey,
		Status:         StatusQueued,
		MaxAttempts:    DefaultMaxAttempts,
		DueAt:          now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Freeform reports whether the message carries freeform content rather
// than a pre-approved template. Only freeform sends are window-gated.
func (m *OutboundMessage) Freeform() bool {
	return m.TemplateCode == ""
}

// AttemptsExhausted reports whether the retry budget is spent.
func (m *OutboundMessage) AttemptsExhausted() bool {
	return m.AttemptCount >= m.MaxAttempts
}
