package session

import (
	"time"

	"github.com/dossierlabs/dossier-messaging/internal/domain/message"
)

// DefaultWindow is the customer-care window length opened by an inbound
// message on window-scoped channels.
const DefaultWindow = 24 * time.Hour

// Window tracks the active conversational window for one contact on one
// channel. Absence of a row means no active window.
type Window struct {
	ID             int64           `json:"id,string"`
	TenantID       string          `json:"tenant_id"`
	Channel        message.Channel `json:"channel"`
	Contact        string          `json:"contact"`
	WindowOpensAt  time.Time       `json:"window_opens_at"`
	WindowExpires  time.Time       `json:"window_expires_at"`
	LastInboundAt  time.Time       `json:"last_inbound_at"`
	LastOutboundAt *time.Time      `json:"last_outbound_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Open reports whether the window is live at the given instant.
func (w *Window) Open(now time.Time) bool {
	return !now.Before(w.WindowOpensAt) && !now.After(w.WindowExpires)
}

// Refresh applies an inbound message at the given instant: a live window
// is extended, a dead or expired one is reopened from scratch.
func (w *Window) Refresh(at time.Time) {
	if !w.Open(at) {
		w.WindowOpensAt = at
	}
	w.WindowExpires = at.Add(DefaultWindow)
	w.LastInboundAt = at
	w.UpdatedAt = at
}

// NewWindow opens a fresh window from an inbound message.
func NewWindow(tenantID string, channel message.Channel, contact string, at time.Time) *Window {
	return &Window{
		TenantID:      tenantID,
		Channel:       channel,
		Contact:       contact,
		WindowOpensAt: at,
		WindowExpires: at.Add(DefaultWindow),
		LastInboundAt: at,
		CreatedAt:     at,
		UpdatedAt:     at,
	}
}
