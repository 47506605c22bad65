package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dossierlabs/dossier-messaging/internal/domain/message"
)

func TestNewWindow(t *testing.T) {
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	w := NewWindow("tenant-1", message.ChannelWhatsApp, "+15550001", at)

	assert.Equal(t, at, w.WindowOpensAt)
	assert.Equal(t, at.Add(24*time.Hour), w.WindowExpires)
	assert.Equal(t, at, w.LastInboundAt)
	assert.Nil(t, w.LastOutboundAt)
}

func TestWindowOpen(t *testing.T) {
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	w := NewWindow("t", message.ChannelWhatsApp, "+15550001", at)

	assert.True(t, w.Open(at))
	assert.True(t, w.Open(at.Add(23*time.Hour+59*time.Minute)))
	assert.True(t, w.Open(at.Add(24*time.Hour)))
	assert.False(t, w.Open(at.Add(24*time.Hour+time.Second)))
	assert.False(t, w.Open(at.Add(-time.Second)))
}

func TestWindowRefresh_LiveWindowExtends(t *testing.T) {
	opened := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	w := NewWindow("t", message.ChannelWhatsApp, "+15550001", opened)

	refresh := opened.Add(6 * time.Hour)
	w.Refresh(refresh)

	// The opening instant survives; only the expiry moves.
	assert.Equal(t, opened, w.WindowOpensAt)
	assert.Equal(t, refresh.Add(24*time.Hour), w.WindowExpires)
	assert.Equal(t, refresh, w.LastInboundAt)
}

func TestWindowRefresh_ExpiredWindowReopens(t *testing.T) {
	opened := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	w := NewWindow("t", message.ChannelWhatsApp, "+15550001", opened)

	refresh := opened.Add(48 * time.Hour)
	w.Refresh(refresh)

	assert.Equal(t, refresh, w.WindowOpensAt)
	assert.Equal(t, refresh.Add(24*time.Hour), w.WindowExpires)
}
