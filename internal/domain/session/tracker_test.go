package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dossierlabs/dossier-messaging/internal/domain/message"
)

// memoryRepo is a minimal in-package Repository for tracker tests.
type memoryRepo struct {
	windows map[string]*Window
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{windows: make(map[string]*Window)}
}

func (r *memoryRepo) key(tenantID string, channel message.Channel, contact string) string {
	return tenantID + "|" + string(channel) + "|" + contact
}

func (r *memoryRepo) Find(_ context.Context, tenantID string, channel message.Channel, contact string) (*Window, error) {
	w, ok := r.windows[r.key(tenantID, channel, contact)]
	if !ok {
		return nil, nil
	}
	return w, nil
}

func (r *memoryRepo) Save(_ context.Context, w *Window) error {
	r.windows[r.key(w.TenantID, w.Channel, w.Contact)] = w
	return nil
}

func TestTrackerIsOpen_NoWindow(t *testing.T) {
	tracker := NewTracker(newMemoryRepo(), zap.NewNop())

	open, err := tracker.IsOpen(context.Background(), "t", message.ChannelWhatsApp, "+15550001", time.Now())
	require.NoError(t, err)
	assert.False(t, open)
}

func TestTrackerRecordInbound_OpensAndExtends(t *testing.T) {
	repo := newMemoryRepo()
	tracker := NewTracker(repo, zap.NewNop())
	ctx := context.Background()
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, tracker.RecordInbound(ctx, "t", message.ChannelWhatsApp, "+15550001", at))

	open, err := tracker.IsOpen(ctx, "t", message.ChannelWhatsApp, "+15550001", at.Add(12*time.Hour))
	require.NoError(t, err)
	assert.True(t, open)

	// A second inbound message 12h in extends the window past the
	// original 24h expiry.
	require.NoError(t, tracker.RecordInbound(ctx, "t", message.ChannelWhatsApp, "+15550001", at.Add(12*time.Hour)))

	open, err = tracker.IsOpen(ctx, "t", message.ChannelWhatsApp, "+15550001", at.Add(30*time.Hour))
	require.NoError(t, err)
	assert.True(t, open)

	open, err = tracker.IsOpen(ctx, "t", message.ChannelWhatsApp, "+15550001", at.Add(37*time.Hour))
	require.NoError(t, err)
	assert.False(t, open)
}

func TestTrackerRecordOutbound_DoesNotOpenWindow(t *testing.T) {
	repo := newMemoryRepo()
	tracker := NewTracker(repo, zap.NewNop())
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, tracker.RecordOutbound(ctx, "t", message.ChannelWhatsApp, "+15550001", now))

	open, err := tracker.IsOpen(ctx, "t", message.ChannelWhatsApp, "+15550001", now)
	require.NoError(t, err)
	assert.False(t, open)
	assert.Empty(t, repo.windows)
}

func TestTrackerRecordOutbound_StampsExistingWindow(t *testing.T) {
	repo := newMemoryRepo()
	tracker := NewTracker(repo, zap.NewNop())
	ctx := context.Background()
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, tracker.RecordInbound(ctx, "t", message.ChannelWhatsApp, "+15550001", at))
	require.NoError(t, tracker.RecordOutbound(ctx, "t", message.ChannelWhatsApp, "+15550001", at.Add(time.Hour)))

	w, err := repo.Find(ctx, "t", message.ChannelWhatsApp, "+15550001")
	require.NoError(t, err)
	require.NotNil(t, w.LastOutboundAt)
	assert.Equal(t, at.Add(time.Hour), *w.LastOutboundAt)
	// Outbound traffic never moves the expiry.
	assert.Equal(t, at.Add(24*time.Hour), w.WindowExpires)
}
