package webhook

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dossierlabs/dossier-messaging/internal/domain/message"
	"github.com/dossierlabs/dossier-messaging/internal/domain/session"
	"github.com/dossierlabs/dossier-messaging/pkg/testhelper"
)

func newTestService() (*Service, *testhelper.MemoryMessageRepository, *testhelper.MemorySessionRepository) {
	repo := testhelper.NewMemoryMessageRepository()
	sessionRepo := testhelper.NewMemorySessionRepository()
	tracker := session.NewTracker(sessionRepo, zap.NewNop())
	return NewService(repo, tracker, zap.NewNop()), repo, sessionRepo
}

// sentMessage walks a message to SENT so a receipt can land on it.
func sentMessage(t *testing.T, repo *testhelper.MemoryMessageRepository, providerRef string) *message.OutboundMessage {
	t.Helper()
	ctx := context.Background()

	m := message.NewOutboundMessage("tenant-1", message.ChannelEmail, "user@example.com", "k-"+providerRef)
	require.NoError(t, repo.Create(ctx, m))
	now := time.Now().UTC()

	claimed, err := repo.ClaimDue(ctx, now, 1)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	require.NoError(t, repo.MarkSent(ctx, m.ID, 1, providerRef, now))
	return m
}

func TestRecordReceipt_MarksDelivered(t *testing.T) {
	svc, repo, _ := newTestService()
	m := sentMessage(t, repo, "ref-1")
	at := time.Now().UTC()

	require.NoError(t, svc.RecordReceipt(context.Background(), "ref-1", at))

	got := repo.Get(m.ID)
	assert.Equal(t, message.StatusDelivered, got.Status)
	require.NotNil(t, got.DeliveredAt)
	assert.Equal(t, at, *got.DeliveredAt)
}

func TestRecordReceipt_ReplayIsNoop(t *testing.T) {
	svc, repo, _ := newTestService()
	m := sentMessage(t, repo, "ref-1")
	at := time.Now().UTC()

	require.NoError(t, svc.RecordReceipt(context.Background(), "ref-1", at))
	firstDelivery := repo.Get(m.ID).DeliveredAt

	// The duplicate receipt is accepted and changes nothing.
	require.NoError(t, svc.RecordReceipt(context.Background(), "ref-1", at.Add(time.Hour)))

	got := repo.Get(m.ID)
	assert.Equal(t, message.StatusDelivered, got.Status)
	assert.Equal(t, firstDelivery, got.DeliveredAt)
}

func TestRecordReceipt_UnknownReference(t *testing.T) {
	svc, _, _ := newTestService()

	err := svc.RecordReceipt(context.Background(), "no-such-ref", time.Now())
	assert.ErrorIs(t, err, message.ErrNotFound)
}

func TestRecordReceipt_RequiresReference(t *testing.T) {
	svc, _, _ := newTestService()
	assert.Error(t, svc.RecordReceipt(context.Background(), "", time.Now()))
}

func TestRecordInbound_OpensWindow(t *testing.T) {
	svc, _, sessionRepo := newTestService()
	ctx := context.Background()
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, svc.RecordInbound(ctx, "tenant-1", message.ChannelWhatsApp, "+15550001", at))

	w, err := sessionRepo.Find(ctx, "tenant-1", message.ChannelWhatsApp, "+15550001")
	require.NoError(t, err)
	require.NotNil(t, w)
	assert.Equal(t, at.Add(24*time.Hour), w.WindowExpires)
}

func TestRecordInbound_Validation(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	assert.Error(t, svc.RecordInbound(ctx, "", message.ChannelWhatsApp, "+15550001", time.Now()))
	assert.Error(t, svc.RecordInbound(ctx, "t", "PIGEON", "+15550001", time.Now()))
	assert.Error(t, svc.RecordInbound(ctx, "t", message.ChannelWhatsApp, "", time.Now()))
}
