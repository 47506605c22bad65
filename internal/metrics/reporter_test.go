package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dossierlabs/dossier-messaging/internal/domain/message"
	"github.com/dossierlabs/dossier-messaging/pkg/testhelper"
)

func gaugeValue(t *testing.T, c *Collector, name string, labels map[string]string) float64 {
	t.Helper()

	families, err := c.Registry().Gather()
	require.NoError(t, err)

	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
	metric:
		for _, m := range fam.GetMetric() {
			for _, pair := range m.GetLabel() {
				if want, ok := labels[pair.GetName()]; ok && want != pair.GetValue() {
					continue metric
				}
			}
			return m.GetGauge().GetValue()
		}
	}
	return 0
}

func TestReporterScan_PublishesQueueGauges(t *testing.T) {
	repo := testhelper.NewMemoryMessageRepository()
	collector := NewCollector()
	reporter := NewReporter(repo, collector, zap.NewNop(), time.Second, 10*time.Minute)
	ctx := context.Background()

	for i, key := range []string{"a", "b", "c"} {
		m := message.NewOutboundMessage("t", message.ChannelEmail, "user@example.com", key)
		if i == 2 {
			m.Channel = message.ChannelSMS
		}
		require.NoError(t, repo.Create(ctx, m))
	}
	now := time.Now().UTC()

	// One message claimed then dead-lettered.
	claimed, err := repo.ClaimDue(ctx, now, 1)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	require.NoError(t, repo.MarkFailed(ctx, claimed[0].ID, 1, "131031", "blocked"))

	require.NoError(t, reporter.Scan(ctx))

	assert.Equal(t, 2.0, gaugeValue(t, collector, "outbound_message_queue_depth", map[string]string{"status": "QUEUED"}))
	assert.Equal(t, 1.0, gaugeValue(t, collector, "outbound_message_queue_depth", map[string]string{"status": "FAILED"}))
	assert.Equal(t, 1.0, gaugeValue(t, collector, "outbound_message_dead_letter_size", nil))
	assert.Equal(t, 2.0, gaugeValue(t, collector, "outbound_message_queued_total", nil))
	assert.Equal(t, 1.0, gaugeValue(t, collector, "outbound_message_queue_depth_by_channel", map[string]string{"channel": "SMS"}))
}

func TestReporterScan_CountsStuckSending(t *testing.T) {
	repo := testhelper.NewMemoryMessageRepository()
	collector := NewCollector()
	// stuckAfter of zero makes every SENDING row count as stuck.
	reporter := NewReporter(repo, collector, zap.NewNop(), time.Second, 0)
	ctx := context.Background()

	m := message.NewOutboundMessage("t", message.ChannelEmail, "user@example.com", "k")
	require.NoError(t, repo.Create(ctx, m))
	claimed, err := repo.ClaimDue(ctx, time.Now().UTC(), 1)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	// Give the claim timestamp a moment to fall behind the scan cutoff.
	time.Sleep(5 * time.Millisecond)

	require.NoError(t, reporter.Scan(ctx))
	assert.Equal(t, 1.0, gaugeValue(t, collector, "outbound_message_stuck_sending", nil))
}
