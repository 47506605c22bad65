package resilience

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dossierlabs/dossier-messaging/internal/domain/message"
)

func TestLimiter_BurstEqualsPerMinuteAllowance(t *testing.T) {
	r := NewLimiterRegistry(LimiterConfig{
		ChannelRPM: map[message.Channel]int{message.ChannelSMS: 5},
	})

	// The full minute quota is available as an immediate burst, then the
	// next request is denied.
	for i := 0; i < 5; i++ {
		assert.True(t, r.Allow(message.ChannelSMS, ""), "request %d", i)
	}
	assert.False(t, r.Allow(message.ChannelSMS, ""))
}

func TestLimiter_TierBucketConsultedFirst(t *testing.T) {
	r := NewLimiterRegistry(LimiterConfig{
		ChannelRPM: map[message.Channel]int{message.ChannelEmail: 100},
		TierRPM:    map[message.Tier]int{message.TierStandard: 2},
	})

	assert.True(t, r.Allow(message.ChannelEmail, message.TierStandard))
	assert.True(t, r.Allow(message.ChannelEmail, message.TierStandard))
	// Tier quota exhausted even though the channel has headroom.
	assert.False(t, r.Allow(message.ChannelEmail, message.TierStandard))
}

func TestLimiter_TierBucketsAreChannelScoped(t *testing.T) {
	r := NewLimiterRegistry(LimiterConfig{
		ChannelRPM: map[message.Channel]int{
			message.ChannelEmail: 100,
			message.ChannelSMS:   100,
		},
		TierRPM: map[message.Tier]int{message.TierStandard: 1},
	})

	assert.True(t, r.Allow(message.ChannelEmail, message.TierStandard))
	// The same tier on another channel has its own bucket.
	assert.True(t, r.Allow(message.ChannelSMS, message.TierStandard))
	assert.False(t, r.Allow(message.ChannelEmail, message.TierStandard))
}

func TestLimiter_ChannelDenialDoesNotBurnTierQuota(t *testing.T) {
	r := NewLimiterRegistry(LimiterConfig{
		ChannelRPM: map[message.Channel]int{message.ChannelSMS: 1},
		TierRPM:    map[message.Tier]int{message.TierStandard: 3},
	})

	assert.True(t, r.Allow(message.ChannelSMS, message.TierStandard))
	// Channel bucket is empty; the denials must hand the tier token back.
	assert.False(t, r.Allow(message.ChannelSMS, message.TierStandard))
	assert.False(t, r.Allow(message.ChannelSMS, message.TierStandard))

	tier := r.bucket("tier:"+string(message.ChannelSMS)+":"+string(message.TierStandard), 3)
	assert.GreaterOrEqual(t, tier.Tokens(), 1.9)
}

func TestLimiter_UnknownTierFallsBackToChannel(t *testing.T) {
	r := NewLimiterRegistry(LimiterConfig{
		ChannelRPM: map[message.Channel]int{message.ChannelChat: 3},
	})

	for i := 0; i < 3; i++ {
		assert.True(t, r.Allow(message.ChannelChat, "TIER9"))
	}
	assert.False(t, r.Allow(message.ChannelChat, "TIER9"))
}

func TestLimiter_DefaultRPMForUnlistedChannel(t *testing.T) {
	r := NewLimiterRegistry(LimiterConfig{DefaultRPM: 2})

	assert.True(t, r.Allow(message.ChannelInApp, ""))
	assert.True(t, r.Allow(message.ChannelInApp, ""))
	assert.False(t, r.Allow(message.ChannelInApp, ""))
}
