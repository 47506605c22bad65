package resilience

import (
	"sync"

	"golang.org/x/time/rate"

	"github.com/dossierlabs/dossier-messaging/internal/domain/message"
)

// LimiterConfig carries the token-bucket rates. Rates are requests per
// minute; the bucket burst equals the per-minute allowance so a full
// minute's quota can be consumed up front and refills proportionally.
type LimiterConfig struct {
	ChannelRPM map[message.Channel]int
	TierRPM    map[message.Tier]int
	DefaultRPM int
}

// LimiterRegistry keeps one token bucket per channel and one per
// (channel, tier). Both buckets must admit a send for it to proceed.
type LimiterRegistry struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	cfg      LimiterConfig
}

func NewLimiterRegistry(cfg LimiterConfig) *LimiterRegistry {
	if cfg.DefaultRPM <= 0 {
		cfg.DefaultRPM = 600
	}
	return &LimiterRegistry{
		limiters: make(map[string]*rate.Limiter),
		cfg:      cfg,
	}
}

func (r *LimiterRegistry) bucket(key string, rpm int) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.limiters[key]; ok {
		return l
	}
	l := rate.NewLimiter(rate.Limit(rpm)/60, rpm)
	r.limiters[key] = l
	return l
}

func (r *LimiterRegistry) channelRPM(channel message.Channel) int {
	if rpm, ok := r.cfg.ChannelRPM[channel]; ok && rpm > 0 {
		return rpm
	}
	return r.cfg.DefaultRPM
}

func (r *LimiterRegistry) tierRPM(tier message.Tier) (int, bool) {
	rpm, ok := r.cfg.TierRPM[tier]
	return rpm, ok && rpm > 0
}

// Allow consumes one token from the channel bucket and, when the tier is
// known, one from the tier bucket. A denied send is not attempted; the
// caller defers the message instead. The tier token is held as a
// reservation until the channel bucket admits the send, so a channel
// denial does not burn tier quota.
func (r *LimiterRegistry) Allow(channel message.Channel, tier message.Tier) bool {
	var tierRes *rate.Reservation
	if rpm, ok := r.tierRPM(tier); ok {
		tierRes = r.bucket("tier:"+string(channel)+":"+string(tier), rpm).Reserve()
		if !tierRes.OK() || tierRes.Delay() > 0 {
			tierRes.Cancel()
			return false
		}
	}
	if !r.bucket("channel:"+string(channel), r.channelRPM(channel)).Allow() {
		if tierRes != nil {
			tierRes.Cancel()
		}
		return false
	}
	return true
}
