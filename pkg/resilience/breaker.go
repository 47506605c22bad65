package resilience

import (
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/dossierlabs/dossier-messaging/internal/domain/message"
)

// ErrBreakerOpen is returned when the breaker refuses the call outright.
var ErrBreakerOpen = errors.New("circuit breaker open")

// BreakerConfig carries the per-channel breaker thresholds.
type BreakerConfig struct {
	FailureRateThreshold float64 // fraction, e.g. 0.5
	MinCalls             uint32
	WindowSize           int // outcomes considered for the failure rate
	OpenWait             time.Duration
	HalfOpenCalls        uint32
}

// StateChangeFunc observes breaker transitions for metrics and alerting.
type StateChangeFunc func(channel message.Channel, from, to gobreaker.State)

// outcomeWindow is a ring of the most recent call outcomes. gobreaker's
// own closed-state counts accumulate until the breaker leaves the closed
// state, which dilutes the failure rate after a long healthy run; the
// trip decision reads this window instead so only the last WindowSize
// calls count.
type outcomeWindow struct {
	mu       sync.Mutex
	failures []bool
	next     int
	filled   int
}

func newOutcomeWindow(size int) *outcomeWindow {
	return &outcomeWindow{failures: make([]bool, size)}
}

func (w *outcomeWindow) record(failed bool) {
	w.mu.Lock()
	w.failures[w.next] = failed
	w.next = (w.next + 1) % len(w.failures)
	if w.filled < len(w.failures) {
		w.filled++
	}
	w.mu.Unlock()
}

func (w *outcomeWindow) stats() (failures, total int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i := 0; i < w.filled; i++ {
		if w.failures[i] {
			failures++
		}
	}
	return failures, w.filled
}

func (w *outcomeWindow) reset() {
	w.mu.Lock()
	w.next = 0
	w.filled = 0
	w.mu.Unlock()
}

type channelBreaker struct {
	cb     *gobreaker.CircuitBreaker
	window *outcomeWindow
}

// BreakerRegistry holds one circuit breaker per channel, built once at
// startup and shared by reference with the dispatcher workers.
type BreakerRegistry struct {
	mu       sync.RWMutex
	breakers map[message.Channel]*channelBreaker
	cfg      BreakerConfig
	onChange StateChangeFunc
}

func NewBreakerRegistry(cfg BreakerConfig, onChange StateChangeFunc) *BreakerRegistry {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = 10
	}
	r := &BreakerRegistry{
		breakers: make(map[message.Channel]*channelBreaker),
		cfg:      cfg,
		onChange: onChange,
	}
	for _, ch := range message.AllChannels() {
		r.breakers[ch] = r.newBreaker(ch)
	}
	return r
}

func (r *BreakerRegistry) newBreaker(channel message.Channel) *channelBreaker {
	cfg := r.cfg
	window := newOutcomeWindow(cfg.WindowSize)
	settings := gobreaker.Settings{
		Name:        string(channel),
		MaxRequests: cfg.HalfOpenCalls,
		Timeout:     cfg.OpenWait,
		ReadyToTrip: func(gobreaker.Counts) bool {
			failures, total := window.stats()
			if total < int(cfg.MinCalls) {
				return false
			}
			return float64(failures)/float64(total) >= cfg.FailureRateThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if to == gobreaker.StateClosed {
				// A recovered channel starts with a clean slate.
				window.reset()
			}
			if r.onChange != nil {
				r.onChange(message.Channel(name), from, to)
			}
		},
	}
	return &channelBreaker{cb: gobreaker.NewCircuitBreaker(settings), window: window}
}

func (r *BreakerRegistry) breaker(channel message.Channel) *channelBreaker {
	r.mu.RLock()
	b, ok := r.breakers[channel]
	r.mu.RUnlock()
	if ok {
		return b
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok = r.breakers[channel]; ok {
		return b
	}
	b = r.newBreaker(channel)
	r.breakers[channel] = b
	return b
}

// State returns the current breaker state for a channel.
func (r *BreakerRegistry) State(channel message.Channel) gobreaker.State {
	return r.breaker(channel).cb.State()
}

// Execute runs fn under the channel's breaker, recording the outcome into
// its sliding window. When the breaker refuses the call, ErrBreakerOpen
// is returned and fn is never invoked.
func (r *BreakerRegistry) Execute(channel message.Channel, fn func() error) error {
	b := r.breaker(channel)
	_, err := b.cb.Execute(func() (any, error) {
		err := fn()
		b.window.record(err != nil)
		return nil, err
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrBreakerOpen
	}
	return err
}
