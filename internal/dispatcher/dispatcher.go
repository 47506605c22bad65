package dispatcher

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/dossierlabs/dossier-messaging/internal/domain/message"
	"github.com/dossierlabs/dossier-messaging/internal/domain/provider"
	"github.com/dossierlabs/dossier-messaging/internal/domain/session"
	"github.com/dossierlabs/dossier-messaging/internal/metrics"
	"github.com/dossierlabs/dossier-messaging/pkg/resilience"
)

// errProviderFailure is the sentinel fed to the circuit breaker so failed
// provider calls count into its sliding window.
var errProviderFailure = errors.New("provider call failed")

// Config bounds one dispatcher instance.
type Config struct {
	Workers        int
	BatchSize      int
	PollInterval   time.Duration
	AdapterTimeout time.Duration
	StaleAfter     time.Duration
	RateLimitDefer time.Duration
	BreakerDefer   time.Duration
}

// Dispatcher drives the outbound state machine: it claims due QUEUED
// messages, applies the admission gates in order (rate limit, breaker,
// session window), invokes the channel adapter and classifies the
// outcome into a transition. Multiple instances may run against the same
// store; correctness rests on the store's atomic claim.
type Dispatcher struct {
	repo      message.Repository
	sessions  *session.Tracker
	adapters  []provider.ChannelAdapter
	breakers  *resilience.BreakerRegistry
	limiters  *resilience.LimiterRegistry
	backoff   resilience.BackoffSchedule
	collector *metrics.Collector
	logger    *zap.Logger
	cfg       Config

	now    func() time.Time
	paused sync.Map // message.Channel -> bool
}

func New(
	repo message.Repository,
	sessions *session.Tracker,
	adapters []provider.ChannelAdapter,
	breakers *resilience.BreakerRegistry,
	limiters *resilience.LimiterRegistry,
	backoff resilience.BackoffSchedule,
	collector *metrics.Collector,
	logger *zap.Logger,
	cfg Config,
) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.AdapterTimeout <= 0 {
		cfg.AdapterTimeout = 30 * time.Second
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 10 * time.Minute
	}
	if cfg.RateLimitDefer <= 0 {
		cfg.RateLimitDefer = time.Minute
	}
	if cfg.BreakerDefer <= 0 {
		cfg.BreakerDefer = time.Minute
	}
	return &Dispatcher{
		repo:      repo,
		sessions:  sessions,
		adapters:  adapters,
		breakers:  breakers,
		limiters:  limiters,
		backoff:   backoff,
		collector: collector,
		logger:    logger.Named("dispatcher"),
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Run blocks until ctx is cancelled. It starts the worker pool plus one
// sweeper recovering messages orphaned in SENDING by crashed workers.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		d.sweepLoop(ctx)
	}()

	for i := 0; i < d.cfg.Workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			d.pollLoop(ctx, worker)
		}(i)
	}

	wg.Wait()
}

func (d *Dispatcher) pollLoop(ctx context.Context, worker int) {
	logger := d.logger.With(zap.Int("worker", worker))
	if err := d.PollOnce(ctx); err != nil {
		logger.Error("dispatch_poll_failed", zap.Error(err))
	}

	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.PollOnce(ctx); err != nil {
				logger.Error("dispatch_poll_failed", zap.Error(err))
			}
		}
	}
}

// PollOnce claims one batch of due messages and processes each.
func (d *Dispatcher) PollOnce(ctx context.Context) error {
	claimed, err := d.repo.ClaimDue(ctx, d.now(), d.cfg.BatchSize)
	if err != nil {
		return err
	}
	for _, m := range claimed {
		d.ProcessMessage(ctx, m)
	}
	return nil
}

func (d *Dispatcher) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.SweepStale(ctx); err != nil {
				d.logger.Error("stale_sweep_failed", zap.Error(err))
			}
		}
	}
}

// SweepStale reclassifies messages stuck in SENDING beyond the recovery
// threshold back to QUEUED, as if they had failed retryably.
func (d *Dispatcher) SweepStale(ctx context.Context) error {
	recovered, err := d.repo.RecoverStale(ctx, d.now().Add(-d.cfg.StaleAfter), d.cfg.BatchSize)
	if err != nil {
		return err
	}
	if recovered > 0 {
		d.collector.AddStaleRecovered(recovered)
		d.logger.Warn("stale_sending_recovered", zap.Int64("count", recovered))
	}
	return nil
}

// PauseChannel stops attempts on a channel; claimed messages are
// released with a deferred due time.
func (d *Dispatcher) PauseChannel(ch message.Channel) {
	d.paused.Store(ch, true)
}

func (d *Dispatcher) ResumeChannel(ch message.Channel) {
	d.paused.Delete(ch)
}

func (d *Dispatcher) channelPaused(ch message.Channel) bool {
	_, ok := d.paused.Load(ch)
	return ok
}

// ProcessMessage runs one claimed message through the gate pipeline and
// the provider call, then applies the resulting transition. The message
// must be in SENDING state (freshly claimed).
func (d *Dispatcher) ProcessMessage(ctx context.Context, m *message.OutboundMessage) {
	now := d.now()
	logger := d.logger.With(
		zap.Int64("message_id", m.ID),
		zap.String("tenant_id", m.TenantID),
		zap.String("channel", string(m.Channel)),
	)

	if d.channelPaused(m.Channel) {
		d.release(ctx, logger, m, now.Add(d.cfg.RateLimitDefer), "channel_paused")
		return
	}

	// Gate 1: local token bucket. A denied send is deferred, never
	// counted as an attempt.
	if !d.limiters.Allow(m.Channel, m.Tier) {
		d.collector.IncRateLimitDeferred(m.Channel)
		d.release(ctx, logger, m, now.Add(d.cfg.RateLimitDefer), "rate_limited")
		return
	}

	// Gate 2: circuit breaker state. An open breaker defers without a
	// provider call; half-open overflow is caught again at Execute.
	if d.breakers.State(m.Channel) == gobreaker.StateOpen {
		d.collector.IncBreakerDeferred(m.Channel)
		d.release(ctx, logger, m, now.Add(d.cfg.BreakerDefer), "breaker_open")
		return
	}

	// Gate 3: session window for freeform sends on window-scoped
	// channels. Expiry is terminal: no future attempt can succeed
	// without a new inbound message, so no retry budget is kept.
	if m.Channel.WindowScoped() && m.Freeform() {
		open, err := d.sessions.IsOpen(ctx, m.TenantID, m.Channel, m.Recipient, now)
		if err != nil {
			logger.Error("session_window_lookup_failed", zap.Error(err))
			d.release(ctx, logger, m, now.Add(d.cfg.RateLimitDefer), "window_lookup_failed")
			return
		}
		if !open {
			d.failWindowExpired(ctx, logger, m, now)
			return
		}
	}

	adapter := d.adapterFor(m.Channel)
	if adapter == nil {
		d.recordOutcome(ctx, logger, m, now,
			provider.PermanentError(message.ErrCodeNoProvider, "no adapter registered for channel "+string(m.Channel)))
		return
	}

	var result provider.SendResult
	err := d.breakers.Execute(m.Channel, func() error {
		callCtx, cancel := context.WithTimeout(ctx, d.cfg.AdapterTimeout)
		defer cancel()

		result = adapter.Send(callCtx, m)
		if result.Success() {
			return nil
		}
		return errProviderFailure
	})
	if errors.Is(err, resilience.ErrBreakerOpen) {
		d.collector.IncBreakerDeferred(m.Channel)
		d.release(ctx, logger, m, now.Add(d.cfg.BreakerDefer), "breaker_open")
		return
	}

	if !result.Success() && result.ErrorCode == "" {
		// The adapter must never leave a cancelled call ambiguous, but
		// guard anyway: an unclassified outcome resolves to a retryable
		// timeout.
		result = provider.RetryableError(message.ErrCodeTimeout, "adapter call did not resolve within the timeout")
	}

	d.recordOutcome(ctx, logger, m, now, result)
}

func (d *Dispatcher) adapterFor(ch message.Channel) provider.ChannelAdapter {
	for _, a := range d.adapters {
		if a.Supports(ch) {
			return a
		}
	}
	return nil
}

// release returns a claimed message to QUEUED with a deferred due time.
// Pre-flight policy rejections consume no attempt budget and write no
// attempt row.
func (d *Dispatcher) release(ctx context.Context, logger *zap.Logger, m *message.OutboundMessage, dueAt time.Time, reason string) {
	if err := d.repo.Release(ctx, m.ID, dueAt); err != nil {
		logger.Error("release_failed", zap.Error(err), zap.String("reason", reason))
		return
	}
	logger.Debug("dispatch_deferred", zap.String("reason", reason), zap.Time("due_at", dueAt))
}

// failWindowExpired terminates a freeform send whose session window is
// absent or expired. The rejection is audited as an attempt row but the
// attempt count stays untouched: no provider call was made.
func (d *Dispatcher) failWindowExpired(ctx context.Context, logger *zap.Logger, m *message.OutboundMessage, now time.Time) {
	const msg = "no active customer-care session window for recipient"

	if err := d.repo.MarkFailed(ctx, m.ID, m.AttemptCount, message.ErrCodeWindowExpired, msg); err != nil {
		logger.Error("mark_failed_failed", zap.Error(err))
		return
	}
	d.appendAttempt(ctx, logger, &message.Attempt{
		MessageID:    m.ID,
		TenantID:     m.TenantID,
		AttemptNo:    m.AttemptCount,
		Status:       message.AttemptFailed,
		ErrorCode:    message.ErrCodeWindowExpired,
		ErrorMessage: msg,
		CreatedAt:    now,
	})
	d.collector.IncWindowRejected(m.Channel)
	d.collector.IncDeadLetter(m.Channel)
	logger.Warn("session_window_rejected", zap.String("recipient", m.Recipient))
}

// recordOutcome applies the provider call classification: success,
// retryable (backoff-scheduled until the budget runs out) or permanent.
func (d *Dispatcher) recordOutcome(ctx context.Context, logger *zap.Logger, m *message.OutboundMessage, now time.Time, result provider.SendResult) {
	attemptNo := m.AttemptCount + 1
	attempt := &message.Attempt{
		MessageID: m.ID,
		TenantID:  m.TenantID,
		AttemptNo: attemptNo,
		CreatedAt: now,
	}

	if result.Success() {
		if err := d.repo.MarkSent(ctx, m.ID, attemptNo, result.ProviderMessageID, now); err != nil {
			logger.Error("mark_sent_failed", zap.Error(err))
			return
		}
		attempt.Status = message.AttemptSuccess
		d.appendAttempt(ctx, logger, attempt)
		d.collector.IncSendSuccess(m.Channel)

		if m.Channel.WindowScoped() {
			if err := d.sessions.RecordOutbound(ctx, m.TenantID, m.Channel, m.Recipient, now); err != nil {
				logger.Warn("record_outbound_failed", zap.Error(err))
			}
		}

		logger.Info("message_sent",
			zap.Int("attempt", attemptNo),
			zap.String("provider_message_id", result.ProviderMessageID),
		)
		return
	}

	attempt.Status = message.AttemptFailed
	attempt.ErrorCode = result.ErrorCode
	attempt.ErrorMessage = result.ErrorMessage

	if result.Retryable && attemptNo < m.MaxAttempts {
		dueAt := now.Add(d.backoff.Delay(attemptNo))
		attempt.NextRetryAt = &dueAt

		if err := d.repo.ScheduleRetry(ctx, m.ID, attemptNo, dueAt, result.ErrorCode, result.ErrorMessage); err != nil {
			logger.Error("schedule_retry_failed", zap.Error(err))
			return
		}
		d.appendAttempt(ctx, logger, attempt)
		d.collector.IncSendRetry(m.Channel)
		logger.Warn("message_retry_scheduled",
			zap.Int("attempt", attemptNo),
			zap.Int("max_attempts", m.MaxAttempts),
			zap.String("error_code", result.ErrorCode),
			zap.Time("due_at", dueAt),
		)
		return
	}

	if err := d.repo.MarkFailed(ctx, m.ID, attemptNo, result.ErrorCode, result.ErrorMessage); err != nil {
		logger.Error("mark_failed_failed", zap.Error(err))
		return
	}
	d.appendAttempt(ctx, logger, attempt)
	d.collector.IncSendFailure(m.Channel, result.ErrorCode)
	d.collector.IncDeadLetter(m.Channel)

	reason := "permanent error"
	if result.Retryable {
		reason = "attempt budget exhausted"
	}
	logger.Warn("message_dead_lettered",
		zap.Int("attempt", attemptNo),
		zap.String("error_code", result.ErrorCode),
		zap.String("reason", reason),
	)
}

func (d *Dispatcher) appendAttempt(ctx context.Context, logger *zap.Logger, a *message.Attempt) {
	if err := d.repo.AppendAttempt(ctx, a); err != nil {
		logger.Error("append_attempt_failed", zap.Error(err))
	}
}
