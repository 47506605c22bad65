package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dossierlabs/dossier-messaging/internal/domain/message"
)

// Collector owns every prometheus series the delivery engine exposes.
// Gauges are fed by the periodic Reporter scan; counters are incremented
// inline by the dispatcher.
type Collector struct {
	registry *prometheus.Registry

	queueDepthByStatus  *prometheus.GaugeVec
	queueDepthByChannel *prometheus.GaugeVec
	retryPressure       *prometheus.GaugeVec
	deadLetterSize      prometheus.Gauge
	queuedTotal         prometheus.Gauge
	stuckSending        prometheus.Gauge

	sendSuccess       *prometheus.CounterVec
	sendFailure       *prometheus.CounterVec
	sendRetry         *prometheus.CounterVec
	deadLettered      *prometheus.CounterVec
	rateLimitDeferred *prometheus.CounterVec
	breakerDeferred   *prometheus.CounterVec
	breakerTransition *prometheus.CounterVec
	windowRejected    *prometheus.CounterVec
	staleRecovered    prometheus.Counter
}

func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		queueDepthByStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "outbound_message_queue_depth",
			Help: "Number of outbound messages by status.",
		}, []string{"status"}),
		queueDepthByChannel: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "outbound_message_queue_depth_by_channel",
			Help: "Number of QUEUED outbound messages by channel.",
		}, []string{"channel"}),
		retryPressure: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "outbound_message_retry_pressure",
			Help: "Messages with at least one attempt, by channel.",
		}, []string{"channel"}),
		deadLetterSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "outbound_message_dead_letter_size",
			Help: "Messages in terminal FAILED state.",
		}),
		queuedTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "outbound_message_queued_total",
			Help: "Total QUEUED messages across channels.",
		}),
		stuckSending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "outbound_message_stuck_sending",
			Help: "Messages in SENDING beyond the recovery threshold.",
		}),
		sendSuccess: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "outbound_send_success_total",
			Help: "Successful provider sends by channel.",
		}, []string{"channel"}),
		sendFailure: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "outbound_send_failure_total",
			Help: "Failed provider sends by channel and error code.",
		}, []string{"channel", "code"}),
		sendRetry: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "outbound_send_retry_total",
			Help: "Retry schedules by channel.",
		}, []string{"channel"}),
		deadLettered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "outbound_dead_letter_total",
			Help: "Messages moved to FAILED by channel.",
		}, []string{"channel"}),
		rateLimitDeferred: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "outbound_rate_limit_deferred_total",
			Help: "Sends deferred by the local token bucket.",
		}, []string{"channel"}),
		breakerDeferred: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "outbound_breaker_deferred_total",
			Help: "Sends deferred by an open circuit breaker.",
		}, []string{"channel"}),
		breakerTransition: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "outbound_circuit_breaker_state_change_total",
			Help: "Circuit breaker state transitions.",
		}, []string{"channel", "from_state", "to_state"}),
		windowRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "outbound_session_window_rejected_total",
			Help: "Freeform sends rejected for an expired or absent session window.",
		}, []string{"channel"}),
		staleRecovered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "outbound_stale_sending_recovered_total",
			Help: "Messages swept from stuck SENDING back to QUEUED.",
		}),
	}

	c.registry.MustRegister(
		c.queueDepthByStatus,
		c.queueDepthByChannel,
		c.retryPressure,
		c.deadLetterSize,
		c.queuedTotal,
		c.stuckSending,
		c.sendSuccess,
		c.sendFailure,
		c.sendRetry,
		c.deadLettered,
		c.rateLimitDeferred,
		c.breakerDeferred,
		c.breakerTransition,
		c.windowRejected,
		c.staleRecovered,
	)
	return c
}

// Registry exposes the backing registry for the /metrics handler.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) SetCounts(counts *message.Counts) {
	var queued int64
	for _, status := range message.AllStatuses() {
		c.queueDepthByStatus.WithLabelValues(string(status)).Set(float64(counts.ByStatus[status]))
	}
	queued = counts.ByStatus[message.StatusQueued]
	for _, ch := range message.AllChannels() {
		c.queueDepthByChannel.WithLabelValues(string(ch)).Set(float64(counts.QueuedByChannel[ch]))
		c.retryPressure.WithLabelValues(string(ch)).Set(float64(counts.RetryByChannel[ch]))
	}
	c.deadLetterSize.Set(float64(counts.ByStatus[message.StatusFailed]))
	c.queuedTotal.Set(float64(queued))
	c.stuckSending.Set(float64(counts.StuckSending))
}

func (c *Collector) IncSendSuccess(ch message.Channel) {
	c.sendSuccess.WithLabelValues(string(ch)).Inc()
}

func (c *Collector) IncSendFailure(ch message.Channel, code string) {
	if code == "" {
		code = "UNKNOWN"
	}
	c.sendFailure.WithLabelValues(string(ch), code).Inc()
}

func (c *Collector) IncSendRetry(ch message.Channel) {
	c.sendRetry.WithLabelValues(string(ch)).Inc()
}

func (c *Collector) IncDeadLetter(ch message.Channel) {
	c.deadLettered.WithLabelValues(string(ch)).Inc()
}

func (c *Collector) IncRateLimitDeferred(ch message.Channel) {
	c.rateLimitDeferred.WithLabelValues(string(ch)).Inc()
}

func (c *Collector) IncBreakerDeferred(ch message.Channel) {
	c.breakerDeferred.WithLabelValues(string(ch)).Inc()
}

func (c *Collector) IncBreakerTransition(ch message.Channel, from, to string) {
	c.breakerTransition.WithLabelValues(string(ch), from, to).Inc()
}

func (c *Collector) IncWindowRejected(ch message.Channel) {
	c.windowRejected.WithLabelValues(string(ch)).Inc()
}

func (c *Collector) AddStaleRecovered(n int64) {
	c.staleRecovered.Add(float64(n))
}
