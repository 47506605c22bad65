package metrics

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/dossierlabs/dossier-messaging/internal/domain/message"
)

// Reporter periodically aggregates store state into gauges. Values lag
// by up to one polling interval; that trade is deliberate.
type Reporter struct {
	repo       message.Repository
	collector  *Collector
	logger     *zap.Logger
	interval   time.Duration
	stuckAfter time.Duration
}

func NewReporter(repo message.Repository, collector *Collector, logger *zap.Logger, interval, stuckAfter time.Duration) *Reporter {
	return &Reporter{
		repo:       repo,
		collector:  collector,
		logger:     logger.Named("metrics.reporter"),
		interval:   interval,
		stuckAfter: stuckAfter,
	}
}

func (r *Reporter) Run(ctx context.Context) {
	if err := r.Scan(ctx); err != nil {
		r.logger.Error("metrics_initial_scan_failed", zap.Error(err))
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Scan(ctx); err != nil {
				r.logger.Error("metrics_scan_failed", zap.Error(err))
			}
		}
	}
}

// Scan runs one aggregation pass.
func (r *Reporter) Scan(ctx context.Context) error {
	counts, err := r.repo.AggregateCounts(ctx, time.Now().UTC().Add(-r.stuckAfter))
	if err != nil {
		return err
	}
	r.collector.SetCounts(counts)
	return nil
}
