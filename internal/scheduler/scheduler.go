// Package scheduler runs the periodic handoff-token sweep so abandoned
// handoffs never accumulate, independent of redemption-time housekeeping.
package scheduler

import (
	"context"
	"time"

	handoffdomain "github.com/smallbiznis/domainlink/internal/handoff/domain"
	obsmetrics "github.com/smallbiznis/domainlink/internal/observability/metrics"
	"go.uber.org/zap"
)

// Config controls sweep cadence.
type Config struct {
	RunInterval time.Duration
}

func DefaultConfig() Config {
	return Config{RunInterval: time.Minute}
}

func (c Config) withDefaults() Config {
	if c.RunInterval <= 0 {
		c.RunInterval = DefaultConfig().RunInterval
	}
	return c
}

type Sweeper struct {
	log     *zap.Logger
	cfg     Config
	ledger  handoffdomain.Ledger
	metrics *obsmetrics.Metrics
}

func New(log *zap.Logger, cfg Config, ledger handoffdomain.Ledger, metrics *obsmetrics.Metrics) *Sweeper {
	return &Sweeper{
		log:     log.Named("scheduler").With(zap.String("component", "token-sweeper")),
		cfg:     cfg.withDefaults(),
		ledger:  ledger,
		metrics: metrics,
	}
}

// RunOnce performs a single sweep.
func (s *Sweeper) RunOnce(ctx context.Context) error {
	purged, err := s.ledger.PurgeOlderThan(ctx, handoffdomain.TokenTTL)
	if err != nil {
		s.log.Error("token sweep failed", zap.Error(err))
		return err
	}
	if purged > 0 {
		s.metrics.RecordTokensPurged(ctx, purged)
		s.log.Info("swept stale handoff tokens", zap.Int64("count", purged))
	}
	return nil
}

// RunForever sweeps on the configured interval until ctx is cancelled.
func (s *Sweeper) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = s.RunOnce(ctx)
		}
	}
}
