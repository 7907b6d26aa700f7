// Package worker holds the background jobs that run next to the HTTP server.
package worker

import (
	"context"
	"time"

	"order-fulfillment/internal/domain"
	"order-fulfillment/internal/metrics"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const sweepLockKey = "lock:order-expiry-sweep"

const (
	DefaultSweepInterval = 5 * time.Minute
	DefaultExpireAfter   = 24 * time.Hour
)

// ExpiredCanceller cancels stale orders in one statement and returns them.
type ExpiredCanceller interface {
	CancelExpired(ctx context.Context, cutoff, at time.Time) ([]domain.ExpiredOrder, error)
}

// ExpiryNotifier is told about every order the sweeper cancels.
type ExpiryNotifier interface {
	NotifyExpired(order domain.ExpiredOrder)
}

type SweeperConfig struct {
	ExpireAfter time.Duration
	Interval    time.Duration
}

// Sweeper periodically cancels orders stuck awaiting payment proof or
// payment verification for longer than ExpireAfter.
type Sweeper struct {
	orders   ExpiredCanceller
	notifier ExpiryNotifier
	redis    *redis.Client
	cfg      SweeperConfig
	logger   *zap.Logger
	now      func() time.Time
}

type SweeperOption func(*Sweeper)

// WithLock makes the sweeper take a Redis lock before each run so only one
// instance sweeps per tick.
func WithLock(client *redis.Client) SweeperOption {
	return func(s *Sweeper) { s.redis = client }
}

func WithSweeperClock(now func() time.Time) SweeperOption {
	return func(s *Sweeper) { s.now = now }
}

// NewSweeper creates a Sweeper. Non-positive durations fall back to the defaults.
func NewSweeper(orders ExpiredCanceller, notifier ExpiryNotifier, cfg SweeperConfig, logger *zap.Logger, opts ...SweeperOption) *Sweeper {
	if cfg.Interval <= 0 {
		logger.Warn("Invalid sweep interval, using default",
			zap.Duration("interval", cfg.Interval),
			zap.Duration("default", DefaultSweepInterval),
		)
		cfg.Interval = DefaultSweepInterval
	}
	if cfg.ExpireAfter <= 0 {
		logger.Warn("Invalid order expiry, using default",
			zap.Duration("expire_after", cfg.ExpireAfter),
			zap.Duration("default", DefaultExpireAfter),
		)
		cfg.ExpireAfter = DefaultExpireAfter
	}

	s := &Sweeper{
		orders:   orders,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run sweeps on every tick until ctx is cancelled. Errors are logged and the
// next tick tries again.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.logger.Info("Expiry sweeper started",
		zap.Duration("interval", s.cfg.Interval),
		zap.Duration("expire_after", s.cfg.ExpireAfter),
	)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Expiry sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				s.logger.Error("Expiry sweep failed", zap.Error(err))
			}
		}
	}
}

// SweepOnce performs a single run and returns the number of cancelled orders.
// It returns 0 without touching the database when another instance holds the
// lock. An unreachable Redis does not stop the sweep.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	if !s.acquire(ctx) {
		s.logger.Debug("Expiry sweep skipped, lock held elsewhere")
		return 0, nil
	}

	now := s.now().UTC()
	expired, err := s.orders.CancelExpired(ctx, now.Add(-s.cfg.ExpireAfter), now)
	if err != nil {
		return 0, err
	}

	for _, order := range expired {
		s.notifier.NotifyExpired(order)
	}
	metrics.OrdersAutoCancelledTotal.Add(float64(len(expired)))

	s.logger.Info("Expiry sweep finished", zap.Int("count", len(expired)))
	return len(expired), nil
}

// acquire takes the sweep lock. The lock is never released explicitly; it
// expires after half an interval. It fails open: the cancel statement is
// idempotent, so concurrent sweeps only repeat work.
func (s *Sweeper) acquire(ctx context.Context) bool {
	if s.redis == nil {
		return true
	}
	ttl := s.cfg.Interval / 2
	if ttl <= 0 {
		ttl = time.Second
	}
	acquired, err := s.redis.SetNX(ctx, sweepLockKey, "1", ttl).Result()
	if err != nil {
		s.logger.Warn("Sweep lock unavailable, sweeping without it", zap.Error(err))
		return true
	}
	return acquired
}
