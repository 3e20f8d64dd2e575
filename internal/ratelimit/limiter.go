package ratelimit

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis_rate/v10"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/feral-file/ff-storefront-indexer/internal/adapter"
	"github.com/feral-file/ff-storefront-indexer/internal/config"
	"github.com/feral-file/ff-storefront-indexer/internal/logger"
)

const (
	healthCheckInterval = 10 * time.Second
	idleHostTTL         = 10 * time.Minute
)

// Limiter throttles outbound probes per storefront host
//
//go:generate mockgen -source=limiter.go -destination=../mocks/ratelimit.go -package=mocks -mock_names=Limiter=MockLimiter
type Limiter interface {
	// Wait blocks until a request to host is allowed, the context is canceled
	// or the maximum queue time is exceeded
	Wait(ctx context.Context, host string) error

	// Close stops background work and closes the Redis connection if any
	Close() error
}

type limiter struct {
	config             config.RateLimiterConfig
	redis              adapter.RedisClient
	distributedLimiter adapter.RedisRateLimiter
	clock              adapter.Clock
	redisAvailable     atomic.Bool

	mu    sync.Mutex
	hosts map[string]*hostLimiter

	closed    atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
}

// hostLimiter holds the local rate limiting state for a single host
type hostLimiter struct {
	local    *rate.Limiter
	lastUsed atomic.Int64
}

// NewLimiter creates a per-host limiter. When rc is nil or Redis is unreachable
// tokens are taken from local limiters only.
func NewLimiter(cfg config.RateLimiterConfig, rc adapter.RedisClient, clock adapter.Clock) (Limiter, error) {
	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	l := &limiter{
		config: cfg,
		redis:  rc,
		clock:  clock,
		hosts:  make(map[string]*hostLimiter),
		done:   make(chan struct{}),
	}

	if rc != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := rc.Ping(ctx).Err(); err != nil {
			logger.Warn("Redis unavailable, using local probe limiter", zap.Error(err))
		} else {
			l.redisAvailable.Store(true)
		}
		l.distributedLimiter = rc.NewRateLimiter()
	}

	go l.monitor(l.clock.NewTicker(healthCheckInterval))

	logger.Info("Probe rate limiter initialized",
		zap.Int("requests_per_second", cfg.RequestsPerSecond),
		zap.Int("burst", cfg.Burst),
		zap.Bool("distributed", l.redisAvailable.Load()),
	)

	return l, nil
}

// Wait blocks until a token for host is acquired
func (l *limiter) Wait(ctx context.Context, host string) error {
	if l.closed.Load() {
		return fmt.Errorf("limiter is closed")
	}

	queueCtx, cancel := context.WithTimeout(ctx, l.config.MaxQueueTime)
	defer cancel()

	hl := l.hostLimiter(host)

	for {
		if l.redisAvailable.Load() {
			allowed, retryAfter, err := l.tryDistributed(queueCtx, hl, host)
			switch {
			case err != nil:
				if queueCtx.Err() != nil {
					return queueCtx.Err()
				}
				l.redisAvailable.Store(false)
				logger.Warn("Redis rate limiter error, falling back to local", zap.String("host", host), zap.Error(err))
			case allowed:
				return nil
			default:
				// Spread out retries across workers waiting on the same host
				jitter := time.Duration(float64(retryAfter) * (0.5 + rand.Float64())) //nolint:gosec,G404
				select {
				case <-queueCtx.Done():
					return queueCtx.Err()
				case <-l.clock.After(jitter):
					continue
				}
			}
		}

		return hl.local.Wait(queueCtx)
	}
}

// tryDistributed takes a token from the shared Redis limiter after a local pre-filter
func (l *limiter) tryDistributed(ctx context.Context, hl *hostLimiter, host string) (bool, time.Duration, error) {
	if err := hl.local.Wait(ctx); err != nil {
		return false, 0, err
	}

	limit := redis_rate.Limit{
		Rate:   l.config.RequestsPerSecond,
		Burst:  l.config.Burst,
		Period: time.Second,
	}
	res, err := l.distributedLimiter.Allow(ctx, l.config.RedisKeyPrefix+host, limit)
	if err != nil {
		return false, 0, err
	}
	if res.Allowed == 0 {
		logger.Debug("Probe token unavailable, waiting",
			zap.String("host", host),
			zap.Duration("retry_after", res.RetryAfter),
		)
		return false, res.RetryAfter, nil
	}
	return true, 0, nil
}

func (l *limiter) hostLimiter(host string) *hostLimiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	hl, ok := l.hosts[host]
	if !ok {
		r := max(float64(l.config.RequestsPerSecond)*l.config.LocalFallbackMultiplier, 0.1)
		hl = &hostLimiter{local: rate.NewLimiter(rate.Limit(r), l.config.Burst)}
		l.hosts[host] = hl
	}
	hl.lastUsed.Store(l.clock.Now().UnixNano())
	return hl
}

// monitor restores the distributed limiter once Redis answers again and prunes idle hosts
func (l *limiter) monitor(ticker *time.Ticker) {
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
		}

		if l.redis != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			err := l.redis.Ping(ctx).Err()
			cancel()

			if err == nil && !l.redisAvailable.Load() {
				logger.Info("Redis connection restored")
			}
			l.redisAvailable.Store(err == nil)
		}

		l.pruneIdle()
	}
}

func (l *limiter) pruneIdle() {
	cutoff := l.clock.Now().Add(-idleHostTTL).UnixNano()

	l.mu.Lock()
	defer l.mu.Unlock()
	for host, hl := range l.hosts {
		if hl.lastUsed.Load() < cutoff {
			delete(l.hosts, host)
		}
	}
}

// Close stops the monitor and closes the Redis connection
func (l *limiter) Close() error {
	var err error
	l.closeOnce.Do(func() {
		l.closed.Store(true)
		close(l.done)

		if l.redis != nil {
			if closeErr := l.redis.Close(); closeErr != nil {
				logger.Warn("Error closing Redis connection", zap.Error(closeErr))
				err = closeErr
			}
		}
	})
	return err
}

// validateConfig validates and sets defaults for the configuration
func validateConfig(cfg *config.RateLimiterConfig) error {
	if cfg.RequestsPerSecond <= 0 {
		return fmt.Errorf("requests_per_second must be positive")
	}
	if cfg.Burst <= 0 {
		cfg.Burst = cfg.RequestsPerSecond
	}
	if cfg.MaxQueueTime <= 0 {
		cfg.MaxQueueTime = 30 * time.Second
	}
	if cfg.RedisKeyPrefix == "" {
		cfg.RedisKeyPrefix = "storefront:limiter:"
	}
	if cfg.LocalFallbackMultiplier <= 0 {
		cfg.LocalFallbackMultiplier = 1.0
	}
	return nil
}
