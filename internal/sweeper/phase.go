package sweeper

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/feral-file/ff-storefront-indexer/internal/adapter"
	"github.com/feral-file/ff-storefront-indexer/internal/domain"
	"github.com/feral-file/ff-storefront-indexer/internal/health"
	"github.com/feral-file/ff-storefront-indexer/internal/logger"
	"github.com/feral-file/ff-storefront-indexer/internal/metrics"
	"github.com/feral-file/ff-storefront-indexer/internal/store"
	"github.com/feral-file/ff-storefront-indexer/internal/store/schema"
)

// Per-record outcomes, also used as metric labels
const (
	outcomeSucceeded     = "succeeded"
	outcomeFailed        = "failed"
	outcomeSkipped       = "skipped"
	outcomeConfiguration = "configuration_error"
	outcomeStoreError    = "store_error"
	outcomeAbandoned     = "abandoned"
)

// MAX_ERROR_LENGTH bounds the error message stored on a candidate
const MAX_ERROR_LENGTH = 1024

// outcome is what a phase produced for one candidate, ready to be persisted
type outcome struct {
	failure error
	save    func(ctx context.Context, attempt store.Attempt) error
}

// processFunc runs a phase engine on a candidate
type processFunc func(ctx context.Context, candidate *schema.Candidate) (*outcome, error)

// phaseSweeper implements the Sweeper interface for one pipeline phase
type phaseSweeper struct {
	phase   domain.Phase
	config  Config
	store   store.Store
	clock   adapter.Clock
	process processFunc
	breaker *gobreaker.CircuitBreaker
	running atomic.Bool
}

func newPhaseSweeper(phase domain.Phase, cfg Config, st store.Store, clock adapter.Clock, process processFunc) *phaseSweeper {
	if cfg.WorkerPoolSize <= 0 {
		cfg.WorkerPoolSize = 1
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.BreakerMaxFailures == 0 {
		cfg.BreakerMaxFailures = 3
	}

	s := &phaseSweeper{
		phase:   phase,
		config:  cfg,
		store:   st,
		clock:   clock,
		process: process,
	}
	s.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        s.Name() + "-store",
		MaxRequests: 1,
		Timeout:     cfg.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerMaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state change",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return s
}

// Name returns the sweeper's name
func (s *phaseSweeper) Name() string {
	return string(s.phase) + "-sweeper"
}

// Phase returns the phase the sweeper runs
func (s *phaseSweeper) Phase() domain.Phase {
	return s.phase
}

// Sweep loads the due candidates and processes them on a bounded worker pool.
// Records not finished within the sweep budget are abandoned untouched.
func (s *phaseSweeper) Sweep(ctx context.Context) (*Stats, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrSweepInProgress
	}
	defer s.running.Store(false)

	info := logger.SweepInfo{Phase: string(s.phase), SweepID: uuid.NewString()}
	ctx = logger.WithSweep(ctx, info)
	log := logger.FromSweep(ctx, info)

	startTime := s.clock.Now()
	stats := &Stats{SweepID: info.SweepID, Phase: s.phase}

	budgetCtx, cancel := s.withBudget(ctx)
	defer cancel()

	candidates, err := s.due(budgetCtx, startTime.UTC())
	if err != nil {
		metrics.SweepsTotal.WithLabelValues(string(s.phase), "error").Inc()
		return nil, err
	}
	stats.Due = len(candidates)

	if len(candidates) == 0 {
		log.Debug("No candidates due")
		metrics.SweepsTotal.WithLabelValues(string(s.phase), "empty").Inc()
		stats.Duration = s.clock.Since(startTime)
		return stats, nil
	}

	log.Info("Starting sweep",
		zap.Int("due", len(candidates)),
		zap.Int("worker_pool_size", s.config.WorkerPoolSize),
		zap.Duration("sweep_budget", s.config.SweepBudget),
	)

	var succeeded, failed, skipped atomic.Int32

	pool := pond.NewPool(s.config.WorkerPoolSize, pond.WithContext(ctx))
	for i := range candidates {
		candidate := &candidates[i]
		pool.Submit(func() {
			// Not started before the deadline
			if budgetCtx.Err() != nil {
				return
			}

			result := s.handle(ctx, budgetCtx, candidate)
			switch result {
			case outcomeSucceeded:
				succeeded.Add(1)
			case outcomeFailed, outcomeStoreError:
				failed.Add(1)
			case outcomeSkipped, outcomeConfiguration:
				skipped.Add(1)
			}
			if result != outcomeAbandoned {
				metrics.RecordsProcessed.WithLabelValues(string(s.phase), result).Inc()
			}
		})
	}
	pool.StopAndWait()

	stats.Succeeded = int(succeeded.Load())
	stats.Failed = int(failed.Load())
	stats.Skipped = int(skipped.Load())
	stats.Abandoned = stats.Due - stats.Succeeded - stats.Failed - stats.Skipped
	stats.Duration = s.clock.Since(startTime)

	sweepResult := "completed"
	if stats.Abandoned > 0 {
		sweepResult = "budget_exhausted"
		metrics.RecordsProcessed.WithLabelValues(string(s.phase), outcomeAbandoned).Add(float64(stats.Abandoned))
	}
	metrics.SweepsTotal.WithLabelValues(string(s.phase), sweepResult).Inc()
	metrics.SweepDuration.WithLabelValues(string(s.phase)).Observe(stats.Duration.Seconds())

	log.Info("Sweep completed",
		zap.Duration("duration", stats.Duration),
		zap.Int("due", stats.Due),
		zap.Int("succeeded", stats.Succeeded),
		zap.Int("failed", stats.Failed),
		zap.Int("skipped", stats.Skipped),
		zap.Int("abandoned", stats.Abandoned),
	)

	return stats, nil
}

func (s *phaseSweeper) withBudget(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.config.SweepBudget <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.config.SweepBudget)
}

// due pings the store and loads the eligible candidates behind the circuit breaker
func (s *phaseSweeper) due(ctx context.Context, now time.Time) ([]schema.Candidate, error) {
	result, err := s.breaker.Execute(func() (interface{}, error) {
		if err := s.store.Ping(ctx); err != nil {
			return nil, err
		}
		return s.store.GetCandidatesDue(ctx, store.DueQuery{
			Phase:       s.phase,
			Now:         now,
			MaxAttempts: s.config.MaxAttempts,
			Limit:       s.config.BatchSize,
		})
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: circuit breaker is %s", domain.ErrStoreUnavailable, s.breaker.State())
		}
		return nil, fmt.Errorf("failed to load due candidates: %w", err)
	}

	candidates, _ := result.([]schema.Candidate)
	return candidates, nil
}

// handle runs the phase on one candidate and persists the result. Probes run on the
// budget context; writes use the sweep context so a finished record is never half written.
func (s *phaseSweeper) handle(ctx, budgetCtx context.Context, candidate *schema.Candidate) string {
	now := s.clock.Now().UTC()
	fields := []zap.Field{
		zap.String("phase", string(s.phase)),
		zap.String("record_id", candidate.ID),
		zap.String("url", candidate.URL),
	}

	out, err := s.process(budgetCtx, candidate)
	if budgetCtx.Err() != nil {
		logger.DebugCtx(ctx, "Sweep budget exhausted, record left untouched", fields...)
		return outcomeAbandoned
	}

	switch {
	case err == nil:
	case domain.IsConfigurationError(err):
		logger.ErrorCtx(ctx, fmt.Errorf("configuration error, record left untouched: %w", err), fields...)
		return outcomeConfiguration
	case errors.Is(err, health.ErrNotEligible):
		logger.DebugCtx(ctx, "Candidate not eligible", fields...)
		return outcomeSkipped
	default:
		logger.WarnCtx(ctx, "Phase failed", append(fields, zap.Error(err))...)
		if err := s.store.RecordPhaseFailure(ctx, candidate.ID, s.phase, s.failedAttempt(now, candidate, err)); err != nil {
			logger.ErrorCtx(ctx, err, fields...)
			return outcomeStoreError
		}
		return outcomeFailed
	}

	attempt := store.Attempt{
		At:          now,
		NextRetryAt: now.Add(s.config.RecheckAfter),
	}
	result := outcomeSucceeded
	if out.failure != nil {
		logger.WarnCtx(ctx, "Phase completed with probe failures", append(fields, zap.Error(out.failure))...)
		attempt = s.failedAttempt(now, candidate, out.failure)
		result = outcomeFailed
	}

	if err := out.save(ctx, attempt); err != nil {
		logger.ErrorCtx(ctx, err, fields...)
		return outcomeStoreError
	}
	return result
}

// failedAttempt schedules the next attempt from the retry count before this failure
func (s *phaseSweeper) failedAttempt(now time.Time, candidate *schema.Candidate, err error) store.Attempt {
	msg := err.Error()
	if len(msg) > MAX_ERROR_LENGTH {
		msg = msg[:MAX_ERROR_LENGTH]
	}
	return store.Attempt{
		At:          now,
		Failed:      true,
		NextRetryAt: s.config.Retry.NextAttempt(now, candidate.PhaseState(s.phase).RetryCount),
		Error:       &msg,
	}
}
