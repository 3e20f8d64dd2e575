package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/feral-file/ff-storefront-indexer/internal/logger"
	"github.com/feral-file/ff-storefront-indexer/internal/sweeper"
)

// Schedule binds a phase sweeper to a cron spec, e.g. "@every 1m" or "*/5 * * * *"
type Schedule struct {
	Sweeper sweeper.Sweeper
	Spec    string
}

// Orchestrator runs the phase sweeps on independent schedules. It keeps no state
// between sweeps: eligibility is read from the store on every run.
type Orchestrator interface {
	// Start schedules every sweep and blocks until the context is canceled or Stop is called
	Start(ctx context.Context) error

	// Stop stops scheduling and waits for running sweeps to finish
	Stop(ctx context.Context) error

	// RunOnce runs one sweep of every phase concurrently and returns the first error
	RunOnce(ctx context.Context) error
}

type orchestrator struct {
	schedules []Schedule
	running   atomic.Bool
	stopChan  chan struct{}
	stoppedCh chan struct{}
}

// New creates an orchestrator, validating every schedule
func New(schedules []Schedule) (Orchestrator, error) {
	seen := map[string]bool{}
	for _, s := range schedules {
		if s.Sweeper == nil {
			return nil, errors.New("schedule has no sweeper")
		}
		if seen[s.Sweeper.Name()] {
			return nil, fmt.Errorf("duplicate schedule for %s", s.Sweeper.Name())
		}
		seen[s.Sweeper.Name()] = true
		if _, err := cron.ParseStandard(s.Spec); err != nil {
			return nil, fmt.Errorf("invalid schedule %q for %s: %w", s.Spec, s.Sweeper.Name(), err)
		}
	}

	return &orchestrator{
		schedules: schedules,
		stopChan:  make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}, nil
}

// Start schedules every sweep and blocks until the context is canceled or Stop is called
func (o *orchestrator) Start(ctx context.Context) error {
	if !o.running.CompareAndSwap(false, true) {
		return fmt.Errorf("orchestrator already running")
	}
	defer func() {
		o.running.Store(false)
		close(o.stoppedCh)
	}()

	cronLog := cronLogger{log: logger.Default()}
	c := cron.New(cron.WithLogger(cronLog), cron.WithChain(cron.Recover(cronLog)))

	for _, s := range o.schedules {
		if _, err := c.AddJob(s.Spec, o.job(ctx, s.Sweeper)); err != nil {
			return fmt.Errorf("failed to schedule %s: %w", s.Sweeper.Name(), err)
		}
		logger.InfoCtx(ctx, "Scheduled sweeper",
			zap.String("sweeper", s.Sweeper.Name()),
			zap.String("schedule", s.Spec),
		)
	}

	c.Start()

	select {
	case <-ctx.Done():
		logger.InfoCtx(ctx, "Orchestrator stopping due to context cancellation", zap.Error(ctx.Err()))
	case <-o.stopChan:
		logger.InfoCtx(ctx, "Orchestrator stop requested")
	}

	// Wait for running sweeps; they observe ctx for cancellation
	<-c.Stop().Done()
	return nil
}

// Stop gracefully stops the orchestrator with timeout support
func (o *orchestrator) Stop(ctx context.Context) error {
	if !o.running.Load() {
		return nil
	}

	logger.InfoCtx(ctx, "Stopping orchestrator")

	select {
	case <-o.stopChan:
	default:
		close(o.stopChan)
	}

	select {
	case <-o.stoppedCh:
		logger.InfoCtx(ctx, "Orchestrator stopped gracefully")
		return nil
	case <-ctx.Done():
		logger.WarnCtx(ctx, "Orchestrator stop interrupted by context timeout")
		return ctx.Err()
	}
}

// RunOnce runs one sweep of every phase concurrently
func (o *orchestrator) RunOnce(ctx context.Context) error {
	var g errgroup.Group
	for _, s := range o.schedules {
		g.Go(func() error {
			if _, err := s.Sweeper.Sweep(ctx); err != nil {
				return fmt.Errorf("%s: %w", s.Sweeper.Name(), err)
			}
			return nil
		})
	}
	return g.Wait()
}

// job wraps a sweeper so that a tick arriving while its previous sweep runs is skipped.
// Sweeps of different phases overlap freely.
func (o *orchestrator) job(ctx context.Context, s sweeper.Sweeper) cron.Job {
	run := cron.FuncJob(func() {
		if ctx.Err() != nil {
			return
		}
		if _, err := s.Sweep(ctx); err != nil {
			if errors.Is(err, sweeper.ErrSweepInProgress) || errors.Is(err, context.Canceled) {
				logger.DebugCtx(ctx, "Sweep skipped", zap.String("sweeper", s.Name()), zap.Error(err))
				return
			}
			logger.ErrorCtx(ctx, err, zap.String("sweeper", s.Name()))
		}
	})
	return cron.NewChain(cron.SkipIfStillRunning(cronLogger{log: logger.Default()})).Then(run)
}

// cronLogger adapts zap to the cron.Logger interface
type cronLogger struct {
	log *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
