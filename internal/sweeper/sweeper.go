package sweeper

import (
	"context"
	"errors"
	"time"

	"github.com/feral-file/ff-storefront-indexer/internal/domain"
	"github.com/feral-file/ff-storefront-indexer/internal/retry"
)

// ErrSweepInProgress is returned when a sweep of the same phase is still running
var ErrSweepInProgress = errors.New("sweep already in progress")

// Sweeper runs periodic sweeps of a single pipeline phase
//
//go:generate mockgen -source=sweeper.go -destination=../mocks/sweeper.go -package=mocks -mock_names=Sweeper=MockSweeper
type Sweeper interface {
	// Sweep processes the candidates currently due for the phase. It returns once
	// every started record is finished or the sweep budget is exhausted.
	Sweep(ctx context.Context) (*Stats, error)

	// Phase returns the phase the sweeper runs
	Phase() domain.Phase

	// Name returns the sweeper's name for logging and identification
	Name() string
}

// Config holds the sweep configuration of a phase
type Config struct {
	WorkerPoolSize int           // Concurrent workers
	BatchSize      int           // Candidates loaded per sweep
	SweepBudget    time.Duration // Wall-clock budget of one sweep
	RecheckAfter   time.Duration // Delay before a successful phase runs again
	MaxAttempts    int           // Consecutive failures after which a candidate is no longer swept
	Retry          retry.Policy

	BreakerMaxFailures uint32        // Consecutive store failures that open the breaker
	BreakerOpenTimeout time.Duration // Time the breaker stays open before probing again
}

// Stats summarizes a sweep
type Stats struct {
	SweepID   string
	Phase     domain.Phase
	Due       int
	Succeeded int
	Failed    int
	Skipped   int
	Abandoned int
	Duration  time.Duration
}
