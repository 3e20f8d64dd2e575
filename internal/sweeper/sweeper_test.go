package sweeper_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feral-file/ff-storefront-indexer/internal/classification"
	"github.com/feral-file/ff-storefront-indexer/internal/domain"
	"github.com/feral-file/ff-storefront-indexer/internal/health"
	"github.com/feral-file/ff-storefront-indexer/internal/mocks"
	"github.com/feral-file/ff-storefront-indexer/internal/retry"
	"github.com/feral-file/ff-storefront-indexer/internal/store"
	"github.com/feral-file/ff-storefront-indexer/internal/store/schema"
	"github.com/feral-file/ff-storefront-indexer/internal/sweeper"
	"github.com/feral-file/ff-storefront-indexer/internal/verification"
)

var now = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

// testSweeperMocks contains all the mocks needed for testing the sweepers
type testSweeperMocks struct {
	ctrl           *gomock.Controller
	store          *mocks.MockStore
	clock          *mocks.MockClock
	verification   *mocks.MockVerificationEngine
	health         *mocks.MockHealthEngine
	classification *mocks.MockClassificationEngine
}

func setupTestSweeper(t *testing.T) *testSweeperMocks {
	ctrl := gomock.NewController(t)

	tm := &testSweeperMocks{
		ctrl:           ctrl,
		store:          mocks.NewMockStore(ctrl),
		clock:          mocks.NewMockClock(ctrl),
		verification:   mocks.NewMockVerificationEngine(ctrl),
		health:         mocks.NewMockHealthEngine(ctrl),
		classification: mocks.NewMockClassificationEngine(ctrl),
	}
	tm.clock.EXPECT().Now().Return(now).AnyTimes()
	tm.clock.EXPECT().Since(gomock.Any()).Return(time.Second).AnyTimes()

	return tm
}

func testConfig() sweeper.Config {
	return sweeper.Config{
		WorkerPoolSize:     2,
		BatchSize:          10,
		SweepBudget:        time.Minute,
		RecheckAfter:       24 * time.Hour,
		MaxAttempts:        10,
		Retry:              retry.Policy{Base: time.Minute, Cap: time.Hour},
		BreakerMaxFailures: 2,
		BreakerOpenTimeout: time.Hour,
	}
}

func candidate(id string) schema.Candidate {
	return schema.Candidate{
		ID:             id,
		URL:            "https://" + id + ".myshopify.com",
		PlatformStatus: domain.PlatformStatusConfirmed,
	}
}

func ptr[T any](v T) *T {
	return &v
}

func (tm *testSweeperMocks) expectDue(phase domain.Phase, candidates ...schema.Candidate) {
	tm.store.EXPECT().Ping(gomock.Any()).Return(nil)
	tm.store.EXPECT().GetCandidatesDue(gomock.Any(), store.DueQuery{
		Phase:       phase,
		Now:         now,
		MaxAttempts: 10,
		Limit:       10,
	}).Return(candidates, nil)
}

func TestPhaseSweeper_Names(t *testing.T) {
	tm := setupTestSweeper(t)
	defer tm.ctrl.Finish()

	v := sweeper.NewVerificationSweeper(testConfig(), tm.store, tm.verification, tm.clock)
	h := sweeper.NewHealthSweeper(testConfig(), tm.store, tm.health, tm.clock)
	c := sweeper.NewClassificationSweeper(testConfig(), tm.store, tm.classification, tm.clock)

	assert.Equal(t, "verification-sweeper", v.Name())
	assert.Equal(t, domain.PhaseVerification, v.Phase())
	assert.Equal(t, "health-sweeper", h.Name())
	assert.Equal(t, domain.PhaseHealth, h.Phase())
	assert.Equal(t, "classification-sweeper", c.Name())
	assert.Equal(t, domain.PhaseClassification, c.Phase())
}

func TestVerificationSweeper_SuccessAndProbeFailure(t *testing.T) {
	tm := setupTestSweeper(t)
	defer tm.ctrl.Finish()

	healthy := candidate("healthy")
	flaky := candidate("flaky")
	flaky.VerificationRetryCount = 2

	tm.expectDue(domain.PhaseVerification, healthy, flaky)

	healthyUpdate := store.VerificationUpdate{Status: domain.PlatformStatusConfirmed, Confidence: 1}
	flakyUpdate := store.VerificationUpdate{Status: domain.PlatformStatusProbable, Confidence: 0.5556}

	tm.verification.EXPECT().Verify(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, c *schema.Candidate) (*verification.Result, error) {
			if c.ID == "flaky" {
				return &verification.Result{Update: flakyUpdate, Failure: errors.New("homepage timed out")}, nil
			}
			return &verification.Result{Update: healthyUpdate}, nil
		}).Times(2)

	tm.store.EXPECT().SaveVerificationResult(gomock.Any(), "healthy", healthyUpdate, store.Attempt{
		At:          now,
		NextRetryAt: now.Add(24 * time.Hour),
	}).Return(nil)
	tm.store.EXPECT().SaveVerificationResult(gomock.Any(), "flaky", flakyUpdate, store.Attempt{
		At:          now,
		Failed:      true,
		NextRetryAt: now.Add(4 * time.Minute),
		Error:       ptr("homepage timed out"),
	}).Return(nil)

	s := sweeper.NewVerificationSweeper(testConfig(), tm.store, tm.verification, tm.clock)
	stats, err := s.Sweep(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, stats.SweepID)
	assert.Equal(t, domain.PhaseVerification, stats.Phase)
	assert.Equal(t, 2, stats.Due)
	assert.Equal(t, 1, stats.Succeeded)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 0, stats.Abandoned)
}

func TestVerificationSweeper_ConfigurationErrorWritesNothing(t *testing.T) {
	tm := setupTestSweeper(t)
	defer tm.ctrl.Finish()

	tm.expectDue(domain.PhaseVerification, candidate("a"))
	tm.verification.EXPECT().Verify(gomock.Any(), gomock.Any()).
		Return(nil, fmt.Errorf("%w: platform registry has no signals", domain.ErrConfiguration))

	s := sweeper.NewVerificationSweeper(testConfig(), tm.store, tm.verification, tm.clock)
	stats, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, 0, stats.Failed)
}

func TestVerificationSweeper_EngineErrorRecordsFailure(t *testing.T) {
	tm := setupTestSweeper(t)
	defer tm.ctrl.Finish()

	tm.expectDue(domain.PhaseVerification, candidate("a"))
	tm.verification.EXPECT().Verify(gomock.Any(), gomock.Any()).Return(nil, errors.New("unexpected"))
	tm.store.EXPECT().RecordPhaseFailure(gomock.Any(), "a", domain.PhaseVerification, store.Attempt{
		At:          now,
		Failed:      true,
		NextRetryAt: now.Add(time.Minute),
		Error:       ptr("unexpected"),
	}).Return(nil)

	s := sweeper.NewVerificationSweeper(testConfig(), tm.store, tm.verification, tm.clock)
	stats, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Failed)
}

func TestHealthSweeper_NotEligibleIsSkipped(t *testing.T) {
	tm := setupTestSweeper(t)
	defer tm.ctrl.Finish()

	tm.expectDue(domain.PhaseHealth, candidate("a"))
	tm.health.EXPECT().CheckHealth(gomock.Any(), gomock.Any()).
		Return(nil, fmt.Errorf("%w: platform status unverified", health.ErrNotEligible))

	s := sweeper.NewHealthSweeper(testConfig(), tm.store, tm.health, tm.clock)
	stats, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Skipped)
}

func TestHealthSweeper_SavesUpdate(t *testing.T) {
	tm := setupTestSweeper(t)
	defer tm.ctrl.Finish()

	update := store.HealthUpdate{
		Status:            domain.HealthStatusHealthy,
		CatalogSize:       ptr(12),
		CatalogSizeStatus: domain.CatalogSizeStatusConfirmed,
	}
	tm.expectDue(domain.PhaseHealth, candidate("a"))
	tm.health.EXPECT().CheckHealth(gomock.Any(), gomock.Any()).Return(&health.Result{Update: update}, nil)
	tm.store.EXPECT().SaveHealthResult(gomock.Any(), "a", update, store.Attempt{
		At:          now,
		NextRetryAt: now.Add(24 * time.Hour),
	}).Return(nil)

	s := sweeper.NewHealthSweeper(testConfig(), tm.store, tm.health, tm.clock)
	stats, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Succeeded)
}

func TestHealthSweeper_ConsecutiveTimeoutsBackOff(t *testing.T) {
	tm := setupTestSweeper(t)
	defer tm.ctrl.Finish()

	cfg := testConfig()
	cfg.Retry = retry.Policy{Base: time.Minute, Cap: 3 * time.Minute}
	s := sweeper.NewHealthSweeper(cfg, tm.store, tm.health, tm.clock)

	timedOut := store.HealthUpdate{
		Status:            domain.HealthStatusPossiblyInactive,
		CatalogSizeStatus: domain.CatalogSizeStatusUnknown,
	}
	failure := fmt.Errorf("homepage: %w: context deadline exceeded", domain.ErrProbeFailure)

	// Base doubles per stored retry until the cap
	delays := []time.Duration{time.Minute, 2 * time.Minute, 3 * time.Minute}
	for retryCount, delay := range delays {
		due := candidate("closed")
		due.HealthStatus = domain.HealthStatusPossiblyInactive
		due.HealthRetryCount = retryCount

		tm.expectDue(domain.PhaseHealth, due)
		tm.health.EXPECT().CheckHealth(gomock.Any(), gomock.Any()).
			Return(&health.Result{Update: timedOut, Failure: failure}, nil)
		tm.store.EXPECT().SaveHealthResult(gomock.Any(), "closed", timedOut, store.Attempt{
			At:          now,
			Failed:      true,
			NextRetryAt: now.Add(delay),
			Error:       ptr(failure.Error()),
		}).Return(nil)

		stats, err := s.Sweep(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Failed)
		assert.Equal(t, 0, stats.Succeeded)
	}
}

func TestClassificationSweeper_StoreErrorCountsAsFailure(t *testing.T) {
	tm := setupTestSweeper(t)
	defer tm.ctrl.Finish()

	tm.expectDue(domain.PhaseClassification, candidate("a"))
	tm.classification.EXPECT().Classify(gomock.Any(), gomock.Any()).
		Return(&classification.Result{Update: store.ClassificationUpdate{Scores: schema.CategoryScores{}}}, nil)
	tm.store.EXPECT().SaveClassificationResult(gomock.Any(), "a", gomock.Any(), gomock.Any()).
		Return(fmt.Errorf("%w: connection reset", domain.ErrStoreUnavailable))

	s := sweeper.NewClassificationSweeper(testConfig(), tm.store, tm.classification, tm.clock)
	stats, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 0, stats.Succeeded)
}

func TestPhaseSweeper_NothingDue(t *testing.T) {
	tm := setupTestSweeper(t)
	defer tm.ctrl.Finish()

	tm.expectDue(domain.PhaseVerification)

	s := sweeper.NewVerificationSweeper(testConfig(), tm.store, tm.verification, tm.clock)
	stats, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Due)
}

func TestPhaseSweeper_BreakerOpensOnStoreFailures(t *testing.T) {
	tm := setupTestSweeper(t)
	defer tm.ctrl.Finish()

	tm.store.EXPECT().Ping(gomock.Any()).Return(fmt.Errorf("%w: dial tcp: refused", domain.ErrStoreUnavailable)).Times(2)

	s := sweeper.NewVerificationSweeper(testConfig(), tm.store, tm.verification, tm.clock)
	for i := 0; i < 2; i++ {
		_, err := s.Sweep(context.Background())
		require.Error(t, err)
	}

	// The breaker is open: the store is not contacted
	_, err := s.Sweep(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrStoreUnavailable))
	assert.Contains(t, err.Error(), "circuit breaker")
}

func TestPhaseSweeper_BudgetAbandonsRemainingRecords(t *testing.T) {
	tm := setupTestSweeper(t)
	defer tm.ctrl.Finish()

	tm.expectDue(domain.PhaseVerification, candidate("a"), candidate("b"), candidate("c"))
	tm.verification.EXPECT().Verify(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, _ *schema.Candidate) (*verification.Result, error) {
			<-ctx.Done()
			return &verification.Result{Failure: ctx.Err()}, nil
		}).Times(1)

	cfg := testConfig()
	cfg.WorkerPoolSize = 1
	cfg.SweepBudget = 50 * time.Millisecond

	s := sweeper.NewVerificationSweeper(cfg, tm.store, tm.verification, tm.clock)
	stats, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Due)
	assert.Equal(t, 3, stats.Abandoned)
	assert.Equal(t, 0, stats.Succeeded+stats.Failed+stats.Skipped)
}

func TestPhaseSweeper_RejectsOverlappingSweep(t *testing.T) {
	tm := setupTestSweeper(t)
	defer tm.ctrl.Finish()

	entered := make(chan struct{})
	release := make(chan struct{})
	tm.store.EXPECT().Ping(gomock.Any()).Return(nil)
	tm.store.EXPECT().GetCandidatesDue(gomock.Any(), gomock.Any()).DoAndReturn(
		func(context.Context, store.DueQuery) ([]schema.Candidate, error) {
			close(entered)
			<-release
			return nil, nil
		})

	s := sweeper.NewVerificationSweeper(testConfig(), tm.store, tm.verification, tm.clock)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := s.Sweep(context.Background())
		assert.NoError(t, err)
	}()

	<-entered
	_, err := s.Sweep(context.Background())
	assert.ErrorIs(t, err, sweeper.ErrSweepInProgress)

	close(release)
	wg.Wait()
}
