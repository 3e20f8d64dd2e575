package store

import (
	"context"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feral-file/ff-storefront-indexer/internal/domain"
	"github.com/feral-file/ff-storefront-indexer/internal/normalizer"
	"github.com/feral-file/ff-storefront-indexer/internal/store/schema"
)

// =============================================================================
// Test Data Builders
// =============================================================================

// buildTestCandidate creates an upsert input for a raw URL submitted by a source
func buildTestCandidate(t *testing.T, rawURL string, source string) UpsertCandidateInput {
	t.Helper()
	c, err := normalizer.Normalize(rawURL)
	require.NoError(t, err)

	return UpsertCandidateInput{
		ID:           ulid.Make().String(),
		URL:          c.URL,
		DedupKey:     c.DedupKey,
		Host:         c.Host,
		Source:       source,
		Metadata:     map[string]any{domain.METADATA_SUBMITTED_AT_KEY: "2026-01-02T03:04:05Z"},
		DiscoveredAt: testNow(),
	}
}

// testNow returns a timestamp at database precision
func testNow() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// createTestCandidate submits a candidate and returns the stored record
func createTestCandidate(t *testing.T, store Store, rawURL string) *schema.Candidate {
	t.Helper()
	result, err := store.UpsertCandidate(context.Background(), buildTestCandidate(t, rawURL, "test"))
	require.NoError(t, err)
	require.True(t, result.Created)

	candidate, err := store.GetCandidateByID(context.Background(), result.ID)
	require.NoError(t, err)
	return candidate
}

func succeeded(at time.Time, next time.Duration) Attempt {
	return Attempt{At: at, NextRetryAt: at.Add(next)}
}

func failed(at time.Time, next time.Duration, msg string) Attempt {
	return Attempt{At: at, Failed: true, NextRetryAt: at.Add(next), Error: &msg}
}

func confirmedUpdate() VerificationUpdate {
	observedAt := testNow()
	return VerificationUpdate{
		Status:     domain.PlatformStatusConfirmed,
		Confidence: 1.0,
		Signals: schema.PlatformSignals{
			"resource_endpoint": {State: domain.SignalStatePositive, Weight: 0.4, ObservedAt: &observedAt},
			"platform_header":   {State: domain.SignalStatePositive, Weight: 0.3, ObservedAt: &observedAt},
		},
	}
}

// =============================================================================
// Discovery
// =============================================================================

func testUpsertCandidate(t *testing.T, store Store) {
	ctx := context.Background()

	t.Run("new candidate starts unverified and due for verification", func(t *testing.T) {
		input := buildTestCandidate(t, "https://fresh.myshopify.com", "ct-log")
		result, err := store.UpsertCandidate(ctx, input)
		require.NoError(t, err)
		assert.True(t, result.Created)
		assert.Equal(t, input.ID, result.ID)

		candidate, err := store.GetCandidateByID(ctx, result.ID)
		require.NoError(t, err)
		assert.Equal(t, "https://fresh.myshopify.com", candidate.URL)
		assert.Equal(t, "ct-log", candidate.DiscoverySource)
		assert.Equal(t, domain.PlatformStatusUnverified, candidate.PlatformStatus)
		assert.Equal(t, 0.0, candidate.PlatformConfidence)
		assert.Equal(t, domain.HealthStatusUnknown, candidate.HealthStatus)
		assert.Equal(t, domain.CatalogSizeStatusUnknown, candidate.CatalogSizeStatus)
		assert.Nil(t, candidate.CatalogSize)
		assert.Nil(t, candidate.PrimaryCategory)
		assert.Nil(t, candidate.CategoryConfidence)
		assert.False(t, candidate.TagsLocked)
		assert.False(t, candidate.IsActive)
		require.NotNil(t, candidate.VerificationNextRetryAt)
		assert.True(t, candidate.VerificationNextRetryAt.Equal(input.DiscoveredAt))
		assert.Nil(t, candidate.HealthNextRetryAt)

		signals, err := candidate.Signals()
		require.NoError(t, err)
		assert.Empty(t, signals)
		tags, err := candidate.Tags()
		require.NoError(t, err)
		assert.Empty(t, tags)
	})

	t.Run("equivalent URLs from two sources share one record", func(t *testing.T) {
		first, err := store.UpsertCandidate(ctx, buildTestCandidate(t, "https://Example.MyShop.com/?utm=1", "forum"))
		require.NoError(t, err)
		second, err := store.UpsertCandidate(ctx, buildTestCandidate(t, "https://example.myshop.com", "search"))
		require.NoError(t, err)

		assert.True(t, first.Created)
		assert.False(t, second.Created)
		assert.Equal(t, first.ID, second.ID)

		candidate, err := store.GetCandidateByID(ctx, first.ID)
		require.NoError(t, err)
		assert.Equal(t, "forum", candidate.DiscoverySource)
		metadata, err := candidate.Metadata()
		require.NoError(t, err)
		assert.Contains(t, metadata, "forum")
		assert.Contains(t, metadata, "search")
	})

	t.Run("resubmission replaces only the source's own bag", func(t *testing.T) {
		input := buildTestCandidate(t, "https://bags.myshopify.com", "forum")
		input.Metadata = map[string]any{"thread": "a"}
		_, err := store.UpsertCandidate(ctx, input)
		require.NoError(t, err)

		other := buildTestCandidate(t, "https://bags.myshopify.com", "social")
		other.Metadata = map[string]any{"post": "p1"}
		_, err = store.UpsertCandidate(ctx, other)
		require.NoError(t, err)

		again := buildTestCandidate(t, "https://bags.myshopify.com", "forum")
		again.Metadata = map[string]any{"thread": "b"}
		result, err := store.UpsertCandidate(ctx, again)
		require.NoError(t, err)

		candidate, err := store.GetCandidateByID(ctx, result.ID)
		require.NoError(t, err)
		metadata, err := candidate.Metadata()
		require.NoError(t, err)
		assert.Equal(t, "b", metadata["forum"]["thread"])
		assert.Equal(t, "p1", metadata["social"]["post"])
	})

	t.Run("rediscovery never resets confidence fields", func(t *testing.T) {
		candidate := createTestCandidate(t, store, "https://kept.myshopify.com")
		now := testNow()
		require.NoError(t, store.SaveVerificationResult(ctx, candidate.ID, confirmedUpdate(), succeeded(now, 7*24*time.Hour)))

		_, err := store.UpsertCandidate(ctx, buildTestCandidate(t, "https://kept.myshopify.com", "late-feed"))
		require.NoError(t, err)

		got, err := store.GetCandidateByID(ctx, candidate.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.PlatformStatusConfirmed, got.PlatformStatus)
		assert.Equal(t, 1.0, got.PlatformConfidence)
		require.NotNil(t, got.VerificationNextRetryAt)
		assert.True(t, got.VerificationNextRetryAt.Equal(now.Add(7*24*time.Hour)))
	})
}

// =============================================================================
// Reads
// =============================================================================

func testGetCandidateByID(t *testing.T, store Store) {
	ctx := context.Background()

	candidate := createTestCandidate(t, store, "https://lookup.myshopify.com")
	got, err := store.GetCandidateByID(ctx, candidate.ID)
	require.NoError(t, err)
	assert.Equal(t, candidate.URL, got.URL)

	_, err = store.GetCandidateByID(ctx, ulid.Make().String())
	assert.ErrorIs(t, err, domain.ErrRecordNotFound)
}

func testListCandidates(t *testing.T, store Store) {
	ctx := context.Background()
	now := testNow()

	active := createTestCandidate(t, store, "https://list-active.myshopify.com")
	require.NoError(t, store.SaveVerificationResult(ctx, active.ID, confirmedUpdate(), succeeded(now, time.Hour)))
	require.NoError(t, store.SaveHealthResult(ctx, active.ID, HealthUpdate{
		Status:            domain.HealthStatusHealthy,
		CatalogSizeStatus: domain.CatalogSizeStatusUnknown,
	}, succeeded(now, time.Hour)))

	closed := createTestCandidate(t, store, "https://list-closed.myshopify.com")
	require.NoError(t, store.SaveVerificationResult(ctx, closed.ID, confirmedUpdate(), succeeded(now, time.Hour)))
	require.NoError(t, store.SaveHealthResult(ctx, closed.ID, HealthUpdate{
		Status:            domain.HealthStatusPossiblyInactive,
		CatalogSizeStatus: domain.CatalogSizeStatusUnknown,
	}, succeeded(now, time.Hour)))

	createTestCandidate(t, store, "https://list-new.example.com")

	isActive := true
	candidates, total, err := store.ListCandidates(ctx, CandidateFilter{IsActive: &isActive, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, candidates, 1)
	assert.Equal(t, active.ID, candidates[0].ID)

	inactive := domain.HealthStatusPossiblyInactive
	candidates, total, err = store.ListCandidates(ctx, CandidateFilter{HealthStatus: &inactive, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, candidates, 1)
	assert.Equal(t, closed.ID, candidates[0].ID)

	confirmed := domain.PlatformStatusConfirmed
	candidates, total, err = store.ListCandidates(ctx, CandidateFilter{PlatformStatus: &confirmed, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, candidates, 1)

	candidates, _, err = store.ListCandidates(ctx, CandidateFilter{PlatformStatus: &confirmed, Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Len(t, candidates, 1)

	category := domain.CategoryDTCBrand
	candidates, total, err = store.ListCandidates(ctx, CandidateFilter{PrimaryCategory: &category, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)
	assert.Empty(t, candidates)
}

// =============================================================================
// Sweep eligibility
// =============================================================================

func testGetCandidatesDue(t *testing.T, store Store) {
	ctx := context.Background()
	now := testNow()

	due := createTestCandidate(t, store, "https://due.myshopify.com")
	later := createTestCandidate(t, store, "https://later.myshopify.com")
	exhausted := createTestCandidate(t, store, "https://exhausted.myshopify.com")

	require.NoError(t, store.SaveVerificationResult(ctx, later.ID, confirmedUpdate(), succeeded(now, time.Hour)))
	for i := 0; i < 3; i++ {
		require.NoError(t, store.RecordPhaseFailure(ctx, exhausted.ID, domain.PhaseVerification, failed(now, -time.Minute, "timeout")))
	}

	t.Run("verification", func(t *testing.T) {
		candidates, err := store.GetCandidatesDue(ctx, DueQuery{
			Phase:       domain.PhaseVerification,
			Now:         now.Add(time.Second),
			MaxAttempts: 3,
			Limit:       100,
		})
		require.NoError(t, err)
		ids := candidateIDs(candidates)
		assert.Contains(t, ids, due.ID)
		assert.NotContains(t, ids, later.ID)
		assert.NotContains(t, ids, exhausted.ID)
	})

	t.Run("health only considers verified candidates", func(t *testing.T) {
		candidates, err := store.GetCandidatesDue(ctx, DueQuery{
			Phase:       domain.PhaseHealth,
			Now:         now,
			MaxAttempts: 10,
			Limit:       100,
		})
		require.NoError(t, err)
		ids := candidateIDs(candidates)
		assert.Contains(t, ids, later.ID)
		assert.NotContains(t, ids, due.ID)
		assert.NotContains(t, ids, exhausted.ID)
	})

	t.Run("classification needs a verification attempt", func(t *testing.T) {
		candidates, err := store.GetCandidatesDue(ctx, DueQuery{
			Phase:       domain.PhaseClassification,
			Now:         now,
			MaxAttempts: 10,
			Limit:       100,
		})
		require.NoError(t, err)
		ids := candidateIDs(candidates)
		assert.Contains(t, ids, later.ID)
		assert.Contains(t, ids, exhausted.ID)
		assert.NotContains(t, ids, due.ID)
	})

	t.Run("limit", func(t *testing.T) {
		candidates, err := store.GetCandidatesDue(ctx, DueQuery{
			Phase:       domain.PhaseClassification,
			Now:         now,
			MaxAttempts: 10,
			Limit:       1,
		})
		require.NoError(t, err)
		assert.Len(t, candidates, 1)
	})

	t.Run("unknown phase", func(t *testing.T) {
		_, err := store.GetCandidatesDue(ctx, DueQuery{Phase: "discovery", Now: now, MaxAttempts: 1, Limit: 1})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}

func candidateIDs(candidates []schema.Candidate) []string {
	ids := make([]string, 0, len(candidates))
	for _, c := range candidates {
		ids = append(ids, c.ID)
	}
	return ids
}

// =============================================================================
// Phase writes
// =============================================================================

func testSaveVerificationResult(t *testing.T, store Store) {
	ctx := context.Background()
	now := testNow()

	t.Run("success resets retry count", func(t *testing.T) {
		candidate := createTestCandidate(t, store, "https://verify.myshopify.com")
		require.NoError(t, store.RecordPhaseFailure(ctx, candidate.ID, domain.PhaseVerification, failed(now, time.Minute, "dns")))
		require.NoError(t, store.SaveVerificationResult(ctx, candidate.ID, confirmedUpdate(), succeeded(now, 7*24*time.Hour)))

		got, err := store.GetCandidateByID(ctx, candidate.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.PlatformStatusConfirmed, got.PlatformStatus)
		assert.Equal(t, 1.0, got.PlatformConfidence)
		assert.Equal(t, 0, got.VerificationRetryCount)
		assert.Nil(t, got.VerificationLastError)
		require.NotNil(t, got.LastVerificationAttempt)
		assert.True(t, got.LastVerificationAttempt.Equal(now))
		assert.True(t, got.IsActive)

		signals, err := got.Signals()
		require.NoError(t, err)
		assert.Equal(t, domain.SignalStatePositive, signals["resource_endpoint"].State)
		assert.Equal(t, 0.4, signals["resource_endpoint"].Weight)
	})

	t.Run("failure increments retry count and keeps the error", func(t *testing.T) {
		candidate := createTestCandidate(t, store, "https://verify-fail.myshopify.com")
		update := VerificationUpdate{Status: domain.PlatformStatusUnverified, Signals: schema.PlatformSignals{}}
		require.NoError(t, store.SaveVerificationResult(ctx, candidate.ID, update, failed(now, time.Minute, "timeout")))
		require.NoError(t, store.SaveVerificationResult(ctx, candidate.ID, update, failed(now, 2*time.Minute, "timeout")))

		got, err := store.GetCandidateByID(ctx, candidate.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, got.VerificationRetryCount)
		require.NotNil(t, got.VerificationLastError)
		assert.Equal(t, "timeout", *got.VerificationLastError)
		require.NotNil(t, got.VerificationNextRetryAt)
		assert.True(t, got.VerificationNextRetryAt.Equal(now.Add(2*time.Minute)))
		assert.False(t, got.IsActive)
	})

	t.Run("missing record", func(t *testing.T) {
		err := store.SaveVerificationResult(ctx, ulid.Make().String(), confirmedUpdate(), succeeded(now, time.Hour))
		assert.ErrorIs(t, err, domain.ErrRecordNotFound)
	})
}

func testSaveHealthResult(t *testing.T, store Store) {
	ctx := context.Background()
	now := testNow()

	candidate := createTestCandidate(t, store, "https://health.myshopify.com")
	require.NoError(t, store.SaveVerificationResult(ctx, candidate.ID, confirmedUpdate(), succeeded(now, time.Hour)))

	size := 42
	language := "eng"
	require.NoError(t, store.SaveHealthResult(ctx, candidate.ID, HealthUpdate{
		Status:                domain.HealthStatusHealthy,
		CatalogSize:           &size,
		CatalogSizeStatus:     domain.CatalogSizeStatusConfirmed,
		LastCatalogActivityAt: &now,
		ContentLanguage:       &language,
	}, succeeded(now, 24*time.Hour)))

	got, err := store.GetCandidateByID(ctx, candidate.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.HealthStatusHealthy, got.HealthStatus)
	require.NotNil(t, got.CatalogSize)
	assert.Equal(t, 42, *got.CatalogSize)
	assert.Equal(t, domain.CatalogSizeStatusConfirmed, got.CatalogSizeStatus)
	require.NotNil(t, got.ContentLanguage)
	assert.Equal(t, "eng", *got.ContentLanguage)
	assert.True(t, got.IsActive)

	t.Run("possibly inactive hides the record", func(t *testing.T) {
		require.NoError(t, store.SaveHealthResult(ctx, candidate.ID, HealthUpdate{
			Status:            domain.HealthStatusPossiblyInactive,
			CatalogSizeStatus: domain.CatalogSizeStatusUnknown,
		}, succeeded(now, 24*time.Hour)))

		got, err := store.GetCandidateByID(ctx, candidate.ID)
		require.NoError(t, err)
		assert.False(t, got.IsActive)
		assert.Nil(t, got.CatalogSize)

		// Reverification keeps the record hidden while the store looks closed
		require.NoError(t, store.SaveVerificationResult(ctx, candidate.ID, confirmedUpdate(), succeeded(now, time.Hour)))
		got, err = store.GetCandidateByID(ctx, candidate.ID)
		require.NoError(t, err)
		assert.False(t, got.IsActive)
	})

	t.Run("consecutive timeouts count retries and keep visibility", func(t *testing.T) {
		candidate := createTestCandidate(t, store, "https://health-timeouts.myshopify.com")
		require.NoError(t, store.SaveVerificationResult(ctx, candidate.ID, confirmedUpdate(), succeeded(now, time.Hour)))

		timedOut := HealthUpdate{
			Status:            domain.HealthStatusUnknown,
			CatalogSizeStatus: domain.CatalogSizeStatusUnknown,
		}
		for _, next := range []time.Duration{time.Minute, 2 * time.Minute, 4 * time.Minute} {
			require.NoError(t, store.SaveHealthResult(ctx, candidate.ID, timedOut, failed(now, next, "timeout")))
		}

		got, err := store.GetCandidateByID(ctx, candidate.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, got.HealthRetryCount)
		assert.Equal(t, domain.HealthStatusUnknown, got.HealthStatus)
		assert.Nil(t, got.CatalogSize)
		assert.True(t, got.IsActive)
		require.NotNil(t, got.HealthNextRetryAt)
		assert.True(t, got.HealthNextRetryAt.Equal(now.Add(4*time.Minute)))
		require.NotNil(t, got.HealthLastError)
		assert.Equal(t, "timeout", *got.HealthLastError)

		// A closed store that times out stays hidden
		require.NoError(t, store.SaveHealthResult(ctx, candidate.ID, HealthUpdate{
			Status:            domain.HealthStatusPossiblyInactive,
			CatalogSizeStatus: domain.CatalogSizeStatusUnknown,
		}, succeeded(now, 24*time.Hour)))
		got, err = store.GetCandidateByID(ctx, candidate.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, got.HealthRetryCount)
		assert.False(t, got.IsActive)

		for _, next := range []time.Duration{time.Minute, 2 * time.Minute, 4 * time.Minute} {
			require.NoError(t, store.SaveHealthResult(ctx, candidate.ID, HealthUpdate{
				Status:            domain.HealthStatusPossiblyInactive,
				CatalogSizeStatus: domain.CatalogSizeStatusUnknown,
			}, failed(now, next, "timeout")))
		}
		got, err = store.GetCandidateByID(ctx, candidate.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, got.HealthRetryCount)
		assert.Equal(t, domain.HealthStatusPossiblyInactive, got.HealthStatus)
		assert.False(t, got.IsActive)
	})

	t.Run("a catalog size is only stored when confirmed", func(t *testing.T) {
		bogus := 0
		err := store.SaveHealthResult(ctx, candidate.ID, HealthUpdate{
			Status:            domain.HealthStatusUnknown,
			CatalogSize:       &bogus,
			CatalogSizeStatus: domain.CatalogSizeStatusUnknown,
		}, failed(now, time.Minute, "timeout"))
		assert.Error(t, err)
	})
}

func testSaveClassificationResult(t *testing.T, store Store) {
	ctx := context.Background()
	now := testNow()

	t.Run("assigns a category above the floor", func(t *testing.T) {
		candidate := createTestCandidate(t, store, "https://classify.myshopify.com")
		category := domain.CategoryPrintOnDemand
		confidence := 0.82
		require.NoError(t, store.SaveClassificationResult(ctx, candidate.ID, ClassificationUpdate{
			Scores:             schema.CategoryScores{domain.CategoryPrintOnDemand: 0.82, domain.CategoryDTCBrand: 0.3},
			PrimaryCategory:    &category,
			CategoryConfidence: &confidence,
			BehavioralTags:     []string{"runs_paid_ads"},
		}, succeeded(now, time.Hour)))

		got, err := store.GetCandidateByID(ctx, candidate.ID)
		require.NoError(t, err)
		require.NotNil(t, got.PrimaryCategory)
		assert.Equal(t, domain.CategoryPrintOnDemand, *got.PrimaryCategory)
		require.NotNil(t, got.CategoryConfidence)
		assert.Equal(t, 0.82, *got.CategoryConfidence)
		tags, err := got.Tags()
		require.NoError(t, err)
		assert.Equal(t, []string{"runs_paid_ads"}, tags)
	})

	t.Run("below the floor stays unclassified with scores kept", func(t *testing.T) {
		candidate := createTestCandidate(t, store, "https://unclassified.myshopify.com")
		confidence := 0.65
		require.NoError(t, store.SaveClassificationResult(ctx, candidate.ID, ClassificationUpdate{
			Scores:             schema.CategoryScores{domain.CategoryDropshipping: 0.65, domain.CategorySubscription: 0.5},
			CategoryConfidence: &confidence,
		}, succeeded(now, time.Hour)))

		got, err := store.GetCandidateByID(ctx, candidate.ID)
		require.NoError(t, err)
		assert.Nil(t, got.PrimaryCategory)
		scores, err := got.Scores()
		require.NoError(t, err)
		assert.Equal(t, schema.CategoryScores{domain.CategoryDropshipping: 0.65, domain.CategorySubscription: 0.5}, scores)
	})

	t.Run("a locked record keeps its category", func(t *testing.T) {
		candidate := createTestCandidate(t, store, "https://locked.myshopify.com")
		_, err := store.LockTags(ctx, candidate.ID, domain.CategoryWholesaleB2B, "operator-1", now)
		require.NoError(t, err)

		category := domain.CategoryDropshipping
		confidence := 0.95
		require.NoError(t, store.SaveClassificationResult(ctx, candidate.ID, ClassificationUpdate{
			Scores:             schema.CategoryScores{domain.CategoryDropshipping: 0.95},
			PrimaryCategory:    &category,
			CategoryConfidence: &confidence,
		}, succeeded(now, time.Hour)))

		got, err := store.GetCandidateByID(ctx, candidate.ID)
		require.NoError(t, err)
		require.NotNil(t, got.PrimaryCategory)
		assert.Equal(t, domain.CategoryWholesaleB2B, *got.PrimaryCategory)
		assert.Equal(t, 1.0, *got.CategoryConfidence)
		scores, err := got.Scores()
		require.NoError(t, err)
		assert.Equal(t, 0.95, scores[domain.CategoryDropshipping])
	})
}

// =============================================================================
// Operator actions
// =============================================================================

func testTagLock(t *testing.T, store Store) {
	ctx := context.Background()
	now := testNow()
	candidate := createTestCandidate(t, store, "https://lock.myshopify.com")

	locked, err := store.LockTags(ctx, candidate.ID, domain.CategorySubscription, "alice", now)
	require.NoError(t, err)
	assert.True(t, locked.TagsLocked)
	require.NotNil(t, locked.TagsLockedBy)
	assert.Equal(t, "alice", *locked.TagsLockedBy)
	require.NotNil(t, locked.TagsLockedAt)
	assert.True(t, locked.TagsLockedAt.Equal(now))
	require.NotNil(t, locked.PrimaryCategory)
	assert.Equal(t, domain.CategorySubscription, *locked.PrimaryCategory)

	_, err = store.LockTags(ctx, candidate.ID, domain.Category("luxury"), "alice", now)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = store.LockTags(ctx, candidate.ID, domain.CategorySubscription, "", now)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = store.LockTags(ctx, ulid.Make().String(), domain.CategorySubscription, "alice", now)
	assert.ErrorIs(t, err, domain.ErrRecordNotFound)

	unlocked, err := store.UnlockTags(ctx, candidate.ID, now)
	require.NoError(t, err)
	assert.False(t, unlocked.TagsLocked)
	assert.Nil(t, unlocked.TagsLockedBy)
	assert.Nil(t, unlocked.TagsLockedAt)
	require.NotNil(t, unlocked.ClassificationNextRetryAt)
	assert.True(t, unlocked.ClassificationNextRetryAt.Equal(now))
}

func testResetRetryBudget(t *testing.T, store Store) {
	ctx := context.Background()
	now := testNow()
	candidate := createTestCandidate(t, store, "https://reset.myshopify.com")

	for i := 0; i < 4; i++ {
		require.NoError(t, store.RecordPhaseFailure(ctx, candidate.ID, domain.PhaseHealth, failed(now, time.Hour, "rate limited")))
	}

	reset, err := store.ResetRetryBudget(ctx, candidate.ID, domain.PhaseHealth, now)
	require.NoError(t, err)
	assert.Equal(t, 0, reset.HealthRetryCount)
	assert.Nil(t, reset.HealthLastError)
	require.NotNil(t, reset.HealthNextRetryAt)
	assert.True(t, reset.HealthNextRetryAt.Equal(now))

	_, err = store.ResetRetryBudget(ctx, candidate.ID, domain.Phase("discovery"), now)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func testPing(t *testing.T, store Store) {
	assert.NoError(t, store.Ping(context.Background()))
}

// RunStoreTests runs all store tests
func RunStoreTests(t *testing.T, initDB func(t *testing.T) Store, cleanupDB func(t *testing.T)) {
	tests := []struct {
		name string
		fn   func(*testing.T, Store)
	}{
		{"Ping", testPing},
		{"UpsertCandidate", testUpsertCandidate},
		{"GetCandidateByID", testGetCandidateByID},
		{"ListCandidates", testListCandidates},
		{"GetCandidatesDue", testGetCandidatesDue},
		{"SaveVerificationResult", testSaveVerificationResult},
		{"SaveHealthResult", testSaveHealthResult},
		{"SaveClassificationResult", testSaveClassificationResult},
		{"TagLock", testTagLock},
		{"ResetRetryBudget", testResetRetryBudget},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := initDB(t)
			defer cleanupDB(t)
			tt.fn(t, store)
		})
	}
}
