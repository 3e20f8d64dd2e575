package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/plugin/dbresolver"

	"github.com/feral-file/ff-storefront-indexer/internal/domain"
	"github.com/feral-file/ff-storefront-indexer/internal/store/schema"
)

type pgStore struct {
	db *gorm.DB
}

func hasDBResolver(db *gorm.DB) bool {
	return db != nil && db.Callback().Query().Get("gorm:db_resolver") != nil
}

// NewPGStore creates a new PostgreSQL store instance
func NewPGStore(db *gorm.DB) Store {
	return &pgStore{db: db}
}

// ConfigureConnectionPool configures the connection pool settings for a GORM database connection.
// It accesses the underlying *sql.DB and sets the pool configuration.
// If any of the pool settings are 0 or empty, reasonable defaults are used:
//   - MaxOpenConns: 20 (if 0)
//   - MaxIdleConns: 5 (if 0)
//   - ConnMaxLifetime: 5 minutes (if 0)
//   - ConnMaxIdleTime: 10 minutes (if 0)
func ConfigureConnectionPool(db *gorm.DB, maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	maxOpenConns, maxIdleConns, connMaxLifetime, connMaxIdleTime =
		NormalizeConnectionPoolSettings(maxOpenConns, maxIdleConns, connMaxLifetime, connMaxIdleTime)

	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)

	return nil
}

// NormalizeConnectionPoolSettings applies defaults and clamps pool settings into safe values.
//
// Defaults (when zero):
//   - MaxOpenConns: 20
//   - MaxIdleConns: 5
//   - ConnMaxLifetime: 5 minutes
//   - ConnMaxIdleTime: 10 minutes
//
// Notes:
//   - database/sql treats MaxOpenConns=0 as "unlimited"
//   - database/sql treats MaxIdleConns=0 as "no idle connections"
func NormalizeConnectionPoolSettings(maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) (int, int, time.Duration, time.Duration) {
	// Set defaults if not provided
	if maxOpenConns == 0 {
		maxOpenConns = 20
	}
	if maxIdleConns == 0 {
		maxIdleConns = 5
	}
	if connMaxLifetime == 0 {
		connMaxLifetime = 5 * time.Minute
	}
	if connMaxIdleTime == 0 {
		connMaxIdleTime = 10 * time.Minute
	}

	// Ensure MaxIdleConns doesn't exceed MaxOpenConns
	if maxIdleConns > maxOpenConns {
		maxIdleConns = maxOpenConns
	}

	return maxOpenConns, maxIdleConns, connMaxLifetime, connMaxIdleTime
}

// UseReadReplicas routes read-only queries to the given replicas. Writes and raw
// statements with RETURNING stay on the primary.
func UseReadReplicas(db *gorm.DB, replicaDSNs []string) error {
	if len(replicaDSNs) == 0 {
		return nil
	}

	replicas := make([]gorm.Dialector, 0, len(replicaDSNs))
	for _, dsn := range replicaDSNs {
		replicas = append(replicas, postgres.Open(dsn))
	}

	if err := db.Use(dbresolver.Register(dbresolver.Config{
		Replicas: replicas,
		Policy:   dbresolver.RandomPolicy{},
	})); err != nil {
		return fmt.Errorf("failed to register read replicas: %w", err)
	}
	return nil
}

// phaseColumns names the retry bookkeeping columns of a phase
type phaseColumns struct {
	lastAttempt string
	nextRetryAt string
	retryCount  string
	lastError   string
}

func columnsFor(phase domain.Phase) (phaseColumns, error) {
	switch phase {
	case domain.PhaseVerification:
		return phaseColumns{"last_verification_attempt", "verification_next_retry_at", "verification_retry_count", "verification_last_error"}, nil
	case domain.PhaseHealth:
		return phaseColumns{"last_health_check_attempt", "health_next_retry_at", "health_retry_count", "health_last_error"}, nil
	case domain.PhaseClassification:
		return phaseColumns{"last_classification_attempt", "classification_next_retry_at", "classification_retry_count", "classification_last_error"}, nil
	}
	return phaseColumns{}, fmt.Errorf("%w: unknown phase %q", domain.ErrInvalidInput, phase)
}

// attemptUpdates returns the column assignments recording an attempt
func (c phaseColumns) attemptUpdates(attempt Attempt) map[string]any {
	updates := map[string]any{
		c.lastAttempt: attempt.At,
		c.nextRetryAt: attempt.NextRetryAt,
		c.lastError:   attempt.Error,
		"updated_at":  attempt.At,
	}
	if attempt.Failed {
		updates[c.retryCount] = gorm.Expr(c.retryCount + " + 1")
	} else {
		updates[c.retryCount] = 0
	}
	return updates
}

var verifiedStatuses = []domain.PlatformStatus{domain.PlatformStatusConfirmed, domain.PlatformStatusProbable}

// Ping checks that the database is reachable
func (s *pgStore) Ping(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Exec("SELECT 1").Error; err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return nil
}

// UpsertCandidate inserts a new candidate or merges the source's metadata bag into an existing one.
// The insert and the merge are a single statement so concurrent submissions of the same URL
// never produce duplicate rows nor lose a source's metadata.
func (s *pgStore) UpsertCandidate(ctx context.Context, input UpsertCandidateInput) (*UpsertCandidateResult, error) {
	metadata := input.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	bag, err := json.Marshal(map[string]any{input.Source: metadata})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal discovery metadata: %w", err)
	}

	query := `
		INSERT INTO candidates (
			id, url, dedup_key, host, discovery_source, discovery_metadata, discovered_at,
			platform_signals, category_scores, behavioral_tags,
			verification_next_retry_at, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, '{}'::jsonb, '{}'::jsonb, '[]'::jsonb, ?, ?, ?)
		ON CONFLICT (dedup_key) DO UPDATE SET
			discovery_metadata = candidates.discovery_metadata || EXCLUDED.discovery_metadata,
			verification_next_retry_at = CASE
				WHEN candidates.last_verification_attempt IS NULL
					THEN COALESCE(candidates.verification_next_retry_at, EXCLUDED.verification_next_retry_at)
				ELSE candidates.verification_next_retry_at
			END,
			updated_at = EXCLUDED.updated_at
		RETURNING id, (xmax = 0) AS created`

	var result UpsertCandidateResult
	err = s.db.WithContext(ctx).
		Clauses(dbresolver.Write).
		Raw(query,
			input.ID, input.URL, input.DedupKey, input.Host, input.Source, datatypes.JSON(bag), input.DiscoveredAt,
			input.DiscoveredAt, input.DiscoveredAt, input.DiscoveredAt,
		).
		Scan(&result).Error
	if err != nil {
		return nil, fmt.Errorf("failed to upsert candidate: %w", err)
	}

	return &result, nil
}

// GetCandidateByID retrieves a candidate by its ID
func (s *pgStore) GetCandidateByID(ctx context.Context, id string) (*schema.Candidate, error) {
	var candidate schema.Candidate

	err := s.db.WithContext(ctx).Where("id = ?", id).First(&candidate).Error
	if err == nil {
		return &candidate, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to get candidate: %w", err)
	}
	if !hasDBResolver(s.db) {
		return nil, fmt.Errorf("%w: candidate %s", domain.ErrRecordNotFound, id)
	}

	// Replica can lag behind primary; retry on primary before returning not found.
	err = s.db.WithContext(ctx).
		Clauses(dbresolver.Write).
		Where("id = ?", id).
		First(&candidate).Error
	if err == nil {
		return &candidate, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: candidate %s", domain.ErrRecordNotFound, id)
	}
	return nil, fmt.Errorf("failed to get candidate: %w", err)
}

// ListCandidates returns candidates matching the filter, newest first, and the total match count
func (s *pgStore) ListCandidates(ctx context.Context, filter CandidateFilter) ([]schema.Candidate, int64, error) {
	query := s.db.WithContext(ctx).Model(&schema.Candidate{})

	if filter.PlatformStatus != nil {
		query = query.Where("platform_status = ?", *filter.PlatformStatus)
	}
	if filter.HealthStatus != nil {
		query = query.Where("health_status = ?", *filter.HealthStatus)
	}
	if filter.PrimaryCategory != nil {
		query = query.Where("primary_category = ?", *filter.PrimaryCategory)
	}
	if filter.IsActive != nil {
		query = query.Where("is_active = ?", *filter.IsActive)
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count candidates: %w", err)
	}

	query = query.Order("discovered_at DESC, id DESC")
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	var candidates []schema.Candidate
	err := query.Find(&candidates).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list candidates: %w", err)
	}

	return candidates, total, nil
}

// GetCandidatesDue returns candidates whose retry window for the phase has elapsed and whose
// attempt budget is not exhausted, oldest due first. Health checks only consider verified
// candidates and classification only candidates verified at least once.
func (s *pgStore) GetCandidatesDue(ctx context.Context, q DueQuery) ([]schema.Candidate, error) {
	cols, err := columnsFor(q.Phase)
	if err != nil {
		return nil, err
	}

	query := s.db.WithContext(ctx).
		Clauses(dbresolver.Write).
		Where(fmt.Sprintf("(%s IS NULL OR %s <= ?)", cols.nextRetryAt, cols.nextRetryAt), q.Now).
		Where(fmt.Sprintf("%s < ?", cols.retryCount), q.MaxAttempts)

	switch q.Phase {
	case domain.PhaseHealth:
		query = query.Where("platform_status IN ?", verifiedStatuses)
	case domain.PhaseClassification:
		query = query.Where("last_verification_attempt IS NOT NULL")
	}

	var candidates []schema.Candidate
	err = query.
		Order(fmt.Sprintf("%s ASC NULLS FIRST, discovered_at ASC", cols.nextRetryAt)).
		Limit(q.Limit).
		Find(&candidates).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get candidates due for %s: %w", q.Phase, err)
	}

	return candidates, nil
}

// SaveVerificationResult writes verification evidence and attempt bookkeeping.
// is_active is derived from the new platform status and the stored health status.
func (s *pgStore) SaveVerificationResult(ctx context.Context, id string, update VerificationUpdate, attempt Attempt) error {
	signals, err := json.Marshal(update.Signals)
	if err != nil {
		return fmt.Errorf("failed to marshal platform signals: %w", err)
	}

	cols, _ := columnsFor(domain.PhaseVerification)
	updates := cols.attemptUpdates(attempt)
	updates["platform_status"] = update.Status
	updates["platform_confidence"] = update.Confidence
	updates["platform_signals"] = datatypes.JSON(signals)
	updates["is_active"] = gorm.Expr("? AND health_status <> ?", update.Status.IsVerified(), domain.HealthStatusPossiblyInactive)

	return s.updateCandidate(ctx, id, updates)
}

// SaveHealthResult writes health evidence and attempt bookkeeping.
// is_active is derived from the stored platform status and the new health status.
func (s *pgStore) SaveHealthResult(ctx context.Context, id string, update HealthUpdate, attempt Attempt) error {
	cols, _ := columnsFor(domain.PhaseHealth)
	updates := cols.attemptUpdates(attempt)
	updates["health_status"] = update.Status
	updates["is_access_restricted"] = update.IsAccessRestricted
	updates["catalog_size"] = update.CatalogSize
	updates["catalog_size_status"] = update.CatalogSizeStatus
	updates["catalog_size_lower_bound"] = update.CatalogSizeLowerBound
	updates["last_catalog_activity_at"] = update.LastCatalogActivityAt
	updates["content_language"] = update.ContentLanguage
	updates["is_active"] = gorm.Expr("platform_status IN ? AND ?", verifiedStatuses, update.Status != domain.HealthStatusPossiblyInactive)

	return s.updateCandidate(ctx, id, updates)
}

// SaveClassificationResult writes classification scores and attempt bookkeeping.
// The tag lock is checked in the same statement, so an operator lock taken while the
// classification was running still wins.
func (s *pgStore) SaveClassificationResult(ctx context.Context, id string, update ClassificationUpdate, attempt Attempt) error {
	scores, err := json.Marshal(update.Scores)
	if err != nil {
		return fmt.Errorf("failed to marshal category scores: %w", err)
	}
	tags := update.BehavioralTags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("failed to marshal behavioral tags: %w", err)
	}

	var category *string
	if update.PrimaryCategory != nil {
		c := update.PrimaryCategory.String()
		category = &c
	}

	cols, _ := columnsFor(domain.PhaseClassification)
	updates := cols.attemptUpdates(attempt)
	updates["category_scores"] = datatypes.JSON(scores)
	updates["behavioral_tags"] = datatypes.JSON(tagsJSON)
	updates["primary_category"] = gorm.Expr("CASE WHEN tags_locked THEN primary_category ELSE ?::text END", category)
	updates["category_confidence"] = gorm.Expr("CASE WHEN tags_locked THEN category_confidence ELSE ?::double precision END", update.CategoryConfidence)

	return s.updateCandidate(ctx, id, updates)
}

// RecordPhaseFailure writes attempt bookkeeping only
func (s *pgStore) RecordPhaseFailure(ctx context.Context, id string, phase domain.Phase, attempt Attempt) error {
	cols, err := columnsFor(phase)
	if err != nil {
		return err
	}
	return s.updateCandidate(ctx, id, cols.attemptUpdates(attempt))
}

// LockTags freezes the candidate's classification to the given category
func (s *pgStore) LockTags(ctx context.Context, id string, category domain.Category, operatorID string, at time.Time) (*schema.Candidate, error) {
	if !domain.IsValidCategory(category) {
		return nil, fmt.Errorf("%w: unknown category %q", domain.ErrInvalidInput, category)
	}
	if operatorID == "" {
		return nil, fmt.Errorf("%w: operator id is required", domain.ErrInvalidInput)
	}

	return s.updateCandidateReturning(ctx, id, map[string]any{
		"tags_locked":         true,
		"tags_locked_by":      operatorID,
		"tags_locked_at":      at,
		"primary_category":    category.String(),
		"category_confidence": 1.0,
		"updated_at":          at,
	})
}

// UnlockTags releases an operator tag lock and makes the candidate due for classification
func (s *pgStore) UnlockTags(ctx context.Context, id string, at time.Time) (*schema.Candidate, error) {
	return s.updateCandidateReturning(ctx, id, map[string]any{
		"tags_locked":                  false,
		"tags_locked_by":               nil,
		"tags_locked_at":               nil,
		"classification_next_retry_at": at,
		"updated_at":                   at,
	})
}

// ResetRetryBudget clears a phase's retry count and makes the candidate due immediately
func (s *pgStore) ResetRetryBudget(ctx context.Context, id string, phase domain.Phase, at time.Time) (*schema.Candidate, error) {
	cols, err := columnsFor(phase)
	if err != nil {
		return nil, err
	}

	return s.updateCandidateReturning(ctx, id, map[string]any{
		cols.retryCount:  0,
		cols.nextRetryAt: at,
		cols.lastError:   nil,
		"updated_at":     at,
	})
}

func (s *pgStore) updateCandidate(ctx context.Context, id string, updates map[string]any) error {
	result := s.db.WithContext(ctx).
		Model(&schema.Candidate{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update candidate: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: candidate %s", domain.ErrRecordNotFound, id)
	}
	return nil
}

func (s *pgStore) updateCandidateReturning(ctx context.Context, id string, updates map[string]any) (*schema.Candidate, error) {
	var candidate schema.Candidate
	result := s.db.WithContext(ctx).
		Model(&candidate).
		Clauses(clause.Returning{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to update candidate: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, fmt.Errorf("%w: candidate %s", domain.ErrRecordNotFound, id)
	}
	return &candidate, nil
}
