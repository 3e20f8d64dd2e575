package store

import (
	"context"
	"time"

	"github.com/feral-file/ff-storefront-indexer/internal/domain"
	"github.com/feral-file/ff-storefront-indexer/internal/store/schema"
)

// UpsertCandidateInput represents the data required to submit a discovered candidate
type UpsertCandidateInput struct {
	ID       string
	URL      string
	DedupKey string
	Host     string
	Source   string
	// Metadata is the feed's metadata bag, stored under the source key
	Metadata     map[string]any
	DiscoveredAt time.Time
}

// UpsertCandidateResult is the outcome of a discovery upsert
type UpsertCandidateResult struct {
	ID      string `gorm:"column:id"`
	Created bool   `gorm:"column:created"`
}

// Attempt is the retry bookkeeping written together with a phase result
type Attempt struct {
	At          time.Time
	Failed      bool
	NextRetryAt time.Time
	// Error is the failure recorded for operators, nil on success
	Error *string
}

// VerificationUpdate holds the verification columns of a candidate
type VerificationUpdate struct {
	Status     domain.PlatformStatus
	Confidence float64
	Signals    schema.PlatformSignals
}

// HealthUpdate holds the health columns of a candidate
type HealthUpdate struct {
	Status                domain.HealthStatus
	IsAccessRestricted    bool
	CatalogSize           *int
	CatalogSizeStatus     domain.CatalogSizeStatus
	CatalogSizeLowerBound *int
	LastCatalogActivityAt *time.Time
	ContentLanguage       *string
}

// ClassificationUpdate holds the classification columns of a candidate.
// PrimaryCategory and CategoryConfidence are ignored while tags are locked.
type ClassificationUpdate struct {
	Scores             schema.CategoryScores
	PrimaryCategory    *domain.Category
	CategoryConfidence *float64
	BehavioralTags     []string
}

// CandidateFilter is the read-only query surface over candidates
type CandidateFilter struct {
	PlatformStatus  *domain.PlatformStatus
	HealthStatus    *domain.HealthStatus
	PrimaryCategory *domain.Category
	IsActive        *bool
	Limit           int
	Offset          int
}

// DueQuery selects candidates eligible for a phase sweep
type DueQuery struct {
	Phase       domain.Phase
	Now         time.Time
	MaxAttempts int
	Limit       int
}

// Store defines the interface for database operations
//
//go:generate mockgen -source=store.go -destination=../mocks/store.go -package=mocks -mock_names=Store=MockStore
type Store interface {
	// Ping checks that the database is reachable
	Ping(ctx context.Context) error

	// UpsertCandidate inserts a new candidate or merges the metadata of an existing one
	UpsertCandidate(ctx context.Context, input UpsertCandidateInput) (*UpsertCandidateResult, error)
	// GetCandidateByID retrieves a candidate by its ID
	GetCandidateByID(ctx context.Context, id string) (*schema.Candidate, error)
	// ListCandidates returns candidates matching the filter and the total match count
	ListCandidates(ctx context.Context, filter CandidateFilter) ([]schema.Candidate, int64, error)
	// GetCandidatesDue returns candidates whose retry window for the phase has elapsed, oldest due first
	GetCandidatesDue(ctx context.Context, query DueQuery) ([]schema.Candidate, error)

	// SaveVerificationResult writes verification evidence and attempt bookkeeping in one statement
	SaveVerificationResult(ctx context.Context, id string, update VerificationUpdate, attempt Attempt) error
	// SaveHealthResult writes health evidence and attempt bookkeeping in one statement
	SaveHealthResult(ctx context.Context, id string, update HealthUpdate, attempt Attempt) error
	// SaveClassificationResult writes classification scores and attempt bookkeeping in one statement
	SaveClassificationResult(ctx context.Context, id string, update ClassificationUpdate, attempt Attempt) error
	// RecordPhaseFailure writes attempt bookkeeping only, leaving evidence untouched
	RecordPhaseFailure(ctx context.Context, id string, phase domain.Phase, attempt Attempt) error

	// LockTags freezes the candidate's classification to the given category
	LockTags(ctx context.Context, id string, category domain.Category, operatorID string, at time.Time) (*schema.Candidate, error)
	// UnlockTags releases an operator tag lock
	UnlockTags(ctx context.Context, id string, at time.Time) (*schema.Candidate, error)
	// ResetRetryBudget clears a phase's retry count and makes the candidate due immediately
	ResetRetryBudget(ctx context.Context, id string, phase domain.Phase, at time.Time) (*schema.Candidate, error)
}
