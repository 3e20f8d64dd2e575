package schema

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"

	"github.com/feral-file/ff-storefront-indexer/internal/domain"
)

// SignalEvidence is the stored observation of a single platform signal
type SignalEvidence struct {
	State      domain.SignalState `json:"state"`
	Weight     float64            `json:"weight"`
	ObservedAt *time.Time         `json:"observed_at,omitempty"`
	Detail     string             `json:"detail,omitempty"`
	// Stale marks a value carried forward from an earlier run because the signal was unobservable
	Stale bool `json:"stale,omitempty"`
}

// PlatformSignals maps a signal name to its stored evidence
type PlatformSignals map[string]SignalEvidence

// CategoryScores maps a taxonomy category to its raw score
type CategoryScores map[domain.Category]float64

// Candidate represents the candidates table
// One row per normalized storefront URL, mutated independently by every phase
type Candidate struct {
	// ID is a ULID assigned at discovery
	ID string `gorm:"column:id;primaryKey;type:text"`

	// URL is the normalized storefront URL
	URL string `gorm:"column:url;not null;type:text;uniqueIndex"`

	// DedupKey is the SHA-256 of URL and the conflict target of discovery upserts
	DedupKey string `gorm:"column:dedup_key;not null;type:text;uniqueIndex"`

	// Host is the lowercased hostname of URL
	Host string `gorm:"column:host;not null;type:text"`

	// DiscoverySource is the feed that first submitted the candidate
	DiscoverySource string `gorm:"column:discovery_source;not null;type:text"`

	// DiscoveryMetadata holds one metadata bag per source: {"<source>": {...}}
	DiscoveryMetadata datatypes.JSON `gorm:"column:discovery_metadata;not null;type:jsonb"`

	DiscoveredAt time.Time `gorm:"column:discovered_at;not null;default:now();type:timestamptz"`

	// Verification
	PlatformStatus     domain.PlatformStatus `gorm:"column:platform_status;not null;type:platform_status;default:unverified"`
	PlatformConfidence float64               `gorm:"column:platform_confidence;not null;default:0"`
	PlatformSignals    datatypes.JSON        `gorm:"column:platform_signals;not null;type:jsonb"`

	// Health
	HealthStatus          domain.HealthStatus      `gorm:"column:health_status;not null;type:health_status;default:unknown"`
	IsAccessRestricted    bool                     `gorm:"column:is_access_restricted;not null;default:false"`
	CatalogSize           *int                     `gorm:"column:catalog_size"`
	CatalogSizeStatus     domain.CatalogSizeStatus `gorm:"column:catalog_size_status;not null;type:catalog_size_status;default:unknown"`
	CatalogSizeLowerBound *int                     `gorm:"column:catalog_size_lower_bound"`
	LastCatalogActivityAt *time.Time               `gorm:"column:last_catalog_activity_at;type:timestamptz"`
	ContentLanguage       *string                  `gorm:"column:content_language;type:text"`

	// Classification
	PrimaryCategory    *domain.Category `gorm:"column:primary_category;type:text"`
	CategoryConfidence *float64         `gorm:"column:category_confidence"`
	CategoryScores     datatypes.JSON   `gorm:"column:category_scores;not null;type:jsonb"`
	BehavioralTags     datatypes.JSON   `gorm:"column:behavioral_tags;not null;type:jsonb"`

	// Operator tag lock
	TagsLocked   bool       `gorm:"column:tags_locked;not null;default:false"`
	TagsLockedBy *string    `gorm:"column:tags_locked_by;type:text"`
	TagsLockedAt *time.Time `gorm:"column:tags_locked_at;type:timestamptz"`

	// Retry bookkeeping, one set of columns per phase
	LastVerificationAttempt   *time.Time `gorm:"column:last_verification_attempt;type:timestamptz"`
	VerificationNextRetryAt   *time.Time `gorm:"column:verification_next_retry_at;type:timestamptz"`
	VerificationRetryCount    int        `gorm:"column:verification_retry_count;not null;default:0"`
	VerificationLastError     *string    `gorm:"column:verification_last_error;type:text"`
	LastHealthCheckAttempt    *time.Time `gorm:"column:last_health_check_attempt;type:timestamptz"`
	HealthNextRetryAt         *time.Time `gorm:"column:health_next_retry_at;type:timestamptz"`
	HealthRetryCount          int        `gorm:"column:health_retry_count;not null;default:0"`
	HealthLastError           *string    `gorm:"column:health_last_error;type:text"`
	LastClassificationAttempt *time.Time `gorm:"column:last_classification_attempt;type:timestamptz"`
	ClassificationNextRetryAt *time.Time `gorm:"column:classification_next_retry_at;type:timestamptz"`
	ClassificationRetryCount  int        `gorm:"column:classification_retry_count;not null;default:0"`
	ClassificationLastError   *string    `gorm:"column:classification_last_error;type:text"`

	// IsActive is derived: verified platform and not possibly inactive
	IsActive bool `gorm:"column:is_active;not null;default:false"`

	// Timestamps
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the Candidate model
func (Candidate) TableName() string {
	return "candidates"
}

// Signals decodes the stored platform signals
func (c *Candidate) Signals() (PlatformSignals, error) {
	signals := PlatformSignals{}
	if err := decodeJSON(c.PlatformSignals, &signals); err != nil {
		return nil, fmt.Errorf("failed to decode platform signals: %w", err)
	}
	return signals, nil
}

// Scores decodes the stored category scores
func (c *Candidate) Scores() (CategoryScores, error) {
	scores := CategoryScores{}
	if err := decodeJSON(c.CategoryScores, &scores); err != nil {
		return nil, fmt.Errorf("failed to decode category scores: %w", err)
	}
	return scores, nil
}

// Metadata decodes the per-source discovery metadata
func (c *Candidate) Metadata() (map[string]map[string]any, error) {
	metadata := map[string]map[string]any{}
	if err := decodeJSON(c.DiscoveryMetadata, &metadata); err != nil {
		return nil, fmt.Errorf("failed to decode discovery metadata: %w", err)
	}
	return metadata, nil
}

// Tags decodes the stored behavioral tags
func (c *Candidate) Tags() ([]string, error) {
	tags := []string{}
	if err := decodeJSON(c.BehavioralTags, &tags); err != nil {
		return nil, fmt.Errorf("failed to decode behavioral tags: %w", err)
	}
	return tags, nil
}

// PhaseState returns the retry bookkeeping of a phase
func (c *Candidate) PhaseState(phase domain.Phase) PhaseState {
	switch phase {
	case domain.PhaseVerification:
		return PhaseState{c.LastVerificationAttempt, c.VerificationNextRetryAt, c.VerificationRetryCount, c.VerificationLastError}
	case domain.PhaseHealth:
		return PhaseState{c.LastHealthCheckAttempt, c.HealthNextRetryAt, c.HealthRetryCount, c.HealthLastError}
	case domain.PhaseClassification:
		return PhaseState{c.LastClassificationAttempt, c.ClassificationNextRetryAt, c.ClassificationRetryCount, c.ClassificationLastError}
	}
	return PhaseState{}
}

// PhaseState is the per-phase retry bookkeeping of a candidate
type PhaseState struct {
	LastAttempt *time.Time
	NextRetryAt *time.Time
	RetryCount  int
	LastError   *string
}

func decodeJSON(data datatypes.JSON, v any) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	return json.Unmarshal(data, v)
}
