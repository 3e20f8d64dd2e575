package dto

import (
	"fmt"
	"strings"
	"time"

	apierrors "github.com/feral-file/ff-storefront-indexer/internal/api/shared/errors"
	"github.com/feral-file/ff-storefront-indexer/internal/domain"
	"github.com/feral-file/ff-storefront-indexer/internal/store/schema"
)

// SubmitCandidateRequest is the body of POST /candidates
type SubmitCandidateRequest struct {
	URL      string         `json:"url"`
	Source   string         `json:"source"`
	Metadata map[string]any `json:"metadata"`
}

// Validate validates the request body. URL syntax is checked by discovery.
func (r *SubmitCandidateRequest) Validate() error {
	if strings.TrimSpace(r.URL) == "" {
		return apierrors.NewValidationError("url is required")
	}
	if strings.TrimSpace(r.Source) == "" {
		return apierrors.NewValidationError("source is required")
	}
	return nil
}

// SubmitCandidateResponse reports whether the submission created a new record
type SubmitCandidateResponse struct {
	Created  bool   `json:"created"`
	RecordID string `json:"record_id"`
}

// LockTagsRequest is the body of POST /candidates/:id/lock
type LockTagsRequest struct {
	Category domain.Category `json:"category"`
}

// Validate validates the request body
func (r *LockTagsRequest) Validate() error {
	if r.Category == "" {
		return apierrors.NewValidationError("category is required")
	}
	if !domain.IsValidCategory(r.Category) {
		return apierrors.NewValidationError(fmt.Sprintf("unknown category: %s", r.Category))
	}
	return nil
}

// PhaseStateResponse is the retry bookkeeping of one phase
type PhaseStateResponse struct {
	LastAttempt *time.Time `json:"last_attempt,omitempty"`
	NextRetryAt *time.Time `json:"next_retry_at,omitempty"`
	RetryCount  int        `json:"retry_count"`
	LastError   *string    `json:"last_error,omitempty"`
}

// TagLockResponse describes an operator tag lock
type TagLockResponse struct {
	Locked   bool       `json:"locked"`
	LockedBy *string    `json:"locked_by,omitempty"`
	LockedAt *time.Time `json:"locked_at,omitempty"`
}

// CandidateResponse represents a candidate with its evidence for explainability
type CandidateResponse struct {
	ID                    string                              `json:"id"`
	URL                   string                              `json:"url"`
	Host                  string                              `json:"host"`
	DiscoverySource       string                              `json:"discovery_source"`
	DiscoveryMetadata     map[string]map[string]any           `json:"discovery_metadata"`
	DiscoveredAt          time.Time                           `json:"discovered_at"`
	PlatformStatus        domain.PlatformStatus               `json:"platform_status"`
	PlatformConfidence    float64                             `json:"platform_confidence"`
	PlatformSignals       schema.PlatformSignals              `json:"platform_signals"`
	HealthStatus          domain.HealthStatus                 `json:"health_status"`
	IsAccessRestricted    bool                                `json:"is_access_restricted"`
	CatalogSize           *int                                `json:"catalog_size"`
	CatalogSizeStatus     domain.CatalogSizeStatus            `json:"catalog_size_status"`
	CatalogSizeLowerBound *int                                `json:"catalog_size_lower_bound,omitempty"`
	LastCatalogActivityAt *time.Time                          `json:"last_catalog_activity_at,omitempty"`
	ContentLanguage       *string                             `json:"content_language,omitempty"`
	PrimaryCategory       *domain.Category                    `json:"primary_category"`
	CategoryConfidence    *float64                            `json:"category_confidence"`
	CategoryScores        schema.CategoryScores               `json:"category_scores"`
	BehavioralTags        []string                            `json:"behavioral_tags"`
	TagLock               TagLockResponse                     `json:"tag_lock"`
	Phases                map[domain.Phase]PhaseStateResponse `json:"phases"`
	IsActive              bool                                `json:"is_active"`
	CreatedAt             time.Time                           `json:"created_at"`
	UpdatedAt             time.Time                           `json:"updated_at"`
}

// ListCandidatesResponse is a page of candidates
type ListCandidatesResponse struct {
	Candidates []CandidateResponse `json:"candidates"`
	Total      int64               `json:"total"`
	Limit      int                 `json:"limit"`
	Offset     int                 `json:"offset"`
}

// MapCandidateToDTO maps a stored candidate to its response, decoding the JSON columns
func MapCandidateToDTO(c *schema.Candidate) (*CandidateResponse, error) {
	signals, err := c.Signals()
	if err != nil {
		return nil, err
	}
	scores, err := c.Scores()
	if err != nil {
		return nil, err
	}
	metadata, err := c.Metadata()
	if err != nil {
		return nil, err
	}
	tags, err := c.Tags()
	if err != nil {
		return nil, err
	}

	phases := make(map[domain.Phase]PhaseStateResponse, len(domain.AllPhases))
	for _, phase := range domain.AllPhases {
		state := c.PhaseState(phase)
		phases[phase] = PhaseStateResponse{
			LastAttempt: state.LastAttempt,
			NextRetryAt: state.NextRetryAt,
			RetryCount:  state.RetryCount,
			LastError:   state.LastError,
		}
	}

	return &CandidateResponse{
		ID:                    c.ID,
		URL:                   c.URL,
		Host:                  c.Host,
		DiscoverySource:       c.DiscoverySource,
		DiscoveryMetadata:     metadata,
		DiscoveredAt:          c.DiscoveredAt,
		PlatformStatus:        c.PlatformStatus,
		PlatformConfidence:    c.PlatformConfidence,
		PlatformSignals:       signals,
		HealthStatus:          c.HealthStatus,
		IsAccessRestricted:    c.IsAccessRestricted,
		CatalogSize:           c.CatalogSize,
		CatalogSizeStatus:     c.CatalogSizeStatus,
		CatalogSizeLowerBound: c.CatalogSizeLowerBound,
		LastCatalogActivityAt: c.LastCatalogActivityAt,
		ContentLanguage:       c.ContentLanguage,
		PrimaryCategory:       c.PrimaryCategory,
		CategoryConfidence:    c.CategoryConfidence,
		CategoryScores:        scores,
		BehavioralTags:        tags,
		TagLock: TagLockResponse{
			Locked:   c.TagsLocked,
			LockedBy: c.TagsLockedBy,
			LockedAt: c.TagsLockedAt,
		},
		Phases:    phases,
		IsActive:  c.IsActive,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}, nil
}
