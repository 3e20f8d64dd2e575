package rest

import (
	"fmt"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/feral-file/ff-storefront-indexer/internal/domain"
	"github.com/feral-file/ff-storefront-indexer/internal/store"
)

const (
	DEFAULT_PAGE_SIZE = 20
	MAX_PAGE_SIZE     = 100
)

// ListCandidatesQueryParams holds query parameters for GET /candidates
type ListCandidatesQueryParams struct {
	// Filters
	PlatformStatus  string `form:"platform_status"`
	HealthStatus    string `form:"health_status"`
	PrimaryCategory string `form:"primary_category"`
	IsActive        string `form:"is_active"`

	// Pagination
	Limit  int `form:"limit,default=20"`
	Offset int `form:"offset,default=0"`
}

// ParseListCandidatesQuery parses query parameters for GET /candidates
func ParseListCandidatesQuery(c *gin.Context) (*ListCandidatesQueryParams, error) {
	var params ListCandidatesQueryParams
	if err := c.ShouldBindQuery(&params); err != nil {
		return nil, err
	}

	// Cap limits
	if params.Limit <= 0 {
		params.Limit = DEFAULT_PAGE_SIZE
	}
	if params.Limit > MAX_PAGE_SIZE {
		params.Limit = MAX_PAGE_SIZE
	}

	return &params, nil
}

// Validate checks enumerated filters and pagination
func (p *ListCandidatesQueryParams) Validate() error {
	if p.Offset < 0 {
		return fmt.Errorf("offset must not be negative")
	}
	if p.PlatformStatus != "" && !domain.PlatformStatus(p.PlatformStatus).Valid() {
		return fmt.Errorf("unknown platform_status: %s", p.PlatformStatus)
	}
	if p.HealthStatus != "" && !domain.HealthStatus(p.HealthStatus).Valid() {
		return fmt.Errorf("unknown health_status: %s", p.HealthStatus)
	}
	if p.PrimaryCategory != "" && !domain.IsValidCategory(domain.Category(p.PrimaryCategory)) {
		return fmt.Errorf("unknown primary_category: %s", p.PrimaryCategory)
	}
	if p.IsActive != "" {
		if _, err := strconv.ParseBool(p.IsActive); err != nil {
			return fmt.Errorf("is_active must be a boolean")
		}
	}
	return nil
}

// Filter converts validated parameters to a store filter
func (p *ListCandidatesQueryParams) Filter() store.CandidateFilter {
	filter := store.CandidateFilter{
		Limit:  p.Limit,
		Offset: p.Offset,
	}
	if p.PlatformStatus != "" {
		status := domain.PlatformStatus(p.PlatformStatus)
		filter.PlatformStatus = &status
	}
	if p.HealthStatus != "" {
		status := domain.HealthStatus(p.HealthStatus)
		filter.HealthStatus = &status
	}
	if p.PrimaryCategory != "" {
		category := domain.Category(p.PrimaryCategory)
		filter.PrimaryCategory = &category
	}
	if p.IsActive != "" {
		active, _ := strconv.ParseBool(p.IsActive)
		filter.IsActive = &active
	}
	return filter
}
