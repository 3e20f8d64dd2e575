package domain

import (
	"fmt"
	"slices"
)

// Phase identifies one of the scheduled pipeline phases
type Phase string

const (
	PhaseVerification   Phase = "verification"
	PhaseHealth         Phase = "health"
	PhaseClassification Phase = "classification"
)

// AllPhases lists the scheduled phases in data-dependency order
var AllPhases = []Phase{PhaseVerification, PhaseHealth, PhaseClassification}

// String returns the string representation of the phase
func (p Phase) String() string {
	return string(p)
}

// ParsePhase parses a phase name
func ParsePhase(s string) (Phase, error) {
	p := Phase(s)
	if !slices.Contains(AllPhases, p) {
		return "", fmt.Errorf("%w: unknown phase %q", ErrInvalidInput, s)
	}
	return p, nil
}

// Category is a business-model category from the fixed taxonomy
type Category string

const (
	CategoryDropshipping    Category = "dropshipping"
	CategoryPrintOnDemand   Category = "print_on_demand"
	CategorySubscription    Category = "subscription"
	CategoryDigitalProducts Category = "digital_products"
	CategoryDTCBrand        Category = "dtc_brand"
	CategoryWholesaleB2B    Category = "wholesale_b2b"
)

// Taxonomy is the fixed business-model taxonomy. The order breaks score ties.
var Taxonomy = []Category{
	CategoryDropshipping,
	CategoryPrintOnDemand,
	CategorySubscription,
	CategoryDigitalProducts,
	CategoryDTCBrand,
	CategoryWholesaleB2B,
}

// String returns the string representation of the category
func (c Category) String() string {
	return string(c)
}

// IsValidCategory checks if a category belongs to the taxonomy
func IsValidCategory(c Category) bool {
	return slices.Contains(Taxonomy, c)
}

// BehavioralTag is a tag from the behavioral namespace. Behavioral tags never
// compete with business-model categories.
type BehavioralTag string

const (
	BehavioralTagRunsPaidAds   BehavioralTag = "runs_paid_ads"
	BehavioralTagReviewsApp    BehavioralTag = "has_reviews_app"
	BehavioralTagMultiCurrency BehavioralTag = "multi_currency"
)

// PlatformStatus is the platform verification bucket of a candidate
type PlatformStatus string

const (
	PlatformStatusConfirmed  PlatformStatus = "confirmed"
	PlatformStatusProbable   PlatformStatus = "probable"
	PlatformStatusUnlikely   PlatformStatus = "unlikely"
	PlatformStatusUnverified PlatformStatus = "unverified"
)

// PlatformStatusFor maps a confidence score to its status bucket. A candidate with no
// observable evidence at all stays unverified.
func PlatformStatusFor(confidence float64, observable bool) PlatformStatus {
	switch {
	case !observable:
		return PlatformStatusUnverified
	case confidence >= PLATFORM_CONFIRMED_THRESHOLD:
		return PlatformStatusConfirmed
	case confidence >= PLATFORM_PROBABLE_THRESHOLD:
		return PlatformStatusProbable
	default:
		return PlatformStatusUnlikely
	}
}

// Valid reports whether the status is one of the known buckets
func (s PlatformStatus) Valid() bool {
	switch s {
	case PlatformStatusConfirmed, PlatformStatusProbable, PlatformStatusUnlikely, PlatformStatusUnverified:
		return true
	}
	return false
}

// IsVerified reports whether the status passes the health check gate
func (s PlatformStatus) IsVerified() bool {
	return s == PlatformStatusConfirmed || s == PlatformStatusProbable
}

// HealthStatus is the operational status of a candidate
type HealthStatus string

const (
	HealthStatusHealthy          HealthStatus = "healthy"
	HealthStatusPossiblyInactive HealthStatus = "possibly_inactive"
	HealthStatusRateLimited      HealthStatus = "rate_limited"
	HealthStatusUnknown          HealthStatus = "unknown"
)

// Valid reports whether the status is one of the known health states
func (s HealthStatus) Valid() bool {
	switch s {
	case HealthStatusHealthy, HealthStatusPossiblyInactive, HealthStatusRateLimited, HealthStatusUnknown:
		return true
	}
	return false
}

// CatalogSizeStatus describes how much is known about a catalog size
type CatalogSizeStatus string

const (
	CatalogSizeStatusConfirmed   CatalogSizeStatus = "confirmed"
	CatalogSizeStatusEstimated   CatalogSizeStatus = "estimated"
	CatalogSizeStatusUnknown     CatalogSizeStatus = "unknown"
	CatalogSizeStatusRateLimited CatalogSizeStatus = "rate_limited"
)

// SignalState is the observed state of a single signal
type SignalState string

const (
	SignalStatePositive SignalState = "positive"
	SignalStateNegative SignalState = "negative"
	SignalStateUnknown  SignalState = "unknown"
)

// IsActive derives the catalog visibility flag
func IsActive(platform PlatformStatus, health HealthStatus) bool {
	return platform.IsVerified() && health != HealthStatusPossiblyInactive
}
