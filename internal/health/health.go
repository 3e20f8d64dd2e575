package health

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/abadojack/whatlanggo"
	"go.uber.org/zap"

	"github.com/feral-file/ff-storefront-indexer/internal/domain"
	"github.com/feral-file/ff-storefront-indexer/internal/logger"
	"github.com/feral-file/ff-storefront-indexer/internal/probe"
	"github.com/feral-file/ff-storefront-indexer/internal/registry"
	"github.com/feral-file/ff-storefront-indexer/internal/store"
	"github.com/feral-file/ff-storefront-indexer/internal/store/schema"
)

const (
	// CATALOG_PAGE_SIZE is the page size requested from the products endpoint
	CATALOG_PAGE_SIZE = 250

	// MIN_LANGUAGE_TEXT is the minimum visible text length used for language detection
	MIN_LANGUAGE_TEXT = 80
)

var (
	// ErrNotEligible is returned for candidates whose platform is not verified
	ErrNotEligible = errors.New("candidate is not eligible for health checks")

	errRateLimited = fmt.Errorf("%w: storefront answered 429", domain.ErrProbeFailure)
)

// Config holds health check configuration
type Config struct {
	// MaxCatalogPages bounds catalog pagination; reaching it yields an estimate
	MaxCatalogPages int
}

// Result is the outcome of a health check
type Result struct {
	Update store.HealthUpdate
	// Failure is set when a probe failed or was rate limited. The update is still
	// written and the attempt is retried on backoff.
	Failure error
}

// Engine checks the operational health of verified storefronts
//
//go:generate mockgen -source=health.go -destination=../mocks/health.go -package=mocks -mock_names=Engine=MockHealthEngine
type Engine interface {
	// CheckHealth probes reachability, access restriction and catalog size. It returns
	// ErrNotEligible for unverified candidates and a configuration error as an error;
	// probe failures are part of Result.
	CheckHealth(ctx context.Context, candidate *schema.Candidate) (*Result, error)
}

type engine struct {
	config   Config
	fetcher  probe.Fetcher
	platform *registry.Platform
}

// NewEngine creates a new health check engine
func NewEngine(cfg Config, fetcher probe.Fetcher, platform *registry.Platform) Engine {
	if cfg.MaxCatalogPages <= 0 {
		cfg.MaxCatalogPages = 20
	}
	return &engine{
		config:   cfg,
		fetcher:  fetcher,
		platform: platform,
	}
}

// CheckHealth probes the storefront and derives its health fields from the
// observations and the previously stored evidence
func (e *engine) CheckHealth(ctx context.Context, candidate *schema.Candidate) (*Result, error) {
	if !candidate.PlatformStatus.IsVerified() {
		return nil, fmt.Errorf("%w: platform status %s", ErrNotEligible, candidate.PlatformStatus)
	}

	update := store.HealthUpdate{
		IsAccessRestricted:    candidate.IsAccessRestricted,
		LastCatalogActivityAt: candidate.LastCatalogActivityAt,
		ContentLanguage:       candidate.ContentLanguage,
	}

	page, pageErr := e.fetcher.FetchPage(ctx, candidate.URL)
	if pageErr != nil && domain.IsConfigurationError(pageErr) {
		return nil, pageErr
	}
	homeFailure := e.applyHomepage(ctx, candidate, page, pageErr, &update)

	catalog, catalogErr := e.catalog(ctx, candidate.URL)
	if catalogErr != nil && domain.IsConfigurationError(catalogErr) {
		return nil, catalogErr
	}
	e.applyCatalog(candidate, catalog, &update)

	return &Result{
		Update:  update,
		Failure: errors.Join(homeFailure, catalogErr),
	}, nil
}

// applyHomepage derives health status, access restriction and language from the homepage
func (e *engine) applyHomepage(ctx context.Context, candidate *schema.Candidate, page *probe.Page, pageErr error, update *store.HealthUpdate) error {
	if pageErr != nil {
		update.Status = observedOr(candidate.HealthStatus, domain.HealthStatusUnknown)
		return fmt.Errorf("homepage: %w", pageErr)
	}
	if page.RateLimited() {
		update.Status = observedOr(candidate.HealthStatus, domain.HealthStatusRateLimited)
		return fmt.Errorf("homepage: %w", errRateLimited)
	}

	var failure error
	switch {
	case page.StatusCode == http.StatusPaymentRequired || page.StatusCode == http.StatusGone:
		update.Status = domain.HealthStatusPossiblyInactive
	case e.closed(page):
		update.Status = domain.HealthStatusPossiblyInactive
	case page.StatusCode == http.StatusUnauthorized:
		update.Status = domain.HealthStatusHealthy
	case page.StatusCode >= 200 && page.StatusCode < 400:
		update.Status = domain.HealthStatusHealthy
	case page.StatusCode >= 500:
		update.Status = observedOr(candidate.HealthStatus, domain.HealthStatusUnknown)
		failure = fmt.Errorf("homepage: %w: server answered %d", domain.ErrProbeFailure, page.StatusCode)
	default:
		update.Status = domain.HealthStatusUnknown
	}

	switch {
	case page.StatusCode == http.StatusUnauthorized || e.passwordGate(page):
		update.IsAccessRestricted = true
	case page.OK():
		update.IsAccessRestricted = false
	}

	if lang := detectLanguage(page.Text()); lang != "" {
		update.ContentLanguage = &lang
	}

	logger.DebugCtx(ctx, "Homepage checked",
		zap.String("record_id", candidate.ID),
		zap.Int("status_code", page.StatusCode),
		zap.String("health_status", string(update.Status)),
		zap.Bool("access_restricted", update.IsAccessRestricted),
	)

	return failure
}

// observedOr keeps a previously observed status through a failed fetch; without one
// the fallback describes why nothing is known
func observedOr(stored, fallback domain.HealthStatus) domain.HealthStatus {
	switch stored {
	case domain.HealthStatusHealthy, domain.HealthStatusPossiblyInactive:
		return stored
	}
	return fallback
}

// closed reports a positive signal of inactivity on the page
func (e *engine) closed(page *probe.Page) bool {
	text := strings.ToLower(page.Text())
	html := page.LowerHTML()
	for _, marker := range e.platform.ClosedMarkers {
		if strings.Contains(text, marker) || strings.Contains(html, marker) {
			return true
		}
	}
	return false
}

// passwordGate reports whether the page is a storefront password gate
func (e *engine) passwordGate(page *probe.Page) bool {
	path := strings.ToLower(strings.TrimSuffix(page.Path(), "/"))
	for _, p := range e.platform.PasswordPaths {
		if path == p {
			return true
		}
	}
	if page.Doc == nil {
		return false
	}
	for _, selector := range e.platform.PasswordSelectors {
		if page.Doc.Find(selector).Length() > 0 {
			return true
		}
	}
	return false
}

func detectLanguage(text string) string {
	if len(text) < MIN_LANGUAGE_TEXT {
		return ""
	}
	info := whatlanggo.Detect(text)
	if !info.IsReliable() {
		return ""
	}
	return info.Lang.Iso6393()
}

// catalogObservation is the result of paginating the products endpoint
type catalogObservation struct {
	status       domain.CatalogSizeStatus
	count        int
	lastActivity *time.Time
}

// catalog paginates the products endpoint. A short page confirms the count; reaching
// the page cap only yields a lower bound.
func (e *engine) catalog(ctx context.Context, storeURL string) (catalogObservation, error) {
	obs := catalogObservation{status: domain.CatalogSizeStatusUnknown}

	for page := 1; page <= e.config.MaxCatalogPages; page++ {
		products, err := e.fetcher.FetchProducts(ctx, storeURL, CATALOG_PAGE_SIZE, page)
		if err != nil {
			return catalogObservation{status: domain.CatalogSizeStatusUnknown, lastActivity: obs.lastActivity},
				fmt.Errorf("catalog page %d: %w", page, err)
		}
		if products.RateLimited() {
			return catalogObservation{status: domain.CatalogSizeStatusRateLimited, lastActivity: obs.lastActivity},
				fmt.Errorf("catalog page %d: %w", page, errRateLimited)
		}
		if !products.HasProducts {
			// The endpoint is closed or not JSON: size is unknown, not zero
			return catalogObservation{status: domain.CatalogSizeStatusUnknown, lastActivity: obs.lastActivity}, nil
		}

		obs.count += len(products.Products)
		for _, p := range products.Products {
			if t := p.LatestActivity(); t != nil && (obs.lastActivity == nil || t.After(*obs.lastActivity)) {
				obs.lastActivity = t
			}
		}

		if len(products.Products) < CATALOG_PAGE_SIZE {
			obs.status = domain.CatalogSizeStatusConfirmed
			return obs, nil
		}
	}

	obs.status = domain.CatalogSizeStatusEstimated
	return obs, nil
}

// applyCatalog writes the catalog fields. A size is only stored when confirmed; on
// failure the best known lower bound is retained.
func (e *engine) applyCatalog(candidate *schema.Candidate, obs catalogObservation, update *store.HealthUpdate) {
	update.CatalogSizeStatus = obs.status

	switch obs.status {
	case domain.CatalogSizeStatusConfirmed:
		count := obs.count
		update.CatalogSize = &count
		update.CatalogSizeLowerBound = nil
	case domain.CatalogSizeStatusEstimated:
		count := obs.count
		update.CatalogSize = nil
		update.CatalogSizeLowerBound = &count
	default:
		update.CatalogSize = nil
		switch {
		case candidate.CatalogSize != nil:
			bound := *candidate.CatalogSize
			update.CatalogSizeLowerBound = &bound
		default:
			update.CatalogSizeLowerBound = candidate.CatalogSizeLowerBound
		}
	}

	if obs.lastActivity != nil {
		t := obs.lastActivity.UTC()
		update.LastCatalogActivityAt = &t
	}
}
