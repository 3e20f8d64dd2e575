package verification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/feral-file/ff-storefront-indexer/internal/adapter"
	"github.com/feral-file/ff-storefront-indexer/internal/domain"
	"github.com/feral-file/ff-storefront-indexer/internal/logger"
	"github.com/feral-file/ff-storefront-indexer/internal/probe"
	"github.com/feral-file/ff-storefront-indexer/internal/registry"
	"github.com/feral-file/ff-storefront-indexer/internal/scoring"
	"github.com/feral-file/ff-storefront-indexer/internal/store"
	"github.com/feral-file/ff-storefront-indexer/internal/store/schema"
)

var errRateLimited = fmt.Errorf("%w: storefront answered 429", domain.ErrProbeFailure)

// Result is the outcome of verifying a candidate
type Result struct {
	Update store.VerificationUpdate
	// Failure is set when a network signal could not be observed. The update is still
	// written and the attempt is retried on backoff.
	Failure error
}

// Engine verifies that candidates run on the configured storefront platform
//
//go:generate mockgen -source=verification.go -destination=../mocks/verification.go -package=mocks -mock_names=Engine=MockVerificationEngine
type Engine interface {
	// Verify probes the candidate and computes its platform confidence. Only a
	// configuration error is returned as an error; probe failures are part of Result.
	Verify(ctx context.Context, candidate *schema.Candidate) (*Result, error)
}

type engine struct {
	fetcher  probe.Fetcher
	platform *registry.Platform
	clock    adapter.Clock
}

// NewEngine creates a new verification engine
func NewEngine(fetcher probe.Fetcher, platform *registry.Platform, clock adapter.Clock) Engine {
	return &engine{
		fetcher:  fetcher,
		platform: platform,
		clock:    clock,
	}
}

// Verify probes the candidate and computes its platform confidence
func (e *engine) Verify(ctx context.Context, candidate *schema.Candidate) (*Result, error) {
	previous, err := candidate.Signals()
	if err != nil {
		logger.WarnCtx(ctx, "Ignoring unreadable platform signals",
			zap.String("record_id", candidate.ID),
			zap.Error(err),
		)
		previous = schema.PlatformSignals{}
	}

	evidence := probe.NewEvidence(e.fetcher, candidate.URL, 1)
	results := scoring.Evaluate(ctx, e.signals(candidate.Host, evidence))

	var failures []error
	for _, r := range results {
		if r.Known || r.Err == nil {
			continue
		}
		if domain.IsConfigurationError(r.Err) {
			return nil, fmt.Errorf("signal %s: %w", r.Name, r.Err)
		}
		failures = append(failures, fmt.Errorf("signal %s: %w", r.Name, r.Err))
	}

	now := e.clock.Now().UTC()
	signals := make(schema.PlatformSignals, len(results))
	effective := make([]scoring.Result, 0, len(results))
	for _, r := range results {
		stored, scored := carryForward(r, previous[r.Name], now)
		signals[r.Name] = stored
		effective = append(effective, scored)
	}

	confidence, observable := scoring.WeightedMean(effective)
	confidence = scoring.Round(confidence, 4)

	return &Result{
		Update: store.VerificationUpdate{
			Status:     domain.PlatformStatusFor(confidence, observable),
			Confidence: confidence,
			Signals:    signals,
		},
		Failure: errors.Join(failures...),
	}, nil
}

// carryForward stores an observed signal as fresh evidence. An unobservable signal reuses
// the last observed value so that evidence absence never moves the confidence.
func carryForward(r scoring.Result, previous schema.SignalEvidence, now time.Time) (schema.SignalEvidence, scoring.Result) {
	if r.Known {
		state := domain.SignalStateNegative
		if r.Value > 0 {
			state = domain.SignalStatePositive
		}
		return schema.SignalEvidence{
			State:      state,
			Weight:     r.Weight,
			ObservedAt: &now,
			Detail:     r.Detail,
		}, r
	}

	switch previous.State {
	case domain.SignalStatePositive, domain.SignalStateNegative:
		value := 0.0
		if previous.State == domain.SignalStatePositive {
			value = 1
		}
		scored := r
		scored.Observation = scoring.Observation{Known: true, Value: value, Detail: previous.Detail}
		return schema.SignalEvidence{
			State:      previous.State,
			Weight:     r.Weight,
			ObservedAt: previous.ObservedAt,
			Detail:     previous.Detail,
			Stale:      true,
		}, scored
	}

	return schema.SignalEvidence{
		State:  domain.SignalStateUnknown,
		Weight: r.Weight,
		Detail: r.Detail,
	}, r
}

func (e *engine) signals(host string, evidence *probe.Evidence) []scoring.Signal {
	return []scoring.Signal{
		{
			Name:    registry.SignalResourceEndpoint,
			Weight:  e.platform.Weight(registry.SignalResourceEndpoint),
			Observe: func(ctx context.Context) scoring.Observation { return e.observeResourceEndpoint(ctx, evidence) },
		},
		{
			Name:    registry.SignalPlatformHeader,
			Weight:  e.platform.Weight(registry.SignalPlatformHeader),
			Observe: func(ctx context.Context) scoring.Observation { return e.observePlatformHeader(ctx, evidence) },
		},
		{
			Name:    registry.SignalAssetDomain,
			Weight:  e.platform.Weight(registry.SignalAssetDomain),
			Observe: func(ctx context.Context) scoring.Observation { return e.observeAssetDomain(ctx, evidence) },
		},
		{
			Name:    registry.SignalHostnamePattern,
			Weight:  e.platform.Weight(registry.SignalHostnamePattern),
			Observe: func(context.Context) scoring.Observation { return e.observeHostname(host) },
		},
	}
}

// observeResourceEndpoint checks the platform's public products endpoint
func (e *engine) observeResourceEndpoint(ctx context.Context, evidence *probe.Evidence) scoring.Observation {
	products, err := evidence.Products(ctx)
	if err != nil {
		return scoring.Unknown(err)
	}
	if products.RateLimited() {
		return scoring.Unknown(errRateLimited)
	}
	if products.HasProducts {
		return scoring.Positive("products endpoint returned a products array")
	}
	return scoring.Negative(fmt.Sprintf("products endpoint answered %d without a products array", products.StatusCode))
}

// observePlatformHeader checks the homepage response headers
func (e *engine) observePlatformHeader(ctx context.Context, evidence *probe.Evidence) scoring.Observation {
	page, err := evidence.Homepage(ctx)
	if err != nil {
		return scoring.Unknown(err)
	}
	if page.RateLimited() {
		return scoring.Unknown(errRateLimited)
	}

	for _, marker := range e.platform.Headers {
		values := page.Header.Values(marker.Name)
		for _, v := range values {
			if marker.Contains == "" || strings.Contains(strings.ToLower(v), marker.Contains) {
				return scoring.Positive("header " + marker.Name)
			}
		}
	}
	return scoring.Negative("no platform header")
}

// observeAssetDomain checks the homepage HTML for platform asset hosts
func (e *engine) observeAssetDomain(ctx context.Context, evidence *probe.Evidence) scoring.Observation {
	page, err := evidence.Homepage(ctx)
	if err != nil {
		return scoring.Unknown(err)
	}
	if page.RateLimited() {
		return scoring.Unknown(errRateLimited)
	}
	if !page.IsHTML() {
		return scoring.Observation{Detail: "homepage is not HTML"}
	}

	html := page.LowerHTML()
	for _, marker := range e.platform.AssetMarkers {
		if strings.Contains(html, marker) {
			return scoring.Positive("references " + marker)
		}
	}
	return scoring.Negative("no platform asset reference")
}

// observeHostname matches the platform subdomain scheme. A custom domain is not evidence
// against the platform, so a mismatch is unobservable rather than negative.
func (e *engine) observeHostname(host string) scoring.Observation {
	for _, suffix := range e.platform.HostnameSuffixes {
		if strings.HasSuffix(host, suffix) {
			return scoring.Positive("host matches *" + suffix)
		}
	}
	return scoring.Observation{Detail: "custom domain"}
}
