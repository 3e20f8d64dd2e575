package classification

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/feral-file/ff-storefront-indexer/internal/domain"
	"github.com/feral-file/ff-storefront-indexer/internal/logger"
	"github.com/feral-file/ff-storefront-indexer/internal/probe"
	"github.com/feral-file/ff-storefront-indexer/internal/registry"
	"github.com/feral-file/ff-storefront-indexer/internal/scoring"
	"github.com/feral-file/ff-storefront-indexer/internal/store"
	"github.com/feral-file/ff-storefront-indexer/internal/store/schema"
)

const (
	// PRODUCT_SAMPLE_SIZE is the number of products sampled from the products endpoint
	PRODUCT_SAMPLE_SIZE = 50

	// MANY_VENDORS is the vendor count from which a sample looks aggregated
	MANY_VENDORS = 5
)

var (
	errRateLimited = fmt.Errorf("%w: storefront answered 429", domain.ErrProbeFailure)
	errNoEvidence  = fmt.Errorf("%w: neither homepage nor product sample is observable", domain.ErrProbeFailure)
)

// structuralCue is a built-in cue derived from the shape of the product sample
type structuralCue struct {
	name     string
	category domain.Category
	weight   float64
	observe  func(s sample) scoring.Observation
}

var structuralCues = []structuralCue{
	{
		name:     "digital_ratio",
		category: domain.CategoryDigitalProducts,
		weight:   0.6,
		observe: func(s sample) scoring.Observation {
			return scoring.Partial(s.digitalRatio, fmt.Sprintf("%.2f of sampled products ship nothing", s.digitalRatio))
		},
	},
	{
		name:     "single_vendor",
		category: domain.CategoryDTCBrand,
		weight:   0.45,
		observe: func(s sample) scoring.Observation {
			if len(s.vendors) == 1 {
				return scoring.Positive("every sampled product has the same vendor")
			}
			return scoring.Negative(fmt.Sprintf("%d vendors in sample", len(s.vendors)))
		},
	},
	{
		name:     "many_vendors",
		category: domain.CategoryDropshipping,
		weight:   0.3,
		observe: func(s sample) scoring.Observation {
			if len(s.vendors) >= MANY_VENDORS {
				return scoring.Positive(fmt.Sprintf("%d vendors in sample", len(s.vendors)))
			}
			return scoring.Negative(fmt.Sprintf("%d vendors in sample", len(s.vendors)))
		},
	},
}

// Result is the outcome of classifying a candidate
type Result struct {
	Update store.ClassificationUpdate
	// Failure is set when evidence could not be fetched. The update is still
	// written and the attempt is retried on backoff.
	Failure error
}

// Engine scores candidates against the business model taxonomy
//
//go:generate mockgen -source=classification.go -destination=../mocks/classification.go -package=mocks -mock_names=Engine=MockClassificationEngine
type Engine interface {
	// Classify computes category scores, the primary category and behavioral tags.
	// Only a configuration error is returned as an error; probe failures are part of Result.
	Classify(ctx context.Context, candidate *schema.Candidate) (*Result, error)
}

type engine struct {
	fetcher  probe.Fetcher
	taxonomy *registry.Taxonomy
}

// NewEngine creates a new classification engine
func NewEngine(fetcher probe.Fetcher, taxonomy *registry.Taxonomy) Engine {
	return &engine{
		fetcher:  fetcher,
		taxonomy: taxonomy,
	}
}

// sample is the observable evidence gathered for one classification run
type sample struct {
	page     *probe.Page
	products []probe.Product

	homeObservable     bool
	productsObservable bool

	text         string
	html         string
	catalogText  string
	vendors      map[string]struct{}
	productTypes []string
	tags         []string
	digitalRatio float64
}

// Classify scores the candidate against every category of the taxonomy
func (e *engine) Classify(ctx context.Context, candidate *schema.Candidate) (*Result, error) {
	evidence := probe.NewEvidence(e.fetcher, candidate.URL, PRODUCT_SAMPLE_SIZE)

	var (
		page        *probe.Page
		pageErr     error
		products    *probe.ProductsPage
		productsErr error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		page, pageErr = evidence.Homepage(gctx)
		return nil
	})
	g.Go(func() error {
		products, productsErr = evidence.Products(gctx)
		return nil
	})
	_ = g.Wait()

	for _, err := range []error{pageErr, productsErr} {
		if err != nil && domain.IsConfigurationError(err) {
			return nil, err
		}
	}

	s, failure := newSample(page, pageErr, products, productsErr)
	metadata := e.metadata(ctx, candidate)

	if !s.homeObservable && !s.productsObservable {
		return &Result{
			Update:  e.previous(ctx, candidate, metadata),
			Failure: errors.Join(errNoEvidence, failure),
		}, nil
	}

	env := registry.RuleEnv{
		Host:               candidate.Host,
		Text:               s.text,
		HTML:               s.html,
		ProductCount:       len(s.products),
		VendorCount:        len(s.vendors),
		DigitalRatio:       s.digitalRatio,
		ProductTypes:       s.productTypes,
		Tags:               s.tags,
		PlatformStatus:     string(candidate.PlatformStatus),
		PlatformConfidence: candidate.PlatformConfidence,
		HealthStatus:       string(candidate.HealthStatus),
		Metadata:           flattenMetadata(metadata),
	}

	scores := make(schema.CategoryScores, len(domain.Taxonomy))
	for _, category := range domain.Taxonomy {
		score, ok := scoring.NoisyOr(e.cues(ctx, category, s, env))
		if !ok {
			score = 0
		}
		scores[category] = scoring.Round(score, 4)
	}

	update := store.ClassificationUpdate{
		Scores:         scores,
		BehavioralTags: e.behavioralTags(ctx, candidate, s, metadata),
	}

	top, confidence := argmax(scores)
	update.CategoryConfidence = &confidence
	if confidence >= domain.CATEGORY_CONFIDENCE_FLOOR {
		update.PrimaryCategory = &top
	}

	if candidate.TagsLocked {
		update.PrimaryCategory = candidate.PrimaryCategory
		update.CategoryConfidence = candidate.CategoryConfidence
	}

	logger.DebugCtx(ctx, "Candidate classified",
		zap.String("record_id", candidate.ID),
		zap.String("top_category", string(top)),
		zap.Float64("confidence", confidence),
		zap.Bool("tags_locked", candidate.TagsLocked),
	)

	return &Result{Update: update, Failure: failure}, nil
}

// newSample extracts the observable evidence from the homepage and the product sample
func newSample(page *probe.Page, pageErr error, products *probe.ProductsPage, productsErr error) (sample, error) {
	s := sample{page: page, vendors: map[string]struct{}{}}
	var failures []error

	switch {
	case pageErr != nil:
		failures = append(failures, fmt.Errorf("homepage: %w", pageErr))
	case page.RateLimited():
		failures = append(failures, fmt.Errorf("homepage: %w", errRateLimited))
	case page.OK() && page.IsHTML():
		s.homeObservable = true
		s.text = strings.ToLower(page.Text())
		s.html = page.LowerHTML()
	}

	switch {
	case productsErr != nil:
		failures = append(failures, fmt.Errorf("product sample: %w", productsErr))
	case products.RateLimited():
		failures = append(failures, fmt.Errorf("product sample: %w", errRateLimited))
	case products.HasProducts:
		s.productsObservable = true
		s.products = products.Products

		var catalog []string
		digital := 0
		for _, p := range products.Products {
			if vendor := strings.ToLower(strings.TrimSpace(p.Vendor)); vendor != "" {
				s.vendors[vendor] = struct{}{}
			}
			if productType := strings.ToLower(strings.TrimSpace(p.ProductType)); productType != "" {
				s.productTypes = append(s.productTypes, productType)
			}
			for _, tag := range p.Tags {
				s.tags = append(s.tags, strings.ToLower(strings.TrimSpace(tag)))
			}
			if p.Digital() {
				digital++
			}
			catalog = append(catalog, strings.ToLower(p.Title), strings.ToLower(p.ProductType))
			catalog = append(catalog, lowerAll(p.Tags)...)
		}
		s.catalogText = strings.Join(catalog, "\n")
		if len(products.Products) > 0 {
			s.digitalRatio = float64(digital) / float64(len(products.Products))
		}
	}

	return s, errors.Join(failures...)
}

// cues evaluates every cue of a category. Cues whose evidence source was not observed
// are unknown and do not contribute to the score.
func (e *engine) cues(ctx context.Context, category domain.Category, s sample, env registry.RuleEnv) []scoring.Result {
	rules := e.taxonomy.Category(category)
	results := make([]scoring.Result, 0, len(rules.Cues)+len(rules.Rules)+1)

	for _, cue := range rules.Cues {
		r := scoring.Result{Name: cue.Name, Weight: cue.Weight}
		haystack, observable := s.source(cue.Source)
		if observable {
			r.Observation = scoring.Negative("no keyword")
			for _, keyword := range cue.Any {
				if strings.Contains(haystack, keyword) {
					r.Observation = scoring.Positive(keyword)
					break
				}
			}
		}
		results = append(results, r)
	}

	for i := range rules.Rules {
		rule := &rules.Rules[i]
		r := scoring.Result{Name: rule.Name, Weight: rule.Weight}
		matched, err := rule.Eval(env)
		switch {
		case err != nil:
			logger.WarnCtx(ctx, "Failed to evaluate classification rule",
				zap.String("category", string(category)),
				zap.String("rule", rule.Name),
				zap.Error(err),
			)
		case matched:
			r.Observation = scoring.Positive("rule matched")
		default:
			r.Observation = scoring.Negative("rule did not match")
		}
		results = append(results, r)
	}

	for _, cue := range structuralCues {
		if cue.category != category {
			continue
		}
		r := scoring.Result{Name: cue.name, Weight: cue.weight}
		if s.productsObservable && len(s.products) > 0 {
			r.Observation = cue.observe(s)
		}
		results = append(results, r)
	}

	return results
}

// source returns the lowercased text of a cue source and whether it was observed
func (s sample) source(name string) (string, bool) {
	switch name {
	case registry.CueSourceHTML:
		return s.html, s.homeObservable
	case registry.CueSourceText:
		return s.text, s.homeObservable
	case registry.CueSourceProducts:
		return s.catalogText, s.productsObservable
	}
	return "", false
}

// behavioralTags combines markers found on the homepage with feed supplied tags.
// Without an observable homepage the previously detected tags are retained.
func (e *engine) behavioralTags(ctx context.Context, candidate *schema.Candidate, s sample, metadata map[string]map[string]any) []string {
	set := map[string]struct{}{}

	if s.homeObservable {
		for tag, markers := range e.taxonomy.BehavioralTags {
			for _, marker := range markers {
				if strings.Contains(s.html, marker) {
					set[string(tag)] = struct{}{}
					break
				}
			}
		}
	} else {
		for _, tag := range e.previousTags(ctx, candidate) {
			set[tag] = struct{}{}
		}
	}

	for _, tag := range metadataTags(metadata) {
		set[tag] = struct{}{}
	}

	tags := make([]string, 0, len(set))
	for tag := range set {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// previous returns an update that keeps the stored classification
func (e *engine) previous(ctx context.Context, candidate *schema.Candidate, metadata map[string]map[string]any) store.ClassificationUpdate {
	scores, err := candidate.Scores()
	if err != nil {
		logger.WarnCtx(ctx, "Ignoring unreadable category scores",
			zap.String("record_id", candidate.ID),
			zap.Error(err),
		)
		scores = schema.CategoryScores{}
	}

	return store.ClassificationUpdate{
		Scores:             scores,
		PrimaryCategory:    candidate.PrimaryCategory,
		CategoryConfidence: candidate.CategoryConfidence,
		BehavioralTags:     e.behavioralTags(ctx, candidate, sample{}, metadata),
	}
}

func (e *engine) previousTags(ctx context.Context, candidate *schema.Candidate) []string {
	tags, err := candidate.Tags()
	if err != nil {
		logger.WarnCtx(ctx, "Ignoring unreadable behavioral tags",
			zap.String("record_id", candidate.ID),
			zap.Error(err),
		)
		return nil
	}
	return tags
}

func (e *engine) metadata(ctx context.Context, candidate *schema.Candidate) map[string]map[string]any {
	metadata, err := candidate.Metadata()
	if err != nil {
		logger.WarnCtx(ctx, "Ignoring unreadable discovery metadata",
			zap.String("record_id", candidate.ID),
			zap.Error(err),
		)
		return map[string]map[string]any{}
	}
	return metadata
}

// metadataTags collects the behavioral tag lists supplied by discovery sources
func metadataTags(metadata map[string]map[string]any) []string {
	var tags []string
	for _, fields := range metadata {
		list, ok := fields[domain.METADATA_BEHAVIORAL_TAGS_KEY].([]any)
		if !ok {
			continue
		}
		for _, v := range list {
			if tag, ok := v.(string); ok {
				if tag = strings.ToLower(strings.TrimSpace(tag)); tag != "" {
					tags = append(tags, tag)
				}
			}
		}
	}
	return tags
}

// flattenMetadata merges per-source metadata into one map for rule evaluation.
// Sources are applied in name order so that the result is deterministic.
func flattenMetadata(metadata map[string]map[string]any) map[string]any {
	sources := make([]string, 0, len(metadata))
	for source := range metadata {
		sources = append(sources, source)
	}
	sort.Strings(sources)

	flat := map[string]any{}
	for _, source := range sources {
		for k, v := range metadata[source] {
			flat[k] = v
		}
	}
	return flat
}

// argmax returns the top scoring category; ties go to the earlier taxonomy entry
func argmax(scores schema.CategoryScores) (domain.Category, float64) {
	top := domain.Taxonomy[0]
	best := scores[top]
	for _, category := range domain.Taxonomy[1:] {
		if scores[category] > best {
			top, best = category, scores[category]
		}
	}
	return top, best
}

func lowerAll(values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = strings.ToLower(v)
	}
	return out
}
