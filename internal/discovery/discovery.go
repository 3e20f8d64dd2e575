package discovery

import (
	"context"
	"fmt"
	"maps"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/feral-file/ff-storefront-indexer/internal/adapter"
	"github.com/feral-file/ff-storefront-indexer/internal/domain"
	"github.com/feral-file/ff-storefront-indexer/internal/logger"
	"github.com/feral-file/ff-storefront-indexer/internal/metrics"
	"github.com/feral-file/ff-storefront-indexer/internal/normalizer"
	"github.com/feral-file/ff-storefront-indexer/internal/store"
)

// SubmitResult is the outcome of a candidate submission
type SubmitResult struct {
	Created  bool   `json:"created"`
	RecordID string `json:"record_id"`
}

// Submitter accepts raw candidates from feed collaborators
//
//go:generate mockgen -source=discovery.go -destination=../mocks/discovery.go -package=mocks -mock_names=Submitter=MockSubmitter
type Submitter interface {
	// Submit normalizes the URL and persists the candidate unconditionally. A URL that
	// is already known only has the source's metadata merged in. The only rejection is
	// a malformed URL or a missing source, reported as domain.ErrInvalidInput.
	Submit(ctx context.Context, rawURL string, source string, metadata map[string]any) (*SubmitResult, error)
}

type service struct {
	store store.Store
	clock adapter.Clock
}

// NewService creates a new discovery service
func NewService(st store.Store, clock adapter.Clock) Submitter {
	return &service{
		store: st,
		clock: clock,
	}
}

// Submit normalizes and upserts a candidate
func (s *service) Submit(ctx context.Context, rawURL string, source string, metadata map[string]any) (*SubmitResult, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, fmt.Errorf("%w: source is required", domain.ErrInvalidInput)
	}

	candidate, err := normalizer.Normalize(rawURL)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()

	bag := make(map[string]any, len(metadata)+1)
	maps.Copy(bag, metadata)
	bag[domain.METADATA_SUBMITTED_AT_KEY] = now.Format(time.RFC3339)

	result, err := s.store.UpsertCandidate(ctx, store.UpsertCandidateInput{
		ID:           ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		URL:          candidate.URL,
		DedupKey:     candidate.DedupKey,
		Host:         candidate.Host,
		Source:       source,
		Metadata:     bag,
		DiscoveredAt: now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to submit candidate %s: %w", candidate.URL, err)
	}

	metrics.CandidatesSubmitted.WithLabelValues(source, strconv.FormatBool(result.Created)).Inc()

	if result.Created {
		logger.InfoCtx(ctx, "Discovered new candidate",
			zap.String("record_id", result.ID),
			zap.String("url", candidate.URL),
			zap.String("source", source),
		)
	} else {
		logger.DebugCtx(ctx, "Merged metadata into known candidate",
			zap.String("record_id", result.ID),
			zap.String("url", candidate.URL),
			zap.String("source", source),
		)
	}

	return &SubmitResult{
		Created:  result.Created,
		RecordID: result.ID,
	}, nil
}
