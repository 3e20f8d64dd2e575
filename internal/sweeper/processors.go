package sweeper

import (
	"context"

	"github.com/feral-file/ff-storefront-indexer/internal/adapter"
	"github.com/feral-file/ff-storefront-indexer/internal/classification"
	"github.com/feral-file/ff-storefront-indexer/internal/domain"
	"github.com/feral-file/ff-storefront-indexer/internal/health"
	"github.com/feral-file/ff-storefront-indexer/internal/store"
	"github.com/feral-file/ff-storefront-indexer/internal/store/schema"
	"github.com/feral-file/ff-storefront-indexer/internal/verification"
)

// NewVerificationSweeper creates a sweeper that verifies the platform of due candidates
func NewVerificationSweeper(cfg Config, st store.Store, engine verification.Engine, clock adapter.Clock) Sweeper {
	return newPhaseSweeper(domain.PhaseVerification, cfg, st, clock, func(ctx context.Context, candidate *schema.Candidate) (*outcome, error) {
		result, err := engine.Verify(ctx, candidate)
		if err != nil {
			return nil, err
		}
		return &outcome{
			failure: result.Failure,
			save: func(ctx context.Context, attempt store.Attempt) error {
				return st.SaveVerificationResult(ctx, candidate.ID, result.Update, attempt)
			},
		}, nil
	})
}

// NewHealthSweeper creates a sweeper that checks the health of due verified candidates
func NewHealthSweeper(cfg Config, st store.Store, engine health.Engine, clock adapter.Clock) Sweeper {
	return newPhaseSweeper(domain.PhaseHealth, cfg, st, clock, func(ctx context.Context, candidate *schema.Candidate) (*outcome, error) {
		result, err := engine.CheckHealth(ctx, candidate)
		if err != nil {
			return nil, err
		}
		return &outcome{
			failure: result.Failure,
			save: func(ctx context.Context, attempt store.Attempt) error {
				return st.SaveHealthResult(ctx, candidate.ID, result.Update, attempt)
			},
		}, nil
	})
}

// NewClassificationSweeper creates a sweeper that classifies due candidates
func NewClassificationSweeper(cfg Config, st store.Store, engine classification.Engine, clock adapter.Clock) Sweeper {
	return newPhaseSweeper(domain.PhaseClassification, cfg, st, clock, func(ctx context.Context, candidate *schema.Candidate) (*outcome, error) {
		result, err := engine.Classify(ctx, candidate)
		if err != nil {
			return nil, err
		}
		return &outcome{
			failure: result.Failure,
			save: func(ctx context.Context, attempt store.Attempt) error {
				return st.SaveClassificationResult(ctx, candidate.ID, result.Update, attempt)
			},
		}, nil
	})
}
