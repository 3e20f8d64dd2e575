package logger

import (
	"context"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"
)

// SweepInfo identifies a phase sweep for log and error correlation
type SweepInfo struct {
	Phase   string
	SweepID string
}

// WithSweep returns a context carrying a sentry hub scoped to the sweep, so that
// errors reported with ErrorCtx during the sweep are tagged with it
func WithSweep(ctx context.Context, info SweepInfo) context.Context {
	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	hub = hub.Clone()
	hub.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag("phase", info.Phase)
		scope.SetTag("sweep_id", info.SweepID)
	})

	return sentry.SetHubOnContext(ctx, hub)
}

// FromSweep returns a logger with the sweep fields and the sentry scope from context
func FromSweep(ctx context.Context, info SweepInfo) *zap.Logger {
	return FromContext(ctx).With(
		zap.String("phase", info.Phase),
		zap.String("sweep_id", info.SweepID),
	)
}
