package logger

import (
	"context"
	"testing"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithSweep(t *testing.T) {
	parent := sentry.NewHub(nil, sentry.NewScope())
	ctx := sentry.SetHubOnContext(context.Background(), parent)

	ctx = WithSweep(ctx, SweepInfo{Phase: "health", SweepID: "sweep-1"})

	hub := sentry.GetHubFromContext(ctx)
	require.NotNil(t, hub)
	assert.NotSame(t, parent, hub)
}

func TestWithSweep_WithoutHub(t *testing.T) {
	ctx := WithSweep(context.Background(), SweepInfo{Phase: "verification", SweepID: "sweep-2"})

	hub := sentry.GetHubFromContext(ctx)
	require.NotNil(t, hub)
	assert.NotSame(t, sentry.CurrentHub(), hub)
}

func TestFromSweep(t *testing.T) {
	l := FromSweep(context.Background(), SweepInfo{Phase: "verification", SweepID: "sweep-2"})
	assert.NotNil(t, l)
}
