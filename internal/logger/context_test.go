package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// TestFromContext_FallsBackToGlobal returns the global logger for bare contexts.
func TestFromContext_FallsBackToGlobal(t *testing.T) {
	t.Parallel()

	require.Same(t, Logger(), FromContext(context.Background()))
}

// TestWithKV_AttachesFields checks that scoped fields reach the log entry.
func TestWithKV_AttachesFields(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.DebugLevel)
	ctx := ToContext(context.Background(), zap.New(core).Sugar())
	ctx = WithName(ctx, "release")
	ctx = WithKV(ctx, "release", "13.2-RELEASE")

	InfoKV(ctx, "Downloading asset", "asset", "base")

	entries := logs.All()
	require.Len(t, entries, 1)
	require.Equal(t, "release", entries[0].LoggerName)
	require.Equal(t, "13.2-RELEASE", entries[0].ContextMap()["release"])
	require.Equal(t, "base", entries[0].ContextMap()["asset"])
}
