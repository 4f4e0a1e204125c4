package metrics

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maptitesalle/mylittlegymcoach/internal/database"
	"github.com/maptitesalle/mylittlegymcoach/internal/logger"
	"github.com/maptitesalle/mylittlegymcoach/internal/shared"
)

func newTestStore(t *testing.T) (*Store, *Collector) {
	t.Helper()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "metrics.db"), logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	collector := NewCollector(prometheus.NewRegistry())
	return NewStore(db, collector, logger.NewNop()), collector
}

func TestStore(t *testing.T) {
	ctx := context.Background()
	store, collector := newTestStore(t)

	now := time.Now().UTC()
	require.NoError(t, store.Record(ctx, ExecutionMetric{
		AgentName: "generator:nutrition", Model: "gpt-4o", Status: "completed",
		PromptTokens: 100, CompletionTokens: 900, LatencyMS: 1200, Timestamp: now,
	}))
	require.NoError(t, store.Record(ctx, ExecutionMetric{
		AgentName: "generator:nutrition", Model: "gpt-4o", Status: "error",
		Timestamp: now,
	}))
	require.NoError(t, store.Record(ctx, ExecutionMetric{
		AgentName: "generator:supplements", Model: "gpt-4o", Status: "completed",
		PromptTokens: 5, CompletionTokens: 5, Timestamp: now.AddDate(0, 0, -40),
	}))

	t.Run("DailyUsage", func(t *testing.T) {
		usage, err := store.GetDailyUsage(ctx, 7)
		require.NoError(t, err)
		require.Len(t, usage, 1)
		assert.Equal(t, now.Format("2006-01-02"), usage[0].Date)
		assert.Equal(t, 100, usage[0].TotalPrompt)
		assert.Equal(t, 900, usage[0].TotalCompletion)
		assert.Equal(t, 2, usage[0].TotalExecution)
		assert.Equal(t, 1, usage[0].Failed)
	})

	t.Run("Cleanup", func(t *testing.T) {
		removed, err := store.Cleanup(ctx, 30)
		require.NoError(t, err)
		assert.Equal(t, int64(1), removed)

		removed, err = store.Cleanup(ctx, 30)
		require.NoError(t, err)
		assert.Zero(t, removed)
	})

	t.Run("RecordGeneration", func(t *testing.T) {
		store.RecordGeneration(ctx, shared.GenerationMeta{
			AgentName: "generator:flexibility",
			Status:    "completed",
			Usage:     shared.TokenUsage{PromptTokens: 10, CompletionTokens: 30, Model: "llama3"},
			Latency:   2 * time.Second,
		})

		assert.Equal(t, 1.0, testutil.ToFloat64(collector.generationsTotal.WithLabelValues("generator:flexibility", "completed")))
		assert.Equal(t, 30.0, testutil.ToFloat64(collector.tokensTotal.WithLabelValues("llama3", "completion")))

		usage, err := store.GetDailyUsage(ctx, 1)
		require.NoError(t, err)
		require.Len(t, usage, 1)
		assert.Equal(t, 3, usage[0].TotalExecution)
	})
}

func TestMapUsage(t *testing.T) {
	m := MapUsage(shared.GenerationMeta{
		AgentName: "generator:nutrition",
		Status:    "error",
		Usage:     shared.TokenUsage{PromptTokens: 1, CompletionTokens: 2, Model: "gemini-1.5-flash"},
		Latency:   1500 * time.Millisecond,
	})
	assert.Equal(t, int64(1500), m.LatencyMS)
	assert.Equal(t, "gemini-1.5-flash", m.Model)
	assert.Equal(t, "error", m.Status)
	assert.False(t, m.Timestamp.IsZero())
}

func TestGetSysHealth(t *testing.T) {
	dir := t.TempDir()
	health := GetSysHealth(dir)
	assert.Positive(t, health.Goroutines)
	assert.Equal(t, "0 B", health.DataDiskSize)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "coach.db"), make([]byte, 2048), 0o644))
	health = GetSysHealth(dir)
	assert.Equal(t, uint64(2048), health.DataDiskBytes)
	assert.Equal(t, "2.0 kB", health.DataDiskSize)

	assert.Equal(t, "n/a", GetSysHealth("").DataDiskSize)
}
