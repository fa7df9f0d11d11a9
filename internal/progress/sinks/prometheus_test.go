package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/blogwatch/ingestor/internal/progress"
)

func TestPrometheusSink_RecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	batch := []progress.Event{
		{TS: time.Now(), Stage: progress.StageTickStart, Source: "example"},
		{TS: time.Now(), Stage: progress.StageTickDone, Source: "example", Dur: 2 * time.Second},
		{TS: time.Now(), Stage: progress.StagePostSuccess, Source: "example", URL: "https://x.test/a"},
		{TS: time.Now(), Stage: progress.StagePostFailure, Source: "example", URL: "https://x.test/b", Kind: "embedding_failed", Attempt: 2},
	}

	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Equal(t, 1.0, testutil.ToFloat64(sink.ticksStarted.WithLabelValues("example")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.postsOutcome.WithLabelValues("example", "success", "")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.postsOutcome.WithLabelValues("example", "failure", "embedding_failed")))
	require.Equal(t, 1, testutil.CollectAndCount(sink.ticksDuration, "ingestor_progress_tick_duration_seconds"))
}

func TestPrometheusSink_ClosePerformsNoAction(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	require.NoError(t, sink.Close(context.Background()))
}
