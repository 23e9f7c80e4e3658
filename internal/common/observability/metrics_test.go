package observability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestRecordJobProcessed(t *testing.T) {
	ctx := context.Background()
	reader := metric.NewManualReader()
	o := NewWithReader("notification-service", reader)

	o.RecordJobProcessed(ctx, "booking_confirmation", "sent")
	o.RecordJobProcessed(ctx, "booking_confirmation", "sent")
	o.RecordJobDuration(ctx, 120*time.Millisecond, "sent")

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	require.Len(t, rm.ScopeMetrics, 1)

	byName := map[string]metricdata.Metrics{}
	for _, m := range rm.ScopeMetrics[0].Metrics {
		byName[m.Name] = m
	}

	counter, ok := byName["notifications.processed"]
	require.True(t, ok)
	sum, ok := counter.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(2), sum.DataPoints[0].Value)

	_, ok = byName["notifications.duration"]
	assert.True(t, ok)

	assert.NoError(t, o.Shutdown(ctx))
}

func TestNoopIsSafe(t *testing.T) {
	ctx := context.Background()
	o := NewNoop()
	o.RecordJobProcessed(ctx, "x", "dropped")
	o.RecordJobDuration(ctx, time.Second, "dropped")
	assert.NoError(t, o.Shutdown(ctx))

	var nilObs *Observability
	nilObs.RecordJobProcessed(ctx, "x", "dropped")
	assert.NoError(t, nilObs.Shutdown(ctx))
}
