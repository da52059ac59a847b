package observability

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestNewOTLPTracerReturnsNopWhenEndpointEmpty(t *testing.T) {
	tracer, err := NewOTLPTracer(context.Background(), "", "evkernel")
	require.NoError(t, err)

	_, span := tracer.Start(context.Background(), "op")
	span.End()
	require.NoError(t, tracer.Shutdown(context.Background()))
}

func TestMetricsHandlerExportsRegisteredCollectors(t *testing.T) {
	metrics, reg := NewMetrics()
	metrics.QueueDepth.Set(3)
	metrics.TasksTotal.WithLabelValues("completed").Inc()

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	require.Equal(t, float64(3), testutil.ToFloat64(metrics.QueueDepth))
}
