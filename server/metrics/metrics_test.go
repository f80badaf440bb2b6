package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsHandler(t *testing.T) {
	m := NewMetrics()
	m.ToolCalls.WithLabelValues("get_image_for_analysis", "success").Inc()
	m.ImagesDropped.WithLabelValues("outside_root").Add(2)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `concierge_tool_calls_total{status="success",tool="get_image_for_analysis"} 1`)
	assert.Contains(t, body, `concierge_images_dropped_total{reason="outside_root"} 2`)
	assert.Contains(t, body, "go_goroutines")
}

func TestMetricsAreIndependent(t *testing.T) {
	a, b := NewMetrics(), NewMetrics()
	a.CompletionCalls.WithLabelValues("gpt-4o", "ok").Inc()

	assert.Equal(t, float64(1), testutil.ToFloat64(a.CompletionCalls.WithLabelValues("gpt-4o", "ok")))
	assert.Equal(t, float64(0), testutil.ToFloat64(b.CompletionCalls.WithLabelValues("gpt-4o", "ok")))
	assert.NotSame(t, a.Registry(), b.Registry())
}
