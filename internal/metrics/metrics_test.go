package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordCredential("yyg", "fresh")
	c.RecordAuthFailure("yyg", "exhausted-retries")
	c.RecordTask("yyg", "succeeded")
	c.RecordTask("yyg", "succeeded")
	c.RecordRun(time.Minute, nil)
	c.RecordRun(time.Second, errors.New("disk full"))

	assert.Equal(t, 1.0, testutil.ToFloat64(c.credentials.WithLabelValues("yyg", "fresh")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.authFailures.WithLabelValues("yyg", "exhausted-retries")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.tasks.WithLabelValues("yyg", "succeeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.runs.WithLabelValues("error")))
}

func TestHandlerServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordTask("wxpay", "skipped")

	w := httptest.NewRecorder()
	Handler(reg).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body, _ := io.ReadAll(w.Body)
	assert.Contains(t, string(body), `autotask_task_outcomes_total{site="wxpay",status="skipped"} 1`)
}
