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

func TestMetrics_Record(t *testing.T) {
	m, err := New(prometheus.NewRegistry())
	require.NoError(t, err)

	m.JobSubmitted("IMAGE")
	m.JobSubmitted("IMAGE")
	m.JobFinished("completed")
	m.AlertCreated("HIGH")
	m.EventDropped()
	m.ObserveDetector(time.Second, errors.New("boom"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.JobsSubmitted.WithLabelValues("IMAGE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JobsFinished.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AlertsCreated.WithLabelValues("HIGH")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BusDropped))
	assert.Equal(t, 1, testutil.CollectAndCount(m.DetectorDuration))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.JobSubmitted("IMAGE")
		m.JobFinished("failed")
		m.SetQueueDepth(3)
		m.WorkerBusy(1)
		m.ObserveDetector(time.Second, nil)
		m.AlertCreated("LOW")
		m.AlertHandled()
		m.EventPublished("owner")
		m.EventDropped()
		m.SubscriberDelta(1)
		m.BridgeError("redis")
	})
}

func TestMetrics_Handler(t *testing.T) {
	m, err := New(prometheus.NewRegistry())
	require.NoError(t, err)
	m.AlertHandled()

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "alerts_handled_total 1")
	assert.Contains(t, string(body), "go_goroutines")
}

func TestNew_DoubleRegistrationFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)
	_, err = New(reg)
	assert.Error(t, err)
}
