package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMetrics(t *testing.T) (*Metrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)
	return m, reg
}

func TestNew_DoubleRegisterFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)
	_, err = New(reg)
	assert.Error(t, err)
}

func TestObserveOperation(t *testing.T) {
	m, _ := newTestMetrics(t)
	m.ObserveOperation("save", OutcomeOK, 5*time.Millisecond)
	m.ObserveOperation("save", "version_conflict", time.Millisecond)
	m.ObserveOperation("save", OutcomeOK, time.Millisecond)

	assert.InDelta(t, 2, testutil.ToFloat64(m.operations.WithLabelValues("save", OutcomeOK)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.operations.WithLabelValues("save", "version_conflict")), 0)
	assert.Equal(t, 1, testutil.CollectAndCount(m.operationDuration))
}

func TestCacheAndNotification(t *testing.T) {
	m, _ := newTestMetrics(t)
	m.CacheLookup(true)
	m.CacheLookup(false)
	m.CacheLookup(false)
	m.Notification(nil)
	m.Notification(errors.New("down"))

	assert.InDelta(t, 1, testutil.ToFloat64(m.cacheLookups.WithLabelValues(CacheHit)), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.cacheLookups.WithLabelValues(CacheMiss)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.notifications.WithLabelValues("error")), 0)
}

func TestHTTPStarted(t *testing.T) {
	m, _ := newTestMetrics(t)
	done := m.HTTPStarted(http.MethodGet)
	assert.InDelta(t, 1, testutil.ToFloat64(m.httpInflight), 0)
	done("/config/{service}", http.StatusOK)
	assert.InDelta(t, 0, testutil.ToFloat64(m.httpInflight), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/config/{service}", "200")), 0)
}

func TestHandler(t *testing.T) {
	m, _ := newTestMetrics(t)
	m.ObserveOperation("get", OutcomeOK, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "config_service_operations_total"))
}

func TestRegisterDB(t *testing.T) {
	m, reg := newTestMetrics(t)
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	require.NoError(t, m.RegisterDB(reg, db))
	families, err := reg.Gather()
	require.NoError(t, err)

	var found bool
	for _, f := range families {
		if strings.HasPrefix(f.GetName(), "go_sql_") {
			found = true
		}
	}
	assert.True(t, found)
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveOperation("save", OutcomeOK, time.Millisecond)
	m.CacheLookup(true)
	m.Notification(nil)
	m.HTTPStarted("GET")("/x", 200)
	assert.NoError(t, m.RegisterDB(nil, nil))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
