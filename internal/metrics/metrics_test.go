package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlerExposesCounters(t *testing.T) {
	m := New()
	m.Uploads.WithLabelValues("ok").Inc()
	m.SessionsCreated.Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `snaplink_uploads_total{status="ok"} 1`)
	assert.Contains(t, body, "snaplink_sessions_created_total 1")
}

func TestIndependentRegistries(t *testing.T) {
	a := New()
	b := New()
	a.SessionsDeleted.Inc()

	rec := httptest.NewRecorder()
	b.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "snaplink_sessions_deleted_total 0")
}
