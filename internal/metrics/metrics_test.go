package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCollector_ExposesRecordedSeries(t *testing.T) {
	c := NewCollector()
	c.RecordHTTPRequest(http.MethodPut, "/api/doctor/complete-current-patient", http.StatusOK, 12*time.Millisecond)
	c.RecordTransition("complete")
	c.RecordNotification("consulting", nil)
	c.RecordNotification("completed", errors.New("redis down"))

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := rec.Body.String()
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, body, `clinic_lifecycle_transitions_total{transition="complete"} 1`)
	assert.Contains(t, body, `clinic_notifications_published_total{result="error",type="completed"} 1`)
	assert.Contains(t, body, `http_requests_total{method="PUT",route="/api/doctor/complete-current-patient",status="200"} 1`)
}

func TestCollector_NilIsNoop(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.RecordTransition("book")
		c.RecordNotification("completed", nil)
		c.RecordHTTPRequest(http.MethodGet, "/", http.StatusOK, time.Millisecond)
	})
}
