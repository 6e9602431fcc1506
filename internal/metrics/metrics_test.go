package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveHTTP(t *testing.T) {
	before := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/api/v1/me", "200"))
	ObserveHTTP("GET", "/api/v1/me", 200, 20*time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/api/v1/me", "200")))

	ObserveHTTP("GET", "", 404, time.Millisecond)
	assert.Equal(t, float64(1), testutil.ToFloat64(httpRequests.WithLabelValues("GET", "unmatched", "404")))
}

func TestTrackInFlight(t *testing.T) {
	done := TrackInFlight()
	assert.Equal(t, float64(1), testutil.ToFloat64(httpInFlight))
	done()
	assert.Equal(t, float64(0), testutil.ToFloat64(httpInFlight))
}

func TestRecordCRMSync(t *testing.T) {
	before := testutil.ToFloat64(crmJobsUpserted)
	RecordCRMSync("ok", 3)
	RecordCRMSync("error", 0)
	assert.Equal(t, before+3, testutil.ToFloat64(crmJobsUpserted))
	assert.Equal(t, float64(1), testutil.ToFloat64(crmSyncs.WithLabelValues("error")))
}

func TestHandlerServesRegistry(t *testing.T) {
	RecordEmail("welcome", "sent")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "roofpro_notifications_emails_total"))
	assert.True(t, strings.Contains(body, "go_goroutines"))
}
