package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlerExposesRegisteredMetrics(t *testing.T) {
	MatchesTotal.Inc()
	PublishTotal.WithLabelValues("newMatch", OutcomeOffline).Inc()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "flicker_matches_total")
	assert.Contains(t, rec.Body.String(), "flicker_connections_active")
	assert.Contains(t, rec.Body.String(), `flicker_publish_total{event="newMatch",outcome="offline"}`)
}
