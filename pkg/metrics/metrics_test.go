package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveUpstream(t *testing.T) {
	before := testutil.ToFloat64(UpstreamCalls.WithLabelValues("test", "error"))
	ObserveUpstream("test", errors.New("boom"))
	after := testutil.ToFloat64(UpstreamCalls.WithLabelValues("test", "error"))
	assert.Equal(t, before+1, after)
}

func TestHandlerExposesCollectors(t *testing.T) {
	ObserveRequest("/test", 200, 5*time.Millisecond)

	rr := httptest.NewRecorder()
	Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rr.Code)
	body, _ := io.ReadAll(rr.Body)
	assert.True(t, strings.Contains(string(body), `spotifylikes_http_requests_total{code="200",route="/test"}`))
}
