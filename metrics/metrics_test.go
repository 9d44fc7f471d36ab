package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoCodeAlone/keel/container"
)

func TestCollector_ObserveRequest(t *testing.T) {
	c := NewCollector("keel")
	c.ObserveRequest(http.MethodGet, "action:posts/show", 200, 5*time.Millisecond)
	c.ObserveRequest(http.MethodGet, "action:posts/show", 200, 5*time.Millisecond)
	c.ObserveRequest(http.MethodGet, "", 404, time.Millisecond)

	assert.InDelta(t, 2, testutil.ToFloat64(c.Requests.WithLabelValues("GET", "action:posts/show", "200")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(c.Requests.WithLabelValues("GET", "unmatched", "404")), 0)
}

func TestCollector_ObserveLookup(t *testing.T) {
	c := NewCollector("keel")
	cont := container.New(container.WithLookupObserver(c))
	require.NoError(t, cont.Register("service:a", "a"))
	cont.MustLookup("service:a")
	cont.MustLookup("service:a")
	_, _ = cont.Lookup("service:b")

	assert.InDelta(t, 1, testutil.ToFloat64(c.Lookups.WithLabelValues("service", "resolved")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(c.Lookups.WithLabelValues("service", "cached")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(c.Lookups.WithLabelValues("service", "missing")), 0)
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector("keel")
	c.ObserveRequest(http.MethodPost, "action:posts/create", 201, time.Millisecond)

	w := httptest.NewRecorder()
	c.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `keel_requests_total{action="action:posts/create",method="POST",status="201"} 1`)

	// Separate collectors never collide on registration.
	assert.NotPanics(t, func() { NewCollector("keel") })
}
