package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCollectors(t *testing.T) {
	m := New()
	m.Connections.Inc()
	m.Sessions.Inc()
	m.Auth.WithLabelValues(AuthOK).Inc()
	m.Auth.WithLabelValues(AuthFailed).Add(2)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Sessions))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Auth.WithLabelValues(AuthFailed)))
}

func TestHandler(t *testing.T) {
	m := New()
	m.Calls.WithLabelValues("ping", CallOK).Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	assert.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(body, `dmbn_calls_total{method="ping",result="ok"} 1`), body)
}
