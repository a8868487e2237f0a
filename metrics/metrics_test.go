package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RequestHandled("parse_text", "ok")
		m.ParseObserved("ipadic", time.Millisecond)
		m.EngineLaunched("ipadic", nil)
		m.EngineRestarted()
		m.SetEnginesLive(2)
		m.MalformedLine("ipadic")
	})
	assert.Nil(t, m.Registry())
}

func TestRecording(t *testing.T) {
	m := New()
	m.RequestHandled("parse_text", "ok")
	m.RequestHandled("parse_text", "ok")
	m.EngineLaunched("ipadic", nil)
	m.EngineLaunched("ipadic", errors.New("boom"))
	m.EngineRestarted()
	m.SetEnginesLive(3)
	m.MalformedLine("unidic-mecab-translate")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Requests.WithLabelValues("parse_text", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EngineLaunches.WithLabelValues("ipadic", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EngineRestarts))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.EnginesLive))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FeatureErrors.WithLabelValues("unidic-mecab-translate")))
}

func TestServerRoutes(t *testing.T) {
	m := New()
	m.EngineRestarted()
	h := NewServer("127.0.0.1:0", m).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "mecab_bridge_engine_restarts_total 1"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/metrics", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServerStartStop(t *testing.T) {
	s := NewServer("127.0.0.1:0", New())
	require.NoError(t, s.Start())
	resp, err := http.Get("http://" + s.Addr() + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, s.Stop())
}
