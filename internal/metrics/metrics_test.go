package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestObserve(t *testing.T) {
	m := New()
	m.ObserveTurn("ok")
	m.ObserveTurn("ok")
	m.ObserveTurn("inference_error")
	m.ObserveInference("bedrock", time.Second, nil)
	m.ObserveStore("local", "save", time.Millisecond, errors.New("disk full"))

	require.Equal(t, 2.0, testutil.ToFloat64(m.turns.WithLabelValues("ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.turns.WithLabelValues("inference_error")))
	require.Equal(t, 1, testutil.CollectAndCount(m.inference))
	require.Equal(t, 1, testutil.CollectAndCount(m.store))
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveTurn("ok")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), `twin_chat_turns_total{outcome="ok"} 1`)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveTurn("ok")
	m.ObserveInference("x", time.Second, nil)
	m.ObserveStore("x", "load", time.Second, nil)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}
