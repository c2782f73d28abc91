package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cassiomorais/paybridge/internal/observability"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMetricsRouter(t *testing.T, status int) (*chi.Mux, *observability.Metrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := observability.NewMetrics("test", reg)

	r := chi.NewRouter()
	r.Use(Metrics(m))
	r.MethodFunc(http.MethodGet, "/api/pay", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	})
	r.MethodFunc(http.MethodPost, "/api/pay", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	})
	return r, m, reg
}

func TestMetrics_RecordsRoutePattern(t *testing.T) {
	r, m, reg := newMetricsRouter(t, http.StatusOK)

	req := httptest.NewRequest(http.MethodGet, "/api/pay?account_id=ABC123", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), promtest.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/api/pay", "200")))

	families, err := reg.Gather()
	require.NoError(t, err)
	var foundDuration bool
	for _, mf := range families {
		if mf.GetName() == "test_http_request_duration_seconds" {
			foundDuration = true
		}
	}
	assert.True(t, foundDuration, "http_request_duration metric should be recorded")
}

func TestMetrics_DifferentStatusCodes(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		label      string
	}{
		{"200 OK", http.StatusOK, "200"},
		{"429 Too Many Requests", http.StatusTooManyRequests, "429"},
		{"500 Internal Server Error", http.StatusInternalServerError, "500"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, m, _ := newMetricsRouter(t, tt.statusCode)

			req := httptest.NewRequest(http.MethodPost, "/api/pay", nil)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.statusCode, w.Code)
			assert.Equal(t, float64(1), promtest.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("POST", "/api/pay", tt.label)))
		})
	}
}

func TestMetrics_UnmatchedRouteIsCollapsed(t *testing.T) {
	r, m, _ := newMetricsRouter(t, http.StatusOK)

	for _, path := range []string{"/wp-login.php", "/.env", "/api/unknown"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	assert.Equal(t, float64(3), promtest.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", unmatchedRoute, "404")))
}

func TestMetrics_NoRouter(t *testing.T) {
	m := observability.NewMetrics("test", prometheus.NewRegistry())
	handler := Metrics(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/unknown", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), promtest.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", unmatchedRoute, "200")))
}

func TestStatusWriter_WriteHeader(t *testing.T) {
	w := httptest.NewRecorder()
	sw := &statusWriter{ResponseWriter: w, statusCode: http.StatusOK}

	sw.WriteHeader(http.StatusCreated)

	assert.Equal(t, http.StatusCreated, sw.statusCode)
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestStatusWriter_DefaultStatus(t *testing.T) {
	w := httptest.NewRecorder()
	sw := &statusWriter{ResponseWriter: w, statusCode: http.StatusOK}

	sw.Write([]byte("test"))

	assert.Equal(t, http.StatusOK, sw.statusCode)
}
