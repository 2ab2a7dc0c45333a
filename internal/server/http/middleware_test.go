package httpserver

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/paper-timeline/internal/observability"
)

func TestCorrelationIDMiddleware_UsesExistingHeader(t *testing.T) {
	handler := correlationIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cid := observability.CorrelationIDFromContext(r.Context())
		if cid != "test-correlation-123" {
			t.Errorf("expected correlation ID test-correlation-123, got %s", cid)
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("X-Correlation-ID", "test-correlation-123")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Header().Get("X-Correlation-ID") != "test-correlation-123" {
		t.Errorf("expected X-Correlation-ID header to be set")
	}
}

func TestCorrelationIDMiddleware_GeneratesIfMissing(t *testing.T) {
	handler := correlationIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cid := observability.CorrelationIDFromContext(r.Context())
		if cid == "" {
			t.Error("expected non-empty correlation ID")
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/test", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Header().Get("X-Correlation-ID") == "" {
		t.Error("expected X-Correlation-ID header to be set")
	}
}

func TestCorrelationIDMiddleware_FallsBackToRequestID(t *testing.T) {
	handler := middleware.RequestID(correlationIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := observability.RequestIDFromContext(r.Context())
		assert.NotEmpty(t, reqID)
		assert.Equal(t, reqID, observability.CorrelationIDFromContext(r.Context()))
	})))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("GET", "/test", nil))
	assert.NotEmpty(t, rr.Header().Get("X-Correlation-ID"))
}

func TestJSONContentTypeMiddleware(t *testing.T) {
	handler := jsonContentTypeMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("GET", "/test", nil))
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
}

func TestMetricsMiddleware_RecordsRoutePattern(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetricsWith(reg, "test")

	env := newTestEnv(t, nil)
	env.init(t)
	srv := NewServer(Config{Address: ":0"}, env.tl, nil, metrics, zerolog.Nop())

	for _, path := range []string{"/api/v1/papers/1", "/api/v1/papers/2", "/api/v1/papers/missing"} {
		serveHTTP(srv, httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.HTTPRequests.WithLabelValues("/api/v1/papers/{paperID}", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.HTTPRequests.WithLabelValues("/api/v1/papers/{paperID}", "404")))

	count, err := testutil.GatherAndCount(reg, "test_http_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestRequestLogging_CarriesCorrelationID(t *testing.T) {
	env := newTestEnv(t, nil)
	env.init(t)

	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)
	srv := NewServer(Config{Address: ":0"}, env.tl, nil, nil, logger)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/papers/2/like", nil)
	req.Header.Set("X-Correlation-ID", "cid-42")
	rr := serveHTTP(srv, req)
	require.Equal(t, http.StatusAccepted, rr.Code)
	env.engine.Wait()

	entries := map[string]map[string]interface{}{}
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(line, &entry))
		if msg, ok := entry["message"].(string); ok {
			entries[msg] = entry
		}
	}

	require.Contains(t, entries, "like accepted")
	assert.Equal(t, "cid-42", entries["like accepted"]["correlation_id"])
	assert.Equal(t, "2", entries["like accepted"]["paper_id"])

	require.Contains(t, entries, "request served")
	assert.Equal(t, "cid-42", entries["request served"]["correlation_id"])
	assert.Equal(t, "/api/v1/papers/{paperID}/like", entries["request served"]["route"])
	assert.EqualValues(t, http.StatusAccepted, entries["request served"]["status"])
}
