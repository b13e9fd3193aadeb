package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zsiec/ltcgen/internal/config"
	"github.com/zsiec/ltcgen/internal/errors"
	"github.com/zsiec/ltcgen/internal/logger"
)

func okHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func TestRequestIDMiddleware(t *testing.T) {
	s := newTestServer(t, testServerOptions{})

	var seen string
	handler := s.requestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get(logger.RequestIDHeader)
		w.WriteHeader(http.StatusOK)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/test", nil))
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rr.Header().Get(logger.RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(logger.RequestIDHeader, "test-request-id")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, "test-request-id", rr.Header().Get(logger.RequestIDHeader))
}

func TestCORSMiddleware(t *testing.T) {
	s := newTestServer(t, testServerOptions{})
	handler := s.corsMiddleware(http.HandlerFunc(okHandler))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/test", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET, POST, PUT, PATCH, OPTIONS", rr.Header().Get("Access-Control-Allow-Methods"))
	assert.Contains(t, rr.Header().Get("Access-Control-Expose-Headers"), HeaderCache)

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodOptions, "/test", nil))
	assert.Equal(t, http.StatusNoContent, rr.Code)
}

func TestCORSPreflightThroughRouter(t *testing.T) {
	s := newTestServer(t, testServerOptions{})

	rr := do(s, http.MethodOptions, "/api/v1/userbits", "")
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Contains(t, rr.Header().Get("Access-Control-Allow-Methods"), "PATCH")
}

func TestRecoveryMiddleware(t *testing.T) {
	s := newTestServer(t, testServerOptions{})
	handler := s.recoveryMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("test panic")
	}))

	rr := httptest.NewRecorder()
	assert.NotPanics(t, func() {
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/test", nil))
	})
	assert.Equal(t, http.StatusInternalServerError, rr.Code)

	var resp errors.ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, errors.ErrorTypeInternal, resp.Error.Type)
}

func TestRecoveryMiddleware_LogsRequestID(t *testing.T) {
	s := newTestServer(t, testServerOptions{})
	var buf bytes.Buffer
	s.logger.SetOutput(&buf)
	s.logger.SetFormatter(&logrus.JSONFormatter{})

	s.GetRouter().HandleFunc("/boom", func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	req.Header.Set(logger.RequestIDHeader, "req-boom")
	rr := httptest.NewRecorder()
	s.GetRouter().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Contains(t, buf.String(), "Panic recovered")
	assert.Contains(t, buf.String(), `"request_id":"req-boom"`)
}

func TestRateLimitMiddleware(t *testing.T) {
	s := newTestServer(t, testServerOptions{server: &config.ServerConfig{RateLimit: 0.01, RateBurst: 1}})

	rr := do(s, http.MethodGet, "/api/v1/rates", "")
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = do(s, http.MethodGet, "/api/v1/rates", "")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))

	var resp errors.ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, errors.ErrorTypeRateLimit, resp.Error.Type)

	// Probes sit outside the API and are never limited.
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, do(s, http.MethodGet, "/live", "").Code)
	}
}

func TestRateLimitMiddleware_Disabled(t *testing.T) {
	s := newTestServer(t, testServerOptions{})
	handler := s.rateLimitMiddleware(http.HandlerFunc(okHandler))

	for i := 0; i < 20; i++ {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/test", nil))
		assert.Equal(t, http.StatusOK, rr.Code)
	}
}

func TestBodyLimitMiddleware(t *testing.T) {
	s := newTestServer(t, testServerOptions{server: &config.ServerConfig{MaxBodyBytes: 16}})

	rr := do(s, http.MethodPost, "/api/v1/frames", `{"count": 1, "start": "00:00:00:00"}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	resp := decodeError(t, rr.Body.Bytes())
	assert.Equal(t, "BODY_TOO_LARGE", resp.Error.Code)
	assert.Equal(t, float64(16), resp.Error.Details["limit"])

	rr = do(s, http.MethodPost, "/api/v1/frames", `{"count": 1}`)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestMetricsMiddleware(t *testing.T) {
	s := newTestServer(t, testServerOptions{})

	counter := httpRequestsTotal.WithLabelValues(http.MethodGet, "/api/v1/rates", "200")
	before := testutil.ToFloat64(counter)

	do(s, http.MethodGet, "/api/v1/rates", "")
	do(s, http.MethodGet, "/api/v1/rates", "")
	assert.Equal(t, before+2, testutil.ToFloat64(counter))

	probes := httpRequestsTotal.WithLabelValues(http.MethodGet, "/live", "200")
	before = testutil.ToFloat64(probes)
	do(s, http.MethodGet, "/live", "")
	assert.Equal(t, before, testutil.ToFloat64(probes), "probes are not counted")
}

func TestAltSvcMiddleware_NoHTTP3(t *testing.T) {
	s := newTestServer(t, testServerOptions{})
	handler := s.altSvcMiddleware(http.HandlerFunc(okHandler))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/test", nil))
	assert.Empty(t, rr.Header().Get("Alt-Svc"))
}
