package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(h http.HandlerFunc, path string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func TestHandleHealth(t *testing.T) {
	manager := NewManager(nil)
	manager.Register(&mockChecker{name: "generator"})
	handler := NewHandler(manager)

	rr := serve(handler.HandleHealth, "/health")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache, no-store, must-revalidate", rr.Header().Get("Cache-Control"))

	var response Response
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &response))
	assert.Equal(t, StatusOK, response.Status)
	assert.NotZero(t, response.Timestamp)
	assert.NotEmpty(t, response.Version)
	assert.Equal(t, "0s", response.Uptime)
	assert.Contains(t, response.Checks, "generator")
}

func TestHandleHealth_Statuses(t *testing.T) {
	tests := []struct {
		name     string
		checker  *mockChecker
		code     int
		expected Status
	}{
		{"critical failure", &mockChecker{name: "generator", err: errors.New("x")}, http.StatusServiceUnavailable, StatusDown},
		{"optional failure", &mockChecker{name: "redis", err: errors.New("x"), optional: true}, http.StatusOK, StatusDegraded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			manager := NewManager(nil)
			manager.Register(tt.checker)
			rr := serve(NewHandler(manager).HandleHealth, "/health")

			assert.Equal(t, tt.code, rr.Code)
			var response Response
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &response))
			assert.Equal(t, tt.expected, response.Status)
		})
	}
}

func TestHandleReady(t *testing.T) {
	manager := NewManager(nil)
	checker := &mockChecker{name: "generator"}
	manager.Register(checker)
	handler := NewHandler(manager)

	rr := serve(handler.HandleReady, "/ready")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code, "not ready before the first run")
	assert.Zero(t, checker.calls.Load(), "ready does not run checks")

	manager.RunChecks(context.Background())
	rr = serve(handler.HandleReady, "/ready")
	assert.Equal(t, http.StatusOK, rr.Code)

	var response struct {
		Status Status `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &response))
	assert.Equal(t, StatusOK, response.Status)
}

func TestHandleLive(t *testing.T) {
	rr := serve(NewHandler(NewManager(nil)).HandleLive, "/live")
	assert.Equal(t, http.StatusOK, rr.Code)

	var response struct {
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &response))
	assert.Equal(t, "alive", response.Status)
}
