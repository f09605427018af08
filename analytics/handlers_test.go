package analytics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDataNotConfigured(t *testing.T) {
	e := echo.New()
	NewHandler(nil, time.Minute, nil).RegisterRoutes(e.Group("/api/analytics"))

	for _, path := range []string{"/api/analytics/data", "/api/analytics/realtime"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
		assert.Contains(t, rec.Body.String(), "not configured", path)
	}
}

func TestHealthReportsConfiguration(t *testing.T) {
	e := echo.New()
	NewHandler(nil, time.Minute, nil).RegisterRoutes(e.Group("/api/analytics"))

	req := httptest.NewRequest(http.MethodGet, "/api/analytics/health", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "unconfigured")
}

func TestDataCachesOverview(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		json.NewEncoder(w).Encode(runReportResponse{})
	}))
	defer srv.Close()

	e := echo.New()
	client := newTestClient("123456", srv.URL, srv.Client())
	NewHandler(client, time.Minute, nil).RegisterRoutes(e.Group("/api/analytics"))

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/analytics/data", nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	// One overview means two upstream reports, regardless of request count.
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestDataUpstreamFailureMapsTo502(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	e := echo.New()
	client := newTestClient("123456", srv.URL, srv.Client())
	NewHandler(client, time.Minute, nil).RegisterRoutes(e.Group("/api/analytics"))

	req := httptest.NewRequest(http.MethodGet, "/api/analytics/data", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "Failed to fetch data from Google Analytics Data API")
}
