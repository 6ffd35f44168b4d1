package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/stock-engine/pkg/metrics"
)

func opsRouter(m *metrics.Metrics, checks map[string]Check) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return NewOpsRouter(OpsConfig{
		ServiceName: "stock-engine",
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		Metrics:     m,
		Checks:      checks,
	})
}

func serve(router *gin.Engine, path string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestRequestID_GeneratedOrPropagated(t *testing.T) {
	router := opsRouter(nil, nil)

	rec := serve(router, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(HeaderRequestID))

	rec = serve(router, "/health", http.Header{HeaderRequestID: {"req-42"}})
	assert.Equal(t, "req-42", rec.Header().Get(HeaderRequestID))
}

func TestReadiness_ListsEveryFailingCheck(t *testing.T) {
	healthy := true
	router := opsRouter(nil, map[string]Check{
		"mongodb": func(context.Context) error {
			if healthy {
				return nil
			}
			return errors.New("no reachable servers")
		},
		"kafka": func(context.Context) error { return nil },
	})

	rec := serve(router, "/ready", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	healthy = false
	rec = serve(router, "/ready", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body struct {
		Failing []string          `json:"failing"`
		Checks  map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []string{"mongodb"}, body.Failing)
	assert.Equal(t, "no reachable servers", body.Checks["mongodb"])
	assert.Equal(t, "ok", body.Checks["kafka"])
}

func TestRecovery_ReturnsInternalError(t *testing.T) {
	router := opsRouter(nil, nil)
	router.GET("/boom", func(*gin.Context) { panic("kaboom") })

	rec := serve(router, "/boom", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "INTERNAL_ERROR")
}

func TestNoRoute(t *testing.T) {
	rec := serve(opsRouter(nil, nil), "/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "ROUTE_NOT_FOUND")
}

func TestMetrics_CountsRoutesButNotScrapes(t *testing.T) {
	m := metrics.New(metrics.DefaultConfig("stock-engine"))
	router := opsRouter(m, nil)

	serve(router, "/health", nil)
	serve(router, "/nope", nil)
	serve(router, "/metrics", nil)

	rec := serve(router, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `wms_http_requests_total{method="GET",path="/health",service="stock-engine",status="200"} 1`)
	assert.Contains(t, body, `wms_http_requests_total{method="GET",path="unmatched",service="stock-engine",status="404"} 1`)
	assert.NotContains(t, body, `path="/metrics"`)
}
