package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FMPull/pkg/logger"
)

type routes struct{}

func (routes) RegisterRoutes(e *echo.Echo) {
	e.GET("/ping", func(c echo.Context) error { return OK(c, "pong") })
	e.GET("/boom", func(c echo.Context) error { panic("boom") })
	e.GET("/denied", func(c echo.Context) error { return Fail(c, StatusError(http.StatusForbidden, "no", nil), nil) })
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewServer(logger.NewNop(), []Handler{routes{}}, WithMetrics("/metrics", reg, reg))
}

func do(s *Server, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestServerRoutesAndMetrics(t *testing.T) {
	s := newTestServer(t)

	rec := do(s, "/ping")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":200,"data":"pong"}`, rec.Body.String())

	rec = do(s, "/denied")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "ERR_FORBIDDEN")

	rec = do(s, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `fmpull_http_requests_total{method="GET",route="/ping",status="200"} 1`)
}

func TestServerRecoversPanics(t *testing.T) {
	s := newTestServer(t)

	rec := do(s, "/boom")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = do(s, "/ping")
	assert.Equal(t, http.StatusOK, rec.Code)
}
