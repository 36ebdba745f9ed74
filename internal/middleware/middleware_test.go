package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggingExposesRequestLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))

	r := gin.New()
	r.Use(Tracing(), Logging(base))
	r.GET("/ping", func(c *gin.Context) {
		GetLogger(c).Info("handled")
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))

	require.Equal(t, http.StatusNoContent, w.Code)
	out := buf.String()
	assert.Contains(t, out, `"msg":"handled"`)
	assert.Contains(t, out, `"path":"/ping"`)
	assert.Contains(t, out, `"msg":"request completed"`)
	assert.Contains(t, out, `"status":204`)
}

func TestGetLoggerOutsideRequest(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Same(t, slog.Default(), GetLogger(c))
}

func TestMetricsCountsByRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reg := prometheus.NewRegistry()

	r := gin.New()
	r.Use(Metrics(reg))
	r.GET("/bikes/:id", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	before := testutil.ToFloat64(httpRequestErrorsTotal.WithLabelValues("GET", "/bikes/:id", "404", "client"))
	for _, id := range []string{"a", "b"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/bikes/"+id, nil))
	}
	after := testutil.ToFloat64(httpRequestErrorsTotal.WithLabelValues("GET", "/bikes/:id", "404", "client"))
	assert.Equal(t, 2.0, after-before)

	// Registering against the same registry again must not panic.
	assert.NotPanics(t, func() { Metrics(reg) })
}

func TestAccessToken(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, AccessToken(c))

	c.Request.Header.Set("Authorization", "Bearer abc.def")
	assert.Equal(t, "abc.def", AccessToken(c))

	c.Request.Header.Set("Authorization", "Basic "+strings.Repeat("x", 4))
	assert.Empty(t, AccessToken(c))
}

func TestGetAuth0IDWithoutClaims(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	_, ok := GetAuth0ID(c)
	assert.False(t, ok)
}
