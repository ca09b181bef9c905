package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/d60-Lab/did-node/config"
	"github.com/d60-Lab/did-node/internal/api/handler"
	"github.com/d60-Lab/did-node/internal/metrics"
	"github.com/d60-Lab/did-node/internal/repository"
	"github.com/d60-Lab/did-node/internal/testutil"
)

func TestRouterServesOperationalEndpoints(t *testing.T) {
	cfg := &config.Config{Server: config.ServerConfig{Mode: gin.TestMode}}
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	h := handler.NewHandler(handler.Deps{
		Posts: repository.NewPostRepository(testutil.NewDB(t)),
		Topic: "news",
		Log:   zap.NewNop(),
	})

	r, err := SetupRouter(cfg, h, zap.NewNop(), Options{Metrics: m, Gatherer: reg})
	require.NoError(t, err)

	for _, path := range []string{"/", "/healthz", "/posts/" + strings.Repeat("ab", 32)} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
		assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "http_requests_total")

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/swagger/doc.json", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "/users/{domain}/post")

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/admin/posts/abcd", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code, "admin API is closed without a secret")
}
