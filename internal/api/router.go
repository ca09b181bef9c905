// Package api wires the gin engine: middleware, routes and docs.
package api

import (
	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/d60-Lab/did-node/config"
	_ "github.com/d60-Lab/did-node/docs"
	"github.com/d60-Lab/did-node/internal/api/handler"
	"github.com/d60-Lab/did-node/internal/api/middleware"
	"github.com/d60-Lab/did-node/internal/metrics"
)

// Options 路由可选组件
type Options struct {
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
}

// SetupRouter 注册中间件与路由
func SetupRouter(cfg *config.Config, h *handler.Handler, log *zap.Logger, opts Options) (*gin.Engine, error) {
	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}
	if err := handler.RegisterValidators(); err != nil {
		return nil, err
	}

	r := gin.New()
	r.Use(middleware.RequestID(), middleware.Recovery(log), middleware.Logger(log))
	if cfg.Sentry.DSN != "" {
		r.Use(sentrygin.New(sentrygin.Options{Repanic: true}))
	}
	if cfg.Tracing.Endpoint != "" {
		r.Use(otelgin.Middleware(cfg.Tracing.ServiceName))
	}
	r.Use(middleware.Metrics(opts.Metrics), gzip.Gzip(gzip.DefaultCompression),
		middleware.BodyLimit(cfg.Server.MaxBodyBytes))

	r.GET("/", h.Index)
	r.GET("/healthz", h.Healthz)
	if opts.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	users := r.Group("/users/:domain")
	{
		users.POST("/post", h.SubmitPost)
		users.POST("/validate", h.ValidateIdentity)
		users.POST("/path/validate", h.ValidatePath)
	}
	r.GET("/block/latest", h.LatestBlock)
	r.GET("/posts/:blockHash", h.ListBlockPosts)
	r.POST("/keys", h.GenerateKeys)

	admin := r.Group("/admin", middleware.AdminAuth(cfg.Admin.JWTSecret))
	{
		admin.DELETE("/posts/:signature", h.RevokePost)
	}
	return r, nil
}
