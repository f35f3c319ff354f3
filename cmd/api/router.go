package main

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tabletop-shop/shop-engine/api"
	"github.com/tabletop-shop/shop-engine/internal/api/handlers"
	"github.com/tabletop-shop/shop-engine/pkg/contracts/openapi"
	"github.com/tabletop-shop/shop-engine/pkg/logging"
	"github.com/tabletop-shop/shop-engine/pkg/metrics"
	"github.com/tabletop-shop/shop-engine/pkg/middleware"
)

const apiPrefix = "/api/v1"

type routeRegistrar interface {
	RegisterRoutes(router *gin.RouterGroup)
}

type routerDeps struct {
	logger     *logging.Logger
	metrics    *metrics.Metrics
	validator  *openapi.Validator
	ready      func() error
	origins    []string
	registrars []routeRegistrar
}

func newRouter(deps routerDeps) *gin.Engine {
	handlers.RegisterDomainErrors()

	router := gin.New()
	mwConfig := middleware.DefaultConfig(serviceName, deps.logger.Logger)
	mwConfig.AllowedOrigins = deps.origins
	middleware.Setup(router, mwConfig)
	router.Use(middleware.MetricsMiddleware(deps.metrics))
	router.Use(middleware.TracingMiddleware(middleware.DefaultTracingConfig(serviceName)))
	router.Use(middleware.ContractValidation(deps.validator, apiPrefix))

	router.GET("/health", middleware.HealthCheck(serviceName))
	router.GET("/ready", middleware.ReadinessCheck(serviceName, deps.ready))
	router.GET("/metrics", middleware.MetricsEndpoint(deps.metrics))
	router.GET("/openapi.yaml", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/yaml", api.OpenAPISpec)
	})

	v1 := router.Group(apiPrefix)
	for _, r := range deps.registrars {
		r.RegisterRoutes(v1)
	}

	return router
}
