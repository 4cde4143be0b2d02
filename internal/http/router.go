package http

import (
	"os"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"go.ngs.io/climeval/internal/usecase"
)

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "X-Request-ID"

// SetupRouter creates and configures the Gin router. gatherer backs /metrics;
// nil uses the default Prometheus registry.
func SetupRouter(regridUC *usecase.RegridUseCase, gatherer prometheus.Gatherer) *gin.Engine {
	router := gin.Default()
	router.Use(requestID())

	// Setup CORS middleware.
	corsConfig := cors.DefaultConfig()

	// Default to allow all origins if not specified.
	allowedOrigins := os.Getenv("CORS_ALLOWED_ORIGINS")
	if allowedOrigins != "" {
		corsConfig.AllowOrigins = strings.Split(allowedOrigins, ",")
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddExposeHeaders(RequestIDHeader)
	router.Use(cors.New(corsConfig))

	handler := NewHandler(regridUC)

	// API v1 routes.
	v1 := router.Group("/v1")
	v1.POST("/grids/normalize", handler.NormalizeGrid)
	v1.POST("/regrid/prepare", handler.Prepare)
	v1.POST("/formula/evaluate", handler.EvaluateFormula)

	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	// Health check.
	router.GET("/health", handler.HealthCheck)

	return router
}

// requestID propagates an incoming request ID or assigns a new one.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}
