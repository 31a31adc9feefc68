package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/vikram-m-kumar/event-driven-order-management-system/internal/correlation"
	"github.com/vikram-m-kumar/event-driven-order-management-system/internal/logging"
)

const requestIDHeader = "X-Request-Id"

// NewRouter builds the API engine: health, order routes and a JSON 404.
func NewRouter(cfg HandlerConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestContext(cfg.logger()))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "order_api ok"})
	})

	RegisterOrdersRoutes(r, cfg)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	})
	return r
}

// requestContext resolves the correlation id (generating one when the
// header is absent), echoes it back and logs the request.
func requestContext(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		cid := correlation.OrNew(c.GetHeader(correlation.Header))
		ctx := correlation.WithID(c.Request.Context(), cid)
		if rid := c.GetHeader(requestIDHeader); rid != "" {
			ctx = logging.WithRequestID(ctx, rid)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Header(correlation.Header, cid)

		logging.With(ctx, logger).Info("http_request_received",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path))
		c.Next()
	}
}
