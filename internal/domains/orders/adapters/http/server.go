// Package httpapi exposes the order service over HTTP. Authentication and
// role extraction happen upstream (API gateway); this layer only consumes
// the forwarded role set to allow or deny an operation.
package httpapi

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/payetonkawa/order-api/internal/domains/orders/ports"
)

const (
	// RoleRead and RoleWrite gate the order endpoints.
	RoleRead  = "order:read"
	RoleWrite = "order:write"
)

// Server wires the gin engine with the order routes.
type Server struct {
	engine *gin.Engine
	svc    ports.Service
	logger *slog.Logger
}

// NewServer builds the HTTP surface. Middleware must be in place before the
// routes are registered, so tracing and metrics are wired here rather than
// appended by the caller.
func NewServer(svc ports.Service, serviceName string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	engine := gin.New()
	engine.Use(gin.Recovery(), otelgin.Middleware(serviceName), requestMetrics())

	s := &Server{engine: engine, svc: svc, logger: logger}
	s.registerRoutes()
	return s
}

// Engine exposes the underlying router for middleware and serving.
func (s *Server) Engine() *gin.Engine { return s.engine }

func (s *Server) registerRoutes() {
	s.engine.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	orders := s.engine.Group("/orders")
	orders.POST("", requireRole(RoleWrite), s.createOrder)
	orders.GET("", requireRole(RoleRead), s.listOrders)
	orders.GET(":id", requireRole(RoleRead), s.getOrder)
	orders.PUT(":id/status", requireRole(RoleWrite), s.updateStatus)
	orders.PUT(":id/items", requireRole(RoleWrite), s.updateItems)
	orders.DELETE(":id", requireRole(RoleWrite), s.deleteOrder)
}
