package httpapi

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	sharederrors "github.com/payetonkawa/order-api/internal/shared/errors"
)

// rolesHeader carries the role set resolved by the upstream gateway.
const rolesHeader = "X-Auth-Roles"

// requireRole denies the request unless the forwarded role set contains the
// required role. The allow/deny decision itself was computed upstream; this
// gate only consumes it.
func requireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		for _, granted := range strings.Split(c.GetHeader(rolesHeader), ",") {
			if strings.TrimSpace(granted) == role {
				c.Next()
				return
			}
		}
		sharederrors.Respond(c, sharederrors.ErrForbidden.WithDetail("missing role "+role))
		c.Abort()
	}
}

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total HTTP requests.",
	}, []string{"method", "path", "status"})
	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "http_request_duration_seconds",
		Help: "HTTP request latency.",
	}, []string{"method", "path"})
)

func requestMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		httpRequests.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		httpDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}
