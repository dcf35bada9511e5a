package httpapi

import (
	"context"
	"net/http"
	"sort"
	"time"

	"webphone/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Check pings one dependency.
type Check func(ctx context.Context) error

func Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Readyz runs every check with a shared timeout and reports per-dependency status.
func Readyz(checks map[string]Check, timeout time.Duration) gin.HandlerFunc {
	names := make([]string, 0, len(checks))
	for n := range checks {
		names = append(names, n)
	}
	sort.Strings(names)

	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()

		status := http.StatusOK
		out := make(map[string]string, len(names))
		for _, n := range names {
			if err := checks[n](ctx); err != nil {
				logger.FromGin(c).Warn("readiness check failed", "check", n, "err", err)
				out[n] = "down"
				status = http.StatusServiceUnavailable
				continue
			}
			out[n] = "ok"
		}
		c.JSON(status, gin.H{"status": http.StatusText(status), "checks": out})
	}
}
