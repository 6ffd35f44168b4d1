package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wms-platform/stock-engine/pkg/metrics"
)

// Check reports whether a dependency can serve traffic
type Check func(ctx context.Context) error

// OpsConfig configures the operational router
type OpsConfig struct {
	ServiceName  string
	Logger       *slog.Logger
	Metrics      *metrics.Metrics
	Checks       map[string]Check
	CheckTimeout time.Duration
}

// NewOpsRouter serves /health, /ready and, with metrics configured, /metrics.
// The engine takes its commands from Kafka, so these are the only HTTP routes.
func NewOpsRouter(cfg OpsConfig) *gin.Engine {
	if cfg.CheckTimeout <= 0 {
		cfg.CheckTimeout = 2 * time.Second
	}

	router := gin.New()
	router.Use(Recovery(cfg.Logger), RequestID(), AccessLog(cfg.Logger, "/health", "/ready", "/metrics"))
	if cfg.Metrics != nil {
		router.Use(Metrics(cfg.Metrics))
		router.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}
	router.NoRoute(func(c *gin.Context) {
		abortWithError(c, http.StatusNotFound, "ROUTE_NOT_FOUND", "The requested resource was not found")
	})

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": cfg.ServiceName})
	})
	router.GET("/ready", readiness(cfg.ServiceName, cfg.Checks, cfg.CheckTimeout))
	return router
}

// readiness runs every check in parallel and lists each outcome
func readiness(serviceName string, checks map[string]Check, timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()

		var (
			mu      sync.Mutex
			wg      sync.WaitGroup
			results = make(map[string]string, len(checks))
			failed  []string
		)
		for name, check := range checks {
			wg.Add(1)
			go func(name string, check Check) {
				defer wg.Done()
				outcome := "ok"
				err := check(ctx)
				if err != nil {
					outcome = err.Error()
				}
				mu.Lock()
				defer mu.Unlock()
				results[name] = outcome
				if err != nil {
					failed = append(failed, name)
				}
			}(name, check)
		}
		wg.Wait()

		if len(failed) > 0 {
			sort.Strings(failed)
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "not ready",
				"service": serviceName,
				"failing": failed,
				"checks":  results,
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready", "service": serviceName, "checks": results})
	}
}
