package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// PoolStats represents database connection pool statistics.
type PoolStats struct {
	TotalConns      int32  `json:"total_conns"`
	IdleConns       int32  `json:"idle_conns"`
	AcquiredConns   int32  `json:"acquired_conns"`
	MaxConns        int32  `json:"max_conns"`
	AcquireCount    int64  `json:"acquire_count"`
	AcquireDuration string `json:"acquire_duration"`
	Healthy         bool   `json:"healthy"`
}

// GetPoolStats returns connection pool statistics.
func GetPoolStats(pool *pgxpool.Pool) *PoolStats {
	stat := pool.Stat()
	return &PoolStats{
		TotalConns:      stat.TotalConns(),
		IdleConns:       stat.IdleConns(),
		AcquiredConns:   stat.AcquiredConns(),
		MaxConns:        stat.MaxConns(),
		AcquireCount:    stat.AcquireCount(),
		AcquireDuration: stat.AcquireDuration().String(),
		Healthy:         stat.TotalConns() > 0,
	}
}

// DependencyCheck probes an optional backing service (redis, kafka).
type DependencyCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// RunChecks runs every check and returns name -> "ok" or the error text,
// plus whether all of them passed.
func RunChecks(ctx context.Context, checks []DependencyCheck) (map[string]string, bool) {
	results := make(map[string]string, len(checks))
	healthy := true
	for _, dc := range checks {
		if err := dc.Check(ctx); err != nil {
			results[dc.Name] = err.Error()
			healthy = false
			continue
		}
		results[dc.Name] = "ok"
	}
	return results, healthy
}

// HealthHandler returns a handler reporting database pool health and the
// state of any extra dependencies.
func HealthHandler(pool *pgxpool.Pool, checks ...DependencyCheck) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		err := pool.Ping(ctx)
		stats := GetPoolStats(pool)
		deps, depsHealthy := RunChecks(ctx, checks)

		if err != nil {
			stats.Healthy = false
			return c.JSON(http.StatusServiceUnavailable, map[string]interface{}{
				"status":       "unhealthy",
				"error":        err.Error(),
				"pool":         stats,
				"dependencies": deps,
			})
		}

		status := "healthy"
		if !depsHealthy {
			status = "degraded"
		}
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":       status,
			"pool":         stats,
			"dependencies": deps,
		})
	}
}
