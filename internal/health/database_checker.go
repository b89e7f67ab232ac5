package health

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DatabaseChecker 数据库健康检查器：连通性、连接池与记录表是否已迁移
type DatabaseChecker struct {
	pool *pgxpool.Pool
}

// NewDatabaseChecker 创建数据库健康检查器
func NewDatabaseChecker(pool *pgxpool.Pool) *DatabaseChecker {
	return &DatabaseChecker{pool: pool}
}

// Name 返回检查器名称
func (c *DatabaseChecker) Name() string {
	return "database"
}

// Check 执行健康检查
func (c *DatabaseChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()

	var table *string
	if err := c.pool.QueryRow(ctx, `SELECT to_regclass('mesh_records')::text`).Scan(&table); err != nil {
		return CheckResult{
			Status:  StatusUnhealthy,
			Message: fmt.Sprintf("query failed: %v", err),
			Latency: time.Since(start),
		}
	}

	stats := c.pool.Stat()
	utilization := 0.0
	if stats.MaxConns() > 0 {
		utilization = float64(stats.AcquiredConns()) / float64(stats.MaxConns())
	}

	status, message := poolStatus(utilization)
	if table == nil && status == StatusHealthy {
		status = StatusDegraded
		message = "mesh_records table missing, migrations not applied"
	}

	return CheckResult{
		Status:  status,
		Message: message,
		Details: map[string]interface{}{
			"total_conns":    stats.TotalConns(),
			"idle_conns":     stats.IdleConns(),
			"acquired_conns": stats.AcquiredConns(),
			"max_conns":      stats.MaxConns(),
			"utilization":    fmt.Sprintf("%.1f%%", utilization*100),
			"schema_ready":   table != nil,
		},
		Latency: time.Since(start),
	}
}

func poolStatus(utilization float64) (Status, string) {
	switch {
	case utilization >= 1.0:
		return StatusUnhealthy, "connection pool exhausted"
	case utilization > 0.9:
		return StatusDegraded, "connection pool near limit"
	}
	return StatusHealthy, "ok"
}
