package health

import (
	"context"
	"fmt"
	"time"

	redisstorage "github.com/taoyao-code/mesh-reader/internal/storage/redis"
)

// RedisChecker Redis健康检查器，附带记录缓存的设备数
type RedisChecker struct {
	client *redisstorage.Client
	cache  *redisstorage.RecordCache
}

// NewRedisChecker 创建Redis健康检查器；cache 可为 nil
func NewRedisChecker(client *redisstorage.Client, cache *redisstorage.RecordCache) *RedisChecker {
	return &RedisChecker{client: client, cache: cache}
}

// Name 返回检查器名称
func (c *RedisChecker) Name() string {
	return "redis"
}

// Check 执行健康检查
func (c *RedisChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()

	if err := c.client.HealthCheck(ctx); err != nil {
		return CheckResult{
			Status:  StatusUnhealthy,
			Message: fmt.Sprintf("ping failed: %v", err),
			Latency: time.Since(start),
		}
	}

	stats, utilization := c.client.PoolUtilization()

	status := StatusHealthy
	message := "ok"
	if utilization > 0.9 {
		status = StatusDegraded
		message = "connection pool near limit"
	}

	details := map[string]interface{}{
		"total_conns": stats.TotalConns,
		"idle_conns":  stats.IdleConns,
		"timeouts":    stats.Timeouts,
		"utilization": fmt.Sprintf("%.1f%%", utilization*100),
	}
	if c.cache != nil {
		n, err := c.cache.DeviceCount(ctx)
		if err != nil {
			status = StatusDegraded
			message = fmt.Sprintf("record cache unreadable: %v", err)
		} else {
			details["cached_devices"] = n
		}
	}

	return CheckResult{
		Status:  status,
		Message: message,
		Details: details,
		Latency: time.Since(start),
	}
}
