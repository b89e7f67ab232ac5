package health

import (
	"context"
	"time"
)

// Status 健康状态
type Status string

const (
	StatusHealthy   Status = "healthy"   // 健康
	StatusDegraded  Status = "degraded"  // 降级（部分功能受损但仍可服务）
	StatusUnhealthy Status = "unhealthy" // 不健康（无法服务）
)

// CheckResult 健康检查结果
type CheckResult struct {
	Status  Status                 `json:"status"`
	Message string                 `json:"message,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
	Latency time.Duration          `json:"latency"`
}

// Checker 健康检查器接口
type Checker interface {
	Name() string
	Check(ctx context.Context) CheckResult
}

// CheckerFunc 以函数实现 Checker，适合一次性的简单检查
type CheckerFunc struct {
	ID string
	Fn func(ctx context.Context) CheckResult
}

func (f CheckerFunc) Name() string { return f.ID }

func (f CheckerFunc) Check(ctx context.Context) CheckResult {
	start := time.Now()
	res := f.Fn(ctx)
	if res.Latency == 0 {
		res.Latency = time.Since(start)
	}
	return res
}
