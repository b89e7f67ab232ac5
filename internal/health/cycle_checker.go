package health

import (
	"context"
	"fmt"
	"time"

	"github.com/taoyao-code/mesh-reader/internal/poller"
)

// CycleSource 提供最近一轮轮询摘要
type CycleSource interface {
	LastReport() (poller.CycleReport, bool)
}

// CycleChecker 轮询健康检查器。
// 最近一轮成功为健康；最近一轮失败为降级；超过 MaxAge 没有完成任何一轮为不健康。
// 启动后的 Grace 窗口内尚无摘要视为健康。
type CycleChecker struct {
	src     CycleSource
	maxAge  time.Duration
	grace   time.Duration
	started time.Time
	now     func() time.Time
}

// NewCycleChecker 创建轮询检查器；maxAge 通常取 3 倍轮询间隔加一个扫描窗口
func NewCycleChecker(src CycleSource, maxAge, grace time.Duration) *CycleChecker {
	return &CycleChecker{
		src:     src,
		maxAge:  maxAge,
		grace:   grace,
		started: time.Now(),
		now:     time.Now,
	}
}

// Name 返回检查器名称
func (c *CycleChecker) Name() string {
	return "poller"
}

// Check 执行健康检查
func (c *CycleChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	now := c.now()

	rep, ok := c.src.LastReport()
	if !ok {
		if now.Sub(c.started) <= c.grace {
			return CheckResult{Status: StatusHealthy, Message: "waiting for first cycle", Latency: time.Since(start)}
		}
		return CheckResult{Status: StatusUnhealthy, Message: "no cycle finished since start", Latency: time.Since(start)}
	}

	age := now.Sub(rep.FinishedAt)
	details := map[string]interface{}{
		"cycle_id": rep.ID,
		"result":   rep.Result,
		"stage":    rep.Stage,
		"node":     rep.Node,
		"listed":   rep.Listed,
		"fetched":  rep.Fetched,
		"age":      age.Round(time.Millisecond).String(),
	}

	status := StatusHealthy
	message := "ok"
	switch {
	case c.maxAge > 0 && age > c.maxAge:
		status = StatusUnhealthy
		message = fmt.Sprintf("last cycle finished %s ago", age.Round(time.Second))
	case rep.Result != poller.ResultOK:
		status = StatusDegraded
		message = fmt.Sprintf("last cycle result %s", rep.Result)
		if rep.Error != "" {
			details["error"] = rep.Error
		}
	}

	return CheckResult{
		Status:  status,
		Message: message,
		Details: details,
		Latency: time.Since(start),
	}
}
