package health

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// DefaultCheckTimeout 单个检查器的超时
const DefaultCheckTimeout = 2 * time.Second

// Aggregator 健康检查聚合器。
// 探针可能每秒多次命中，报告在 cacheTTL 内复用，避免反复打到数据库与 Redis。
type Aggregator struct {
	mu       sync.RWMutex
	checkers []Checker
	timeout  time.Duration
	cacheTTL time.Duration

	cacheMu sync.Mutex
	cached  *HealthReport
	now     func() time.Time
}

// NewAggregator 创建聚合器（默认不缓存）
func NewAggregator(checkers ...Checker) *Aggregator {
	return &Aggregator{
		checkers: checkers,
		timeout:  DefaultCheckTimeout,
		now:      time.Now,
	}
}

// SetCacheTTL 设置报告缓存时长，<=0 表示每次都重新检查
func (a *Aggregator) SetCacheTTL(ttl time.Duration) {
	a.cacheMu.Lock()
	defer a.cacheMu.Unlock()
	a.cacheTTL = ttl
	a.cached = nil
}

// AddChecker 添加检查器
func (a *Aggregator) AddChecker(checker Checker) {
	a.mu.Lock()
	a.checkers = append(a.checkers, checker)
	a.mu.Unlock()

	a.cacheMu.Lock()
	a.cached = nil
	a.cacheMu.Unlock()
}

type namedResult struct {
	name string
	res  CheckResult
}

// CheckAll 并发执行所有检查器；检查器 panic 记为 Unhealthy
func (a *Aggregator) CheckAll(ctx context.Context) map[string]CheckResult {
	a.mu.RLock()
	checkers := append([]Checker(nil), a.checkers...)
	a.mu.RUnlock()

	ch := make(chan namedResult, len(checkers))
	for _, c := range checkers {
		go func(c Checker) {
			cctx, cancel := context.WithTimeout(ctx, a.timeout)
			defer cancel()
			ch <- namedResult{name: c.Name(), res: runCheck(cctx, c)}
		}(c)
	}

	results := make(map[string]CheckResult, len(checkers))
	for range checkers {
		r := <-ch
		results[r.name] = r.res
	}
	return results
}

func runCheck(ctx context.Context, c Checker) (res CheckResult) {
	defer func() {
		if p := recover(); p != nil {
			res = CheckResult{Status: StatusUnhealthy, Message: fmt.Sprintf("checker panicked: %v", p)}
		}
	}()
	return c.Check(ctx)
}

// OverallStatus 计算总体健康状态
func (a *Aggregator) OverallStatus(ctx context.Context) Status {
	return a.Report(ctx).Status
}

// overall 任一 Unhealthy 即 Unhealthy，其次任一 Degraded 即 Degraded
func overall(results map[string]CheckResult) Status {
	status := StatusHealthy
	for _, r := range results {
		switch r.Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			status = StatusDegraded
		}
	}
	return status
}

// Ready 判断是否就绪：Degraded 仍就绪，只有 Unhealthy 不就绪
func (a *Aggregator) Ready(ctx context.Context) bool {
	return a.OverallStatus(ctx) != StatusUnhealthy
}

// Alive 进程能响应即存活
func (a *Aggregator) Alive() bool {
	return true
}

// HealthReport 健康报告
type HealthReport struct {
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks"`
}

// Report 生成健康报告，整体状态与明细来自同一批结果
func (a *Aggregator) Report(ctx context.Context) HealthReport {
	a.cacheMu.Lock()
	defer a.cacheMu.Unlock()

	now := a.now()
	if a.cached != nil && a.cacheTTL > 0 && now.Sub(a.cached.Timestamp) < a.cacheTTL {
		return *a.cached
	}

	results := a.CheckAll(ctx)
	rep := HealthReport{
		Status:    overall(results),
		Timestamp: now,
		Checks:    results,
	}
	if a.cacheTTL > 0 {
		a.cached = &rep
	}
	return rep
}
