package app

import (
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taoyao-code/mesh-reader/internal/health"
	"github.com/taoyao-code/mesh-reader/internal/poller"
	redisstorage "github.com/taoyao-code/mesh-reader/internal/storage/redis"
)

// healthCacheTTL 探针间复用健康报告的时长
const healthCacheTTL = 2 * time.Second

// NewHealthAggregator 创建健康检查聚合器，轮询检查器始终存在。
// 轮询停滞阈值为三个轮询周期；启动宽限期覆盖首轮扫描与连接。
func NewHealthAggregator(src health.CycleSource, pcfg poller.Config) *health.Aggregator {
	period := pcfg.CycleDelay + pcfg.ScanWindow + pcfg.StabilizeDelay
	maxAge := 3 * period
	grace := period + pcfg.Session.OperationTimeout + time.Minute
	agg := health.NewAggregator(health.NewCycleChecker(src, maxAge, grace))
	agg.SetCacheTTL(healthCacheTTL)
	return agg
}

// AddDatabaseChecker 添加数据库检查器
func AddDatabaseChecker(aggregator *health.Aggregator, dbpool *pgxpool.Pool) {
	if dbpool != nil {
		aggregator.AddChecker(health.NewDatabaseChecker(dbpool))
	}
}

// AddRedisChecker 添加Redis检查器
func AddRedisChecker(aggregator *health.Aggregator, client *redisstorage.Client, cache *redisstorage.RecordCache) {
	if client != nil {
		aggregator.AddChecker(health.NewRedisChecker(client, cache))
	}
}
