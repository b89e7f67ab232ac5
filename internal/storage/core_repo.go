package storage

import (
	"context"

	"github.com/taoyao-code/mesh-reader/internal/poller"
	"github.com/taoyao-code/mesh-reader/internal/protocol/mesh"
)

// RecordReader 记录查询抽象；PostgreSQL 与 Redis 缓存各有一个实现。
// 约束：
// - 返回值按采集时间倒序（Latest 按设备号升序）
// - deviceID 为 nil 表示不过滤设备
// - limit<=0 由实现取默认上限
type RecordReader interface {
	// Recent 最近的记录
	Recent(ctx context.Context, deviceID *uint16, limit int) ([]mesh.Record, error)
	// Latest 每个设备的最新一条记录
	Latest(ctx context.Context) ([]mesh.Record, error)
}

// CycleReader 轮次摘要查询
type CycleReader interface {
	// RecentCycles 最近的轮次摘要，按结束时间倒序
	RecentCycles(ctx context.Context, limit int) ([]poller.CycleReport, error)
}
