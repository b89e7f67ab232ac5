package gormrepo

import (
	"context"

	"gorm.io/gorm"

	"github.com/taoyao-code/mesh-reader/internal/poller"
	"github.com/taoyao-code/mesh-reader/internal/protocol/mesh"
	"github.com/taoyao-code/mesh-reader/internal/storage"
	"github.com/taoyao-code/mesh-reader/internal/storage/models"
)

// DefaultLimit 未指定 limit 时的返回条数
const DefaultLimit = 100

// MaxLimit 单次查询上限
const MaxLimit = 1000

// Repository 基于 GORM 的只读查询端。
type Repository struct {
	db *gorm.DB
}

var (
	_ storage.RecordReader = (*Repository)(nil)
	_ storage.CycleReader  = (*Repository)(nil)
)

// New 返回一个使用给定 *gorm.DB 的查询端。
func New(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Recent 按采集时间倒序返回最近的记录。
func (r *Repository) Recent(ctx context.Context, deviceID *uint16, limit int) ([]mesh.Record, error) {
	var rows []models.MeshRecord
	q := r.db.WithContext(ctx).Order("captured_at DESC, id DESC").Limit(clamp(limit))
	if deviceID != nil {
		q = q.Where("device_id = ?", int32(*deviceID))
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return toRecords(rows), nil
}

// Latest 每个设备取一条最新记录。
func (r *Repository) Latest(ctx context.Context) ([]mesh.Record, error) {
	var rows []models.MeshRecord
	err := r.db.WithContext(ctx).
		Raw(`SELECT DISTINCT ON (device_id) * FROM mesh_records ORDER BY device_id, captured_at DESC, id DESC`).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return toRecords(rows), nil
}

// RecentCycles 按结束时间倒序返回轮次摘要。
func (r *Repository) RecentCycles(ctx context.Context, limit int) ([]poller.CycleReport, error) {
	var rows []models.MeshCycle
	if err := r.db.WithContext(ctx).Order("finished_at DESC").Limit(clamp(limit)).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]poller.CycleReport, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.ToReport())
	}
	return out, nil
}

func toRecords(rows []models.MeshRecord) []mesh.Record {
	out := make([]mesh.Record, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.ToRecord())
	}
	return out
}

func clamp(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	}
	return limit
}
