package models

import (
	"time"

	"github.com/taoyao-code/mesh-reader/internal/poller"
	"github.com/taoyao-code/mesh-reader/internal/protocol/mesh"
)

// 注意：
// - 保持与 internal/migrate/sql 下的建表脚本完全对齐
// - 不使用 gorm.Model，显式声明每个字段，避免隐式 DeletedAt

// MeshRecord 映射 mesh_records 表
type MeshRecord struct {
	ID      int64  `gorm:"column:id;primaryKey;autoIncrement"`
	CycleID string `gorm:"column:cycle_id;type:text;not null"`
	// 投递该记录的节点地址
	Node string `gorm:"column:node;type:text;not null"`
	// 记录自带的来源地址，缺省同 Node
	Source          string `gorm:"column:source;type:text;not null"`
	DeviceID        int32  `gorm:"column:device_id;not null"`
	Sequence        int32  `gorm:"column:sequence;not null"`
	FieldsAvailable int32  `gorm:"column:fields_available;not null"`
	// 可选字段，未上报为 NULL
	Temperature     *float32  `gorm:"column:temperature"`
	HumidityLevel   *float32  `gorm:"column:humidity_level"`
	NoiseLevel      *int32    `gorm:"column:noise_level"`
	VibrationLevel  *int32    `gorm:"column:vibration_level"`
	BrightnessLevel *int32    `gorm:"column:brightness_level"`
	CO2Level        *int32    `gorm:"column:co2_level"`
	CounterValue    *int32    `gorm:"column:counter_value"`
	FlameDetected   *bool     `gorm:"column:flame_detected"`
	AlarmState      *int16    `gorm:"column:alarm_state"`
	CapturedAt      time.Time `gorm:"column:captured_at;not null"`
	// 审计字段
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (MeshRecord) TableName() string { return "mesh_records" }

// ToRecord 转回协议层记录
func (m MeshRecord) ToRecord() mesh.Record {
	r := mesh.Record{
		ID:          mesh.RecordID{DeviceID: uint16(m.DeviceID), Sequence: uint16(m.Sequence)},
		Fields:      mesh.FieldMask(m.FieldsAvailable),
		Temperature: m.Temperature,
		Humidity:    m.HumidityLevel,
		Noise:       u16(m.NoiseLevel),
		Vibration:   u16(m.VibrationLevel),
		Brightness:  u16(m.BrightnessLevel),
		CO2:         u16(m.CO2Level),
		Counter:     u16(m.CounterValue),
		Flame:       m.FlameDetected,
		CapturedAt:  m.CapturedAt,
		Source:      m.Source,
	}
	if m.AlarmState != nil {
		a := mesh.ParseAlarmState(byte(*m.AlarmState))
		r.Alarm = &a
	}
	return r
}

func u16(p *int32) *uint16 {
	if p == nil {
		return nil
	}
	v := uint16(*p)
	return &v
}

// MeshCycle 映射 mesh_cycles 表
type MeshCycle struct {
	ID         string    `gorm:"column:id;type:text;primaryKey"`
	Node       *string   `gorm:"column:node;type:text"`
	Label      *string   `gorm:"column:label;type:text"`
	Stage      string    `gorm:"column:stage;type:text;not null"`
	Result     string    `gorm:"column:result;type:text;not null"`
	Listed     int32     `gorm:"column:listed;not null"`
	Fetched    int32     `gorm:"column:fetched;not null"`
	Failed     int32     `gorm:"column:failed;not null"`
	Delivered  bool      `gorm:"column:delivered;not null"`
	Error      *string   `gorm:"column:error;type:text"`
	StartedAt  time.Time `gorm:"column:started_at;not null"`
	FinishedAt time.Time `gorm:"column:finished_at;not null"`
}

func (MeshCycle) TableName() string { return "mesh_cycles" }

// ToReport 转回轮次摘要
func (m MeshCycle) ToReport() poller.CycleReport {
	return poller.CycleReport{
		ID:         m.ID,
		StartedAt:  m.StartedAt,
		FinishedAt: m.FinishedAt,
		Stage:      poller.Stage(m.Stage),
		Result:     m.Result,
		Node:       deref(m.Node),
		Label:      deref(m.Label),
		Listed:     int(m.Listed),
		Fetched:    int(m.Fetched),
		Failed:     int(m.Failed),
		Delivered:  m.Delivered,
		Error:      deref(m.Error),
	}
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
