package sink

import (
	"context"

	"go.uber.org/zap"

	"github.com/taoyao-code/mesh-reader/internal/protocol/mesh"
)

// LogSink 以结构化日志逐条输出记录
type LogSink struct {
	log *zap.Logger
}

func NewLogSink(log *zap.Logger) *LogSink {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogSink{log: log}
}

func (s *LogSink) Deliver(_ context.Context, b Batch) error {
	s.log.Info("mesh batch collected",
		zap.String("cycle_id", b.CycleID),
		zap.String("node", b.Node),
		zap.Int("records", len(b.Records)),
	)
	for i, r := range b.Records {
		s.log.Info("mesh record", append([]zap.Field{
			zap.String("cycle_id", b.CycleID),
			zap.Int("index", i+1),
		}, RecordFields(r)...)...)
	}
	return nil
}

// RecordFields 将记录中存在的字段展开为 zap 字段
func RecordFields(r mesh.Record) []zap.Field {
	fs := []zap.Field{
		zap.Uint16("device_id", r.ID.DeviceID),
		zap.Uint16("sequence", r.ID.Sequence),
		zap.String("source", r.Source),
	}
	if r.Temperature != nil {
		fs = append(fs, zap.Float32("temperature", *r.Temperature))
	}
	if r.Humidity != nil {
		fs = append(fs, zap.Float32("humidity", *r.Humidity))
	}
	if r.Noise != nil {
		fs = append(fs, zap.Uint16("noise", *r.Noise))
	}
	if r.Vibration != nil {
		fs = append(fs, zap.Uint16("vibration", *r.Vibration))
	}
	if r.Brightness != nil {
		fs = append(fs, zap.Uint16("brightness", *r.Brightness))
	}
	if r.CO2 != nil {
		fs = append(fs, zap.Uint16("co2", *r.CO2))
	}
	if r.Counter != nil {
		fs = append(fs, zap.Uint16("counter", *r.Counter))
	}
	if r.Flame != nil {
		fs = append(fs, zap.Bool("flame", *r.Flame))
	}
	if r.Alarm != nil {
		fs = append(fs, zap.Stringer("alarm", *r.Alarm))
	}
	return fs
}
