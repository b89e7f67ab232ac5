package pg

import (
	"context"
	"fmt"
	"math"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taoyao-code/mesh-reader/internal/poller"
	"github.com/taoyao-code/mesh-reader/internal/protocol/mesh"
	"github.com/taoyao-code/mesh-reader/internal/sink"
)

// Repository 记录与轮次摘要的写入端
type Repository struct {
	Pool *pgxpool.Pool
}

var (
	_ sink.Sink          = (*Repository)(nil)
	_ poller.ReportStore = (*Repository)(nil)
)

const upsertRecordSQL = `INSERT INTO mesh_records (
        cycle_id, node, source, device_id, sequence, fields_available,
        temperature, humidity_level, noise_level, vibration_level, brightness_level,
        co2_level, counter_value, flame_detected, alarm_state, captured_at)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
    ON CONFLICT (source, device_id, sequence, captured_at) DO UPDATE SET
        cycle_id = EXCLUDED.cycle_id,
        fields_available = EXCLUDED.fields_available,
        temperature = EXCLUDED.temperature,
        humidity_level = EXCLUDED.humidity_level,
        noise_level = EXCLUDED.noise_level,
        vibration_level = EXCLUDED.vibration_level,
        brightness_level = EXCLUDED.brightness_level,
        co2_level = EXCLUDED.co2_level,
        counter_value = EXCLUDED.counter_value,
        flame_detected = EXCLUDED.flame_detected,
        alarm_state = EXCLUDED.alarm_state,
        updated_at = NOW()`

// Deliver 以一个 pgx.Batch 写入整批记录
func (r *Repository) Deliver(ctx context.Context, b sink.Batch) error {
	if len(b.Records) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, rec := range b.Records {
		batch.Queue(upsertRecordSQL, recordArgs(b, rec)...)
	}

	br := r.Pool.SendBatch(ctx, batch)
	defer br.Close()
	for _, rec := range b.Records {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("upsert record %s: %w", rec.ID, err)
		}
	}
	return br.Close()
}

// SaveCycle 写入一轮摘要，重复 ID 覆盖
func (r *Repository) SaveCycle(ctx context.Context, rep poller.CycleReport) error {
	const q = `INSERT INTO mesh_cycles (id, node, label, stage, result, listed, fetched, failed, delivered, error, started_at, finished_at)
               VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
               ON CONFLICT (id) DO UPDATE SET
                   stage=EXCLUDED.stage, result=EXCLUDED.result, listed=EXCLUDED.listed,
                   fetched=EXCLUDED.fetched, failed=EXCLUDED.failed, delivered=EXCLUDED.delivered,
                   error=EXCLUDED.error, finished_at=EXCLUDED.finished_at`
	_, err := r.Pool.Exec(ctx, q,
		rep.ID, nullString(rep.Node), nullString(rep.Label), string(rep.Stage), rep.Result,
		rep.Listed, rep.Fetched, rep.Failed, rep.Delivered, nullString(rep.Error),
		rep.StartedAt, rep.FinishedAt)
	return err
}

func recordArgs(b sink.Batch, rec mesh.Record) []interface{} {
	source := rec.Source
	if source == "" {
		source = b.Node
	}
	capturedAt := rec.CapturedAt
	if capturedAt.IsZero() {
		capturedAt = b.CollectedAt
	}
	var alarm *int16
	if rec.Alarm != nil {
		v := int16(*rec.Alarm)
		alarm = &v
	}
	return []interface{}{
		b.CycleID, b.Node, source,
		int32(rec.ID.DeviceID), int32(rec.ID.Sequence), int32(rec.Fields),
		finite(rec.Temperature), finite(rec.Humidity),
		int4(rec.Noise), int4(rec.Vibration), int4(rec.Brightness),
		int4(rec.CO2), int4(rec.Counter),
		rec.Flame, alarm, capturedAt,
	}
}

func int4(p *uint16) *int32 {
	if p == nil {
		return nil
	}
	v := int32(*p)
	return &v
}

// finite NaN/Inf 写为 NULL，读取端与 JSON 导出保持一致
func finite(p *float32) *float32 {
	if p == nil || math.IsNaN(float64(*p)) || math.IsInf(float64(*p), 0) {
		return nil
	}
	return p
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
