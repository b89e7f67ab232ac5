package mesh

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// RecordID 数据记录标识：产生记录的设备 + 设备内部计数
type RecordID struct {
	DeviceID uint16
	Sequence uint16
}

func (id RecordID) String() string {
	return fmt.Sprintf("%04X:%d", id.DeviceID, id.Sequence)
}

// FieldMask 可选字段存在位图（bit0..bit8 已定义，bit9..bit15 保留）。
// 位图只决定字段是否有效，不影响线上布局。
type FieldMask uint16

const (
	FieldTemperature FieldMask = 1 << iota
	FieldHumidity
	FieldNoise
	FieldVibration
	FieldBrightness
	FieldCO2
	FieldCounter
	FieldFlame
	FieldAlarm

	knownFields = FieldAlarm<<1 - 1
)

// Has 判断位图是否包含 f
func (m FieldMask) Has(f FieldMask) bool {
	return m&f == f
}

type fieldsJSON struct {
	HasTemperature     bool `json:"has_temperature"`
	HasHumidityLevel   bool `json:"has_humidity_level"`
	HasNoiseLevel      bool `json:"has_noise_level"`
	HasVibrationLevel  bool `json:"has_vibration_level"`
	HasBrightnessLevel bool `json:"has_brightness_level"`
	HasCO2Level        bool `json:"has_co2_level"`
	HasCounter         bool `json:"has_counter"`
	HasFlameStatus     bool `json:"has_flame_status"`
	HasAlarmState      bool `json:"has_alarm_state"`
}

// MarshalJSON 输出 has_* 布尔对象（保留位不输出）
func (m FieldMask) MarshalJSON() ([]byte, error) {
	return json.Marshal(fieldsJSON{
		HasTemperature:     m.Has(FieldTemperature),
		HasHumidityLevel:   m.Has(FieldHumidity),
		HasNoiseLevel:      m.Has(FieldNoise),
		HasVibrationLevel:  m.Has(FieldVibration),
		HasBrightnessLevel: m.Has(FieldBrightness),
		HasCO2Level:        m.Has(FieldCO2),
		HasCounter:         m.Has(FieldCounter),
		HasFlameStatus:     m.Has(FieldFlame),
		HasAlarmState:      m.Has(FieldAlarm),
	})
}

// UnmarshalJSON 从 has_* 布尔对象还原位图
func (m *FieldMask) UnmarshalJSON(b []byte) error {
	var f fieldsJSON
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	var v FieldMask
	for bit, on := range map[FieldMask]bool{
		FieldTemperature: f.HasTemperature,
		FieldHumidity:    f.HasHumidityLevel,
		FieldNoise:       f.HasNoiseLevel,
		FieldVibration:   f.HasVibrationLevel,
		FieldBrightness:  f.HasBrightnessLevel,
		FieldCO2:         f.HasCO2Level,
		FieldCounter:     f.HasCounter,
		FieldFlame:       f.HasFlameStatus,
		FieldAlarm:       f.HasAlarmState,
	} {
		if on {
			v |= bit
		}
	}
	*m = v
	return nil
}

// AlarmState 报警器状态
type AlarmState uint8

const (
	AlarmUndefined AlarmState = 0
	AlarmActive    AlarmState = 1
	AlarmDisabled  AlarmState = 2
)

// ParseAlarmState 宽松解码：1/2 以外的任何值都视为 Undefined
func ParseAlarmState(b byte) AlarmState {
	switch AlarmState(b) {
	case AlarmActive:
		return AlarmActive
	case AlarmDisabled:
		return AlarmDisabled
	default:
		return AlarmUndefined
	}
}

func (s AlarmState) String() string {
	switch s {
	case AlarmActive:
		return "active"
	case AlarmDisabled:
		return "disabled"
	default:
		return "undefined"
	}
}

func (s AlarmState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *AlarmState) UnmarshalText(b []byte) error {
	switch string(b) {
	case "active":
		*s = AlarmActive
	case "disabled":
		*s = AlarmDisabled
	default:
		*s = AlarmUndefined
	}
	return nil
}

// Record 解码后的数据记录。未置位字段为 nil。
// CapturedAt 为客户端解码时刻（线上不传输），Source 为来源节点地址。
type Record struct {
	ID     RecordID
	Fields FieldMask

	Temperature *float32
	Humidity    *float32
	Noise       *uint16
	Vibration   *uint16
	Brightness  *uint16
	CO2         *uint16
	Counter     *uint16
	Flame       *bool
	Alarm       *AlarmState

	CapturedAt time.Time
	Source     string
}

type recordJSON struct {
	DeviceID        uint16      `json:"device_id"`
	Counter         uint16      `json:"counter"`
	FieldsAvailable FieldMask   `json:"fields_available"`
	Temperature     *float32    `json:"temperature"`
	HumidityLevel   *float32    `json:"humidity_level"`
	NoiseLevel      *uint16     `json:"noise_level"`
	VibrationLevel  *uint16     `json:"vibration_level"`
	BrightnessLevel *uint16     `json:"brightness_level"`
	CO2Level        *uint16     `json:"co2_level"`
	CounterValue    *uint16     `json:"counter_value"`
	FlameDetected   *bool       `json:"flame_detected"`
	AlarmState      *AlarmState `json:"alarm_state"`
	Timestamp       time.Time   `json:"timestamp"`
	SourceNodeMAC   string      `json:"source_node_mac"`
}

// MarshalJSON 与历史导出文件的字段名保持一致；NaN/Inf 写为 null
func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(recordJSON{
		DeviceID:        r.ID.DeviceID,
		Counter:         r.ID.Sequence,
		FieldsAvailable: r.Fields,
		Temperature:     finite(r.Temperature),
		HumidityLevel:   finite(r.Humidity),
		NoiseLevel:      r.Noise,
		VibrationLevel:  r.Vibration,
		BrightnessLevel: r.Brightness,
		CO2Level:        r.CO2,
		CounterValue:    r.Counter,
		FlameDetected:   r.Flame,
		AlarmState:      r.Alarm,
		Timestamp:       r.CapturedAt,
		SourceNodeMAC:   r.Source,
	})
}

func finite(p *float32) *float32 {
	if p == nil || math.IsNaN(float64(*p)) || math.IsInf(float64(*p), 0) {
		return nil
	}
	return p
}

func (r *Record) UnmarshalJSON(b []byte) error {
	var v recordJSON
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*r = Record{
		ID:          RecordID{DeviceID: v.DeviceID, Sequence: v.Counter},
		Fields:      v.FieldsAvailable,
		Temperature: v.Temperature,
		Humidity:    v.HumidityLevel,
		Noise:       v.NoiseLevel,
		Vibration:   v.VibrationLevel,
		Brightness:  v.BrightnessLevel,
		CO2:         v.CO2Level,
		Counter:     v.CounterValue,
		Flame:       v.FlameDetected,
		Alarm:       v.AlarmState,
		CapturedAt:  v.Timestamp,
		Source:      v.SourceNodeMAC,
	}
	return nil
}
