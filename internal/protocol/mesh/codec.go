package mesh

import (
	"encoding/binary"
	"math"
)

// 记录布局（小端）：
// deviceId(2) | sequence(2) | mask(2) | temperature f32(4) | humidity f32(4) |
// noise(2) | vibration(2) | brightness(2) | co2(2) | counter(2) | flame(1) | alarm(1)
// 每个字段槽位始终存在，与 mask 无关。
const (
	recordHeaderLen = 6
	// minRecordLen 节点固件约定的最小可解码长度
	minRecordLen = 8
	// MaxRecordSize 全部槽位的编码长度
	MaxRecordSize = recordHeaderLen + 4 + 4 + 2*5 + 1 + 1
)

// slot 固定宽度字段槽位
type slot struct {
	bit    FieldMask
	width  int
	decode func(r *Record, b []byte)
	// encode 写入 b 并返回是否提供了值
	encode func(r *Record, b []byte) bool
}

var slots = []slot{
	{FieldTemperature, 4, func(r *Record, b []byte) { r.Temperature = f32(b) }, func(r *Record, b []byte) bool { return putF32(b, r.Temperature) }},
	{FieldHumidity, 4, func(r *Record, b []byte) { r.Humidity = f32(b) }, func(r *Record, b []byte) bool { return putF32(b, r.Humidity) }},
	{FieldNoise, 2, func(r *Record, b []byte) { r.Noise = u16(b) }, func(r *Record, b []byte) bool { return putU16(b, r.Noise) }},
	{FieldVibration, 2, func(r *Record, b []byte) { r.Vibration = u16(b) }, func(r *Record, b []byte) bool { return putU16(b, r.Vibration) }},
	{FieldBrightness, 2, func(r *Record, b []byte) { r.Brightness = u16(b) }, func(r *Record, b []byte) bool { return putU16(b, r.Brightness) }},
	{FieldCO2, 2, func(r *Record, b []byte) { r.CO2 = u16(b) }, func(r *Record, b []byte) bool { return putU16(b, r.CO2) }},
	{FieldCounter, 2, func(r *Record, b []byte) { r.Counter = u16(b) }, func(r *Record, b []byte) bool { return putU16(b, r.Counter) }},
	{FieldFlame, 1, func(r *Record, b []byte) { v := b[0] != 0; r.Flame = &v }, func(r *Record, b []byte) bool {
		if r.Flame == nil {
			return false
		}
		if *r.Flame {
			b[0] = 1
		}
		return true
	}},
	{FieldAlarm, 1, func(r *Record, b []byte) { v := ParseAlarmState(b[0]); r.Alarm = &v }, func(r *Record, b []byte) bool {
		if r.Alarm == nil {
			return false
		}
		b[0] = byte(*r.Alarm)
		return true
	}},
}

// cursor 只前进的读游标
type cursor struct {
	b   []byte
	off int
}

func (c *cursor) fits(n int) bool { return c.off+n <= len(c.b) }

func (c *cursor) next(n int) []byte {
	p := c.b[c.off : c.off+n]
	c.off += n
	return p
}

// DecodeRecord 解码一条记录，返回记录与消耗的字节数。
// 不足 8 字节返回 ErrTruncatedRecord；之后某个槽位放不下时停止解码，
// 已解出的字段保持有效（截断抓包的降级处理）。
func DecodeRecord(b []byte) (Record, int, error) {
	if len(b) < minRecordLen {
		return Record{}, 0, ErrTruncatedRecord
	}
	c := &cursor{b: b}
	var r Record
	r.ID = readRecordID(c.next(recordIDLen))
	r.Fields = FieldMask(binary.LittleEndian.Uint16(c.next(2)))

	for _, s := range slots {
		if !c.fits(s.width) {
			break
		}
		raw := c.next(s.width) // 无论是否置位都前进
		if r.Fields.Has(s.bit) {
			s.decode(&r, raw)
		}
	}
	return r, c.off, nil
}

// EncodeRecord DecodeRecord 的逆过程：写满所有槽位，缺失字段补零，
// 仅在提供值时置位；保留位原样透传。
func EncodeRecord(r Record) []byte {
	buf := make([]byte, MaxRecordSize)
	putRecordID(buf, r.ID)

	mask := r.Fields &^ knownFields
	off := recordHeaderLen
	for _, s := range slots {
		if s.encode(&r, buf[off:off+s.width]) {
			mask |= s.bit
		}
		off += s.width
	}
	binary.LittleEndian.PutUint16(buf[4:6], uint16(mask))
	return buf
}

func f32(b []byte) *float32 {
	v := math.Float32frombits(binary.LittleEndian.Uint32(b))
	return &v
}

func u16(b []byte) *uint16 {
	v := binary.LittleEndian.Uint16(b)
	return &v
}

func putF32(b []byte, v *float32) bool {
	if v == nil {
		return false
	}
	binary.LittleEndian.PutUint32(b, math.Float32bits(*v))
	return true
}

func putU16(b []byte, v *uint16) bool {
	if v == nil {
		return false
	}
	binary.LittleEndian.PutUint16(b, *v)
	return true
}
