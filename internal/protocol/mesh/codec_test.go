package mesh

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"
)

func f32p(v float32) *float32 { return &v }
func u16p(v uint16) *uint16   { return &v }
func boolp(v bool) *bool      { return &v }
func alarmp(v AlarmState) *AlarmState {
	return &v
}

// makeRecord 按线上布局手工拼一条记录
func makeRecord(dev, seq uint16, mask FieldMask, slotsData []byte) []byte {
	buf := make([]byte, 6, 6+len(slotsData))
	binary.LittleEndian.PutUint16(buf[0:2], dev)
	binary.LittleEndian.PutUint16(buf[2:4], seq)
	binary.LittleEndian.PutUint16(buf[4:6], uint16(mask))
	return append(buf, slotsData...)
}

func TestDecodeRecord_AllFields(t *testing.T) {
	slots := make([]byte, 0, 20)
	slots = binary.LittleEndian.AppendUint32(slots, math.Float32bits(21.5))
	slots = binary.LittleEndian.AppendUint32(slots, math.Float32bits(48.25))
	for _, v := range []uint16{310, 7, 820, 415, 12} {
		slots = binary.LittleEndian.AppendUint16(slots, v)
	}
	slots = append(slots, 1, 2)

	raw := makeRecord(0x1A2B, 42, knownFields, slots)
	r, n, err := DecodeRecord(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != MaxRecordSize {
		t.Fatalf("consumed %d, want %d", n, MaxRecordSize)
	}
	if r.ID != (RecordID{DeviceID: 0x1A2B, Sequence: 42}) {
		t.Fatalf("unexpected id: %+v", r.ID)
	}
	if *r.Temperature != 21.5 || *r.Humidity != 48.25 {
		t.Fatalf("unexpected floats: %v %v", *r.Temperature, *r.Humidity)
	}
	if *r.Noise != 310 || *r.Vibration != 7 || *r.Brightness != 820 || *r.CO2 != 415 || *r.Counter != 12 {
		t.Fatalf("unexpected integer fields: %+v", r)
	}
	if !*r.Flame || *r.Alarm != AlarmDisabled {
		t.Fatalf("unexpected flame/alarm: %v %v", *r.Flame, *r.Alarm)
	}
}

func TestDecodeRecord_FixedWidthAdvance(t *testing.T) {
	// 所有槽位填非零值，mask 全部未置位
	slots := make([]byte, MaxRecordSize-6)
	for i := range slots {
		slots[i] = 0xAB
	}
	r, n, err := DecodeRecord(makeRecord(1, 2, 0, slots))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != MaxRecordSize {
		t.Fatalf("consumed %d, want full layout %d", n, MaxRecordSize)
	}
	if r.Temperature != nil || r.Humidity != nil || r.Noise != nil || r.Vibration != nil ||
		r.Brightness != nil || r.CO2 != nil || r.Counter != nil || r.Flame != nil || r.Alarm != nil {
		t.Fatalf("expected every optional field nil: %+v", r)
	}
}

func TestDecodeRecord_PresenceDoesNotShiftLayout(t *testing.T) {
	// 只置 co2 位：值必须从固定偏移读取
	slots := make([]byte, MaxRecordSize-6)
	binary.LittleEndian.PutUint16(slots[4+4+2+2+2:], 999)
	r, _, err := DecodeRecord(makeRecord(1, 2, FieldCO2, slots))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.CO2 == nil || *r.CO2 != 999 {
		t.Fatalf("co2 read from wrong slot: %+v", r.CO2)
	}
	if r.Noise != nil || r.Temperature != nil {
		t.Fatalf("unset fields surfaced: %+v", r)
	}
}

func TestDecodeRecord_TruncatedMidThirdSlot(t *testing.T) {
	slots := make([]byte, 0, 9)
	slots = binary.LittleEndian.AppendUint32(slots, math.Float32bits(-3.5))
	slots = binary.LittleEndian.AppendUint32(slots, math.Float32bits(90))
	slots = append(slots, 0x01) // noise 只到了 1 字节

	r, n, err := DecodeRecord(makeRecord(5, 6, knownFields, slots))
	if err != nil {
		t.Fatalf("truncated slots must not fail: %v", err)
	}
	if n != 6+8 {
		t.Fatalf("consumed %d, want 14", n)
	}
	if r.Temperature == nil || *r.Temperature != -3.5 || r.Humidity == nil || *r.Humidity != 90 {
		t.Fatalf("first two fields should be decoded: %+v", r)
	}
	if r.Noise != nil || r.Vibration != nil || r.Brightness != nil || r.CO2 != nil ||
		r.Counter != nil || r.Flame != nil || r.Alarm != nil {
		t.Fatalf("fields after truncation should be nil: %+v", r)
	}
	if r.Fields != knownFields {
		t.Fatalf("mask should be preserved, got %#x", r.Fields)
	}
}

func TestDecodeRecord_TruncatedHeader(t *testing.T) {
	for n := 0; n < 8; n++ {
		if _, _, err := DecodeRecord(make([]byte, n)); !errors.Is(err, ErrTruncatedRecord) {
			t.Fatalf("len %d: expected ErrTruncatedRecord, got %v", n, err)
		}
	}
	if _, _, err := DecodeRecord(make([]byte, 8)); err != nil {
		t.Fatalf("8 bytes should decode: %v", err)
	}
}

func TestDecodeRecord_AlarmLenient(t *testing.T) {
	for b, want := range map[byte]AlarmState{0: AlarmUndefined, 1: AlarmActive, 2: AlarmDisabled, 3: AlarmUndefined, 0xFF: AlarmUndefined} {
		slots := make([]byte, MaxRecordSize-6)
		slots[len(slots)-1] = b
		r, _, err := DecodeRecord(makeRecord(1, 1, FieldAlarm, slots))
		if err != nil {
			t.Fatalf("byte %d: %v", b, err)
		}
		if r.Alarm == nil || *r.Alarm != want {
			t.Fatalf("byte %d: got %v want %v", b, r.Alarm, want)
		}
	}
}

func TestDecodeRecord_RawFloatBits(t *testing.T) {
	slots := make([]byte, MaxRecordSize-6)
	binary.LittleEndian.PutUint32(slots, 0x7FC00001) // NaN payload
	r, _, err := DecodeRecord(makeRecord(1, 1, FieldTemperature, slots))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Float32bits(*r.Temperature) != 0x7FC00001 {
		t.Fatalf("float bits altered: %#x", math.Float32bits(*r.Temperature))
	}
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	cases := []struct {
		name string
		rec  Record
	}{
		{"empty", Record{ID: RecordID{1, 1}}},
		{"temperature only", Record{ID: RecordID{2, 7}, Temperature: f32p(19.75)}},
		{"humidity and alarm", Record{ID: RecordID{3, 8}, Humidity: f32p(55), Alarm: alarmp(AlarmActive)}},
		{"integers", Record{ID: RecordID{0xFFFF, 0xFFFF}, Noise: u16p(1), Vibration: u16p(0), Brightness: u16p(65535), CO2: u16p(400), Counter: u16p(3)}},
		{"flame false", Record{ID: RecordID{4, 4}, Flame: boolp(false)}},
		{"all", Record{
			ID: RecordID{0x0102, 0x0304}, Temperature: f32p(-40), Humidity: f32p(100), Noise: u16p(11),
			Vibration: u16p(12), Brightness: u16p(13), CO2: u16p(14), Counter: u16p(15),
			Flame: boolp(true), Alarm: alarmp(AlarmDisabled),
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			raw := EncodeRecord(tc.rec)
			if len(raw) != MaxRecordSize {
				t.Fatalf("encoded %d bytes, want %d", len(raw), MaxRecordSize)
			}
			got, n, err := DecodeRecord(raw)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if n != MaxRecordSize {
				t.Fatalf("consumed %d", n)
			}
			if got.ID != tc.rec.ID {
				t.Fatalf("id mismatch: %+v vs %+v", got.ID, tc.rec.ID)
			}
			assertSame(t, "temperature", got.Temperature, tc.rec.Temperature)
			assertSame(t, "humidity", got.Humidity, tc.rec.Humidity)
			assertSame(t, "noise", got.Noise, tc.rec.Noise)
			assertSame(t, "vibration", got.Vibration, tc.rec.Vibration)
			assertSame(t, "brightness", got.Brightness, tc.rec.Brightness)
			assertSame(t, "co2", got.CO2, tc.rec.CO2)
			assertSame(t, "counter", got.Counter, tc.rec.Counter)
			assertSame(t, "flame", got.Flame, tc.rec.Flame)
			assertSame(t, "alarm", got.Alarm, tc.rec.Alarm)
		})
	}
}

func TestEncodeRecord_ReservedBitsCarried(t *testing.T) {
	raw := EncodeRecord(Record{ID: RecordID{1, 1}, Fields: 0x8000 | FieldNoise})
	mask := FieldMask(binary.LittleEndian.Uint16(raw[4:6]))
	if mask != 0x8000 {
		t.Fatalf("mask %#x: reserved bit kept, noise bit dropped without value", mask)
	}
}

func assertSame[T comparable](t *testing.T, name string, got, want *T) {
	t.Helper()
	if (got == nil) != (want == nil) {
		t.Fatalf("%s presence mismatch: got %v want %v", name, got, want)
	}
	if got != nil && *got != *want {
		t.Fatalf("%s value mismatch: got %v want %v", name, *got, *want)
	}
}
