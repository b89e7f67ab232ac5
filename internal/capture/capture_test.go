package capture

import (
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taoyao-code/mesh-reader/internal/protocol/mesh"
)

func TestFileRecorder_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.cbor")
	rec, err := NewFileRecorder(path)
	require.NoError(t, err)

	at := time.Date(2026, 5, 4, 10, 0, 0, 123456789, time.UTC)
	rec.Record(Event{Timestamp: at, CycleID: "c1", Node: "68:5E:1C:1A:68:CF", Kind: KindCommand, Data: []byte{'L'}})
	rec.Record(Event{Timestamp: at, Kind: KindFrame, Shape: "list", Data: []byte{'O', 0, 0}, Complete: true})
	require.NoError(t, rec.Close())
	require.NoError(t, rec.Close())
	rec.Record(Event{Kind: KindFragment}) // 关闭后忽略

	r, err := NewReader(path)
	require.NoError(t, err)
	defer r.Close()

	ev, err := r.Next()
	require.NoError(t, err)
	assert.True(t, at.Equal(ev.Timestamp))
	assert.Equal(t, "c1", ev.CycleID)
	assert.Equal(t, KindCommand, ev.Kind)
	assert.Equal(t, []byte{'L'}, ev.Data)

	ev, err = r.Next()
	require.NoError(t, err)
	assert.Equal(t, "list", ev.Shape)
	assert.True(t, ev.Complete)

	_, err = r.Next()
	assert.True(t, errors.Is(err, io.EOF))
}

func TestReplay(t *testing.T) {
	codes := mesh.DefaultCodes()
	path := filepath.Join(t.TempDir(), "trace.cbor")
	rec, err := NewFileRecorder(path)
	require.NoError(t, err)

	node := "68:5E:1C:1A:5A:30"
	temp := float32(21.5)
	body := append([]byte{codes.OK}, mesh.EncodeRecord(mesh.Record{ID: mesh.RecordID{DeviceID: 3, Sequence: 4}, Temperature: &temp})...)
	at := time.Now().UTC()

	events := []Event{
		{Kind: KindFragment, Data: []byte{0xEE}}, // 命令之前的残留分片
		{Kind: KindCommand, Node: node, Data: codes.BuildList()},
		{Kind: KindFragment, Data: []byte{codes.OK, 1, 0, 3}},
		{Kind: KindFragment, Data: []byte{0, 4, 0}},
		{Kind: KindCommand, Node: node, Timestamp: at, Data: codes.BuildGet(mesh.RecordID{DeviceID: 3, Sequence: 4})},
		{Kind: KindFragment, Data: body[:20]},
		{Kind: KindFragment, Data: body[20:]},
		{Kind: KindFragment, Data: []byte{0x01, 0x02}},
		{Kind: KindFrame, Shape: "fetch", Data: body, Complete: true},
		{Kind: KindCommand, Node: node, Data: []byte{'Z'}},
		{Kind: KindFragment, Data: []byte{codes.Error}},
		{Kind: KindCommand, Node: node, Data: codes.BuildGet(mesh.RecordID{DeviceID: 9, Sequence: 9})},
		{Kind: KindFragment, Data: []byte{codes.Error}},
	}
	for _, ev := range events {
		rec.Record(ev)
	}
	require.NoError(t, rec.Close())

	r, err := NewReader(path)
	require.NoError(t, err)
	defer r.Close()

	var got []Exchange
	require.NoError(t, Replay(r, codes, func(x Exchange) { got = append(got, x) }))
	require.Len(t, got, 3)

	assert.Equal(t, mesh.ShapeList, got[0].Shape)
	assert.True(t, got[0].Complete)
	assert.NoError(t, got[0].Err)
	assert.Equal(t, []mesh.RecordID{{DeviceID: 3, Sequence: 4}}, got[0].IDs)

	assert.Equal(t, mesh.ShapeFetch, got[1].Shape)
	assert.Equal(t, 3, got[1].Fragments)
	assert.Equal(t, 2, got[1].Trailing)
	assert.Equal(t, body, got[1].Recorded)
	require.NoError(t, got[1].Err)
	require.NotNil(t, got[1].Record)
	assert.Equal(t, node, got[1].Record.Source)
	require.NotNil(t, got[1].Record.Temperature)
	assert.Equal(t, temp, *got[1].Record.Temperature)

	assert.ErrorIs(t, got[2].Err, mesh.ErrRemoteError)
	assert.Nil(t, got[2].Record)
}

func TestNop(t *testing.T) {
	var r Recorder = Nop{}
	assert.NotPanics(t, func() { r.Record(Event{Kind: KindFrame}) })
	assert.Equal(t, "fragment", KindFragment.String())
}
