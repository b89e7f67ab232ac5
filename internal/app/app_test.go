package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/taoyao-code/mesh-reader/internal/capture"
	cfgpkg "github.com/taoyao-code/mesh-reader/internal/config"
	"github.com/taoyao-code/mesh-reader/internal/protocol/mesh"
	"github.com/taoyao-code/mesh-reader/internal/session"
	"github.com/taoyao-code/mesh-reader/internal/sink"
)

func TestNewPollerConfig(t *testing.T) {
	cfg := &cfgpkg.Config{
		BLE: cfgpkg.BLEConfig{ScanWindow: 2 * time.Second},
		Protocol: cfgpkg.ProtocolConfig{
			CmdList: "L", CmdGet: "G", StatusOK: "O", StatusError: "E",
			FragmentIdle: 300 * time.Millisecond,
		},
		Poll: cfgpkg.PollConfig{CycleDelay: time.Minute},
	}
	pc, err := NewPollerConfig(cfg)
	require.NoError(t, err)

	assert.Equal(t, mesh.DefaultServiceUUID, pc.Service)
	assert.Equal(t, mesh.DefaultCharacteristicUUID, pc.Session.Characteristic)
	assert.Equal(t, 2*time.Second, pc.ScanWindow)
	assert.Equal(t, 500*time.Millisecond, pc.StabilizeDelay)
	assert.Equal(t, 300*time.Millisecond, pc.Session.FragmentIdle)
	assert.Equal(t, session.DefaultOperationTimeout, pc.Session.OperationTimeout)
	assert.Equal(t, time.Minute, pc.CycleDelay)
	assert.Equal(t, mesh.DefaultCodes(), pc.Session.Codes)

	cfg.Protocol.StatusError = "O"
	_, err = NewPollerConfig(cfg)
	assert.Error(t, err)
}

func TestNewDirectory(t *testing.T) {
	log := zap.NewNop()

	t.Run("仅配置地址", func(t *testing.T) {
		dir, err := NewDirectory(cfgpkg.BLEConfig{Nodes: []string{"68:5E:1C:1A:68:CF"}}, log)
		require.NoError(t, err)
		assert.Len(t, dir.Nodes, 1)
	})

	t.Run("目录文件在前", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nodes.yaml")
		require.NoError(t, os.WriteFile(path, []byte("nodes:\n  - address: \"68:5E:1C:1A:5A:30\"\n    label: south\n"), 0o644))
		dir, err := NewDirectory(cfgpkg.BLEConfig{NodesFile: path, Nodes: []string{"68:5e:1c:1a:5a:30", "68:5E:1C:1A:68:CF"}}, log)
		require.NoError(t, err)
		require.Len(t, dir.Nodes, 2)
		assert.Equal(t, "south", dir.Nodes[0].Label)
		assert.Equal(t, "68:5E:1C:1A:68:CF", dir.Nodes[1].Address)
	})

	t.Run("没有节点", func(t *testing.T) {
		_, err := NewDirectory(cfgpkg.BLEConfig{}, log)
		assert.Error(t, err)
	})
}

func TestNewSink(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	extra := sink.Named{Name: "pg", Sink: sink.Func(nil)}
	out, err := NewSink(cfgpkg.SinkConfig{
		JSON: cfgpkg.JSONSinkConfig{Enable: true, Dir: dir},
		Log:  cfgpkg.LogSinkConfig{Enable: true},
	}, zap.NewNop(), extra, sink.Named{Name: "redis"})
	require.NoError(t, err)

	var names []string
	for _, s := range out {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"json", "log", "pg"}, names)
	assert.DirExists(t, dir)
}

func TestNewRecorder(t *testing.T) {
	rec, closeFn, err := NewRecorder(cfgpkg.CaptureConfig{}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, capture.Nop{}, rec)
	assert.NoError(t, closeFn())

	path := filepath.Join(t.TempDir(), "cap", "mesh.cbor")
	rec, closeFn, err = NewRecorder(cfgpkg.CaptureConfig{Enable: true, Path: path}, zap.NewNop())
	require.NoError(t, err)
	rec.Record(capture.Event{Kind: capture.KindCommand, Data: []byte{'L'}})
	require.NoError(t, closeFn())
	assert.FileExists(t, path)
}
