package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taoyao-code/mesh-reader/internal/protocol/mesh"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("MESH_CONFIG", "")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "mesh-reader", cfg.App.Name)
	assert.Equal(t, ":8090", cfg.HTTP.Addr)
	assert.Equal(t, 5*time.Second, cfg.BLE.ScanWindow)
	assert.Equal(t, 500*time.Millisecond, cfg.BLE.StabilizeDelay)
	assert.Equal(t, []string{"68:5E:1C:1A:68:CF", "68:5E:1C:1A:5A:30"}, cfg.BLE.Nodes)
	assert.Equal(t, 5*time.Second, cfg.Protocol.OperationTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Protocol.FragmentIdle)
	assert.Equal(t, 100*time.Millisecond, cfg.Poll.Pacing)
	assert.Equal(t, 30*time.Second, cfg.Poll.CycleDelay)
	assert.False(t, cfg.Database.Enable)
	assert.False(t, cfg.Redis.Enable)

	codes, err := cfg.Protocol.Codes()
	require.NoError(t, err)
	assert.Equal(t, mesh.DefaultCodes(), codes)
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mesh.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
ble:
  nodes: ["AA:BB:CC:DD:EE:FF"]
  scanWindow: 2s
protocol:
  cmdList: "0x4C"
  cmdGet: 71
poll:
  cycleDelay: 1m
sink:
  json:
    dir: /var/lib/mesh
`), 0o644))
	t.Setenv("MESH_HTTP_ADDR", ":9999")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.HTTP.Addr)
	assert.Equal(t, []string{"AA:BB:CC:DD:EE:FF"}, cfg.BLE.Nodes)
	assert.Equal(t, 2*time.Second, cfg.BLE.ScanWindow)
	assert.Equal(t, time.Minute, cfg.Poll.CycleDelay)
	assert.Equal(t, "/var/lib/mesh", cfg.Sink.JSON.Dir)

	codes, err := cfg.Protocol.Codes()
	require.NoError(t, err)
	assert.Equal(t, byte('L'), codes.List)
	assert.Equal(t, byte('G'), codes.Get)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestProtocolConfig_Codes(t *testing.T) {
	tests := []struct {
		name    string
		p       ProtocolConfig
		wantErr bool
	}{
		{"字符", ProtocolConfig{CmdList: "L", CmdGet: "G", StatusOK: "O", StatusError: "E"}, false},
		{"数字", ProtocolConfig{CmdList: "76", CmdGet: "0x47", StatusOK: "79", StatusError: "69"}, false},
		{"空值", ProtocolConfig{CmdList: "", CmdGet: "G", StatusOK: "O", StatusError: "E"}, true},
		{"越界", ProtocolConfig{CmdList: "300", CmdGet: "G", StatusOK: "O", StatusError: "E"}, true},
		{"状态码相同", ProtocolConfig{CmdList: "L", CmdGet: "G", StatusOK: "O", StatusError: "O"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := tt.p.Codes()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, mesh.DefaultCodes(), c)
		})
	}
}
