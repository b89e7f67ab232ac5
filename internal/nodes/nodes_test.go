package nodes

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllowList_Match(t *testing.T) {
	a := NewAllowList(DefaultAddresses...)
	tests := []struct {
		name  string
		addr  string
		want  string
		match bool
	}{
		{"精确匹配", "68:5E:1C:1A:68:CF", "68:5E:1C:1A:68:CF", true},
		{"小写", "68:5e:1c:1a:5a:30", "68:5E:1C:1A:5A:30", true},
		{"无冒号", "685E1C1A68CF", "68:5E:1C:1A:68:CF", true},
		{"下划线分隔不匹配", "hci0/dev_68_5E_1C_1A_68_CF", "", false},
		{"子串包含", "XX685E1C1A5A30YY", "68:5E:1C:1A:5A:30", true},
		{"未登记", "11:22:33:44:55:66", "", false},
		{"空地址", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := a.Match(tt.addr)
			assert.Equal(t, tt.match, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAllowList_Dedup(t *testing.T) {
	a := NewAllowList("68:5E:1C:1A:68:CF", "685e1c1a68cf", " ", "")
	assert.Equal(t, 1, a.Len())
	assert.Equal(t, []string{"68:5E:1C:1A:68:CF"}, a.Entries())

	var nilList *AllowList
	_, ok := nilList.Match("68:5E:1C:1A:68:CF")
	assert.False(t, ok)
}

func TestLoadDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nodes.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
nodes:
  - address: "68:5E:1C:1A:68:CF"
    label: "greenhouse-north"
    location: "B1"
  - address: "68:5e:1c:1a:5a:30"
`), 0o644))

	d, err := LoadDirectory(path)
	require.NoError(t, err)
	require.Len(t, d.Nodes, 2)

	assert.Equal(t, "greenhouse-north", d.Label("685E1C1A68CF"))
	assert.Equal(t, "68:5E:1C:1A:5A:30", d.Label("68:5E:1C:1A:5A:30"))
	n, ok := d.Lookup("68:5E:1C:1A:68:CF")
	require.True(t, ok)
	assert.Equal(t, "B1", n.Location)

	d.Merge("68:5E:1C:1A:68:CF", "AA:BB:CC:DD:EE:FF")
	assert.Len(t, d.Nodes, 3)
	assert.Equal(t, 3, d.AllowList().Len())
}

func TestLoadDirectory_Errors(t *testing.T) {
	_, err := LoadDirectory(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("nodes:\n  - label: x\n"), 0o644))
	_, err = LoadDirectory(path)
	assert.Error(t, err)
}
