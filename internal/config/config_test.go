package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig_Defaults(t *testing.T) {
	c := NewConfig()

	assert.Equal(t, "DevilConnection.exe", c.Game.ExeName)
	assert.Equal(t, 1145, c.Game.DebugPort)
	assert.Equal(t, "TYRANO.kag.variable.sf", c.Runtime.SystemObject)
	assert.Equal(t, "TYRANO.kag.stat", c.Runtime.TransientObject)
	assert.Equal(t, "TYRANO.kag.saveSystemVariable()", c.Runtime.PersistHook)
	assert.Equal(t, 3000, c.Runtime.StartupDelayMS)
	assert.Equal(t, 3, c.Runtime.MaxRetries)
	assert.Equal(t, 2000, c.Poll.ActiveIntervalMS)
	assert.Equal(t, 5000, c.Poll.IdleIntervalMS)
	assert.Equal(t, 1000, c.Poll.CacheTTLMS)
}

func TestLoad_MissingFileGivesDefaults(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 1145, c.Game.DebugPort)
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("game:\n  debugPort: 9333\n"), 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9333, c.Game.DebugPort)
	// 未覆盖的字段保留默认值
	assert.Equal(t, "DevilConnection.exe", c.Game.ExeName)
	assert.Equal(t, 15000, c.Runtime.EvalTimeoutMS)
}

func TestLoad_BrokenYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("game: [broken"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	c := NewConfig()
	c.Game.StorageDir = `D:\games\DevilConnection\_storage`
	c.Game.DebugPort = 9222
	require.NoError(t, c.Save(path))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, c.Game.StorageDir, got.Game.StorageDir)
	assert.Equal(t, 9222, got.Game.DebugPort)
}

func TestValidPort(t *testing.T) {
	assert.True(t, ValidPort(1))
	assert.True(t, ValidPort(1145))
	assert.True(t, ValidPort(65535))
	assert.False(t, ValidPort(0))
	assert.False(t, ValidPort(-5))
	assert.False(t, ValidPort(65536))
}
