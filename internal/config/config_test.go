package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdir is a stand-in for t.Chdir, which requires Go 1.24+.
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() {
		if err := os.Chdir(old); err != nil {
			t.Errorf("restoring working directory: %v", err)
		}
	})
}

func TestLoadConfig_DefaultsWithoutFile(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := LoadConfig()
	require.NoError(t, err, "找不到配置文件时应当回退到默认值")

	assert.Equal(t, 10, cfg.FleetSize)
	assert.Equal(t, 1, cfg.AssemblyLines)
	assert.Equal(t, 5, cfg.SetupMinutes)
	assert.Equal(t, "PRIORITY", cfg.SchedulingPolicy)
	assert.Empty(t, cfg.ReleaseRule)
	assert.Equal(t, 2, cfg.AGV.ToWarehouseMinutes)
	assert.Equal(t, 3, cfg.AGV.ToStationMinutes)
	assert.Equal(t, 100, cfg.Pacing.AGVMinuteMs)
	assert.Equal(t, "input/orders.txt", cfg.Files.OrdersFile)
	assert.True(t, cfg.Web.Enabled)
	assert.Equal(t, ":8080", cfg.Web.ListenAddr)
}

func TestLoadConfig_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	content := `fleet_size: 4
assembly_lines: 2
scheduling_policy: FIFO
release_rule: "order.Priority >= 1"
agv:
  to_warehouse_minutes: 7
web:
  enabled: false
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o644))
	chdir(t, dir)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.FleetSize)
	assert.Equal(t, 2, cfg.AssemblyLines)
	assert.Equal(t, "FIFO", cfg.SchedulingPolicy)
	assert.Equal(t, "order.Priority >= 1", cfg.ReleaseRule)
	assert.Equal(t, 7, cfg.AGV.ToWarehouseMinutes)
	assert.Equal(t, 3, cfg.AGV.ToStationMinutes, "未覆盖的字段保持默认值")
	assert.False(t, cfg.Web.Enabled)
	assert.Equal(t, 5, cfg.SetupMinutes)
}
