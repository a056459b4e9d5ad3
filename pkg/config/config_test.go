package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadHiveAppliesDefaultsWithNoConfigFile(t *testing.T) {
	cfg, level, err := LoadHive(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:7420", cfg.BindAddr)
	assert.Equal(t, "info", level)
	assert.Equal(t, 10, cfg.Registry.MaxActive)
	assert.Equal(t, 0.8, cfg.Placement.MaxLoadThreshold)
	assert.Equal(t, 1024, cfg.Engine.QueueCapacity)
}

func TestLoadDroneAppliesDefaultsAndHostnameFallback(t *testing.T) {
	cfg, level, err := LoadDrone(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7420", cfg.HiveAddr)
	assert.Equal(t, "info", level)
	assert.NotEmpty(t, cfg.WorkerID)
	assert.Equal(t, uint32(10), cfg.MaxTasks)
}
