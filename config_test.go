package vkframe

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andewx/vkframe/driver"
)

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
app_name = "demo"
api_version = "1.3.250"
image_count = 2
device_extensions = ["VK_EXT_mesh_shader"]
clear_color = [0.1, 0.2, 0.3, 1.0]

[window]
title = "demo window"
width = 800
height = 600
`))
	require.NoError(t, err)
	assert.Equal(t, "demo", cfg.AppName)
	assert.Equal(t, uint32(2), cfg.ImageCount)
	assert.Equal(t, "demo window", cfg.Window.Title)
	assert.Equal(t, 800, cfg.Window.Width)
	// Unset keys keep their defaults.
	assert.True(t, cfg.Window.Resizable)
	assert.Equal(t, []string{"VK_LAYER_KHRONOS_validation"}, cfg.Layers)
	assert.Equal(t, [4]float32{0.1, 0.2, 0.3, 1.0}, cfg.ClearColor)

	v, err := cfg.Version()
	require.NoError(t, err)
	assert.Equal(t, driver.MakeVersion(1, 3, 250), v)
}

func TestParseConfigRejects(t *testing.T) {
	tests := map[string]string{
		"unknown key":    `frames_in_flight = 3`,
		"bad version":    `api_version = "vulkan"`,
		"zero images":    `image_count = 0`,
		"negative width": "[window]\nwidth = -1",
		"bad toml":       `app_name = `,
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseConfig([]byte(data))
			assert.Error(t, err)
		})
	}
}

func TestConfigRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AppName = "round trip"
	cfg.DeviceExtensions = []string{"VK_KHR_present_wait"}
	data, err := cfg.Encode()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "vkframe.toml")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	got, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestDefaultVersion(t *testing.T) {
	v, err := DefaultConfig().Version()
	require.NoError(t, err)
	assert.Equal(t, uint32(1), v.Major())
	assert.Equal(t, uint32(3), v.Minor())
}
