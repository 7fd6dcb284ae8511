package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")
	cfg := Default()
	cfg.Mode = "yolo"
	cfg.AutoDetect = true
	cfg.Model = "custom.onnx"
	cfg.Confidence = 0.25
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestValidateNormalizes(t *testing.T) {
	cfg := &Config{Mode: "RFDETR", Confidence: 3, DefaultClass: -2, InputSize: 100, NMSThreshold: -1}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "rfdetr", cfg.Mode)
	assert.Equal(t, 0.5, cfg.Confidence)
	assert.Equal(t, 0, cfg.DefaultClass)
	assert.Equal(t, 640, cfg.InputSize)
	assert.Equal(t, 0.45, cfg.NMSThreshold)
	assert.Equal(t, "yolo", cfg.ExportFormat)
	assert.Equal(t, 4, cfg.ExportWorkers)

	assert.Error(t, (&Config{Mode: "coco"}).Validate())
}

func TestLoadInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mode: [oops"), 0o644))
	cfg, err := Load(path)
	assert.Error(t, err)
	assert.Equal(t, Default(), cfg)
}
