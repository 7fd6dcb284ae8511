// Package config provides YAML-based application configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"ai-labeller/internal/labels"

	"gopkg.in/yaml.v3"
)

const configFile = "config.yaml"

// Config holds user settings. Fields may be loaded from a YAML file and
// overridden by command-line flags.
type Config struct {
	// Dataset
	Mode  string `yaml:"mode"`
	Split string `yaml:"split,omitempty"`

	// Pre-labeling of images without a label file
	Propagate  bool `yaml:"propagate"`
	AutoDetect bool `yaml:"auto_detect"`

	// Detector
	Model        string   `yaml:"model,omitempty"`
	Models       []string `yaml:"models,omitempty"`
	Confidence   float64  `yaml:"confidence"`
	DefaultClass int      `yaml:"default_class"`
	InputSize    int      `yaml:"input_size"`
	NMSThreshold float64  `yaml:"nms_threshold"`

	// Export
	ExportFormat  string `yaml:"export_format"`
	ExportWorkers int    `yaml:"export_workers"`
}

// Default returns a Config populated with standard defaults.
func Default() *Config {
	return &Config{
		Mode:          string(labels.ModeImages),
		Propagate:     true,
		AutoDetect:    false,
		Models:        []string{"yolo26m.pt", "yolo26n.pt"},
		Confidence:    0.5,
		DefaultClass:  0,
		InputSize:     640,
		NMSThreshold:  0.45,
		ExportFormat:  "yolo",
		ExportWorkers: 4,
	}
}

// Validate normalizes values to safe ranges. It only fails on an unknown mode.
func (c *Config) Validate() error {
	mode, err := labels.ParseMode(c.Mode)
	if err != nil {
		return err
	}
	c.Mode = string(mode)
	if c.Confidence < 0 || c.Confidence > 1 {
		c.Confidence = 0.5
	}
	if c.DefaultClass < 0 {
		c.DefaultClass = 0
	}
	if c.InputSize <= 0 || c.InputSize%32 != 0 {
		c.InputSize = 640
	}
	if c.NMSThreshold <= 0 || c.NMSThreshold > 1 {
		c.NMSThreshold = 0.45
	}
	if c.ExportFormat == "" {
		c.ExportFormat = "yolo"
	}
	if c.ExportWorkers <= 0 {
		c.ExportWorkers = 4
	}
	return nil
}

// DefaultPath returns ~/.config/ai-labeller/config.yaml.
func DefaultPath() string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		configDir = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(configDir, "ai-labeller", configFile)
}

// Load reads configuration from path. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return Default(), fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Default(), fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the configuration to path in YAML format.
func (c *Config) Save(path string) error {
	if err := c.Validate(); err != nil {
		return err
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
