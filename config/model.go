package config

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v2"
)

// ModelConfig describes the model subprocesses and the clip shape the
// pipeline feeds them. The weight file names are resolved against the
// weights directory.
type ModelConfig struct {
	Process  ProcessConfig  `yaml:"process"`
	Detector DetectorConfig `yaml:"detector"`
	Action   ActionConfig   `yaml:"action"`
}

// ProcessConfig is the resolution frames are decoded and processed at.
type ProcessConfig struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// DetectorConfig configures the object detector subprocess.
type DetectorConfig struct {
	Command   []string `yaml:"command"`
	Weights   string   `yaml:"weights"`
	BatchSize int      `yaml:"batch_size"`
	Threshold float64  `yaml:"threshold"`
	Classes   []string `yaml:"classes"`
}

// ActionConfig configures the action model subprocess and the clip shape.
type ActionConfig struct {
	Command      []string       `yaml:"command"`
	Weights      string         `yaml:"weights"`
	FrameCount   int            `yaml:"frame_count"`
	FrameStride  int            `yaml:"frame_stride"`
	MemoryWindow int            `yaml:"memory_window"`
	Threshold    float64        `yaml:"threshold"`
	MaxObjects   int            `yaml:"max_objects"`
	Labels       map[int]string `yaml:"labels"`
}

// LoadModelConfig reads and validates the model YAML. Unset numeric fields
// fall back to built-in defaults.
func LoadModelConfig(path string) (ModelConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return ModelConfig{}, fmt.Errorf("read model config: %w", err)
	}

	var mc ModelConfig
	if err := yaml.Unmarshal(raw, &mc); err != nil {
		return ModelConfig{}, fmt.Errorf("parse model config: %w", err)
	}

	mc.applyDefaults()
	if err := mc.validate(); err != nil {
		return ModelConfig{}, err
	}
	return mc, nil
}

func (m *ModelConfig) applyDefaults() {
	if m.Process.Width <= 0 {
		m.Process.Width = 640
	}
	if m.Process.Height <= 0 {
		m.Process.Height = 352
	}
	if m.Detector.BatchSize <= 0 {
		m.Detector.BatchSize = 1
	}
	if m.Detector.Threshold <= 0 {
		m.Detector.Threshold = 0.25
	}
	if m.Action.FrameCount <= 0 {
		m.Action.FrameCount = 32
	}
	if m.Action.FrameStride <= 0 {
		m.Action.FrameStride = 2
	}
	if m.Action.MemoryWindow <= 0 {
		m.Action.MemoryWindow = 30
	}
	if m.Action.Threshold <= 0 {
		m.Action.Threshold = 0.5
	}
	if m.Action.MaxObjects <= 0 {
		m.Action.MaxObjects = 5
	}
}

func (m ModelConfig) validate() error {
	var err error
	if len(m.Detector.Command) == 0 {
		err = multierr.Append(err, fmt.Errorf("detector.command is required"))
	}
	if m.Detector.Weights == "" {
		err = multierr.Append(err, fmt.Errorf("detector.weights is required"))
	}
	if len(m.Action.Command) == 0 {
		err = multierr.Append(err, fmt.Errorf("action.command is required"))
	}
	if m.Action.Weights == "" {
		err = multierr.Append(err, fmt.Errorf("action.weights is required"))
	}
	return err
}

// MissingWeights returns the weight files the user has not placed into dir,
// as full paths. Empty means everything is in place.
func (m ModelConfig) MissingWeights(dir string) []string {
	var missing []string
	seen := map[string]bool{}
	for _, name := range []string{m.Detector.Weights, m.Action.Weights} {
		if name == "" {
			continue
		}
		path := filepath.Join(dir, name)
		if seen[path] {
			continue
		}
		seen[path] = true
		if _, err := os.Stat(path); err != nil {
			missing = append(missing, path)
		}
	}
	return missing
}
