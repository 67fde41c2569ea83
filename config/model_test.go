package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const modelYAML = `
process:
  width: 1280
  height: 720
detector:
  command: ["python3", "scripts/detector.py"]
  weights: yolov3.weights
  threshold: 0.4
  classes: [person, chair]
action:
  command: ["python3", "scripts/action.py"]
  weights: action_model.pt
  frame_count: 16
  labels:
    12: standing
`

func writeModelConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "models.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadModelConfig(t *testing.T) {
	mc, err := LoadModelConfig(writeModelConfig(t, modelYAML))
	require.NoError(t, err)

	assert.Equal(t, 1280, mc.Process.Width)
	assert.Equal(t, 720, mc.Process.Height)
	assert.Equal(t, []string{"python3", "scripts/detector.py"}, mc.Detector.Command)
	assert.Equal(t, 0.4, mc.Detector.Threshold)
	assert.Equal(t, []string{"person", "chair"}, mc.Detector.Classes)
	assert.Equal(t, 16, mc.Action.FrameCount)
	assert.Equal(t, "standing", mc.Action.Labels[12])

	// Unset fields fall back to the defaults.
	assert.Equal(t, 1, mc.Detector.BatchSize)
	assert.Equal(t, 2, mc.Action.FrameStride)
	assert.Equal(t, 30, mc.Action.MemoryWindow)
	assert.Equal(t, 0.5, mc.Action.Threshold)
	assert.Equal(t, 5, mc.Action.MaxObjects)
}

func TestLoadModelConfigDefaultsProcess(t *testing.T) {
	mc, err := LoadModelConfig(writeModelConfig(t, `
detector:
  command: [detector]
  weights: d.w
action:
  command: [action]
  weights: a.w
`))
	require.NoError(t, err)
	assert.Equal(t, 640, mc.Process.Width)
	assert.Equal(t, 352, mc.Process.Height)
}

func TestLoadModelConfigValidation(t *testing.T) {
	_, err := LoadModelConfig(writeModelConfig(t, `
process:
  width: 640
`))
	require.Error(t, err)
	// Every missing field is reported at once.
	assert.Contains(t, err.Error(), "detector.command")
	assert.Contains(t, err.Error(), "detector.weights")
	assert.Contains(t, err.Error(), "action.command")
	assert.Contains(t, err.Error(), "action.weights")
}

func TestLoadModelConfigMissingFile(t *testing.T) {
	_, err := LoadModelConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestMissingWeights(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "yolov3.weights"), []byte("w"), 0644))

	mc := ModelConfig{
		Detector: DetectorConfig{Weights: "yolov3.weights"},
		Action:   ActionConfig{Weights: "action_model.pt"},
	}

	missing := mc.MissingWeights(dir)
	require.Len(t, missing, 1)
	assert.Equal(t, filepath.Join(dir, "action_model.pt"), missing[0])

	require.NoError(t, os.WriteFile(filepath.Join(dir, "action_model.pt"), []byte("w"), 0644))
	assert.Empty(t, mc.MissingWeights(dir))
}

func TestMissingWeightsDeduplicates(t *testing.T) {
	mc := ModelConfig{
		Detector: DetectorConfig{Weights: "shared.pt"},
		Action:   ActionConfig{Weights: "shared.pt"},
	}
	assert.Len(t, mc.MissingWeights(t.TempDir()), 1)
}
