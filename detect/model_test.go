package detect

import (
	"bufio"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farwydi/actionpipe"
)

func TestAwaitJSONSkipsChatter(t *testing.T) {
	rd := bufio.NewReader(strings.NewReader(
		"loading weights\nwarmup done\njson[[{\"left\":1}]]\n"))

	payload, err := awaitJSON(rd)
	require.NoError(t, err)
	assert.Equal(t, `[[{"left":1}]]`, string(payload))
}

func TestAwaitJSONStreamEnds(t *testing.T) {
	rd := bufio.NewReader(strings.NewReader("still loading\n"))

	_, err := awaitJSON(rd)
	assert.ErrorIs(t, err, io.EOF)
}

func TestConfigDefault(t *testing.T) {
	cfg := configDefault()
	assert.Equal(t, ConfigDefault, cfg)

	cfg = configDefault(Config{InputWidth: 1280, InputHeight: 720})
	assert.Equal(t, 1280, cfg.InputWidth)
	assert.Equal(t, 720, cfg.InputHeight)
	assert.Equal(t, ConfigDefault.BatchSize, cfg.BatchSize)
	assert.Equal(t, ConfigDefault.Threshold, cfg.Threshold)
}

func TestPostprocessThresholdAndClasses(t *testing.T) {
	m := &Model{cfg: configDefault(Config{
		InputWidth:  640,
		InputHeight: 352,
		Threshold:   0.5,
		Classes:     []string{"person", "chair"},
	})}

	raw := [][]actionpipe.Detection{{
		{Box: actionpipe.Box{Left: 10, Top: 10, Right: 20, Bottom: 20}, Class: "person", Score: 0.9},
		{Box: actionpipe.Box{Left: 30, Top: 30, Right: 40, Bottom: 40}, Class: "person", Score: 0.3},
		{Box: actionpipe.Box{Left: 50, Top: 50, Right: 60, Bottom: 60}, Class: "kite", Score: 0.8},
		{Box: actionpipe.Box{Left: 70, Top: 70, Right: 80, Bottom: 80}, Class: "chair", Score: 0.6},
	}}

	out := m.postprocess(raw)
	require.Len(t, out, 1)
	require.Len(t, out[0], 2)
	assert.Equal(t, "person", out[0][0].Class)
	assert.Equal(t, "chair", out[0][1].Class)
}

func TestPostprocessEmptyClassListKeepsEverything(t *testing.T) {
	m := &Model{cfg: configDefault(Config{InputWidth: 640, InputHeight: 352})}

	raw := [][]actionpipe.Detection{{
		{Box: actionpipe.Box{Left: 1, Top: 1, Right: 5, Bottom: 5}, Class: "kite", Score: 0.9},
	}}

	out := m.postprocess(raw)
	require.Len(t, out[0], 1)
	assert.Equal(t, "kite", out[0][0].Class)
}

func TestPostprocessRescalesToFrame(t *testing.T) {
	m := &Model{cfg: configDefault(Config{
		InputWidth:  640,
		InputHeight: 320,
		FrameWidth:  1280,
		FrameHeight: 640,
	})}

	raw := [][]actionpipe.Detection{{
		{Box: actionpipe.Box{Left: 10, Top: 20, Right: 100, Bottom: 200}, Class: "person", Score: 0.9},
	}}

	out := m.postprocess(raw)
	require.Len(t, out[0], 1)
	assert.Equal(t, actionpipe.Box{Left: 20, Top: 40, Right: 200, Bottom: 400}, out[0][0].Box)
}

func TestPostprocessClipsToFrame(t *testing.T) {
	m := &Model{cfg: configDefault(Config{
		InputWidth:  640,
		InputHeight: 352,
		FrameWidth:  640,
		FrameHeight: 352,
	})}

	raw := [][]actionpipe.Detection{{
		{Box: actionpipe.Box{Left: -15, Top: -3, Right: 700, Bottom: 400}, Class: "person", Score: 0.9},
	}}

	out := m.postprocess(raw)
	require.Len(t, out[0], 1)
	assert.Equal(t, actionpipe.Box{Left: 0, Top: 0, Right: 640, Bottom: 352}, out[0][0].Box)
}

func TestPostprocessClipsModelCoordinates(t *testing.T) {
	// No frame dimensions configured, boxes stay in model coordinates but
	// still get clipped to the model input.
	m := &Model{cfg: configDefault(Config{InputWidth: 640, InputHeight: 352})}

	raw := [][]actionpipe.Detection{{
		{Box: actionpipe.Box{Left: 600, Top: 300, Right: 900, Bottom: 500}, Class: "person", Score: 0.9},
	}}

	out := m.postprocess(raw)
	require.Len(t, out[0], 1)
	assert.Equal(t, actionpipe.Box{Left: 600, Top: 300, Right: 640, Bottom: 352}, out[0][0].Box)
}

func TestNewModelRejectsEmptyCommand(t *testing.T) {
	_, err := NewModel(nil, "weights.pt")
	assert.Error(t, err)
}
