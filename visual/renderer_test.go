package visual

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farwydi/actionpipe"
	"github.com/farwydi/actionpipe/video"
)

func trackedBox(id int, left int, top int, right int, bottom int) actionpipe.Detection {
	return actionpipe.Detection{
		Box:   actionpipe.Box{Left: left, Top: top, Right: right, Bottom: bottom},
		Class: "person",
		Score: 0.9,
	}.WithTrack(id)
}

func TestTrackColor(t *testing.T) {
	assert.Equal(t, Palette[0], TrackColor(0))
	assert.Equal(t, Palette[5], TrackColor(5))
	assert.Equal(t, Palette[0], TrackColor(len(Palette)))
	assert.Equal(t, Palette[0], TrackColor(-1))
}

func TestObserveKeepsLastScores(t *testing.T) {
	r := NewRenderer()

	r.Observe(&actionpipe.Prediction{Persons: []actionpipe.PersonActions{
		{TrackID: 1, Scores: []actionpipe.ActionScore{{ActionID: 12, Action: "stand", Score: 0.9}}},
	}})
	r.Observe(&actionpipe.Prediction{Persons: []actionpipe.PersonActions{
		{TrackID: 2, Scores: []actionpipe.ActionScore{{ActionID: 14, Action: "walk", Score: 0.7}}},
	}})

	// A prediction for another track must not disturb track 1.
	require.Len(t, r.Actions(1), 1)
	assert.Equal(t, "stand", r.Actions(1)[0].Action)

	r.Observe(&actionpipe.Prediction{Persons: []actionpipe.PersonActions{
		{TrackID: 1, Scores: []actionpipe.ActionScore{{ActionID: 11, Action: "sit", Score: 0.8}}},
	}})

	require.Len(t, r.Actions(1), 1)
	assert.Equal(t, "sit", r.Actions(1)[0].Action)

	assert.NotPanics(t, func() { r.Observe(nil) })
}

func TestDrawBoxUsesTrackColor(t *testing.T) {
	im := video.NewImage(100, 100)
	r := NewRenderer()

	r.Draw(im, []actionpipe.Detection{trackedBox(2, 20, 20, 40, 40)})

	// Left stroke sits just outside the box edge.
	assert.Equal(t, Palette[2], im.GetRGB(19, 30))
	assert.Equal(t, Palette[2], im.GetRGB(41, 30))
	// The box interior stays untouched.
	assert.Equal(t, [3]uint8{}, im.GetRGB(30, 30))
}

func TestDrawWithoutTrackUsesFallbackColor(t *testing.T) {
	im := video.NewImage(100, 100)
	r := NewRenderer()

	r.Draw(im, []actionpipe.Detection{{
		Box:   actionpipe.Box{Left: 20, Top: 20, Right: 40, Bottom: 40},
		Class: "person",
	}})

	assert.Equal(t, Palette[0], im.GetRGB(19, 30))
	// No ID tag above the box for untracked detections.
	assert.Equal(t, [3]uint8{}, im.GetRGB(21, 7))
}

func TestDrawActionLines(t *testing.T) {
	im := video.NewImage(200, 200)
	r := NewRenderer(Config{MaxLabels: 2})

	r.Observe(&actionpipe.Prediction{Persons: []actionpipe.PersonActions{
		{TrackID: 1, Scores: []actionpipe.ActionScore{
			{ActionID: 12, Action: "stand", Score: 0.9},
			{ActionID: 14, Action: "walk", Score: 0.8},
			{ActionID: 11, Action: "sit", Score: 0.7},
		}},
	}})

	r.Draw(im, []actionpipe.Detection{trackedBox(1, 10, 30, 60, 50)})

	// Two label lines below the box, the third capped by MaxLabels.
	assert.Equal(t, Palette[1], im.GetRGB(11, 53))
	assert.Equal(t, Palette[1], im.GetRGB(11, 67))
	assert.Equal(t, [3]uint8{}, im.GetRGB(11, 85))
}

func TestDrawClampsLabelsToFrame(t *testing.T) {
	im := video.NewImage(100, 100)
	r := NewRenderer()

	r.Observe(&actionpipe.Prediction{Persons: []actionpipe.PersonActions{
		{TrackID: 0, Scores: []actionpipe.ActionScore{{ActionID: 12, Action: "stand", Score: 0.9}}},
	}})

	// Too close to the top for the ID tag, too close to the bottom for an
	// action line.
	r.Draw(im, []actionpipe.Detection{trackedBox(0, 10, 4, 40, 95)})

	// The tag moved inside the box instead of above it.
	assert.Equal(t, Palette[0], im.GetRGB(11, 5))
	// The action line would overflow the frame and is dropped.
	assert.Equal(t, [3]uint8{}, im.GetRGB(11, 98))
}

func TestTextColorContrast(t *testing.T) {
	assert.Equal(t, [3]uint8{0, 0, 0}, textColor([3]uint8{0, 255, 0}))
	assert.Equal(t, [3]uint8{255, 255, 255}, textColor([3]uint8{0, 0, 255}))
}

func TestShortLabel(t *testing.T) {
	assert.Equal(t, "talk to", shortLabel("talk to (e.g., self, a person, a group)"))
	assert.Equal(t, "stand", shortLabel("stand"))
	assert.Equal(t, " (odd)", shortLabel(" (odd)"))
}

type stubReader struct {
	frames int
	read   int
	err    error
}

func (r *stubReader) Read() (video.Image, error) {
	if r.read >= r.frames {
		if r.err != nil {
			return video.Image{}, r.err
		}
		return video.Image{}, io.EOF
	}
	r.read++
	return video.NewImage(64, 48), nil
}

func (r *stubReader) Close() error { return nil }

type stubWriter struct {
	frames []video.Image
	err    error
}

func (w *stubWriter) Write(im video.Image) error {
	if w.err != nil {
		return w.err
	}
	w.frames = append(w.frames, im)
	return nil
}

func TestRenderPass(t *testing.T) {
	rd := &stubReader{frames: 3}
	wr := &stubWriter{}
	r := NewRenderer()

	tracked := [][]actionpipe.Detection{
		nil,
		{trackedBox(0, 10, 10, 30, 30)},
	}

	var asked []int
	err := RenderPass(rd, wr, r, tracked, func(frameIdx int) *actionpipe.Prediction {
		asked = append(asked, frameIdx)
		return nil
	})
	require.NoError(t, err)

	require.Len(t, wr.frames, 3)
	assert.Equal(t, []int{0, 1, 2}, asked)

	// Frame 1 carries the tracked box, frame 0 stays clean.
	assert.Equal(t, Palette[0], wr.frames[1].GetRGB(9, 20))
	assert.Equal(t, [3]uint8{}, wr.frames[0].GetRGB(9, 20))
}

func TestRenderPassPropagatesErrors(t *testing.T) {
	readErr := errors.New("stream broke")
	err := RenderPass(&stubReader{frames: 1, err: readErr}, &stubWriter{}, NewRenderer(), nil, nil)
	assert.ErrorIs(t, err, readErr)

	writeErr := errors.New("sink full")
	err = RenderPass(&stubReader{frames: 1}, &stubWriter{err: writeErr}, NewRenderer(), nil, nil)
	assert.ErrorIs(t, err, writeErr)
}
