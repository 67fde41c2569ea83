package action

import (
	"testing"

	"github.com/farwydi/actionpipe"
	"github.com/farwydi/actionpipe/video"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeModel struct {
	lastExtractObjects []actionpipe.Box
	lastMemory         []WindowEntry
	scores             [][]float64
}

func (m *fakeModel) Extract(timestamp int, clip []video.Image, persons []actionpipe.Box, objects []actionpipe.Box) ([][]float32, [][]float32, error) {
	m.lastExtractObjects = objects
	personFeatures := make([][]float32, len(persons))
	for i := range personFeatures {
		personFeatures[i] = []float32{float32(timestamp), float32(i)}
	}
	objectFeatures := make([][]float32, len(objects))
	for i := range objectFeatures {
		objectFeatures[i] = []float32{float32(i)}
	}
	return personFeatures, objectFeatures, nil
}

func (m *fakeModel) Classify(timestamp int, current Entry, memory []WindowEntry) ([][]float64, error) {
	m.lastMemory = memory
	if m.scores != nil {
		return m.scores, nil
	}
	scores := make([][]float64, len(current.PersonFeatures))
	for i := range scores {
		scores[i] = make([]float64, LabelCount)
	}
	return scores, nil
}

func trackedPerson(id int, left int) actionpipe.Detection {
	d := actionpipe.Detection{
		Box:   actionpipe.Box{Left: left, Top: 0, Right: left + 50, Bottom: 100},
		Class: "person",
		Score: 0.9,
	}
	return d.WithTrack(id)
}

func object(class string, score float64) actionpipe.Detection {
	return actionpipe.Detection{
		Box:   actionpipe.Box{Left: 0, Top: 0, Right: 10, Bottom: 10},
		Class: class,
		Score: score,
	}
}

func clip(n int) []video.Image {
	frames := make([]video.Image, n)
	for i := range frames {
		frames[i] = video.NewImage(8, 8)
	}
	return frames
}

func TestUpdateFeaturesPoolsEntry(t *testing.T) {
	model := &fakeModel{}
	p := NewPredictor(model, Config{MaxObjects: 2})

	objects := []actionpipe.Detection{
		object("cup", 0.3),
		object("chair", 0.9),
		object("bottle", 0.7),
	}
	err := p.UpdateFeatures(5, clip(4), []actionpipe.Detection{
		trackedPerson(1, 0),
		trackedPerson(2, 200),
	}, objects)
	require.NoError(t, err)

	assert.Len(t, model.lastExtractObjects, 2, "objects capped at MaxObjects")
	assert.Equal(t, 1, p.Pooled())

	entry, ok := p.pool.Get("SingleVideo", 5)
	require.True(t, ok)
	assert.Equal(t, []int{1, 2}, entry.TrackIDs)
	assert.Len(t, entry.PersonFeatures, 2)
}

func TestUpdateFeaturesRequiresPersons(t *testing.T) {
	p := NewPredictor(&fakeModel{})
	assert.Error(t, p.UpdateFeatures(1, clip(2), nil, nil))
}

func TestUpdateFeaturesRequiresTrackIDs(t *testing.T) {
	p := NewPredictor(&fakeModel{})
	untracked := actionpipe.Detection{Class: "person", Score: 0.9}
	assert.Error(t, p.UpdateFeatures(1, clip(2), []actionpipe.Detection{untracked}, nil))
}

func TestPredictFiltersAndSorts(t *testing.T) {
	scores := make([]float64, LabelCount)
	scores[11] = 0.9 // stand
	scores[13] = 0.7 // walk
	scores[0] = 0.3  // under threshold

	model := &fakeModel{scores: [][]float64{scores}}
	p := NewPredictor(model, Config{Threshold: 0.5})

	require.NoError(t, p.UpdateFeatures(2, clip(2), []actionpipe.Detection{trackedPerson(7, 0)}, nil))

	prediction, err := p.Predict(2)
	require.NoError(t, err)
	require.Len(t, prediction.Persons, 1)

	person := prediction.Persons[0]
	assert.Equal(t, 7, person.TrackID)
	require.Len(t, person.Scores, 2)
	assert.Equal(t, "stand", person.Scores[0].Action)
	assert.Equal(t, 12, person.Scores[0].ActionID)
	assert.Equal(t, 0.9, person.Scores[0].Score)
	assert.Equal(t, "walk", person.Scores[1].Action)
}

func TestPredictExcludesActions(t *testing.T) {
	scores := make([]float64, LabelCount)
	scores[11] = 0.9
	scores[13] = 0.8

	model := &fakeModel{scores: [][]float64{scores}}
	p := NewPredictor(model, Config{Threshold: 0.5, Exclude: []string{"walk"}})

	require.NoError(t, p.UpdateFeatures(2, clip(2), []actionpipe.Detection{trackedPerson(7, 0)}, nil))

	prediction, err := p.Predict(2)
	require.NoError(t, err)
	require.Len(t, prediction.Persons[0].Scores, 1)
	assert.Equal(t, "stand", prediction.Persons[0].Scores[0].Action)
}

func TestPredictUsesWindow(t *testing.T) {
	model := &fakeModel{}
	p := NewPredictor(model, Config{Window: 1})

	for ts := 1; ts <= 5; ts++ {
		require.NoError(t, p.UpdateFeatures(ts, clip(2), []actionpipe.Detection{trackedPerson(1, 0)}, nil))
	}

	_, err := p.Predict(3)
	require.NoError(t, err)

	require.Len(t, model.lastMemory, 3)
	assert.Equal(t, 2, model.lastMemory[0].Timestamp)
	assert.Equal(t, 3, model.lastMemory[1].Timestamp)
	assert.Equal(t, 4, model.lastMemory[2].Timestamp)
}

func TestPredictUnknownTimestamp(t *testing.T) {
	p := NewPredictor(&fakeModel{})
	_, err := p.Predict(99)
	assert.Error(t, err)
}

func TestTrimDropsOldTimestamps(t *testing.T) {
	p := NewPredictor(&fakeModel{})
	for ts := 0; ts < 6; ts++ {
		require.NoError(t, p.UpdateFeatures(ts, clip(2), []actionpipe.Detection{trackedPerson(1, 0)}, nil))
	}

	p.Trim(4)
	assert.Equal(t, 2, p.Pooled())
}

func TestPredictRejectsMismatchedScoreRows(t *testing.T) {
	model := &fakeModel{scores: [][]float64{make([]float64, LabelCount)}}
	p := NewPredictor(model)

	err := p.UpdateFeatures(3, clip(4), []actionpipe.Detection{
		trackedPerson(1, 0),
		trackedPerson(2, 200),
	}, nil)
	require.NoError(t, err)

	// One score row for two persons is a broken model answer, not a panic.
	_, err = p.Predict(3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 score rows for 2 persons")
}
