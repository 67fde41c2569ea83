package action

import (
	"fmt"
	"sort"

	"github.com/farwydi/actionpipe"
	"github.com/farwydi/actionpipe/video"
)

// ModelClient is the part of Model the predictor needs. Classify must
// return one score row per person in the current entry, in entry order.
type ModelClient interface {
	Extract(timestamp int, clip []video.Image, persons []actionpipe.Box, objects []actionpipe.Box) ([][]float32, [][]float32, error)
	Classify(timestamp int, current Entry, memory []WindowEntry) ([][]float64, error)
}

// Config defines the config for the predictor.
type Config struct {
	// MovieID keys the memory pool. A demo run is a single movie.
	MovieID string
	// Window is how many timestamps on each side of the scored one are
	// handed to the classifier.
	Window int
	// Threshold drops action scores below it.
	Threshold float64
	// MaxObjects caps the object boxes per extraction, keeping the top
	// scored ones.
	MaxObjects int
	// Exclude lists action labels removed from every result.
	Exclude []string
	// Labels overrides the built-in action vocabulary.
	Labels map[int]string
}

// ConfigDefault is the default config
var ConfigDefault = Config{
	MovieID:    "SingleVideo",
	Window:     30,
	Threshold:  0.5,
	MaxObjects: 5,
}

func configDefault(config ...Config) Config {
	if len(config) < 1 {
		return ConfigDefault
	}

	cfg := config[0]

	if cfg.MovieID == "" {
		cfg.MovieID = ConfigDefault.MovieID
	}

	if cfg.Window <= 0 {
		cfg.Window = ConfigDefault.Window
	}

	if cfg.Threshold <= 0 {
		cfg.Threshold = ConfigDefault.Threshold
	}

	if cfg.MaxObjects <= 0 {
		cfg.MaxObjects = ConfigDefault.MaxObjects
	}

	return cfg
}

// Predictor owns the action model and the feature memory. UpdateFeatures
// stores per-person features for a timestamp, Predict scores a stored
// timestamp against its memory window.
type Predictor struct {
	model   ModelClient
	pool    *MemoryPool
	cfg     Config
	labels  map[int]string
	exclude map[string]bool
}

func NewPredictor(model ModelClient, config ...Config) *Predictor {
	cfg := configDefault(config...)

	labels := cfg.Labels
	if labels == nil {
		labels = Labels
	}

	exclude := make(map[string]bool, len(cfg.Exclude))
	for _, name := range cfg.Exclude {
		exclude[name] = true
	}

	return &Predictor{
		model:   model,
		pool:    NewMemoryPool(),
		cfg:     cfg,
		labels:  labels,
		exclude: exclude,
	}
}

// UpdateFeatures extracts and pools the features of one interval tick.
// Persons must already carry track IDs; objects are reduced to the top
// scored MaxObjects.
func (p *Predictor) UpdateFeatures(timestamp int, clip []video.Image, persons []actionpipe.Detection, objects []actionpipe.Detection) error {
	if len(persons) == 0 {
		return fmt.Errorf("no persons at timestamp %d", timestamp)
	}

	objects = actionpipe.TopByScore(objects, p.cfg.MaxObjects)

	personBoxes := make([]actionpipe.Box, len(persons))
	trackIDs := make([]int, len(persons))
	for i, d := range persons {
		if d.TrackID == nil {
			return fmt.Errorf("person %d at timestamp %d has no track ID", i, timestamp)
		}
		personBoxes[i] = d.Box
		trackIDs[i] = *d.TrackID
	}
	objectBoxes := make([]actionpipe.Box, len(objects))
	for i, d := range objects {
		objectBoxes[i] = d.Box
	}

	personFeatures, objectFeatures, err := p.model.Extract(timestamp, clip, personBoxes, objectBoxes)
	if err != nil {
		return fmt.Errorf("extracting features at timestamp %d: %w", timestamp, err)
	}

	p.pool.Put(p.cfg.MovieID, timestamp, Entry{
		TrackIDs:       trackIDs,
		Boxes:          personBoxes,
		PersonFeatures: personFeatures,
		ObjectFeatures: objectFeatures,
	})
	return nil
}

// Predict scores the persons pooled at a timestamp. The timestamp must have
// been updated first.
func (p *Predictor) Predict(timestamp int) (*actionpipe.Prediction, error) {
	current, ok := p.pool.Get(p.cfg.MovieID, timestamp)
	if !ok {
		return nil, fmt.Errorf("timestamp %d has no pooled features", timestamp)
	}

	memory := p.pool.Window(p.cfg.MovieID, timestamp, p.cfg.Window, p.cfg.Window)
	scores, err := p.model.Classify(timestamp, current, memory)
	if err != nil {
		return nil, fmt.Errorf("classifying timestamp %d: %w", timestamp, err)
	}
	if len(scores) != len(current.TrackIDs) {
		return nil, fmt.Errorf("model returned %d score rows for %d persons at timestamp %d",
			len(scores), len(current.TrackIDs), timestamp)
	}

	prediction := &actionpipe.Prediction{
		Timestamp: timestamp,
		Persons:   make([]actionpipe.PersonActions, len(current.TrackIDs)),
	}
	for i := range current.TrackIDs {
		prediction.Persons[i] = actionpipe.PersonActions{
			TrackID: current.TrackIDs[i],
			Box:     current.Boxes[i],
			Scores:  p.selectScores(scores[i]),
		}
	}
	return prediction, nil
}

// Trim drops pooled features older than the given timestamp.
func (p *Predictor) Trim(oldest int) {
	p.pool.Trim(p.cfg.MovieID, oldest)
}

// Expire drops pooled features too old to fall inside the window of the
// given or any later timestamp. Realtime runs call it after each
// prediction.
func (p *Predictor) Expire(timestamp int) {
	p.pool.Trim(p.cfg.MovieID, timestamp-p.cfg.Window)
}

// Pooled reports how many timestamps currently hold features.
func (p *Predictor) Pooled() int {
	return p.pool.Len(p.cfg.MovieID)
}

// selectScores maps raw class scores to labeled results, dropping excluded
// labels and scores under the threshold.
func (p *Predictor) selectScores(classScores []float64) []actionpipe.ActionScore {
	var out []actionpipe.ActionScore
	for idx, score := range classScores {
		if score < p.cfg.Threshold {
			continue
		}
		id := idx + 1
		label, ok := p.labels[id]
		if !ok {
			continue
		}
		if p.exclude[label] {
			continue
		}
		out = append(out, actionpipe.ActionScore{
			ActionID: id,
			Action:   label,
			Score:    score,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}
