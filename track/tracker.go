package track

import (
	goslgraph "github.com/cpmech/gosl/graph"

	"github.com/farwydi/actionpipe"
)

// Config defines the config for the tracker.
type Config struct {
	// MaxAge retires a track after this many frames without a match.
	MaxAge int
	// MatchThreshold rejects an assignment whose cost is above it.
	MatchThreshold float64
}

// ConfigDefault is the default config
var ConfigDefault = Config{
	MaxAge:         20,
	MatchThreshold: 0.9,
}

func configDefault(config ...Config) Config {
	if len(config) < 1 {
		return ConfigDefault
	}

	cfg := config[0]

	if cfg.MaxAge <= 0 {
		cfg.MaxAge = ConfigDefault.MaxAge
	}

	if cfg.MatchThreshold <= 0 {
		cfg.MatchThreshold = ConfigDefault.MatchThreshold
	}

	return cfg
}

// TrackedDetection is a detection pinned to the frame it was observed on.
type TrackedDetection struct {
	actionpipe.Detection
	FrameIdx int `json:"frame_idx"`
}

// Track is one object identity over time. Detections are in frame order.
type Track struct {
	ID         int
	Detections []TrackedDetection
}

func (t *Track) Last() TrackedDetection {
	return t.Detections[len(t.Detections)-1]
}

// Tracker matches per-frame detections to open tracks by box overlap,
// assigning each detection a track ID. IDs are never reused within a run.
type Tracker struct {
	cfg    Config
	tracks []*Track
	active map[int]*Track
}

func NewTracker(config ...Config) *Tracker {
	return &Tracker{
		cfg:    configDefault(config...),
		active: map[int]*Track{},
	}
}

// Update consumes the detections of one frame and returns them tagged with
// track IDs. Frames must be fed in order.
func (t *Tracker) Update(frameIdx int, detections []actionpipe.Detection) []actionpipe.Detection {
	matches := t.match(detections)

	out := make([]actionpipe.Detection, len(detections))
	matched := make(map[int]int, len(matches))
	for trackID, detectionIdx := range matches {
		matched[detectionIdx] = trackID
	}

	for i, d := range detections {
		trackID, ok := matched[i]
		if !ok {
			trackID = len(t.tracks)
			track := &Track{ID: trackID}
			t.tracks = append(t.tracks, track)
			t.active[trackID] = track
		}

		tagged := d.WithTrack(trackID)
		t.tracks[trackID].Detections = append(t.tracks[trackID].Detections, TrackedDetection{
			Detection: tagged,
			FrameIdx:  frameIdx,
		})
		out[i] = tagged
	}

	for _, track := range t.active {
		if frameIdx-track.Last().FrameIdx < t.cfg.MaxAge {
			continue
		}
		delete(t.active, track.ID)
	}

	return out
}

// Tracks returns every track opened so far, including retired ones.
func (t *Tracker) Tracks() []*Track {
	return t.tracks
}

// ActiveIDs reports the tracks still eligible for matching.
func (t *Tracker) ActiveIDs() []int {
	ids := make([]int, 0, len(t.active))
	for id := range t.active {
		ids = append(ids, id)
	}
	return ids
}

// match returns a map from track ID to the index of the detection that
// continues it.
func (t *Tracker) match(detections []actionpipe.Detection) map[int]int {
	if len(t.active) == 0 || len(detections) == 0 {
		return nil
	}

	var trackList []*Track
	for _, track := range t.active {
		trackList = append(trackList, track)
	}

	// create cost matrix for hungarian algorithm
	// rows: active tracks (trackList)
	// cols: current detections (detections)
	// values: 1-IoU if overlap is non-zero, or 1.5 otherwise
	costMatrix := make([][]float64, len(trackList))
	for i, track := range trackList {
		costMatrix[i] = make([]float64, len(detections))
		trackBox := track.Last().Box

		for j, detection := range detections {
			iou := trackBox.IOU(detection.Box)
			if detection.Class != track.Detections[0].Class {
				iou = 0
			}
			var cost float64
			if iou > 0.99 {
				cost = 0.01
			} else if iou > 0.1 {
				cost = 1 - iou
			} else {
				cost = 1.5
			}
			costMatrix[i][j] = cost
		}
	}

	munkres := &goslgraph.Munkres{}
	munkres.Init(len(trackList), len(detections))
	munkres.SetCostMatrix(costMatrix)
	munkres.Run()

	matches := make(map[int]int)
	for i, j := range munkres.Links {
		track := trackList[i]
		if j < 0 || costMatrix[i][j] > t.cfg.MatchThreshold {
			continue
		}
		matches[track.ID] = j
	}
	return matches
}

// Interpolate fills frame gaps inside a track with linearly blended boxes.
func Interpolate(track []TrackedDetection) []TrackedDetection {
	var output []TrackedDetection
	for _, detection := range track {
		if len(output) > 0 {
			prev := output[len(output)-1]
			next := detection
			jump := next.FrameIdx - prev.FrameIdx
			for i := 1; i < jump; i++ {
				prevWeight := int(1000 * float64(jump-i) / float64(jump))
				nextWeight := int(1000 * float64(i) / float64(jump))
				interp := TrackedDetection{
					Detection: actionpipe.Detection{
						Box: actionpipe.Box{
							Left:   (prev.Left*prevWeight + next.Left*nextWeight) / 1000,
							Top:    (prev.Top*prevWeight + next.Top*nextWeight) / 1000,
							Right:  (prev.Right*prevWeight + next.Right*nextWeight) / 1000,
							Bottom: (prev.Bottom*prevWeight + next.Bottom*nextWeight) / 1000,
						},
						Class:   prev.Class,
						Score:   prev.Score,
						TrackID: prev.TrackID,
					},
					FrameIdx: prev.FrameIdx + i,
				}
				output = append(output, interp)
			}
		}
		output = append(output, detection)
	}
	return output
}

// ByFrame regroups tracks into per-frame detection lists.
func ByFrame(tracks []*Track) [][]actionpipe.Detection {
	var detections [][]actionpipe.Detection
	for _, track := range tracks {
		for _, d := range track.Detections {
			for len(detections) <= d.FrameIdx {
				detections = append(detections, nil)
			}
			detections[d.FrameIdx] = append(detections[d.FrameIdx], d.Detection)
		}
	}
	return detections
}
