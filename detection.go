package actionpipe

import (
	"math"
	"sort"

	"github.com/mitroadmaps/gomapinfer/common"
)

// Box is an xyxy pixel rectangle in frame coordinates.
type Box struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
}

func (b Box) Width() int  { return b.Right - b.Left }
func (b Box) Height() int { return b.Bottom - b.Top }

func (b Box) Empty() bool {
	return b.Right <= b.Left || b.Bottom <= b.Top
}

func (b Box) Center() Point {
	return Point{
		X: (b.Left + b.Right) / 2,
		Y: (b.Top + b.Bottom) / 2,
	}
}

func (b Box) Rect() common.Rectangle {
	return common.Rectangle{
		Min: common.Point{X: float64(b.Left), Y: float64(b.Top)},
		Max: common.Point{X: float64(b.Right), Y: float64(b.Bottom)},
	}
}

func (b Box) IOU(o Box) float64 {
	return b.Rect().IOU(o.Rect())
}

// Clip trims the box to a width x height frame.
func (b Box) Clip(width int, height int) Box {
	if b.Left < 0 {
		b.Left = 0
	}
	if b.Top < 0 {
		b.Top = 0
	}
	if b.Right > width {
		b.Right = width
	}
	if b.Bottom > height {
		b.Bottom = height
	}
	if b.Right < b.Left {
		b.Right = b.Left
	}
	if b.Bottom < b.Top {
		b.Bottom = b.Top
	}
	return b
}

// Rescale maps the box from one frame resolution to another.
func (b Box) Rescale(from [2]int, to [2]int) Box {
	return Box{
		Left:   b.Left * to[0] / from[0],
		Top:    b.Top * to[1] / from[1],
		Right:  b.Right * to[0] / from[0],
		Bottom: b.Bottom * to[1] / from[1],
	}
}

type Point struct {
	X int
	Y int
}

func (p Point) Distance(o Point) float64 {
	dx := p.X - o.X
	dy := p.Y - o.Y
	return math.Sqrt(float64(dx*dx + dy*dy))
}

// Detection is one detector output box. TrackID is nil until the tracker
// assigns the detection to a track.
type Detection struct {
	Box
	Class   string  `json:"class"`
	Score   float64 `json:"score"`
	TrackID *int    `json:"track_id,omitempty"`
}

// WithTrack returns a copy of the detection tagged with a track ID.
func (d Detection) WithTrack(id int) Detection {
	d.TrackID = new(int)
	*d.TrackID = id
	return d
}

// FilterClass keeps detections whose class is in the set.
func FilterClass(detections []Detection, classes map[string]bool) []Detection {
	var out []Detection
	for _, d := range detections {
		if !classes[d.Class] {
			continue
		}
		out = append(out, d)
	}
	return out
}

// SplitPersons separates person detections from everything else.
func SplitPersons(detections []Detection) (persons []Detection, objects []Detection) {
	for _, d := range detections {
		if d.Class == "person" {
			persons = append(persons, d)
		} else {
			objects = append(objects, d)
		}
	}
	return persons, objects
}

// TopByScore keeps the k highest scoring detections.
func TopByScore(detections []Detection, k int) []Detection {
	if k < 0 || len(detections) <= k {
		return detections
	}
	out := append([]Detection{}, detections...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out[:k]
}

// ClipAll clips every box to the frame, dropping boxes that collapse.
func ClipAll(detections []Detection, width int, height int) []Detection {
	var out []Detection
	for _, d := range detections {
		d.Box = d.Box.Clip(width, height)
		if d.Box.Empty() {
			continue
		}
		out = append(out, d)
	}
	return out
}

// RescaleDetections maps per-frame detections between frame resolutions
// in place.
func RescaleDetections(detections [][]Detection, from [2]int, to [2]int) {
	for frameIdx := range detections {
		for i := range detections[frameIdx] {
			detections[frameIdx][i].Box = detections[frameIdx][i].Box.Rescale(from, to)
		}
	}
}
