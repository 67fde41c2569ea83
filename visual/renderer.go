package visual

import (
	"fmt"
	"io"
	"strings"

	"github.com/farwydi/actionpipe"
	"github.com/farwydi/actionpipe/video"
)

const lineHeight = 14

// Config defines the config for the renderer.
type Config struct {
	// BoxWidth is the stroke width of person boxes.
	BoxWidth int
	// MaxLabels caps the action lines drawn under a box.
	MaxLabels int
}

// ConfigDefault is the default config
var ConfigDefault = Config{
	BoxWidth:  2,
	MaxLabels: 5,
}

func configDefault(config ...Config) Config {
	if len(config) < 1 {
		return ConfigDefault
	}

	cfg := config[0]

	if cfg.BoxWidth <= 0 {
		cfg.BoxWidth = ConfigDefault.BoxWidth
	}

	if cfg.MaxLabels <= 0 {
		cfg.MaxLabels = ConfigDefault.MaxLabels
	}

	return cfg
}

// Renderer draws tracked boxes and the latest action scores onto frames.
// It keeps the most recent scores per track between predictions, matching
// how the live demo displays them. Not safe for concurrent use; the render
// loop owns it.
type Renderer struct {
	cfg     Config
	actions map[int][]actionpipe.ActionScore
}

func NewRenderer(config ...Config) *Renderer {
	return &Renderer{
		cfg:     configDefault(config...),
		actions: map[int][]actionpipe.ActionScore{},
	}
}

// Observe updates the per-track action scores from a prediction.
func (r *Renderer) Observe(p *actionpipe.Prediction) {
	if p == nil {
		return
	}
	for _, person := range p.Persons {
		r.actions[person.TrackID] = person.Scores
	}
}

// Actions returns the scores currently shown for a track.
func (r *Renderer) Actions(trackID int) []actionpipe.ActionScore {
	return r.actions[trackID]
}

// Draw overlays the detections of one frame onto im.
func (r *Renderer) Draw(im video.Image, detections []actionpipe.Detection) {
	for _, d := range detections {
		if d.TrackID == nil {
			im.DrawRectangle(d.Left, d.Top, d.Right, d.Bottom, r.cfg.BoxWidth, Palette[0])
			continue
		}

		id := *d.TrackID
		color := TrackColor(id)
		im.DrawRectangle(d.Left, d.Top, d.Right, d.Bottom, r.cfg.BoxWidth, color)

		tagY := d.Top - lineHeight
		if tagY < 0 {
			tagY = d.Top
		}
		drawLabel(im, d.Left, tagY, fmt.Sprintf("ID %d", id), color)

		y := d.Bottom + 1
		for i, score := range r.actions[id] {
			if i >= r.cfg.MaxLabels {
				break
			}
			if y+lineHeight > im.Height {
				break
			}
			text := fmt.Sprintf("%s %.2f", shortLabel(score.Action), score.Score)
			drawLabel(im, d.Left, y, text, color)
			y += lineHeight
		}
	}
}

// drawLabel paints text on a filled background anchored at (x, y).
func drawLabel(im video.Image, x int, y int, text string, background [3]uint8) {
	width := video.TextWidth(text) + 4
	im.FillRectangle(x, y, x+width, y+lineHeight, background)
	im.DrawText(x+2, y+lineHeight-3, text, textColor(background))
}

// textColor picks black or white for readability on the background.
func textColor(background [3]uint8) [3]uint8 {
	luma := 299*int(background[0]) + 587*int(background[1]) + 114*int(background[2])
	if luma > 128000 {
		return [3]uint8{0, 0, 0}
	}
	return [3]uint8{255, 255, 255}
}

// shortLabel trims the parenthesized hint off an action name for display.
func shortLabel(label string) string {
	if idx := strings.Index(label, " ("); idx > 0 {
		return label[:idx]
	}
	return label
}

// FrameWriter receives rendered frames.
type FrameWriter interface {
	Write(im video.Image) error
}

// RenderPass replays a stream through the renderer. For every frame it
// observes the prediction selected by predFor, draws the frame's tracked
// detections and hands the result to the writer. The deferred demo mode
// uses it as the second pass over the source once all predictions are in.
func RenderPass(rd video.Reader, wr FrameWriter, r *Renderer, tracked [][]actionpipe.Detection, predFor func(frameIdx int) *actionpipe.Prediction) error {
	for frameIdx := 0; ; frameIdx++ {
		im, err := rd.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		if predFor != nil {
			r.Observe(predFor(frameIdx))
		}

		var detections []actionpipe.Detection
		if frameIdx < len(tracked) {
			detections = tracked[frameIdx]
		}
		r.Draw(im, detections)

		if err := wr.Write(im); err != nil {
			return err
		}
	}
}
