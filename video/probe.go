package video

import (
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Metadata describes the first video stream of a container.
type Metadata struct {
	Width      int
	Height     int
	FPS        float64
	Duration   time.Duration
	FrameCount int
}

// Probe inspects path with ffprobe.
func Probe(path string) (Metadata, error) {
	cmd := exec.Command(
		"ffprobe",
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height,r_frame_rate,avg_frame_rate,duration,nb_frames",
		"-of", "json",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return Metadata{}, fmt.Errorf("ffprobe %s: %w", path, err)
	}

	var probe struct {
		Streams []struct {
			Width        int    `json:"width"`
			Height       int    `json:"height"`
			RFrameRate   string `json:"r_frame_rate"`
			AvgFrameRate string `json:"avg_frame_rate"`
			Duration     string `json:"duration"`
			NbFrames     string `json:"nb_frames"`
		} `json:"streams"`
	}
	if err := json.Unmarshal(out, &probe); err != nil {
		return Metadata{}, fmt.Errorf("ffprobe %s: %w", path, err)
	}
	if len(probe.Streams) == 0 {
		return Metadata{}, fmt.Errorf("ffprobe %s: no video stream", path)
	}

	stream := probe.Streams[0]
	meta := Metadata{
		Width:  stream.Width,
		Height: stream.Height,
	}

	// avg_frame_rate reflects the real frame spacing, r_frame_rate is the
	// container's nominal rate. Some containers leave avg as 0/0.
	meta.FPS = parseRate(stream.AvgFrameRate)
	if meta.FPS == 0 {
		meta.FPS = parseRate(stream.RFrameRate)
	}

	if seconds, err := strconv.ParseFloat(stream.Duration, 64); err == nil {
		meta.Duration = time.Duration(seconds * float64(time.Second))
	}
	if n, err := strconv.Atoi(stream.NbFrames); err == nil {
		meta.FrameCount = n
	}
	if meta.FrameCount == 0 && meta.Duration > 0 && meta.FPS > 0 {
		meta.FrameCount = int(meta.Duration.Seconds() * meta.FPS)
	}

	return meta, nil
}

// parseRate converts an ffprobe rational such as "30000/1001" to a float.
func parseRate(s string) float64 {
	if s == "" {
		return 0
	}
	parts := strings.SplitN(s, "/", 2)
	num, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return 0
	}
	if len(parts) == 1 {
		return num
	}
	den, err := strconv.ParseFloat(parts[1], 64)
	if err != nil || den == 0 {
		return 0
	}
	return num / den
}
